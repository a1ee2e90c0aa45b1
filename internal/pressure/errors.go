package pressure

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable is returned when a provider response holds no usable samples.
var ErrDataUnavailable = errors.New("pressure data unavailable")

// UpstreamError wraps a time-series provider failure (network, HTTP status or decode).
// It is not retried by the analysis code; the next scheduled pass retries naturally.
type UpstreamError struct {
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
