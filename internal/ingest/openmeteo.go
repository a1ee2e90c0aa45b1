package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/lox/barowatch/internal/httputil"
	"github.com/lox/barowatch/internal/metrics"
	"github.com/lox/barowatch/internal/pressure"
	"github.com/lox/barowatch/internal/store"
)

const (
	ProviderName     = "open-meteo"
	DefaultBaseURL   = "https://api.open-meteo.com"
	openMeteoPath    = "/v1/jma"
	endpointName     = "v1/jma"
	VariableMSL      = "pressure_msl"
	VariableSurface  = "surface_pressure"
	defaultRetryTime = 2 * time.Minute
)

// FetchRecorder persists provider audit data. *store.Store implements it.
type FetchRecorder interface {
	StartFetchRun(source, endpoint, location string) (*store.FetchRun, error)
	CompleteFetchRun(run *store.FetchRun) error
	StoreRawPayload(runID int64, source, endpoint, location string, payload []byte) (int64, error)
}

type OpenMeteoConfig struct {
	BaseURL  string
	Variable string // pressure_msl or surface_pressure
	Timezone string // IANA name; labels come back in this zone
	Horizon  int
	Timeout  time.Duration

	// RetryMaxElapsed bounds retries of 429 and 5xx responses.
	RetryMaxElapsed time.Duration
}

// OpenMeteo fetches hourly pressure forecasts from the Open-Meteo JMA endpoint.
type OpenMeteo struct {
	cfg      OpenMeteoConfig
	client   *resty.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	recorder FetchRecorder
	logger   *zap.Logger
	loc      *time.Location
}

// NewOpenMeteo builds a client. recorder may be nil to skip fetch auditing.
func NewOpenMeteo(cfg OpenMeteoConfig, recorder FetchRecorder, logger *zap.Logger) *OpenMeteo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Variable == "" {
		cfg.Variable = VariableMSL
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Tokyo"
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = pressure.DefaultHorizon
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = defaultRetryTime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	client := resty.NewWithClient(httputil.NewClient(cfg.Timeout)).
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", httputil.UserAgent).
		SetHeader("Accept", "application/json")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        ProviderName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil
		},
	})

	return &OpenMeteo{
		cfg:      cfg,
		client:   client,
		breaker:  breaker,
		recorder: recorder,
		logger:   logger,
		loc:      loc,
	}
}

// statusError is a non-200 provider response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

type fetchResult struct {
	httpStatus   int
	responseSize int
	samples      int
}

// FetchSeries returns the normalized hourly series for a coordinate.
// Transport failures are *pressure.UpstreamError; an empty series is
// pressure.ErrDataUnavailable.
func (c *OpenMeteo) FetchSeries(ctx context.Context, lat, lon float64) ([]pressure.Sample, error) {
	location := fmt.Sprintf("%.4f,%.4f", lat, lon)

	var run *store.FetchRun
	if c.recorder != nil {
		var err error
		run, err = c.recorder.StartFetchRun(ProviderName, endpointName, location)
		if err != nil {
			c.logger.Warn("ingest: start fetch run", zap.Error(err))
		}
	}

	result := &fetchResult{}
	start := time.Now()
	body, err := c.fetch(ctx, lat, lon, result)
	metrics.ProviderLatency.WithLabelValues(ProviderName).Observe(time.Since(start).Seconds())

	var samples []pressure.Sample
	if err == nil {
		samples, err = c.decode(body)
		result.samples = len(samples)
	}

	status := strconv.Itoa(result.httpStatus)
	if result.httpStatus == 0 {
		status = "error"
	}
	metrics.ProviderCallsTotal.WithLabelValues(ProviderName, status).Inc()

	c.record(run, location, body, result, err)
	if err != nil {
		return nil, err
	}

	metrics.SamplesIngested.WithLabelValues(ProviderName).Add(float64(len(samples)))
	for _, f := range ValidateSeries(samples, c.loc) {
		metrics.SeriesQualityFlags.WithLabelValues(f).Inc()
		c.logger.Warn("ingest: series quality flag", zap.String("flag", f), zap.String("location", location))
	}
	return samples, nil
}

func (c *OpenMeteo) fetch(ctx context.Context, lat, lon float64, result *fetchResult) ([]byte, error) {
	params := map[string]string{
		"latitude":      strconv.FormatFloat(lat, 'f', 4, 64),
		"longitude":     strconv.FormatFloat(lon, 'f', 4, 64),
		"hourly":        c.cfg.Variable,
		"timezone":      c.cfg.Timezone,
		"forecast_days": strconv.Itoa(forecastDays(c.cfg.Horizon)),
	}

	var body []byte
	operation := func() error {
		b, err := c.breaker.Execute(func() ([]byte, error) {
			resp, err := c.client.R().SetContext(ctx).SetQueryParams(params).Get(openMeteoPath)
			if err != nil {
				return nil, err
			}
			result.httpStatus = resp.StatusCode()
			result.responseSize = len(resp.Body())
			if resp.StatusCode() != http.StatusOK {
				return resp.Body(), &statusError{code: resp.StatusCode(), body: truncate(resp.String(), 200)}
			}
			return resp.Body(), nil
		})
		body = b

		var se *statusError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.As(err, &se) && !se.retryable():
			return backoff.Permanent(err)
		}
		c.logger.Debug("ingest: retrying provider call", zap.Error(err))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return body, &pressure.UpstreamError{Provider: ProviderName, StatusCode: result.httpStatus, Err: err}
	}
	return body, nil
}

type openMeteoResponse struct {
	Error  bool                       `json:"error"`
	Reason string                     `json:"reason"`
	Hourly map[string]json.RawMessage `json:"hourly"`
}

func (c *OpenMeteo) decode(body []byte) ([]pressure.Sample, error) {
	var data openMeteoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &pressure.UpstreamError{Provider: ProviderName, Err: fmt.Errorf("unmarshal: %w", err)}
	}
	if data.Error {
		return nil, &pressure.UpstreamError{Provider: ProviderName, Err: errors.New(data.Reason)}
	}

	var raw pressure.RawSeries
	timesJSON, ok := data.Hourly["time"]
	if !ok {
		return nil, fmt.Errorf("response has no hourly.time: %w", pressure.ErrDataUnavailable)
	}
	if err := json.Unmarshal(timesJSON, &raw.Times); err != nil {
		return nil, &pressure.UpstreamError{Provider: ProviderName, Err: fmt.Errorf("unmarshal hourly.time: %w", err)}
	}
	valuesJSON, ok := data.Hourly[c.cfg.Variable]
	if !ok {
		return nil, fmt.Errorf("response has no hourly.%s: %w", c.cfg.Variable, pressure.ErrDataUnavailable)
	}
	if err := json.Unmarshal(valuesJSON, &raw.Values); err != nil {
		return nil, &pressure.UpstreamError{Provider: ProviderName, Err: fmt.Errorf("unmarshal hourly.%s: %w", c.cfg.Variable, err)}
	}

	return pressure.Normalize(raw, c.cfg.Horizon)
}

func (c *OpenMeteo) record(run *store.FetchRun, location string, body []byte, result *fetchResult, fetchErr error) {
	if run == nil {
		return
	}
	run.Success = fetchErr == nil
	run.HTTPStatus = sql.NullInt64{Int64: int64(result.httpStatus), Valid: result.httpStatus > 0}
	run.ResponseSizeBytes = sql.NullInt64{Int64: int64(result.responseSize), Valid: result.responseSize > 0}
	run.SamplesParsed = sql.NullInt64{Int64: int64(result.samples), Valid: true}
	if fetchErr != nil {
		run.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
	}

	if len(body) > 0 {
		if _, err := c.recorder.StoreRawPayload(run.ID, ProviderName, endpointName, location, body); err != nil {
			c.logger.Warn("ingest: store raw payload", zap.Error(err))
		}
	}
	if err := c.recorder.CompleteFetchRun(run); err != nil {
		c.logger.Warn("ingest: complete fetch run", zap.Error(err))
	}
}

// forecastDays is the number of provider days needed to cover horizon hours.
func forecastDays(horizon int) int {
	return max(1, (horizon+23)/24)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
