// Package pressure turns an hourly pressure forecast into the readings the
// dashboard and the alert job act on: the sample nearest to now, the 3-hour
// trend, the steepest drop window and its risk tier.
package pressure

import (
	"math"
	"strings"
	"time"
)

// LabelLayout is the canonical sample timestamp: local wall clock, minute precision.
const LabelLayout = "2006-01-02 15:04"

// Sample is one hourly reading. Consecutive samples are one hour apart, so
// index arithmetic stands in for time arithmetic.
type Sample struct {
	Label string  `json:"time"`
	HPa   float64 `json:"hpa"`
}

// Time parses the sample label in loc. ok is false when the label is not a
// valid timestamp.
func (s Sample) Time(loc *time.Location) (t time.Time, ok bool) {
	return ParseLabel(s.Label, loc)
}

// ParseLabel parses an ISO-8601-like local timestamp ("2025-03-01T09:00",
// "2025-03-01 09:00:00") at minute precision.
func ParseLabel(label string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(LabelLayout, canonicalLabel(label), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func canonicalLabel(raw string) string {
	s := strings.Replace(strings.TrimSpace(raw), "T", " ", 1)
	if len(s) > len(LabelLayout) {
		s = s[:len(LabelLayout)]
	}
	return s
}

// Labels returns the sample labels in order.
func Labels(samples []Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Label
	}
	return out
}

// Values returns the sample pressures in order.
func Values(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.HPa
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
