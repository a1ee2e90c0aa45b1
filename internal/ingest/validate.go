package ingest

import (
	"math"
	"time"

	"github.com/lox/barowatch/internal/pressure"
)

const (
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagStepUnlikely       = "step_unlikely"
	FlagLabelUnparsable    = "label_unparsable"
	FlagNotHourly          = "not_hourly"
)

// Plausible sea-level pressure bounds and hourly step, in hPa.
const (
	minPlausibleHPa  = 870.0
	maxPlausibleHPa  = 1085.0
	maxPlausibleStep = 10.0
)

// ValidateSeries returns quality flags for a normalized series, each flag at
// most once. Flags are informational; flagged series are still analysed.
func ValidateSeries(samples []pressure.Sample, loc *time.Location) []string {
	seen := make(map[string]bool)
	var flags []string
	flag := func(f string) {
		if !seen[f] {
			seen[f] = true
			flags = append(flags, f)
		}
	}

	var prev time.Time
	for i, s := range samples {
		if s.HPa < minPlausibleHPa || s.HPa > maxPlausibleHPa {
			flag(FlagPressureOutOfRange)
		}
		if i > 0 && math.Abs(s.HPa-samples[i-1].HPa) > maxPlausibleStep {
			flag(FlagStepUnlikely)
		}

		t, ok := s.Time(loc)
		if !ok {
			flag(FlagLabelUnparsable)
			prev = time.Time{}
			continue
		}
		if !prev.IsZero() && t.Sub(prev) != time.Hour {
			flag(FlagNotHourly)
		}
		prev = t
	}
	return flags
}
