package pressure

import (
	"math"
	"time"
)

// DayRange holds the extremes of one calendar day of samples.
type DayRange struct {
	MinHPa   float64
	MaxHPa   float64
	RangeHPa float64
	Samples  int
}

// RangeForDay computes min, max and max-min over the samples on day's date.
// ok is false when the series has no samples on that day.
func RangeForDay(samples []Sample, day time.Time) (r DayRange, ok bool) {
	slice, _ := DaySlice(samples, day)
	if len(slice) == 0 {
		return DayRange{}, false
	}
	r = DayRange{MinHPa: slice[0].HPa, MaxHPa: slice[0].HPa, Samples: len(slice)}
	for _, s := range slice[1:] {
		r.MinHPa = math.Min(r.MinHPa, s.HPa)
		r.MaxHPa = math.Max(r.MaxHPa, s.HPa)
	}
	r.RangeHPa = round(r.MaxHPa-r.MinHPa, 3)
	return r, true
}

// MaxHourlyStep returns the largest absolute change between consecutive
// samples and the index of the later sample. ok is false for fewer than two samples.
func MaxHourlyStep(samples []Sample) (step float64, at int, ok bool) {
	if len(samples) < 2 {
		return 0, 0, false
	}
	for i := 1; i < len(samples); i++ {
		d := math.Abs(samples[i].HPa - samples[i-1].HPa)
		if !ok || d > step {
			step, at, ok = d, i, true
		}
	}
	return round(step, 3), at, true
}
