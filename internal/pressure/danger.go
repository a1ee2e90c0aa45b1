package pressure

import "time"

const (
	windowHours    = 3
	nightLookahead = 8
	nightFromHour  = 15
	nightUntilHour = 3
)

// DangerWindow is the span with the steepest pressure drop in a scan range.
// DeltaHPa is never positive: a range that only rises reports 0.
type DangerWindow struct {
	StartIndex int
	EndIndex   int
	Start      string
	End        string
	DeltaHPa   float64
}

func newWindow(samples []Sample, i, j int, delta float64) DangerWindow {
	return DangerWindow{
		StartIndex: i,
		EndIndex:   j,
		Start:      samples[i].Label,
		End:        samples[j].Label,
		DeltaHPa:   round(min(delta, 0), 3),
	}
}

// ScanStandard finds the 3-hour window [i, i+3] with the most negative change
// over the whole series, earliest on ties. ok is false when the series has
// fewer than four samples.
func ScanStandard(samples []Sample) (w DangerWindow, ok bool) {
	n := len(samples)
	if n < windowHours+1 {
		return DangerWindow{}, false
	}

	bestStart := 0
	bestDrop := samples[windowHours].HPa - samples[0].HPa
	for i := 1; i < n-windowHours; i++ {
		drop := samples[i+windowHours].HPa - samples[i].HPa
		if drop < bestDrop {
			bestStart, bestDrop = i, drop
		}
	}
	return newWindow(samples, bestStart, bestStart+windowHours, bestDrop), true
}

// ScanNight looks forward only, from iNow to iNow+8 (clamped to the series),
// and considers every pair i < j in that range, so the window width varies.
// ok is false when the range holds fewer than two samples.
func ScanNight(samples []Sample, iNow int) (w DangerWindow, ok bool) {
	if iNow < 0 || iNow >= len(samples) {
		return DangerWindow{}, false
	}
	end := min(iNow+nightLookahead, len(samples)-1)
	if end <= iNow {
		return DangerWindow{}, false
	}

	bestI, bestJ := iNow, iNow+1
	bestDrop := samples[bestJ].HPa - samples[bestI].HPa
	for i := iNow; i < end; i++ {
		for j := i + 1; j <= end; j++ {
			drop := samples[j].HPa - samples[i].HPa
			if drop < bestDrop {
				bestI, bestJ, bestDrop = i, j, drop
			}
		}
	}
	return newWindow(samples, bestI, bestJ, bestDrop), true
}

// IsNightHour reports whether a local hour falls in the night-mode band
// (15:00 through 03:59).
func IsNightHour(hour int) bool {
	return hour >= nightFromHour || hour <= nightUntilHour
}

// DaySlice returns the contiguous samples whose local date equals day's date
// in day's location, and the index of the first of them in samples.
func DaySlice(samples []Sample, day time.Time) (slice []Sample, offset int) {
	y, m, d := day.Date()
	start, end := -1, -1
	for i, s := range samples {
		t, ok := s.Time(day.Location())
		if !ok {
			continue
		}
		ty, tm, td := t.Date()
		if ty == y && tm == m && td == d {
			if start < 0 {
				start = i
			}
			end = i
		}
	}
	if start < 0 {
		return nil, 0
	}
	return samples[start : end+1], start
}

// ScanDay runs the standard scan over one calendar day of the series.
// Window indices refer to the full series.
func ScanDay(samples []Sample, day time.Time) (w DangerWindow, ok bool) {
	slice, offset := DaySlice(samples, day)
	w, ok = ScanStandard(slice)
	if !ok {
		return DangerWindow{}, false
	}
	w.StartIndex += offset
	w.EndIndex += offset
	return w, true
}
