package pressure

import "time"

// AnchorIndex returns the index of the sample closest to now, earliest on
// ties. Labels are interpreted in now's location. The forecast may have been
// fetched earlier or start in the past, so this is neither the first nor the
// last sample in general. When no label parses, it returns 0.
func AnchorIndex(samples []Sample, now time.Time) int {
	best := 0
	var bestDiff time.Duration
	found := false

	for i, s := range samples {
		t, ok := s.Time(now.Location())
		if !ok {
			continue
		}
		diff := t.Sub(now)
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < bestDiff {
			best, bestDiff, found = i, diff, true
		}
	}
	return best
}
