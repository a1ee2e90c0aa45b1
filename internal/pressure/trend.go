package pressure

type Trend string

const (
	TrendSharpDrop Trend = "sharp_drop"
	TrendCaution   Trend = "caution"
	TrendStable    Trend = "stable"
	TrendRising    Trend = "rising"
	TrendUnknown   Trend = "unknown"
)

const (
	trendHours          = 3
	sharpDropDeltaHPa   = -6.0
	cautionDropDeltaHPa = -3.0
	risingDeltaHPa      = 3.0
)

// Delta3h returns samples[iNow] - samples[iNow-3]. ok is false when there are
// fewer than three samples before the anchor: no data is not the same as no change.
func Delta3h(samples []Sample, iNow int) (delta float64, ok bool) {
	if iNow < trendHours || iNow >= len(samples) {
		return 0, false
	}
	return round(samples[iNow].HPa-samples[iNow-trendHours].HPa, 3), true
}

// ClassifyTrend maps a 3-hour delta to a trend label. Boundaries are exact:
// -6 is a sharp drop, -3 is caution, 3 is rising.
func ClassifyTrend(delta float64, ok bool) Trend {
	switch {
	case !ok:
		return TrendUnknown
	case delta <= sharpDropDeltaHPa:
		return TrendSharpDrop
	case delta <= cautionDropDeltaHPa:
		return TrendCaution
	case delta < risingDeltaHPa:
		return TrendStable
	default:
		return TrendRising
	}
}
