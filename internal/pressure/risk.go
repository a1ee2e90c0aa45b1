package pressure

import "math"

type Risk string

const (
	RiskStable  Risk = "stable"
	RiskCaution Risk = "caution"
	RiskAlert   Risk = "alert"
	RiskUnknown Risk = "unknown"
)

// Drop magnitudes (hPa) at which each tier starts. Lower bounds are inclusive.
const (
	CautionDropHPa = 4.0
	AlertDropHPa   = 8.0
)

// ClassifyDrop maps a pressure change to a tier by its magnitude.
func ClassifyDrop(delta float64) Risk {
	drop := math.Abs(delta)
	switch {
	case drop >= AlertDropHPa:
		return RiskAlert
	case drop >= CautionDropHPa:
		return RiskCaution
	default:
		return RiskStable
	}
}

// ClassifyRisk returns the tier for a scan result. An absent window is
// RiskUnknown everywhere it is reported.
func ClassifyRisk(w DangerWindow, ok bool) Risk {
	if !ok {
		return RiskUnknown
	}
	return ClassifyDrop(w.DeltaHPa)
}

// Label is the tier as shown to users.
func (r Risk) Label() string {
	switch r {
	case RiskAlert:
		return "警戒"
	case RiskCaution:
		return "注意"
	case RiskStable:
		return "安定"
	default:
		return "不明"
	}
}

// Notable reports whether the tier warrants a notification.
func (r Risk) Notable() bool {
	return r == RiskCaution || r == RiskAlert
}
