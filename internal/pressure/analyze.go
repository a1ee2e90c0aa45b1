package pressure

import "time"

type Options struct {
	// NightMode enables the forward-only variable-width scan during night
	// hours. Otherwise the fixed 3-hour scan over the whole series is used.
	NightMode bool
}

// WindowJSON is the danger window as exposed to dashboard clients.
type WindowJSON struct {
	Start    string  `json:"start"`
	End      string  `json:"end"`
	DeltaHPa float64 `json:"delta_hpa"`
}

// Result is the dashboard payload. Field names and nullability are relied on
// by clients; DeltaHPa and DangerTime are legacy aliases of Delta3h and
// DangerWindow.Start.
type Result struct {
	Labels          []string    `json:"labels"`
	Values          []float64   `json:"values"`
	CurrentHPa      float64     `json:"current_hpa"`
	CurrentTime     string      `json:"current_time"`
	Delta3h         *float64    `json:"delta_3h"`
	Delta3hBaseTime *string     `json:"delta_3h_base_time"`
	Trend           Trend       `json:"trend"`
	DangerWindow    *WindowJSON `json:"danger_window"`
	Risk            Risk        `json:"risk"`
	RiskLabel       string      `json:"risk_label"`
	IsNightMode     bool        `json:"is_night_mode"`

	DeltaHPa   *float64 `json:"delta_hpa"`
	DangerTime *string  `json:"danger_time"`
}

// Analyze builds the dashboard result for a normalized series at now. Labels
// are interpreted in now's location.
func Analyze(samples []Sample, now time.Time, opts Options) (*Result, error) {
	if len(samples) == 0 {
		return nil, ErrDataUnavailable
	}

	iNow := AnchorIndex(samples, now)
	res := &Result{
		Labels:      Labels(samples),
		Values:      Values(samples),
		CurrentHPa:  samples[iNow].HPa,
		CurrentTime: samples[iNow].Label,
	}

	delta, ok := Delta3h(samples, iNow)
	res.Trend = ClassifyTrend(delta, ok)
	if ok {
		shown := round(delta, 1)
		base := samples[iNow-trendHours].Label
		res.Delta3h = &shown
		res.DeltaHPa = &shown
		res.Delta3hBaseTime = &base
	}

	res.IsNightMode = opts.NightMode && IsNightHour(now.Hour())
	var w DangerWindow
	if res.IsNightMode {
		w, ok = ScanNight(samples, iNow)
	} else {
		w, ok = ScanStandard(samples)
	}
	res.Risk = ClassifyRisk(w, ok)
	res.RiskLabel = res.Risk.Label()
	if ok {
		start := w.Start
		res.DangerWindow = &WindowJSON{Start: w.Start, End: w.End, DeltaHPa: round(w.DeltaHPa, 1)}
		res.DangerTime = &start
	}
	return res, nil
}
