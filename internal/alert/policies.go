package alert

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lox/barowatch/internal/models"
	"github.com/lox/barowatch/internal/pressure"
)

type Outcome string

const (
	OutcomeNoAlert          Outcome = "no_alert"
	OutcomeAlreadySent      Outcome = "already_sent"
	OutcomeSent             Outcome = "sent"
	OutcomeFailed           Outcome = "failed"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeNotDue           Outcome = "not_due"
)

type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
)

// Decision is the terminal state of one (user, date, kind) evaluation.
type Decision struct {
	UserID       int64            `json:"user_id"`
	Kind         models.AlertKind `json:"kind"`
	Date         string           `json:"date"`
	Outcome      Outcome          `json:"outcome"`
	MetricHPa    float64          `json:"metric_hpa"`
	ThresholdHPa float64          `json:"threshold_hpa"`
	Direction    Direction        `json:"direction,omitempty"`
	Risk         pressure.Risk    `json:"risk,omitempty"`
	Err          error            `json:"-"`
}

func (d Decision) failed(err error) Decision {
	d.Outcome = OutcomeFailed
	d.Err = err
	return d
}

// day is today's view of the series at the moment of evaluation.
type day struct {
	date        string
	anchor      int    // now-anchored sample
	observedAt  string // label of the reference sample
	pressureHPa float64
	rng         pressure.DayRange
	hasRange    bool
}

// dayOf picks today's representative reading: the sample at refHour local
// time, so every pass of the day stores the same hour. When the series has no
// sample within an hour of it, the now-anchored reading is used instead.
func dayOf(samples []pressure.Sample, now time.Time, refHour int) day {
	d := day{
		date:   now.Format(models.DateLayout),
		anchor: pressure.AnchorIndex(samples, now),
	}
	ref := d.anchor
	refTime := time.Date(now.Year(), now.Month(), now.Day(), refHour, 0, 0, 0, now.Location())
	if i := pressure.AnchorIndex(samples, refTime); nearHour(samples[i], refTime) {
		ref = i
	}
	d.observedAt = samples[ref].Label
	d.pressureHPa = samples[ref].HPa
	d.rng, d.hasRange = pressure.RangeForDay(samples, now)
	return d
}

func nearHour(s pressure.Sample, at time.Time) bool {
	t, ok := s.Time(at.Location())
	if !ok {
		return false
	}
	diff := t.Sub(at)
	return diff > -time.Hour && diff < time.Hour
}

func (d day) record(userID int64) models.DailyPressureRecord {
	r := models.DailyPressureRecord{
		UserID:      userID,
		Date:        d.date,
		PressureHPa: d.pressureHPa,
	}
	if d.hasRange {
		r.MinHPa = sql.NullFloat64{Float64: d.rng.MinHPa, Valid: true}
		r.MaxHPa = sql.NullFloat64{Float64: d.rng.MaxHPa, Valid: true}
		r.RangeHPa = sql.NullFloat64{Float64: d.rng.RangeHPa, Valid: true}
	}
	return r
}

// roundMetric removes float noise below the 0.1 hPa data resolution.
func roundMetric(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func (e *Engine) evalDailyRange(ctx context.Context, u models.User, today day) Decision {
	d := Decision{UserID: u.ID, Kind: models.AlertDailyRange, Date: today.date, ThresholdHPa: DailyRangeThresholdHPa}
	if !today.hasRange {
		d.Outcome = OutcomeInsufficientData
		return d
	}
	d.MetricHPa = today.rng.RangeHPa
	if d.MetricHPa < DailyRangeThresholdHPa {
		d.Outcome = OutcomeNoAlert
		return d
	}
	return e.dispatch(ctx, u, d, dailyRangeMessage(today, DailyRangeThresholdHPa))
}

func (e *Engine) evalDailyDelta(ctx context.Context, u models.User, today day) Decision {
	threshold := e.cfg.DailyDeltaThresholdHPa
	d := Decision{UserID: u.ID, Kind: models.AlertDailyDelta, Date: today.date, ThresholdHPa: threshold}

	t, err := time.ParseInLocation(models.DateLayout, today.date, e.loc)
	if err != nil {
		return d.failed(err)
	}
	yesterday := t.AddDate(0, 0, -1).Format(models.DateLayout)
	prev, err := e.store.GetDailyRecord(u.ID, yesterday)
	if err != nil {
		return d.failed(fmt.Errorf("load %s record: %w", yesterday, err))
	}
	if prev == nil {
		d.Outcome = OutcomeInsufficientData
		return d
	}

	d.MetricHPa = roundMetric(today.pressureHPa - prev.PressureHPa)
	d.Direction = DirectionFalling
	if d.MetricHPa > 0 {
		d.Direction = DirectionRising
	}
	if math.Abs(d.MetricHPa) < threshold {
		d.Outcome = OutcomeNoAlert
		return d
	}
	return e.dispatch(ctx, u, d, dailyDeltaMessage(today, prev.PressureHPa, d.MetricHPa, d.Direction, threshold))
}

// evalTomorrowRisk scans tomorrow's slice of the forecast for its worst
// 3-hour drop. The ledger is keyed on today, the day the alert is sent.
func (e *Engine) evalTomorrowRisk(ctx context.Context, u models.User, samples []pressure.Sample, now time.Time) Decision {
	today := now.Format(models.DateLayout)
	d := Decision{UserID: u.ID, Kind: models.AlertTomorrowRisk, Date: today, ThresholdHPa: pressure.CautionDropHPa}
	if now.Hour() < e.riskHour {
		d.Outcome = OutcomeNotDue
		return d
	}

	tomorrow := now.AddDate(0, 0, 1)
	w, ok := pressure.ScanDay(samples, tomorrow)
	d.Risk = pressure.ClassifyRisk(w, ok)
	if !ok {
		d.Outcome = OutcomeInsufficientData
		return d
	}
	d.MetricHPa = w.DeltaHPa
	if !d.Risk.Notable() {
		d.Outcome = OutcomeNoAlert
		return d
	}
	return e.dispatch(ctx, u, d, tomorrowRiskMessage(tomorrow.Format(models.DateLayout), w, d.Risk))
}

// evalForecastSwing alerts when any hour-over-hour change from now to the end
// of the horizon reaches the user's own threshold.
func (e *Engine) evalForecastSwing(ctx context.Context, u models.User, samples []pressure.Sample, today day) Decision {
	d := Decision{UserID: u.ID, Kind: models.AlertForecastSwing, Date: today.date, ThresholdHPa: u.ThresholdHPa}

	start := today.anchor
	step, at, ok := pressure.MaxHourlyStep(samples[start:])
	if !ok {
		d.Outcome = OutcomeInsufficientData
		return d
	}
	d.MetricHPa = step
	if u.ThresholdHPa <= 0 || step < u.ThresholdHPa {
		d.Outcome = OutcomeNoAlert
		return d
	}
	return e.dispatch(ctx, u, d, forecastSwingMessage(len(samples)-start, step, samples[start+at].Label, u.ThresholdHPa))
}
