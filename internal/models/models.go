package models

import (
	"database/sql"
	"time"
)

// DateLayout is the calendar-date key used by daily records and the alert ledger.
const DateLayout = "2006-01-02"

type AlertKind string

const (
	AlertDailyRange    AlertKind = "daily_range"
	AlertDailyDelta    AlertKind = "daily_delta"
	AlertTomorrowRisk  AlertKind = "tomorrow_risk"
	AlertForecastSwing AlertKind = "forecast_swing"
)

// AlertKinds lists every kind in evaluation order.
var AlertKinds = []AlertKind{AlertDailyRange, AlertDailyDelta, AlertTomorrowRisk, AlertForecastSwing}

func ParseAlertKind(s string) (AlertKind, bool) {
	for _, k := range AlertKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type User struct {
	ID            int64
	Email         string
	NotifyEnabled bool
	ThresholdHPa  float64 // lower is more sensitive
	Latitude      float64
	Longitude     float64
	CreatedAt     time.Time
}

// UserSettings is the mutable part of a User.
type UserSettings struct {
	NotifyEnabled bool
	ThresholdHPa  float64 `validate:"gt=0,lte=50"`
	Latitude      float64 `validate:"gte=-90,lte=90"`
	Longitude     float64 `validate:"gte=-180,lte=180"`
}

func (u User) Settings() UserSettings {
	return UserSettings{
		NotifyEnabled: u.NotifyEnabled,
		ThresholdHPa:  u.ThresholdHPa,
		Latitude:      u.Latitude,
		Longitude:     u.Longitude,
	}
}

type DailyPressureRecord struct {
	UserID      int64
	Date        string // YYYY-MM-DD, local
	PressureHPa float64
	MinHPa      sql.NullFloat64
	MaxHPa      sql.NullFloat64
	RangeHPa    sql.NullFloat64
	UpdatedAt   time.Time
}

// AlertLedgerEntry marks an alert as sent for (UserID, Date, Kind).
type AlertLedgerEntry struct {
	UserID    int64
	Date      string
	Kind      AlertKind
	MetricHPa float64
	SentAt    time.Time
}

type SymptomLog struct {
	ID       int64
	UserID   int64
	Symptom  string
	Severity int // 1-5
	Memo     sql.NullString
	LoggedAt time.Time
}
