// Package alert decides, once per user, date and kind, whether a pressure
// alert should be emailed, and records what was sent in an idempotency ledger.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lox/barowatch/internal/metrics"
	"github.com/lox/barowatch/internal/models"
	"github.com/lox/barowatch/internal/notify"
	"github.com/lox/barowatch/internal/pressure"
)

// Store is the persistence the engine needs. *store.Store implements it.
type Store interface {
	ListNotifiableUsers() ([]models.User, error)
	GetDailyRecord(userID int64, date string) (*models.DailyPressureRecord, error)
	UpsertDailyRecord(r models.DailyPressureRecord) error
	HasAlert(userID int64, date string, kind models.AlertKind) (bool, error)
	ClaimAlert(e models.AlertLedgerEntry) (inserted bool, err error)
	ReleaseAlert(userID int64, date string, kind models.AlertKind) error
}

// Provider returns the normalized hourly series for a coordinate.
type Provider interface {
	FetchSeries(ctx context.Context, lat, lon float64) ([]pressure.Sample, error)
}

// DailyRangeThresholdHPa is the fixed intraday range that triggers daily_range.
const DailyRangeThresholdHPa = 4.0

const (
	DefaultDailyDeltaThresholdHPa = 4.0
	DefaultTomorrowRiskHour       = 18
	DefaultReferenceHour          = 9
)

type Config struct {
	// Kinds enabled for evaluation, in order. Empty means all kinds.
	Kinds                  []models.AlertKind
	DailyDeltaThresholdHPa float64
	// TomorrowRiskHour is the local hour from which tomorrow_risk is
	// evaluated. Nil means DefaultTomorrowRiskHour.
	TomorrowRiskHour *int
	// ReferenceHour is the local hour whose reading represents the day in
	// daily records, so daily_delta compares the same hour on both days.
	// Nil means DefaultReferenceHour.
	ReferenceHour *int
}

// Hour returns a pointer to h for Config's optional hour fields.
func Hour(h int) *int {
	return &h
}

func hourOr(h *int, def int) int {
	if h == nil || *h < 0 || *h > 23 {
		return def
	}
	return *h
}

type Engine struct {
	store    Store
	provider Provider
	sender   notify.Sender
	cfg      Config
	riskHour int
	refHour  int
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(store Store, provider Provider, sender notify.Sender, cfg Config, loc *time.Location, logger *zap.Logger) *Engine {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = models.AlertKinds
	}
	if cfg.DailyDeltaThresholdHPa <= 0 {
		cfg.DailyDeltaThresholdHPa = DefaultDailyDeltaThresholdHPa
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		provider: provider,
		sender:   sender,
		cfg:      cfg,
		riskHour: hourOr(cfg.TomorrowRiskHour, DefaultTomorrowRiskHour),
		refHour:  hourOr(cfg.ReferenceHour, DefaultReferenceHour),
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Report summarizes one pass over all notifiable users.
type Report struct {
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Users       int        `json:"users"`
	Sent        int        `json:"sent"`
	AlreadySent int        `json:"already_sent"`
	Failed      int        `json:"failed"`
	UserErrors  int        `json:"user_errors"`
	Decisions   []Decision `json:"decisions"`
}

func (r *Report) add(d Decision) {
	r.Decisions = append(r.Decisions, d)
	switch d.Outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeAlreadySent:
		r.AlreadySent++
	case OutcomeFailed:
		r.Failed++
	}
}

type coordinate struct {
	lat, lon float64
}

type seriesResult struct {
	samples []pressure.Sample
	err     error
}

// Run evaluates every notifiable user once. Failures for one user are logged
// and counted; they never stop the pass. The returned error is set only when
// the user list cannot be loaded or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	started := e.now()
	report := &Report{RunID: uuid.NewString(), StartedAt: started}
	logger := e.logger.With(zap.String("run_id", report.RunID))
	defer func() {
		metrics.AlertPassDuration.Observe(time.Since(started).Seconds())
	}()

	users, err := e.store.ListNotifiableUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	report.Users = len(users)
	logger.Info("alert: pass started", zap.Int("users", len(users)))

	now := started.In(e.loc)
	cache := make(map[coordinate]seriesResult)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = e.now()
			return report, err
		}

		key := coordinate{u.Latitude, u.Longitude}
		series, ok := cache[key]
		if !ok {
			series.samples, series.err = e.provider.FetchSeries(ctx, u.Latitude, u.Longitude)
			cache[key] = series
		}
		if series.err != nil {
			e.userFailed(logger, report, u, "fetch series", series.err)
			continue
		}

		decisions, err := e.EvaluateUser(ctx, u, series.samples, now)
		for _, d := range decisions {
			report.add(d)
		}
		if err != nil {
			e.userFailed(logger, report, u, "evaluate", err)
		}
	}

	report.FinishedAt = e.now()
	logger.Info("alert: pass finished",
		zap.Int("users", report.Users),
		zap.Int("sent", report.Sent),
		zap.Int("already_sent", report.AlreadySent),
		zap.Int("failed", report.Failed),
		zap.Int("user_errors", report.UserErrors),
	)
	return report, nil
}

func (e *Engine) userFailed(logger *zap.Logger, report *Report, u models.User, step string, err error) {
	report.UserErrors++
	metrics.AlertPassUserFailures.Inc()
	level := zap.ErrorLevel
	if errors.Is(err, pressure.ErrDataUnavailable) {
		level = zap.WarnLevel
	}
	logger.Log(level, "alert: user skipped", zap.Int64("user_id", u.ID), zap.String("step", step), zap.Error(err))
}

// EvaluateUser records today's pressure for u and runs every enabled policy.
// Per-kind failures are reported as OutcomeFailed decisions; the error is set
// only when today's record cannot be stored.
func (e *Engine) EvaluateUser(ctx context.Context, u models.User, samples []pressure.Sample, now time.Time) ([]Decision, error) {
	if len(samples) == 0 {
		return nil, pressure.ErrDataUnavailable
	}
	now = now.In(e.loc)
	today := dayOf(samples, now, e.refHour)

	if e.enabled(models.AlertDailyRange) || e.enabled(models.AlertDailyDelta) {
		if err := e.store.UpsertDailyRecord(today.record(u.ID)); err != nil {
			return nil, fmt.Errorf("store daily record: %w", err)
		}
	}

	var decisions []Decision
	for _, kind := range e.cfg.Kinds {
		var d Decision
		switch kind {
		case models.AlertDailyRange:
			d = e.evalDailyRange(ctx, u, today)
		case models.AlertDailyDelta:
			d = e.evalDailyDelta(ctx, u, today)
		case models.AlertTomorrowRisk:
			d = e.evalTomorrowRisk(ctx, u, samples, now)
		case models.AlertForecastSwing:
			d = e.evalForecastSwing(ctx, u, samples, today)
		default:
			continue
		}
		metrics.AlertDecisions.WithLabelValues(string(d.Kind), string(d.Outcome)).Inc()
		if d.Err != nil {
			e.logger.Warn("alert: decision failed",
				zap.Int64("user_id", u.ID), zap.String("kind", string(d.Kind)), zap.Error(d.Err))
		} else {
			e.logger.Debug("alert: decision",
				zap.Int64("user_id", u.ID), zap.String("kind", string(d.Kind)),
				zap.String("outcome", string(d.Outcome)), zap.Float64("metric_hpa", d.MetricHPa))
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func (e *Engine) enabled(kind models.AlertKind) bool {
	for _, k := range e.cfg.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// dispatch runs the ledger state machine for a metric that crossed its
// threshold: skip if already recorded, otherwise claim the ledger row, send,
// and release the claim if the send fails so the next pass retries.
func (e *Engine) dispatch(ctx context.Context, u models.User, d Decision, msg Message) Decision {
	sent, err := e.store.HasAlert(u.ID, d.Date, d.Kind)
	if err != nil {
		return d.failed(fmt.Errorf("check ledger: %w", err))
	}
	if sent {
		d.Outcome = OutcomeAlreadySent
		return d
	}

	claimed, err := e.store.ClaimAlert(models.AlertLedgerEntry{
		UserID:    u.ID,
		Date:      d.Date,
		Kind:      d.Kind,
		MetricHPa: d.MetricHPa,
		SentAt:    e.now().UTC(),
	})
	if err != nil {
		return d.failed(fmt.Errorf("claim ledger: %w", err))
	}
	if !claimed {
		d.Outcome = OutcomeAlreadySent
		return d
	}

	if err := e.sender.Send(ctx, u.Email, msg.Subject, msg.Body); err != nil {
		if rerr := e.store.ReleaseAlert(u.ID, d.Date, d.Kind); rerr != nil {
			// The claim stays, so this alert will not be retried today.
			metrics.AlertReleaseFailures.Inc()
			e.logger.Error("alert: release ledger after failed send",
				zap.Int64("user_id", u.ID), zap.String("kind", string(d.Kind)), zap.Error(rerr))
			err = errors.Join(err, fmt.Errorf("release ledger: %w", rerr))
		}
		return d.failed(err)
	}

	d.Outcome = OutcomeSent
	e.logger.Info("alert: sent",
		zap.Int64("user_id", u.ID), zap.String("kind", string(d.Kind)),
		zap.String("date", d.Date), zap.Float64("metric_hpa", d.MetricHPa))
	return d
}
