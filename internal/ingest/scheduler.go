package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

type scheduledJob struct {
	name       string
	spec       string
	fn         JobFunc
	runAtStart bool
}

// Scheduler runs named jobs on cron schedules in a fixed timezone. A job that
// is still running when its next tick fires is skipped, not queued.
type Scheduler struct {
	loc    *time.Location
	logger *zap.Logger
	jobs   []scheduledJob
}

func NewScheduler(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{loc: loc, logger: logger}
}

// Add registers a job. spec accepts standard five-field cron expressions and
// descriptors such as "@hourly" or "@every 30m". When runAtStart is set the
// job also runs once as soon as Run starts.
func (s *Scheduler) Add(name, spec string, runAtStart bool, fn JobFunc) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule %q for %s: %w", spec, name, err)
	}
	s.jobs = append(s.jobs, scheduledJob{name: name, spec: spec, fn: fn, runAtStart: runAtStart})
	return nil
}

// Run starts all registered jobs and blocks until ctx is cancelled, then
// waits for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(zap.NewStdLog(s.logger))),
			cron.SkipIfStillRunning(cron.PrintfLogger(zap.NewStdLog(s.logger))),
		),
	)

	for _, j := range s.jobs {
		job := j
		if _, err := c.AddFunc(job.spec, func() { s.runJob(ctx, job) }); err != nil {
			return fmt.Errorf("add job %s: %w", job.name, err)
		}
		s.logger.Info("scheduler: registered job", zap.String("job", job.name), zap.String("schedule", job.spec))
	}

	c.Start()
	for _, job := range s.jobs {
		if job.runAtStart {
			s.runJob(ctx, job)
		}
	}

	<-ctx.Done()
	s.logger.Info("scheduler: shutting down")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job scheduledJob) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.fn(ctx); err != nil {
		s.logger.Error("scheduler: job failed", zap.String("job", job.name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Debug("scheduler: job finished", zap.String("job", job.name), zap.Duration("elapsed", time.Since(start)))
}

// CleanupJob removes stored raw payloads older than retentionDays.
func CleanupJob(cleaner interface {
	CleanupOldRawPayloads(retentionDays int) (int64, error)
}, retentionDays int, logger *zap.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := cleaner.CleanupOldRawPayloads(retentionDays)
		if err != nil {
			return fmt.Errorf("cleanup raw payloads: %w", err)
		}
		if n > 0 {
			logger.Info("scheduler: removed old raw payloads", zap.Int64("count", n), zap.Int("retention_days", retentionDays))
		}
		return nil
	}
}
