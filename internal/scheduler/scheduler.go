// Package scheduler runs a job on a fixed interval inside the service
// process, standing in for the host's cron hook.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"atd-sync/internal/model"
)

// DefaultTimeout bounds a single run.
const DefaultTimeout = 30 * time.Minute

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Config holds scheduler settings.
type Config struct {
	// Name labels log lines.
	Name string

	// Interval between runs. Zero or negative disables the scheduler.
	Interval time.Duration

	// Timeout is the maximum time for a run. Default: DefaultTimeout.
	Timeout time.Duration

	// RunOnStart triggers a run immediately instead of waiting one interval.
	RunOnStart bool
}

// Scheduler runs a Job every Interval until its context is cancelled.
// Runs never overlap: a run that outlasts the interval delays the next tick.
type Scheduler struct {
	cfg    Config
	job    Job
	logger *slog.Logger
}

// New creates a scheduler for job.
func New(cfg Config, job Job, logger *slog.Logger) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, job: job, logger: logger.With("job", cfg.Name)}
}

// Run blocks until ctx is done. It returns nil on cancellation so it can
// sit in an errgroup next to the HTTP server.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		s.logger.InfoContext(ctx, "scheduler disabled")
		return nil
	}
	s.logger.InfoContext(ctx, "scheduler started", "interval", s.cfg.Interval)

	if s.cfg.RunOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := s.job(runCtx)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "scheduled run finished", "duration", time.Since(start))
	case errors.Is(err, model.ErrConflict):
		// Another instance holds the job guard.
		s.logger.InfoContext(ctx, "scheduled run skipped", "reason", err.Error())
	case errors.Is(err, model.ErrNotConfigured):
		s.logger.WarnContext(ctx, "scheduled run skipped", "reason", err.Error())
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		// Shutting down.
	default:
		s.logger.ErrorContext(ctx, "scheduled run failed", "error", err, "duration", time.Since(start))
	}
}
