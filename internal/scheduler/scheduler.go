package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/everkeep/email-retry-system/internal/domain"
	"github.com/everkeep/email-retry-system/internal/engine"
)

// BatchRunner runs one retry pass over outstanding failures.
type BatchRunner interface {
	RetryAll(ctx context.Context, factory engine.SendFactory, emailType domain.EmailType) (engine.BatchSummary, error)
}

// Lock guards against overlapping retry runs.
type Lock interface {
	Acquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// Scheduler periodically kicks off a batch retry run. It runs until the
// context is cancelled; a run interrupted by shutdown simply leaves later
// records for the next run.
type Scheduler struct {
	runner   BatchRunner
	lock     Lock
	factory  engine.SendFactory
	logger   *slog.Logger
	interval time.Duration
}

func New(runner BatchRunner, lock Lock, factory engine.SendFactory, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		lock:     lock,
		factory:  factory,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the scheduling loop. It blocks until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("retry scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single locked retry pass. When the lock is held by
// another run (a manual trigger, or a previous pass still sleeping through
// backoffs), the tick is skipped rather than queued.
func (s *Scheduler) runOnce(ctx context.Context) {
	token, ok, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logger.Error("acquiring retry run lock", "error", err)
		return
	}
	if !ok {
		s.logger.Info("skipping scheduled run, another run in progress")
		return
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), token); err != nil {
			s.logger.Error("releasing retry run lock", "error", err)
		}
	}()

	summary, err := s.runner.RetryAll(ctx, s.factory, "")
	if err != nil {
		s.logger.Error("scheduled retry run failed", "error", err, "processed", summary.Total)
		return
	}

	s.logger.Info("scheduled retry run complete",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"permanent", summary.Permanent,
		"exhausted", summary.Exhausted,
	)
}
