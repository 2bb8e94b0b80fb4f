package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/everkeep/email-retry-system/internal/classify"
	"github.com/everkeep/email-retry-system/internal/domain"
)

// ErrNotFound is returned when a retry is requested for an unknown record.
var ErrNotFound = errors.New("engine: failure record not found")

// Outcome is the terminal status of a single retry decision.
type Outcome string

const (
	// OutcomeSucceeded: the retry delivered the email; the record is resolved.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomePermanentlyFailed: the current error is classified permanent;
	// no send was attempted and none ever will be.
	OutcomePermanentlyFailed Outcome = "permanently_failed"
	// OutcomeExhausted: the retry budget for the record's email type is
	// spent; no send was attempted.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeRetrying: the attempt failed again; the record was updated and
	// remains a candidate for the next run.
	OutcomeRetrying Outcome = "failed_will_retry"
)

// RetryResult reports what the engine decided for one record. NextRetryAt
// is only set for OutcomeRetrying and is an estimate of when the following
// attempt would run.
type RetryResult struct {
	Outcome     Outcome
	NextRetryAt time.Time
}

// SendFunc is one delivery attempt, supplied by the caller. The engine
// assumes it is safe to invoke more than once across runs; duplicate sends
// are the accepted cost of at-least-once delivery.
type SendFunc func() error

// FailureStore is the narrow store surface the engine and coordinator need.
// GetFailure returns (nil, nil) when the record does not exist. The two
// update methods are conditioned on the retry count observed at read time
// and return store.ErrConflict when the condition no longer holds.
type FailureStore interface {
	GetFailure(ctx context.Context, id string) (*domain.EmailFailure, error)
	MarkResolved(ctx context.Context, id string, prevRetryCount int) error
	RecordRetryFailure(ctx context.Context, id string, prevRetryCount int, errorMessage string) error
	ListUnresolved(ctx context.Context, emailType domain.EmailType) ([]domain.EmailFailure, error)
}

// Engine decides, for one failure record at a time, whether to retry, waits
// out the backoff, invokes the supplied send operation, and records the
// result. It performs no network I/O of its own.
type Engine struct {
	store      FailureStore
	classifier classify.Classifier
	policy     Policy
	backoff    *Backoff
	logger     *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine constructs a retry engine. A nil classifier, policy, or backoff
// falls back to the defaults.
func NewEngine(store FailureStore, classifier classify.Classifier, policy Policy, backoff *Backoff, logger *slog.Logger) *Engine {
	if classifier == nil {
		classifier = classify.NewSubstringClassifier()
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if backoff == nil {
		backoff = NewBackoff(DefaultBackoffBase, DefaultBackoffCap)
	}
	return &Engine{
		store:      store,
		classifier: classifier,
		policy:     policy,
		backoff:    backoff,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// PolicyTable returns the retry policy the engine was built with.
func (e *Engine) PolicyTable() Policy {
	return e.policy
}

// RetryFailure runs one retry decision for the record with the given ID.
// The send operation is invoked at most once; it is not invoked at all for
// permanent, exhausted, or already-resolved records. Store errors and
// unknown IDs are returned as errors, distinct from the four outcomes.
func (e *Engine) RetryFailure(ctx context.Context, id string, send SendFunc) (RetryResult, error) {
	record, err := e.store.GetFailure(ctx, id)
	if err != nil {
		return RetryResult{}, fmt.Errorf("loading failure record: %w", err)
	}
	if record == nil {
		return RetryResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// Resolved records are terminal. A direct call on one is a no-op.
	if record.Resolved() {
		return RetryResult{Outcome: OutcomeSucceeded}, nil
	}

	if e.classifier.Classify(record.ErrorMessage) == classify.Permanent {
		e.logger.Info("failure is permanent, not retrying",
			"failure_id", record.ID,
			"email_type", record.EmailType,
			"error", record.ErrorMessage,
		)
		return RetryResult{Outcome: OutcomePermanentlyFailed}, nil
	}

	// retry_count is the number of retries already performed, so the next
	// attempt is retry_count+1. It must stay within the type's budget.
	nextAttempt := record.RetryCount + 1
	limit := e.policy.Limit(record.EmailType)
	if nextAttempt > limit {
		e.logger.Info("retry budget exhausted",
			"failure_id", record.ID,
			"email_type", record.EmailType,
			"retry_count", record.RetryCount,
			"limit", limit,
		)
		return RetryResult{Outcome: OutcomeExhausted}, nil
	}

	// The wait is a deliberate throttle against a possibly-degraded
	// provider, not an artifact of scheduling.
	delay := e.backoff.Delay(nextAttempt)
	e.logger.Info("backing off before retry",
		"failure_id", record.ID,
		"attempt", nextAttempt,
		"delay", delay,
	)
	if err := e.sleep(ctx, delay); err != nil {
		return RetryResult{}, err
	}

	sendErr := invokeSend(send)
	if sendErr == nil {
		if err := e.store.MarkResolved(ctx, record.ID, record.RetryCount); err != nil {
			return RetryResult{}, fmt.Errorf("marking failure resolved: %w", err)
		}
		e.logger.Info("retry succeeded",
			"failure_id", record.ID,
			"email_type", record.EmailType,
			"attempt", nextAttempt,
		)
		return RetryResult{Outcome: OutcomeSucceeded}, nil
	}

	if err := e.store.RecordRetryFailure(ctx, record.ID, record.RetryCount, sendErr.Error()); err != nil {
		return RetryResult{}, fmt.Errorf("recording retry failure: %w", err)
	}

	nextRetryAt := e.now().Add(e.backoff.Delay(nextAttempt + 1))
	e.logger.Warn("retry failed",
		"failure_id", record.ID,
		"email_type", record.EmailType,
		"attempt", nextAttempt,
		"error", sendErr.Error(),
		"next_retry_at", nextRetryAt,
	)
	return RetryResult{Outcome: OutcomeRetrying, NextRetryAt: nextRetryAt}, nil
}

// invokeSend calls the send operation, converting a panic into an ordinary
// error so the bookkeeping step always runs.
func invokeSend(send SendFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send operation panicked: %v", r)
		}
	}()
	return send()
}

// sleepCtx blocks for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
