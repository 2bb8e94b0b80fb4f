package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/everkeep/email-retry-system/internal/domain"
)

// SendFactory builds a send operation for one failure record, replaying its
// original envelope. It is supplied by the email facade so the coordinator
// never touches a transport directly.
type SendFactory func(f domain.EmailFailure) SendFunc

// BatchSummary tallies the outcomes of one coordinator run. Total counts
// every record examined, not every record in the store.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Permanent  int `json:"permanent"`
	Exhausted  int `json:"exhausted"`
}

// Coordinator drives the retry engine across all outstanding failures,
// sequentially. Each record incurs its own backoff sleep, which spaces the
// retries out against the downstream provider without a separate rate
// limiter.
type Coordinator struct {
	store  FailureStore
	engine *Engine
	logger *slog.Logger
}

func NewCoordinator(store FailureStore, engine *Engine, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// RetryAll selects unresolved failures (optionally one email type), runs the
// engine for each, and tallies the outcomes. Permanent and exhausted records
// are detected by the engine before any send, so they are counted but never
// retried. A single record's store error is logged and skipped; it must not
// abort the run. Only a failure of the selection itself is returned as an
// error.
func (c *Coordinator) RetryAll(ctx context.Context, factory SendFactory, emailType domain.EmailType) (BatchSummary, error) {
	var summary BatchSummary

	failures, err := c.store.ListUnresolved(ctx, emailType)
	if err != nil {
		return summary, fmt.Errorf("listing unresolved failures: %w", err)
	}

	c.logger.Info("retry run started",
		"outstanding", len(failures),
		"email_type", string(emailType),
	)

	for _, f := range failures {
		if ctx.Err() != nil {
			// Interrupted mid-batch: later records wait for the next run.
			c.logger.Warn("retry run interrupted", "processed", summary.Total)
			return summary, ctx.Err()
		}

		summary.Total++

		result, err := c.engine.RetryFailure(ctx, f.ID, factory(f))
		if err != nil {
			c.logger.Error("retrying failure record",
				"failure_id", f.ID,
				"email_type", f.EmailType,
				"error", err,
			)
			continue
		}

		switch result.Outcome {
		case OutcomeSucceeded:
			summary.Successful++
		case OutcomeRetrying:
			summary.Failed++
		case OutcomePermanentlyFailed:
			summary.Permanent++
		case OutcomeExhausted:
			summary.Exhausted++
		}
	}

	c.logger.Info("retry run finished",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"permanent", summary.Permanent,
		"exhausted", summary.Exhausted,
	)

	return summary, nil
}
