package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/everkeep/email-retry-system/internal/domain"
)

func newTestCoordinator(t *testing.T, fs *fakeStore) (*Coordinator, *Engine) {
	t.Helper()
	e, _ := newTestEngine(t, fs)
	return NewCoordinator(fs, e, testLogger()), e
}

func succeedingFactory(invocations *atomic.Int32) SendFactory {
	return func(domain.EmailFailure) SendFunc {
		return func() error {
			invocations.Add(1)
			return nil
		}
	}
}

func TestRetryAll_MixedOutcomes(t *testing.T) {
	transient := reminderFailure("f-transient", 0, "timeout")

	permanent := reminderFailure("f-permanent", 0, "invalid email")

	exhausted := reminderFailure("f-exhausted", 2, "timeout")
	exhausted.EmailType = domain.TypeVerification

	fs := newFakeStore(transient, permanent, exhausted)
	c, _ := newTestCoordinator(t, fs)

	var sent atomic.Int32
	summary, err := c.RetryAll(context.Background(), succeedingFactory(&sent), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := BatchSummary{Total: 3, Successful: 1, Failed: 0, Permanent: 1, Exhausted: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}

	// Only the transient record may reach the provider.
	if sent.Load() != 1 {
		t.Errorf("send invoked %d times, want 1", sent.Load())
	}
}

func TestRetryAll_FailuresStayOutstanding(t *testing.T) {
	fs := newFakeStore(
		reminderFailure("f1", 0, "timeout"),
		reminderFailure("f2", 1, "connection refused"),
	)
	c, _ := newTestCoordinator(t, fs)

	factory := func(domain.EmailFailure) SendFunc {
		return func() error { return errors.New("503 service unavailable") }
	}

	summary, err := c.RetryAll(context.Background(), factory, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := BatchSummary{Total: 2, Failed: 2}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}

	if fs.records["f1"].RetryCount != 1 {
		t.Errorf("f1 retry count = %d, want 1", fs.records["f1"].RetryCount)
	}
	if fs.records["f2"].RetryCount != 2 {
		t.Errorf("f2 retry count = %d, want 2", fs.records["f2"].RetryCount)
	}
	if fs.records["f1"].ErrorMessage != "503 service unavailable" {
		t.Errorf("f1 error message = %q, want latest error", fs.records["f1"].ErrorMessage)
	}
}

func TestRetryAll_EmailTypeFilter(t *testing.T) {
	reminder := reminderFailure("f-reminder", 0, "timeout")

	verification := reminderFailure("f-verification", 0, "timeout")
	verification.EmailType = domain.TypeVerification

	fs := newFakeStore(reminder, verification)
	c, _ := newTestCoordinator(t, fs)

	var sent atomic.Int32
	summary, err := c.RetryAll(context.Background(), succeedingFactory(&sent), domain.TypeVerification)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Total != 1 {
		t.Errorf("total = %d, want 1 (filtered to verification)", summary.Total)
	}
	if fs.records["f-reminder"].ResolvedAt != nil {
		t.Error("reminder record resolved despite type filter")
	}
	if fs.records["f-verification"].ResolvedAt == nil {
		t.Error("verification record not resolved")
	}
}

func TestRetryAll_ResolvedRecordsExcluded(t *testing.T) {
	resolved := reminderFailure("f-done", 1, "timeout")
	ts := time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC)
	resolved.ResolvedAt = &ts

	fs := newFakeStore(resolved, reminderFailure("f-open", 0, "timeout"))
	c, _ := newTestCoordinator(t, fs)

	var sent atomic.Int32
	summary, err := c.RetryAll(context.Background(), succeedingFactory(&sent), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Total != 1 {
		t.Errorf("total = %d, want 1 (resolved record excluded)", summary.Total)
	}
	if sent.Load() != 1 {
		t.Errorf("send invoked %d times, want 1", sent.Load())
	}
}

func TestRetryAll_ListErrorAbortsRun(t *testing.T) {
	fs := newFakeStore()
	fs.listErr = errors.New("connection refused")
	c, _ := newTestCoordinator(t, fs)

	_, err := c.RetryAll(context.Background(), succeedingFactory(new(atomic.Int32)), "")
	if err == nil {
		t.Fatal("expected selection error to propagate")
	}
}

func TestRetryAll_PerRecordErrorDoesNotAbortBatch(t *testing.T) {
	fs := newFakeStore(
		reminderFailure("f1", 0, "timeout"),
		reminderFailure("f2", 0, "timeout"),
	)
	c, _ := newTestCoordinator(t, fs)

	// A panicking send for f1 is bookkept as a failed attempt; f2 must
	// still be processed.
	var sent atomic.Int32
	factory := func(f domain.EmailFailure) SendFunc {
		if f.ID == "f1" {
			return func() error { panic("provider client bug") }
		}
		return func() error {
			sent.Add(1)
			return nil
		}
	}

	summary, err := c.RetryAll(context.Background(), factory, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Total != 2 {
		t.Errorf("total = %d, want 2", summary.Total)
	}
	if sent.Load() != 1 {
		t.Errorf("f2 send invoked %d times, want 1", sent.Load())
	}
}

func TestRetryAll_CancelledContextLeavesRemainder(t *testing.T) {
	fs := newFakeStore(
		reminderFailure("f1", 0, "timeout"),
		reminderFailure("f2", 0, "timeout"),
	)
	c, _ := newTestCoordinator(t, fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := c.RetryAll(ctx, succeedingFactory(new(atomic.Int32)), "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Total != 0 {
		t.Errorf("total = %d, want 0 for immediately-cancelled run", summary.Total)
	}
}
