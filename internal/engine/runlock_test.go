package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRunLock(t *testing.T) (*RunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRunLock(client, testLogger(), time.Minute), mr
}

func TestRunLock_AcquireAndRelease(t *testing.T) {
	lock, _ := setupRunLock(t)
	ctx := context.Background()

	token, ok, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected to acquire free lock")
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	if err := lock.Release(ctx, token); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Released lock can be taken again.
	_, ok, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !ok {
		t.Error("expected to acquire released lock")
	}
}

func TestRunLock_SecondAcquireFails(t *testing.T) {
	lock, _ := setupRunLock(t)
	ctx := context.Background()

	_, ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}

	_, ok, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Error("second acquire succeeded while lock held")
	}
}

func TestRunLock_StaleTokenReleaseIsNoOp(t *testing.T) {
	lock, _ := setupRunLock(t)
	ctx := context.Background()

	token, ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire failed: ok=%v err=%v", ok, err)
	}

	// A stale token must not release the current holder's lock.
	if err := lock.Release(ctx, "stale-token"); err != nil {
		t.Fatalf("stale release: %v", err)
	}

	_, ok, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after stale release: %v", err)
	}
	if ok {
		t.Error("lock was released by a stale token")
	}

	// The real token still works.
	if err := lock.Release(ctx, token); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestRunLock_ExpiresAfterTTL(t *testing.T) {
	lock, mr := setupRunLock(t)
	ctx := context.Background()

	_, ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire failed: ok=%v err=%v", ok, err)
	}

	// A crashed run never releases; the TTL frees the lock.
	mr.FastForward(2 * time.Minute)

	_, ok, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !ok {
		t.Error("expected to acquire lock after TTL expiry")
	}
}
