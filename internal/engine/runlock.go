package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const runLockKey = "retry_run_lock"

// releaseScript deletes the lock only if the caller still owns it, so a
// slow run whose lock expired cannot delete a newer holder's lock.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RunLock keeps two retry runs (scheduled or manually triggered) from
// overlapping, which would risk retrying the same record twice at once.
// The lock lives in Redis with a TTL so a crashed run cannot wedge retries
// forever.
type RunLock struct {
	redisClient *redis.Client
	logger      *slog.Logger
	ttl         time.Duration
}

func NewRunLock(redisClient *redis.Client, logger *slog.Logger, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RunLock{
		redisClient: redisClient,
		logger:      logger,
		ttl:         ttl,
	}
}

// Acquire attempts to take the lock. It returns a release token when the
// lock was taken, or ok=false when another run holds it.
func (l *RunLock) Acquire(ctx context.Context) (token string, ok bool, err error) {
	token = uuid.NewString()

	ok, err = l.redisClient.SetNX(ctx, runLockKey, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquiring retry run lock: %w", err)
	}
	if !ok {
		l.logger.Info("retry run lock held by another run")
		return "", false, nil
	}
	return token, true, nil
}

// Release gives the lock back. Releasing with a stale token is a no-op.
func (l *RunLock) Release(ctx context.Context, token string) error {
	deleted, err := releaseScript.Run(ctx, l.redisClient, []string{runLockKey}, token).Int()
	if err != nil {
		return fmt.Errorf("releasing retry run lock: %w", err)
	}
	if deleted == 0 {
		l.logger.Warn("retry run lock already expired or taken over")
	}
	return nil
}
