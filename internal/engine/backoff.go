package engine

import (
	"math/rand"
	"sync"
	"time"
)

// Default backoff parameters: retries start one second apart and the
// exponential term is capped at one minute.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 60 * time.Second
)

// Backoff computes randomized retry delays:
//
//	delay(attempt) = min(2^(attempt-1) * base, cap) + uniform(0, base/2)
//
// The jitter is additive rather than multiplicative so that the exponential
// term stays dominant and predictable, while simultaneous retries of many
// records still spread out instead of hitting the provider in lockstep.
type Backoff struct {
	base time.Duration
	cap  time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBackoff creates a backoff calculator. Non-positive base or cap values
// fall back to the defaults.
func NewBackoff(base, cap time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if cap <= 0 {
		cap = DefaultBackoffCap
	}
	return &Backoff{
		base: base,
		cap:  cap,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait before the given retry attempt. Attempts are
// 1-based; attempt 1 yields base plus jitter. Values below 1 are treated
// as 1. Once the exponential term reaches the cap the result stays within
// [cap, cap + base/2].
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.base
	for i := 1; i < attempt && d < b.cap; i++ {
		d *= 2
	}
	if d > b.cap {
		d = b.cap
	}

	return d + b.jitter()
}

func (b *Backoff) jitter() time.Duration {
	half := int64(b.base / 2)
	if half <= 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(b.rnd.Int63n(half))
}
