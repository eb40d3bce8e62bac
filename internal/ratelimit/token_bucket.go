package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Buckets not touched for this long are evicted, which keeps memory
// bounded when runs churn.
const idleEviction = 10 * time.Minute

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// TokenBucket is an in-memory token bucket limiter keyed by run id.
// Tokens refill continuously at rate per second up to burst.
type TokenBucket struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// TokenBucketOption customizes a TokenBucket.
type TokenBucketOption func(*TokenBucket)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(t *TokenBucket) { t.now = now }
}

// NewTokenBucket creates a limiter allowing rate sustained appends per
// second per key with bursts up to burst. A background goroutine evicts
// idle keys every minute; call Close to stop it.
func NewTokenBucket(rate float64, burst int, opts ...TokenBucketOption) *TokenBucket {
	t := &TokenBucket{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.evictLoop()
	return t
}

// Allow consumes one token from the bucket for key.
func (t *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[key]
	if !ok {
		// First append for this key starts a full bucket minus one token.
		t.buckets[key] = &bucket{tokens: t.burst - 1, lastSeen: now}
		return true, nil
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * t.rate
	if b.tokens > t.burst {
		b.tokens = t.burst
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (t *TokenBucket) Close() error {
	t.stopOnce.Do(func() { close(t.done) })
	return nil
}

func (t *TokenBucket) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.evictIdle()
		}
	}
}

func (t *TokenBucket) evictIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-idleEviction)
	for key, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
		}
	}
}
