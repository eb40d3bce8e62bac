// Package ratelimit bounds the ingest rate per run. A hot producer loop
// that floods one run must not starve appends for every other run, so
// each run id gets an independent token bucket.
package ratelimit

import "context"

// Limiter decides whether an append for the given run key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the append should proceed. Errors signal a
	// limiter malfunction and callers should fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources such as cleanup goroutines.
	Close() error
}

// NoopLimiter permits every append. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
