// Package ratelimit implements the process-wide token bucket that paces every
// outgoing catalogue request. The quota is imposed by the upstream service,
// so one bucket is shared by all workers rather than kept per category.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond caps the steady request rate; <= 0 disables pacing.
	RequestsPerSecond float64
	// Burst is the bucket depth, minimum 1.
	Burst int
}

// Limiter gates outgoing requests against the shared upstream quota.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available or the context ends. A nil Limiter
// never blocks, so callers can treat pacing as optional.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.bucket == nil {
		return nil
	}
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
