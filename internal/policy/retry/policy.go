// Package retry provides the single retry policy shared by pagination and
// detail fetching, so backoff behavior is centrally configured and testable.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// Policy decides whether a failed attempt is retried and how long to wait
// before the next one. Attempts are numbered from 1.
type Policy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Exponential implements Policy with capped, jittered exponential backoff.
type Exponential struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Default ceilings match the upstream quota behavior observed in practice.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 250 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// NewExponential builds a policy; non-positive arguments fall back to the
// defaults.
func NewExponential(maxAttempts int, baseDelay, maxDelay time.Duration) *Exponential {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	return &Exponential{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry reports whether attempt may be followed by another one.
// Cancellation and denied authentication are never retried; network errors
// are retried only when they are timeouts; errors that report themselves
// temporary follow that report.
func (p *Exponential) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, catalog.ErrAuthDenied) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) {
		return tempErr.Temporary()
	}
	return true
}

// Backoff returns the wait before the attempt numbered attempt+1. Half the
// capped exponential delay is fixed, the other half is random jitter.
func (p *Exponential) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Do runs op until it succeeds, the policy declines another attempt, or the
// context ends while waiting out a backoff. The last error is returned
// unwrapped so callers can classify it. A nil policy means a single attempt.
func Do(ctx context.Context, p Policy, op func() error) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if p == nil {
			return err
		}
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry wait after attempt %d: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}
}
