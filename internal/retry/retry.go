// Package retry provides the shared retry policy used for idempotent
// outbound calls. The webhook engine derives its minute-granularity retry
// schedule from the same policy type so backoff arithmetic lives in one
// place.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy describes a capped exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure.
	BaseDelay time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// Delay returns the wait before retry number attempt (1-based: attempt 1 is
// the first retry). Delay(0) and negative attempts return 0.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// Do runs fn up to MaxAttempts times, sleeping Delay between failures.
// It stops early when ctx is cancelled and returns the last error.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt < p.MaxAttempts {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(p.Delay(attempt)):
			}
		}
	}
	return lastErr
}
