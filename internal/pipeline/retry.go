package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/doctrans/internal/backend"
)

// RetryPolicy bounds how often a transient backend failure is retried.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Cap on the exponential delay
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	base := p.BaseDelay * time.Duration(1<<uint(attempt))
	if p.MaxDelay > 0 && (base > p.MaxDelay || base <= 0) {
		base = p.MaxDelay
	}
	if half := int64(base) / 2; half > 0 {
		base += time.Duration(rand.Int64N(half))
	}
	return base
}

// Do calls fn until it succeeds, fails permanently or the attempts run out.
// onRetry, when set, sees each transient failure before the wait.
func (p RetryPolicy) Do(ctx context.Context, onRetry func(attempt int, err error), fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	var err error
	for attempt := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !backend.IsTransient(err) || attempt == attempts-1 {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
