package extraction

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of a single external call. There is no
// unbounded retry: after MaxAttempts the last error is returned.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy returns the retry policy used for model calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: time.Second}
}

// Do runs fn up to MaxAttempts times, sleeping Backoff * attempt between
// failures. It returns nil on the first success, the last error after
// the final attempt, or the context error if the context ends first.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.Backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
