package rpcclient

import (
	"context"
	"math"
	"time"
)

// RetryPolicy controls the exponential backoff retry executor.
type RetryPolicy struct {
	MaxAttempts           int
	InitialBackoffSeconds float64
	MaxBackoffSeconds     float64
	RequestTimeoutSeconds float64
}

// DefaultRetryPolicy matches spec.md §4.2's defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoffSeconds: 0.5, MaxBackoffSeconds: 5.0, RequestTimeoutSeconds: 10.0}
}

// WithMaxAttempts returns a copy of p with MaxAttempts overridden.
func (p RetryPolicy) WithMaxAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

// backoffFor returns the sleep duration before the (attempt+1)th try,
// following spec.md's min(initial * 2^(attempt-1), max) formula.
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	seconds := math.Min(p.InitialBackoffSeconds*math.Pow(2, float64(attempt-1)), p.MaxBackoffSeconds)
	return time.Duration(seconds * float64(time.Second))
}

// Execute runs fn up to policy.MaxAttempts times, sleeping between
// attempts per the exponential backoff formula, and returns the last
// error if every attempt failed. fn is passed the 1-based attempt number.
func Execute(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.backoffFor(attempt)):
		}
	}

	return lastErr
}
