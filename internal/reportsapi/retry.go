package reportsapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls how transient request failures are retried.
type RetryPolicy struct {
	// Retries is the number of extra attempts after the first one.
	Retries int

	// BaseDelay is the first backoff interval (before jitter).
	BaseDelay time.Duration

	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration
}

// DefaultRetryPolicy retries three times with exponential delays starting
// at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:   3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
}

func (p RetryPolicy) attempts() uint {
	if p.Retries < 0 {
		return 1
	}
	return uint(p.Retries) + 1
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	return b
}

// permanentError marks a failure that must not be retried (e.g. a 4xx).
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry executes fn until it succeeds, returns a Permanent error, the
// policy's attempts are exhausted, or ctx is done. The returned error wraps
// the last failure.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("retry cancelled: %w", err)
	}

	attempts := 0
	var lastErr error
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		var perm *permanentError
		if errors.As(err, &perm) {
			return v, backoff.Permanent(perm.err)
		}
		return v, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(policy.attempts()),
		// Attempts, not elapsed time, bound the loop.
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, fmt.Errorf("retry cancelled: %w", ctxErr)
	}
	if lastErr == nil {
		lastErr = err
	}
	return zero, fmt.Errorf("request failed after %d attempt(s): %w", attempts, lastErr)
}
