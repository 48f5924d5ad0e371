// Package retry runs an operation under a bounded retry policy with backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy declares how many attempts an operation gets and how long to wait
// between them.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Exponential returns base * 2^attempt, so attempt 1 waits 2*base and
// attempt 2 waits 4*base.
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt)
	}
}

// Default is three attempts with 2s and 4s waits between them.
func Default() Policy {
	return Policy{MaxAttempts: 3, Backoff: Exponential(time.Second)}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, or the policy's
// attempts are used up. onRetry, when non-nil, is called before each wait.
// It returns the value, the number of attempts made and the last error.
func Do[T any](
	ctx context.Context,
	p Policy,
	fn func(ctx context.Context, attempt int) (T, error),
	onRetry func(attempt int, err error, wait time.Duration),
) (T, int, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, attempt, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, attempt, perm.err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return zero, attempt, fmt.Errorf("retry aborted after attempt %d: %w", attempt, errors.Join(serr, lastErr))
		}
	}

	return zero, maxAttempts, lastErr
}
