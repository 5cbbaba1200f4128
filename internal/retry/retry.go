package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExhausted is returned (wrapped) when every attempt failed.
	ErrExhausted = errors.New("retries exhausted")
	// ErrInvalidMaxAttempts is returned when the policy allows no attempt.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than zero")
)

// Policy bounds how an upstream call is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles each time.
	BaseDelay time.Duration
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// DefaultPolicy is used when no policy is configured.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Timeout: 60 * time.Second}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do runs op until it succeeds, returns a permanent error, the context ends,
// or the policy's attempts run out. Exhaustion wraps the last error with
// ErrExhausted.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, p.Timeout, op)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		// The caller gave up; the attempt error is only a symptom of that.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.BaseDelay << (attempt - 1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}
