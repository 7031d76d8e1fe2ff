package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports an operation that outlived its limit. It matches
// context.DeadlineExceeded under errors.Is.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WithTimeout runs fn under a deadline of limit. A non-positive limit runs
// fn directly. When the caller's own context ends first the error is
// Permanent, since another attempt could not be delivered.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return Permanent(fmt.Errorf("%s: caller gave up: %w", op, err))
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return Permanent(fmt.Errorf("%s: caller gave up: %w", op, ctx.Err()))
		}
		return &TimeoutError{Op: op, Limit: limit}
	}
}
