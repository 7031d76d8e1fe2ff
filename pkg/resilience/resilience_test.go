package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	err := Retry(context.Background(), "test", fastRetry(3), func() error {
		if calls.Add(1) < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	err := Retry(context.Background(), "test", fastRetry(2), func() error {
		calls.Add(1)
		return errFlaky
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryStopsOnPermanent(t *testing.T) {
	var calls atomic.Int32
	err := Retry(context.Background(), "test", fastRetry(5), func() error {
		calls.Add(1)
		return Permanent(errFlaky)
	})

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, int32(1), calls.Load())
	assert.Nil(t, Permanent(nil))
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, "test", fastRetry(5), func() error { return errFlaky })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var states []State
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     10 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { states = append(states, to) },
	})

	_ = cb.Execute(func() error { return errFlaky })
	_ = cb.Execute(func() error { return errFlaky })
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, states)
}

func TestCircuitBreakerIgnoresPermanent(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1})

	err := cb.Execute(func() error { return Permanent(errFlaky) })

	assert.Error(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 5*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "slow", te.Op)
	assert.Equal(t, 5*time.Millisecond, te.Limit)
	assert.False(t, IsPermanent(err))

	err = WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithTimeoutCallerCancelledIsPermanent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTimeout(ctx, time.Second, "page-fetch", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, context.Canceled)
}
