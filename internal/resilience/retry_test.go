package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2}
}

func TestDefaultRetryPolicy_Schedule(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, BackoffFactor: 10, MaxDelay: 5 * time.Second}
	assert.Equal(t, 5*time.Second, p.Delay(3))
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := NewRetryPolicy(0, 0, 0)
	assert.Equal(t, DefaultRetryPolicy().MaxAttempts, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)

	p = NewRetryPolicy(5, 250, 3)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.BaseDelay)
	assert.InDelta(t, 3.0, p.BackoffFactor, 0.001)
}

func TestRetry_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	var delays []time.Duration
	p := fastPolicy()
	p.OnRetry = func(_ int, d time.Duration, _ error) { delays = append(delays, d) }

	v, err := RetryVal(context.Background(), p, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("busy"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsTransient(err))
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomRetryable(t *testing.T) {
	calls := 0
	p := fastPolicy()
	p.Retryable = func(error) bool { return true }
	_ = Retry(context.Background(), p, func(_ context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, BackoffFactor: 2}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, p, func(_ context.Context) error {
			calls++
			return NewTransientError(errors.New("slow"), 429)
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not return after cancellation")
	}
}

func TestWithLogger_ChainsOnRetry(t *testing.T) {
	hits := 0
	p := fastPolicy()
	p.OnRetry = func(int, time.Duration, error) { hits++ }
	p = p.WithLogger("jina", "search")

	_ = Retry(context.Background(), p, func(_ context.Context) error {
		return NewTransientError(errors.New("x"), 502)
	})
	assert.Equal(t, 2, hits)
}
