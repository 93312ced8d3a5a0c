// Package resilience holds the retry policy and circuit breakers shared by
// every outbound call site (search, page fetch, generation).
package resilience

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy is exponential backoff without jitter: BaseDelay, then
// BaseDelay*BackoffFactor, and so on, capped by MaxDelay.
type RetryPolicy struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration

	// Retryable overrides IsTransient when set.
	Retryable func(err error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy is 3 attempts starting at 1s with factor 2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		BackoffFactor: 2,
		MaxDelay:      30 * time.Second,
	}
}

// NewRetryPolicy builds a policy from config values, falling back to the
// defaults for anything non-positive.
func NewRetryPolicy(maxAttempts, baseDelayMs int, factor float64) RetryPolicy {
	p := DefaultRetryPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if baseDelayMs > 0 {
		p.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if factor > 0 {
		p.BackoffFactor = factor
	}
	return p
}

// WithLogger returns a copy of p that logs each retry under service/op.
func (p RetryPolicy) WithLogger(service, op string) RetryPolicy {
	next := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return p
}

// Delay is the sleep before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	p = p.normalized()
	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2
	}
	return p
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := RetryVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryVal is Retry for calls that produce a value.
func RetryVal[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}
