package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls retry behavior with exponential backoff and jitter.
// It is meant for local side effects such as store writes; remote providers
// are never retried, the caller falls through to the next one instead.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 50ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay. Default: 2s.
	MaxBackoff time.Duration

	// JitterFraction adds ±fraction random jitter. Default: 0.25.
	JitterFraction float64

	// ShouldRetry overrides the IsTransient check.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// StorePolicy returns the policy used for persistence writes.
func StorePolicy(maxAttempts int, operation string) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFraction: 0.25,
		OnRetry:        RetryLogger("store", operation),
	}
	return p.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 50 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 2 * time.Second
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	return p
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done.
func Do(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !p.ShouldRetry(lastErr) || attempt == p.MaxAttempts-1 {
			return lastErr
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
