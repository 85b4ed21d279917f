package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff selects how retry delays grow across attempts.
type Backoff string

const (
	// BackoffLinear scales the base delay by the attempt number
	// (base, 2*base, 3*base, ...).
	BackoffLinear Backoff = "linear"

	// BackoffExponential doubles the delay after each attempt, capped at
	// MaxDelay.
	BackoffExponential Backoff = "exponential"
)

// Policy is an explicit retry policy: attempt budget, backoff schedule and
// retryability check, consumed by a single loop in Do/DoVal.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first try.
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// BaseDelay is the delay unit before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Default: 30s.
	MaxDelay time.Duration

	// Backoff selects the growth schedule. Default: BackoffLinear.
	Backoff Backoff

	// JitterFraction adds random jitter as a fraction of the computed
	// delay (0 = none). Default: 0.
	JitterFraction float64

	// ShouldRetry overrides the default transient-error check. If nil,
	// IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the attempt number
	// about to run and the error that triggered it.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the retry policy used for provider API calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Backoff:     BackoffLinear,
	}
}

// Do executes fn under the policy. Context cancellation stops retries
// immediately; non-retryable errors are returned as-is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn under the policy and preserves the value from the
// successful attempt.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = withDefaults(p)

	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}
		if attempt >= p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func withDefaults(p Policy) Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Backoff == "" {
		p.Backoff = BackoffLinear
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

// delay computes the sleep before the retry following the given attempt
// (attempt is 1-based).
func (p Policy) delay(attempt int) time.Duration {
	var d float64
	switch p.Backoff {
	case BackoffExponential:
		d = float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	default:
		d = float64(p.BaseDelay) * float64(attempt)
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.JitterFraction > 0 {
		jitterRange := d * p.JitterFraction
		d += (rand.Float64()*2 - 1) * jitterRange
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
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
