// Package ratelimit provides per-provider admission control bounding both
// request rate and in-flight concurrency.
package ratelimit

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter gates outbound calls to one provider. Callers block in Do until
// both a rate token and a concurrency slot are available; admission is
// first-come-first-served with no priority or cancellation beyond ctx.
type Limiter struct {
	name    string
	limiter *rate.Limiter
	slots   *semaphore.Weighted
}

// New creates a Limiter allowing n operations per interval and at most
// maxConcurrent simultaneous in-flight operations.
func New(name string, n int, interval time.Duration, maxConcurrent int) *Limiter {
	if n <= 0 {
		n = 1
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Every(interval/time.Duration(n)), n),
		slots:   semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Do runs fn once admitted within the limiter's budget.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return eris.Wrapf(err, "ratelimit: %s acquire slot", l.name)
	}
	defer l.slots.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "ratelimit: %s wait", l.name)
	}

	return fn(ctx)
}

// DoVal runs fn once admitted and preserves its return value.
func DoVal[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, func(ctx context.Context) error {
		var fnErr error
		out, fnErr = fn(ctx)
		return fnErr
	})
	return out, err
}

// ForSearch returns the conservative limiter for the paid search provider.
func ForSearch() *Limiter {
	return New("search", 5, time.Minute, 1)
}

// ForCompletion returns the looser limiter for the completion provider.
func ForCompletion() *Limiter {
	return New("completion", 20, time.Second, 8)
}
