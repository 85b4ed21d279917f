package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		ShouldRetry: func(error) bool { return true },
	}
}

func TestDoValSucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := DoVal(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", eris.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDoValExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := DoVal(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, eris.New("always fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoValNonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	p := fastPolicy(5)
	p.ShouldRetry = func(error) bool { return false }

	calls := 0
	_, err := DoVal(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, eris.New("permanent")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValContextCancellation(t *testing.T) {
	t.Parallel()

	p := fastPolicy(10)
	p.BaseDelay = 50 * time.Millisecond
	p.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := DoVal(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, eris.New("flaky")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestDoWrapsDoVal(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelaySchedules(t *testing.T) {
	t.Parallel()

	linear := withDefaults(Policy{BaseDelay: time.Second, Backoff: BackoffLinear, MaxDelay: time.Minute})
	assert.Equal(t, time.Second, linear.delay(1))
	assert.Equal(t, 2*time.Second, linear.delay(2))
	assert.Equal(t, 3*time.Second, linear.delay(3))

	exp := withDefaults(Policy{BaseDelay: time.Second, Backoff: BackoffExponential, MaxDelay: time.Minute})
	assert.Equal(t, time.Second, exp.delay(1))
	assert.Equal(t, 2*time.Second, exp.delay(2))
	assert.Equal(t, 4*time.Second, exp.delay(3))

	capped := withDefaults(Policy{BaseDelay: time.Second, Backoff: BackoffExponential, MaxDelay: 3 * time.Second})
	assert.Equal(t, 3*time.Second, capped.delay(10))
}

func TestOnRetryAttemptNumbers(t *testing.T) {
	t.Parallel()

	var attempts []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), p, func(context.Context) error {
		return eris.New("flaky")
	})

	assert.Equal(t, []int{2, 3}, attempts)
}
