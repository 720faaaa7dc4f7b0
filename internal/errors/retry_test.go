package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function failing twice
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: it succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return errors.New("always")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	// Given: a predicate that refuses auth errors
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable
	authErr := New(ErrCodeLLMAuth, "azure chat summary failed: 401", nil)

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return authErr
	})

	// Then: one attempt, error returned unwrapped
	assert.Equal(t, 1, calls)
	assert.Same(t, authErr, err)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, New(ErrCodeLLMUnavailable, "503", nil)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetry_ContextCancelled(t *testing.T) {
	// Given: an already cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetry(3), func() error {
		calls++
		return nil
	})

	// Then: nothing runs
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

type hinted struct{ after time.Duration }

func (h hinted) Error() string             { return "429" }
func (h hinted) RetryAfter() time.Duration { return h.after }

func TestBackoff_Wait(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2}

	t.Run("grows to the cap", func(t *testing.T) {
		b := &backoff{cfg: cfg, next: cfg.InitialDelay}
		var got []time.Duration
		for range 4 {
			got = append(got, b.wait(errors.New("x")))
		}
		assert.Equal(t, []time.Duration{10, 20, 40, 40}, scale(got, time.Millisecond))
	})

	t.Run("longer hint wins", func(t *testing.T) {
		b := &backoff{cfg: cfg, next: cfg.InitialDelay}
		err := New(ErrCodeLLMUnavailable, "429", hinted{after: 30 * time.Millisecond})
		assert.Equal(t, 30*time.Millisecond, b.wait(err))
	})

	t.Run("hint is capped", func(t *testing.T) {
		b := &backoff{cfg: cfg, next: cfg.InitialDelay}
		assert.Equal(t, 40*time.Millisecond, b.wait(hinted{after: time.Minute}))
	})
}

func scale(ds []time.Duration, unit time.Duration) []time.Duration {
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d / unit
	}
	return out
}
