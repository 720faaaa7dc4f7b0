package errors

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig is an exponential backoff policy.
type RetryConfig struct {
	// MaxRetries counts attempts after the first one.
	MaxRetries int
	// InitialDelay precedes the first retry. Each later delay is
	// Multiplier times the previous one, capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay over [delay/2, delay).
	Jitter bool
	// ShouldRetry filters errors. Nil retries every error.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns the policy used for Azure OpenAI calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		ShouldRetry:  IsRetryable,
	}
}

// RetryHinter is implemented by errors that carry a server-requested
// delay, such as a 429 with Retry-After.
type RetryHinter interface {
	RetryAfter() time.Duration
}

// retryHint returns the first hint in err's chain.
func retryHint(err error) time.Duration {
	var h RetryHinter
	if errors.As(err, &h) {
		return h.RetryAfter()
	}
	return 0
}

type backoff struct {
	cfg  RetryConfig
	next time.Duration
}

// wait returns the delay before the next attempt. A hint wins over the
// computed delay when it is longer, still bounded by MaxDelay.
func (b *backoff) wait(err error) time.Duration {
	d := b.next
	if b.cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	d = max(d, retryHint(err))

	b.next = time.Duration(float64(b.next) * b.cfg.Multiplier)
	if b.cfg.MaxDelay > 0 {
		b.next = min(b.next, b.cfg.MaxDelay)
		d = min(d, b.cfg.MaxDelay)
	}
	return d
}

// Retry runs fn until it succeeds, the policy gives up, or ctx ends.
// An error the policy refuses to retry is returned as-is.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions returning a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	b := &backoff{cfg: cfg, next: cfg.InitialDelay}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn()
		switch {
		case err == nil:
			return result, nil
		case cfg.ShouldRetry != nil && !cfg.ShouldRetry(err):
			return zero, err
		case attempt >= cfg.MaxRetries:
			if cfg.MaxRetries == 0 {
				return zero, err
			}
			return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, err)
		}

		timer := time.NewTimer(b.wait(err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
