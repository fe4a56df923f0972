package errors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig describes exponential backoff. Attempt n (from 1) waits
// InitialDelay * Multiplier^(n-1), capped at MaxDelay.
type RetryConfig struct {
	// MaxRetries excludes the first attempt.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter scales each wait by a random factor in [0.5, 1).
	Jitter bool

	// ShouldRetry filters errors worth another attempt. Nil retries all.
	ShouldRetry func(error) bool
	// OnRetry, if set, is called before each wait.
	OnRetry func(retry int, err error, wait time.Duration)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay is the wait before retry n (from 1), without jitter.
func (c RetryConfig) Delay(n int) time.Duration {
	d := float64(c.InitialDelay)
	for range n - 1 {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 {
		return min(time.Duration(d), c.MaxDelay)
	}
	return time.Duration(d)
}

func (c RetryConfig) wait(n int) time.Duration {
	d := c.Delay(n)
	if c.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()/2))
	}
	return d
}

// Retry calls fn until it succeeds, the retries run out, ShouldRetry
// rejects the error or ctx ends. A cancelled ctx returns ctx.Err().
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that return a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn()
		switch {
		case err == nil:
			return v, nil
		case cfg.ShouldRetry != nil && !cfg.ShouldRetry(err):
			return zero, err
		case retry >= cfg.MaxRetries:
			return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, err)
		}

		d := cfg.wait(retry + 1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(retry+1, err, d)
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}
