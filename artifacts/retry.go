package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// RetryConfig controls how failed downloads are retried.
type RetryConfig struct {
	// MaxAttempts includes the first attempt. Default: 3
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt. Default: 100ms
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts. Default: 10s
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after every attempt. Default: 2.0
	BackoffMultiplier float64
	// ShouldRetry reports whether an error is worth another attempt. Nil
	// retries everything except missing objects and cancellation.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns the retry settings used when none are set.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = transient
	}
	return c
}

func transient(err error) bool {
	return !errors.Is(err, storage.ErrObjectNotExist) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// retry calls fn until it succeeds, fails with a permanent error or runs out
// of attempts.
func retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	backoff := cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !cfg.ShouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*cfg.BackoffMultiplier), cfg.MaxBackoff)
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
