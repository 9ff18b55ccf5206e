package exclusions

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RetryConfig controls how failed writes of the exclusion set are retried
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`        // Retries after the first failed write (default: 5)
	InitialBackoff    time.Duration `yaml:"initial_backoff"`    // Delay before the first retry (default: 200ms)
	MaxBackoff        time.Duration `yaml:"max_backoff"`        // Upper bound on the delay (default: 10s)
	BackoffMultiplier float64       `yaml:"backoff_multiplier"` // Growth factor between retries (default: 2.0)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Validate checks if the configuration has valid values
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative (got %d)", c.MaxRetries)
	}
	if c.MaxRetries > 100 {
		return fmt.Errorf("max_retries too large (got %d, max 100)", c.MaxRetries)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive (got %v)", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= initial_backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff_multiplier must be >= 1.0 (got %.2f)", c.BackoffMultiplier)
	}
	return nil
}

// retryWithBackoff calls fn until it succeeds, MaxRetries is exhausted, or ctx ends.
// The first call happens after InitialBackoff: the caller has already made one attempt.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, operation string, fn func(context.Context) error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during backoff: %w", operation, ctx.Err())
		}

		err := fn(ctx)
		if err == nil {
			log.Printf("[EXCLUSIONS] %s succeeded after %d retries", operation, attempt)
			return nil
		}
		lastErr = err

		log.Printf("[EXCLUSIONS] %s failed (retry %d/%d): %v", operation, attempt, cfg.MaxRetries, err)

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	if lastErr == nil {
		return fmt.Errorf("%s: no retries configured", operation)
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}
