package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after each retry.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ForErrorClass scales the backoff for class: rate limited requests wait
// five times longer, network errors twice as long.
func (c RetryConfig) ForErrorClass(class ErrorClass) RetryConfig {
	switch class {
	case ErrorClassRateLimit:
		c.InitialBackoff *= 5
		c.MaxBackoff *= 2
	case ErrorClassNetwork:
		c.InitialBackoff *= 2
	}
	return c
}

// backoff returns the un-jittered wait after the given failed attempt.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	return min(time.Duration(d), c.MaxBackoff)
}

// retryWithBackoff calls fn until it succeeds, fails with an error class that
// is not retried, or MaxAttempts is reached. The wait between attempts grows
// exponentially with ±20% jitter, or follows the server's Retry-After hint.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() (ErrorClass, error)) error {
	maxAttempts := max(cfg.MaxAttempts, 1)

	var (
		lastErr   error
		lastClass ErrorClass
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		class, err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr, lastClass = err, class

		if !shouldRetry(class) || ctx.Err() != nil {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		classCfg := cfg.ForErrorClass(class)
		wait := time.Duration(float64(classCfg.backoff(attempt)) * (0.8 + rand.Float64()*0.4))
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = min(apiErr.RetryAfter, classCfg.MaxBackoff)
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())
		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for retry: %w", ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(lastClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
