package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ownlingo/ownlingo/internal/globaltime"
)

// RetryableError marks an error as transient and eligible for another
// attempt. RetryAfter, when positive, is a provider-suggested delay that
// takes precedence over the computed backoff.
type RetryableError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// SuggestedDelay extracts a provider-suggested retry delay, if any.
func SuggestedDelay(err error) (time.Duration, bool) {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) && retryableErr.RetryAfter > 0 {
		return retryableErr.RetryAfter, true
	}
	return 0, false
}

// ParseRetryAfter interprets an HTTP Retry-After value, either delta-seconds
// or an HTTP-date. It returns 0 when the value is empty, unparseable, or in
// the past.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(globaltime.Now()); d > 0 {
			return d
		}
	}
	return 0
}

// Config holds retry configuration.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction adds up to this fraction of the computed delay as
	// random jitter. Valid range is 0 to 0.3.
	JitterFraction float64
}

// DefaultConfig returns default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// BackoffFor computes the delay before the attempt+1'th try:
// min(InitialBackoff x Multiplier^attempt, MaxBackoff) plus jitter.
func (c *Config) BackoffFor(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(attempt))
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}

	jitter := c.JitterFraction
	if jitter > 0.3 {
		jitter = 0.3
	}
	if jitter > 0 {
		backoff += backoff * jitter * rand.Float64()
	}

	return time.Duration(backoff)
}

// Do executes the operation up to MaxRetries+1 times with exponential
// backoff. Non-retryable errors short-circuit immediately. Sleeps happen
// only between attempts and observe ctx cancellation.
func Do(ctx context.Context, config *Config, operation func() error) error {
	if config == nil {
		config = DefaultConfig()
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		// Never sleep after the final attempt.
		if attempt == config.MaxRetries {
			break
		}

		backoff := config.BackoffFor(attempt)
		if suggested, ok := SuggestedDelay(err); ok {
			backoff = suggested
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
