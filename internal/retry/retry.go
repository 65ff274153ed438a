// Package retry wraps fallible operations with bounded exponential backoff
// and provider-throttling detection.
package retry

import (
	"context"
	"strings"
	"time"
)

// Defaults mirror the engine's deployment settings.
const (
	// DefaultMaxAttempts is the total number of invocations, first try included.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay seeds the exponential backoff.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps every wait.
	DefaultMaxDelay = 60 * time.Second
)

// maxShift bounds the backoff exponent to keep the shift arithmetic safe.
const maxShift = 32

// throttleMarkers are the provider messages treated as throttling signals.
var throttleMarkers = []string{"rate limit", "429", "too many requests"}

// Policy configures bounded retries with exponential backoff. A Policy holds
// no mutable state: it is safe to share across goroutines and reuse between
// unrelated operations.
type Policy struct {
	// MaxAttempts is the total number of invocations, first try included.
	MaxAttempts int

	// BaseDelay seeds the backoff: the wait before retry k (1-indexed) is
	// min(BaseDelay·2^(k-1), MaxDelay).
	BaseDelay time.Duration

	// MaxDelay caps every wait, including the throttle doubling.
	MaxDelay time.Duration

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the engine's standard policy: 3 attempts, 1s base, 60s cap.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Delay returns the wait before retry k (1-indexed).
func (p Policy) Delay(k int) time.Duration {
	if k < 1 {
		k = 1
	}

	if k > maxShift {
		return p.MaxDelay
	}

	d := p.BaseDelay * (1 << (k - 1))
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}

	return d
}

// Do invokes op up to p.MaxAttempts times. Failed attempts are separated by
// an exponentially growing wait; a throttling failure doubles that wait, still
// capped at MaxDelay. When every attempt fails, the last error is returned
// unwrapped so callers can classify it. The wait is cut short only by ctx
// cancellation, which aborts the remaining attempts.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := op()
		if err == nil {
			return value, nil
		}

		lastErr = err

		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if IsThrottle(err) {
			delay = min(delay*2, p.MaxDelay)
		}

		sleepErr := sleep(ctx, delay)
		if sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, lastErr
}

// IsThrottle reports whether err reads as a provider throttling signal:
// a case-insensitive match on "rate limit", "429" or "too many requests".
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
