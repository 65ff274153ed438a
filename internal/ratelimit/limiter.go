// Package ratelimit provides sliding-window admission control for calls to
// one external dependency.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the trailing window over which admissions are counted.
const DefaultWindow = time.Minute

// Limiter admits at most maxPerWindow operations within a trailing window.
// Acquire blocks the caller until admission would not exceed the limit and
// any active backoff has elapsed. Construct one Limiter per external
// dependency so throttling one provider never blocks another.
type Limiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	admissions   []time.Time
	backoffUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter admitting maxPerWindow operations per window.
// maxPerWindow below one is raised to one; a non-positive window uses
// DefaultWindow.
func New(maxPerWindow int, window time.Duration) *Limiter {
	if maxPerWindow < 1 {
		maxPerWindow = 1
	}

	if window <= 0 {
		window = DefaultWindow
	}

	return &Limiter{
		maxPerWindow: maxPerWindow,
		window:       window,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Acquire blocks until one more operation may proceed, then records the
// admission. When the window is full it sleeps exactly until the oldest
// admission exits the window, never polling on a shorter interval. It returns
// early only when ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()

		if wait := l.backoffUntil.Sub(now); wait > 0 {
			l.mu.Unlock()

			err := l.sleep(ctx, wait)
			if err != nil {
				return err
			}

			continue
		}

		l.prune(now)

		if len(l.admissions) < l.maxPerWindow {
			l.admissions = append(l.admissions, now)
			l.mu.Unlock()

			return nil
		}

		// Another waiter may take the freed slot first, so re-check after
		// the sleep instead of assuming admission.
		wait := l.admissions[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		err := l.sleep(ctx, wait)
		if err != nil {
			return err
		}
	}
}

// SetBackoff forces subsequent Acquire calls to block until now+d has passed.
// Used when the guarded provider signals throttling. A shorter backoff never
// truncates a longer one already in effect.
func (l *Limiter) SetBackoff(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(d)
	if until.After(l.backoffUntil) {
		l.backoffUntil = until
	}
}

// ClearBackoff lifts any active backoff.
func (l *Limiter) ClearBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoffUntil = time.Time{}
}

// prune drops admissions that have left the trailing window. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)

	keep := 0
	for keep < len(l.admissions) && !l.admissions[keep].After(cutoff) {
		keep++
	}

	if keep > 0 {
		l.admissions = append(l.admissions[:0], l.admissions[keep:]...)
	}
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
