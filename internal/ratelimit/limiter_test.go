package ratelimit

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a Limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) install(l *Limiter) {
	l.now = func() time.Time { return c.now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		c.sleeps = append(c.sleeps, d)
		c.now = c.now.Add(d)

		return nil
	}
}

func TestAcquire_UnderLimitNeverSleeps(t *testing.T) {
	t.Parallel()

	l := New(3, time.Minute)
	clock := newFakeClock()
	clock.install(l)

	for range 3 {
		require.NoError(t, l.Acquire(context.Background()))
	}

	assert.Empty(t, clock.sleeps)
}

func TestAcquire_WaitsExactlyUntilOldestExits(t *testing.T) {
	t.Parallel()

	l := New(2, time.Minute)
	clock := newFakeClock()
	clock.install(l)

	require.NoError(t, l.Acquire(context.Background()))

	clock.now = clock.now.Add(10 * time.Second)
	require.NoError(t, l.Acquire(context.Background()))

	// Window is full. The third acquire must wait until the first admission
	// (60s old at admission time) exits: 60s - 10s elapsed = 50s.
	require.NoError(t, l.Acquire(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 50*time.Second, clock.sleeps[0])
}

func TestAcquire_NeverExceedsLimitUnderRandomTiming(t *testing.T) {
	t.Parallel()

	const (
		limit  = 5
		window = 10 * time.Second
	)

	l := New(limit, window)
	clock := newFakeClock()
	clock.install(l)

	rng := rand.New(rand.NewSource(42))

	var admissions []time.Time

	for range 60 {
		clock.now = clock.now.Add(time.Duration(rng.Int63n(int64(3 * time.Second))))

		require.NoError(t, l.Acquire(context.Background()))
		admissions = append(admissions, clock.now)
	}

	for i, start := range admissions {
		count := 0

		for _, ts := range admissions[i:] {
			if ts.Sub(start) < window {
				count++
			}
		}

		assert.LessOrEqual(t, count, limit, "window starting at admission %d", i)
	}
}

func TestSetBackoff_DelaysSubsequentAcquires(t *testing.T) {
	t.Parallel()

	l := New(10, time.Minute)
	clock := newFakeClock()
	clock.install(l)

	l.SetBackoff(30 * time.Second)

	require.NoError(t, l.Acquire(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 30*time.Second, clock.sleeps[0])
}

func TestSetBackoff_ShorterNeverTruncatesLonger(t *testing.T) {
	t.Parallel()

	l := New(10, time.Minute)
	clock := newFakeClock()
	clock.install(l)

	l.SetBackoff(45 * time.Second)
	l.SetBackoff(5 * time.Second)

	require.NoError(t, l.Acquire(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 45*time.Second, clock.sleeps[0])
}

func TestClearBackoff(t *testing.T) {
	t.Parallel()

	l := New(10, time.Minute)
	clock := newFakeClock()
	clock.install(l)

	l.SetBackoff(45 * time.Second)
	l.ClearBackoff()

	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_CancelledContext(t *testing.T) {
	t.Parallel()

	l := New(1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx))

	cancel()

	// Window is full; the blocked wait must observe cancellation.
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_NormalizesArguments(t *testing.T) {
	t.Parallel()

	l := New(0, 0)

	assert.Equal(t, 1, l.maxPerWindow)
	assert.Equal(t, DefaultWindow, l.window)
}
