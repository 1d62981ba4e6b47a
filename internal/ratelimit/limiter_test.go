package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
		c.slept += d
	}
}

func TestLimiterSpacing(t *testing.T) {
	clock := newFakeClock()
	l := New("test", 2, WithClock(clock))
	require.Equal(t, 500*time.Millisecond, l.Interval())

	first := l.Wait()
	second := l.Wait()

	assert.GreaterOrEqual(t, second.Sub(first), 500*time.Millisecond)
	assert.GreaterOrEqual(t, clock.slept, 500*time.Millisecond)
}

func TestLimiterNoWaitAfterIdle(t *testing.T) {
	clock := newFakeClock()
	l := New("test", 1, WithClock(clock))

	l.Wait()
	clock.Sleep(5 * time.Second)
	before := clock.slept
	l.Wait()

	assert.Equal(t, before, clock.slept, "an idle limiter must not sleep")
}

func TestLimiterSequence(t *testing.T) {
	clock := newFakeClock()
	l := New("test", 10, WithClock(clock))

	var prev time.Time
	for i := 0; i < 5; i++ {
		at := l.Wait()
		if i > 0 {
			assert.GreaterOrEqual(t, at.Sub(prev), 100*time.Millisecond)
		}
		prev = at
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := New("free", 0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		l.Wait()
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, l.Interval())
}

func TestSetIndependence(t *testing.T) {
	clock := newFakeClock()
	set := NewSet(1, 1, 10, WithClock(clock))

	set.DexScreener.Wait()
	set.CoinGecko.Wait()
	set.Jupiter.Wait()

	assert.Zero(t, clock.slept, "first call on each limiter must not block")
	assert.Equal(t, "dexscreener", set.DexScreener.Name())
	assert.Equal(t, "coingecko", set.CoinGecko.Name())
	assert.Equal(t, "jupiter", set.Jupiter.Name())
}

func TestLimiterConcurrentCallers(t *testing.T) {
	l := New("concurrent", 50)

	const callers = 4
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Wait()
		}()
	}
	wg.Wait()

	// 4 calls at 50/s need at least 3 intervals of 20ms.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}
