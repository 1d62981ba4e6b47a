// internal/ratelimit/limiter.go
package ratelimit

import (
	"time"

	"go.uber.org/ratelimit"
)

// Clock is the time source used by a Limiter.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

// Limiter spaces calls to a single external API at a fixed minimum interval.
// Safe for concurrent use; callers block in arrival order.
type Limiter struct {
	name     string
	interval time.Duration
	rl       ratelimit.Limiter
}

// Option configures a Limiter.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// New returns a limiter allowing callsPerSecond calls per second.
// Values <= 0 disable limiting.
func New(name string, callsPerSecond float64, opts ...Option) *Limiter {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Limiter{name: name}
	if callsPerSecond <= 0 {
		l.rl = ratelimit.NewUnlimited()
		return l
	}

	l.interval = time.Duration(float64(time.Second) / callsPerSecond)
	rlOpts := []ratelimit.Option{ratelimit.WithoutSlack, ratelimit.Per(l.interval)}
	if o.clock != nil {
		rlOpts = append(rlOpts, ratelimit.WithClock(o.clock))
	}
	l.rl = ratelimit.New(1, rlOpts...)
	return l
}

// Wait blocks until the minimum spacing since the previous call has elapsed
// and returns the time the call was admitted.
func (l *Limiter) Wait() time.Time {
	return l.rl.Take()
}

// Name returns the API class this limiter guards.
func (l *Limiter) Name() string { return l.name }

// Interval returns the enforced minimum spacing.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Set groups the independent limiters used by the session.
type Set struct {
	DexScreener *Limiter
	CoinGecko   *Limiter
	Jupiter     *Limiter
}

// NewSet builds one limiter per API class.
func NewSet(dexRPS, priceRPS, swapRPS float64, opts ...Option) Set {
	return Set{
		DexScreener: New("dexscreener", dexRPS, opts...),
		CoinGecko:   New("coingecko", priceRPS, opts...),
		Jupiter:     New("jupiter", swapRPS, opts...),
	}
}
