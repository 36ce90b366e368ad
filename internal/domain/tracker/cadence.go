package tracker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/posture/pkg/metrics"
)

// TickFunc is one cadence evaluation.
type TickFunc func(ctx context.Context, now time.Time)

// CadenceOption configures a Cadence.
type CadenceOption func(*Cadence)

// WithCadenceClock overrides the time passed to each tick.
func WithCadenceClock(now func() time.Time) CadenceOption {
	return func(c *Cadence) {
		if now != nil {
			c.now = now
		}
	}
}

// Cadence fires a TickFunc on a fixed interval. The next tick is armed only
// after the current one returns, and at most one tick runs at any time.
type Cadence struct {
	interval time.Duration
	tick     TickFunc
	now      func() time.Time

	inFlight atomic.Bool
	fired    atomic.Int64
	skipped  atomic.Int64
}

// NewCadence creates a cadence; a non-positive interval falls back to 2s.
func NewCadence(interval time.Duration, tick TickFunc, opts ...CadenceOption) *Cadence {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	c := &Cadence{interval: interval, tick: tick, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run blocks until ctx is cancelled, firing one tick per interval.
func (c *Cadence) Run(ctx context.Context) {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.Trigger(ctx)
			timer.Reset(c.interval)
		}
	}
}

// Trigger runs a tick on the calling goroutine unless one is already running,
// in which case the tick is dropped and false is returned.
func (c *Cadence) Trigger(ctx context.Context) bool {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.skipped.Add(1)
		metrics.RecordTickSkipped()
		return false
	}
	defer c.inFlight.Store(false)

	start := time.Now()
	c.tick(ctx, c.now())
	c.fired.Add(1)
	metrics.RecordTickLatency(float64(time.Since(start).Microseconds()) / 1000)
	return true
}

// Interval returns the configured interval.
func (c *Cadence) Interval() time.Duration { return c.interval }

// Fired returns how many ticks ran.
func (c *Cadence) Fired() int64 { return c.fired.Load() }

// Skipped returns how many ticks were dropped.
func (c *Cadence) Skipped() int64 { return c.skipped.Load() }
