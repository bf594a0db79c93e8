package clockimpl

import (
	"context"
	"sync"
	"time"

	"github.com/agentflare-ai/agentmlcore"
)

// SimClock is a manually-advanced scxml.Clock for deterministic interpreter
// tests: nothing fires until the test calls Advance.
type SimClock struct {
	mu      sync.Mutex
	now     time.Time
	paused  bool
	waiters []simWaiter
}

type simWaiter struct {
	deadline time.Time
	ch       chan time.Time
	periodic *time.Duration // non-nil for tickers, re-armed on fire
}

// NewSimClock returns a SimClock seeded at the given epoch.
func NewSimClock(epoch time.Time) *SimClock {
	return &SimClock{now: epoch}
}

func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *SimClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *SimClock) Sleep(ctx context.Context, d time.Duration) error {
	ch := c.After(d)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SimClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waiters = append(c.waiters, simWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

func (c *SimClock) NewTimer(d time.Duration) scxml.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	t := &simTimer{clock: c, ch: ch}
	c.waiters = append(c.waiters, simWaiter{deadline: c.now.Add(d), ch: ch})
	return t
}

func (c *SimClock) NewTicker(d time.Duration) scxml.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	period := d
	t := &simTicker{clock: c, ch: ch}
	c.waiters = append(c.waiters, simWaiter{deadline: c.now.Add(d), ch: ch, periodic: &period})
	return t
}

func (c *SimClock) TimeScale() float64 { return 1.0 }

func (c *SimClock) SetTimeScale(scale float64) {}

// Advance moves simulated time forward by d, firing any waiters whose
// deadline has passed (in deadline order), re-arming tickers as it goes.
func (c *SimClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.now.Add(d)
	for {
		idx := -1
		var earliest time.Time
		for i, w := range c.waiters {
			if w.deadline.After(target) {
				continue
			}
			if idx == -1 || w.deadline.Before(earliest) {
				idx, earliest = i, w.deadline
			}
		}
		if idx == -1 {
			break
		}
		w := c.waiters[idx]
		c.waiters = append(c.waiters[:idx], c.waiters[idx+1:]...)
		select {
		case w.ch <- w.deadline:
		default:
		}
		if w.periodic != nil {
			c.waiters = append(c.waiters, simWaiter{deadline: w.deadline.Add(*w.periodic), ch: w.ch, periodic: w.periodic})
		}
	}
	c.now = target
}

func (c *SimClock) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *SimClock) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

func (c *SimClock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *SimClock) removeWaiter(ch chan time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.ch == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

var _ scxml.Clock = (*SimClock)(nil)

type simTimer struct {
	clock *SimClock
	ch    chan time.Time
}

func (t *simTimer) C() <-chan time.Time { return t.ch }
func (t *simTimer) Stop() bool          { return t.clock.removeWaiter(t.ch) }
func (t *simTimer) Reset(d time.Duration) bool {
	stopped := t.clock.removeWaiter(t.ch)
	t.clock.mu.Lock()
	t.clock.waiters = append(t.clock.waiters, simWaiter{deadline: t.clock.now.Add(d), ch: t.ch})
	t.clock.mu.Unlock()
	return stopped
}

type simTicker struct {
	clock *SimClock
	ch    chan time.Time
}

func (t *simTicker) C() <-chan time.Time { return t.ch }
func (t *simTicker) Stop()               { t.clock.removeWaiter(t.ch) }
func (t *simTicker) Reset(d time.Duration) {
	t.clock.removeWaiter(t.ch)
	t.clock.mu.Lock()
	period := d
	t.clock.waiters = append(t.clock.waiters, simWaiter{deadline: t.clock.now.Add(d), ch: t.ch, periodic: &period})
	t.clock.mu.Unlock()
}
