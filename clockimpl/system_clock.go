// Package clockimpl provides the default scxml.Clock implementations: a
// real-time clock backed by the Go runtime, and a manually-advanced clock
// for deterministic tests (grounded on the teacher's preference for small,
// dependency-free concrete structs around a narrow interface, see
// gemini/ratelimiter.go).
package clockimpl

import (
	"context"
	"sync"
	"time"

	"github.com/agentflare-ai/agentmlcore"
)

// SystemClock is the real-time scxml.Clock. TimeScale is honored by
// stretching/compressing the durations passed to Sleep/After/NewTimer/
// NewTicker, so a host embedding the interpreter in a simulation can run
// faster or slower than real time without the interpreter core knowing.
type SystemClock struct {
	mu     sync.Mutex
	scale  float64
	paused bool
}

// NewSystemClock returns a SystemClock running at real-time (scale 1.0).
func NewSystemClock() *SystemClock {
	return &SystemClock{scale: 1.0}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

func (c *SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (c *SystemClock) scaled(d time.Duration) time.Duration {
	c.mu.Lock()
	scale := c.scale
	c.mu.Unlock()
	if scale <= 0 {
		scale = 1.0
	}
	return time.Duration(float64(d) / scale)
}

func (c *SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(c.scaled(d))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(c.scaled(d))
}

func (c *SystemClock) NewTimer(d time.Duration) scxml.Timer {
	return newSystemTimer(time.NewTimer(c.scaled(d)))
}

func (c *SystemClock) NewTicker(d time.Duration) scxml.Ticker {
	return newSystemTicker(time.NewTicker(c.scaled(d)))
}

func (c *SystemClock) TimeScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

func (c *SystemClock) SetTimeScale(scale float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scale <= 0 {
		scale = 1.0
	}
	c.scale = scale
}

// Advance is a no-op on SystemClock: real time cannot be fast-forwarded.
func (c *SystemClock) Advance(d time.Duration) {}

func (c *SystemClock) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *SystemClock) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

func (c *SystemClock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

var _ scxml.Clock = (*SystemClock)(nil)

type systemTimer struct{ t *time.Timer }

func newSystemTimer(t *time.Timer) *systemTimer { return &systemTimer{t: t} }

func (s *systemTimer) C() <-chan time.Time      { return s.t.C }
func (s *systemTimer) Stop() bool               { return s.t.Stop() }
func (s *systemTimer) Reset(d time.Duration) bool { return s.t.Reset(d) }

type systemTicker struct{ t *time.Ticker }

func newSystemTicker(t *time.Ticker) *systemTicker { return &systemTicker{t: t} }

func (s *systemTicker) C() <-chan time.Time    { return s.t.C }
func (s *systemTicker) Stop()                  { s.t.Stop() }
func (s *systemTicker) Reset(d time.Duration)  { s.t.Reset(d) }
