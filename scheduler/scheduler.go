// Package scheduler implements scxml.Scheduler: the delayed-<send> timer
// collaborator the interpreter core depends on only through that interface
// (clock.go). RealScheduler can pace callback dispatch with
// golang.org/x/time/rate (Options.FireRate; unlimited when zero) the same
// way the teacher paces outbound model calls in gemini/ratelimiter.go.
// The limiter only delays callbacks whose timers have fired; every pending
// send still holds its own timer and goroutine until it fires or is
// canceled.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentflare-ai/agentmlcore"
)

// Options configures a RealScheduler.
type Options struct {
	Clock scxml.Clock

	// FireRate caps how many callbacks may start per second once their
	// delay elapses; zero means unlimited. Bursts up to FireBurst are
	// allowed through immediately.
	FireRate  rate.Limit
	FireBurst int
}

// RealScheduler schedules callbacks using the configured scxml.Clock and
// fires them on their own goroutine, paced by an x/time/rate.Limiter.
type RealScheduler struct {
	clock   scxml.Clock
	limiter *rate.Limiter

	mu      sync.Mutex
	pending map[string]*entry
}

type entry struct {
	timer  scxml.Timer
	cancel chan struct{}
}

// New constructs a RealScheduler. If opts.Clock is nil, no scheduler-owned
// clock exists and callers must pass one.
func New(opts Options) *RealScheduler {
	limit := opts.FireRate
	burst := opts.FireBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RealScheduler{
		clock:   opts.Clock,
		limiter: rate.NewLimiter(limit, burst),
		pending: make(map[string]*entry),
	}
}

// ScheduleAfter implements scxml.Scheduler.
func (s *RealScheduler) ScheduleAfter(ctx context.Context, delay time.Duration, id string, fn func()) {
	s.mu.Lock()
	if old, ok := s.pending[id]; ok {
		old.timer.Stop()
		close(old.cancel)
	}
	timer := s.clock.NewTimer(delay)
	cancel := make(chan struct{})
	s.pending[id] = &entry{timer: timer, cancel: cancel}
	s.mu.Unlock()

	go func() {
		select {
		case <-timer.C():
		case <-cancel:
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}

		s.mu.Lock()
		if cur, ok := s.pending[id]; !ok || cur.cancel != cancel {
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		fn()
	}()
}

// Cancel implements scxml.Scheduler.
func (s *RealScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	close(e.cancel)
	delete(s.pending, id)
	return true
}

// Pending implements scxml.Scheduler.
func (s *RealScheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

var _ scxml.Scheduler = (*RealScheduler)(nil)
