package scxml

import (
	"context"
	"time"
)

// Clock abstracts time so interpreter scheduling can be tested and, if a
// host wants to, simulated faster or slower than real time. The interpreter
// never reads the wall clock directly (spec.md §9 design note).
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(ctx context.Context, d time.Duration) error
	After(d time.Duration) <-chan time.Time
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker

	// TimeScale returns the current simulation speed multiplier (1.0 = real-time).
	TimeScale() float64
	// SetTimeScale sets the simulation speed multiplier.
	SetTimeScale(scale float64)

	// Advance manually advances time by d; only meaningful for mock clocks.
	Advance(d time.Duration)
	Pause()
	Resume()
	IsPaused() bool
}

// Timer abstracts time.Timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// Ticker abstracts time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
	Reset(d time.Duration)
}

// Scheduler is the abstract "schedule callback after delay" / "cancel"
// collaborator spec.md §1/§9 calls out as external: the interpreter core
// depends only on this interface, never on a specific event-loop or timer
// library.
type Scheduler interface {
	// ScheduleAfter arranges for fn to run after delay, indexed by id so a
	// later Cancel(id) can remove it before it fires. If an entry already
	// exists for id it is replaced.
	ScheduleAfter(ctx context.Context, delay time.Duration, id string, fn func())

	// Cancel removes a pending callback. Returns false if id was not
	// pending (already fired or never scheduled).
	Cancel(id string) bool

	// Pending reports whether id is still scheduled.
	Pending(id string) bool
}
