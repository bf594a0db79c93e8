// Package equeue provides the internal and external FIFO event queues the
// interpreter drains each tick (spec.md §3/§5). Queues are safe for
// single-producer/single-consumer use from timers, peer sessions, and the
// owning interpreter's own tick, guarded by a plain mutex as spec.md §5
// allows ("a simple mutex suffices").
package equeue

import (
	"sync"

	"github.com/agentflare-ai/agentmlcore"
)

// Queue is a thread-safe FIFO of *scxml.Event.
type Queue struct {
	mu    sync.Mutex
	items []*scxml.Event
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push appends an event to the tail.
func (q *Queue) Push(e *scxml.Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
}

// Pop removes and returns the head event, or (nil, false) if empty.
func (q *Queue) Pop() (*scxml.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

// Empty reports whether the queue currently holds no events.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a defensive copy of the queued events, in order.
func (q *Queue) Snapshot() []*scxml.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*scxml.Event, len(q.items))
	copy(out, q.items)
	return out
}
