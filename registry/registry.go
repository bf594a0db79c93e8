// Package registry implements the MultiSession registry of spec.md §4.5:
// a mapping from sessionid to running Interpreter handle. Per spec.md §9's
// "Global state" design note, this is scoped per Runtime instance rather
// than a process-wide singleton, so a process can host multiple
// independent embeddings without cross-talk.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentflare-ai/agentmlcore"
)

// ScxmlLocationPrefix is the URI prefix sessions are addressable at
// through the "scxml" I/O processor (spec.md §4.3: "#_scxml_<sessionid>").
const ScxmlLocationPrefix = "#_scxml_"

// Registry is a MultiSession registry scoped to one Runtime.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]scxml.Interpreter
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]scxml.Interpreter)}
}

// Register adopts an already-constructed Interpreter under id (spec.md
// §4.5 make_session). Location reports #_scxml_<id> for it; Register does
// not write that location into the session's _ioprocessors table.
func (r *Registry) Register(id string, interp scxml.Interpreter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("registry: session %q already registered", id)
	}
	r.sessions[id] = interp
	return nil
}

// Unregister removes a session, called on exit (spec.md §4.5: "Observer
// that removes the entry on each machine's exit").
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Lookup returns the session registered under id, if any.
func (r *Registry) Lookup(id string) (scxml.Interpreter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Location returns the #_scxml_<id> location for a registered session.
func (r *Registry) Location(id string) string {
	return ScxmlLocationPrefix + id
}

// Send delivers event to one named session, or to every registered
// session when toSession is empty (spec.md §4.5 "send(event, data,
// to_session?): deliver to one or all sessions").
func (r *Registry) Send(ctx context.Context, event *scxml.Event, toSession string) error {
	if toSession != "" {
		target, ok := r.Lookup(toSession)
		if !ok {
			return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
				"error.communication", fmt.Sprintf("no session registered as %q", toSession), nil,
				map[string]any{"sessionid": toSession})}
		}
		return target.Send(ctx, event)
	}

	r.mu.RLock()
	targets := make([]scxml.Interpreter, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, t := range targets {
		if err := t.Send(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Snapshot returns the session ids currently registered, for the
// datamodel's "sessions" ambient variable (spec.md §3).
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.sessions))
	for id := range r.sessions {
		out[id] = id
	}
	return out
}

// ChildSessionID constructs the "parent.invokeid" session id convention
// spec.md §3 mandates for invoked children.
func ChildSessionID(parentSessionID, invokeID string) string {
	return parentSessionID + "." + invokeID
}
