package scxml

import (
	"context"

	"github.com/agentflare-ai/go-xmldom"
)

// SnapshotConfig controls which sections Snapshot excludes when rendering a
// running session back into an XML document for introspection/tooling.
// By default every section is included.
type SnapshotConfig struct {
	ExcludeAll           bool // master switch: disables every section
	ExcludeConfiguration bool // exclude the active state configuration
	ExcludeData          bool // exclude datamodel values
	ExcludeQueue         bool // exclude internal/external queue contents
	ExcludeServices      bool // exclude invoked child services, recursively
	ExcludeRaise         bool // exclude available raise (internal) transitions
	ExcludeSend          bool // exclude available send (external) transitions
	ExcludeCancel        bool // exclude cancelable delayed sends
}

// Interpreter is the embedding-facing handle for one running SCXML session
// (spec.md §6). It is also the interface executable content and namespace
// handlers run against.
type Interpreter interface {
	IOProcessor

	SessionID() string
	Configuration() []string
	In(ctx context.Context, stateId string) bool

	// Raise enqueues an internal event, processed before any external event
	// (spec.md §4.2 main loop).
	Raise(ctx context.Context, event *Event)

	// Send enqueues event on this session's external queue.
	Send(ctx context.Context, event *Event) error

	// Cancel removes a pending delayed send by id.
	Cancel(ctx context.Context, sendId string) error

	Log(ctx context.Context, label, message string)
	Context() context.Context
	Clock() Clock
	DataModel() DataModel

	// ExecuteElement runs a single namespace-registered custom element
	// found inside executable content.
	ExecuteElement(ctx context.Context, element xmldom.Element) error

	// SendMessage resolves data's target sink and delivers (or schedules,
	// if Delay is set) it, raising the typed send errors of spec.md §7.
	SendMessage(ctx context.Context, data SendData) error

	// ScheduleMessage is the delayed half of SendMessage: it registers a
	// timer keyed by the returned (or supplied) sendid and returns
	// immediately.
	ScheduleMessage(ctx context.Context, data SendData) (string, error)

	// InvokedSessions returns the live child sessions owned by this
	// interpreter's currently active <invoke> elements.
	InvokedSessions() map[string]Interpreter

	Tracer() Tracer

	// Snapshot renders the session's live state into an XML document,
	// honoring the given exclusions.
	Snapshot(ctx context.Context, maybeConfig ...SnapshotConfig) (xmldom.Document, error)
}
