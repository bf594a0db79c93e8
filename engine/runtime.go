// Package engine implements spec.md §6's embedding API
// (StateMachine::new/start/cancel/send/In/is_finished/register_*) as a
// Runtime that owns the collaborator tables a compiled document needs
// (datamodel factories, custom executables, custom sendtypes) plus the
// MultiSession registry those sessions share, grounded on how the
// teacher's env/gemini/mcp packages each expose one constructor returning
// a ready-to-register handler (env.Loader, gemini.New) rather than a
// global registration side effect.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/clockimpl"
	"github.com/agentflare-ai/agentmlcore/compiler"
	"github.com/agentflare-ai/agentmlcore/datamodel"
	"github.com/agentflare-ai/agentmlcore/interpreter"
	"github.com/agentflare-ai/agentmlcore/observer"
	"github.com/agentflare-ai/agentmlcore/registry"
	"github.com/agentflare-ai/agentmlcore/scheduler"
	"github.com/agentflare-ai/agentmlcore/tracer"
)

// NullDatamodel is the id a document's <scxml datamodel="..."> resolves to
// when it names no datamodel, or explicitly "null" (spec.md §3). It is
// always registered; a Runtime may additionally register other ids (e.g.
// an ECMAScript-backed one a host supplies) via RegisterDatamodel.
const NullDatamodel = "null"

// Runtime owns the collaborator tables spec.md §6's register_* operations
// populate and the session registry spec.md §4.5 scopes per embedding
// (not a process-wide singleton, per spec.md §9's "Global state" note).
// One Runtime may construct many independent StateMachine sessions.
type Runtime struct {
	mu sync.Mutex

	tracer    scxml.Tracer
	clock     scxml.Clock
	scheduler scxml.Scheduler
	bus       *observer.Bus
	registry  *registry.Registry

	dataModels   interpreter.DataModelTable
	namespaces   interpreter.NamespaceTable
	ioprocessors interpreter.IOProcessorTable
}

// RuntimeOption configures a Runtime at construction.
type RuntimeOption func(*Runtime)

// WithTracer overrides the default tracer.Collector (logging to
// slog.Default()).
func WithTracer(t scxml.Tracer) RuntimeOption { return func(r *Runtime) { r.tracer = t } }

// WithClock overrides the default clockimpl.SystemClock.
func WithClock(c scxml.Clock) RuntimeOption { return func(r *Runtime) { r.clock = c } }

// WithScheduler overrides the default scheduler.RealScheduler.
func WithScheduler(s scxml.Scheduler) RuntimeOption { return func(r *Runtime) { r.scheduler = s } }

// WithObserverBus overrides the default observer.Bus.
func WithObserverBus(b *observer.Bus) RuntimeOption { return func(r *Runtime) { r.bus = b } }

// New constructs a Runtime with the default null datamodel already
// registered and real-time ambient collaborators (a slog-backed tracer, a
// system clock, a scheduler with no fire-rate cap), any of which RuntimeOption can
// override.
func New(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		dataModels:   interpreter.DataModelTable{},
		namespaces:   interpreter.NamespaceTable{},
		ioprocessors: interpreter.IOProcessorTable{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = tracer.New(slog.Default())
	}
	if r.clock == nil {
		r.clock = clockimpl.NewSystemClock()
	}
	if r.scheduler == nil {
		r.scheduler = scheduler.New(scheduler.Options{Clock: r.clock})
	}
	if r.bus == nil {
		r.bus = observer.New(slog.Default())
	}
	r.registry = registry.New()

	r.dataModels[NullDatamodel] = func(ctx context.Context, interp scxml.Interpreter) (scxml.DataModel, error) {
		return datamodel.New(datamodel.Options{
			SessionID: interp.SessionID(),
			Sessions:  r.registry.Snapshot,
		}), nil
	}
	return r
}

// RegisterDatamodel plugs a custom datamodel factory under id (spec.md §6
// register_datamodel). Overwrites any existing registration for id,
// including "null".
func (r *Runtime) RegisterDatamodel(id string, loader scxml.DataModelLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dataModels[id] = loader
}

// RegisterCustomExecutable plugs a handler for foreign-namespace
// executable content (spec.md §6 register_custom_executable).
func (r *Runtime) RegisterCustomExecutable(ns string, loader scxml.NamespaceLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces[ns] = loader
}

// RegisterCustomSendtype plugs a handler for <send type="...">, e.g.
// ioproc.Loader(ioproc.NewWebSocketSink()) for "#_websocket" (spec.md §6
// register_custom_sendtype).
func (r *Runtime) RegisterCustomSendtype(typeURI string, loader scxml.IOProcessorLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ioprocessors[typeURI] = loader
}

// Observe registers an Observer on the Runtime's shared observer bus
// (spec.md §6 observation signals). Every session this Runtime runs emits
// on that bus, so the Observer receives signals from sessions already
// started as well as from those started later.
func (r *Runtime) Observe(o observer.Observer) (unregister func()) {
	return r.bus.Register(o)
}

// Options configures one StateMachine::new call (spec.md §6 table).
type Options struct {
	SessionID string
	// DefaultDatamodel names the datamodel id the compiled document falls
	// back to when its own <scxml datamodel="..."> attribute is absent.
	// spec.md's table lists "python"|"null"; agentmlcore ships only "null"
	// (spec.md Non-goals exclude an ECMAScript/Python datamodel), so any
	// other value here must already have been registered via
	// RegisterDatamodel or Machine.Start fails.
	DefaultDatamodel string
	// SetupSession mirrors spec.md §6's setup_session flag; agentmlcore
	// always registers a started session in the Runtime's MultiSession
	// registry (spec.md's stated default), so this is accepted for API
	// parity but has no effect. An explicit opt-out would need plumbing
	// through interpreter.Options.Registry as nil per-session, which no
	// caller in this repo needs yet.
	SetupSession bool
	FileDir      string
	FileName         string
	InitData         map[string]any
}

// New compiles src and constructs a StateMachine without entering its
// initial configuration (spec.md §6: "parse+compile; do not enter"). Call
// Start to transition into the initial configuration and register the
// session for ticking.
func (r *Runtime) New(ctx context.Context, src []byte, opts Options) (*Machine, error) {
	doc, err := compiler.Compile(ctx, src, compiler.Options{
		Tracer:           r.tracer,
		FileDir:          opts.FileDir,
		FileName:         opts.FileName,
		NamespaceLoaders: r.namespaceTableSnapshot(),
		InitData:         opts.InitData,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: compile: %w", err)
	}
	// The compiler fills doc.Datamodel with "null" when the attribute is
	// absent, so check the root element itself.
	if opts.DefaultDatamodel != "" && string(doc.RootNode().Source.GetAttribute("datamodel")) == "" {
		doc.Datamodel = opts.DefaultDatamodel
	}
	if doc.Datamodel == "" {
		doc.Datamodel = NullDatamodel
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &Machine{
		rt:        r,
		doc:       doc,
		sessionID: sessionID,
		name:      doc.Name,
		fileDir:   opts.FileDir,
		fileName:  opts.FileName,
	}, nil
}

// namespaceTableSnapshot copies the Runtime's current namespace loader
// table, so a long-running Machine isn't affected by registrations made
// after it started.
func (r *Runtime) namespaceTableSnapshot() interpreter.NamespaceTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(interpreter.NamespaceTable, len(r.namespaces))
	for k, v := range r.namespaces {
		out[k] = v
	}
	return out
}

func (r *Runtime) ioProcessorTableSnapshot() interpreter.IOProcessorTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(interpreter.IOProcessorTable, len(r.ioprocessors))
	for k, v := range r.ioprocessors {
		out[k] = v
	}
	return out
}

func (r *Runtime) dataModelTableSnapshot() interpreter.DataModelTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(interpreter.DataModelTable, len(r.dataModels))
	for k, v := range r.dataModels {
		out[k] = v
	}
	return out
}
