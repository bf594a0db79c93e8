// Package interpreter implements the W3C SCXML 1.0 processing model
// (selectEventlessTransitions/selectTransitions/microstep/enterStates/
// exitStates) against a compiled document.Document. The algorithm is
// grounded directly on original_source's src/blend_scxml/interpreter.py,
// translated from its OrderedSet-based Python shape into Go's
// document.Configuration/[]*document.Node idiom; ambient concerns (clock,
// scheduler, tracer, datamodel) are the pluggable collaborators the root
// package declares, following the teacher's narrow-interface style
// (gemini/ratelimiter.go, env/loader.go).
package interpreter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
	"github.com/agentflare-ai/agentmlcore/equeue"
	"github.com/agentflare-ai/agentmlcore/observer"
)

// SessionRegistry is the subset of registry.Registry a Session needs: look
// up peer sessions by id to resolve "#_scxml_<id>" targets and route
// <invoke>-related sends (spec.md §4.5).
type SessionRegistry interface {
	Register(id string, interp scxml.Interpreter) error
	Unregister(id string)
	Lookup(id string) (scxml.Interpreter, bool)
	Location(id string) string
}

// NamespaceTable resolves a foreign-namespace URI to its loaded handler,
// built once per Session from the Runtime's registered NamespaceLoaders
// (spec.md §4.1 "pre-processing hook").
type NamespaceTable map[string]scxml.NamespaceLoader

// IOProcessorTable resolves a custom sendtype URI to its loader (spec.md
// §6 register_custom_sendtype).
type IOProcessorTable map[string]scxml.IOProcessorLoader

// DataModelTable resolves a <scxml datamodel="..."> type name to its
// loader (spec.md §6 register_datamodel). When Options.DataModel is nil,
// New looks the loader up in this table by the document's Datamodel
// field; invoked child sessions are instead given a clone of their
// parent's datamodel and do not consult the table.
type DataModelTable map[string]scxml.DataModelLoader

// InvokeCompiler compiles a <invoke>'s src/content into a child Document,
// the interpreter package's one hook into the compiler (kept decoupled so
// interpreter never imports the compiler package directly; a Runtime
// supplies this by closing over compiler.Compile).
type InvokeCompiler func(ctx context.Context, spec *document.InvokeSpec) (*document.Document, error)

// Options configures a new Session.
type Options struct {
	SessionID       string
	Name            string
	ParentSessionID string // non-empty when this session was created by an <invoke>
	InvokeID        string // the <invoke id> this session answers to, in the parent

	Document  *document.Document
	DataModel scxml.DataModel // supplied directly, or resolved from DataModels below
	Clock     scxml.Clock
	Scheduler scxml.Scheduler
	Tracer    scxml.Tracer
	Bus       *observer.Bus
	Registry  SessionRegistry

	Namespaces     NamespaceTable
	IOProcessors   IOProcessorTable
	DataModels     DataModelTable
	InvokeCompiler InvokeCompiler
}

// Session is one running SCXML interpreter instance (spec.md §3/§6).
type Session struct {
	mu sync.Mutex

	ctx context.Context

	sessionID       string
	name            string
	parentSessionID string
	invokeID        string

	doc     *document.Document
	config  *document.Configuration
	history document.HistoryValue

	internal *equeue.Queue
	external *equeue.Queue

	// externalQueueGuard mirrors the Python interpreter's
	// externalQueueGuard: once the external queue is observed empty, later
	// Ticks skip the eventless/internal stabilization pass and only poll
	// the external queue, until an external event is consumed.
	externalQueueGuard bool

	statesToInvoke []document.NodeID

	dm        scxml.DataModel
	clock     scxml.Clock
	scheduler scxml.Scheduler
	tracer    scxml.Tracer
	bus       *observer.Bus
	registry  SessionRegistry

	namespaceLoaders NamespaceTable
	namespaces       map[string]scxml.Namespace

	ioprocessorLoaders IOProcessorTable
	ioprocessors       map[string]scxml.IOProcessor

	dataModelLoaders DataModelTable
	invokeCompiler   InvokeCompiler

	invokes map[document.NodeID][]*invokeInstance

	running   bool
	exited    bool
	cancelled bool
}

// New constructs a Session and runs the initial transition (spec.md §3
// "interpret"): it enters the document's initial configuration but does
// not start the main loop; call Tick (directly or via a host-driven
// ticker) to begin processing.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Document == nil {
		return nil, fmt.Errorf("interpreter: Options.Document is required")
	}
	if opts.SessionID == "" {
		return nil, fmt.Errorf("interpreter: Options.SessionID is required")
	}
	s := &Session{
		ctx:                ctx,
		sessionID:          opts.SessionID,
		name:               opts.Name,
		parentSessionID:    opts.ParentSessionID,
		invokeID:           opts.InvokeID,
		doc:                opts.Document,
		config:             document.NewConfiguration(),
		history:            document.HistoryValue{},
		internal:           equeue.New(),
		external:           equeue.New(),
		dm:                 opts.DataModel,
		clock:              opts.Clock,
		scheduler:          opts.Scheduler,
		tracer:             opts.Tracer,
		bus:                opts.Bus,
		registry:           opts.Registry,
		namespaceLoaders:   opts.Namespaces,
		namespaces:         map[string]scxml.Namespace{},
		ioprocessorLoaders: opts.IOProcessors,
		ioprocessors:       map[string]scxml.IOProcessor{},
		dataModelLoaders:   opts.DataModels,
		invokeCompiler:     opts.InvokeCompiler,
		invokes:            map[document.NodeID][]*invokeInstance{},
		running:            true,
	}

	if s.dm == nil {
		loader, ok := s.dataModelLoaders[opts.Document.Datamodel]
		if !ok {
			return nil, fmt.Errorf("interpreter: no DataModel loader registered for datamodel %q", opts.Document.Datamodel)
		}
		dm, err := loader(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("interpreter: constructing datamodel: %w", err)
		}
		s.dm = dm
	}

	if s.registry != nil {
		if err := s.registry.Register(s.sessionID, s); err != nil {
			return nil, err
		}
	}
	if selfSetter, ok := s.dm.(interface{ SetSelf(any) }); ok {
		selfSetter.SetSelf(s)
	}

	root := s.doc.RootNode()

	// Data model initialization precedes any executable content (spec.md
	// §3 "interpret"): binding="early" evaluates every <data> in the
	// document up front; binding="late" only evaluates the root's own
	// <datamodel>, deferring each other state's to its first entry
	// (steps.go's enterStates).
	if s.doc.Binding == "early" {
		if err := s.initDataEarly(ctx); err != nil {
			s.tracer.Error("E304", err.Error(), nil)
		}
	} else if err := s.dm.Initialize(ctx, convertDataDecls(root.Data)); err != nil {
		s.tracer.Error("E304", err.Error(), nil)
	}

	rootTransition := &document.Transition{
		Source: s.doc.Root,
		Target: s.doc.InitialTarget,
		Exe:    s.doc.InitialExe,
	}

	if err := s.executeOps(ctx, rootTransition.Exe, root); err != nil {
		s.tracer.Error("E300", err.Error(), nil)
	}
	s.enterStates(ctx, []*document.Transition{rootTransition})

	return s, nil
}

// initDataEarly evaluates every <data> element in the document, in
// document order, for binding="early" (spec.md §3 "Data Model" binding
// modes).
func (s *Session) initDataEarly(ctx context.Context) error {
	nodes := make([]*document.Node, len(s.doc.Nodes))
	copy(nodes, s.doc.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].N < nodes[j].N })

	var all []scxml.Data
	for _, n := range nodes {
		all = append(all, convertDataDecls(n.Data)...)
	}
	return s.dm.Initialize(ctx, all)
}

// convertDataDecls adapts compiled document.DataDecl values into the
// scxml.Data shape DataModel.Initialize expects.
func convertDataDecls(decls []*document.DataDecl) []scxml.Data {
	out := make([]scxml.Data, len(decls))
	for i, d := range decls {
		out[i] = scxml.Data{ID: d.ID, Expr: d.Expr, Src: d.Src, Content: d.Content}
	}
	return out
}
