package engine

import (
	"context"
	"fmt"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/compiler"
	"github.com/agentflare-ai/agentmlcore/document"
	"github.com/agentflare-ai/agentmlcore/interpreter"
)

// Machine is one StateMachine handle (spec.md §6): a compiled Document
// paired, after Start, with the running interpreter.Session that embodies
// it. Mirrors the `new`/`start` split spec.md's table draws between
// parse+compile and entering the initial configuration.
type Machine struct {
	rt        *Runtime
	doc       *document.Document
	sessionID string
	name      string
	fileDir   string
	fileName  string

	session *interpreter.Session
}

// SessionID returns the id this machine was (or will be) registered
// under.
func (m *Machine) SessionID() string { return m.sessionID }

// Start transitions into the initial configuration and registers the
// session for ticking (spec.md §6 start()). The ctx passed in governs the
// session's own goroutine-driven main loop; cancel it (or call Cancel) to
// stop.
func (m *Machine) Start(ctx context.Context) error {
	if m.session != nil {
		return fmt.Errorf("engine: machine %q already started", m.sessionID)
	}
	session, err := interpreter.New(ctx, interpreter.Options{
		SessionID:      m.sessionID,
		Name:           m.name,
		Document:       m.doc,
		Clock:          m.rt.clock,
		Scheduler:      m.rt.scheduler,
		Tracer:         m.rt.tracer,
		Bus:            m.rt.bus,
		Registry:       m.rt.registry,
		Namespaces:     m.rt.namespaceTableSnapshot(),
		IOProcessors:   m.rt.ioProcessorTableSnapshot(),
		DataModels:     m.rt.dataModelTableSnapshot(),
		InvokeCompiler: m.invokeCompiler,
	})
	if err != nil {
		return fmt.Errorf("engine: start: %w", err)
	}
	m.session = session
	go session.Run(ctx)
	return nil
}

// Cancel posts the distinguished Cancel event; the session runs
// exitInterpreter on its next tick and then stops (spec.md §6 cancel()).
func (m *Machine) Cancel(ctx context.Context) error {
	if m.session == nil {
		return fmt.Errorf("engine: machine %q was never started", m.sessionID)
	}
	return m.session.Send(ctx, scxml.NewCancelEvent())
}

// Send pushes an external event onto the session's external queue
// (spec.md §6 send(name, data?)).
func (m *Machine) Send(ctx context.Context, name string, data any) error {
	if m.session == nil {
		return fmt.Errorf("engine: machine %q was never started", m.sessionID)
	}
	return m.session.Send(ctx, &scxml.Event{Name: name, Type: scxml.EventTypeExternal, Data: data})
}

// In reports whether stateId is a member of the current configuration
// (spec.md §6 In(stateId)).
func (m *Machine) In(ctx context.Context, stateId string) bool {
	if m.session == nil {
		return false
	}
	return m.session.In(ctx, stateId)
}

// IsFinished reports whether the session has exited or been cancelled
// (spec.md §6 is_finished()).
func (m *Machine) IsFinished() bool {
	return m.session != nil && m.session.IsFinished()
}

// Configuration returns the current configuration's state ids. Not part
// of spec.md's table verbatim but needed by any host wanting to inspect
// state beyond single-id In() checks (e.g. cmd/agentmlcore's CLI).
func (m *Machine) Configuration() []string {
	if m.session == nil {
		return nil
	}
	return m.session.Configuration()
}

// invokeCompiler satisfies interpreter.InvokeCompiler, resolving an
// <invoke>'s src or inline <content> into a compiled child Document
// (spec.md §4.4). Inline content is compiled directly from its parsed
// xmldom.Element via compiler.CompileElement, since go-xmldom exposes no
// element-to-bytes serialization to round-trip through compiler.Compile.
func (m *Machine) invokeCompiler(ctx context.Context, spec *document.InvokeSpec) (*document.Document, error) {
	opts := compiler.Options{
		Tracer:           m.rt.tracer,
		FileDir:          m.fileDir,
		NamespaceLoaders: m.rt.namespaceTableSnapshot(),
	}

	var childDoc *document.Document
	var err error
	switch {
	case spec.Content != nil:
		childDoc, err = compiler.CompileElement(ctx, spec.Content, opts)
	case spec.Src != "":
		fetcher := compiler.DefaultFetcher{BaseDir: m.fileDir}
		source, fetchErr := fetcher.Fetch(ctx, spec.Src)
		if fetchErr != nil {
			return nil, fmt.Errorf("engine: fetching invoke src %q: %w", spec.Src, fetchErr)
		}
		childDoc, err = compiler.Compile(ctx, []byte(source), opts)
	default:
		return nil, fmt.Errorf("engine: invoke %q has neither src nor inline content", spec.InvokeID)
	}
	if err != nil {
		return nil, err
	}
	if childDoc.Datamodel == "" {
		childDoc.Datamodel = NullDatamodel
	}
	return childDoc, nil
}
