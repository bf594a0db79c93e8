package interpreter

import (
	"context"
	"fmt"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
)

// invokeInstance tracks one running <invoke> child session, grounded on
// original_source's invoke.py Invoke wrapper: a handle to the spawned
// session plus enough of the originating <invoke> to route finalize/
// autoforward/cancel back to it (spec.md §4.4).
type invokeInstance struct {
	spec  *document.InvokeSpec
	node  *document.Node
	child *Session
}

func (inst *invokeInstance) cancel(ctx context.Context) {
	if inst.child == nil {
		return
	}
	_ = inst.child.Send(ctx, scxml.NewCancelEvent())
}

// forward implements autoforward (spec.md §4.4): deliver ev, unmodified,
// to the child session's external queue.
func (inst *invokeInstance) forward(ctx context.Context, ev *scxml.Event) error {
	if inst.child == nil {
		return nil
	}
	return inst.child.Send(ctx, ev)
}

// startInvoke spawns the child session named by spec, grounded on
// invoke.py's Invoke.start: evaluate namelist/params against the parent's
// current datamodel, compile src/content into a child Document, and run a
// fresh interpreter.Session sharing this session's ambient collaborators
// (spec.md §4.4/§4.5).
func (s *Session) startInvoke(ctx context.Context, n *document.Node, spec *document.InvokeSpec) {
	if spec.IDLocation != "" {
		if err := s.dm.Assign(ctx, spec.IDLocation, spec.InvokeID); err != nil {
			s.tracer.Error("E310", err.Error(), spec.Source)
			return
		}
	}

	seed, err := s.evaluateInvokeSeed(ctx, spec)
	if err != nil {
		s.tracer.Error("E311", err.Error(), spec.Source)
		s.raiseInvokeFailure(spec.InvokeID, "error.execution")
		return
	}

	if s.invokeCompiler == nil {
		s.tracer.Error("E312", "no invoke compiler configured; cannot start <invoke>", spec.Source)
		s.raiseInvokeFailure(spec.InvokeID, "error.communication")
		return
	}
	childDoc, err := s.invokeCompiler(ctx, spec)
	if err != nil {
		s.tracer.Error("E312", fmt.Sprintf("failed to compile invoked document: %v", err), spec.Source)
		s.raiseInvokeFailure(spec.InvokeID, "error.communication")
		return
	}

	childSessionID := s.sessionID + "." + spec.InvokeID
	childDM, err := s.dm.Clone(ctx)
	if err != nil {
		s.tracer.Error("E312", fmt.Sprintf("failed to clone datamodel for invoke: %v", err), spec.Source)
		s.raiseInvokeFailure(spec.InvokeID, "error.communication")
		return
	}
	if identity, ok := childDM.(interface{ SetSessionIdentity(string, string) }); ok {
		identity.SetSessionIdentity(childSessionID, childDoc.Name)
	}
	for name, value := range seed {
		if err := childDM.SetVariable(ctx, name, value); err != nil {
			s.tracer.Error("E311", err.Error(), spec.Source)
			s.raiseInvokeFailure(spec.InvokeID, "error.execution")
			return
		}
	}

	child, err := New(ctx, Options{
		SessionID:       childSessionID,
		Name:            childDoc.Name,
		ParentSessionID: s.sessionID,
		InvokeID:        spec.InvokeID,
		Document:        childDoc,
		DataModel:       childDM,
		Clock:           s.clock,
		Scheduler:       s.scheduler,
		Tracer:          s.tracer,
		Bus:             s.bus,
		Registry:        s.registry,
		Namespaces:      s.namespaceLoaders,
		IOProcessors:    s.ioprocessorLoaders,
		DataModels:      s.dataModelLoaders,
		InvokeCompiler:  s.invokeCompiler,
	})
	if err != nil {
		s.tracer.Error("E312", fmt.Sprintf("failed to start invoked session: %v", err), spec.Source)
		s.raiseInvokeFailure(spec.InvokeID, "error.communication")
		return
	}

	inst := &invokeInstance{spec: spec, node: n, child: child}
	s.invokes[n.ID] = append(s.invokes[n.ID], inst)

	// Each session drives its own main loop; a child keeps running
	// independently of its parent's tick cadence until it reaches a
	// top-level final state or is cancelled (spec.md §5).
	go child.Run(ctx)

	s.internal.Push(&scxml.Event{
		Name:     "init.invoke." + spec.InvokeID,
		Type:     scxml.EventTypeInternal,
		InvokeID: spec.InvokeID,
	})
}

func (s *Session) raiseInvokeFailure(invokeID, prefix string) {
	s.internal.Push(&scxml.Event{
		Name:     prefix + ".invoke." + invokeID,
		Type:     scxml.EventTypeInternal,
		InvokeID: invokeID,
	})
}

// evaluateInvokeSeed evaluates an <invoke>'s namelist entries and <param>
// children against the parent datamodel, producing the name/value pairs
// to seed the child session's cloned store with.
func (s *Session) evaluateInvokeSeed(ctx context.Context, spec *document.InvokeSpec) (map[string]any, error) {
	seed := map[string]any{}
	for _, name := range spec.NameList {
		v, err := s.dm.EvaluateLocation(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("invoke namelist entry %q: %w", name, err)
		}
		seed[name] = v
	}
	for _, p := range spec.Params {
		var v any
		var err error
		switch {
		case p.Expr != "":
			v, err = s.dm.EvaluateValue(ctx, p.Expr)
		case p.Location != "":
			v, err = s.dm.EvaluateLocation(ctx, p.Location)
		}
		if err != nil {
			return nil, fmt.Errorf("invoke param %q: %w", p.Name, err)
		}
		seed[p.Name] = v
	}
	return seed, nil
}

// applyFinalize runs an <invoke>'s <finalize> block against an event
// raised by (or on behalf of) its child session (spec.md §4.4, grounded on
// invoke.py's applyFinalize): _event is rebound to ev for the duration of
// the block. With no <finalize> content it does nothing; namelist and
// <param> values are not copied back out of the event's data.
func (s *Session) applyFinalize(ctx context.Context, inst *invokeInstance, ev *scxml.Event) {
	if len(inst.spec.Finalize) == 0 {
		return
	}
	if err := s.dm.SetCurrentEvent(ctx, ev); err != nil {
		s.tracer.Error("E313", err.Error(), inst.spec.Source)
		return
	}
	if err := s.executeOps(ctx, inst.spec.Finalize, inst.node); err != nil {
		s.tracer.Error("E313", err.Error(), inst.spec.Source)
	}
}
