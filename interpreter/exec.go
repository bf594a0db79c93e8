package interpreter

import (
	"context"
	"fmt"
	"reflect"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
)

// runExecOp executes one compiled ExecOp against node's containing
// session, grounded on interpreter.py's executeContent dispatch (there a
// polymorphic obj.exe() call; here a switch over the OpKind sum type per
// spec.md §9's design note).
func (s *Session) runExecOp(ctx context.Context, op *document.ExecOp, node *document.Node) error {
	switch op.Kind {
	case document.OpLog:
		return s.execLog(ctx, op.Log)
	case document.OpRaise:
		return s.execRaise(ctx, op.Raise)
	case document.OpSend:
		return s.execSend(ctx, op.Send)
	case document.OpCancel:
		return s.execCancel(ctx, op.Cancel)
	case document.OpAssign:
		return s.execAssign(ctx, op.Assign)
	case document.OpScript:
		return s.dm.ExecuteScript(ctx, op.Script.Content)
	case document.OpIf:
		return s.execIf(ctx, op.If, node)
	case document.OpForeach:
		return s.execForeach(ctx, op.Foreach, node)
	case document.OpCustom:
		return s.execCustom(ctx, op.Custom)
	default:
		return nil
	}
}

func (s *Session) execLog(ctx context.Context, l *scxml.Log) error {
	msg := l.Label
	if l.Expr != "" {
		v, err := s.dm.EvaluateValue(ctx, l.Expr)
		if err != nil {
			return &scxml.ExprEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "log expr failed", err, map[string]any{"label": l.Label})}
		}
		if msg != "" {
			msg = fmt.Sprintf("%s: %v", msg, v)
		} else {
			msg = fmt.Sprintf("%v", v)
		}
	}
	s.Log(ctx, l.Label, msg)
	return nil
}

func (s *Session) execRaise(ctx context.Context, r *scxml.Raise) error {
	name := r.Event
	if r.EventExpr != "" {
		v, err := s.dm.EvaluateValue(ctx, r.EventExpr)
		if err != nil {
			return &scxml.ExprEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "raise eventexpr failed", err, nil)}
		}
		name = fmt.Sprintf("%v", v)
	}
	s.Raise(ctx, &scxml.Event{Name: name, Type: scxml.EventTypeInternal})
	return nil
}

func (s *Session) execCancel(ctx context.Context, c *scxml.Cancel) error {
	id := c.SendID
	if c.SendIDExpr != "" {
		v, err := s.dm.EvaluateValue(ctx, c.SendIDExpr)
		if err != nil {
			return &scxml.AttributeEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "cancel sendidexpr failed", err, nil)}
		}
		id = fmt.Sprintf("%v", v)
	}
	return s.Cancel(ctx, id)
}

func (s *Session) execAssign(ctx context.Context, a *scxml.Assign) error {
	if a.Location == "" {
		return &scxml.IllegalLocationError{PlatformError: scxml.NewPlatformError(
			"error.execution", "assign location is empty", nil, nil)}
	}
	var val any
	switch {
	case a.Expr != "":
		v, err := s.dm.EvaluateValue(ctx, a.Expr)
		if err != nil {
			return &scxml.ExprEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "assign expr failed", err, map[string]any{"location": a.Location})}
		}
		val = v
	case a.Content != "":
		val = a.Content
	}
	return s.dm.Assign(ctx, a.Location, val)
}

func (s *Session) execIf(ctx context.Context, branches []document.IfBranch, node *document.Node) error {
	for _, b := range branches {
		if b.Cond != "" {
			ok, err := s.dm.EvaluateCondition(ctx, b.Cond)
			if err != nil {
				return &scxml.ExprEvalError{PlatformError: scxml.NewPlatformError(
					"error.execution", "if cond failed", err, nil)}
			}
			if !ok {
				continue
			}
		}
		for i := range b.Body {
			if err := s.execOp(ctx, &b.Body[i], node); err != nil {
				return &scxml.ExecutableContainerError{PlatformError: scxml.NewPlatformError(
					"error.execution", "if body failed", err, nil)}
			}
		}
		return nil
	}
	return nil
}

func (s *Session) execForeach(ctx context.Context, fe *document.ForeachOp, node *document.Node) error {
	items, err := s.dm.EvaluateValue(ctx, fe.Foreach.Array)
	if err != nil {
		return &scxml.ExprEvalError{PlatformError: scxml.NewPlatformError(
			"error.execution", "foreach array failed", err, map[string]any{"array": fe.Foreach.Array})}
	}
	val := reflect.ValueOf(items)
	if items == nil || (val.Kind() != reflect.Slice && val.Kind() != reflect.Array) {
		return &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
			"error.execution", "foreach array did not evaluate to a collection", nil,
			map[string]any{"array": fe.Foreach.Array})}
	}
	if !s.dm.IsLegalName(fe.Foreach.Item) {
		return &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("illegal foreach item name %q", fe.Foreach.Item), nil, nil)}
	}
	for i := 0; i < val.Len(); i++ {
		if err := s.dm.SetVariable(ctx, fe.Foreach.Item, val.Index(i).Interface()); err != nil {
			return err
		}
		if fe.Foreach.Index != "" {
			if err := s.dm.SetVariable(ctx, fe.Foreach.Index, i); err != nil {
				return err
			}
		}
		for j := range fe.Body {
			if err := s.execOp(ctx, &fe.Body[j], node); err != nil {
				return &scxml.ExecutableContainerError{PlatformError: scxml.NewPlatformError(
					"error.execution", "foreach body failed", err, map[string]any{"index": i})}
			}
		}
	}
	return nil
}

// execCustom dispatches a namespaced executable element to its loaded
// Namespace handler (spec.md §4.1 "pre-processing hook" / custom
// executables). Strict documents escalate an unrecognized element; lax
// documents silently skip it, matching spec.md §7.
func (s *Session) execCustom(ctx context.Context, el xmldom.Element) error {
	if el == nil {
		return nil
	}
	if executor, ok := el.(scxml.Executor); ok {
		return executor.Execute(ctx, s)
	}
	ns, err := s.loadNamespace(ctx, string(el.NamespaceURI()))
	if err != nil {
		return err
	}
	if ns == nil {
		if s.doc.ExMode == "strict" {
			return &scxml.ExecutableContainerError{PlatformError: scxml.NewPlatformError(
				"error.execution", fmt.Sprintf("unrecognized executable content <%s>", el.TagName()), nil,
				map[string]any{"namespace": string(el.NamespaceURI())})}
		}
		return nil
	}
	handled, err := ns.Handle(ctx, el)
	if err != nil {
		return err
	}
	if !handled && s.doc.ExMode == "strict" {
		return &scxml.ExecutableContainerError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("namespace %q did not recognize <%s>", ns.URI(), el.TagName()), nil, nil)}
	}
	return nil
}

// loadNamespace lazily constructs (and caches) the Namespace handler for
// uri, returning nil if no loader is registered for it.
func (s *Session) loadNamespace(ctx context.Context, uri string) (scxml.Namespace, error) {
	if ns, ok := s.namespaces[uri]; ok {
		return ns, nil
	}
	loader, ok := s.namespaceLoaders[uri]
	if !ok {
		return nil, nil
	}
	ns, err := loader(ctx, s, nil)
	if err != nil {
		return nil, &scxml.ExecutableContainerError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("failed to load namespace %q", uri), err, nil)}
	}
	s.namespaces[uri] = ns
	return ns, nil
}
