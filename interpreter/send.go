package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
	"github.com/agentflare-ai/agentmlcore/registry"
)

// ScxmlEventProcessorType is the default I/O processor type URI (W3C SCXML
// §6.2, "SCXML Event I/O Processor"), used whenever a <send> omits type or
// names it explicitly.
const ScxmlEventProcessorType = "http://www.w3.org/TR/scxml/#SCXMLEventProcessor"

func (s *Session) execSend(ctx context.Context, send *scxml.Send) error {
	data, err := s.evaluateSendData(ctx, send)
	if err != nil {
		return err
	}
	if send.IdLocation != "" {
		if err := s.dm.Assign(ctx, send.IdLocation, data.ID); err != nil {
			return err
		}
	}
	if data.Delay != "" {
		_, err := s.ScheduleMessage(ctx, data)
		return err
	}
	return s.SendMessage(ctx, data)
}

func (s *Session) evaluateSendData(ctx context.Context, send *scxml.Send) (scxml.SendData, error) {
	data := scxml.SendData{
		Event:    send.Event,
		Target:   send.Target,
		Type:     send.TypeURI,
		ID:       send.SendID,
		Delay:    send.Delay,
		NameList: send.NameList,
		Params:   send.Params,
		Content:  send.Content,
	}
	if send.EventExpr != "" {
		v, err := s.dm.EvaluateValue(ctx, send.EventExpr)
		if err != nil {
			return data, &scxml.AttributeEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "send eventexpr failed", err, nil)}
		}
		data.Event = fmt.Sprintf("%v", v)
	}
	if send.TargetExpr != "" {
		v, err := s.dm.EvaluateValue(ctx, send.TargetExpr)
		if err != nil {
			return data, &scxml.AttributeEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "send targetexpr failed", err, nil)}
		}
		data.Target = fmt.Sprintf("%v", v)
	}
	if send.TypeExpr != "" {
		v, err := s.dm.EvaluateValue(ctx, send.TypeExpr)
		if err != nil {
			return data, &scxml.AttributeEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "send typeexpr failed", err, nil)}
		}
		data.Type = fmt.Sprintf("%v", v)
	}
	if send.DelayExpr != "" {
		v, err := s.dm.EvaluateValue(ctx, send.DelayExpr)
		if err != nil {
			return data, &scxml.AttributeEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", "send delayexpr failed", err, nil)}
		}
		data.Delay = fmt.Sprintf("%v", v)
	}
	if data.ID == "" {
		data.ID = uuid.NewString()
	}
	return data, nil
}

func (s *Session) buildEventData(ctx context.Context, data scxml.SendData) (any, error) {
	if len(data.Params) == 0 && len(data.NameList) == 0 && data.Content == nil {
		return nil, nil
	}
	if data.Content != nil {
		if data.Content.Expr != "" {
			return s.dm.EvaluateValue(ctx, data.Content.Expr)
		}
		return data.Content.Body, nil
	}
	payload := map[string]any{}
	for _, p := range data.Params {
		var v any
		var err error
		switch {
		case p.Expr != "":
			v, err = s.dm.EvaluateValue(ctx, p.Expr)
		case p.Location != "":
			v, err = s.dm.EvaluateLocation(ctx, p.Location)
		}
		if err != nil {
			return nil, &scxml.AttributeEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", fmt.Sprintf("param %q evaluation failed", p.Name), err, nil)}
		}
		payload[p.Name] = v
	}
	for _, loc := range data.NameList {
		v, err := s.dm.EvaluateLocation(ctx, loc)
		if err != nil {
			return nil, &scxml.AttributeEvalError{PlatformError: scxml.NewPlatformError(
				"error.execution", fmt.Sprintf("namelist entry %q evaluation failed", loc), err, nil)}
		}
		payload[loc] = v
	}
	return payload, nil
}

// SendMessage implements scxml.Interpreter.SendMessage: resolve the sink
// named by data.Type/data.Target and deliver immediately.
func (s *Session) SendMessage(ctx context.Context, data scxml.SendData) error {
	if data.Event == "" {
		return &scxml.SendExecutionError{PlatformError: scxml.NewPlatformError(
			"error.execution", "send has no event name", nil, nil)}
	}
	payload, err := s.buildEventData(ctx, data)
	if err != nil {
		return err
	}

	typeURI := data.Type
	if typeURI == "" {
		typeURI = ScxmlEventProcessorType
	}

	ev := &scxml.Event{
		ID:         data.ID,
		Name:       data.Event,
		Type:       scxml.EventTypeExternal,
		Data:       payload,
		SendID:     data.ID,
		Target:     data.Target,
		TargetType: typeURI,
		Timestamp:  s.clock.Now(),
	}
	if s.registry != nil {
		ev.Origin = s.registry.Location(s.sessionID)
	}
	ev.OriginType = ScxmlEventProcessorType

	if typeURI == ScxmlEventProcessorType || typeURI == "scxml" {
		return s.routeScxmlEvent(ctx, ev, data.Target)
	}

	proc, err := s.loadIOProcessor(ctx, typeURI)
	if err != nil {
		return err
	}
	if err := proc.Handle(ctx, ev); err != nil {
		return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
			"error.communication", fmt.Sprintf("delivery via %q failed", typeURI), err,
			map[string]any{"sendid": data.ID, "target": data.Target})}
	}
	return nil
}

// ScheduleMessage implements scxml.Interpreter.ScheduleMessage: parses the
// CSS2-style delay and registers the send with the session's Scheduler,
// returning immediately (spec.md §4.3 "delayed send").
func (s *Session) ScheduleMessage(ctx context.Context, data scxml.SendData) (string, error) {
	delay, err := parseDelay(data.Delay)
	if err != nil {
		return "", &scxml.SendExecutionError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("invalid delay %q", data.Delay), err, map[string]any{"sendid": data.ID})}
	}
	if data.ID == "" {
		data.ID = uuid.NewString()
	}
	fireData := data
	fireData.Delay = ""
	s.scheduler.ScheduleAfter(ctx, delay, data.ID, func() {
		if err := s.SendMessage(ctx, fireData); err != nil {
			s.tracer.Error("E307", err.Error(), nil)
		}
	})
	return data.ID, nil
}

// parseDelay accepts CSS2 time values ("500ms", "2s"), which share syntax
// with Go's duration grammar closely enough that time.ParseDuration
// handles them directly.
func parseDelay(raw string) (time.Duration, error) {
	if raw == "" || raw == "0" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// routeScxmlEvent implements spec.md §4.3's send-target table for the
// default "scxml" event I/O processor: "", self-location, "#_internal",
// "#_parent", "#_scxml_<id>", and invoke-child targets.
func (s *Session) routeScxmlEvent(ctx context.Context, ev *scxml.Event, target string) error {
	selfLocation := ""
	if s.registry != nil {
		selfLocation = s.registry.Location(s.sessionID)
	}

	switch {
	case target == "" || target == selfLocation:
		s.external.Push(ev)
		return nil
	case target == "#_internal":
		s.internal.Push(ev)
		return nil
	case target == "#_parent":
		if s.parentSessionID == "" || s.registry == nil {
			return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
				"error.communication", "session has no parent to send #_parent to", nil, nil)}
		}
		parent, ok := s.registry.Lookup(s.parentSessionID)
		if !ok {
			return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
				"error.communication", "parent session is no longer registered", nil,
				map[string]any{"parent": s.parentSessionID})}
		}
		ev.InvokeID = s.invokeID
		return parent.Send(ctx, ev)
	case strings.HasPrefix(target, registry.ScxmlLocationPrefix):
		if s.registry == nil {
			return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
				"error.communication", "no session registry configured", nil, nil)}
		}
		id := strings.TrimPrefix(target, registry.ScxmlLocationPrefix)
		return s.registry.Send(ctx, ev, id)
	default:
		invokeID := strings.TrimPrefix(target, "#_")
		for _, insts := range s.invokes {
			for _, inst := range insts {
				if inst.spec.InvokeID == invokeID {
					return inst.forward(ctx, ev)
				}
			}
		}
		return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
			"error.communication", fmt.Sprintf("unresolvable send target %q", target), nil,
			map[string]any{"target": target})}
	}
}

// loadIOProcessor lazily constructs (and caches) the IOProcessor for a
// custom sendtype URI (spec.md §6 register_custom_sendtype).
func (s *Session) loadIOProcessor(ctx context.Context, typeURI string) (scxml.IOProcessor, error) {
	if proc, ok := s.ioprocessors[typeURI]; ok {
		return proc, nil
	}
	loader, ok := s.ioprocessorLoaders[typeURI]
	if !ok {
		return nil, &scxml.SendExecutionError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("unknown send type %q", typeURI), nil, map[string]any{"type": typeURI})}
	}
	proc, err := loader(ctx, s)
	if err != nil {
		return nil, &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
			"error.communication", fmt.Sprintf("failed to start processor %q", typeURI), err, nil)}
	}
	s.ioprocessors[typeURI] = proc
	if m, ok := s.dm.(interface{ SetIOProcessor(string, string) }); ok {
		if loc, err := proc.Location(ctx); err == nil {
			m.SetIOProcessor(typeURI, loc)
		}
	}
	return proc, nil
}

// doneData evaluates a Final node's <donedata> (or nil) into the payload
// attached to its done.state.*/done.invoke.* event.
func (s *Session) doneData(ctx context.Context, n *document.Node) any {
	if n.DoneData == nil {
		return nil
	}
	data := scxml.SendData{Params: toParams(n.DoneData.Params)}
	if n.DoneData.Content != nil {
		data.Content = &scxml.Content{Expr: n.DoneData.Content.Expr, Body: n.DoneData.Content.Body}
	}
	payload, err := s.buildEventData(ctx, data)
	if err != nil {
		s.tracer.Error("E308", err.Error(), n.Source)
		return nil
	}
	return payload
}

func toParams(decls []document.ParamDecl) []scxml.Param {
	out := make([]scxml.Param, len(decls))
	for i, d := range decls {
		out[i] = scxml.Param{Name: d.Name, Expr: d.Expr, Location: d.Location}
	}
	return out
}
