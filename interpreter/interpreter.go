package interpreter

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore"
)

var _ scxml.Interpreter = (*Session)(nil)

func (s *Session) SessionID() string { return s.sessionID }

// IsFinished reports whether the session has exited (reached a top-level
// final state or an enclosing exitInterpreter pass completed) or been
// cancelled (spec.md §6 is_finished).
func (s *Session) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited || s.cancelled
}

// Configuration returns the active state ids in the Configuration's
// insertion order (spec.md §3 invariant: deterministic traversal order).
func (s *Session) Configuration() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.config.Members()
	ids := make([]string, 0, len(members))
	for _, id := range members {
		if n := s.doc.Node(id); n != nil {
			ids = append(ids, n.StateID)
		}
	}
	return ids
}

// In implements the In() builtin (SCXML 5.9.1): stateId is a member of the
// current configuration.
func (s *Session) In(ctx context.Context, stateId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.doc.State(stateId)
	if n == nil {
		return false
	}
	return s.config.Has(n.ID)
}

// Raise enqueues an internal event (spec.md §4.2 main loop): processed
// before any external event is dequeued.
func (s *Session) Raise(ctx context.Context, event *scxml.Event) {
	if event == nil {
		return
	}
	if event.Type == "" {
		event.Type = scxml.EventTypeInternal
	}
	s.internal.Push(event)
}

// Send delivers event to this session's external queue, satisfying both
// Interpreter.Send (the registry and peer sessions call it to deliver to
// this session) and IOProcessor.Handle's transport contract.
func (s *Session) Send(ctx context.Context, event *scxml.Event) error {
	if event == nil {
		return nil
	}
	s.external.Push(event)
	return nil
}

// Cancel removes a pending delayed <send> by id (SCXML 6.3).
func (s *Session) Cancel(ctx context.Context, sendId string) error {
	s.scheduler.Cancel(sendId)
	return nil
}

func (s *Session) Log(ctx context.Context, label, message string) {
	s.tracer.Info("I000", message, nil, scxml.WithAttribute(label))
}

func (s *Session) Context() context.Context { return s.ctx }
func (s *Session) Clock() scxml.Clock       { return s.clock }
func (s *Session) DataModel() scxml.DataModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dm
}
func (s *Session) Tracer() scxml.Tracer { return s.tracer }

// ExecuteElement runs a single namespace-registered custom element found
// inside executable content (spec.md §4.1 "pre-processing hook"), reusing
// the same dispatch execCustom uses for compiled <script>/<if> bodies.
func (s *Session) ExecuteElement(ctx context.Context, element xmldom.Element) error {
	return s.execCustom(ctx, element)
}

// InvokedSessions returns the live child sessions owned by this
// interpreter's currently active <invoke> elements (spec.md §6).
func (s *Session) InvokedSessions() map[string]scxml.Interpreter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]scxml.Interpreter{}
	for _, insts := range s.invokes {
		for _, inst := range insts {
			if inst.child != nil {
				out[inst.spec.InvokeID] = inst.child
			}
		}
	}
	return out
}

// Handle implements IOProcessor for this session acting as the delivery
// target of the default "scxml" event I/O processor (spec.md §4.3):
// deliver directly onto the external queue, same as Send.
func (s *Session) Handle(ctx context.Context, event *scxml.Event) error {
	return s.Send(ctx, event)
}

// Location returns the URI external entities use to reach this session
// (populates _ioprocessors, spec.md §3).
func (s *Session) Location(ctx context.Context) (string, error) {
	if s.registry == nil {
		return "", nil
	}
	return s.registry.Location(s.sessionID), nil
}

func (s *Session) Type() string { return ScxmlEventProcessorType }

// Shutdown cancels the session, releases loaded namespaces/processors, and
// unregisters it from the SessionRegistry.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.cancelled = true
	namespaces := make([]scxml.Namespace, 0, len(s.namespaces))
	for _, ns := range s.namespaces {
		namespaces = append(namespaces, ns)
	}
	processors := make([]scxml.IOProcessor, 0, len(s.ioprocessors))
	for _, p := range s.ioprocessors {
		processors = append(processors, p)
	}
	s.mu.Unlock()

	var firstErr error
	for _, ns := range namespaces {
		if err := ns.Unload(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range processors {
		if err := p.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.registry != nil {
		s.registry.Unregister(s.sessionID)
	}
	return firstErr
}

// Snapshot renders the session's live state into an XML document
// (spec.md §6 introspection/tooling). go-xmldom exposes no element
// construction API (decode-only across the whole corpus), so Snapshot
// assembles the document as a string and re-decodes it through the same
// Decoder the compiler uses. The <data> section is emitted empty
// (datamodel values are not serialized), queues are reported as counts
// only, and ExcludeRaise/ExcludeSend/ExcludeCancel have no section to act
// on.
func (s *Session) Snapshot(ctx context.Context, maybeConfig ...scxml.SnapshotConfig) (xmldom.Document, error) {
	var cfg scxml.SnapshotConfig
	if len(maybeConfig) > 0 {
		cfg = maybeConfig[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<session xmlns=%s sessionid=%s`, xmlAttr(scxml.DefaultNamespaceURI), xmlAttr(s.sessionID))
	fmt.Fprintf(&buf, ` running=%s>`, xmlAttr(fmt.Sprintf("%t", s.running)))

	if !cfg.ExcludeAll && !cfg.ExcludeConfiguration {
		buf.WriteString("<configuration>")
		for _, id := range s.config.Members() {
			if n := s.doc.Node(id); n != nil {
				fmt.Fprintf(&buf, "<state id=%s/>", xmlAttr(n.StateID))
			}
		}
		buf.WriteString("</configuration>")
	}

	if !cfg.ExcludeAll && !cfg.ExcludeData {
		buf.WriteString("<data>")
		buf.WriteString("</data>")
	}

	if !cfg.ExcludeAll && !cfg.ExcludeQueue {
		fmt.Fprintf(&buf, "<queues internal=%s external=%s/>",
			xmlAttr(fmt.Sprintf("%d", s.internal.Len())), xmlAttr(fmt.Sprintf("%d", s.external.Len())))
	}

	if !cfg.ExcludeAll && !cfg.ExcludeServices {
		buf.WriteString("<services>")
		for _, insts := range s.invokes {
			for _, inst := range insts {
				fmt.Fprintf(&buf, "<invoke id=%s/>", xmlAttr(inst.spec.InvokeID))
			}
		}
		buf.WriteString("</services>")
	}

	buf.WriteString("</session>")

	decoder := xmldom.NewDecoderFromBytes(buf.Bytes())
	return decoder.Decode()
}

func xmlAttr(v string) string {
	var buf bytes.Buffer
	buf.WriteByte('"')
	xml.EscapeText(&buf, []byte(v))
	buf.WriteByte('"')
	return buf.String()
}
