// Package ioproc holds concrete scxml.IOProcessor implementations for send
// targets spec.md §4.3 names but leaves host-defined ("#_websocket" gets a
// reference implementation; "#_response" stays an extension point with no
// shipped implementation, matching spec.md's "host-specific").
package ioproc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agentflare-ai/agentmlcore"
)

// WebSocketType is the I/O processor type URI a <send type="..."> names to
// reach WebSocketSink.
const WebSocketType = "#_websocket"

// WebSocketSink delivers events down an attached gorilla/websocket
// connection as JSON frames, grounded on the session write-lock pattern in
// vango's server/session.go (mutex-guarded WriteMessage, graceful
// CloseMessage on Shutdown).
type WebSocketSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSink constructs an unattached sink; Attach must be called
// before Handle can deliver anything.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{}
}

// Attach binds (or replaces) the live connection events are written to.
func (w *WebSocketSink) Attach(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn = conn
}

// Handle implements scxml.IOProcessor: marshal event as JSON and write it
// as a single text frame.
func (w *WebSocketSink) Handle(ctx context.Context, event *scxml.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
			"error.communication", "websocket sink has no attached connection", nil,
			map[string]any{"sendid": event.SendID})}
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
			"error.communication", "failed to marshal event for websocket delivery", err, nil)}
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &scxml.SendCommunicationError{PlatformError: scxml.NewPlatformError(
			"error.communication", "websocket write failed", err, nil)}
	}
	return nil
}

// Location returns the ws:// URI, if the attached connection exposes one,
// else empty.
func (w *WebSocketSink) Location(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return "", nil
	}
	return fmt.Sprintf("ws://%s", w.conn.RemoteAddr().String()), nil
}

func (w *WebSocketSink) Type() string { return WebSocketType }

// Shutdown sends a close frame and drops the connection reference; it
// does not close the underlying net.Conn, which the host that accepted it
// owns.
func (w *WebSocketSink) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.conn = nil
	return err
}

// Loader adapts NewWebSocketSink to the scxml.IOProcessorLoader shape a
// Runtime registers custom sendtypes with (spec.md §6
// register_custom_sendtype): the sink starts unattached, and a host wires
// up Attach once it accepts the corresponding connection.
func Loader(sink *WebSocketSink) scxml.IOProcessorLoader {
	return func(ctx context.Context, interpreter scxml.Interpreter) (scxml.IOProcessor, error) {
		return sink, nil
	}
}

var _ scxml.IOProcessor = (*WebSocketSink)(nil)
