package ioproc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/ioproc"
)

func newConnectedPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server = <-serverConnCh
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestWebSocketSinkHandleWithoutAttachReturnsCommunicationError(t *testing.T) {
	sink := ioproc.NewWebSocketSink()
	err := sink.Handle(context.Background(), &scxml.Event{Name: "test"})
	require.Error(t, err)
	var commErr *scxml.SendCommunicationError
	require.ErrorAs(t, err, &commErr)
}

func TestWebSocketSinkHandleDeliversEventAsJSON(t *testing.T) {
	server, client := newConnectedPair(t)

	sink := ioproc.NewWebSocketSink()
	sink.Attach(server)

	ev := &scxml.Event{Name: "order.created", Data: map[string]any{"id": "42"}}
	require.NoError(t, sink.Handle(context.Background(), ev))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)

	var got scxml.Event
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "order.created", got.Name)
}

func TestWebSocketSinkShutdownSendsCloseFrame(t *testing.T) {
	server, client := newConnectedPair(t)

	sink := ioproc.NewWebSocketSink()
	sink.Attach(server)
	require.NoError(t, sink.Shutdown(context.Background()))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)

	// Handle after Shutdown must report the sink unattached again.
	err = sink.Handle(context.Background(), &scxml.Event{Name: "late"})
	require.Error(t, err)
}

func TestWebSocketSinkType(t *testing.T) {
	sink := ioproc.NewWebSocketSink()
	assert.Equal(t, ioproc.WebSocketType, sink.Type())
}
