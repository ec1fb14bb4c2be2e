package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

type inbound struct {
	conn  domain.ConnID
	event string
	args  json.RawMessage
}

type recordingHandler struct {
	events chan inbound
	drops  chan domain.ConnID
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		events: make(chan inbound, 16),
		drops:  make(chan domain.ConnID, 16),
	}
}

func (h *recordingHandler) HandleEvent(conn domain.ConnID, event string, args json.RawMessage) {
	h.events <- inbound{conn: conn, event: event, args: args}
}

func (h *recordingHandler) Disconnected(conn domain.ConnID, reason string) {
	h.drops <- conn
}

func newTestHub(t *testing.T) (*Hub, *recordingHandler, string) {
	t.Helper()
	hub := NewHub(hclog.NewNullLogger())
	handler := newRecordingHandler()
	hub.SetHandler(handler)

	server := httptest.NewServer(NewRouter(hub, nil))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, handler, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// identify sends a probe event and returns the connection id the hub assigned
func identify(t *testing.T, ws *websocket.Conn, handler *recordingHandler) domain.ConnID {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"event": "probe", "args": map[string]string{"k": "v"}}))
	select {
	case ev := <-handler.events:
		assert.Equal(t, "probe", ev.event)
		assert.JSONEq(t, `{"k":"v"}`, string(ev.args))
		return ev.conn
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
	return ""
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, ws *websocket.Conn) wireEvent {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireEvent
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestHub_DispatchAndUnicast(t *testing.T) {
	hub, handler, url := newTestHub(t)
	ws := dial(t, url)
	conn := identify(t, ws, handler)
	assert.Equal(t, 1, hub.Len())

	hub.Unicast(conn, domain.EventLobbyCreated, domain.LobbyEvent{Lobby: "ABCD", Host: "ms-lee"})

	msg := readEvent(t, ws)
	assert.Equal(t, domain.EventLobbyCreated, msg.Event)
	assert.JSONEq(t, `{"lobby":"ABCD","host":"ms-lee"}`, string(msg.Data))
}

func TestHub_BroadcastReachesRoomOnly(t *testing.T) {
	hub, handler, url := newTestHub(t)
	alice := dial(t, url)
	aliceID := identify(t, alice, handler)
	bob := dial(t, url)
	bobID := identify(t, bob, handler)

	hub.Join(aliceID, "R001")
	hub.Join(bobID, "R002")
	assert.Equal(t, 1, hub.RoomSize("R001"))

	hub.Broadcast("R001", domain.EventMessage, domain.ChatMessage{Sender: "Zot", Text: "hello"})
	hub.Broadcast("R002", domain.EventMessage, domain.ChatMessage{Sender: "Zot", Text: "hi bob"})

	msg := readEvent(t, alice)
	assert.JSONEq(t, `{"sender":"Zot","text":"hello","timestamp":""}`, string(msg.Data))
	msg = readEvent(t, bob)
	assert.JSONEq(t, `{"sender":"Zot","text":"hi bob","timestamp":""}`, string(msg.Data))

	hub.Leave(aliceID, "R001")
	assert.Equal(t, 0, hub.RoomSize("R001"))
}

func TestHub_MalformedEvent(t *testing.T) {
	_, _, url := newTestHub(t)
	ws := dial(t, url)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))

	msg := readEvent(t, ws)
	assert.Equal(t, domain.EventError, msg.Event)
	assert.Contains(t, string(msg.Data), "malformed event")
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, handler, url := newTestHub(t)
	ws := dial(t, url)
	conn := identify(t, ws, handler)
	hub.Join(conn, "ABCD")

	ws.Close()

	select {
	case dropped := <-handler.drops:
		assert.Equal(t, conn, dropped)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}
	assert.Equal(t, 0, hub.Len())
	assert.Equal(t, 0, hub.RoomSize("ABCD"))

	// Sending to a gone connection is a no-op
	hub.Unicast(conn, domain.EventMessage, nil)
	hub.Join(conn, "ABCD")
	assert.Equal(t, 0, hub.RoomSize("ABCD"))
}
