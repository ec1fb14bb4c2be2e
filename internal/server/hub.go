package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

const (
	sendChannelSize = 256
	maxMessageSize  = 8192
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
)

// Handler receives inbound events and connection drops from the hub
type Handler interface {
	HandleEvent(conn domain.ConnID, event string, args json.RawMessage)
	Disconnected(conn domain.ConnID, reason string)
}

// inboundMessage is what clients send: {"event": "...", "args": {...}}
type inboundMessage struct {
	Event string          `json:"event"`
	Args  json.RawMessage `json:"args"`
}

// outboundMessage is what clients receive: {"event": "...", "data": ...}
type outboundMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Hub tracks websocket clients and the rooms they are subscribed to.
// It implements repo.TransportRepo.
type Hub struct {
	logger   hclog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[domain.ConnID]*client
	rooms   map[string]map[domain.ConnID]struct{}
	handler Handler
}

// NewHub creates an empty hub
func NewHub(logger hclog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		clients: make(map[domain.ConnID]*client),
		rooms:   make(map[string]map[domain.ConnID]struct{}),
	}
}

// SetHandler sets the receiver of inbound events
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// ServeWS upgrades the request and starts the client loops
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(h, domain.ConnID(uuid.NewString()), conn)
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", "conn", c.id, "remote", r.RemoteAddr, "clients", n)

	go c.writeLoop()
	go c.readLoop()
}

// ============ TransportRepo ============

// Join subscribes a connection to a room
func (h *Hub) Join(conn domain.ConnID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		h.rooms[room] = members
	}
	members[conn] = struct{}{}
}

// Leave unsubscribes a connection from a room
func (h *Hub) Leave(conn domain.ConnID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn, room)
}

func (h *Hub) leaveLocked(conn domain.ConnID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast sends an event to every connection in a room
func (h *Hub) Broadcast(room, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Error("could not marshal event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.rooms[room] {
		if c, ok := h.clients[id]; ok && !c.enqueue(msg) {
			h.logger.Warn("send buffer full, dropping event", "conn", id, "event", event)
		}
	}
}

// Unicast sends an event to one connection
func (h *Hub) Unicast(conn domain.ConnID, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Error("could not marshal event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if ok && !c.enqueue(msg) {
		h.logger.Warn("send buffer full, dropping event", "conn", conn, "event", event)
	}
}

// ============ Lifecycle ============

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of connections subscribed to a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) dispatch(c *client, msg inboundMessage) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler == nil {
		h.logger.Warn("no handler for event", "conn", c.id, "event", msg.Event)
		return
	}
	handler.HandleEvent(c.id, msg.Event, msg.Args)
}

// unregister forgets a client and its rooms, then reports the drop
func (h *Hub) unregister(c *client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for room := range h.rooms {
		h.leaveLocked(c.id, room)
	}
	handler := h.handler
	h.mu.Unlock()

	h.logger.Debug("client disconnected", "conn", c.id, "reason", reason)
	if handler != nil {
		handler.Disconnected(c.id, reason)
	}
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundMessage{Event: event, Data: payload})
}
