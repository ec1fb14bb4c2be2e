package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// client is a middleman between one websocket connection and the hub
type client struct {
	id   domain.ConnID
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; done ends the write loop.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, id domain.ConnID, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendChannelSize),
		done: make(chan struct{}),
	}
}

// enqueue queues a message without blocking and reports whether it was accepted
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readLoop pumps messages from the websocket connection to the hub. All
// reads happen on this goroutine.
func (c *client) readLoop() {
	reason := "closed"
	defer func() {
		c.close()
		c.hub.unregister(c, reason)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("unexpected close", "conn", c.id, "error", err)
			}
			reason = err.Error()
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			c.hub.Unicast(c.id, domain.EventError, domain.ErrorPayload{Op: "decode", Message: "malformed event"})
			continue
		}
		c.hub.dispatch(c, msg)
	}
}

// writeLoop pumps messages from the hub to the websocket connection. All
// writes happen on this goroutine.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
