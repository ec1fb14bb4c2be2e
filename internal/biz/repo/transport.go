package repo

import "github.com/chatzot/facilitator/internal/biz/domain"

// TransportRepo is the pub/sub room primitive the core talks through.
// Delivery within a room is ordered; the transport owns connections.
type TransportRepo interface {
	// Join subscribes a connection to a room
	Join(conn domain.ConnID, room string)

	// Leave unsubscribes a connection from a room
	Leave(conn domain.ConnID, room string)

	// Broadcast sends an event to every connection in a room
	Broadcast(room, event string, payload any)

	// Unicast sends an event to one connection
	Unicast(conn domain.ConnID, event string, payload any)
}
