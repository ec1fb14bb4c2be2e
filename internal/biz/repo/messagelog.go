package repo

import (
	"context"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// MessageLogRepo is the append-only message log.
// Persistence is best-effort: callers log failures and move on.
type MessageLogRepo interface {
	// Append stores a record under the room, assigning the next sequence number
	Append(ctx context.Context, room string, rec *domain.MessageRecord) error

	// RecordLobby creates or updates the lobby summary
	RecordLobby(ctx context.Context, rec *domain.LobbyRecord) error

	// Lobbies returns recorded lobbies, newest first
	Lobbies(ctx context.Context) ([]*domain.LobbyRecord, error)

	// History returns the last limit records of a room, oldest first
	History(ctx context.Context, room string, limit int) ([]*domain.MessageRecord, error)

	// Close releases the underlying storage
	Close() error
}
