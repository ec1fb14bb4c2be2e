package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
	"github.com/chatzot/facilitator/llm"
)

// Message log backends
const (
	LogTypeSQLite = "sqlite"
	LogTypeBuntDB = "buntdb"
	LogTypeNone   = "none"
)

// Repositories contains all repositories
type Repositories struct {
	Completion repo.CompletionRepo
	MessageLog repo.MessageLogRepo
}

// NewRepositories creates all repositories
func NewRepositories(client *llm.Client, logType, logPath string) (*Repositories, error) {
	messageLog, err := NewMessageLogRepo(logType, logPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Completion: NewCompletionRepo(client),
		MessageLog: messageLog,
	}, nil
}

// Close releases storage
func (r *Repositories) Close() error {
	if r.MessageLog == nil {
		return nil
	}
	return r.MessageLog.Close()
}

// NewMessageLogRepo opens the configured message log backend
func NewMessageLogRepo(logType, path string) (repo.MessageLogRepo, error) {
	switch strings.ToLower(logType) {
	case "", LogTypeSQLite:
		return NewSQLiteLogRepo(path)
	case LogTypeBuntDB:
		return NewBuntLogRepo(path)
	case LogTypeNone:
		return noopLogRepo{}, nil
	default:
		return nil, fmt.Errorf("unknown message log type %q", logType)
	}
}

// noopLogRepo discards everything
type noopLogRepo struct{}

func (noopLogRepo) Append(ctx context.Context, room string, rec *domain.MessageRecord) error {
	return nil
}

func (noopLogRepo) RecordLobby(ctx context.Context, rec *domain.LobbyRecord) error {
	return nil
}

func (noopLogRepo) Lobbies(ctx context.Context) ([]*domain.LobbyRecord, error) {
	return nil, nil
}

func (noopLogRepo) History(ctx context.Context, room string, limit int) ([]*domain.MessageRecord, error) {
	return nil, nil
}

func (noopLogRepo) Close() error {
	return nil
}
