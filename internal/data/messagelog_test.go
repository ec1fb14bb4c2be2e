package data

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
)

func openLogs(t *testing.T) map[string]repo.MessageLogRepo {
	t.Helper()
	sqliteLog, err := NewMessageLogRepo(LogTypeSQLite, filepath.Join(t.TempDir(), "logs", "messages.db"))
	require.NoError(t, err)
	buntLog, err := NewMessageLogRepo(LogTypeBuntDB, ":memory:")
	require.NoError(t, err)

	logs := map[string]repo.MessageLogRepo{
		LogTypeSQLite: sqliteLog,
		LogTypeBuntDB: buntLog,
	}
	t.Cleanup(func() {
		for _, l := range logs {
			l.Close()
		}
	})
	return logs
}

func TestMessageLog_AppendAssignsPerRoomSequence(t *testing.T) {
	ctx := context.Background()
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				rec := &domain.MessageRecord{ID: fmt.Sprintf("a%d", i), Sender: "alice", Text: fmt.Sprintf("msg %d", i), Timestamp: "10:00 AM"}
				require.NoError(t, log.Append(ctx, "ROOM", rec))
				assert.Equal(t, int64(i), rec.Seq)
			}
			other := &domain.MessageRecord{ID: "b1", Sender: "bob", Text: "elsewhere", TestMode: true}
			require.NoError(t, log.Append(ctx, "OTHR", other))
			assert.Equal(t, int64(1), other.Seq)

			history, err := log.History(ctx, "ROOM", 0)
			require.NoError(t, err)
			require.Len(t, history, 3)
			for i, rec := range history {
				assert.Equal(t, int64(i+1), rec.Seq)
				assert.Equal(t, fmt.Sprintf("msg %d", i+1), rec.Text)
				assert.Equal(t, "alice", rec.Sender)
				assert.False(t, rec.CreatedAt.IsZero())
			}

			last, err := log.History(ctx, "ROOM", 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "msg 2", last[0].Text)
			assert.Equal(t, "msg 3", last[1].Text)

			others, err := log.History(ctx, "OTHR", 10)
			require.NoError(t, err)
			require.Len(t, others, 1)
			assert.True(t, others[0].TestMode)

			none, err := log.History(ctx, "NONE", 10)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestMessageLog_ConcurrentAppendsGetDistinctSeqs(t *testing.T) {
	ctx := context.Background()
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, log.Append(ctx, "ROOM", &domain.MessageRecord{ID: fmt.Sprint(i), Sender: "s", Text: "t"}))
				}(i)
			}
			wg.Wait()

			history, err := log.History(ctx, "ROOM", 0)
			require.NoError(t, err)
			require.Len(t, history, 20)
			for i, rec := range history {
				assert.Equal(t, int64(i+1), rec.Seq)
			}
		})
	}
}

func TestMessageLog_RecordLobby(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, log := range openLogs(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, log.RecordLobby(ctx, &domain.LobbyRecord{Code: "AAAA", Host: "ms-lee", CreatedAt: base}))
			require.NoError(t, log.RecordLobby(ctx, &domain.LobbyRecord{Code: "BBBB", Host: "mr-kim", CreatedAt: base.Add(time.Hour)}))
			require.NoError(t, log.RecordLobby(ctx, &domain.LobbyRecord{Code: "AAAA", Host: "ms-lee", CreatedAt: base, Topic: "volcanoes", BotType: "collaborative"}))

			lobbies, err := log.Lobbies(ctx)
			require.NoError(t, err)
			require.Len(t, lobbies, 2)
			assert.Equal(t, "BBBB", lobbies[0].Code)
			assert.Equal(t, "AAAA", lobbies[1].Code)
			assert.Equal(t, "volcanoes", lobbies[1].Topic)
			assert.Equal(t, "collaborative", lobbies[1].BotType)
		})
	}
}

func TestNewMessageLogRepo_Types(t *testing.T) {
	log, err := NewMessageLogRepo(LogTypeNone, "")
	require.NoError(t, err)
	assert.NoError(t, log.Append(context.Background(), "ROOM", &domain.MessageRecord{}))
	history, err := log.History(context.Background(), "ROOM", 10)
	assert.NoError(t, err)
	assert.Empty(t, history)

	_, err = NewMessageLogRepo("postgres", "")
	assert.Error(t, err)
}
