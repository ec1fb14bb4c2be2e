package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/usecase"
	"github.com/chatzot/facilitator/internal/data"
	"github.com/chatzot/facilitator/internal/service"
)

type openingCompletion struct{}

func (openingCompletion) Complete(ctx context.Context, msgs []domain.PromptMessage) (string, error) {
	return "What is half of a half?", nil
}

func (r *recordingTransport) errorsFor(conn domain.ConnID) []domain.ErrorPayload {
	var out []domain.ErrorPayload
	for _, s := range r.Sent() {
		if s.conn == conn && s.event == domain.EventError {
			out = append(out, s.payload.(domain.ErrorPayload))
		}
	}
	return out
}

// openLobby creates a lobby with one member, partitions it and waits for the
// facilitator to come up. It returns the lobby and chatroom codes.
func openLobby(t *testing.T, svc *service.SessionService, host, member domain.ConnID) (string, string) {
	t.Helper()
	code, err := svc.CreateLobby(host, "host-"+string(host))
	require.NoError(t, err)
	require.NoError(t, svc.JoinLobby(member, code, "alice"))
	require.NoError(t, svc.ConfigureSession(code, domain.ChatSettings{
		BotName:             "Zot",
		Topic:               "fractions",
		ChatLengthMinutes:   10,
		ParticipantsPerRoom: 3,
	}))
	rooms, err := svc.Partition(code)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	var room string
	for r := range rooms {
		room = r
	}
	require.Eventually(t, func() bool {
		status, err := svc.FacilitatorStatus(code, room)
		return err == nil && status.State == domain.StateActive.String()
	}, 2*time.Second, 5*time.Millisecond)
	return code, room
}

func aliceMessages(t *testing.T, svc *service.SessionService, code, room string) int {
	t.Helper()
	status, err := svc.FacilitatorStatus(code, room)
	require.NoError(t, err)
	for _, rec := range status.Participation {
		if rec.Username == "alice" {
			return rec.MessageCount
		}
	}
	return 0
}

func TestEventRouter_ChatMessageStaysInOwnLobby(t *testing.T) {
	clock := clockwork.NewFakeClock()
	logger := hclog.NewNullLogger()
	transport := &recordingTransport{}
	logRepo, err := data.NewMessageLogRepo(data.LogTypeNone, "")
	require.NoError(t, err)
	logs := service.NewLogWriter(logRepo, logger, 0)
	logs.Start()

	svc := service.NewSessionService(usecase.NewRoomDirectory(clock, logger), openingCompletion{}, transport, logs, clock, logger,
		service.SessionConfig{Prompts: usecase.DefaultPromptSet, InactivityInterval: time.Hour})
	t.Cleanup(func() {
		svc.Shutdown()
		logs.Stop()
	})
	router := NewEventRouter(svc, transport, clock, logger, time.Second)

	lobbyA, roomA := openLobby(t, svc, "host-a", "alice-a")
	lobbyB, roomB := openLobby(t, svc, "host-b", "alice-b")

	args, err := json.Marshal(map[string]string{"lobby": lobbyB, "chatroom": roomB, "text": "I am the other alice"})
	require.NoError(t, err)
	router.HandleEvent("alice-a", EventChatMessage, args)

	errs := transport.errorsFor("alice-a")
	require.Len(t, errs, 1)
	assert.Equal(t, EventChatMessage, errs[0].Op)
	assert.Contains(t, errs[0].Message, domain.ErrNotMember.Error())
	assert.Zero(t, aliceMessages(t, svc, lobbyB, roomB))

	args, err = json.Marshal(map[string]string{"chatroom": roomA, "text": "one half"})
	require.NoError(t, err)
	router.HandleEvent("alice-a", EventChatMessage, args)

	assert.Len(t, transport.errorsFor("alice-a"), 1)
	assert.Equal(t, 1, aliceMessages(t, svc, lobbyA, roomA))
	assert.Zero(t, aliceMessages(t, svc, lobbyB, roomB))
}
