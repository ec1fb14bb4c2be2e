package usecase

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

func newTestDirectory(opts ...DirectoryOption) *RoomDirectory {
	opts = append([]DirectoryOption{WithRand(rand.New(rand.NewSource(1)))}, opts...)
	return NewRoomDirectory(clockwork.NewFakeClock(), hclog.NewNullLogger(), opts...)
}

func TestRoomDirectory_CreateAndLookup(t *testing.T) {
	d := newTestDirectory()

	lobby, err := d.CreateLobby("ms-lee", "c0")
	require.NoError(t, err)
	assert.Len(t, lobby.Code(), codeLength)
	assert.Equal(t, "ms-lee", lobby.Host().Username)

	got, err := d.GetLobby("  " + strings.ToLower(lobby.Code()) + " ")
	require.NoError(t, err)
	assert.Same(t, lobby, got)

	_, err = d.GetLobby("ZZZZZ")
	assert.ErrorIs(t, err, domain.ErrLobbyNotFound)
}

func TestRoomDirectory_CodesAreUnique(t *testing.T) {
	d := newTestDirectory()
	seen := make(map[string]bool)

	for i := 0; i < 200; i++ {
		lobby, err := d.CreateLobby("host", "")
		require.NoError(t, err)
		assert.False(t, seen[lobby.Code()], "duplicate code %s", lobby.Code())
		seen[lobby.Code()] = true
	}
	assert.Equal(t, 200, d.Len())
}

func TestRoomDirectory_ExhaustedCodes(t *testing.T) {
	d := newTestDirectory(WithCodeGenerator(func() string { return "SAME" }))

	_, err := d.CreateLobby("first", "")
	require.NoError(t, err)
	_, err = d.CreateLobby("second", "")
	assert.ErrorIs(t, err, domain.ErrResourceExhausted)
	assert.Equal(t, 1, d.Len())
}

func TestRoomDirectory_ChatroomsShareTheCodeSpace(t *testing.T) {
	d := newTestDirectory()
	lobby, err := d.CreateLobby("host", "")
	require.NoError(t, err)
	for _, u := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, lobby.AddMember(u, ""))
	}

	rooms, err := lobby.PartitionIntoChatrooms(2)
	require.NoError(t, err)
	require.Len(t, rooms, 3)

	codes := map[string]bool{lobby.Code(): true}
	for _, r := range rooms {
		assert.False(t, codes[r.Code])
		codes[r.Code] = true

		owner, room, err := d.FindChatroom(strings.ToLower(r.Code))
		require.NoError(t, err)
		assert.Same(t, lobby, owner)
		assert.Same(t, r, room)
	}

	_, err = d.GetLobby(rooms[0].Code)
	assert.ErrorIs(t, err, domain.ErrLobbyNotFound, "chatroom codes are not lobby codes")
	_, _, err = d.FindChatroom(lobby.Code())
	assert.ErrorIs(t, err, domain.ErrChatroomNotFound)
}

func TestRoomDirectory_FailedPartitionReleasesCodes(t *testing.T) {
	codes := []string{"LOBY", "R001", "R001", "R001"}
	i := 0
	d := newTestDirectory(WithCodeGenerator(func() string {
		code := codes[i%len(codes)]
		i++
		return code
	}))
	lobby, err := d.CreateLobby("host", "")
	require.NoError(t, err)
	for _, u := range []string{"a", "b", "c"} {
		require.NoError(t, lobby.AddMember(u, ""))
	}

	_, err = lobby.PartitionIntoChatrooms(1)
	require.ErrorIs(t, err, domain.ErrResourceExhausted)
	assert.False(t, lobby.Partitioned())
	assert.Empty(t, lobby.Chatrooms())

	d.mu.RLock()
	assert.Empty(t, d.chatrooms, "codes reserved before the failure are released")
	d.mu.RUnlock()
}

func TestRoomDirectory_RemoveLobby(t *testing.T) {
	d := newTestDirectory()
	lobby, err := d.CreateLobby("host", "")
	require.NoError(t, err)
	require.NoError(t, lobby.AddMember("alice", ""))
	rooms, err := lobby.PartitionIntoChatrooms(4)
	require.NoError(t, err)

	d.RemoveLobby(lobby.Code())
	d.RemoveLobby(lobby.Code())
	d.RemoveLobby("NOPE")

	assert.Zero(t, d.Len())
	_, err = d.GetLobby(lobby.Code())
	assert.ErrorIs(t, err, domain.ErrLobbyNotFound)
	_, _, err = d.FindChatroom(rooms[0].Code)
	assert.ErrorIs(t, err, domain.ErrChatroomNotFound)
}

func TestRoomDirectory_LobbiesSorted(t *testing.T) {
	codes := []string{"CCCC", "AAAA", "BBBB"}
	i := 0
	d := newTestDirectory(WithCodeGenerator(func() string {
		c := codes[i%len(codes)]
		i++
		return c
	}))
	for range codes {
		_, err := d.CreateLobby("host", "")
		require.NoError(t, err)
	}

	var got []string
	for _, l := range d.Lobbies() {
		got = append(got, l.Code())
	}
	assert.Equal(t, []string{"AAAA", "BBBB", "CCCC"}, got)
}
