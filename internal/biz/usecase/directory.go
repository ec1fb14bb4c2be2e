package usecase

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 4
	// 36^4 codes; collisions stay rare far beyond realistic lobby counts
	maxCodeAttempts = 10
)

// DirectoryOption configures a RoomDirectory
type DirectoryOption func(*RoomDirectory)

// WithRand sets the randomness source used for codes and shuffles
func WithRand(r *rand.Rand) DirectoryOption {
	return func(d *RoomDirectory) { d.rng = r }
}

// WithMaxMembers caps the size of every lobby
func WithMaxMembers(n int) DirectoryOption {
	return func(d *RoomDirectory) { d.maxMembers = n }
}

// WithCodeGenerator replaces random code generation
func WithCodeGenerator(gen func() string) DirectoryOption {
	return func(d *RoomDirectory) { d.generate = gen }
}

// RoomDirectory maps short codes to lobbies and chatrooms. It is the only
// structure shared between rooms.
type RoomDirectory struct {
	mu         sync.RWMutex
	clock      clockwork.Clock
	logger     hclog.Logger
	rng        *rand.Rand
	generate   func() string
	maxMembers int
	lobbies    map[string]*Lobby
	chatrooms  map[string]string // chatroom code -> lobby code
}

// NewRoomDirectory creates an empty directory
func NewRoomDirectory(clock clockwork.Clock, logger hclog.Logger, opts ...DirectoryOption) *RoomDirectory {
	d := &RoomDirectory{
		clock:      clock,
		logger:     logger,
		maxMembers: DefaultMaxMembers,
		lobbies:    make(map[string]*Lobby),
		chatrooms:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	if d.generate == nil {
		d.generate = d.randomCode
	}
	return d
}

// randomCode must be called with d.mu held
func (d *RoomDirectory) randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[d.rng.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// nextCodeLocked returns an unused code, retrying a bounded number of times
func (d *RoomDirectory) nextCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := normalizeCode(d.generate())
		if _, ok := d.lobbies[code]; ok {
			continue
		}
		if _, ok := d.chatrooms[code]; ok {
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("after %d attempts: %w", maxCodeAttempts, domain.ErrResourceExhausted)
}

// CreateLobby registers a new lobby hosted by hostUsername
func (d *RoomDirectory) CreateLobby(hostUsername string, hostConn domain.ConnID) (*Lobby, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, err := d.nextCodeLocked()
	if err != nil {
		return nil, fmt.Errorf("create lobby: %w", err)
	}
	rng := rand.New(rand.NewSource(d.rng.Int63()))
	host := domain.HostRef{Username: hostUsername, Conn: hostConn}
	lobby := newLobby(code, host, d.clock, d.maxMembers, rng, chatroomCodes{
		reserve: func() (string, error) { return d.reserveChatroomCode(code) },
		release: d.releaseChatroomCodes,
	})
	d.lobbies[code] = lobby
	d.logger.Info("lobby created", "lobby", code, "host", hostUsername)
	return lobby, nil
}

func (d *RoomDirectory) reserveChatroomCode(lobbyCode string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, err := d.nextCodeLocked()
	if err != nil {
		return "", fmt.Errorf("reserve chatroom code: %w", err)
	}
	d.chatrooms[code] = lobbyCode
	return code, nil
}

func (d *RoomDirectory) releaseChatroomCodes(codes []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, code := range codes {
		delete(d.chatrooms, code)
	}
}

// GetLobby looks a lobby up by code, ignoring case and surrounding space
func (d *RoomDirectory) GetLobby(code string) (*Lobby, error) {
	code = normalizeCode(code)
	d.mu.RLock()
	defer d.mu.RUnlock()

	lobby, ok := d.lobbies[code]
	if !ok {
		return nil, fmt.Errorf("lobby %q: %w", code, domain.ErrLobbyNotFound)
	}
	return lobby, nil
}

// FindChatroom resolves a chatroom code to its lobby and chatroom
func (d *RoomDirectory) FindChatroom(code string) (*Lobby, *Chatroom, error) {
	code = normalizeCode(code)
	d.mu.RLock()
	lobbyCode, ok := d.chatrooms[code]
	lobby := d.lobbies[lobbyCode]
	d.mu.RUnlock()

	if !ok || lobby == nil {
		return nil, nil, fmt.Errorf("chatroom %q: %w", code, domain.ErrChatroomNotFound)
	}
	room, err := lobby.Chatroom(code)
	if err != nil {
		return nil, nil, err
	}
	return lobby, room, nil
}

// RemoveLobby unregisters a lobby and its chatroom codes; absent codes are ignored
func (d *RoomDirectory) RemoveLobby(code string) {
	code = normalizeCode(code)
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.lobbies[code]; !ok {
		return
	}
	delete(d.lobbies, code)
	for room, owner := range d.chatrooms {
		if owner == code {
			delete(d.chatrooms, room)
		}
	}
	d.logger.Info("lobby removed", "lobby", code)
}

// Lobbies returns all lobbies ordered by code
func (d *RoomDirectory) Lobbies() []*Lobby {
	d.mu.RLock()
	out := make([]*Lobby, 0, len(d.lobbies))
	for _, l := range d.lobbies {
		out = append(out, l)
	}
	d.mu.RUnlock()
	sortLobbies(out)
	return out
}

// Len returns the number of lobbies
func (d *RoomDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.lobbies)
}
