package usecase

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// DefaultMaxMembers caps the size of a lobby
const DefaultMaxMembers = 300

// Chatroom is a fixed small group of lobby members with its own facilitator
type Chatroom struct {
	Code      string
	Lobby     string
	Members   []string
	CreatedAt time.Time

	mu          sync.RWMutex
	facilitator *Facilitator
}

// HasMember reports whether username belongs to the chatroom
func (c *Chatroom) HasMember(username string) bool {
	for _, m := range c.Members {
		if m == username {
			return true
		}
	}
	return false
}

// AttachFacilitator sets the chatroom facilitator
func (c *Chatroom) AttachFacilitator(f *Facilitator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facilitator = f
}

// Facilitator returns the chatroom facilitator, or nil before one is attached
func (c *Chatroom) Facilitator() *Facilitator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.facilitator
}

// Lobby owns the membership of one class session, its chatrooms and its countdown
type Lobby struct {
	mu          sync.Mutex
	code        string
	host        domain.HostRef
	createdAt   time.Time
	members     map[string]*domain.Member
	joinOrder   []string
	chatrooms   []*Chatroom
	settings    *domain.ChatSettings
	partitioned bool
	maxMembers  int
	rng         *rand.Rand
	codes       chatroomCodes
	clock       clockwork.Clock
	timer       *SessionTimer
}

// chatroomCodes hands out chatroom codes from the directory's code space
type chatroomCodes struct {
	reserve func() (string, error)
	release func(codes []string)
}

func newLobby(code string, host domain.HostRef, clock clockwork.Clock, maxMembers int, rng *rand.Rand, codes chatroomCodes) *Lobby {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	return &Lobby{
		code:        code,
		host:        host,
		createdAt:   clock.Now(),
		members:     make(map[string]*domain.Member),
		maxMembers:  maxMembers,
		rng:         rng,
		codes:       codes,
		clock:       clock,
		timer:       NewSessionTimer(clock),
	}
}

// Code returns the lobby code
func (l *Lobby) Code() string {
	return l.code
}

// Host returns the host reference
func (l *Lobby) Host() domain.HostRef {
	return l.host
}

// CreatedAt returns the creation time
func (l *Lobby) CreatedAt() time.Time {
	return l.createdAt
}

// AddMember adds a participant before partition. Usernames are compared exactly.
func (l *Lobby) AddMember(username string, conn domain.ConnID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.partitioned {
		return fmt.Errorf("join %s: %w", l.code, domain.ErrAlreadyPartitioned)
	}
	if _, ok := l.members[username]; ok {
		return fmt.Errorf("join %s as %q: %w", l.code, username, domain.ErrDuplicateUsername)
	}
	if len(l.members) >= l.maxMembers {
		return fmt.Errorf("join %s: %w", l.code, domain.ErrLobbyFull)
	}
	l.members[username] = &domain.Member{Username: username, Conn: conn, Active: true}
	l.joinOrder = append(l.joinOrder, username)
	return nil
}

// RemoveMember removes a participant and reports whether it was present.
// Tearing the lobby down when it empties is up to the caller.
func (l *Lobby) RemoveMember(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.members[username]; !ok {
		return false
	}
	delete(l.members, username)
	for i, u := range l.joinOrder {
		if u == username {
			l.joinOrder = append(l.joinOrder[:i], l.joinOrder[i+1:]...)
			break
		}
	}
	return true
}

// Deactivate marks a participant as gone while keeping chatroom membership intact
func (l *Lobby) Deactivate(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.members[username]
	if !ok || !m.Active {
		return false
	}
	m.Active = false
	return true
}

// Member returns a copy of a member record
func (l *Lobby) Member(username string) (domain.Member, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.members[username]
	if !ok {
		return domain.Member{}, false
	}
	return *m, true
}

// Members returns member copies in join order
func (l *Lobby) Members() []domain.Member {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Member, 0, len(l.joinOrder))
	for _, u := range l.joinOrder {
		out = append(out, *l.members[u])
	}
	return out
}

// MemberCount returns the number of members, active or not
func (l *Lobby) MemberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.members)
}

// ActiveCount returns the number of active members
func (l *Lobby) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.members {
		if m.Active {
			n++
		}
	}
	return n
}

// Configure stores the chat settings. Settings are frozen after partition.
func (l *Lobby) Configure(settings domain.ChatSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("configure %s: %w", l.code, err)
	}
	settings = settings.Normalize()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.partitioned {
		return fmt.Errorf("configure %s: %w", l.code, domain.ErrAlreadyPartitioned)
	}
	l.settings = &settings
	return nil
}

// Settings returns the chat settings, if configured
func (l *Lobby) Settings() (domain.ChatSettings, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settings == nil {
		return domain.ChatSettings{}, false
	}
	return *l.settings, true
}

// Partitioned reports whether chatrooms were created
func (l *Lobby) Partitioned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.partitioned
}

// PartitionIntoChatrooms shuffles the active members and deals them round-robin
// into ceil(N/targetSize) chatrooms. A lobby is partitioned at most once; a
// lobby without members yields no chatrooms and stays unpartitioned.
func (l *Lobby) PartitionIntoChatrooms(targetSize int) ([]*Chatroom, error) {
	if targetSize <= 0 {
		targetSize = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.partitioned {
		return nil, fmt.Errorf("partition %s: %w", l.code, domain.ErrAlreadyPartitioned)
	}

	usernames := make([]string, 0, len(l.joinOrder))
	for _, u := range l.joinOrder {
		if l.members[u].Active {
			usernames = append(usernames, u)
		}
	}
	if len(usernames) == 0 {
		return nil, nil
	}

	l.rng.Shuffle(len(usernames), func(i, j int) {
		usernames[i], usernames[j] = usernames[j], usernames[i]
	})

	count := (len(usernames) + targetSize - 1) / targetSize
	rooms := make([]*Chatroom, count)
	now := l.clock.Now()
	for i := range rooms {
		code, err := l.codes.reserve()
		if err != nil {
			if l.codes.release != nil {
				reserved := make([]string, 0, i)
				for _, r := range rooms[:i] {
					reserved = append(reserved, r.Code)
				}
				l.codes.release(reserved)
			}
			return nil, fmt.Errorf("partition %s: %w", l.code, err)
		}
		rooms[i] = &Chatroom{Code: code, Lobby: l.code, CreatedAt: now}
	}
	for i, u := range usernames {
		room := rooms[i%count]
		room.Members = append(room.Members, u)
	}

	l.chatrooms = rooms
	l.partitioned = true
	return append([]*Chatroom(nil), rooms...), nil
}

// Chatrooms returns the chatrooms in creation order
func (l *Lobby) Chatrooms() []*Chatroom {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Chatroom(nil), l.chatrooms...)
}

// Chatroom looks up a chatroom of this lobby
func (l *Lobby) Chatroom(code string) (*Chatroom, error) {
	code = normalizeCode(code)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.chatrooms {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, fmt.Errorf("chatroom %s in lobby %s: %w", code, l.code, domain.ErrChatroomNotFound)
}

// ChatroomMap returns chatroom code -> members
func (l *Lobby) ChatroomMap() map[string][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string][]string, len(l.chatrooms))
	for _, c := range l.chatrooms {
		out[c.Code] = append([]string(nil), c.Members...)
	}
	return out
}

// StartSessionTimer starts the lobby countdown, replacing any running one
func (l *Lobby) StartSessionTimer(d time.Duration, onTick func(remaining int), onExpire func()) error {
	return l.timer.Restart(int(d/time.Second), onTick, onExpire)
}

// StopSessionTimer cancels the lobby countdown
func (l *Lobby) StopSessionTimer() {
	l.timer.Stop()
}

// SessionRemaining returns the countdown seconds left
func (l *Lobby) SessionRemaining() int {
	return l.timer.Remaining()
}

// Close stops the countdown and every facilitator
func (l *Lobby) Close() {
	l.timer.Stop()
	for _, c := range l.Chatrooms() {
		if f := c.Facilitator(); f != nil {
			f.Close()
		}
	}
}

// Summary is a read-only view for operators
type Summary struct {
	Code        string               `json:"code"`
	Host        string               `json:"host"`
	CreatedAt   time.Time            `json:"created_at"`
	Members     []domain.Member      `json:"members"`
	Settings    *domain.ChatSettings `json:"settings,omitempty"`
	Chatrooms   map[string][]string  `json:"chatrooms"`
	Remaining   int                  `json:"remaining_seconds"`
	Partitioned bool                 `json:"partitioned"`
}

// Summary returns an operator view of the lobby
func (l *Lobby) Summary() Summary {
	s := Summary{
		Code:      l.code,
		Host:      l.host.Username,
		CreatedAt: l.createdAt,
		Members:   l.Members(),
		Chatrooms: l.ChatroomMap(),
		Remaining: l.SessionRemaining(),
	}
	if settings, ok := l.Settings(); ok {
		s.Settings = &settings
	}
	s.Partitioned = l.Partitioned()
	return s
}

func sortLobbies(lobbies []*Lobby) {
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].code < lobbies[j].code })
}
