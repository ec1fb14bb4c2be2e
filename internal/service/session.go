package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
	"github.com/chatzot/facilitator/internal/biz/usecase"
)

// DefaultConclusionLeadMinutes is how long before the end chatrooms are asked to wrap up
const DefaultConclusionLeadMinutes = 1

// SessionConfig holds the facilitator tuning shared by every chatroom
type SessionConfig struct {
	Prompts                  usecase.PromptSet
	ClassificationWindow     int
	CompletionTimeout        time.Duration
	InterventionDelay        time.Duration
	InactivityInterval       time.Duration
	ConclusionLeadMinutes    int
	ParticipationMinMessages int
}

type connRef struct {
	lobby    string
	username string
	chatroom string
	host     bool
}

// SessionService is the event surface of the facilitator: it turns
// connection-level requests into lobby, chatroom and facilitator operations
// and fans the results out through the transport.
type SessionService struct {
	directory  *usecase.RoomDirectory
	completion repo.CompletionRepo
	transport  repo.TransportRepo
	logs       *LogWriter
	clock      clockwork.Clock
	logger     hclog.Logger
	cfg        SessionConfig

	mu    sync.Mutex
	conns map[domain.ConnID]*connRef
}

// NewSessionService creates a new session service
func NewSessionService(
	directory *usecase.RoomDirectory,
	completion repo.CompletionRepo,
	transport repo.TransportRepo,
	logs *LogWriter,
	clock clockwork.Clock,
	logger hclog.Logger,
	cfg SessionConfig,
) *SessionService {
	if cfg.ConclusionLeadMinutes <= 0 {
		cfg.ConclusionLeadMinutes = DefaultConclusionLeadMinutes
	}
	return &SessionService{
		directory:  directory,
		completion: completion,
		transport:  transport,
		logs:       logs,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
		conns:      make(map[domain.ConnID]*connRef),
	}
}

// ============ Lobby lifecycle ============

// CreateLobby opens a lobby hosted by the connection and returns its code
func (s *SessionService) CreateLobby(conn domain.ConnID, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("create lobby: host name is required")
	}

	if err := s.unbound(conn); err != nil {
		return "", fmt.Errorf("create lobby: %w", err)
	}

	lobby, err := s.directory.CreateLobby(host, conn)
	if err != nil {
		return "", err
	}
	code := lobby.Code()

	s.transport.Join(conn, code)
	s.track(conn, &connRef{lobby: code, username: host, host: true})
	s.transport.Unicast(conn, domain.EventLobbyCreated, domain.LobbyEvent{Lobby: code, Host: host})
	s.logs.RecordLobby(&domain.LobbyRecord{Code: code, Host: host, CreatedAt: lobby.CreatedAt()})
	return code, nil
}

// JoinLobby adds a participant to a lobby that has not been partitioned yet
func (s *SessionService) JoinLobby(conn domain.ConnID, code, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("join lobby: username is required")
	}

	if err := s.unbound(conn); err != nil {
		return fmt.Errorf("join lobby %s: %w", code, err)
	}

	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return err
	}
	if err := lobby.AddMember(username, conn); err != nil {
		return err
	}
	code = lobby.Code()

	s.transport.Join(conn, code)
	s.track(conn, &connRef{lobby: code, username: username})
	s.transport.Unicast(conn, domain.EventJoinedLobby, domain.LobbyEvent{Lobby: code, Username: username, Host: lobby.Host().Username})
	s.transport.Broadcast(code, domain.EventUserJoinedLobby, domain.LobbyEvent{Lobby: code, Username: username})
	s.broadcastUserList(lobby)
	s.logger.Debug("member joined", "lobby", code, "username", username)
	return nil
}

// ConfigureSession stores the host's chat settings
func (s *SessionService) ConfigureSession(code string, settings domain.ChatSettings) error {
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return err
	}
	if err := lobby.Configure(settings); err != nil {
		return err
	}

	stored, _ := lobby.Settings()
	s.logs.RecordLobby(&domain.LobbyRecord{
		Code:      lobby.Code(),
		Host:      lobby.Host().Username,
		CreatedAt: lobby.CreatedAt(),
		TestMode:  stored.TestMode,
		BotType:   stored.BotType,
		Topic:     stored.Topic,
	})
	s.transport.Broadcast(lobby.Code(), domain.EventChatData, stored)
	return nil
}

// RequestChatData sends the lobby settings to one connection
func (s *SessionService) RequestChatData(conn domain.ConnID, code string) error {
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return err
	}
	settings, ok := lobby.Settings()
	if !ok {
		return fmt.Errorf("chat data %s: %w", lobby.Code(), domain.ErrSettingsMissing)
	}
	s.transport.Unicast(conn, domain.EventChatData, settings)
	return nil
}

// RequestUserList sends the lobby member list to one connection
func (s *SessionService) RequestUserList(conn domain.ConnID, code string) error {
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return err
	}
	s.transport.Unicast(conn, domain.EventUserList, s.userList(lobby))
	return nil
}

// Partition splits the lobby into chatrooms, attaches a facilitator to each
// and starts the session countdown. Facilitators come up in the background.
func (s *SessionService) Partition(code string) (map[string][]string, error) {
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return nil, err
	}
	settings, ok := lobby.Settings()
	if !ok {
		return nil, fmt.Errorf("partition %s: %w", lobby.Code(), domain.ErrSettingsMissing)
	}

	rooms, err := lobby.PartitionIntoChatrooms(settings.ParticipantsPerRoom)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, fmt.Errorf("partition %s: %w", lobby.Code(), domain.ErrNoMembers)
	}

	for _, room := range rooms {
		f := usecase.NewFacilitator(s.facilitatorConfig(room, settings), s.completion, s.clock,
			s.logger.Named("facilitator"), s.replySink(settings))
		room.AttachFacilitator(f)

		for _, username := range room.Members {
			member, ok := lobby.Member(username)
			if !ok {
				continue
			}
			s.transport.Join(member.Conn, room.Code)
			s.setChatroom(member.Conn, room.Code)
			s.transport.Unicast(member.Conn, domain.EventJoinedChatroom, domain.JoinedChatroom{
				Lobby:    lobby.Code(),
				Chatroom: room.Code,
				Members:  room.Members,
				Settings: settings,
			})
		}
	}

	chatrooms := lobby.ChatroomMap()
	s.transport.Unicast(lobby.Host().Conn, domain.EventCreateChatroomsResponse, chatrooms)
	s.logger.Info("lobby partitioned", "lobby", lobby.Code(), "chatrooms", len(rooms))

	go s.initializeAll(lobby.Code(), settings, rooms)

	if err := s.startTimer(lobby, settings); err != nil {
		s.logger.Warn("session timer not started", "lobby", lobby.Code(), "error", err)
	}
	return chatrooms, nil
}

func (s *SessionService) facilitatorConfig(room *usecase.Chatroom, settings domain.ChatSettings) usecase.FacilitatorConfig {
	return usecase.FacilitatorConfig{
		Chatroom:                 room.Code,
		Members:                  room.Members,
		Settings:                 settings,
		Prompts:                  s.cfg.Prompts,
		ClassificationWindow:     s.cfg.ClassificationWindow,
		CompletionTimeout:        s.cfg.CompletionTimeout,
		InterventionDelay:        s.cfg.InterventionDelay,
		InactivityInterval:       s.cfg.InactivityInterval,
		ParticipationMinMessages: s.cfg.ParticipationMinMessages,
	}
}

func (s *SessionService) initializeAll(code string, settings domain.ChatSettings, rooms []*usecase.Chatroom) {
	var wg sync.WaitGroup
	var failed atomic.Int32
	for _, room := range rooms {
		wg.Add(1)
		go func(room *usecase.Chatroom) {
			defer wg.Done()
			if _, err := s.initialize(context.Background(), room, settings); err != nil {
				failed.Add(1)
			}
		}(room)
	}
	wg.Wait()
	s.logger.Info("chatrooms initialized", "lobby", code, "chatrooms", len(rooms), "failed", failed.Load())
}

func (s *SessionService) initialize(ctx context.Context, room *usecase.Chatroom, settings domain.ChatSettings) (string, error) {
	f := room.Facilitator()
	if f == nil {
		return "", fmt.Errorf("initialize %s: %w", room.Code, domain.ErrFacilitatorNotReady)
	}
	text, err := f.Initialize(ctx)
	if err != nil {
		s.logger.Warn("facilitator initialization failed", "chatroom", room.Code, "attempts", f.Status().InitAttempts, "error", err)
		return "", err
	}
	s.publish(room.Code, settings.TestMode, f.BotName(), text, s.clock.Now())
	return text, nil
}

// ============ Session timer ============

func (s *SessionService) startTimer(lobby *usecase.Lobby, settings domain.ChatSettings) error {
	code := lobby.Code()
	lead := s.cfg.ConclusionLeadMinutes * 60
	var concluding atomic.Bool

	return lobby.StartSessionTimer(settings.ChatLength(),
		func(remaining int) {
			s.transport.Broadcast(code, domain.EventTimerUpdate, domain.TimerUpdate{Remaining: remaining})
			if remaining > 0 && remaining <= lead && concluding.CompareAndSwap(false, true) {
				go s.concludeAll(lobby, settings, (remaining+59)/60)
			}
		},
		func() {
			go s.endSession(lobby, settings)
		},
	)
}

func (s *SessionService) concludeAll(lobby *usecase.Lobby, settings domain.ChatSettings, minutesLeft int) {
	var wg sync.WaitGroup
	for _, room := range lobby.Chatrooms() {
		f := room.Facilitator()
		if f == nil {
			continue
		}
		wg.Add(1)
		go func(room *usecase.Chatroom, f *usecase.Facilitator) {
			defer wg.Done()
			text, err := f.ConcludePhase(context.Background(), minutesLeft)
			if err != nil {
				s.logger.Warn("conclusion failed", "chatroom", room.Code, "error", err)
				return
			}
			if text != "" {
				s.publish(room.Code, settings.TestMode, f.BotName(), text, s.clock.Now())
			}
		}(room, f)
	}
	wg.Wait()
}

// endSession concludes stragglers, announces the end and closes every
// facilitator. Close is queued behind the conclusions.
func (s *SessionService) endSession(lobby *usecase.Lobby, settings domain.ChatSettings) {
	s.concludeAll(lobby, settings, 1)
	s.transport.Broadcast(lobby.Code(), domain.EventTimerEnded, domain.LobbyEvent{Lobby: lobby.Code()})
	for _, room := range lobby.Chatrooms() {
		if f := room.Facilitator(); f != nil {
			f.Close()
		}
	}
	s.logger.Info("session ended", "lobby", lobby.Code())
}

// ============ Messages ============

// Message relays a chatroom message to its members and hands it to the facilitator
func (s *SessionService) Message(code, chatroom, sender, text string, ts time.Time) error {
	lobby, room, err := s.resolve(code, chatroom)
	if err != nil {
		return err
	}
	if !room.HasMember(sender) {
		return fmt.Errorf("message in %s from %q: %w", room.Code, sender, domain.ErrNotMember)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	settings, _ := lobby.Settings()
	s.publish(room.Code, settings.TestMode, sender, text, ts)

	f := room.Facilitator()
	if f == nil {
		return nil
	}
	if err := f.Post(sender, text, ts); err != nil {
		s.logger.Debug("message not facilitated", "chatroom", room.Code, "state", f.State().String(), "error", err)
	}
	return nil
}

func (s *SessionService) replySink(settings domain.ChatSettings) usecase.ReplySink {
	return func(reply domain.Reply) {
		s.publish(reply.Chatroom, settings.TestMode, settings.BotName, reply.Text, reply.At)
		s.logger.Debug("facilitator reply", "chatroom", reply.Chatroom, "kind", reply.Kind, "action", reply.Action, "message_id", reply.MessageID)
	}
}

// publish broadcasts a chat message to a chatroom and queues it for the log
func (s *SessionService) publish(chatroom string, testMode bool, sender, text string, at time.Time) {
	msg := domain.ChatMessage{Sender: sender, Text: text, Timestamp: at.Format(time.Kitchen)}
	s.transport.Broadcast(chatroom, domain.EventMessage, msg)
	s.logs.Append(chatroom, &domain.MessageRecord{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: msg.Timestamp,
		CreatedAt: at,
		TestMode:  testMode,
	})
}

// ============ Operator actions ============

// RequestInactivityCheck runs an inactivity scan now and publishes any nudge
func (s *SessionService) RequestInactivityCheck(ctx context.Context, code, chatroom string) (string, error) {
	lobby, room, f, err := s.facilitator(code, chatroom)
	if err != nil {
		return "", err
	}
	text, err := f.RequestInactivityCheck(ctx)
	if err != nil {
		return "", err
	}
	if text != "" {
		settings, _ := lobby.Settings()
		s.publish(room.Code, settings.TestMode, f.BotName(), text, s.clock.Now())
	}
	return text, nil
}

// RequestConclusion starts the conclusion phase of one chatroom
func (s *SessionService) RequestConclusion(ctx context.Context, code, chatroom string, minutesLeft int) (string, error) {
	lobby, room, f, err := s.facilitator(code, chatroom)
	if err != nil {
		return "", err
	}
	text, err := f.ConcludePhase(ctx, minutesLeft)
	if err != nil {
		return "", err
	}
	if text != "" {
		settings, _ := lobby.Settings()
		s.publish(room.Code, settings.TestMode, f.BotName(), text, s.clock.Now())
	}
	return text, nil
}

// RetryFacilitator re-runs initialization of a stuck facilitator
func (s *SessionService) RetryFacilitator(ctx context.Context, code, chatroom string) (string, error) {
	lobby, room, _, err := s.facilitator(code, chatroom)
	if err != nil {
		return "", err
	}
	settings, _ := lobby.Settings()
	return s.initialize(ctx, room, settings)
}

// FacilitatorStatus returns the operator view of a chatroom facilitator
func (s *SessionService) FacilitatorStatus(code, chatroom string) (domain.FacilitatorStatus, error) {
	_, _, f, err := s.facilitator(code, chatroom)
	if err != nil {
		return domain.FacilitatorStatus{}, err
	}
	return f.Status(), nil
}

// AbandonChatroom closes one chatroom's facilitator; other chatrooms are unaffected
func (s *SessionService) AbandonChatroom(code, chatroom string) error {
	_, room, f, err := s.facilitator(code, chatroom)
	if err != nil {
		return err
	}
	f.Close()
	s.transport.Broadcast(room.Code, domain.EventChatroomError, domain.ChatroomError{
		Chatroom: room.Code,
		Message:  "the facilitator has left this chatroom",
	})
	s.logger.Info("chatroom abandoned", "chatroom", room.Code)
	return nil
}

// Lobbies returns a summary of every open lobby
func (s *SessionService) Lobbies() []usecase.Summary {
	lobbies := s.directory.Lobbies()
	out := make([]usecase.Summary, 0, len(lobbies))
	for _, l := range lobbies {
		out = append(out, l.Summary())
	}
	return out
}

// Lobby returns the summary of one lobby
func (s *SessionService) Lobby(code string) (usecase.Summary, error) {
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return usecase.Summary{}, err
	}
	return lobby.Summary(), nil
}

// History returns the logged messages of a chatroom, oldest first
func (s *SessionService) History(ctx context.Context, code, chatroom string, limit int) ([]*domain.MessageRecord, error) {
	_, room, err := s.resolve(code, chatroom)
	if err != nil {
		return nil, err
	}
	return s.logs.History(ctx, room.Code, limit)
}

// LobbyRecords returns persisted lobby records, newest first
func (s *SessionService) LobbyRecords(ctx context.Context) ([]*domain.LobbyRecord, error) {
	return s.logs.Lobbies(ctx)
}

// ============ Departures ============

// LeaveLobby removes a participant. After partition the member is only marked
// inactive so chatroom membership stays intact. A lobby with no active
// members left is destroyed.
func (s *SessionService) LeaveLobby(code, username string) error {
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return err
	}
	member, ok := lobby.Member(username)
	if !ok {
		return fmt.Errorf("leave %s as %q: %w", lobby.Code(), username, domain.ErrNotMember)
	}
	code = lobby.Code()

	if lobby.Partitioned() {
		lobby.Deactivate(username)
	} else {
		lobby.RemoveMember(username)
	}
	if ref := s.untrack(member.Conn); ref != nil && ref.chatroom != "" {
		s.transport.Leave(member.Conn, ref.chatroom)
	}
	s.transport.Leave(member.Conn, code)

	s.transport.Broadcast(code, domain.EventUserLeftLobby, domain.LobbyEvent{Lobby: code, Username: username})
	s.broadcastUserList(lobby)
	s.logger.Debug("member left", "lobby", code, "username", username)

	if lobby.ActiveCount() == 0 {
		s.transport.Broadcast(code, domain.EventLobbyEmpty, domain.LobbyEvent{Lobby: code})
		return s.CloseLobby(code, "lobby empty")
	}
	return nil
}

// Disconnect handles a dropped connection. A host disconnect closes the lobby.
func (s *SessionService) Disconnect(conn domain.ConnID, reason string) {
	s.mu.Lock()
	ref, ok := s.conns[conn]
	var snapshot connRef
	if ok {
		snapshot = *ref
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.logger.Debug("connection dropped", "lobby", snapshot.lobby, "username", snapshot.username, "reason", reason)
	var err error
	if snapshot.host {
		s.untrack(conn)
		err = s.CloseLobby(snapshot.lobby, "host disconnected")
	} else {
		err = s.LeaveLobby(snapshot.lobby, snapshot.username)
	}
	if err != nil && !errors.Is(err, domain.ErrLobbyNotFound) {
		s.logger.Warn("disconnect cleanup failed", "lobby", snapshot.lobby, "error", err)
	}
}

// CloseLobby stops the countdown and every facilitator, tells the lobby and
// forgets it
func (s *SessionService) CloseLobby(code, reason string) error {
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return err
	}
	code = lobby.Code()

	lobby.Close()
	s.transport.Broadcast(code, domain.EventLobbyClosed, domain.LobbyEvent{Lobby: code, Reason: reason})
	s.directory.RemoveLobby(code)

	s.mu.Lock()
	detached := make(map[domain.ConnID]connRef)
	for conn, ref := range s.conns {
		if ref.lobby == code {
			detached[conn] = *ref
			delete(s.conns, conn)
		}
	}
	s.mu.Unlock()

	for conn, ref := range detached {
		if ref.chatroom != "" {
			s.transport.Leave(conn, ref.chatroom)
		}
		s.transport.Leave(conn, code)
	}
	if host := lobby.Host().Conn; host != "" {
		s.transport.Leave(host, code)
	}
	s.logger.Info("lobby closed", "lobby", code, "reason", reason)
	return nil
}

// Shutdown closes every lobby
func (s *SessionService) Shutdown() {
	for _, lobby := range s.directory.Lobbies() {
		if err := s.CloseLobby(lobby.Code(), "server shutting down"); err != nil {
			s.logger.Warn("lobby close failed", "lobby", lobby.Code(), "error", err)
		}
	}
}

// ============ Connection index ============

func (s *SessionService) track(conn domain.ConnID, ref *connRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = ref
}

// unbound fails when conn already belongs to a lobby
func (s *SessionService) unbound(conn domain.ConnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.conns[conn]; ok {
		return fmt.Errorf("%s: %w", ref.lobby, domain.ErrAlreadyInLobby)
	}
	return nil
}

func (s *SessionService) setChatroom(conn domain.ConnID, chatroom string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.conns[conn]; ok {
		ref.chatroom = chatroom
	}
}

func (s *SessionService) untrack(conn domain.ConnID) *connRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.conns[conn]
	if !ok {
		return nil
	}
	delete(s.conns, conn)
	return ref
}

// Whois returns the lobby and username bound to a connection
func (s *SessionService) Whois(conn domain.ConnID) (lobby, username string, host bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.conns[conn]
	if !ok {
		return "", "", false
	}
	return ref.lobby, ref.username, ref.host
}

// ============ Helpers ============

func (s *SessionService) resolve(code, chatroom string) (*usecase.Lobby, *usecase.Chatroom, error) {
	if strings.TrimSpace(code) == "" {
		return s.directory.FindChatroom(chatroom)
	}
	lobby, err := s.directory.GetLobby(code)
	if err != nil {
		return nil, nil, err
	}
	room, err := lobby.Chatroom(chatroom)
	if err != nil {
		return nil, nil, err
	}
	return lobby, room, nil
}

func (s *SessionService) facilitator(code, chatroom string) (*usecase.Lobby, *usecase.Chatroom, *usecase.Facilitator, error) {
	lobby, room, err := s.resolve(code, chatroom)
	if err != nil {
		return nil, nil, nil, err
	}
	f := room.Facilitator()
	if f == nil {
		return nil, nil, nil, fmt.Errorf("chatroom %s: %w", room.Code, domain.ErrFacilitatorNotReady)
	}
	return lobby, room, f, nil
}

func (s *SessionService) broadcastUserList(lobby *usecase.Lobby) {
	s.transport.Broadcast(lobby.Code(), domain.EventUserList, s.userList(lobby))
}

func (s *SessionService) userList(lobby *usecase.Lobby) domain.UserList {
	members := lobby.Members()
	users := make([]string, 0, len(members))
	for i := range members {
		users = append(users, members[i].FormatDisplay())
	}
	return domain.UserList{Lobby: lobby.Code(), Users: users}
}
