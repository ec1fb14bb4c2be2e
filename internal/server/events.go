package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
)

// Inbound event names
const (
	EventCreateLobby              = "createLobby"
	EventJoinLobby                = "joinLobby"
	EventUpdateChatSettings       = "updateChatSettings"
	EventCreateChatrooms          = "createChatrooms"
	EventChatMessage              = "chatMessage"
	EventGetChatData              = "getChatData"
	EventGetUserListOfLobby       = "getUserListOfLobby"
	EventLobbyInactivity          = "lobbyInactivity"
	EventChatStartConclusionPhase = "chatStartConclusionPhase"
	EventLeaveLobby               = "leaveLobby"
)

var errHostOnly = errors.New("only the host may do this")

// Sessions is the part of the session service the router drives
type Sessions interface {
	CreateLobby(conn domain.ConnID, host string) (string, error)
	JoinLobby(conn domain.ConnID, code, username string) error
	ConfigureSession(code string, settings domain.ChatSettings) error
	RequestChatData(conn domain.ConnID, code string) error
	RequestUserList(conn domain.ConnID, code string) error
	Partition(code string) (map[string][]string, error)
	Message(code, chatroom, sender, text string, ts time.Time) error
	RequestInactivityCheck(ctx context.Context, code, chatroom string) (string, error)
	RequestConclusion(ctx context.Context, code, chatroom string, minutesLeft int) (string, error)
	LeaveLobby(code, username string) error
	Disconnect(conn domain.ConnID, reason string)
	Whois(conn domain.ConnID) (lobby, username string, host bool)
}

type createLobbyArgs struct {
	Username string `json:"username"`
}

type joinLobbyArgs struct {
	Lobby    string `json:"lobby"`
	Username string `json:"username"`
}

type chatSettingsArgs struct {
	Lobby    string              `json:"lobby"`
	Settings domain.ChatSettings `json:"settings"`
}

type lobbyArgs struct {
	Lobby string `json:"lobby"`
}

type chatroomArgs struct {
	Lobby    string `json:"lobby"`
	Chatroom string `json:"chatroom"`
}

type chatMessageArgs struct {
	Lobby    string `json:"lobby"`
	Chatroom string `json:"chatroom"`
	Text     string `json:"text"`
}

type conclusionArgs struct {
	Lobby    string `json:"lobby"`
	Chatroom string `json:"chatroom"`
	TimeLeft int    `json:"timeLeft"`
}

// EventRouter decodes inbound events and calls the session service.
// It implements Handler.
type EventRouter struct {
	sessions       Sessions
	transport      repo.TransportRepo
	clock          clockwork.Clock
	logger         hclog.Logger
	requestTimeout time.Duration
}

// NewEventRouter creates a router. requestTimeout bounds facilitator calls
// triggered by clients.
func NewEventRouter(sessions Sessions, transport repo.TransportRepo, clock clockwork.Clock, logger hclog.Logger, requestTimeout time.Duration) *EventRouter {
	if requestTimeout <= 0 {
		requestTimeout = time.Minute
	}
	return &EventRouter{
		sessions:       sessions,
		transport:      transport,
		clock:          clock,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

// HandleEvent routes one inbound event
func (r *EventRouter) HandleEvent(conn domain.ConnID, event string, args json.RawMessage) {
	var err error
	switch event {
	case EventCreateLobby:
		err = r.createLobby(conn, args)
	case EventJoinLobby:
		if err = r.joinLobby(conn, args); err != nil {
			r.transport.Unicast(conn, domain.EventJoinLobbyError, domain.ErrorPayload{Op: event, Message: err.Error()})
			return
		}
	case EventUpdateChatSettings:
		err = r.updateChatSettings(conn, args)
	case EventCreateChatrooms:
		if err = r.createChatrooms(conn, args); err != nil {
			r.transport.Unicast(conn, domain.EventChatroomError, domain.ChatroomError{Message: err.Error()})
			return
		}
	case EventChatMessage:
		err = r.chatMessage(conn, args)
	case EventGetChatData:
		err = r.getChatData(conn, args)
	case EventGetUserListOfLobby:
		err = r.getUserList(conn, args)
	case EventLobbyInactivity:
		err = r.lobbyInactivity(conn, args)
	case EventChatStartConclusionPhase:
		err = r.startConclusion(conn, args)
	case EventLeaveLobby:
		err = r.leaveLobby(conn, args)
	default:
		err = fmt.Errorf("unknown event %q", event)
	}

	if err != nil {
		r.logger.Debug("event failed", "conn", conn, "event", event, "error", err)
		r.transport.Unicast(conn, domain.EventError, domain.ErrorPayload{Op: event, Message: err.Error()})
	}
}

// Disconnected forwards a dropped connection to the session service
func (r *EventRouter) Disconnected(conn domain.ConnID, reason string) {
	r.sessions.Disconnect(conn, reason)
}

// ============ Lobby events ============

func (r *EventRouter) createLobby(conn domain.ConnID, raw json.RawMessage) error {
	var args createLobbyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	_, err := r.sessions.CreateLobby(conn, args.Username)
	return err
}

func (r *EventRouter) joinLobby(conn domain.ConnID, raw json.RawMessage) error {
	var args joinLobbyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	if strings.TrimSpace(args.Lobby) == "" {
		return fmt.Errorf("lobby is required")
	}
	return r.sessions.JoinLobby(conn, args.Lobby, args.Username)
}

func (r *EventRouter) updateChatSettings(conn domain.ConnID, raw json.RawMessage) error {
	var args chatSettingsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	code, err := r.hostOf(conn, args.Lobby)
	if err != nil {
		return err
	}
	return r.sessions.ConfigureSession(code, args.Settings)
}

func (r *EventRouter) createChatrooms(conn domain.ConnID, raw json.RawMessage) error {
	var args lobbyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	code, err := r.hostOf(conn, args.Lobby)
	if err != nil {
		return err
	}
	_, err = r.sessions.Partition(code)
	return err
}

func (r *EventRouter) getChatData(conn domain.ConnID, raw json.RawMessage) error {
	var args lobbyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	return r.sessions.RequestChatData(conn, r.lobbyOf(conn, args.Lobby))
}

func (r *EventRouter) getUserList(conn domain.ConnID, raw json.RawMessage) error {
	var args lobbyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	return r.sessions.RequestUserList(conn, r.lobbyOf(conn, args.Lobby))
}

func (r *EventRouter) leaveLobby(conn domain.ConnID, raw json.RawMessage) error {
	var args lobbyArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	code, username, _ := r.sessions.Whois(conn)
	if code == "" {
		return fmt.Errorf("leave lobby: %w", domain.ErrNotMember)
	}
	if args.Lobby != "" && !strings.EqualFold(args.Lobby, code) {
		return fmt.Errorf("leave %s: %w", args.Lobby, domain.ErrNotMember)
	}
	return r.sessions.LeaveLobby(code, username)
}

// ============ Chatroom events ============

func (r *EventRouter) chatMessage(conn domain.ConnID, raw json.RawMessage) error {
	var args chatMessageArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	code, username, _ := r.sessions.Whois(conn)
	if username == "" {
		return fmt.Errorf("chat message: %w", domain.ErrNotMember)
	}
	if args.Lobby != "" && !strings.EqualFold(args.Lobby, code) {
		return fmt.Errorf("chat message to %s: %w", args.Lobby, domain.ErrNotMember)
	}
	return r.sessions.Message(code, args.Chatroom, username, args.Text, r.clock.Now())
}

func (r *EventRouter) lobbyInactivity(conn domain.ConnID, raw json.RawMessage) error {
	var args chatroomArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	code := r.lobbyOf(conn, args.Lobby)
	r.async(conn, EventLobbyInactivity, func(ctx context.Context) error {
		_, err := r.sessions.RequestInactivityCheck(ctx, code, args.Chatroom)
		return err
	})
	return nil
}

func (r *EventRouter) startConclusion(conn domain.ConnID, raw json.RawMessage) error {
	var args conclusionArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	code := r.lobbyOf(conn, args.Lobby)
	minutes := args.TimeLeft
	if minutes <= 0 {
		minutes = 1
	}
	r.async(conn, EventChatStartConclusionPhase, func(ctx context.Context) error {
		_, err := r.sessions.RequestConclusion(ctx, code, args.Chatroom, minutes)
		return err
	})
	return nil
}

// async runs a facilitator call off the read loop and reports failure to the caller
func (r *EventRouter) async(conn domain.ConnID, event string, call func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.requestTimeout)
		defer cancel()
		if err := call(ctx); err != nil {
			r.logger.Debug("event failed", "conn", conn, "event", event, "error", err)
			r.transport.Unicast(conn, domain.EventError, domain.ErrorPayload{Op: event, Message: err.Error()})
		}
	}()
}

// ============ Helpers ============

// hostOf checks that conn hosts the lobby and returns its code
func (r *EventRouter) hostOf(conn domain.ConnID, requested string) (string, error) {
	code, _, host := r.sessions.Whois(conn)
	if !host || (requested != "" && !strings.EqualFold(requested, code)) {
		return "", errHostOnly
	}
	return code, nil
}

// lobbyOf prefers the lobby named in the event over the connection's own
func (r *EventRouter) lobbyOf(conn domain.ConnID, requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	code, _, _ := r.sessions.Whois(conn)
	return code
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed arguments: %w", err)
	}
	return nil
}
