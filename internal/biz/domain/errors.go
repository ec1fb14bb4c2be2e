package domain

import "errors"

var (
	ErrDuplicateUsername   = errors.New("username already taken in lobby")
	ErrLobbyNotFound       = errors.New("lobby not found")
	ErrChatroomNotFound    = errors.New("chatroom not found")
	ErrLobbyFull           = errors.New("lobby full")
	ErrAlreadyPartitioned  = errors.New("lobby already partitioned")
	ErrNoMembers           = errors.New("lobby has no members")
	ErrNotMember           = errors.New("not a member of this chatroom")
	ErrClassifier          = errors.New("completion service failure")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrTimerConflict       = errors.New("session timer already running")
	ErrLogAppend           = errors.New("message log append failed")
	ErrResourceExhausted   = errors.New("room code space exhausted")
	ErrFacilitatorNotReady = errors.New("facilitator not ready")
	ErrFacilitatorClosed   = errors.New("facilitator closed")
	ErrSettingsMissing     = errors.New("chat settings not configured")
	ErrAlreadyInLobby      = errors.New("connection already belongs to a lobby")
)
