package domain

// Outbound event names
const (
	EventLobbyCreated            = "lobbyCreated"
	EventJoinedLobby             = "joinedLobby"
	EventUserJoinedLobby         = "userJoinedLobby"
	EventJoinLobbyError          = "joinLobbyError"
	EventUserLeftLobby           = "userLeftLobby"
	EventLobbyEmpty              = "lobbyEmpty"
	EventLobbyClosed             = "lobbyClosed"
	EventCreateChatroomsResponse = "createChatroomsResponse"
	EventJoinedChatroom          = "joinedChatroom"
	EventChatroomError           = "chatroomError"
	EventMessage                 = "message"
	EventTimerUpdate             = "timerUpdate"
	EventTimerEnded              = "timerEnded"
	EventChatData                = "chatData"
	EventUserList                = "userList"
	EventError                   = "error"
)

// ChatMessage is the wire payload of a chat message
type ChatMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ErrorPayload is unicast to a connection whose request failed
type ErrorPayload struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

// LobbyEvent is the payload of lobby membership and lifecycle events
type LobbyEvent struct {
	Lobby    string `json:"lobby"`
	Username string `json:"username,omitempty"`
	Host     string `json:"host,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// UserList lists the display names of lobby members
type UserList struct {
	Lobby string   `json:"lobby"`
	Users []string `json:"users"`
}

// JoinedChatroom tells a member where it was placed
type JoinedChatroom struct {
	Lobby    string       `json:"lobby"`
	Chatroom string       `json:"chatroom"`
	Members  []string     `json:"members"`
	Settings ChatSettings `json:"settings"`
}

// TimerUpdate carries the seconds left in a session
type TimerUpdate struct {
	Remaining int `json:"remaining"`
}

// ChatroomError reports a chatroom-level failure to its members
type ChatroomError struct {
	Chatroom string `json:"chatroom"`
	Message  string `json:"message"`
}
