package domain

import "time"

// MessageRecord is one entry of a chatroom message log
type MessageRecord struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"created"`
	TestMode  bool      `json:"test_mode,omitempty"`
}

// LobbyRecord is the persisted summary of a lobby
type LobbyRecord struct {
	Code      string    `json:"code"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"created_at"`
	TestMode  bool      `json:"test_mode"`
	BotType   string    `json:"bot_type"`
	Topic     string    `json:"topic"`
}

// Reply kinds emitted by a facilitator
const (
	ReplyOpening       = "opening"
	ReplyIntervention  = "intervention"
	ReplyConclusion    = "conclusion"
	ReplyInactivity    = "inactivity"
	ReplyParticipation = "participation"
)

// Reply is a facilitator message delivered out of band
type Reply struct {
	Chatroom  string
	Kind      string
	Action    string
	Text      string
	MessageID string
	At        time.Time
}
