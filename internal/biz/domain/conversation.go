package domain

import "time"

// Role is the author role of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one entry in a facilitator context. Turns are only ever appended.
type ConversationTurn struct {
	Role      Role
	Speaker   string
	Text      string
	Timestamp time.Time
}

// PromptMessage is what the completion service consumes
type PromptMessage struct {
	Role    Role
	Speaker string
	Text    string
}

// Conversation is an append-only turn sequence. When Window is positive, only
// the leading system turns plus the last Window non-system turns are kept.
type Conversation struct {
	Window int
	turns  []ConversationTurn
}

// NewConversation creates a conversation seeded with a system prompt
func NewConversation(systemPrompt string, window int) *Conversation {
	c := &Conversation{Window: window}
	if systemPrompt != "" {
		c.turns = append(c.turns, ConversationTurn{Role: RoleSystem, Text: systemPrompt})
	}
	return c
}

// Append adds a turn and evicts the oldest non-system turn if the window overflows
func (c *Conversation) Append(turn ConversationTurn) {
	c.turns = append(c.turns, turn)
	if c.Window <= 0 {
		return
	}
	for c.nonSystemCount() > c.Window {
		c.evictOldest()
	}
}

// Len returns the number of stored turns
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Turns returns a copy of the stored turns
func (c *Conversation) Turns() []ConversationTurn {
	out := make([]ConversationTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Prompt converts the conversation into completion input, with optional extra turns appended
func (c *Conversation) Prompt(extra ...PromptMessage) []PromptMessage {
	out := make([]PromptMessage, 0, len(c.turns)+len(extra))
	for _, t := range c.turns {
		out = append(out, PromptMessage{Role: t.Role, Speaker: t.Speaker, Text: t.Text})
	}
	return append(out, extra...)
}

func (c *Conversation) nonSystemCount() int {
	n := 0
	for _, t := range c.turns {
		if t.Role != RoleSystem {
			n++
		}
	}
	return n
}

func (c *Conversation) evictOldest() {
	for i, t := range c.turns {
		if t.Role != RoleSystem {
			c.turns = append(c.turns[:i:i], c.turns[i+1:]...)
			return
		}
	}
}
