package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_WindowKeepsSystemPrompt(t *testing.T) {
	c := NewConversation("classify", 3)
	for i := 0; i < 5; i++ {
		c.Append(ConversationTurn{Role: RoleUser, Speaker: "alice", Text: fmt.Sprintf("m%d", i)})
	}

	turns := c.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, RoleSystem, turns[0].Role)
	assert.Equal(t, "classify", turns[0].Text)
	assert.Equal(t, []string{"m2", "m3", "m4"}, []string{turns[1].Text, turns[2].Text, turns[3].Text})
}

func TestConversation_UnboundedWhenWindowZero(t *testing.T) {
	c := NewConversation("behave", 0)
	for i := 0; i < 50; i++ {
		c.Append(ConversationTurn{Role: RoleAssistant, Text: "x"})
	}
	assert.Equal(t, 51, c.Len())
}

func TestConversation_PromptAppendsExtra(t *testing.T) {
	c := NewConversation("sys", 0)
	c.Append(ConversationTurn{Role: RoleUser, Speaker: "bob", Text: "hi"})

	msgs := c.Prompt(PromptMessage{Role: RoleSystem, Text: "shorten"})
	require.Len(t, msgs, 3)
	assert.Equal(t, "bob", msgs[1].Speaker)
	assert.Equal(t, "shorten", msgs[2].Text)
	assert.Equal(t, 2, c.Len(), "extra turns must not be stored")
}

func TestConversation_TurnsIsACopy(t *testing.T) {
	c := NewConversation("", 0)
	c.Append(ConversationTurn{Role: RoleUser, Text: "a"})
	turns := c.Turns()
	turns[0].Text = "mutated"
	assert.Equal(t, "a", c.Turns()[0].Text)
}
