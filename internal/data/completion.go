package data

import (
	"context"
	"regexp"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
	"github.com/chatzot/facilitator/llm"
)

// OpenAI restricts the name field to this alphabet
var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

const maxNameLength = 64

// completionRepo implements the completion repository
type completionRepo struct {
	client *llm.Client
}

// NewCompletionRepo creates a completion repository
func NewCompletionRepo(client *llm.Client) repo.CompletionRepo {
	if client == nil {
		return nil
	}
	return &completionRepo{client: client}
}

// Complete sends the prompt and returns the assistant text
func (r *completionRepo) Complete(ctx context.Context, messages []domain.PromptMessage) (string, error) {
	return r.client.Chat(ctx, toChatMessages(messages))
}

func toChatMessages(messages []domain.PromptMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Text,
		}
		if m.Role != domain.RoleSystem {
			msg.Name = speakerName(m.Speaker)
		}
		out = append(out, msg)
	}
	return out
}

func chatRole(role domain.Role) string {
	switch role {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// speakerName maps a display name onto the characters the API accepts
func speakerName(speaker string) string {
	name := invalidNameChars.ReplaceAllString(speaker, "_")
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}
