package repo

import (
	"context"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// CompletionRepo is the LLM completion service interface.
// Calls are fallible and may take seconds; callers pass a context with a deadline.
type CompletionRepo interface {
	// Complete returns the assistant text for an ordered prompt
	Complete(ctx context.Context, messages []domain.PromptMessage) (string, error)
}
