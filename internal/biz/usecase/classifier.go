package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
)

// DefaultCompletionTimeout bounds every completion call
const DefaultCompletionTimeout = 30 * time.Second

var codePattern = regexp.MustCompile(`(?i)(\w+ code)\s*:\s*\[([^\]]+)\]`)

// ParseClassification reads "Cognitive Code: [X]" and "Collaborative Code: [Y]"
// out of model output. Both codes must be present and known, otherwise the
// result is domain.Unparseable.
func ParseClassification(text string) domain.Classification {
	codes := make(map[string]string)
	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		key := strings.ReplaceAll(strings.ToLower(m[1]), " ", "_")
		codes[key] = m[2]
	}

	cognitive, ok := domain.ParseCognitiveCode(codes["cognitive_code"])
	if !ok {
		return domain.Unparseable
	}
	collaborative, ok := domain.ParseCollaborativeCode(codes["collaborative_code"])
	if !ok {
		return domain.Unparseable
	}
	return domain.Classification{
		Parsed:        true,
		Cognitive:     cognitive,
		Collaborative: collaborative,
	}
}

// MessageClassifier turns a classification window into structured codes
type MessageClassifier struct {
	completion repo.CompletionRepo
	timeout    time.Duration
}

// NewMessageClassifier creates a classifier
func NewMessageClassifier(completion repo.CompletionRepo, timeout time.Duration) *MessageClassifier {
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	return &MessageClassifier{completion: completion, timeout: timeout}
}

// Classify asks the completion service to classify the last user turn of window.
// Malformed output is not an error: it yields domain.Unparseable.
func (c *MessageClassifier) Classify(ctx context.Context, window []domain.PromptMessage) (domain.Classification, string, error) {
	text, err := complete(ctx, c.completion, c.timeout, window)
	if err != nil {
		return domain.Unparseable, "", fmt.Errorf("classify: %w", err)
	}
	return ParseClassification(text), text, nil
}

// complete runs one completion call under a deadline and tags failures as classifier errors
func complete(ctx context.Context, completion repo.CompletionRepo, timeout time.Duration, msgs []domain.PromptMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := completion.Complete(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrClassifier, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrClassifier)
	}
	return text, nil
}
