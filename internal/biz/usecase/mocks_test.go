package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// Mock implementations

const (
	codesComplete  = "Cognitive Code: [Complete]\nCollaborative Code: [NA]"
	codesConfusion = "Cognitive Code: [Confusion]\nCollaborative Code: [NA]"
	codesAgree     = "Cognitive Code: [Complete]\nCollaborative Code: [Agree]"
	codesOffTopic  = "Cognitive Code: [Off-topic]\nCollaborative Code: [NA]"
)

var errCompletionDown = errors.New("completion service unavailable")

// mockCompletion answers classification prompts from a per-message script and
// every other prompt with a numbered reply.
type mockCompletion struct {
	mu        sync.Mutex
	codes     map[string]string
	replies   []string
	failClass bool
	failAll   bool
	calls     [][]domain.PromptMessage
	composed  int
}

func newMockCompletion() *mockCompletion {
	return &mockCompletion{codes: make(map[string]string)}
}

func isClassification(msgs []domain.PromptMessage) bool {
	return len(msgs) > 0 && strings.Contains(msgs[0].Text, "Cognitive Code")
}

func lastUserText(msgs []domain.PromptMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Text
		}
	}
	return ""
}

func lastSystemText(msgs []domain.PromptMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleSystem {
			return msgs[i].Text
		}
	}
	return ""
}

func (m *mockCompletion) Complete(ctx context.Context, msgs []domain.PromptMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, msgs)
	if m.failAll {
		return "", errCompletionDown
	}
	if isClassification(msgs) {
		if m.failClass {
			return "", errCompletionDown
		}
		if codes, ok := m.codes[lastUserText(msgs)]; ok {
			return codes, nil
		}
		return codesComplete, nil
	}
	m.composed++
	if len(m.replies) > 0 {
		r := m.replies[0]
		m.replies = m.replies[1:]
		return r, nil
	}
	return fmt.Sprintf("reply %d", m.composed), nil
}

func (m *mockCompletion) script(text, codes string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[text] = codes
}

func (m *mockCompletion) composeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.composed
}

func (m *mockCompletion) lastCall() []domain.PromptMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

func (m *mockCompletion) setFailAll(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = v
}

// gatedCompletion blocks every classification call until released
type gatedCompletion struct {
	started chan string
	release chan struct{}
}

func newGatedCompletion() *gatedCompletion {
	return &gatedCompletion{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedCompletion) Complete(ctx context.Context, msgs []domain.PromptMessage) (string, error) {
	if !isClassification(msgs) {
		return "opening question", nil
	}
	g.started <- lastUserText(msgs)
	select {
	case <-g.release:
		return codesComplete, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// replyRecorder collects replies delivered out of band
type replyRecorder struct {
	mu      sync.Mutex
	replies []domain.Reply
}

func (r *replyRecorder) sink(reply domain.Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
}

func (r *replyRecorder) all() []domain.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Reply(nil), r.replies...)
}

func (r *replyRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

func testFacilitatorConfig() FacilitatorConfig {
	return FacilitatorConfig{
		Chatroom: "ROOM",
		Members:  []string{"alice", "bob", "carol"},
		Settings: domain.ChatSettings{
			BotName:       "Zot",
			Topic:         "fractions",
			Assertiveness: domain.AssertivenessMedium,
		},
		Prompts:                  DefaultPromptSet,
		InactivityInterval:       45 * time.Second,
		ParticipationMinMessages: 1000,
	}
}

func newTestFacilitator(t *testing.T, cfg FacilitatorConfig, completion interface {
	Complete(context.Context, []domain.PromptMessage) (string, error)
}, clock clockwork.Clock) (*Facilitator, *replyRecorder) {
	t.Helper()
	rec := &replyRecorder{}
	f := NewFacilitator(cfg, completion, clock, hclog.NewNullLogger(), rec.sink)
	t.Cleanup(f.Close)
	return f, rec
}

func newActiveFacilitator(t *testing.T, completion *mockCompletion, clock clockwork.Clock) (*Facilitator, *replyRecorder) {
	t.Helper()
	f, rec := newTestFacilitator(t, testFacilitatorConfig(), completion, clock)
	if _, err := f.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return f, rec
}
