package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
)

const (
	defaultClassificationWindow = 10
	defaultMaxReplyLength       = 200
	defaultQueueSize            = 256

	// room messages per roster member before participation is judged
	participationWarmupPerMember = 2
)

// ReplySink receives replies produced outside of a direct OnMessage call
type ReplySink func(domain.Reply)

// FacilitatorConfig configures one chatroom facilitator
type FacilitatorConfig struct {
	Chatroom                 string
	Members                  []string
	Settings                 domain.ChatSettings
	Prompts                  PromptSet
	ClassificationWindow     int
	MaxReplyLength           int
	CompletionTimeout        time.Duration
	InterventionDelay        time.Duration
	InactivityInterval       time.Duration
	ParticipationMinMessages int
	QueueSize                int
}

func (c *FacilitatorConfig) fillDefaults() {
	if c.ClassificationWindow <= 0 {
		c.ClassificationWindow = defaultClassificationWindow
	}
	if c.MaxReplyLength <= 0 {
		c.MaxReplyLength = defaultMaxReplyLength
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = DefaultCompletionTimeout
	}
	if c.InterventionDelay <= 0 {
		c.InterventionDelay = DefaultInterventionDelay
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.ParticipationMinMessages <= 0 {
		c.ParticipationMinMessages = participationWarmupPerMember * len(c.Members)
	}
	if c.Prompts.Behavior == "" {
		c.Prompts = DefaultPromptSet
	}
}

// Facilitator moderates one chatroom. Every piece of work that reads a
// classification or calls the completion service runs as a job on the
// facilitator's queue, one at a time, in submission order.
type Facilitator struct {
	cfg        FacilitatorConfig
	logger     hclog.Logger
	clock      clockwork.Clock
	completion repo.CompletionRepo
	classifier *MessageClassifier
	tracker    *ParticipationTracker
	engine     *RuleEngine
	watcher    *InactivityWatcher
	sink       ReplySink

	mu             sync.Mutex
	state          domain.FacilitatorState
	behavior       *domain.Conversation
	classification *domain.Conversation
	concluded      bool
	initAttempts   int
	lastErr        error
	lastMessageID  string
	opening        string

	arrival   sync.Mutex
	jobs      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewFacilitator creates a facilitator in the Uninitialized state and starts its job loop
func NewFacilitator(
	cfg FacilitatorConfig,
	completion repo.CompletionRepo,
	clock clockwork.Clock,
	logger hclog.Logger,
	sink ReplySink,
) *Facilitator {
	cfg.fillDefaults()
	cfg.Settings = cfg.Settings.Normalize()

	f := &Facilitator{
		cfg:        cfg,
		logger:     logger.With("chatroom", cfg.Chatroom),
		clock:      clock,
		completion: completion,
		classifier: NewMessageClassifier(completion, cfg.CompletionTimeout),
		tracker:    NewParticipationTracker(cfg.Members, clock),
		sink:       sink,
		state:      domain.StateUninitialized,
		jobs:       make(chan func(), cfg.QueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())

	topic := cfg.Settings.Topic
	f.behavior = domain.NewConversation(fillTemplate(cfg.Prompts.Behavior, map[string]string{
		"botname": cfg.Settings.BotName,
		"topic":   topic,
		"users":   strings.Join(cfg.Members, ", "),
	}), 0)
	f.classification = domain.NewConversation(fillTemplate(cfg.Prompts.Classification, map[string]string{
		"topic": topic,
	}), cfg.ClassificationWindow)

	f.engine = NewRuleEngine(clock, DefaultRules(cfg.InterventionDelay), cfg.Prompts.RuleOrder(cfg.Settings.BotType), f.onIntervention)
	f.watcher = NewInactivityWatcher(clock, cfg.InactivityInterval, f.onInactivityTick)

	go f.run()
	return f
}

// Chatroom returns the chatroom code
func (f *Facilitator) Chatroom() string {
	return f.cfg.Chatroom
}

// BotName returns the display name used for replies
func (f *Facilitator) BotName() string {
	return f.cfg.Settings.BotName
}

// State returns the current lifecycle state
func (f *Facilitator) State() domain.FacilitatorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Tracker exposes participation accounting
func (f *Facilitator) Tracker() *ParticipationTracker {
	return f.tracker
}

// Done is closed once the job loop has exited
func (f *Facilitator) Done() <-chan struct{} {
	return f.done
}

// Status returns an operator-facing snapshot
func (f *Facilitator) Status() domain.FacilitatorStatus {
	f.mu.Lock()
	st := domain.FacilitatorStatus{
		Chatroom:     f.cfg.Chatroom,
		State:        f.state.String(),
		InitAttempts: f.initAttempts,
		Concluded:    f.concluded,
		Turns:        f.behavior.Len(),
	}
	if f.lastErr != nil {
		st.LastError = f.lastErr.Error()
	}
	f.mu.Unlock()

	if p, ok := f.engine.Pending(); ok {
		st.PendingAction = p.Action.Name
	}
	st.RuleOrder = f.engine.Order()
	st.Participation = f.tracker.Snapshot()
	return st
}

// Initialize asks the completion service for the opening question and
// activates the facilitator. On failure the facilitator stays Uninitialized
// and may be retried.
func (f *Facilitator) Initialize(ctx context.Context) (string, error) {
	return f.call(ctx, func(ctx context.Context) (string, error) {
		f.mu.Lock()
		if f.state != domain.StateUninitialized {
			st := f.state
			f.mu.Unlock()
			return "", fmt.Errorf("initialize in state %s: %w", st, domain.ErrFacilitatorNotReady)
		}
		f.state = domain.StatePrompting
		f.initAttempts++
		prompt := f.behavior.Prompt()
		f.mu.Unlock()

		text, err := complete(ctx, f.completion, f.cfg.CompletionTimeout, prompt)

		f.mu.Lock()
		defer f.mu.Unlock()
		if err != nil {
			f.state = domain.StateUninitialized
			f.lastErr = err
			return "", fmt.Errorf("initialize: %w", err)
		}
		f.appendAssistantLocked(text)
		f.opening = text
		f.lastErr = nil
		f.state = domain.StateActive
		f.watcher.Start()
		f.logger.Info("facilitator active", "attempts", f.initAttempts)
		return text, nil
	})
}

type inbound struct {
	id     string
	sender string
	text   string
	window []domain.PromptMessage
}

// OnMessage records a user message and processes it in arrival order. An
// immediate intervention is returned; a delayed one is delivered to the sink later.
func (f *Facilitator) OnMessage(ctx context.Context, sender, text string, ts time.Time) (string, error) {
	ch := make(chan jobResult, 1)
	err := f.submit(ctx, sender, text, ts, func(msg inbound) {
		reply, err := f.process(ctx, msg)
		ch <- jobResult{reply.Text, err}
	})
	if err != nil {
		return "", err
	}
	return f.wait(ctx, ch)
}

// Post is the asynchronous form of OnMessage: every reply goes to the sink
func (f *Facilitator) Post(sender, text string, ts time.Time) error {
	return f.submit(f.ctx, sender, text, ts, func(msg inbound) {
		reply, err := f.process(f.ctx, msg)
		if err != nil {
			f.logger.Warn("message processing failed", "message_id", msg.id, "error", err)
			return
		}
		if reply.Text != "" {
			f.emit(reply)
		}
	})
}

// submit records the message synchronously and queues its processing
func (f *Facilitator) submit(ctx context.Context, sender, text string, ts time.Time, handle func(inbound)) error {
	f.arrival.Lock()
	defer f.arrival.Unlock()

	msg, err := f.accept(sender, text, ts)
	if err != nil {
		return err
	}
	return f.enqueue(ctx, func() { handle(msg) })
}

func (f *Facilitator) accept(sender, text string, ts time.Time) (inbound, error) {
	f.mu.Lock()
	if !f.state.AcceptsMessages() {
		st := f.state
		f.mu.Unlock()
		return inbound{}, fmt.Errorf("message in state %s: %w", st, domain.ErrFacilitatorNotReady)
	}

	f.engine.Cancel()

	msg := inbound{id: uuid.NewString(), sender: sender, text: text}
	turn := domain.ConversationTurn{Role: domain.RoleUser, Speaker: sender, Text: text, Timestamp: ts}
	f.behavior.Append(turn)
	f.classification.Append(turn)
	msg.window = f.classification.Prompt()
	f.lastMessageID = msg.id
	f.mu.Unlock()

	if err := f.tracker.Record(sender); err != nil {
		f.logger.Warn("participation not recorded", "sender", sender, "error", err)
	}
	return msg, nil
}

func (f *Facilitator) process(ctx context.Context, msg inbound) (domain.Reply, error) {
	f.mu.Lock()
	state := f.state
	f.mu.Unlock()
	if state == domain.StateClosed {
		return domain.Reply{}, domain.ErrFacilitatorClosed
	}

	cls, raw, err := f.classifier.Classify(ctx, msg.window)
	if err != nil {
		f.engine.Evaluate(domain.Unparseable, msg.id, msg.sender, "", false)
		return domain.Reply{}, err
	}
	if !cls.Parsed {
		f.logger.Debug("unparseable classification", "message_id", msg.id, "output", raw)
	} else if err := f.tracker.RecordQuality(msg.sender, cls.Cognitive.QualityScore()); err != nil {
		f.logger.Debug("quality not recorded", "sender", msg.sender, "error", err)
	}

	low := f.tracker.LowParticipant(f.cfg.Settings.Assertiveness, f.cfg.ParticipationMinMessages, msg.sender)

	f.mu.Lock()
	schedule := f.lastMessageID == msg.id && f.state == domain.StateActive
	f.mu.Unlock()

	action, ok := f.engine.Evaluate(cls, msg.id, msg.sender, low, schedule)
	f.logger.Debug("message evaluated", "message_id", msg.id, "classification", cls.String(), "action", action.Name)
	if !ok || !action.Immediate() {
		return domain.Reply{}, nil
	}

	text, err := f.compose(ctx, f.cfg.Prompts.Intervention(action, f.cfg.Settings.Topic))
	if err != nil {
		return domain.Reply{}, err
	}
	return f.reply(replyKind(action), action.Name, msg.id, text), nil
}

func (f *Facilitator) onIntervention(p domain.PendingIntervention) {
	err := f.enqueue(f.ctx, func() {
		f.mu.Lock()
		live := f.state == domain.StateActive && f.lastMessageID == p.MessageID
		f.mu.Unlock()
		if !live {
			f.logger.Debug("stale intervention dropped", "action", p.Action.Name, "message_id", p.MessageID)
			return
		}

		text, err := f.compose(f.ctx, f.cfg.Prompts.Intervention(p.Action, f.cfg.Settings.Topic))
		if err != nil {
			f.logger.Warn("intervention failed", "action", p.Action.Name, "error", err)
			return
		}
		f.emit(f.reply(replyKind(p.Action), p.Action.Name, p.MessageID, text))
	})
	if err != nil && !errors.Is(err, domain.ErrFacilitatorClosed) {
		f.logger.Warn("intervention not queued", "error", err)
	}
}

// ConcludePhase tells the room that time is running out. Only the first call
// while Active produces a reply; later calls return "" and nil.
func (f *Facilitator) ConcludePhase(ctx context.Context, minutesLeft int) (string, error) {
	return f.call(ctx, func(ctx context.Context) (string, error) {
		f.mu.Lock()
		if f.concluded {
			f.mu.Unlock()
			return "", nil
		}
		if f.state != domain.StateActive {
			st := f.state
			f.mu.Unlock()
			return "", fmt.Errorf("conclude in state %s: %w", st, domain.ErrFacilitatorNotReady)
		}
		f.concluded = true
		f.state = domain.StateConcluding
		f.mu.Unlock()

		f.engine.Cancel()
		instruction := fillTemplate(f.cfg.Prompts.Conclusion, map[string]string{"time": strconv.Itoa(minutesLeft)})
		return f.compose(ctx, instruction)
	})
}

// InactivityNudge composes a nudge for the given quiet participants, or for
// the whole room when usernames is empty.
func (f *Facilitator) InactivityNudge(ctx context.Context, usernames []string) (string, error) {
	return f.call(ctx, func(ctx context.Context) (string, error) {
		return f.nudge(ctx, usernames)
	})
}

func (f *Facilitator) nudge(ctx context.Context, usernames []string) (string, error) {
	if st := f.State(); !st.AcceptsMessages() {
		return "", fmt.Errorf("nudge in state %s: %w", st, domain.ErrFacilitatorNotReady)
	}
	instruction := f.cfg.Prompts.Inactivity
	if len(usernames) > 0 {
		instruction = fillTemplate(f.cfg.Prompts.InactivityParticipants, map[string]string{
			"users": strings.Join(usernames, ", "),
		})
	}
	return f.compose(ctx, instruction)
}

// RequestInactivityCheck runs one inactivity scan now and returns the nudge, if any
func (f *Facilitator) RequestInactivityCheck(ctx context.Context) (string, error) {
	return f.call(ctx, f.checkInactivity)
}

func (f *Facilitator) onInactivityTick() {
	err := f.enqueue(f.ctx, func() {
		text, err := f.checkInactivity(f.ctx)
		if err != nil {
			f.logger.Warn("inactivity nudge failed", "error", err)
			return
		}
		if text != "" {
			f.emit(f.reply(domain.ReplyInactivity, "", "", text))
		}
	})
	if err != nil && !errors.Is(err, domain.ErrFacilitatorClosed) {
		f.logger.Warn("inactivity check not queued", "error", err)
	}
}

func (f *Facilitator) checkInactivity(ctx context.Context) (string, error) {
	if !f.State().AcceptsMessages() {
		return "", nil
	}
	finding := f.watcher.Scan(f.tracker.Snapshot(), f.tracker.LastActivity())
	if finding.Empty() {
		return "", nil
	}
	f.logger.Info("inactivity detected", "participants", finding.Participants, "room_silent", finding.RoomSilent)
	return f.nudge(ctx, finding.Participants)
}

// Close stops the facilitator after already queued work has run
func (f *Facilitator) Close() {
	f.closeOnce.Do(func() {
		err := f.enqueue(context.Background(), func() {
			f.mu.Lock()
			f.state = domain.StateClosed
			f.mu.Unlock()
			f.engine.Close()
			f.watcher.Stop()
			f.cancel()
			close(f.quit)
		})
		if err != nil {
			f.logger.Warn("close not queued", "error", err)
		}
	})
}

// compose asks for a reply under instruction, retrying once with a shortening
// instruction when the reply is too long. The reply is appended to history.
func (f *Facilitator) compose(ctx context.Context, instruction string) (string, error) {
	f.mu.Lock()
	if instruction != "" {
		f.behavior.Append(domain.ConversationTurn{Role: domain.RoleSystem, Text: instruction, Timestamp: f.clock.Now()})
	}
	prompt := f.behavior.Prompt()
	f.mu.Unlock()

	text, err := complete(ctx, f.completion, f.cfg.CompletionTimeout, prompt)
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}

	if len([]rune(text)) > f.cfg.MaxReplyLength {
		retry := append(prompt,
			domain.PromptMessage{Role: domain.RoleAssistant, Speaker: f.cfg.Settings.BotName, Text: text},
			domain.PromptMessage{Role: domain.RoleSystem, Text: f.cfg.Prompts.Shorten},
		)
		short, err := complete(ctx, f.completion, f.cfg.CompletionTimeout, retry)
		if err != nil {
			f.logger.Warn("shortening retry failed, keeping long reply", "error", err)
		} else {
			text = short
		}
	}

	f.mu.Lock()
	f.appendAssistantLocked(text)
	f.mu.Unlock()
	return text, nil
}

func (f *Facilitator) appendAssistantLocked(text string) {
	turn := domain.ConversationTurn{
		Role:      domain.RoleAssistant,
		Speaker:   f.cfg.Settings.BotName,
		Text:      text,
		Timestamp: f.clock.Now(),
	}
	f.behavior.Append(turn)
	f.classification.Append(turn)
}

func (f *Facilitator) reply(kind, action, messageID, text string) domain.Reply {
	return domain.Reply{
		Chatroom:  f.cfg.Chatroom,
		Kind:      kind,
		Action:    action,
		Text:      text,
		MessageID: messageID,
		At:        f.clock.Now(),
	}
}

func (f *Facilitator) emit(r domain.Reply) {
	if f.sink != nil {
		f.sink(r)
	}
}

func replyKind(a domain.Action) string {
	if a.Name == domain.ActionParticipation {
		return domain.ReplyParticipation
	}
	return domain.ReplyIntervention
}

// ============ Job queue ============

type jobResult struct {
	text string
	err  error
}

func (f *Facilitator) run() {
	defer close(f.done)
	for {
		select {
		case <-f.quit:
			return
		default:
		}
		select {
		case job := <-f.jobs:
			job()
		case <-f.quit:
			return
		}
	}
}

func (f *Facilitator) enqueue(ctx context.Context, job func()) error {
	select {
	case <-f.quit:
		return domain.ErrFacilitatorClosed
	default:
	}
	select {
	case f.jobs <- job:
		return nil
	case <-f.quit:
		return domain.ErrFacilitatorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the queue and waits for its result
func (f *Facilitator) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	ch := make(chan jobResult, 1)
	err := f.enqueue(ctx, func() {
		text, err := fn(ctx)
		ch <- jobResult{text, err}
	})
	if err != nil {
		return "", err
	}
	return f.wait(ctx, ch)
}

func (f *Facilitator) wait(ctx context.Context, ch <-chan jobResult) (string, error) {
	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.done:
		select {
		case r := <-ch:
			return r.text, r.err
		default:
			return "", domain.ErrFacilitatorClosed
		}
	}
}
