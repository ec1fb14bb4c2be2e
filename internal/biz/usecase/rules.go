package usecase

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// DefaultInterventionDelay is how long delayed rules wait for the conversation to move on
const DefaultInterventionDelay = 3 * time.Second

// RuleInput is what every rule sees
type RuleInput struct {
	Current        domain.Classification
	Previous       domain.Classification
	SecondPrevious domain.Classification
	Sender         string
	LowParticipant string
}

// Rule maps an input to an action. Rules must be pure.
type Rule func(in RuleInput) (domain.Action, bool)

// DefaultRules returns the built-in rule categories
func DefaultRules(delay time.Duration) map[string]Rule {
	return map[string]Rule{
		domain.RuleCognitive: func(in RuleInput) (domain.Action, bool) {
			switch {
			case in.Current.Is(domain.CognitiveIncomplete):
				return domain.Action{Name: domain.ActionComprehension, Delay: delay, Target: in.Sender}, true
			case in.Current.Is(domain.CognitiveIncorrect):
				return domain.Action{Name: domain.ActionPrompt, Delay: delay, Target: in.Sender}, true
			case in.Current.Is(domain.CognitiveConfusion):
				return domain.Action{Name: domain.ActionHint, Delay: delay, Target: in.Sender}, true
			}
			return domain.Action{}, false
		},
		domain.RuleCollaborative: func(in RuleInput) (domain.Action, bool) {
			switch {
			case in.Current.Is(domain.CognitiveIncomplete) && in.Current.IsCollaborative(domain.CollaborativeAgree):
				return domain.Action{Name: domain.ActionBuild, Target: in.Sender}, true
			case in.Current.IsCollaborative(domain.CollaborativeAgree) && in.Previous.IsCollaborative(domain.CollaborativeAgree):
				return domain.Action{Name: domain.ActionChallenge, Target: in.Sender}, true
			case in.Current.Is(domain.CognitiveConfusion):
				return domain.Action{Name: domain.ActionPeersEncourage, Delay: delay, Target: in.Sender}, true
			}
			return domain.Action{}, false
		},
		domain.RuleProductivity: func(in RuleInput) (domain.Action, bool) {
			if in.Current.Is(domain.CognitiveOffTopic) &&
				in.Previous.Is(domain.CognitiveOffTopic) &&
				in.SecondPrevious.Is(domain.CognitiveOffTopic) {
				return domain.Action{Name: domain.ActionRedirect}, true
			}
			return domain.Action{}, false
		},
		domain.RuleParticipation: func(in RuleInput) (domain.Action, bool) {
			if in.LowParticipant == "" || in.LowParticipant == in.Sender {
				return domain.Action{}, false
			}
			return domain.Action{Name: domain.ActionParticipation, Target: in.LowParticipant}, true
		},
	}
}

// RuleEngine evaluates classifications against an ordered rule list and
// owns the single debounced intervention timer of a chatroom.
type RuleEngine struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	rules   map[string]Rule
	order   []string
	prev    domain.Classification
	secPrev domain.Classification
	pending *pendingTimer
	gen     uint64
	closed  bool
	fire    func(domain.PendingIntervention)
}

type pendingTimer struct {
	intervention domain.PendingIntervention
	timer        clockwork.Timer
	gen          uint64
}

// NewRuleEngine creates a rule engine. fire is invoked from the timer
// goroutine when a delayed action is due and was not superseded.
func NewRuleEngine(clock clockwork.Clock, rules map[string]Rule, order []string, fire func(domain.PendingIntervention)) *RuleEngine {
	e := &RuleEngine{
		clock: clock,
		rules: rules,
		fire:  fire,
	}
	e.SetOrder(order)
	return e
}

// SetOrder replaces the evaluation order; unknown names are dropped
func (e *RuleEngine) SetOrder(order []string) {
	if len(order) == 0 {
		order = domain.DefaultRuleOrder
	}
	filtered := make([]string, 0, len(order))
	for _, name := range order {
		if _, ok := e.rules[name]; ok {
			filtered = append(filtered, name)
		}
	}
	e.mu.Lock()
	e.order = filtered
	e.mu.Unlock()
}

// Order returns the effective evaluation order
func (e *RuleEngine) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Evaluate cancels any pending intervention, runs the rules top to bottom and
// shifts the classification history. A delayed match is scheduled unless
// schedule is false; the action is returned either way.
func (e *RuleEngine) Evaluate(current domain.Classification, messageID, sender, lowParticipant string, schedule bool) (domain.Action, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked()

	in := RuleInput{
		Current:        current,
		Previous:       e.prev,
		SecondPrevious: e.secPrev,
		Sender:         sender,
		LowParticipant: lowParticipant,
	}
	e.secPrev = e.prev
	e.prev = current

	for _, name := range e.order {
		action, ok := e.rules[name](in)
		if !ok {
			continue
		}
		action.Rule = name
		if !action.Immediate() && schedule && !e.closed {
			e.scheduleLocked(action, messageID)
		}
		return action, true
	}
	return domain.Action{}, false
}

func (e *RuleEngine) scheduleLocked(action domain.Action, messageID string) {
	e.gen++
	gen := e.gen
	p := &pendingTimer{
		intervention: domain.PendingIntervention{
			Action:      action,
			MessageID:   messageID,
			ScheduledAt: e.clock.Now(),
		},
		gen: gen,
	}
	p.timer = e.clock.AfterFunc(action.Delay, func() { e.onTimer(gen) })
	e.pending = p
}

func (e *RuleEngine) onTimer(gen uint64) {
	e.mu.Lock()
	if e.closed || e.pending == nil || e.pending.gen != gen {
		e.mu.Unlock()
		return
	}
	p := e.pending.intervention
	e.pending = nil
	e.mu.Unlock()

	if e.fire != nil {
		e.fire(p)
	}
}

// Cancel discards the pending intervention, if any
func (e *RuleEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

func (e *RuleEngine) cancelLocked() {
	if e.pending == nil {
		return
	}
	e.pending.timer.Stop()
	e.pending = nil
}

// Pending returns the pending intervention, if any
func (e *RuleEngine) Pending() (domain.PendingIntervention, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return domain.PendingIntervention{}, false
	}
	return e.pending.intervention, true
}

// Close cancels the pending intervention and refuses new ones
func (e *RuleEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.closed = true
}
