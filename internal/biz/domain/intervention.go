package domain

import "time"

// Action names produced by the rule engine
const (
	ActionHint           = "hint"
	ActionComprehension  = "comprehension"
	ActionPrompt         = "prompt"
	ActionBuild          = "build"
	ActionChallenge      = "challenge"
	ActionPeersEncourage = "peers_encourage"
	ActionRedirect       = "redirect"
	ActionParticipation  = "participation"
)

// Rule category names
const (
	RuleCognitive     = "cognitive"
	RuleCollaborative = "collaborative"
	RuleProductivity  = "productivity"
	RuleParticipation = "participation"
)

// DefaultRuleOrder is used when no bot type overrides it
var DefaultRuleOrder = []string{RuleCognitive, RuleCollaborative, RuleProductivity, RuleParticipation}

// Action is an intervention decided by a rule
type Action struct {
	Name   string
	Rule   string
	Delay  time.Duration
	Target string // participant the action is about, if any
}

// Immediate reports whether the action should be composed right away
func (a Action) Immediate() bool {
	return a.Delay <= 0
}

// PendingIntervention is a delayed action waiting to fire.
// At most one exists per chatroom.
type PendingIntervention struct {
	Action      Action
	MessageID   string
	ScheduledAt time.Time
}
