package domain

// FacilitatorState is the lifecycle state of a chatroom facilitator
type FacilitatorState int

const (
	StateUninitialized FacilitatorState = iota
	StatePrompting
	StateActive
	StateConcluding
	StateClosed
)

func (s FacilitatorState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrompting:
		return "prompting"
	case StateActive:
		return "active"
	case StateConcluding:
		return "concluding"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AcceptsMessages reports whether user messages are processed in this state
func (s FacilitatorState) AcceptsMessages() bool {
	return s == StateActive || s == StateConcluding
}

// FacilitatorStatus is the operator-facing view of a facilitator
type FacilitatorStatus struct {
	Chatroom      string                `json:"chatroom"`
	State         string                `json:"state"`
	InitAttempts  int                   `json:"init_attempts"`
	LastError     string                `json:"last_error,omitempty"`
	Concluded     bool                  `json:"concluded"`
	PendingAction string                `json:"pending_action,omitempty"`
	Turns         int                   `json:"turns"`
	RuleOrder     []string              `json:"rule_order"`
	Participation []ParticipationRecord `json:"participation"`
}

// Stuck reports whether the facilitator never came up
func (s FacilitatorStatus) Stuck() bool {
	return s.State == StateUninitialized.String() && s.InitAttempts > 0
}
