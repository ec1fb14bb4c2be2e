package domain

import "strings"

// CognitiveCode classifies the reasoning quality of a message
type CognitiveCode string

const (
	CognitiveNA         CognitiveCode = "NA"
	CognitiveComplete   CognitiveCode = "Complete"
	CognitiveIncomplete CognitiveCode = "Incomplete"
	CognitiveIncorrect  CognitiveCode = "Incorrect"
	CognitiveConfusion  CognitiveCode = "Confusion"
	CognitiveOffTopic   CognitiveCode = "Off-topic"
)

// CollaborativeCode classifies how a message relates to peers
type CollaborativeCode string

const (
	CollaborativeNA       CollaborativeCode = "NA"
	CollaborativeAgree    CollaborativeCode = "Agree"
	CollaborativeDisagree CollaborativeCode = "Disagree"
	CollaborativeBuild    CollaborativeCode = "Build"
	CollaborativeQuestion CollaborativeCode = "Question"
)

var cognitiveCodes = map[string]CognitiveCode{
	"na":         CognitiveNA,
	"none":       CognitiveNA,
	"complete":   CognitiveComplete,
	"incomplete": CognitiveIncomplete,
	"incorrect":  CognitiveIncorrect,
	"confusion":  CognitiveConfusion,
	"confused":   CognitiveConfusion,
	"off-topic":  CognitiveOffTopic,
}

var collaborativeCodes = map[string]CollaborativeCode{
	"na":       CollaborativeNA,
	"none":     CollaborativeNA,
	"agree":    CollaborativeAgree,
	"disagree": CollaborativeDisagree,
	"build":    CollaborativeBuild,
	"question": CollaborativeQuestion,
}

func normalizeCode(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	if s == "n/a" {
		return "na"
	}
	return s
}

// ParseCognitiveCode maps free-form model output onto a known cognitive code
func ParseCognitiveCode(raw string) (CognitiveCode, bool) {
	c, ok := cognitiveCodes[normalizeCode(raw)]
	return c, ok
}

// ParseCollaborativeCode maps free-form model output onto a known collaborative code
func ParseCollaborativeCode(raw string) (CollaborativeCode, bool) {
	c, ok := collaborativeCodes[normalizeCode(raw)]
	return c, ok
}

// QualityScore is the contribution weight used by inactivity scans
func (c CognitiveCode) QualityScore() float64 {
	switch c {
	case CognitiveConfusion:
		return 1
	case CognitiveIncomplete, CognitiveIncorrect:
		return 2
	case CognitiveComplete:
		return 3
	default:
		return 0
	}
}

// Classification is the result of classifying one message.
// Parsed is false when the model output could not be read; such a
// classification never matches a rule.
type Classification struct {
	Parsed        bool
	Cognitive     CognitiveCode
	Collaborative CollaborativeCode
}

// Unparseable is the zero classification
var Unparseable = Classification{}

// Is reports whether the classification was parsed and carries the cognitive code
func (c Classification) Is(code CognitiveCode) bool {
	return c.Parsed && c.Cognitive == code
}

// IsCollaborative reports whether the classification was parsed and carries the collaborative code
func (c Classification) IsCollaborative(code CollaborativeCode) bool {
	return c.Parsed && c.Collaborative == code
}

func (c Classification) String() string {
	if !c.Parsed {
		return "unparseable"
	}
	return string(c.Cognitive) + "/" + string(c.Collaborative)
}
