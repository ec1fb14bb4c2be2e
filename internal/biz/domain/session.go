package domain

import (
	"fmt"
	"strings"
	"time"
)

// Assertiveness controls how eagerly the facilitator pushes quiet participants
type Assertiveness int

const (
	AssertivenessLow    Assertiveness = 1
	AssertivenessMedium Assertiveness = 2
	AssertivenessHigh   Assertiveness = 3
)

var participationThresholds = map[Assertiveness]float64{
	AssertivenessLow:    0.05,
	AssertivenessMedium: 0.15,
	AssertivenessHigh:   0.25,
}

// ParticipationThreshold returns the minimum share of room messages a
// participant should hold. Unknown levels fall back to medium.
func (a Assertiveness) ParticipationThreshold() float64 {
	if t, ok := participationThresholds[a]; ok {
		return t
	}
	return participationThresholds[AssertivenessMedium]
}

// ChatSettings is the host-provided configuration of a class session (value object).
// It is frozen once chatrooms are created from it.
type ChatSettings struct {
	BotName             string        `json:"botname"`
	Topic               string        `json:"topic"`
	ChatName            string        `json:"chatName"`
	Assertiveness       Assertiveness `json:"assertiveness"`
	ChatLengthMinutes   int           `json:"chatLength"`
	ParticipantsPerRoom int           `json:"participantsPerRoom"`
	TestMode            bool          `json:"testMode"`
	BotType             string        `json:"botType"`
}

// DefaultBotName is used when the host leaves the bot name empty
const DefaultBotName = "ChatZot"

// Normalize fills zero values with defaults
func (s ChatSettings) Normalize() ChatSettings {
	s.BotName = strings.TrimSpace(s.BotName)
	if s.BotName == "" {
		s.BotName = DefaultBotName
	}
	if _, ok := participationThresholds[s.Assertiveness]; !ok {
		s.Assertiveness = AssertivenessMedium
	}
	if s.ParticipantsPerRoom <= 0 {
		s.ParticipantsPerRoom = 4
	}
	if s.ChatLengthMinutes <= 0 {
		s.ChatLengthMinutes = 10
	}
	s.BotType = strings.ToLower(strings.TrimSpace(s.BotType))
	return s
}

// Validate checks settings supplied by the host
func (s ChatSettings) Validate() error {
	if strings.TrimSpace(s.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if s.ChatLengthMinutes < 0 {
		return fmt.Errorf("chat length must not be negative")
	}
	if s.ParticipantsPerRoom < 0 {
		return fmt.Errorf("participants per room must not be negative")
	}
	return nil
}

// ChatLength returns the session duration
func (s ChatSettings) ChatLength() time.Duration {
	return time.Duration(s.ChatLengthMinutes) * time.Minute
}
