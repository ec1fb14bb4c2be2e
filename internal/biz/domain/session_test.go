package domain

import "testing"

func TestAssertiveness_ParticipationThreshold(t *testing.T) {
	tests := []struct {
		level Assertiveness
		want  float64
	}{
		{AssertivenessLow, 0.05},
		{AssertivenessMedium, 0.15},
		{AssertivenessHigh, 0.25},
		{Assertiveness(9), 0.15},
	}
	for _, tt := range tests {
		if got := tt.level.ParticipationThreshold(); got != tt.want {
			t.Errorf("level %d: expected %v, got %v", tt.level, tt.want, got)
		}
	}
}

func TestChatSettings_Normalize(t *testing.T) {
	s := ChatSettings{Topic: "photosynthesis", BotType: " Collaborative "}.Normalize()

	if s.BotName != DefaultBotName {
		t.Errorf("Expected default bot name, got %q", s.BotName)
	}
	if s.Assertiveness != AssertivenessMedium {
		t.Errorf("Expected medium assertiveness, got %d", s.Assertiveness)
	}
	if s.ParticipantsPerRoom != 4 {
		t.Errorf("Expected 4 participants per room, got %d", s.ParticipantsPerRoom)
	}
	if s.BotType != "collaborative" {
		t.Errorf("Expected bot type to be normalized, got %q", s.BotType)
	}
}

func TestChatSettings_Validate(t *testing.T) {
	if err := (ChatSettings{}).Validate(); err == nil {
		t.Error("Expected error for missing topic")
	}
	if err := (ChatSettings{Topic: "x", ChatLengthMinutes: -1}).Validate(); err == nil {
		t.Error("Expected error for negative chat length")
	}
	if err := (ChatSettings{Topic: "x", ChatLengthMinutes: 15}).Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
