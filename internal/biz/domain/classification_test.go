package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCognitiveCode(t *testing.T) {
	tests := []struct {
		raw  string
		want CognitiveCode
		ok   bool
	}{
		{"Confusion", CognitiveConfusion, true},
		{" off topic ", CognitiveOffTopic, true},
		{"Off_Topic", CognitiveOffTopic, true},
		{"N/A", CognitiveNA, true},
		{"banana", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCognitiveCode(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestClassification_UnparseableNeverMatches(t *testing.T) {
	c := Classification{Cognitive: CognitiveConfusion, Collaborative: CollaborativeAgree}
	assert.False(t, c.Is(CognitiveConfusion))
	assert.False(t, c.IsCollaborative(CollaborativeAgree))
	assert.Equal(t, "unparseable", Unparseable.String())
}

func TestCognitiveCode_QualityScore(t *testing.T) {
	assert.Equal(t, 0.0, CognitiveOffTopic.QualityScore())
	assert.Equal(t, 1.0, CognitiveConfusion.QualityScore())
	assert.Equal(t, 2.0, CognitiveIncorrect.QualityScore())
	assert.Equal(t, 3.0, CognitiveComplete.QualityScore())
}
