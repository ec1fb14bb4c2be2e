package usecase

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

func TestParticipationTracker_Ratios(t *testing.T) {
	tracker := NewParticipationTracker([]string{"alice", "bob", "carol", "dave"}, clockwork.NewFakeClock())

	assert.Zero(t, tracker.RatioFor("alice"), "no messages yet")

	for _, u := range []string{"alice", "alice", "alice", "bob"} {
		require.NoError(t, tracker.Record(u))
	}

	assert.Equal(t, 4, tracker.Total())
	assert.InDelta(t, 0.75, tracker.RatioFor("alice"), 1e-9)
	assert.InDelta(t, 0.25, tracker.RatioFor("bob"), 1e-9)
	assert.Zero(t, tracker.RatioFor("carol"))
	assert.Zero(t, tracker.RatioFor("mallory"))
}

func TestParticipationTracker_ReplayIsDeterministic(t *testing.T) {
	sequence := []string{"alice", "bob", "alice", "carol", "alice", "bob"}
	replay := func() []domain.ParticipationRecord {
		clock := clockwork.NewFakeClock()
		tracker := NewParticipationTracker([]string{"alice", "bob", "carol"}, clock)
		for _, u := range sequence {
			clock.Advance(time.Second)
			require.NoError(t, tracker.Record(u))
		}
		snapshot := tracker.Snapshot()
		for i := range snapshot {
			snapshot[i].LastActivity = time.Time{}
		}
		return snapshot
	}

	assert.Equal(t, replay(), replay())
}

func TestParticipationTracker_UnknownParticipant(t *testing.T) {
	tracker := NewParticipationTracker([]string{"alice"}, clockwork.NewFakeClock())

	err := tracker.Record("mallory")
	assert.ErrorIs(t, err, domain.ErrUnknownParticipant)
	assert.ErrorIs(t, tracker.RecordQuality("mallory", 3), domain.ErrUnknownParticipant)
	assert.Zero(t, tracker.Total())
	assert.False(t, tracker.BelowThreshold("mallory", domain.AssertivenessHigh))
}

func TestParticipationTracker_ThresholdIsStrict(t *testing.T) {
	roster := []string{"a", "b", "c", "d"}
	tracker := NewParticipationTracker(roster, clockwork.NewFakeClock())

	// 20 messages: b sends 3 (0.15 exactly), c sends 2 (0.10)
	for i := 0; i < 15; i++ {
		require.NoError(t, tracker.Record("a"))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.Record("b"))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, tracker.Record("c"))
	}

	assert.False(t, tracker.BelowThreshold("b", domain.AssertivenessMedium))
	assert.True(t, tracker.BelowThreshold("c", domain.AssertivenessMedium))
	assert.False(t, tracker.BelowThreshold("c", domain.AssertivenessLow))
	assert.True(t, tracker.BelowThreshold("b", domain.AssertivenessHigh))
}

func TestParticipationTracker_LowParticipant(t *testing.T) {
	tracker := NewParticipationTracker([]string{"alice", "bob", "carol"}, clockwork.NewFakeClock())

	assert.Empty(t, tracker.LowParticipant(domain.AssertivenessMedium, 0, ""), "empty room")

	require.NoError(t, tracker.Record("alice"))
	require.NoError(t, tracker.Record("carol"))

	assert.Empty(t, tracker.LowParticipant(domain.AssertivenessMedium, 3, ""), "warming up")
	assert.Equal(t, "bob", tracker.LowParticipant(domain.AssertivenessMedium, 2, "alice"))
	assert.Empty(t, tracker.LowParticipant(domain.AssertivenessMedium, 2, "bob"))
}

func TestParticipationTracker_LowParticipantSkipsSender(t *testing.T) {
	tracker := NewParticipationTracker([]string{"amy", "bo", "cy"}, clockwork.NewFakeClock())
	for i := 0; i < 9; i++ {
		require.NoError(t, tracker.Record("cy"))
	}
	require.NoError(t, tracker.Record("amy"))

	assert.Equal(t, "amy", tracker.LowParticipant(domain.AssertivenessMedium, 0, ""))
	assert.Equal(t, "bo", tracker.LowParticipant(domain.AssertivenessMedium, 0, "amy"))
}

func TestParticipationTracker_ResetAndActivity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewParticipationTracker([]string{"alice", "bob"}, clock)
	start := clock.Now()
	assert.Equal(t, start, tracker.LastActivity())

	clock.Advance(time.Minute)
	require.NoError(t, tracker.Record("bob"))
	require.NoError(t, tracker.RecordQuality("bob", 3))
	assert.Equal(t, start.Add(time.Minute), tracker.LastActivity())

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "alice", snapshot[0].Username)
	assert.Equal(t, start, snapshot[0].LastActivity)
	assert.Equal(t, 1, snapshot[1].MessageCount)
	assert.Equal(t, 3.0, snapshot[1].QualityScoreSum)
	assert.Equal(t, 1.0, snapshot[1].Ratio)

	tracker.Reset()
	assert.Zero(t, tracker.Total())
	assert.Zero(t, tracker.Snapshot()[1].MessageCount)
	assert.Equal(t, []string{"alice", "bob"}, tracker.Roster())
}
