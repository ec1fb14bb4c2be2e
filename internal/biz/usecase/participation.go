package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// ParticipationTracker keeps per-chatroom message accounting.
// Ratios are derived on every read and never cached.
type ParticipationTracker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	roster  []string
	records map[string]*domain.ParticipationRecord
	total   int
	last    time.Time
	started time.Time
}

// NewParticipationTracker creates a tracker for a fixed roster
func NewParticipationTracker(roster []string, clock clockwork.Clock) *ParticipationTracker {
	t := &ParticipationTracker{
		clock:  clock,
		roster: append([]string(nil), roster...),
	}
	t.Reset()
	return t
}

// Reset clears all counts
func (t *ParticipationTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.records = make(map[string]*domain.ParticipationRecord, len(t.roster))
	for _, u := range t.roster {
		t.records[u] = &domain.ParticipationRecord{Username: u, LastActivity: now}
	}
	t.total = 0
	t.last = now
	t.started = now
}

// Record counts one message from username
func (t *ParticipationTracker) Record(username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[username]
	if !ok {
		return fmt.Errorf("record %q: %w", username, domain.ErrUnknownParticipant)
	}
	now := t.clock.Now()
	rec.MessageCount++
	rec.LastActivity = now
	t.total++
	t.last = now
	return nil
}

// RecordQuality adds a quality score to username
func (t *ParticipationTracker) RecordQuality(username string, score float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[username]
	if !ok {
		return fmt.Errorf("record quality %q: %w", username, domain.ErrUnknownParticipant)
	}
	rec.QualityScoreSum += score
	return nil
}

// RatioFor returns username's share of all room messages
func (t *ParticipationTracker) RatioFor(username string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ratioLocked(username)
}

func (t *ParticipationTracker) ratioLocked(username string) float64 {
	rec, ok := t.records[username]
	if !ok || t.total == 0 {
		return 0
	}
	return float64(rec.MessageCount) / float64(t.total)
}

// BelowThreshold reports whether username's ratio is strictly below the level's threshold
func (t *ParticipationTracker) BelowThreshold(username string, level domain.Assertiveness) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[username]; !ok {
		return false
	}
	return t.ratioLocked(username) < level.ParticipationThreshold()
}

// LowParticipant returns the first roster member other than except who is
// under the threshold, or "" while the room has fewer than minTotal messages.
func (t *ParticipationTracker) LowParticipant(level domain.Assertiveness, minTotal int, except string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.total == 0 || t.total < minTotal {
		return ""
	}
	threshold := level.ParticipationThreshold()
	for _, u := range t.roster {
		if u != except && t.ratioLocked(u) < threshold {
			return u
		}
	}
	return ""
}

// Total returns the number of recorded messages
func (t *ParticipationTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// LastActivity returns the time of the latest message, or the tracker start
func (t *ParticipationTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Snapshot returns the records in roster order
func (t *ParticipationTracker) Snapshot() []domain.ParticipationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.ParticipationRecord, 0, len(t.roster))
	for _, u := range t.roster {
		rec := *t.records[u]
		rec.Ratio = t.ratioLocked(u)
		out = append(out, rec)
	}
	return out
}

// Roster returns the tracked usernames
func (t *ParticipationTracker) Roster() []string {
	return append([]string(nil), t.roster...)
}
