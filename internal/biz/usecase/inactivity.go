package usecase

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// DefaultInactivityInterval is the scan period of an InactivityWatcher
const DefaultInactivityInterval = 45 * time.Second

// inactivityFactor is the fraction of the class average below which a participant is flagged
const inactivityFactor = 0.75

// InactivityFinding is the result of one scan
type InactivityFinding struct {
	Participants []string
	RoomSilent   bool
}

// Empty reports whether nothing needs a nudge
func (f InactivityFinding) Empty() bool {
	return len(f.Participants) == 0 && !f.RoomSilent
}

// InactivityWatcher ticks on a fixed interval and remembers which
// inactivity windows were already nudged.
type InactivityWatcher struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	interval time.Duration
	onTick   func()
	stop     chan struct{}
	running  bool

	nudgedAt     map[string]time.Time
	roomNudgedAt time.Time
}

// NewInactivityWatcher creates a stopped watcher. onTick is called from the
// watcher goroutine; it is expected to hand the scan to the room queue.
func NewInactivityWatcher(clock clockwork.Clock, interval time.Duration, onTick func()) *InactivityWatcher {
	if interval <= 0 {
		interval = DefaultInactivityInterval
	}
	return &InactivityWatcher{
		clock:    clock,
		interval: interval,
		onTick:   onTick,
		nudgedAt: make(map[string]time.Time),
	}
}

// Interval returns the tick period
func (w *InactivityWatcher) Interval() time.Duration {
	return w.interval
}

// Start launches the tick loop; it is a no-op when already running
func (w *InactivityWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})

	ticker := w.clock.NewTicker(w.interval)
	go func(stop <-chan struct{}) {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if w.onTick != nil {
					w.onTick()
				}
			}
		}
	}(w.stop)
}

// Stop cancels the tick loop; safe to call more than once
func (w *InactivityWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stop)
	w.running = false
}

// Running reports whether the tick loop is active
func (w *InactivityWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Scan flags participants whose message count and quality are both below
// 0.75x the class averages and who have been silent for a full interval.
// Participants already nudged are skipped until they post again. When nobody
// is flagged but the whole room has been silent for an interval, the room
// itself is reported once per silence window.
func (w *InactivityWatcher) Scan(records []domain.ParticipationRecord, lastRoomActivity time.Time) InactivityFinding {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	var finding InactivityFinding
	if len(records) == 0 {
		return finding
	}

	var totalCount, totalQuality float64
	for _, r := range records {
		totalCount += float64(r.MessageCount)
		totalQuality += r.QualityScoreSum
	}
	avgCount := totalCount / float64(len(records))
	avgQuality := totalQuality / float64(len(records))

	for _, r := range records {
		if float64(r.MessageCount) >= inactivityFactor*avgCount {
			continue
		}
		if r.QualityScoreSum >= inactivityFactor*avgQuality {
			continue
		}
		if now.Sub(r.LastActivity) < w.interval {
			continue
		}
		if at, ok := w.nudgedAt[r.Username]; ok && !r.LastActivity.After(at) {
			continue
		}
		finding.Participants = append(finding.Participants, r.Username)
	}

	if len(finding.Participants) > 0 {
		for _, u := range finding.Participants {
			w.nudgedAt[u] = now
		}
		w.roomNudgedAt = now
		return finding
	}

	if now.Sub(lastRoomActivity) >= w.interval && lastRoomActivity.After(w.roomNudgedAt) {
		finding.RoomSilent = true
		w.roomNudgedAt = now
	}
	return finding
}
