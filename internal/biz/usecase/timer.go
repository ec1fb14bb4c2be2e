package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

// SessionTimer is a one-second countdown. A timer runs at most one loop at a time.
type SessionTimer struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	gen       uint64
	stop      chan struct{}
	running   bool
	remaining int
}

// NewSessionTimer creates an idle timer
func NewSessionTimer(clock clockwork.Clock) *SessionTimer {
	return &SessionTimer{clock: clock}
}

// Start begins counting down seconds. onTick receives the remaining seconds
// once per second; onExpire is called exactly once at zero, after which the
// timer stops itself.
func (t *SessionTimer) Start(seconds int, onTick func(remaining int), onExpire func()) error {
	if seconds <= 0 {
		return fmt.Errorf("start timer: duration must be positive, got %d", seconds)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return domain.ErrTimerConflict
	}
	t.gen++
	t.running = true
	t.remaining = seconds
	t.stop = make(chan struct{})

	ticker := t.clock.NewTicker(time.Second)
	go t.run(t.gen, t.stop, ticker, onTick, onExpire)
	return nil
}

// Restart stops any running countdown and starts a new one
func (t *SessionTimer) Restart(seconds int, onTick func(remaining int), onExpire func()) error {
	t.Stop()
	return t.Start(seconds, onTick, onExpire)
}

// Stop cancels the countdown. It does not call onExpire.
func (t *SessionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}
	close(t.stop)
	t.running = false
	t.gen++
}

// Running reports whether a countdown is in progress
func (t *SessionTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Remaining returns the seconds left, or 0 when idle
func (t *SessionTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return t.remaining
}

func (t *SessionTimer) run(gen uint64, stop <-chan struct{}, ticker clockwork.Ticker, onTick func(int), onExpire func()) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
		}

		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.remaining--
		remaining := t.remaining
		expired := remaining <= 0
		if expired {
			t.running = false
			t.gen++
		}
		t.mu.Unlock()

		if onTick != nil {
			onTick(remaining)
		}
		if expired {
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}
