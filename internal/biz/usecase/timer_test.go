package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatzot/facilitator/internal/biz/domain"
)

type timerEvents struct {
	mu      sync.Mutex
	ticks   []int
	expired int
}

func (e *timerEvents) tick(remaining int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks = append(e.ticks, remaining)
}

func (e *timerEvents) expire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired++
}

func (e *timerEvents) tickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ticks)
}

func (e *timerEvents) expiredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired
}

// advanceSeconds moves the clock one second at a time, waiting for each tick to land
func advanceSeconds(t *testing.T, clock clockwork.FakeClock, events *timerEvents, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		want := events.tickCount() + 1
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return events.tickCount() >= want }, time.Second, time.Millisecond)
	}
}

func TestSessionTimer_CountsDownAndExpiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewSessionTimer(clock)
	events := &timerEvents{}

	require.NoError(t, timer.Start(3, events.tick, events.expire))
	assert.True(t, timer.Running())
	assert.Equal(t, 3, timer.Remaining())

	advanceSeconds(t, clock, events, 3)
	require.Eventually(t, func() bool { return events.expiredCount() == 1 }, time.Second, time.Millisecond)

	events.mu.Lock()
	assert.Equal(t, []int{2, 1, 0}, events.ticks)
	events.mu.Unlock()
	assert.False(t, timer.Running())
	assert.Zero(t, timer.Remaining())

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return events.expiredCount() > 1 || events.tickCount() > 3 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSessionTimer_RejectsConcurrentStart(t *testing.T) {
	timer := NewSessionTimer(clockwork.NewFakeClock())

	require.NoError(t, timer.Start(10, nil, nil))
	err := timer.Start(10, nil, nil)
	assert.ErrorIs(t, err, domain.ErrTimerConflict)
	timer.Stop()
}

func TestSessionTimer_RejectsNonPositiveDuration(t *testing.T) {
	timer := NewSessionTimer(clockwork.NewFakeClock())

	assert.Error(t, timer.Start(0, nil, nil))
	assert.Error(t, timer.Start(-5, nil, nil))
	assert.False(t, timer.Running())
}

func TestSessionTimer_StopSuppressesExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewSessionTimer(clock)
	events := &timerEvents{}

	require.NoError(t, timer.Start(2, events.tick, events.expire))
	advanceSeconds(t, clock, events, 1)
	timer.Stop()
	timer.Stop()

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return events.expiredCount() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, timer.Running())
}

func TestSessionTimer_RestartReplacesCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewSessionTimer(clock)
	first := &timerEvents{}
	second := &timerEvents{}

	require.NoError(t, timer.Start(2, first.tick, first.expire))
	advanceSeconds(t, clock, first, 1)

	require.NoError(t, timer.Restart(2, second.tick, second.expire))
	assert.Equal(t, 2, timer.Remaining())

	advanceSeconds(t, clock, second, 2)
	require.Eventually(t, func() bool { return second.expiredCount() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, first.expiredCount())
	assert.Equal(t, 1, first.tickCount())
}
