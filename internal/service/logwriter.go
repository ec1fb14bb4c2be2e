package service

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
)

const (
	defaultLogQueueSize = 1024
	logWriteTimeout     = 5 * time.Second
)

// LogWriter persists messages and lobby records off the request path.
// Writes are best-effort: failures are logged and dropped.
type LogWriter struct {
	repo   repo.MessageLogRepo
	logger hclog.Logger

	queue   chan func(context.Context) error
	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewLogWriter creates a stopped log writer
func NewLogWriter(messageLog repo.MessageLogRepo, logger hclog.Logger, queueSize int) *LogWriter {
	if queueSize <= 0 {
		queueSize = defaultLogQueueSize
	}
	return &LogWriter{
		repo:   messageLog,
		logger: logger,
		queue:  make(chan func(context.Context) error, queueSize),
	}
}

// Start starts the write loop. Writes queued before Start are kept.
func (w *LogWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopped = false
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop(w.stopCh)
	w.logger.Debug("log writer started")
}

// Stop drains queued writes and stops the loop. Writes submitted after
// Stop are dropped until the next Start.
func (w *LogWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Debug("log writer stopped")
}

// Append queues a chatroom message
func (w *LogWriter) Append(room string, rec *domain.MessageRecord) {
	w.submit("append", func(ctx context.Context) error {
		return w.repo.Append(ctx, room, rec)
	})
}

// RecordLobby queues a lobby record upsert
func (w *LogWriter) RecordLobby(rec *domain.LobbyRecord) {
	w.submit("record lobby", func(ctx context.Context) error {
		return w.repo.RecordLobby(ctx, rec)
	})
}

// History reads a chatroom log synchronously
func (w *LogWriter) History(ctx context.Context, room string, limit int) ([]*domain.MessageRecord, error) {
	return w.repo.History(ctx, room, limit)
}

// Lobbies reads recorded lobbies synchronously
func (w *LogWriter) Lobbies(ctx context.Context) ([]*domain.LobbyRecord, error) {
	return w.repo.Lobbies(ctx)
}

func (w *LogWriter) submit(op string, write func(context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.logger.Debug("log writer stopped, dropping write", "op", op)
		return
	}
	select {
	case w.queue <- write:
	default:
		w.logger.Warn("log queue full, dropping write", "op", op)
	}
}

func (w *LogWriter) loop(stop <-chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case write := <-w.queue:
			w.run(write)
		case <-stop:
			for {
				select {
				case write := <-w.queue:
					w.run(write)
				default:
					return
				}
			}
		}
	}
}

func (w *LogWriter) run(write func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), logWriteTimeout)
	defer cancel()
	if err := write(ctx); err != nil {
		w.logger.Warn("message log write failed", "error", err)
	}
}
