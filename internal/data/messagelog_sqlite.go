package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// sqliteLogRepo implements the message log on SQLite
type sqliteLogRepo struct {
	db *sql.DB
}

// NewSQLiteLogRepo creates a SQLite message log
func NewSQLiteLogRepo(dbPath string) (repo.MessageLogRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; sequence allocation relies on it
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room TEXT NOT NULL,
			seq INTEGER NOT NULL,
			msg_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			test_mode INTEGER NOT NULL DEFAULT 0,
			UNIQUE(room, seq)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lobbies (
			code TEXT PRIMARY KEY,
			host TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			test_mode INTEGER NOT NULL DEFAULT 0,
			bot_type TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create lobbies table: %w", err)
	}

	return &sqliteLogRepo{db: db}, nil
}

// Append stores a record with the next sequence number of its room
func (r *sqliteLogRepo) Append(ctx context.Context, room string, rec *domain.MessageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrLogAppend, err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE room = ?`, room).Scan(&seq)
	if err != nil {
		return fmt.Errorf("%w: next seq: %v", domain.ErrLogAppend, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (room, seq, msg_id, sender, text, timestamp, created_at, test_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, room, seq, rec.ID, rec.Sender, rec.Text, rec.Timestamp, rec.CreatedAt.UnixMilli(), boolToInt(rec.TestMode))
	if err != nil {
		return fmt.Errorf("%w: insert: %v", domain.ErrLogAppend, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrLogAppend, err)
	}
	rec.Seq = seq
	return nil
}

// RecordLobby creates or updates a lobby row
func (r *sqliteLogRepo) RecordLobby(ctx context.Context, rec *domain.LobbyRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lobbies (code, host, created_at, test_mode, bot_type, topic)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			host = excluded.host,
			test_mode = excluded.test_mode,
			bot_type = excluded.bot_type,
			topic = excluded.topic
	`, rec.Code, rec.Host, rec.CreatedAt.UnixMilli(), boolToInt(rec.TestMode), rec.BotType, rec.Topic)
	if err != nil {
		return fmt.Errorf("failed to record lobby: %w", err)
	}
	return nil
}

// Lobbies returns recorded lobbies, newest first
func (r *sqliteLogRepo) Lobbies(ctx context.Context) ([]*domain.LobbyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, host, created_at, test_mode, bot_type, topic
		FROM lobbies
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lobbies: %w", err)
	}
	defer rows.Close()

	var lobbies []*domain.LobbyRecord
	for rows.Next() {
		var rec domain.LobbyRecord
		var createdAt int64
		var testMode int
		if err := rows.Scan(&rec.Code, &rec.Host, &createdAt, &testMode, &rec.BotType, &rec.Topic); err != nil {
			return nil, fmt.Errorf("failed to scan lobby: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		rec.TestMode = testMode != 0
		lobbies = append(lobbies, &rec)
	}
	return lobbies, rows.Err()
}

// History returns the last limit records of room, oldest first. A non-positive limit returns everything.
func (r *sqliteLogRepo) History(ctx context.Context, room string, limit int) ([]*domain.MessageRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, msg_id, sender, text, timestamp, created_at, test_mode
		FROM messages
		WHERE room = ?
		ORDER BY seq DESC
		LIMIT ?
	`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*domain.MessageRecord
	for rows.Next() {
		var rec domain.MessageRecord
		var createdAt int64
		var testMode int
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.Sender, &rec.Text, &rec.Timestamp, &createdAt, &testMode); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		rec.TestMode = testMode != 0
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	reverse(records)
	return records, nil
}

// Close closes the database
func (r *sqliteLogRepo) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func reverse(records []*domain.MessageRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
