package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/repo"
)

const lobbyIndex = "lobbiests"

// buntLogRepo implements the message log on BuntDB
type buntLogRepo struct {
	db *buntdb.DB
}

// NewBuntLogRepo opens a BuntDB message log. Use ":memory:" for a throwaway store.
func NewBuntLogRepo(path string) (repo.MessageLogRepo, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	if err := db.CreateIndex(lobbyIndex, "lobby:*", buntdb.IndexJSON("created_at")); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create lobby index: %w", err)
	}
	return &buntLogRepo{db: db}, nil
}

func messageKey(room string, seq int64) string {
	return fmt.Sprintf("msg:%s:%012d", room, seq)
}

// Append stores a record with the next sequence number of its room
func (r *buntLogRepo) Append(ctx context.Context, room string, rec *domain.MessageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	err := r.db.Update(func(tx *buntdb.Tx) error {
		seq := int64(1)
		cur, err := tx.Get("seq:" + room)
		switch {
		case err == nil:
			n, err := strconv.ParseInt(cur, 10, 64)
			if err != nil {
				return err
			}
			seq = n + 1
		case !errors.Is(err, buntdb.ErrNotFound):
			return err
		}

		stored := *rec
		stored.Seq = seq
		value, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		if _, _, err := tx.Set(messageKey(room, seq), string(value), nil); err != nil {
			return err
		}
		if _, _, err := tx.Set("seq:"+room, strconv.FormatInt(seq, 10), nil); err != nil {
			return err
		}
		rec.Seq = seq
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLogAppend, err)
	}
	return nil
}

// RecordLobby creates or updates a lobby entry
func (r *buntLogRepo) RecordLobby(ctx context.Context, rec *domain.LobbyRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("lobby:"+rec.Code, string(value), nil)
		return err
	})
}

// Lobbies returns recorded lobbies, newest first
func (r *buntLogRepo) Lobbies(ctx context.Context) ([]*domain.LobbyRecord, error) {
	var lobbies []*domain.LobbyRecord
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(lobbyIndex, func(key, value string) bool {
			var rec domain.LobbyRecord
			if err := json.Unmarshal([]byte(value), &rec); err == nil {
				lobbies = append(lobbies, &rec)
			}
			return true
		})
	})
	return lobbies, err
}

// History returns the last limit records of room, oldest first. A non-positive limit returns everything.
func (r *buntLogRepo) History(ctx context.Context, room string, limit int) ([]*domain.MessageRecord, error) {
	var records []*domain.MessageRecord
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.DescendKeys("msg:"+room+":*", func(key, value string) bool {
			var rec domain.MessageRecord
			if err := json.Unmarshal([]byte(value), &rec); err == nil {
				records = append(records, &rec)
			}
			return limit <= 0 || len(records) < limit
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	reverse(records)
	return records, nil
}

// Close closes the database
func (r *buntLogRepo) Close() error {
	return r.db.Close()
}
