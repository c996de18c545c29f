package candlecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/db"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

// SQLiteStore persists candle ranges in the candle_ranges table, candles
// serialized as JSON.
type SQLiteStore struct {
	db *db.Database
}

// NewSQLiteStore wraps an opened database.
func NewSQLiteStore(database *db.Database) *SQLiteStore {
	return &SQLiteStore{db: database}
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Entry, error) {
	var (
		raw       string
		complete  int
		updatedMs int64
	)
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT candles, is_complete, last_updated FROM candle_ranges
		WHERE epic = ? AND timeframe = ? AND start_ms = ? AND end_ms = ?`,
		key.Epic, key.Timeframe, key.Start.UnixMilli(), key.End.UnixMilli(),
	).Scan(&raw, &complete, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var candles []market.Candle
	if err := json.Unmarshal([]byte(raw), &candles); err != nil {
		return nil, err
	}
	return &Entry{
		Key:         key,
		Candles:     candles,
		IsComplete:  complete != 0,
		LastUpdated: time.UnixMilli(updatedMs).UTC(),
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e.Candles)
	if err != nil {
		return err
	}
	complete := 0
	if e.IsComplete {
		complete = 1
	}
	_, err = s.db.DB.ExecContext(ctx, `
		INSERT INTO candle_ranges (epic, timeframe, start_ms, end_ms, candles, is_complete, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(epic, timeframe, start_ms, end_ms) DO UPDATE SET
			candles = excluded.candles,
			is_complete = excluded.is_complete,
			last_updated = excluded.last_updated`,
		e.Key.Epic, e.Key.Timeframe, e.Key.Start.UnixMilli(), e.Key.End.UnixMilli(),
		string(raw), complete, e.LastUpdated.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) Invalidate(ctx context.Context, epic, timeframe string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if timeframe == "" {
		res, err = s.db.DB.ExecContext(ctx, `DELETE FROM candle_ranges WHERE epic = ?`, epic)
	} else {
		res, err = s.db.DB.ExecContext(ctx, `DELETE FROM candle_ranges WHERE epic = ? AND timeframe = ?`, epic, timeframe)
	}
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM candle_ranges WHERE last_updated < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
