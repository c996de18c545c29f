package db

import (
	"context"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
)

// TradeRecord is a closed trade emitted for the persistence collaborator.
type TradeRecord struct {
	ID         string
	Epic       string
	Side       string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Reason     string
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// InsertTrade records a closed trade.
func (d *Database) InsertTrade(ctx context.Context, t TradeRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, epic, side, quantity, entry_price, exit_price, pnl, reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Epic, t.Side, t.Quantity, t.EntryPrice, t.ExitPrice, t.PnL, t.Reason, t.OpenedAt, t.ClosedAt,
	)
	return err
}

// ListTrades returns the most recent closed trades, newest first.
func (d *Database) ListTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, epic, side, quantity, entry_price,
		       COALESCE(exit_price, 0), COALESCE(pnl, 0), COALESCE(reason, ''),
		       opened_at, COALESCE(closed_at, opened_at)
		FROM trades ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.Epic, &t.Side, &t.Quantity, &t.EntryPrice,
			&t.ExitPrice, &t.PnL, &t.Reason, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SnapshotPosition stores a point-in-time copy of an open position.
func (d *Database) SnapshotPosition(ctx context.Context, p broker.Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO position_snapshots (id, epic, side, quantity, entry, current, upl, stop_loss, take_profit, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Epic, string(p.Side), p.Quantity, p.EntryPrice, p.CurrentPrice,
		p.UnrealizedPnL, p.StopLoss, p.TakeProfit, time.Now().UTC(),
	)
	return err
}
