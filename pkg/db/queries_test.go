package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return d
}

func TestInsertAndListTrades(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []TradeRecord{
		{ID: "t1", Epic: "EURUSD", Side: "LONG", Quantity: 1000, EntryPrice: 1.10,
			ExitPrice: 1.12, PnL: 20, Reason: "take profit hit", OpenedAt: opened, ClosedAt: opened.Add(time.Hour)},
		{ID: "t2", Epic: "GBPUSD", Side: "SHORT", Quantity: 500, EntryPrice: 1.25,
			ExitPrice: 1.26, PnL: -5, Reason: "stop loss hit", OpenedAt: opened, ClosedAt: opened.Add(2 * time.Hour)},
	}
	for _, tr := range trades {
		if err := d.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("insert %s: %v", tr.ID, err)
		}
	}

	got, err := d.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d trades, want 2", len(got))
	}
	// Newest close first.
	if got[0].ID != "t2" || got[1].ID != "t1" {
		t.Fatalf("order wrong: %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].PnL != 20 || got[1].Epic != "EURUSD" {
		t.Fatalf("round trip mangled trade: %+v", got[1])
	}
}

func TestListTradesLimit(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tr := TradeRecord{
			ID: string(rune('a' + i)), Epic: "EURUSD", Side: "LONG", Quantity: 1,
			EntryPrice: 1, ExitPrice: 1, OpenedAt: base,
			ClosedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := d.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := d.ListTrades(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("listed %d trades, want limit 3", len(got))
	}
}

func TestSnapshotPosition(t *testing.T) {
	d := newTestDB(t)

	pos := broker.Position{
		ID: "p1", Epic: "EURUSD", Side: broker.PositionLong,
		EntryPrice: 1.1050, CurrentPrice: 1.1080, Quantity: 1000,
		UnrealizedPnL: 30, StopLoss: 1.0995, TakeProfit: 1.1200,
	}
	if err := d.SnapshotPosition(context.Background(), pos); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	var count int
	if err := d.DB.QueryRow(`SELECT COUNT(*) FROM position_snapshots WHERE id = 'p1'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("snapshot rows = %d, want 1", count)
	}
}
