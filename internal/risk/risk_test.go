package risk

import (
	"testing"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
)

func TestPositionSizeFormula(t *testing.T) {
	// risk% = 2, balance = 10000, |entry - stop| = 0.005
	// riskAmount = 200, qty = 200 / 0.005 = 40000
	qty, err := PositionSize(10000, 10000, 2, 1.1000, 1.0950, 0.01, 0)
	if err != nil {
		t.Fatalf("PositionSize failed: %v", err)
	}
	if qty > 40000 {
		t.Fatalf("qty=%v exceeds the risk formula bound of 40000", qty)
	}
	if qty < 39999 {
		t.Fatalf("qty=%v, expected close to 40000 before flooring", qty)
	}
}

func TestPositionSizeClampsToMargin(t *testing.T) {
	// The raw formula asks for 40000 units but the margin at 20x leverage
	// only supports 1000*20/1.1 ≈ 18181 units.
	qty, err := PositionSize(10000, 1000, 2, 1.1000, 1.0950, 0.01, 20)
	if err != nil {
		t.Fatalf("PositionSize failed: %v", err)
	}
	if qty > 1000*20/1.1 {
		t.Fatalf("qty=%v exceeds margin capacity", qty)
	}
	if qty < 18000 {
		t.Fatalf("qty=%v, expected roughly the margin cap", qty)
	}
}

func TestPositionSizeZeroStopDistance(t *testing.T) {
	if _, err := PositionSize(10000, 10000, 2, 1.1, 1.1, 0.01, 0); err != ErrNoStopDistance {
		t.Fatalf("err=%v, expected ErrNoStopDistance", err)
	}
}

func TestFloorToIncrement(t *testing.T) {
	tests := []struct {
		qty, inc, want float64
	}{
		{40000.7, 0.01, 40000.7},
		{123.456, 0.1, 123.4},
		{99.99, 1, 99},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := FloorToIncrement(tt.qty, tt.inc); got > tt.qty || got < tt.want-1e-9 {
			t.Fatalf("FloorToIncrement(%v, %v)=%v, expected %v", tt.qty, tt.inc, got, tt.want)
		}
	}
}

func longPosition(sl, tp float64) broker.Position {
	return broker.Position{
		ID: "p1", Epic: "EURUSD", Side: broker.PositionLong,
		EntryPrice: 1.1050, Quantity: 1000, StopLoss: sl, TakeProfit: tp,
	}
}

func TestWatcherStopLossFiresExactlyOnce(t *testing.T) {
	w := NewWatcher()
	w.Track(longPosition(1.0995, 1.1200))

	if d := w.UpdatePrice("EURUSD", 1.1000); d != nil {
		t.Fatalf("premature close decision: %+v", d)
	}

	d := w.UpdatePrice("EURUSD", 1.0994)
	if d == nil {
		t.Fatal("stop loss breach produced no decision")
	}
	if d.Epic != "EURUSD" || d.Price != 1.0994 {
		t.Fatalf("unexpected decision: %+v", d)
	}

	// Subsequent updates for the same breach must not re-trigger.
	for _, p := range []float64{1.0993, 1.0990, 1.0985} {
		if again := w.UpdatePrice("EURUSD", p); again != nil {
			t.Fatalf("duplicate close decision at %v: %+v", p, again)
		}
	}
}

func TestWatcherDirections(t *testing.T) {
	tests := []struct {
		name      string
		side      broker.PositionSide
		sl, tp    float64
		price     float64
		wantClose bool
	}{
		{"long above stop", broker.PositionLong, 1.09, 1.12, 1.10, false},
		{"long stop", broker.PositionLong, 1.09, 1.12, 1.0899, true},
		{"long take profit", broker.PositionLong, 1.09, 1.12, 1.1201, true},
		{"short inside band", broker.PositionShort, 1.12, 1.09, 1.10, false},
		{"short stop", broker.PositionShort, 1.12, 1.09, 1.1201, true},
		{"short take profit", broker.PositionShort, 1.12, 1.09, 1.0899, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWatcher()
			w.Track(broker.Position{
				ID: "p", Epic: "EURUSD", Side: tt.side,
				EntryPrice: 1.1050, Quantity: 100, StopLoss: tt.sl, TakeProfit: tt.tp,
			})
			d := w.UpdatePrice("EURUSD", tt.price)
			if (d != nil) != tt.wantClose {
				t.Fatalf("decision=%v, wantClose=%v", d, tt.wantClose)
			}
		})
	}
}

func TestWatcherIgnoresUntrackedEpics(t *testing.T) {
	w := NewWatcher()
	if d := w.UpdatePrice("GBPUSD", 1.25); d != nil {
		t.Fatalf("decision for untracked epic: %+v", d)
	}
}

func TestTrackerDrawdownGuard(t *testing.T) {
	tr := NewTracker()
	tr.RecordTrade(-500)
	tr.RecordTrade(-600)

	if !tr.DrawdownExceeded(10000, 10) {
		t.Fatal("11% realized loss should exceed a 10% drawdown cap")
	}
	if tr.DrawdownExceeded(10000, 15) {
		t.Fatal("11% realized loss should not exceed a 15% cap")
	}

	m := tr.Snapshot()
	if m.DailyTrades != 2 || m.DailyPnL != -1100 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.DailyLosses != 1100 || m.MaxDrawdown != 1100 {
		t.Fatalf("loss accounting wrong: %+v", m)
	}
}

func TestTrackerDailyRollover(t *testing.T) {
	tr := NewTracker()
	tr.today = func() string { return "2026-03-01" }
	tr.metrics.Date = "2026-03-01"
	tr.RecordTrade(-400)

	tr.today = func() string { return "2026-03-02" }
	tr.RecordTrade(100)

	m := tr.Snapshot()
	if m.Date != "2026-03-02" {
		t.Fatalf("date=%s, expected rollover", m.Date)
	}
	if m.DailyPnL != 100 || m.DailyTrades != 1 {
		t.Fatalf("daily window not reset: %+v", m)
	}
	if m.TotalRealizedPnL != -300 {
		t.Fatalf("total=%v, expected -300 preserved across days", m.TotalRealizedPnL)
	}
}
