package aggregate

import (
	"errors"
	"testing"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/events"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

func tick(epic string, bid, ask, vol float64, at time.Time) market.Tick {
	return market.Tick{Epic: epic, Bid: bid, Ask: ask, Volume: vol, Timestamp: at}
}

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"5s", 0, true},
		{"m", 0, true},
		{"", 0, true},
		{"0m", 0, true},
		{"-1h", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeframe(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimeframe) {
					t.Fatalf("err=%v, expected ErrInvalidTimeframe", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestFlushSummarizesBufferedTicks(t *testing.T) {
	a := New(events.NewBus())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Mids: 1.10, 1.14, 1.08, 1.12
	a.AddTick(tick("EURUSD", 1.09, 1.11, 2, base))
	a.AddTick(tick("EURUSD", 1.13, 1.15, 3, base.Add(20*time.Millisecond)))
	a.AddTick(tick("EURUSD", 1.07, 1.09, 1, base.Add(40*time.Millisecond)))
	a.AddTick(tick("EURUSD", 1.11, 1.13, 4, base.Add(60*time.Millisecond)))

	snaps := a.Flush()
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, expected 1", len(snaps))
	}

	s := snaps[0]
	if s.Open != 1.10 {
		t.Fatalf("open=%v, expected first mid 1.10", s.Open)
	}
	if s.Close != 1.12 {
		t.Fatalf("close=%v, expected last mid 1.12", s.Close)
	}
	if s.High != 1.14 || s.Low != 1.08 {
		t.Fatalf("high/low=%v/%v, expected 1.14/1.08", s.High, s.Low)
	}
	if s.Volume != 10 {
		t.Fatalf("volume=%v, expected sum of tick volumes 10", s.Volume)
	}
	if s.High < s.Open || s.High < s.Close || s.Low > s.Open || s.Low > s.Close {
		t.Fatalf("snapshot violates OHLC invariant: %+v", s)
	}

	// Buffer cleared: a second flush emits nothing.
	if again := a.Flush(); len(again) != 0 {
		t.Fatalf("second flush emitted %d snapshots, expected none", len(again))
	}
}

func TestFlushSkipsQuietSymbols(t *testing.T) {
	a := New(events.NewBus())
	a.AddTick(tick("EURUSD", 1.1, 1.1, 1, time.Now()))
	_ = a.Flush()

	// No new ticks anywhere: nothing synthetic is emitted.
	if snaps := a.Flush(); len(snaps) != 0 {
		t.Fatalf("quiet window emitted %d snapshots", len(snaps))
	}
}

func TestCandleCloseCycle(t *testing.T) {
	bus := events.NewBus()
	closedCh, unsub := events.Subscribe(bus, events.CandlesClosed, 4)
	defer unsub()

	a := New(bus)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	if err := a.Subscribe("EURUSD", "1m"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	a.AddTick(tick("EURUSD", 1.09, 1.11, 2, base.Add(5*time.Second)))
	a.AddTick(tick("EURUSD", 1.13, 1.15, 1, base.Add(30*time.Second)))

	// Timeframe has not elapsed yet.
	if closed := a.CloseDue(base.Add(45 * time.Second)); len(closed) != 0 {
		t.Fatalf("candle closed early: %+v", closed)
	}

	closed := a.CloseDue(base.Add(66 * time.Second))
	if len(closed) != 1 {
		t.Fatalf("got %d closed candles, expected 1", len(closed))
	}
	cc := closed[0]
	if cc.Epic != "EURUSD" || cc.Timeframe != "1m" {
		t.Fatalf("unexpected key: %+v", cc)
	}
	if cc.Candle.Open != 1.10 || cc.Candle.Close != 1.14 {
		t.Fatalf("open/close=%v/%v, expected 1.10/1.14", cc.Candle.Open, cc.Candle.Close)
	}
	if !cc.Candle.Valid() {
		t.Fatalf("closed candle violates OHLC invariant: %+v", cc.Candle)
	}

	select {
	case <-closedCh:
	default:
		t.Fatal("closed candle was not published to the bus")
	}

	// A fresh empty candle started: the next sweep with no data emits nothing.
	if closed := a.CloseDue(base.Add(3 * time.Minute)); len(closed) != 0 {
		t.Fatalf("empty candle was emitted: %+v", closed)
	}
}

func TestCandleCloseIgnoresTickTimestampSkew(t *testing.T) {
	a := New(events.NewBus())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	if err := a.Subscribe("EURUSD", "1m"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// A feed stamped far in the past must not pull the close forward: the
	// schedule runs on the aggregator clock, not the exchange clock.
	a.AddTick(tick("EURUSD", 1.09, 1.11, 1, base.Add(-45*time.Minute)))

	if closed := a.CloseDue(base.Add(30 * time.Second)); len(closed) != 0 {
		t.Fatalf("skewed tick timestamp closed the candle early: %+v", closed)
	}
	closed := a.CloseDue(base.Add(61 * time.Second))
	if len(closed) != 1 {
		t.Fatalf("got %d closed candles after the timeframe elapsed, expected 1", len(closed))
	}
	if closed[0].Candle.Close != 1.10 {
		t.Fatalf("close=%v, expected 1.10", closed[0].Candle.Close)
	}
}

func TestSubscribeRejectsUnknownUnit(t *testing.T) {
	a := New(events.NewBus())
	if err := a.Subscribe("EURUSD", "3w"); !errors.Is(err, ErrInvalidTimeframe) {
		t.Fatalf("err=%v, expected ErrInvalidTimeframe", err)
	}
}

func TestUnsubscribeStopsCandleAccumulation(t *testing.T) {
	a := New(events.NewBus())
	base := time.Now()
	a.now = func() time.Time { return base }

	if err := a.Subscribe("GBPUSD", "1m"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	a.Unsubscribe("GBPUSD", "1m")

	a.AddTick(tick("GBPUSD", 1.25, 1.27, 1, base))
	if closed := a.CloseDue(base.Add(2 * time.Minute)); len(closed) != 0 {
		t.Fatalf("unsubscribed pair still closed candles: %+v", closed)
	}

	// The flush cycle is unaffected by timeframe subscriptions.
	if snaps := a.Flush(); len(snaps) != 1 {
		t.Fatalf("flush emitted %d snapshots, expected 1", len(snaps))
	}
}
