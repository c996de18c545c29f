package monitor

import (
	"testing"
	"time"
)

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(10)
	for _, ms := range []float64{1, 2, 3, 4, 5} {
		h.Record(ms)
	}

	s := h.Stats()
	if s.Count != 5 {
		t.Fatalf("count=%d, want 5", s.Count)
	}
	if s.Min != 1 || s.Max != 5 || s.Avg != 3 {
		t.Fatalf("stats wrong: %+v", s)
	}
}

func TestLatencyHistogramSlidingWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, ms := range []float64{10, 20, 30, 40} {
		h.Record(ms)
	}

	s := h.Stats()
	if s.Count != 3 {
		t.Fatalf("count=%d, want window size 3", s.Count)
	}
	if s.Min != 20 {
		t.Fatalf("min=%v, oldest sample not evicted", s.Min)
	}
}

func TestSnapshotCounters(t *testing.T) {
	m := NewSystemMetrics()
	m.IncrementAPI()
	m.IncrementAPI()
	m.IncrementAPIErrors()
	m.IncrementTicks()
	m.IncrementOrders()
	m.IncrementClosed()

	snap := m.GetSnapshot()
	if snap.APIRequests != 2 || snap.APIErrors != 1 {
		t.Fatalf("api counters wrong: %+v", snap)
	}
	if snap.TicksProcessed != 1 || snap.OrdersSubmitted != 1 || snap.PositionsClosed != 1 {
		t.Fatalf("counters wrong: %+v", snap)
	}
	if snap.GoroutineCount <= 0 {
		t.Fatal("goroutine count missing")
	}
}

func TestTimerRecords(t *testing.T) {
	h := NewLatencyHistogram(10)
	timer := NewTimer(h)
	time.Sleep(time.Millisecond)
	if timer.Stop() <= 0 {
		t.Fatal("timer elapsed not positive")
	}
	if h.Stats().Count != 1 {
		t.Fatal("timer did not record to histogram")
	}
}
