package risk

import (
	"sync"
	"time"
)

// Metrics tracks realized results for the drawdown guard and the status API.
type Metrics struct {
	Date             string  `json:"date"`
	DailyPnL         float64 `json:"daily_pnl"`
	DailyTrades      int     `json:"daily_trades"`
	DailyWins        int     `json:"daily_wins"`
	DailyLosses      float64 `json:"daily_losses"`
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// Tracker accumulates trade results in memory. The daily window resets when
// the date rolls over.
type Tracker struct {
	mu      sync.RWMutex
	metrics Metrics
	today   func() string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{
		today: func() string { return time.Now().UTC().Format("2006-01-02") },
	}
	t.metrics.Date = t.today()
	return t
}

// RecordTrade folds one realized PnL into the running metrics.
func (t *Tracker) RecordTrade(pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if day := t.today(); day != t.metrics.Date {
		t.metrics = Metrics{Date: day, TotalRealizedPnL: t.metrics.TotalRealizedPnL, MaxDrawdown: t.metrics.MaxDrawdown}
	}

	t.metrics.DailyPnL += pnl
	t.metrics.DailyTrades++
	t.metrics.TotalRealizedPnL += pnl
	if pnl >= 0 {
		t.metrics.DailyWins++
	} else {
		t.metrics.DailyLosses += -pnl
	}
	if dd := -t.metrics.DailyPnL; dd > t.metrics.MaxDrawdown {
		t.metrics.MaxDrawdown = dd
	}
}

// Snapshot returns a copy of the current metrics.
func (t *Tracker) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// DrawdownExceeded reports whether today's realized loss has passed
// maxDrawdownPct percent of the given balance.
func (t *Tracker) DrawdownExceeded(balanceTotal, maxDrawdownPct float64) bool {
	if balanceTotal <= 0 || maxDrawdownPct <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return -t.metrics.DailyPnL >= balanceTotal*maxDrawdownPct/100
}
