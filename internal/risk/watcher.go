package risk

import (
	"fmt"
	"sync"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
)

// Watcher tracks stop-loss/take-profit levels for open positions and decides
// closures on price updates. A breach removes the tracked position in the
// same locked step that produces the decision, so one breach yields exactly
// one close call no matter how many ticks follow.
type Watcher struct {
	mu        sync.RWMutex
	positions map[string]*watched // keyed by epic
}

type watched struct {
	position broker.Position
	price    float64
}

// Decision tells the engine to close a position.
type Decision struct {
	Epic     string
	Position broker.Position
	Price    float64
	Reason   string
}

// NewWatcher creates an empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{positions: make(map[string]*watched)}
}

// Track starts monitoring a position. Replaces any previous entry for the
// same epic.
func (w *Watcher) Track(p broker.Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.positions[p.Epic] = &watched{position: p, price: p.EntryPrice}
}

// Untrack stops monitoring an epic.
func (w *Watcher) Untrack(epic string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.positions, epic)
}

// Tracked returns the monitored position for an epic, if any.
func (w *Watcher) Tracked(epic string) (broker.Position, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if wd, ok := w.positions[epic]; ok {
		return wd.position, true
	}
	return broker.Position{}, false
}

// UpdatePrice feeds a price into the watcher. Returns a non-nil decision at
// most once per tracked position.
func (w *Watcher) UpdatePrice(epic string, price float64) *Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	wd, ok := w.positions[epic]
	if !ok {
		return nil
	}
	wd.price = price
	pos := wd.position

	var reason string
	switch pos.Side {
	case broker.PositionLong:
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			reason = fmt.Sprintf("stop loss hit at %.5f", price)
		} else if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			reason = fmt.Sprintf("take profit hit at %.5f", price)
		}
	case broker.PositionShort:
		if pos.StopLoss > 0 && price >= pos.StopLoss {
			reason = fmt.Sprintf("stop loss hit at %.5f", price)
		} else if pos.TakeProfit > 0 && price <= pos.TakeProfit {
			reason = fmt.Sprintf("take profit hit at %.5f", price)
		}
	}
	if reason == "" {
		return nil
	}

	// Remove before releasing the lock: the next tick must not re-trigger.
	delete(w.positions, epic)
	return &Decision{Epic: epic, Position: pos, Price: price, Reason: reason}
}
