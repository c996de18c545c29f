package engine

import (
	"context"
	"log"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/events"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/db"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

// OnPriceUpdate checks stop-loss/take-profit crossing for the symbol's open
// position. The watcher removes the position from tracking in the same
// synchronous step that produces the decision, so a breach triggers exactly
// one exit order.
func (e *Engine) OnPriceUpdate(ctx context.Context, snap market.Snapshot) {
	e.mu.Lock()
	pos, held := e.positions[snap.Epic]
	if held {
		// A long exits at the bid, a short at the ask.
		price := snap.Bid
		if pos.Side == broker.PositionShort {
			price = snap.Ask
		}
		pos.CurrentPrice = price
		e.positions[snap.Epic] = pos
	}
	e.mu.Unlock()

	if !held {
		return
	}

	price := snap.Bid
	if pos.Side == broker.PositionShort {
		price = snap.Ask
	}

	decision := e.watcher.UpdatePrice(snap.Epic, price)
	if decision == nil {
		return
	}
	if err := e.closePosition(ctx, decision.Position, decision.Price, decision.Reason); err != nil {
		log.Printf("engine: %s: close after %s: %v", snap.Epic, decision.Reason, err)
	}
}

// OnOrderUpdate reconciles an order status event. A FILLED order leaves
// pendingOrders and triggers a resync from the broker's authoritative
// position list; locally computed position state is not trusted after a fill.
// Events for orders the engine is not waiting on are ignored, so a replayed
// or already-reconciled fill cannot publish twice.
func (e *Engine) OnOrderUpdate(ctx context.Context, o broker.Order) {
	e.mu.Lock()
	existing, waiting := e.pendingOrders[o.ID]
	if waiting {
		existing.Status = o.Status
		existing.UpdatedAt = time.Now().UTC()
		if o.Status.Terminal() {
			delete(e.pendingOrders, o.ID)
		} else {
			e.pendingOrders[o.ID] = existing
		}
	}
	e.mu.Unlock()

	if !waiting || o.Status != broker.StatusFilled {
		return
	}

	if err := e.Resync(ctx); err != nil {
		log.Printf("engine: resync after fill %s: %v", o.ID, err)
		return
	}
	e.announceFill(ctx, existing)
}

// announceFill publishes the fill and, when the broker now reports a position
// for the epic, the opened position. The order must already be out of
// pendingOrders.
func (e *Engine) announceFill(ctx context.Context, o broker.Order) {
	events.Publish(e.bus, events.OrdersFilled, o)

	e.mu.RLock()
	pos, held := e.positions[o.Epic]
	e.mu.RUnlock()
	if !held {
		return
	}
	events.Publish(e.bus, events.PositionsOpened, pos)
	if e.database != nil {
		if err := e.database.SnapshotPosition(ctx, pos); err != nil {
			log.Printf("engine: snapshot position %s: %v", pos.ID, err)
		}
	}
}

// closePosition removes the position from the active set synchronously, then
// submits the closing market order. Exit errors are logged and surfaced; the
// close is never silently retried.
func (e *Engine) closePosition(ctx context.Context, pos broker.Position, price float64, reason string) error {
	e.mu.Lock()
	current, held := e.positions[pos.Epic]
	if !held || current.ID != pos.ID {
		e.mu.Unlock()
		return nil // already closed by another path
	}
	delete(e.positions, pos.Epic)
	// Remember the in-flight exit: a resync racing the broker's processing
	// of the close must not re-adopt the position and allow a second exit.
	e.closing[pos.Epic] = pos.ID
	e.mu.Unlock()
	e.watcher.Untrack(pos.Epic)

	exitSide := broker.SideSell
	if pos.Side == broker.PositionShort {
		exitSide = broker.SideBuy
	}

	_, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		Epic:     pos.Epic,
		Side:     exitSide,
		Type:     broker.OrderMarket,
		Quantity: pos.Quantity,
		ClientID: newClientRef(),
	})
	if err != nil {
		// The exit never reached the broker; the next resync re-adopts the
		// still-open position.
		e.mu.Lock()
		delete(e.closing, pos.Epic)
		e.mu.Unlock()
		return err
	}

	pnl := realizedPnL(pos, price)
	e.tracker.RecordTrade(pnl)
	events.Publish(e.bus, events.PositionsClosed, pos)
	log.Printf("engine: %s: closed %s qty=%.2f at %.5f pnl=%.2f (%s)",
		pos.Epic, pos.Side, pos.Quantity, price, pnl, reason)

	if e.database != nil {
		record := db.TradeRecord{
			ID:         pos.ID,
			Epic:       pos.Epic,
			Side:       string(pos.Side),
			Quantity:   pos.Quantity,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  price,
			PnL:        pnl,
			Reason:     reason,
			OpenedAt:   pos.OpenedAt,
			ClosedAt:   time.Now().UTC(),
		}
		if err := e.database.InsertTrade(ctx, record); err != nil {
			log.Printf("engine: record trade %s: %v", pos.ID, err)
		}
	}
	return nil
}

func realizedPnL(pos broker.Position, exitPrice float64) float64 {
	if pos.Side == broker.PositionShort {
		return (pos.EntryPrice - exitPrice) * pos.Quantity
	}
	return (exitPrice - pos.EntryPrice) * pos.Quantity
}
