package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/analysis"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/events"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/risk"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
)

// loop runs the periodic analysis cycle. Symbols are processed in order
// within a cycle; a failure for one symbol is logged and never aborts the
// rest or the process.
func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle reconciles against broker truth and analyzes every symbol once.
func (e *Engine) runCycle(ctx context.Context) {
	if err := e.Resync(ctx); err != nil {
		log.Printf("engine: cycle resync failed: %v", err)
	}
	for _, epic := range e.symbols {
		if err := e.AnalyzeSymbol(ctx, epic); err != nil {
			log.Printf("engine: %s: analysis cycle: %v", epic, err)
		}
	}
}

// AnalyzeSymbol requests one chart analysis and acts on it: an entry when
// confidence clears the entry threshold, an exit when an opposing signal
// clears the exit threshold.
func (e *Engine) AnalyzeSymbol(ctx context.Context, epic string) error {
	result, err := e.analyzer.Analyze(ctx, epic, e.timeframes)

	rec := AnalysisRecord{Timestamp: time.Now().UTC()}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Signal = result.Signal
		rec.Confidence = result.Confidence
	}
	e.mu.Lock()
	e.lastAnalysis[epic] = rec
	e.mu.Unlock()

	if err != nil {
		return err
	}

	if decision := e.exitDecision(epic, result); decision != nil {
		return e.closePosition(ctx, *decision, decision.CurrentPrice, "opposing signal")
	}
	return e.entryDecision(ctx, epic, result)
}

// exitDecision returns the held position when the new signal opposes it with
// enough confidence.
func (e *Engine) exitDecision(epic string, result *analysis.Result) *broker.Position {
	if result.Confidence < e.cfg.ExitThreshold {
		return nil
	}
	side, ok := orderSide(result.Signal)
	if !ok {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if pos, held := e.positions[epic]; held && pos.Side.Opposes(side) {
		p := pos
		return &p
	}
	return nil
}

// entryDecision opens a new position when the signal is actionable and every
// exposure limit allows it.
func (e *Engine) entryDecision(ctx context.Context, epic string, result *analysis.Result) error {
	if result.Confidence < e.cfg.EntryThreshold {
		return nil
	}
	side, ok := orderSide(result.Signal)
	if !ok {
		return nil
	}

	e.mu.RLock()
	_, held := e.positions[epic]
	pending := false
	for _, o := range e.pendingOrders {
		if o.Epic == epic {
			pending = true
			break
		}
	}
	open := len(e.positions)
	e.mu.RUnlock()

	if held || pending {
		return nil // one position per symbol
	}
	if open >= e.cfg.MaxPositions {
		log.Printf("engine: %s: skipping entry, %d positions open (max %d)", epic, open, e.cfg.MaxPositions)
		return nil
	}

	balance, err := e.broker.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	if e.tracker.DrawdownExceeded(balance.Total, e.cfg.MaxDrawdown) {
		events.Publish(e.bus, events.RiskAlerts, fmt.Sprintf("%s: entry blocked, daily drawdown limit reached", epic))
		return nil
	}

	info, err := e.broker.GetMarketInfo(ctx, epic)
	if err != nil {
		return fmt.Errorf("market info: %w", err)
	}

	entryPrice := info.Offer
	if side == broker.SideSell {
		entryPrice = info.Bid
	}

	qty, err := e.positionSize(balance, info, entryPrice, result.Risk.StopLoss)
	if err != nil {
		return fmt.Errorf("sizing: %w", err)
	}
	if qty < info.MinDealSize || qty <= 0 {
		log.Printf("engine: %s: computed size %.4f below minimum %.4f, skipping", epic, qty, info.MinDealSize)
		return nil
	}

	req := broker.OrderRequest{
		Epic:       epic,
		Side:       side,
		Type:       broker.OrderMarket,
		Quantity:   qty,
		StopLoss:   result.Risk.StopLoss,
		TakeProfit: result.Risk.TakeProfit,
		ClientID:   newClientRef(),
	}

	conf, err := e.broker.PlaceOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	status := conf.Status
	if status == "" {
		status = broker.StatusPending
	}
	order := broker.Order{
		ID:        conf.DealID,
		Epic:      epic,
		Type:      broker.OrderMarket,
		Side:      side,
		Quantity:  qty,
		StopPrice: result.Risk.StopLoss,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	e.mu.Lock()
	e.pendingOrders[order.ID] = order
	e.mu.Unlock()

	log.Printf("engine: %s: submitted %s %s qty=%.2f sl=%.5f tp=%.5f (confidence %.2f)",
		epic, side, order.Type, qty, req.StopLoss, req.TakeProfit, result.Confidence)

	// Market orders usually confirm terminally. Route the confirmation
	// through the order-update path so the fill reconciles right away
	// instead of waiting for the next cycle's resync.
	if status.Terminal() {
		events.Publish(e.bus, events.OrderUpdates, order)
	}
	return nil
}

func (e *Engine) positionSize(balance *broker.Balance, info *broker.MarketInfo, entry, stop float64) (float64, error) {
	inc := e.cfg.MinIncrement
	if info.MinDealSize > 0 && info.MinDealSize < inc {
		inc = info.MinDealSize
	}
	return risk.PositionSize(balance.Total, balance.Available, e.cfg.MaxRiskPerTrade, entry, stop, inc, info.MaxLeverage)
}

// orderSide maps an actionable signal to an order side. HOLD is not
// actionable.
func orderSide(s analysis.Signal) (broker.Side, bool) {
	switch s {
	case analysis.SignalBuy:
		return broker.SideBuy, true
	case analysis.SignalSell:
		return broker.SideSell, true
	default:
		return "", false
	}
}
