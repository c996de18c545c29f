// Package engine owns all trading state. It runs the periodic analysis loop,
// enforces exposure limits, submits orders, and watches open positions for
// stop-loss/take-profit breaches. The engine is the only writer of
// activePositions and pendingOrders; everything else reads snapshots or
// publishes events the engine reacts to.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/analysis"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/events"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/risk"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/broker"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/db"
)

// AccountReader reads account truth from the broker.
type AccountReader interface {
	GetBalance(ctx context.Context) (*broker.Balance, error)
	GetPositions(ctx context.Context) ([]broker.Position, error)
	GetOrders(ctx context.Context) ([]broker.Order, error)
}

// OrderExecutor submits and cancels orders.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderConfirmation, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketDataSource provides instrument details.
type MarketDataSource interface {
	GetMarketInfo(ctx context.Context, epic string) (*broker.MarketInfo, error)
}

// Broker is the full capability set the engine needs. *broker.Client
// satisfies it.
type Broker interface {
	AccountReader
	OrderExecutor
	MarketDataSource
}

// AnalysisRecord is the engine's memory of the last analysis per symbol.
type AnalysisRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	Signal     analysis.Signal `json:"signal"`
	Confidence float64         `json:"confidence"`
	Error      string          `json:"error,omitempty"`
}

// Engine coordinates analysis, order submission, and position monitoring.
type Engine struct {
	cfg        risk.Config
	symbols    []string
	timeframes []string

	broker   Broker
	analyzer analysis.Analyzer
	bus      *events.Bus
	watcher  *risk.Watcher
	tracker  *risk.Tracker
	database *db.Database // optional; nil skips trade records

	interval time.Duration

	mu            sync.RWMutex
	positions     map[string]broker.Position // epic -> open position
	pendingOrders map[string]broker.Order    // order id -> order
	closing       map[string]string          // epic -> position id with an exit in flight
	lastAnalysis  map[string]AnalysisRecord  // epic -> last result
	running       bool

	stopOnce sync.Once
	stop     chan struct{}
	unsubs   []func()
}

// Options bundles the engine's collaborators.
type Options struct {
	Config     risk.Config
	Symbols    []string
	Timeframes []string
	Broker     Broker
	Analyzer   analysis.Analyzer
	Bus        *events.Bus
	Database   *db.Database
	Interval   time.Duration
}

// New builds a stopped engine.
func New(opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Engine{
		cfg:           opts.Config,
		symbols:       opts.Symbols,
		timeframes:    opts.Timeframes,
		broker:        opts.Broker,
		analyzer:      opts.Analyzer,
		bus:           opts.Bus,
		watcher:       risk.NewWatcher(),
		tracker:       risk.NewTracker(),
		database:      opts.Database,
		interval:      opts.Interval,
		positions:     make(map[string]broker.Position),
		pendingOrders: make(map[string]broker.Order),
		closing:       make(map[string]string),
		lastAnalysis:  make(map[string]AnalysisRecord),
		stop:          make(chan struct{}),
	}
}

// Start rebuilds state from broker truth, wires the event subscriptions, and
// launches the analysis loop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Resync(ctx); err != nil {
		return err
	}

	priceCh, unsubPrice := events.Subscribe(e.bus, events.PriceUpdates, 256)
	orderCh, unsubOrder := events.Subscribe(e.bus, events.OrderUpdates, 64)

	e.mu.Lock()
	e.running = true
	e.unsubs = append(e.unsubs, unsubPrice, unsubOrder)
	e.mu.Unlock()

	go func() {
		for snap := range priceCh {
			e.OnPriceUpdate(ctx, snap)
		}
	}()
	go func() {
		for o := range orderCh {
			e.OnOrderUpdate(ctx, o)
		}
	}()

	go e.loop(ctx)
	return nil
}

// Stop deregisters listeners and halts the loop before returning, so no late
// callback mutates state after teardown.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })

	e.mu.Lock()
	e.running = false
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Resync replaces the active positions with the broker's authoritative list
// and prunes pendingOrders against its working-order list, so fills and
// cancellations that never produced a status event still reconcile. Called on
// start, after fills, and at the top of every analysis cycle.
func (e *Engine) Resync(ctx context.Context) error {
	list, err := e.broker.GetPositions(ctx)
	if err != nil {
		return err
	}
	working, err := e.broker.GetOrders(ctx)
	if err != nil {
		return err
	}
	reported := make(map[string]broker.Order, len(working))
	for _, o := range working {
		reported[o.ID] = o
	}
	byEpic := make(map[string]broker.Position, len(list))
	for _, p := range list {
		byEpic[p.Epic] = p
	}

	e.mu.Lock()

	// An in-flight exit stays remembered until the broker stops reporting
	// the position; only then is the epic tradable again.
	for epic, id := range e.closing {
		if p, still := byEpic[epic]; !still || p.ID != id {
			delete(e.closing, epic)
		}
	}

	e.positions = make(map[string]broker.Position, len(list))
	var track []broker.Position
	for _, p := range list {
		if id, inflight := e.closing[p.Epic]; inflight && id == p.ID {
			continue // exit submitted; do not re-adopt or re-track
		}
		e.positions[p.Epic] = p
		track = append(track, p)
	}

	var filled []broker.Order
	for id, local := range e.pendingOrders {
		rep, stillWorking := reported[id]
		switch {
		case stillWorking && !rep.Status.Terminal():
			local.Status = rep.Status
			local.UpdatedAt = time.Now().UTC()
			e.pendingOrders[id] = local
		case stillWorking:
			delete(e.pendingOrders, id)
			local.Status = rep.Status
			if rep.Status == broker.StatusFilled {
				filled = append(filled, local)
			}
		default:
			// Gone from the order book. The position list above decides
			// whether it filled or was cancelled on the way.
			delete(e.pendingOrders, id)
			if _, held := e.positions[local.Epic]; held {
				local.Status = broker.StatusFilled
				filled = append(filled, local)
			} else {
				log.Printf("engine: %s: order %s no longer at broker, dropping", local.Epic, id)
			}
		}
	}
	e.mu.Unlock()

	for _, p := range track {
		e.watcher.Track(p)
	}
	for _, o := range filled {
		e.announceFill(ctx, o)
	}
	log.Printf("engine: resynced %d positions, %d working orders from broker", len(track), len(working))
	return nil
}

// Positions returns a snapshot of the active positions.
func (e *Engine) Positions() []broker.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out
}

// PendingOrders returns a snapshot of orders awaiting acknowledgment.
func (e *Engine) PendingOrders() []broker.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]broker.Order, 0, len(e.pendingOrders))
	for _, o := range e.pendingOrders {
		out = append(out, o)
	}
	return out
}

// LastAnalysis returns the recorded analysis results per symbol.
func (e *Engine) LastAnalysis() map[string]AnalysisRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]AnalysisRecord, len(e.lastAnalysis))
	for k, v := range e.lastAnalysis {
		out[k] = v
	}
	return out
}

// Metrics exposes the risk tracker snapshot.
func (e *Engine) Metrics() risk.Metrics {
	return e.tracker.Snapshot()
}

// Running reports whether Start has been called and Stop has not.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func newClientRef() string {
	return uuid.NewString()
}
