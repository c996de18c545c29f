// Package aggregate buffers raw quote ticks and compresses them into OHLCV
// data on two independent cycles: a fast flush that emits per-symbol
// snapshots, and a slower sweep that closes per-timeframe candles.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/events"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

const (
	defaultFlushEvery = 100 * time.Millisecond
	defaultCloseEvery = time.Second
)

type candleKey struct {
	epic      string
	timeframe string
}

// workingCandle accumulates mid-price OHLCV until its timeframe elapses.
type workingCandle struct {
	duration time.Duration
	openedAt time.Time
	candle   market.Candle
	hasData  bool
}

func (w *workingCandle) apply(t market.Tick) {
	mid := t.Mid()
	if !w.hasData {
		w.hasData = true
		w.candle = market.Candle{
			Timestamp: t.Timestamp,
			Open:      mid,
			High:      mid,
			Low:       mid,
			Close:     mid,
			Volume:    t.Volume,
		}
		return
	}
	if mid > w.candle.High {
		w.candle.High = mid
	}
	if mid < w.candle.Low {
		w.candle.Low = mid
	}
	w.candle.Close = mid
	w.candle.Volume += t.Volume
}

// Aggregator owns the tick buffers. It is safe for concurrent producers.
type Aggregator struct {
	bus        *events.Bus
	flushEvery time.Duration
	closeEvery time.Duration
	now        func() time.Time

	mu      sync.Mutex
	buffers map[string][]market.Tick
	candles map[candleKey]*workingCandle

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates an aggregator publishing to bus.
func New(bus *events.Bus) *Aggregator {
	return &Aggregator{
		bus:        bus,
		flushEvery: defaultFlushEvery,
		closeEvery: defaultCloseEvery,
		now:        time.Now,
		buffers:    make(map[string][]market.Tick),
		candles:    make(map[candleKey]*workingCandle),
		stop:       make(chan struct{}),
	}
}

// AddTick buffers a tick for the flush cycle and feeds every subscribed
// timeframe candle for the epic.
func (a *Aggregator) AddTick(t market.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buffers[t.Epic] = append(a.buffers[t.Epic], t)
	for key, wc := range a.candles {
		if key.epic == t.Epic {
			wc.apply(t)
		}
	}
}

// Subscribe starts candle accumulation for (epic, timeframe). Only the
// candle-close cycle is affected; flushing covers any epic with buffered
// ticks regardless of subscriptions.
func (a *Aggregator) Subscribe(epic, timeframe string) error {
	d, err := ParseTimeframe(timeframe)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	key := candleKey{epic: epic, timeframe: timeframe}
	if _, exists := a.candles[key]; !exists {
		a.candles[key] = &workingCandle{duration: d, openedAt: a.now()}
	}
	return nil
}

// Unsubscribe stops candle accumulation for (epic, timeframe).
func (a *Aggregator) Unsubscribe(epic, timeframe string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.candles, candleKey{epic: epic, timeframe: timeframe})
}

// Start runs the flush and candle-close tickers until ctx is cancelled or
// Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	go func() {
		flush := time.NewTicker(a.flushEvery)
		defer flush.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case <-flush.C:
				a.Flush()
			}
		}
	}()

	go func() {
		sweep := time.NewTicker(a.closeEvery)
		defer sweep.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stop:
				return
			case <-sweep.C:
				a.CloseDue(a.now())
			}
		}
	}()
}

// Stop halts both cycles. Idempotent.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Flush compresses each epic's buffered ticks into one snapshot and clears
// the buffer. Epics without ticks in the window emit nothing.
func (a *Aggregator) Flush() []market.Snapshot {
	a.mu.Lock()
	var out []market.Snapshot
	for epic, ticks := range a.buffers {
		if len(ticks) == 0 {
			continue
		}
		out = append(out, summarize(epic, ticks))
		delete(a.buffers, epic)
	}
	a.mu.Unlock()

	for _, snap := range out {
		events.Publish(a.bus, events.PriceUpdates, snap)
	}
	return out
}

// CloseDue closes every working candle whose timeframe has fully elapsed and
// starts a fresh empty candle in its place. Elapsed time is measured on the
// aggregator's clock from the candle's open, never on tick timestamps, so a
// skewed or delayed feed cannot shift the close schedule.
func (a *Aggregator) CloseDue(now time.Time) []market.ClosedCandle {
	a.mu.Lock()
	var out []market.ClosedCandle
	for key, wc := range a.candles {
		if now.Sub(wc.openedAt) < wc.duration {
			continue
		}
		if wc.hasData {
			out = append(out, market.ClosedCandle{Epic: key.epic, Timeframe: key.timeframe, Candle: wc.candle})
		}
		a.candles[key] = &workingCandle{duration: wc.duration, openedAt: now}
	}
	a.mu.Unlock()

	for _, cc := range out {
		events.Publish(a.bus, events.CandlesClosed, cc)
	}
	return out
}

// summarize folds a tick window into an OHLCV snapshot over mid-prices.
func summarize(epic string, ticks []market.Tick) market.Snapshot {
	first := ticks[0]
	last := ticks[len(ticks)-1]

	snap := market.Snapshot{
		Epic:      epic,
		Open:      first.Mid(),
		High:      first.Mid(),
		Low:       first.Mid(),
		Close:     last.Mid(),
		Bid:       last.Bid,
		Ask:       last.Ask,
		Timestamp: last.Timestamp,
	}
	for _, t := range ticks {
		mid := t.Mid()
		if mid > snap.High {
			snap.High = mid
		}
		if mid < snap.Low {
			snap.Low = mid
		}
		snap.Volume += t.Volume
	}
	return snap
}
