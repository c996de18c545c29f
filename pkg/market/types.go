// Package market holds the normalized market-data types shared by the stream,
// aggregator, cache, and engine layers.
package market

import "time"

// Tick is a single bid/ask quote update for an epic at a point in time.
// Ticks are ephemeral: produced by the stream, consumed by the aggregator.
type Tick struct {
	Epic      string
	Bid       float64
	Ask       float64
	Volume    float64
	Timestamp time.Time
}

// Mid returns the mid-price of the quote.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Candle is an OHLCV summary of price over a time bucket. Immutable once closed.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Valid reports whether the OHLC invariant holds:
// high >= max(open, close) and low <= min(open, close).
func (c Candle) Valid() bool {
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	return c.High >= hi && c.Low <= lo
}

// ClosedCandle pairs a completed candle with the epic and timeframe it
// closed for.
type ClosedCandle struct {
	Epic      string
	Timeframe string
	Candle    Candle
}

// Snapshot is the aggregator's per-flush OHLCV summary for one epic. Open and
// close are mid-prices of the first and last tick in the flush window.
type Snapshot struct {
	Epic      string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Bid       float64
	Ask       float64
	Timestamp time.Time
}
