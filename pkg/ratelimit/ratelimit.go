package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Category identifies an API channel with its own budget at the broker.
type Category string

const (
	CategoryGlobal     Category = "global"
	CategoryMarketData Category = "market_data"
	CategoryTrading    Category = "trading"
	CategoryAccount    Category = "account"
)

// Limits configures tokens per second for each category. Burst equals the
// per-second rate so a full window can be spent at once.
type Limits struct {
	Global     float64
	MarketData float64
	Trading    float64
	Account    float64
}

// DefaultLimits mirrors the broker's published per-channel budgets.
func DefaultLimits() Limits {
	return Limits{
		Global:     10,
		MarketData: 5,
		Trading:    1,
		Account:    2,
	}
}

// Limiter gates outbound requests through per-category token buckets. Every
// request consumes from the global bucket plus its specific category, so a
// single call can be delayed twice. Wait never rejects, it only delays.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[Category]*rate.Limiter
}

// New builds a limiter from the given limits. Zero rates fall back to defaults
// so a misconfigured category cannot starve forever.
func New(limits Limits) *Limiter {
	def := DefaultLimits()
	pick := func(v, fallback float64) float64 {
		if v <= 0 {
			return fallback
		}
		return v
	}

	mk := func(perSec float64) *rate.Limiter {
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		return rate.NewLimiter(rate.Limit(perSec), burst)
	}

	return &Limiter{
		buckets: map[Category]*rate.Limiter{
			CategoryGlobal:     mk(pick(limits.Global, def.Global)),
			CategoryMarketData: mk(pick(limits.MarketData, def.MarketData)),
			CategoryTrading:    mk(pick(limits.Trading, def.Trading)),
			CategoryAccount:    mk(pick(limits.Account, def.Account)),
		},
	}
}

// Wait blocks until both the global bucket and the category bucket grant a
// token, or until ctx is cancelled. Unknown categories only pass the global
// gate.
func (l *Limiter) Wait(ctx context.Context, category Category) error {
	l.mu.RLock()
	global := l.buckets[CategoryGlobal]
	specific := l.buckets[category]
	l.mu.RUnlock()

	if err := global.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait (global): %w", err)
	}
	if category == CategoryGlobal || specific == nil {
		return nil
	}
	if err := specific.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait (%s): %w", category, err)
	}
	return nil
}

// Allow reports whether a token is immediately available in both gates and
// consumes them if so. Used by tests and non-blocking probes.
func (l *Limiter) Allow(category Category) bool {
	l.mu.RLock()
	global := l.buckets[CategoryGlobal]
	specific := l.buckets[category]
	l.mu.RUnlock()

	if !global.Allow() {
		return false
	}
	if category == CategoryGlobal || specific == nil {
		return true
	}
	return specific.Allow()
}
