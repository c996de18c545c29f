// Package candlecache keeps historical candle ranges in a two-tier cache:
// an in-memory map in front of a persistent store. Entries go stale after
// maxAge and are swept hourly from both tiers.
package candlecache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

// ErrCacheMiss means neither tier has a fresh entry; the caller falls back
// to a live fetch and calls Put.
var ErrCacheMiss = errors.New("candlecache: miss")

const defaultMaxAge = 24 * time.Hour

// Key identifies one cached candle range.
type Key struct {
	Epic      string
	Timeframe string
	Start     time.Time
	End       time.Time
}

// Entry is a cached candle range.
type Entry struct {
	Key         Key
	Candles     []market.Candle
	IsComplete  bool
	LastUpdated time.Time
}

// Store is the persistent tier. Get returns ErrCacheMiss when absent.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, e Entry) error
	Invalidate(ctx context.Context, epic, timeframe string) (int, error)
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

// Cache is the two-tier candle cache. Promotion from the persistent tier and
// staleness policy live here so they are implemented once for any store.
type Cache struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time

	mu  sync.RWMutex
	mem map[Key]Entry

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache over the given persistent store. maxAge <= 0 falls
// back to 24h.
func New(store Store, maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Cache{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
		mem:    make(map[Key]Entry),
		stop:   make(chan struct{}),
	}
}

func (c *Cache) fresh(e Entry) bool {
	return c.now().Sub(e.LastUpdated) <= c.maxAge
}

// Get checks memory first, then the persistent tier; a fresh persistent hit
// is promoted into memory. Stale or absent entries yield ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key Key) ([]market.Candle, error) {
	c.mu.RLock()
	e, ok := c.mem[key]
	c.mu.RUnlock()
	if ok && c.fresh(e) {
		return e.Candles, nil
	}

	stored, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	if !c.fresh(*stored) {
		return nil, ErrCacheMiss
	}

	c.mu.Lock()
	c.mem[key] = *stored
	c.mu.Unlock()
	return stored.Candles, nil
}

// Put writes through both tiers unconditionally: a fresh fetch always
// overwrites whatever was there.
func (c *Cache) Put(ctx context.Context, key Key, candles []market.Candle, complete bool) error {
	e := Entry{
		Key:         key,
		Candles:     candles,
		IsComplete:  complete,
		LastUpdated: c.now(),
	}

	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()

	return c.store.Put(ctx, e)
}

// Invalidate removes matching entries from both tiers immediately.
// An empty timeframe matches every timeframe for the epic.
func (c *Cache) Invalidate(ctx context.Context, epic, timeframe string) error {
	c.mu.Lock()
	for key := range c.mem {
		if key.Epic == epic && (timeframe == "" || key.Timeframe == timeframe) {
			delete(c.mem, key)
		}
	}
	c.mu.Unlock()

	_, err := c.store.Invalidate(ctx, epic, timeframe)
	return err
}

// Sweep evicts entries older than maxAge from both tiers, independent of
// access patterns. Returns counts for memory and store.
func (c *Cache) Sweep(ctx context.Context) (memRemoved, storeRemoved int) {
	cutoff := c.now().Add(-c.maxAge)

	c.mu.Lock()
	for key, e := range c.mem {
		if e.LastUpdated.Before(cutoff) {
			delete(c.mem, key)
			memRemoved++
		}
	}
	c.mu.Unlock()

	n, err := c.store.Sweep(ctx, cutoff)
	if err != nil {
		log.Printf("candlecache: sweep: %v", err)
	}
	return memRemoved, n
}

// StartSweeper runs Sweep on the given interval until ctx ends or Stop is
// called.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				mem, stored := c.Sweep(ctx)
				if mem+stored > 0 {
					log.Printf("candlecache: swept %d memory, %d persistent entries", mem, stored)
				}
			}
		}
	}()
}

// Stop halts the sweeper. Idempotent.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Stats reports the in-memory tier size.
type Stats struct {
	MemoryEntries int           `json:"memory_entries"`
	MaxAge        time.Duration `json:"max_age"`
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{MemoryEntries: len(c.mem), MaxAge: c.maxAge}
}
