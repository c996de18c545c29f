package candlecache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

// Source fetches historical candles when the cache cannot serve a range.
// *broker.Client satisfies it.
type Source interface {
	GetCandles(ctx context.Context, epic, resolution string, from, to time.Time) ([]market.Candle, error)
}

// Loader fronts a Source with the cache: hits come from the cache, misses go
// to the source and are written through.
type Loader struct {
	cache  *Cache
	source Source
}

// NewLoader builds a read-through loader.
func NewLoader(cache *Cache, source Source) *Loader {
	return &Loader{cache: cache, source: source}
}

// Candles returns the candle range for (epic, timeframe, from, to), fetching
// from the source only on a cache miss.
func (l *Loader) Candles(ctx context.Context, epic, timeframe string, from, to time.Time) ([]market.Candle, error) {
	key := Key{Epic: epic, Timeframe: timeframe, Start: from, End: to}

	candles, err := l.cache.Get(ctx, key)
	if err == nil {
		return candles, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	candles, err = l.source.GetCandles(ctx, epic, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", epic, timeframe, err)
	}
	if putErr := l.cache.Put(ctx, key, candles, true); putErr != nil {
		log.Printf("candlecache: write-through %s %s: %v", epic, timeframe, putErr)
	}
	return candles, nil
}
