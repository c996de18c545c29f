package candlecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps candle ranges in Redis with a TTL matching the cache's
// max age, so the persistent tier self-expires and Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
	maxAge time.Duration
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client, maxAge time.Duration) *RedisStore {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &RedisStore{client: client, prefix: "candles:", maxAge: maxAge}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + k.Epic + ":" + k.Timeframe + ":" +
		strconv.FormatInt(k.Start.UnixMilli(), 10) + ":" +
		strconv.FormatInt(k.End.UnixMilli(), 10)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("candlecache redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	e.Key = key
	return &e, nil
}

func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(e.Key), raw, s.maxAge).Err(); err != nil {
		return fmt.Errorf("candlecache redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, epic, timeframe string) (int, error) {
	pattern := s.prefix + epic + ":*"
	if timeframe != "" {
		pattern = s.prefix + epic + ":" + timeframe + ":*"
	}

	removed := 0
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

// Sweep is a no-op: entries carry a TTL and expire on their own.
func (s *RedisStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}
