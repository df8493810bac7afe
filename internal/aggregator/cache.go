package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// DefaultCacheTTL keeps chats that post in the same second from hammering the
// exchanges.
const DefaultCacheTTL = 20 * time.Second

// Cache stores recent price maps keyed by token and exchange set. Failures are
// treated as misses.
type Cache interface {
	Get(ctx context.Context, key string) (market.PriceMap, bool)
	Set(ctx context.Context, key string, pm market.PriceMap)
}

type memoryEntry struct {
	pm market.PriceMap
	at time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (market.PriceMap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return clonePrices(e.pm), true
}

func (c *MemoryCache) Set(_ context.Context, key string, pm market.PriceMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{pm: clonePrices(pm), at: now}
}

// RedisCache shares price maps between bot instances.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewRedisCache connects and pings Redis.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration, log zerolog.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl, log: log.With().Str("component", "cache").Logger()}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (market.PriceMap, bool) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Debug().Err(err).Str("key", key).Msg("redis get")
		}
		return nil, false
	}
	var pm market.PriceMap
	if err := json.Unmarshal(b, &pm); err != nil {
		r.log.Debug().Err(err).Str("key", key).Msg("redis decode")
		return nil, false
	}
	return pm, true
}

func (r *RedisCache) Set(ctx context.Context, key string, pm market.PriceMap) {
	b, err := json.Marshal(pm)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		r.log.Debug().Err(err).Str("key", key).Msg("redis set")
	}
}

func (r *RedisCache) Close() error { return r.rdb.Close() }

func clonePrices(pm market.PriceMap) market.PriceMap {
	out := make(market.PriceMap, len(pm))
	for k, v := range pm {
		out[k] = v
	}
	return out
}
