// File: internal/state/redis.go
package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"marketpulse/internal/market"
)

const keyPrefix = "marketpulse:"

// Cache mirrors the latest tick and indicator snapshot per symbol into redis
// with a short TTL, for dashboards and status queries. It is optional: a nil
// *Cache is a no-op, and the pipeline runs identically without it. Nothing
// here sits on the ordered delivery path.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// New connects to redis at addr. Returns nil (disabled) when addr is empty
// or the server is unreachable; the caller keeps going in-memory only.
func New(addr string, db int, ttl time.Duration, log zerolog.Logger) *Cache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unavailable, state cache disabled")
		_ = client.Close()
		return nil
	}
	log.Info().Str("addr", addr).Msg("redis state cache enabled")
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "state").Logger(),
	}
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("redis set failed")
	}
}

// SaveTick stores the latest tick for a symbol.
func (c *Cache) SaveTick(ctx context.Context, t market.Tick) {
	if c == nil {
		return
	}
	c.set(ctx, "tick:"+t.Symbol, t)
}

// SaveSnapshot stores the latest indicator snapshot for a symbol.
func (c *Cache) SaveSnapshot(ctx context.Context, s market.Snapshot) {
	if c == nil {
		return
	}
	c.set(ctx, "snap:"+s.Symbol, s)
}

// Snapshot fetches the cached snapshot for a symbol, if present.
func (c *Cache) Snapshot(ctx context.Context, symbol string) (market.Snapshot, bool) {
	if c == nil {
		return market.Snapshot{}, false
	}
	data, err := c.client.Get(ctx, keyPrefix+"snap:"+symbol).Result()
	if err != nil {
		return market.Snapshot{}, false
	}
	var s market.Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return market.Snapshot{}, false
	}
	return s, true
}

// Close releases the redis connection.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	_ = c.client.Close()
}
