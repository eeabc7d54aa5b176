// Package statscache keeps computed attendance statistics in Redis.
package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"backoffice/internal/store"
)

// Cache stores JSON values under a key prefix and remembers every key it
// wrote in an index set so they can be dropped together. A generation counter
// is bumped on every invalidation; readers embed it in their keys so a value
// computed before an invalidation is written under a key nobody reads.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a cache on client. Keys live under prefix and expire after ttl.
func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string {
	return store.JoinKey(c.prefix, k)
}

func (c *Cache) indexKey() string {
	return store.JoinKey(c.prefix, "stats", "keys")
}

func (c *Cache) generationKey() string {
	return store.JoinKey(c.prefix, "stats", "generation")
}

// Generation returns the current cache generation; 0 before the first
// invalidation.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get generation: %w", err)
	}
	return n, nil
}

// GetStats loads key into dst. It reports false on a miss.
func (c *Cache) GetStats(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		// A value we cannot decode is treated as a miss and overwritten later.
		return false, nil
	}
	return true, nil
}

// SetStats stores v under key.
func (c *Cache) SetStats(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	full := c.key(key)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, full, b, c.ttl)
	pipe.SAdd(ctx, c.indexKey(), full)
	pipe.Expire(ctx, c.indexKey(), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// InvalidateAll bumps the generation, drops every cached value and returns how
// many keys were removed.
func (c *Cache) InvalidateAll(ctx context.Context) (int, error) {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return 0, fmt.Errorf("bump generation: %w", err)
	}
	keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("list cached keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.client.Del(ctx, append(keys, c.indexKey())...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete cached keys: %w", err)
	}
	// The index key itself is not a cached value.
	if n > 0 {
		n--
	}
	return int(n), nil
}
