// Package resultcache provides a cross-request TTL cache of scalar
// aggregate query results (childcount, duration sums), keyed by the exact
// SPARQL statement they answer, so a repeated root or container browse
// does not re-run an expensive unique-group query every time. It mirrors
// the teacher's queue write-through cache shape.
package resultcache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "resultcache:scalar:"

// Cache wraps a Redis client with a fixed TTL for every stored value. A
// nil *Cache is valid and behaves as an always-miss cache, so callers can
// wire it unconditionally without a separate "caching disabled" branch.
type Cache struct {
	kv  *redis.Client
	ttl time.Duration
}

// New returns a Cache storing values for ttl.
func New(kv *redis.Client, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl}
}

// Get returns the cached scalar for key, if present and unexpired.
func (c *Cache) Get(ctx context.Context, key string) (int64, bool) {
	if c == nil || c.kv == nil {
		return 0, false
	}
	raw, err := c.kv.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Set stores v under key for the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, key string, v int64) {
	if c == nil || c.kv == nil {
		return
	}
	c.kv.Set(ctx, keyPrefix+key, strconv.FormatInt(v, 10), c.ttl)
}

// Invalidate drops any cached value for key.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil || c.kv == nil {
		return
	}
	c.kv.Del(ctx, keyPrefix+key)
}

// InvalidateAll drops every cached aggregate, used after a set_metadata
// or destroy_object call, whose blast radius (for a destroy, an
// artist/album cascade) is cheaper to invalidate wholesale than to
// enumerate precisely.
func (c *Cache) InvalidateAll(ctx context.Context) {
	if c == nil || c.kv == nil {
		return
	}
	iter := c.kv.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.kv.Del(ctx, keys...)
	}
}
