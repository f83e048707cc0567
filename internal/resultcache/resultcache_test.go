package resultcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	kv := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(kv, time.Minute)
}

func TestGetMissesOnUnsetKey(t *testing.T) {
	c := newTestCache(t)
	if _, ok := c.Get(context.Background(), "nope"); ok {
		t.Fatal("expected a miss")
	}
}

func TestSetThenGetHits(t *testing.T) {
	c := newTestCache(t)
	c.Set(context.Background(), "artist:Radiohead:childcount", 7)
	v, ok := c.Get(context.Background(), "artist:Radiohead:childcount")
	if !ok || v != 7 {
		t.Fatalf("got v=%d ok=%v", v, ok)
	}
}

func TestInvalidateRemovesKey(t *testing.T) {
	c := newTestCache(t)
	c.Set(context.Background(), "k", 1)
	c.Invalidate(context.Background(), "k")
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("expected a miss after invalidate")
	}
}

func TestInvalidateAllClearsEverything(t *testing.T) {
	c := newTestCache(t)
	c.Set(context.Background(), "a", 1)
	c.Set(context.Background(), "b", 2)
	c.InvalidateAll(context.Background())
	if _, ok := c.Get(context.Background(), "a"); ok {
		t.Fatal("expected a to be cleared")
	}
	if _, ok := c.Get(context.Background(), "b"); ok {
		t.Fatal("expected b to be cleared")
	}
}

func TestNilCacheIsAlwaysMiss(t *testing.T) {
	var c *Cache
	c.Set(context.Background(), "k", 1)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("expected nil cache to always miss")
	}
	c.Invalidate(context.Background(), "k")
	c.InvalidateAll(context.Background())
}
