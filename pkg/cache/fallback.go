package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/propmatch/propmatch/pkg/observability"
)

// FallbackCache tries the primary cache first and degrades to the
// in-memory cache when the primary errors. The fallback keeps the
// quarantine set and counters functional during a redis outage; entries
// written there do not sync back.
type FallbackCache struct {
	primary  Cache
	fallback Cache
	logger   observability.Logger
	// degraded flips on the first primary failure so the outage is
	// logged once, not per call.
	degraded atomic.Bool
}

// NewFallbackCache wraps primary with a MemoryCache fallback.
func NewFallbackCache(primary Cache, logger observability.Logger) *FallbackCache {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &FallbackCache{
		primary:  primary,
		fallback: NewMemoryCache(),
		logger:   logger.WithPrefix("cache"),
	}
}

func (c *FallbackCache) noteFailure(op string, err error) {
	if c.degraded.CompareAndSwap(false, true) {
		c.logger.Warn("primary cache unavailable, using memory fallback", map[string]interface{}{
			"operation": op,
			"error":     err.Error(),
		})
	}
}

func (c *FallbackCache) noteRecovery() {
	if c.degraded.CompareAndSwap(true, false) {
		c.logger.Info("primary cache recovered", nil)
	}
}

func (c *FallbackCache) Get(ctx context.Context, key string, value interface{}) error {
	err := c.primary.Get(ctx, key, value)
	if err == nil || errors.Is(err, ErrNotFound) {
		c.noteRecovery()
		return err
	}
	c.noteFailure("get", err)
	return c.fallback.Get(ctx, key, value)
}

func (c *FallbackCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.primary.Set(ctx, key, value, ttl); err != nil {
		c.noteFailure("set", err)
		return c.fallback.Set(ctx, key, value, ttl)
	}
	c.noteRecovery()
	return nil
}

func (c *FallbackCache) Delete(ctx context.Context, key string) error {
	if err := c.primary.Delete(ctx, key); err != nil {
		c.noteFailure("delete", err)
		return c.fallback.Delete(ctx, key)
	}
	_ = c.fallback.Delete(ctx, key)
	c.noteRecovery()
	return nil
}

func (c *FallbackCache) KeysMatching(ctx context.Context, prefix string) ([]string, error) {
	keys, err := c.primary.KeysMatching(ctx, prefix)
	if err != nil {
		c.noteFailure("keys", err)
		return c.fallback.KeysMatching(ctx, prefix)
	}
	c.noteRecovery()
	return keys, nil
}

func (c *FallbackCache) SetAdd(ctx context.Context, key string, members ...string) error {
	if err := c.primary.SetAdd(ctx, key, members...); err != nil {
		c.noteFailure("sadd", err)
		return c.fallback.SetAdd(ctx, key, members...)
	}
	c.noteRecovery()
	return nil
}

func (c *FallbackCache) SetRemove(ctx context.Context, key string, members ...string) error {
	if err := c.primary.SetRemove(ctx, key, members...); err != nil {
		c.noteFailure("srem", err)
		return c.fallback.SetRemove(ctx, key, members...)
	}
	_ = c.fallback.SetRemove(ctx, key, members...)
	c.noteRecovery()
	return nil
}

func (c *FallbackCache) SetContains(ctx context.Context, key, member string) (bool, error) {
	ok, err := c.primary.SetContains(ctx, key, member)
	if err != nil {
		c.noteFailure("sismember", err)
		return c.fallback.SetContains(ctx, key, member)
	}
	c.noteRecovery()
	return ok, nil
}

func (c *FallbackCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.primary.SetMembers(ctx, key)
	if err != nil {
		c.noteFailure("smembers", err)
		return c.fallback.SetMembers(ctx, key)
	}
	c.noteRecovery()
	return members, nil
}

func (c *FallbackCache) ListPushCapped(ctx context.Context, key string, value interface{}, capacity int64) error {
	if err := c.primary.ListPushCapped(ctx, key, value, capacity); err != nil {
		c.noteFailure("lpush", err)
		return c.fallback.ListPushCapped(ctx, key, value, capacity)
	}
	c.noteRecovery()
	return nil
}

func (c *FallbackCache) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	entries, err := c.primary.ListRange(ctx, key, start, stop)
	if err != nil {
		c.noteFailure("lrange", err)
		return c.fallback.ListRange(ctx, key, start, stop)
	}
	c.noteRecovery()
	return entries, nil
}

func (c *FallbackCache) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.primary.IncrWithTTL(ctx, key, ttl)
	if err != nil {
		c.noteFailure("incr", err)
		return c.fallback.IncrWithTTL(ctx, key, ttl)
	}
	c.noteRecovery()
	return n, nil
}

func (c *FallbackCache) HashIncrWithTTL(ctx context.Context, key, field string, ttl time.Duration) (int64, error) {
	n, err := c.primary.HashIncrWithTTL(ctx, key, field, ttl)
	if err != nil {
		c.noteFailure("hincrby", err)
		return c.fallback.HashIncrWithTTL(ctx, key, field, ttl)
	}
	c.noteRecovery()
	return n, nil
}

func (c *FallbackCache) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.primary.HashGetAll(ctx, key)
	if err != nil {
		c.noteFailure("hgetall", err)
		return c.fallback.HashGetAll(ctx, key)
	}
	c.noteRecovery()
	return fields, nil
}

func (c *FallbackCache) Close() error {
	_ = c.fallback.Close()
	return c.primary.Close()
}
