// Package cache provides the key/value, set, capped-list and counter
// operations the service persists through, with a redis implementation
// and an in-memory fallback for when redis is unreachable.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a cache miss.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the storage surface shared by the explanation cache and the
// security ledger. Values round-trip as JSON.
type Cache interface {
	// Get unmarshals the value at key into value. Returns ErrNotFound
	// on miss.
	Get(ctx context.Context, key string, value interface{}) error
	// Set stores value at key with the given TTL. ttl <= 0 means no
	// expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// KeysMatching returns every key starting with prefix.
	KeysMatching(ctx context.Context, prefix string) ([]string, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetContains(ctx context.Context, key, member string) (bool, error)
	SetMembers(ctx context.Context, key string) ([]string, error)

	// ListPushCapped prepends value (JSON-encoded) and trims the list
	// to at most capacity entries.
	ListPushCapped(ctx context.Context, key string, value interface{}, capacity int64) error
	// ListRange returns raw JSON entries in [start, stop], newest first.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// IncrWithTTL atomically increments the counter at key. The TTL is
	// applied when the counter is created.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// HashIncrWithTTL increments a field inside the hash at key and
	// refreshes the hash TTL.
	HashIncrWithTTL(ctx context.Context, key, field string, ttl time.Duration) (int64, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	Close() error
}
