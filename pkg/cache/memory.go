package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryKVCapacity = 4096

type memEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type memCounter struct {
	value     int64
	expiresAt time.Time
}

type memSet struct {
	members map[string]struct{}
}

type memList struct {
	entries [][]byte
}

type memHash struct {
	fields    map[string]int64
	expiresAt time.Time
}

// MemoryCache is a process-local Cache used as the fallback when redis
// is unavailable and as the backing store in tests. Per-key TTLs are
// enforced at read time; the LRU bounds the KV footprint.
type MemoryCache struct {
	mu       sync.Mutex
	kv       *expirable.LRU[string, memEntry]
	sets     map[string]*memSet
	lists    map[string]*memList
	counters map[string]*memCounter
	hashes   map[string]*memHash
	now      func() time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		kv:       expirable.NewLRU[string, memEntry](memoryKVCapacity, nil, 0),
		sets:     make(map[string]*memSet),
		lists:    make(map[string]*memList),
		counters: make(map[string]*memCounter),
		hashes:   make(map[string]*memHash),
		now:      time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string, value interface{}) error {
	c.mu.Lock()
	entry, ok := c.kv.Get(key)
	if ok && entry.expired(c.now()) {
		c.kv.Remove(key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(entry.data, value); err != nil {
		return fmt.Errorf("memory get %s: decode: %w", key, err)
	}
	return nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory set %s: encode: %w", key, err)
	}
	entry := memEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.kv.Add(key, entry)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv.Remove(key)
	delete(c.sets, key)
	delete(c.lists, key)
	delete(c.counters, key)
	delete(c.hashes, key)
	return nil
}

func (c *MemoryCache) KeysMatching(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var keys []string
	for _, k := range c.kv.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if entry, ok := c.kv.Peek(k); ok && !entry.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (c *MemoryCache) SetAdd(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		s = &memSet{members: make(map[string]struct{})}
		c.sets[key] = s
	}
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) SetRemove(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(s.members, m)
	}
	return nil
}

func (c *MemoryCache) SetContains(ctx context.Context, key, member string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		return false, nil
	}
	_, ok = s.members[member]
	return ok, nil
}

func (c *MemoryCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		return nil, nil
	}
	members := make([]string, 0, len(s.members))
	for m := range s.members {
		members = append(members, m)
	}
	return members, nil
}

func (c *MemoryCache) ListPushCapped(ctx context.Context, key string, value interface{}, capacity int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory lpush %s: encode: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lists[key]
	if !ok {
		l = &memList{}
		c.lists[key] = l
	}
	l.entries = append([][]byte{data}, l.entries...)
	if int64(len(l.entries)) > capacity {
		l.entries = l.entries[:capacity]
	}
	return nil
}

func (c *MemoryCache) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lists[key]
	if !ok {
		return nil, nil
	}
	n := int64(len(l.entries))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, 0, stop-start+1)
	for _, e := range l.entries[start : stop+1] {
		out = append(out, string(e))
	}
	return out, nil
}

func (c *MemoryCache) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	ctr, ok := c.counters[key]
	if ok && !ctr.expiresAt.IsZero() && now.After(ctr.expiresAt) {
		ok = false
	}
	if !ok {
		ctr = &memCounter{}
		if ttl > 0 {
			ctr.expiresAt = now.Add(ttl)
		}
		c.counters[key] = ctr
	}
	ctr.value++
	return ctr.value, nil
}

func (c *MemoryCache) HashIncrWithTTL(ctx context.Context, key, field string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	h, ok := c.hashes[key]
	if ok && !h.expiresAt.IsZero() && now.After(h.expiresAt) {
		ok = false
	}
	if !ok {
		h = &memHash{fields: make(map[string]int64)}
		c.hashes[key] = h
	}
	if ttl > 0 {
		h.expiresAt = now.Add(ttl)
	}
	h.fields[field]++
	return h.fields[field], nil
}

func (c *MemoryCache) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok || (!h.expiresAt.IsZero() && c.now().After(h.expiresAt)) {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h.fields))
	for f, v := range h.fields {
		out[f] = strconv.FormatInt(v, 10)
	}
	return out, nil
}

func (c *MemoryCache) Close() error { return nil }
