// Package explain generates structured match explanations for a
// (query, listing) pair, cached by content so identical questions never
// pay for a second model call.
package explain

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/cache"
	"github.com/propmatch/propmatch/pkg/llm"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
	"github.com/propmatch/propmatch/pkg/store"
)

const (
	cachePrefix = "propmatch:explanation:"

	explanationTemperature = 0.1
	explanationMaxTokens   = 800
)

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	CachedEntries int     `json:"cached_entries"`
}

// Engine produces explanations through the model cascade with a
// write-through cache in front.
type Engine struct {
	cache    cache.Cache
	listings store.ListingStore
	cascade  *llm.Cascade
	ttl      time.Duration
	logger   observability.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewEngine wires the engine; ttl <= 0 falls back to seven days.
func NewEngine(c cache.Cache, listings store.ListingStore, cascade *llm.Cascade, ttl time.Duration, logger observability.Logger) *Engine {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Engine{
		cache:    c,
		listings: listings,
		cascade:  cascade,
		ttl:      ttl,
		logger:   logger.WithPrefix("explain"),
	}
}

// cacheKey addresses an explanation by the normalized query and listing
// key. The listing key stays visible in the key name so per-listing
// invalidation can match on prefix.
func cacheKey(query string, listingKey int64) string {
	content := fmt.Sprintf("%s:%d", strings.TrimSpace(strings.ToLower(query)), listingKey)
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("%s%d:%s", cachePrefix, listingKey, hex.EncodeToString(sum[:]))
}

// Generate returns the explanation for a query/listing pair, from cache
// when possible. Query must be non-empty; an unknown listing is a
// not_found error.
func (e *Engine) Generate(ctx context.Context, query string, listingKey int64) (*models.Explanation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.Invalid("search query is required")
	}

	listing, err := e.listings.GetByKey(ctx, listingKey)
	if err != nil {
		return nil, err
	}

	key := cacheKey(query, listingKey)
	var cached models.Explanation
	switch err := e.cache.Get(ctx, key, &cached); {
	case err == nil:
		e.hits.Add(1)
		cached.Cached = true
		return &cached, nil
	case err != cache.ErrNotFound:
		// A broken cache degrades to generation, it never fails the
		// request.
		e.logger.Warn("explanation cache read failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	e.misses.Add(1)

	result, err := e.cascade.Chat(ctx, explanationMessages(query, listing),
		explanationTemperature, explanationMaxTokens)
	if err != nil {
		return nil, err
	}

	expl, err := parseExplanation(result.Text)
	if err != nil {
		return nil, apperrors.Upstream("explanation response unusable", err)
	}
	expl.SearchQuery = query
	expl.ListingKey = listingKey
	expl.PropertyTitle = listing.Title

	if err := e.cache.Set(ctx, key, expl, e.ttl); err != nil {
		e.logger.Warn("explanation cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return expl, nil
}

// InvalidateListing removes every cached explanation for one listing,
// returning how many entries were dropped.
func (e *Engine) InvalidateListing(ctx context.Context, listingKey int64) (int, error) {
	keys, err := e.cache.KeysMatching(ctx, fmt.Sprintf("%s%d:", cachePrefix, listingKey))
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := e.cache.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// ClearAll drops the whole explanation cache, returning the entry count.
func (e *Engine) ClearAll(ctx context.Context) (int, error) {
	keys, err := e.cache.KeysMatching(ctx, cachePrefix)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := e.cache.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// CacheStats reports hit/miss counters for this process plus the live
// entry count.
func (e *Engine) CacheStats(ctx context.Context) (*Stats, error) {
	keys, err := e.cache.KeysMatching(ctx, cachePrefix)
	if err != nil {
		return nil, err
	}
	hits, misses := e.hits.Load(), e.misses.Load()
	s := &Stats{Hits: hits, Misses: misses, CachedEntries: len(keys)}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s, nil
}
