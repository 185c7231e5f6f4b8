package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/propmatch/propmatch/pkg/config"
)

// Tier selects the token-bucket budget for an endpoint class.
type Tier string

const (
	TierStrict      Tier = "strict"
	TierExplanation Tier = "explanation"
	TierSearch      Tier = "search"
	TierGeneral     Tier = "general"
)

// staleAfter is how long an idle per-client limiter survives before the
// sweep drops it.
const staleAfter = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per (ip, tier). Buckets refill at
// the per-minute budget and allow a full budget as burst.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	perMin  map[Tier]int
	now     func() time.Time

	sweepCounter int
}

// NewRateLimiter derives the tier budgets from configuration.
func NewRateLimiter(cfg config.SecurityConfig) *RateLimiter {
	perMin := map[Tier]int{
		TierStrict:      cfg.StrictRatePerMin,
		TierExplanation: cfg.ExplanationRatePerMin,
		TierSearch:      cfg.SearchRatePerMin,
		TierGeneral:     cfg.GeneralRatePerMin,
	}
	for tier, n := range perMin {
		if n <= 0 {
			perMin[tier] = 100
		}
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		perMin:  perMin,
		now:     time.Now,
	}
}

// Allow consumes one token from the client's bucket for the tier.
func (r *RateLimiter) Allow(ip string, tier Tier) bool {
	budget, ok := r.perMin[tier]
	if !ok {
		budget = r.perMin[TierGeneral]
	}

	r.mu.Lock()
	key := ip + ":" + string(tier)
	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(budget)/60.0), budget),
		}
		r.entries[key] = e
	}
	e.lastSeen = r.now()

	// Sweep stale clients occasionally so the map stays bounded.
	r.sweepCounter++
	if r.sweepCounter >= 1024 {
		r.sweepCounter = 0
		r.sweepLocked()
	}
	r.mu.Unlock()

	return e.limiter.Allow()
}

// RetryAfter is the hint returned with a denied request.
func (r *RateLimiter) RetryAfter(tier Tier) time.Duration {
	budget := r.perMin[tier]
	if budget <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Minute) / float64(budget))
}

func (r *RateLimiter) sweepLocked() {
	cutoff := r.now().Add(-staleAfter)
	for key, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, key)
		}
	}
}

// ClientCount reports the live bucket count, used by tests and the
// operator report.
func (r *RateLimiter) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
