package security

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/propmatch/propmatch/pkg/cache"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
)

const (
	eventsKey       = "security:events"
	eventsCap       = 1000
	hourlyStatsKey  = "security:stats:hourly:"
	dailyStatsKey   = "security:stats:daily:"
	ipStatsKey      = "security:stats:ip:"
	blockedIPsKey   = "security:blocked_ips"
	blockInfoPrefix = "security:block_info:"

	hourlyStatsTTL = 24 * time.Hour
	dailyStatsTTL  = 7 * 24 * time.Hour
	ipStatsTTL     = 24 * time.Hour
)

// Monitor is the security event ledger: a capped event list, rolling
// hourly/daily/per-IP counters, and the quarantine set.
type Monitor struct {
	cache  cache.Cache
	logger observability.Logger
	now    func() time.Time
}

// NewMonitor wires the ledger onto a cache.
func NewMonitor(c cache.Cache, logger observability.Logger) *Monitor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Monitor{cache: c, logger: logger.WithPrefix("security"), now: time.Now}
}

// RecordEvent appends to the ledger and bumps the rolling counters.
// Ledger failures are logged, never surfaced: monitoring must not take
// the serving path down.
func (m *Monitor) RecordEvent(ctx context.Context, event models.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}
	m.logger.Warn("security event", map[string]interface{}{
		"ip":     event.IP,
		"attack": string(event.Attack),
		"threat": string(event.Threat),
	})

	if err := m.cache.ListPushCapped(ctx, eventsKey, event, eventsCap); err != nil {
		m.logger.Error("event ledger write failed", map[string]interface{}{"error": err.Error()})
	}

	ts := event.Timestamp
	field := string(event.Attack)
	counters := []struct {
		key string
		ttl time.Duration
	}{
		{hourlyStatsKey + ts.Format("2006-01-02T15"), hourlyStatsTTL},
		{dailyStatsKey + ts.Format("2006-01-02"), dailyStatsTTL},
		{ipStatsKey + event.IP, ipStatsTTL},
	}
	for _, c := range counters {
		if _, err := m.cache.HashIncrWithTTL(ctx, c.key, field, c.ttl); err != nil {
			m.logger.Error("stats counter failed", map[string]interface{}{
				"key":   c.key,
				"error": err.Error(),
			})
		}
	}
}

// BlockIP quarantines an address for the given duration.
func (m *Monitor) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) error {
	blockedAt := m.now().UTC()
	info := models.BlockedIP{
		IP:        ip,
		Reason:    reason,
		BlockedAt: blockedAt,
		ExpiresAt: blockedAt.Add(duration),
	}
	if err := m.cache.Set(ctx, blockInfoPrefix+ip, info, duration); err != nil {
		return fmt.Errorf("store block info: %w", err)
	}
	if err := m.cache.SetAdd(ctx, blockedIPsKey, ip); err != nil {
		return fmt.Errorf("register blocked ip: %w", err)
	}
	m.logger.Warn("ip blocked", map[string]interface{}{
		"ip":       ip,
		"reason":   reason,
		"duration": duration.String(),
	})
	return nil
}

// UnblockIP lifts a quarantine early.
func (m *Monitor) UnblockIP(ctx context.Context, ip string) error {
	if err := m.cache.Delete(ctx, blockInfoPrefix+ip); err != nil && err != cache.ErrNotFound {
		return err
	}
	return m.cache.SetRemove(ctx, blockedIPsKey, ip)
}

// IsBlocked reports whether the address is quarantined. The block-info
// TTL is authoritative; a set entry whose info expired is cleaned up
// and treated as unblocked.
func (m *Monitor) IsBlocked(ctx context.Context, ip string) (bool, error) {
	member, err := m.cache.SetContains(ctx, blockedIPsKey, ip)
	if err != nil {
		return false, err
	}
	if !member {
		return false, nil
	}
	var info models.BlockedIP
	if err := m.cache.Get(ctx, blockInfoPrefix+ip, &info); err != nil {
		if err == cache.ErrNotFound {
			_ = m.cache.SetRemove(ctx, blockedIPsKey, ip)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BlockedIPs lists the active quarantines.
func (m *Monitor) BlockedIPs(ctx context.Context) ([]models.BlockedIP, error) {
	ips, err := m.cache.SetMembers(ctx, blockedIPsKey)
	if err != nil {
		return nil, err
	}
	out := make([]models.BlockedIP, 0, len(ips))
	for _, ip := range ips {
		var info models.BlockedIP
		if err := m.cache.Get(ctx, blockInfoPrefix+ip, &info); err != nil {
			if err == cache.ErrNotFound {
				_ = m.cache.SetRemove(ctx, blockedIPsKey, ip)
				continue
			}
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

// Report assembles the operator summary from the most recent hundred
// events plus the daily counters.
func (m *Monitor) Report(ctx context.Context) (*models.SecurityReport, error) {
	raw, err := m.cache.ListRange(ctx, eventsKey, 0, 99)
	if err != nil {
		return nil, err
	}

	events := make([]models.SecurityEvent, 0, len(raw))
	threatBreakdown := map[string]int{}
	attackBreakdown := map[string]int{}
	perIP := map[string]int{}
	for _, entry := range raw {
		var ev models.SecurityEvent
		if err := json.Unmarshal([]byte(entry), &ev); err != nil {
			m.logger.Warn("skipping malformed ledger entry", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		events = append(events, ev)
		threatBreakdown[string(ev.Threat)]++
		attackBreakdown[string(ev.Attack)]++
		perIP[ev.IP]++
	}

	topIPs := make([]models.IPAttackCount, 0, len(perIP))
	for ip, count := range perIP {
		topIPs = append(topIPs, models.IPAttackCount{IP: ip, Count: count})
	}
	sort.Slice(topIPs, func(i, j int) bool {
		if topIPs[i].Count != topIPs[j].Count {
			return topIPs[i].Count > topIPs[j].Count
		}
		return topIPs[i].IP < topIPs[j].IP
	})
	if len(topIPs) > 10 {
		topIPs = topIPs[:10]
	}

	daily, err := m.cache.HashGetAll(ctx, dailyStatsKey+m.now().UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	dailyTotal := 0
	dailyByAttack := map[string]int{}
	for field, v := range daily {
		n, _ := strconv.Atoi(v)
		dailyTotal += n
		dailyByAttack[field] = n
	}

	blocked, err := m.BlockedIPs(ctx)
	if err != nil {
		return nil, err
	}

	return &models.SecurityReport{
		GeneratedAt:      m.now().UTC(),
		RecentEvents:     events,
		ThreatBreakdown:  threatBreakdown,
		AttackBreakdown:  attackBreakdown,
		TopAttackerIPs:   topIPs,
		BlockedIPs:       blocked,
		Recommendations:  recommendations(dailyTotal, dailyByAttack, len(perIP)),
		DailyAttackTotal: dailyTotal,
	}, nil
}

// recommendations turns counter thresholds into operator guidance.
func recommendations(dailyTotal int, dailyByAttack map[string]int, attackingIPs int) []string {
	var recs []string
	if dailyTotal > 100 {
		recs = append(recs, "High attack volume today; consider tightening rate limits.")
	}
	if dailyByAttack[string(models.AttackPromptInjection)] > 10 {
		recs = append(recs, "Repeated prompt-injection attempts; review the injection pattern list.")
	}
	if dailyByAttack[string(models.AttackDDoS)] > 5 {
		recs = append(recs, "Multiple burst quarantines; consider an upstream traffic filter.")
	}
	if attackingIPs > 10 {
		recs = append(recs, "Attacks from many distinct addresses; review network-level controls.")
	}
	if len(recs) == 0 {
		recs = append(recs, "No elevated activity; current controls look sufficient.")
	}
	return recs
}
