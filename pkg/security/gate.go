package security

import (
	"context"
	"fmt"
	"time"

	"github.com/propmatch/propmatch/pkg/apperrors"
	"github.com/propmatch/propmatch/pkg/cache"
	"github.com/propmatch/propmatch/pkg/config"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
)

const (
	burstKeyPrefix = "security:burst:"
	hourKeyPrefix  = "security:requests:hour:"
	dayKeyPrefix   = "security:requests:day:"

	quarantineDuration = 24 * time.Hour
)

// RequestInfo is what the gate knows about one inbound request.
type RequestInfo struct {
	IP          string
	Endpoint    string
	UserAgent   string
	Query       string
	PayloadSize int64
	Tier        Tier
}

// Gate runs the ordered admission checks: quarantine, payload size,
// burst detection, volume caps, the tier token bucket, then the
// injection screens. Suspicious user agents are recorded but admitted.
type Gate struct {
	cfg     config.SecurityConfig
	cache   cache.Cache
	limiter *RateLimiter
	monitor *Monitor
	logger  observability.Logger
}

// NewGate wires the admission pipeline.
func NewGate(cfg config.SecurityConfig, c cache.Cache, limiter *RateLimiter, monitor *Monitor, logger observability.Logger) *Gate {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Gate{
		cfg:     cfg,
		cache:   c,
		limiter: limiter,
		monitor: monitor,
		logger:  logger.WithPrefix("gate"),
	}
}

// Check admits or rejects one request. A nil return admits it. Counter
// failures fail open: an unreachable ledger must not take search down.
func (g *Gate) Check(ctx context.Context, info RequestInfo) error {
	if blocked, err := g.monitor.IsBlocked(ctx, info.IP); err != nil {
		g.logger.Error("quarantine lookup failed, admitting", map[string]interface{}{
			"error": err.Error(),
		})
	} else if blocked {
		g.record(ctx, info, models.AttackBlockedIPAccess, models.ThreatHigh, nil)
		return apperrors.AccessDenied("address is temporarily blocked")
	}

	if g.cfg.PayloadMaxBytes > 0 && info.PayloadSize > g.cfg.PayloadMaxBytes {
		g.record(ctx, info, models.AttackLargePayload, models.ThreatMedium, map[string]interface{}{
			"payload_bytes": info.PayloadSize,
		})
		return apperrors.Invalid("request payload exceeds %d bytes", g.cfg.PayloadMaxBytes)
	}

	if err := g.checkBurst(ctx, info); err != nil {
		return err
	}
	if err := g.checkVolumeCaps(ctx, info); err != nil {
		return err
	}

	if !g.limiter.Allow(info.IP, info.Tier) {
		retry := g.limiter.RetryAfter(info.Tier)
		g.record(ctx, info, models.AttackRateLimit, models.ThreatLow, map[string]interface{}{
			"tier": string(info.Tier),
		})
		return apperrors.RateLimited(
			fmt.Sprintf("rate limit exceeded for %s requests", info.Tier), retry)
	}

	if info.Query != "" {
		if pattern, ok := MatchPromptInjection(info.Query); ok {
			g.record(ctx, info, models.AttackPromptInjection, models.ThreatHigh, map[string]interface{}{
				"pattern": pattern,
			})
			return apperrors.Invalid("query rejected by content screening")
		}
		if pattern, ok := MatchSQLInjection(info.Query); ok {
			g.record(ctx, info, models.AttackSQLInjection, models.ThreatHigh, map[string]interface{}{
				"pattern": pattern,
			})
			return apperrors.Invalid("query rejected by content screening")
		}
	}

	if IsSuspiciousAgent(info.UserAgent) {
		// Logged for the report, not blocked: curl and scripted clients
		// have legitimate uses.
		g.record(ctx, info, models.AttackSuspiciousAgent, models.ThreatLow, nil)
	}

	return nil
}

// checkBurst counts requests in a one-minute window; crossing the
// threshold quarantines the address for a day.
func (g *Gate) checkBurst(ctx context.Context, info RequestInfo) error {
	count, err := g.cache.IncrWithTTL(ctx, burstKeyPrefix+info.IP, time.Minute)
	if err != nil {
		g.logger.Error("burst counter failed, admitting", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	threshold := int64(g.cfg.DDoSBurstThreshold)
	if threshold <= 0 || count <= threshold {
		return nil
	}

	g.record(ctx, info, models.AttackDDoS, models.ThreatCritical, map[string]interface{}{
		"requests_per_minute": count,
	})
	if err := g.monitor.BlockIP(ctx, info.IP, "request burst over threshold", quarantineDuration); err != nil {
		g.logger.Error("quarantine failed", map[string]interface{}{"error": err.Error()})
	}
	return apperrors.AccessDenied("address is temporarily blocked")
}

// checkVolumeCaps enforces the rolling hour and day request ceilings.
func (g *Gate) checkVolumeCaps(ctx context.Context, info RequestInfo) error {
	hourly, err := g.cache.IncrWithTTL(ctx, hourKeyPrefix+info.IP, time.Hour)
	if err != nil {
		g.logger.Error("hour counter failed, admitting", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if g.cfg.IPHourCap > 0 && hourly > g.cfg.IPHourCap {
		g.record(ctx, info, models.AttackRateLimit, models.ThreatMedium, map[string]interface{}{
			"window": "hour",
		})
		return apperrors.RateLimited("hourly request cap reached", time.Hour)
	}

	daily, err := g.cache.IncrWithTTL(ctx, dayKeyPrefix+info.IP, 24*time.Hour)
	if err != nil {
		g.logger.Error("day counter failed, admitting", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if g.cfg.IPDayCap > 0 && daily > g.cfg.IPDayCap {
		g.record(ctx, info, models.AttackRateLimit, models.ThreatMedium, map[string]interface{}{
			"window": "day",
		})
		return apperrors.RateLimited("daily request cap reached", 24*time.Hour)
	}
	return nil
}

func (g *Gate) record(ctx context.Context, info RequestInfo, attack models.AttackType,
	threat models.ThreatLevel, extras map[string]interface{}) {
	g.monitor.RecordEvent(ctx, models.SecurityEvent{
		IP:          info.IP,
		Attack:      attack,
		Threat:      threat,
		Endpoint:    info.Endpoint,
		UserAgent:   info.UserAgent,
		PayloadSize: info.PayloadSize,
		Extras:      extras,
	})
}
