package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmatch/propmatch/pkg/cache"
	"github.com/propmatch/propmatch/pkg/models"
)

func newMonitor() *Monitor {
	return NewMonitor(cache.NewMemoryCache(), nil)
}

func TestRecordEventAndReport(t *testing.T) {
	m := newMonitor()
	ctx := context.Background()

	m.RecordEvent(ctx, models.SecurityEvent{
		IP: "10.0.0.1", Attack: models.AttackPromptInjection, Threat: models.ThreatHigh,
		Endpoint: "/api/v1/search",
	})
	m.RecordEvent(ctx, models.SecurityEvent{
		IP: "10.0.0.1", Attack: models.AttackRateLimit, Threat: models.ThreatLow,
	})
	m.RecordEvent(ctx, models.SecurityEvent{
		IP: "10.0.0.2", Attack: models.AttackRateLimit, Threat: models.ThreatLow,
	})

	report, err := m.Report(ctx)
	require.NoError(t, err)

	assert.Len(t, report.RecentEvents, 3)
	assert.Equal(t, 2, report.AttackBreakdown[string(models.AttackRateLimit)])
	assert.Equal(t, 1, report.AttackBreakdown[string(models.AttackPromptInjection)])
	assert.Equal(t, 2, report.ThreatBreakdown[string(models.ThreatLow)])
	assert.Equal(t, 3, report.DailyAttackTotal)

	require.NotEmpty(t, report.TopAttackerIPs)
	assert.Equal(t, "10.0.0.1", report.TopAttackerIPs[0].IP)
	assert.Equal(t, 2, report.TopAttackerIPs[0].Count)

	assert.Contains(t, report.Recommendations[0], "No elevated activity")
}

func TestRecordEventFillsTimestamp(t *testing.T) {
	m := newMonitor()
	m.RecordEvent(context.Background(), models.SecurityEvent{
		IP: "10.0.0.1", Attack: models.AttackDDoS, Threat: models.ThreatCritical,
	})
	report, err := m.Report(context.Background())
	require.NoError(t, err)
	require.Len(t, report.RecentEvents, 1)
	assert.False(t, report.RecentEvents[0].Timestamp.IsZero())
}

func TestBlockUnblockIP(t *testing.T) {
	m := newMonitor()
	ctx := context.Background()

	blocked, err := m.IsBlocked(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, m.BlockIP(ctx, "10.0.0.9", "request burst over threshold", time.Hour))
	blocked, err = m.IsBlocked(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, blocked)

	list, err := m.BlockedIPs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "10.0.0.9", list[0].IP)
	assert.Equal(t, "request burst over threshold", list[0].Reason)
	assert.True(t, list[0].ExpiresAt.After(list[0].BlockedAt))

	require.NoError(t, m.UnblockIP(ctx, "10.0.0.9"))
	blocked, err = m.IsBlocked(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlockExpiresWithInfoTTL(t *testing.T) {
	m := newMonitor()
	ctx := context.Background()

	require.NoError(t, m.BlockIP(ctx, "10.0.0.9", "test", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	blocked, err := m.IsBlocked(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, blocked, "an expired block-info entry lifts the quarantine")

	list, err := m.BlockedIPs(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "the stale set entry is cleaned up")
}

func TestRecommendationThresholds(t *testing.T) {
	m := newMonitor()
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		m.RecordEvent(ctx, models.SecurityEvent{
			IP: "10.0.0.1", Attack: models.AttackPromptInjection, Threat: models.ThreatHigh,
		})
	}
	for i := 0; i < 6; i++ {
		m.RecordEvent(ctx, models.SecurityEvent{
			IP: "10.0.0.2", Attack: models.AttackDDoS, Threat: models.ThreatCritical,
		})
	}

	report, err := m.Report(ctx)
	require.NoError(t, err)

	joined := ""
	for _, r := range report.Recommendations {
		joined += r + "\n"
	}
	assert.Contains(t, joined, "prompt-injection")
	assert.Contains(t, joined, "burst quarantines")
	assert.NotContains(t, joined, "No elevated activity")
}

func TestLedgerIsCapped(t *testing.T) {
	m := newMonitor()
	ctx := context.Background()
	for i := 0; i < eventsCap+50; i++ {
		m.RecordEvent(ctx, models.SecurityEvent{
			IP: "10.0.0.1", Attack: models.AttackRateLimit, Threat: models.ThreatLow,
		})
	}
	raw, err := m.cache.ListRange(ctx, eventsKey, 0, -1)
	require.NoError(t, err)
	assert.Len(t, raw, eventsCap)
}
