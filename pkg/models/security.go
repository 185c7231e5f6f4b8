package models

import "time"

// AttackType classifies a security event.
type AttackType string

const (
	AttackRateLimit       AttackType = "rate_limit"
	AttackDDoS            AttackType = "ddos"
	AttackPromptInjection AttackType = "prompt_injection"
	AttackSQLInjection    AttackType = "sql_injection"
	AttackSuspiciousAgent AttackType = "suspicious_agent"
	AttackLargePayload    AttackType = "large_payload"
	AttackBlockedIPAccess AttackType = "blocked_ip_access"
)

// ThreatLevel grades the severity of a security event.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// SecurityEvent is one entry in the capped event ledger.
type SecurityEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	IP          string                 `json:"ip"`
	Attack      AttackType             `json:"attack_type"`
	Threat      ThreatLevel            `json:"threat_level"`
	Endpoint    string                 `json:"endpoint,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	PayloadSize int64                  `json:"payload_size,omitempty"`
	Extras      map[string]interface{} `json:"extras,omitempty"`
}

// BlockedIP describes one quarantined address.
type BlockedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SecurityReport is the operator-facing summary of recent activity.
type SecurityReport struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	RecentEvents     []SecurityEvent `json:"recent_events"`
	ThreatBreakdown  map[string]int  `json:"threat_breakdown"`
	AttackBreakdown  map[string]int  `json:"attack_breakdown"`
	TopAttackerIPs   []IPAttackCount `json:"top_attacker_ips"`
	BlockedIPs       []BlockedIP     `json:"blocked_ips"`
	Recommendations  []string        `json:"recommendations"`
	DailyAttackTotal int             `json:"daily_attack_total"`
}

// IPAttackCount pairs an address with its attack count.
type IPAttackCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}
