// Package security enforces the abuse controls in front of the search
// API: per-tier rate limits, burst quarantine, payload and injection
// screening, and the event ledger behind the operator report.
package security

import (
	"regexp"
	"strings"

	"github.com/propmatch/propmatch/pkg/apperrors"
)

// Prompt-injection phrasings seen against LLM-backed search endpoints.
// Matching is best-effort screening, not a language model.
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(?:all\s+)?(?:previous|prior|your)\s+(?:instructions|rules|guidelines)`),
	regexp.MustCompile(`(?i)forget\s+(?:everything|all|your\s+instructions)`),
	regexp.MustCompile(`(?i)\bsystem\s+prompt\b`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(?:a|an|in)\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(?:to\s+be|you\s+are)\b`),
	regexp.MustCompile(`(?i)\b(?:jailbreak|dan\s+mode|developer\s+mode)\b`),
	regexp.MustCompile(`(?i)reveal\s+(?:your|the)\s+(?:prompt|instructions|system\s+message)`),
	regexp.MustCompile(`(?i)repeat\s+(?:your|the)\s+(?:prompt|instructions)\b`),
	regexp.MustCompile(`(?i)\bact\s+as\s+(?:a|an)\s+(?:different|new)\b`),
	regexp.MustCompile(`(?i)<\s*script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
}

// Classic SQL probe shapes. The store only ever sees parameterized
// queries; this exists to flag the attempt, not to protect the driver.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+(?:all\s+)?select\b`),
	regexp.MustCompile(`(?i)\bselect\s+.+\s+from\s+\w+`),
	regexp.MustCompile(`(?i)\b(?:insert\s+into|drop\s+table|truncate\s+table|delete\s+from|alter\s+table)\b`),
	regexp.MustCompile(`(?i)(?:'|")\s*or\s+(?:'|")?\d+(?:'|")?\s*=\s*(?:'|")?\d+`),
	regexp.MustCompile(`(?i)'\s*or\s+'[^']*'\s*=\s*'`),
	regexp.MustCompile(`(?i);\s*(?:drop|delete|update|insert|shutdown)\b`),
	regexp.MustCompile(`(?i)\bexec(?:ute)?\s+[sx]p_\w+`),
	regexp.MustCompile(`(?i)\bwaitfor\s+delay\b`),
	regexp.MustCompile(`--\s*$`),
	regexp.MustCompile(`;\s*--`),
	regexp.MustCompile(`/\*.*\*/`),
	regexp.MustCompile(`;\s*#`),
}

// Automation tooling and scanner user agents, matched as substrings of
// the lowercased agent. Hits are logged, never blocked: legitimate
// tools share some of these strings.
var suspiciousAgents = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python-requests", "postman", "insomnia", "httpie", "automated", "test",
	"sqlmap", "nikto", "nmap", "masscan", "dirbuster", "gobuster",
	"wfuzz", "metasploit", "havij", "acunetix", "burpsuite", "hydra",
	"zgrab", "scrapy",
}

// MatchPromptInjection returns the matching pattern when text looks
// like a prompt-injection attempt.
func MatchPromptInjection(text string) (string, bool) {
	for _, p := range promptInjectionPatterns {
		if m := p.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

// MatchSQLInjection returns the matching pattern when text looks like a
// SQL probe.
func MatchSQLInjection(text string) (string, bool) {
	for _, p := range sqlInjectionPatterns {
		if m := p.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

// IsSuspiciousAgent reports whether the user agent matches a known
// scanner signature.
func IsSuspiciousAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, s := range suspiciousAgents {
		if strings.Contains(ua, s) {
			return true
		}
	}
	return false
}

// SanitizeQuery normalizes whitespace and enforces the length cap.
// Control characters are stripped rather than rejected.
func SanitizeQuery(query string, maxChars int) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, query)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", apperrors.Invalid("query is empty")
	}
	if maxChars > 0 && len(cleaned) > maxChars {
		return "", apperrors.Invalid("query exceeds %d characters", maxChars)
	}
	return cleaned, nil
}
