package threat

import "github.com/V4T54L/honeywatch/internal/domain"

var recommendations = map[domain.ThreatLevel][]string{
	domain.LevelCritical: {
		"IMMEDIATE: Block source IP and alert security team",
		"Activate incident response procedures",
		"Increase monitoring on all target ports",
		"Log all connection attempts for forensic analysis",
	},
	domain.LevelHigh: {
		"Block source IP immediately",
		"Alert security team",
		"Increase monitoring on target ports",
	},
	domain.LevelMedium: {
		"Rate limit connections",
		"Monitor source IP closely",
	},
}

// Recommendations returns a fresh copy of the operator actions for level.
func Recommendations(level domain.ThreatLevel) []string {
	return append([]string{}, recommendations[level]...)
}
