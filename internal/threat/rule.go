package threat

import (
	"fmt"
	"strings"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Finding is what a single rule contributes to an insight.
type Finding struct {
	Indicators   []string
	ScoreDelta   int
	MinLevel     domain.ThreatLevel
	PortAnalysis *domain.PortAnalysis
}

// Rule evaluates one event against the corpus. Returning an error skips the
// rule for that event only.
type Rule interface {
	Name() string
	Evaluate(ev domain.RawEvent, corpus *domain.AttackCorpus) (Finding, error)
}

// DefaultRules returns the built-in rule chain in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		PortFrequencyRule{},
		NewSignatureRule(nil),
		BehavioralRule{},
	}
}

// PortRiskTier classifies how often a port appears in the corpus.
func PortRiskTier(frequency int) domain.ThreatLevel {
	switch {
	case frequency > domain.CriticalPortFrequency:
		return domain.LevelCritical
	case frequency > domain.HighPortFrequency:
		return domain.LevelHigh
	case frequency > domain.MediumPortFrequency:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

var portTierScore = map[domain.ThreatLevel]int{
	domain.LevelCritical: 50,
	domain.LevelHigh:     30,
	domain.LevelMedium:   15,
}

var portTierLabel = map[domain.ThreatLevel]string{
	domain.LevelCritical: "Critical",
	domain.LevelHigh:     "High",
	domain.LevelMedium:   "Medium",
}

// PortFrequencyRule scores the destination port by its corpus frequency.
type PortFrequencyRule struct{}

func (PortFrequencyRule) Name() string { return "port_frequency" }

func (r PortFrequencyRule) Evaluate(ev domain.RawEvent, corpus *domain.AttackCorpus) (Finding, error) {
	port, ok, err := ev.Port()
	if err != nil {
		return Finding{}, &domain.EnrichmentFieldError{Rule: r.Name(), Field: domain.FieldDestPort, Err: err}
	}
	if !ok {
		return Finding{}, nil
	}
	freq, known := corpus.Frequency(port)
	if !known {
		return Finding{}, nil
	}

	tier := PortRiskTier(freq)
	f := Finding{
		MinLevel:     tier,
		PortAnalysis: &domain.PortAnalysis{Port: port, Frequency: freq, RiskTier: tier},
	}
	if label, scored := portTierLabel[tier]; scored {
		f.ScoreDelta = portTierScore[tier]
		f.Indicators = []string{fmt.Sprintf("%s-frequency target port: %d (%d attacks)", label, port, freq)}
	}
	return f, nil
}

// Matcher decides whether an event exhibits a named signature.
type Matcher func(ev domain.RawEvent) bool

// KindMatcher matches events whose kind is one of kinds.
func KindMatcher(kinds ...string) Matcher {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(ev domain.RawEvent) bool {
		_, ok := set[ev.Kind]
		return ok
	}
}

// DefaultMatchers keys matchers by lower-cased signature name.
func DefaultMatchers() map[string]Matcher {
	return map[string]Matcher{
		"port scanning": KindMatcher(
			domain.KindSessionConnect,
			domain.KindClientVersion,
			domain.KindLoginFailed,
			domain.KindSessionClosed,
		),
	}
}

var signatureScore = map[domain.ThreatLevel]int{
	domain.LevelHigh:   25,
	domain.LevelMedium: 15,
}

// SignatureRule matches corpus signatures for which a matcher is registered.
type SignatureRule struct {
	matchers map[string]Matcher
}

// NewSignatureRule uses DefaultMatchers when matchers is nil.
func NewSignatureRule(matchers map[string]Matcher) SignatureRule {
	if matchers == nil {
		matchers = DefaultMatchers()
	}
	normalized := make(map[string]Matcher, len(matchers))
	for name, m := range matchers {
		normalized[strings.ToLower(strings.TrimSpace(name))] = m
	}
	return SignatureRule{matchers: normalized}
}

func (SignatureRule) Name() string { return "signature" }

func (r SignatureRule) Evaluate(ev domain.RawEvent, corpus *domain.AttackCorpus) (Finding, error) {
	var f Finding
	if corpus == nil {
		return f, nil
	}
	for _, sig := range corpus.Signatures {
		match, ok := r.matchers[strings.ToLower(strings.TrimSpace(sig.Name))]
		if !ok || !match(ev) {
			continue
		}
		f.Indicators = append(f.Indicators, fmt.Sprintf("Matches %s pattern", sig.Name))
		f.ScoreDelta += signatureScore[sig.Severity]
		f.MinLevel = domain.MaxLevel(f.MinLevel, sig.Severity)
	}
	return f, nil
}

// Quick disconnect threshold, in seconds.
const quickDisconnectSeconds = 5

const behavioralScore = 20

// BehavioralRule flags reconnaissance and brute-force behaviour without consulting the corpus.
type BehavioralRule struct{}

func (BehavioralRule) Name() string { return "behavioral" }

func (r BehavioralRule) Evaluate(ev domain.RawEvent, _ *domain.AttackCorpus) (Finding, error) {
	var indicator string
	switch ev.Kind {
	case domain.KindSessionConnect:
		indicator = "New connection attempt - potential scanning"
	case domain.KindLoginFailed:
		indicator = "Failed login attempt - possible brute force attack"
	case domain.KindClientVersion:
		indicator = "Client version probing - reconnaissance activity"
	case domain.KindSessionClosed:
		d, _, err := ev.SessionDuration()
		if err != nil {
			return Finding{}, &domain.EnrichmentFieldError{Rule: r.Name(), Field: domain.FieldDuration, Err: err}
		}
		// a missing duration counts as zero
		if d < quickDisconnectSeconds {
			indicator = "Quick disconnect - scanning behavior"
		}
	}
	if indicator == "" {
		return Finding{}, nil
	}
	return Finding{
		Indicators: []string{indicator},
		ScoreDelta: behavioralScore,
		MinLevel:   domain.LevelHigh,
	}, nil
}
