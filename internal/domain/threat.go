package domain

import (
	"fmt"
	"strings"
)

// ThreatLevel orders assessments from least to most severe.
type ThreatLevel int

const (
	LevelLow ThreatLevel = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"low", "medium", "high", "critical"}

// Levels lists every level in ascending order.
func Levels() []ThreatLevel {
	return []ThreatLevel{LevelLow, LevelMedium, LevelHigh, LevelCritical}
}

func (l ThreatLevel) String() string {
	if l < LevelLow || l > LevelCritical {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseThreatLevel is case-insensitive.
func ParseThreatLevel(s string) (ThreatLevel, error) {
	for i, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return ThreatLevel(i), nil
		}
	}
	return LevelLow, fmt.Errorf("unknown threat level %q", s)
}

func (l ThreatLevel) MarshalText() ([]byte, error) {
	if l < LevelLow || l > LevelCritical {
		return nil, fmt.Errorf("invalid threat level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText treats an empty value as low.
func (l *ThreatLevel) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*l = LevelLow
		return nil
	}
	parsed, err := ParseThreatLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MaxLevel returns the more severe of a and b.
func MaxLevel(a, b ThreatLevel) ThreatLevel {
	if b > a {
		return b
	}
	return a
}

// PortAnalysis describes how often the destination port shows up in the corpus.
type PortAnalysis struct {
	Port      int         `json:"port"`
	Frequency int         `json:"frequency_in_attacks"`
	RiskTier  ThreatLevel `json:"risk_level"`
}

// ThreatInsight is the outcome of scoring one event. It is never mutated after creation.
type ThreatInsight struct {
	Level           ThreatLevel   `json:"threat_level"`
	RiskScore       int           `json:"risk_score"`
	Indicators      []string      `json:"attack_indicators"`
	Recommendations []string      `json:"recommendations"`
	PortAnalysis    *PortAnalysis `json:"port_analysis,omitempty"`
	EvaluationError string        `json:"evaluation_error,omitempty"`
}

// Clone returns a deep copy.
func (t ThreatInsight) Clone() ThreatInsight {
	out := t
	out.Indicators = append([]string{}, t.Indicators...)
	out.Recommendations = append([]string{}, t.Recommendations...)
	if t.PortAnalysis != nil {
		pa := *t.PortAnalysis
		out.PortAnalysis = &pa
	}
	return out
}
