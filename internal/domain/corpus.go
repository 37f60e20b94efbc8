package domain

import "time"

// Port frequency thresholds shared by scoring and corpus summaries.
const (
	CriticalPortFrequency = 500
	HighPortFrequency     = 100
	MediumPortFrequency   = 20
)

// Signature is a named behavioural pattern checked against incoming events.
type Signature struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Severity    ThreatLevel `json:"severity"`
}

// AttackCorpus is the reference data used to score live events.
// It is read-only once built; replace it as a whole to reload.
type AttackCorpus struct {
	AttackTypes    []string
	PortFrequency  map[int]int
	Signatures     []Signature
	TrafficSamples int
	Source         string
	LoadedAt       time.Time
}

// EmptyCorpus is the fallback used when no reference data can be loaded.
func EmptyCorpus() *AttackCorpus {
	return &AttackCorpus{
		PortFrequency: map[int]int{},
		Source:        "empty",
		LoadedAt:      time.Now().UTC(),
	}
}

// Frequency is safe to call on a nil corpus.
func (c *AttackCorpus) Frequency(port int) (int, bool) {
	if c == nil {
		return 0, false
	}
	f, ok := c.PortFrequency[port]
	return f, ok
}

// CorpusSummary reports the size of the loaded reference data.
type CorpusSummary struct {
	Source            string    `json:"source"`
	LoadedAt          time.Time `json:"loaded_at"`
	AttackTypes       int       `json:"attack_types"`
	AttackSignatures  int       `json:"attack_signatures"`
	TargetPorts       int       `json:"target_ports"`
	HighRiskPorts     int       `json:"high_risk_ports"`
	CriticalRiskPorts int       `json:"critical_risk_ports"`
	TrafficPatterns   int       `json:"traffic_patterns"`
}

func (c *AttackCorpus) Summary() CorpusSummary {
	if c == nil {
		return CorpusSummary{}
	}
	s := CorpusSummary{
		Source:           c.Source,
		LoadedAt:         c.LoadedAt,
		AttackTypes:      len(c.AttackTypes),
		AttackSignatures: len(c.Signatures),
		TargetPorts:      len(c.PortFrequency),
		TrafficPatterns:  c.TrafficSamples,
	}
	for _, f := range c.PortFrequency {
		if f > HighPortFrequency {
			s.HighRiskPorts++
		}
		if f > CriticalPortFrequency {
			s.CriticalRiskPorts++
		}
	}
	return s
}
