package domain

import "time"

// EnrichedEvent is a raw event plus its threat insight, as admitted by the event store.
type EnrichedEvent struct {
	SequenceID uint64        `json:"sequence_id"`
	IngestedAt time.Time     `json:"ingested_at"`
	Event      RawEvent      `json:"event"`
	Insight    ThreatInsight `json:"insight"`
}

// OccurredAt is the event's own timestamp, falling back to the admission time.
func (e EnrichedEvent) OccurredAt() time.Time {
	if !e.Event.Timestamp.IsZero() {
		return e.Event.Timestamp
	}
	return e.IngestedAt
}

const logTimestampLayout = "2006-01-02 15:04:05"

// LogRecord is one line of the enriched-event log and the payload published on alert buses.
type LogRecord struct {
	Timestamp        string        `json:"timestamp"`
	EventType        string        `json:"event_type"`
	SourceIP         string        `json:"src_ip"`
	DestPort         *int          `json:"dst_port"`
	Session          string        `json:"session"`
	ThreatLevel      ThreatLevel   `json:"threat_level"`
	RiskScore        int           `json:"risk_score"`
	AttackIndicators []string      `json:"attack_indicators"`
	Recommendations  []string      `json:"recommendations"`
	Insights         ThreatInsight `json:"network_training_insights"`
	SequenceID       uint64        `json:"sequence_id"`
	IngestedAt       time.Time     `json:"ingested_at"`
	Original         RawEvent      `json:"original_event"`
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// NewLogRecord flattens an enriched event into its log representation.
func NewLogRecord(ev EnrichedEvent) LogRecord {
	rec := LogRecord{
		Timestamp:        ev.IngestedAt.UTC().Format(logTimestampLayout),
		EventType:        orUnknown(ev.Event.Kind),
		SourceIP:         orUnknown(ev.Event.SourceIP),
		Session:          orUnknown(ev.Event.SessionID),
		ThreatLevel:      ev.Insight.Level,
		RiskScore:        ev.Insight.RiskScore,
		AttackIndicators: ev.Insight.Indicators,
		Recommendations:  ev.Insight.Recommendations,
		Insights:         ev.Insight,
		SequenceID:       ev.SequenceID,
		IngestedAt:       ev.IngestedAt,
		Original:         ev.Event,
	}
	if port, ok, err := ev.Event.Port(); ok && err == nil {
		rec.DestPort = &port
	}
	return rec
}
