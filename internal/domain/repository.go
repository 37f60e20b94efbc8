package domain

import (
	"context"
	"io"
	"time"
)

// EventSink receives every enriched event. Implementations must tolerate
// being called once per event from the ingestion path.
type EventSink interface {
	Write(ctx context.Context, event EnrichedEvent) error
}

// QueryOptions narrows an event store read. Zero values impose no constraint.
type QueryOptions struct {
	Limit int
	Kind  string
	Since time.Time
}

// StoreStats is computed over the current contents of an event store.
type StoreStats struct {
	Size       int            `json:"total_events"`
	Capacity   int            `json:"capacity"`
	Admitted   uint64         `json:"total_admitted"`
	Evicted    uint64         `json:"evicted"`
	ByKind     map[string]int `json:"event_types"`
	ByLevel    map[string]int `json:"threat_levels"`
	EarliestAt *time.Time     `json:"earliest_event,omitempty"`
	LatestAt   *time.Time     `json:"latest_event,omitempty"`
}

// EventStore is the bounded recent history of enriched events.
type EventStore interface {
	Admit(raw RawEvent, insight ThreatInsight) EnrichedEvent
	Query(opts QueryOptions) []EnrichedEvent
	Stats() StoreStats
}

// EventLog is a durable, append-only record log used for the enriched-event
// log and for spooling alerts while a bus is down.
type EventLog interface {
	Write(ctx context.Context, record LogRecord) error
	Replay(ctx context.Context, handler func(record LogRecord) error) error
	Truncate(ctx context.Context) error
}

// AlertPublisher delivers high-severity records to an external bus.
type AlertPublisher interface {
	Name() string
	Publish(ctx context.Context, record LogRecord) error
}

// RelationalStats summarises the contents of the relational sink.
type RelationalStats struct {
	Backend    string         `json:"backend"`
	Tables     map[string]int `json:"tables"`
	EventKinds map[string]int `json:"event_types"`
	Earliest   *time.Time     `json:"earliest_event,omitempty"`
	Latest     *time.Time     `json:"latest_event,omitempty"`
}

// Snapshotter renders table contents as portable SQL text.
type Snapshotter interface {
	Snapshot(ctx context.Context, w io.Writer, tables []string) error
}

// AlertStreamInfo describes the alert bus as seen by the publisher.
type AlertStreamInfo struct {
	Bus       string `json:"bus"`
	Stream    string `json:"stream"`
	Available bool   `json:"available"`
	Length    int64  `json:"length"`
	FirstID   string `json:"first_id,omitempty"`
	LastID    string `json:"last_id,omitempty"`
	Spooled   int64  `json:"spooled_bytes"`
}
