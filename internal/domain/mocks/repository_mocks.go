package mocks

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// MockEventSink records every enriched event it receives.
type MockEventSink struct {
	mu       sync.Mutex
	Events   []domain.EnrichedEvent
	WriteErr error
}

func (m *MockEventSink) Write(ctx context.Context, event domain.EnrichedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockEventSink) Written() []domain.EnrichedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EnrichedEvent(nil), m.Events...)
}

// MockAlertPublisher is a mock implementation of domain.AlertPublisher.
type MockAlertPublisher struct {
	mu         sync.Mutex
	BusName    string
	Published  []domain.LogRecord
	PublishErr error
}

func (m *MockAlertPublisher) Name() string {
	if m.BusName == "" {
		return "mock"
	}
	return m.BusName
}

func (m *MockAlertPublisher) Publish(ctx context.Context, record domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, record)
	return nil
}

func (m *MockAlertPublisher) Records() []domain.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogRecord(nil), m.Published...)
}

// MockEventLog keeps records in memory.
type MockEventLog struct {
	mu          sync.Mutex
	Records     []domain.LogRecord
	Truncated   int
	Drains      int
	WriteErr    error
	ReplayErr   error
	TruncateErr error
}

func (m *MockEventLog) Write(ctx context.Context, record domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Records = append(m.Records, record)
	return nil
}

func (m *MockEventLog) Replay(ctx context.Context, handler func(record domain.LogRecord) error) error {
	m.mu.Lock()
	records := append([]domain.LogRecord(nil), m.Records...)
	replayErr := m.ReplayErr
	m.mu.Unlock()
	if replayErr != nil {
		return replayErr
	}
	for _, rec := range records {
		if err := handler(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockEventLog) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TruncateErr != nil {
		return m.TruncateErr
	}
	m.Records = nil
	m.Truncated++
	return nil
}

// Drain hands over the records held at call time and drops them on success.
func (m *MockEventLog) Drain(ctx context.Context, handler func(record domain.LogRecord) error) error {
	m.mu.Lock()
	records := append([]domain.LogRecord(nil), m.Records...)
	replayErr := m.ReplayErr
	m.mu.Unlock()
	if replayErr != nil {
		return replayErr
	}
	for _, rec := range records {
		if err := handler(rec); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append([]domain.LogRecord(nil), m.Records[len(records):]...)
	m.Drains++
	return nil
}

// Size reports the number of held records.
func (m *MockEventLog) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Records))
}

// MockSnapshotter writes a fixed body and counts calls.
type MockSnapshotter struct {
	mu    sync.Mutex
	Body  string
	Calls int
	// Errs is consumed one per call; once exhausted calls succeed.
	Errs []error
}

func (m *MockSnapshotter) Snapshot(ctx context.Context, w io.Writer, tables []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, m.Body)
	return err
}

// MockEventStore keeps every admitted event without eviction.
type MockEventStore struct {
	mu       sync.Mutex
	Events   []domain.EnrichedEvent
	Restored []domain.EnrichedEvent
	Now      time.Time
}

func (m *MockEventStore) Admit(raw domain.RawEvent, insight domain.ThreatInsight) domain.EnrichedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := domain.EnrichedEvent{
		SequenceID: uint64(len(m.Events) + 1),
		IngestedAt: m.Now,
		Event:      raw,
		Insight:    insight,
	}
	m.Events = append(m.Events, ev)
	return ev
}

func (m *MockEventStore) Restore(ev domain.EnrichedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Restored = append(m.Restored, ev)
}

func (m *MockEventStore) Query(opts domain.QueryOptions) []domain.EnrichedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EnrichedEvent
	for _, ev := range m.Events {
		if opts.Kind == "" || ev.Event.Kind == opts.Kind {
			out = append(out, ev)
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out
}

func (m *MockEventStore) Stats() domain.StoreStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind := make(map[string]int)
	for _, ev := range m.Events {
		byKind[ev.Event.Kind]++
	}
	return domain.StoreStats{Size: len(m.Events), Admitted: uint64(len(m.Events)), ByKind: byKind}
}
