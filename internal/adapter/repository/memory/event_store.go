// Package memory holds the bounded in-process event history.
package memory

import (
	"sync"
	"time"

	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/domain"
)

const DefaultCapacity = 1000

// EventStore is a fixed-capacity ring of enriched events. Once full, each
// admission evicts the oldest entry.
type EventStore struct {
	mu       sync.RWMutex
	ring     []domain.EnrichedEvent
	head     int // index of the oldest entry
	size     int
	nextSeq  uint64
	admitted uint64
	evicted  uint64

	now     func() time.Time
	metrics *metrics.Metrics
}

// NewEventStore creates a store; a non-positive capacity uses DefaultCapacity.
func NewEventStore(capacity int, m *metrics.Metrics) *EventStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventStore{
		ring:    make([]domain.EnrichedEvent, capacity),
		nextSeq: 1,
		now:     time.Now,
		metrics: m,
	}
}

// Admit assigns the next sequence id and admission time, then appends.
func (s *EventStore) Admit(raw domain.RawEvent, insight domain.ThreatInsight) domain.EnrichedEvent {
	ev := domain.EnrichedEvent{
		IngestedAt: s.now().UTC(),
		Event:      raw.Clone(),
		Insight:    insight.Clone(),
	}

	s.mu.Lock()
	ev.SequenceID = s.nextSeq
	s.nextSeq++
	s.admitted++

	evicted := false
	capacity := len(s.ring)
	if s.size == capacity {
		s.ring[s.head] = ev
		s.head = (s.head + 1) % capacity
		s.evicted++
		evicted = true
	} else {
		s.ring[(s.head+s.size)%capacity] = ev
		s.size++
	}
	size := s.size
	s.mu.Unlock()

	s.metrics.ObserveStore(size, evicted)
	return ev
}

// Restore re-admits an event that already has a sequence id, e.g. on replay
// from the event log. Later admissions continue after the highest id seen.
func (s *EventStore) Restore(ev domain.EnrichedEvent) {
	s.mu.Lock()
	capacity := len(s.ring)
	if s.size == capacity {
		s.ring[s.head] = ev
		s.head = (s.head + 1) % capacity
		s.evicted++
	} else {
		s.ring[(s.head+s.size)%capacity] = ev
		s.size++
	}
	s.admitted++
	if ev.SequenceID >= s.nextSeq {
		s.nextSeq = ev.SequenceID + 1
	}
	size := s.size
	s.mu.Unlock()

	s.metrics.ObserveStore(size, false)
}

// snapshot copies the current contents, oldest first. Callers must hold mu.
func (s *EventStore) snapshot() []domain.EnrichedEvent {
	out := make([]domain.EnrichedEvent, s.size)
	capacity := len(s.ring)
	for i := 0; i < s.size; i++ {
		out[i] = s.ring[(s.head+i)%capacity]
	}
	return out
}

// Query returns matching events in admission order, keeping only the last
// opts.Limit when a limit is set.
func (s *EventStore) Query(opts domain.QueryOptions) []domain.EnrichedEvent {
	s.mu.RLock()
	all := s.snapshot()
	s.mu.RUnlock()

	out := all[:0]
	for _, ev := range all {
		if opts.Kind != "" && ev.Event.Kind != opts.Kind {
			continue
		}
		if !opts.Since.IsZero() && ev.IngestedAt.Before(opts.Since) {
			continue
		}
		out = append(out, ev)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out
}

// Stats is computed over the current contents on every call.
func (s *EventStore) Stats() domain.StoreStats {
	s.mu.RLock()
	all := s.snapshot()
	stats := domain.StoreStats{
		Size:     s.size,
		Capacity: len(s.ring),
		Admitted: s.admitted,
		Evicted:  s.evicted,
	}
	s.mu.RUnlock()

	stats.ByKind = make(map[string]int)
	stats.ByLevel = make(map[string]int, 4)
	for _, lvl := range domain.Levels() {
		stats.ByLevel[lvl.String()] = 0
	}
	for _, ev := range all {
		stats.ByKind[ev.Event.KindOrUnknown()]++
		stats.ByLevel[ev.Insight.Level.String()]++
	}
	if len(all) > 0 {
		earliest := all[0].IngestedAt
		latest := all[len(all)-1].IngestedAt
		stats.EarliestAt = &earliest
		stats.LatestAt = &latest
	}
	return stats
}

// Len returns the number of events currently held.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
