package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Info is the metadata block written ahead of exported events.
type Info struct {
	ExportID        string              `json:"export_id"`
	Timestamp       time.Time           `json:"timestamp"`
	Date            string              `json:"date"`
	TotalEvents     int                 `json:"total_events"`
	FiltersApplied  domain.ExportFilter `json:"filters_applied"`
	EventStatistics map[string]int      `json:"event_statistics"`
}

// Envelope is the JSON export document.
type Envelope struct {
	ExportInfo *Info                  `json:"export_info,omitempty"`
	Events     []domain.EnrichedEvent `json:"events"`
}

func newInfo(id string, now time.Time, filter domain.ExportFilter, events []domain.EnrichedEvent) *Info {
	stats := make(map[string]int)
	for _, ev := range events {
		stats[ev.Event.KindOrUnknown()]++
	}
	now = now.UTC()
	return &Info{
		ExportID:        id,
		Timestamp:       now,
		Date:            now.Format("2006-01-02"),
		TotalEvents:     len(events),
		FiltersApplied:  filter,
		EventStatistics: stats,
	}
}

func writeEnvelope(w io.Writer, env Envelope) error {
	if env.Events == nil {
		env.Events = []domain.EnrichedEvent{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("failed to encode export envelope: %w", err)
	}
	return nil
}

// ReadEnvelope decodes an export document.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode export envelope: %w", err)
	}
	return env, nil
}

// ReadFile opens and decodes an export file of any supported compression.
func ReadFile(path string) (Envelope, error) {
	rc, err := Open(path)
	if err != nil {
		return Envelope{}, err
	}
	defer rc.Close()
	return ReadEnvelope(rc)
}
