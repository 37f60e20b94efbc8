package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Redactor scrubs credentials from a record before it leaves the process.
type Redactor interface {
	Redact(rec domain.LogRecord) domain.LogRecord
}

// AlertSink forwards events at or above a threat level to every publisher.
type AlertSink struct {
	publishers []domain.AlertPublisher
	redactor   Redactor
	minLevel   domain.ThreatLevel
	logger     *slog.Logger
}

// NewAlertSink publishes high and critical events; redactor may be nil.
func NewAlertSink(publishers []domain.AlertPublisher, redactor Redactor, logger *slog.Logger) *AlertSink {
	return &AlertSink{
		publishers: publishers,
		redactor:   redactor,
		minLevel:   domain.LevelHigh,
		logger:     logger.With("component", "alert_sink"),
	}
}

// WithMinLevel changes the publishing threshold.
func (s *AlertSink) WithMinLevel(level domain.ThreatLevel) *AlertSink {
	s.minLevel = level
	return s
}

// Write implements domain.EventSink. Every publisher is tried even when an
// earlier one fails.
func (s *AlertSink) Write(ctx context.Context, ev domain.EnrichedEvent) error {
	if ev.Insight.Level < s.minLevel || len(s.publishers) == 0 {
		return nil
	}

	rec := domain.NewLogRecord(ev)
	if s.redactor != nil {
		rec = s.redactor.Redact(rec)
	}

	var errs []error
	for _, p := range s.publishers {
		if err := p.Publish(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	if len(errs) > 0 {
		return &domain.SinkWriteError{Sink: "alerts", Err: errors.Join(errs...)}
	}
	s.logger.Debug("alert published", "sequence_id", ev.SequenceID, "level", rec.ThreatLevel)
	return nil
}
