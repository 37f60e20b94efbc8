package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/V4T54L/honeywatch/internal/domain"
)

const sinkName = "eventlog"

// Sink writes every enriched event to the main log and high or critical
// events to a separate alerts log.
type Sink struct {
	main   *Log
	alerts *Log
}

// OpenSink opens <dir>/enriched and <dir>/alerts, each with its own budget.
func OpenSink(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Sink, error) {
	main, err := Open(filepath.Join(dir, "enriched"), maxSegmentSize, maxTotalSize, logger)
	if err != nil {
		return nil, err
	}
	alerts, err := Open(filepath.Join(dir, "alerts"), maxSegmentSize, maxTotalSize, logger)
	if err != nil {
		main.Close()
		return nil, err
	}
	return &Sink{main: main, alerts: alerts}, nil
}

// Write implements domain.EventSink.
func (s *Sink) Write(ctx context.Context, ev domain.EnrichedEvent) error {
	rec := domain.NewLogRecord(ev)
	if err := s.main.Write(ctx, rec); err != nil {
		return &domain.SinkWriteError{Sink: sinkName, Err: err}
	}
	if rec.ThreatLevel >= domain.LevelHigh {
		if err := s.alerts.Write(ctx, rec); err != nil {
			return &domain.SinkWriteError{Sink: sinkName, Err: fmt.Errorf("alerts log: %w", err)}
		}
	}
	return nil
}

// Replay walks the main log.
func (s *Sink) Replay(ctx context.Context, fn func(domain.LogRecord) error) error {
	return s.main.Replay(ctx, fn)
}

// Alerts exposes the high/critical log.
func (s *Sink) Alerts() *Log { return s.alerts }

func (s *Sink) Close() error {
	return errors.Join(s.main.Close(), s.alerts.Close())
}
