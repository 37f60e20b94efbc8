package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/domain"
)

// Enricher scores one raw event.
type Enricher interface {
	Evaluate(ev domain.RawEvent) domain.ThreatInsight
}

// SessionAnnotator fills fields derived from earlier events of the same session.
type SessionAnnotator interface {
	Annotate(ev domain.RawEvent, now time.Time) domain.RawEvent
}

// RateReporter is told about every admitted event.
type RateReporter interface {
	Record(ev domain.EnrichedEvent)
}

// NamedSink labels a sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink domain.EventSink
}

// IngestOption customizes an IngestEventUseCase.
type IngestOption func(*IngestEventUseCase)

func WithSessionAnnotator(a SessionAnnotator) IngestOption {
	return func(uc *IngestEventUseCase) { uc.sessions = a }
}

func WithRateReporter(r RateReporter) IngestOption {
	return func(uc *IngestEventUseCase) { uc.reporter = r }
}

// IngestEventUseCase runs one raw event through enrichment, admission and
// every configured sink.
type IngestEventUseCase struct {
	enricher Enricher
	store    domain.EventStore
	sinks    []NamedSink
	sessions SessionAnnotator
	reporter RateReporter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewIngestEventUseCase(enricher Enricher, store domain.EventStore, sinks []NamedSink, m *metrics.Metrics, logger *slog.Logger, opts ...IngestOption) *IngestEventUseCase {
	uc := &IngestEventUseCase{
		enricher: enricher,
		store:    store,
		sinks:    sinks,
		metrics:  m,
		logger:   logger.With("component", "ingest_usecase"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Ingest enriches and admits raw, then hands the result to each sink. A
// failing sink is logged and counted; it never fails the ingestion or stops
// the other sinks.
func (uc *IngestEventUseCase) Ingest(ctx context.Context, raw domain.RawEvent) (domain.EnrichedEvent, error) {
	if raw.Kind == "" {
		return domain.EnrichedEvent{}, domain.ErrMissingKind
	}

	if uc.sessions != nil {
		raw = uc.sessions.Annotate(raw, uc.now())
	}

	insight := uc.enricher.Evaluate(raw)
	if insight.EvaluationError != "" {
		uc.logger.Warn("enrichment rule skipped", "kind", raw.Kind, "session", raw.SessionID, "error", insight.EvaluationError)
	}
	uc.metrics.ObserveInsight(insight.Level.String(), insight.RiskScore, insight.EvaluationError != "")

	ev := uc.store.Admit(raw, insight)

	for _, s := range uc.sinks {
		if err := s.Sink.Write(ctx, ev); err != nil {
			uc.metrics.SinkFailed(s.Name)
			uc.logger.Error("sink write failed", "sink", s.Name, "sequence_id", ev.SequenceID, "error", err)
		}
	}

	if uc.reporter != nil {
		uc.reporter.Record(ev)
	}
	return ev, nil
}

// IngestBatch ingests events in order and reports how many were accepted.
// Events without a kind are skipped; their errors are joined.
func (uc *IngestEventUseCase) IngestBatch(ctx context.Context, events []domain.RawEvent) (int, error) {
	var errs []error
	accepted := 0
	for i, raw := range events {
		if err := ctx.Err(); err != nil {
			return accepted, err
		}
		if _, err := uc.Ingest(ctx, raw); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}

// Replayer walks a durable record log.
type Replayer interface {
	Replay(ctx context.Context, fn func(domain.LogRecord) error) error
}

// Restorer accepts events that already carry a sequence id.
type Restorer interface {
	Restore(ev domain.EnrichedEvent)
}

// Rehydrate refills the event store from the enriched-event log so the
// recent history survives a restart. Sinks are not re-run.
func Rehydrate(ctx context.Context, log Replayer, store Restorer) (int, error) {
	n := 0
	err := log.Replay(ctx, func(rec domain.LogRecord) error {
		store.Restore(domain.EnrichedEvent{
			SequenceID: rec.SequenceID,
			IngestedAt: rec.IngestedAt,
			Event:      rec.Original,
			Insight:    rec.Insights,
		})
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("failed to rehydrate event store: %w", err)
	}
	return n, nil
}
