package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/V4T54L/honeywatch/internal/adapter/pii"
	"github.com/V4T54L/honeywatch/internal/domain"
	"github.com/V4T54L/honeywatch/internal/domain/mocks"
	"github.com/V4T54L/honeywatch/internal/threat"
)

type recordingReporter struct{ events []domain.EnrichedEvent }

func (r *recordingReporter) Record(ev domain.EnrichedEvent) { r.events = append(r.events, ev) }

func criticalCorpus() *domain.AttackCorpus {
	c := domain.EmptyCorpus()
	c.PortFrequency[53] = 2460
	return c
}

func TestIngestEventUseCase_Ingest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	port := 53

	t.Run("Successful Ingestion", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		sink := &mocks.MockEventSink{}
		reporter := &recordingReporter{}
		uc := NewIngestEventUseCase(threat.NewEngine(criticalCorpus()), store,
			[]NamedSink{{Name: "mock", Sink: sink}}, nil, logger, WithRateReporter(reporter))

		ev, err := uc.Ingest(context.Background(), domain.RawEvent{
			Kind: domain.KindSessionConnect, SessionID: "s1", DestPort: &port,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ev.SequenceID != 1 || ev.Insight.Level != domain.LevelCritical {
			t.Errorf("enriched event = %+v", ev)
		}
		if len(sink.Written()) != 1 || sink.Written()[0].SequenceID != 1 {
			t.Errorf("sink received %d events", len(sink.Written()))
		}
		if len(reporter.events) != 1 {
			t.Errorf("reporter saw %d events", len(reporter.events))
		}
	})

	t.Run("Missing Kind", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		uc := NewIngestEventUseCase(threat.NewEngine(nil), store, nil, nil, logger)

		_, err := uc.Ingest(context.Background(), domain.RawEvent{SessionID: "s1"})
		if !errors.Is(err, domain.ErrMissingKind) {
			t.Fatalf("expected ErrMissingKind, got %v", err)
		}
		if len(store.Events) != 0 {
			t.Error("event without a kind was admitted")
		}
	})

	t.Run("Sink Failure Is Isolated", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		failing := &mocks.MockEventSink{WriteErr: errors.New("disk full")}
		healthy := &mocks.MockEventSink{}
		uc := NewIngestEventUseCase(threat.NewEngine(nil), store, []NamedSink{
			{Name: "failing", Sink: failing},
			{Name: "healthy", Sink: healthy},
		}, nil, logger)

		if _, err := uc.Ingest(context.Background(), domain.RawEvent{Kind: domain.KindLoginFailed}); err != nil {
			t.Fatalf("sink failure leaked into ingestion: %v", err)
		}
		if len(store.Events) != 1 {
			t.Errorf("expected event to be admitted, got %d", len(store.Events))
		}
		if len(healthy.Written()) != 1 {
			t.Error("healthy sink skipped after another sink failed")
		}
	})

	t.Run("Session Duration Derived Before Scoring", func(t *testing.T) {
		tracker, err := threat.NewSessionTracker(16)
		if err != nil {
			t.Fatalf("NewSessionTracker: %v", err)
		}
		store := &mocks.MockEventStore{}
		uc := NewIngestEventUseCase(threat.NewEngine(nil), store, nil, nil, logger, WithSessionAnnotator(tracker))

		start := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
		uc.Ingest(context.Background(), domain.RawEvent{Kind: domain.KindSessionConnect, SessionID: "s9", Timestamp: start})
		closed, _ := uc.Ingest(context.Background(), domain.RawEvent{
			Kind: domain.KindSessionClosed, SessionID: "s9", Timestamp: start.Add(60 * time.Second),
		})

		if closed.Event.Duration == nil || *closed.Event.Duration != 60 {
			t.Fatalf("duration = %v, want 60", closed.Event.Duration)
		}
		for _, ind := range closed.Insight.Indicators {
			if ind == "Quick disconnect - scanning behavior" {
				t.Error("long session scored as a quick disconnect")
			}
		}
	})
}

func TestIngestEventUseCase_IngestBatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &mocks.MockEventStore{}
	uc := NewIngestEventUseCase(threat.NewEngine(nil), store, nil, nil, logger)

	n, err := uc.IngestBatch(context.Background(), []domain.RawEvent{
		{Kind: domain.KindSessionConnect},
		{},
		{Kind: domain.KindLoginFailed},
	})
	if n != 2 {
		t.Errorf("accepted = %d, want 2", n)
	}
	if !errors.Is(err, domain.ErrMissingKind) {
		t.Errorf("expected joined ErrMissingKind, got %v", err)
	}
}

func TestRehydrate(t *testing.T) {
	log := &mocks.MockEventLog{Records: []domain.LogRecord{
		{SequenceID: 7, Original: domain.RawEvent{Kind: domain.KindLoginFailed}, Insights: domain.ThreatInsight{Level: domain.LevelHigh}},
		{SequenceID: 8, Original: domain.RawEvent{Kind: domain.KindCommandInput}},
	}}
	store := &mocks.MockEventStore{}

	n, err := Rehydrate(context.Background(), log, store)
	if err != nil || n != 2 {
		t.Fatalf("Rehydrate = %d, %v", n, err)
	}
	if store.Restored[0].SequenceID != 7 || store.Restored[0].Insight.Level != domain.LevelHigh {
		t.Errorf("restored = %+v", store.Restored[0])
	}

	log.ReplayErr = errors.New("corrupt")
	if _, err := Rehydrate(context.Background(), log, store); err == nil {
		t.Error("expected replay error")
	}
}

func TestAlertSink_Write(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redactor := pii.NewRedactor([]string{"password"}, logger)

	t.Run("Publishes High With Redaction", func(t *testing.T) {
		bus := &mocks.MockAlertPublisher{}
		sink := NewAlertSink([]domain.AlertPublisher{bus}, redactor, logger)

		err := sink.Write(context.Background(), domain.EnrichedEvent{
			SequenceID: 3,
			Event:      domain.RawEvent{Kind: domain.KindLoginSuccess, Password: "hunter2"},
			Insight:    domain.ThreatInsight{Level: domain.LevelHigh},
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		recs := bus.Records()
		if len(recs) != 1 {
			t.Fatalf("published %d records, want 1", len(recs))
		}
		if recs[0].Original.Password != pii.RedactedPlaceholder {
			t.Errorf("password leaked: %q", recs[0].Original.Password)
		}
	})

	t.Run("Skips Below Threshold", func(t *testing.T) {
		bus := &mocks.MockAlertPublisher{}
		sink := NewAlertSink([]domain.AlertPublisher{bus}, nil, logger)

		for _, level := range []domain.ThreatLevel{domain.LevelLow, domain.LevelMedium} {
			sink.Write(context.Background(), domain.EnrichedEvent{Insight: domain.ThreatInsight{Level: level}})
		}
		if len(bus.Records()) != 0 {
			t.Errorf("published %d low/medium records", len(bus.Records()))
		}
	})

	t.Run("Publisher Failure Does Not Stop Others", func(t *testing.T) {
		broken := &mocks.MockAlertPublisher{BusName: "redis", PublishErr: errors.New("timeout")}
		healthy := &mocks.MockAlertPublisher{BusName: "nats"}
		sink := NewAlertSink([]domain.AlertPublisher{broken, healthy}, nil, logger)

		err := sink.Write(context.Background(), domain.EnrichedEvent{Insight: domain.ThreatInsight{Level: domain.LevelCritical}})
		var werr *domain.SinkWriteError
		if !errors.As(err, &werr) || werr.Sink != "alerts" {
			t.Fatalf("expected SinkWriteError, got %v", err)
		}
		if len(healthy.Records()) != 1 {
			t.Error("healthy publisher skipped")
		}
	})
}
