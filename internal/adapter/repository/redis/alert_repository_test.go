package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/honeywatch/internal/adapter/repository/eventlog"
	"github.com/V4T54L/honeywatch/internal/domain"
	"github.com/V4T54L/honeywatch/internal/domain/mocks"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func newUnavailableRepo(t *testing.T, spool Spool) *AlertRepository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewAlertRepository(context.Background(), unreachableClient(t), "", 1000, spool, nil, logger)
	if r.Available() {
		t.Fatal("expected repository to start unavailable")
	}
	return r
}

func alertRecord(seq uint64) domain.LogRecord {
	return domain.LogRecord{SequenceID: seq, EventType: domain.KindLoginSuccess, ThreatLevel: domain.LevelCritical}
}

func TestAlertRepository_SpoolsWhileUnavailable(t *testing.T) {
	spool := &mocks.MockEventLog{}
	r := newUnavailableRepo(t, spool)

	for i := 1; i <= 3; i++ {
		if err := r.Publish(context.Background(), alertRecord(uint64(i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if len(spool.Records) != 3 {
		t.Fatalf("spooled %d records, want 3", len(spool.Records))
	}

	info, err := r.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Available || info.Spooled != 3 || info.Stream != DefaultStreamKey {
		t.Errorf("Info = %+v", info)
	}
}

func TestAlertRepository_NoSpool(t *testing.T) {
	r := newUnavailableRepo(t, nil)

	err := r.Publish(context.Background(), alertRecord(1))
	if !errors.Is(err, domain.ErrSinkUnavailable) {
		t.Fatalf("Publish error = %v, want ErrSinkUnavailable", err)
	}
}

func TestAlertRepository_SpoolWriteFailure(t *testing.T) {
	diskFull := errors.New("disk full")
	r := newUnavailableRepo(t, &mocks.MockEventLog{WriteErr: diskFull})

	if err := r.Publish(context.Background(), alertRecord(1)); !errors.Is(err, diskFull) {
		t.Fatalf("Publish error = %v, want disk full", err)
	}
}

func TestAlertRepository_ReplayKeepsSpoolOnFailure(t *testing.T) {
	spool := &mocks.MockEventLog{Records: []domain.LogRecord{alertRecord(1), alertRecord(2)}}
	r := newUnavailableRepo(t, spool)

	if err := r.ReplaySpool(context.Background()); err == nil {
		t.Fatal("expected replay to fail while Redis is down")
	}
	if spool.Drains != 0 || len(spool.Records) != 2 {
		t.Errorf("spool drains=%d records=%d, want untouched", spool.Drains, len(spool.Records))
	}

	r.checkHealth(context.Background())
	if r.Available() {
		t.Error("health check marked an unreachable server available")
	}
}

func TestAlertRepository_ReplayEmptySpool(t *testing.T) {
	spool := &mocks.MockEventLog{}
	r := newUnavailableRepo(t, spool)

	if err := r.ReplaySpool(context.Background()); err != nil {
		t.Fatalf("ReplaySpool: %v", err)
	}
	if spool.Drains != 1 {
		t.Errorf("Drains = %d, want 1", spool.Drains)
	}
}

// publishAfterDrain publishes through repo once the wrapped drain has
// replayed, before the repository has switched back to Redis.
type publishAfterDrain struct {
	*eventlog.Log
	repo *AlertRepository
	rec  domain.LogRecord
	err  error
}

func (s *publishAfterDrain) Drain(ctx context.Context, handler func(record domain.LogRecord) error) error {
	err := s.Log.Drain(ctx, handler)
	s.err = s.repo.Publish(ctx, s.rec)
	return err
}

func spooledIDs(t *testing.T, l *eventlog.Log) []uint64 {
	t.Helper()
	var ids []uint64
	err := l.Replay(context.Background(), func(rec domain.LogRecord) error {
		ids = append(ids, rec.SequenceID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return ids
}

func TestAlertRepository_ReplayKeepsAlertsSpooledDuringReplay(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := eventlog.Open(t.TempDir(), 1024, 0, logger)
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	spool := &publishAfterDrain{Log: l, rec: alertRecord(42)}
	r := newUnavailableRepo(t, spool)
	spool.repo = r

	if err := r.ReplaySpool(context.Background()); err != nil {
		t.Fatalf("ReplaySpool: %v", err)
	}
	if spool.err != nil {
		t.Fatalf("Publish during replay: %v", spool.err)
	}
	if ids := spooledIDs(t, l); len(ids) != 1 || ids[0] != 42 {
		t.Errorf("spool holds %v after replay, want [42]", ids)
	}
}

func TestAlertRepository_ConcurrentPublishAndReplay(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := eventlog.Open(t.TempDir(), 512, 0, logger)
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	r := newUnavailableRepo(t, l)

	const writers, perWriter = 4, 25
	ctx, cancel := context.WithCancel(context.Background())
	replayDone := make(chan struct{})
	go func() {
		defer close(replayDone)
		for ctx.Err() == nil {
			r.ReplaySpool(ctx)
			r.checkHealth(ctx)
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				seq := uint64(w*perWriter + i + 1)
				if err := r.Publish(context.Background(), alertRecord(seq)); err != nil {
					t.Errorf("Publish %d: %v", seq, err)
				}
			}
		}(w)
	}
	wg.Wait()
	cancel()
	<-replayDone

	seen := make(map[uint64]bool)
	for _, id := range spooledIDs(t, l) {
		seen[id] = true
	}
	for seq := uint64(1); seq <= writers*perWriter; seq++ {
		if !seen[seq] {
			t.Errorf("alert %d was accepted but is missing from the spool", seq)
		}
	}
}
