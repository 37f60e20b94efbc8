package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain/mocks"
)

func TestSnapshotUseCase_Run(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixed := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

	t.Run("Successful Snapshot", func(t *testing.T) {
		dir := t.TempDir()
		snap := &mocks.MockSnapshotter{Body: "INSERT INTO sessions (id) VALUES ('a');\n"}
		uc := NewSnapshotUseCase(snap, dir, nil, logger, 3, time.Millisecond)
		uc.now = func() time.Time { return fixed }

		path, err := uc.Run(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if filepath.Base(path) != "snapshot_20261015_083000.sql" {
			t.Errorf("unexpected path %s", path)
		}
		data, _ := os.ReadFile(path)
		if string(data) != snap.Body {
			t.Errorf("snapshot content = %q", data)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 {
			t.Errorf("expected only the snapshot file, found %d entries", len(entries))
		}
	})

	t.Run("Transient Failure with Retry", func(t *testing.T) {
		snap := &mocks.MockSnapshotter{Body: "ok", Errs: []error{errors.New("database is locked")}}
		uc := NewSnapshotUseCase(snap, t.TempDir(), nil, logger, 3, time.Millisecond)

		if _, err := uc.Run(context.Background()); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if snap.Calls != 2 {
			t.Errorf("expected 2 calls, got %d", snap.Calls)
		}
	})

	t.Run("Persistent Failure", func(t *testing.T) {
		down := errors.New("database is down")
		snap := &mocks.MockSnapshotter{Errs: []error{down, down}}
		uc := NewSnapshotUseCase(snap, t.TempDir(), nil, logger, 2, time.Millisecond)

		_, err := uc.Run(context.Background())
		if !errors.Is(err, down) {
			t.Fatalf("expected %v, got %v", down, err)
		}
		if snap.Calls != 2 {
			t.Errorf("expected 2 calls, got %d", snap.Calls)
		}
	})

	t.Run("Context Cancelled", func(t *testing.T) {
		snap := &mocks.MockSnapshotter{Errs: []error{errors.New("x"), errors.New("y")}}
		uc := NewSnapshotUseCase(snap, t.TempDir(), nil, logger, 2, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := uc.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
