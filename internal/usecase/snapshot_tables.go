package usecase

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

const (
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
)

// SnapshotUseCase dumps the relational sink to timestamped SQL files.
type SnapshotUseCase struct {
	snapshotter  domain.Snapshotter
	dir          string
	tables       []string
	logger       *slog.Logger
	retryCount   int
	retryBackoff time.Duration
	now          func() time.Time
}

// NewSnapshotUseCase snapshots tables (all when empty) into dir. Non-positive
// retry settings fall back to the defaults.
func NewSnapshotUseCase(s domain.Snapshotter, dir string, tables []string, logger *slog.Logger, retryCount int, retryBackoff time.Duration) *SnapshotUseCase {
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	return &SnapshotUseCase{
		snapshotter:  s,
		dir:          dir,
		tables:       tables,
		logger:       logger.With("component", "snapshot_usecase"),
		retryCount:   retryCount,
		retryBackoff: retryBackoff,
		now:          time.Now,
	}
}

// Run writes one snapshot and returns its path.
func (uc *SnapshotUseCase) Run(ctx context.Context) (string, error) {
	if err := os.MkdirAll(uc.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(uc.dir, fmt.Sprintf("snapshot_%s.sql", uc.now().UTC().Format("20060102_150405")))

	if err := uc.writeWithRetry(ctx, path); err != nil {
		uc.logger.Error("failed to write snapshot after retries", "path", path, "error", err)
		return "", err
	}
	uc.logger.Info("relational snapshot written", "path", path)
	return path, nil
}

// RunEvery writes a snapshot each interval until ctx is done.
func (uc *SnapshotUseCase) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// failures are logged by Run; the next tick tries again
			_, _ = uc.Run(ctx)
		}
	}
}

func (uc *SnapshotUseCase) writeWithRetry(ctx context.Context, path string) error {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		err := uc.writeOnce(ctx, path)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write snapshot, retrying...", "attempt", i+1, "error", err)
		if i == uc.retryCount-1 {
			break
		}
		select {
		case <-time.After(uc.retryBackoff * time.Duration(1<<i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (uc *SnapshotUseCase) writeOnce(ctx context.Context, path string) error {
	tmp, err := os.CreateTemp(uc.dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	w := bufio.NewWriter(tmp)
	if err := uc.snapshotter.Snapshot(ctx, w, uc.tables); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
