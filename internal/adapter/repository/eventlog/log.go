// Package eventlog keeps enriched-event records in size-rotated JSON-lines
// segment files.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".log"
	filePerm      = 0644

	// records can carry whole command lines and corpus insights
	maxLineSize = 1 << 20
)

// ErrBudgetExceeded is returned when a write would grow the log past its total size.
var ErrBudgetExceeded = errors.New("event log size budget exceeded")

// Log is an append-only record log split into segments.
type Log struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	// drainMu serializes drains; mu guards the segment being written.
	drainMu        sync.Mutex
	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
	totalSize      int64
	lastSegmentID  int64
}

// Open creates dir if needed and continues the newest segment in it.
func Open(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory %s: %w", dir, err)
	}

	l := &Log{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "eventlog", "dir", dir),
	}

	total, err := l.calculateTotalSize()
	if err != nil {
		return nil, fmt.Errorf("failed to size event log: %w", err)
	}
	l.totalSize = total

	if err := l.openLatestSegment(); err != nil {
		return nil, err
	}
	return l, nil
}

// Write appends one record.
func (l *Log) Write(ctx context.Context, rec domain.LogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record %d: %w", rec.SequenceID, err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentSegment == nil {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	if l.maxTotalSize > 0 && l.totalSize+int64(len(data)) > l.maxTotalSize {
		return fmt.Errorf("%w (%d > %d)", ErrBudgetExceeded, l.totalSize+int64(len(data)), l.maxTotalSize)
	}

	n, err := l.currentSegment.Write(data)
	l.currentSize += int64(n)
	l.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to event log segment: %w", err)
	}

	if l.maxSegmentSize > 0 && l.currentSize >= l.maxSegmentSize {
		if err := l.rotate(); err != nil {
			l.logger.Error("Failed to rotate event log segment", "error", err)
		}
	}
	return nil
}

// Replay calls fn for every record, oldest segment first. Lines that do not
// decode are skipped; an error from fn stops the replay.
func (l *Log) Replay(ctx context.Context, fn func(domain.LogRecord) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentSegment != nil {
		if err := l.currentSegment.Sync(); err != nil {
			l.logger.Warn("Failed to sync segment before replay", "error", err)
		}
	}

	segments, err := l.getSortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}
	l.logger.Info("Starting event log replay", "segment_count", len(segments))

	replayed := 0
	for _, path := range segments {
		n, err := l.replaySegment(ctx, path, fn)
		replayed += n
		if err != nil {
			return err
		}
	}

	l.logger.Info("Event log replay completed", "records", replayed)
	return nil
}

func (l *Log) replaySegment(ctx context.Context, path string, fn func(domain.LogRecord) error) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var rec domain.LogRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			l.logger.Warn("Failed to decode event log line, skipping", "segment", filepath.Base(path), "error", err)
			continue
		}
		if err := fn(rec); err != nil {
			return n, fmt.Errorf("replay handler failed: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return n, nil
}

// Drain seals the segment being written, hands every record of the sealed
// segments to fn and then removes them. Records written while the drain runs
// go to a fresh segment and are kept. If fn fails nothing is removed.
func (l *Log) Drain(ctx context.Context, fn func(domain.LogRecord) error) error {
	l.drainMu.Lock()
	defer l.drainMu.Unlock()

	sealed, err := l.seal()
	if err != nil {
		return err
	}
	if len(sealed) == 0 {
		return nil
	}

	drained := 0
	for _, path := range sealed {
		n, err := l.replaySegment(ctx, path, fn)
		drained += n
		if err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, path := range sealed {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	total, err := l.calculateTotalSize()
	if err != nil {
		errs = append(errs, err)
	} else {
		l.totalSize = total
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove drained segments: %w", errors.Join(errs...))
	}
	l.logger.Info("Event log drained", "segments", len(sealed), "records", drained)
	return nil
}

// seal returns the segments no writer will touch again, rotating away from
// the current segment when it holds data.
func (l *Log) seal() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	segments, err := l.getSortedSegments()
	if err != nil {
		return nil, err
	}
	if l.currentSegment == nil {
		return segments, nil
	}
	if l.currentSize == 0 {
		current := filepath.Join(l.dir, segmentName(l.lastSegmentID))
		sealed := segments[:0]
		for _, path := range segments {
			if path != current {
				sealed = append(sealed, path)
			}
		}
		return sealed, nil
	}
	if err := l.rotate(); err != nil {
		return nil, err
	}
	return segments, nil
}

// Truncate removes every segment and starts a fresh one.
func (l *Log) Truncate(ctx context.Context) error {
	l.drainMu.Lock()
	defer l.drainMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentSegment != nil {
		l.currentSegment.Close()
		l.currentSegment = nil
	}

	segments, err := l.getSortedSegments()
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range segments {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}

	total, err := l.calculateTotalSize()
	if err != nil {
		errs = append(errs, err)
	}
	l.totalSize = total
	if err := l.rotate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to truncate event log: %w", errors.Join(errs...))
	}
	l.logger.Info("Event log truncated")
	return nil
}

// Size reports the bytes currently held across all segments.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSize
}

// Dir is the directory holding the segments.
func (l *Log) Dir() string { return l.dir }

func (l *Log) rotate() error {
	if l.currentSegment != nil {
		if err := l.currentSegment.Sync(); err != nil {
			l.logger.Error("Failed to sync segment before rotating", "error", err)
		}
		if err := l.currentSegment.Close(); err != nil {
			l.logger.Error("Failed to close segment before rotating", "error", err)
		}
		l.currentSegment = nil
	}

	id := time.Now().UnixNano()
	if id <= l.lastSegmentID {
		id = l.lastSegmentID + 1
	}
	path := filepath.Join(l.dir, segmentName(id))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create event log segment %s: %w", path, err)
	}
	l.currentSegment = f
	l.currentSize = 0
	l.lastSegmentID = id
	l.logger.Debug("Rotated to new segment", "path", path)
	return nil
}

func segmentName(id int64) string {
	// zero padded so lexical order is creation order
	return fmt.Sprintf("%s%020d%s", segmentPrefix, id, segmentSuffix)
}

func segmentID(path string) int64 {
	var id int64
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), segmentPrefix), segmentSuffix)
	fmt.Sscanf(name, "%d", &id)
	return id
}

func (l *Log) openLatestSegment() error {
	segments, err := l.getSortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return l.rotate()
	}

	latest := segments[len(segments)-1]
	l.lastSegmentID = segmentID(latest)
	stat, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latest, err)
	}
	if l.maxSegmentSize > 0 && stat.Size() >= l.maxSegmentSize {
		return l.rotate()
	}

	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latest, err)
	}
	l.currentSegment = f
	l.currentSize = stat.Size()
	l.logger.Info("Opened existing segment", "path", latest, "size", l.currentSize)
	return nil
}

func (l *Log) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), segmentPrefix) {
			segments = append(segments, filepath.Join(l.dir, entry.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (l *Log) calculateTotalSize() (int64, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), segmentPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close syncs and closes the current segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentSegment == nil {
		return nil
	}
	err := l.currentSegment.Sync()
	if cerr := l.currentSegment.Close(); err == nil {
		err = cerr
	}
	l.currentSegment = nil
	return err
}
