// Package export buffers enriched events and writes them out as JSON
// envelopes or SQL insert scripts, on demand or automatically.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/adapter/repository/relational"
	"github.com/V4T54L/honeywatch/internal/domain"
)

const (
	DefaultMaxBufferSize = 10000
	DefaultFilePrefix    = "honeywatch_export"

	TriggerManual   = "manual"
	TriggerSize     = "size"
	TriggerInterval = "interval"
	TriggerShutdown = "shutdown"

	fileTimeLayout = "20060102_150405"
)

// Config controls where and how exports are written.
type Config struct {
	Dir             string
	Compression     Compression
	IncludeMetadata bool
	// MaxBufferSize triggers an automatic export once reached.
	MaxBufferSize int
	// Interval between automatic exports; zero disables the timer.
	Interval   time.Duration
	FilePrefix string
}

// Manager buffers events for bulk export. It is safe for concurrent use.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	buffer     []domain.EnrichedEvent
	byKind     map[string]int
	totalAdded uint64
	// clears counts Clear calls so an automatic export can tell its prefix is gone.
	clears     uint64
	exports    uint64
	failures   uint64
	lastExport *domain.ExportResult

	// exportMu serializes automatic exports so each one drops only its own prefix.
	exportMu sync.Mutex

	loopMu  sync.Mutex
	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	now   func() time.Time
	newID func() string
}

// NewManager creates the export directory if needed.
func NewManager(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("export directory is required")
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = DefaultMaxBufferSize
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = DefaultFilePrefix
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", cfg.Dir, err)
	}

	return &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "export_manager"),
		metrics: m,
		byKind:  make(map[string]int),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Dir is the directory exports are written to.
func (m *Manager) Dir() string { return m.cfg.Dir }

// Add appends ev to the buffer. Reaching MaxBufferSize schedules an automatic
// export, or runs one inline when the background loop is not running.
func (m *Manager) Add(ev domain.EnrichedEvent) {
	m.mu.Lock()
	m.buffer = append(m.buffer, ev)
	m.byKind[ev.Event.KindOrUnknown()]++
	m.totalAdded++
	n := len(m.buffer)
	m.mu.Unlock()

	m.metrics.SetExportBuffer(n)
	if n < m.cfg.MaxBufferSize {
		return
	}

	m.loopMu.Lock()
	running := m.cancel != nil
	m.loopMu.Unlock()
	if running {
		select {
		case m.trigger <- struct{}{}:
		default:
		}
		return
	}
	if _, err := m.AutoExport(context.Background(), TriggerSize); err != nil {
		m.logger.Error("Size-triggered export failed, buffer retained", "error", err, "buffered", n)
	}
}

// Write implements domain.EventSink.
func (m *Manager) Write(_ context.Context, ev domain.EnrichedEvent) error {
	m.Add(ev)
	return nil
}

// Export writes the buffered events matching filter as a JSON envelope.
// An empty dest generates a file name. The buffer is not modified.
func (m *Manager) Export(ctx context.Context, filter domain.ExportFilter, dest string) (domain.ExportResult, error) {
	return m.export(ctx, TriggerManual, domain.FormatJSON, filter, dest)
}

// ExportSQL writes the buffered events matching filter as INSERT statements.
func (m *Manager) ExportSQL(ctx context.Context, filter domain.ExportFilter, dest string) (domain.ExportResult, error) {
	return m.export(ctx, TriggerManual, domain.FormatSQL, filter, dest)
}

// ExportByTimeRange exports events from the last hours.
func (m *Manager) ExportByTimeRange(ctx context.Context, hours float64) (domain.ExportResult, error) {
	end := m.now()
	start := end.Add(-time.Duration(hours * float64(time.Hour)))
	name := fmt.Sprintf("%s_last_%sh_%s.json", m.cfg.FilePrefix,
		strconv.FormatFloat(hours, 'f', -1, 64), end.UTC().Format(fileTimeLayout))
	return m.Export(ctx, domain.TimeRange(start, end), name)
}

// ExportByEventKinds exports events of the given kinds.
func (m *Manager) ExportByEventKinds(ctx context.Context, kinds []string) (domain.ExportResult, error) {
	name := fmt.Sprintf("%s_types_%s_%s.json", m.cfg.FilePrefix,
		sanitize(strings.Join(kinds, "_")), m.now().UTC().Format(fileTimeLayout))
	return m.Export(ctx, domain.ExportFilter{EventKinds: kinds}, name)
}

// ExportBySourceIPs exports events from the given source addresses.
func (m *Manager) ExportBySourceIPs(ctx context.Context, ips []string) (domain.ExportResult, error) {
	name := fmt.Sprintf("%s_ips_%d_%s.json", m.cfg.FilePrefix, len(ips), m.now().UTC().Format(fileTimeLayout))
	return m.Export(ctx, domain.ExportFilter{SourceIPs: ips}, name)
}

// AutoExport writes every buffered event and then drops exactly the exported
// prefix; events added while the file was being written stay buffered. On
// failure the buffer is left untouched.
func (m *Manager) AutoExport(ctx context.Context, trigger string) (domain.ExportResult, error) {
	m.exportMu.Lock()
	defer m.exportMu.Unlock()

	m.mu.RLock()
	events := append([]domain.EnrichedEvent(nil), m.buffer...)
	gen := m.clears
	m.mu.RUnlock()
	n := len(events)
	if n == 0 {
		return domain.ExportResult{Success: true, ExportedAt: m.now().UTC()}, nil
	}

	res, err := m.writeExport(ctx, trigger, domain.FormatJSON, domain.ExportFilter{}, "", events)
	if err != nil {
		return res, err
	}

	m.mu.Lock()
	if m.clears == gen {
		for _, ev := range m.buffer[:n] {
			kind := ev.Event.KindOrUnknown()
			if m.byKind[kind]--; m.byKind[kind] <= 0 {
				delete(m.byKind, kind)
			}
		}
		m.buffer = append([]domain.EnrichedEvent(nil), m.buffer[n:]...)
	}
	remaining := len(m.buffer)
	m.mu.Unlock()

	m.metrics.SetExportBuffer(remaining)
	m.logger.Info("Automatic export completed", "trigger", trigger, "events", res.EventCount, "path", res.Path, "remaining", remaining)
	return res, nil
}

func (m *Manager) export(ctx context.Context, trigger string, format domain.ExportFormat, filter domain.ExportFilter, dest string) (domain.ExportResult, error) {
	return m.writeExport(ctx, trigger, format, filter, dest, m.snapshot(filter))
}

// writeExport writes events to dest; filter only feeds the export metadata.
func (m *Manager) writeExport(ctx context.Context, trigger string, format domain.ExportFormat, filter domain.ExportFilter, dest string, events []domain.EnrichedEvent) (res domain.ExportResult, err error) {
	ctx, span := otel.Tracer("export-manager").Start(ctx, "Export")
	defer span.End()

	now := m.now()
	res.ExportedAt = now.UTC()
	defer func() {
		m.record(trigger, res)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.logger.Error("Export failed", "trigger", trigger, "format", format, "error", err)
		}
	}()

	if err = ctx.Err(); err != nil {
		res.Error = err.Error()
		return res, err
	}

	path, err := m.resolvePath(dest, format, now)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.Path = path
	res.EventCount = len(events)
	span.SetAttributes(
		attribute.String("export.format", string(format)),
		attribute.String("export.trigger", trigger),
		attribute.Int("export.events", len(events)),
	)

	size, err := m.writeFile(path, func(w io.Writer) error {
		if format == domain.FormatSQL {
			return relational.RenderEvents(w, events, now)
		}
		env := Envelope{Events: events}
		if m.cfg.IncludeMetadata {
			env.ExportInfo = newInfo(m.newID(), now, filter, events)
		}
		return writeEnvelope(w, env)
	})
	if err != nil {
		err = &domain.SinkWriteError{Sink: "export", Err: err}
		res.Error = err.Error()
		return res, err
	}

	res.ByteSize = size
	res.Success = true
	return res, nil
}

// WriteJSON streams the matching events as an uncompressed envelope.
func (m *Manager) WriteJSON(w io.Writer, filter domain.ExportFilter) (int, error) {
	events := m.snapshot(filter)
	env := Envelope{Events: events}
	if m.cfg.IncludeMetadata {
		env.ExportInfo = newInfo(m.newID(), m.now(), filter, events)
	}
	return len(events), writeEnvelope(w, env)
}

// WriteSQL streams the matching events as INSERT statements.
func (m *Manager) WriteSQL(w io.Writer, filter domain.ExportFilter) (int, error) {
	events := m.snapshot(filter)
	return len(events), relational.RenderEvents(w, events, m.now())
}

func (m *Manager) snapshot(filter domain.ExportFilter) []domain.EnrichedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.EnrichedEvent, 0, len(m.buffer))
	for _, ev := range m.buffer {
		if filter.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// resolvePath confines dest to the export directory and appends the
// compression extension.
func (m *Manager) resolvePath(dest string, format domain.ExportFormat, now time.Time) (string, error) {
	name := filepath.Base(filepath.Clean("/" + dest))
	if dest == "" || name == "/" || name == "." {
		name = fmt.Sprintf("%s_%s_%s.%s", m.cfg.FilePrefix, now.UTC().Format(fileTimeLayout), m.newID()[:8], format)
	}
	if ext := m.cfg.Compression.Extension(); ext != "" && !strings.HasSuffix(name, ext) {
		name += ext
	}
	return filepath.Join(m.cfg.Dir, name), nil
}

// writeFile writes through a temp file in the export directory and renames
// it into place, so readers never see a partial export.
func (m *Manager) writeFile(path string, body func(io.Writer) error) (int64, error) {
	tmp, err := os.CreateTemp(m.cfg.Dir, ".export-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	counter := &countingWriter{w: tmp}
	cw, err := m.cfg.Compression.newWriter(counter)
	if err != nil {
		return 0, err
	}
	if err := body(cw); err != nil {
		return 0, err
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush %s stream: %w", m.cfg.Compression, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("failed to move export into place: %w", err)
	}
	committed = true
	return counter.n, nil
}

func (m *Manager) record(trigger string, res domain.ExportResult) {
	m.mu.Lock()
	if res.Success {
		m.exports++
	} else {
		m.failures++
	}
	r := res
	m.lastExport = &r
	m.mu.Unlock()

	m.metrics.ObserveExport(trigger, res.Success, res.EventCount, res.ByteSize)
}

// Clear empties the buffer and its per-kind counters. An automatic export in
// flight keeps its file but leaves events added after the clear buffered.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.clears++
	m.buffer = nil
	m.byKind = make(map[string]int)
	m.mu.Unlock()
	m.metrics.SetExportBuffer(0)
}

// Stats reports the buffer state and export history.
func (m *Manager) Stats() domain.ExportStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKind := make(map[string]int, len(m.byKind))
	for k, v := range m.byKind {
		byKind[k] = v
	}
	stats := domain.ExportStats{
		Buffered:     len(m.buffer),
		ByKind:       byKind,
		TotalAdded:   m.totalAdded,
		Exports:      m.exports,
		Failures:     m.failures,
		MaxBuffer:    m.cfg.MaxBufferSize,
		Compression:  string(m.cfg.Compression),
		AutoInterval: m.cfg.Interval,
	}
	if m.lastExport != nil {
		last := *m.lastExport
		stats.LastExport = &last
	}
	return stats
}

// Start runs automatic exports in the background until Stop is called or
// ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	m.logger.Info("Auto-export started", "interval", m.cfg.Interval, "max_buffer_size", m.cfg.MaxBufferSize)
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if m.cfg.Interval > 0 {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			m.autoExport(ctx, TriggerInterval)
		case <-m.trigger:
			m.autoExport(ctx, TriggerSize)
		}
	}
}

func (m *Manager) autoExport(ctx context.Context, trigger string) {
	if _, err := m.AutoExport(ctx, trigger); err != nil {
		m.logger.Error("Automatic export failed, buffer retained", "trigger", trigger, "error", err)
	}
}

// Stop halts the background loop and flushes whatever is still buffered.
func (m *Manager) Stop(ctx context.Context) error {
	m.loopMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	_, err := m.AutoExport(ctx, TriggerShutdown)
	return err
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
