package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Exporter is the export side of the pipeline.
type Exporter interface {
	Export(ctx context.Context, filter domain.ExportFilter, dest string) (domain.ExportResult, error)
	ExportSQL(ctx context.Context, filter domain.ExportFilter, dest string) (domain.ExportResult, error)
	WriteJSON(w io.Writer, filter domain.ExportFilter) (int, error)
	WriteSQL(w io.Writer, filter domain.ExportFilter) (int, error)
	ExportByTimeRange(ctx context.Context, hours float64) (domain.ExportResult, error)
	ExportByEventKinds(ctx context.Context, kinds []string) (domain.ExportResult, error)
	ExportBySourceIPs(ctx context.Context, ips []string) (domain.ExportResult, error)
	Clear()
	Stats() domain.ExportStats
}

// QueryUseCase serves reads of the recent history and the export buffer.
type QueryUseCase struct {
	store    domain.EventStore
	exporter Exporter
}

func NewQueryUseCase(store domain.EventStore, exporter Exporter) *QueryUseCase {
	return &QueryUseCase{store: store, exporter: exporter}
}

func (uc *QueryUseCase) Events(opts domain.QueryOptions) []domain.EnrichedEvent {
	return uc.store.Query(opts)
}

func (uc *QueryUseCase) Stats() domain.StoreStats {
	return uc.store.Stats()
}

func (uc *QueryUseCase) ExportStats() domain.ExportStats {
	return uc.exporter.Stats()
}

// Export writes the matching buffered events to dest inside the export directory.
func (uc *QueryUseCase) Export(ctx context.Context, filter domain.ExportFilter, format domain.ExportFormat, dest string) (domain.ExportResult, error) {
	switch format {
	case domain.FormatJSON, "":
		return uc.exporter.Export(ctx, filter, dest)
	case domain.FormatSQL:
		return uc.exporter.ExportSQL(ctx, filter, dest)
	}
	return domain.ExportResult{}, domain.ErrUnsupportedFormat
}

// Stream writes the matching buffered events straight to w.
func (uc *QueryUseCase) Stream(ctx context.Context, w io.Writer, filter domain.ExportFilter, format domain.ExportFormat) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	switch format {
	case domain.FormatJSON, "":
		return uc.exporter.WriteJSON(w, filter)
	case domain.FormatSQL:
		return uc.exporter.WriteSQL(w, filter)
	}
	return 0, domain.ErrUnsupportedFormat
}

// ExportRecent writes the events of the last hours to a generated file.
func (uc *QueryUseCase) ExportRecent(ctx context.Context, hours float64) (domain.ExportResult, error) {
	if hours <= 0 {
		return domain.ExportResult{}, fmt.Errorf("%w: hours must be positive", domain.ErrEmptySelection)
	}
	return uc.exporter.ExportByTimeRange(ctx, hours)
}

// ExportKinds writes the events of the given kinds to a generated file.
func (uc *QueryUseCase) ExportKinds(ctx context.Context, kinds []string) (domain.ExportResult, error) {
	if len(kinds) == 0 {
		return domain.ExportResult{}, fmt.Errorf("%w: no event types", domain.ErrEmptySelection)
	}
	normalized := make([]string, len(kinds))
	for i, k := range kinds {
		normalized[i] = domain.NormalizeKind(k)
	}
	return uc.exporter.ExportByEventKinds(ctx, normalized)
}

// ExportSourceIPs writes the events from the given addresses to a generated file.
func (uc *QueryUseCase) ExportSourceIPs(ctx context.Context, ips []string) (domain.ExportResult, error) {
	if len(ips) == 0 {
		return domain.ExportResult{}, fmt.Errorf("%w: no source ips", domain.ErrEmptySelection)
	}
	return uc.exporter.ExportBySourceIPs(ctx, ips)
}

// ClearExportBuffer drops every buffered event and returns how many there were.
func (uc *QueryUseCase) ClearExportBuffer() int {
	n := uc.exporter.Stats().Buffered
	uc.exporter.Clear()
	return n
}
