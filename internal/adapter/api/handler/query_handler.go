package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Querier is the read side of the pipeline.
type Querier interface {
	Events(opts domain.QueryOptions) []domain.EnrichedEvent
	Stats() domain.StoreStats
	ExportStats() domain.ExportStats
	Export(ctx context.Context, filter domain.ExportFilter, format domain.ExportFormat, dest string) (domain.ExportResult, error)
	Stream(ctx context.Context, w io.Writer, filter domain.ExportFilter, format domain.ExportFormat) (int, error)
	ExportRecent(ctx context.Context, hours float64) (domain.ExportResult, error)
	ExportKinds(ctx context.Context, kinds []string) (domain.ExportResult, error)
	ExportSourceIPs(ctx context.Context, ips []string) (domain.ExportResult, error)
}

const (
	defaultEventLimit  = 100
	defaultExportHours = 24
)

// QueryHandler serves recent events, statistics and exports.
type QueryHandler struct {
	uc     Querier
	logger *slog.Logger
	now    func() time.Time
}

func NewQueryHandler(uc Querier, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{uc: uc, logger: logger.With("component", "query_handler"), now: time.Now}
}

// ListEvents handles GET /api/events?limit=&kind=&since=
func (h *QueryHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := domain.QueryOptions{Limit: defaultEventLimit, Kind: domain.NormalizeKind(q.Get("kind"))}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid since parameter, want RFC3339", http.StatusBadRequest)
			return
		}
		opts.Since = since
	}

	events := h.uc.Events(opts)
	if events == nil {
		events = []domain.EnrichedEvent{}
	}
	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// Stats handles GET /api/stats.
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"store":  h.uc.Stats(),
		"export": h.uc.ExportStats(),
	})
}

// StreamExport handles GET /api/export and writes the export body directly
// to the response.
func (h *QueryHandler) StreamExport(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter, err := h.filterFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name := "honeywatch_export." + string(format)
	if format == domain.FormatSQL {
		w.Header().Set("Content-Type", "application/sql")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	n, err := h.uc.Stream(r.Context(), w, filter, format)
	if err != nil {
		// the body may already be partially written
		h.logger.Error("export stream failed", "error", err, "written", n)
		return
	}
	h.logger.Debug("export streamed", "events", n, "format", format)
}

// ExportRequest is the body of POST /api/export.
type ExportRequest struct {
	Format      string              `json:"format"`
	Destination string              `json:"destination"`
	Filters     domain.ExportFilter `json:"filters"`
}

// WriteExport handles POST /api/export and writes a file in the export directory.
func (h *QueryHandler) WriteExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	format, err := parseFormat(req.Format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.uc.Export(r.Context(), req.Filters.Normalized(), format, req.Destination)
	h.respondExport(w, res, err)
}

// ExportRecent handles POST /api/export/recent?hours={hours}.
func (h *QueryHandler) ExportRecent(w http.ResponseWriter, r *http.Request) {
	hours := float64(defaultExportHours)
	if s := r.URL.Query().Get("hours"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			http.Error(w, "invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = v
	}
	res, err := h.uc.ExportRecent(r.Context(), hours)
	h.respondExport(w, res, err)
}

// ExportKinds handles POST /api/export/kinds?event_types={kinds}.
func (h *QueryHandler) ExportKinds(w http.ResponseWriter, r *http.Request) {
	res, err := h.uc.ExportKinds(r.Context(), listParam(r.URL.Query(), "event_types"))
	h.respondExport(w, res, err)
}

// ExportSourceIPs handles POST /api/export/ips?source_ips={ips}.
func (h *QueryHandler) ExportSourceIPs(w http.ResponseWriter, r *http.Request) {
	res, err := h.uc.ExportSourceIPs(r.Context(), listParam(r.URL.Query(), "source_ips"))
	h.respondExport(w, res, err)
}

func (h *QueryHandler) respondExport(w http.ResponseWriter, res domain.ExportResult, err error) {
	if errors.Is(err, domain.ErrEmptySelection) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("export failed", "error", err)
		if res.Error == "" {
			res.Error = err.Error()
		}
		respondWithJSON(w, h.logger, http.StatusInternalServerError, res)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, res)
}

func parseFormat(s string) (domain.ExportFormat, error) {
	switch f := domain.ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", domain.FormatJSON:
		return domain.FormatJSON, nil
	case domain.FormatSQL:
		return domain.FormatSQL, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, s)
	}
}

// filterFromQuery reads event_types, source_ips, sessions (comma separated or
// repeated), start/end (epoch seconds or RFC3339) and hours.
func (h *QueryHandler) filterFromQuery(q url.Values) (domain.ExportFilter, error) {
	f := domain.ExportFilter{
		EventKinds: listParam(q, "event_types"),
		SourceIPs:  listParam(q, "source_ips"),
		Sessions:   listParam(q, "sessions"),
	}.Normalized()

	if s := q.Get("hours"); s != "" {
		hours, err := strconv.ParseFloat(s, 64)
		if err != nil || hours <= 0 {
			return f, fmt.Errorf("invalid hours parameter: %q", s)
		}
		window := domain.TimeRange(h.now().Add(-time.Duration(hours*float64(time.Hour))), time.Time{})
		f.Start = window.Start
	}
	for _, p := range []struct {
		name string
		dst  **float64
	}{{"start", &f.Start}, {"end", &f.End}} {
		s := q.Get(p.name)
		if s == "" {
			continue
		}
		v, err := parseInstant(s)
		if err != nil {
			return f, fmt.Errorf("invalid %s parameter: %w", p.name, err)
		}
		*p.dst = &v
	}
	return f, nil
}

func parseInstant(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return float64(t.UnixNano()) / 1e9, nil
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
