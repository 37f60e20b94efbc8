package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// CorpusSource exposes the corpus currently used for scoring.
type CorpusSource interface {
	Corpus() *domain.AttackCorpus
}

// CorpusReloader re-reads the corpus on demand.
type CorpusReloader interface {
	Reload(ctx context.Context) (domain.CorpusSummary, error)
}

// RelationalStatser reports what the relational sink holds.
type RelationalStatser interface {
	Stats(ctx context.Context) (domain.RelationalStats, error)
}

// AlertStream is the administrative view of the Redis alert stream.
type AlertStream interface {
	Info(ctx context.Context) (domain.AlertStreamInfo, error)
	Recent(ctx context.Context, count int64) ([]domain.LogRecord, error)
	Trim(ctx context.Context, maxLen int64) (int64, error)
}

// ExportBuffer drops the events waiting for export.
type ExportBuffer interface {
	ClearExportBuffer() int
}

// AdminDeps are the components the admin API reports on. Any of them may be
// nil when the component is not configured.
type AdminDeps struct {
	Corpus     CorpusSource
	Reloader   CorpusReloader
	Relational RelationalStatser
	Alerts     AlertStream
	Exports    ExportBuffer
}

// AdminHandler handles HTTP requests for pipeline administration.
type AdminHandler struct {
	deps   AdminDeps
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(deps AdminDeps, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: logger.With("component", "admin_handler")}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetCorpus handles GET /admin/corpus.
func (h *AdminHandler) GetCorpus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Corpus == nil {
		http.Error(w, "corpus not configured", http.StatusServiceUnavailable)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, h.deps.Corpus.Corpus().Summary())
}

// ReloadCorpus handles POST /admin/corpus/reload. A failed reload keeps the
// corpus in use and answers 502.
func (h *AdminHandler) ReloadCorpus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reloader == nil {
		http.Error(w, "corpus reload not configured", http.StatusServiceUnavailable)
		return
	}
	summary, err := h.deps.Reloader.Reload(r.Context())
	if err != nil {
		h.logger.Error("failed to reload corpus", "error", err)
		respondWithJSON(w, h.logger, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, summary)
}

// GetRelationalStats handles GET /admin/relational.
func (h *AdminHandler) GetRelationalStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Relational == nil {
		http.Error(w, "relational sink not configured", http.StatusServiceUnavailable)
		return
	}
	stats, err := h.deps.Relational.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get relational stats", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, stats)
}

// GetAlertStream handles GET /admin/alerts?count={count}.
func (h *AdminHandler) GetAlertStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Alerts == nil {
		http.Error(w, "alert stream not configured", http.StatusServiceUnavailable)
		return
	}

	var count int64 = 10
	if s := r.URL.Query().Get("count"); s != "" {
		var err error
		count, err = strconv.ParseInt(s, 10, 64)
		if err != nil || count < 0 {
			http.Error(w, "invalid count parameter", http.StatusBadRequest)
			return
		}
	}

	info, err := h.deps.Alerts.Info(r.Context())
	if err != nil {
		h.logger.Error("failed to get alert stream info", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	recent := []domain.LogRecord{}
	if info.Available && count > 0 {
		recent, err = h.deps.Alerts.Recent(r.Context(), count)
		if err != nil {
			h.logger.Error("failed to read recent alerts", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"stream": info,
		"recent": recent,
	})
}

// TrimAlertStream handles POST /admin/alerts/trim.
func (h *AdminHandler) TrimAlertStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Alerts == nil {
		http.Error(w, "alert stream not configured", http.StatusServiceUnavailable)
		return
	}

	var payload struct {
		MaxLen int64 `json:"maxlen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.MaxLen <= 0 {
		http.Error(w, "maxlen must be a positive integer", http.StatusBadRequest)
		return
	}

	trimmedCount, err := h.deps.Alerts.Trim(r.Context(), payload.MaxLen)
	if err != nil {
		h.logger.Error("failed to trim stream", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]int64{"trimmed": trimmedCount})
}

// ClearExportBuffer handles POST /admin/export/clear.
func (h *AdminHandler) ClearExportBuffer(w http.ResponseWriter, r *http.Request) {
	if h.deps.Exports == nil {
		http.Error(w, "export buffer not configured", http.StatusServiceUnavailable)
		return
	}
	n := h.deps.Exports.ClearExportBuffer()
	h.logger.Info("export buffer cleared", "events", n)
	respondWithJSON(w, h.logger, http.StatusOK, map[string]int{"cleared": n})
}
