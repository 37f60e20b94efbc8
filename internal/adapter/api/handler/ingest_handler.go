package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/domain"
)

// EventIngester runs one raw event through the pipeline.
type EventIngester interface {
	Ingest(ctx context.Context, raw domain.RawEvent) (domain.EnrichedEvent, error)
}

// BatchResult is returned for NDJSON requests.
type BatchResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// IngestHandler handles HTTP requests for event ingestion.
type IngestHandler struct {
	useCase      EventIngester
	logger       *slog.Logger
	maxEventSize int64
	metrics      *metrics.Metrics
	limiter      *rate.Limiter
}

// NewIngestHandler creates a new IngestHandler. A nil limiter disables rate limiting.
func NewIngestHandler(uc EventIngester, logger *slog.Logger, maxEventSize int64, m *metrics.Metrics, limiter *rate.Limiter) *IngestHandler {
	return &IngestHandler{
		useCase:      uc,
		logger:       logger.With("component", "ingest_handler"),
		maxEventSize: maxEventSize,
		metrics:      m,
		limiter:      limiter,
	}
}

// ServeHTTP accepts a single JSON event or an NDJSON batch.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		h.metrics.ObserveRequest("error_rate_limited", 0)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = r.Header.Get("Content-Type")
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)

	switch mediaType {
	case "application/json":
		h.handleSingleJSON(w, r)
	case "application/x-ndjson":
		h.handleNDJSON(w, r)
	default:
		h.metrics.ObserveRequest("error_media_type", 0)
		http.Error(w, "Unsupported Media Type: "+mediaType, http.StatusUnsupportedMediaType)
	}
}

func (h *IngestHandler) handleSingleJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.readError(w, err)
		return
	}

	var raw domain.RawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		h.metrics.ObserveRequest("error_parse", len(body))
		http.Error(w, "Bad Request: Failed to decode JSON", http.StatusBadRequest)
		return
	}

	ev, err := h.useCase.Ingest(r.Context(), raw)
	if err != nil {
		if errors.Is(err, domain.ErrMissingKind) {
			h.metrics.ObserveRequest("error_parse", len(body))
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to ingest event", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveRequest("accepted", len(body))
	respondWithJSON(w, h.logger, http.StatusOK, ev)
}

func (h *IngestHandler) handleNDJSON(w http.ResponseWriter, r *http.Request) {
	var res BatchResult
	var size int

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxEventSize))
	for scanner.Scan() {
		line := scanner.Bytes()
		size += len(line) + 1
		if len(line) == 0 {
			continue
		}

		var raw domain.RawEvent
		if err := json.Unmarshal(line, &raw); err != nil {
			h.logger.Warn("failed to unmarshal ndjson line", "error", err)
			res.Rejected++
			continue
		}
		if _, err := h.useCase.Ingest(r.Context(), raw); err != nil {
			h.logger.Warn("failed to ingest event from ndjson stream", "error", err, "session", raw.SessionID)
			res.Rejected++
			continue
		}
		res.Accepted++
	}
	if err := scanner.Err(); err != nil {
		h.readError(w, err)
		return
	}

	if res.Accepted == 0 && res.Rejected > 0 {
		h.metrics.ObserveRequest("error_parse", size)
		respondWithJSON(w, h.logger, http.StatusBadRequest, res)
		return
	}
	h.metrics.ObserveRequest("accepted", size)
	respondWithJSON(w, h.logger, http.StatusAccepted, res)
}

func (h *IngestHandler) readError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, bufio.ErrTooLong) {
		h.metrics.ObserveRequest("error_size", 0)
		http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
		return
	}
	h.logger.Error("failed to read ingest request", "error", err)
	http.Error(w, "Bad Request", http.StatusBadRequest)
}

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
