// Package api wires the HTTP handlers into chi routers.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/V4T54L/honeywatch/internal/adapter/api/handler"
	"github.com/V4T54L/honeywatch/internal/adapter/api/middleware"
)

// NewRouter creates the public router: event ingestion, queries, exports and
// the live stream. A nil validator leaves the API unauthenticated.
func NewRouter(
	logger *slog.Logger,
	keys middleware.KeyValidator,
	ingestHandler *handler.IngestHandler,
	queryHandler *handler.QueryHandler,
	stream http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		if keys != nil {
			r.Use(middleware.Auth(keys, logger))
		}

		r.Method(http.MethodPost, "/events", ingestHandler)

		r.Route("/api", func(r chi.Router) {
			r.Get("/events", queryHandler.ListEvents)
			r.Get("/stats", queryHandler.Stats)
			r.Get("/export", queryHandler.StreamExport)
			r.Post("/export", queryHandler.WriteExport)
			r.Post("/export/recent", queryHandler.ExportRecent)
			r.Post("/export/kinds", queryHandler.ExportKinds)
			r.Post("/export/ips", queryHandler.ExportSourceIPs)
			if stream != nil {
				r.Method(http.MethodGet, "/stream", stream)
			}
		})
	})

	return r
}
