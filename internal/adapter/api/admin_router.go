package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/V4T54L/honeywatch/internal/adapter/api/handler"
	"github.com/V4T54L/honeywatch/internal/adapter/api/middleware"
)

// NewAdminRouter creates the router served on the admin address. metrics may
// be nil.
func NewAdminRouter(adminHandler *handler.AdminHandler, metrics http.Handler, keys middleware.KeyValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", adminHandler.HealthCheck)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/admin", func(r chi.Router) {
		if keys != nil {
			r.Use(middleware.Auth(keys, logger))
		}

		// Corpus
		r.Get("/corpus", adminHandler.GetCorpus)
		r.Post("/corpus/reload", adminHandler.ReloadCorpus)

		// Sinks
		r.Get("/relational", adminHandler.GetRelationalStats)
		r.Get("/alerts", adminHandler.GetAlertStream)
		r.Post("/alerts/trim", adminHandler.TrimAlertStream)
		r.Post("/export/clear", adminHandler.ClearExportBuffer)
	})

	return r
}
