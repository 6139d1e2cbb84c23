package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credvault/internal/platform/middleware"
	"credvault/pkg/platform/validation"
)

// NewRouter wires all public endpoints with middleware.
// Uses chi router for better middleware support and routing.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.BodyLimit(validation.MaxBodySize))
	r.Use(middleware.ContentTypeJSON)

	// Credential lifecycle
	r.Post("/credentials", h.handleProvision)

	// Vault entries
	r.Get("/vault/stats", h.handleStatistics)
	r.Route("/vault/{entryID}", func(r chi.Router) {
		r.Get("/", h.handleGetEntry)
		r.Post("/unlock", h.handleUnlock)
		r.Post("/refresh", h.handleRefresh)
		r.Get("/expiry", h.handleCheckExpiry)
		r.Post("/export", h.handleExport)
		r.Delete("/", h.handleDelete)
	})

	// Biometric sessions
	r.Post("/biometric/sessions", h.handleCreateSession)
	r.Post("/biometric/sessions/{sessionID}/verify", h.handleVerifySession)

	// Operational endpoints
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
