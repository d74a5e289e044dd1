package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/greeneye/internal/api/middleware"
	"github.com/kiranshivaraju/greeneye/internal/api/response"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	SubmitBatch  http.HandlerFunc
	ListBatches  http.HandlerFunc
	GetBatch     http.HandlerFunc
	BatchStatus  http.HandlerFunc
	BatchResults http.HandlerFunc
	BatchEvents  http.HandlerFunc
	CancelBatch  http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Submission answers {"error": message}, including auth and rate-limit rejections.
	flatAuth := deps.Auth.WithErrorWriter(mw.FlatErrors)
	r.With(
		flatAuth.Authenticate,
		deps.RateLimit.WithErrorWriter(mw.FlatErrors).Limit,
		flatAuth.RequireScope(models.ScopeAnalyze),
	).Post("/api/v1/batch-analyses", orNotImplemented(deps.SubmitBatch))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/batch-analyses", orNotImplemented(deps.ListBatches))
		r.Get("/api/v1/batch-analyses/{batchID}", orNotImplemented(deps.GetBatch))
		r.Get("/api/v1/batch-analyses/{batchID}/status", orNotImplemented(deps.BatchStatus))
		r.Get("/api/v1/batch-analyses/{batchID}/results", orNotImplemented(deps.BatchResults))
		r.Get("/api/v1/batch-analyses/{batchID}/events", orNotImplemented(deps.BatchEvents))
		r.With(deps.Auth.RequireScope(models.ScopeAnalyze)).
			Delete("/api/v1/batch-analyses/{batchID}", orNotImplemented(deps.CancelBatch))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
