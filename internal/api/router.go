package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openforum/gating-service/internal/metrics"
	"github.com/openforum/gating-service/internal/middleware"
)

// NewRouter creates the service router.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(middleware.HTTPLogging(h.logger))

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/api", func(r chi.Router) {
		// Forum-facing endpoints. These are called on behalf of forum
		// users, who hold no API tokens.
		r.Route("/locks/{lockID}", func(r chi.Router) {
			r.Get("/requirements", h.HandleLockRequirements)
			r.Get("/status", h.HandleLockStatus)
			r.Post("/challenge", h.HandleIssueChallenge)
			r.Post("/verify", h.HandleVerify)
		})
		r.Get("/boards/{boardID}/access", h.HandleBoardAccess)

		// Admin API (token auth)
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.TokenAuthMiddleware)

			r.Post("/loglevel", h.HandleSetLogLevel)

			r.Get("/locks", h.HandleListLocks)
			r.Post("/locks", h.HandleCreateLock)
			r.Get("/locks/{lockID}", h.HandleGetLock)
			r.Delete("/locks/{lockID}", h.HandleDeleteLock)

			r.Get("/boards", h.HandleListBoards)
			r.Post("/boards", h.HandleCreateBoard)
			r.Get("/boards/{boardID}", h.HandleGetBoard)
			r.Delete("/boards/{boardID}", h.HandleDeleteBoard)

			r.Get("/tokens", h.HandleListTokens)
			r.Post("/tokens", h.HandleCreateToken)
			r.Get("/tokens/{id}", h.HandleGetToken)
			r.Delete("/tokens/{id}", h.HandleDeleteToken)
		})
	})

	return r
}
