package api

import (
	"log/slog"

	"github.com/openforum/gating-service/internal/access"
	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/storage"
	"github.com/openforum/gating-service/internal/verification"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store       storage.Store
	verifier    *verification.Service
	access      *access.Service
	registry    *gating.Registry
	logger      *slog.Logger
	logLevel    *slog.LevelVar
	masterToken string
}

// Options configures a Handler.
type Options struct {
	Store    storage.Store
	Verifier *verification.Service
	Access   *access.Service
	Registry *gating.Registry
	Logger   *slog.Logger
	LogLevel *slog.LevelVar

	// MasterToken, when non-empty, authenticates admin requests until
	// the first admin token is created. Empty disables the bootstrap
	// path entirely.
	MasterToken string
}

// NewHandler creates a Handler from its dependencies.
func NewHandler(opts Options) *Handler {
	return &Handler{
		store:       opts.Store,
		verifier:    opts.Verifier,
		access:      opts.Access,
		registry:    opts.Registry,
		logger:      opts.Logger,
		logLevel:    opts.LogLevel,
		masterToken: opts.MasterToken,
	}
}
