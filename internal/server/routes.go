package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// ArtifactPathPrefix is where locally stored videos are served.
const ArtifactPathPrefix = "/artifacts/"

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.DeleteSession)
	mux.HandleFunc("POST /sessions/{id}/mode", h.SelectMode)
	mux.HandleFunc("POST /sessions/{id}/generate", h.Generate)

	mux.HandleFunc("GET /sessions/{id}/credential", h.GetCredential)
	mux.HandleFunc("POST /sessions/{id}/credential/check", h.CheckCredential)
	mux.HandleFunc("POST /sessions/{id}/credential/select", h.SelectCredential)

	mux.HandleFunc("GET "+ArtifactPathPrefix+"{id}", h.GetArtifact)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
