package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	apiMiddleware "github.com/relaynest/relaynest/internal/api/middleware"
	"github.com/relaynest/relaynest/internal/registry"
	"github.com/relaynest/relaynest/internal/relay"
)

// NewRouter creates and configures the HTTP router. Grounded on the
// teacher's internal/api/router.go middleware stack, with the torrent-
// indexer's /api tree replaced by the relay's per-relayID WebSocket/NIP-11
// endpoint.
func NewRouter(mgr *relay.Manager, reg *registry.Registry) *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Rate limiting by IP (applies to all requests)
	r.Use(apiMiddleware.RateLimitByIP)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", healthHandler)

	// Per-relay endpoint: NIP-11 info document or WebSocket upgrade,
	// depending on the request's Accept header. Relay lifecycle management
	// (enable/disable, account admission) is an external admin process's
	// job, driven through internal/hostcontract's interfaces - this module
	// carries no administrative HTTP CRUD surface (spec.md's Non-goals).
	r.Get("/{relayID}", relayEndpoint(mgr, reg))

	log.Info().Msg("Router initialized")
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// relayEndpoint dispatches "/{relayID}" to either the NIP-11 info document
// (Accept: application/nostr+json) or the WebSocket upgrade, matching how
// Nostr relays conventionally serve both off a single URL.
func relayEndpoint(mgr *relay.Manager, reg *registry.Registry) http.HandlerFunc {
	info := infoHandler(reg)
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "application/nostr+json") {
			info(w, r)
			return
		}
		if err := mgr.Accept(relayIDFromPath(r), w, r); err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
		}
	}
}

func relayIDFromPath(r *http.Request) string {
	return chi.URLParam(r, "relayID")
}
