// Package server exposes the assistant's state over a small read-only
// HTTP API: the live snapshot, settled window history, and health.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/assistant"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/database"
)

// SnapshotSource is the engine surface the API reads from.
type SnapshotSource interface {
	Snapshot() *assistant.Snapshot
	Health() assistant.Health
}

// WindowStore provides settled window history. May be nil when the
// assistant runs without a database.
type WindowStore interface {
	RecentWindows(asset string, limit int) ([]database.WindowRecord, error)
	GetStats(asset string) (map[string]interface{}, error)
}

type Config struct {
	Addr string
}

type Server struct {
	httpServer *http.Server
	engine     SnapshotSource
	store      WindowStore
}

// NewServer registers all routes and wires the middleware chain.
func NewServer(cfg Config, engine SnapshotSource, store WindowStore) *Server {
	s := &Server{
		engine: engine,
		store:  store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/windows", s.handleWindows)

	var h http.Handler = mux
	h = logging(h)
	h = cors(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wired handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Shutdown or a listen error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("🌐 HTTP API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("🌐 HTTP API shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
