package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jamesruggles/footprint/internal/config"
	"github.com/jamesruggles/footprint/internal/database"
	"github.com/jamesruggles/footprint/internal/provider"
	"github.com/jamesruggles/footprint/internal/report"
	"github.com/jamesruggles/footprint/internal/scanner"
	"github.com/jamesruggles/footprint/internal/watchlist"
	"github.com/jamesruggles/footprint/internal/webhook"
)

type Server struct {
	cfg          *config.Config
	db           *database.DB
	hub          *Hub
	registry     *provider.Registry
	orchestrator *scanner.Orchestrator
	webhooks     *webhook.Engine
	expander     *watchlist.Expander
	reports      *report.Generator
	mux          *http.ServeMux
}

func New(cfg *config.Config, db *database.DB) *Server {
	hub := NewHub()

	registry := provider.NewRegistry()
	for _, p := range provider.Builtins() {
		registry.Register(p)
	}

	engine := webhook.NewEngine(db, cfg.Webhooks)

	s := &Server{
		cfg:          cfg,
		db:           db,
		hub:          hub,
		registry:     registry,
		orchestrator: scanner.NewOrchestrator(db, registry, hub, engine, cfg.Scan),
		webhooks:     engine,
		expander:     watchlist.NewExpander(db),
		reports:      report.NewGenerator(db),
		mux:          http.NewServeMux(),
	}

	s.registerRoutes()
	return s
}

// Webhooks exposes the delivery engine so background workers and the
// reconciler can share it.
func (s *Server) Webhooks() *webhook.Engine {
	return s.webhooks
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	slog.Info("starting server", "addr", addr)

	handler := recoveryMiddleware(securityHeaders(loggingMiddleware(s.mux)))
	return http.ListenAndServe(addr, handler)
}

func (s *Server) registerRoutes() {
	// Scans
	s.mux.HandleFunc("/api/scans", s.handleAPIScans)
	s.mux.HandleFunc("/api/scans/", s.handleAPIScan)

	// Providers
	s.mux.HandleFunc("/api/providers", s.handleAPIProviders)

	// Webhooks
	s.mux.HandleFunc("/api/webhooks", s.handleAPIWebhooks)
	s.mux.HandleFunc("/api/webhooks/", s.handleAPIWebhook)
	s.mux.HandleFunc("/api/deliveries/", s.handleAPIDelivery)

	// Watchlists
	s.mux.HandleFunc("/api/watchlists", s.handleAPIWatchlists)
	s.mux.HandleFunc("/api/watchlists/", s.handleAPIWatchlist)
	s.mux.HandleFunc("/api/entities", s.handleAPIEntities)

	// Dashboard
	s.mux.HandleFunc("/api/stats", s.handleAPIStats)

	// WebSocket
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}
