// Package api is the HTTP surface of the notification engine: condition
// ingest, preference management, the dead-letter view, the websocket
// endpoint, and health.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/config"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/gateway"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// Server is the API server.
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	server   *http.Server
	handlers *Handlers
	log      *logger.Logger
}

// NewServer wires handlers and routes into an HTTP server.
func NewServer(cfg config.Config, h *Handlers, ws *gateway.Handler) *Server {
	router := SetupRoutes(h, ws, cfg.Gateway.AllowedOrigins)
	return &Server{
		config:   cfg.Server,
		router:   router,
		handlers: h,
		log:      logger.With("api-server"),
	}
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.log.Info("listening", "addr", addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthDeps are the dependencies the health endpoint probes. Any of them
// may be nil and reports as not configured.
type HealthDeps struct {
	DB    *sql.DB
	Redis *redis.Client
	Hub   *gateway.Hub
	Queue QueueDepther
}

// QueueDepther reports the backlog of the condition queue.
type QueueDepther interface {
	Depth(ctx context.Context) (int64, error)
}
