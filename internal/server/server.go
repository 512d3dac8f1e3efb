// Package server exposes the monitor's read-only HTTP API and live WebSocket
// feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/server/handler"
	"github.com/alanyoungcy/dexarb/internal/server/middleware"
	"github.com/alanyoungcy/dexarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow when a Limiter is
	// supplied. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Tokens and
// Markets may be nil.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Opportunities *handler.OpportunityHandler
	Tokens        *handler.TokenHandler
	Markets       *handler.MarketHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. hub and limiter may
// be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListOpportunities)
	mux.HandleFunc("GET /api/cycles", handlers.Opportunities.ListCycles)

	if handlers.Tokens != nil {
		mux.HandleFunc("GET /api/tokens", handlers.Tokens.ListTokens)
		mux.HandleFunc("GET /api/tokens/top", handlers.Tokens.TopTokens)
		mux.HandleFunc("GET /api/tokens/symbol/{symbol}", handlers.Tokens.BySymbol)
		mux.HandleFunc("GET /api/tokens/address/{address}", handlers.Tokens.ByAddress)
	}

	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/chains", handlers.Markets.ListChains)
		mux.HandleFunc("GET /api/pools", handlers.Markets.ListPools)
		mux.HandleFunc("GET /api/pools/stats", handlers.Markets.PoolStats)
		mux.HandleFunc("GET /api/pools/{venue}/{pair...}", handlers.Markets.GetPool)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured port and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves requests on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
