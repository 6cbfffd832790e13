// Package server exposes the ledger over HTTP and WebSocket: public market
// reads, wallet login, session-authenticated writes, and a key-protected
// admin surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
	"github.com/kprasolov/betledger/internal/server/handler"
	"github.com/kprasolov/betledger/internal/server/middleware"
	"github.com/kprasolov/betledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAPIKey string // if empty, admin routes are not mounted
	RateLimit   int    // requests per window per client IP; 0 disables
	RateWindow  time.Duration

	// ReadOnly leaves the ledger-mutating routes unregistered. Monitor nodes
	// serve reads and subscriptions only; writes belong to the one process
	// holding the writer lock.
	ReadOnly bool
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Auth    *handler.AuthHandler
	Markets *handler.MarketHandler
	Bets    *handler.BetHandler
	Events  *handler.EventHandler
	Admin   *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. tokens resolves
// session identities from bearer tokens; limiter applies per-IP rate limits.
// Either may be nil, disabling the corresponding middleware.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, tokens middleware.TokenVerifier, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (public).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Wallet login, absent when no token secret is configured (read-only
	// nodes may run without one).
	if handlers.Auth != nil {
		mux.HandleFunc("POST /api/auth/login", handlers.Auth.Login)
		mux.HandleFunc("POST /api/auth/verify", handlers.Auth.Verify)
	}

	// Market reads (public).
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/pool", handlers.Markets.GetPool)
	mux.HandleFunc("GET /api/markets/{id}/bets", handlers.Bets.ListMarketBets)
	mux.HandleFunc("GET /api/markets/{id}/events", handlers.Events.ListMarketEvents)
	mux.HandleFunc("GET /api/users/{address}/bets", handlers.Bets.ListUserBets)
	mux.HandleFunc("GET /api/users/{address}/rewards", handlers.Bets.ListUserRewards)
	mux.HandleFunc("GET /api/events/recent", handlers.Events.ListRecentEvents)

	// Ledger writes (session required, enforced in the handlers).
	if !cfg.ReadOnly {
		mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
		mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Bets.PlaceBet)
		mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
		mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Bets.ClaimReward)
	}

	// Per-session reads.
	mux.HandleFunc("GET /api/markets/{id}/bet", handlers.Bets.GetOwnBet)
	mux.HandleFunc("GET /api/me/bets", handlers.Bets.ListOwnBets)
	mux.HandleFunc("GET /api/me/claimables", handlers.Bets.ListClaimables)

	// Admin surface, mounted only when a key is configured.
	if cfg.AdminAPIKey != "" && handlers.Admin != nil {
		adminOnly := middleware.Auth(cfg.AdminAPIKey)
		mux.Handle("GET /api/admin/audit", adminOnly(http.HandlerFunc(handlers.Admin.AuditLog)))
		mux.Handle("GET /api/admin/archives", adminOnly(http.HandlerFunc(handlers.Admin.ListArchives)))
		if !cfg.ReadOnly {
			mux.Handle("POST /api/admin/archive", adminOnly(http.HandlerFunc(handlers.Admin.TriggerArchive)))
		}
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if tokens != nil {
		h = middleware.Session(tokens)(h)
	}
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
