// Package server exposes user search over HTTP for browser clients.
//
// Routes:
//
//	GET /healthz                   liveness probe
//	GET /api/github/search/users   one page of a user search
//
// The handler layer never talks to GitHub directly; it goes through a
// ghclient.UserSearcher, so the same server runs against the live API,
// the cached searcher or the fixture.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/spiffcs/ghsearch/internal/constants"
	"github.com/spiffcs/ghsearch/internal/ghclient"
	"github.com/spiffcs/ghsearch/internal/ratelimit"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers name the client. Other peers are keyed by their own address.
	TrustedProxies []netip.Prefix

	// RPS and Burst bound requests per client IP on the API routes.
	RPS   float64
	Burst int
}

// Server is the HTTP server and its dependencies.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	searcher ghclient.UserSearcher
	limiter  *ratelimit.KeyedRateLimiter
}

// New creates a Server that answers searches with searcher.
func New(cfg Config, searcher ghclient.UserSearcher, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = constants.DefaultServerAddr
	}
	if cfg.RPS <= 0 {
		cfg.RPS = constants.DefaultServerRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = constants.DefaultServerBurst
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		searcher: searcher,
		limiter:  ratelimit.New(cfg.RPS, cfg.Burst),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures middleware and routes. Order matters: the request
// id and real IP must be set before the logger and limiter read them.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(trustedRealIP(s.config.TrustedProxies))
	s.router.Use(requestLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.limiter, s.logger))
		r.Get("/github/search/users", s.handleSearchUsers)
	})
}

// ParseTrustedProxies turns IP addresses and CIDR ranges into prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: want an IP address or CIDR range", e)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the inbound limiter. It is safe to call more than once.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully, giving in-flight searches constants.ShutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	// A search can sit through several capped retry waits, so the write
	// timeout is well above constants.MaxWait.
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.Any("allowed_origins", s.config.AllowedOrigins),
		)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
