package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/keypanel/keypanel/internal/handler"
	"github.com/keypanel/keypanel/internal/metrics"
	"github.com/keypanel/keypanel/internal/server/middleware"
	"github.com/keypanel/keypanel/internal/service"
	"github.com/keypanel/keypanel/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	// ValidateRateLimit caps POST /api/keys/validate per client IP and owner
	// id, in requests per minute. Zero disables the limit.
	ValidateRateLimit int
	// RateLimit caps every /api request per client IP, in requests per
	// minute. Zero disables it.
	RateLimit int
	// Metrics exposes Prometheus metrics at /metrics.
	Metrics bool
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		MaxBodySize:       1 << 20, // 1MB
		ValidateRateLimit: 120,
		Metrics:           true,
	}
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the top-level HTTP server for keypanel. It owns the chi router
// and the service layer the handlers call into.
type Server struct {
	cfg        Config
	router     chi.Router
	store      Pinger
	services   *service.Services
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, services *service.Services, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		services: services,
		logger:   logger,
	}
	if cfg.Metrics {
		s.metrics = metrics.New(st)
		services.Keys.SetObserver(s.metrics)
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			middleware.HeaderOwnerID, middleware.HeaderSecretKey, "X-Requested-With",
		},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(s.cfg.MaxBodySize))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// --- OpenAPI document (no auth required) ---
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.services.Auth.AdminEnabled()).ServeSpec)

	appHandler := handler.NewAppHandler(s.services.Apps, s.logger)
	keyHandler := handler.NewKeyHandler(s.services.Keys, s.logger)
	settingsHandler := handler.NewSettingsHandler(s.services.Settings, s.logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimit))

		// Application registry and settings. Gated by admin tokens only when
		// a JWT secret is configured.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.services.Auth))

			r.Post("/apps/create", appHandler.Create)
			r.Get("/apps", appHandler.List)
			r.Delete("/apps/{id}", appHandler.Delete)
			r.Post("/apps/{id}/rotate", appHandler.Rotate)

			r.Get("/settings", settingsHandler.Get)
			r.Post("/settings", settingsHandler.Update)
		})

		// Key lifecycle, scoped to the app named by the credential headers.
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthenticateApp(s.services.Auth, s.logger))

			r.With(middleware.RateLimitPerApp(s.cfg.ValidateRateLimit)).
				Post("/keys/validate", keyHandler.Validate)

			r.Post("/keys/generate", keyHandler.Generate)
			r.Post("/keys/ban", keyHandler.Ban)
			r.Post("/keys/note", keyHandler.Note)
			r.Post("/keys/reset-hwid", keyHandler.ResetHWID)
			r.Post("/keys/extend", keyHandler.Extend)
			r.Delete("/keys/{key}", keyHandler.Delete)
			r.Get("/keys", keyHandler.List)
			r.Get("/stats", keyHandler.Stats)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	check := "ok"

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		status = "degraded"
		check = "unreachable"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": map[string]string{"store": check},
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests. The caller owns the store and closes it afterwards.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			s.logger.Info("shutdown signal received, draining connections...")
		}

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
