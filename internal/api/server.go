// Package api provides the HTTP API server for glider.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/config"
	"github.com/wesm/glider/internal/oauth"
	"github.com/wesm/glider/internal/scheduler"
	"github.com/wesm/glider/internal/store"
	"github.com/wesm/glider/internal/sync"
)

// Ingester fetches mail for an owner.
type Ingester interface {
	Ingest(ctx context.Context, owner string, opts sync.IngestOptions) (*sync.IngestResult, error)
}

// Analyzer runs and reports on analysis for an owner.
type Analyzer interface {
	RunAnalysis(ctx context.Context, owner string) (*analysis.RunSummary, error)
	UnanalyzedCount(ctx context.Context, owner string) (int, error)
}

// Store defines the store operations the API needs.
type Store interface {
	GetStats(ctx context.Context) (*store.Stats, error)
	ListOwners(ctx context.Context) ([]string, error)
	Dashboard(ctx context.Context, owner string, limit int) (*store.Dashboard, error)
	SaveCredential(ctx context.Context, owner string, creds oauth.CredentialSet) error
}

// SyncScheduler defines the scheduler operations the API needs.
type SyncScheduler interface {
	IsScheduled(owner string) bool
	TriggerSync(owner string) error
	Status() []scheduler.OwnerStatus
	IsRunning() bool
}

// Deps are the collaborators behind the routes. Nil members disable the
// routes that need them with a 503.
type Deps struct {
	Ingester  Ingester
	Analyzer  Analyzer
	Store     Store
	Scheduler SyncScheduler
	Metrics   http.Handler
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	deps        Deps
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	// Analysis runs make several model calls; leave them room.
	r.Use(chimw.Timeout(5 * time.Minute))

	corsConfig := DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.cfg.Server.CORSOrigins
	r.Use(CORSMiddleware(corsConfig))

	rps := s.cfg.Server.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	s.rateLimiter = NewRateLimiter(rps, int(rps*2))
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.handleStats)
		r.Get("/owners", s.handleListOwners)

		r.Route("/owners/{owner}", func(r chi.Router) {
			r.Get("/emails", s.handleIngest)
			r.Post("/analyze", s.handleRunAnalysis)
			r.Get("/analyze", s.handleAnalysisStatus)
			r.Get("/dashboard", s.handleDashboard)
			r.Post("/token", s.handleImportToken)
			r.Post("/sync", s.handleTriggerSync)
		})

		r.Get("/scheduler/status", s.handleSchedulerStatus)
	})

	return r
}

// Addr returns the listen address derived from the configuration.
func (s *Server) Addr() string {
	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	return net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))
}

// Start begins listening for HTTP requests. It refuses to expose an
// unauthenticated API beyond loopback.
func (s *Server) Start() error {
	if !config.IsLoopback(s.cfg.Server.BindAddr) && s.cfg.Server.APIKey == "" {
		return fmt.Errorf("refusing to bind %s without [server] api_key", s.cfg.Server.BindAddr)
	}
	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	addr := s.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      6 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key from X-API-Key or a Bearer
// Authorization header.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
