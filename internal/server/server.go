// Package server provides the HTTP server and routing for folio.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/di"
	fxhandlers "github.com/aristath/folio/internal/modules/fx/handlers"
	gurushandlers "github.com/aristath/folio/internal/modules/gurus/handlers"
	holdingshandlers "github.com/aristath/folio/internal/modules/holdings/handlers"
	scanhandlers "github.com/aristath/folio/internal/modules/scan/handlers"
	settingshandlers "github.com/aristath/folio/internal/modules/settings/handlers"
	snapshotshandlers "github.com/aristath/folio/internal/modules/snapshots/handlers"
	watchlisthandlers "github.com/aristath/folio/internal/modules/watchlist/handlers"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
	Port      int
	DevMode   bool
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	limits         *routeLimiter
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		limits:    newRouteLimiter(),
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config, cfg.Container)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes. /health and /metrics sit outside the
// /api group so they bypass both auth and the route limits.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.container.Metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.limits.middleware)
		if s.cfg.AuthEnabled() {
			r.Use(requireAPIKey(s.cfg.APIKey, s.log))
		}

		c := s.container
		watchlisthandlers.NewHandler(c.Watchlist, s.log).RegisterRoutes(r)
		holdingshandlers.NewHandler(c.Holdings, s.log).RegisterRoutes(r)
		snapshotshandlers.NewHandler(c.Snapshots, s.log).RegisterRoutes(r)
		scanhandlers.NewHandler(c.Scans, c.Digest, s.log).RegisterRoutes(r)
		fxhandlers.NewHandler(c.FXMonitor, s.log).RegisterRoutes(r)
		settingshandlers.NewHandler(c.Settings, c.Gate, s.log).RegisterRoutes(r)
		gurushandlers.NewHandler(c.Gurus, s.log).RegisterRoutes(r)

		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)
		r.Get("/market/fear-greed", s.systemHandlers.HandleFearGreed)
		r.Get("/prewarm-status", s.systemHandlers.HandlePrewarmStatus)
		r.Post("/webhook", s.systemHandlers.HandleWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/cache/clear", s.systemHandlers.HandleCacheClear)
			r.Post("/backup", s.systemHandlers.HandleBackup)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
