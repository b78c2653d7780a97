// Package api provides the HTTP API server and handlers for the buru archive.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/buruapp/buru-server/internal/ratelimit"
)

// Config holds the HTTP surface settings.
type Config struct {
	Version string
	// BodyLimit caps upload request bodies in bytes.
	BodyLimit   int64
	CORSOrigins []string
	// UploadsPerMinute and UploadBurst limit uploads per client IP.
	UploadsPerMinute int
	UploadBurst      int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services      *Services
	router        *chi.Mux
	api           huma.API
	cfg           Config
	uploadLimiter *ratelimit.KeyedRateLimiter
	logger        *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, cfg Config, logger *slog.Logger) *Server {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = MaxUploadSize
	}
	if cfg.UploadsPerMinute <= 0 {
		cfg.UploadsPerMinute = 60
	}
	if cfg.UploadBurst <= 0 {
		cfg.UploadBurst = 20
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		services:      services,
		router:        chi.NewRouter(),
		cfg:           cfg,
		uploadLimiter: ratelimit.PerMinute(cfg.UploadsPerMinute, cfg.UploadBurst),
		logger:        logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Buru API", cfg.Version)
	humaConfig.Info.Description = "Content-addressed media archive with tag queries."
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	s.uploadLimiter.Stop()
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Link", "X-Request-Id"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerImageRoutes()
	s.registerUploadRoutes()
	s.registerTagRoutes()
	s.registerRefreshRoutes()
	s.registerFileRoutes()
}
