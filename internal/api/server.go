// Package api provides the HTTP API server and handlers for the alignment service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listenupapp/listenup-align/internal/metrics"
	"github.com/listenupapp/listenup-align/internal/ratelimit"
	"github.com/listenupapp/listenup-align/internal/search"
	"github.com/listenupapp/listenup-align/internal/service"
	"github.com/listenupapp/listenup-align/internal/sse"
	"github.com/listenupapp/listenup-align/internal/store"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
)

// Services groups what the handlers need. Only Alignment is required; the
// rest feed the health check, event stream and metrics endpoint.
type Services struct {
	Alignment *service.AlignmentService
	Jobs      *store.Store
	Timings   *sqlite.Store
	Search    *search.SearchIndex
	Events    *sse.Manager
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Limiter   *ratelimit.KeyedRateLimiter // Limits job submissions per client IP
}

// Options configures the HTTP surface.
type Options struct {
	Version     string
	CORSOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	s := &Server{
		services: services,
		router:   chi.NewRouter(),
		logger:   logger,
	}

	s.setupMiddleware(opts.CORSOrigins)

	RegisterErrorHandler()
	config := huma.DefaultConfig("ListenUp Align API", opts.Version)
	config.Info.Description = "Aligns audiobook text with its narration"
	s.api = humachi.New(s.router, config)

	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Retry-After", "X-Request-ID"},
		MaxAge:         300,
	}))
}

// registerRoutes wires the huma operations plus the plain handlers huma does
// not describe.
func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerAlignmentRoutes()
	s.registerTimingRoutes()
	s.registerSearchRoutes()

	if s.services.Events != nil {
		s.router.Handle("/api/v1/events", sse.NewHandler(s.services.Events, s.logger))
	}
	if s.services.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.services.Gatherer, promhttp.HandlerOpts{}))
	}
}
