// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"

	"github.com/okian/footprint/internal/adapters/http/site"
	"github.com/okian/footprint/internal/adapters/http/swagger"
	service "github.com/okian/footprint/internal/app"
	"github.com/okian/footprint/internal/domain/ratelimit"
	"github.com/okian/footprint/pkg/logger"
)

const (
	defaultMaxBodyBytes = 32 << 10
	corsMaxAgeSeconds   = 600
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	ConsentRequired() bool
	Allow(ctx context.Context, rawIP string) (ratelimit.Result, error)
	CapturePageview(ctx context.Context, in service.PageviewInput)
	CollectClient(ctx context.Context, in service.ClientInput) error
}

// Server wires HTTP routes for the collector.
type Server struct {
	deps Dependencies

	healthHandler  *HealthHandler
	metricsHandler *MetricsHandler
	statsHandler   *StatsHandler
	configHandler  *ConfigHandler
	collectHandler *CollectHandler

	corsOrigins []string
	logger      logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxBodyBytes caps the /collect request body.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.collectHandler.maxBodyBytes = n
		}
	}
}

// WithCORSOrigins allows cross-origin calls to /collect and /config from
// the given origins. Without origins only same-origin calls work.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = append([]string(nil), origins...)
	}
}

// WithLogger sets the logger used for access and error logs.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:           deps,
		healthHandler:  NewHealthHandler(),
		metricsHandler: NewMetricsHandler(),
		statsHandler:   NewStatsHandler(deps),
		configHandler:  NewConfigHandler(deps),
		collectHandler: NewCollectHandler(deps, defaultMaxBodyBytes),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	s.collectHandler.logger = s.logger
	return s
}

// Router builds the complete route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(AccessLog(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(Metrics)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.metricsHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Group(func(r chi.Router) {
		if len(s.corsOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.corsOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type"},
				ExposedHeaders: []string{"Retry-After"},
				MaxAge:         corsMaxAgeSeconds,
			}))
			r.Options("/config", noContent)
			r.Options("/collect", noContent)
		}
		r.Get("/config", s.configHandler.HandleConfig)
		r.Post("/collect", s.collectHandler.HandleCollect)
	})

	swagger.Register(r)
	site.Register(r, CapturePageviews(s.deps))

	return r
}

type ackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ackResponse{OK: false, Error: msg})
}
