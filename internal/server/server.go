// Package server exposes the LendView HTTP API: asset listings, per-user
// position summaries, event history, and action validation.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"LendView/internal/assets"
	"LendView/internal/chain"
	"LendView/internal/observability"
	"LendView/internal/session"
)

// Server hosts the JSON API plus health and metrics endpoints.
type Server struct {
	sessions *session.Manager
	reader   chain.Reader
	registry *assets.Registry
	health   *observability.HealthChecker
	metrics  *observability.Metrics
	log      zerolog.Logger

	readTimeout time.Duration
}

// New wires the HTTP server. metrics may be nil.
func New(sessions *session.Manager, reader chain.Reader, registry *assets.Registry, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		sessions:    sessions,
		reader:      reader,
		registry:    registry,
		health:      health,
		metrics:     metrics,
		log:         log.With().Str("component", "http").Logger(),
		readTimeout: 10 * time.Second,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/assets", s.handleListAssets)
		r.Get("/assets/{address}", s.handleGetAsset)

		r.Route("/users/{address}", func(r chi.Router) {
			r.Get("/summary", s.handleUserSummary)
			r.Get("/history", s.handleUserHistory)
			r.Post("/validate", s.handleValidate)
			r.Delete("/session", s.handleCloseSession)
		})
	})

	return r
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, http.StatusText(ww.Status())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) readContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.readTimeout)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
