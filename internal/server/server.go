// Package server exposes the intent engine over HTTP: inference, health,
// monitoring stats, and runtime gating reconfiguration.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/infergate/intent-router/internal/engine"
	"github.com/infergate/intent-router/internal/storage"
)

// requestTimeout bounds one inference end to end, including a full reasoner
// escalation.
const requestTimeout = 60 * time.Second

// PolicyVersion is reported alongside every inference response.
const PolicyVersion = "1.0.0"

// Server wires the engine and store into an HTTP handler.
type Server struct {
	engine *engine.Engine
	store  storage.Store
	logger *slog.Logger

	cheapCostPer1K     float64
	expensiveCostPer1K float64
	statsWindow        time.Duration
}

// ServerOption configures optional server behavior.
type ServerOption func(*Server)

// WithCostModel sets the per-1000-inference costs used by the stats endpoint.
func WithCostModel(cheapPer1K, expensivePer1K float64) ServerOption {
	return func(s *Server) {
		s.cheapCostPer1K = cheapPer1K
		s.expensiveCostPer1K = expensivePer1K
	}
}

// WithStatsWindow sets the trailing window the stats endpoint aggregates
// over. Non-positive windows keep the default.
func WithStatsWindow(window time.Duration) ServerOption {
	return func(s *Server) {
		if window > 0 {
			s.statsWindow = window
		}
	}
}

// New creates a server around an engine and its store.
func New(eng *engine.Engine, store storage.Store, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:             eng,
		store:              store,
		logger:             logger,
		cheapCostPer1K:     0.10,
		expensiveCostPer1K: 25.00,
		statsWindow:        time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(TimeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/infer", s.handleInfer)
		r.Get("/stats", s.handleStats)
		r.Put("/config/gating", s.handleUpdateGating)
		r.Get("/config/gating", s.handleGetGating)
	})

	return otelhttp.NewHandler(r, "intent-router")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
