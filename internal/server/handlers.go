package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/infergate/intent-router/internal/domain"
	"github.com/infergate/intent-router/internal/gating"
	"github.com/infergate/intent-router/internal/storage"
)

// InferenceRequest is the POST /v1/infer body: the event bundle for one
// session, with an optional escalation override.
type InferenceRequest struct {
	SessionID       string                 `json:"session_id"`
	Events          []domain.BrowsingEvent `json:"events"`
	ForceEscalation bool                   `json:"force_escalation"`
}

// InferenceResponse is the POST /v1/infer response: the authoritative
// decision plus its audit trail.
type InferenceResponse struct {
	Decision      *domain.IntentDecision `json:"decision"`
	InferenceRuns []domain.InferenceRun  `json:"inference_runs"`
	TotalLatency  time.Duration          `json:"total_latency_ns"`
	PolicyVersion string                 `json:"policy_version"`
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req InferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := s.engine.Infer(r.Context(), req.SessionID, req.Events, req.ForceEscalation)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyEvents):
			s.writeError(w, http.StatusBadRequest, "events must not be empty")
		case errors.Is(err, domain.ErrNoCheapClassifier):
			s.writeError(w, http.StatusServiceUnavailable, "all classifiers unavailable")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.logger.Warn("inference canceled",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("session_id", req.SessionID))
			s.writeError(w, http.StatusGatewayTimeout, "inference timed out")
		default:
			s.logger.Error("inference failed",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("session_id", req.SessionID),
				slog.String("error", err.Error()))
			s.writeError(w, http.StatusInternalServerError, "inference failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, InferenceResponse{
		Decision:      result.Decision,
		InferenceRuns: result.Runs,
		TotalLatency:  result.TotalLatency,
		PolicyVersion: PolicyVersion,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatsResponse combines the storage aggregates with the cost estimate for
// the same window.
type StatsResponse struct {
	*storage.Stats
	Cost gating.CostEstimate `json:"cost_estimate"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.statsWindow)
	if err != nil {
		s.logger.Error("failed to compute stats", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, StatsResponse{
		Stats: stats,
		Cost:  gating.EstimateSavings(stats.TotalDecisions, stats.EscalationRate, s.cheapCostPer1K, s.expensiveCostPer1K),
	})
}

func (s *Server) handleGetGating(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Policy().Config())
}

func (s *Server) handleUpdateGating(w http.ResponseWriter, r *http.Request) {
	var cfg gating.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid gating config: "+err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.engine.Policy().SetConfig(cfg)
	s.logger.Info("gating config updated",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.Float64("default_threshold", cfg.DefaultThreshold),
		slog.Float64("high_risk_threshold", cfg.HighRiskThreshold),
		slog.Float64("high_value_threshold", cfg.HighValueThreshold),
		slog.Float64("top2_margin_threshold", cfg.Top2MarginThreshold))

	s.writeJSON(w, http.StatusOK, cfg)
}
