// Package storage defines the persistence ports consumed by the engine and
// the aggregate types returned by its monitoring queries.
package storage

import (
	"context"
	"time"

	"github.com/infergate/intent-router/internal/domain"
)

// Store is the persistence capability consumed by the orchestrator and the
// adaptive tuner. GetOrCreateSession must be an atomic read-modify-write:
// concurrent calls for the same session id must not lose event-count
// increments. WriteDecision must persist the decision and all of its runs as
// a single transaction; a decision is never partially visible.
type Store interface {
	GetOrCreateSession(ctx context.Context, sessionID, userIDHash string, incomingEvents int) (*domain.Session, error)
	WriteDecision(ctx context.Context, decision *domain.IntentDecision, runs []domain.InferenceRun) error
	EscalationRate(ctx context.Context, window time.Duration) (float64, error)
	Stats(ctx context.Context, window time.Duration) (*Stats, error)
	Close() error
}

// Stats is a monitoring snapshot over a trailing window.
type Stats struct {
	TotalDecisions int            `json:"total_decisions"`
	EscalatedCount int            `json:"escalated_count"`
	EscalationRate float64        `json:"escalation_rate"`
	AvgConfidence  float64        `json:"avg_confidence"`
	UniqueSessions int            `json:"unique_sessions"`
	ModelLatency   []ModelLatency `json:"model_latency"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// ModelLatency aggregates successful run latencies for one backend model.
type ModelLatency struct {
	ModelID    string        `json:"model"`
	AvgLatency time.Duration `json:"avg_latency"`
	MaxLatency time.Duration `json:"max_latency"`
	RunCount   int           `json:"run_count"`
}
