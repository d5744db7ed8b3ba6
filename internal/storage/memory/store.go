// Package memory is an in-memory implementation of the storage ports, used
// in tests and for running the engine without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/infergate/intent-router/internal/domain"
	"github.com/infergate/intent-router/internal/storage"
)

type decisionRecord struct {
	decision domain.IntentDecision
	runs     []domain.InferenceRun
}

// Store keeps sessions and decisions in maps guarded by a single mutex, which
// also serializes session read-modify-writes.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	decisions []decisionRecord
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{sessions: make(map[string]*domain.Session)}
}

func (s *Store) GetOrCreateSession(ctx context.Context, sessionID, userIDHash string, incomingEvents int) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &domain.Session{
			SessionID:  sessionID,
			UserIDHash: userIDHash,
			RiskLevel:  domain.RiskLow,
			CreatedAt:  now,
		}
		s.sessions[sessionID] = sess
	}
	sess.EventCount += incomingEvents
	sess.UpdatedAt = now

	copied := *sess
	return &copied, nil
}

// SetSessionProfile overrides value score and risk level for a session,
// creating it if needed. Test helper for exercising gating rules.
func (s *Store) SetSessionProfile(sessionID string, valueScore float64, risk domain.RiskLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &domain.Session{SessionID: sessionID, RiskLevel: domain.RiskLow, CreatedAt: time.Now().UTC()}
		s.sessions[sessionID] = sess
	}
	sess.ValueScore = valueScore
	sess.RiskLevel = risk
}

func (s *Store) WriteDecision(ctx context.Context, decision *domain.IntentDecision, runs []domain.InferenceRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := decisionRecord{decision: *decision}
	rec.runs = append(rec.runs, runs...)
	s.decisions = append(s.decisions, rec)
	return nil
}

func (s *Store) EscalationRate(ctx context.Context, window time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)
	var total, escalated int
	for _, rec := range s.decisions {
		if rec.decision.CreatedAt.Before(cutoff) {
			continue
		}
		total++
		if rec.decision.WasEscalated {
			escalated++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(escalated) / float64(total), nil
}

func (s *Store) Stats(ctx context.Context, window time.Duration) (*storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)
	stats := &storage.Stats{GeneratedAt: time.Now().UTC()}

	sessions := make(map[string]struct{})
	var confidenceSum float64
	type latencyAgg struct {
		sum   time.Duration
		max   time.Duration
		count int
	}
	latencies := make(map[string]*latencyAgg)

	for _, rec := range s.decisions {
		if rec.decision.CreatedAt.Before(cutoff) {
			continue
		}
		stats.TotalDecisions++
		confidenceSum += rec.decision.Confidence
		sessions[rec.decision.SessionID] = struct{}{}
		if rec.decision.WasEscalated {
			stats.EscalatedCount++
		}
		for _, run := range rec.runs {
			if !run.Success {
				continue
			}
			agg, ok := latencies[run.ModelID]
			if !ok {
				agg = &latencyAgg{}
				latencies[run.ModelID] = agg
			}
			agg.sum += run.Latency
			agg.count++
			if run.Latency > agg.max {
				agg.max = run.Latency
			}
		}
	}

	stats.UniqueSessions = len(sessions)
	if stats.TotalDecisions > 0 {
		stats.EscalationRate = float64(stats.EscalatedCount) / float64(stats.TotalDecisions)
		stats.AvgConfidence = confidenceSum / float64(stats.TotalDecisions)
	}
	for modelID, agg := range latencies {
		stats.ModelLatency = append(stats.ModelLatency, storage.ModelLatency{
			ModelID:    modelID,
			AvgLatency: agg.sum / time.Duration(agg.count),
			MaxLatency: agg.max,
			RunCount:   agg.count,
		})
	}

	return stats, nil
}

// Decisions returns all persisted decisions, oldest first. Test helper.
func (s *Store) Decisions() []domain.IntentDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.IntentDecision, 0, len(s.decisions))
	for _, rec := range s.decisions {
		out = append(out, rec.decision)
	}
	return out
}

// Runs returns the persisted runs for a decision. Test helper.
func (s *Store) Runs(decisionID string) []domain.InferenceRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.decisions {
		if rec.decision.DecisionID.String() == decisionID {
			return append([]domain.InferenceRun(nil), rec.runs...)
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }
