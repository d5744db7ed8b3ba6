// Package sqlite is the SQLite implementation of the storage ports.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/infergate/intent-router/internal/domain"
	"github.com/infergate/intent-router/internal/storage"
)

// Store persists sessions, decisions, and inference runs in SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id_hash TEXT NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0,
			current_sequence INTEGER NOT NULL DEFAULT 0,
			value_score REAL NOT NULL DEFAULT 0,
			risk_level TEXT NOT NULL DEFAULT 'LOW',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS intent_decisions (
			decision_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			intent TEXT NOT NULL,
			confidence REAL NOT NULL,
			was_escalated INTEGER NOT NULL DEFAULT 0,
			model_used TEXT NOT NULL,
			gating_should_escalate INTEGER NOT NULL,
			gating_reason TEXT NOT NULL,
			gating_detail TEXT NOT NULL,
			gating_cheap_confidence REAL NOT NULL,
			gating_top2_margin REAL NOT NULL,
			gating_risk_level TEXT NOT NULL,
			gating_high_value_session INTEGER NOT NULL,
			source_event_ids TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inference_runs (
			run_id TEXT PRIMARY KEY,
			decision_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			input_event_count INTEGER NOT NULL,
			output TEXT,
			latency_ns INTEGER NOT NULL,
			success INTEGER NOT NULL,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (decision_id) REFERENCES intent_decisions(decision_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_session ON intent_decisions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_created ON intent_decisions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_decision ON inference_runs(decision_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON inference_runs(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// GetOrCreateSession upserts the session row and increments its event count
// in a single statement, so concurrent requests for the same session id
// cannot lose updates.
func (s *Store) GetOrCreateSession(ctx context.Context, sessionID, userIDHash string, incomingEvents int) (*domain.Session, error) {
	now := time.Now().UTC()

	query := `INSERT INTO sessions (session_id, user_id_hash, event_count, current_sequence, value_score, risk_level, created_at, updated_at)
	          VALUES (?, ?, ?, 0, 0, 'LOW', ?, ?)
	          ON CONFLICT(session_id) DO UPDATE SET
	              event_count = sessions.event_count + excluded.event_count,
	              updated_at = excluded.updated_at
	          RETURNING session_id, user_id_hash, event_count, current_sequence, value_score, risk_level, created_at, updated_at`

	var sess domain.Session
	err := s.db.QueryRowContext(ctx, query, sessionID, userIDHash, incomingEvents, now, now).Scan(
		&sess.SessionID, &sess.UserIDHash, &sess.EventCount, &sess.CurrentSequence,
		&sess.ValueScore, &sess.RiskLevel, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}

	return &sess, nil
}

// WriteDecision persists the decision and all of its runs in one transaction.
func (s *Store) WriteDecision(ctx context.Context, decision *domain.IntentDecision, runs []domain.InferenceRun) error {
	eventIDs, err := json.Marshal(decision.SourceEventIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source event ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO intent_decisions (
	              decision_id, session_id, intent, confidence, was_escalated, model_used,
	              gating_should_escalate, gating_reason, gating_detail,
	              gating_cheap_confidence, gating_top2_margin, gating_risk_level,
	              gating_high_value_session, source_event_ids, created_at
	          ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		decision.DecisionID.String(), decision.SessionID, string(decision.Intent),
		decision.Confidence, decision.WasEscalated, decision.ModelUsed,
		decision.Gating.ShouldEscalate, string(decision.Gating.Reason), decision.Gating.Detail,
		decision.Gating.CheapConfidence, decision.Gating.Top2Margin, string(decision.Gating.RiskLevel),
		decision.Gating.HighValueSession, string(eventIDs), decision.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	runQuery := `INSERT INTO inference_runs (
	                 run_id, decision_id, model_id, input_event_count,
	                 output, latency_ns, success, error_message, created_at
	             ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, run := range runs {
		var output any
		if len(run.Output) > 0 {
			output = string(run.Output)
		}
		_, err = tx.ExecContext(ctx, runQuery,
			run.RunID.String(), run.DecisionID.String(), run.ModelID, run.InputEventCount,
			output, int64(run.Latency), run.Success, run.ErrorMessage, run.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert inference run: %w", err)
		}
	}

	return tx.Commit()
}

// EscalationRate returns escalated/total over the trailing window, or 0 when
// no decisions fall inside it.
func (s *Store) EscalationRate(ctx context.Context, window time.Duration) (float64, error) {
	cutoff := time.Now().UTC().Add(-window)

	query := `SELECT COUNT(*), COALESCE(SUM(was_escalated), 0)
	          FROM intent_decisions WHERE created_at >= ?`

	var total, escalated int
	if err := s.db.QueryRowContext(ctx, query, cutoff).Scan(&total, &escalated); err != nil {
		return 0, fmt.Errorf("failed to query escalation rate: %w", err)
	}

	if total == 0 {
		return 0, nil
	}
	return float64(escalated) / float64(total), nil
}

// Stats aggregates decision counts and per-model run latencies over the
// trailing window.
func (s *Store) Stats(ctx context.Context, window time.Duration) (*storage.Stats, error) {
	cutoff := time.Now().UTC().Add(-window)

	stats := &storage.Stats{GeneratedAt: time.Now().UTC()}

	query := `SELECT COUNT(*), COALESCE(SUM(was_escalated), 0),
	                 COALESCE(AVG(confidence), 0), COUNT(DISTINCT session_id)
	          FROM intent_decisions WHERE created_at >= ?`

	err := s.db.QueryRowContext(ctx, query, cutoff).Scan(
		&stats.TotalDecisions, &stats.EscalatedCount, &stats.AvgConfidence, &stats.UniqueSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision stats: %w", err)
	}
	if stats.TotalDecisions > 0 {
		stats.EscalationRate = float64(stats.EscalatedCount) / float64(stats.TotalDecisions)
	}

	latencyQuery := `SELECT model_id, AVG(latency_ns), MAX(latency_ns), COUNT(*)
	                 FROM inference_runs
	                 WHERE created_at >= ? AND success = 1
	                 GROUP BY model_id
	                 ORDER BY model_id`

	rows, err := s.db.QueryContext(ctx, latencyQuery, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query run latencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ml storage.ModelLatency
		var avgNS float64
		var maxNS int64
		if err := rows.Scan(&ml.ModelID, &avgNS, &maxNS, &ml.RunCount); err != nil {
			return nil, fmt.Errorf("failed to scan run latency: %w", err)
		}
		ml.AvgLatency = time.Duration(avgNS)
		ml.MaxLatency = time.Duration(maxNS)
		stats.ModelLatency = append(stats.ModelLatency, ml)
	}

	return stats, rows.Err()
}

// DecisionRuns loads the persisted runs for a decision, oldest first.
// Used by tests and offline audit tooling.
func (s *Store) DecisionRuns(ctx context.Context, decisionID uuid.UUID) ([]domain.InferenceRun, error) {
	query := `SELECT run_id, decision_id, model_id, input_event_count,
	                 output, latency_ns, success, error_message, created_at
	          FROM inference_runs WHERE decision_id = ?
	          ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, decisionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query inference runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.InferenceRun
	for rows.Next() {
		var run domain.InferenceRun
		var runID, dID string
		var output, errMsg sql.NullString
		var latencyNS int64

		if err := rows.Scan(&runID, &dID, &run.ModelID, &run.InputEventCount,
			&output, &latencyNS, &run.Success, &errMsg, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inference run: %w", err)
		}

		if run.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("failed to parse run id: %w", err)
		}
		if run.DecisionID, err = uuid.Parse(dID); err != nil {
			return nil, fmt.Errorf("failed to parse decision id: %w", err)
		}
		if output.Valid {
			run.Output = json.RawMessage(output.String)
		}
		run.Latency = time.Duration(latencyNS)
		run.ErrorMessage = errMsg.String

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
