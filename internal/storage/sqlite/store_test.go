package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/infergate/intent-router/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDecision(sessionID string, escalated bool, confidence float64) *domain.IntentDecision {
	return &domain.IntentDecision{
		DecisionID:   uuid.New(),
		SessionID:    sessionID,
		Intent:       domain.IntentPurchase,
		Confidence:   confidence,
		WasEscalated: escalated,
		Gating: domain.GatingDecision{
			ShouldEscalate:  escalated,
			Reason:          domain.ReasonLowConfidence,
			Detail:          "low confidence",
			CheapConfidence: confidence,
			Top2Margin:      0.4,
			RiskLevel:       domain.RiskLow,
		},
		CreatedAt:      time.Now().UTC(),
		SourceEventIDs: []uuid.UUID{uuid.New(), uuid.New()},
		ModelUsed:      "cheap-1",
	}
}

func testRun(decisionID uuid.UUID, modelID string, success bool, latency time.Duration) domain.InferenceRun {
	run := domain.InferenceRun{
		RunID:           uuid.New(),
		DecisionID:      decisionID,
		ModelID:         modelID,
		InputEventCount: 3,
		Latency:         latency,
		Success:         success,
		CreatedAt:       time.Now().UTC(),
	}
	if success {
		run.Output = json.RawMessage(`{"intent":"PURCHASE_INTENT"}`)
	} else {
		run.ErrorMessage = "backend unavailable"
	}
	return run
}

func TestGetOrCreateSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreateSession(ctx, "sess-1", "user-hash-1", 5)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if sess.EventCount != 5 {
		t.Errorf("EventCount = %d, want 5", sess.EventCount)
	}
	if sess.UserIDHash != "user-hash-1" {
		t.Errorf("UserIDHash = %q, want user-hash-1", sess.UserIDHash)
	}
	if sess.RiskLevel != domain.RiskLow {
		t.Errorf("RiskLevel = %q, want LOW", sess.RiskLevel)
	}

	// Second call for the same session accumulates, not resets.
	sess, err = store.GetOrCreateSession(ctx, "sess-1", "user-hash-1", 3)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if sess.EventCount != 8 {
		t.Errorf("EventCount = %d, want 8", sess.EventCount)
	}
}

func TestGetOrCreateSession_ConcurrentIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.GetOrCreateSession(ctx, "sess-1", "user-hash-1", 2); err != nil {
				t.Errorf("GetOrCreateSession: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, err := store.GetOrCreateSession(ctx, "sess-1", "user-hash-1", 0)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if sess.EventCount != workers*2 {
		t.Errorf("EventCount = %d, want %d (no lost increments)", sess.EventCount, workers*2)
	}
}

func TestWriteDecisionAndReadRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	decision := testDecision("sess-1", true, 0.60)
	runs := []domain.InferenceRun{
		testRun(decision.DecisionID, "cheap-1", true, 40*time.Millisecond),
		testRun(decision.DecisionID, "reasoner", false, 30*time.Second),
	}

	if err := store.WriteDecision(ctx, decision, runs); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}

	got, err := store.DecisionRuns(ctx, decision.DecisionID)
	if err != nil {
		t.Fatalf("DecisionRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(got))
	}

	byModel := map[string]domain.InferenceRun{}
	for _, run := range got {
		byModel[run.ModelID] = run
	}
	cheap := byModel["cheap-1"]
	if !cheap.Success || len(cheap.Output) == 0 {
		t.Errorf("cheap run = %+v, want success with output", cheap)
	}
	if cheap.Latency != 40*time.Millisecond {
		t.Errorf("cheap latency = %v, want 40ms", cheap.Latency)
	}
	failed := byModel["reasoner"]
	if failed.Success || failed.ErrorMessage == "" {
		t.Errorf("reasoner run = %+v, want recorded failure", failed)
	}
}

func TestEscalationRate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rate, err := store.EscalationRate(ctx, time.Hour)
	if err != nil {
		t.Fatalf("EscalationRate: %v", err)
	}
	if rate != 0 {
		t.Errorf("empty store rate = %v, want 0", rate)
	}

	for i := 0; i < 4; i++ {
		d := testDecision("sess-1", i == 0, 0.8)
		if err := store.WriteDecision(ctx, d, nil); err != nil {
			t.Fatalf("WriteDecision: %v", err)
		}
	}

	rate, err = store.EscalationRate(ctx, time.Hour)
	if err != nil {
		t.Fatalf("EscalationRate: %v", err)
	}
	if rate != 0.25 {
		t.Errorf("rate = %v, want 0.25", rate)
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d1 := testDecision("sess-1", true, 0.60)
	d2 := testDecision("sess-2", false, 0.90)
	if err := store.WriteDecision(ctx, d1, []domain.InferenceRun{
		testRun(d1.DecisionID, "cheap-1", true, 40*time.Millisecond),
		testRun(d1.DecisionID, "reasoner", true, 2*time.Second),
	}); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}
	if err := store.WriteDecision(ctx, d2, []domain.InferenceRun{
		testRun(d2.DecisionID, "cheap-1", true, 60*time.Millisecond),
		testRun(d2.DecisionID, "cheap-1", false, time.Millisecond),
	}); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}

	stats, err := store.Stats(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.TotalDecisions != 2 || stats.EscalatedCount != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)", stats.TotalDecisions, stats.EscalatedCount)
	}
	if stats.EscalationRate != 0.5 {
		t.Errorf("EscalationRate = %v, want 0.5", stats.EscalationRate)
	}
	if stats.UniqueSessions != 2 {
		t.Errorf("UniqueSessions = %d, want 2", stats.UniqueSessions)
	}
	if diff := stats.AvgConfidence - 0.75; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvgConfidence = %v, want 0.75", stats.AvgConfidence)
	}

	// Failed runs are excluded from latency aggregates.
	if len(stats.ModelLatency) != 2 {
		t.Fatalf("len(ModelLatency) = %d, want 2", len(stats.ModelLatency))
	}
	for _, ml := range stats.ModelLatency {
		switch ml.ModelID {
		case "cheap-1":
			if ml.RunCount != 2 {
				t.Errorf("cheap-1 RunCount = %d, want 2", ml.RunCount)
			}
			if ml.MaxLatency != 60*time.Millisecond {
				t.Errorf("cheap-1 MaxLatency = %v, want 60ms", ml.MaxLatency)
			}
		case "reasoner":
			if ml.RunCount != 1 {
				t.Errorf("reasoner RunCount = %d, want 1", ml.RunCount)
			}
		default:
			t.Errorf("unexpected model %q in latency aggregates", ml.ModelID)
		}
	}
}

func TestStats_WindowExcludesOldDecisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := testDecision("sess-old", true, 0.5)
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := store.WriteDecision(ctx, old, nil); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}
	fresh := testDecision("sess-new", false, 0.9)
	if err := store.WriteDecision(ctx, fresh, nil); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}

	stats, err := store.Stats(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalDecisions != 1 {
		t.Errorf("TotalDecisions = %d, want 1 (old decision outside window)", stats.TotalDecisions)
	}
}
