package tuner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/infergate/intent-router/internal/domain"
	"github.com/infergate/intent-router/internal/gating"
	"github.com/infergate/intent-router/internal/storage/memory"
)

func writeDecisions(t *testing.T, store *memory.Store, escalated, total int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < total; i++ {
		d := &domain.IntentDecision{
			DecisionID:   uuid.New(),
			SessionID:    "sess-1",
			Intent:       domain.IntentResearch,
			Confidence:   0.8,
			WasEscalated: i < escalated,
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.WriteDecision(ctx, d, nil); err != nil {
			t.Fatalf("WriteDecision: %v", err)
		}
	}
}

func TestTick_LowersThresholdsWhenOverTarget(t *testing.T) {
	store := memory.New()
	writeDecisions(t, store, 5, 10) // 50% escalation rate, target 20%

	policy := gating.NewAdaptivePolicy(gating.DefaultConfig(), 0.20, 0.02)
	tn := New(policy, store, StaticAccuracy{Cheap: 0.85, Expensive: 0.95}, time.Minute, time.Hour, nil)

	before := policy.Config()
	tn.Tick(context.Background())
	after := policy.Config()

	if after.DefaultThreshold >= before.DefaultThreshold {
		t.Errorf("DefaultThreshold = %v, want below %v", after.DefaultThreshold, before.DefaultThreshold)
	}
}

func TestTick_HoldsAtTarget(t *testing.T) {
	store := memory.New()
	writeDecisions(t, store, 2, 10) // 20% escalation rate, exactly on target

	policy := gating.NewAdaptivePolicy(gating.DefaultConfig(), 0.20, 0.02)
	tn := New(policy, store, StaticAccuracy{Cheap: 0.85, Expensive: 0.95}, time.Minute, time.Hour, nil)

	before := policy.Config()
	tn.Tick(context.Background())
	after := policy.Config()

	if after.DefaultThreshold != before.DefaultThreshold {
		t.Errorf("DefaultThreshold changed from %v to %v, want unchanged", before.DefaultThreshold, after.DefaultThreshold)
	}
}

type failingAccuracy struct{}

func (failingAccuracy) Accuracy(context.Context) (float64, float64, error) {
	return 0, 0, errors.New("evaluation feed down")
}

func TestTick_SkipsOnAccuracyFailure(t *testing.T) {
	store := memory.New()
	writeDecisions(t, store, 9, 10)

	policy := gating.NewAdaptivePolicy(gating.DefaultConfig(), 0.20, 0.02)
	tn := New(policy, store, failingAccuracy{}, time.Minute, time.Hour, nil)

	before := policy.Config()
	tn.Tick(context.Background())
	after := policy.Config()

	if after.DefaultThreshold != before.DefaultThreshold {
		t.Error("thresholds should not move when the accuracy source fails")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.New()
	policy := gating.NewAdaptivePolicy(gating.DefaultConfig(), 0.20, 0.02)
	tn := New(policy, store, StaticAccuracy{Cheap: 0.85, Expensive: 0.95}, time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tn.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
