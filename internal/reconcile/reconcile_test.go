package reconcile

import (
	"errors"
	"testing"

	"github.com/infergate/intent-router/internal/domain"
)

func ok(id string, intent domain.Intent, confidence float64) Attempt {
	return Attempt{
		ClassifierID: id,
		Output: &domain.ClassifierOutput{
			ModelID:    id,
			Intent:     intent,
			Confidence: confidence,
		},
	}
}

func failed(id string) Attempt {
	return Attempt{ClassifierID: id, Err: errors.New("backend unavailable")}
}

func TestChoose(t *testing.T) {
	tests := []struct {
		name     string
		attempts []Attempt
		primary  string
		want     string // winning classifier id, "" for nil
	}{
		{
			name:     "all failed",
			attempts: []Attempt{failed("a"), failed("b")},
			primary:  "a",
			want:     "",
		},
		{
			name:     "single success wins regardless of confidence",
			attempts: []Attempt{failed("a"), ok("b", domain.IntentResearch, 0.30)},
			primary:  "a",
			want:     "b",
		},
		{
			name: "trusted primary beats higher-confidence contender",
			attempts: []Attempt{
				ok("primary", domain.IntentPurchase, 0.85),
				ok("llm", domain.IntentResearch, 0.91),
			},
			primary: "primary",
			want:    "primary",
		},
		{
			name: "untrusted primary loses to higher confidence",
			attempts: []Attempt{
				ok("primary", domain.IntentPurchase, 0.72),
				ok("llm", domain.IntentResearch, 0.91),
			},
			primary: "primary",
			want:    "llm",
		},
		{
			name: "primary exactly at trust threshold is not trusted",
			attempts: []Attempt{
				ok("primary", domain.IntentPurchase, 0.80),
				ok("llm", domain.IntentResearch, 0.81),
			},
			primary: "primary",
			want:    "llm",
		},
		{
			name: "confidence tie prefers primary",
			attempts: []Attempt{
				ok("llm", domain.IntentResearch, 0.75),
				ok("primary", domain.IntentPurchase, 0.75),
			},
			primary: "primary",
			want:    "primary",
		},
		{
			name: "confidence tie without primary prefers smallest id",
			attempts: []Attempt{
				ok("zeta", domain.IntentResearch, 0.75),
				ok("alpha", domain.IntentPurchase, 0.75),
			},
			primary: "missing",
			want:    "alpha",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Choose(tt.attempts, tt.primary)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("Choose = %v, want nil", got.ModelID)
				}
				return
			}
			if got == nil {
				t.Fatalf("Choose = nil, want %q", tt.want)
			}
			if got.ModelID != tt.want {
				t.Errorf("Choose = %q, want %q", got.ModelID, tt.want)
			}
		})
	}
}

func TestChoose_OrderIndependent(t *testing.T) {
	a := ok("nlu", domain.IntentPurchase, 0.85)
	b := ok("llm", domain.IntentResearch, 0.91)
	c := failed("broken")

	forward := Choose([]Attempt{a, b, c}, "nlu")
	reversed := Choose([]Attempt{c, b, a}, "nlu")

	if forward == nil || reversed == nil {
		t.Fatal("expected a winner in both orders")
	}
	if forward.ModelID != reversed.ModelID {
		t.Errorf("selection depends on order: %q vs %q", forward.ModelID, reversed.ModelID)
	}
}
