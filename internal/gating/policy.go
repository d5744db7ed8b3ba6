// Package gating implements the confidence-based escalation policy: the rule
// set that decides whether a cheap classifier result is trustworthy enough to
// stand, or whether the expensive reasoner must be consulted.
package gating

import (
	"fmt"
	"sync"

	"github.com/infergate/intent-router/internal/domain"
)

// Config carries the four gating thresholds and the high-value-session
// criteria. Changes apply to subsequent decisions only; a decision already
// produced is never re-evaluated.
type Config struct {
	DefaultThreshold    float64 `json:"default_threshold" koanf:"default_threshold"`
	HighRiskThreshold   float64 `json:"high_risk_threshold" koanf:"high_risk_threshold"`
	HighValueThreshold  float64 `json:"high_value_threshold" koanf:"high_value_threshold"`
	Top2MarginThreshold float64 `json:"top2_margin_threshold" koanf:"top2_margin_threshold"`

	HighValueMinEvents int     `json:"high_value_min_events" koanf:"high_value_min_events"`
	HighValueMinScore  float64 `json:"high_value_min_score" koanf:"high_value_min_score"`

	// HighRiskIntents extends the built-in high-risk set. Purchase intent is
	// always high risk regardless of configuration.
	HighRiskIntents []domain.Intent `json:"high_risk_intents,omitempty" koanf:"high_risk_intents"`
}

// DefaultConfig returns the balanced thresholds.
func DefaultConfig() Config {
	return Config{
		DefaultThreshold:    0.70,
		HighRiskThreshold:   0.85,
		HighValueThreshold:  0.80,
		Top2MarginThreshold: 0.10,
		HighValueMinEvents:  10,
		HighValueMinScore:   0.6,
	}
}

// ConservativeConfig escalates more often for higher accuracy.
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultThreshold = 0.80
	cfg.HighRiskThreshold = 0.90
	cfg.HighValueThreshold = 0.85
	cfg.Top2MarginThreshold = 0.15
	return cfg
}

// AggressiveConfig minimizes escalation for lower cost.
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultThreshold = 0.60
	cfg.HighRiskThreshold = 0.75
	cfg.HighValueThreshold = 0.70
	cfg.Top2MarginThreshold = 0.05
	return cfg
}

// Validate rejects thresholds outside [0,1] and negative criteria.
func (c Config) Validate() error {
	thresholds := map[string]float64{
		"default_threshold":     c.DefaultThreshold,
		"high_risk_threshold":   c.HighRiskThreshold,
		"high_value_threshold":  c.HighValueThreshold,
		"top2_margin_threshold": c.Top2MarginThreshold,
	}
	for name, v := range thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("gating %s out of range [0,1]: %v", name, v)
		}
	}
	if c.HighValueMinEvents < 0 {
		return fmt.Errorf("gating high_value_min_events must not be negative: %d", c.HighValueMinEvents)
	}
	if c.HighValueMinScore < 0 {
		return fmt.Errorf("gating high_value_min_score must not be negative: %v", c.HighValueMinScore)
	}
	return nil
}

func (c Config) isHighRisk(intent domain.Intent) bool {
	if intent == domain.IntentPurchase {
		return true
	}
	for _, hr := range c.HighRiskIntents {
		if intent == hr {
			return true
		}
	}
	return false
}

func (c Config) isHighValue(sess *domain.Session) bool {
	return sess.EventCount >= c.HighValueMinEvents && sess.ValueScore >= c.HighValueMinScore
}

// Decide applies the gating rules to a reconciled cheap output and the
// current session. It is deterministic and total: it always returns a
// verdict and never fails.
//
// Rules are evaluated strictly in priority order; the first matching rule
// supplies the audited reason even when several conditions hold at once:
//
//  1. confidence below the default threshold
//  2. high-risk intent below the high-risk threshold
//  3. high-value session below the high-value threshold
//  4. top-2 margin below the ambiguity threshold
func Decide(out *domain.ClassifierOutput, sess *domain.Session, cfg Config) domain.GatingDecision {
	confidence := out.Confidence
	margin := out.Top2Margin()
	highValue := cfg.isHighValue(sess)

	verdict := func(escalate bool, reason domain.GatingReason, detail string) domain.GatingDecision {
		return domain.GatingDecision{
			ShouldEscalate:   escalate,
			Reason:           reason,
			Detail:           detail,
			CheapConfidence:  confidence,
			Top2Margin:       margin,
			RiskLevel:        sess.RiskLevel,
			HighValueSession: highValue,
		}
	}

	if confidence < cfg.DefaultThreshold {
		return verdict(true, domain.ReasonLowConfidence,
			fmt.Sprintf("low confidence (%.2f < %.2f)", confidence, cfg.DefaultThreshold))
	}
	if cfg.isHighRisk(out.Intent) && confidence < cfg.HighRiskThreshold {
		return verdict(true, domain.ReasonHighRisk,
			fmt.Sprintf("high-risk intent %s with insufficient confidence (%.2f < %.2f)", out.Intent, confidence, cfg.HighRiskThreshold))
	}
	if highValue && confidence < cfg.HighValueThreshold {
		return verdict(true, domain.ReasonHighValue,
			fmt.Sprintf("high-value session with insufficient confidence (%.2f < %.2f)", confidence, cfg.HighValueThreshold))
	}
	if margin < cfg.Top2MarginThreshold {
		return verdict(true, domain.ReasonAmbiguousMargin,
			fmt.Sprintf("ambiguous prediction with small top-2 margin (%.2f < %.2f)", margin, cfg.Top2MarginThreshold))
	}

	return verdict(false, domain.ReasonSufficient, "sufficient confidence from cheap classifier")
}

// Policy wraps a Config so it can be swapped at runtime. Decide reads the
// config under a read lock; SetConfig replaces it wholesale.
type Policy struct {
	mu  sync.RWMutex
	cfg Config
}

// NewPolicy creates a policy with the given initial configuration.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Config returns a copy of the current configuration.
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// SetConfig replaces the configuration. It governs subsequent decisions only.
func (p *Policy) SetConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Decide evaluates the gating rules against the current configuration.
func (p *Policy) Decide(out *domain.ClassifierOutput, sess *domain.Session) domain.GatingDecision {
	return Decide(out, sess, p.Config())
}
