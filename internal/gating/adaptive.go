package gating

// Clamp bands per threshold. Tuning can never push the policy into
// always-escalate or never-escalate territory.
const (
	defaultThresholdMin = 0.50
	defaultThresholdMax = 0.85

	highRiskThresholdMin = 0.70
	highRiskThresholdMax = 0.95

	highValueThresholdMin = 0.60
	highValueThresholdMax = 0.90

	// Below this cheap-model accuracy, under-escalating is considered worse
	// than the cost of extra reasoner calls.
	cheapAccuracyFloor = 0.85
)

// AdaptivePolicy is a Policy whose confidence thresholds are nudged toward a
// target escalation rate from observed outcomes. Adjustment runs out-of-band
// (see the tuner package), never on the request path.
type AdaptivePolicy struct {
	*Policy

	targetEscalationRate float64
	adjustmentStep       float64
}

// NewAdaptivePolicy creates an adaptive policy. A non-positive step disables
// adjustment in practice.
func NewAdaptivePolicy(cfg Config, targetEscalationRate, adjustmentStep float64) *AdaptivePolicy {
	return &AdaptivePolicy{
		Policy:               NewPolicy(cfg),
		targetEscalationRate: targetEscalationRate,
		adjustmentStep:       adjustmentStep,
	}
}

// Adjust updates the three confidence thresholds from one observation window.
// Escalating above target lowers all three by one step; escalating below
// target raises them only while the cheap model is unreliable. Every
// adjustment is clamped to the per-threshold safe band.
func (p *AdaptivePolicy) Adjust(escalationRate, cheapAccuracy, expensiveAccuracy float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case escalationRate > p.targetEscalationRate:
		p.cfg.DefaultThreshold -= p.adjustmentStep
		p.cfg.HighRiskThreshold -= p.adjustmentStep
		p.cfg.HighValueThreshold -= p.adjustmentStep
	case escalationRate < p.targetEscalationRate && cheapAccuracy < cheapAccuracyFloor:
		p.cfg.DefaultThreshold += p.adjustmentStep
		p.cfg.HighRiskThreshold += p.adjustmentStep
		p.cfg.HighValueThreshold += p.adjustmentStep
	}

	p.cfg.DefaultThreshold = clamp(p.cfg.DefaultThreshold, defaultThresholdMin, defaultThresholdMax)
	p.cfg.HighRiskThreshold = clamp(p.cfg.HighRiskThreshold, highRiskThresholdMin, highRiskThresholdMax)
	p.cfg.HighValueThreshold = clamp(p.cfg.HighValueThreshold, highValueThresholdMin, highValueThresholdMax)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
