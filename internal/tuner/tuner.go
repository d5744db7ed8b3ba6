// Package tuner runs the out-of-band adjustment loop for the adaptive gating
// policy. It observes the realized escalation rate and accuracy signals and
// nudges the thresholds between requests, never on the request path.
package tuner

import (
	"context"
	"log/slog"
	"time"

	"github.com/infergate/intent-router/internal/gating"
	"github.com/infergate/intent-router/internal/storage"
)

// AccuracySource supplies the externally measured model accuracies for the
// current observation window. Accuracy measurement (labeling, evaluation) is
// not this engine's concern.
type AccuracySource interface {
	Accuracy(ctx context.Context) (cheap, expensive float64, err error)
}

// StaticAccuracy is an AccuracySource with fixed values, used when no live
// evaluation feed is wired up.
type StaticAccuracy struct {
	Cheap     float64
	Expensive float64
}

func (s StaticAccuracy) Accuracy(context.Context) (float64, float64, error) {
	return s.Cheap, s.Expensive, nil
}

// Tuner periodically adjusts an adaptive policy from observed outcomes.
type Tuner struct {
	policy   *gating.AdaptivePolicy
	store    storage.Store
	accuracy AccuracySource
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger
}

// New creates a tuner. interval is the adjustment cadence; window is the
// trailing period the escalation rate is computed over.
func New(policy *gating.AdaptivePolicy, store storage.Store, accuracy AccuracySource, interval, window time.Duration, logger *slog.Logger) *Tuner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tuner{
		policy:   policy,
		store:    store,
		accuracy: accuracy,
		interval: interval,
		window:   window,
		logger:   logger,
	}
}

// Run loops until ctx is canceled. Observation failures skip the window
// rather than stopping the loop.
func (t *Tuner) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick performs one observation and adjustment cycle.
func (t *Tuner) Tick(ctx context.Context) {
	rate, err := t.store.EscalationRate(ctx, t.window)
	if err != nil {
		t.logger.Warn("skipping threshold adjustment, escalation rate unavailable",
			slog.String("error", err.Error()))
		return
	}

	cheapAcc, expensiveAcc, err := t.accuracy.Accuracy(ctx)
	if err != nil {
		t.logger.Warn("skipping threshold adjustment, accuracy unavailable",
			slog.String("error", err.Error()))
		return
	}

	before := t.policy.Config()
	t.policy.Adjust(rate, cheapAcc, expensiveAcc)
	after := t.policy.Config()

	changed := before.DefaultThreshold != after.DefaultThreshold ||
		before.HighRiskThreshold != after.HighRiskThreshold ||
		before.HighValueThreshold != after.HighValueThreshold
	if changed {
		t.logger.Info("gating thresholds adjusted",
			slog.Float64("escalation_rate", rate),
			slog.Float64("cheap_accuracy", cheapAcc),
			slog.Float64("default_threshold", after.DefaultThreshold),
			slog.Float64("high_risk_threshold", after.HighRiskThreshold),
			slog.Float64("high_value_threshold", after.HighValueThreshold))
	}
}
