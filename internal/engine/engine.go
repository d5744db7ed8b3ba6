// Package engine contains the escalation orchestrator: it fans out to the
// cheap classifiers, reconciles their outputs, applies the gating policy,
// optionally escalates to the reasoner, and persists the decision together
// with its audit trail.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/infergate/intent-router/internal/classifier"
	"github.com/infergate/intent-router/internal/domain"
	"github.com/infergate/intent-router/internal/gating"
	"github.com/infergate/intent-router/internal/reasoner"
	"github.com/infergate/intent-router/internal/reconcile"
	"github.com/infergate/intent-router/internal/storage"
)

// Policy is the gating capability the engine consults. Both gating.Policy
// and gating.AdaptivePolicy satisfy it.
type Policy interface {
	Decide(out *domain.ClassifierOutput, sess *domain.Session) domain.GatingDecision
	Config() gating.Config
	SetConfig(cfg gating.Config)
}

// Result is the full outcome of one inference: the authoritative decision,
// the audit runs in invocation order, and the wall-clock latency.
type Result struct {
	Decision     *domain.IntentDecision `json:"decision"`
	Runs         []domain.InferenceRun  `json:"inference_runs"`
	TotalLatency time.Duration          `json:"total_latency_ns"`
}

// Engine orchestrates one inference end to end. It owns the in-flight
// decision and run buffer until persisted; classifiers, reasoner, policy,
// and store are injected collaborators.
type Engine struct {
	classifiers []classifier.Classifier
	reasoner    reasoner.Reasoner
	policy      Policy
	store       storage.Store

	primaryID string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates an engine. At least one cheap classifier, a reasoner, a policy,
// and a store are required.
func New(classifiers []classifier.Classifier, rsn reasoner.Reasoner, policy Policy, store storage.Store, opts ...Option) (*Engine, error) {
	if len(classifiers) == 0 {
		return nil, fmt.Errorf("at least one cheap classifier required")
	}
	if rsn == nil {
		return nil, fmt.Errorf("reasoner required")
	}
	if policy == nil {
		return nil, fmt.Errorf("gating policy required")
	}
	if store == nil {
		return nil, fmt.Errorf("store required")
	}

	e := &Engine{
		classifiers: classifiers,
		reasoner:    rsn,
		policy:      policy,
		store:       store,
		primaryID:   classifiers[0].ModelID(),
		logger:      slog.Default(),
		tracer:      otel.Tracer("intent-router/engine"),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	return e, nil
}

// Policy returns the gating policy for runtime reconfiguration.
func (e *Engine) Policy() Policy { return e.policy }

// Infer runs the full decision pipeline for one event bundle. The only
// abort before a decision exists is total cheap-classifier failure; a failed
// reasoner falls back to the cheap result. Nothing is persisted when ctx is
// canceled mid-flight.
func (e *Engine) Infer(ctx context.Context, sessionID string, events []domain.BrowsingEvent, forceEscalation bool) (*Result, error) {
	start := time.Now()

	if len(events) == 0 {
		return nil, domain.ErrEmptyEvents
	}

	ctx, span := e.tracer.Start(ctx, "engine.infer",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.Int("event_count", len(events)),
		))
	defer span.End()

	// START -> SESSION_RESOLVED
	session, err := e.store.GetOrCreateSession(ctx, sessionID, events[0].UserIDHash, len(events))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve session: %v", domain.ErrStorageUnavailable, err)
	}

	// SESSION_RESOLVED -> CHEAP_CLASSIFIED
	attempts, runs := e.classifyAll(ctx, events)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cheap := reconcile.Choose(attempts, e.primaryID)
	if cheap == nil {
		e.logger.Error("all cheap classifiers failed", slog.String("session_id", sessionID))
		return nil, domain.ErrNoCheapClassifier
	}

	// CHEAP_CLASSIFIED -> GATED
	verdict := e.policy.Decide(cheap, session)
	if forceEscalation && !verdict.ShouldEscalate {
		verdict.Reason = domain.ReasonForced
		verdict.Detail = "escalation forced by caller"
	}

	finalIntent := cheap.Intent
	finalConfidence := cheap.Confidence
	modelUsed := cheap.ModelID
	escalated := false

	// GATED -> ESCALATED -> FINALIZED, or GATED -> FINALIZED
	if verdict.ShouldEscalate || forceEscalation {
		escalated = true
		escOut, escRun := e.escalate(ctx, events, cheap, session)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		runs = append(runs, escRun)
		if escOut != nil {
			finalIntent = escOut.FinalIntent
			finalConfidence = escOut.Confidence
			modelUsed = escOut.ModelID
		}
	}

	// FINALIZED -> PERSISTED
	decision := &domain.IntentDecision{
		DecisionID:     uuid.New(),
		SessionID:      sessionID,
		Intent:         finalIntent,
		Confidence:     finalConfidence,
		WasEscalated:   escalated,
		Gating:         verdict,
		CreatedAt:      time.Now().UTC(),
		SourceEventIDs: eventIDs(events),
		ModelUsed:      modelUsed,
	}
	for i := range runs {
		runs[i].DecisionID = decision.DecisionID
	}

	if err := e.store.WriteDecision(ctx, decision, runs); err != nil {
		return nil, fmt.Errorf("%w: write decision: %v", domain.ErrStorageUnavailable, err)
	}

	span.SetAttributes(
		attribute.Bool("escalated", escalated),
		attribute.String("reason", string(verdict.Reason)),
		attribute.String("intent", string(finalIntent)),
	)
	e.logger.Info("decision persisted",
		slog.String("decision_id", decision.DecisionID.String()),
		slog.String("session_id", sessionID),
		slog.String("intent", string(finalIntent)),
		slog.Bool("escalated", escalated),
		slog.String("reason", string(verdict.Reason)),
		slog.Duration("latency", time.Since(start)))

	return &Result{
		Decision:     decision,
		Runs:         runs,
		TotalLatency: time.Since(start),
	}, nil
}

// classifyAll invokes every cheap classifier in parallel and waits for all of
// them to settle. A failed classifier becomes a failed run, never an error;
// one slow or broken backend cannot take its siblings down with it.
func (e *Engine) classifyAll(ctx context.Context, events []domain.BrowsingEvent) ([]reconcile.Attempt, []domain.InferenceRun) {
	ctx, span := e.tracer.Start(ctx, "engine.classify_fanout",
		trace.WithAttributes(attribute.Int("classifier_count", len(e.classifiers))))
	defer span.End()

	attempts := make([]reconcile.Attempt, len(e.classifiers))
	runs := make([]domain.InferenceRun, len(e.classifiers))

	var wg sync.WaitGroup
	for i, c := range e.classifiers {
		wg.Add(1)
		go func(idx int, c classifier.Classifier) {
			defer wg.Done()
			callStart := time.Now()
			out, err := c.Classify(ctx, events)
			if err != nil {
				e.logger.Warn("cheap classifier failed",
					slog.String("model_id", c.ModelID()),
					slog.String("error", err.Error()))
			}
			attempts[idx] = reconcile.Attempt{ClassifierID: c.ModelID(), Output: out, Err: err}
			runs[idx] = newRun(c.ModelID(), len(events), out, time.Since(callStart), err)
		}(i, c)
	}
	wg.Wait()

	return attempts, runs
}

// escalate invokes the reasoner and records its run. On failure the cheap
// result stands, but the escalation attempt stays in the audit trail.
func (e *Engine) escalate(ctx context.Context, events []domain.BrowsingEvent, cheap *domain.ClassifierOutput, session *domain.Session) (*domain.EscalationOutput, domain.InferenceRun) {
	ctx, span := e.tracer.Start(ctx, "engine.escalate")
	defer span.End()

	callStart := time.Now()
	out, err := e.reasoner.Reason(ctx, events, cheap, session)
	if err != nil {
		e.logger.Warn("reasoner failed, falling back to cheap result",
			slog.String("model_id", e.reasoner.ModelID()),
			slog.String("error", err.Error()))
		run := newRun(e.reasoner.ModelID(), len(events), nil, time.Since(callStart), err)
		run.ErrorMessage = fmt.Sprintf("%v (fell back to cheap output from %s)", err, cheap.ModelID)
		return nil, run
	}

	return out, newRun(e.reasoner.ModelID(), len(events), out, time.Since(callStart), nil)
}

func newRun(modelID string, inputCount int, output any, latency time.Duration, err error) domain.InferenceRun {
	run := domain.InferenceRun{
		RunID:           uuid.New(),
		ModelID:         modelID,
		InputEventCount: inputCount,
		Latency:         latency,
		Success:         err == nil,
		CreatedAt:       time.Now().UTC(),
	}
	if err != nil {
		run.ErrorMessage = err.Error()
		return run
	}
	if output != nil {
		if serialized, merr := json.Marshal(output); merr == nil {
			run.Output = serialized
		}
	}
	return run
}

func eventIDs(events []domain.BrowsingEvent) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.EventID)
	}
	return ids
}
