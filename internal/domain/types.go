// Package domain holds the value types shared across the intent engine:
// browsing events, classifier and reasoner outputs, gating decisions, and
// the audit records produced by every inference.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intent is the closed classification taxonomy. Backend responses that fall
// outside the taxonomy are mapped to IntentUnknown rather than rejected.
type Intent string

const (
	IntentPurchase   Intent = "PURCHASE_INTENT"
	IntentResearch   Intent = "RESEARCH_INTENT"
	IntentComparison Intent = "COMPARISON_INTENT"
	IntentEngagement Intent = "ENGAGEMENT_INTENT"
	IntentNavigation Intent = "NAVIGATION_INTENT"
	IntentUnknown    Intent = "UNKNOWN"
)

var knownIntents = map[string]Intent{
	"PURCHASE_INTENT":   IntentPurchase,
	"RESEARCH_INTENT":   IntentResearch,
	"COMPARISON_INTENT": IntentComparison,
	"ENGAGEMENT_INTENT": IntentEngagement,
	"NAVIGATION_INTENT": IntentNavigation,
	"UNKNOWN":           IntentUnknown,
}

// ParseIntent maps a backend-reported intent string onto the taxonomy.
// Unrecognized values become IntentUnknown so a misbehaving backend cannot
// widen the taxonomy.
func ParseIntent(s string) Intent {
	if intent, ok := knownIntents[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return intent
	}
	return IntentUnknown
}

// RiskLevel qualifies a session for gating purposes.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// BrowsingEvent is one raw event from the collection pipeline. Events are
// read-only inputs; the engine never mutates them.
type BrowsingEvent struct {
	EventID    uuid.UUID      `json:"event_id"`
	SessionID  string         `json:"session_id"`
	UserIDHash string         `json:"user_id_hash"`
	EventType  string         `json:"event_type"`
	URL        string         `json:"url,omitempty"`
	URLHash    string         `json:"url_hash,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Session is the mutable per-session aggregate used by the gating policy.
// EventCount only ever increases; updates for the same session id are
// serialized at the storage layer.
type Session struct {
	SessionID       string    `json:"session_id"`
	UserIDHash      string    `json:"user_id_hash"`
	EventCount      int       `json:"event_count"`
	CurrentSequence int       `json:"current_sequence"`
	ValueScore      float64   `json:"value_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AlternativeIntent is a secondary prediction attached to a classifier or
// reasoner output.
type AlternativeIntent struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ClassifierOutput is the result of a single cheap classifier invocation.
type ClassifierOutput struct {
	ModelID      string              `json:"model_id"`
	Intent       Intent              `json:"intent"`
	Confidence   float64             `json:"confidence"`
	Alternatives []AlternativeIntent `json:"alternatives,omitempty"`
	Latency      time.Duration       `json:"latency_ns"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

// Top2Margin returns the gap between the chosen intent's confidence and the
// strongest alternative. With no alternatives the margin is 1.0: there is no
// contender, so the prediction is maximally unambiguous. Alternatives are not
// required to arrive sorted.
func (o *ClassifierOutput) Top2Margin() float64 {
	if len(o.Alternatives) == 0 {
		return 1.0
	}
	best := o.Alternatives[0].Confidence
	for _, alt := range o.Alternatives[1:] {
		if alt.Confidence > best {
			best = alt.Confidence
		}
	}
	return o.Confidence - best
}

// SupportingSignal cites one source event as evidence for a reasoner verdict.
type SupportingSignal struct {
	SourceEventID uuid.UUID `json:"source_event_id"`
	SignalType    string    `json:"signal_type"`
	Relevance     float64   `json:"relevance_score"`
	Description   string    `json:"description"`
}

// EscalationOutput is the result of the expensive reasoner. ReasoningTrace is
// diagnostic only and must never drive control flow.
type EscalationOutput struct {
	ModelID           string              `json:"model_id"`
	FinalIntent       Intent              `json:"final_intent"`
	Confidence        float64             `json:"confidence"`
	SupportingSignals []SupportingSignal  `json:"supporting_signals,omitempty"`
	Alternatives      []AlternativeIntent `json:"alternatives,omitempty"`
	RecommendedAction string              `json:"recommended_action,omitempty"`
	ReasoningTrace    string              `json:"reasoning_trace,omitempty"`
	Latency           time.Duration       `json:"latency_ns"`
}

// GatingReason identifies which gating rule produced a verdict.
type GatingReason string

const (
	ReasonLowConfidence   GatingReason = "low_confidence"
	ReasonHighRisk        GatingReason = "high_risk_intent"
	ReasonHighValue       GatingReason = "high_value_session"
	ReasonAmbiguousMargin GatingReason = "ambiguous_margin"
	ReasonSufficient      GatingReason = "sufficient_confidence"
	ReasonForced          GatingReason = "forced"
)

// GatingDecision is the gating policy verdict, attached 1:1 to the decision
// it governed. Immutable once produced.
type GatingDecision struct {
	ShouldEscalate   bool         `json:"should_escalate"`
	Reason           GatingReason `json:"reason"`
	Detail           string       `json:"detail"`
	CheapConfidence  float64      `json:"cheap_confidence"`
	Top2Margin       float64      `json:"top2_margin"`
	RiskLevel        RiskLevel    `json:"risk_level"`
	HighValueSession bool         `json:"high_value_session"`
}

// IntentDecision is the engine's authoritative output for one inference.
// It is the unit of persistence and audit and is immutable once created.
type IntentDecision struct {
	DecisionID     uuid.UUID      `json:"decision_id"`
	SessionID      string         `json:"session_id"`
	Intent         Intent         `json:"intent"`
	Confidence     float64        `json:"confidence"`
	WasEscalated   bool           `json:"was_escalated"`
	Gating         GatingDecision `json:"gating_decision"`
	CreatedAt      time.Time      `json:"created_at"`
	SourceEventIDs []uuid.UUID    `json:"source_event_ids"`
	ModelUsed      string         `json:"model_used"`
}

// InferenceRun records one backend invocation, success or failure. Runs are
// buffered until the owning decision id is minted, then stamped and persisted
// together with the decision.
type InferenceRun struct {
	RunID           uuid.UUID       `json:"run_id"`
	DecisionID      uuid.UUID       `json:"decision_id"`
	ModelID         string          `json:"model_id"`
	InputEventCount int             `json:"input_event_count"`
	Output          json.RawMessage `json:"output,omitempty"`
	Latency         time.Duration   `json:"latency_ns"`
	Success         bool            `json:"success"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
