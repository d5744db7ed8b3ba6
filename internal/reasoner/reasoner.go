// Package reasoner is the client for the expensive long-chain reasoning
// backend, consulted only when the gating policy escalates.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/infergate/intent-router/internal/domain"
	"github.com/infergate/intent-router/internal/llmapi"
)

// DefaultTimeout is materially longer than the cheap classifiers' budgets;
// long-chain reasoning is slow by design.
const DefaultTimeout = 30 * time.Second

// reasonerEventWindow bounds how many trailing events go into the prompt.
const reasonerEventWindow = 30

// Reasoner is the escalation capability consumed by the engine.
type Reasoner interface {
	ModelID() string
	Reason(ctx context.Context, events []domain.BrowsingEvent, cheap *domain.ClassifierOutput, sess *domain.Session) (*domain.EscalationOutput, error)
}

// Client reasons over the full event bundle via an OpenAI-compatible chat
// API with a JSON-constrained response.
type Client struct {
	modelID string
	client  *llmapi.Client
	timeout time.Duration
}

var _ Reasoner = (*Client)(nil)

// New creates a reasoner client. modelID identifies the reasoner in audit
// runs; the backend model name lives on the chat client. The timeout bounds
// each Reason call regardless of how the chat client is configured; a
// non-positive value falls back to DefaultTimeout.
func New(modelID string, client *llmapi.Client, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{modelID: modelID, client: client, timeout: timeout}
}

func (c *Client) ModelID() string { return c.modelID }

const systemPrompt = `You are an expert analyst of user browsing behavior.
You receive sessions that a cheaper classifier could not resolve with enough confidence.
Reason step by step over the full event sequence and produce a final intent classification.
Respond only with a JSON object.`

type reasonerResponse struct {
	FinalIntent       string  `json:"final_intent"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
	RecommendedAction string  `json:"recommended_action"`
	SupportingSignals []struct {
		EventID     string  `json:"event_id"`
		SignalType  string  `json:"signal_type"`
		Relevance   float64 `json:"relevance_score"`
		Description string  `json:"description"`
	} `json:"supporting_signals"`
	Alternatives []struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
}

// Reason asks the backend for a final verdict given the event bundle, the
// reconciled cheap output, and the session context. Malformed supporting
// signals are skipped, not fatal; an unknown final intent maps to UNKNOWN.
func (c *Client) Reason(ctx context.Context, events []domain.BrowsingEvent, cheap *domain.ClassifierOutput, sess *domain.Session) (*domain.EscalationOutput, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt, err := buildPrompt(events, cheap, sess)
	if err != nil {
		return nil, err
	}

	content, err := c.client.CompleteJSON(ctx, []llmapi.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, 0.1, 1500)
	if err != nil {
		return nil, fmt.Errorf("reasoner call failed: %w", err)
	}

	var parsed reasonerResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse reasoner response: %w", err)
	}

	out := &domain.EscalationOutput{
		ModelID:           c.modelID,
		FinalIntent:       domain.ParseIntent(parsed.FinalIntent),
		Confidence:        parsed.Confidence,
		RecommendedAction: parsed.RecommendedAction,
		ReasoningTrace:    parsed.Reasoning,
	}

	for _, sig := range parsed.SupportingSignals {
		eventID, err := uuid.Parse(sig.EventID)
		if err != nil || sig.SignalType == "" {
			continue
		}
		out.SupportingSignals = append(out.SupportingSignals, domain.SupportingSignal{
			SourceEventID: eventID,
			SignalType:    sig.SignalType,
			Relevance:     sig.Relevance,
			Description:   sig.Description,
		})
	}

	for _, alt := range parsed.Alternatives {
		out.Alternatives = append(out.Alternatives, domain.AlternativeIntent{
			Intent:     domain.ParseIntent(alt.Intent),
			Confidence: alt.Confidence,
		})
	}

	out.Latency = time.Since(start)
	return out, nil
}

type promptEvent struct {
	EventID    string         `json:"event_id"`
	Type       string         `json:"type"`
	URLDomain  string         `json:"url_domain,omitempty"`
	Timestamp  string         `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

func buildPrompt(events []domain.BrowsingEvent, cheap *domain.ClassifierOutput, sess *domain.Session) (string, error) {
	if len(events) > reasonerEventWindow {
		events = events[len(events)-reasonerEventWindow:]
	}

	described := make([]promptEvent, 0, len(events))
	for _, event := range events {
		described = append(described, promptEvent{
			EventID:    event.EventID.String(),
			Type:       event.EventType,
			URLDomain:  hostOf(event.URL),
			Timestamp:  event.Timestamp.Format(time.RFC3339),
			Properties: event.Properties,
		})
	}

	serialized, err := json.MarshalIndent(described, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize events for prompt: %w", err)
	}

	return fmt.Sprintf(`CONTEXT:
Session ID: %s
Total Events in Session: %d
Session Value Score: %.2f
Risk Level: %s

INITIAL CLASSIFIER OUTPUT:
- Intent: %s
- Confidence: %.2f
- Model: %s

This decision was escalated because the cheap result was judged insufficiently trustworthy.

BROWSING EVENT SEQUENCE:
%s

YOUR TASK:
Classify the user's final intent (PURCHASE_INTENT, RESEARCH_INTENT, COMPARISON_INTENT, ENGAGEMENT_INTENT, NAVIGATION_INTENT, or UNKNOWN).
Be conservative with confidence when evidence is weak, cite supporting events by event_id, and list genuine alternatives.

Respond in JSON format:
{
  "final_intent": "<intent>",
  "confidence": <0.0-1.0>,
  "reasoning": "<multi-step reasoning>",
  "supporting_signals": [{"event_id": "<uuid>", "signal_type": "<label>", "relevance_score": <0.0-1.0>, "description": "<why>"}],
  "alternatives": [{"intent": "<intent>", "confidence": <0.0-1.0>}],
  "recommended_action": "<optional>"
}`,
		sess.SessionID, sess.EventCount, sess.ValueScore, sess.RiskLevel,
		cheap.Intent, cheap.Confidence, cheap.ModelID, serialized), nil
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
