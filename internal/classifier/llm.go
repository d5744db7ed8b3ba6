package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/infergate/intent-router/internal/domain"
	"github.com/infergate/intent-router/internal/llmapi"
)

// DefaultLLMTimeout bounds the small-model classifier. Slower than the NLU
// service, still firmly in cheap territory.
const DefaultLLMTimeout = 3 * time.Second

const llmSystemPrompt = `You are an intent classification system for browsing behavior.
Classify the user's intent from the event sequence. Respond only with a JSON object of the form:
{"intent": "<PURCHASE_INTENT|RESEARCH_INTENT|COMPARISON_INTENT|ENGAGEMENT_INTENT|NAVIGATION_INTENT|UNKNOWN>",
 "confidence": <0.0-1.0>,
 "alternatives": [{"intent": "<intent>", "confidence": <0.0-1.0>}],
 "reasoning": "<one short sentence>"}`

// llmEventWindow bounds how many trailing events go into the prompt.
const llmEventWindow = 20

// LLMClassifier classifies with a small language model behind an
// OpenAI-compatible API.
type LLMClassifier struct {
	modelID string
	client  *llmapi.Client
	timeout time.Duration
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLM creates a small-model classifier on top of a chat client. The
// timeout bounds each Classify call regardless of how the chat client is
// configured; a non-positive value falls back to DefaultLLMTimeout.
func NewLLM(modelID string, client *llmapi.Client, timeout time.Duration) *LLMClassifier {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLMClassifier{modelID: modelID, client: client, timeout: timeout}
}

func (c *LLMClassifier) ModelID() string { return c.modelID }

type llmClassification struct {
	Intent       string  `json:"intent"`
	Confidence   float64 `json:"confidence"`
	Alternatives []struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
	Reasoning string `json:"reasoning"`
}

// Classify prompts the model with a structured event window and parses its
// JSON verdict. Intent strings outside the taxonomy map to UNKNOWN.
func (c *LLMClassifier) Classify(ctx context.Context, events []domain.BrowsingEvent) (*domain.ClassifierOutput, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt, err := buildLLMPrompt(events)
	if err != nil {
		return nil, err
	}

	content, err := c.client.CompleteJSON(ctx, []llmapi.Message{
		{Role: "system", Content: llmSystemPrompt},
		{Role: "user", Content: prompt},
	}, 0.0, 200)
	if err != nil {
		return nil, fmt.Errorf("llm classification failed: %w", err)
	}

	var parsed llmClassification
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse llm classification: %w", err)
	}

	var alternatives []domain.AlternativeIntent
	for _, alt := range parsed.Alternatives {
		if len(alternatives) == maxAlternatives {
			break
		}
		alternatives = append(alternatives, domain.AlternativeIntent{
			Intent:     domain.ParseIntent(alt.Intent),
			Confidence: alt.Confidence,
		})
	}

	return &domain.ClassifierOutput{
		ModelID:      c.modelID,
		Intent:       domain.ParseIntent(parsed.Intent),
		Confidence:   clampUnit(parsed.Confidence),
		Alternatives: alternatives,
		Latency:      time.Since(start),
		Metadata: map[string]any{
			"reasoning":     parsed.Reasoning,
			"backend_model": c.client.Model(),
			"prompt_tokens": llmapi.CountTokens(llmSystemPrompt + prompt),
		},
	}, nil
}

type llmEvent struct {
	Step       int            `json:"step"`
	Type       string         `json:"type"`
	URLDomain  string         `json:"url_domain,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func buildLLMPrompt(events []domain.BrowsingEvent) (string, error) {
	if len(events) > llmEventWindow {
		events = events[len(events)-llmEventWindow:]
	}

	described := make([]llmEvent, 0, len(events))
	for i, event := range events {
		described = append(described, llmEvent{
			Step:       i + 1,
			Type:       event.EventType,
			URLDomain:  urlHost(event.URL),
			Properties: event.Properties,
		})
	}

	serialized, err := json.MarshalIndent(described, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize events for prompt: %w", err)
	}

	return "Analyze this browsing behavior sequence and classify the user's intent.\n\nBrowsing Events:\n" + string(serialized), nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
