package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/infergate/intent-router/internal/domain"
)

// DefaultNLUTimeout keeps the deterministic classifier from ever blocking
// the fan-out for more than a moment.
const DefaultNLUTimeout = 2 * time.Second

// maxAlternatives bounds how many ranked contenders are carried into the
// classifier output.
const maxAlternatives = 3

// NLUClassifier calls a deterministic NLU service (Rasa-style parse API).
// It provides stable, controllable predictions for known event patterns.
type NLUClassifier struct {
	modelID  string
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

var _ Classifier = (*NLUClassifier)(nil)

// NewNLU creates an NLU classifier client. A non-positive timeout falls back
// to DefaultNLUTimeout.
func NewNLU(modelID, endpoint string, timeout time.Duration) *NLUClassifier {
	if timeout <= 0 {
		timeout = DefaultNLUTimeout
	}
	return &NLUClassifier{
		modelID:  modelID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

func (c *NLUClassifier) ModelID() string { return c.modelID }

type nluParseRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

type nluRanked struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type nluParseResponse struct {
	Intent        nluRanked        `json:"intent"`
	IntentRanking []nluRanked      `json:"intent_ranking"`
	Entities      []map[string]any `json:"entities"`
}

// Classify summarizes the events and asks the NLU service to parse them.
func (c *NLUClassifier) Classify(ctx context.Context, events []domain.BrowsingEvent) (*domain.ClassifierOutput, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messageID := "unknown"
	if len(events) > 0 {
		messageID = events[0].SessionID
	}

	body, err := json.Marshal(nluParseRequest{
		Text:      SummarizeEvents(events),
		MessageID: messageID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/model/parse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nlu request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nlu returned status %d: %s", resp.StatusCode, snippet)
	}

	var parsed nluParseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode nlu response: %w", err)
	}

	// The first ranking entry repeats the chosen intent; contenders start at 1.
	var alternatives []domain.AlternativeIntent
	for i, alt := range parsed.IntentRanking {
		if i == 0 {
			continue
		}
		if len(alternatives) == maxAlternatives {
			break
		}
		alternatives = append(alternatives, domain.AlternativeIntent{
			Intent:     domain.ParseIntent(alt.Name),
			Confidence: alt.Confidence,
		})
	}

	return &domain.ClassifierOutput{
		ModelID:      c.modelID,
		Intent:       domain.ParseIntent(parsed.Intent.Name),
		Confidence:   parsed.Intent.Confidence,
		Alternatives: alternatives,
		Latency:      time.Since(start),
		Metadata: map[string]any{
			"nlu_intent_name": parsed.Intent.Name,
			"entity_count":    len(parsed.Entities),
		},
	}, nil
}
