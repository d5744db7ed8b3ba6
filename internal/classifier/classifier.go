// Package classifier contains the cheap-classifier backend clients: a
// deterministic NLU service and an OpenAI-compatible small language model.
// Both fail fast on their own timeout rather than hang the fan-out.
package classifier

import (
	"context"

	"github.com/infergate/intent-router/internal/domain"
)

// Classifier is the capability consumed by the engine: classify a bounded
// event sequence into an intent with a confidence.
type Classifier interface {
	// ModelID identifies this classifier in decisions and audit runs.
	ModelID() string
	Classify(ctx context.Context, events []domain.BrowsingEvent) (*domain.ClassifierOutput, error)
}
