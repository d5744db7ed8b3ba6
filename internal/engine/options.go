package engine

import (
	"fmt"
	"log/slog"
)

// Option configures an Engine at construction time.
type Option func(*Engine) error

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithPrimaryClassifier designates which classifier the reconciler trusts
// outright above the trust threshold. Defaults to the first configured
// classifier.
func WithPrimaryClassifier(modelID string) Option {
	return func(e *Engine) error {
		for _, c := range e.classifiers {
			if c.ModelID() == modelID {
				e.primaryID = modelID
				return nil
			}
		}
		return fmt.Errorf("primary classifier %q not among configured classifiers", modelID)
	}
}
