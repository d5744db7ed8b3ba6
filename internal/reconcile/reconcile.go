// Package reconcile selects a single cheap-classifier output from the fanned
// out attempts, tolerating partial failure.
package reconcile

import "github.com/infergate/intent-router/internal/domain"

// PrimaryTrustThreshold is the confidence above which the designated primary
// classifier is preferred outright over higher-confidence contenders. The
// primary is deterministic on known patterns, so a confident primary answer
// is worth more than a marginally more confident generative one.
const PrimaryTrustThreshold = 0.8

// Attempt is the settled result of one classifier invocation. Output is nil
// when the classifier failed.
type Attempt struct {
	ClassifierID string
	Output       *domain.ClassifierOutput
	Err          error
}

// Choose picks the output to treat as "the" cheap result, or nil when every
// classifier failed. The selection is a pure function of the attempt set and
// is independent of arrival order:
//
//   - exactly one success: that output wins
//   - primary succeeded with confidence above PrimaryTrustThreshold: primary wins
//   - otherwise the highest confidence wins; confidence ties prefer the
//     primary, then the lexicographically smallest classifier id
func Choose(attempts []Attempt, primaryID string) *domain.ClassifierOutput {
	var candidates []Attempt
	for _, a := range attempts {
		if a.Err == nil && a.Output != nil {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0].Output
	}

	for _, c := range candidates {
		if c.ClassifierID == primaryID && c.Output.Confidence > PrimaryTrustThreshold {
			return c.Output
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best, primaryID) {
			best = c
		}
	}
	return best.Output
}

func better(a, b Attempt, primaryID string) bool {
	if a.Output.Confidence != b.Output.Confidence {
		return a.Output.Confidence > b.Output.Confidence
	}
	if (a.ClassifierID == primaryID) != (b.ClassifierID == primaryID) {
		return a.ClassifierID == primaryID
	}
	return a.ClassifierID < b.ClassifierID
}
