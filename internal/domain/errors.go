package domain

import "errors"

// Failure taxonomy for one inference request. Individual classifier failures
// are recorded as failed runs and are not represented here.
var (
	// ErrEmptyEvents means the caller submitted no events. Caller error,
	// never a policy decision.
	ErrEmptyEvents = errors.New("events must not be empty")

	// ErrNoCheapClassifier means every cheap classifier failed, so no
	// decision could be produced. Surfaced as service-unavailable.
	ErrNoCheapClassifier = errors.New("no cheap classifier available")

	// ErrStorageUnavailable wraps a failed session read or decision write.
	// The inference fails as a whole; nothing is partially persisted.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
