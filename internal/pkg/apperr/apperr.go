package apperr

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrJobAlreadyInProgress rejects enqueue when the activity already has a
	// job in a non-terminal state.
	ErrJobAlreadyInProgress = errors.New("a job is already in progress for this activity")
	// ErrQueueUnavailable wraps queue backend connection failures at enqueue time.
	ErrQueueUnavailable = errors.New("job queue unavailable")
	// ErrNoTrainingData rejects classifier training when no tagged documents exist.
	ErrNoTrainingData = errors.New("no tagged documents to train on")
	// ErrUnknownLabel signals a label outside the activity's tag vocabulary.
	// Encoding such a label is a programming error, never silently dropped.
	ErrUnknownLabel = errors.New("label not in tag vocabulary")
	// ErrStorage wraps artifact store failures.
	ErrStorage = errors.New("object storage error")
)
