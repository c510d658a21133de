package ingestion

import "errors"

var (
	// ErrQueueClosed is returned by Pending.Wait when the queue was released
	// before the group completed.
	ErrQueueClosed = errors.New("ingestion queue is closed")

	// ErrEngineRequired is returned when a Builder has no engine.
	ErrEngineRequired = errors.New("engine required")

	// ErrInvalidLimit is returned for non-positive queue limits.
	ErrInvalidLimit = errors.New("queue limits must be positive")
)
