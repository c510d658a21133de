package ai

import "errors"

var (
	// ErrUnknownProvider is returned for a provider name other than openai or ollama.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrEmbeddingCount is returned when a service answers with a different
	// number of vectors than texts sent.
	ErrEmbeddingCount = errors.New("embedding count mismatch")

	// ErrDimensionMismatch is returned when a vector does not have the configured length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
