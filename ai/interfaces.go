package ai

import "context"

// Embedder turns chunk text and search queries into vectors. A knowledge
// base must use one embedder for both, or similarity scores are meaningless.
// Ingestion units embed in parallel, so implementations must be safe for
// concurrent use.
type Embedder interface {
	// EmbedText embeds a search query.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds a batch of chunks; vectors come back in input order.
	// EmbedInBatches splits large inputs before calling it.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
