package ai

import (
	"context"
	"fmt"
)

// EmbedInBatches embeds texts through e, at most batchSize per request, and
// checks every vector against dims when dims is positive.
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, batchSize, dims int) ([][]float32, error) {
	if batchSize < 1 {
		batchSize = len(texts)
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := e.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", ErrEmbeddingCount, end-start, len(batch))
		}
		for _, v := range batch {
			if dims > 0 && len(v) != dims {
				return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, dims, len(v))
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
