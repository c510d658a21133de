package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// localToken is sent to servers that ignore authentication. langchaingo
// refuses to build a client without a token.
const localToken = "none"

// Embedder embeds knowledge base chunks through an OpenAI-compatible
// /embeddings endpoint.
type Embedder struct {
	model  embeddings.Embedder
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder validates cfg and creates an embedder for it.
func NewEmbedder(cfg *ai.Config) (ai.Embedder, error) {
	cfg.Provider = ai.ProviderOpenAI
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token := cfg.APIKey
	if token == "" {
		token = localToken
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	model, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}

	return &Embedder{
		model:  model,
		logger: slog.Default().With("component", "openai-embedder", "model", cfg.Model),
	}, nil
}

// EmbedText embeds a search query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("query embedding failed", "text_len", len(text), "error", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

// EmbedTexts embeds chunks. A response with a different number of vectors
// than texts is rejected.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", ai.ErrEmbeddingCount, len(texts), len(vectors))
	}
	e.logger.Debug("embedded chunks", "count", len(texts), "duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}
