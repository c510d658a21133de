// Package ollama provides an ai.Embedder backed by the native Ollama API.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Embedder implements ai.Embedder using an Ollama server.
type Embedder struct {
	model  embeddings.Embedder
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder for cfg. The provider field is forced to
// ollama before validation.
func NewEmbedder(cfg *ai.Config) (ai.Embedder, error) {
	cfg.Provider = ai.ProviderOllama
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.Host),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	model, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	return &Embedder{
		model:  model,
		logger: slog.Default().With("component", "ollama-embedder", "model", cfg.Model),
	}, nil
}

// EmbedText generates an embedding vector for text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("embedding failed", "text_len", len(text), "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vector, nil
}

// EmbedTexts generates embeddings for multiple texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	e.logger.Debug("embedded batch", "count", len(texts), "duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}
