package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/kbase/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// fakeServer answers /v1/embeddings with one vector per input, or with
// vectors vectors when vectors is positive.
func fakeServer(t *testing.T, vectors int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/embeddings"), r.URL.Path)

		var req embeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "test-embed", req.Model)

		n := len(req.Input)
		if vectors > 0 {
			n = vectors
		}
		data := make([]embeddingData, n)
		for i := range data {
			data[i] = embeddingData{Object: "embedding", Embedding: []float32{float32(i), 1, 0}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewEmbedder(t *testing.T) {
	t.Run("forces the openai provider", func(t *testing.T) {
		cfg := ai.NewConfig(ai.WithProvider(ai.ProviderOllama), ai.WithHost("http://localhost:11434"), ai.WithModel("m"))
		e, err := NewEmbedder(cfg)
		require.NoError(t, err)
		assert.NotNil(t, e)
		assert.Equal(t, ai.ProviderOpenAI, cfg.Provider)
		assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewEmbedder(ai.NewConfig(ai.WithModel("")))
		assert.Error(t, err)
	})
}

func TestEmbedder(t *testing.T) {
	var requests atomic.Int32
	server := fakeServer(t, 0, &requests)

	e, err := NewEmbedder(ai.NewConfig(ai.WithHost(server.URL), ai.WithModel("test-embed")))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("query", func(t *testing.T) {
		vector, err := e.EmbedText(ctx, "what is a fox")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 0}, vector)
	})

	t.Run("chunks keep input order", func(t *testing.T) {
		vectors, err := e.EmbedTexts(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		for i, v := range vectors {
			assert.Equal(t, float32(i), v[0])
		}
	})

	t.Run("no texts skips the request", func(t *testing.T) {
		before := requests.Load()
		vectors, err := e.EmbedTexts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Equal(t, before, requests.Load())
	})
}

func TestEmbedder_ShortResponse(t *testing.T) {
	var requests atomic.Int32
	server := fakeServer(t, 1, &requests)

	e, err := NewEmbedder(ai.NewConfig(ai.WithHost(server.URL), ai.WithModel("test-embed")))
	require.NoError(t, err)

	_, err = e.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}
