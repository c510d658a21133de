// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder satisfies ai.Embedder without an embedding server and returns
// deterministic vectors, so identical text always lands on the same vector.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("service down")
//	}
//	count := embedder.CallCount()
package mock
