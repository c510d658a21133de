// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the embedding services used by kbase.
//
// The package defines the Embedder interface and its Config. Knowledge bases
// pick their own embedding model, so an Embedder is built per base from that
// base's settings rather than once per process.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (OpenAI, LocalAI, vLLM, Ollama's /v1)
//   - ai/ollama: the native Ollama API
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewEmbedder, ollama.NewEmbedder) return the
// ai.Embedder interface. The mock constructor returns its concrete type so
// tests can inject behavior and read call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"), ai.WithModel("embeddinggemma"))
//	embedder, err := openai.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := ai.EmbedInBatches(ctx, embedder, texts, cfg.BatchSize, cfg.Dimensions)
package ai
