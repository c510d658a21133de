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


package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Embedding providers understood by Config.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds configuration for an embedding service.
type Config struct {
	// Provider selects the client: "openai" for any OpenAI-compatible API,
	// "ollama" for the native Ollama API.
	Provider string

	// Host is the base URL of the embedding service.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	Host string

	// Model is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small", "nomic-embed-text"
	Model string

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string

	// Dimensions is the expected vector length. Zero accepts any length.
	Dimensions int

	// BatchSize caps the number of texts sent in one embedding request.
	// Default: 32
	BatchSize int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the embedding provider.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimensions sets the expected embedding length.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithBatchSize sets the maximum texts per embedding request.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible service.
func DefaultConfig() *Config {
	return &Config{
		Provider:  ProviderOpenAI,
		Host:      "http://localhost:11434/v1",
		Model:     "embeddinggemma",
		BatchSize: 32,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithProvider(ProviderOllama),
//	    WithHost("http://localhost:11434"),
//	    WithModel("nomic-embed-text"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get a /v1 suffix; Ollama hosts lose it, since the
// native API lives at the server root.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Host == "" {
		return
	}
	host := strings.TrimSuffix(c.Host, "/")
	switch c.Provider {
	case ProviderOpenAI:
		if !strings.HasSuffix(host, "/v1") {
			host += "/v1"
		}
	case ProviderOllama:
		host = strings.TrimSuffix(host, "/v1")
	}
	c.Host = host
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Provider != ProviderOpenAI && c.Provider != ProviderOllama {
		return fmt.Errorf("ai config: %w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.Dimensions < 0 {
		return errors.New("ai config: Dimensions cannot be negative")
	}
	if c.BatchSize < 1 {
		return errors.New("ai config: BatchSize must be at least 1")
	}
	return nil
}
