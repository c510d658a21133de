package kbase

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/engine"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/search"
)

// Config is the service configuration, usually read from a TOML file.
// Durations are strings in time.ParseDuration syntax.
type Config struct {
	StorageRoot string          `toml:"storage_root"` // one directory per knowledge base
	Queue       QueueConfig     `toml:"queue"`
	Search      SearchConfig    `toml:"search"`
	Crawl       CrawlConfig     `toml:"crawl"`
	Embedding   EmbeddingConfig `toml:"embedding"` // defaults for bases created from the CLI
	Chunking    ChunkingConfig  `toml:"chunking"`
}

type QueueConfig struct {
	MaxWorkloadBytes   uint64 `toml:"max_workload_bytes"`
	MaxProcessingUnits int    `toml:"max_processing_units"`
}

type SearchConfig struct {
	OpenTimeout   string  `toml:"open_timeout"`
	QueryTimeout  string  `toml:"query_timeout"`
	MinIndexBytes int64   `toml:"min_index_bytes"`
	Limit         int     `toml:"limit"`
	MinSimilarity float32 `toml:"min_similarity"`
}

type CrawlConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"` // 0 disables the limit
	Burst             int     `toml:"burst"`
	MaxPages          int     `toml:"max_pages"` // per sitemap, 0 for no cap
	UserAgent         string  `toml:"user_agent"`
	RequestTimeout    string  `toml:"request_timeout"`
	RetryAttempts     int     `toml:"retry_attempts"`
	RetryDelay        string  `toml:"retry_delay"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // "openai" or "ollama"
	Host       string `toml:"host"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	Dimensions int    `toml:"dimensions"`
	BatchSize  int    `toml:"batch_size"`
}

type ChunkingConfig struct {
	Size    int `toml:"size"`
	Overlap int `toml:"overlap"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	root := filepath.Join(".", "kbase-data")
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".kbase")
	}
	aiDefaults := ai.DefaultConfig()

	return &Config{
		StorageRoot: root,
		Queue: QueueConfig{
			MaxWorkloadBytes:   ingestion.DefaultMaxWorkload,
			MaxProcessingUnits: ingestion.DefaultMaxProcessingUnits,
		},
		Search: SearchConfig{
			OpenTimeout:   search.DefaultOpenTimeout.String(),
			QueryTimeout:  search.DefaultQueryTimeout.String(),
			MinIndexBytes: search.DefaultMinIndexBytes,
			Limit:         search.DefaultLimit,
		},
		Crawl: CrawlConfig{
			RequestsPerSecond: 2,
			Burst:             1,
			MaxPages:          500,
			UserAgent:         "kbase/1.0",
			RequestTimeout:    "30s",
			RetryAttempts:     3,
			RetryDelay:        "500ms",
		},
		Embedding: EmbeddingConfig{
			Provider:  aiDefaults.Provider,
			Host:      aiDefaults.Host,
			Model:     aiDefaults.Model,
			BatchSize: aiDefaults.BatchSize,
		},
		Chunking: ChunkingConfig{
			Size:    engine.DefaultChunkSize,
			Overlap: engine.DefaultChunkOverlap,
		},
	}
}

// LoadConfig reads the TOML files in order over the defaults, later files
// overriding earlier ones, then applies KBASE_* environment overrides.
// Empty paths are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KBASE_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	if v := os.Getenv("KBASE_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("KBASE_EMBEDDING_HOST"); v != "" {
		cfg.Embedding.Host = v
	}
	if v := os.Getenv("KBASE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("KBASE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("KBASE_MAX_PROCESSING_UNITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxProcessingUnits = n
		}
	}
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks limits and that every duration parses.
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("%w: storage_root is empty", ErrInvalidConfig)
	}
	if c.Queue.MaxWorkloadBytes == 0 || c.Queue.MaxProcessingUnits < 1 {
		return fmt.Errorf("%w: queue limits must be positive", ErrInvalidConfig)
	}
	if c.Search.Limit < 1 {
		return fmt.Errorf("%w: search.limit must be positive", ErrInvalidConfig)
	}
	if c.Crawl.RetryAttempts < 1 {
		return fmt.Errorf("%w: crawl.retry_attempts must be positive", ErrInvalidConfig)
	}
	for name, value := range map[string]string{
		"search.open_timeout":   c.Search.OpenTimeout,
		"search.query_timeout":  c.Search.QueryTimeout,
		"crawl.request_timeout": c.Crawl.RequestTimeout,
		"crawl.retry_delay":     c.Crawl.RetryDelay,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
		if d <= 0 && name != "crawl.retry_delay" {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if err := core.ValidateBaseParams(c.BaseParams("default")); err != nil {
		return fmt.Errorf("%w: chunking: %w", ErrInvalidConfig, err)
	}
	return nil
}

// BaseParams returns parameters for a base using the configured embedding
// and chunking defaults.
func (c *Config) BaseParams(id string) core.BaseParams {
	return core.BaseParams{
		ID: id,
		Embedding: core.EmbeddingParams{
			Provider:   c.Embedding.Provider,
			Host:       c.Embedding.Host,
			Model:      c.Embedding.Model,
			APIKey:     c.Embedding.APIKey,
			Dimensions: c.Embedding.Dimensions,
			BatchSize:  c.Embedding.BatchSize,
		},
		ChunkSize:    c.Chunking.Size,
		ChunkOverlap: c.Chunking.Overlap,
	}
}

// duration parses a validated duration string, falling back when empty.
func duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
