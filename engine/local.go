package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/ai/ollama"
	"github.com/poiesic/kbase/ai/openai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/sqlite"
	"golang.org/x/time/rate"
)

// EmbedderFactory builds the embedder for a base.
type EmbedderFactory func(params core.EmbeddingParams) (ai.Embedder, error)

// NewEmbedder is the default EmbedderFactory. It maps the base's embedding
// parameters onto an ai.Config and picks the matching client.
func NewEmbedder(params core.EmbeddingParams) (ai.Embedder, error) {
	cfg := AIConfig(params)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderOllama:
		return ollama.NewEmbedder(cfg)
	default:
		return openai.NewEmbedder(cfg)
	}
}

// AIConfig converts embedding parameters to an ai.Config, keeping the
// defaults for unset fields.
func AIConfig(params core.EmbeddingParams) *ai.Config {
	opts := []ai.ConfigOption{ai.WithAPIKey(params.APIKey), ai.WithDimensions(params.Dimensions)}
	if params.Provider != "" {
		opts = append(opts, ai.WithProvider(params.Provider))
	}
	if params.Host != "" {
		opts = append(opts, ai.WithHost(params.Host))
	}
	if params.Model != "" {
		opts = append(opts, ai.WithModel(params.Model))
	}
	if params.BatchSize > 0 {
		opts = append(opts, ai.WithBatchSize(params.BatchSize))
	}
	return ai.NewConfig(opts...)
}

// Local stores each knowledge base in its own directory under a root,
// with a sqlite chunk index per base and a shared loader ledger.
type Local struct {
	root            string
	ledger          storage.LoaderLedger
	embedderFactory EmbedderFactory
	fetcher         *fetcher
	crawlLimiter    *rate.Limiter
	maxPages        int
	minSimilarity   float32
	logger          *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
}

var _ Engine = (*Local)(nil)

// Option configures a Local engine.
type Option func(*Local) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Local) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithEmbedderFactory replaces NewEmbedder.
func WithEmbedderFactory(factory EmbedderFactory) Option {
	return func(e *Local) error {
		if factory == nil {
			return fmt.Errorf("embedder factory cannot be nil")
		}
		e.embedderFactory = factory
		return nil
	}
}

// WithHTTPClient sets the client used for pages and sitemaps.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Local) error {
		if client == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		e.fetcher.client = client
		return nil
	}
}

// WithUserAgent sets the User-Agent header of outgoing requests.
func WithUserAgent(ua string) Option {
	return func(e *Local) error {
		e.fetcher.userAgent = ua
		return nil
	}
}

// WithRetry sets how often failed fetches are attempted and the base backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(e *Local) error {
		if attempts < 1 {
			return ErrInvalidMaxAttempts
		}
		e.fetcher.retryAttempts = attempts
		e.fetcher.retryDelay = baseDelay
		return nil
	}
}

// WithCrawlRate limits sitemap page fetches to rps requests per second.
// A non-positive rps disables the limit.
func WithCrawlRate(rps float64, burst int) Option {
	return func(e *Local) error {
		if burst < 1 {
			burst = 1
		}
		if rps <= 0 {
			e.crawlLimiter = rate.NewLimiter(rate.Inf, burst)
			return nil
		}
		e.crawlLimiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithMaxPages caps the pages crawled per sitemap. Zero means no cap.
func WithMaxPages(n int) Option {
	return func(e *Local) error {
		if n < 0 {
			n = 0
		}
		e.maxPages = n
		return nil
	}
}

// WithMinSimilarity drops query results scoring below score.
func WithMinSimilarity(score float32) Option {
	return func(e *Local) error {
		e.minSimilarity = score
		return nil
	}
}

// NewLocal creates an engine storing bases under root.
func NewLocal(root string, ledger storage.LoaderLedger, opts ...Option) (*Local, error) {
	if ledger == nil {
		return nil, ErrLedgerRequired
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	e := &Local{
		root:            root,
		ledger:          ledger,
		embedderFactory: NewEmbedder,
		fetcher: &fetcher{
			client:        &http.Client{Timeout: 30 * time.Second},
			userAgent:     "kbase/1.0",
			retryAttempts: 3,
			retryDelay:    500 * time.Millisecond,
		},
		crawlLimiter: rate.NewLimiter(rate.Limit(2), 1),
		maxPages:     500,
		logger:       slog.Default(),
		handles:      make(map[string]*handle),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "engine")

	return e, nil
}

// BaseDir returns the directory holding a base's files.
func (e *Local) BaseDir(baseID string) string {
	return filepath.Join(e.root, baseID)
}

// Open returns the cached handle for the base or opens it.
// The embedding settings of the first Open stay in effect until the base is
// deleted or the engine closed.
func (e *Local) Open(ctx context.Context, params core.BaseParams) (Handle, error) {
	if err := core.ValidateBaseParams(params); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if h, ok := e.handles[params.ID]; ok {
		return h, nil
	}

	embedder, err := e.embedderFactory(params.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder for %s: %w", params.ID, err)
	}

	index, err := sqlite.Open(e.BaseDir(params.ID))
	if err != nil {
		return nil, err
	}

	h := &handle{
		engine:   e,
		baseID:   params.ID,
		index:    index,
		embedder: embedder,
		embed:    AIConfig(params.Embedding),
		logger:   e.logger.With("base", params.ID),
	}
	e.handles[params.ID] = h
	e.logger.Debug("opened knowledge base", "base", params.ID, "dir", e.BaseDir(params.ID))
	return h, nil
}

// Delete closes the base, removes its directory and its ledger records.
// Deleting a base that does not exist is not an error.
func (e *Local) Delete(ctx context.Context, baseID string) error {
	if err := core.ValidateBaseID(baseID); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if h, ok := e.handles[baseID]; ok {
		if err := h.index.Close(); err != nil {
			e.logger.Warn("error closing index", "base", baseID, "err", err)
		}
		delete(e.handles, baseID)
	}

	if err := os.RemoveAll(e.BaseDir(baseID)); err != nil {
		return fmt.Errorf("remove %s: %w", baseID, err)
	}
	removed, err := e.ledger.DeleteBase(ctx, baseID)
	if err != nil {
		return fmt.Errorf("purge ledger for %s: %w", baseID, err)
	}
	e.logger.Info("deleted knowledge base", "base", baseID, "loaders", removed)
	return nil
}

// Close closes every open index. The ledger is owned by the caller.
func (e *Local) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for id, h := range e.handles {
		if err := h.index.Close(); err != nil {
			e.logger.Error("error closing index", "base", id, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	e.handles = nil
	return firstErr
}
