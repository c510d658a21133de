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


// Package kbase manages local knowledge bases: it ingests files,
// directories, web pages, sitemaps and notes under a shared admission
// budget and answers similarity searches without ever failing the caller.
package kbase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/engine"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/notify"
	"github.com/poiesic/kbase/search"
	"github.com/poiesic/kbase/storage/badger"
)

// LedgerDirName is the badger directory below the storage root that holds
// the loader ledger. Base ids cannot start with a dot, so it never
// collides with a base.
const LedgerDirName = ".ledger"

var (
	// ErrInvalidConfig is returned for configurations that fail validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrServiceClosed is returned after Close.
	ErrServiceClosed = errors.New("service is closed")
)

// Service schedules ingestion into, and searches over, the knowledge bases
// stored below one storage root.
type Service struct {
	cfg        *Config
	backend    *badger.Backend
	ledger     *badger.Ledger
	engine     engine.Engine
	ownsEngine bool
	locks      *ingestion.BaseLocks
	queue      *ingestion.Queue
	builder    *ingestion.Builder
	searcher   *search.Searcher
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	engine          engine.Engine
	embedderFactory engine.EmbedderFactory
	notifier        notify.Notifier
	observer        func(ingestion.Stats)
	logger          *slog.Logger
}

// WithEngine replaces the local engine. The caller keeps ownership and
// closes it after the service.
func WithEngine(e engine.Engine) ServiceOption {
	return func(o *serviceOptions) {
		o.engine = e
	}
}

// WithEmbedderFactory sets how the local engine builds embedders.
func WithEmbedderFactory(f engine.EmbedderFactory) ServiceOption {
	return func(o *serviceOptions) {
		o.embedderFactory = f
	}
}

// WithNotifier sets where progress and search error events go.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(o *serviceOptions) {
		o.notifier = n
	}
}

// WithQueueObserver receives queue statistics after every admission and completion.
func WithQueueObserver(fn func(ingestion.Stats)) ServiceOption {
	return func(o *serviceOptions) {
		o.observer = fn
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService opens the ledger below cfg.StorageRoot and wires the engine,
// queue, builder and searcher together. A nil cfg means DefaultConfig().
func NewService(cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{
		notifier: notify.Noop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	options.notifier = notify.OrNoop(options.notifier)

	backend, err := badger.OpenBackend(filepath.Join(cfg.StorageRoot, LedgerDirName), false)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	ledger, err := badger.NewLedger(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		backend: backend,
		ledger:  ledger,
		engine:  options.engine,
		locks:   ingestion.NewBaseLocks(),
		logger:  options.logger.With("component", "kbase"),
	}

	if s.engine == nil {
		local, err := s.newLocalEngine(options)
		if err != nil {
			s.closeStorage()
			return nil, err
		}
		s.engine = local
		s.ownsEngine = true
	}

	queueOpts := []ingestion.Option{
		ingestion.WithMaxWorkload(cfg.Queue.MaxWorkloadBytes),
		ingestion.WithMaxProcessingUnits(cfg.Queue.MaxProcessingUnits),
		ingestion.WithLogger(options.logger),
	}
	if options.observer != nil {
		queueOpts = append(queueOpts, ingestion.WithObserver(options.observer))
	}
	if s.queue, err = ingestion.NewQueue(queueOpts...); err != nil {
		s.closeEngine()
		s.closeStorage()
		return nil, err
	}

	s.builder, err = ingestion.NewBuilder(s.engine, s.locks,
		ingestion.WithNotifier(options.notifier),
		ingestion.WithBuilderLogger(options.logger))
	if err != nil {
		s.queue.Release()
		s.closeEngine()
		s.closeStorage()
		return nil, err
	}

	s.searcher, err = search.NewSearcher(s.engine, cfg.StorageRoot,
		search.WithNotifier(options.notifier),
		search.WithLogger(options.logger),
		search.WithOpenTimeout(duration(cfg.Search.OpenTimeout, search.DefaultOpenTimeout)),
		search.WithQueryTimeout(duration(cfg.Search.QueryTimeout, search.DefaultQueryTimeout)),
		search.WithMinIndexBytes(cfg.Search.MinIndexBytes),
		search.WithLimit(cfg.Search.Limit))
	if err != nil {
		s.queue.Release()
		s.closeEngine()
		s.closeStorage()
		return nil, err
	}

	return s, nil
}

func (s *Service) newLocalEngine(options *serviceOptions) (*engine.Local, error) {
	crawl := s.cfg.Crawl
	engineOpts := []engine.Option{
		engine.WithLogger(options.logger),
		engine.WithHTTPClient(&http.Client{Timeout: duration(crawl.RequestTimeout, 0)}),
		engine.WithUserAgent(crawl.UserAgent),
		engine.WithRetry(crawl.RetryAttempts, duration(crawl.RetryDelay, 0)),
		engine.WithCrawlRate(crawl.RequestsPerSecond, crawl.Burst),
		engine.WithMaxPages(crawl.MaxPages),
		engine.WithMinSimilarity(s.cfg.Search.MinSimilarity),
	}
	if options.embedderFactory != nil {
		engineOpts = append(engineOpts, engine.WithEmbedderFactory(options.embedderFactory))
	}
	return engine.NewLocal(s.cfg.StorageRoot, s.ledger, engineOpts...)
}

// closeEngine closes the engine if the service created it.
func (s *Service) closeEngine() {
	if s.ownsEngine {
		s.engine.Close()
	}
}

func (s *Service) closeStorage() {
	s.ledger.Close()
	s.backend.Close()
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.cfg
}

func (s *Service) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// Create creates the base, or opens it if it already exists.
func (s *Service) Create(ctx context.Context, params core.BaseParams) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := core.ValidateBaseParams(params); err != nil {
		return err
	}

	unlock := s.locks.RLock(params.ID)
	defer unlock()

	if _, err := s.engine.Open(ctx, params); err != nil {
		return fmt.Errorf("create %s: %w", params.ID, err)
	}
	s.logger.Info("knowledge base ready", "base", params.ID)
	return nil
}

// Reset removes every chunk and loader record of the base. It waits for
// running ingestion units on the base and blocks new ones while it runs.
func (s *Service) Reset(ctx context.Context, params core.BaseParams) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := core.ValidateBaseParams(params); err != nil {
		return err
	}

	unlock := s.locks.Lock(params.ID)
	defer unlock()

	h, err := s.engine.Open(ctx, params)
	if err != nil {
		return fmt.Errorf("reset %s: %w", params.ID, err)
	}
	return h.Reset(ctx)
}

// Delete removes the base and its directory, with the same exclusion as Reset.
func (s *Service) Delete(ctx context.Context, baseID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := core.ValidateBaseID(baseID); err != nil {
		return err
	}

	unlock := s.locks.Lock(baseID)
	defer unlock()

	return s.engine.Delete(ctx, baseID)
}

// AddAsync schedules d for ingestion and returns without waiting. It fails
// only for an invalid descriptor or invalid params.
func (s *Service) AddAsync(params core.BaseParams, d core.ContentDescriptor, forceReload bool) (*ingestion.Pending, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	group, err := s.builder.Build(d, params, forceReload)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("scheduling ingestion", "base", params.ID, "kind", d.Kind, "group", group.ID(), "units", group.Len())
	return s.queue.Submit(group), nil
}

// Add schedules d and waits for its outcome. Units that fail are left out
// of the outcome rather than reported as errors; the error is non-nil only
// for invalid input, a closed service or ctx ending first.
func (s *Service) Add(ctx context.Context, params core.BaseParams, d core.ContentDescriptor, forceReload bool) (core.IngestionOutcome, error) {
	pending, err := s.AddAsync(params, d, forceReload)
	if err != nil {
		return core.IngestionOutcome{}, err
	}
	return pending.Wait(ctx)
}

// Remove deletes the given loaders from the base and reports how many were
// removed. Failures are logged and skipped.
func (s *Service) Remove(ctx context.Context, params core.BaseParams, uniqueIDs ...string) int {
	if err := s.checkOpen(); err != nil {
		s.logger.Error("remove on closed service", "base", params.ID)
		return 0
	}

	unlock := s.locks.RLock(params.ID)
	defer unlock()

	h, err := s.engine.Open(ctx, params)
	if err != nil {
		s.logger.Error("failed to open knowledge base", "base", params.ID, "err", err)
		return 0
	}

	removed := 0
	for _, id := range uniqueIDs {
		if err := h.DeleteByUniqueID(ctx, id); err != nil {
			s.logger.Error("failed to remove loader", "base", params.ID, "unique_id", id, "err", err)
			continue
		}
		removed++
	}
	return removed
}

// Search returns the chunks most similar to query. It never fails; problems
// are reported through the notifier and yield an empty result.
func (s *Service) Search(ctx context.Context, params core.BaseParams, query string) []core.Chunk {
	return s.SearchWithMonitor(ctx, params, query, nil)
}

// SearchWithMonitor is Search with a monitor receiving each stage.
func (s *Service) SearchWithMonitor(ctx context.Context, params core.BaseParams, query string, monitor search.SearchMonitor) []core.Chunk {
	if err := s.checkOpen(); err != nil {
		s.logger.Error("search on closed service", "base", params.ID)
		return []core.Chunk{}
	}

	unlock := s.locks.RLock(params.ID)
	defer unlock()

	return s.searcher.SearchWithMonitor(ctx, params, query, monitor)
}

// Loaders lists the sources recorded for a base.
func (s *Service) Loaders(ctx context.Context, baseID string) ([]*core.LoaderRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := core.ValidateBaseID(baseID); err != nil {
		return nil, err
	}
	return s.ledger.ListLoaders(ctx, baseID)
}

// Stats returns the ingestion queue's counters.
func (s *Service) Stats() ingestion.Stats {
	return s.queue.Stats()
}

// Close stops the queue, abandoning queued work, then closes the engine and
// the ledger. An engine passed with WithEngine is left open.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.queue.Release()

	var firstErr error
	if s.ownsEngine {
		if err := s.engine.Close(); err != nil {
			s.logger.Error("error closing engine", "err", err)
			firstErr = err
		}
	}
	if err := s.ledger.Close(); err != nil {
		s.logger.Error("error closing ledger", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
