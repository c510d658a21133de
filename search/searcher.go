package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/engine"
	"github.com/poiesic/kbase/notify"
	"github.com/poiesic/kbase/storage/sqlite"
)

// Defaults for a Searcher.
const (
	DefaultOpenTimeout   = 20 * time.Second
	DefaultQueryTimeout  = 40 * time.Second
	DefaultMinIndexBytes = 4096 // one SQLite page
	DefaultLimit         = 10

	verbatimBoost = 0.3
)

// Searcher queries knowledge bases through an engine and absorbs every
// failure into an empty result plus an error event.
type Searcher struct {
	engine        engine.Engine
	root          string
	notifier      notify.Notifier
	openTimeout   time.Duration
	queryTimeout  time.Duration
	minIndexBytes int64
	limit         int
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithNotifier sets where error events go.
// Default discards them.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Searcher) error {
		s.notifier = notify.OrNoop(n)
		return nil
	}
}

// WithOpenTimeout bounds how long opening a base may take.
func WithOpenTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		if d <= 0 {
			return fmt.Errorf("open timeout must be positive, got %s", d)
		}
		s.openTimeout = d
		return nil
	}
}

// WithQueryTimeout bounds how long the similarity query may take.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		if d <= 0 {
			return fmt.Errorf("query timeout must be positive, got %s", d)
		}
		s.queryTimeout = d
		return nil
	}
}

// WithMinIndexBytes sets the size an index file must exceed to be searched.
// The check only catches missing or truncated files: a freshly created
// index already holds its schema pages and passes, so searching a base
// with nothing ingested returns an empty result without an error event.
func WithMinIndexBytes(n int64) Option {
	return func(s *Searcher) error {
		s.minIndexBytes = n
		return nil
	}
}

// WithLimit sets how many chunks a search returns.
func WithLimit(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("limit must be positive, got %d", n)
		}
		s.limit = n
		return nil
	}
}

// NewSearcher creates a searcher over bases stored below storageRoot.
func NewSearcher(eng engine.Engine, storageRoot string, opts ...Option) (*Searcher, error) {
	if eng == nil {
		return nil, ErrEngineRequired
	}

	s := &Searcher{
		engine:        eng,
		root:          storageRoot,
		notifier:      notify.Noop{},
		openTimeout:   DefaultOpenTimeout,
		queryTimeout:  DefaultQueryTimeout,
		minIndexBytes: DefaultMinIndexBytes,
		limit:         DefaultLimit,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Search returns the chunks of the base most similar to query. It never
// fails: on any error the result is empty and one error event is sent.
func (s *Searcher) Search(ctx context.Context, params core.BaseParams, query string) []core.Chunk {
	return s.SearchWithMonitor(ctx, params, query, nil)
}

// SearchWithMonitor is Search with a monitor receiving each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, params core.BaseParams, query string, monitor SearchMonitor) []core.Chunk {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(params.ID, query)

	results, err := s.search(ctx, params, query, monitor)
	if err != nil {
		monitor.Failed(err)
		s.report(params.ID, err)
		return []core.Chunk{}
	}
	monitor.Finish(results)
	return results
}

func (s *Searcher) search(ctx context.Context, params core.BaseParams, query string, monitor SearchMonitor) ([]core.Chunk, error) {
	if err := core.ValidateBaseID(params.ID); err != nil {
		return nil, err
	}

	// 1. Index pre-check, without touching the engine
	path := filepath.Join(s.root, params.ID, sqlite.IndexFileName)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	if info.Size() <= s.minIndexBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrIndexUnavailable, path, info.Size())
	}
	monitor.IndexChecked(path, info.Size())

	// 2. Open the base
	start := time.Now()
	handle, err := boundedWait(ctx, s.openTimeout, func(ctx context.Context) (engine.Handle, error) {
		return s.engine.Open(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", params.ID, err)
	}
	monitor.EngineOpened(time.Since(start))

	// 3. Query, fetching extra candidates for the rerank
	start = time.Now()
	hits, err := boundedWait(ctx, s.queryTimeout, func(ctx context.Context) ([]core.Chunk, error) {
		return handle.Query(ctx, query, s.limit*2)
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", params.ID, err)
	}
	monitor.Queried(hits, time.Since(start))

	// 4. Verbatim boost
	for i := range hits {
		if containsAllQueryWords(hits[i].Content, query) {
			hits[i].Score += verbatimBoost
			monitor.VerbatimHit(hits[i])
		}
	}
	slices.SortStableFunc(hits, func(a, b core.Chunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(hits) > s.limit {
		hits = hits[:s.limit]
	}
	if hits == nil {
		hits = []core.Chunk{}
	}
	return hits, nil
}

// report logs err and turns it into an error event.
func (s *Searcher) report(baseID string, err error) {
	event := notify.ErrorEvent{BaseID: baseID, Kind: notify.KindFailure, Message: "Search failed", Err: err}
	switch {
	case errors.Is(err, ErrIndexUnavailable):
		event.Kind = notify.KindIndexUnavailable
		event.Message = "Knowledge base index is missing or empty"
	case errors.Is(err, ErrTimeout):
		event.Kind = notify.KindTimeout
		event.Message = "Search timed out, try again later"
	}
	s.logger.Error("search failed", "base", baseID, "kind", event.Kind, "err", err)
	s.notifier.Error(event)
}

// boundedWait races fn against a timer. On expiry it returns ErrTimeout
// without waiting for fn, whose context is cancelled.
func boundedWait[T any](ctx context.Context, limit time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		value, err := fn(opCtx)
		done <- result{value, err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, limit)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
