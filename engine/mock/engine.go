package mock

import (
	"context"
	"sync"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/engine"
)

// MockEngine is a test double for engine.Engine.
type MockEngine struct {
	// OpenFunc is called by Open if set.
	// If nil, Open returns the base's MockHandle.
	OpenFunc func(ctx context.Context, params core.BaseParams) (engine.Handle, error)

	// DeleteFunc is called by Delete if set.
	DeleteFunc func(ctx context.Context, baseID string) error

	mu      sync.Mutex
	handles map[string]*MockHandle
	opened  int
	deleted []string
	closed  bool
}

var _ engine.Engine = (*MockEngine)(nil)

// NewMockEngine creates a mock engine with default behavior.
func NewMockEngine() *MockEngine {
	return &MockEngine{handles: make(map[string]*MockHandle)}
}

// Handle returns the MockHandle for a base, creating it if needed.
func (m *MockEngine) Handle(baseID string) *MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[baseID]
	if !ok {
		h = &MockHandle{}
		m.handles[baseID] = h
	}
	return h
}

func (m *MockEngine) Open(ctx context.Context, params core.BaseParams) (engine.Handle, error) {
	m.mu.Lock()
	m.opened++
	fn := m.OpenFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, params)
	}
	return m.Handle(params.ID), nil
}

func (m *MockEngine) Delete(ctx context.Context, baseID string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, baseID)
	delete(m.handles, baseID)
	fn := m.DeleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, baseID)
	}
	return nil
}

func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// OpenCount returns how many times Open was called.
func (m *MockEngine) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Deleted returns the base ids passed to Delete, in call order.
func (m *MockEngine) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Closed reports whether Close was called.
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockHandle is a test double for engine.Handle.
// Without injected functions every ingest adds one entry and reports the
// loader id derived from the descriptor.
type MockHandle struct {
	IngestSingleFunc      func(ctx context.Context, d core.ContentDescriptor, opts engine.IngestOptions) (core.IngestionOutcome, error)
	IngestManyFromURLFunc func(ctx context.Context, url string, opts engine.IngestOptions) (core.IngestionOutcome, error)
	QueryFunc             func(ctx context.Context, text string, limit int) ([]core.Chunk, error)
	DeleteByUniqueIDFunc  func(ctx context.Context, uniqueID string) error
	ResetFunc             func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

var _ engine.Handle = (*MockHandle)(nil)

func (h *MockHandle) record(method string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = make(map[string]int)
	}
	h.calls[method]++
}

// CallCount returns how many times method was called.
func (h *MockHandle) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[method]
}

func (h *MockHandle) IngestSingle(ctx context.Context, d core.ContentDescriptor, opts engine.IngestOptions) (core.IngestionOutcome, error) {
	h.record("IngestSingle")
	if h.IngestSingleFunc != nil {
		return h.IngestSingleFunc(ctx, d, opts)
	}
	loaderType := core.LoaderTypeLocalPath
	switch d.Kind {
	case core.KindURL:
		loaderType = core.LoaderTypeWeb
	case core.KindNote:
		loaderType = core.LoaderTypeText
	}
	return core.IngestionOutcome{
		EntriesAdded: 1,
		UniqueID:     core.UniqueIDFor(loaderType, d.Source()),
		LoaderType:   loaderType,
	}, nil
}

func (h *MockHandle) IngestManyFromURL(ctx context.Context, url string, opts engine.IngestOptions) (core.IngestionOutcome, error) {
	h.record("IngestManyFromURL")
	if h.IngestManyFromURLFunc != nil {
		return h.IngestManyFromURLFunc(ctx, url, opts)
	}
	return core.IngestionOutcome{
		EntriesAdded: 1,
		UniqueID:     core.UniqueIDFor(core.LoaderTypeSitemap, url),
		LoaderType:   core.LoaderTypeSitemap,
	}, nil
}

func (h *MockHandle) Query(ctx context.Context, text string, limit int) ([]core.Chunk, error) {
	h.record("Query")
	if h.QueryFunc != nil {
		return h.QueryFunc(ctx, text, limit)
	}
	return nil, nil
}

func (h *MockHandle) DeleteByUniqueID(ctx context.Context, uniqueID string) error {
	h.record("DeleteByUniqueID")
	if h.DeleteByUniqueIDFunc != nil {
		return h.DeleteByUniqueIDFunc(ctx, uniqueID)
	}
	return nil
}

func (h *MockHandle) Reset(ctx context.Context) error {
	h.record("Reset")
	if h.ResetFunc != nil {
		return h.ResetFunc(ctx)
	}
	return nil
}
