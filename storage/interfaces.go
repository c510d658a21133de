package storage

import (
	"context"

	"github.com/poiesic/kbase/core"
)

// StoredChunk is one embedded piece of a source as written to a ChunkIndex.
type StoredChunk struct {
	UniqueID   string
	LoaderType string
	Source     string
	Position   int
	Content    string
	Vector     []float32
}

// ChunkIndex stores embedded chunks for a single knowledge base.
// Implementations must be thread-safe and support concurrent access.
type ChunkIndex interface {
	// AddChunks stores chunks in a single transaction.
	AddChunks(ctx context.Context, chunks ...*StoredChunk) error

	// FindSimilar returns chunks with cosine similarity >= minSimilarity,
	// ordered by similarity (highest first), up to limit results.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]core.Chunk, error)

	// DeleteByUniqueID removes every chunk of a loader and reports how many were removed.
	DeleteByUniqueID(ctx context.Context, uniqueID string) (int, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// Reset removes all chunks.
	Reset(ctx context.Context) error

	// Close releases the index.
	Close() error
}

// LoaderLedger records which sources were ingested into which knowledge base.
// Implementations must be thread-safe and support concurrent access.
type LoaderLedger interface {
	// PutLoader inserts or replaces a record.
	PutLoader(ctx context.Context, record *core.LoaderRecord) error

	// GetLoader returns ErrNotFound when the base has no such loader.
	GetLoader(ctx context.Context, baseID, uniqueID string) (*core.LoaderRecord, error)

	// ListLoaders returns the base's records ordered by unique id.
	ListLoaders(ctx context.Context, baseID string) ([]*core.LoaderRecord, error)

	// DeleteLoader removes a record. Deleting a missing record is not an error.
	DeleteLoader(ctx context.Context, baseID, uniqueID string) error

	// DeleteBase removes every record of a base and reports how many were removed.
	DeleteBase(ctx context.Context, baseID string) (int, error)

	// Close releases resources held by the ledger.
	Close() error
}
