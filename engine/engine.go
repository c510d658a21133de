// Package engine turns content into searchable chunks for a knowledge base.
//
// An Engine opens per-base Handles. A Handle loads a source (local file, web
// page, note or sitemap), splits it into chunks, embeds the chunks and writes
// them to the base's index, recording the source in the loader ledger.
package engine

import (
	"context"

	"github.com/poiesic/kbase/core"
)

// Default chunking when a base does not set its own.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// IngestOptions controls a single ingest call.
type IngestOptions struct {
	// ForceReload re-ingests a source whose loader id is already recorded.
	ForceReload bool
	// ChunkSize and ChunkOverlap are in characters. Zero selects the defaults.
	ChunkSize    int
	ChunkOverlap int
}

// Engine opens knowledge bases. Implementations must be safe for concurrent use.
type Engine interface {
	// Open returns the handle for a base, creating the base on first use.
	Open(ctx context.Context, params core.BaseParams) (Handle, error)

	// Delete removes a base and everything stored for it.
	Delete(ctx context.Context, baseID string) error

	// Close releases every open base.
	Close() error
}

// Handle operates on one open knowledge base. Handles are shared between
// callers and stay valid until the base is deleted or the engine closed.
type Handle interface {
	// IngestSingle ingests a file, url or note descriptor.
	IngestSingle(ctx context.Context, d core.ContentDescriptor, opts IngestOptions) (core.IngestionOutcome, error)

	// IngestManyFromURL crawls the pages listed in a sitemap.
	IngestManyFromURL(ctx context.Context, url string, opts IngestOptions) (core.IngestionOutcome, error)

	// Query returns up to limit chunks ranked by similarity to text.
	Query(ctx context.Context, text string, limit int) ([]core.Chunk, error)

	// DeleteByUniqueID removes a loader's chunks and its ledger record.
	DeleteByUniqueID(ctx context.Context, uniqueID string) error

	// Reset removes every chunk and ledger record of the base.
	Reset(ctx context.Context) error
}
