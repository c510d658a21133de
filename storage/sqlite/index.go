// Package sqlite implements storage.ChunkIndex on a single SQLite file per
// knowledge base.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
	_ "modernc.org/sqlite"
)

// IndexFileName is the primary data file of a knowledge base directory.
const IndexFileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	unique_id   TEXT NOT NULL,
	loader_type TEXT NOT NULL,
	source      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	content     TEXT NOT NULL,
	vector      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_unique_id ON chunks(unique_id);
`

// Index is a chunk index stored in <dir>/index.db.
type Index struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ storage.ChunkIndex = (*Index)(nil)

// Open opens or creates the index inside dir.
// The rollback journal is kept (no WAL) so committed data always lives in
// the primary file.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	path := filepath.Join(dir, IndexFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &Index{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "chunk-index", "path", path),
	}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	if _, err := i.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, err := i.db.Exec(schema)
	return err
}

// Path returns the location of the index file.
func (i *Index) Path() string {
	return i.path
}

// Close closes the database connection.
func (i *Index) Close() error {
	return i.db.Close()
}

// AddChunks stores chunks in a single transaction.
func (i *Index) AddChunks(ctx context.Context, chunks ...*storage.StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (unique_id, loader_type, source, position, content, vector) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("%w: chunk %d of %s has no vector", storage.ErrDimensionMismatch, c.Position, c.UniqueID)
		}
		_, err := stmt.ExecContext(ctx, c.UniqueID, c.LoaderType, c.Source, c.Position, c.Content, storage.MarshalVector(c.Vector))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FindSimilar scans every stored vector and ranks by cosine similarity.
func (i *Index) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]core.Chunk, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	rows, err := i.db.QueryContext(ctx,
		`SELECT unique_id, loader_type, source, position, content, vector FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]core.Chunk, 0, limit)
	for rows.Next() {
		var (
			chunk core.Chunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.UniqueID, &chunk.LoaderType, &chunk.Source, &chunk.Position, &chunk.Content, &blob); err != nil {
			return nil, err
		}
		stored, err := storage.UnmarshalVector(blob)
		if err != nil {
			return nil, err
		}
		if len(stored) != len(vector) {
			i.logger.Warn("skipping chunk with mismatched dimensions",
				"uniqueID", chunk.UniqueID, "want", len(vector), "got", len(stored))
			continue
		}

		chunk.Score = cosineSimilarity(vector, stored)
		if chunk.Score >= minSimilarity {
			results = append(results, chunk)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b core.Chunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteByUniqueID removes every chunk of a loader.
func (i *Index) DeleteByUniqueID(ctx context.Context, uniqueID string) (int, error) {
	res, err := i.db.ExecContext(ctx, `DELETE FROM chunks WHERE unique_id = ?`, uniqueID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountChunks returns the number of stored chunks.
func (i *Index) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Reset removes all chunks.
func (i *Index) Reset(ctx context.Context) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// cosineSimilarity of two equal-length vectors. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for k := range a {
		dot += float64(a[k]) * float64(b[k])
		normA += float64(a[k]) * float64(a[k])
		normB += float64(b[k]) * float64(b[k])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
