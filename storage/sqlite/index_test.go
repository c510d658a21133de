package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/kbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) (*Index, string) {
	dir := filepath.Join(t.TempDir(), "kb1")
	idx, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, dir
}

func chunk(uniqueID string, pos int, content string, vector ...float32) *storage.StoredChunk {
	return &storage.StoredChunk{
		UniqueID:   uniqueID,
		LoaderType: "TextLoader",
		Source:     "note",
		Position:   pos,
		Content:    content,
		Vector:     vector,
	}
}

func TestOpen_CreatesPrimaryFile(t *testing.T) {
	idx, dir := openTestIndex(t)

	info, err := os.Stat(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Equal(t, filepath.Join(dir, IndexFileName), idx.Path())
}

func TestIndex_AddAndFindSimilar(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.AddChunks(ctx,
		chunk("a", 0, "east", 1, 0, 0),
		chunk("a", 1, "north", 0, 1, 0),
		chunk("b", 0, "north-east", 0.7, 0.7, 0),
	))

	results, err := idx.FindSimilar(ctx, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "north-east", results[1].Content)
	assert.Equal(t, "b", results[1].UniqueID)

	limited, err := idx.FindSimilar(ctx, []float32{1, 0, 0}, -1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestIndex_FindSimilarSkipsMismatchedDimensions(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.AddChunks(ctx, chunk("a", 0, "short", 1, 0)))

	results, err := idx.FindSimilar(ctx, []float32{1, 0, 0}, -1, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_FindSimilarInvalidQuery(t *testing.T) {
	idx, _ := openTestIndex(t)

	_, err := idx.FindSimilar(context.Background(), nil, 0, 10)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = idx.FindSimilar(context.Background(), []float32{1}, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndex_AddChunksRejectsMissingVector(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	err := idx.AddChunks(ctx, chunk("a", 0, "ok", 1), chunk("a", 1, "bad"))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	n, err := idx.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "failed batch should be rolled back")
}

func TestIndex_DeleteAndReset(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.AddChunks(ctx,
		chunk("a", 0, "one", 1),
		chunk("a", 1, "two", 1),
		chunk("b", 0, "three", 1),
	))

	removed, err := idx.DeleteByUniqueID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := idx.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.Reset(ctx))
	n, err = idx.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIndex_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kb1")
	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.AddChunks(context.Background(), chunk("a", 0, "kept", 1, 0)))
	require.NoError(t, idx.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
