package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/ai/mock"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/poiesic/kbase/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEngine struct {
	*Local
	ledger   *badger.Ledger
	embedder *mock.MockEmbedder
}

func setupEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()
	ledger, backend, err := badger.NewMemoryLedger()
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	opts = append([]Option{
		WithEmbedderFactory(func(core.EmbeddingParams) (ai.Embedder, error) { return embedder, nil }),
		WithCrawlRate(0, 1),
		WithRetry(1, time.Millisecond),
	}, opts...)

	e, err := NewLocal(t.TempDir(), ledger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Close()
		ledger.Close()
		backend.Close()
	})
	return &testEngine{Local: e, ledger: ledger, embedder: embedder}
}

func params(id string) core.BaseParams {
	return core.BaseParams{ID: id, ChunkSize: 200, ChunkOverlap: 20}
}

func ingestOpts(p core.BaseParams, force bool) IngestOptions {
	return IngestOptions{ForceReload: force, ChunkSize: p.ChunkSize, ChunkOverlap: p.ChunkOverlap}
}

func chunkCount(t *testing.T, h Handle) int {
	t.Helper()
	n, err := h.(*handle).index.CountChunks(context.Background())
	require.NoError(t, err)
	return n
}

func TestNewLocal_RequiresLedger(t *testing.T) {
	_, err := NewLocal(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrLedgerRequired)
}

func TestOpen_CachesHandleAndCreatesIndex(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	h1, err := e.Open(ctx, params("kb1"))
	require.NoError(t, err)
	h2, err := e.Open(ctx, params("kb1"))
	require.NoError(t, err)
	assert.Same(t, h1, h2)

	_, err = os.Stat(filepath.Join(e.BaseDir("kb1"), sqlite.IndexFileName))
	assert.NoError(t, err)
}

func TestOpen_RejectsInvalidParams(t *testing.T) {
	e := setupEngine(t)
	_, err := e.Open(context.Background(), core.BaseParams{ID: "../escape"})
	assert.ErrorIs(t, err, core.ErrInvalidBaseParams)
}

func TestIngestSingle_NoteSkipAndForceReload(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	p := params("kb1")
	h, err := e.Open(ctx, p)
	require.NoError(t, err)

	note := core.Note("Badger is an embeddable key-value store written in Go.")

	first, err := h.IngestSingle(ctx, note, ingestOpts(p, false))
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.EntriesAdded)
	assert.Equal(t, core.LoaderTypeText, first.LoaderType)
	assert.True(t, strings.HasPrefix(first.UniqueID, core.LoaderTypeText+"_"))

	rec, err := e.ledger.GetLoader(ctx, "kb1", first.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.EntriesAdded)

	again, err := h.IngestSingle(ctx, note, ingestOpts(p, false))
	require.NoError(t, err)
	assert.Equal(t, uint(0), again.EntriesAdded, "existing loader is skipped")
	assert.Equal(t, first.UniqueID, again.UniqueID)
	assert.Equal(t, 1, chunkCount(t, h))

	forced, err := h.IngestSingle(ctx, note, ingestOpts(p, true))
	require.NoError(t, err)
	assert.Equal(t, uint(1), forced.EntriesAdded)
	assert.Equal(t, 1, chunkCount(t, h), "reload replaces the previous chunks")
}

func TestIngestSingle_FileAndQuery(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	p := params("kb1")
	h, err := e.Open(ctx, p)
	require.NoError(t, err)

	dir := t.TempDir()
	content := "Sitemaps list the pages of a site for crawlers."
	path := filepath.Join(dir, "sitemaps.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("Something unrelated entirely."), 0644))

	out, err := h.IngestSingle(ctx, core.File(path, 0), ingestOpts(p, false))
	require.NoError(t, err)
	assert.Equal(t, core.LoaderTypeLocalPath, out.LoaderType)
	_, err = h.IngestSingle(ctx, core.File(other, 0), ingestOpts(p, false))
	require.NoError(t, err)

	results, err := h.Query(ctx, content, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, content, results[0].Content)
	assert.Equal(t, out.UniqueID, results[0].UniqueID)
	assert.Equal(t, path, results[0].Source)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestIngestSingle_LongNoteIsChunked(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	p := params("kb1")
	h, err := e.Open(ctx, p)
	require.NoError(t, err)

	text := strings.Repeat("knowledge bases split long content into chunks. ", 40)
	out, err := h.IngestSingle(ctx, core.Note(text), ingestOpts(p, false))
	require.NoError(t, err)
	assert.Greater(t, out.EntriesAdded, uint(1))
	assert.Equal(t, int(out.EntriesAdded), chunkCount(t, h))

	rec, err := e.ledger.GetLoader(ctx, "kb1", out.UniqueID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(rec.Source)), noteLabelRunes+3)
}

func TestIngestSingle_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Docs</title></head><body><main><p>Page body.</p></main></body></html>`)
	}))
	defer srv.Close()

	e := setupEngine(t)
	ctx := context.Background()
	p := params("kb1")
	h, err := e.Open(ctx, p)
	require.NoError(t, err)

	out, err := h.IngestSingle(ctx, core.URL(srv.URL+"/docs"), ingestOpts(p, false))
	require.NoError(t, err)
	assert.Equal(t, core.LoaderTypeWeb, out.LoaderType)
	assert.Equal(t, uint(1), out.EntriesAdded)
}

func TestIngestSingle_UnsupportedKinds(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	h, err := e.Open(ctx, params("kb1"))
	require.NoError(t, err)

	_, err = h.IngestSingle(ctx, core.Directory(t.TempDir()), IngestOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedDescriptor)

	_, err = h.IngestSingle(ctx, core.ContentDescriptor{}, IngestOptions{})
	assert.Error(t, err)
}

func TestIngestManyFromURL(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>%[1]s/one</loc></url><url><loc>%[1]s/two</loc></url><url><loc>%[1]s/missing</loc></url>
</urlset>`, srv.URL)
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>%s/missing</loc></url></urlset>`, srv.URL)
	})
	mux.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><main><p>First page.</p></main></body></html>`)
	})
	mux.HandleFunc("/two", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><main><p>Second page.</p></main></body></html>`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	e := setupEngine(t)
	ctx := context.Background()
	p := params("kb1")
	h, err := e.Open(ctx, p)
	require.NoError(t, err)

	out, err := h.IngestManyFromURL(ctx, srv.URL+"/sitemap.xml", ingestOpts(p, false))
	require.NoError(t, err)
	assert.Equal(t, core.LoaderTypeSitemap, out.LoaderType)
	assert.Equal(t, uint(2), out.EntriesAdded, "failed pages are skipped")

	_, err = h.IngestManyFromURL(ctx, srv.URL+"/broken.xml", ingestOpts(p, false))
	assert.ErrorIs(t, err, ErrNothingLoaded)
}

func TestDeleteByUniqueIDAndReset(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	p := params("kb1")
	h, err := e.Open(ctx, p)
	require.NoError(t, err)

	a, err := h.IngestSingle(ctx, core.Note("first note"), ingestOpts(p, false))
	require.NoError(t, err)
	_, err = h.IngestSingle(ctx, core.Note("second note"), ingestOpts(p, false))
	require.NoError(t, err)

	require.NoError(t, h.DeleteByUniqueID(ctx, a.UniqueID))
	assert.Equal(t, 1, chunkCount(t, h))
	_, err = e.ledger.GetLoader(ctx, "kb1", a.UniqueID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, h.Reset(ctx))
	assert.Equal(t, 0, chunkCount(t, h))
	records, err := e.ledger.ListLoaders(ctx, "kb1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDelete_RemovesBase(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	p := params("kb1")
	h, err := e.Open(ctx, p)
	require.NoError(t, err)
	_, err = h.IngestSingle(ctx, core.Note("to be deleted"), ingestOpts(p, false))
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, "kb1"))
	_, err = os.Stat(e.BaseDir("kb1"))
	assert.True(t, os.IsNotExist(err))

	records, err := e.ledger.ListLoaders(ctx, "kb1")
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, e.Delete(ctx, "never-created"))

	reopened, err := e.Open(ctx, p)
	require.NoError(t, err)
	assert.NotSame(t, h, reopened)
	assert.Equal(t, 0, chunkCount(t, reopened))
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	e := setupEngine(t)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Open(context.Background(), params("kb1"))
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.ErrorIs(t, e.Delete(context.Background(), "kb1"), ErrEngineClosed)
}

func TestAIConfig_KeepsDefaults(t *testing.T) {
	cfg := AIConfig(core.EmbeddingParams{Model: "nomic-embed-text"})
	assert.Equal(t, ai.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Model)
	assert.Equal(t, ai.DefaultConfig().BatchSize, cfg.BatchSize)
}
