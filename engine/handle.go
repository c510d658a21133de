package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/sqlite"
	"github.com/tmc/langchaingo/textsplitter"
)

// noteLabelRunes is how much of a note's text is kept as its ledger source.
const noteLabelRunes = 80

// handle is the Local engine's Handle for one base.
type handle struct {
	engine   *Local
	baseID   string
	index    *sqlite.Index
	embedder ai.Embedder
	embed    *ai.Config
	logger   *slog.Logger
}

var _ Handle = (*handle)(nil)

// source is content loaded and ready to be chunked.
type source struct {
	loaderType string
	uniqueID   string
	label      string
	text       string
}

func (h *handle) IngestSingle(ctx context.Context, d core.ContentDescriptor, opts IngestOptions) (core.IngestionOutcome, error) {
	if err := core.ValidateDescriptor(d); err != nil {
		return core.IngestionOutcome{}, err
	}

	var loaderType, ident, label string
	switch d.Kind {
	case core.KindFile:
		abs, err := filepath.Abs(d.Path)
		if err != nil {
			return core.IngestionOutcome{}, err
		}
		loaderType, ident, label = core.LoaderTypeLocalPath, abs, abs
	case core.KindURL:
		loaderType, ident, label = core.LoaderTypeWeb, d.Address, d.Address
	case core.KindNote:
		loaderType, ident, label = core.LoaderTypeText, d.Text, noteLabel(d.Text)
	default:
		return core.IngestionOutcome{}, fmt.Errorf("%w: %s", ErrUnsupportedDescriptor, d.Kind)
	}

	uniqueID := core.UniqueIDFor(loaderType, ident)
	outcome := core.IngestionOutcome{UniqueID: uniqueID, LoaderType: loaderType}

	skip, err := h.prepare(ctx, uniqueID, opts.ForceReload)
	if err != nil || skip {
		return outcome, err
	}

	var text string
	switch d.Kind {
	case core.KindFile:
		text, err = loadFile(ctx, ident)
	case core.KindURL:
		var p *page
		if p, err = h.engine.fetcher.fetchPage(ctx, d.Address); err == nil {
			text = p.Markdown
		}
	case core.KindNote:
		text = d.Text
	}
	if err != nil {
		return core.IngestionOutcome{}, err
	}

	added, err := h.store(ctx, []source{{loaderType: loaderType, uniqueID: uniqueID, label: label, text: text}}, opts)
	if err != nil {
		return core.IngestionOutcome{}, err
	}
	if err := h.record(ctx, uniqueID, loaderType, label, added); err != nil {
		return core.IngestionOutcome{}, err
	}

	outcome.EntriesAdded = uint(added)
	h.logger.Debug("ingested", "loader", loaderType, "source", label, "chunks", added)
	return outcome, nil
}

func (h *handle) IngestManyFromURL(ctx context.Context, address string, opts IngestOptions) (core.IngestionOutcome, error) {
	if err := core.ValidateAddress(address); err != nil {
		return core.IngestionOutcome{}, err
	}

	uniqueID := core.UniqueIDFor(core.LoaderTypeSitemap, address)
	outcome := core.IngestionOutcome{UniqueID: uniqueID, LoaderType: core.LoaderTypeSitemap}

	skip, err := h.prepare(ctx, uniqueID, opts.ForceReload)
	if err != nil || skip {
		return outcome, err
	}

	pages, err := h.engine.fetcher.sitemapPages(ctx, address, h.engine.maxPages)
	if err != nil {
		return core.IngestionOutcome{}, err
	}

	sources := make([]source, 0, len(pages))
	for _, pageURL := range pages {
		if err := h.engine.crawlLimiter.Wait(ctx); err != nil {
			return core.IngestionOutcome{}, err
		}
		p, err := h.engine.fetcher.fetchPage(ctx, pageURL)
		if err != nil {
			h.logger.Warn("skipping sitemap page", "sitemap", address, "page", pageURL, "err", err)
			continue
		}
		sources = append(sources, source{
			loaderType: core.LoaderTypeSitemap,
			uniqueID:   uniqueID,
			label:      pageURL,
			text:       p.Markdown,
		})
	}
	if len(sources) == 0 {
		return core.IngestionOutcome{}, fmt.Errorf("%w: %s", ErrNothingLoaded, address)
	}

	added, err := h.store(ctx, sources, opts)
	if err != nil {
		return core.IngestionOutcome{}, err
	}
	if err := h.record(ctx, uniqueID, core.LoaderTypeSitemap, address, added); err != nil {
		return core.IngestionOutcome{}, err
	}

	outcome.EntriesAdded = uint(added)
	h.logger.Info("crawled sitemap", "sitemap", address, "pages", len(sources), "of", len(pages), "chunks", added)
	return outcome, nil
}

func (h *handle) Query(ctx context.Context, text string, limit int) ([]core.Chunk, error) {
	vector, err := h.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return h.index.FindSimilar(ctx, vector, h.engine.minSimilarity, limit)
}

func (h *handle) DeleteByUniqueID(ctx context.Context, uniqueID string) error {
	removed, err := h.index.DeleteByUniqueID(ctx, uniqueID)
	if err != nil {
		return err
	}
	if err := h.engine.ledger.DeleteLoader(ctx, h.baseID, uniqueID); err != nil {
		return err
	}
	h.logger.Debug("removed loader", "unique_id", uniqueID, "chunks", removed)
	return nil
}

func (h *handle) Reset(ctx context.Context) error {
	if err := h.index.Reset(ctx); err != nil {
		return err
	}
	removed, err := h.engine.ledger.DeleteBase(ctx, h.baseID)
	if err != nil {
		return err
	}
	h.logger.Info("reset knowledge base", "loaders", removed)
	return nil
}

// prepare consults the ledger. It reports skip when the loader is already
// recorded and reload is not forced; on a forced reload the old chunks go first.
func (h *handle) prepare(ctx context.Context, uniqueID string, forceReload bool) (skip bool, err error) {
	_, err = h.engine.ledger.GetLoader(ctx, h.baseID, uniqueID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	case !forceReload:
		h.logger.Debug("loader already present, skipping", "unique_id", uniqueID)
		return true, nil
	}

	if _, err := h.index.DeleteByUniqueID(ctx, uniqueID); err != nil {
		return false, fmt.Errorf("drop previous chunks: %w", err)
	}
	return false, nil
}

// store splits, embeds and indexes the sources. Positions run across all
// sources so chunks of one loader keep a total order.
func (h *handle) store(ctx context.Context, sources []source, opts IngestOptions) (int, error) {
	size, overlap := opts.ChunkSize, opts.ChunkOverlap
	if size <= 0 {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)

	var chunks []*storage.StoredChunk
	var texts []string
	for _, src := range sources {
		parts, err := splitter.SplitText(src.text)
		if err != nil {
			return 0, fmt.Errorf("split %s: %w", src.label, err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, &storage.StoredChunk{
				UniqueID:   src.uniqueID,
				LoaderType: src.loaderType,
				Source:     src.label,
				Position:   len(chunks),
				Content:    part,
			})
			texts = append(texts, part)
		}
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := ai.EmbedInBatches(ctx, h.embedder, texts, h.embed.BatchSize, h.embed.Dimensions)
	if err != nil {
		return 0, err
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if err := h.index.AddChunks(ctx, chunks...); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (h *handle) record(ctx context.Context, uniqueID, loaderType, label string, added int) error {
	return h.engine.ledger.PutLoader(ctx, &core.LoaderRecord{
		BaseID:       h.baseID,
		UniqueID:     uniqueID,
		LoaderType:   loaderType,
		Source:       label,
		EntriesAdded: uint64(added),
	})
}

func noteLabel(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= noteLabelRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:noteLabelRunes]) + "..."
}
