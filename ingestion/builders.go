package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/engine"
	"github.com/poiesic/kbase/notify"
)

// Workload estimates for network sources, whose size is unknown up front.
const (
	URLWorkload     uint64 = 2 << 20
	SitemapWorkload uint64 = 20 << 20
)

// Builder expands content descriptors into unit groups whose units ingest
// through an engine.
type Builder struct {
	engine   engine.Engine
	locks    *BaseLocks
	notifier notify.Notifier
	logger   *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder) error

// WithNotifier sets where directory progress is reported.
// Default discards events.
func WithNotifier(n notify.Notifier) BuilderOption {
	return func(b *Builder) error {
		b.notifier = notify.OrNoop(n)
		return nil
	}
}

// WithBuilderLogger sets a custom logger.
// Default is slog.Default().
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a builder. locks may be shared with whatever resets
// or deletes bases; nil gives the builder a private table.
func NewBuilder(eng engine.Engine, locks *BaseLocks, opts ...BuilderOption) (*Builder, error) {
	if eng == nil {
		return nil, ErrEngineRequired
	}
	if locks == nil {
		locks = NewBaseLocks()
	}

	b := &Builder{
		engine:   eng,
		locks:    locks,
		notifier: notify.Noop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "ingestion-builder")
	return b, nil
}

// Build expands d into a unit group for the base described by params.
// It fails only for an invalid descriptor or invalid params; problems
// found while running units surface as zero outcomes.
func (b *Builder) Build(d core.ContentDescriptor, params core.BaseParams, forceReload bool) (*UnitGroup, error) {
	if err := core.ValidateDescriptor(d); err != nil {
		return nil, err
	}
	if err := core.ValidateBaseParams(params); err != nil {
		return nil, err
	}

	opts := engine.IngestOptions{
		ForceReload:  forceReload,
		ChunkSize:    params.ChunkSize,
		ChunkOverlap: params.ChunkOverlap,
	}
	label := fmt.Sprintf("%s:%s", d.Kind, d.Source())

	switch d.Kind {
	case core.KindFile:
		return NewGroup(label, Replace, b.fileUnit(d, params, opts)), nil
	case core.KindDirectory:
		return b.directory(d, params, opts), nil
	case core.KindURL:
		return NewGroup(label, Replace, b.unit(d.Address, URLWorkload, params,
			func(ctx context.Context, h engine.Handle) (core.IngestionOutcome, error) {
				return h.IngestSingle(ctx, d, opts)
			})), nil
	case core.KindSitemap:
		return NewGroup(label, Replace, b.unit(d.Address, SitemapWorkload, params,
			func(ctx context.Context, h engine.Handle) (core.IngestionOutcome, error) {
				return h.IngestManyFromURL(ctx, d.Address, opts)
			})), nil
	case core.KindNote:
		return NewGroup(fmt.Sprintf("%s:%d bytes", d.Kind, d.NoteBytes()), Replace,
			b.unit("note", d.NoteBytes(), params,
				func(ctx context.Context, h engine.Handle) (core.IngestionOutcome, error) {
					return h.IngestSingle(ctx, d, opts)
				})), nil
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownKind, d.Kind)
	}
}

func (b *Builder) fileUnit(d core.ContentDescriptor, params core.BaseParams, opts engine.IngestOptions) *LoaderUnit {
	size := d.SizeBytes
	if size == 0 {
		if info, err := os.Stat(d.Path); err == nil {
			size = uint64(info.Size())
		} else {
			b.logger.Warn("cannot stat file, assuming empty", "path", d.Path, "err", err)
		}
	}
	file := core.File(d.Path, size)
	return b.unit(d.Path, size, params, func(ctx context.Context, h engine.Handle) (core.IngestionOutcome, error) {
		return h.IngestSingle(ctx, file, opts)
	})
}

// directory enumerates every regular file below d.Path before any unit
// runs. A failed walk yields an empty group.
func (b *Builder) directory(d core.ContentDescriptor, params core.BaseParams, opts engine.IngestOptions) *UnitGroup {
	label := fmt.Sprintf("%s:%s", d.Kind, d.Path)

	var files []core.ContentDescriptor
	err := filepath.WalkDir(d.Path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		files = append(files, core.File(path, uint64(info.Size())))
		return nil
	})
	if err != nil {
		b.logger.Error("failed to enumerate directory", "path", d.Path, "err", err)
		return NewGroup(label, Accumulate)
	}

	total := len(files)
	processed := 0
	units := make([]*LoaderUnit, 0, total)
	for _, f := range files {
		u := b.fileUnit(f, params, opts)
		// Runs under the queue lock, which serializes the counter.
		u.afterDone = func(core.IngestionOutcome) {
			processed++
			b.notifier.Progress(notify.ProgressEvent{
				ItemID:  d.ItemID,
				Percent: float64(processed) / float64(total) * 100,
			})
		}
		units = append(units, u)
	}

	b.logger.Debug("enumerated directory", "path", d.Path, "files", total)
	return NewGroup(label, Accumulate, units...)
}

// unit wraps an engine call so that it runs under the base's read lock and
// reports any failure as the zero outcome.
func (b *Builder) unit(label string, workload uint64, params core.BaseParams,
	call func(ctx context.Context, h engine.Handle) (core.IngestionOutcome, error)) *LoaderUnit {
	return NewUnit(label, workload, func(ctx context.Context) core.IngestionOutcome {
		unlock := b.locks.RLock(params.ID)
		defer unlock()

		h, err := b.engine.Open(ctx, params)
		if err != nil {
			b.logger.Error("failed to open knowledge base", "base", params.ID, "source", label, "err", err)
			return core.IngestionOutcome{}
		}
		outcome, err := call(ctx, h)
		if err != nil {
			b.logger.Error("ingestion failed", "base", params.ID, "source", label, "err", err)
			return core.IngestionOutcome{}
		}
		return outcome
	})
}
