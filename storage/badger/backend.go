package badger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/kbase/storage"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

// Badger is chatty at info level; it goes to debug.
func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Sized for one small record per loaded source.
const (
	ledgerMemTableSize    = 4 << 20
	ledgerValueLogSize    = 16 << 20
	ledgerValueThreshold  = 1 << 10
	ledgerBlockCacheBytes = 8 << 20
)

// OpenBackend opens the ledger database in dir, creating the directory if
// needed. With inMemory set dir is ignored.
func OpenBackend(dir string, inMemory bool) (*Backend, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		// A ledger record must not be lost once its chunks are in the index.
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}

	logger := slog.Default().With("component", "ledger-badger")
	opts = opts.
		WithLogger(&badgerLoggerAdapter{logger: logger}).
		WithCompression(options.None).
		WithMemTableSize(ledgerMemTableSize).
		WithValueLogFileSize(ledgerValueLogSize).
		WithValueThreshold(ledgerValueThreshold).
		WithBlockCacheSize(ledgerBlockCacheBytes)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("ledger path %s is not a directory", dir)
	}
	return nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	b.logger.Debug("closing ledger database")
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction and fn must commit it.
// The transaction is always discarded afterwards.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}
