package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// Ledger implements storage.LoaderLedger for BadgerDB.
type Ledger struct {
	backend *Backend
}

var _ storage.LoaderLedger = (*Ledger)(nil)

// NewLedger creates a ledger on top of an open backend.
func NewLedger(backend *Backend) (*Ledger, error) {
	if backend == nil {
		return nil, storage.ErrStorageClosed
	}
	return &Ledger{backend: backend}, nil
}

// Close releases resources. The backend is owned by the caller.
func (l *Ledger) Close() error {
	return nil
}

// PutLoader inserts or replaces a record. AddedAt is set when empty.
func (l *Ledger) PutLoader(ctx context.Context, record *core.LoaderRecord) error {
	if record == nil || record.BaseID == "" || record.UniqueID == "" {
		return storage.ErrInvalidQuery
	}
	if record.AddedAt.IsZero() {
		record.AddedAt = time.Now().UTC()
	}
	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeLoaderKey(record.BaseID, record.UniqueID), storage.MarshalLoaderRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetLoader retrieves a single record.
// Returns storage.ErrNotFound if the base has no such loader.
func (l *Ledger) GetLoader(ctx context.Context, baseID, uniqueID string) (*core.LoaderRecord, error) {
	var record *core.LoaderRecord
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readLoader(tx, makeLoaderKey(baseID, uniqueID))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

// ListLoaders returns every record of a base in key order.
func (l *Ledger) ListLoaders(ctx context.Context, baseID string) ([]*core.LoaderRecord, error) {
	records := make([]*core.LoaderRecord, 0)
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		return scanBase(tx, baseID, func(_ []byte, record *core.LoaderRecord) error {
			records = append(records, record)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteLoader removes one record.
func (l *Ledger) DeleteLoader(ctx context.Context, baseID, uniqueID string) error {
	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeLoaderKey(baseID, uniqueID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteBase removes every record of a base.
func (l *Ledger) DeleteBase(ctx context.Context, baseID string) (int, error) {
	var keys [][]byte
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		return scanBase(tx, baseID, func(key []byte, _ *core.LoaderRecord) error {
			keys = append(keys, key)
			return nil
		})
	}, false)
	if err != nil {
		return 0, err
	}

	err = l.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// scanBase visits the base's records. Keys are copied before fn sees them.
// A base id that is a prefix of another (kb vs kb:2) shares a key prefix,
// so records are filtered by their stored BaseID.
func scanBase(tx *badger.Txn, baseID string, fn func(key []byte, record *core.LoaderRecord) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeBaseLoaderPrefix(baseID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		var record *core.LoaderRecord
		err := item.Value(func(val []byte) error {
			var err error
			record, err = storage.UnmarshalLoaderRecord(val)
			return err
		})
		if err != nil {
			return err
		}
		if record.BaseID != baseID {
			continue
		}
		if err := fn(item.KeyCopy(nil), record); err != nil {
			return err
		}
	}
	return nil
}

// readLoader reads a record, returning nil if the key does not exist.
func readLoader(tx *badger.Txn, key []byte) (*core.LoaderRecord, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record *core.LoaderRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalLoaderRecord(val)
		return err
	})
	return record, err
}
