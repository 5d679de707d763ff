package kvstore

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/sensorhub-io/hub/core"
)

// Txn is a single badger transaction, shared across however many NamedMaps
// a caller touches inside one Store.View/Update callback.
type Txn struct {
	txn *badger.Txn
	ctx context.Context
}

// Context returns the context the enclosing View/Update call was given.
func (t *Txn) Context() context.Context { return t.ctx }

func (t *Txn) get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, core.WrapError(core.ErrKindDataStore, "get failed", err)
	}
	return item.ValueCopy(nil)
}

func (t *Txn) set(key, value []byte) error {
	if err := t.txn.Set(key, value); err != nil {
		return core.WrapError(core.ErrKindDataStore, "set failed", err)
	}
	return nil
}

func (t *Txn) delete(key []byte) error {
	if err := t.txn.Delete(key); err != nil {
		return core.WrapError(core.ErrKindDataStore, "delete failed", err)
	}
	return nil
}

// scan iterates all keys sharing prefix in key order, passing the caller
// fn the suffix remaining after prefix and the value. Iteration stops as
// soon as fn returns cont = false or a non-nil error.
func (t *Txn) scan(prefix []byte, fn func(suffix, value []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "scan value copy failed", err)
		}
		key := item.KeyCopy(nil)
		cont, err := fn(key[len(prefix):], val)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}
