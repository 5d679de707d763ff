package kvstore

import (
	"bytes"
	"io"

	"github.com/sensorhub-io/hub/core"
)

// NamedMap is a logically isolated key space within a Store, identified by
// a name prefix, so the system/FOI/data-stream/observation stores (and
// their secondary indexes) can share one badger.DB without key collisions
// (spec §6).
type NamedMap struct {
	prefix []byte
}

func (m *NamedMap) fullKey(key []byte) []byte {
	out := make([]byte, 0, len(m.prefix)+len(key))
	out = append(out, m.prefix...)
	out = append(out, key...)
	return out
}

// Get reads the raw bytes stored at key, or core.ErrNotFound.
func (m *NamedMap) Get(txn *Txn, key []byte) ([]byte, error) {
	return txn.get(m.fullKey(key))
}

// Put writes raw bytes at key, overwriting any existing value.
func (m *NamedMap) Put(txn *Txn, key, value []byte) error {
	return txn.set(m.fullKey(key), value)
}

// Delete removes key; deleting an absent key is not an error.
func (m *NamedMap) Delete(txn *Txn, key []byte) error {
	return txn.delete(m.fullKey(key))
}

// Scan iterates all keys sharing keyPrefix within this named map, in key
// order, until fn returns false or every match has been visited.
func (m *NamedMap) Scan(txn *Txn, keyPrefix []byte, fn func(key, value []byte) (bool, error)) error {
	full := m.fullKey(keyPrefix)
	return txn.scan(full, func(suffix, value []byte) (bool, error) {
		return fn(append(append([]byte{}, keyPrefix...), suffix...), value)
	})
}

// ScanRange iterates keys in this named map whose suffix (the key with the
// map's own name prefix stripped) falls in [beginKey, endKey). A nil bound
// is unbounded on that side.
func (m *NamedMap) ScanRange(txn *Txn, beginKey, endKey []byte, fn func(key, value []byte) (bool, error)) error {
	return txn.scan(m.prefix, func(suffix, value []byte) (bool, error) {
		if beginKey != nil && bytes.Compare(suffix, beginKey) < 0 {
			return true, nil
		}
		if endKey != nil && bytes.Compare(suffix, endKey) >= 0 {
			return false, nil
		}
		return fn(suffix, value)
	})
}

// PutEncoded compresses payload with c and writes it wrapped in the
// versioned value envelope (core.EncodeEnvelope), the on-disk format every
// entity and observation record uses (spec §6).
func (m *NamedMap) PutEncoded(txn *Txn, key, payload []byte, c core.Compressor) error {
	compressed, err := c.Compress(payload)
	if err != nil {
		return core.WrapError(core.ErrKindDataStore, "compress failed", err)
	}
	return m.Put(txn, key, core.EncodeEnvelope(compressed, c.Type()))
}

// GetDecoded reads a value written by PutEncoded, verifying and stripping
// its envelope and decompressing the payload with the compressor the
// envelope names.
func (m *NamedMap) GetDecoded(txn *Txn, key []byte) ([]byte, error) {
	stored, err := m.Get(txn, key)
	if err != nil {
		return nil, err
	}
	_, ct, payload, err := core.DecodeEnvelope(stored)
	if err != nil {
		return nil, core.WrapError(core.ErrKindDataStore, "envelope decode failed", err)
	}
	c, err := core.CompressorFor(ct)
	if err != nil {
		return nil, err
	}
	rc, err := c.Decompress(payload)
	if err != nil {
		return nil, core.WrapError(core.ErrKindDataStore, "decompress failed", err)
	}
	defer rc.Close()
	decoded, err := io.ReadAll(rc)
	if err != nil {
		return nil, core.WrapError(core.ErrKindDataStore, "decompress read failed", err)
	}
	return decoded, nil
}
