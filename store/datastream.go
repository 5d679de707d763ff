package store

import (
	"context"
	"encoding/binary"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/kvstore"
)

// DataStreamStore maps (systemID, outputName) to a stream descriptor, with
// structural-compatibility-driven versioning (spec §4.3). Unlike
// FeatureStore, a compatible update mutates the existing stream row in
// place; an incompatible one allocates a brand-new dataStreamID so
// observations already indexed under the old one stay addressable, while
// the (systemID, outputName) pointer moves forward to the new one.
type DataStreamStore struct {
	kv           *kvstore.Store
	primary      *kvstore.NamedMap // dataStreamID(8) -> DataStream
	byOutput     *kvstore.NamedMap // systemID(8)+outputName -> current dataStreamID(8)
	outputHistory *kvstore.NamedMap // systemID(8)+outputName+dataStreamID(8) -> {} (every ID that ever served this output)
	compressor   core.Compressor
	alloc        *core.IDAllocator
	clock        core.Clock
}

func NewDataStreamStore(kv *kvstore.Store, alloc *core.IDAllocator, clock core.Clock) *DataStreamStore {
	if clock == nil {
		clock = core.SystemClock
	}
	return &DataStreamStore{
		kv:            kv,
		primary:       kv.NamedMap("datastreams"),
		byOutput:      kv.NamedMap("datastreams.byoutput"),
		outputHistory: kv.NamedMap("datastreams.history"),
		compressor:    core.NoopCompressor{},
		alloc:         alloc,
		clock:         clock,
	}
}

func outputKey(systemID int64, outputName string) []byte {
	buf := make([]byte, 8+len(outputName))
	binary.BigEndian.PutUint64(buf[0:8], uint64(systemID))
	copy(buf[8:], outputName)
	return buf
}

func streamIDKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// RecordStructureIdentical reports whether two record structures are
// byte-identical (name, leaf order, types and units all equal).
func RecordStructureIdentical(a, b core.RecordStructure) bool {
	return a.Name == b.Name && fieldsEqual(a.Fields, b.Fields, true)
}

// RecordStructureCompatible reports whether two record structures share the
// same tree shape and leaf types, relaxing unit differences (spec §4.3).
func RecordStructureCompatible(a, b core.RecordStructure) bool {
	return a.Name == b.Name && fieldsEqual(a.Fields, b.Fields, false)
}

func fieldsEqual(a, b []core.RecordField, strict bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
		if a[i].DataType != b[i].DataType {
			return false
		}
		if strict && a[i].Unit != b[i].Unit {
			return false
		}
		if !fieldsEqual(a[i].Children, b[i].Children, strict) {
			return false
		}
	}
	return true
}

// Register implements the five-step registration algorithm from spec §4.3.
// created reports whether a brand-new dataStreamID was allocated (either
// because none existed yet, or because the structure was incompatible).
func (s *DataStreamStore) Register(ctx context.Context, systemID int64, outputName string, structure core.RecordStructure, encoding core.CompressionType) (ds core.DataStream, created bool, err error) {
	key := outputKey(systemID, outputName)
	err = s.kv.Update(ctx, func(txn *kvstore.Txn) error {
		raw, lookupErr := s.byOutput.Get(txn, key)
		if lookupErr == core.ErrNotFound {
			ds = s.newStream(systemID, outputName, structure, encoding)
			created = true
			return s.writeStream(txn, ds, key)
		} else if lookupErr != nil {
			return lookupErr
		}

		currentID := int64(binary.BigEndian.Uint64(raw))
		currentRaw, err := s.primary.GetDecoded(txn, streamIDKey(currentID))
		if err != nil {
			return err
		}
		current, err := decodeEntity[core.DataStream](currentRaw)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "decode data stream failed", err)
		}

		switch {
		case RecordStructureIdentical(current.RecordStructure, structure) && current.RecordEncoding == encoding:
			ds, created = current, false
			return nil
		case RecordStructureCompatible(current.RecordStructure, structure):
			current.RecordStructure = structure
			current.RecordEncoding = encoding
			current.ValidTime = s.clock.Now()
			ds, created = current, false
			return s.writeStream(txn, current, nil)
		default:
			ds = s.newStream(systemID, outputName, structure, encoding)
			created = true
			return s.writeStream(txn, ds, key)
		}
	})
	return ds, created, err
}

func (s *DataStreamStore) newStream(systemID int64, outputName string, structure core.RecordStructure, encoding core.CompressionType) core.DataStream {
	return core.DataStream{
		DataStreamID:    s.alloc.Next(),
		SystemID:        systemID,
		OutputName:      outputName,
		RecordStructure: structure,
		RecordEncoding:  encoding,
		ValidTime:       s.clock.Now(),
	}
}

// writeStream persists ds and, when outputKey is non-nil, points the
// (systemID, outputName) index at it and records it in the output's
// full history.
func (s *DataStreamStore) writeStream(txn *kvstore.Txn, ds core.DataStream, outKey []byte) error {
	payload, err := encodeEntity(ds)
	if err != nil {
		return core.WrapError(core.ErrKindDataStore, "encode data stream failed", err)
	}
	if err := s.primary.PutEncoded(txn, streamIDKey(ds.DataStreamID), payload, s.compressor); err != nil {
		return err
	}
	if outKey == nil {
		return nil
	}
	if err := s.byOutput.Put(txn, outKey, streamIDKey(ds.DataStreamID)); err != nil {
		return err
	}
	histKey := append(append([]byte{}, outKey...), streamIDKey(ds.DataStreamID)...)
	return s.outputHistory.Put(txn, histKey, []byte{1})
}

// Get fetches one data stream by ID.
func (s *DataStreamStore) Get(ctx context.Context, id int64) (core.DataStream, error) {
	var ds core.DataStream
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.primary.GetDecoded(txn, streamIDKey(id))
		if err != nil {
			return err
		}
		ds, err = decodeEntity[core.DataStream](raw)
		return err
	})
	return ds, err
}

// HistoryFor returns every dataStreamID that has ever served
// (systemID, outputName), oldest first — used to resolve a data-stream
// filter that only names an output, across incompatible-change history.
func (s *DataStreamStore) HistoryFor(ctx context.Context, systemID int64, outputName string) ([]int64, error) {
	prefix := outputKey(systemID, outputName)
	var ids []int64
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		return s.outputHistory.Scan(txn, prefix, func(key, _ []byte) (bool, error) {
			if len(key) != len(prefix)+8 {
				// A longer output name that starts with outputName.
				return true, nil
			}
			ids = append(ids, int64(binary.BigEndian.Uint64(key[len(prefix):])))
			return true, nil
		})
	})
	return ids, err
}

// ExtendObservedTimeRange widens ds's observed time range monotonically to
// include t, never shrinking it back (spec §4.4 step 3).
func (s *DataStreamStore) ExtendObservedTimeRange(ctx context.Context, id int64, t core.Instant) error {
	return s.kv.Update(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.primary.GetDecoded(txn, streamIDKey(id))
		if err != nil {
			return err
		}
		ds, err := decodeEntity[core.DataStream](raw)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "decode data stream failed", err)
		}
		changed := false
		if ds.ObservedTimeRangeBegin == core.TimeZero || t < ds.ObservedTimeRangeBegin {
			ds.ObservedTimeRangeBegin = t
			changed = true
		}
		if t > ds.ObservedTimeRangeEnd {
			ds.ObservedTimeRangeEnd = t
			changed = true
		}
		if !changed {
			return nil
		}
		return s.writeStream(txn, ds, nil)
	})
}

// ForSystem returns the current data stream for every output registered
// under systemID, in byte order of the output names. Used by the REST
// layer's nested /systems/{id}/datastreams collection (spec §4.8); it
// prefix-scans the byOutput index on systemID's 8 bytes, where HistoryFor
// scans the outputHistory index on a full (systemID, outputName) key.
func (s *DataStreamStore) ForSystem(ctx context.Context, systemID int64) ([]core.DataStream, error) {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(systemID))
	var out []core.DataStream
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		return s.byOutput.Scan(txn, prefix, func(_, value []byte) (bool, error) {
			id := int64(binary.BigEndian.Uint64(value))
			raw, err := s.primary.GetDecoded(txn, streamIDKey(id))
			if err != nil {
				return false, err
			}
			ds, err := decodeEntity[core.DataStream](raw)
			if err != nil {
				return false, core.WrapError(core.ErrKindDataStore, "decode data stream failed", err)
			}
			out = append(out, ds)
			return true, nil
		})
	})
	return out, err
}
