package store

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/filter"
	"github.com/sensorhub-io/hub/kvstore"
)

// seriesLockStripes sizes the striped mutex set guarding lazy series
// allocation (spec §4.4 step 1). Grounded on indexer/series_id.go's
// GetOrCreateID double-checked-locking pattern, generalized from one
// global RWMutex to a fixed stripe set addressed by a hash of the series
// key, so unrelated series don't serialize against each other.
const seriesLockStripes = 64

// ObservationStore is the time-series-indexed observation store from spec
// §4.4: a lazily-allocated series table keyed by (dataStreamID, foiID,
// resultTime), a primary (seriesID, phenomenonTime) -> ObsData index, and a
// secondary (dataStreamID, resultTime, foiID) -> seriesID index supporting
// stream-wide scans that aren't scoped to a single FOI.
type ObservationStore struct {
	kv          *kvstore.Store
	seriesTable *kvstore.NamedMap // seriesID(8) -> core.Series
	byKey       *kvstore.NamedMap // dataStreamID(8)+foiID(8)+resultTime(8) -> seriesID(8)
	byDs        *kvstore.NamedMap // dataStreamID(8)+resultTime(8)+foiID(8) -> seriesID(8)
	obsTable    *kvstore.NamedMap // seriesID(8)+phenomenonTime(8) -> core.ObsData
	compressor  core.Compressor
	alloc       *core.IDAllocator
	clock       core.Clock
	dataStreams *DataStreamStore

	stripes [seriesLockStripes]sync.Mutex
}

// NewObservationStore builds the observation store. dataStreams may be nil
// in tests that don't care about observed-time-range extension.
func NewObservationStore(kv *kvstore.Store, alloc *core.IDAllocator, clock core.Clock, dataStreams *DataStreamStore) *ObservationStore {
	if clock == nil {
		clock = core.SystemClock
	}
	return &ObservationStore{
		kv:          kv,
		seriesTable: kv.NamedMap("observations.series"),
		byKey:       kv.NamedMap("observations.bykey"),
		byDs:        kv.NamedMap("observations.byds"),
		obsTable:    kv.NamedMap("observations.obs"),
		compressor:  core.NoopCompressor{},
		alloc:       alloc,
		clock:       clock,
		dataStreams: dataStreams,
	}
}

func seriesKeyBytes(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func tripleKey(dataStreamID, foiID int64, resultTime core.Instant) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], uint64(dataStreamID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(foiID))
	binary.BigEndian.PutUint64(buf[16:24], uint64(resultTime))
	return buf
}

func dsResultFoiKey(dataStreamID int64, resultTime core.Instant, foiID int64) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], uint64(dataStreamID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(resultTime))
	binary.BigEndian.PutUint64(buf[16:24], uint64(foiID))
	return buf
}

func obsKey(seriesID int64, phenomenonTime core.Instant) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(seriesID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(phenomenonTime))
	return buf
}

func stripeIndex(key []byte) int {
	h := fnv.New32a()
	h.Write(key) //nolint:errcheck // hash.Hash.Write never errors
	return int(h.Sum32() % seriesLockStripes)
}

// Add implements spec §4.4's add(obs): resolve or lazily allocate the
// seriesID owning (dataStreamID, foiID, resultTime), store the observation
// under it, and widen the data stream's observed time range.
func (s *ObservationStore) Add(ctx context.Context, dataStreamID, foiID int64, resultTime, phenomenonTime core.Instant, resultBlock []byte, fields core.FieldValues) (int64, error) {
	key := tripleKey(dataStreamID, foiID, resultTime)
	lock := &s.stripes[stripeIndex(key)]
	lock.Lock()
	defer lock.Unlock()

	var seriesID int64
	err := s.kv.Update(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.byKey.Get(txn, key)
		switch {
		case err == nil:
			seriesID = int64(binary.BigEndian.Uint64(raw))
		case err == core.ErrNotFound:
			seriesID = s.alloc.Next()
			series := core.Series{SeriesID: seriesID, DataStreamID: dataStreamID, FoiID: foiID, ResultTime: resultTime}
			payload, encErr := encodeEntity(series)
			if encErr != nil {
				return core.WrapError(core.ErrKindDataStore, "encode series failed", encErr)
			}
			if err := s.seriesTable.PutEncoded(txn, seriesKeyBytes(seriesID), payload, s.compressor); err != nil {
				return err
			}
			if err := s.byKey.Put(txn, key, seriesKeyBytes(seriesID)); err != nil {
				return err
			}
			if err := s.byDs.Put(txn, dsResultFoiKey(dataStreamID, resultTime, foiID), seriesKeyBytes(seriesID)); err != nil {
				return err
			}
		default:
			return err
		}

		obs := core.ObsData{
			SeriesID:       seriesID,
			PhenomenonTime: phenomenonTime,
			ResultTime:     resultTime,
			ResultBlock:    resultBlock,
			Fields:         fields,
		}
		payload, err := encodeEntity(obs)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "encode observation failed", err)
		}
		return s.obsTable.PutEncoded(txn, obsKey(seriesID, phenomenonTime), payload, s.compressor)
	})
	if err != nil {
		return 0, err
	}
	if s.dataStreams != nil {
		if err := s.dataStreams.ExtendObservedTimeRange(ctx, dataStreamID, phenomenonTime); err != nil {
			return 0, err
		}
	}
	return seriesID, nil
}

// Series fetches one series descriptor by ID.
func (s *ObservationStore) Series(ctx context.Context, seriesID int64) (core.Series, error) {
	var out core.Series
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.seriesTable.GetDecoded(txn, seriesKeyBytes(seriesID))
		if err != nil {
			return err
		}
		out, err = decodeEntity[core.Series](raw)
		return err
	})
	return out, err
}

// Get fetches one observation by its (seriesID, phenomenonTime) key.
func (s *ObservationStore) Get(ctx context.Context, seriesID int64, phenomenonTime core.Instant) (core.ObsData, error) {
	var out core.ObsData
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.obsTable.GetDecoded(txn, obsKey(seriesID, phenomenonTime))
		if err != nil {
			return err
		}
		out, err = decodeEntity[core.ObsData](raw)
		return err
	})
	return out, err
}

// resolveSeriesIDs translates a (dataStream, FOI, resultTime) filter into
// the disjoint set of series IDs it matches, ascending, per spec §4.4's
// scan algorithm: a dataStreamFilter and foiFilter are resolved against
// their own stores upstream into concrete dsIDs and an IDSet of FOI ids,
// and this method walks the secondary index one dsID prefix at a time.
func (s *ObservationStore) resolveSeriesIDs(txn *kvstore.Txn, dataStreamIDs []int64, foiIDs filter.IDSet, resultTime filter.Temporal, now core.Instant) ([]int64, error) {
	var ids []int64
	for _, dsID := range dataStreamIDs {
		prefix := seriesKeyBytes(dsID)
		err := s.byDs.Scan(txn, prefix, func(key, value []byte) (bool, error) {
			rt := core.Instant(binary.BigEndian.Uint64(key[8:16]))
			foiID := int64(binary.BigEndian.Uint64(key[16:24]))
			if !resultTime.Test(rt, true, now) {
				return true, nil
			}
			if !foiIDs.Test(foiID) {
				return true, nil
			}
			ids = append(ids, int64(binary.BigEndian.Uint64(value)))
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Select implements spec §4.4's scan: dataStreamIDs and foiIDs narrow the
// candidate series, resultTime and phenomenonTime filter the series table
// and observation index respectively, valuePredicate (may be nil) is
// applied lazily to each decoded observation, and timeGlobalOrder chooses
// between a phenomenonTime-global merge and plain (seriesID,
// phenomenonTime) order.
func (s *ObservationStore) Select(ctx context.Context, dataStreamIDs []int64, foiIDs filter.IDSet, resultTime, phenomenonTime filter.Temporal, valuePredicate func(core.ObsData) bool, timeGlobalOrder bool) (ObsCursor, error) {
	var out []core.ObsData
	now := s.clock.Now()
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		seriesIDs, err := s.resolveSeriesIDs(txn, dataStreamIDs, foiIDs, resultTime, now)
		if err != nil {
			return err
		}
		for _, seriesID := range seriesIDs {
			err := s.obsTable.Scan(txn, seriesKeyBytes(seriesID), func(key, value []byte) (bool, error) {
				pt := core.Instant(binary.BigEndian.Uint64(key[8:16]))
				if !phenomenonTime.Test(pt, true, now) {
					return true, nil
				}
				obs, err := decodeEnvelopedEntity[core.ObsData](value)
				if err != nil {
					return false, err
				}
				if valuePredicate != nil && !valuePredicate(obs) {
					return true, nil
				}
				out = append(out, obs)
				return true, nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if timeGlobalOrder {
		sort.SliceStable(out, func(i, j int) bool { return out[i].PhenomenonTime < out[j].PhenomenonTime })
	}
	return newObsSliceCursor(out), nil
}

// CountMatching returns the number of observations Select would return for
// the same parameters, without materializing the decoded values twice over
// the wire (spec §4.8's countMatchingEntries).
func (s *ObservationStore) CountMatching(ctx context.Context, dataStreamIDs []int64, foiIDs filter.IDSet, resultTime, phenomenonTime filter.Temporal, valuePredicate func(core.ObsData) bool) (int, error) {
	cur, err := s.Select(ctx, dataStreamIDs, foiIDs, resultTime, phenomenonTime, valuePredicate, false)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	n := 0
	for cur.Next() {
		n++
	}
	return n, cur.Err()
}

// ObsCursor is a releasable observation result stream; see Cursor's doc
// comment for why "lazy" here means "releasable" rather than "streamed
// off disk one page at a time."
type ObsCursor interface {
	Next() bool
	At() core.ObsData
	Err() error
	Close() error
}

type obsSliceCursor struct {
	values []core.ObsData
	pos    int
}

func newObsSliceCursor(values []core.ObsData) *obsSliceCursor {
	return &obsSliceCursor{values: values, pos: -1}
}

func (c *obsSliceCursor) Next() bool {
	if c.pos+1 >= len(c.values) {
		return false
	}
	c.pos++
	return true
}

func (c *obsSliceCursor) At() core.ObsData { return c.values[c.pos] }
func (c *obsSliceCursor) Err() error       { return nil }
func (c *obsSliceCursor) Close() error     { return nil }
