package store

import (
	"context"
	"sort"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/filter"
	"github.com/sensorhub-io/hub/kvstore"
)

// FeatureStore is the generic versioned feature store from spec §4.2:
// systems/procedures and features of interest are both instances of this
// one type, parameterized by a small EntityCodec instead of inheriting
// from a shared base class.
type FeatureStore[T any] struct {
	kv         *kvstore.Store
	primary    *kvstore.NamedMap
	uidIndex   *kvstore.NamedMap
	compressor core.Compressor
	codec      EntityCodec[T]
	alloc      *core.IDAllocator
	clock      core.Clock
}

// NewFeatureStore builds a FeatureStore backed by two named maps within kv:
// "<name>" for the primary (internalID, validTime) -> entity index and
// "<name>.uid" for the uid -> internalID index.
func NewFeatureStore[T any](kv *kvstore.Store, name string, codec EntityCodec[T], alloc *core.IDAllocator, clock core.Clock) *FeatureStore[T] {
	if clock == nil {
		clock = core.SystemClock
	}
	return &FeatureStore[T]{
		kv:         kv,
		primary:    kv.NamedMap(name),
		uidIndex:   kv.NamedMap(name + ".uid"),
		compressor: core.NoopCompressor{},
		codec:      codec,
		alloc:      alloc,
		clock:      clock,
	}
}

// Add assigns a fresh internalID to e and stores it as the entity's first
// version. It fails with core.ErrAlreadyExists if e's UID is already
// registered.
func (s *FeatureStore[T]) Add(ctx context.Context, e T) (core.FeatureKey, error) {
	uid := s.codec.UID(e)
	var key core.FeatureKey
	err := s.kv.Update(ctx, func(txn *kvstore.Txn) error {
		if _, err := s.uidIndex.Get(txn, []byte(uid)); err == nil {
			return core.ErrAlreadyExists
		} else if err != core.ErrNotFound {
			return err
		}

		id := s.alloc.Next()
		vt := s.codec.ValidTime(e)
		if vt == core.TimeZero {
			vt = s.clock.Now()
		}
		s.codec.SetInternalID(&e, id)
		s.codec.SetValidTime(&e, vt)

		payload, err := encodeEntity(e)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "encode entity failed", err)
		}
		if err := s.primary.PutEncoded(txn, encodeFeatureKey(id, vt), payload, s.compressor); err != nil {
			return err
		}
		if err := s.uidIndex.Put(txn, []byte(uid), encodeUIDIndexValue(id)); err != nil {
			return err
		}
		key = core.FeatureKey{InternalID: id, ValidTime: vt}
		return nil
	})
	return key, err
}

// AddVersion appends a new version to an already-registered UID, with
// validTime set to now.
func (s *FeatureStore[T]) AddVersion(ctx context.Context, e T) (core.FeatureKey, error) {
	uid := s.codec.UID(e)
	var key core.FeatureKey
	err := s.kv.Update(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.uidIndex.Get(txn, []byte(uid))
		if err != nil {
			return err
		}
		id := decodeUIDIndexValue(raw)
		vt := s.clock.Now()
		s.codec.SetInternalID(&e, id)
		s.codec.SetValidTime(&e, vt)

		payload, err := encodeEntity(e)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "encode entity failed", err)
		}
		if err := s.primary.PutEncoded(txn, encodeFeatureKey(id, vt), payload, s.compressor); err != nil {
			return err
		}
		key = core.FeatureKey{InternalID: id, ValidTime: vt}
		return nil
	})
	return key, err
}

// Put overwrites the version identified by key in place and returns the
// value it replaced.
func (s *FeatureStore[T]) Put(ctx context.Context, key core.FeatureKey, e T) (T, error) {
	var previous T
	err := s.kv.Update(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.primary.GetDecoded(txn, encodeFeatureKey(key.InternalID, key.ValidTime))
		if err != nil {
			return err
		}
		previous, err = decodeEntity[T](raw)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "decode entity failed", err)
		}

		s.codec.SetInternalID(&e, key.InternalID)
		s.codec.SetValidTime(&e, key.ValidTime)
		payload, err := encodeEntity(e)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "encode entity failed", err)
		}
		return s.primary.PutEncoded(txn, encodeFeatureKey(key.InternalID, key.ValidTime), payload, s.compressor)
	})
	return previous, err
}

// Get fetches the exact version identified by key.
func (s *FeatureStore[T]) Get(ctx context.Context, key core.FeatureKey) (T, error) {
	var out T
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.primary.GetDecoded(txn, encodeFeatureKey(key.InternalID, key.ValidTime))
		if err != nil {
			return err
		}
		out, err = decodeEntity[T](raw)
		if err != nil {
			return core.WrapError(core.ErrKindDataStore, "decode entity failed", err)
		}
		return nil
	})
	return out, err
}

// ResolveUID maps a UID to its internalID.
func (s *FeatureStore[T]) ResolveUID(ctx context.Context, uid string) (int64, error) {
	var id int64
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		raw, err := s.uidIndex.Get(txn, []byte(uid))
		if err != nil {
			return err
		}
		id = decodeUIDIndexValue(raw)
		return nil
	})
	return id, err
}

func (s *FeatureStore[T]) versionsFor(txn *kvstore.Txn, internalID int64) ([]core.FeatureKey, []T, error) {
	var keys []core.FeatureKey
	var values []T
	err := s.primary.Scan(txn, encodeIDPrefix(internalID), func(fullKey, value []byte) (bool, error) {
		entity, err := decodeEnvelopedEntity[T](value)
		if err != nil {
			return false, err
		}
		keys = append(keys, decodeFeatureKey(fullKey))
		values = append(values, entity)
		return true, nil
	})
	return keys, values, err
}

// GetCurrentVersion resolves the "closest to now" version of internalID
// per spec §4.2: the version whose valid interval contains the current
// wall clock, or if none does, the nearest one (earlier preferred on tie).
func (s *FeatureStore[T]) GetCurrentVersion(ctx context.Context, internalID int64) (T, core.FeatureKey, error) {
	var out T
	var key core.FeatureKey
	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		keys, values, err := s.versionsFor(txn, internalID)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return core.ErrNotFound
		}
		idx := closestToNow(keys, s.clock.Now())
		out, key = values[idx], keys[idx]
		return nil
	})
	return out, key, err
}

// GetCurrentVersionByUID resolves uid to an internalID, then delegates to
// GetCurrentVersion.
func (s *FeatureStore[T]) GetCurrentVersionByUID(ctx context.Context, uid string) (T, core.FeatureKey, error) {
	id, err := s.ResolveUID(ctx, uid)
	if err != nil {
		var zero T
		return zero, core.FeatureKey{}, err
	}
	return s.GetCurrentVersion(ctx, id)
}

// closestToNow implements spec §4.2's resolution rule over an
// ascending-validTime slice of keys.
func closestToNow(keys []core.FeatureKey, now core.Instant) int {
	best := 0
	for i, k := range keys {
		if k.ValidTime <= now {
			best = i // last one <= now, since keys is ascending
		}
	}
	if keys[best].ValidTime <= now {
		return best
	}
	// No version has begun yet; pick the nearest, earlier preferred on tie.
	nearest := 0
	nearestDist := absInstant(keys[0].ValidTime - now)
	for i := 1; i < len(keys); i++ {
		d := absInstant(keys[i].ValidTime - now)
		if d < nearestDist {
			nearest, nearestDist = i, d
		}
	}
	return nearest
}

func absInstant(d core.Instant) core.Instant {
	if d < 0 {
		return -d
	}
	return d
}

// SelectEntries scans the entities whose internalID passes ids (a concrete
// set enables an index-pushdown scan restricted to those ids; the identity
// filter scans the whole store), applying test to every version with
// isLatest computed per internalID's own version history, in
// internalID-ascending, validTime-ascending order (spec §4.2).
func (s *FeatureStore[T]) SelectEntries(ctx context.Context, ids filter.IDSet, test func(e T, isLatest bool, now core.Instant) bool) (Cursor[T], error) {
	var outKeys []core.FeatureKey
	var outValues []T
	now := s.clock.Now()

	err := s.kv.View(ctx, func(txn *kvstore.Txn) error {
		emit := func(keys []core.FeatureKey, values []T) {
			for i := range keys {
				isLatest := i == len(keys)-1
				if test(values[i], isLatest, now) {
					outKeys = append(outKeys, keys[i])
					outValues = append(outValues, values[i])
				}
			}
		}

		if !ids.IsUniverse() {
			concreteIDs := ids.ToSlice()
			sort.Slice(concreteIDs, func(i, j int) bool { return concreteIDs[i] < concreteIDs[j] })
			for _, id := range concreteIDs {
				keys, values, err := s.versionsFor(txn, id)
				if err != nil {
					return err
				}
				emit(keys, values)
			}
			return nil
		}

		var groupID int64 = -1
		var groupKeys []core.FeatureKey
		var groupValues []T
		flush := func() {
			if len(groupKeys) > 0 {
				emit(groupKeys, groupValues)
			}
			groupKeys, groupValues = nil, nil
		}
		err := s.primary.Scan(txn, nil, func(rawKey, value []byte) (bool, error) {
			fk := decodeFeatureKey(rawKey)
			if fk.InternalID != groupID {
				flush()
				groupID = fk.InternalID
			}
			entity, err := decodeEnvelopedEntity[T](value)
			if err != nil {
				return false, err
			}
			groupKeys = append(groupKeys, fk)
			groupValues = append(groupValues, entity)
			return true, nil
		})
		flush()
		return err
	})
	if err != nil {
		return nil, err
	}
	return newSliceCursor(outKeys, outValues), nil
}

// RemoveEntries deletes every version passing ids and test, returning the
// number removed.
func (s *FeatureStore[T]) RemoveEntries(ctx context.Context, ids filter.IDSet, test func(e T, isLatest bool, now core.Instant) bool) (int, error) {
	cur, err := s.SelectEntries(ctx, ids, test)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	var keys []core.FeatureKey
	for cur.Next() {
		k, _ := cur.At()
		keys = append(keys, k)
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}

	count := 0
	err = s.kv.Update(ctx, func(txn *kvstore.Txn) error {
		for _, k := range keys {
			if err := s.primary.Delete(txn, encodeFeatureKey(k.InternalID, k.ValidTime)); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}
