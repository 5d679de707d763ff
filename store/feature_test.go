package store

import (
	"context"
	"testing"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/filter"
	"github.com/sensorhub-io/hub/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests control "now" precisely.
type fakeClock struct{ now core.Instant }

func (c *fakeClock) Now() core.Instant { return c.now }

func newTestSystemStore(t *testing.T) (*FeatureStore[core.System], *fakeClock) {
	t.Helper()
	kv, err := kvstore.Open(kvstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	clock := &fakeClock{now: 1000}
	s := NewSystemStore(kv, core.NewIDAllocator(1), clock)
	return s, clock
}

func TestFeatureStoreAddAndGet(t *testing.T) {
	s, _ := newTestSystemStore(t)
	ctx := context.Background()

	key, err := s.Add(ctx, core.System{UID: "urn:sys:001234567890", Name: "Weather Station 1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), key.InternalID)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Weather Station 1", got.Name)
	assert.Equal(t, key.InternalID, got.InternalID)
}

func TestFeatureStoreAddDuplicateUIDFails(t *testing.T) {
	s, _ := newTestSystemStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, core.System{UID: "urn:sys:001234567890", Name: "First"})
	require.NoError(t, err)

	_, err = s.Add(ctx, core.System{UID: "urn:sys:001234567890", Name: "Second"})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestFeatureStoreAddVersionRequiresExistingUID(t *testing.T) {
	s, _ := newTestSystemStore(t)
	ctx := context.Background()

	_, err := s.AddVersion(ctx, core.System{UID: "urn:sys:nonexistent0", Name: "Ghost"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFeatureStoreAddVersionAppendsHistory(t *testing.T) {
	s, clock := newTestSystemStore(t)
	ctx := context.Background()

	first, err := s.Add(ctx, core.System{UID: "urn:sys:001234567890", Name: "v1"})
	require.NoError(t, err)

	clock.now = 2000
	second, err := s.AddVersion(ctx, core.System{UID: "urn:sys:001234567890", Name: "v2"})
	require.NoError(t, err)

	assert.Equal(t, first.InternalID, second.InternalID)
	assert.Greater(t, second.ValidTime, first.ValidTime)

	v1, err := s.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "v1", v1.Name)

	v2, err := s.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.Name)
}

func TestFeatureStoreGetCurrentVersionPicksLatestBeforeNow(t *testing.T) {
	s, clock := newTestSystemStore(t)
	ctx := context.Background()

	clock.now = 100
	key1, err := s.Add(ctx, core.System{UID: "urn:sys:001234567890", Name: "v1"})
	require.NoError(t, err)

	clock.now = 200
	_, err = s.AddVersion(ctx, core.System{UID: "urn:sys:001234567890", Name: "v2"})
	require.NoError(t, err)

	clock.now = 150 // between v1 and v2
	current, key, err := s.GetCurrentVersion(ctx, key1.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "v1", current.Name)
	assert.Equal(t, key1, key)
}

func TestFeatureStoreGetCurrentVersionPicksNearestWhenAllFuture(t *testing.T) {
	s, clock := newTestSystemStore(t)
	ctx := context.Background()

	clock.now = 1000
	_, err := s.Add(ctx, core.System{UID: "urn:sys:001234567890", Name: "future"})
	require.NoError(t, err)

	clock.now = 0
	current, _, err := s.GetCurrentVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "future", current.Name)
}

func TestFeatureStoreSelectEntriesAppliesTestAndIDFilter(t *testing.T) {
	s, _ := newTestSystemStore(t)
	ctx := context.Background()

	k1, err := s.Add(ctx, core.System{UID: "urn:sys:000000000001", Name: "one"})
	require.NoError(t, err)
	k2, err := s.Add(ctx, core.System{UID: "urn:sys:000000000002", Name: "two"})
	require.NoError(t, err)
	_, err = s.Add(ctx, core.System{UID: "urn:sys:000000000003", Name: "three"})
	require.NoError(t, err)

	cur, err := s.SelectEntries(ctx, filter.IDIn(k1.InternalID, k2.InternalID), func(e core.System, isLatest bool, now core.Instant) bool {
		return true
	})
	require.NoError(t, err)
	defer cur.Close()

	var names []string
	for cur.Next() {
		_, v := cur.At()
		names = append(names, v.Name)
	}
	require.NoError(t, cur.Err())
	assert.ElementsMatch(t, []string{"one", "two"}, names)
}

func TestFeatureStoreSelectEntriesFullScanOrdersByInternalID(t *testing.T) {
	s, _ := newTestSystemStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, core.System{UID: "urn:sys:000000000001", Name: "one"})
	require.NoError(t, err)
	_, err = s.Add(ctx, core.System{UID: "urn:sys:000000000002", Name: "two"})
	require.NoError(t, err)

	cur, err := s.SelectEntries(ctx, filter.AnyID(), func(e core.System, isLatest bool, now core.Instant) bool {
		return true
	})
	require.NoError(t, err)
	defer cur.Close()

	var ids []int64
	for cur.Next() {
		k, _ := cur.At()
		ids = append(ids, k.InternalID)
	}
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestFeatureStoreRemoveEntries(t *testing.T) {
	s, _ := newTestSystemStore(t)
	ctx := context.Background()

	k1, err := s.Add(ctx, core.System{UID: "urn:sys:000000000001", Name: "one"})
	require.NoError(t, err)
	_, err = s.Add(ctx, core.System{UID: "urn:sys:000000000002", Name: "two"})
	require.NoError(t, err)

	n, err := s.RemoveEntries(ctx, filter.IDIn(k1.InternalID), func(e core.System, isLatest bool, now core.Instant) bool {
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, k1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
