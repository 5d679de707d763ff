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

func newTestObservationStore(t *testing.T) (*ObservationStore, *DataStreamStore) {
	t.Helper()
	kv, err := kvstore.Open(kvstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	clock := &fakeClock{now: 1000}
	ds := NewDataStreamStore(kv, core.NewIDAllocator(100), clock)
	obs := NewObservationStore(kv, core.NewIDAllocator(1), clock, ds)
	return obs, ds
}

func TestObservationAddAllocatesSeriesOnce(t *testing.T) {
	s, dsStore := newTestObservationStore(t)
	ctx := context.Background()

	ds, _, err := dsStore.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	id1, err := s.Add(ctx, ds.DataStreamID, core.NoFOI, 0, 100, []byte("v1"), nil)
	require.NoError(t, err)

	id2, err := s.Add(ctx, ds.DataStreamID, core.NoFOI, 0, 200, []byte("v2"), nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "same (dataStream, foi, resultTime) triple must share one seriesID")

	series, err := s.Series(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, ds.DataStreamID, series.DataStreamID)
	assert.Equal(t, core.NoFOI, series.FoiID)

	obs, err := s.Get(ctx, id1, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), obs.ResultBlock)
}

func TestObservationAddDistinctFoiGetsDistinctSeries(t *testing.T) {
	s, dsStore := newTestObservationStore(t)
	ctx := context.Background()

	ds, _, err := dsStore.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	id1, err := s.Add(ctx, ds.DataStreamID, 10, 0, 100, []byte("a"), nil)
	require.NoError(t, err)
	id2, err := s.Add(ctx, ds.DataStreamID, 20, 0, 100, []byte("b"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestObservationAddExtendsObservedTimeRange(t *testing.T) {
	s, dsStore := newTestObservationStore(t)
	ctx := context.Background()

	ds, _, err := dsStore.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	_, err = s.Add(ctx, ds.DataStreamID, core.NoFOI, 0, 500, nil, nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, ds.DataStreamID, core.NoFOI, 0, 1500, nil, nil)
	require.NoError(t, err)

	got, err := dsStore.Get(ctx, ds.DataStreamID)
	require.NoError(t, err)
	assert.Equal(t, core.Instant(500), got.ObservedTimeRangeBegin)
	assert.Equal(t, core.Instant(1500), got.ObservedTimeRangeEnd)
}

func TestObservationSelectOrdersByPhenomenonTimeGlobally(t *testing.T) {
	s, dsStore := newTestObservationStore(t)
	ctx := context.Background()

	ds, _, err := dsStore.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	_, err = s.Add(ctx, ds.DataStreamID, 1, 0, 300, []byte("fois1-later"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, ds.DataStreamID, 2, 0, 100, []byte("fois2-earlier"), nil)
	require.NoError(t, err)

	cur, err := s.Select(ctx, []int64{ds.DataStreamID}, filter.AnyID(), filter.AllTimes(), filter.AllTimes(), nil, true)
	require.NoError(t, err)
	defer cur.Close()

	var times []core.Instant
	for cur.Next() {
		times = append(times, cur.At().PhenomenonTime)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []core.Instant{100, 300}, times)
}

func TestObservationSelectFiltersByFoi(t *testing.T) {
	s, dsStore := newTestObservationStore(t)
	ctx := context.Background()

	ds, _, err := dsStore.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	_, err = s.Add(ctx, ds.DataStreamID, 1, 0, 100, []byte("wanted"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, ds.DataStreamID, 2, 0, 200, []byte("unwanted"), nil)
	require.NoError(t, err)

	cur, err := s.Select(ctx, []int64{ds.DataStreamID}, filter.IDIn(1), filter.AllTimes(), filter.AllTimes(), nil, false)
	require.NoError(t, err)
	defer cur.Close()

	var blocks [][]byte
	for cur.Next() {
		blocks = append(blocks, cur.At().ResultBlock)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, [][]byte{[]byte("wanted")}, blocks)
}

func TestObservationSelectAppliesValuePredicate(t *testing.T) {
	s, dsStore := newTestObservationStore(t)
	ctx := context.Background()

	ds, _, err := dsStore.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	_, err = s.Add(ctx, ds.DataStreamID, core.NoFOI, 0, 100, nil, core.FieldValues{"temperature": 10.0})
	require.NoError(t, err)
	_, err = s.Add(ctx, ds.DataStreamID, core.NoFOI, 0, 200, nil, core.FieldValues{"temperature": 99.0})
	require.NoError(t, err)

	predicate := func(o core.ObsData) bool {
		v, ok := o.Fields["temperature"].(float64)
		return ok && v > 50
	}

	count, err := s.CountMatching(ctx, []int64{ds.DataStreamID}, filter.AnyID(), filter.AllTimes(), filter.AllTimes(), predicate)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
