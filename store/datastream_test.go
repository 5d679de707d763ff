package store

import (
	"context"
	"testing"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDataStreamStore(t *testing.T) (*DataStreamStore, *fakeClock) {
	t.Helper()
	kv, err := kvstore.Open(kvstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	clock := &fakeClock{now: 1000}
	return NewDataStreamStore(kv, core.NewIDAllocator(1), clock), clock
}

func tempStructure() core.RecordStructure {
	return core.RecordStructure{
		Name: "record",
		Fields: []core.RecordField{
			{Name: "time", DataType: "time"},
			{Name: "temperature", DataType: "double", Unit: "Cel"},
		},
	}
}

func TestDataStreamRegisterCreatesOnFirstSight(t *testing.T) {
	s, _ := newTestDataStreamStore(t)
	ctx := context.Background()

	ds, created, err := s.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), ds.DataStreamID)
}

func TestDataStreamRegisterIdenticalIsNoOp(t *testing.T) {
	s, _ := newTestDataStreamStore(t)
	ctx := context.Background()

	first, _, err := s.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	second, created, err := s.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.DataStreamID, second.DataStreamID)
	assert.Equal(t, first.ValidTime, second.ValidTime)
}

func TestDataStreamRegisterCompatibleUpdatesInPlace(t *testing.T) {
	s, clock := newTestDataStreamStore(t)
	ctx := context.Background()

	first, _, err := s.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	relaxed := tempStructure()
	relaxed.Fields[1].Unit = "degF" // unit-only change: compatible, not identical

	clock.now = 2000
	second, created, err := s.Register(ctx, 1, "temperature", relaxed, core.CompressionSnappy)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.DataStreamID, second.DataStreamID)
	assert.Greater(t, second.ValidTime, first.ValidTime)
	assert.Equal(t, "degF", second.RecordStructure.Fields[1].Unit)
}

func TestDataStreamRegisterIncompatibleAllocatesNewID(t *testing.T) {
	s, _ := newTestDataStreamStore(t)
	ctx := context.Background()

	first, _, err := s.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	incompatible := core.RecordStructure{
		Name: "record",
		Fields: []core.RecordField{
			{Name: "time", DataType: "time"},
			{Name: "temperature", DataType: "string"}, // type changed: incompatible
		},
	}
	second, created, err := s.Register(ctx, 1, "temperature", incompatible, core.CompressionSnappy)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.DataStreamID, second.DataStreamID)

	// The old stream is still addressable directly.
	old, err := s.Get(ctx, first.DataStreamID)
	require.NoError(t, err)
	assert.Equal(t, "double", old.RecordStructure.Fields[1].DataType)

	history, err := s.HistoryFor(ctx, 1, "temperature")
	require.NoError(t, err)
	assert.Equal(t, []int64{first.DataStreamID, second.DataStreamID}, history)
}

func TestDataStreamExtendObservedTimeRangeIsMonotonic(t *testing.T) {
	s, _ := newTestDataStreamStore(t)
	ctx := context.Background()

	ds, _, err := s.Register(ctx, 1, "temperature", tempStructure(), core.CompressionSnappy)
	require.NoError(t, err)

	require.NoError(t, s.ExtendObservedTimeRange(ctx, ds.DataStreamID, 500))
	require.NoError(t, s.ExtendObservedTimeRange(ctx, ds.DataStreamID, 1500))
	require.NoError(t, s.ExtendObservedTimeRange(ctx, ds.DataStreamID, 800)) // must not shrink

	got, err := s.Get(ctx, ds.DataStreamID)
	require.NoError(t, err)
	assert.Equal(t, core.Instant(500), got.ObservedTimeRangeBegin)
	assert.Equal(t, core.Instant(1500), got.ObservedTimeRangeEnd)
}
