package db

import (
	"context"
	"testing"
	"time"

	"github.com/sensorhub-io/hub/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	f, err := Open(Options{InMemory: true, AutoCommitInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFacadeComposesAllFourStores(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	sysKey, err := f.Systems.Add(ctx, core.System{UID: "urn:sys:000000000001", Name: "weather-1"})
	require.NoError(t, err)

	ds, created, err := f.DataStreams.Register(ctx, sysKey.InternalID, "temperature", tempStructureForFacadeTest(), core.CompressionSnappy)
	require.NoError(t, err)
	assert.True(t, created)

	seriesID, err := f.Observations.Add(ctx, ds.DataStreamID, core.NoFOI, 0, 100, []byte("v"), nil)
	require.NoError(t, err)
	assert.NotZero(t, seriesID)
}

func TestFacadeAllocatorsSurviveRestart(t *testing.T) {
	dir := t.TempDir()

	f1, err := Open(Options{DataDir: dir, AutoCommitInterval: time.Hour})
	require.NoError(t, err)

	ctx := context.Background()
	key1, err := f1.Systems.Add(ctx, core.System{UID: "urn:sys:000000000001", Name: "one"})
	require.NoError(t, err)
	require.NoError(t, f1.Commit(ctx))
	require.NoError(t, f1.Close())

	f2, err := Open(Options{DataDir: dir, AutoCommitInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f2.Close() })

	key2, err := f2.Systems.Add(ctx, core.System{UID: "urn:sys:000000000002", Name: "two"})
	require.NoError(t, err)
	assert.Greater(t, key2.InternalID, key1.InternalID, "restart must not reuse a previously allocated internal ID")
}

func TestFacadeExecuteTransactionRunsFn(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	var ran int
	err := f.ExecuteTransaction(ctx, func(ctx context.Context) error {
		ran++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
}

func tempStructureForFacadeTest() core.RecordStructure {
	return core.RecordStructure{
		Name: "record",
		Fields: []core.RecordField{
			{Name: "time", DataType: "time"},
			{Name: "temperature", DataType: "double", Unit: "Cel"},
		},
	}
}
