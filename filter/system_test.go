package filter

import (
	"testing"

	"github.com/sensorhub-io/hub/core"
	"github.com/stretchr/testify/assert"
)

func TestSystemFilterCombinesClauses(t *testing.T) {
	f := AnySystem().WithIDs(1, 2, 3).WithProperties(AnyProperties().WithStringMatch("kind", "weather*"))

	match := core.System{InternalID: 2, Properties: core.Properties{"kind": "weather-station"}, ValidTime: 10}
	assert.True(t, f.Test(match, true, 10))

	wrongID := core.System{InternalID: 99, Properties: core.Properties{"kind": "weather-station"}, ValidTime: 10}
	assert.False(t, f.Test(wrongID, true, 10))

	wrongKind := core.System{InternalID: 2, Properties: core.Properties{"kind": "camera"}, ValidTime: 10}
	assert.False(t, f.Test(wrongKind, true, 10))
}

func TestSystemFilterValidTime(t *testing.T) {
	f := AnySystem().WithValidTime(LatestVersion())
	sys := core.System{InternalID: 1, ValidTime: 5}
	assert.True(t, f.Test(sys, true, 0))
	assert.False(t, f.Test(sys, false, 0))
}

func TestSystemFilterIntersectEmptyIDs(t *testing.T) {
	a := AnySystem().WithIDs(1, 2)
	b := AnySystem().WithIDs(3, 4)
	_, ok := a.Intersect(b)
	assert.False(t, ok)
}

func TestSystemFilterIntersectMergesIDs(t *testing.T) {
	a := AnySystem().WithIDs(1, 2, 3)
	b := AnySystem().WithIDs(2, 3, 4)
	merged, ok := a.Intersect(b)
	assert.True(t, ok)
	assert.ElementsMatch(t, []int64{2, 3}, merged.IDs.ToSlice())
}
