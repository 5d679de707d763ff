package filter

import (
	"testing"

	"github.com/sensorhub-io/hub/core"
	"github.com/stretchr/testify/assert"
)

func box(minX, minY, maxX, maxY float64) core.Geometry {
	return core.Geometry{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

func TestSpatialAnywhereMatchesNilGeometry(t *testing.T) {
	assert.True(t, AnywhereFilter().Test(nil))
}

func TestSpatialConcreteFilterRejectsNilGeometry(t *testing.T) {
	f := Intersects(box(0, 0, 10, 10))
	assert.False(t, f.Test(nil))
}

func TestSpatialIntersectsOverlapping(t *testing.T) {
	f := Intersects(box(0, 0, 10, 10))
	g := box(5, 5, 15, 15)
	assert.True(t, f.Test(&g))
}

func TestSpatialIntersectsDisjoint(t *testing.T) {
	f := Intersects(box(0, 0, 10, 10))
	g := box(20, 20, 30, 30)
	assert.False(t, f.Test(&g))
}

func TestSpatialContains(t *testing.T) {
	f := Contains(box(0, 0, 100, 100))
	inside := box(10, 10, 20, 20)
	outside := box(-5, 10, 20, 20)
	assert.True(t, f.Test(&inside))
	assert.False(t, f.Test(&outside))
}

func TestSpatialIntersectDisjointRegions(t *testing.T) {
	a := Intersects(box(0, 0, 10, 10))
	b := Intersects(box(20, 20, 30, 30))
	_, ok := a.Intersect(b)
	assert.False(t, ok)
}

func TestSpatialIntersectOverlappingRegions(t *testing.T) {
	a := Intersects(box(0, 0, 10, 10))
	b := Intersects(box(5, 5, 15, 15))
	merged, ok := a.Intersect(b)
	assert.True(t, ok)
	overlap := box(6, 6, 7, 7)
	assert.True(t, merged.Test(&overlap))
}
