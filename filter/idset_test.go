package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSetAnyIDMatchesEverything(t *testing.T) {
	f := AnyID()
	assert.True(t, f.Test(1))
	assert.True(t, f.Test(999999))
	assert.True(t, f.IsUniverse())
}

func TestIDSetMembership(t *testing.T) {
	f := IDIn(1, 5, 9)
	assert.True(t, f.Test(1))
	assert.True(t, f.Test(5))
	assert.True(t, f.Test(9))
	assert.False(t, f.Test(2))
	assert.False(t, f.IsUniverse())
}

func TestIDSetIntersectWithUniverse(t *testing.T) {
	f := IDIn(1, 2, 3)
	merged, ok := f.Intersect(AnyID())
	assert.True(t, ok)
	assert.ElementsMatch(t, []int64{1, 2, 3}, merged.ToSlice())

	merged, ok = AnyID().Intersect(f)
	assert.True(t, ok)
	assert.ElementsMatch(t, []int64{1, 2, 3}, merged.ToSlice())
}

func TestIDSetIntersectConcreteSets(t *testing.T) {
	a := IDIn(1, 2, 3, 4)
	b := IDIn(3, 4, 5, 6)
	merged, ok := a.Intersect(b)
	assert.True(t, ok)
	assert.ElementsMatch(t, []int64{3, 4}, merged.ToSlice())
}

func TestIDSetIntersectEmptyResult(t *testing.T) {
	a := IDIn(1, 2)
	b := IDIn(3, 4)
	_, ok := a.Intersect(b)
	assert.False(t, ok)
}
