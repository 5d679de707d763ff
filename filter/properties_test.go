package filter

import (
	"testing"

	"github.com/sensorhub-io/hub/core"
	"github.com/stretchr/testify/assert"
)

func TestPropertiesAnyMatchesEverything(t *testing.T) {
	assert.True(t, AnyProperties().Test(core.Properties{}))
	assert.True(t, AnyProperties().Test(core.Properties{"foo": "bar"}))
}

func TestPropertiesStringWildcard(t *testing.T) {
	f := AnyProperties().WithStringMatch("model", "temp-*")
	assert.True(t, f.Test(core.Properties{"model": "temp-3000"}))
	assert.False(t, f.Test(core.Properties{"model": "humid-3000"}))
	assert.False(t, f.Test(core.Properties{}))
}

func TestPropertiesNumericEquals(t *testing.T) {
	f := AnyProperties().WithNumericEquals("elevation", 100)
	assert.True(t, f.Test(core.Properties{"elevation": float64(100)}))
	assert.False(t, f.Test(core.Properties{"elevation": float64(50)}))
}

func TestPropertiesConjunction(t *testing.T) {
	f := AnyProperties().WithStringMatch("model", "temp-*").WithNumericEquals("elevation", 100)
	assert.True(t, f.Test(core.Properties{"model": "temp-1", "elevation": float64(100)}))
	assert.False(t, f.Test(core.Properties{"model": "temp-1", "elevation": float64(50)}))
}

func TestPropertiesIntersectConcatenatesClauses(t *testing.T) {
	a := AnyProperties().WithStringMatch("model", "temp-*")
	b := AnyProperties().WithNumericEquals("elevation", 100)
	merged, ok := a.Intersect(b)
	assert.True(t, ok)
	assert.True(t, merged.Test(core.Properties{"model": "temp-1", "elevation": float64(100)}))
	assert.False(t, merged.Test(core.Properties{"model": "temp-1", "elevation": float64(50)}))
}
