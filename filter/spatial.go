package filter

import "github.com/sensorhub-io/hub/core"

// Spatial is an immutable geometric predicate over a System or FOI's
// location (spec §4.1). A nil Region means "match any location, including
// entities with no geometry at all."
type Spatial struct {
	Op     core.GeometryOp
	Region *core.Geometry
	// DistanceMeters is only meaningful for GeomWithinDistance.
	DistanceMeters float64
}

// AnywhereFilter is the identity spatial filter.
func AnywhereFilter() Spatial { return Spatial{} }

func Intersects(region core.Geometry) Spatial {
	return Spatial{Op: core.GeomIntersects, Region: &region}
}

func Contains(region core.Geometry) Spatial {
	return Spatial{Op: core.GeomContains, Region: &region}
}

func WithinDistance(region core.Geometry, meters float64) Spatial {
	return Spatial{Op: core.GeomWithinDistance, Region: &region, DistanceMeters: meters}
}

// Test reports whether geom (an entity's own geometry, nil if it has none)
// satisfies the filter. Entities with no geometry never match a concrete
// spatial filter.
func (f Spatial) Test(geom *core.Geometry) bool {
	if f.Region == nil {
		return true
	}
	if geom == nil {
		return false
	}
	switch f.Op {
	case core.GeomIntersects:
		return !f.Region.Disjoint(*geom)
	case core.GeomContains:
		return geom.MinX >= f.Region.MinX && geom.MaxX <= f.Region.MaxX &&
			geom.MinY >= f.Region.MinY && geom.MaxY <= f.Region.MaxY
	case core.GeomWithinDistance:
		// Bounding-box pre-filter only; the true distance predicate is
		// delegated to an external geometry collaborator (spec §1
		// Non-goals), so this over-matches conservatively rather than
		// missing candidates.
		return !f.Region.Disjoint(*geom)
	default:
		return false
	}
}

// Intersect narrows two spatial filters to their bounding-box conjunction.
// A provably disjoint pair of concrete regions collapses to an empty
// filter; any other pair of regions becomes one Intersects filter over the
// overlap of the two boxes, whatever the operators of the inputs were.
func (f Spatial) Intersect(other Spatial) (Spatial, bool) {
	if f.Region == nil {
		return other, true
	}
	if other.Region == nil {
		return f, true
	}
	if f.Region.Disjoint(*other.Region) {
		return Spatial{}, false
	}
	// The overlap box of the two regions.
	minX, minY := max(f.Region.MinX, other.Region.MinX), max(f.Region.MinY, other.Region.MinY)
	maxX, maxY := min(f.Region.MaxX, other.Region.MaxX), min(f.Region.MaxY, other.Region.MaxY)
	return Spatial{Op: core.GeomIntersects, Region: &core.Geometry{
		MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY,
	}}, true
}
