package filter

import "github.com/sensorhub-io/hub/core"

// System is the composite filter over systems/procedures from spec §4.1:
// an ID set, a spatial predicate, a properties predicate and a temporal
// predicate over validTime, all implicitly ANDed together.
type System struct {
	IDs        IDSet
	Region     Spatial
	Props      Properties
	ValidTime  Temporal
	ParentIDs  IDSet
}

// AnySystem is the identity system filter.
func AnySystem() System {
	return System{IDs: AnyID(), Region: AnywhereFilter(), Props: AnyProperties(), ValidTime: AllTimes(), ParentIDs: AnyID()}
}

func (f System) WithIDs(ids ...int64) System        { f.IDs = IDIn(ids...); return f }
func (f System) WithRegion(s Spatial) System         { f.Region = s; return f }
func (f System) WithProperties(p Properties) System  { f.Props = p; return f }
func (f System) WithValidTime(t Temporal) System     { f.ValidTime = t; return f }
func (f System) WithParentIDs(ids ...int64) System   { f.ParentIDs = IDIn(ids...); return f }

// Test reports whether the given version of sys, and whether it is the
// latest in its version history, satisfies every clause of the filter.
func (f System) Test(sys core.System, isLatest bool, now core.Instant) bool {
	if !f.IDs.Test(sys.InternalID) {
		return false
	}
	if !f.ParentIDs.IsUniverse() && !f.ParentIDs.Test(sys.ParentID) {
		return false
	}
	if !f.Region.Test(sys.Geom) {
		return false
	}
	if !f.Props.Test(sys.Properties) {
		return false
	}
	return f.ValidTime.Test(sys.ValidTime, isLatest, now)
}

// Intersect combines two system filters clause by clause. ok is false as
// soon as any single clause's intersection is provably empty.
func (f System) Intersect(other System) (System, bool) {
	ids, ok := f.IDs.Intersect(other.IDs)
	if !ok {
		return System{}, false
	}
	parents, ok := f.ParentIDs.Intersect(other.ParentIDs)
	if !ok {
		return System{}, false
	}
	region, ok := f.Region.Intersect(other.Region)
	if !ok {
		return System{}, false
	}
	props, _ := f.Props.Intersect(other.Props)
	valid, ok := f.ValidTime.Intersect(other.ValidTime)
	if !ok {
		return System{}, false
	}
	return System{IDs: ids, ParentIDs: parents, Region: region, Props: props, ValidTime: valid}, true
}
