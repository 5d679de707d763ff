package filter

import "github.com/sensorhub-io/hub/core"

// FOI is the composite filter over features of interest, structurally
// identical to System (spec §4.1: FOIs and systems share the same
// versioned-entity shape) but kept as a distinct type so callers can't mix
// up a system filter with a FOI filter at compile time.
type FOI struct {
	IDs       IDSet
	Region    Spatial
	Props     Properties
	ValidTime Temporal
}

func AnyFOI() FOI {
	return FOI{IDs: AnyID(), Region: AnywhereFilter(), Props: AnyProperties(), ValidTime: AllTimes()}
}

func (f FOI) WithIDs(ids ...int64) FOI       { f.IDs = IDIn(ids...); return f }
func (f FOI) WithRegion(s Spatial) FOI       { f.Region = s; return f }
func (f FOI) WithProperties(p Properties) FOI { f.Props = p; return f }
func (f FOI) WithValidTime(t Temporal) FOI   { f.ValidTime = t; return f }

func (f FOI) Test(foi core.FOI, isLatest bool, now core.Instant) bool {
	if !f.IDs.Test(foi.InternalID) {
		return false
	}
	if !f.Region.Test(foi.Geom) {
		return false
	}
	if !f.Props.Test(foi.Properties) {
		return false
	}
	return f.ValidTime.Test(foi.ValidTime, isLatest, now)
}

func (f FOI) Intersect(other FOI) (FOI, bool) {
	ids, ok := f.IDs.Intersect(other.IDs)
	if !ok {
		return FOI{}, false
	}
	region, ok := f.Region.Intersect(other.Region)
	if !ok {
		return FOI{}, false
	}
	props, _ := f.Props.Intersect(other.Props)
	valid, ok := f.ValidTime.Intersect(other.ValidTime)
	if !ok {
		return FOI{}, false
	}
	return FOI{IDs: ids, Region: region, Props: props, ValidTime: valid}, true
}
