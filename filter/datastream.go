package filter

import "github.com/sensorhub-io/hub/core"

// DataStream is the composite filter over data streams from spec §4.1: an
// owning-system ID set, an output name set, and temporal predicates over
// the stream's own validTime and its observed time range. ResultTime is
// carried through Intersect but Test does not evaluate it.
type DataStream struct {
	SystemIDs   IDSet
	StreamIDs   IDSet
	OutputNames map[string]struct{} // nil means "any output name"
	ValidTime   Temporal
	ObservedTime Temporal
	ResultTime  Temporal
}

func AnyDataStream() DataStream {
	return DataStream{SystemIDs: AnyID(), StreamIDs: AnyID(), ValidTime: AllTimes(), ObservedTime: AllTimes(), ResultTime: AllTimes()}
}

func (f DataStream) WithSystemIDs(ids ...int64) DataStream { f.SystemIDs = IDIn(ids...); return f }
func (f DataStream) WithStreamIDs(ids ...int64) DataStream { f.StreamIDs = IDIn(ids...); return f }

func (f DataStream) WithOutputNames(names ...string) DataStream {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	f.OutputNames = set
	return f
}

func (f DataStream) WithValidTime(t Temporal) DataStream    { f.ValidTime = t; return f }
func (f DataStream) WithObservedTime(t Temporal) DataStream { f.ObservedTime = t; return f }
func (f DataStream) WithResultTimeRange(t Temporal) DataStream { f.ResultTime = t; return f }

func (f DataStream) Test(ds core.DataStream, isLatest bool, now core.Instant) bool {
	if !f.SystemIDs.Test(ds.SystemID) {
		return false
	}
	if !f.StreamIDs.Test(ds.DataStreamID) {
		return false
	}
	if f.OutputNames != nil {
		if _, ok := f.OutputNames[ds.OutputName]; !ok {
			return false
		}
	}
	if !f.ValidTime.Test(ds.ValidTime, isLatest, now) {
		return false
	}
	if !f.ObservedTime.Test(ds.ObservedTimeRangeBegin, false, now) &&
		!f.ObservedTime.Test(ds.ObservedTimeRangeEnd, false, now) {
		// Neither bound of the stream's own observed range falls inside
		// the requested window; conservatively treat as non-overlapping
		// only when the requested window is a concrete range.
		if f.ObservedTime.Kind == TemporalRange {
			if ds.ObservedTimeRangeEnd <= f.ObservedTime.Begin || ds.ObservedTimeRangeBegin >= f.ObservedTime.End {
				return false
			}
		}
	}
	return true
}

func (f DataStream) Intersect(other DataStream) (DataStream, bool) {
	sys, ok := f.SystemIDs.Intersect(other.SystemIDs)
	if !ok {
		return DataStream{}, false
	}
	streams, ok := f.StreamIDs.Intersect(other.StreamIDs)
	if !ok {
		return DataStream{}, false
	}
	valid, ok := f.ValidTime.Intersect(other.ValidTime)
	if !ok {
		return DataStream{}, false
	}
	observed, ok := f.ObservedTime.Intersect(other.ObservedTime)
	if !ok {
		return DataStream{}, false
	}
	result, ok := f.ResultTime.Intersect(other.ResultTime)
	if !ok {
		return DataStream{}, false
	}
	names := f.OutputNames
	if other.OutputNames != nil {
		if names == nil {
			names = other.OutputNames
		} else {
			merged := make(map[string]struct{})
			for n := range names {
				if _, ok := other.OutputNames[n]; ok {
					merged[n] = struct{}{}
				}
			}
			if len(merged) == 0 {
				return DataStream{}, false
			}
			names = merged
		}
	}
	return DataStream{SystemIDs: sys, StreamIDs: streams, OutputNames: names, ValidTime: valid, ObservedTime: observed, ResultTime: result}, true
}
