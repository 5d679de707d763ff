package filter

import "github.com/sensorhub-io/hub/core"

// Observation is the composite filter over observations from spec §4.1: a
// series ID set (resolved by the caller from data stream + FOI filters), a
// phenomenon time predicate and a result time predicate.
type Observation struct {
	SeriesIDs      IDSet
	PhenomenonTime Temporal
	ResultTime     Temporal
}

func AnyObservation() Observation {
	return Observation{SeriesIDs: AnyID(), PhenomenonTime: AllTimes(), ResultTime: AllTimes()}
}

func (f Observation) WithSeriesIDs(ids ...int64) Observation { f.SeriesIDs = IDIn(ids...); return f }
func (f Observation) WithPhenomenonTime(t Temporal) Observation { f.PhenomenonTime = t; return f }
func (f Observation) WithResultTime(t Temporal) Observation  { f.ResultTime = t; return f }

func (f Observation) Test(obs core.ObsData, now core.Instant) bool {
	if !f.SeriesIDs.Test(obs.SeriesID) {
		return false
	}
	if !f.PhenomenonTime.Test(obs.PhenomenonTime, false, now) {
		return false
	}
	return f.ResultTime.Test(obs.ResultTime, false, now)
}

func (f Observation) Intersect(other Observation) (Observation, bool) {
	series, ok := f.SeriesIDs.Intersect(other.SeriesIDs)
	if !ok {
		return Observation{}, false
	}
	phen, ok := f.PhenomenonTime.Intersect(other.PhenomenonTime)
	if !ok {
		return Observation{}, false
	}
	result, ok := f.ResultTime.Intersect(other.ResultTime)
	if !ok {
		return Observation{}, false
	}
	return Observation{SeriesIDs: series, PhenomenonTime: phen, ResultTime: result}, true
}
