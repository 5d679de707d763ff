// Package filter implements the filter algebra from spec §4.1: immutable
// filter values combined with With* combinators, tested against a candidate
// value with Test, and conjoined with Intersect. Intersect either narrows
// two filters into an equivalent, simpler filter or reports that the
// intersection is provably empty, letting callers short-circuit a query
// without touching the store.
package filter

import "github.com/sensorhub-io/hub/core"

// TemporalKind enumerates the filter variants from spec §4.1.
type TemporalKind int

const (
	// TemporalAllTimes matches every version, ignoring validTime entirely.
	TemporalAllTimes TemporalKind = iota
	// TemporalLatestVersion matches only the chronologically last version
	// of each distinct internal ID.
	TemporalLatestVersion
	// TemporalCurrentTime matches the version whose valid interval contains
	// "now" (within Tolerance), resolved at evaluation time.
	TemporalCurrentTime
	// TemporalRange matches any version whose validTime falls in [Begin, End).
	TemporalRange
	// TemporalSingle matches the version whose valid interval contains At.
	TemporalSingle
	// TemporalAnd is a conjunction of two filters that Intersect could not
	// reduce to a single simpler kind (e.g. LatestVersion AND Range).
	TemporalAnd
)

// Temporal is an immutable temporal predicate over validTime.
type Temporal struct {
	Kind      TemporalKind
	Begin     core.Instant
	End       core.Instant
	At        core.Instant
	Tolerance int64 // nanoseconds, only meaningful for TemporalCurrentTime
	and       []Temporal
}

func AllTimes() Temporal { return Temporal{Kind: TemporalAllTimes} }

func LatestVersion() Temporal { return Temporal{Kind: TemporalLatestVersion} }

func CurrentTime(tolerance int64) Temporal {
	return Temporal{Kind: TemporalCurrentTime, Tolerance: tolerance}
}

func TimeRange(begin, end core.Instant) Temporal {
	return Temporal{Kind: TemporalRange, Begin: begin, End: end}
}

func SingleTime(at core.Instant) Temporal {
	return Temporal{Kind: TemporalSingle, At: at}
}

// Test reports whether the given version's validTime (and, for a version
// history, whether it is the chronologically last one supplied) satisfies
// the filter. isLatest is computed by the caller, which knows the full
// version history; it is ignored by variants that don't need it.
func (f Temporal) Test(validTime core.Instant, isLatest bool, now core.Instant) bool {
	switch f.Kind {
	case TemporalAllTimes:
		return true
	case TemporalLatestVersion:
		return isLatest
	case TemporalCurrentTime:
		return int64(now-validTime) >= -f.Tolerance
	case TemporalRange:
		return validTime >= f.Begin && validTime < f.End
	case TemporalSingle:
		return validTime == f.At
	case TemporalAnd:
		for _, sub := range f.and {
			if !sub.Test(validTime, isLatest, now) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Intersect computes the conjunction of two temporal filters, or reports ok
// = false when the two are provably disjoint (an empty intersection per
// spec §7, converted by the caller into an empty result rather than an
// error).
func (f Temporal) Intersect(other Temporal) (Temporal, bool) {
	if f.Kind == TemporalAllTimes {
		return other, true
	}
	if other.Kind == TemporalAllTimes {
		return f, true
	}
	if f.Kind == TemporalRange && other.Kind == TemporalRange {
		begin := f.Begin
		if other.Begin > begin {
			begin = other.Begin
		}
		end := f.End
		if other.End < end {
			end = other.End
		}
		if begin >= end {
			return Temporal{}, false
		}
		return TimeRange(begin, end), true
	}
	if f.Kind == TemporalSingle && other.Kind == TemporalRange {
		if f.At >= other.Begin && f.At < other.End {
			return f, true
		}
		return Temporal{}, false
	}
	if f.Kind == TemporalRange && other.Kind == TemporalSingle {
		return other.Intersect(f)
	}
	if f.Kind == TemporalSingle && other.Kind == TemporalSingle {
		if f.At != other.At {
			return Temporal{}, false
		}
		return f, true
	}
	// Neither side reduces to a simpler kind (e.g. LatestVersion AND Range,
	// or two CurrentTime filters with different tolerances): keep both as an
	// explicit conjunction so Test still ANDs them correctly.
	return Temporal{Kind: TemporalAnd, and: []Temporal{f, other}}, true
}
