package core

import "math"

// Instant is a point in time expressed as Unix nanoseconds. Two values are
// reserved as sentinels rather than concrete timestamps:
//
//   - TimeLatest means "the most recent version, regardless of wall-clock
//     time" when used as a lookup bound.
//   - TimeZero is the zero value and never a valid stored validTime; it
//     signals "unset, resolve to current wall-clock time" to add()/put().
type Instant int64

const (
	TimeZero   Instant = 0
	TimeLatest Instant = math.MaxInt64
)

// Clock abstracts wall-clock access so tests can inject a fake clock, the
// way the teacher threads clock.Clock through the engine for deterministic
// flush/compaction tests.
type Clock interface {
	Now() Instant
}

type systemClock struct{}

func (systemClock) Now() Instant { return Instant(nowUnixNano()) }

// SystemClock is the default Clock backed by the OS wall clock.
var SystemClock Clock = systemClock{}
