package core

import "time"

// nowUnixNano is the sole call site of time.Now() in core, isolated so
// SystemClock stays the only non-deterministic piece of this package.
func nowUnixNano() int64 {
	return time.Now().UnixNano()
}
