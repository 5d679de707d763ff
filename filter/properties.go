package filter

import (
	"path/filepath"

	"github.com/sensorhub-io/hub/core"
)

// PropertyMatch is one clause of a Properties filter: the named property
// must exist and match Pattern (string values, glob-style wildcards per
// spec §4.1) or Equals (numeric values, exact match).
type PropertyMatch struct {
	Key     string
	Pattern string // used when the stored value is a string
	Equals  float64
	IsNumeric bool
}

// Properties is an immutable conjunction of property clauses.
type Properties struct {
	matches []PropertyMatch
}

// AnyProperties is the identity filter: it matches every property bag.
func AnyProperties() Properties { return Properties{} }

// WithStringMatch returns a copy of f with an added clause requiring key's
// string value to match the glob pattern.
func (f Properties) WithStringMatch(key, pattern string) Properties {
	return Properties{matches: append(cloneMatches(f.matches), PropertyMatch{Key: key, Pattern: pattern})}
}

// WithNumericEquals returns a copy of f with an added clause requiring
// key's numeric value to equal want exactly.
func (f Properties) WithNumericEquals(key string, want float64) Properties {
	return Properties{matches: append(cloneMatches(f.matches), PropertyMatch{Key: key, Equals: want, IsNumeric: true})}
}

func cloneMatches(in []PropertyMatch) []PropertyMatch {
	out := make([]PropertyMatch, len(in))
	copy(out, in)
	return out
}

// Test reports whether every clause is satisfied by props.
func (f Properties) Test(props core.Properties) bool {
	for _, m := range f.matches {
		v, ok := props[m.Key]
		if !ok {
			return false
		}
		if m.IsNumeric {
			num, ok := v.(float64)
			if !ok || num != m.Equals {
				return false
			}
			continue
		}
		str, ok := v.(string)
		if !ok {
			return false
		}
		matched, err := filepath.Match(m.Pattern, str)
		if err != nil || !matched {
			return false
		}
	}
	return true
}

// Intersect concatenates the clauses of both filters; the result matches
// iff both inputs would have. Property filters never provably reduce to an
// empty set at construction time, so ok is always true.
func (f Properties) Intersect(other Properties) (Properties, bool) {
	merged := append(cloneMatches(f.matches), other.matches...)
	return Properties{matches: merged}, true
}
