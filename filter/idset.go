package filter

import "github.com/RoaringBitmap/roaring/roaring64"

// IDSet is an immutable filter over a set of internal IDs, backed by a
// compressed roaring bitmap so a "filter to these thousand systems" clause
// stays cheap even for large ID sets (spec §4.1).
type IDSet struct {
	bitmap *roaring64.Bitmap // nil means "match everything"
}

// AnyID is the identity filter: it matches every ID.
func AnyID() IDSet { return IDSet{} }

// IDIn builds a filter matching exactly the given IDs.
func IDIn(ids ...int64) IDSet {
	bm := roaring64.New()
	for _, id := range ids {
		bm.Add(uint64(id))
	}
	return IDSet{bitmap: bm}
}

// Test reports whether id is a member of the set. The identity filter
// (AnyID) matches every id.
func (s IDSet) Test(id int64) bool {
	if s.bitmap == nil {
		return true
	}
	return s.bitmap.Contains(uint64(id))
}

// IsUniverse reports whether this filter matches everything.
func (s IDSet) IsUniverse() bool { return s.bitmap == nil }

// Intersect computes the set intersection. Intersecting with AnyID returns
// the other operand unchanged. ok is false only when both sides are
// concrete sets whose intersection is empty.
func (s IDSet) Intersect(other IDSet) (IDSet, bool) {
	if s.bitmap == nil {
		return other, true
	}
	if other.bitmap == nil {
		return s, true
	}
	merged := s.bitmap.Clone()
	merged.And(other.bitmap)
	if merged.IsEmpty() {
		return IDSet{}, false
	}
	return IDSet{bitmap: merged}, true
}

// ToSlice returns the concrete IDs in the set, or nil for the identity
// filter (there is nothing finite to enumerate).
func (s IDSet) ToSlice() []int64 {
	if s.bitmap == nil {
		return nil
	}
	raw := s.bitmap.ToArray()
	out := make([]int64, len(raw))
	for i, v := range raw {
		out[i] = int64(v)
	}
	return out
}
