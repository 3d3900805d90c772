// Package gaptracker maintains the authoritative set of still-missing
// byte ranges for one CFDP transaction as file-data segments arrive in
// any order, possibly overlapping, possibly duplicated.
//
// Internally the tracker keeps the union of *received* byte ranges
// (sorted, merged) and derives the gap set as their complement within
// [0, bound) on demand. That mirrors the "sorted offset index, derive
// coverage on demand" shape the retrieval pack uses to index
// downloaded segments (see internal/streamer/segments.go's
// FileLayout.Offsets + sort.Search in the teacher repo this module
// was adapted from) rather than maintaining the gap list directly,
// which would otherwise need special-casing for the unknown-bound
// case where interior gaps must appear before any bound is pinned.
package gaptracker

import "sort"

// Range is a half-open byte range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Tracker is the gap set over [0, upperBound) for one transaction.
// Not safe for concurrent use; the receiver serializes access per the
// single-threaded cooperative event model (spec.md §5).
type Tracker struct {
	received         []Range // sorted, merged, non-overlapping
	upperBoundKnown  bool
	upperBound       uint64
	receptionHighWat uint64
}

// New creates a tracker with no upper bound pinned yet: the set starts
// empty and the bound advances with reception until SetUpperBound is
// called (spec.md §4.1 init(unknown)).
func New() *Tracker {
	return &Tracker{}
}

// NewWithSize creates a tracker whose bound is pinned immediately to
// size: the set becomes exactly {[0, size)} (spec.md §4.1 init(f)).
func NewWithSize(size uint64) *Tracker {
	t := &Tracker{}
	t.SetUpperBound(size)
	return t
}

// SetUpperBound pins the upper bound. Any received byte range at or
// past f is truncated; overrun reports whether data had already been
// received at or beyond f (a FILE_SIZE_ERROR candidate the caller
// should raise). Idempotent when called again with the same value.
func (t *Tracker) SetUpperBound(f uint64) (overrun bool) {
	if t.upperBoundKnown && t.upperBound == f {
		return false
	}

	overrun = t.receptionHighWat > f

	if t.upperBoundKnown || len(t.received) > 0 {
		out := t.received[:0]
		for _, r := range t.received {
			if r.Start >= f {
				continue
			}
			if r.End > f {
				r.End = f
			}
			out = append(out, r)
		}
		t.received = out
	}

	t.upperBound = f
	t.upperBoundKnown = true
	return overrun
}

// MarkReceived unions [start, end) into the received set. start ==
// end is a no-op. If the bound is known and end exceeds it, the mark
// is clipped to the bound and overrun is reported true so the caller
// can raise FILE_SIZE_ERROR (spec.md §4.1 edge cases). Overlapping or
// duplicate marks are silently absorbed.
func (t *Tracker) MarkReceived(start, end uint64) (overrun bool) {
	if start >= end {
		return false
	}
	if t.upperBoundKnown && end > t.upperBound {
		overrun = true
		end = t.upperBound
		if start >= end {
			return overrun
		}
	}
	if end > t.receptionHighWat {
		t.receptionHighWat = end
	}
	t.union(start, end)
	return overrun
}

// union merges [start, end) into the sorted received-range list in a
// single linear pass. Bounded per-transaction segment counts keep
// this from degrading pathologically (spec.md §4.1 algorithmic notes).
func (t *Tracker) union(start, end uint64) {
	lo := sort.Search(len(t.received), func(i int) bool { return t.received[i].End >= start })
	hi := sort.Search(len(t.received), func(i int) bool { return t.received[i].Start > end })
	if lo < hi {
		if t.received[lo].Start < start {
			start = t.received[lo].Start
		}
		if t.received[hi-1].End > end {
			end = t.received[hi-1].End
		}
	}
	merged := make([]Range, 0, len(t.received)-(hi-lo)+1)
	merged = append(merged, t.received[:lo]...)
	merged = append(merged, Range{Start: start, End: end})
	merged = append(merged, t.received[hi:]...)
	t.received = merged
}

// Missing returns the ordered, non-overlapping list of gaps: the
// complement of the received set within [0, bound), where bound is
// the pinned upper bound if known, else the reception high-water
// mark (per spec.md §4.1, gaps are only declared between received
// segments until a bound is pinned).
func (t *Tracker) Missing() []Range {
	bound := t.receptionHighWat
	if t.upperBoundKnown {
		bound = t.upperBound
	}
	out := make([]Range, 0, len(t.received)+1)
	var cursor uint64
	for _, r := range t.received {
		if r.Start > cursor {
			out = append(out, Range{Start: cursor, End: r.Start})
		}
		if r.End > cursor {
			cursor = r.End
		}
	}
	if cursor < bound {
		out = append(out, Range{Start: cursor, End: bound})
	}
	return out
}

// IsComplete is true iff the upper bound is known and no gaps remain.
func (t *Tracker) IsComplete() bool {
	return t.upperBoundKnown && len(t.Missing()) == 0
}

// UpperBound reports the pinned bound and whether one has been set.
func (t *Tracker) UpperBound() (bound uint64, known bool) {
	return t.upperBound, t.upperBoundKnown
}
