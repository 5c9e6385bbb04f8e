// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Constraint Set - Sorted Interval Algebra
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// DESIGN PHILOSOPHY:
// ─────────────────
// Every question the physical page allocator asks - "which addresses are free?",
// "which addresses back an aliasable page?", "which page numbers satisfy this
// memory attribute?" - is a question about a set of address ranges. ConstraintSet
// is the single currency for all of them.
//
// Core principles:
//   1. Closed intervals: [Lower, Upper] inclusive, matching inclusive page bounds
//      like [0x2000, 0x2FFF] everywhere in the generator
//   2. Always normalized: sorted, disjoint, with touching neighbors merged -
//      no operation may ever leave a denormalized set observable
//   3. Binary-search maintenance: insertion and lookup are O(log n) over the
//      sorted slice, mutation is O(n) worst case for the copy
//   4. Set algebra closed over the type: union, difference, intersection all
//      yield normalized sets
//   5. No hidden randomness: ChooseValue takes the caller's RNG so every
//      consumer owns its own reproducible stream
//
// GRANULARITY CONVERSION:
// ──────────────────────
// AlignWithPage converts a byte-granularity set into a page-number-granularity
// set (keeping only fully covered pages). The allocator keeps one such aligned
// set per page size class so placement solves never re-derive alignment.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package constraint

import (
	"fmt"
	"math/bits"
	"math/rand"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
)

// Range is one closed interval [Lower, Upper] of 64-bit addresses.
type Range struct {
	Lower uint64
	Upper uint64
}

// Size returns the number of elements in the range.
//
// A full-space range [0, MaxUint64] would overflow; the generator never
// models a full 2^64 physical space, so the wrap is acceptable.
func (r Range) Size() uint64 {
	return r.Upper - r.Lower + 1
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v uint64) bool {
	return v >= r.Lower && v <= r.Upper
}

// Overlaps reports whether the two ranges share at least one element.
func (r Range) Overlaps(o Range) bool {
	return r.Lower <= o.Upper && o.Lower <= r.Upper
}

// ConstraintSet is an ordered collection of disjoint, non-touching closed
// intervals. The zero value is an empty, usable set.
type ConstraintSet struct {
	ranges []Range
}

// NewConstraintSet returns an empty set.
func NewConstraintSet() *ConstraintSet {
	return &ConstraintSet{}
}

// NewConstraintSetRange returns a set holding the single range [lo, hi].
func NewConstraintSetRange(lo uint64, hi uint64) *ConstraintSet {
	s := &ConstraintSet{}
	s.AddRange(lo, hi)
	return s
}

// NewConstraintSetValue returns a set holding the single value v.
func NewConstraintSetValue(v uint64) *ConstraintSet {
	return NewConstraintSetRange(v, v)
}

// Clone returns an independent deep copy.
func (s *ConstraintSet) Clone() *ConstraintSet {
	c := &ConstraintSet{ranges: make([]Range, len(s.ranges))}
	copy(c.ranges, s.ranges)
	return c
}

// IsEmpty reports whether the set holds no elements.
func (s *ConstraintSet) IsEmpty() bool {
	return len(s.ranges) == 0
}

// RangeCount returns the number of stored intervals.
func (s *ConstraintSet) RangeCount() int {
	return len(s.ranges)
}

// Size returns the total number of elements across all intervals.
func (s *ConstraintSet) Size() uint64 {
	var total uint64
	for _, r := range s.ranges {
		total += r.Size()
	}
	return total
}

// LowerBound returns the smallest element. Calling it on an empty set is a
// programming error and panics.
func (s *ConstraintSet) LowerBound() uint64 {
	if len(s.ranges) == 0 {
		panic(errors.New("constraint: LowerBound on empty ConstraintSet"))
	}
	return s.ranges[0].Lower
}

// UpperBound returns the largest element. Calling it on an empty set is a
// programming error and panics.
func (s *ConstraintSet) UpperBound() uint64 {
	if len(s.ranges) == 0 {
		panic(errors.New("constraint: UpperBound on empty ConstraintSet"))
	}
	return s.ranges[len(s.ranges)-1].Upper
}

// Ranges returns a read-only view of the stored intervals. Callers must not
// mutate the returned slice.
func (s *ConstraintSet) Ranges() []Range {
	return s.ranges
}

// firstRangeEndingAtOrAfter returns the index of the first interval whose
// Upper >= v, or len(ranges) if none exists. This is the successor search all
// mutations hang off of.
func (s *ConstraintSet) firstRangeEndingAtOrAfter(v uint64) int {
	idx, _ := slices.BinarySearchFunc(s.ranges, v, func(r Range, target uint64) int {
		if r.Upper < target {
			return -1
		}
		return 1
	})
	return idx
}

// ContainsValue reports whether v is an element of the set.
func (s *ConstraintSet) ContainsValue(v uint64) bool {
	idx := s.firstRangeEndingAtOrAfter(v)
	return idx < len(s.ranges) && s.ranges[idx].Contains(v)
}

// ContainsRange reports whether every element of [lo, hi] is in the set.
func (s *ConstraintSet) ContainsRange(lo uint64, hi uint64) bool {
	if hi < lo {
		panic(errors.Newf("constraint: reversed range [0x%x, 0x%x]", lo, hi))
	}
	idx := s.firstRangeEndingAtOrAfter(lo)
	return idx < len(s.ranges) && s.ranges[idx].Lower <= lo && hi <= s.ranges[idx].Upper
}

// AddRange inserts [lo, hi], merging with any overlapping or touching
// neighbors so the set stays normalized.
func (s *ConstraintSet) AddRange(lo uint64, hi uint64) {
	if hi < lo {
		panic(errors.Newf("constraint: reversed range [0x%x, 0x%x]", lo, hi))
	}

	// First interval that could touch [lo, hi] from the left: Upper >= lo-1.
	// Guard lo == 0 against underflow.
	touchLo := lo
	if lo > 0 {
		touchLo = lo - 1
	}
	first := s.firstRangeEndingAtOrAfter(touchLo)

	// Absorb every interval that overlaps or touches [lo, hi].
	last := first
	newLo, newHi := lo, hi
	for last < len(s.ranges) {
		r := s.ranges[last]
		// r starts past hi+1: no touch. Guard hi == MaxUint64 against overflow.
		if r.Lower > hi && r.Lower-1 > hi {
			break
		}
		if r.Lower < newLo {
			newLo = r.Lower
		}
		if r.Upper > newHi {
			newHi = r.Upper
		}
		last++
	}

	if first == last {
		s.ranges = slices.Insert(s.ranges, first, Range{Lower: newLo, Upper: newHi})
		return
	}
	s.ranges[first] = Range{Lower: newLo, Upper: newHi}
	s.ranges = slices.Delete(s.ranges, first+1, last)
}

// AddValue inserts the single value v.
func (s *ConstraintSet) AddValue(v uint64) {
	s.AddRange(v, v)
}

// SubRange removes every element of [lo, hi], splitting intervals that
// straddle the removed range.
func (s *ConstraintSet) SubRange(lo uint64, hi uint64) {
	if hi < lo {
		panic(errors.Newf("constraint: reversed range [0x%x, 0x%x]", lo, hi))
	}

	first := s.firstRangeEndingAtOrAfter(lo)
	var keep []Range
	last := first
	for last < len(s.ranges) && s.ranges[last].Lower <= hi {
		r := s.ranges[last]
		if r.Lower < lo {
			keep = append(keep, Range{Lower: r.Lower, Upper: lo - 1})
		}
		if r.Upper > hi {
			keep = append(keep, Range{Lower: hi + 1, Upper: r.Upper})
		}
		last++
	}
	if first == last {
		return
	}
	s.ranges = slices.Replace(s.ranges, first, last, keep...)
}

// SubValue removes the single value v.
func (s *ConstraintSet) SubValue(v uint64) {
	s.SubRange(v, v)
}

// MergeConstraintSet adds every range of other to the set (set union).
func (s *ConstraintSet) MergeConstraintSet(other *ConstraintSet) {
	for _, r := range other.ranges {
		s.AddRange(r.Lower, r.Upper)
	}
}

// SubConstraintSet removes every range of other from the set (set difference).
func (s *ConstraintSet) SubConstraintSet(other *ConstraintSet) {
	for _, r := range other.ranges {
		s.SubRange(r.Lower, r.Upper)
	}
}

// ApplyConstraintSet intersects the set with other, keeping only elements
// present in both.
func (s *ConstraintSet) ApplyConstraintSet(other *ConstraintSet) {
	var out []Range
	i, j := 0, 0
	for i < len(s.ranges) && j < len(other.ranges) {
		a, b := s.ranges[i], other.ranges[j]
		lo := a.Lower
		if b.Lower > lo {
			lo = b.Lower
		}
		hi := a.Upper
		if b.Upper < hi {
			hi = b.Upper
		}
		if lo <= hi {
			out = append(out, Range{Lower: lo, Upper: hi})
		}
		// Advance whichever interval ends first.
		if a.Upper < b.Upper {
			i++
		} else {
			j++
		}
	}
	s.ranges = out
}

// AlignWithPage converts the set from byte granularity to page-number
// granularity under pageMask, which selects the page-number bits (the
// complement of the low offset bits, e.g. ^0xFFF for 4K pages). Only fully
// covered pages survive; intervals too small to cover a whole page are
// discarded.
func (s *ConstraintSet) AlignWithPage(pageMask uint64) {
	shift := uint(bits.TrailingZeros64(pageMask))
	if pageMask == 0 || pageMask != ^uint64(0)<<shift {
		panic(errors.Newf("constraint: malformed page mask 0x%x", pageMask))
	}

	offsetMask := ^pageMask
	var out []Range
	for _, r := range s.ranges {
		// First page fully inside the range (round Lower up) and last page
		// fully inside (round Upper down).
		loPage := r.Lower >> shift
		if r.Lower&offsetMask != 0 {
			loPage++
		}
		hiPage := r.Upper >> shift
		if r.Upper&offsetMask != offsetMask {
			// Upper does not land on the last byte of its page; that page is
			// only partially covered.
			if hiPage == 0 {
				continue
			}
			hiPage--
		}
		if loPage > hiPage {
			continue
		}
		// Page ranges from distinct normalized byte ranges can never touch: a
		// range fully covering some page ends on that page's last byte, so the
		// next range's first full page starts at least two page numbers later.
		out = append(out, Range{Lower: loPage, Upper: hiPage})
	}
	s.ranges = out
}

// ChooseValue returns one element selected uniformly over the set's elements
// (not over its intervals) using the caller-owned RNG. Calling it on an empty
// set is a programming error and panics; callers must check IsEmpty first.
func (s *ConstraintSet) ChooseValue(rnd *rand.Rand) uint64 {
	if len(s.ranges) == 0 {
		panic(errors.New("constraint: ChooseValue on empty ConstraintSet"))
	}
	pick := randomIndex(rnd, s.Size())
	for _, r := range s.ranges {
		if pick < r.Size() {
			return r.Lower + pick
		}
		pick -= r.Size()
	}
	// Unreachable while Size stays consistent with the stored ranges.
	panic(errors.New("constraint: ChooseValue index walked past the stored ranges"))
}

// randomIndex returns a uniform value in [0, n).
func randomIndex(rnd *rand.Rand, n uint64) uint64 {
	if n == 0 {
		return 0
	}
	if n <= 1<<63-1 {
		return uint64(rnd.Int63n(int64(n)))
	}
	// Sets this large only arise from near-full address spaces; the modulo
	// bias at this magnitude is far below the generator's noise floor.
	return rnd.Uint64() % n
}

// String renders the set as comma-separated hex ranges, the form used by the
// allocator's log lines.
func (s *ConstraintSet) String() string {
	if len(s.ranges) == 0 {
		return "<empty>"
	}
	var b strings.Builder
	for i, r := range s.ranges {
		if i > 0 {
			b.WriteByte(',')
		}
		if r.Lower == r.Upper {
			fmt.Fprintf(&b, "0x%x", r.Lower)
		} else {
			fmt.Fprintf(&b, "0x%x-0x%x", r.Lower, r.Upper)
		}
	}
	return b.String()
}
