package constraint

import (
	"math/rand"
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Constraint Set - Test Suite
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// TEST PHILOSOPHY:
// ────────────────
// The allocator's correctness rests entirely on this algebra staying normalized:
// sorted, disjoint, touching neighbors merged. Every mutation test therefore
// checks both the visible membership AND the stored interval structure.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// checkNormalized fails the test if the stored intervals are unsorted,
// overlapping, or touching.
func checkNormalized(t *testing.T, s *ConstraintSet) {
	t.Helper()
	ranges := s.Ranges()
	for i, r := range ranges {
		if r.Upper < r.Lower {
			t.Errorf("range %d reversed: [0x%x, 0x%x]", i, r.Lower, r.Upper)
		}
		if i == 0 {
			continue
		}
		prev := ranges[i-1]
		if prev.Upper >= r.Lower {
			t.Errorf("ranges %d and %d overlap or are unsorted: [0x%x, 0x%x] then [0x%x, 0x%x]",
				i-1, i, prev.Lower, prev.Upper, r.Lower, r.Upper)
		} else if prev.Upper+1 == r.Lower {
			t.Errorf("ranges %d and %d touch without merging: [0x%x, 0x%x] then [0x%x, 0x%x]",
				i-1, i, prev.Lower, prev.Upper, r.Lower, r.Upper)
		}
	}
}

func TestAdd_DisjointRangesStaySorted(t *testing.T) {
	// WHAT: Inserting out of order must yield a sorted disjoint set
	// WHY: Every lookup binary-searches the stored slice

	s := NewConstraintSet()
	s.AddRange(0x5000, 0x5FFF)
	s.AddRange(0x1000, 0x1FFF)
	s.AddRange(0x3000, 0x3FFF)

	checkNormalized(t, s)
	if s.RangeCount() != 3 {
		t.Errorf("RangeCount=%d, expected 3", s.RangeCount())
	}
	if s.LowerBound() != 0x1000 || s.UpperBound() != 0x5FFF {
		t.Errorf("bounds [0x%x, 0x%x], expected [0x1000, 0x5FFF]", s.LowerBound(), s.UpperBound())
	}
}

func TestAdd_OverlappingRangesMerge(t *testing.T) {
	// WHAT: Overlapping inserts collapse into one interval
	// WHY: Normalization invariant - no two stored intervals may overlap

	s := NewConstraintSet()
	s.AddRange(0x1000, 0x2FFF)
	s.AddRange(0x2000, 0x4FFF)

	checkNormalized(t, s)
	if s.RangeCount() != 1 {
		t.Fatalf("RangeCount=%d, expected 1", s.RangeCount())
	}
	if got := s.Ranges()[0]; got.Lower != 0x1000 || got.Upper != 0x4FFF {
		t.Errorf("merged range [0x%x, 0x%x], expected [0x1000, 0x4FFF]", got.Lower, got.Upper)
	}
}

func TestAdd_TouchingRangesMerge(t *testing.T) {
	// WHAT: Ranges that touch end-to-start merge into one interval
	// WHY: [0x1000,0x1FFF] + [0x2000,0x2FFF] is one contiguous region

	s := NewConstraintSet()
	s.AddRange(0x1000, 0x1FFF)
	s.AddRange(0x2000, 0x2FFF)

	checkNormalized(t, s)
	if s.RangeCount() != 1 {
		t.Fatalf("RangeCount=%d, expected 1", s.RangeCount())
	}
	if got := s.Ranges()[0]; got.Lower != 0x1000 || got.Upper != 0x2FFF {
		t.Errorf("merged range [0x%x, 0x%x], expected [0x1000, 0x2FFF]", got.Lower, got.Upper)
	}
}

func TestAdd_BridgingRangeCollapsesNeighbors(t *testing.T) {
	// WHAT: One insert spanning several stored intervals absorbs all of them
	// WHY: AddRange must absorb every overlapped AND touched neighbor in one pass

	s := NewConstraintSet()
	s.AddRange(0x1000, 0x1FFF)
	s.AddRange(0x3000, 0x3FFF)
	s.AddRange(0x6000, 0x6FFF)
	s.AddRange(0x1800, 0x5FFF)

	checkNormalized(t, s)
	if s.RangeCount() != 1 {
		t.Fatalf("RangeCount=%d, expected 1: %s", s.RangeCount(), s)
	}
	if got := s.Ranges()[0]; got.Lower != 0x1000 || got.Upper != 0x6FFF {
		t.Errorf("merged range [0x%x, 0x%x], expected [0x1000, 0x6FFF]", got.Lower, got.Upper)
	}
}

func TestSub_MiddleSplitsRange(t *testing.T) {
	// WHAT: Removing the middle of an interval leaves two pieces
	// WHY: Allocating from the middle of free memory must keep both remainders

	s := NewConstraintSetRange(0x1000, 0x4FFF)
	s.SubRange(0x2000, 0x2FFF)

	checkNormalized(t, s)
	if s.RangeCount() != 2 {
		t.Fatalf("RangeCount=%d, expected 2: %s", s.RangeCount(), s)
	}
	ranges := s.Ranges()
	if ranges[0].Lower != 0x1000 || ranges[0].Upper != 0x1FFF {
		t.Errorf("left piece [0x%x, 0x%x], expected [0x1000, 0x1FFF]", ranges[0].Lower, ranges[0].Upper)
	}
	if ranges[1].Lower != 0x3000 || ranges[1].Upper != 0x4FFF {
		t.Errorf("right piece [0x%x, 0x%x], expected [0x3000, 0x4FFF]", ranges[1].Lower, ranges[1].Upper)
	}
}

func TestSub_SpanningRemovalDropsWholeRanges(t *testing.T) {
	// WHAT: A removal spanning several intervals deletes the covered ones and
	//       trims the straddlers

	s := NewConstraintSet()
	s.AddRange(0x1000, 0x1FFF)
	s.AddRange(0x3000, 0x3FFF)
	s.AddRange(0x5000, 0x5FFF)
	s.SubRange(0x1800, 0x57FF)

	checkNormalized(t, s)
	if s.RangeCount() != 2 {
		t.Fatalf("RangeCount=%d, expected 2: %s", s.RangeCount(), s)
	}
	ranges := s.Ranges()
	if ranges[0].Lower != 0x1000 || ranges[0].Upper != 0x17FF {
		t.Errorf("left remainder [0x%x, 0x%x], expected [0x1000, 0x17FF]", ranges[0].Lower, ranges[0].Upper)
	}
	if ranges[1].Lower != 0x5800 || ranges[1].Upper != 0x5FFF {
		t.Errorf("right remainder [0x%x, 0x%x], expected [0x5800, 0x5FFF]", ranges[1].Lower, ranges[1].Upper)
	}
}

func TestSub_MissOutsideStoredRangesIsNoOp(t *testing.T) {
	// WHAT: Removing addresses the set never held changes nothing

	s := NewConstraintSetRange(0x1000, 0x1FFF)
	s.SubRange(0x8000, 0x8FFF)

	checkNormalized(t, s)
	if s.RangeCount() != 1 || s.Size() != 0x1000 {
		t.Errorf("set changed by a miss removal: %s", s)
	}
}

func TestApply_IntersectionKeepsCommonElements(t *testing.T) {
	// WHAT: ApplyConstraintSet keeps exactly the elements present in both sets

	a := NewConstraintSet()
	a.AddRange(0x1000, 0x2FFF)
	a.AddRange(0x5000, 0x6FFF)

	b := NewConstraintSet()
	b.AddRange(0x2000, 0x57FF)

	a.ApplyConstraintSet(b)

	checkNormalized(t, a)
	if a.RangeCount() != 2 {
		t.Fatalf("RangeCount=%d, expected 2: %s", a.RangeCount(), a)
	}
	ranges := a.Ranges()
	if ranges[0].Lower != 0x2000 || ranges[0].Upper != 0x2FFF {
		t.Errorf("first intersection [0x%x, 0x%x], expected [0x2000, 0x2FFF]", ranges[0].Lower, ranges[0].Upper)
	}
	if ranges[1].Lower != 0x5000 || ranges[1].Upper != 0x57FF {
		t.Errorf("second intersection [0x%x, 0x%x], expected [0x5000, 0x57FF]", ranges[1].Lower, ranges[1].Upper)
	}
}

func TestApply_DisjointSetsYieldEmpty(t *testing.T) {
	a := NewConstraintSetRange(0x1000, 0x1FFF)
	b := NewConstraintSetRange(0x8000, 0x8FFF)

	a.ApplyConstraintSet(b)

	if !a.IsEmpty() {
		t.Errorf("intersection of disjoint sets not empty: %s", a)
	}
}

func TestMergeSub_UnionThenDifferenceRoundTrips(t *testing.T) {
	// WHAT: (A ∪ B) − B over disjoint A, B gives back A

	a := NewConstraintSetRange(0x1000, 0x1FFF)
	b := NewConstraintSet()
	b.AddRange(0x3000, 0x3FFF)
	b.AddRange(0x5000, 0x5FFF)

	u := a.Clone()
	u.MergeConstraintSet(b)
	u.SubConstraintSet(b)

	checkNormalized(t, u)
	if u.RangeCount() != 1 {
		t.Fatalf("RangeCount=%d, expected 1: %s", u.RangeCount(), u)
	}
	if got := u.Ranges()[0]; got.Lower != 0x1000 || got.Upper != 0x1FFF {
		t.Errorf("round trip produced [0x%x, 0x%x], expected [0x1000, 0x1FFF]", got.Lower, got.Upper)
	}
}

func TestAlign_DiscardsPartialPages(t *testing.T) {
	// WHAT: AlignWithPage keeps only fully covered 4K pages, as page numbers
	// WHY: Placement solves work in page-number space; a partially free page
	//      can never host a page of that size

	s := NewConstraintSet()
	s.AddRange(0x1800, 0x4FFF) // pages 2,3,4 full; page 1 partial
	s.AddRange(0x6000, 0x63FF) // no full page

	s.AlignWithPage(^uint64(0xFFF))

	checkNormalized(t, s)
	if s.RangeCount() != 1 {
		t.Fatalf("RangeCount=%d, expected 1: %s", s.RangeCount(), s)
	}
	if got := s.Ranges()[0]; got.Lower != 2 || got.Upper != 4 {
		t.Errorf("aligned pages [0x%x, 0x%x], expected [2, 4]", got.Lower, got.Upper)
	}
}

func TestAlign_ExactPageBoundaries(t *testing.T) {
	// WHAT: A range starting and ending on page boundaries converts exactly

	s := NewConstraintSetRange(0x2000, 0x2FFF)
	s.AlignWithPage(^uint64(0xFFF))

	if s.RangeCount() != 1 {
		t.Fatalf("RangeCount=%d, expected 1: %s", s.RangeCount(), s)
	}
	if got := s.Ranges()[0]; got.Lower != 2 || got.Upper != 2 {
		t.Errorf("aligned pages [0x%x, 0x%x], expected [2, 2]", got.Lower, got.Upper)
	}
}

func TestAlign_MultiRangeStaysNormalized(t *testing.T) {
	// WHAT: Aligning a many-interval set yields a normalized page-number set

	s := NewConstraintSet()
	s.AddRange(0x0, 0xFFF)
	s.AddRange(0x1800, 0x4FFF)
	s.AddRange(0x6000, 0x8FFF)
	s.AddRange(0x9100, 0x91FF)

	s.AlignWithPage(^uint64(0xFFF))

	checkNormalized(t, s)
	if s.RangeCount() != 3 {
		t.Fatalf("RangeCount=%d, expected 3: %s", s.RangeCount(), s)
	}
	want := []Range{{0, 0}, {2, 4}, {6, 8}}
	for i, r := range s.Ranges() {
		if r != want[i] {
			t.Errorf("range %d = [0x%x, 0x%x], expected [0x%x, 0x%x]",
				i, r.Lower, r.Upper, want[i].Lower, want[i].Upper)
		}
	}
}

func TestChoose_AllowsEveryElement(t *testing.T) {
	// WHAT: ChooseValue only ever returns members of the set
	// WHY: A placement solve returning a non-member would corrupt the allocator

	s := NewConstraintSet()
	s.AddRange(0x10, 0x13)
	s.AddRange(0x20, 0x21)

	rnd := rand.New(rand.NewSource(7))
	seen := map[uint64]bool{}
	for i := 0; i < 200; i++ {
		v := s.ChooseValue(rnd)
		if !s.ContainsValue(v) {
			t.Fatalf("ChooseValue returned non-member 0x%x", v)
		}
		seen[v] = true
	}

	// 200 draws over 6 elements: every element should appear.
	if len(seen) != int(s.Size()) {
		t.Errorf("saw %d distinct values over 200 draws, expected all %d", len(seen), s.Size())
	}
}

func TestChoose_SingleElementSet(t *testing.T) {
	s := NewConstraintSetValue(0x2000)
	rnd := rand.New(rand.NewSource(1))
	if v := s.ChooseValue(rnd); v != 0x2000 {
		t.Errorf("ChooseValue=0x%x, expected 0x2000", v)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	// WHAT: Mutating a clone must not disturb the original

	s := NewConstraintSetRange(0x1000, 0x1FFF)
	c := s.Clone()
	c.SubRange(0x1000, 0x17FF)

	if s.Size() != 0x1000 {
		t.Errorf("original mutated through clone: %s", s)
	}
	if c.Size() != 0x800 {
		t.Errorf("clone Size=0x%x, expected 0x800", c.Size())
	}
}

func TestContains_RangeRequiresFullCoverage(t *testing.T) {
	s := NewConstraintSet()
	s.AddRange(0x1000, 0x1FFF)
	s.AddRange(0x3000, 0x3FFF)

	if !s.ContainsRange(0x1000, 0x1FFF) {
		t.Errorf("ContainsRange missed a fully held range")
	}
	if s.ContainsRange(0x1800, 0x30FF) {
		t.Errorf("ContainsRange accepted a range spanning a hole")
	}
	if s.ContainsValue(0x2000) {
		t.Errorf("ContainsValue accepted a hole address")
	}
}
