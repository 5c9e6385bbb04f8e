package paging

import (
	"math/rand"
	"testing"

	"github.com/IamJuicyApple/force-riscv/constraint"
)

// alignedUsable converts a byte-granularity free set to the page-number form
// the strategies consume.
func alignedUsable(t PteType, ranges ...constraint.Range) *constraint.ConstraintSet {
	cs := constraint.NewConstraintSet()
	for _, r := range ranges {
		cs.AddRange(r.Lower, r.Upper)
	}
	cs.AlignWithPage(^t.PageMask())
	return cs
}

func TestFlat_PlacesAtVirtualAddress(t *testing.T) {
	// WHAT: Flat mapping puts the physical page exactly at the VA's page

	usable := alignedUsable(Pte4K, constraint.Range{Lower: 0x1000, Upper: 0xFFFF})
	boundary := constraint.NewConstraintSetRange(0x1000, 0xFFFF)
	sizeInfo := NewPageSizeInfo(Pte4K)

	ok := FlatMappingStrategy{}.AllocatePhysicalPage(0x2468, usable, boundary, NewPageRequest(), sizeInfo)
	if !ok {
		t.Fatalf("flat placement failed inside free memory")
	}
	if sizeInfo.PhysicalStart != 0x2000 || sizeInfo.PhysicalEnd() != 0x2FFF {
		t.Errorf("placed [0x%x, 0x%x], expected [0x2000, 0x2FFF]",
			sizeInfo.PhysicalStart, sizeInfo.PhysicalEnd())
	}
}

func TestFlat_FailsWhenPageNotFree(t *testing.T) {
	// WHAT: Flat mapping cannot relocate; an occupied identity page fails

	usable := alignedUsable(Pte4K, constraint.Range{Lower: 0x1000, Upper: 0x1FFF})
	boundary := constraint.NewConstraintSetRange(0x1000, 0xFFFF)
	sizeInfo := NewPageSizeInfo(Pte4K)

	var strategy FlatMappingStrategy
	if strategy.AllocatePhysicalPage(0x5000, usable, boundary, NewPageRequest(), sizeInfo) {
		t.Errorf("flat placement succeeded on a page outside the usable set")
	}
	if sizeInfo.PhysicalStart != 0 {
		t.Errorf("failed placement wrote PhysicalStart=0x%x", sizeInfo.PhysicalStart)
	}
}

func TestFlat_FailsOutsideBoundary(t *testing.T) {
	// WHAT: A free identity page past the bank boundary is still illegal

	usable := alignedUsable(Pte4K, constraint.Range{Lower: 0x1000, Upper: 0xFFFF})
	boundary := constraint.NewConstraintSetRange(0x1000, 0x7FFF)
	sizeInfo := NewPageSizeInfo(Pte4K)

	var strategy FlatMappingStrategy
	if strategy.AllocatePhysicalPage(0x9000, usable, boundary, NewPageRequest(), sizeInfo) {
		t.Errorf("flat placement escaped the boundary")
	}
}

func TestRandom_PlacementIsLegalAndAligned(t *testing.T) {
	// WHAT: Every random placement is page-aligned, free, and inside boundary

	usable := alignedUsable(Pte4K,
		constraint.Range{Lower: 0x1000, Upper: 0x3FFF},
		constraint.Range{Lower: 0x8000, Upper: 0x9FFF})
	boundary := constraint.NewConstraintSetRange(0x0, 0xFFFF)
	strategy := NewRandomMappingStrategy(rand.New(rand.NewSource(17)))

	for i := 0; i < 100; i++ {
		sizeInfo := NewPageSizeInfo(Pte4K)
		if !strategy.AllocatePhysicalPage(0xDEAD000, usable, boundary, NewPageRequest(), sizeInfo) {
			t.Fatalf("random placement failed with free pages available")
		}
		if sizeInfo.PhysicalStart&0xFFF != 0 {
			t.Fatalf("placement 0x%x not 4K aligned", sizeInfo.PhysicalStart)
		}
		if !usable.ContainsValue(sizeInfo.PhysicalStart >> 12) {
			t.Fatalf("placement 0x%x outside the usable set", sizeInfo.PhysicalStart)
		}
	}
}

func TestRandom_RespectsBoundaryTrim(t *testing.T) {
	// WHAT: Usable pages outside the boundary are never chosen

	usable := alignedUsable(Pte4K, constraint.Range{Lower: 0x1000, Upper: 0xFFFF})
	boundary := constraint.NewConstraintSetRange(0x1000, 0x4FFF)
	strategy := NewRandomMappingStrategy(rand.New(rand.NewSource(3)))

	for i := 0; i < 100; i++ {
		sizeInfo := NewPageSizeInfo(Pte4K)
		if !strategy.AllocatePhysicalPage(0, usable, boundary, NewPageRequest(), sizeInfo) {
			t.Fatalf("random placement failed with legal pages available")
		}
		if sizeInfo.PhysicalEnd() > 0x4FFF {
			t.Fatalf("placement [0x%x, 0x%x] escaped the boundary",
				sizeInfo.PhysicalStart, sizeInfo.PhysicalEnd())
		}
	}
}

func TestRandom_FailsOnEmptyUsable(t *testing.T) {
	// WHAT: No free page of the class means a clean recoverable failure

	usable := constraint.NewConstraintSet()
	boundary := constraint.NewConstraintSetRange(0x0, 0xFFFF)
	strategy := NewRandomMappingStrategy(rand.New(rand.NewSource(5)))
	sizeInfo := NewPageSizeInfo(Pte4K)

	if strategy.AllocatePhysicalPage(0, usable, boundary, NewPageRequest(), sizeInfo) {
		t.Errorf("random placement succeeded with nothing usable")
	}
}

func TestRandom_LargerClassNeedsLargerRuns(t *testing.T) {
	// WHAT: A region with free 4K pages but no full 2M run fails at 2M

	usable4K := alignedUsable(Pte4K, constraint.Range{Lower: 0x1000, Upper: 0xFFFF})
	if usable4K.IsEmpty() {
		t.Fatalf("setup: expected free 4K pages")
	}

	usable2M := alignedUsable(Pte2M, constraint.Range{Lower: 0x1000, Upper: 0xFFFF})
	boundary := constraint.NewConstraintSetRange(0x0, 0xFFFFFF)
	strategy := NewRandomMappingStrategy(rand.New(rand.NewSource(7)))
	sizeInfo := NewPageSizeInfo(Pte2M)

	if strategy.AllocatePhysicalPage(0, usable2M, boundary, NewPageRequest(), sizeInfo) {
		t.Errorf("2M placement succeeded without a full 2M run")
	}
}
