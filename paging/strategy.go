// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Mapping Strategies - Fresh Placement Proposal
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Placement of a freshly allocated physical page is one of exactly two
// behaviors, selected per request by the FlatMap flag:
//
//   Flat:   physical address = virtual address. Used when the template needs
//           addresses that survive with the MMU off, so the chosen page must
//           happen to be free.
//   Random: any free, boundary-legal page of the class, chosen uniformly.
//
// Both work in page-number space over the allocator's usable-aligned cache
// for the size class, so alignment never has to be re-derived here.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package paging

import (
	"math/rand"

	"github.com/IamJuicyApple/force-riscv/constraint"
)

// MappingStrategy proposes a physical placement for one fresh allocation.
// usable is the page-number-granularity free cache for the request's size
// class; boundary is the byte-granularity legal envelope. On success the
// strategy records the placement in sizeInfo and returns true; on failure it
// returns false with sizeInfo untouched.
type MappingStrategy interface {
	AllocatePhysicalPage(va uint64, usable *constraint.ConstraintSet,
		boundary *constraint.ConstraintSet, req *PageRequest, sizeInfo *PageSizeInfo) bool
}

// FlatMappingStrategy places the page at the virtual address itself.
type FlatMappingStrategy struct{}

// AllocatePhysicalPage succeeds iff the identity-mapped page is wholly free
// and inside the boundary.
func (FlatMappingStrategy) AllocatePhysicalPage(va uint64, usable *constraint.ConstraintSet,
	boundary *constraint.ConstraintSet, req *PageRequest, sizeInfo *PageSizeInfo) bool {

	start := va &^ sizeInfo.Type.PageMask()
	end := start + sizeInfo.Type.PageSize() - 1
	pageNum := start >> sizeInfo.Type.PageShift()

	if !usable.ContainsValue(pageNum) {
		return false
	}
	if !boundary.ContainsRange(start, end) {
		return false
	}
	sizeInfo.UpdatePhysicalStart(start)
	return true
}

// RandomMappingStrategy places the page anywhere legal, uniformly at random.
type RandomMappingStrategy struct {
	rnd *rand.Rand
}

// NewRandomMappingStrategy returns a strategy drawing from rnd.
func NewRandomMappingStrategy(rnd *rand.Rand) *RandomMappingStrategy {
	return &RandomMappingStrategy{rnd: rnd}
}

// AllocatePhysicalPage solves for a page number inside the usable cache,
// trimmed to the boundary and the class's reachable physical space.
func (m *RandomMappingStrategy) AllocatePhysicalPage(va uint64, usable *constraint.ConstraintSet,
	boundary *constraint.ConstraintSet, req *PageRequest, sizeInfo *PageSizeInfo) bool {

	solve := usable.Clone()

	alignedBoundary := boundary.Clone()
	alignedBoundary.AlignWithPage(^sizeInfo.Type.PageMask())
	solve.ApplyConstraintSet(alignedBoundary)

	maxPageNum := sizeInfo.MaxPhysical() >> sizeInfo.Type.PageShift()
	if !solve.IsEmpty() && solve.UpperBound() > maxPageNum {
		solve.SubRange(maxPageNum+1, solve.UpperBound())
	}

	if solve.IsEmpty() {
		return false
	}
	pageNum := solve.ChooseValue(m.rnd)
	sizeInfo.UpdatePhysicalStart(pageNum << sizeInfo.Type.PageShift())
	return true
}
