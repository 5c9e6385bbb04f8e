// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Page Size Classes - RISC-V Sv48 Leaf Granularities
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package paging

import "github.com/cockroachdb/errors"

// PteType enumerates the leaf page granularities of the Sv48 translation
// scheme. A physical range allocated at one granularity consumes availability
// at every other granularity too - page tables of different levels share the
// same physical space.
type PteType int

const (
	Pte4K PteType = iota
	Pte2M
	Pte1G
	Pte512G
)

// PhysicalAddressBits is the width of the modeled physical address space.
const PhysicalAddressBits = 48

// PteTypes returns every supported granularity, smallest first.
func PteTypes() []PteType {
	return []PteType{Pte4K, Pte2M, Pte1G, Pte512G}
}

// PageShift returns log2 of the page size. An unknown enumerant means the
// allocator was handed a layout it cannot model; that is fatal.
func (t PteType) PageShift() uint {
	switch t {
	case Pte4K:
		return 12
	case Pte2M:
		return 21
	case Pte1G:
		return 30
	case Pte512G:
		return 39
	default:
		panic(errors.Newf("paging: unknown page size class %d", int(t)))
	}
}

// PageSize returns the page size in bytes.
func (t PteType) PageSize() uint64 {
	return uint64(1) << t.PageShift()
}

// PageMask returns the low offset-bit mask (PageSize-1).
func (t PteType) PageMask() uint64 {
	return t.PageSize() - 1
}

// MaxPhysical returns the largest physical address the modeled space can
// reach.
func (t PteType) MaxPhysical() uint64 {
	return (uint64(1) << PhysicalAddressBits) - 1
}

func (t PteType) String() string {
	switch t {
	case Pte4K:
		return "4K"
	case Pte2M:
		return "2M"
	case Pte1G:
		return "1G"
	case Pte512G:
		return "512G"
	default:
		panic(errors.Newf("paging: unknown page size class %d", int(t)))
	}
}

// PageSizeInfo carries one allocation's size class and resolved placement.
// The allocator fills PhysicalStart and PhysPageID; the caller reads them
// back to finish building its page table entry.
type PageSizeInfo struct {
	Type          PteType
	PhysicalStart uint64
	PhysPageID    uint64
}

// NewPageSizeInfo returns a descriptor for the given size class.
func NewPageSizeInfo(t PteType) *PageSizeInfo {
	return &PageSizeInfo{Type: t}
}

// PhysicalEnd returns the inclusive end of the placed page.
func (s *PageSizeInfo) PhysicalEnd() uint64 {
	return s.PhysicalStart + s.Type.PageSize() - 1
}

// UpdatePhysicalStart places the page at pa, aligned down to the class.
func (s *PageSizeInfo) UpdatePhysicalStart(pa uint64) {
	s.PhysicalStart = pa &^ s.Type.PageMask()
}

// UpdatePhysPageID records the physical page that won the allocation.
func (s *PageSizeInfo) UpdatePhysPageID(id uint64) {
	s.PhysPageID = id
}

// MaxPhysical returns the top physical address reachable for this class.
func (s *PageSizeInfo) MaxPhysical() uint64 {
	return s.Type.MaxPhysical()
}
