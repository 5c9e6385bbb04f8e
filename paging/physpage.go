// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Physical Page - One Allocated Contiguous Physical Range
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// A PhysicalPage is the allocator's record of one committed physical range:
// inclusive bounds, a never-reused id, alias eligibility, and non-owning
// back-references to every virtual page currently mapped onto the range.
// The virtual pages belong to the address space layer; this record only
// observes them, so the physical and virtual page graphs never form an
// ownership cycle.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package paging

import "github.com/cockroachdb/errors"

// InvalidPageID is the reserved non-id; real page ids start at 1.
const InvalidPageID uint64 = 0

// AddressSpace identifies the virtual address space owning a virtual page.
// The allocator compares identities and never inspects one.
type AddressSpace interface{}

// VirtualPage is the view of an address-space-owned virtual page the
// allocator needs for back-reference bookkeeping.
type VirtualPage interface {
	// PhysicalLower and PhysicalUpper are the resolved inclusive physical
	// bounds of the mapping.
	PhysicalLower() uint64
	PhysicalUpper() uint64
	// AddressSpace identifies the owning address space.
	AddressSpace() AddressSpace
	// HandleMemoryConstraintUpdate lets the owning layer react to attribute
	// changes on the backing physical range.
	HandleMemoryConstraintUpdate(update *ConstraintUpdate)
}

// ConstraintUpdateKind classifies a memory constraint change.
type ConstraintUpdateKind int

const (
	// UpdateMarkUsed flags the range as holding live test data.
	UpdateMarkUsed ConstraintUpdateKind = iota
	// UpdateUnmarkUsed releases the range for reuse by operand selection.
	UpdateUnmarkUsed
	// UpdateMarkShared flags the range as shared between hardware threads.
	UpdateMarkShared
)

// ConstraintUpdate is an attribute-change notification over one physical
// range, propagated to every virtual page mapped onto it.
type ConstraintUpdate struct {
	Kind          ConstraintUpdateKind
	PhysicalStart uint64
	PhysicalEnd   uint64
}

// Overlaps reports whether the update touches [lo, hi].
func (u *ConstraintUpdate) Overlaps(lo uint64, hi uint64) bool {
	return u.PhysicalStart <= hi && lo <= u.PhysicalEnd
}

// PhysicalPage records one allocated physical range.
type PhysicalPage struct {
	lower    uint64
	upper    uint64
	pageID   uint64
	canAlias bool

	// Non-owning; ordered by commit time.
	virtualPages []VirtualPage
}

// NewPhysicalPage builds a page over inclusive bounds [lower, upper].
func NewPhysicalPage(lower uint64, upper uint64, canAlias bool, pageID uint64) *PhysicalPage {
	if upper < lower {
		panic(errors.Newf("paging: reversed physical page bounds [0x%x, 0x%x]", lower, upper))
	}
	return &PhysicalPage{lower: lower, upper: upper, pageID: pageID, canAlias: canAlias}
}

// Lower returns the inclusive lower bound.
func (p *PhysicalPage) Lower() uint64 { return p.lower }

// Upper returns the inclusive upper bound.
func (p *PhysicalPage) Upper() uint64 { return p.upper }

// PageID returns the page's unique id.
func (p *PhysicalPage) PageID() uint64 { return p.pageID }

// CanAlias reports whether new mappings may alias onto this page.
func (p *PhysicalPage) CanAlias() bool { return p.canAlias }

// SetCanAlias toggles alias eligibility.
func (p *PhysicalPage) SetCanAlias(v bool) { p.canAlias = v }

// Overlaps reports whether the page's range intersects [lo, hi].
func (p *PhysicalPage) Overlaps(lo uint64, hi uint64) bool {
	return p.lower <= hi && lo <= p.upper
}

// Merge absorbs other into this page: bounds extend to the union and other's
// back-references append to this page's list. The surviving record keeps its
// own alias flag; callers toggle it separately when the policy requires.
func (p *PhysicalPage) Merge(other *PhysicalPage) {
	if other.lower < p.lower {
		p.lower = other.lower
	}
	if other.upper > p.upper {
		p.upper = other.upper
	}
	p.virtualPages = append(p.virtualPages, other.virtualPages...)
}

// AddPage attaches a committed virtual page as a back-reference.
func (p *PhysicalPage) AddPage(vp VirtualPage) {
	p.virtualPages = append(p.virtualPages, vp)
}

// VirtualPageCount returns the number of attached back-references.
func (p *PhysicalPage) VirtualPageCount() int {
	return len(p.virtualPages)
}

// VirtualPageAt returns the attached virtual page owned by space whose
// physical range covers pa. A miss is an ordinary "not found".
func (p *PhysicalPage) VirtualPageAt(pa uint64, space AddressSpace) (VirtualPage, bool) {
	for _, vp := range p.virtualPages {
		if vp.AddressSpace() == space && vp.PhysicalLower() <= pa && pa <= vp.PhysicalUpper() {
			return vp, true
		}
	}
	return nil, false
}

// HandleMemoryConstraintUpdate forwards the update to every back-referenced
// virtual page so the owning layer can react.
func (p *PhysicalPage) HandleMemoryConstraintUpdate(update *ConstraintUpdate) {
	for _, vp := range p.virtualPages {
		vp.HandleMemoryConstraintUpdate(update)
	}
}
