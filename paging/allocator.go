// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Physical Page Allocator - Allocation and Aliasing Engine
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// DESIGN PHILOSOPHY:
// ─────────────────
// Each time the virtual address space layer needs physical backing for one
// virtual page, this engine decides where that backing lives and keeps four
// interlocking range sets consistent with a sorted collection of physical
// page records:
//
//   boundary      legal physical envelope for the memory bank (never exceeded)
//   free          addresses not yet backing any page
//   allocated     addresses currently backing some page
//   aliasExclude  allocated addresses whose page forbids aliasing
//
// plus one usable-aligned cache per page size class: free pre-converted to
// that class's page-number granularity, so placement solves never re-derive
// alignment.
//
// Core principles:
//   1. Three policies, one dispatcher: fresh allocation, forced aliasing, and
//      opportunistic aliasing with fallback, ordered by a weighted choice
//   2. Sorted non-overlap invariant: live page records are ordered by lower
//      bound and pairwise disjoint; aliasing merges records instead of ever
//      storing an overlap
//   3. Overlap-as-equality ordering: two ranges compare equal iff they
//      overlap, so one binary search finds every page an alias target hits
//   4. Recoverable vs fatal: "no space" and "no valid target" return false
//      with zero side effects; invariant violations panic - generation
//      cannot safely continue past an inconsistent allocator
//   5. Instance-owned randomness and page ids: same seed, same program
//
// ALIASING:
// ────────
// Aliasing deliberately maps a new virtual page onto physical memory that
// already backs another mapping, so generated tests exercise translation
// paths where distinct virtual addresses collide physically. The alias
// target resolves by priority: identity mapping, explicit physical address,
// explicit page id, then a constraint solve over every aliasable allocated
// page that satisfies the requested memory attributes.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package paging

import (
	"io"
	"math/rand"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"

	"github.com/IamJuicyApple/force-riscv/constraint"
	"github.com/IamJuicyApple/force-riscv/memtraits"
)

// MemBankType identifies the physical memory bank an allocator instance is
// scoped to. One generation pipeline mutates one bank's allocator at a time.
type MemBankType int

// MemBankDefault is the single DRAM bank of the RISC-V target.
const MemBankDefault MemBankType = 0

func (b MemBankType) String() string {
	if b == MemBankDefault {
		return "default"
	}
	return "unknown"
}

// PolicyOracle decides whether an unforced allocation tries aliasing before
// fresh placement.
type PolicyOracle interface {
	AliasFirst(isInstrAccess bool) bool
}

// Option configures a PhysicalPageAllocator.
type Option func(*PhysicalPageAllocator)

// WithSeed fixes the allocator's random stream.
func WithSeed(seed int64) Option {
	return func(a *PhysicalPageAllocator) {
		a.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithLogger routes the allocator's decision log.
func WithLogger(log *slog.Logger) Option {
	return func(a *PhysicalPageAllocator) {
		a.log = log
	}
}

// PhysicalPageAllocator owns the physical page records and range bookkeeping
// for one memory bank. Not safe for concurrent use; one writer per instance.
type PhysicalPageAllocator struct {
	bank   MemBankType
	traits *memtraits.Manager
	rnd    *rand.Rand
	log    *slog.Logger

	boundary     *constraint.ConstraintSet
	free         *constraint.ConstraintSet
	allocated    *constraint.ConstraintSet
	aliasExclude *constraint.ConstraintSet

	// free, pre-aligned to each size class, stored as page numbers.
	usableAligned map[PteType]*constraint.ConstraintSet

	// Sorted by lower bound, pairwise disjoint.
	pages []*PhysicalPage

	// Monotonic; never reused, 0 reserved as invalid.
	nextPageID uint64

	initialized bool
}

// NewPhysicalPageAllocator builds an allocator for one bank. The traits
// manager is referenced, not owned.
func NewPhysicalPageAllocator(bank MemBankType, traits *memtraits.Manager, opts ...Option) *PhysicalPageAllocator {
	a := &PhysicalPageAllocator{
		bank:       bank,
		traits:     traits,
		rnd:        rand.New(rand.NewSource(1)),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		nextPageID: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize sets the usable physical memory and the bank boundary. Both are
// cloned. Nil or empty inputs, or a second call, are fatal: they mean the
// generator configuration is broken, not that a request failed.
func (a *PhysicalPageAllocator) Initialize(usable *constraint.ConstraintSet, boundary *constraint.ConstraintSet) {
	if a.initialized {
		panic(errors.New("paging: allocator re-initialization is not supported"))
	}
	if usable == nil {
		panic(errors.New("paging: Initialize with nil usable physical memory"))
	}
	if boundary == nil {
		panic(errors.New("paging: Initialize with nil boundary"))
	}
	if usable.IsEmpty() {
		panic(errors.New("paging: Initialize with empty usable physical memory"))
	}

	a.boundary = boundary.Clone()
	a.free = usable.Clone()
	a.allocated = constraint.NewConstraintSet()
	a.aliasExclude = constraint.NewConstraintSet()

	a.usableAligned = make(map[PteType]*constraint.ConstraintSet, len(PteTypes()))
	for _, t := range PteTypes() {
		aligned := a.free.Clone()
		aligned.AlignWithPage(^t.PageMask())
		a.usableAligned[t] = aligned
	}
	a.initialized = true

	a.log.Info("physical page allocator initialized",
		"bank", a.bank.String(), "boundary", a.boundary.String(), "usable", a.free.String())
}

// SubFromBoundary shrinks the legal envelope.
func (a *PhysicalPageAllocator) SubFromBoundary(cs *constraint.ConstraintSet) {
	a.boundary.SubConstraintSet(cs)
}

// AddToBoundary grows the legal envelope.
func (a *PhysicalPageAllocator) AddToBoundary(cs *constraint.ConstraintSet) {
	a.boundary.MergeConstraintSet(cs)
}

// PageCount returns the number of live physical page records.
func (a *PhysicalPageAllocator) PageCount() int {
	return len(a.pages)
}

// Pages returns the live records ordered by lower bound. Callers must not
// mutate the returned slice.
func (a *PhysicalPageAllocator) Pages() []*PhysicalPage {
	return a.pages
}

// FreeRanges returns a copy of the current free set.
func (a *PhysicalPageAllocator) FreeRanges() *constraint.ConstraintSet {
	return a.free.Clone()
}

// AllocatedRanges returns a copy of the current allocated set.
func (a *PhysicalPageAllocator) AllocatedRanges() *constraint.ConstraintSet {
	return a.allocated.Clone()
}

// nextID mints a fresh page id. Ids burned by allocation paths that later
// fail are simply skipped; only uniqueness matters.
func (a *PhysicalPageAllocator) nextID() uint64 {
	id := a.nextPageID
	a.nextPageID++
	return id
}

// ─────────────────────────────────────────────────────────────────────────────
// Policy dispatch
// ─────────────────────────────────────────────────────────────────────────────

// AllocatePage backs one virtual page, dispatching between fresh allocation
// and aliasing. A forced alias never falls back; otherwise the oracle picks
// the attempt order and the second path runs only if the first fails.
func (a *PhysicalPageAllocator) AllocatePage(threadID uint32, va uint64, req *PageRequest,
	sizeInfo *PageSizeInfo, oracle PolicyOracle) bool {

	if req.BoolDefaultFalse(AttrForceAlias) {
		return a.AliasAllocation(threadID, va, sizeInfo, req)
	}

	aliasFirst := oracle.AliasFirst(req.BoolDefaultFalse(AttrInstrAddr))
	if aliasFirst {
		if a.AliasAllocation(threadID, va, sizeInfo, req) {
			return true
		}
		return a.NewAllocation(threadID, va, sizeInfo, req)
	}
	if a.NewAllocation(threadID, va, sizeInfo, req) {
		return true
	}
	return a.AliasAllocation(threadID, va, sizeInfo, req)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fresh allocation
// ─────────────────────────────────────────────────────────────────────────────

// NewAllocation backs the virtual page with previously unallocated memory.
// Placement comes from the flat or random strategy; on success the new page
// is inserted and every range set updates. Returns false with no side
// effects when no legal placement exists.
func (a *PhysicalPageAllocator) NewAllocation(threadID uint32, va uint64,
	sizeInfo *PageSizeInfo, req *PageRequest) bool {

	var strategy MappingStrategy
	if req.BoolDefaultFalse(AttrFlatMap) {
		strategy = FlatMappingStrategy{}
	} else {
		strategy = NewRandomMappingStrategy(a.rnd)
	}

	usable, ok := a.usableAligned[sizeInfo.Type]
	if !ok {
		panic(errors.Newf("paging: no usable-aligned cache for size class %s", sizeInfo.Type))
	}
	if !strategy.AllocatePhysicalPage(va, usable, a.boundary, req, sizeInfo) {
		return false
	}

	canAlias := req.BoolDefaultTrue(AttrCanAlias)
	page := NewPhysicalPage(sizeInfo.PhysicalStart, sizeInfo.PhysicalEnd(), canAlias, a.nextID())
	sizeInfo.UpdatePhysPageID(page.PageID())
	a.recordMemoryAttributes(threadID, req.MemoryAttributes(), page)
	a.addPhysicalPage(page)

	a.log.Debug("fresh allocation",
		"va", va, "lower", page.Lower(), "upper", page.Upper(),
		"pageId", page.PageID(), "class", sizeInfo.Type.String())
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Aliased allocation
// ─────────────────────────────────────────────────────────────────────────────

// AliasAllocation backs the virtual page with memory that already backs
// another mapping. Target resolution priority: flat map, explicit physical
// address, explicit page id, constraint solve. The resolved candidate is then
// merged with the overlapped record(s), in the direction that preserves the
// sorted non-overlap invariant. Returns false with no side effects when no
// valid target exists, the candidate would leave the bank boundary, or the
// overlapped pages refuse the alias.
func (a *PhysicalPageAllocator) AliasAllocation(threadID uint32, va uint64,
	sizeInfo *PageSizeInfo, req *PageRequest) bool {

	isFlatMap := req.BoolDefaultFalse(AttrFlatMap)
	canAlias := req.BoolDefaultTrue(AttrCanAlias)
	forceMemAttrs := req.BoolDefaultFalse(AttrForceMemAttrs)

	// Resolve the physical target.
	var target uint64
	switch {
	case isFlatMap:
		target = va
	default:
		if pa, ok := req.Value(AttrTargetPA); ok {
			target = pa
		} else if id, ok := req.Value(AttrAliasPageID); ok {
			page := a.FindPhysicalPageByID(id)
			if page == nil {
				a.log.Warn("alias target page id not found", "pageId", id)
				return false
			}
			target = page.Lower()
		} else {
			solved, ok := a.SolveAliasConstraints(threadID, sizeInfo, req)
			if !ok {
				return false
			}
			target = solved
		}
	}
	sizeInfo.UpdatePhysicalStart(target)

	// A large size class aligned onto a small existing page can reach past
	// the bank. Refuse before any state changes; the boundary is never
	// exceeded, not even by a merge.
	if !a.boundary.ContainsRange(sizeInfo.PhysicalStart, sizeInfo.PhysicalEnd()) {
		a.log.Warn("alias candidate exceeds bank boundary",
			"lower", sizeInfo.PhysicalStart, "upper", sizeInfo.PhysicalEnd(),
			"boundary", a.boundary.String())
		return false
	}

	candidate := NewPhysicalPage(sizeInfo.PhysicalStart, sizeInfo.PhysicalEnd(), canAlias, a.nextID())
	first, last := a.overlapRange(candidate.Lower(), candidate.Upper())
	overlapped := a.pages[first:last]

	switch len(overlapped) {
	case 0:
		// The selected target hits no existing allocation; aliasing onto
		// nothing is a recoverable caller error.
		a.log.Warn("alias target overlaps no allocated page",
			"lower", candidate.Lower(), "upper", candidate.Upper())
		return false

	case 1:
		existing := overlapped[0]
		if !forceMemAttrs && !a.aliasAttrsCompatible(threadID, req, candidate, existing) {
			return false
		}

		if candidate.Lower() < existing.Lower() || candidate.Upper() > existing.Upper() {
			// Candidate extends beyond the existing page: the existing record
			// is absorbed into the candidate.
			if !isFlatMap && !existing.CanAlias() {
				a.log.Debug("alias denied, target page is not aliasable", "pageId", existing.PageID())
				return false
			}
			candidate.Merge(existing)
			a.pages = slices.Delete(a.pages, first, first+1)
			sizeInfo.UpdatePhysPageID(candidate.PageID())
			a.recordMemoryAttributes(threadID, req.AliasMemoryAttributes(), candidate)
			a.addPhysicalPage(candidate)
			a.log.Debug("single-overlap alias, existing page merged into candidate",
				"lower", candidate.Lower(), "upper", candidate.Upper(), "pageId", candidate.PageID())
		} else {
			// Candidate fits inside the existing page: the existing record
			// survives and the candidate is discarded.
			if !isFlatMap {
				if !existing.CanAlias() {
					a.log.Debug("alias denied, target page is not aliasable", "pageId", existing.PageID())
					return false
				}
				if !canAlias {
					existing.SetCanAlias(false)
					a.aliasExclude.AddRange(existing.Lower(), existing.Upper())
					a.log.Debug("existing page marked non-aliasable",
						"pageId", existing.PageID(), "aliasExclude", a.aliasExclude.String())
				}
			}
			sizeInfo.UpdatePhysPageID(existing.PageID())
			a.log.Debug("single-overlap alias, candidate absorbed by existing page",
				"lower", existing.Lower(), "upper", existing.Upper(), "pageId", existing.PageID())
		}
		return true

	default:
		// Candidate spans several pages. Every overlapped page is checked
		// individually before any state changes.
		if !forceMemAttrs {
			for _, existing := range overlapped {
				if !a.aliasAttrsCompatible(threadID, req, candidate, existing) {
					return false
				}
				if !isFlatMap && !existing.CanAlias() {
					a.log.Debug("alias denied, overlapped page is not aliasable", "pageId", existing.PageID())
					return false
				}
			}
		}
		for _, existing := range overlapped {
			candidate.Merge(existing)
		}
		a.pages = slices.Delete(a.pages, first, last)
		sizeInfo.UpdatePhysPageID(candidate.PageID())
		a.recordMemoryAttributes(threadID, req.AliasMemoryAttributes(), candidate)
		a.addPhysicalPage(candidate)
		a.log.Debug("multi-overlap alias, pages merged into candidate",
			"merged", last-first, "lower", candidate.Lower(), "upper", candidate.Upper(),
			"pageId", candidate.PageID())
		return true
	}
}

// aliasAttrsCompatible checks the requested attributes against one existing
// page's recorded attributes.
func (a *PhysicalPageAllocator) aliasAttrsCompatible(threadID uint32, req *PageRequest,
	candidate *PhysicalPage, existing *PhysicalPage) bool {

	pageTraits := a.traits.CreateTraitRange(threadID, existing.Lower(), existing.Upper())
	allocTraits := memtraits.NewTraitRange(
		a.traitIDs(req.AliasMemoryAttributes()), candidate.Lower(), candidate.Upper())
	if !a.memAttrCompatibility(allocTraits, pageTraits) {
		a.log.Debug("alias denied, memory attributes incompatible",
			"pageId", existing.PageID())
		return false
	}
	return true
}

// memAttrCompatibility decides whether a requested attribute range may alias
// onto a recorded one. An attribute-less side matches anything; otherwise
// the ranges must report themselves compatible. The default is deny.
func (a *PhysicalPageAllocator) memAttrCompatibility(alloc *memtraits.TraitRange, alias *memtraits.TraitRange) bool {
	if alloc.IsEmpty() {
		return true
	}
	if alias.IsEmpty() {
		return true
	}
	return alias.IsCompatible(alloc)
}

// ─────────────────────────────────────────────────────────────────────────────
// Alias target resolution
// ─────────────────────────────────────────────────────────────────────────────

// SolveAliasConstraints picks an alias target when the request names none:
// allocated memory, minus alias-excluded ranges, trimmed to the class's
// reachable space, narrowed by each requested attribute's known ranges, then
// aligned to the class. Returns the chosen page-aligned physical address, or
// false when the candidate set is empty.
func (a *PhysicalPageAllocator) SolveAliasConstraints(threadID uint32,
	sizeInfo *PageSizeInfo, req *PageRequest) (uint64, bool) {

	solve := a.allocated.Clone()
	solve.SubConstraintSet(a.aliasExclude)
	if !solve.IsEmpty() && solve.UpperBound() > sizeInfo.MaxPhysical() {
		solve.SubRange(sizeInfo.MaxPhysical()+1, solve.UpperBound())
	}

	// An attribute with no recorded ranges contributes no narrowing rather
	// than forcing emptiness.
	for _, id := range a.traitIDs(req.AliasMemoryAttributes()) {
		if attrRanges := a.traits.TraitAddressRanges(threadID, id); attrRanges != nil {
			solve.ApplyConstraintSet(attrRanges)
		}
	}

	solve.AlignWithPage(^sizeInfo.Type.PageMask())
	if solve.IsEmpty() {
		return 0, false
	}
	pageNum := solve.ChooseValue(a.rnd)
	return pageNum << sizeInfo.Type.PageShift(), true
}

// ─────────────────────────────────────────────────────────────────────────────
// Commit and lookup
// ─────────────────────────────────────────────────────────────────────────────

// CommitPage attaches a now-built virtual page to the physical page whose
// bounds back it. Commit only ever follows a successful allocation, so a
// miss is an internal-consistency violation.
func (a *PhysicalPageAllocator) CommitPage(vp VirtualPage) {
	page := a.FindPhysicalPage(vp.PhysicalLower(), vp.PhysicalUpper())
	if page == nil {
		panic(errors.Newf("paging: commit found no physical page for [0x%x, 0x%x]",
			vp.PhysicalLower(), vp.PhysicalUpper()))
	}
	page.AddPage(vp)
}

// FindPhysicalPage returns the single page overlapping [lo, hi], or nil when
// none does. More than one match means the non-overlap invariant broke:
// fatal.
func (a *PhysicalPageAllocator) FindPhysicalPage(lo uint64, hi uint64) *PhysicalPage {
	first, last := a.overlapRange(lo, hi)
	switch last - first {
	case 0:
		a.log.Warn("no physical page for range", "lower", lo, "upper", hi)
		return nil
	case 1:
		return a.pages[first]
	default:
		panic(errors.Newf("paging: %d physical pages overlap [0x%x, 0x%x], collection is inconsistent",
			last-first, lo, hi))
	}
}

// FindPhysicalPageByID returns the page with the given id, or nil. Ids are
// not ordered by address, so this is a linear scan.
func (a *PhysicalPageAllocator) FindPhysicalPageByID(id uint64) *PhysicalPage {
	idx := slices.IndexFunc(a.pages, func(p *PhysicalPage) bool { return p.PageID() == id })
	if idx < 0 {
		return nil
	}
	return a.pages[idx]
}

// VirtualPageAt returns the committed virtual page owned by space that is
// backed at physical address pa. A miss is an ordinary "not found".
func (a *PhysicalPageAllocator) VirtualPageAt(pa uint64, space AddressSpace) (VirtualPage, bool) {
	page := a.FindPhysicalPage(pa, pa)
	if page == nil {
		return nil, false
	}
	return page.VirtualPageAt(pa, space)
}

// HandleMemoryConstraintUpdate forwards an attribute change to every physical
// page the update's range overlaps. Read-only with respect to the range sets.
func (a *PhysicalPageAllocator) HandleMemoryConstraintUpdate(update *ConstraintUpdate) {
	first, last := a.overlapRange(update.PhysicalStart, update.PhysicalEnd)
	for _, page := range a.pages[first:last] {
		page.HandleMemoryConstraintUpdate(update)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Collection and range set maintenance
// ─────────────────────────────────────────────────────────────────────────────

// overlapRange returns the half-open index window [first, last) of pages
// overlapping [lo, hi]. Pages are sorted and disjoint, so under the ordering
// "a before b iff a.upper < b.lower" every overlapping page compares equal to
// the probe and the window is contiguous.
func (a *PhysicalPageAllocator) overlapRange(lo uint64, hi uint64) (int, int) {
	first, _ := slices.BinarySearchFunc(a.pages, lo, func(p *PhysicalPage, probe uint64) int {
		if p.Upper() < probe {
			return -1
		}
		return 1
	})
	last, _ := slices.BinarySearchFunc(a.pages, hi, func(p *PhysicalPage, probe uint64) int {
		if p.Lower() <= probe {
			return -1
		}
		return 1
	})
	if last < first {
		last = first
	}
	return first, last
}

// addPhysicalPage inserts a page into the sorted collection and updates every
// range set. The caller guarantees no live record overlaps the new page;
// a detected overlap is fatal.
func (a *PhysicalPageAllocator) addPhysicalPage(page *PhysicalPage) {
	first, last := a.overlapRange(page.Lower(), page.Upper())
	if first != last {
		panic(errors.Newf("paging: inserting page [0x%x, 0x%x] would overlap %d live pages",
			page.Lower(), page.Upper(), last-first))
	}
	a.pages = slices.Insert(a.pages, first, page)

	a.free.SubRange(page.Lower(), page.Upper())
	a.allocated.AddRange(page.Lower(), page.Upper())
	if !page.CanAlias() {
		a.aliasExclude.AddRange(page.Lower(), page.Upper())
	}
	a.updateUsableAligned(page.Lower(), page.Upper())
}

// updateUsableAligned removes every page number the byte range [lo, hi]
// touches from every size class cache. Rounding is outward: a partially
// consumed page can no longer host a fresh page of any class.
func (a *PhysicalPageAllocator) updateUsableAligned(lo uint64, hi uint64) {
	for _, t := range PteTypes() {
		shift := t.PageShift()
		a.usableAligned[t].SubRange(lo>>shift, hi>>shift)
	}
}

// recordMemoryAttributes registers each attribute name over the page's
// bounds in the thread's trait scope.
func (a *PhysicalPageAllocator) recordMemoryAttributes(threadID uint32, names []string, page *PhysicalPage) {
	for _, id := range a.traitIDs(names) {
		a.traits.AddTrait(threadID, id, page.Lower(), page.Upper())
	}
}

// traitIDs interns the attribute names.
func (a *PhysicalPageAllocator) traitIDs(names []string) []memtraits.TraitID {
	ids := make([]memtraits.TraitID, 0, len(names))
	for _, name := range names {
		ids = append(ids, a.traits.Registry().RequestTraitID(name))
	}
	return ids
}

// ─────────────────────────────────────────────────────────────────────────────
// Consistency validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate sweeps the allocator's cross-structure invariants and returns the
// first violation found. Tests and the campaign driver run it after every
// mutation; production callers may run it at checkpoints.
func (a *PhysicalPageAllocator) Validate() error {
	if !a.initialized {
		return errors.New("allocator not initialized")
	}

	var pageBytes uint64
	for i, p := range a.pages {
		if p.Upper() < p.Lower() {
			return errors.Newf("page id=%d has reversed bounds [0x%x, 0x%x]", p.PageID(), p.Lower(), p.Upper())
		}
		if i > 0 && a.pages[i-1].Upper() >= p.Lower() {
			return errors.Newf("pages id=%d and id=%d overlap or are unsorted",
				a.pages[i-1].PageID(), p.PageID())
		}
		if !a.boundary.ContainsRange(p.Lower(), p.Upper()) {
			return errors.Newf("page id=%d [0x%x, 0x%x] exceeds boundary %s",
				p.PageID(), p.Lower(), p.Upper(), a.boundary)
		}
		if !a.allocated.ContainsRange(p.Lower(), p.Upper()) {
			return errors.Newf("page id=%d [0x%x, 0x%x] not covered by allocated set %s",
				p.PageID(), p.Lower(), p.Upper(), a.allocated)
		}
		pageBytes += p.Upper() - p.Lower() + 1
	}
	if pageBytes != a.allocated.Size() {
		return errors.Newf("allocated set holds 0x%x bytes but live pages cover 0x%x",
			a.allocated.Size(), pageBytes)
	}

	overlap := a.free.Clone()
	overlap.ApplyConstraintSet(a.allocated)
	if !overlap.IsEmpty() {
		return errors.Newf("free and allocated intersect: %s", overlap)
	}

	excluded := a.aliasExclude.Clone()
	excluded.SubConstraintSet(a.allocated)
	if !excluded.IsEmpty() {
		return errors.Newf("aliasExclude holds unallocated addresses: %s", excluded)
	}

	for _, t := range PteTypes() {
		allocatedPages := constraint.NewConstraintSet()
		for _, r := range a.allocated.Ranges() {
			allocatedPages.AddRange(r.Lower>>t.PageShift(), r.Upper>>t.PageShift())
		}
		stale := a.usableAligned[t].Clone()
		stale.ApplyConstraintSet(allocatedPages)
		if !stale.IsEmpty() {
			return errors.Newf("usable-aligned cache for %s still offers allocated pages: %s", t, stale)
		}
	}
	return nil
}
