// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Memory Traits - Attribute Registry for Physical Address Ranges
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Memory traits are symbolic tags ("Device", "Cacheable", implementation
// names) attached to physical address ranges. The page allocator records a
// trait whenever it backs a page with attributed memory, and consults the
// recorded ranges to keep aliased pages attribute-compatible: a cacheable
// page must never silently alias onto device memory.
//
// Trait state is thread-scoped on top of a shared global layer. The numeric
// hardware-thread id only selects the registration scope; the structures are
// single-writer like the allocator itself.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package memtraits

import (
	"github.com/cockroachdb/errors"

	"github.com/IamJuicyApple/force-riscv/constraint"
)

// TraitID identifies one interned trait name. IDs start at 1; 0 is invalid.
type TraitID uint32

// InvalidTraitID is the reserved non-id.
const InvalidTraitID TraitID = 0

// Registry interns trait names to stable ids.
type Registry struct {
	ids   map[string]TraitID
	names []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]TraitID)}
}

// RequestTraitID returns the id for name, interning it on first sight.
func (r *Registry) RequestTraitID(name string) TraitID {
	if id, ok := r.ids[name]; ok {
		return id
	}
	r.names = append(r.names, name)
	id := TraitID(len(r.names))
	r.ids[name] = id
	return id
}

// TraitName resolves an id back to its name.
func (r *Registry) TraitName(id TraitID) (string, bool) {
	if id == InvalidTraitID || int(id) > len(r.names) {
		return "", false
	}
	return r.names[id-1], true
}

// traitTable maps trait ids to the address ranges carrying them.
type traitTable map[TraitID]*constraint.ConstraintSet

func (t traitTable) add(id TraitID, lo uint64, hi uint64) {
	cs, ok := t[id]
	if !ok {
		cs = constraint.NewConstraintSet()
		t[id] = cs
	}
	cs.AddRange(lo, hi)
}

// Manager stores trait→range associations per hardware thread over a shared
// global layer, and answers the allocator's compatibility queries.
type Manager struct {
	registry *Registry
	global   traitTable
	threads  map[uint32]traitTable
}

// NewManager returns a manager over the given registry.
func NewManager(registry *Registry) *Manager {
	if registry == nil {
		panic(errors.New("memtraits: NewManager requires a registry"))
	}
	return &Manager{
		registry: registry,
		global:   make(traitTable),
		threads:  make(map[uint32]traitTable),
	}
}

// Registry returns the name-interning registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// AddTrait records that [lo, hi] carries the trait in the given thread's
// scope.
func (m *Manager) AddTrait(threadID uint32, id TraitID, lo uint64, hi uint64) {
	if id == InvalidTraitID {
		panic(errors.New("memtraits: AddTrait with invalid trait id"))
	}
	table, ok := m.threads[threadID]
	if !ok {
		table = make(traitTable)
		m.threads[threadID] = table
	}
	table.add(id, lo, hi)
}

// AddGlobalTrait records that [lo, hi] carries the trait for every thread.
func (m *Manager) AddGlobalTrait(id TraitID, lo uint64, hi uint64) {
	if id == InvalidTraitID {
		panic(errors.New("memtraits: AddGlobalTrait with invalid trait id"))
	}
	m.global.add(id, lo, hi)
}

// TraitAddressRanges returns the addresses known to carry the trait in the
// thread's scope (thread-local unioned with global), or nil when the trait
// has no recorded ranges. Callers treat nil as "no constraint contribution",
// not as an empty constraint.
func (m *Manager) TraitAddressRanges(threadID uint32, id TraitID) *constraint.ConstraintSet {
	var result *constraint.ConstraintSet
	if cs, ok := m.global[id]; ok {
		result = cs.Clone()
	}
	if table, ok := m.threads[threadID]; ok {
		if cs, ok := table[id]; ok {
			if result == nil {
				result = cs.Clone()
			} else {
				result.MergeConstraintSet(cs)
			}
		}
	}
	return result
}

// TraitRange describes which traits apply over one address window. It is the
// unit of the aliasing compatibility check.
type TraitRange struct {
	lower  uint64
	upper  uint64
	traits map[TraitID]bool
}

// NewTraitRange builds the requested-attribute side of a compatibility check:
// every listed trait is taken to cover the whole window.
func NewTraitRange(ids []TraitID, lo uint64, hi uint64) *TraitRange {
	traits := make(map[TraitID]bool, len(ids))
	for _, id := range ids {
		traits[id] = true
	}
	return &TraitRange{lower: lo, upper: hi, traits: traits}
}

// CreateTraitRange builds the recorded-attribute side of a compatibility
// check: the traits whose recorded ranges intersect [lo, hi] in the thread's
// scope.
func (m *Manager) CreateTraitRange(threadID uint32, lo uint64, hi uint64) *TraitRange {
	traits := make(map[TraitID]bool)
	window := constraint.NewConstraintSetRange(lo, hi)
	collect := func(table traitTable) {
		for id, cs := range table {
			if traits[id] {
				continue
			}
			probe := cs.Clone()
			probe.ApplyConstraintSet(window)
			if !probe.IsEmpty() {
				traits[id] = true
			}
		}
	}
	collect(m.global)
	if table, ok := m.threads[threadID]; ok {
		collect(table)
	}
	return &TraitRange{lower: lo, upper: hi, traits: traits}
}

// IsEmpty reports whether no traits apply over the window.
func (t *TraitRange) IsEmpty() bool {
	return len(t.traits) == 0
}

// IsCompatible reports whether two windows carry the same trait set. Aliasing
// two differently attributed ranges would let one virtual mapping observe
// memory semantics the other was generated against.
func (t *TraitRange) IsCompatible(other *TraitRange) bool {
	if len(t.traits) != len(other.traits) {
		return false
	}
	for id := range t.traits {
		if !other.traits[id] {
			return false
		}
	}
	return true
}

// TraitIDs returns the applied trait ids in unspecified order.
func (t *TraitRange) TraitIDs() []TraitID {
	ids := make([]TraitID, 0, len(t.traits))
	for id := range t.traits {
		ids = append(ids, id)
	}
	return ids
}
