// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Page Request - Allocation Request Descriptor
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// A PageRequest is the read-only contract between the virtual address space
// layer and the allocator: tri-state boolean attributes (set true / set false
// / unset, with per-attribute defaults), presence-tested value attributes,
// and the memory attribute names the mapping must carry.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package paging

// BoolAttr names one tri-state boolean request attribute.
type BoolAttr int

const (
	// AttrFlatMap requests identity mapping: physical address = virtual
	// address. Default false.
	AttrFlatMap BoolAttr = iota
	// AttrCanAlias marks the resulting physical page as a legal future alias
	// target. Default true.
	AttrCanAlias
	// AttrForceMemAttrs bypasses attribute compatibility checks during
	// aliasing. Default false.
	AttrForceMemAttrs
	// AttrForceAlias requires the allocation to alias; fresh allocation is
	// never attempted. Default false.
	AttrForceAlias
	// AttrInstrAddr marks an instruction access, selecting the instruction
	// aliasing policy table. Default false.
	AttrInstrAddr
)

// ValueAttr names one presence-tested value attribute.
type ValueAttr int

const (
	// AttrTargetPA pins the physical target of an aliased allocation.
	AttrTargetPA ValueAttr = iota
	// AttrAliasPageID targets the bounds of an existing physical page by id.
	AttrAliasPageID
)

// PageRequest describes one virtual page's backing requirements.
type PageRequest struct {
	boolAttrs  map[BoolAttr]bool
	valueAttrs map[ValueAttr]uint64

	memoryAttributes      []string
	aliasMemoryAttributes []string
}

// NewPageRequest returns a request with every attribute unset.
func NewPageRequest() *PageRequest {
	return &PageRequest{
		boolAttrs:  make(map[BoolAttr]bool),
		valueAttrs: make(map[ValueAttr]uint64),
	}
}

// SetBool sets a boolean attribute. Returns the request for chaining.
func (r *PageRequest) SetBool(attr BoolAttr, value bool) *PageRequest {
	r.boolAttrs[attr] = value
	return r
}

// BoolAttribute returns (value, set).
func (r *PageRequest) BoolAttribute(attr BoolAttr) (bool, bool) {
	v, ok := r.boolAttrs[attr]
	return v, ok
}

// BoolDefaultFalse returns the attribute value, defaulting unset to false.
func (r *PageRequest) BoolDefaultFalse(attr BoolAttr) bool {
	return r.boolAttrs[attr]
}

// BoolDefaultTrue returns the attribute value, defaulting unset to true.
func (r *PageRequest) BoolDefaultTrue(attr BoolAttr) bool {
	if v, ok := r.boolAttrs[attr]; ok {
		return v
	}
	return true
}

// SetValue sets a value attribute. Returns the request for chaining.
func (r *PageRequest) SetValue(attr ValueAttr, value uint64) *PageRequest {
	r.valueAttrs[attr] = value
	return r
}

// Value returns (value, present).
func (r *PageRequest) Value(attr ValueAttr) (uint64, bool) {
	v, ok := r.valueAttrs[attr]
	return v, ok
}

// AddMemoryAttribute appends a memory attribute name the mapping must carry.
func (r *PageRequest) AddMemoryAttribute(name string) *PageRequest {
	r.memoryAttributes = append(r.memoryAttributes, name)
	return r
}

// AddAliasMemoryAttribute appends an attribute name used only when resolving
// alias targets.
func (r *PageRequest) AddAliasMemoryAttribute(name string) *PageRequest {
	r.aliasMemoryAttributes = append(r.aliasMemoryAttributes, name)
	return r
}

// MemoryAttributes returns the attribute names for fresh allocation.
func (r *PageRequest) MemoryAttributes() []string {
	return r.memoryAttributes
}

// AliasMemoryAttributes returns the attribute names for aliasing, falling
// back to the fresh-allocation list when no alias-specific names were given.
func (r *PageRequest) AliasMemoryAttributes() []string {
	if len(r.aliasMemoryAttributes) > 0 {
		return r.aliasMemoryAttributes
	}
	return r.memoryAttributes
}
