// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Paging Choices - Weighted Policy Oracle
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// The generator steers how often physical pages alias onto each other through
// named weighted choices, one per access class. A draw answers one question:
// should this allocation try aliasing before fresh placement? Weights are
// test-template knobs, not probabilities baked into the allocator.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package choices

import (
	"math/rand"

	"github.com/cockroachdb/errors"
)

// Choice names consulted by the allocator's policy dispatch.
const (
	InstructionPageAliasing = "Instruction Page Aliasing"
	DataPageAliasing        = "Data Page Aliasing"
)

// Values a paging choice can resolve to.
const (
	choiceFresh uint32 = 0
	choiceAlias uint32 = 1
)

// Choice is one weighted outcome in a named choice table.
type Choice struct {
	Value  uint32
	Weight uint32
}

// ErrNoValidChoice is returned when every outcome in a table carries zero
// weight.
var ErrNoValidChoice = errors.New("choices: all weights are zero")

// Pick selects one index from table with probability proportional to weight.
func Pick(rnd *rand.Rand, table []Choice) (int, error) {
	var total uint64
	for _, c := range table {
		total += uint64(c.Weight)
	}
	if total == 0 {
		return 0, ErrNoValidChoice
	}
	draw := uint64(rnd.Int63n(int64(total)))
	for i, c := range table {
		if draw < uint64(c.Weight) {
			return i, nil
		}
		draw -= uint64(c.Weight)
	}
	return len(table) - 1, nil
}

// PagingChoices resolves named paging choices with an instance-owned RNG so
// separate generation runs with the same seed replay the same decisions.
type PagingChoices struct {
	rnd    *rand.Rand
	tables map[string][]Choice
}

// NewPagingChoices builds an oracle with the default tables: aliasing is a
// minority outcome (weight 10 vs 90) for both access classes.
func NewPagingChoices(seed int64) *PagingChoices {
	return &PagingChoices{
		rnd: rand.New(rand.NewSource(seed)),
		tables: map[string][]Choice{
			InstructionPageAliasing: {{Value: choiceFresh, Weight: 90}, {Value: choiceAlias, Weight: 10}},
			DataPageAliasing:        {{Value: choiceFresh, Weight: 90}, {Value: choiceAlias, Weight: 10}},
		},
	}
}

// SetChoice replaces the weights of one named table.
func (p *PagingChoices) SetChoice(name string, freshWeight uint32, aliasWeight uint32) {
	p.tables[name] = []Choice{
		{Value: choiceFresh, Weight: freshWeight},
		{Value: choiceAlias, Weight: aliasWeight},
	}
}

// PlainChoice draws one value from the named table. Unknown names and
// all-zero tables resolve to the fresh-allocation value: a misconfigured
// choice must never wedge generation.
func (p *PagingChoices) PlainChoice(name string) uint32 {
	table, ok := p.tables[name]
	if !ok {
		return choiceFresh
	}
	idx, err := Pick(p.rnd, table)
	if err != nil {
		return choiceFresh
	}
	return table[idx].Value
}

// AliasFirst reports whether the current draw directs the allocator to
// attempt aliasing before fresh allocation for the given access class.
func (p *PagingChoices) AliasFirst(isInstrAccess bool) bool {
	name := DataPageAliasing
	if isInstrAccess {
		name = InstructionPageAliasing
	}
	return p.PlainChoice(name) == choiceAlias
}
