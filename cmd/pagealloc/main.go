// ═══════════════════════════════════════════════════════════════════════════════════════════════
// pagealloc - Allocation Campaign Driver
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Runs a randomized physical page allocation campaign against one memory bank
// and reports what the allocator did. Useful for shaking the engine under a
// chosen seed and weight mix, and for bisecting a failing generation run down
// to an allocation sequence:
//
//   pagealloc -seed 42 -count 2000 -alias-weight 25 -strict -v
//
// With -strict the cross-structure invariants are validated after every single
// allocation and the first violation aborts the run with a non-zero exit;
// without it validation runs once at the end.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/exp/slog"

	"github.com/IamJuicyApple/force-riscv/choices"
	"github.com/IamJuicyApple/force-riscv/constraint"
	"github.com/IamJuicyApple/force-riscv/memtraits"
	"github.com/IamJuicyApple/force-riscv/paging"
)

func main() {
	var (
		seed        = flag.Int64("seed", 1, "random seed shared by placement and policy draws")
		count       = flag.Int("count", 1000, "number of allocation attempts")
		aliasWeight = flag.Uint("alias-weight", 10, "weight of the alias-first policy outcome (0-100)")
		memLo       = flag.Uint64("mem-lower", 0x80000000, "inclusive lower bound of usable physical memory")
		memHi       = flag.Uint64("mem-upper", 0x8FFFFFFF, "inclusive upper bound of usable physical memory")
		strict      = flag.Bool("strict", false, "validate invariants after every allocation")
		verbose     = flag.Bool("v", false, "log every allocation decision")
	)
	flag.Parse()

	if *memHi < *memLo {
		fmt.Fprintf(os.Stderr, "pagealloc: memory bounds reversed: [0x%x, 0x%x]\n", *memLo, *memHi)
		os.Exit(2)
	}
	if *aliasWeight > 100 {
		fmt.Fprintf(os.Stderr, "pagealloc: alias-weight %d out of range 0-100\n", *aliasWeight)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(log, *seed, *count, uint32(*aliasWeight), *memLo, *memHi, *strict); err != nil {
		log.Error("campaign failed", "err", err)
		os.Exit(1)
	}
}

// campaignStats accumulates the per-outcome counters the summary reports.
type campaignStats struct {
	fresh      int
	aliased    int
	failed     int
	pagesAfter int
}

func run(log *slog.Logger, seed int64, count int, aliasWeight uint32,
	memLo uint64, memHi uint64, strict bool) error {

	traits := memtraits.NewManager(memtraits.NewRegistry())
	alloc := paging.NewPhysicalPageAllocator(paging.MemBankDefault, traits,
		paging.WithSeed(seed), paging.WithLogger(log))

	region := constraint.NewConstraintSetRange(memLo, memHi)
	alloc.Initialize(region, region.Clone())

	oracle := choices.NewPagingChoices(seed)
	oracle.SetChoice(choices.DataPageAliasing, 100-aliasWeight, aliasWeight)
	oracle.SetChoice(choices.InstructionPageAliasing, 100-aliasWeight, aliasWeight)

	log.Info("campaign start",
		"seed", seed, "count", count, "aliasWeight", aliasWeight,
		"memory", region.String(), "strict", strict)

	var stats campaignStats
	span := memHi - memLo + 1
	for i := 0; i < count; i++ {
		req, sizeInfo := buildRequest(i, span)

		before := alloc.PageCount()
		ok := alloc.AllocatePage(uint32(i%4), requestVA(i, memLo, span), req, sizeInfo, oracle)
		switch {
		case !ok:
			stats.failed++
		case alloc.PageCount() > before:
			stats.fresh++
		default:
			stats.aliased++
		}

		if strict {
			if err := alloc.Validate(); err != nil {
				return fmt.Errorf("allocation %d broke allocator invariants: %w", i, err)
			}
		}
	}

	if err := alloc.Validate(); err != nil {
		return fmt.Errorf("final validation: %w", err)
	}
	stats.pagesAfter = alloc.PageCount()

	log.Info("campaign complete",
		"fresh", stats.fresh, "aliased", stats.aliased, "failed", stats.failed,
		"pagesLive", stats.pagesAfter,
		"bytesAllocated", alloc.AllocatedRanges().Size(),
		"bytesFree", alloc.FreeRanges().Size())
	return nil
}

// buildRequest varies the request mix deterministically across the campaign:
// mostly plain data pages, with flat maps, forced aliases, instruction pages,
// attributed pages, and the occasional 2M page sprinkled in.
func buildRequest(i int, span uint64) (*paging.PageRequest, *paging.PageSizeInfo) {
	req := paging.NewPageRequest()
	pt := paging.Pte4K

	switch i % 10 {
	case 1:
		req.SetBool(paging.AttrFlatMap, true)
	case 3:
		req.SetBool(paging.AttrForceAlias, true)
	case 5:
		req.SetBool(paging.AttrInstrAddr, true)
	case 7:
		req.AddMemoryAttribute("Cacheable")
	case 8:
		req.SetBool(paging.AttrCanAlias, false)
	case 9:
		if span >= paging.Pte2M.PageSize() {
			pt = paging.Pte2M
		}
	}
	return req, paging.NewPageSizeInfo(pt)
}

// requestVA spreads virtual addresses across the bank so flat maps land on
// distinct pages.
func requestVA(i int, memLo uint64, span uint64) uint64 {
	step := paging.Pte4K.PageSize() * 7
	return memLo + ((uint64(i)*step)%span)&^paging.Pte4K.PageMask()
}
