package replay

import (
	"github.com/sarchlab/vmkernel/mem/vm/mmu"
)

// The built-in scenario runs on 128-byte pages, 4 frames, and a 2-entry TLB.
const (
	ScenarioPageSize    = 128
	ScenarioNumFrames   = 4
	ScenarioTLBCapacity = 2
)

// fifoScenario touches four preloaded pages in order. The TLB ends holding
// pages 2 and 3.
const fifoScenario = `# refill only: every page is resident before it is touched
spawn 1 4 preload
switch 1
r 0x000 1
r 0x080 1
r 0x100 1
r 0x180 1
`

// lruScenario touches four pages, re-touches page 2, and touches page 4. Page
// 3 leaves the TLB and page 0 leaves memory.
const lruScenario = `# demand paging
spawn 1 8
switch 1
r 0x000 1
r 0x080 1
r 0x100 1
r 0x180 1
r 0x100 1
r 0x200 1
`

// Scenario returns the trace of the built-in scenario for a policy.
func Scenario(p mmu.Policy) string {
	if p == mmu.PolicyFIFO {
		return fifoScenario
	}

	return lruScenario
}
