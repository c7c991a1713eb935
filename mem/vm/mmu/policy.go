package mmu

import (
	"fmt"
	"strings"

	"github.com/sarchlab/vmkernel/mem/vm/tlb"
)

// Policy selects how page faults are resolved.
type Policy int

const (
	// PolicyFIFO refills the TLB from the page table only. Pages must
	// already be resident; TLB slots are replaced in insertion order.
	PolicyFIFO Policy = iota

	// PolicyLRU performs demand paging. Frames and TLB slots are replaced
	// least recently used first.
	PolicyLRU
)

func (p Policy) String() string {
	switch p {
	case PolicyFIFO:
		return "fifo"
	case PolicyLRU:
		return "lru"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a policy name into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return PolicyFIFO, nil
	case "lru", "recency":
		return PolicyLRU, nil
	default:
		return 0, fmt.Errorf("unknown replacement policy %q", s)
	}
}

// strategy holds what differs between the policies.
type strategy struct {
	demandPaging bool
	slotFinder   tlb.VictimFinder
}

func (p Policy) strategy() strategy {
	switch p {
	case PolicyFIFO:
		return strategy{
			demandPaging: false,
			slotFinder:   tlb.NewFIFOVictimFinder(),
		}
	default:
		return strategy{
			demandPaging: true,
			slotFinder:   tlb.NewLRUVictimFinder(),
		}
	}
}
