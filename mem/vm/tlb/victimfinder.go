package tlb

import "github.com/sarchlab/vmkernel/mem/vm"

// A VictimFinder decides which slot should be replaced.
type VictimFinder interface {
	FindVictim(slots []vm.TranslationEntry) int
}

// FIFOVictimFinder replaces the slot that entered the TLB first, regardless
// of how it was used since.
type FIFOVictimFinder struct{}

// NewFIFOVictimFinder returns a newly constructed FIFO victim finder.
func NewFIFOVictimFinder() *FIFOVictimFinder {
	return &FIFOVictimFinder{}
}

// FindVictim returns the first invalid slot, or the slot with the smallest
// insertion stamp.
func (e *FIFOVictimFinder) FindVictim(slots []vm.TranslationEntry) int {
	return findVictim(slots, func(s vm.TranslationEntry) uint64 {
		return s.InsertionStamp
	})
}

// LRUVictimFinder replaces the least recently used slot.
type LRUVictimFinder struct{}

// NewLRUVictimFinder returns a newly constructed LRU victim finder.
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns the first invalid slot, or the slot with the smallest
// access stamp.
func (e *LRUVictimFinder) FindVictim(slots []vm.TranslationEntry) int {
	return findVictim(slots, func(s vm.TranslationEntry) uint64 {
		return s.LastAccessStamp
	})
}

// findVictim prefers invalid slots. Among valid slots it picks the lowest
// score, the lowest slot index winning ties.
func findVictim(
	slots []vm.TranslationEntry,
	score func(vm.TranslationEntry) uint64,
) int {
	for i, s := range slots {
		if !s.Valid {
			return i
		}
	}

	victim := 0
	for i := 1; i < len(slots); i++ {
		if score(slots[i]) < score(slots[victim]) {
			victim = i
		}
	}

	return victim
}
