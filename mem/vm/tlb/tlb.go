// Package tlb provides the translation lookaside buffer of the machine.
package tlb

import (
	"log"

	"github.com/sarchlab/vmkernel/mem/vm"
)

type key struct {
	pid vm.PID
	vpn uint64
}

// A TLB is a fixed-size, fully associative cache of translation entries
// shared by all processes. Every entry is tagged with its owning process, so
// the TLB does not need to be flushed on context switches.
//
// The slots keep their order, and invalid slots remain in place as
// placeholders. An index keyed by (process, virtual page) points at the only
// valid slot of that pair.
type TLB struct {
	slots []vm.TranslationEntry
	index map[key]int
}

// New creates a TLB with capacity invalid slots.
func New(capacity int) *TLB {
	if capacity <= 0 {
		log.Panicf("invalid TLB capacity %d", capacity)
	}

	t := &TLB{
		slots: make([]vm.TranslationEntry, capacity),
		index: make(map[key]int),
	}

	for i := range t.slots {
		t.slots[i].PhysicalPage = vm.NoFrame
	}

	return t
}

// Capacity returns the number of slots.
func (t *TLB) Capacity() int {
	return len(t.slots)
}

// Lookup returns the valid slot that translates vpn for pid. The returned
// entry can be updated in place.
func (t *TLB) Lookup(pid vm.PID, vpn uint64) (
	slot int,
	entry *vm.TranslationEntry,
	found bool,
) {
	slot, found = t.index[key{pid, vpn}]
	if !found {
		return -1, nil, false
	}

	return slot, &t.slots[slot], true
}

// Install overwrites a slot with entry and returns what the slot held
// before. If another slot already held a valid translation for the same
// process and page, that slot is invalidated.
func (t *TLB) Install(slot int, entry vm.TranslationEntry) (
	old vm.TranslationEntry,
) {
	t.mustBeSlot(slot)

	old = t.slots[slot]
	if old.Valid {
		delete(t.index, key{old.Owner, old.VirtualPage})
	}

	k := key{entry.Owner, entry.VirtualPage}
	if dup, found := t.index[k]; found {
		t.slots[dup].Valid = false
		delete(t.index, k)
	}

	t.slots[slot] = entry
	if entry.Valid {
		t.index[k] = slot
	}

	return old
}

// FindVictim returns the slot that the finder picks for replacement.
func (t *TLB) FindVictim(finder VictimFinder) int {
	slot := finder.FindVictim(t.slots)
	t.mustBeSlot(slot)

	return slot
}

// Invalidate marks the slot holding vpn of pid as invalid. It returns the
// entry as it was before invalidation.
func (t *TLB) Invalidate(pid vm.PID, vpn uint64) (vm.TranslationEntry, bool) {
	k := key{pid, vpn}

	slot, found := t.index[k]
	if !found {
		return vm.TranslationEntry{}, false
	}

	old := t.slots[slot]
	clearSlot(&t.slots[slot])
	delete(t.index, k)

	return old, true
}

// InvalidateProcess marks every slot tagged with pid as invalid, whether it
// was valid or not. It returns the entries that were valid.
func (t *TLB) InvalidateProcess(pid vm.PID) []vm.TranslationEntry {
	var dropped []vm.TranslationEntry

	for i := range t.slots {
		s := &t.slots[i]
		if s.Owner != pid {
			continue
		}

		if s.Valid {
			dropped = append(dropped, *s)
			delete(t.index, key{s.Owner, s.VirtualPage})
		}

		clearSlot(s)
	}

	return dropped
}

// clearSlot turns a slot into an invalid placeholder. The tag is kept, but
// the slot no longer names a frame.
func clearSlot(s *vm.TranslationEntry) {
	*s = vm.TranslationEntry{
		VirtualPage:  s.VirtualPage,
		Owner:        s.Owner,
		PhysicalPage: vm.NoFrame,
	}
}

// Entries returns a copy of all slots in slot order.
func (t *TLB) Entries() []vm.TranslationEntry {
	entries := make([]vm.TranslationEntry, len(t.slots))
	copy(entries, t.slots)

	return entries
}

// ValidEntries returns a copy of the valid slots in slot order.
func (t *TLB) ValidEntries() []vm.TranslationEntry {
	var entries []vm.TranslationEntry

	for _, s := range t.slots {
		if s.Valid {
			entries = append(entries, s)
		}
	}

	return entries
}

func (t *TLB) mustBeSlot(slot int) {
	if slot < 0 || slot >= len(t.slots) {
		log.Panicf("TLB slot %d out of range", slot)
	}
}
