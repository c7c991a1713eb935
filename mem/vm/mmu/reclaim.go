package mmu

import (
	"fmt"

	"github.com/sarchlab/vmkernel/mem/vm"
)

// Reclaim releases all the memory of a terminated process: its frames, its
// TLB slots, its page table, and its region of the backing store. Calling
// Reclaim again for the same process does nothing.
func (m *MemoryManager) Reclaim(pid vm.PID) error {
	m.Lock()
	defer m.Unlock()

	pt, found := m.pageTables[pid]
	if found {
		for _, e := range pt.Resident() {
			m.frames.Release(e.PhysicalPage)
			pt.ResetEntry(e.VirtualPage)
		}

		delete(m.pageTables, pid)
		m.stats.Reclaims++
	}

	m.tlb.InvalidateProcess(pid)

	if m.current != nil && m.current.PID() == pid {
		m.current = nil
	}

	err := m.swap.ReleaseProcess(pid)
	if err != nil {
		return fmt.Errorf("reclaim pid %d: %w", pid, err)
	}

	if found {
		m.invoke(HookPosReclaim, MemEvent{
			PID:   pid,
			Frame: vm.NoFrame,
			Slot:  -1,
		})
	}

	return nil
}
