package mmu

import (
	"github.com/sarchlab/vmkernel/mem/vm"
)

// Translate converts a virtual address of the current process into a
// physical address. It looks up the TLB only; a miss is reported as a
// PageFault and leaves all state untouched.
func (m *MemoryManager) Translate(
	vAddr uint64,
	size int,
	isWrite bool,
) (uint64, error) {
	m.Lock()
	defer m.Unlock()

	return m.translate(vAddr, size, isWrite)
}

func (m *MemoryManager) translate(
	vAddr uint64,
	size int,
	isWrite bool,
) (uint64, error) {
	if m.current == nil {
		return 0, ErrNoProcess
	}

	pid := m.current.PID()
	m.stats.Translations++

	if !aligned(vAddr, size) {
		return 0, m.fault(vm.AddressError, pid, vAddr)
	}

	vpn := vAddr / m.pageSize
	offset := vAddr % m.pageSize

	slot, entry, found := m.tlb.Lookup(pid, vpn)
	if !found {
		m.stats.TLBMisses++
		return 0, m.fault(vm.PageFault, pid, vAddr)
	}

	if isWrite && entry.ReadOnly {
		return 0, m.fault(vm.ReadOnlyViolation, pid, vAddr)
	}

	if !entry.PhysicalPage.InRange(m.numFrames) {
		return 0, m.fault(vm.BusError, pid, vAddr)
	}

	pAddr := uint64(entry.PhysicalPage)*m.pageSize + offset
	if pAddr+uint64(size) > m.memory.Capacity() {
		return 0, m.fault(vm.BusError, pid, vAddr)
	}

	entry.Use = true
	if isWrite {
		entry.Dirty = true
	}
	entry.LastAccessStamp = m.now()

	m.stats.TLBHits++
	m.invoke(HookPosTLBHit, MemEvent{
		PID:   pid,
		VPN:   vpn,
		Frame: entry.PhysicalPage,
		Slot:  slot,
	})

	return pAddr, nil
}

func aligned(vAddr uint64, size int) bool {
	switch size {
	case 1:
		return true
	case 2:
		return vAddr%2 == 0
	case 4:
		return vAddr%4 == 0
	default:
		return false
	}
}

func (m *MemoryManager) fault(
	kind vm.FaultKind,
	pid vm.PID,
	vAddr uint64,
) *vm.Fault {
	m.stats.Faults++
	m.invoke(HookPosFault, MemEvent{
		PID:   pid,
		VPN:   vAddr / m.pageSize,
		Frame: vm.NoFrame,
		Slot:  -1,
		Fault: kind,
	})

	return vm.NewFault(kind, pid, vAddr)
}
