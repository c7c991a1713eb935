// Package mmu provides the memory manager of the machine. The memory manager
// translates virtual addresses through the TLB, resolves page faults with a
// selectable replacement policy, and reclaims the memory of terminated
// processes.
//
// Every operation runs inside a single critical section, which plays the role
// of disabling preemption on the simulated uniprocessor.
package mmu

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/vmkernel/mem"
	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/mem/vm/tlb"
	"github.com/sarchlab/vmkernel/sim"
)

// ErrNoProcess is returned when no process is scheduled on the machine.
var ErrNoProcess = errors.New("no current process")

// MemoryManager owns the machine-wide state of virtual memory: physical
// memory, the TLB, the frame allocator, and the page tables of all processes.
type MemoryManager struct {
	*sim.HookableBase
	sync.Mutex

	name      string
	pageSize  uint64
	numFrames int
	policy    Policy
	strategy  strategy

	memory *mem.Storage
	tlb    *tlb.TLB
	frames vm.FrameAllocator
	swap   vm.BackingStore
	clock  vm.Clock

	pageTables map[vm.PID]*vm.PageTable
	current    *vm.PageTable
	lastStamp  uint64

	stats Stats
}

// Name returns the name of the memory manager.
func (m *MemoryManager) Name() string {
	return m.name
}

// PageSize returns the number of bytes in a page.
func (m *MemoryManager) PageSize() uint64 {
	return m.pageSize
}

// NumFrames returns the number of physical frames.
func (m *MemoryManager) NumFrames() int {
	return m.numFrames
}

// Policy returns the replacement policy in use.
func (m *MemoryManager) Policy() Policy {
	return m.policy
}

// AttachProcess creates the page table of a new address space with numPages
// unmapped pages.
func (m *MemoryManager) AttachProcess(
	pid vm.PID,
	numPages int,
) (*vm.PageTable, error) {
	m.Lock()
	defer m.Unlock()

	if _, found := m.pageTables[pid]; found {
		return nil, fmt.Errorf("process %d already has an address space", pid)
	}

	if numPages <= 0 {
		return nil, fmt.Errorf("invalid address space of %d pages", numPages)
	}

	pt := vm.NewPageTable(pid, numPages)
	m.pageTables[pid] = pt

	return pt, nil
}

// SwitchTo makes pid the process whose addresses are translated.
func (m *MemoryManager) SwitchTo(pid vm.PID) error {
	m.Lock()
	defer m.Unlock()

	pt, found := m.pageTables[pid]
	if !found {
		return fmt.Errorf("process %d has no address space", pid)
	}

	m.current = pt

	return nil
}

// CurrentPID returns the running process. The bool return value is false if
// no process is running.
func (m *MemoryManager) CurrentPID() (vm.PID, bool) {
	m.Lock()
	defer m.Unlock()

	if m.current == nil {
		return 0, false
	}

	return m.current.PID(), true
}

// PageTable returns the page table of a process.
func (m *MemoryManager) PageTable(pid vm.PID) (*vm.PageTable, bool) {
	m.Lock()
	defer m.Unlock()

	pt, found := m.pageTables[pid]

	return pt, found
}

// TLBEntries returns a copy of the TLB slots.
func (m *MemoryManager) TLBEntries() []vm.TranslationEntry {
	m.Lock()
	defer m.Unlock()

	return m.tlb.Entries()
}

// Stats returns the counters of the memory manager.
func (m *MemoryManager) Stats() Stats {
	m.Lock()
	defer m.Unlock()

	return m.stats
}

func (m *MemoryManager) now() uint64 {
	m.lastStamp = m.clock.Now()
	return m.lastStamp
}

// sortedPageTables returns the page tables in process order, so victim
// selection does not depend on map iteration order.
func (m *MemoryManager) sortedPageTables() []*vm.PageTable {
	pids := make([]vm.PID, 0, len(m.pageTables))
	for pid := range m.pageTables {
		pids = append(pids, pid)
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	tables := make([]*vm.PageTable, len(pids))
	for i, pid := range pids {
		tables[i] = m.pageTables[pid]
	}

	return tables
}

// foldBack copies the use and dirty bits and the access stamp of a TLB entry
// into the page table entry it caches. The TLB is where accesses are
// recorded, so the page table is only up to date after folding.
func (m *MemoryManager) foldBack(cached vm.TranslationEntry) {
	pt, found := m.pageTables[cached.Owner]
	if !found {
		return
	}

	e, ok := pt.Entry(cached.VirtualPage)
	if !ok || !e.Valid || e.PhysicalPage != cached.PhysicalPage {
		return
	}

	e.Use = e.Use || cached.Use
	e.Dirty = e.Dirty || cached.Dirty
	e.LastAccessStamp = max(e.LastAccessStamp, cached.LastAccessStamp)
}
