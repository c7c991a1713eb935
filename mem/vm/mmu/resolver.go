package mmu

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/vmkernel/mem/vm"
)

// ResolveFault restores a valid translation for the page that contains vAddr
// in the current process, so that the faulting access can be retried.
//
// Under PolicyFIFO the page must already be resident and only the TLB is
// refilled. Under PolicyLRU a page that is not resident is paged in first,
// evicting the least recently used page of any process if no frame is free.
//
// A returned error is always a *vm.FatalFault; the access must not be
// retried.
func (m *MemoryManager) ResolveFault(vAddr uint64) error {
	m.Lock()
	defer m.Unlock()

	if m.current == nil {
		return ErrNoProcess
	}

	err := m.resolve(m.current, vAddr)
	if err != nil {
		m.stats.FatalFaults++
		return &vm.FatalFault{PID: m.current.PID(), VAddr: vAddr, Cause: err}
	}

	m.stats.Resolutions++

	return nil
}

func (m *MemoryManager) resolve(pt *vm.PageTable, vAddr uint64) error {
	pid := pt.PID()
	vpn := vAddr / m.pageSize

	entry, ok := pt.Entry(vpn)
	if !ok {
		return vm.NewFault(vm.AddressError, pid, vAddr)
	}

	resident := m.isResident(pid, entry)
	if _, _, cached := m.tlb.Lookup(pid, vpn); cached && resident {
		return nil
	}

	if !resident {
		if !m.strategy.demandPaging {
			return vm.NewFault(vm.PageFault, pid, vAddr)
		}

		err := m.pageIn(pt, entry)
		if err != nil {
			return err
		}
	}

	m.refill(entry)

	return nil
}

// Preload brings a page of a process into memory without touching the TLB.
// It is used to load pages eagerly, regardless of the policy.
func (m *MemoryManager) Preload(pid vm.PID, vpn uint64) error {
	m.Lock()
	defer m.Unlock()

	pt, found := m.pageTables[pid]
	if !found {
		return fmt.Errorf("process %d has no address space", pid)
	}

	entry, ok := pt.Entry(vpn)
	if !ok {
		return vm.NewFault(vm.AddressError, pid, vpn*m.pageSize)
	}

	if m.isResident(pid, entry) {
		return nil
	}

	return m.pageIn(pt, entry)
}

func (m *MemoryManager) isResident(pid vm.PID, e *vm.TranslationEntry) bool {
	return e.Valid && e.Owner == pid && e.PhysicalPage.Valid()
}

// refill copies a resident page table entry into the TLB slot chosen by the
// policy.
func (m *MemoryManager) refill(entry *vm.TranslationEntry) {
	slot := m.tlb.FindVictim(m.strategy.slotFinder)

	now := m.now()
	entry.LastAccessStamp = now

	cached := *entry
	cached.InsertionStamp = now
	cached.LastAccessStamp = now

	old := m.tlb.Install(slot, cached)
	if old.Valid {
		m.foldBack(old)
		m.stats.TLBEvictions++
		m.invoke(HookPosTLBEvict, MemEvent{
			PID:   old.Owner,
			VPN:   old.VirtualPage,
			Frame: old.PhysicalPage,
			Slot:  slot,
		})
	}

	m.invoke(HookPosTLBRefill, MemEvent{
		PID:   cached.Owner,
		VPN:   cached.VirtualPage,
		Frame: cached.PhysicalPage,
		Slot:  slot,
	})
}

// pageIn reads a page from the backing store into a frame and maps it.
func (m *MemoryManager) pageIn(
	pt *vm.PageTable,
	entry *vm.TranslationEntry,
) error {
	pid := pt.PID()
	vpn := entry.VirtualPage

	f, ok := m.frames.Acquire()
	if !ok {
		var err error

		f, err = m.evictFrame()
		if err != nil {
			return err
		}
	}

	if !f.InRange(m.numFrames) {
		log.Panicf("frame allocator returned frame %d out of range", f)
	}

	data, err := m.swap.ReadPage(pid, vpn)
	switch {
	case errors.Is(err, vm.ErrPageNotFound):
		data = make([]byte, m.pageSize)
	case err != nil:
		m.frames.Release(f)
		return fmt.Errorf("page in vpn %d of pid %d: %w", vpn, pid, err)
	case uint64(len(data)) != m.pageSize:
		m.frames.Release(f)
		return fmt.Errorf("page in vpn %d of pid %d: got %d bytes",
			vpn, pid, len(data))
	}

	err = m.memory.Write(uint64(f)*m.pageSize, data)
	if err != nil {
		log.Panic(err)
	}

	entry.PhysicalPage = f
	entry.Owner = pid
	entry.Valid = true
	entry.Use = false
	entry.Dirty = false
	entry.LastAccessStamp = m.now()

	m.stats.PageIns++
	m.invoke(HookPosPageIn, MemEvent{PID: pid, VPN: vpn, Frame: f, Slot: -1})

	return nil
}

// evictFrame takes the frame of the least recently used resident page of
// any process. The frame stays marked as used and is handed over to the
// caller.
func (m *MemoryManager) evictFrame() (vm.Frame, error) {
	for _, cached := range m.tlb.ValidEntries() {
		m.foldBack(cached)
	}

	victim := m.findFrameVictim()
	if victim == nil {
		log.Panic("no frame is free and no page is resident")
	}

	f := victim.PhysicalPage

	if victim.Dirty {
		err := m.writeBack(victim)
		if err != nil {
			return vm.NoFrame, err
		}
	}

	m.tlb.Invalidate(victim.Owner, victim.VirtualPage)

	m.stats.FrameEvictions++
	m.invoke(HookPosFrameEvict, MemEvent{
		PID:   victim.Owner,
		VPN:   victim.VirtualPage,
		Frame: f,
		Slot:  -1,
	})

	victim.Valid = false
	victim.PhysicalPage = vm.NoFrame
	victim.Use = false
	victim.Dirty = false
	victim.InsertionStamp = 0
	victim.LastAccessStamp = 0

	return f, nil
}

// findFrameVictim scores every resident page of every process by its last
// access and returns the least recently used one.
func (m *MemoryManager) findFrameVictim() *vm.TranslationEntry {
	var victim *vm.TranslationEntry

	for _, pt := range m.sortedPageTables() {
		for _, e := range pt.Resident() {
			if victim == nil || e.LastAccessStamp < victim.LastAccessStamp {
				victim = e
			}
		}
	}

	return victim
}

func (m *MemoryManager) writeBack(e *vm.TranslationEntry) error {
	data, err := m.memory.Read(uint64(e.PhysicalPage)*m.pageSize, m.pageSize)
	if err != nil {
		log.Panic(err)
	}

	err = m.swap.WritePage(e.Owner, e.VirtualPage, data)
	if err != nil {
		return fmt.Errorf("write back vpn %d of pid %d: %w",
			e.VirtualPage, e.Owner, err)
	}

	m.stats.WriteBacks++
	m.invoke(HookPosWriteBack, MemEvent{
		PID:   e.Owner,
		VPN:   e.VirtualPage,
		Frame: e.PhysicalPage,
		Slot:  -1,
	})

	return nil
}
