package mmu

import (
	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/sim"
)

// Hook positions of the memory manager.
var (
	// HookPosTLBHit triggers when a translation is served by the TLB.
	HookPosTLBHit = &sim.HookPos{Name: "TLBHit"}

	// HookPosFault triggers when a translation raises a fault.
	HookPosFault = &sim.HookPos{Name: "Fault"}

	// HookPosTLBRefill triggers when a translation is installed in the TLB.
	HookPosTLBRefill = &sim.HookPos{Name: "TLBRefill"}

	// HookPosTLBEvict triggers when a valid TLB slot is overwritten.
	HookPosTLBEvict = &sim.HookPos{Name: "TLBEvict"}

	// HookPosPageIn triggers when a page is read into a frame.
	HookPosPageIn = &sim.HookPos{Name: "PageIn"}

	// HookPosWriteBack triggers when a dirty page is written to the backing
	// store.
	HookPosWriteBack = &sim.HookPos{Name: "WriteBack"}

	// HookPosFrameEvict triggers when a resident page loses its frame.
	HookPosFrameEvict = &sim.HookPos{Name: "FrameEvict"}

	// HookPosReclaim triggers when the memory of a process is reclaimed.
	HookPosReclaim = &sim.HookPos{Name: "Reclaim"}
)

// A MemEvent is the item passed to hooks.
type MemEvent struct {
	PID   vm.PID
	VPN   uint64
	Frame vm.Frame
	Slot  int
	Fault vm.FaultKind
}

func (m *MemoryManager) invoke(pos *sim.HookPos, evt MemEvent) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    pos,
		Now:    m.lastStamp,
		Item:   evt,
	})
}
