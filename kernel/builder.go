package kernel

import (
	"log"

	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/sim"
)

// Builder can build kernels.
type Builder struct {
	mmu  MemoryManager
	swap vm.BackingStore
}

// MakeBuilder creates a new Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithMemoryManager sets the memory manager the kernel drives.
func (b Builder) WithMemoryManager(m MemoryManager) Builder {
	b.mmu = m
	return b
}

// WithBackingStore sets the store that program images are loaded into. It
// must be the store the memory manager pages in from.
func (b Builder) WithBackingStore(s vm.BackingStore) Builder {
	b.swap = s
	return b
}

// Build creates a kernel.
func (b Builder) Build(name string) *Kernel {
	if b.mmu == nil {
		log.Panic("a kernel requires a memory manager")
	}

	if b.swap == nil {
		log.Panic("a kernel requires a backing store")
	}

	return &Kernel{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		mmu:          b.mmu,
		swap:         b.swap,
		procs:        make(map[vm.PID]*Process),
	}
}
