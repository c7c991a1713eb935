package mmu

import (
	"log"

	"github.com/sarchlab/vmkernel/mem"
	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/mem/vm/frame"
	"github.com/sarchlab/vmkernel/mem/vm/swap"
	"github.com/sarchlab/vmkernel/mem/vm/tlb"
	"github.com/sarchlab/vmkernel/sim"
)

// Pages hold whole words, so an aligned access never crosses a page.
const wordSize = 4

// A Builder can build memory managers.
type Builder struct {
	pageSize    uint64
	numFrames   int
	tlbCapacity int
	policy      Policy
	frames      vm.FrameAllocator
	swap        vm.BackingStore
	clock       vm.Clock
}

// MakeBuilder creates a new builder with the configuration of the classic
// teaching machine: 128-byte pages, 32 frames, and a 4-entry TLB.
func MakeBuilder() Builder {
	return Builder{
		pageSize:    128,
		numFrames:   32,
		tlbCapacity: 4,
		policy:      PolicyLRU,
	}
}

// WithPageSize sets the number of bytes in a page and in a frame.
func (b Builder) WithPageSize(n uint64) Builder {
	b.pageSize = n
	return b
}

// WithNumFrames sets the number of physical frames.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithTLBCapacity sets the number of TLB slots.
func (b Builder) WithTLBCapacity(n int) Builder {
	b.tlbCapacity = n
	return b
}

// WithPolicy sets the replacement policy.
func (b Builder) WithPolicy(p Policy) Builder {
	b.policy = p
	return b
}

// WithFrameAllocator sets the allocator that hands out frames. By default, a
// bitmap allocator over all the frames is used.
func (b Builder) WithFrameAllocator(a vm.FrameAllocator) Builder {
	b.frames = a
	return b
}

// WithBackingStore sets where evicted pages are kept. By default, pages are
// kept in host memory.
func (b Builder) WithBackingStore(s vm.BackingStore) Builder {
	b.swap = s
	return b
}

// WithClock sets the clock that stamps insertions and accesses.
func (b Builder) WithClock(c vm.Clock) Builder {
	b.clock = c
	return b
}

// Build creates a memory manager.
func (b Builder) Build(name string) *MemoryManager {
	b.validate()

	m := &MemoryManager{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		pageSize:     b.pageSize,
		numFrames:    b.numFrames,
		policy:       b.policy,
		strategy:     b.policy.strategy(),
		memory: mem.NewStorage(
			b.pageSize*uint64(b.numFrames), b.pageSize),
		tlb:        tlb.New(b.tlbCapacity),
		pageTables: make(map[vm.PID]*vm.PageTable),
	}

	m.frames = b.frames
	if m.frames == nil {
		m.frames = frame.NewAllocator(b.numFrames)
	}

	m.swap = b.swap
	if m.swap == nil {
		m.swap = swap.NewMemStore(int(b.pageSize))
	}

	m.clock = b.clock
	if m.clock == nil {
		m.clock = vm.NewCounterClock()
	}

	return m
}

func (b Builder) validate() {
	if b.pageSize == 0 || b.pageSize%wordSize != 0 {
		log.Panicf("page size %d is not a positive multiple of %d",
			b.pageSize, wordSize)
	}

	if b.numFrames <= 0 {
		log.Panicf("invalid number of frames %d", b.numFrames)
	}

	if b.tlbCapacity <= 0 {
		log.Panicf("invalid TLB capacity %d", b.tlbCapacity)
	}

	if b.policy != PolicyFIFO && b.policy != PolicyLRU {
		log.Panicf("unknown policy %d", b.policy)
	}
}
