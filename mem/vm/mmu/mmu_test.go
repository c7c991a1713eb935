package mmu

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/mem/vm/frame"
	"github.com/sarchlab/vmkernel/mem/vm/swap"
	"github.com/sarchlab/vmkernel/sim"
)

const pageSize = 128

// touch reads one byte of a page, resolving a fault once if needed.
func touch(m *MemoryManager, vpn uint64) {
	read(m, vpn*pageSize, 1)
}

func read(m *MemoryManager, vAddr uint64, size int) uint32 {
	v, err := m.ReadMem(vAddr, size)
	if vm.IsFault(err, vm.PageFault) {
		Expect(m.ResolveFault(vAddr)).To(Succeed())
		v, err = m.ReadMem(vAddr, size)
	}

	Expect(err).NotTo(HaveOccurred())

	return v
}

func write(m *MemoryManager, vAddr uint64, size int, value uint32) {
	err := m.WriteMem(vAddr, size, value)
	if vm.IsFault(err, vm.PageFault) {
		Expect(m.ResolveFault(vAddr)).To(Succeed())
		err = m.WriteMem(vAddr, size, value)
	}

	Expect(err).NotTo(HaveOccurred())
}

func cachedPages(m *MemoryManager) []uint64 {
	vpns := []uint64{}

	for _, e := range m.TLBEntries() {
		if e.Valid {
			vpns = append(vpns, e.VirtualPage)
		}
	}

	return vpns
}

func frameOf(m *MemoryManager, pid vm.PID, vpn uint64) vm.Frame {
	pt, found := m.PageTable(pid)
	Expect(found).To(BeTrue())

	e, ok := pt.Entry(vpn)
	Expect(ok).To(BeTrue())

	if !e.Valid {
		return vm.NoFrame
	}

	return e.PhysicalPage
}

var _ = Describe("MemoryManager", func() {
	var (
		frames  *frame.Allocator
		store   *swap.MemStore
		builder Builder
	)

	BeforeEach(func() {
		frames = frame.NewAllocator(4)
		store = swap.NewMemStore(pageSize)
		builder = MakeBuilder().
			WithPageSize(pageSize).
			WithNumFrames(4).
			WithTLBCapacity(2).
			WithFrameAllocator(frames).
			WithBackingStore(store)
	})

	Context("building", func() {
		It("should reject pages that do not hold whole words", func() {
			for _, size := range []uint64{1, 2, 3, 6, 130} {
				b := builder.WithPageSize(size)
				Expect(func() { b.Build("MMU") }).To(Panic())
			}
		})

		It("should accept pages of whole words", func() {
			Expect(func() { builder.WithPageSize(4).Build("MMU") }).
				NotTo(Panic())
		})
	})

	Context("without a process", func() {
		It("should refuse to translate", func() {
			m := builder.Build("MMU")

			_, err := m.Translate(0, 1, false)

			Expect(err).To(MatchError(ErrNoProcess))
			Expect(m.ResolveFault(0)).To(MatchError(ErrNoProcess))
		})
	})

	Context("translation", func() {
		var m *MemoryManager

		BeforeEach(func() {
			m = builder.WithPolicy(PolicyLRU).Build("MMU")
			_, err := m.AttachProcess(1, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.SwitchTo(1)).To(Succeed())
		})

		It("should reject misaligned accesses before the lookup", func() {
			_, err := m.Translate(3, 4, false)
			Expect(vm.IsFault(err, vm.AddressError)).To(BeTrue())

			_, err = m.Translate(1, 2, false)
			Expect(vm.IsFault(err, vm.AddressError)).To(BeTrue())

			_, err = m.Translate(0, 3, false)
			Expect(vm.IsFault(err, vm.AddressError)).To(BeTrue())

			Expect(m.Stats().TLBMisses).To(BeZero())
			Expect(m.Stats().Faults).To(Equal(uint64(3)))
		})

		It("should report a miss as a page fault", func() {
			_, err := m.Translate(0x84, 4, false)

			Expect(vm.IsFault(err, vm.PageFault)).To(BeTrue())
			Expect(m.Stats().TLBMisses).To(Equal(uint64(1)))
			Expect(cachedPages(m)).To(BeEmpty())
		})

		It("should translate a hit", func() {
			Expect(m.ResolveFault(3*pageSize + 4)).To(Succeed())
			f := frameOf(m, 1, 3)

			pAddr, err := m.Translate(3*pageSize+4, 4, false)

			Expect(err).NotTo(HaveOccurred())
			Expect(pAddr).To(Equal(uint64(f)*pageSize + 4))
			Expect(m.Stats().TLBHits).To(Equal(uint64(1)))
		})

		It("should set the use and dirty bits in the TLB", func() {
			write(m, 8, 4, 1)

			_, e, found := m.tlb.Lookup(1, 0)
			Expect(found).To(BeTrue())
			Expect(e.Use).To(BeTrue())
			Expect(e.Dirty).To(BeTrue())
		})

		It("should report a frame out of range as a bus error", func() {
			m.tlb.Install(0, vm.TranslationEntry{
				VirtualPage:  0,
				PhysicalPage: 9,
				Valid:        true,
				Owner:        1,
			})

			_, err := m.Translate(0, 1, false)
			Expect(vm.IsFault(err, vm.BusError)).To(BeTrue())

			_, err = m.Translate(0, 4, true)
			Expect(vm.IsFault(err, vm.BusError)).To(BeTrue())

			_, e, found := m.tlb.Lookup(1, 0)
			Expect(found).To(BeTrue())
			Expect(e.Use).To(BeFalse())
			Expect(e.Dirty).To(BeFalse())
			Expect(e.LastAccessStamp).To(BeZero())
			Expect(m.Stats().TLBHits).To(BeZero())
		})

		It("should fail on a page beyond the address space", func() {
			err := m.ResolveFault(8 * pageSize)

			var fatal *vm.FatalFault
			Expect(errors.As(err, &fatal)).To(BeTrue())
			Expect(vm.IsFault(err, vm.AddressError)).To(BeTrue())
			Expect(m.Stats().FatalFaults).To(Equal(uint64(1)))
		})

		It("should zero fill new pages", func() {
			Expect(read(m, 5*pageSize+16, 4)).To(BeZero())
		})

		It("should round trip values of every size", func() {
			write(m, 0x10, 4, 0xdeadbeef)
			write(m, 0x14, 2, 0xcafe)
			write(m, 0x16, 1, 0x42)

			Expect(read(m, 0x10, 4)).To(Equal(uint32(0xdeadbeef)))
			Expect(read(m, 0x10, 1)).To(Equal(uint32(0xef)))
			Expect(read(m, 0x14, 2)).To(Equal(uint32(0xcafe)))
			Expect(read(m, 0x16, 1)).To(Equal(uint32(0x42)))
		})

		It("should treat a resolved fault as spurious", func() {
			Expect(m.ResolveFault(0)).To(Succeed())
			Expect(m.ResolveFault(0)).To(Succeed())

			Expect(m.Stats().PageIns).To(Equal(uint64(1)))
			Expect(cachedPages(m)).To(Equal([]uint64{0}))
		})

		It("should invoke hooks", func() {
			var positions []*sim.HookPos
			m.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
				positions = append(positions, ctx.Pos)
				Expect(ctx.Item).To(BeAssignableToTypeOf(MemEvent{}))
			}))

			touch(m, 0)

			Expect(positions).To(Equal([]*sim.HookPos{
				HookPosFault, HookPosPageIn, HookPosTLBRefill, HookPosTLBHit,
			}))
		})
	})

	Context("read-only pages", func() {
		for _, p := range []Policy{PolicyFIFO, PolicyLRU} {
			policy := p

			It("should reject writes under "+policy.String(), func() {
				m := builder.WithPolicy(policy).Build("MMU")
				pt, _ := m.AttachProcess(1, 4)
				pt.SetReadOnly(0, true)
				Expect(m.SwitchTo(1)).To(Succeed())
				Expect(m.Preload(1, 0)).To(Succeed())

				touch(m, 0)
				err := m.WriteMem(4, 4, 7)

				Expect(vm.IsFault(err, vm.ReadOnlyViolation)).To(BeTrue())
				_, e, _ := m.tlb.Lookup(1, 0)
				Expect(e.Dirty).To(BeFalse())
				Expect(read(m, 4, 4)).To(BeZero())
			})
		}
	})

	Context("FIFO", func() {
		var m *MemoryManager

		BeforeEach(func() {
			m = builder.WithPolicy(PolicyFIFO).Build("MMU")
			_, err := m.AttachProcess(1, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.SwitchTo(1)).To(Succeed())
		})

		It("should not page in on a fault", func() {
			err := m.ResolveFault(0)

			var fatal *vm.FatalFault
			Expect(errors.As(err, &fatal)).To(BeTrue())
			Expect(fatal.PID).To(Equal(vm.PID(1)))
			Expect(vm.IsFault(err, vm.PageFault)).To(BeTrue())
			Expect(m.Stats().PageIns).To(BeZero())
		})

		It("should refill the TLB for preloaded pages", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				Expect(m.Preload(1, vpn)).To(Succeed())
			}

			for vpn := uint64(0); vpn < 4; vpn++ {
				touch(m, vpn)
			}

			Expect(cachedPages(m)).To(ConsistOf(uint64(2), uint64(3)))
			for vpn := uint64(0); vpn < 4; vpn++ {
				Expect(frameOf(m, 1, vpn)).To(Equal(vm.Frame(vpn)))
			}
		})

		It("should evict the oldest insertion regardless of use", func() {
			for vpn := uint64(0); vpn < 3; vpn++ {
				Expect(m.Preload(1, vpn)).To(Succeed())
			}

			touch(m, 0)
			touch(m, 1)
			touch(m, 0)
			touch(m, 2)

			Expect(cachedPages(m)).To(ConsistOf(uint64(1), uint64(2)))
			Expect(m.Stats().TLBEvictions).To(Equal(uint64(1)))
		})
	})

	Context("LRU", func() {
		var m *MemoryManager

		BeforeEach(func() {
			m = builder.WithPolicy(PolicyLRU).Build("MMU")
			_, err := m.AttachProcess(1, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.SwitchTo(1)).To(Succeed())
		})

		It("should evict the least recently used TLB slot", func() {
			touch(m, 0)
			touch(m, 1)
			touch(m, 0)
			touch(m, 2)

			Expect(cachedPages(m)).To(ConsistOf(uint64(0), uint64(2)))
		})

		It("should evict the least recently used frame", func() {
			for vpn := uint64(0); vpn < 4; vpn++ {
				touch(m, vpn)
				Expect(frameOf(m, 1, vpn)).To(Equal(vm.Frame(vpn)))
			}
			Expect(cachedPages(m)).To(ConsistOf(uint64(2), uint64(3)))

			touch(m, 2)
			touch(m, 4)

			Expect(frameOf(m, 1, 0)).To(Equal(vm.NoFrame))
			Expect(frameOf(m, 1, 4)).To(Equal(vm.Frame(0)))
			Expect(frameOf(m, 1, 3)).To(Equal(vm.Frame(3)))
			Expect(cachedPages(m)).To(Equal([]uint64{2, 4}))
			Expect(m.Stats().FrameEvictions).To(Equal(uint64(1)))
			Expect(m.Stats().WriteBacks).To(BeZero())
		})

		It("should write back dirty pages before reusing the frame", func() {
			m = builder.
				WithPolicy(PolicyLRU).
				WithNumFrames(2).
				WithFrameAllocator(frame.NewAllocator(2)).
				Build("Small")
			_, err := m.AttachProcess(1, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.SwitchTo(1)).To(Succeed())

			write(m, 0x10, 4, 0xdeadbeef)
			touch(m, 1)
			touch(m, 2)

			Expect(m.Stats().WriteBacks).To(Equal(uint64(1)))
			Expect(store.NumPages(1)).To(Equal(1))
			Expect(frameOf(m, 1, 0)).To(Equal(vm.NoFrame))

			Expect(read(m, 0x10, 4)).To(Equal(uint32(0xdeadbeef)))
			Expect(m.Stats().WriteBacks).To(Equal(uint64(1)))
		})

		It("should not let a stale translation reach a reused frame", func() {
			m = builder.
				WithPolicy(PolicyLRU).
				WithNumFrames(1).
				WithFrameAllocator(frame.NewAllocator(1)).
				Build("Tiny")
			_, err := m.AttachProcess(1, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = m.AttachProcess(2, 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(m.SwitchTo(1)).To(Succeed())
			write(m, 0, 1, 0x55)

			Expect(m.SwitchTo(2)).To(Succeed())
			Expect(read(m, 0, 1)).To(BeZero())

			Expect(m.SwitchTo(1)).To(Succeed())
			_, err = m.Translate(0, 1, false)
			Expect(vm.IsFault(err, vm.PageFault)).To(BeTrue())
			Expect(read(m, 0, 1)).To(Equal(uint32(0x55)))
		})
	})

	Context("reclaim", func() {
		var m *MemoryManager

		BeforeEach(func() {
			m = builder.WithPolicy(PolicyLRU).Build("MMU")
			_, err := m.AttachProcess(1, 8)
			Expect(err).NotTo(HaveOccurred())
			_, err = m.AttachProcess(2, 8)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should release everything the process holds", func() {
			Expect(m.SwitchTo(1)).To(Succeed())
			for vpn := uint64(0); vpn < 5; vpn++ {
				write(m, vpn*pageSize, 4, uint32(vpn))
			}
			Expect(store.NumPages(1)).To(Equal(1))

			Expect(m.SwitchTo(2)).To(Succeed())
			touch(m, 0)
			Expect(m.SwitchTo(1)).To(Succeed())

			Expect(m.Reclaim(1)).To(Succeed())

			Expect(frames.NumClear()).To(Equal(3))
			_, found := m.PageTable(1)
			Expect(found).To(BeFalse())
			_, running := m.CurrentPID()
			Expect(running).To(BeFalse())
			Expect(store.NumPages(1)).To(BeZero())
			for _, e := range m.TLBEntries() {
				if e.Owner == 1 {
					Expect(e.Valid).To(BeFalse())
					Expect(e.PhysicalPage).To(Equal(vm.NoFrame))
				}
			}
			Expect(cachedPages(m)).To(HaveLen(1))
			Expect(m.Stats().Reclaims).To(Equal(uint64(1)))
		})

		It("should leave no frame in the TLB slots of the process", func() {
			Expect(m.SwitchTo(1)).To(Succeed())
			touch(m, 0)
			touch(m, 1)

			Expect(m.Reclaim(1)).To(Succeed())

			tagged := 0
			for _, e := range m.TLBEntries() {
				if e.Owner != 1 {
					continue
				}

				tagged++
				Expect(e.Valid).To(BeFalse())
				Expect(e.PhysicalPage).To(Equal(vm.NoFrame))
				Expect(e.Use).To(BeFalse())
				Expect(e.LastAccessStamp).To(BeZero())
			}
			Expect(tagged).To(Equal(2))
		})

		It("should be idempotent", func() {
			Expect(m.SwitchTo(1)).To(Succeed())
			touch(m, 0)

			Expect(m.Reclaim(1)).To(Succeed())
			Expect(m.Reclaim(1)).To(Succeed())

			Expect(frames.NumClear()).To(Equal(4))
			Expect(m.Stats().Reclaims).To(Equal(uint64(1)))
		})

		It("should let other processes use the freed frames", func() {
			Expect(m.SwitchTo(1)).To(Succeed())
			for vpn := uint64(0); vpn < 4; vpn++ {
				touch(m, vpn)
			}
			Expect(m.Reclaim(1)).To(Succeed())

			Expect(m.SwitchTo(2)).To(Succeed())
			for vpn := uint64(0); vpn < 4; vpn++ {
				touch(m, vpn)
			}

			Expect(m.Stats().FrameEvictions).To(BeZero())
			Expect(frames.NumClear()).To(BeZero())
		})
	})

	Context("with mocked collaborators", func() {
		var (
			mockCtrl   *gomock.Controller
			mockFrames *MockFrameAllocator
			mockStore  *MockBackingStore
			mockClock  *MockClock
			m          *MemoryManager
			tick       uint64
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			mockFrames = NewMockFrameAllocator(mockCtrl)
			mockStore = NewMockBackingStore(mockCtrl)
			mockClock = NewMockClock(mockCtrl)

			tick = 0
			mockClock.EXPECT().Now().DoAndReturn(func() uint64 {
				tick++
				return tick
			}).AnyTimes()

			m = MakeBuilder().
				WithPageSize(pageSize).
				WithNumFrames(4).
				WithTLBCapacity(2).
				WithPolicy(PolicyLRU).
				WithFrameAllocator(mockFrames).
				WithBackingStore(mockStore).
				WithClock(mockClock).
				Build("MMU")
			_, err := m.AttachProcess(1, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.SwitchTo(1)).To(Succeed())
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should load the page from the backing store", func() {
			data := make([]byte, pageSize)
			data[4] = 0x99

			mockFrames.EXPECT().Acquire().Return(vm.Frame(2), true)
			mockStore.EXPECT().ReadPage(vm.PID(1), uint64(1)).Return(data, nil)

			Expect(read(m, pageSize+4, 1)).To(Equal(uint32(0x99)))
			Expect(frameOf(m, 1, 1)).To(Equal(vm.Frame(2)))
		})

		It("should release the frame if the page cannot be read", func() {
			mockFrames.EXPECT().Acquire().Return(vm.Frame(1), true)
			mockStore.EXPECT().
				ReadPage(vm.PID(1), uint64(0)).
				Return(nil, errors.New("disk failure"))
			mockFrames.EXPECT().Release(vm.Frame(1))

			err := m.ResolveFault(0)

			var fatal *vm.FatalFault
			Expect(errors.As(err, &fatal)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("disk failure"))
			Expect(frameOf(m, 1, 0)).To(Equal(vm.NoFrame))
			Expect(cachedPages(m)).To(BeEmpty())
		})

		It("should keep the victim if the write back fails", func() {
			mockFrames.EXPECT().Acquire().Return(vm.Frame(0), true)
			mockStore.EXPECT().
				ReadPage(vm.PID(1), uint64(0)).
				Return(nil, vm.ErrPageNotFound)
			write(m, 0, 4, 1)

			mockFrames.EXPECT().Acquire().Return(vm.NoFrame, false)
			mockStore.EXPECT().
				WritePage(vm.PID(1), uint64(0), gomock.Any()).
				Return(errors.New("disk full"))

			err := m.ResolveFault(pageSize)

			Expect(err).To(HaveOccurred())
			Expect(frameOf(m, 1, 0)).To(Equal(vm.Frame(0)))
			Expect(frameOf(m, 1, 1)).To(Equal(vm.NoFrame))
			Expect(m.Stats().WriteBacks).To(BeZero())
		})

		It("should report a failure to release the swap region", func() {
			mockStore.EXPECT().
				ReleaseProcess(vm.PID(1)).
				Return(errors.New("locked"))

			err := m.Reclaim(1)

			Expect(err).To(MatchError(ContainSubstring("locked")))
		})
	})
})
