package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PageTable", func() {
	var pt *PageTable

	BeforeEach(func() {
		pt = NewPageTable(3, 4)
	})

	It("should create unmapped entries", func() {
		Expect(pt.PID()).To(Equal(PID(3)))
		Expect(pt.Size()).To(Equal(4))

		for i, e := range pt.Entries() {
			Expect(e.VirtualPage).To(Equal(uint64(i)))
			Expect(e.PhysicalPage).To(Equal(NoFrame))
			Expect(e.Valid).To(BeFalse())
			Expect(e.Owner).To(Equal(PID(3)))
		}
		Expect(pt.Resident()).To(BeEmpty())
	})

	It("should reject out of range pages", func() {
		_, ok := pt.Entry(4)
		Expect(ok).To(BeFalse())
	})

	It("should mutate entries in place", func() {
		e, ok := pt.Entry(2)
		Expect(ok).To(BeTrue())

		e.PhysicalPage = 7
		e.Valid = true

		Expect(pt.Resident()).To(HaveLen(1))
		Expect(pt.Resident()[0].VirtualPage).To(Equal(uint64(2)))
	})

	It("should reset an entry", func() {
		pt.SetReadOnly(1, true)
		e, _ := pt.Entry(1)
		e.PhysicalPage = 2
		e.Valid = true
		e.Dirty = true
		e.Use = true
		e.LastAccessStamp = 10
		e.InsertionStamp = 9

		pt.ResetEntry(1)

		Expect(*e).To(Equal(TranslationEntry{
			VirtualPage:  1,
			PhysicalPage: NoFrame,
			Owner:        3,
		}))
	})

	It("should return a copy of the entries", func() {
		entries := pt.Entries()
		entries[0].Valid = true

		e, _ := pt.Entry(0)
		Expect(e.Valid).To(BeFalse())
	})
})

var _ = Describe("Frame", func() {
	It("should check the range", func() {
		Expect(NoFrame.Valid()).To(BeFalse())
		Expect(Frame(0).InRange(4)).To(BeTrue())
		Expect(Frame(3).InRange(4)).To(BeTrue())
		Expect(Frame(4).InRange(4)).To(BeFalse())
		Expect(NoFrame.InRange(4)).To(BeFalse())
	})
})

var _ = Describe("CounterClock", func() {
	It("should be strictly increasing", func() {
		c := NewCounterClock()

		a := c.Now()
		b := c.Now()

		Expect(b).To(BeNumerically(">", a))
		Expect(c.Current()).To(Equal(b))
	})
})
