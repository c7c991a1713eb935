// Package frame provides the physical frame allocator of the machine.
package frame

import (
	"log"
	"math/bits"
	"strings"
	"sync"

	"github.com/sarchlab/vmkernel/mem/vm"
)

const bitsInWord = 32

// An Allocator tracks which physical frames are in use with one bit per
// frame. A set bit means some page table owns the frame.
type Allocator struct {
	sync.Mutex
	numBits int
	words   []uint32
}

// NewAllocator creates an allocator for numFrames frames, all free.
func NewAllocator(numFrames int) *Allocator {
	if numFrames <= 0 {
		log.Panicf("invalid number of frames %d", numFrames)
	}

	return &Allocator{
		numBits: numFrames,
		words:   make([]uint32, (numFrames+bitsInWord-1)/bitsInWord),
	}
}

// NumFrames returns the number of frames managed.
func (a *Allocator) NumFrames() int {
	return a.numBits
}

// Acquire marks the lowest free frame as used and returns it.
func (a *Allocator) Acquire() (vm.Frame, bool) {
	n := a.Find()
	if n < 0 {
		return vm.NoFrame, false
	}

	return vm.Frame(n), true
}

// Release frees a frame. Releasing a frame that is not in use panics, as it
// means two owners believed they held the frame.
func (a *Allocator) Release(f vm.Frame) {
	if !f.InRange(a.numBits) {
		log.Panicf("releasing frame %d out of range", f)
	}

	a.Lock()
	defer a.Unlock()

	if !a.test(int(f)) {
		log.Panicf("releasing free frame %d", f)
	}

	a.clear(int(f))
}

// Find returns the number of a clear bit and sets it. It returns -1 if all
// bits are set.
func (a *Allocator) Find() int {
	a.Lock()
	defer a.Unlock()

	for w, word := range a.words {
		if word == ^uint32(0) {
			continue
		}

		n := w*bitsInWord + bits.TrailingZeros32(^word)
		if n >= a.numBits {
			break
		}

		a.mark(n)

		return n
	}

	return -1
}

// Mark sets the nth bit.
func (a *Allocator) Mark(n int) {
	a.mustBeInRange(n)

	a.Lock()
	defer a.Unlock()

	a.mark(n)
}

// Clear clears the nth bit.
func (a *Allocator) Clear(n int) {
	a.mustBeInRange(n)

	a.Lock()
	defer a.Unlock()

	a.clear(n)
}

// Test returns true if the nth bit is set.
func (a *Allocator) Test(n int) bool {
	a.mustBeInRange(n)

	a.Lock()
	defer a.Unlock()

	return a.test(n)
}

// NumClear returns the number of free frames.
func (a *Allocator) NumClear() int {
	a.Lock()
	defer a.Unlock()

	set := 0
	for _, w := range a.words {
		set += bits.OnesCount32(w)
	}

	return a.numBits - set
}

// String prints the bitmap, one character per frame.
func (a *Allocator) String() string {
	a.Lock()
	defer a.Unlock()

	var sb strings.Builder

	for i := 0; i < a.numBits; i++ {
		if a.test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}

func (a *Allocator) mustBeInRange(n int) {
	if n < 0 || n >= a.numBits {
		log.Panicf("bit %d out of range [0, %d)", n, a.numBits)
	}
}

func (a *Allocator) mark(n int) {
	a.words[n/bitsInWord] |= 1 << (n % bitsInWord)
}

func (a *Allocator) clear(n int) {
	a.words[n/bitsInWord] &^= 1 << (n % bitsInWord)
}

func (a *Allocator) test(n int) bool {
	return a.words[n/bitsInWord]&(1<<(n%bitsInWord)) != 0
}
