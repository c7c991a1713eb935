// Package vm provides the data model of virtual memory: translation entries,
// per-process page tables, the fault taxonomy, and the contracts of the
// collaborators that the memory manager consumes.
package vm

import "fmt"

// PID stands for Process ID.
type PID uint32

// Frame is the index of a physical page frame.
type Frame int64

// NoFrame marks a translation entry that is not mapped to any frame.
const NoFrame Frame = -1

// Valid returns true if f refers to a frame.
func (f Frame) Valid() bool {
	return f >= 0
}

// InRange returns true if f is a frame of a machine with numFrames frames.
func (f Frame) InRange(numFrames int) bool {
	return f.Valid() && int64(f) < int64(numFrames)
}

// A TranslationEntry maps one virtual page of a process to a physical frame.
type TranslationEntry struct {
	VirtualPage  uint64
	PhysicalPage Frame
	Valid        bool
	ReadOnly     bool
	Use          bool
	Dirty        bool
	Owner        PID

	// InsertionStamp is the time the entry entered the TLB.
	InsertionStamp uint64

	// LastAccessStamp is the time the mapping was last used.
	LastAccessStamp uint64
}

// Resident returns true if the entry maps a frame.
func (e TranslationEntry) Resident() bool {
	return e.Valid && e.PhysicalPage.Valid()
}

func (e TranslationEntry) String() string {
	flags := []byte("----")
	if e.Valid {
		flags[0] = 'v'
	}
	if e.ReadOnly {
		flags[1] = 'r'
	}
	if e.Use {
		flags[2] = 'u'
	}
	if e.Dirty {
		flags[3] = 'd'
	}

	return fmt.Sprintf("pid=%d vpn=%d frame=%d %s ins=%d acc=%d",
		e.Owner, e.VirtualPage, e.PhysicalPage, flags,
		e.InsertionStamp, e.LastAccessStamp)
}
