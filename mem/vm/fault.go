package vm

import (
	"errors"
	"fmt"
)

// FaultKind enumerates the exceptions that address translation can raise.
type FaultKind int

// The fault taxonomy.
const (
	// AddressError is a misaligned access or a virtual page out of range.
	AddressError FaultKind = iota + 1

	// PageFault means no valid cached translation exists.
	PageFault

	// ReadOnlyViolation is a write to a read-only mapping.
	ReadOnlyViolation

	// BusError is a translation outside physical memory. It indicates
	// corrupted tables.
	BusError
)

func (k FaultKind) String() string {
	switch k {
	case AddressError:
		return "AddressError"
	case PageFault:
		return "PageFault"
	case ReadOnlyViolation:
		return "ReadOnlyViolation"
	case BusError:
		return "BusError"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// A Fault is raised by an access that cannot be translated.
type Fault struct {
	Kind  FaultKind
	PID   PID
	VAddr uint64
}

// NewFault creates a fault.
func NewFault(kind FaultKind, pid PID, vAddr uint64) *Fault {
	return &Fault{Kind: kind, PID: pid, VAddr: vAddr}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at 0x%x (pid %d)", f.Kind, f.VAddr, f.PID)
}

// FaultKindOf returns the kind of the fault carried by err, if any.
func FaultKindOf(err error) (FaultKind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}

	return 0, false
}

// IsFault reports whether err carries a fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	k, ok := FaultKindOf(err)
	return ok && k == kind
}

// A FatalFault reports that a page fault could not be resolved. The faulting
// access must not be retried.
type FatalFault struct {
	PID   PID
	VAddr uint64
	Cause error
}

func (f *FatalFault) Error() string {
	return fmt.Sprintf("unresolvable fault at 0x%x (pid %d): %v",
		f.VAddr, f.PID, f.Cause)
}

func (f *FatalFault) Unwrap() error {
	return f.Cause
}
