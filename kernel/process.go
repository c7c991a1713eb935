package kernel

import (
	"fmt"

	"github.com/sarchlab/vmkernel/mem/vm"
)

// ProcessState is the life-cycle state of a process.
type ProcessState int

// The states of a process.
const (
	ProcessRunnable ProcessState = iota
	ProcessExited
	ProcessTerminated
)

func (s ProcessState) String() string {
	switch s {
	case ProcessRunnable:
		return "runnable"
	case ProcessExited:
		return "exited"
	case ProcessTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ProcessState(%d)", int(s))
	}
}

// Process is the kernel's record of a user process.
type Process struct {
	PID      vm.PID
	NumPages int
	State    ProcessState

	// Cause is the fault that terminated the process, if any.
	Cause error
}

// Alive returns true if the process has not finished.
func (p *Process) Alive() bool {
	return p.State == ProcessRunnable
}

// SpawnOptions controls how a program is loaded.
type SpawnOptions struct {
	// StackPages is the number of zero-filled pages after the image.
	StackPages int

	// ReadOnlyPages is the number of pages, counted from page 0, that the
	// process cannot write.
	ReadOnlyPages int

	// Preload brings every page into memory at spawn time instead of on
	// first access.
	Preload bool
}

// ProcessEvent is the item of the hooks invoked by the kernel.
type ProcessEvent struct {
	PID   vm.PID
	Cause error
}
