package kernel

import (
	"errors"

	"github.com/sarchlab/vmkernel/mem/vm"
)

// HandleException is the entry point for a fault raised by an access of the
// running process. A page fault is resolved by the memory manager; any other
// fault, or a page fault that cannot be resolved, terminates the process.
//
// A nil return means the access can be retried.
func (k *Kernel) HandleException(kind vm.FaultKind, vAddr uint64) error {
	pid, running := k.mmu.CurrentPID()
	if !running {
		return errors.New("exception without a running process")
	}

	if kind == vm.PageFault {
		err := k.mmu.ResolveFault(vAddr)
		if err != nil {
			k.terminate(pid, err)
			return err
		}

		return nil
	}

	fault := vm.NewFault(kind, pid, vAddr)
	k.terminate(pid, fault)

	return fault
}

// Read reads size bytes at vAddr on behalf of the running process.
func (k *Kernel) Read(vAddr uint64, size int) (uint32, error) {
	var value uint32

	err := k.access(vAddr, func() error {
		var err error
		value, err = k.mmu.ReadMem(vAddr, size)

		return err
	})

	return value, err
}

// Write writes size bytes of value at vAddr on behalf of the running process.
func (k *Kernel) Write(vAddr uint64, size int, value uint32) error {
	return k.access(vAddr, func() error {
		return k.mmu.WriteMem(vAddr, size, value)
	})
}

// access runs op and, after a resolved page fault, runs it exactly once
// more.
func (k *Kernel) access(vAddr uint64, op func() error) error {
	if k.halted {
		return ErrHalted
	}

	err := op()
	if err == nil {
		return nil
	}

	kind, isFault := vm.FaultKindOf(err)
	if !isFault {
		return err
	}

	if kind != vm.PageFault {
		return k.HandleException(kind, vAddr)
	}

	err = k.HandleException(kind, vAddr)
	if err != nil {
		return err
	}

	err = op()
	if _, isFault = vm.FaultKindOf(err); isFault {
		pid, _ := k.mmu.CurrentPID()
		k.terminate(pid, err)
	}

	return err
}

func (k *Kernel) terminate(pid vm.PID, cause error) {
	p, found := k.procs[pid]
	if !found || !p.Alive() {
		return
	}

	p.State = ProcessTerminated
	p.Cause = cause

	err := k.mmu.Reclaim(pid)
	if err != nil {
		p.Cause = errors.Join(cause, err)
	}

	k.invoke(HookPosTerminate, ProcessEvent{PID: pid, Cause: p.Cause})
}
