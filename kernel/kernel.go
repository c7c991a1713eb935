// Package kernel provides the exception dispatcher and the process
// bookkeeping that sit on top of the memory manager.
package kernel

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/sim"
)

// Errors returned by the kernel.
var (
	ErrHalted          = errors.New("machine halted")
	ErrUnknownProcess  = errors.New("unknown process")
	ErrProcessNotAlive = errors.New("process is not alive")
)

// Hook positions of the kernel.
var (
	HookPosSpawn     = &sim.HookPos{Name: "Spawn"}
	HookPosExit      = &sim.HookPos{Name: "Exit"}
	HookPosTerminate = &sim.HookPos{Name: "Terminate"}
	HookPosHalt      = &sim.HookPos{Name: "Halt"}
)

// MemoryManager is the part of the memory manager the kernel drives.
type MemoryManager interface {
	PageSize() uint64
	AttachProcess(pid vm.PID, numPages int) (*vm.PageTable, error)
	SwitchTo(pid vm.PID) error
	CurrentPID() (vm.PID, bool)
	ResolveFault(vAddr uint64) error
	Preload(pid vm.PID, vpn uint64) error
	Reclaim(pid vm.PID) error
	ReadMem(vAddr uint64, size int) (uint32, error)
	WriteMem(vAddr uint64, size int, value uint32) error
}

// Kernel loads programs, dispatches memory exceptions, and releases the
// memory of processes that finish.
type Kernel struct {
	*sim.HookableBase

	name   string
	mmu    MemoryManager
	swap   vm.BackingStore
	procs  map[vm.PID]*Process
	halted bool
}

// Name returns the name of the kernel.
func (k *Kernel) Name() string {
	return k.name
}

// Process returns the record of a process.
func (k *Kernel) Process(pid vm.PID) (*Process, bool) {
	p, found := k.procs[pid]
	return p, found
}

// Alive returns true if pid has been spawned and has not finished.
func (k *Kernel) Alive(pid vm.PID) bool {
	p, found := k.procs[pid]
	return found && p.Alive()
}

// Halted returns true after Halt.
func (k *Kernel) Halted() bool {
	return k.halted
}

// Spawn creates a process with an address space holding image followed by
// opts.StackPages empty pages.
func (k *Kernel) Spawn(pid vm.PID, image []byte, opts SpawnOptions) error {
	if k.halted {
		return ErrHalted
	}

	if _, found := k.procs[pid]; found {
		return fmt.Errorf("process %d already exists", pid)
	}

	pageSize := k.mmu.PageSize()
	imagePages := int((uint64(len(image)) + pageSize - 1) / pageSize)
	numPages := imagePages + opts.StackPages

	if opts.ReadOnlyPages < 0 || opts.ReadOnlyPages > numPages {
		return fmt.Errorf("cannot protect %d of %d pages",
			opts.ReadOnlyPages, numPages)
	}

	pt, err := k.mmu.AttachProcess(pid, numPages)
	if err != nil {
		return err
	}

	k.procs[pid] = &Process{PID: pid, NumPages: numPages}

	err = k.load(pid, image, imagePages)
	if err != nil {
		return k.abortSpawn(pid, err)
	}

	for vpn := 0; vpn < opts.ReadOnlyPages; vpn++ {
		pt.SetReadOnly(uint64(vpn), true)
	}

	if opts.Preload {
		for vpn := 0; vpn < numPages; vpn++ {
			err = k.mmu.Preload(pid, uint64(vpn))
			if err != nil {
				return k.abortSpawn(pid, err)
			}
		}
	}

	k.invoke(HookPosSpawn, ProcessEvent{PID: pid})

	return nil
}

func (k *Kernel) load(pid vm.PID, image []byte, imagePages int) error {
	pageSize := k.mmu.PageSize()

	for vpn := 0; vpn < imagePages; vpn++ {
		page := make([]byte, pageSize)
		copy(page, image[uint64(vpn)*pageSize:])

		err := k.swap.WritePage(pid, uint64(vpn), page)
		if err != nil {
			return fmt.Errorf("load page %d of pid %d: %w", vpn, pid, err)
		}
	}

	return nil
}

func (k *Kernel) abortSpawn(pid vm.PID, cause error) error {
	delete(k.procs, pid)

	err := k.mmu.Reclaim(pid)
	if err != nil {
		return errors.Join(cause, err)
	}

	return cause
}

// Switch schedules pid on the processor.
func (k *Kernel) Switch(pid vm.PID) error {
	if k.halted {
		return ErrHalted
	}

	err := k.mustBeAlive(pid)
	if err != nil {
		return err
	}

	return k.mmu.SwitchTo(pid)
}

// Exit is the exit system call. It releases the memory of the process.
func (k *Kernel) Exit(pid vm.PID) error {
	err := k.mustBeAlive(pid)
	if err != nil {
		return err
	}

	k.procs[pid].State = ProcessExited
	k.invoke(HookPosExit, ProcessEvent{PID: pid})

	return k.mmu.Reclaim(pid)
}

// Halt is the halt system call. It releases the memory of every process that
// is still alive and stops the machine.
func (k *Kernel) Halt() error {
	if k.halted {
		return nil
	}

	var errs []error

	for _, pid := range k.alivePIDs() {
		k.procs[pid].State = ProcessExited
		errs = append(errs, k.mmu.Reclaim(pid))
	}

	k.halted = true
	k.invoke(HookPosHalt, ProcessEvent{})

	return errors.Join(errs...)
}

func (k *Kernel) alivePIDs() []vm.PID {
	pids := make([]vm.PID, 0, len(k.procs))
	for pid, p := range k.procs {
		if p.Alive() {
			pids = append(pids, pid)
		}
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	return pids
}

func (k *Kernel) mustBeAlive(pid vm.PID) error {
	p, found := k.procs[pid]
	if !found {
		return fmt.Errorf("pid %d: %w", pid, ErrUnknownProcess)
	}

	if !p.Alive() {
		return fmt.Errorf("pid %d is %s: %w", pid, p.State, ErrProcessNotAlive)
	}

	return nil
}

func (k *Kernel) invoke(pos *sim.HookPos, evt ProcessEvent) {
	if k.NumHooks() == 0 {
		return
	}

	k.InvokeHook(sim.HookCtx{
		Domain: k,
		Pos:    pos,
		Item:   evt,
	})
}
