package replay

import (
	"errors"
	"fmt"

	"github.com/sarchlab/vmkernel/kernel"
	"github.com/sarchlab/vmkernel/mem/vm"
)

// Termination records a process killed by a fault during replay.
type Termination struct {
	Line  int
	PID   vm.PID
	Cause error
}

// Result summarizes a replay.
type Result struct {
	Ops          int
	Reads        int
	Writes       int
	Skipped      int
	Terminations []Termination

	// LastRead is the value returned by the last successful read.
	LastRead uint32
}

// Options controls a replay.
type Options struct {
	// Preload loads every page of a spawned process eagerly.
	Preload bool

	// OnStart is called before each operation, if set.
	OnStart func(op Op)

	// OnOp is called after each operation, if set.
	OnOp func(op Op)
}

// Run plays ops against a kernel. Faults terminate the faulting process and
// the replay moves on; accesses made while the scheduled process is not
// alive are skipped. Any other failure stops the replay.
func Run(k *kernel.Kernel, ops []Op, opts Options) (Result, error) {
	r := runner{kernel: k, opts: opts}

	for _, op := range ops {
		if opts.OnStart != nil {
			opts.OnStart(op)
		}

		err := r.step(op)
		if err != nil {
			return r.result, fmt.Errorf("line %d: %s: %w", op.Line, op.Kind, err)
		}

		r.result.Ops++

		if opts.OnOp != nil {
			opts.OnOp(op)
		}

		if op.Kind == OpHalt {
			break
		}
	}

	return r.result, nil
}

type runner struct {
	kernel  *kernel.Kernel
	opts    Options
	current vm.PID
	running bool
	result  Result
}

func (r *runner) step(op Op) error {
	switch op.Kind {
	case OpSpawn:
		return r.kernel.Spawn(op.PID, nil, kernel.SpawnOptions{
			StackPages:    op.Pages,
			ReadOnlyPages: op.ReadOnly,
			Preload:       op.Preload || r.opts.Preload,
		})
	case OpSwitch:
		err := r.kernel.Switch(op.PID)
		if err != nil {
			return err
		}

		r.current = op.PID
		r.running = true

		return nil
	case OpRead, OpWrite:
		return r.access(op)
	case OpExit:
		return r.kernel.Exit(op.PID)
	case OpHalt:
		return r.kernel.Halt()
	default:
		return fmt.Errorf("unknown operation %d", op.Kind)
	}
}

func (r *runner) access(op Op) error {
	if !r.running || !r.kernel.Alive(r.current) {
		r.result.Skipped++
		return nil
	}

	var err error

	if op.Kind == OpRead {
		var value uint32

		value, err = r.kernel.Read(op.Addr, op.Size)
		if err == nil {
			r.result.Reads++
			r.result.LastRead = value
		}
	} else {
		err = r.kernel.Write(op.Addr, op.Size, op.Value)
		if err == nil {
			r.result.Writes++
		}
	}

	if err == nil {
		return nil
	}

	var fatal *vm.FatalFault
	if _, isFault := vm.FaultKindOf(err); isFault || errors.As(err, &fatal) {
		r.result.Terminations = append(r.result.Terminations, Termination{
			Line:  op.Line,
			PID:   r.current,
			Cause: err,
		})

		return nil
	}

	return err
}
