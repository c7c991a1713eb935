package tracing

import (
	"github.com/sarchlab/vmkernel/datarecording"
	"github.com/sarchlab/vmkernel/kernel"
	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/mem/vm/mmu"
	"github.com/sarchlab/vmkernel/sim"
)

// MemEventRow is a row of the event table.
type MemEventRow struct {
	ID     string
	Time   uint64
	Domain string
	Where  string
	PID    uint32
	VPN    uint64
	Frame  int64
	Slot   int
	Detail string
}

// MemEventRecorder is a hook that stores memory and process events in a data
// recorder.
type MemEventRecorder struct {
	recorder  datarecording.DataRecorder
	tableName string
}

// NewMemEventRecorder creates a MemEventRecorder that writes into a new table
// of the recorder.
func NewMemEventRecorder(
	recorder datarecording.DataRecorder,
	tableName string,
) *MemEventRecorder {
	recorder.CreateTable(tableName, MemEventRow{})

	return &MemEventRecorder{
		recorder:  recorder,
		tableName: tableName,
	}
}

// Func stores the event.
func (h *MemEventRecorder) Func(ctx sim.HookCtx) {
	row := MemEventRow{
		Time:   ctx.Now,
		Domain: domainName(ctx),
		Where:  ctx.Pos.Name,
		Frame:  int64(vm.NoFrame),
		Slot:   -1,
	}

	switch evt := ctx.Item.(type) {
	case mmu.MemEvent:
		row.PID = uint32(evt.PID)
		row.VPN = evt.VPN
		row.Frame = int64(evt.Frame)
		row.Slot = evt.Slot

		if evt.Fault != 0 {
			row.Detail = evt.Fault.String()
		}
	case kernel.ProcessEvent:
		row.PID = uint32(evt.PID)

		if evt.Cause != nil {
			row.Detail = evt.Cause.Error()
		}
	default:
		return
	}

	row.ID = sim.GetIDGenerator().Generate()
	h.recorder.InsertData(h.tableName, row)
}

// Collect attaches hooks to every domain.
func Collect(hook sim.Hook, domains ...NamedHookable) {
	for _, d := range domains {
		d.AcceptHook(hook)
	}
}
