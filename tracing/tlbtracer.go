package tracing

import (
	"fmt"
	"io"

	"github.com/sarchlab/vmkernel/mem/vm/mmu"
	"github.com/sarchlab/vmkernel/sim"
)

// A TLBTracer writes what happens in the TLB as CSV lines of
// time,domain,what,pid,vpn,frame,slot.
type TLBTracer struct {
	writer io.Writer
}

// NewTLBTracer produces a new TLBTracer, injecting the dependency of a writer.
func NewTLBTracer(w io.Writer) *TLBTracer {
	return &TLBTracer{writer: w}
}

// Func prints the TLB trace information.
func (t *TLBTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case mmu.HookPosTLBHit, mmu.HookPosTLBRefill, mmu.HookPosTLBEvict:
	default:
		return
	}

	evt, ok := ctx.Item.(mmu.MemEvent)
	if !ok {
		return
	}

	_, err := fmt.Fprintf(t.writer, "%d,%s,%s,%d,%d,%d,%d\n",
		ctx.Now, domainName(ctx), ctx.Pos.Name,
		evt.PID, evt.VPN, evt.Frame, evt.Slot)
	if err != nil {
		panic(err)
	}
}
