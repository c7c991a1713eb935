package tracing

import (
	"log"

	"github.com/sarchlab/vmkernel/kernel"
	"github.com/sarchlab/vmkernel/mem/vm/mmu"
	"github.com/sarchlab/vmkernel/sim"
)

// MemEventLogger is a hook that prints memory and process events.
type MemEventLogger struct {
	sim.LogHookBase
}

// NewMemEventLogger returns a new MemEventLogger which will write into the
// logger.
func NewMemEventLogger(logger *log.Logger) *MemEventLogger {
	h := new(MemEventLogger)
	h.Logger = logger

	return h
}

// Func writes the event into the logger.
func (h *MemEventLogger) Func(ctx sim.HookCtx) {
	switch evt := ctx.Item.(type) {
	case mmu.MemEvent:
		if evt.Fault != 0 {
			h.Logger.Printf("%d, %s pid=%d vpn=%d fault=%s",
				ctx.Now, ctx.Pos.Name, evt.PID, evt.VPN, evt.Fault)
			return
		}

		h.Logger.Printf("%d, %s pid=%d vpn=%d frame=%d",
			ctx.Now, ctx.Pos.Name, evt.PID, evt.VPN, evt.Frame)
	case kernel.ProcessEvent:
		if evt.Cause != nil {
			h.Logger.Printf("%d, %s pid=%d cause=%q",
				ctx.Now, ctx.Pos.Name, evt.PID, evt.Cause.Error())
			return
		}

		h.Logger.Printf("%d, %s pid=%d", ctx.Now, ctx.Pos.Name, evt.PID)
	}
}
