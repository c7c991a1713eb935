// Package tracing provides hooks that observe the memory manager and the
// kernel.
package tracing

import (
	"github.com/sarchlab/vmkernel/sim"
)

// NamedHookable is a component that has a name and accepts hooks.
type NamedHookable interface {
	sim.Hookable
	Name() string
}

func domainName(ctx sim.HookCtx) string {
	named, ok := ctx.Domain.(interface{ Name() string })
	if !ok {
		return ""
	}

	return named.Name()
}
