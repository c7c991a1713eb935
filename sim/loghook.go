package sim

import (
	"log"
)

// A LogHook is a hook that is resonsible for writing what happens inside a
// hookable object into a logger.
type LogHook interface {
	Hook
}

// LogHookBase proovides the common logic for all LogHooks
type LogHookBase struct {
	*log.Logger
}
