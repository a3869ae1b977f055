package command

import (
	"github.com/l1jgo/cmdbus/internal/core/event"
	"go.uber.org/zap"
)

var global *Registry

// Get returns the process-wide registry. The first call builds and
// initializes one on the global bus with the global logger, unless the host
// installed its own with SetGlobal.
func Get() *Registry {
	if global == nil {
		global = NewRegistry(event.Global(), zap.L())
		global.Init()
	}
	return global
}

// SetGlobal installs r as the process-wide registry. A different registry
// that was installed before is shut down so only one dispatcher stays live.
func SetGlobal(r *Registry) {
	if global != nil && global != r {
		global.Shutdown()
	}
	global = r
}

// ResetGlobal shuts down and forgets the process-wide registry.
func ResetGlobal() {
	if global != nil {
		global.Shutdown()
		global = nil
	}
}
