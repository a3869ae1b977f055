// Package command routes tagged notifications to exactly one command per tag
// and manages the reversible registration of self-registering commands.
//
// All types here belong to the game loop goroutine. A command's Execute may
// freely call back into the registry or bus: add, remove, or send.
package command

import (
	"github.com/l1jgo/cmdbus/internal/core/binding"
	"github.com/l1jgo/cmdbus/internal/core/event"
	"github.com/l1jgo/cmdbus/internal/core/ref"
)

// Command is the single execution entry point resolved per tag.
type Command interface {
	Execute(n event.Notification)
}

// Func adapts a plain function to Command.
type Func func(n event.Notification)

func (f Func) Execute(n event.Notification) { f(n) }

// Factory produces the command for one delivery. Returning nil is reported
// and the delivery is dropped.
type Factory func() Command

// RegistersCommand is implemented by commands that know how to attach
// themselves to a registry.
type RegistersCommand interface {
	RegisterTo(r *Registry) binding.Binding
}

// Discoverer supplies already-constructed self-registering commands, e.g. by
// walking a scene.
type Discoverer interface {
	Discover() []RegistersCommand
}

// DiscoverFunc adapts a function to Discoverer.
type DiscoverFunc func() []RegistersCommand

func (f DiscoverFunc) Discover() []RegistersCommand { return f() }

// Destroyable is an owner that can be asked to destroy itself.
type Destroyable interface {
	ref.Owner
	Destroy()
}

// Spawner creates child owners for commands constructed by a Set.
type Spawner interface {
	Spawn(name string) Destroyable
}

// Outcome classifies what happened to one delivered notification.
type Outcome int

const (
	OutcomeExecuted Outcome = iota
	OutcomeUnknownTag
	OutcomeFactoryFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeUnknownTag:
		return "unknown_tag"
	case OutcomeFactoryFailed:
		return "factory_failed"
	default:
		return "unknown"
	}
}

// Observer is told about every notification the registry handles.
type Observer interface {
	Observe(n event.Notification, o Outcome)
}
