package command

import (
	"github.com/l1jgo/cmdbus/internal/core/binding"
	"github.com/l1jgo/cmdbus/internal/core/event"
	"github.com/l1jgo/cmdbus/internal/core/ref"
)

// TaggedCommand is a command type whose tag is fixed by the type itself.
type TaggedCommand interface {
	Command
	Tag() string
}

// registration is the state every variant shares: a guarded reference to
// the registry it was last attached to.
type registration struct {
	registry ref.Ref[*Registry]
}

// Registry returns the registry the command is attached to, or nil if it
// was never registered or that registry has shut down.
func (x *registration) Registry() *Registry { return x.registry.Value() }

// attach installs c under tag. The factory hands out c only while owner is
// alive; after that the registry sees a nil command and reports it.
func (x *registration) attach(r *Registry, tag string, c Command, owner ref.Owner) binding.Binding {
	if tag == "" {
		return binding.Inert()
	}
	x.registry = ref.OwnedBy(r, r)
	cmd := ref.OwnedBy(c, owner)
	return r.Add(tag, cmd.Value)
}

func ownerValid(o ref.Owner) bool {
	return o == nil || o.Valid()
}

// Fixed registers a TaggedCommand under the tag its type declares.
type Fixed struct {
	registration
	cmd   TaggedCommand
	owner ref.Owner
}

// NewFixed wraps cmd. owner bounds the command's lifetime and may be nil.
func NewFixed(cmd TaggedCommand, owner ref.Owner) *Fixed {
	return &Fixed{cmd: cmd, owner: owner}
}

func (f *Fixed) Tag() string                  { return f.cmd.Tag() }
func (f *Fixed) Execute(n event.Notification) { f.cmd.Execute(n) }
func (f *Fixed) Valid() bool                  { return ownerValid(f.owner) }

// Unwrap returns the wrapped command.
func (f *Fixed) Unwrap() TaggedCommand { return f.cmd }

func (f *Fixed) RegisterTo(r *Registry) binding.Binding {
	return f.attach(r, f.cmd.Tag(), f.cmd, f.owner)
}

// Configurable takes its tag from outside, typically a manifest. Without a
// tag it registers nothing and returns an inert binding.
type Configurable struct {
	registration
	tag   string
	run   func(event.Notification)
	owner ref.Owner
}

func NewConfigurable(tag string, run func(event.Notification), owner ref.Owner) *Configurable {
	return &Configurable{tag: tag, run: run, owner: owner}
}

func (c *Configurable) Tag() string       { return c.tag }
func (c *Configurable) SetTag(tag string) { c.tag = tag }
func (c *Configurable) Valid() bool       { return ownerValid(c.owner) }

func (c *Configurable) Execute(n event.Notification) {
	if c.run != nil {
		c.run(n)
	}
}

func (c *Configurable) RegisterTo(r *Registry) binding.Binding {
	return c.attach(r, c.tag, c, c.owner)
}

// Managed decorates another variant with lifecycle hooks. When its binding
// is released the registry-level registration goes first, then the
// unregistered hooks run and, with DestroyOnUnbind, the owner is destroyed.
type Managed struct {
	inner           RegistersCommand
	owner           Destroyable
	hooks           []func()
	DestroyOnUnbind bool
}

func Manage(inner RegistersCommand, owner Destroyable) *Managed {
	return &Managed{inner: inner, owner: owner}
}

// OnUnregistered adds a hook run after each release of the registration
// while the owner is still alive.
func (m *Managed) OnUnregistered(fn func()) {
	m.hooks = append(m.hooks, fn)
}

func (m *Managed) Unwrap() RegistersCommand { return m.inner }

func (m *Managed) Valid() bool {
	return m.owner == nil || m.owner.Valid()
}

func (m *Managed) Execute(n event.Notification) {
	if c, ok := m.inner.(Command); ok {
		c.Execute(n)
	}
}

func (m *Managed) RegisterTo(r *Registry) binding.Binding {
	inner := m.inner.RegisterTo(r)
	if !inner.Bound() {
		return inner
	}
	self := ref.New(m, m.Valid)
	return binding.Then(inner, func() {
		if cmd, ok := self.Get(); ok {
			cmd.unregistered()
		}
	})
}

func (m *Managed) unregistered() {
	for _, fn := range m.hooks {
		fn()
	}
	if m.DestroyOnUnbind && m.owner != nil {
		m.owner.Destroy()
	}
}
