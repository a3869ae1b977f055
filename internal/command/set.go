package command

import (
	"reflect"

	"github.com/l1jgo/cmdbus/internal/core/binding"
	"github.com/l1jgo/cmdbus/internal/core/ref"
	"go.uber.org/zap"
)

// Set owns a batch of self-registering commands scoped to one activation
// window: registered together on Activate, released together on Deactivate.
//
// Commands come from three places, in this order: the Discoverer (commands
// already present in the scope), the Creator hook, and commands added with
// Add or AddCommand.
type Set struct {
	name           string
	registry       func() *Registry
	discover       Discoverer
	create         func() []RegistersCommand
	spawner        Spawner
	sendOnActivate string
	log            *zap.Logger

	added      []RegistersCommand
	bindings   binding.Group
	registered bool
}

// SetOption configures a Set.
type SetOption func(*Set)

// WithRegistry pins the set to r instead of the process-wide registry.
func WithRegistry(r *Registry) SetOption {
	return func(s *Set) { s.registry = func() *Registry { return r } }
}

func WithSetDiscoverer(d Discoverer) SetOption {
	return func(s *Set) { s.discover = d }
}

// WithCreator sets a hook that builds extra commands on every registration.
func WithCreator(fn func() []RegistersCommand) SetOption {
	return func(s *Set) { s.create = fn }
}

// WithSpawner gives commands built by AddCommand their own child owner,
// destroyed when the command is unregistered.
func WithSpawner(sp Spawner) SetOption {
	return func(s *Set) { s.spawner = sp }
}

// WithSendOnActivate sends tag with no payload after every Activate.
func WithSendOnActivate(tag string) SetOption {
	return func(s *Set) { s.sendOnActivate = tag }
}

func WithSetLogger(log *zap.Logger) SetOption {
	return func(s *Set) { s.log = log }
}

func NewSet(name string, opts ...SetOption) *Set {
	s := &Set{
		name:     name,
		registry: Get,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Set) Name() string { return s.name }

func (s *Set) Registered() bool { return s.registered }

// Len returns the number of registrations currently retained.
func (s *Set) Len() int { return s.bindings.Len() }

// Activate registers the set and then sends the configured activation tag.
// Activating a set that is already registered does nothing.
func (s *Set) Activate() {
	if s.registered {
		return
	}
	s.RegisterCommands()
	if s.sendOnActivate != "" {
		s.registry().Bus().Send(s.sendOnActivate, nil)
	}
}

// Deactivate releases every registration the set holds.
func (s *Set) Deactivate() {
	s.UnregisterCommands()
}

// RegisterCommands collects the set's commands and registers each one.
// Safe to call repeatedly; only the first call of an active window counts.
func (s *Set) RegisterCommands() {
	if s.registered {
		return
	}
	var work []RegistersCommand
	if s.discover != nil {
		work = append(work, s.discover.Discover()...)
	}
	if s.create != nil {
		work = append(work, s.create()...)
	}
	work = append(work, s.live()...)

	r := s.registry()
	for _, rc := range work {
		s.bindings.Add(rc.RegisterTo(r))
	}
	s.registered = true
	s.log.Debug("命令組已註冊", zap.String("set", s.name), zap.Int("commands", len(work)))
}

// UnregisterCommands releases every retained binding. Safe to call
// repeatedly.
func (s *Set) UnregisterCommands() {
	if !s.registered {
		return
	}
	n := s.bindings.Len()
	s.bindings.UnbindAll()
	s.registered = false
	s.log.Debug("命令組已解除註冊", zap.String("set", s.name), zap.Int("bindings", n))
}

// Add attaches rc to the set. If the set is registered, rc is registered
// right away unless disableAutoRegistration is set; either way it is part of
// every later registration until its owner is destroyed.
func (s *Set) Add(rc RegistersCommand, disableAutoRegistration bool) {
	s.added = append(s.added, rc)
	if s.registered && !disableAutoRegistration {
		s.bindings.Add(rc.RegisterTo(s.registry()))
	}
}

// live prunes added commands whose owner is gone and returns the rest.
func (s *Set) live() []RegistersCommand {
	kept := s.added[:0]
	for _, rc := range s.added {
		if o, ok := rc.(ref.Owner); ok && !o.Valid() {
			continue
		}
		kept = append(kept, rc)
	}
	for i := len(kept); i < len(s.added); i++ {
		s.added[i] = nil
	}
	s.added = kept
	out := make([]RegistersCommand, len(kept))
	copy(out, kept)
	return out
}

// AddCommand constructs a *T and adds it to s. With a spawner the command
// gets its own child owner and is destroyed when unregistered.
func AddCommand[T any, PT interface {
	*T
	TaggedCommand
}](s *Set, disableAutoRegistration bool) PT {
	cmd := PT(new(T))
	var rc RegistersCommand
	if s.spawner != nil {
		owner := s.spawner.Spawn(reflect.TypeOf((*T)(nil)).Elem().Name())
		m := Manage(NewFixed(cmd, owner), owner)
		m.DestroyOnUnbind = true
		rc = m
	} else {
		rc = NewFixed(cmd, nil)
	}
	s.Add(rc, disableAutoRegistration)
	return cmd
}
