package command

import (
	"sort"
	"time"

	"github.com/l1jgo/cmdbus/internal/core/binding"
	"github.com/l1jgo/cmdbus/internal/core/event"
	"github.com/l1jgo/cmdbus/internal/core/ref"
	"go.uber.org/zap"
)

type registryState int

const (
	stateNew registryState = iota
	stateInitialized
	stateShutdown
)

// Registry is the front controller: one factory per tag, reached through a
// single bus subscription per tag. Unlike the bus, which fans out, a tag
// here has exactly one owner and the last Add wins.
type Registry struct {
	bus       *event.Bus
	factories map[string]Factory
	subs      map[string]*event.Subscription
	found     binding.Group
	state     registryState
	discover  Discoverer
	observer  Observer
	now       func() time.Time
	started   time.Time
	log       *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithDiscoverer sets the source of commands registered by Init.
func WithDiscoverer(d Discoverer) Option {
	return func(r *Registry) { r.discover = d }
}

// WithObserver reports every handled notification to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithClock overrides the time source used in delivery logs.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(bus *event.Bus, log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		bus:       bus,
		factories: make(map[string]Factory),
		subs:      make(map[string]*event.Subscription),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.started = r.now()
	return r
}

// Bus returns the bus this registry listens on.
func (r *Registry) Bus() *event.Bus { return r.bus }

// Valid reports whether the registry is still accepting deliveries. It lets
// bindings and bus subscriptions hold the registry as a ref.Owner.
func (r *Registry) Valid() bool { return r.state != stateShutdown }

func (r *Registry) Initialized() bool { return r.state == stateInitialized }

// Init registers every discovered command once. Later calls, including
// re-entrant ones from a command's RegisterTo, do nothing.
func (r *Registry) Init() {
	if r.state != stateNew {
		return
	}
	r.state = stateInitialized
	if r.discover == nil {
		return
	}
	found := r.discover.Discover()
	for _, rc := range found {
		r.found.Add(rc.RegisterTo(r))
	}
	r.log.Info("命令控制器初始化完成", zap.Int("discovered", len(found)), zap.Int("tags", len(r.factories)))
}

// Add installs factory for tag, replacing any previous one. The returned
// Binding removes the tag again, whichever factory holds it by then: a
// stale binding from an overwritten Add still clears the current one.
// A subscription dropped behind the registry's back, e.g. by
// Bus.RemoveOwner, is replaced.
func (r *Registry) Add(tag string, factory Factory) binding.Binding {
	if !r.Valid() {
		r.log.Warn("命令控制器已關閉，忽略註冊", zap.String("tag", tag))
		return binding.Inert()
	}
	r.factories[tag] = factory
	if sub, ok := r.subs[tag]; !ok || !sub.Bound() {
		r.subs[tag] = event.Add(r.bus, tag, r.Execute, r)
	}
	ctl := ref.OwnedBy(r, r)
	return binding.New(func() {
		if c, ok := ctl.Get(); ok {
			c.Remove(tag)
		}
	})
}

// AddType registers a factory that builds a fresh *T for every delivery.
func AddType[T any, PT interface {
	*T
	Command
}](r *Registry, tag string) binding.Binding {
	return r.Add(tag, func() Command { return PT(new(T)) })
}

// Remove drops the factory and bus subscription for tag. No-op if absent.
func (r *Registry) Remove(tag string) {
	if sub, ok := r.subs[tag]; ok {
		r.bus.Remove(sub)
		delete(r.subs, tag)
	}
	delete(r.factories, tag)
}

// RemoveAll unregisters every tag.
func (r *Registry) RemoveAll() {
	for _, tag := range r.Tags() {
		r.Remove(tag)
	}
}

// Shutdown releases everything Init registered, removes every tag and
// invalidates outstanding bindings. Idempotent.
func (r *Registry) Shutdown() {
	if r.state == stateShutdown {
		return
	}
	r.found.UnbindAll()
	r.RemoveAll()
	r.state = stateShutdown
	r.log.Info("命令控制器已關閉")
}

func (r *Registry) Has(tag string) bool {
	_, ok := r.factories[tag]
	return ok
}

func (r *Registry) Len() int { return len(r.factories) }

// Tags returns the registered tags, sorted.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.factories))
	for t := range r.factories {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Execute resolves n.Tag to its factory and runs the produced command.
// Missing registrations are logged and swallowed.
func (r *Registry) Execute(n event.Notification) {
	factory, ok := r.factories[n.Tag]
	if !ok {
		r.log.Warn("未知的命令類型", r.deliveryFields(n.Tag)...)
		r.observe(n, OutcomeUnknownTag)
		return
	}
	c := factory()
	if c == nil {
		r.log.Warn("命令工廠未能建立命令", r.deliveryFields(n.Tag)...)
		r.observe(n, OutcomeFactoryFailed)
		return
	}
	c.Execute(n)
	r.observe(n, OutcomeExecuted)
}

func (r *Registry) deliveryFields(tag string) []zap.Field {
	now := r.now()
	return []zap.Field{
		zap.String("tag", tag),
		zap.Time("at", now),
		zap.Duration("uptime", now.Sub(r.started)),
	}
}

func (r *Registry) observe(n event.Notification, o Outcome) {
	if r.observer != nil {
		r.observer.Observe(n, o)
	}
}
