package command

import (
	"reflect"
	"testing"

	"github.com/l1jgo/cmdbus/internal/core/binding"
	"github.com/l1jgo/cmdbus/internal/core/event"
)

// node is a minimal Destroyable/Spawner for set tests.
type node struct {
	name      string
	destroyed bool
	children  []*node
}

func (n *node) Valid() bool { return !n.destroyed }
func (n *node) Destroy()    { n.destroyed = true }

func (n *node) Spawn(name string) Destroyable {
	c := &node{name: name}
	n.children = append(n.children, c)
	return c
}

type countingCommand struct {
	tag  string
	regs *int
}

func (c *countingCommand) RegisterTo(r *Registry) binding.Binding {
	*c.regs++
	return r.Add(c.tag, func() Command { return Func(func(event.Notification) {}) })
}

type pingCommand struct{ runs int }

func (*pingCommand) Tag() string                  { return "ping" }
func (p *pingCommand) Execute(event.Notification) { p.runs++ }

func TestSet_EmptyRegisterUnregister(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	s := NewSet("empty", WithRegistry(r))

	s.RegisterCommands()
	if !s.Registered() {
		t.Error("empty set should still mark itself registered")
	}
	s.UnregisterCommands()
	if s.Registered() {
		t.Error("set should be unregistered")
	}
	if r.Len() != 0 {
		t.Errorf("registry has %d tags, want 0", r.Len())
	}
}

func TestSet_RegisterIdempotent(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	regs := 0
	cmds := []RegistersCommand{
		&countingCommand{tag: "a", regs: &regs},
		&countingCommand{tag: "b", regs: &regs},
	}
	s := NewSet("scene", WithRegistry(r), WithSetDiscoverer(DiscoverFunc(func() []RegistersCommand { return cmds })))

	s.RegisterCommands()
	s.RegisterCommands()

	if regs != 2 {
		t.Errorf("RegisterTo called %d times, want 2", regs)
	}
	if s.Len() != 2 {
		t.Errorf("retained %d bindings, want 2", s.Len())
	}
}

func TestSet_RoundTripLeavesNoTags(t *testing.T) {
	r, bus, _ := newTestRegistry(t)
	regs := 0
	s := NewSet("scene",
		WithRegistry(r),
		WithSetDiscoverer(DiscoverFunc(func() []RegistersCommand {
			return []RegistersCommand{&countingCommand{tag: "a", regs: &regs}}
		})),
		WithCreator(func() []RegistersCommand {
			return []RegistersCommand{NewConfigurable("b", nil, nil), NewConfigurable("", nil, nil)}
		}),
	)

	s.RegisterCommands()
	if want := []string{"a", "b"}; !reflect.DeepEqual(r.Tags(), want) {
		t.Fatalf("Tags = %v, want %v", r.Tags(), want)
	}
	s.UnregisterCommands()
	s.UnregisterCommands()

	if r.Len() != 0 || len(bus.Tags()) != 0 {
		t.Errorf("round trip left registry=%v bus=%v", r.Tags(), bus.Tags())
	}
	if s.Len() != 0 {
		t.Errorf("set retained %d bindings", s.Len())
	}

	s.RegisterCommands()
	if r.Len() != 2 {
		t.Errorf("re-registration installed %d tags, want 2", r.Len())
	}
}

func TestSet_ActivateSendsTag(t *testing.T) {
	r, bus, _ := newTestRegistry(t)
	var got []string
	event.Add(bus, "init-scene", func(n event.Notification) { got = append(got, n.Tag) }, nil)
	s := NewSet("scene", WithRegistry(r), WithSendOnActivate("init-scene"))

	s.Activate()
	s.Deactivate()

	if want := []string{"init-scene"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSet_ActivateTwiceSendsOnce(t *testing.T) {
	r, bus, _ := newTestRegistry(t)
	sent := 0
	event.Add(bus, "opened", func(event.Notification) { sent++ }, nil)
	s := NewSet("lobby", WithRegistry(r), WithSendOnActivate("opened"))

	s.Activate()
	s.Activate()
	if sent != 1 {
		t.Fatalf("sent %d times in one activation window, want 1", sent)
	}

	s.Deactivate()
	s.Activate()
	if sent != 2 {
		t.Errorf("sent %d times after reactivation, want 2", sent)
	}
}

func TestAddCommand_Deferred(t *testing.T) {
	r, bus, _ := newTestRegistry(t)
	s := NewSet("scene", WithRegistry(r))

	cmd := AddCommand[pingCommand](s, false)
	if r.Has("ping") {
		t.Fatal("command added before registration should be deferred")
	}

	s.RegisterCommands()
	bus.Send("ping", nil)
	if cmd.runs != 1 {
		t.Errorf("runs = %d, want 1", cmd.runs)
	}
}

func TestAddCommand_ImmediateWhenRegistered(t *testing.T) {
	r, bus, _ := newTestRegistry(t)
	host := &node{name: "scene"}
	s := NewSet("scene", WithRegistry(r), WithSpawner(host))
	s.RegisterCommands()

	cmd := AddCommand[pingCommand](s, false)
	bus.Send("ping", nil)
	if cmd.runs != 1 {
		t.Fatalf("runs = %d, want 1", cmd.runs)
	}
	if len(host.children) != 1 || host.children[0].name != "pingCommand" {
		t.Fatalf("expected a spawned child owner, got %+v", host.children)
	}

	s.UnregisterCommands()
	if !host.children[0].destroyed {
		t.Error("owned command should be destroyed on unbind")
	}
	if r.Has("ping") {
		t.Error("tag should be removed on unregister")
	}

	s.RegisterCommands()
	if r.Has("ping") {
		t.Error("destroyed command should not be registered again")
	}
}

func TestAddCommand_DisableAutoRegistration(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	s := NewSet("scene", WithRegistry(r))
	s.RegisterCommands()

	AddCommand[pingCommand](s, true)
	if r.Has("ping") {
		t.Fatal("auto registration was disabled")
	}

	s.UnregisterCommands()
	s.RegisterCommands()
	if !r.Has("ping") {
		t.Error("command should be picked up by the next registration")
	}
}

func TestSet_DefaultsToGlobalRegistry(t *testing.T) {
	t.Cleanup(ResetGlobal)
	ResetGlobal()

	s := NewSet("global")
	AddCommand[pingCommand](s, false)
	s.RegisterCommands()

	if !Get().Has("ping") {
		t.Error("set without WithRegistry should use the process-wide registry")
	}
	s.UnregisterCommands()
	if Get().Has("ping") {
		t.Error("tag should be removed from the process-wide registry")
	}
}
