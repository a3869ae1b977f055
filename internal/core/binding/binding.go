package binding

// Binding is one reversible registration. Unbind releases it exactly once;
// later calls are no-ops.
type Binding interface {
	Unbind()
	Bound() bool
}

type funcBinding struct {
	release func()
	bound   bool
}

// New returns a bound Binding that calls release on the first Unbind.
func New(release func()) Binding {
	return &funcBinding{release: release, bound: true}
}

// Inert returns a Binding that was never bound. Used when a registration is
// skipped, e.g. a command without a tag.
func Inert() Binding {
	return &funcBinding{}
}

func (b *funcBinding) Unbind() {
	if !b.bound {
		return
	}
	// Flip first: release may re-enter Unbind through a callback.
	b.bound = false
	if b.release != nil {
		b.release()
	}
}

func (b *funcBinding) Bound() bool { return b.bound }

// Then composes a controller-level binding with local cleanup. On Unbind the
// inner binding is released first, then after runs. after must guard its own
// resources; it runs whether or not they are still alive.
func Then(inner Binding, after func()) Binding {
	return New(func() {
		if inner != nil {
			inner.Unbind()
		}
		if after != nil {
			after()
		}
	})
}

// Group retains bindings for bulk teardown.
type Group struct {
	items []Binding
}

func (g *Group) Add(b Binding) {
	if b == nil {
		return
	}
	g.items = append(g.items, b)
}

func (g *Group) Len() int { return len(g.items) }

// UnbindAll releases every retained binding and empties the group. The list
// is detached before unbinding so a binding that adds to the group during
// its release is kept for the next round.
func (g *Group) UnbindAll() {
	items := g.items
	g.items = nil
	for _, b := range items {
		b.Unbind()
	}
}
