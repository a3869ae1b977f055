// Package scene is a small object graph on top of the ECS world. Nodes carry
// components; destroying a node invalidates it immediately and frees its
// storage at the next Flush. The command layer uses nodes as owners and
// walks them to discover self-registering commands.
package scene

import (
	"github.com/l1jgo/cmdbus/internal/command"
	"github.com/l1jgo/cmdbus/internal/core/ecs"
	"go.uber.org/zap"
)

type nodeData struct {
	handle     *Node
	name       string
	parent     *Node
	children   []*Node
	components []any
}

// Scene owns every node. Game loop goroutine only.
type Scene struct {
	world *ecs.World
	nodes *ecs.Store[nodeData]
	root  *Node
	log   *zap.Logger
}

func New(log *zap.Logger) *Scene {
	s := &Scene{
		world: ecs.NewWorld(),
		nodes: ecs.NewStore[nodeData](),
		log:   log,
	}
	s.world.Register(s.nodes)
	s.root = s.newNode("root", nil)
	return s
}

func (s *Scene) Root() *Node { return s.root }

// Len returns the number of nodes that still hold storage.
func (s *Scene) Len() int { return s.nodes.Len() }

// Flush frees every destroyed node. Called by the cleanup system.
func (s *Scene) Flush() int {
	n := s.world.FlushDestroyQueue()
	if n > 0 {
		s.log.Debug("場景節點已釋放", zap.Int("count", n))
	}
	return n
}

func (s *Scene) newNode(name string, parent *Node) *Node {
	id := s.world.CreateEntity()
	n := &Node{scene: s, id: id}
	s.nodes.Set(id, &nodeData{handle: n, name: name, parent: parent})
	if parent != nil {
		if pd := parent.data(); pd != nil {
			pd.children = append(pd.children, n)
		}
	}
	return n
}

// Node is a handle to one scene entity. Handles are unique per entity, so
// they can be compared and used as bus owners.
type Node struct {
	scene *Scene
	id    ecs.EntityID
}

func (n *Node) ID() ecs.EntityID { return n.id }

func (n *Node) data() *nodeData {
	if !n.scene.world.Alive(n.id) {
		return nil
	}
	d, _ := n.scene.nodes.Get(n.id)
	return d
}

// Valid reports whether the node exists and has not been destroyed.
func (n *Node) Valid() bool {
	return n.scene.world.Alive(n.id) && !n.scene.world.Pending(n.id)
}

func (n *Node) Name() string {
	if d := n.data(); d != nil {
		return d.name
	}
	return ""
}

func (n *Node) Parent() *Node {
	if d := n.data(); d != nil {
		return d.parent
	}
	return nil
}

// Children returns the node's live children in creation order.
func (n *Node) Children() []*Node {
	d := n.data()
	if d == nil {
		return nil
	}
	out := make([]*Node, len(d.children))
	copy(out, d.children)
	return out
}

// Child creates a new child node. On a destroyed node it returns a node that
// is already invalid.
func (n *Node) Child(name string) *Node {
	if !n.Valid() {
		c := n.scene.newNode(name, nil)
		n.scene.world.MarkForDestruction(c.id)
		return c
	}
	return n.scene.newNode(name, n)
}

// Spawn satisfies command.Spawner.
func (n *Node) Spawn(name string) command.Destroyable {
	return n.Child(name)
}

// Find returns the first direct child called name.
func (n *Node) Find(name string) *Node {
	for _, c := range n.Children() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Attach adds a component to the node.
func (n *Node) Attach(c any) {
	if d := n.data(); d != nil {
		d.components = append(d.components, c)
	}
}

func (n *Node) Components() []any {
	d := n.data()
	if d == nil {
		return nil
	}
	out := make([]any, len(d.components))
	copy(out, d.components)
	return out
}

// Destroy invalidates the node and its subtree and detaches it from its
// parent. Storage is released on the next Scene.Flush. Idempotent.
func (n *Node) Destroy() {
	if !n.Valid() {
		return
	}
	if p := n.Parent(); p != nil {
		if pd := p.data(); pd != nil {
			pd.children = without(pd.children, n)
		}
	}
	n.markSubtree()
}

func (n *Node) markSubtree() {
	for _, c := range n.Children() {
		c.markSubtree()
	}
	n.scene.world.MarkForDestruction(n.id)
}

// Discover walks the subtree depth first, in creation order, and returns
// every attached component that registers itself as a command.
func (n *Node) Discover() []command.RegistersCommand {
	var out []command.RegistersCommand
	n.walk(func(node *Node) {
		for _, c := range node.Components() {
			if rc, ok := c.(command.RegistersCommand); ok {
				out = append(out, rc)
			}
		}
	})
	return out
}

func (n *Node) walk(fn func(*Node)) {
	if !n.Valid() {
		return
	}
	fn(n)
	for _, c := range n.Children() {
		c.walk(fn)
	}
}

func without(list []*Node, n *Node) []*Node {
	out := list[:0]
	for _, x := range list {
		if x != n {
			out = append(out, x)
		}
	}
	return out
}
