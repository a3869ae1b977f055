package ecs

import "testing"

func TestEntityPool_GenerationInvalidatesStaleIDs(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	if !p.Alive(a) {
		t.Fatal("new entity should be alive")
	}

	p.Destroy(a)
	p.Destroy(a)
	if p.Alive(a) {
		t.Error("destroyed entity should not be alive")
	}

	b := p.Create()
	if b.Index() != a.Index() {
		t.Errorf("slot not reused: a=%d b=%d", a.Index(), b.Index())
	}
	if b.Generation() != a.Generation()+1 {
		t.Errorf("generation = %d, want %d", b.Generation(), a.Generation()+1)
	}
	if p.Alive(a) {
		t.Error("stale ID must stay dead after slot reuse")
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d, want 1", p.Len())
	}
}

func TestEntityPool_UnknownID(t *testing.T) {
	p := NewEntityPool()
	if p.Alive(NewEntityID(7, 0)) {
		t.Error("never-created ID should not be alive")
	}
	p.Destroy(NewEntityID(7, 0))
}

func TestWorld_DeferredDestroy(t *testing.T) {
	w := NewWorld()
	names := NewStore[string]()
	w.Register(names)

	id := w.CreateEntity()
	name := "door"
	names.Set(id, &name)

	w.MarkForDestruction(id)
	w.MarkForDestruction(id)

	if !w.Alive(id) || !w.Pending(id) {
		t.Fatal("entity should stay alive and pending until flush")
	}
	if n := w.FlushDestroyQueue(); n != 1 {
		t.Errorf("flushed %d, want 1", n)
	}
	if w.Alive(id) || w.Pending(id) {
		t.Error("entity should be gone after flush")
	}
	if _, ok := names.Get(id); ok || names.Len() != 0 {
		t.Error("component should be removed on flush")
	}
	if n := w.FlushDestroyQueue(); n != 0 {
		t.Errorf("second flush freed %d, want 0", n)
	}
}
