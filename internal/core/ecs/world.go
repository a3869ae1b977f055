package ecs

// World owns the entity pool and component stores. Destruction is deferred:
// MarkForDestruction queues an entity and FlushDestroyQueue, run by the
// cleanup system at the end of a tick, frees it.
type World struct {
	pool         *EntityPool
	stores       []Removable
	destroyQueue []EntityID
	queued       map[EntityID]bool
}

func NewWorld() *World {
	return &World{
		pool:   NewEntityPool(),
		stores: make([]Removable, 0, 4),
		queued: make(map[EntityID]bool),
	}
}

// Register adds a store whose entries are dropped when an entity is freed.
func (w *World) Register(store Removable) {
	w.stores = append(w.stores, store)
}

func (w *World) CreateEntity() EntityID { return w.pool.Create() }

func (w *World) Alive(id EntityID) bool { return w.pool.Alive(id) }

// Pending reports whether id is queued for destruction.
func (w *World) Pending(id EntityID) bool { return w.queued[id] }

// Len returns the number of live entities, pending ones included.
func (w *World) Len() int { return w.pool.Len() }

// MarkForDestruction queues id for the next flush. Repeated marks and stale
// IDs are ignored.
func (w *World) MarkForDestruction(id EntityID) {
	if !w.pool.Alive(id) || w.queued[id] {
		return
	}
	w.queued[id] = true
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue frees every queued entity and returns how many it freed.
func (w *World) FlushDestroyQueue() int {
	n := len(w.destroyQueue)
	for _, id := range w.destroyQueue {
		for _, s := range w.stores {
			s.Remove(id)
		}
		w.pool.Destroy(id)
		delete(w.queued, id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}
