package ecs

// World owns the handle pool, the stores tracked against it and a deferred
// destruction queue. Destruction is two-phase: MarkForDestruction during iteration,
// FlushDestroyQueue once iteration is over.
type World struct {
	pool         *EntityPool
	stores       []Removable
	destroyQueue []EntityID
	queued       map[EntityID]struct{}
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		destroyQueue: make([]EntityID, 0, 64),
		queued:       make(map[EntityID]struct{}, 64),
	}
}

func (w *World) Pool() *EntityPool { return w.pool }

// Track registers a store to be cleared of every handle the world destroys.
func (w *World) Track(store Removable) {
	w.stores = append(w.stores, store)
}

func (w *World) release(id EntityID) {
	for _, s := range w.stores {
		s.Remove(id)
	}
	w.pool.Destroy(id)
}

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// MarkForDestruction queues a handle for the next flush. Marking twice is a no-op.
func (w *World) MarkForDestruction(id EntityID) bool {
	if _, ok := w.queued[id]; ok {
		return false
	}
	w.queued[id] = struct{}{}
	w.destroyQueue = append(w.destroyQueue, id)
	return true
}

// Marked reports whether id waits in the destroy queue.
func (w *World) Marked(id EntityID) bool {
	_, ok := w.queued[id]
	return ok
}

// PendingDestruction returns the number of queued handles.
func (w *World) PendingDestruction() int { return len(w.destroyQueue) }

// FlushDestroyQueue runs beforeDestroy for each queued handle, then clears its
// stores and releases it. Handles queued by beforeDestroy are flushed in the
// same call.
func (w *World) FlushDestroyQueue(beforeDestroy func(EntityID)) {
	for len(w.destroyQueue) > 0 {
		id := w.destroyQueue[0]
		w.destroyQueue = w.destroyQueue[1:]
		delete(w.queued, id)
		if !w.pool.Alive(id) {
			continue
		}
		if beforeDestroy != nil {
			beforeDestroy(id)
		}
		w.release(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
}

// Destroy releases id immediately, bypassing the queue.
func (w *World) Destroy(id EntityID) {
	if _, ok := w.queued[id]; ok {
		delete(w.queued, id)
		for i, q := range w.destroyQueue {
			if q == id {
				w.destroyQueue = append(w.destroyQueue[:i], w.destroyQueue[i+1:]...)
				break
			}
		}
	}
	w.release(id)
}
