package maps

import (
	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

// Update advances the map by diff milliseconds. Steps run in a fixed order:
// queued actions and deferred moves, active cell updates, due script steps,
// switch and remove lists, notification delivery, grid aging, collision
// tree maintenance and the instance script.
func (m *Map) Update(diff int) {
	m.clockMs.Add(int64(diff))
	m.runActions()

	m.mu.Lock()
	m.processMoveListLocked(&m.creatureMoves)
	m.processMoveListLocked(&m.goMoves)
	m.processMoveListLocked(&m.dynMoves)
	touched, visited := m.markActiveCellsLocked()
	now := m.now()
	for _, o := range visited {
		if o.InWorld {
			m.updateObjectLocked(o, diff, now)
		}
	}
	m.mu.Unlock()

	if u := m.deps.Updater; u != nil {
		for _, o := range visited {
			m.updateExternal(u, o.Handle, diff)
		}
	}

	m.ScriptsProcess()

	m.mu.Lock()
	m.processSwitchListLocked()
	m.removeAllObjectsInRemoveListLocked()
	for g := range touched {
		if ng := m.gridLocked(g); ng != nil {
			ng.DecUnloadActiveLock()
		}
	}
	m.mu.Unlock()

	m.bus.SwapBuffers()
	m.bus.DispatchAll()

	m.updateGrids(touched)
	m.tree.Update(diff)

	if s := m.instanceScript(); s != nil {
		s.Update(diff)
	}
}

func (m *Map) updateExternal(u ObjectUpdater, h ecs.EntityID, diff int) {
	o, ok := m.Object(h)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("object update panicked", zap.Stringer("guid", o.Guid), zap.Any("panic", r))
		}
	}()
	u.UpdateObject(m, o, diff)
}

// markActiveCellsLocked marks every cell within view of a player or active
// object and returns the loaded grids it touched and the objects inside the
// marked cells. Touched grids hold an unload lock until the end of Update.
func (m *Map) markActiveCellsLocked() (map[grid.GridCoord]struct{}, []*world.Object) {
	m.markedCells.ClearAll()
	touched := make(map[grid.GridCoord]struct{})
	var objs []*world.Object

	mark := func(src *world.Object) {
		area := m.layout.CalculateCellArea(src.Pos.X, src.Pos.Y, m.visRange)
		area.Each(func(c grid.CellCoord) {
			id := uint(m.layout.CellID(c))
			if m.markedCells.Test(id) {
				return
			}
			m.markedCells.Set(id)
			cell := m.layout.NewCell(c)
			ng := m.gridLocked(cell.Grid())
			if ng == nil {
				return
			}
			if _, ok := touched[cell.Grid()]; !ok {
				touched[cell.Grid()] = struct{}{}
				ng.IncUnloadActiveLock()
			}
			ng.VisitCell(cell.CellX, cell.CellY, func(_ grid.Bucket, h ecs.EntityID) {
				if o := m.objectLocked(h); o != nil {
					objs = append(objs, o)
				}
			})
		})
	}
	for h := range m.players {
		if o := m.objectLocked(h); o != nil {
			mark(o)
		}
	}
	for h := range m.active {
		if o := m.objectLocked(h); o != nil {
			mark(o)
		}
	}
	return touched, objs
}

// IsCellMarked reports whether a cell was marked active in the last update.
func (m *Map) IsCellMarked(c grid.CellCoord) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.markedCells.Test(uint(m.layout.CellID(c)))
}

// updateObjectLocked runs the built-in timers of one object.
func (m *Map) updateObjectLocked(o *world.Object, diff int, now int64) {
	switch {
	case o.Creature != nil:
		c := o.Creature
		if c.Dead {
			m.respawnDueLocked(o, now)
			return
		}
		if c.DespawnIn > 0 {
			c.DespawnIn -= diff
			if c.DespawnIn <= 0 {
				c.DespawnIn = 0
				m.addToRemoveListLocked(o.Handle)
			}
		}
	case o.GameObject != nil:
		gd := o.GameObject
		if !gd.Spawned {
			m.respawnDueLocked(o, now)
			return
		}
		if gd.ResetIn > 0 {
			gd.ResetIn -= diff
			if gd.ResetIn <= 0 {
				gd.ResetIn = 0
				m.setGOStateLocked(o, world.GOStateReady)
			}
		}
		if gd.DespawnIn > 0 {
			gd.DespawnIn -= diff
			if gd.DespawnIn <= 0 {
				gd.DespawnIn = 0
				m.despawnGameObjectLocked(o)
			}
		}
	case o.DynObject != nil:
		o.DynObject.Duration -= diff
		if o.DynObject.Duration <= 0 {
			m.addToRemoveListLocked(o.Handle)
		}
	}
}
