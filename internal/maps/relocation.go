package maps

import (
	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/collision"
	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

// PlayerRelocation moves a player at once. The cell change happens under the
// write lock, so a concurrent visitor finds the player in exactly one cell.
func (m *Map) PlayerRelocation(h ecs.EntityID, pos world.Position) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.objectLocked(h)
	if p == nil || !p.IsPlayer() || !m.layout.IsValidMapCoord(pos.X, pos.Y) {
		return false
	}
	if !m.moveLocked(p, pos, true) {
		return false
	}
	m.refreshVisibilityLocked(p)
	m.announceLocked(p)
	return true
}

// CreatureRelocation moves a creature. Within its cell the move is
// immediate; a cell change waits for the next update.
func (m *Map) CreatureRelocation(h ecs.EntityID, pos world.Position) bool {
	return m.relocate(h, world.TypeUnit, pos, &m.creatureMoves)
}

// GameObjectRelocation moves a game object, deferring cell changes.
// Transports carry their passengers along.
func (m *Map) GameObjectRelocation(h ecs.EntityID, pos world.Position) bool {
	return m.relocate(h, world.TypeGameObject, pos, &m.goMoves)
}

// DynamicObjectRelocation moves an area effect, deferring cell changes.
func (m *Map) DynamicObjectRelocation(h ecs.EntityID, pos world.Position) bool {
	return m.relocate(h, world.TypeDynamicObject, pos, &m.dynMoves)
}

func (m *Map) relocate(h ecs.EntityID, t world.TypeID, pos world.Position, list *[]ecs.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.Type != t || !m.layout.IsValidMapCoord(pos.X, pos.Y) {
		return false
	}
	m.relocateDeferredLocked(o, pos, list)
	return true
}

// relocateDeferredLocked updates o in place when pos is in its cell, and
// otherwise queues the cell change. An in-cell move cancels a queued one.
func (m *Map) relocateDeferredLocked(o *world.Object, pos world.Position, list *[]ecs.EntityID) {
	if m.layout.CellAt(pos.X, pos.Y).DiffCell(o.Cell) {
		o.NewPos = pos
		if o.MoveState == world.MoveNone {
			*list = append(*list, o.Handle)
		}
		o.MoveState = world.MoveActive
		return
	}
	if o.MoveState == world.MoveActive {
		o.MoveState = world.MoveInactive
	}
	old := o.Pos
	o.Pos = pos
	m.afterMoveLocked(o, old)
}

// PendingMove reports whether h waits in a move list.
func (m *Map) PendingMove(h ecs.EntityID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o := m.objectLocked(h)
	return o != nil && o.MoveState == world.MoveActive
}

// moveLocked puts o at pos, moving it between cells when needed. With load
// an unloaded target grid is loaded; without it the move fails.
func (m *Map) moveLocked(o *world.Object, pos world.Position, load bool) bool {
	newCell := m.layout.CellAt(pos.X, pos.Y)
	if !newCell.DiffCell(o.Cell) {
		o.Pos = pos
		return true
	}
	var ng *grid.NGrid
	if load {
		ng = m.ensureGridLoadedLocked(newCell)
	} else {
		ng = m.gridLocked(newCell.Grid())
	}
	if ng == nil {
		return false
	}
	b := bucketFor(o.Type)
	old := m.gridLocked(o.Cell.Grid())
	if old == nil || !old.Remove(o.Cell.CellX, o.Cell.CellY, b, o.Handle) {
		m.violation("moving object missing from its cell", zap.Stringer("guid", o.Guid))
		m.purgeHandleLocked(o.Handle, b)
	}
	if old != ng {
		_, active := m.active[o.Handle]
		if old != nil {
			if o.IsPlayer() {
				old.DecPlayers()
			}
			if active {
				old.DecActive()
			}
		}
		if o.IsPlayer() {
			ng.IncPlayers()
		}
		if active {
			ng.IncActive()
		}
	}
	ng.Add(newCell.CellX, newCell.CellY, b, o.Handle)
	o.Cell = newCell
	o.Pos = pos
	return true
}

// afterMoveLocked refreshes what depends on an object's position.
func (m *Map) afterMoveLocked(o *world.Object, old world.Position) {
	if gd := o.GameObject; gd != nil {
		if gd.Model != nil {
			d := o.Pos.Vec().Sub(old.Vec())
			b := gd.Model.Bounds
			m.tree.Relocate(gd.Model, collision.AABox{Low: b.Low.Add(d), High: b.High.Add(d)})
		}
		if gd.Kind == world.GameObjectTransport {
			m.carryPassengersLocked(o, old)
		}
	}
	m.announceLocked(o)
}

// processMoveListLocked applies the cell changes queued in list.
func (m *Map) processMoveListLocked(list *[]ecs.EntityID) {
	pending := *list
	*list = nil
	for _, h := range pending {
		o := m.objectLocked(h)
		if o == nil {
			continue
		}
		if o.MoveState != world.MoveActive {
			o.MoveState = world.MoveNone
			continue
		}
		o.MoveState = world.MoveNone
		old := o.Pos
		if !m.moveLocked(o, o.NewPos, o.Active) {
			m.failedMoveLocked(o)
			continue
		}
		m.afterMoveLocked(o, old)
	}
}

// failedMoveLocked handles an object whose target grid is not loaded.
// Spawned creatures go home; everything else is removed.
func (m *Map) failedMoveLocked(o *world.Object) {
	if c := o.Creature; c != nil && !c.Temporary {
		old := o.Pos
		if m.moveLocked(o, c.Home, false) {
			m.afterMoveLocked(o, old)
			return
		}
	}
	m.addToRemoveListLocked(o.Handle)
}
