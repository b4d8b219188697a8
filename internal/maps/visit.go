package maps

import (
	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/core/event"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

// VisitCells calls fn for every object placed in area. Only grids that are
// already loaded are visited. The object set is captured under the read lock
// and fn runs after it is released, so fn may call back into the map.
func (m *Map) VisitCells(area grid.CellArea, fn func(*world.Object)) {
	m.mu.RLock()
	objs := m.collectLocked(area, nil)
	m.mu.RUnlock()
	for _, o := range objs {
		fn(o)
	}
}

// VisitNearby calls fn for every object within radius of x, y.
func (m *Map) VisitNearby(x, y, radius float32, fn func(*world.Object)) {
	center := world.Position{X: x, Y: y}
	m.mu.RLock()
	objs := m.collectLocked(m.layout.CalculateCellArea(x, y, radius), nil)
	m.mu.RUnlock()
	for _, o := range objs {
		if o.Pos.Dist2d(center) <= radius {
			fn(o)
		}
	}
}

func (m *Map) collectLocked(area grid.CellArea, out []*world.Object) []*world.Object {
	area.Each(func(c grid.CellCoord) {
		cell := m.layout.NewCell(c)
		ng := m.gridLocked(cell.Grid())
		if ng == nil {
			return
		}
		ng.VisitCell(cell.CellX, cell.CellY, func(_ grid.Bucket, h ecs.EntityID) {
			if o := m.objectLocked(h); o != nil {
				out = append(out, o)
			}
		})
	})
	return out
}

func (m *Map) canSeeLocked(viewer, target *world.Object) bool {
	if viewer == target || !target.InWorld || !viewer.InPhase(target.PhaseMask) {
		return false
	}
	if target.GameObject != nil && !target.GameObject.Spawned {
		return false
	}
	return viewer.Pos.Dist2d(target.Pos) <= m.visRange
}

// refreshVisibilityLocked recomputes everything player p sees and reports
// the difference.
func (m *Map) refreshVisibilityLocked(p *world.Object) {
	if p.Player == nil {
		return
	}
	seen := make(map[ecs.EntityID]struct{})
	for _, o := range m.collectLocked(m.layout.CalculateCellArea(p.Pos.X, p.Pos.Y, m.visRange), nil) {
		if m.canSeeLocked(p, o) {
			seen[o.Handle] = struct{}{}
		}
	}
	var entered, left []ecs.EntityID
	for h := range seen {
		if _, ok := p.Player.Visible[h]; !ok {
			entered = append(entered, h)
		}
	}
	for h := range p.Player.Visible {
		if _, ok := seen[h]; !ok {
			left = append(left, h)
		}
	}
	p.Player.Visible = seen
	m.emitVisibility(p.Handle, entered, left)
}

// announceLocked updates every player's view of o after o appeared, moved or
// changed state.
func (m *Map) announceLocked(o *world.Object) {
	for h := range m.players {
		p := m.objectLocked(h)
		if p == nil || p == o {
			continue
		}
		_, had := p.Player.Visible[o.Handle]
		sees := m.canSeeLocked(p, o)
		switch {
		case sees && !had:
			p.Player.Visible[o.Handle] = struct{}{}
			m.emitVisibility(h, []ecs.EntityID{o.Handle}, nil)
		case !sees && had:
			delete(p.Player.Visible, o.Handle)
			m.emitVisibility(h, nil, []ecs.EntityID{o.Handle})
		}
	}
}

// forgetVisibleLocked drops h from every player's view.
func (m *Map) forgetVisibleLocked(h ecs.EntityID) {
	for ph := range m.players {
		p := m.objectLocked(ph)
		if p == nil {
			continue
		}
		if _, ok := p.Player.Visible[h]; ok {
			delete(p.Player.Visible, h)
			m.emitVisibility(ph, nil, []ecs.EntityID{h})
		}
	}
}

func (m *Map) emitVisibility(player ecs.EntityID, entered, left []ecs.EntityID) {
	if len(entered) == 0 && len(left) == 0 {
		return
	}
	event.Emit(m.bus, event.VisibilityChanged{MapID: m.id, InstanceID: m.instanceID, Player: player, Entered: entered, Left: left})
}

// CanSee reports whether player currently sees target.
func (m *Map) CanSee(player, target ecs.EntityID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.objectLocked(player)
	if p == nil || p.Player == nil {
		return false
	}
	_, ok := p.Player.Visible[target]
	return ok
}
