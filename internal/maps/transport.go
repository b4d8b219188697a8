package maps

import (
	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/world"
)

// GetTransportForPos returns the transport whose collision bounds contain the
// point, or zero.
func (m *Map) GetTransportForPos(phaseMask uint32, x, y, z float32) ecs.EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transportForPosLocked(phaseMask, x, y, z)
}

func (m *Map) transportForPosLocked(phaseMask uint32, x, y, z float32) ecs.EntityID {
	p := world.Position{X: x, Y: y, Z: z}.Vec()
	for h := range m.transports {
		t := m.objectLocked(h)
		if t == nil || !t.InPhase(phaseMask) || t.GameObject.Model == nil {
			continue
		}
		if t.GameObject.Model.Bounds.Contains(p) {
			return h
		}
	}
	return 0
}

// Transports returns every transport on the map.
func (m *Map) Transports() []ecs.EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ecs.EntityID, 0, len(m.transports))
	for h := range m.transports {
		out = append(out, h)
	}
	return out
}

// Board puts passenger on transport.
func (m *Map) Board(passenger, transport ecs.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(passenger)
	if o == nil {
		return false
	}
	if _, ok := m.transports[transport]; !ok {
		return false
	}
	m.boardLocked(o, transport)
	return true
}

func (m *Map) boardLocked(o *world.Object, transport ecs.EntityID) {
	if o.Transport == transport {
		return
	}
	if o.Transport != 0 {
		if prev := m.objectLocked(o.Transport); prev != nil {
			prev.GameObject.Passengers = removeHandle(prev.GameObject.Passengers, o.Handle)
		}
	}
	t := m.objectLocked(transport)
	t.GameObject.Passengers = append(t.GameObject.Passengers, o.Handle)
	o.Transport = transport
}

func (m *Map) detachPassengersLocked(t *world.Object) {
	for _, ph := range t.GameObject.Passengers {
		if p := m.objectLocked(ph); p != nil && p.Transport == t.Handle {
			p.Transport = 0
		}
	}
	t.GameObject.Passengers = nil
}

// carryPassengersLocked shifts every passenger by the transport's move.
func (m *Map) carryPassengersLocked(t *world.Object, old world.Position) {
	dx, dy, dz := t.Pos.X-old.X, t.Pos.Y-old.Y, t.Pos.Z-old.Z
	for _, ph := range append([]ecs.EntityID(nil), t.GameObject.Passengers...) {
		p := m.objectLocked(ph)
		if p == nil {
			continue
		}
		prev := p.Pos
		np := world.Position{X: prev.X + dx, Y: prev.Y + dy, Z: prev.Z + dz, O: prev.O}
		if !m.layout.IsValidMapCoord(np.X, np.Y) || !m.moveLocked(p, np, p.IsPlayer() || p.Active) {
			m.detachLocked(p)
			continue
		}
		if p.IsPlayer() {
			m.refreshVisibilityLocked(p)
		}
		m.announceLocked(p)
	}
}

func (m *Map) detachLocked(p *world.Object) {
	if t := m.objectLocked(p.Transport); t != nil && t.GameObject != nil {
		t.GameObject.Passengers = removeHandle(t.GameObject.Passengers, p.Handle)
	}
	p.Transport = 0
}

// AllTransportsEmpty reports whether no player rides any transport.
func (m *Map) AllTransportsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for h := range m.transports {
		t := m.objectLocked(h)
		if t == nil {
			continue
		}
		for _, ph := range t.GameObject.Passengers {
			if p := m.objectLocked(ph); p != nil && p.IsPlayer() {
				return false
			}
		}
	}
	return true
}

// AllTransportsRemovePassengers unboards everyone from every transport.
func (m *Map) AllTransportsRemovePassengers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.transports {
		if t := m.objectLocked(h); t != nil {
			m.detachPassengersLocked(t)
		}
	}
}
