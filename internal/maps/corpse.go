package maps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

// CorpseRecord is the persisted form of a player corpse.
type CorpseRecord struct {
	Owner      world.ObjectGuid
	MapID      uint32
	InstanceID uint32
	Pos        world.Position
	PhaseMask  uint32
	Kind       world.CorpseType
	CreatedAt  int64
}

// CorpseWrite is one pending change to the persisted corpse table.
type CorpseWrite struct {
	Record    CorpseRecord
	Delete    bool
	DeleteAll bool // Record carries only the map and instance ids
}

// CorpseStore loads persisted corpses.
type CorpseStore interface {
	LoadCorpses(ctx context.Context, mapID, instanceID uint32) ([]CorpseRecord, error)
}

func (m *Map) corpseRecord(o *world.Object) CorpseRecord {
	return CorpseRecord{
		Owner:      o.Corpse.Owner,
		MapID:      m.id,
		InstanceID: m.instanceID,
		Pos:        o.Pos,
		PhaseMask:  o.PhaseMask,
		Kind:       o.Corpse.Kind,
		CreatedAt:  o.Corpse.CreatedAt,
	}
}

func (m *Map) queueCorpseWrite(w CorpseWrite) {
	m.pendingMu.Lock()
	m.corpseWrites = append(m.corpseWrites, w)
	m.pendingMu.Unlock()
}

// DrainCorpseWrites hands the queued corpse writes to the caller.
func (m *Map) DrainCorpseWrites() []CorpseWrite {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	out := m.corpseWrites
	m.corpseWrites = nil
	return out
}

// AddCorpse registers a corpse. It enters its cell right away when the grid
// is loaded and otherwise waits in the corpse index until the grid loads.
func (m *Map) AddCorpse(c *world.Object) bool {
	if c.Corpse == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.addCorpseLocked(c) {
		return false
	}
	if c.Corpse.Kind != world.CorpseBones {
		m.queueCorpseWrite(CorpseWrite{Record: m.corpseRecord(c)})
	}
	return true
}

func (m *Map) addCorpseLocked(c *world.Object) bool {
	if !m.layout.IsValidMapCoord(c.Pos.X, c.Pos.Y) {
		return false
	}
	if !c.Corpse.Owner.IsEmpty() && c.Corpse.Kind != world.CorpseBones {
		if _, ok := m.corpsesByPlayer[c.Corpse.Owner]; ok {
			m.violation("second corpse for player", zap.Stringer("owner", c.Corpse.Owner))
			return false
		}
	}
	c.Corpse.InstanceID = m.instanceID
	cell := m.layout.CellAt(c.Pos.X, c.Pos.Y)
	if ng := m.gridLocked(cell.Grid()); ng != nil && ng.ObjectDataLoaded() {
		if !m.placeLocked(c, ng, cell) {
			return false
		}
		m.announceLocked(c)
		return true
	}
	h := m.objects.CreateEntity()
	c.Handle = h
	c.Cell = cell
	c.InWorld = false
	m.store.Set(h, c)
	m.byGuid[c.Guid] = h
	m.indexCorpseLocked(c)
	return true
}

func (m *Map) indexCorpseLocked(c *world.Object) {
	id := m.layout.CellID(c.Cell.Coord(m.layout))
	set := m.corpsesByCell[id]
	if set == nil {
		set = make(map[ecs.EntityID]struct{})
		m.corpsesByCell[id] = set
	}
	set[c.Handle] = struct{}{}
	if !c.Corpse.Owner.IsEmpty() && c.Corpse.Kind != world.CorpseBones {
		m.corpsesByPlayer[c.Corpse.Owner] = c.Handle
	}
}

func (m *Map) unindexCorpseLocked(c *world.Object) {
	id := m.layout.CellID(c.Cell.Coord(m.layout))
	if set := m.corpsesByCell[id]; set != nil {
		delete(set, c.Handle)
		if len(set) == 0 {
			delete(m.corpsesByCell, id)
		}
	}
	if cur, ok := m.corpsesByPlayer[c.Corpse.Owner]; ok && cur == c.Handle {
		delete(m.corpsesByPlayer, c.Corpse.Owner)
	}
}

// restoreCorpsesLocked puts indexed corpses back into the cells of a grid
// that has just loaded.
func (m *Map) restoreCorpsesLocked(ng *grid.NGrid) {
	g := ng.Coord()
	n := m.layout.CellsPerGrid
	for cy := 0; cy < n; cy++ {
		for cx := 0; cx < n; cx++ {
			cell := grid.Cell{GridX: g.X, GridY: g.Y, CellX: cx, CellY: cy}
			for h := range m.corpsesByCell[m.layout.CellID(cell.Coord(m.layout))] {
				c := m.objectLocked(h)
				if c == nil || c.InWorld {
					continue
				}
				ng.Add(cx, cy, bucketCorpse, h)
				c.InWorld = true
			}
		}
	}
}

// RemoveCorpse deletes a corpse and releases its handle.
func (m *Map) RemoveCorpse(h ecs.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.objectLocked(h)
	if c == nil || c.Corpse == nil {
		return false
	}
	m.removeCorpseLocked(c)
	m.objects.Destroy(h)
	return true
}

func (m *Map) removeCorpseLocked(c *world.Object) {
	if c.InWorld {
		m.removeLocked(c, true)
	} else {
		m.unindexCorpseLocked(c)
		if cur, ok := m.byGuid[c.Guid]; ok && cur == c.Handle {
			delete(m.byGuid, c.Guid)
		}
	}
	if c.Corpse.Kind != world.CorpseBones {
		m.queueCorpseWrite(CorpseWrite{Record: m.corpseRecord(c), Delete: true})
	}
}

// ConvertCorpseToBones replaces a player's corpse with ownerless bones at the
// same spot and returns the bones.
func (m *Map) ConvertCorpseToBones(owner world.ObjectGuid) *world.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.convertCorpseToBonesLocked(owner)
}

func (m *Map) convertCorpseToBonesLocked(owner world.ObjectGuid) *world.Object {
	h, ok := m.corpsesByPlayer[owner]
	if !ok {
		return nil
	}
	c := m.objectLocked(h)
	if c == nil {
		delete(m.corpsesByPlayer, owner)
		return nil
	}
	m.removeCorpseLocked(c)
	m.objects.Destroy(h)

	bones := world.NewCorpse(m.GenerateGuid(world.HighCorpse, 0), world.EmptyGuid, c.Pos, c.PhaseMask, world.CorpseBones, m.now())
	if !m.addCorpseLocked(bones) {
		return nil
	}
	return bones
}

// RemoveOldCorpses turns expired corpses into bones and removes expired bones.
func (m *Map) RemoveOldCorpses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	bonesTTL := int64(m.deps.BonesDecay.Seconds())
	corpseTTL := int64(m.deps.CorpseDecay.Seconds())

	var expired []*world.Object
	for _, set := range m.corpsesByCell {
		for h := range set {
			c := m.objectLocked(h)
			if c == nil {
				continue
			}
			ttl := corpseTTL
			if c.Corpse.Kind == world.CorpseBones {
				ttl = bonesTTL
			}
			if c.Corpse.CreatedAt < now-ttl {
				expired = append(expired, c)
			}
		}
	}
	for _, c := range expired {
		if c.Corpse.Kind != world.CorpseBones && !c.Corpse.Owner.IsEmpty() {
			m.convertCorpseToBonesLocked(c.Corpse.Owner)
			continue
		}
		m.removeCorpseLocked(c)
		m.objects.Destroy(c.Handle)
	}
}

// GetCorpsesInCell returns the corpses indexed under a map-wide cell id.
func (m *Map) GetCorpsesInCell(cellID uint32) []ecs.EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.corpsesByCell[cellID]
	out := make([]ecs.EntityID, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// GetCorpseByPlayer returns the corpse of a player.
func (m *Map) GetCorpseByPlayer(owner world.ObjectGuid) (ecs.EntityID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.corpsesByPlayer[owner]
	return h, ok
}

// LoadCorpseData reads persisted corpses for this map instance.
func (m *Map) LoadCorpseData(ctx context.Context) error {
	if m.deps.Corpses == nil {
		return nil
	}
	recs, err := m.deps.Corpses.LoadCorpses(ctx, m.id, m.instanceID)
	if err != nil {
		return fmt.Errorf("load corpses: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		c := world.NewCorpse(m.GenerateGuid(world.HighCorpse, 0), r.Owner, r.Pos, r.PhaseMask, r.Kind, r.CreatedAt)
		if !m.addCorpseLocked(c) {
			m.log.Warn("skipping persisted corpse", zap.Stringer("owner", r.Owner))
		}
	}
	return nil
}

// DeleteCorpseData removes every corpse and queues a wholesale delete.
func (m *Map) DeleteCorpseData() {
	m.mu.Lock()
	var all []*world.Object
	for _, set := range m.corpsesByCell {
		for h := range set {
			if c := m.objectLocked(h); c != nil {
				all = append(all, c)
			}
		}
	}
	for _, c := range all {
		if c.InWorld {
			m.removeLocked(c, true)
		} else {
			m.unindexCorpseLocked(c)
			delete(m.byGuid, c.Guid)
		}
		m.objects.Destroy(c.Handle)
	}
	m.mu.Unlock()
	m.queueCorpseWrite(CorpseWrite{Record: CorpseRecord{MapID: m.id, InstanceID: m.instanceID}, DeleteAll: true})
}
