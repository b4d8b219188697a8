package maps

import (
	"time"

	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/collision"
	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/core/event"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

func newModel(o *world.Object, tmpl world.GameObjectTemplate) *collision.Model {
	h := tmpl.HalfExtents
	bounds := collision.BoxAround(o.Pos.Vec(), h[0], h[1], h[2])
	return collision.NewModel(o.Handle, bounds, o.PhaseMask, tmpl.M2)
}

// placeLocked gives o a handle and puts it into its cell and the lookup
// tables. The grid must exist.
func (m *Map) placeLocked(o *world.Object, ng *grid.NGrid, cell grid.Cell) bool {
	if o.InWorld {
		m.violation("object placed twice", zap.Stringer("guid", o.Guid))
		return false
	}
	h := m.objects.CreateEntity()
	o.Handle = h
	o.Cell = cell
	o.InWorld = true
	o.MoveState = world.MoveNone
	m.store.Set(h, o)

	ng.Add(cell.CellX, cell.CellY, bucketFor(o.Type), h)
	m.byGuid[o.Guid] = h
	if o.SpawnID != 0 {
		if k, ok := spawnKeyOf(o); ok {
			m.bySpawn[k] = append(m.bySpawn[k], h)
		}
	}

	switch o.Type {
	case world.TypePlayer:
		m.players[h] = struct{}{}
		ng.IncPlayers()
	case world.TypeGameObject:
		gd := o.GameObject
		if gd.Model != nil {
			gd.Model.Owner = h
			m.tree.Insert(gd.Model)
			m.tree.SetEnabled(gd.Model, gd.Spawned && !doorOpen(gd))
		}
		if gd.Kind == world.GameObjectTransport {
			m.transports[h] = struct{}{}
		}
	case world.TypeCorpse:
		m.indexCorpseLocked(o)
	}
	if o.Active && !o.IsPlayer() {
		m.active[h] = struct{}{}
		ng.IncActive()
	}
	event.Emit(m.bus, event.ObjectAdded{MapID: m.id, InstanceID: m.instanceID, Object: h, TypeID: uint8(o.Type)})
	return true
}

func spawnKeyOf(o *world.Object) (spawnKey, bool) {
	switch o.Type {
	case world.TypeUnit:
		return spawnKey{kind: world.SpawnCreature, id: o.SpawnID}, true
	case world.TypeGameObject:
		return spawnKey{kind: world.SpawnGameObject, id: o.SpawnID}, true
	}
	return spawnKey{}, false
}

func doorOpen(gd *world.GameObjectData) bool {
	return gd.IsDoorLike() && gd.State != world.GOStateReady
}

// removeLocked takes o out of its cell and every lookup table. The handle
// stays allocated; callers destroy it or queue it for destruction.
func (m *Map) removeLocked(o *world.Object, permanent bool) {
	h := o.Handle
	if ng := m.gridLocked(o.Cell.Grid()); ng != nil {
		b := bucketFor(o.Type)
		if !ng.Remove(o.Cell.CellX, o.Cell.CellY, b, h) {
			m.violation("object missing from its cell", zap.Stringer("guid", o.Guid), zap.Stringer("cell", o.Cell.Coord(m.layout)))
			m.purgeHandleLocked(h, b)
		}
		if o.IsPlayer() {
			ng.DecPlayers()
		}
		if _, ok := m.active[h]; ok {
			ng.DecActive()
		}
	}
	delete(m.players, h)
	delete(m.active, h)
	delete(m.switchList, h)
	o.MoveState = world.MoveInactive

	if cur, ok := m.byGuid[o.Guid]; ok && cur == h {
		delete(m.byGuid, o.Guid)
	}
	if k, ok := spawnKeyOf(o); ok && o.SpawnID != 0 {
		m.bySpawn[k] = removeHandle(m.bySpawn[k], h)
		if len(m.bySpawn[k]) == 0 {
			delete(m.bySpawn, k)
		}
		if permanent {
			switch k.kind {
			case world.SpawnCreature:
				m.setCreatureRespawnLocked(o.SpawnID, 0)
			case world.SpawnGameObject:
				m.setGORespawnLocked(o.SpawnID, 0)
			}
		}
	}

	switch o.Type {
	case world.TypeGameObject:
		if o.GameObject.Model != nil {
			m.tree.Remove(o.GameObject.Model)
		}
		if _, ok := m.transports[h]; ok {
			m.detachPassengersLocked(o)
			delete(m.transports, h)
		}
	case world.TypeCorpse:
		m.unindexCorpseLocked(o)
	}
	if o.Transport != 0 {
		if t := m.objectLocked(o.Transport); t != nil && t.GameObject != nil {
			t.GameObject.Passengers = removeHandle(t.GameObject.Passengers, h)
		}
		o.Transport = 0
	}
	m.forgetVisibleLocked(h)

	o.InWorld = false
	event.Emit(m.bus, event.ObjectRemoved{MapID: m.id, InstanceID: m.instanceID, Object: h, TypeID: uint8(o.Type), Permanent: permanent})
}

// purgeHandleLocked drops every trace of h from the loaded grids after a
// container inconsistency.
func (m *Map) purgeHandleLocked(h ecs.EntityID, b grid.Bucket) {
	for _, ng := range m.grids {
		if ng == nil {
			continue
		}
		ng.Each(func(cx, cy int, bb grid.Bucket, hh ecs.EntityID) {
			if hh == h && bb == b {
				ng.Remove(cx, cy, b, h)
			}
		})
	}
}

func removeHandle(s []ecs.EntityID, h ecs.EntityID) []ecs.EntityID {
	for i, x := range s {
		if x == h {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// AddPlayerToMap places p at its position. It fails when the position lies
// outside the map.
func (m *Map) AddPlayerToMap(p *world.Object) bool {
	if !p.IsPlayer() {
		return false
	}
	cell := m.layout.CellAt(p.Pos.X, p.Pos.Y)
	m.mu.Lock()
	if !m.layout.IsValidMapCoord(p.Pos.X, p.Pos.Y) {
		m.mu.Unlock()
		m.log.Warn("player position outside map", zap.Stringer("guid", p.Guid))
		return false
	}
	ng := m.ensureGridLoadedLocked(cell)
	if ng == nil || !m.placeLocked(p, ng, cell) {
		m.mu.Unlock()
		return false
	}
	if p.Player.Visible == nil {
		p.Player.Visible = make(map[ecs.EntityID]struct{})
	}
	m.refreshVisibilityLocked(p)
	m.unloadTimer = 0
	if m.instance != nil {
		if p.Player.RecentInstances == nil {
			p.Player.RecentInstances = make(map[uint32]time.Time)
		}
		if _, seen := p.Player.RecentInstances[m.instanceID]; !seen {
			p.Player.RecentInstances[m.instanceID] = m.deps.Clock()
		}
	}
	m.mu.Unlock()

	if s := m.instanceScript(); s != nil {
		s.OnPlayerEnter(p.Handle)
	}
	m.log.Debug("player added", zap.Stringer("guid", p.Guid))
	return true
}

// RemovePlayerFromMap takes the player out. Its handle is released, so the
// caller keeps the returned object to move it elsewhere.
func (m *Map) RemovePlayerFromMap(h ecs.EntityID, permanent bool) *world.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.objectLocked(h)
	if p == nil || !p.IsPlayer() {
		return nil
	}
	m.removeLocked(p, permanent)
	m.objects.Destroy(h)
	p.Handle = 0
	clear(p.Player.Visible)

	if m.instance != nil && m.unloadTimer == 0 && len(m.players) == 0 {
		if m.instance.unloadWhenEmpty {
			m.unloadTimer = grid.MinUnloadDelay
		} else {
			m.unloadTimer = max(m.deps.InstanceUnloadDelay, grid.MinUnloadDelay)
		}
	}
	return p
}

// AddToMap places a non-player object. Active objects load their grid;
// others only create it. With checkTransport the object boards a transport
// whose bounds contain it.
func (m *Map) AddToMap(o *world.Object, checkTransport bool) bool {
	if o.IsPlayer() {
		return m.AddPlayerToMap(o)
	}
	m.mu.Lock()
	if !m.layout.IsValidMapCoord(o.Pos.X, o.Pos.Y) {
		m.mu.Unlock()
		m.log.Warn("object position outside map", zap.Stringer("guid", o.Guid))
		return false
	}
	cell := m.layout.CellAt(o.Pos.X, o.Pos.Y)
	var ng *grid.NGrid
	if o.Active {
		ng = m.ensureGridLoadedLocked(cell)
	} else {
		ng = m.ensureGridCreatedLocked(cell.Grid())
	}
	if ng == nil || !m.placeLocked(o, ng, cell) {
		m.mu.Unlock()
		return false
	}
	if checkTransport && o.Type != world.TypeGameObject {
		if t := m.transportForPosLocked(o.PhaseMask, o.Pos.X, o.Pos.Y, o.Pos.Z); t != 0 {
			m.boardLocked(o, t)
		}
	}
	m.announceLocked(o)
	m.mu.Unlock()

	m.notifyCreate(o)
	return true
}

// RemoveFromMap removes o at once and releases its handle. Permanent removal
// also clears the spawn's respawn time.
func (m *Map) RemoveFromMap(h ecs.EntityID, permanent bool) *world.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil {
		return nil
	}
	if o.IsPlayer() {
		m.violation("RemoveFromMap on a player", zap.Stringer("guid", o.Guid))
	}
	m.removeLocked(o, permanent)
	m.objects.Destroy(h)
	return o
}

// AddObjectToRemoveList queues o for removal at the end of the next update.
func (m *Map) AddObjectToRemoveList(h ecs.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addToRemoveListLocked(h)
}

func (m *Map) addToRemoveListLocked(h ecs.EntityID) {
	if o := m.objectLocked(h); o != nil && !o.IsPlayer() {
		m.objects.MarkForDestruction(h)
	}
}

// IsQueuedForRemoval reports whether h sits on the remove list.
func (m *Map) IsQueuedForRemoval(h ecs.EntityID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects.Marked(h)
}

func (m *Map) removeAllObjectsInRemoveListLocked() {
	m.objects.FlushDestroyQueue(func(h ecs.EntityID) {
		o := m.objectLocked(h)
		if o == nil || !o.InWorld {
			return
		}
		if o.Type == world.TypeCorpse {
			m.removeCorpseLocked(o)
			return
		}
		m.removeLocked(o, true)
	})
}

// AddObjectToSwitchList queues an active-state change for the next update.
// A request that cancels a pending opposite request drops both.
func (m *Map) AddObjectToSwitchList(h ecs.EntityID, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.switchList[h]; ok && cur != on {
		delete(m.switchList, h)
		return
	}
	m.switchList[h] = on
}

func (m *Map) processSwitchListLocked() {
	for h, on := range m.switchList {
		o := m.objectLocked(h)
		if o == nil {
			continue
		}
		if on {
			m.addToActiveLocked(o)
		} else {
			m.removeFromActiveLocked(o)
		}
	}
	clear(m.switchList)
}

// AddToActive makes o keep its surroundings loaded and updated.
func (m *Map) AddToActive(h ecs.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o := m.objectLocked(h); o != nil {
		m.addToActiveLocked(o)
	}
}

// RemoveFromActive reverses AddToActive.
func (m *Map) RemoveFromActive(h ecs.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o := m.objectLocked(h); o != nil {
		m.removeFromActiveLocked(o)
	}
}

func (m *Map) addToActiveLocked(o *world.Object) {
	o.Active = true
	if o.IsPlayer() {
		return
	}
	if _, ok := m.active[o.Handle]; ok {
		return
	}
	m.active[o.Handle] = struct{}{}
	if ng := m.ensureGridLoadedLocked(o.Cell); ng != nil {
		ng.IncActive()
	}
}

func (m *Map) removeFromActiveLocked(o *world.Object) {
	o.Active = false
	if _, ok := m.active[o.Handle]; !ok {
		return
	}
	delete(m.active, o.Handle)
	if ng := m.gridLocked(o.Cell.Grid()); ng != nil {
		ng.DecActive()
	}
}

// IsActive reports whether h is on the active list.
func (m *Map) IsActive(h ecs.EntityID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[h]
	return ok
}

// ObjectByGuid returns the handle of a placed object.
func (m *Map) ObjectByGuid(g world.ObjectGuid) (ecs.EntityID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byGuid[g]
	return h, ok
}

// GetCreature resolves a creature guid.
func (m *Map) GetCreature(g world.ObjectGuid) (*world.Object, bool) {
	return m.typedByGuid(g, world.TypeUnit)
}

// GetGameObject resolves a game object guid.
func (m *Map) GetGameObject(g world.ObjectGuid) (*world.Object, bool) {
	return m.typedByGuid(g, world.TypeGameObject)
}

// GetDynamicObject resolves a dynamic object guid.
func (m *Map) GetDynamicObject(g world.ObjectGuid) (*world.Object, bool) {
	return m.typedByGuid(g, world.TypeDynamicObject)
}

// GetPlayer resolves a player guid.
func (m *Map) GetPlayer(g world.ObjectGuid) (*world.Object, bool) {
	return m.typedByGuid(g, world.TypePlayer)
}

// GetCorpse resolves a corpse guid.
func (m *Map) GetCorpse(g world.ObjectGuid) (*world.Object, bool) {
	return m.typedByGuid(g, world.TypeCorpse)
}

func (m *Map) typedByGuid(g world.ObjectGuid, t world.TypeID) (*world.Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byGuid[g]
	if !ok {
		return nil, false
	}
	o := m.objectLocked(h)
	if o == nil || o.Type != t {
		return nil, false
	}
	return o, true
}

// CreaturesBySpawn returns every placed creature of a spawn id.
func (m *Map) CreaturesBySpawn(spawnID uint32) []ecs.EntityID {
	return m.bySpawnID(world.SpawnCreature, spawnID)
}

// GameObjectsBySpawn returns every placed game object of a spawn id.
func (m *Map) GameObjectsBySpawn(spawnID uint32) []ecs.EntityID {
	return m.bySpawnID(world.SpawnGameObject, spawnID)
}

func (m *Map) bySpawnID(kind world.SpawnKind, id uint32) []ecs.EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ecs.EntityID(nil), m.bySpawn[spawnKey{kind: kind, id: id}]...)
}

// SummonCreature places a temporary creature. despawnMs of 0 keeps it until
// it is removed explicitly.
func (m *Map) SummonCreature(entry uint32, pos world.Position, summoner ecs.EntityID, despawnMs int) (ecs.EntityID, bool) {
	o := world.NewCreature(m.GenerateGuid(world.HighUnit, entry), 0, pos, 1, 0)
	o.Creature.Temporary = true
	o.Creature.Summoner = summoner
	o.Creature.DespawnIn = despawnMs
	if s, ok := m.Object(summoner); ok {
		o.PhaseMask = s.PhaseMask
	}
	if !m.AddToMap(o, true) {
		return 0, false
	}
	return o.Handle, true
}

// SummonGameObject places a temporary game object that despawns after
// despawnMs, or never when it is 0.
func (m *Map) SummonGameObject(entry uint32, pos world.Position, phaseMask uint32, despawnMs int) (ecs.EntityID, bool) {
	m.mu.Lock()
	o := m.newGameObjectLocked(entry, 0, pos, phaseMask)
	m.mu.Unlock()
	o.GameObject.DespawnIn = despawnMs
	if !m.AddToMap(o, false) {
		return 0, false
	}
	return o.Handle, true
}

// notifyCreate tells the instance script about a new creature or game object.
// It runs outside the map lock through the action queue.
func (m *Map) notifyCreate(o *world.Object) {
	if m.instance == nil || m.deps.InstanceScripts == nil {
		return
	}
	h, entry, spawnID, t := o.Handle, o.Entry, o.SpawnID, o.Type
	m.QueueAction(func(m *Map) {
		s := m.instanceScript()
		if s == nil {
			return
		}
		switch t {
		case world.TypeUnit:
			s.OnCreatureCreate(h, entry, spawnID)
		case world.TypeGameObject:
			s.OnGameObjectCreate(h, entry, spawnID)
		}
	})
}
