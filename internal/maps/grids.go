package maps

import (
	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/core/event"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/terrain"
	"github.com/warheadgo/server/internal/world"
)

// EnsureGridCreated creates the grid at g and loads its terrain tile. Object
// data is not loaded. Returns false when g lies outside the map.
func (m *Map) EnsureGridCreated(g grid.GridCoord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureGridCreatedLocked(g) != nil
}

func (m *Map) ensureGridCreatedLocked(g grid.GridCoord) *grid.NGrid {
	if !m.layout.ValidGrid(g) {
		return nil
	}
	idx := m.gridIndex(g)
	if ng := m.grids[idx]; ng != nil {
		return ng
	}
	ng := grid.NewNGrid(g, m.layout.CellsPerGrid)
	m.grids[idx] = ng
	m.tileAt(g)
	if m.kind != KindBase || !m.deps.GridUnload {
		ng.SetUnloadExplicitLock(true)
	}
	ng.SetState(grid.StateLoaded)
	m.log.Debug("grid created", zap.Int("gx", g.X), zap.Int("gy", g.Y))
	event.Emit(m.bus, event.GridLoaded{MapID: m.id, InstanceID: m.instanceID, X: g.X, Y: g.Y})
	return ng
}

// EnsureGridLoaded creates the grid owning cell and loads its spawns and
// corpses. Returns false when the cell lies outside the map.
func (m *Map) EnsureGridLoaded(cell grid.Cell) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureGridLoadedLocked(cell) != nil
}

func (m *Map) ensureGridLoadedLocked(cell grid.Cell) *grid.NGrid {
	ng := m.ensureGridCreatedLocked(cell.Grid())
	if ng == nil || ng.ObjectDataLoaded() {
		return ng
	}
	// Mark first: spawning into the grid must not recurse into loading it.
	ng.SetObjectDataLoaded(true)
	m.loadGridObjectsLocked(ng)
	m.restoreCorpsesLocked(ng)
	return ng
}

// LoadGrid loads the grid under a world position.
func (m *Map) LoadGrid(x, y float32) bool {
	return m.EnsureGridLoaded(m.layout.CellAt(x, y))
}

// LoadAllCells loads every grid of the map. Used to pre-warm small maps.
func (m *Map) LoadAllCells() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.layout.GridsPerSide
	for gy := 0; gy < n; gy++ {
		for gx := 0; gx < n; gx++ {
			m.ensureGridLoadedLocked(grid.Cell{GridX: gx, GridY: gy})
		}
	}
}

// IsGridLoaded reports whether g exists with its object data loaded.
func (m *Map) IsGridLoaded(g grid.GridCoord) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.layout.ValidGrid(g) {
		return false
	}
	ng := m.grids[m.gridIndex(g)]
	return ng != nil && ng.ObjectDataLoaded()
}

// IsGridCreated reports whether g exists, loaded or not.
func (m *Map) IsGridCreated(g grid.GridCoord) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.layout.ValidGrid(g) && m.grids[m.gridIndex(g)] != nil
}

// GridState returns the lifecycle state of g.
func (m *Map) GridState(g grid.GridCoord) grid.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.layout.ValidGrid(g) {
		return grid.StateUnloaded
	}
	if ng := m.grids[m.gridIndex(g)]; ng != nil {
		return ng.State()
	}
	return grid.StateUnloaded
}

func (m *Map) gridLocked(g grid.GridCoord) *grid.NGrid {
	if !m.layout.ValidGrid(g) {
		return nil
	}
	return m.grids[m.gridIndex(g)]
}

// tileAt returns the terrain of g, loading it on first use. A tile that
// failed to load is remembered and never retried; it answers as no ground.
func (m *Map) tileAt(g grid.GridCoord) *terrain.GridMap {
	if !m.layout.ValidGrid(g) {
		return nil
	}
	idx := m.gridIndex(g)
	m.terrainMu.RLock()
	state, gm := m.tileStates[idx], m.tiles[idx]
	m.terrainMu.RUnlock()
	if state != tileUnloaded {
		return gm
	}

	m.terrainMu.Lock()
	defer m.terrainMu.Unlock()
	if m.tileStates[idx] != tileUnloaded {
		return m.tiles[idx]
	}
	if m.deps.Tiles == nil {
		m.tileStates[idx] = tileFailed
		return nil
	}
	tx, ty := m.layout.TileCoord(g)
	gm, err := m.deps.Tiles.LoadTile(m.id, tx, ty)
	if err != nil {
		m.tileStates[idx] = tileFailed
		m.log.Warn("terrain tile unavailable", zap.Int("gx", g.X), zap.Int("gy", g.Y), zap.Error(err))
		return nil
	}
	m.tiles[idx] = gm
	m.tileStates[idx] = tileLoaded
	return gm
}

func (m *Map) unloadTile(g grid.GridCoord) {
	m.PathLock.Lock()
	defer m.PathLock.Unlock()
	m.terrainMu.Lock()
	defer m.terrainMu.Unlock()
	idx := m.gridIndex(g)
	if m.tileStates[idx] == tileLoaded {
		m.tiles[idx] = nil
		m.tileStates[idx] = tileUnloaded
	}
}

// loadGridObjectsLocked spawns the data-defined objects of ng. Spawns whose
// respawn deadline lies in the future come up dead (creatures) or despawned
// (game objects).
func (m *Map) loadGridObjectsLocked(ng *grid.NGrid) {
	if m.deps.Spawns == nil {
		return
	}
	now := m.now()
	for _, s := range m.deps.Spawns.GridSpawns(m.id, m.difficulty, ng.Coord()) {
		if !s.InDifficulty(m.difficulty) {
			continue
		}
		if m.spawnedLocked(s.Kind, s.ID) {
			continue
		}
		var o *world.Object
		switch s.Kind {
		case world.SpawnCreature:
			o = world.NewCreature(m.GenerateGuid(world.HighUnit, s.Entry), s.ID, s.Pos, s.PhaseMask, s.RespawnDelay)
			if at := m.creatureRespawn[s.ID]; at > now {
				o.Creature.Dead = true
			}
		case world.SpawnGameObject:
			o = m.newGameObjectLocked(s.Entry, s.ID, s.Pos, s.PhaseMask)
			o.GameObject.RespawnDelay = s.RespawnDelay
			if at := m.goRespawn[s.ID]; at > now {
				o.GameObject.Spawned = false
			}
		default:
			continue
		}
		cell := m.layout.CellAt(s.Pos.X, s.Pos.Y)
		if cell.Grid() != ng.Coord() {
			m.log.Warn("spawn outside its grid", zap.Uint32("spawn", s.ID), zap.Int("gx", ng.Coord().X), zap.Int("gy", ng.Coord().Y))
			continue
		}
		if !m.placeLocked(o, ng, cell) {
			continue
		}
		m.announceLocked(o)
		m.notifyCreate(o)
	}
}

func (m *Map) spawnedLocked(kind world.SpawnKind, id uint32) bool {
	return len(m.bySpawn[spawnKey{kind: kind, id: id}]) > 0
}

// newGameObjectLocked builds a game object from its template, if one is known.
func (m *Map) newGameObjectLocked(entry, spawnID uint32, pos world.Position, phaseMask uint32) *world.Object {
	var tmpl world.GameObjectTemplate
	if m.deps.GameObjects != nil {
		tmpl, _ = m.deps.GameObjects.GameObjectTemplate(entry)
	}
	o := world.NewGameObject(m.GenerateGuid(highFor(tmpl.Kind), entry), spawnID, pos, phaseMask, tmpl.Kind)
	o.GameObject.Flags = tmpl.Flags
	o.GameObject.AutoClose = tmpl.AutoCloseMs
	if tmpl.HasModel() {
		// The owner handle is filled in by placeLocked.
		o.GameObject.Model = newModel(o, tmpl)
	}
	if tmpl.Kind == world.GameObjectTransport {
		o.Active = true
	}
	return o
}

func highFor(kind world.GameObjectType) world.HighGuid {
	if kind == world.GameObjectTransport {
		return world.HighTransport
	}
	return world.HighGameObject
}

// UnloadGrid tears down g. Objects are removed without clearing their respawn
// times; corpses leave the grid but stay indexed. Unless unloadAll is set the
// grid must satisfy NGrid.CanUnload.
func (m *Map) UnloadGrid(g grid.GridCoord, unloadAll bool) bool {
	m.mu.Lock()
	ok := m.unloadGridLocked(g, unloadAll)
	m.mu.Unlock()
	return ok
}

func (m *Map) unloadGridLocked(g grid.GridCoord, unloadAll bool) bool {
	ng := m.gridLocked(g)
	if ng == nil {
		return false
	}
	if !unloadAll && !ng.CanUnload(m.deps.GridUnloadDelay) {
		return false
	}
	ng.SetState(grid.StateUnloading)

	var handles []ecs.EntityID
	var corpses []ecs.EntityID
	ng.Each(func(_, _ int, b grid.Bucket, h ecs.EntityID) {
		if b == bucketCorpse {
			corpses = append(corpses, h)
			return
		}
		handles = append(handles, h)
	})
	for _, h := range handles {
		o := m.objectLocked(h)
		if o == nil {
			m.violation("stale handle in grid", zap.Uint64("handle", uint64(h)))
			continue
		}
		if o.IsPlayer() && !unloadAll {
			m.violation("player in unloading grid", zap.Stringer("guid", o.Guid))
		}
		m.removeLocked(o, false)
		m.objects.Destroy(h)
	}
	for _, h := range corpses {
		if o := m.objectLocked(h); o != nil {
			ng.Remove(o.Cell.CellX, o.Cell.CellY, bucketCorpse, h)
			o.InWorld = false
		}
	}

	m.grids[m.gridIndex(g)] = nil
	ng.SetState(grid.StateUnloaded)
	m.unloadTile(g)
	m.log.Debug("grid unloaded", zap.Int("gx", g.X), zap.Int("gy", g.Y))
	event.Emit(m.bus, event.GridUnloaded{MapID: m.id, InstanceID: m.instanceID, X: g.X, Y: g.Y})
	return true
}

// UnloadAll removes every player from the map and unloads every grid.
func (m *Map) UnloadAll() {
	for _, h := range m.Players() {
		m.RemovePlayerFromMap(h, false)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects.FlushDestroyQueue(func(h ecs.EntityID) {
		if o := m.objectLocked(h); o != nil && o.InWorld {
			m.removeLocked(o, true)
		}
	})
	for i, ng := range m.grids {
		if ng != nil {
			m.unloadGridLocked(ng.Coord(), true)
		}
		m.grids[i] = nil
	}
}

// updateGrids ages grids that nothing touched this tick and unloads the ones
// that have been idle long enough.
func (m *Map) updateGrids(touched map[grid.GridCoord]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ng := range m.grids {
		if ng == nil {
			continue
		}
		if _, ok := touched[ng.Coord()]; ok || ng.References() > 0 {
			ng.Touch()
			continue
		}
		ng.Idle()
		if ng.CanUnload(m.deps.GridUnloadDelay) {
			m.unloadGridLocked(ng.Coord(), false)
		}
	}
	if m.kind == KindBase && m.deps.GridUnload {
		m.releaseOrphanTilesLocked()
	}
}

// releaseOrphanTilesLocked drops tiles loaded by terrain queries over grids
// that were never created. No grid unload would ever free them.
func (m *Map) releaseOrphanTilesLocked() {
	m.PathLock.Lock()
	defer m.PathLock.Unlock()
	m.terrainMu.Lock()
	defer m.terrainMu.Unlock()
	for idx, ng := range m.grids {
		if ng == nil && m.tileStates[idx] == tileLoaded {
			m.tiles[idx] = nil
			m.tileStates[idx] = tileUnloaded
		}
	}
}

// LoadedGrids returns the coordinates of every created grid.
func (m *Map) LoadedGrids() []grid.GridCoord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []grid.GridCoord
	for _, ng := range m.grids {
		if ng != nil {
			out = append(out, ng.Coord())
		}
	}
	return out
}
