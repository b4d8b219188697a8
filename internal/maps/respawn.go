package maps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/world"
)

// RespawnWrite is one pending change to the persisted respawn tables.
// RespawnAt 0 deletes the row; DeleteAll wipes every row of the map instance.
type RespawnWrite struct {
	Kind       world.SpawnKind
	MapID      uint32
	InstanceID uint32
	SpawnID    uint32
	RespawnAt  int64
	DeleteAll  bool
}

// GetCreatureRespawnTime returns the respawn deadline of a creature spawn in
// unix seconds, 0 when none is pending.
func (m *Map) GetCreatureRespawnTime(spawnID uint32) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creatureRespawn[spawnID]
}

// GetGORespawnTime is GetCreatureRespawnTime for game objects.
func (m *Map) GetGORespawnTime(spawnID uint32) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.goRespawn[spawnID]
}

// SaveCreatureRespawnTime records a deadline and queues it for persistence.
// A zero time removes the entry.
func (m *Map) SaveCreatureRespawnTime(spawnID uint32, at int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCreatureRespawnLocked(spawnID, at)
}

// SaveGORespawnTime is SaveCreatureRespawnTime for game objects.
func (m *Map) SaveGORespawnTime(spawnID uint32, at int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setGORespawnLocked(spawnID, at)
}

// RemoveCreatureRespawnTime clears a creature deadline.
func (m *Map) RemoveCreatureRespawnTime(spawnID uint32) { m.SaveCreatureRespawnTime(spawnID, 0) }

// RemoveGORespawnTime clears a game object deadline.
func (m *Map) RemoveGORespawnTime(spawnID uint32) { m.SaveGORespawnTime(spawnID, 0) }

func (m *Map) setCreatureRespawnLocked(spawnID uint32, at int64) {
	m.setRespawnLocked(m.creatureRespawn, world.SpawnCreature, spawnID, at)
}

func (m *Map) setGORespawnLocked(spawnID uint32, at int64) {
	m.setRespawnLocked(m.goRespawn, world.SpawnGameObject, spawnID, at)
}

func (m *Map) setRespawnLocked(table map[uint32]int64, kind world.SpawnKind, spawnID uint32, at int64) {
	if spawnID == 0 {
		return
	}
	if at == 0 {
		if _, ok := table[spawnID]; !ok {
			return
		}
		delete(table, spawnID)
	} else {
		table[spawnID] = at
	}
	m.queueRespawnWrite(RespawnWrite{Kind: kind, MapID: m.id, InstanceID: m.instanceID, SpawnID: spawnID, RespawnAt: at})
}

func (m *Map) queueRespawnWrite(w RespawnWrite) {
	m.pendingMu.Lock()
	m.respawnWrites = append(m.respawnWrites, w)
	m.pendingMu.Unlock()
}

// LoadRespawnTimes reads persisted deadlines for this map instance.
func (m *Map) LoadRespawnTimes(ctx context.Context) error {
	if m.deps.Respawns == nil {
		return nil
	}
	rt, err := m.deps.Respawns.LoadRespawnTimes(ctx, m.id, m.instanceID)
	if err != nil {
		return fmt.Errorf("load respawn times: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, at := range rt.Creatures {
		m.creatureRespawn[id] = at
	}
	for id, at := range rt.GameObjects {
		m.goRespawn[id] = at
	}
	m.log.Debug("respawn times loaded", zap.Int("creatures", len(rt.Creatures)), zap.Int("gameobjects", len(rt.GameObjects)))
	return nil
}

// DeleteRespawnTimes forgets every deadline and queues a wholesale delete.
func (m *Map) DeleteRespawnTimes() {
	m.mu.Lock()
	clear(m.creatureRespawn)
	clear(m.goRespawn)
	m.mu.Unlock()
	m.queueRespawnWrite(RespawnWrite{MapID: m.id, InstanceID: m.instanceID, DeleteAll: true})
}

// DrainRespawnWrites hands the queued writes to the caller.
func (m *Map) DrainRespawnWrites() []RespawnWrite {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	out := m.respawnWrites
	m.respawnWrites = nil
	return out
}

// QueueAction runs fn on the update goroutine at the start of the next
// Update. It is the way for other goroutines to mutate the map.
func (m *Map) QueueAction(fn func(*Map)) {
	m.pendingMu.Lock()
	m.actions = append(m.actions, fn)
	m.pendingMu.Unlock()
}

func (m *Map) runActions() {
	m.pendingMu.Lock()
	actions := m.actions
	m.actions = nil
	m.pendingMu.Unlock()
	for _, fn := range actions {
		m.runAction(fn)
	}
}

func (m *Map) runAction(fn func(*Map)) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("queued action panicked", zap.Any("panic", r))
		}
	}()
	fn(m)
}

// KillCreature marks a creature dead on the next update and starts its
// respawn timer. Summons are removed instead. Safe from any goroutine.
func (m *Map) KillCreature(h ecs.EntityID) {
	m.QueueAction(func(m *Map) { m.killCreatureNow(h) })
}

func (m *Map) killCreatureNow(h ecs.EntityID) {
	m.mu.Lock()
	o := m.objectLocked(h)
	if o == nil || o.Creature == nil || o.Creature.Dead {
		m.mu.Unlock()
		return
	}
	c := o.Creature
	c.Dead = true
	entry := o.Entry
	if c.Temporary {
		m.addToRemoveListLocked(h)
	} else if o.SpawnID != 0 {
		m.setCreatureRespawnLocked(o.SpawnID, m.now()+int64(c.RespawnDelay))
	}
	m.mu.Unlock()
	m.UpdateEncounterState(EncounterCreditKillCreature, entry)
}

// DespawnGameObject hides a game object until its respawn delay passes.
// Objects without a delay are removed.
func (m *Map) DespawnGameObject(h ecs.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.GameObject == nil || !o.GameObject.Spawned {
		return
	}
	m.despawnGameObjectLocked(o)
}

func (m *Map) despawnGameObjectLocked(o *world.Object) {
	gd := o.GameObject
	if gd.RespawnDelay == 0 || o.SpawnID == 0 {
		m.addToRemoveListLocked(o.Handle)
		return
	}
	gd.Spawned = false
	if gd.Model != nil {
		m.tree.SetEnabled(gd.Model, false)
	}
	m.setGORespawnLocked(o.SpawnID, m.now()+int64(gd.RespawnDelay))
	m.announceLocked(o)
}

// respawnDueLocked brings back a dead creature or despawned game object whose
// deadline has passed.
func (m *Map) respawnDueLocked(o *world.Object, now int64) {
	switch {
	case o.Creature != nil && o.Creature.Dead && !o.Creature.Temporary:
		if at := m.creatureRespawn[o.SpawnID]; at > now {
			return
		}
		o.Creature.Dead = false
		m.setCreatureRespawnLocked(o.SpawnID, 0)
		if home := o.Creature.Home; home != o.Pos {
			m.relocateDeferredLocked(o, home, &m.creatureMoves)
		}
	case o.GameObject != nil && !o.GameObject.Spawned:
		if at := m.goRespawn[o.SpawnID]; at > now {
			return
		}
		m.respawnGameObjectLocked(o)
	}
}

func (m *Map) respawnGameObjectLocked(o *world.Object) {
	gd := o.GameObject
	gd.Spawned = true
	if gd.Model != nil {
		m.tree.SetEnabled(gd.Model, !doorOpen(gd))
	}
	m.setGORespawnLocked(o.SpawnID, 0)
	m.announceLocked(o)
}
