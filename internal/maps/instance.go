package maps

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/core/event"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

// InstanceScript holds the encounter state of one instance. Calls arrive
// from the map's update goroutine, never with the map lock held.
type InstanceScript interface {
	Initialize()
	Load(data string)
	Save() string
	IsEncounterInProgress() bool
	OnPlayerEnter(player ecs.EntityID)
	OnCreatureCreate(h ecs.EntityID, entry, spawnID uint32)
	OnGameObjectCreate(h ecs.EntityID, entry, spawnID uint32)
	SetData(id, value uint32)
	GetData(id uint32) uint32
	Update(diff int)
	// OnEncounterCredit reports the encounter a credit completes, if any.
	OnEncounterCredit(kind EncounterCreditType, entry uint32) (encounterID uint32, done bool)
	Reset()
}

// InstanceData is the instance-only state of a map.
type InstanceData struct {
	mu sync.Mutex

	save   uuid.UUID
	script InstanceScript

	resetAfterUnload bool
	unloadWhenEmpty  bool
	completed        map[uint32]struct{}
	scriptStarted    bool
}

func newInstanceData() *InstanceData {
	return &InstanceData{save: uuid.New(), completed: make(map[uint32]struct{})}
}

// Save returns the token binds to this instance refer to.
func (d *InstanceData) Save() uuid.UUID { return d.save }

// ResetAfterUnload reports whether the instance state is wiped on unload.
func (d *InstanceData) ResetAfterUnload() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetAfterUnload
}

// UnloadWhenEmpty reports whether the instance closes as soon as it empties.
func (d *InstanceData) UnloadWhenEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unloadWhenEmpty
}

// EncounterDone reports whether an encounter has been completed.
func (d *InstanceData) EncounterDone(id uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.completed[id]
	return ok
}

// CreateInstanceData attaches the instance script and restores saved state.
func (m *Map) CreateInstanceData(saved string) {
	in := m.instance
	if in == nil || m.deps.InstanceScripts == nil {
		return
	}
	s, ok := m.deps.InstanceScripts.NewInstanceScript(m)
	if !ok {
		return
	}
	in.mu.Lock()
	in.script = s
	in.mu.Unlock()
	s.Initialize()
	if saved != "" {
		s.Load(saved)
	}
	m.log.Debug("instance script attached")
}

// SetInstanceSave replaces the save token, for instances restored from storage.
func (m *Map) SetInstanceSave(save uuid.UUID) {
	if in := m.instance; in != nil {
		in.mu.Lock()
		in.save = save
		in.mu.Unlock()
	}
}

// InstanceSaveData serializes the script state for persistence.
func (m *Map) InstanceSaveData() string {
	if s := m.instanceScript(); s != nil {
		return s.Save()
	}
	return ""
}

func (m *Map) instanceScript() InstanceScript {
	in := m.instance
	if in == nil {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.script
}

// CannotEnter decides whether p may enter this map. loginCheck is set when
// the player is logging in inside the map.
func (m *Map) CannotEnter(p *world.Object, loginCheck bool) EnterState {
	if p == nil || p.Player == nil {
		return CannotEnterUnspecifiedReason
	}
	switch m.kind {
	case KindInstance:
		return m.instanceCannotEnter(p, loginCheck)
	case KindBattleground:
		return m.battlegroundCannotEnter(p)
	}
	return CanEnter
}

func (m *Map) inMap(p *world.Object) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cur, ok := m.store.Get(p.Handle)
	return ok && cur == p
}

func (m *Map) instanceCannotEnter(p *world.Object, loginCheck bool) EnterState {
	if !loginCheck && m.inMap(p) {
		return CannotEnterAlreadyInMap
	}
	if p.Player.GM {
		return CanEnter
	}
	if limit := m.entry.MaxPlayers; limit > 0 {
		if loginCheck {
			limit++
		}
		if m.playersExceptGMs() >= limit {
			return CannotEnterMaxPlayers
		}
	}
	if !loginCheck && m.entry.IsRaid() {
		if s := m.instanceScript(); s != nil && s.IsEncounterInProgress() {
			return CannotEnterZoneInCombat
		}
	}
	if b, ok := p.Player.Bind(m.id, m.difficulty); ok && b.Perm && b.InstanceID != m.instanceID {
		return CannotEnterInstanceBindMismatch
	}
	return CanEnter
}

func (m *Map) playersExceptGMs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for h := range m.players {
		if p := m.objectLocked(h); p != nil && !p.Player.GM {
			n++
		}
	}
	return n
}

// Reset asks an instance to reset. With players inside, ResetAll and
// ResetChangeDifficulty are refused and the players notified; the other
// methods arrange for the instance to close once empty, unless a player on
// skip is still inside. An empty instance is torn down at once and closes
// on the next update. Reports whether the instance was empty.
func (m *Map) Reset(method ResetMethod, skip []ecs.EntityID) bool {
	in := m.instance
	if in == nil {
		return false
	}
	players := m.Players()
	if len(players) > 0 {
		if method == ResetAll || method == ResetChangeDifficulty {
			event.Emit(m.bus, event.InstanceResetFailed{MapID: m.id, InstanceID: m.instanceID, Method: uint8(method), Players: players})
			m.log.Info("instance reset refused, players inside", zap.Stringer("method", method), zap.Int("players", len(players)))
			return false
		}
		doUnload := true
		m.mu.Lock()
		for _, h := range players {
			if containsHandle(skip, h) {
				doUnload = false
				continue
			}
			if p := m.objectLocked(h); p != nil && method == ResetGlobal {
				p.Player.PendingTeleport = true
			}
		}
		m.mu.Unlock()
		if doUnload {
			if m.HasPermBoundPlayers() {
				m.queueInstanceWrite(InstanceWrite{MapID: m.id, InstanceID: m.instanceID, Delete: true})
			}
			in.mu.Lock()
			in.unloadWhenEmpty = true
			in.resetAfterUnload = true
			in.mu.Unlock()
		}
		return false
	}

	if s := m.instanceScript(); s != nil {
		s.Reset()
	}
	m.mu.Lock()
	m.despawnTemporaryLocked()
	m.unloadTimer = grid.MinUnloadDelay
	m.mu.Unlock()
	in.mu.Lock()
	in.resetAfterUnload = true
	clear(in.completed)
	in.mu.Unlock()
	m.log.Info("instance reset", zap.Stringer("method", method))
	return true
}

func containsHandle(s []ecs.EntityID, h ecs.EntityID) bool {
	for _, x := range s {
		if x == h {
			return true
		}
	}
	return false
}

// despawnTemporaryLocked queues every summon and area effect for removal.
func (m *Map) despawnTemporaryLocked() {
	m.store.Each(func(h ecs.EntityID, o *world.Object) {
		switch {
		case o.Creature != nil && o.Creature.Temporary:
			m.addToRemoveListLocked(h)
		case o.DynObject != nil:
			m.addToRemoveListLocked(h)
		case o.GameObject != nil && o.SpawnID == 0:
			m.addToRemoveListLocked(h)
		}
	})
}

// HasPermBoundPlayers reports whether any player inside is permanently bound
// to this instance.
func (m *Map) HasPermBoundPlayers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for h := range m.players {
		p := m.objectLocked(h)
		if p == nil {
			continue
		}
		if b, ok := p.Player.Bind(m.id, m.difficulty); ok && b.Perm && b.InstanceID == m.instanceID {
			return true
		}
	}
	return false
}

// PermBindAllPlayers gives every player inside a permanent bind to this
// instance.
func (m *Map) PermBindAllPlayers() {
	in := m.instance
	if in == nil {
		return
	}
	in.mu.Lock()
	save := in.save
	in.mu.Unlock()
	expires := time.Time{}
	if d := m.entry.ResetDelay; d > 0 {
		expires = m.deps.Clock().Add(time.Duration(d) * time.Second)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.players {
		p := m.objectLocked(h)
		if p == nil {
			continue
		}
		if b, ok := p.Player.Bind(m.id, m.difficulty); ok && b.Perm && b.InstanceID == m.instanceID {
			continue
		}
		p.Player.SetBind(m.id, m.difficulty, world.InstanceBind{InstanceID: m.instanceID, Save: save, Perm: true, ExpiresAt: expires})
	}
}

func (m *Map) queueInstanceWrite(w InstanceWrite) {
	m.pendingMu.Lock()
	m.instanceWrites = append(m.instanceWrites, w)
	m.pendingMu.Unlock()
}

// DrainInstanceWrites hands the queued instance table writes to the caller.
func (m *Map) DrainInstanceWrites() []InstanceWrite {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	out := m.instanceWrites
	m.instanceWrites = nil
	return out
}

// UpdateEncounterState passes an encounter credit to the instance script and
// logs the encounter when it completes.
func (m *Map) UpdateEncounterState(kind EncounterCreditType, entry uint32) {
	s := m.instanceScript()
	if s == nil {
		return
	}
	id, done := s.OnEncounterCredit(kind, entry)
	if !done {
		return
	}
	in := m.instance
	in.mu.Lock()
	_, already := in.completed[id]
	in.completed[id] = struct{}{}
	in.mu.Unlock()
	if already {
		return
	}
	if m.entry.IsRaid() {
		m.PermBindAllPlayers()
	}
	m.LogEncounterFinished(id)
}

// LogEncounterFinished announces a completed encounter.
func (m *Map) LogEncounterFinished(encounterID uint32) {
	players := m.Players()
	m.log.Info("encounter finished", zap.Uint32("encounter", encounterID), zap.Int("players", len(players)))
	event.Emit(m.bus, event.EncounterFinished{
		MapID:       m.id,
		InstanceID:  m.instanceID,
		EncounterID: encounterID,
		Difficulty:  uint8(m.difficulty),
		Players:     players,
	})
}

// CanUnload advances the empty-map timer by diff and reports whether the map
// should be destroyed.
func (m *Map) CanUnload(diff int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unloadTimer == 0 {
		return false
	}
	if m.unloadTimer <= diff {
		return true
	}
	m.unloadTimer -= diff
	return false
}

// UnloadTimer returns the ms left before an empty map closes, 0 when unarmed.
func (m *Map) UnloadTimer() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unloadTimer
}
