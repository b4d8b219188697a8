package maps

import (
	"sort"

	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/core/event"
	"github.com/warheadgo/server/internal/world"
)

// ScriptCommand is the operation of one timed script step.
type ScriptCommand uint8

const (
	ScriptOpenDoor ScriptCommand = iota + 1
	ScriptCloseDoor
	ScriptActivateObject
	ScriptSetFlag
	ScriptRemoveFlag
	ScriptRespawnGameObject
	ScriptSummonCreature
	ScriptDespawnSelf
	ScriptCallLua
)

var scriptCommandNames = map[ScriptCommand]string{
	ScriptOpenDoor:          "open_door",
	ScriptCloseDoor:         "close_door",
	ScriptActivateObject:    "activate_object",
	ScriptSetFlag:           "set_flag",
	ScriptRemoveFlag:        "remove_flag",
	ScriptRespawnGameObject: "respawn_gameobject",
	ScriptSummonCreature:    "summon_creature",
	ScriptDespawnSelf:       "despawn_self",
	ScriptCallLua:           "call_lua",
}

func (c ScriptCommand) String() string {
	if n, ok := scriptCommandNames[c]; ok {
		return n
	}
	return "unknown"
}

// ParseScriptCommand resolves a command name as written in data files.
func ParseScriptCommand(name string) (ScriptCommand, bool) {
	for c, n := range scriptCommandNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// ScriptStep is one timed command of a map script.
type ScriptStep struct {
	Delay   int // ms after the script starts
	Command ScriptCommand
	SpawnID uint32 // game object spawn targeted by object commands; 0 uses the target
	Entry   uint32 // creature entry for summons
	Flags   uint32
	Timer   int // door reset, summon lifetime or respawn lifetime in ms
	Pos     world.Position
	Func    string // Lua function for ScriptCallLua
}

type scriptAction struct {
	at     int64
	seq    uint64
	step   ScriptStep
	source ecs.EntityID
	target ecs.EntityID
}

// scriptSchedule is a time-ordered multimap of pending steps. Steps due at
// the same time run in the order they were scheduled.
type scriptSchedule struct {
	items []scriptAction
	seq   uint64
}

func (s *scriptSchedule) push(a scriptAction) {
	s.seq++
	a.seq = s.seq
	i := sort.Search(len(s.items), func(i int) bool {
		it := s.items[i]
		return it.at > a.at || (it.at == a.at && it.seq > a.seq)
	})
	s.items = append(s.items, scriptAction{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = a
}

func (s *scriptSchedule) popDue(now int64) []scriptAction {
	n := sort.Search(len(s.items), func(i int) bool { return s.items[i].at > now })
	if n == 0 {
		return nil
	}
	due := append([]scriptAction(nil), s.items[:n]...)
	s.items = append(s.items[:0], s.items[n:]...)
	return due
}

// ScriptsStart schedules every step of a script relative to the map clock.
func (m *Map) ScriptsStart(scriptID uint32, source, target ecs.EntityID) bool {
	if m.deps.Scripts == nil {
		return false
	}
	steps, ok := m.deps.Scripts.Script(scriptID)
	if !ok {
		m.log.Warn("unknown map script", zap.Uint32("script", scriptID))
		return false
	}
	now := m.Clock()
	m.scriptMu.Lock()
	defer m.scriptMu.Unlock()
	for _, st := range steps {
		m.schedule.push(scriptAction{at: now + int64(st.Delay), step: st, source: source, target: target})
	}
	return true
}

// ScriptCommandStart schedules a single step delay ms from now.
func (m *Map) ScriptCommandStart(step ScriptStep, delay int, source, target ecs.EntityID) {
	m.scriptMu.Lock()
	defer m.scriptMu.Unlock()
	m.schedule.push(scriptAction{at: m.Clock() + int64(delay), step: step, source: source, target: target})
}

// PendingScripts returns the number of scheduled steps.
func (m *Map) PendingScripts() int {
	m.scriptMu.Lock()
	defer m.scriptMu.Unlock()
	return len(m.schedule.items)
}

// ScriptsProcess runs every step that is due on the map clock.
func (m *Map) ScriptsProcess() {
	m.scriptMu.Lock()
	due := m.schedule.popDue(m.Clock())
	m.scriptMu.Unlock()
	for _, a := range due {
		m.runScriptStep(a)
	}
}

func (m *Map) runScriptStep(a scriptAction) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("script step panicked", zap.Stringer("command", a.step.Command), zap.Any("panic", r))
		}
	}()
	st := a.step
	switch st.Command {
	case ScriptOpenDoor:
		if h, ok := m.scriptGameObject(st, a.target); ok {
			m.OpenDoor(h, st.Timer)
		}
	case ScriptCloseDoor:
		if h, ok := m.scriptGameObject(st, a.target); ok {
			m.CloseDoor(h)
		}
	case ScriptActivateObject:
		if h, ok := m.scriptGameObject(st, a.target); ok {
			m.ActivateObject(h)
		}
	case ScriptSetFlag:
		if h, ok := m.scriptGameObject(st, a.target); ok {
			m.SetGameObjectFlags(h, st.Flags, true)
		}
	case ScriptRemoveFlag:
		if h, ok := m.scriptGameObject(st, a.target); ok {
			m.SetGameObjectFlags(h, st.Flags, false)
		}
	case ScriptRespawnGameObject:
		if h, ok := m.scriptGameObject(st, a.target); ok {
			m.RespawnGameObject(h, st.Timer)
		}
	case ScriptSummonCreature:
		if _, ok := m.SummonCreature(st.Entry, st.Pos, a.source, st.Timer); !ok {
			m.log.Warn("script summon failed", zap.Uint32("entry", st.Entry))
		}
	case ScriptDespawnSelf:
		m.despawnCreature(a.source)
	case ScriptCallLua:
		if m.deps.Lua == nil {
			return
		}
		if err := m.deps.Lua.CallScript(st.Func, m, a.source, a.target); err != nil {
			m.log.Error("lua script command failed", zap.String("func", st.Func), zap.Error(err))
		}
	default:
		m.log.Warn("unknown script command", zap.Uint8("command", uint8(st.Command)))
	}
}

func (m *Map) scriptGameObject(st ScriptStep, target ecs.EntityID) (ecs.EntityID, bool) {
	if st.SpawnID != 0 {
		hs := m.GameObjectsBySpawn(st.SpawnID)
		if len(hs) == 0 {
			m.log.Debug("script target not loaded", zap.Uint32("spawn", st.SpawnID))
			return 0, false
		}
		return hs[0], true
	}
	o, ok := m.Object(target)
	if !ok || o.Type != world.TypeGameObject {
		return 0, false
	}
	return target, true
}

// OpenDoor opens a door or presses a button. resetMs of 0 falls back to the
// template's auto-close time. Opening an open door does nothing.
func (m *Map) OpenDoor(h ecs.EntityID, resetMs int) bool {
	return m.UseDoorOrButton(h, resetMs, false)
}

// UseDoorOrButton moves a ready door or button to its active state.
func (m *Map) UseDoorOrButton(h ecs.EntityID, resetMs int, alternative bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.GameObject == nil || o.GameObject.State != world.GOStateReady {
		return false
	}
	state := world.GOStateActive
	if alternative {
		state = world.GOStateActiveAlternative
	}
	gd := o.GameObject
	if resetMs <= 0 {
		resetMs = gd.AutoClose
	}
	gd.ResetIn = resetMs
	m.setGOStateLocked(o, state)
	return true
}

// CloseDoor returns a door or button to ready.
func (m *Map) CloseDoor(h ecs.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.GameObject == nil || o.GameObject.State == world.GOStateReady {
		return false
	}
	o.GameObject.ResetIn = 0
	m.setGOStateLocked(o, world.GOStateReady)
	return true
}

// ActivateObject toggles a door or button, and marks other objects in use.
func (m *Map) ActivateObject(h ecs.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.GameObject == nil {
		return
	}
	gd := o.GameObject
	if !gd.IsDoorLike() {
		gd.Flags |= world.GOFlagInUse
		return
	}
	if gd.State == world.GOStateReady {
		gd.ResetIn = gd.AutoClose
		m.setGOStateLocked(o, world.GOStateActive)
		return
	}
	gd.ResetIn = 0
	m.setGOStateLocked(o, world.GOStateReady)
}

// SetGameObjectFlags sets or clears flag bits on a game object.
func (m *Map) SetGameObjectFlags(h ecs.EntityID, flags uint32, set bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.GameObject == nil {
		return
	}
	if set {
		o.GameObject.Flags |= flags
	} else {
		o.GameObject.Flags &^= flags
	}
}

// RespawnGameObject brings back a despawned game object. A positive
// lifetimeMs despawns it again after that long.
func (m *Map) RespawnGameObject(h ecs.EntityID, lifetimeMs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.GameObject == nil {
		return
	}
	if !o.GameObject.Spawned {
		m.respawnGameObjectLocked(o)
	}
	if lifetimeMs > 0 {
		o.GameObject.DespawnIn = lifetimeMs
	}
}

func (m *Map) despawnCreature(h ecs.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objectLocked(h)
	if o == nil || o.Creature == nil {
		return
	}
	if o.Creature.Temporary || o.SpawnID == 0 {
		m.addToRemoveListLocked(h)
		return
	}
	if !o.Creature.Dead {
		o.Creature.Dead = true
		m.setCreatureRespawnLocked(o.SpawnID, m.now()+int64(o.Creature.RespawnDelay))
	}
}

func (m *Map) setGOStateLocked(o *world.Object, state world.GameObjectState) {
	gd := o.GameObject
	if gd.State == state {
		return
	}
	gd.State = state
	if gd.Model != nil {
		m.tree.SetEnabled(gd.Model, gd.Spawned && !doorOpen(gd))
	}
	event.Emit(m.bus, event.GameObjectStateChanged{MapID: m.id, InstanceID: m.instanceID, Object: o.Handle, State: uint8(state)})
}

// GameObjectState returns the state of a game object.
func (m *Map) GameObjectState(h ecs.EntityID) (world.GameObjectState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o := m.objectLocked(h)
	if o == nil || o.GameObject == nil {
		return 0, false
	}
	return o.GameObject.State, true
}
