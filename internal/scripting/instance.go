package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/maps"
)

// luaInstance is the encounter state of one instance, held in a Lua table
// whose methods fall back to the script table registered for the map.
type luaInstance struct {
	e    *Engine
	self *lua.LTable
	log  *zap.Logger
}

// NewInstanceScript builds the script of an instance from the table
// registered for its map.
func (e *Engine) NewInstanceScript(m *maps.Map) (maps.InstanceScript, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	proto, ok := e.instances[m.ID()]
	if !ok {
		return nil, false
	}
	L := e.vm
	self := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", proto)
	L.SetMetatable(self, mt)
	self.RawSetString("map", mapValue(L, m))
	return &luaInstance{
		e:    e,
		self: self,
		log:  e.log.With(zap.Uint32("map", m.ID()), zap.Uint32("instance", m.InstanceID())),
	}, true
}

// call runs self:name(args...) and returns nret results. A missing method
// yields nil results.
func (s *luaInstance) call(name string, nret int, args ...lua.LValue) []lua.LValue {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	L := s.e.vm
	fn := L.GetField(s.self, name)
	if fn.Type() != lua.LTFunction {
		return make([]lua.LValue, nret)
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, append([]lua.LValue{s.self}, args...)...); err != nil {
		s.log.Error("lua instance script error", zap.String("method", name), zap.Error(err))
		return make([]lua.LValue, nret)
	}
	out := make([]lua.LValue, nret)
	for i := range out {
		out[i] = L.Get(-nret + i)
	}
	L.Pop(nret)
	return out
}

func num(v lua.LValue) uint32 {
	if n, ok := v.(lua.LNumber); ok {
		return uint32(n)
	}
	return 0
}

func (s *luaInstance) Initialize()      { s.call("initialize", 0) }
func (s *luaInstance) Load(data string) { s.call("load", 0, lua.LString(data)) }
func (s *luaInstance) Update(diff int)  { s.call("update", 0, lua.LNumber(diff)) }
func (s *luaInstance) Reset()           { s.call("reset", 0) }

func (s *luaInstance) Save() string {
	if v, ok := s.call("save", 1)[0].(lua.LString); ok {
		return string(v)
	}
	return ""
}

func (s *luaInstance) IsEncounterInProgress() bool {
	v := s.call("is_encounter_in_progress", 1)[0]
	return v != nil && lua.LVAsBool(v)
}

func (s *luaInstance) OnPlayerEnter(player ecs.EntityID) {
	s.call("on_player_enter", 0, handleValue(player))
}

func (s *luaInstance) OnCreatureCreate(h ecs.EntityID, entry, spawnID uint32) {
	s.call("on_creature_create", 0, handleValue(h), lua.LNumber(entry), lua.LNumber(spawnID))
}

func (s *luaInstance) OnGameObjectCreate(h ecs.EntityID, entry, spawnID uint32) {
	s.call("on_gameobject_create", 0, handleValue(h), lua.LNumber(entry), lua.LNumber(spawnID))
}

func (s *luaInstance) SetData(id, value uint32) {
	s.call("set_data", 0, lua.LNumber(id), lua.LNumber(value))
}

func (s *luaInstance) GetData(id uint32) uint32 {
	return num(s.call("get_data", 1, lua.LNumber(id))[0])
}

func (s *luaInstance) OnEncounterCredit(kind maps.EncounterCreditType, entry uint32) (uint32, bool) {
	r := s.call("on_encounter_credit", 2, lua.LNumber(kind), lua.LNumber(entry))
	if r[1] == nil || !lua.LVAsBool(r[1]) {
		return 0, false
	}
	return num(r[0]), true
}
