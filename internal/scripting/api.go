package scripting

import (
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/world"
)

const mapTypeName = "Map"

// Handles cross into Lua as decimal strings: the generation sits in the high
// 32 bits and would not survive a float64 round trip.
func handleValue(h ecs.EntityID) lua.LValue {
	if h.IsZero() {
		return lua.LNil
	}
	return lua.LString(strconv.FormatUint(uint64(h), 10))
}

func checkHandle(L *lua.LState, n int) ecs.EntityID {
	switch v := L.Get(n).(type) {
	case *lua.LNilType:
		return 0
	case lua.LString:
		id, err := strconv.ParseUint(string(v), 10, 64)
		if err != nil {
			L.ArgError(n, "object handle expected")
			return 0
		}
		return ecs.EntityID(id)
	default:
		L.ArgError(n, "object handle expected")
		return 0
	}
}

func handleList(L *lua.LState, hs []ecs.EntityID) *lua.LTable {
	t := L.NewTable()
	for _, h := range hs {
		t.Append(handleValue(h))
	}
	return t
}

func registerMapType(L *lua.LState) {
	mt := L.NewTypeMetatable(mapTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), mapMethods))
}

func mapValue(L *lua.LState, m *maps.Map) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = m
	L.SetMetatable(ud, L.GetTypeMetatable(mapTypeName))
	return ud
}

func checkMap(L *lua.LState) *maps.Map {
	ud := L.CheckUserData(1)
	if m, ok := ud.Value.(*maps.Map); ok {
		return m
	}
	L.ArgError(1, "map expected")
	return nil
}

// Map methods callable from scripts as m:name(...). Script callbacks run
// outside the map lock, so these call straight into the map.
var mapMethods = map[string]lua.LGFunction{
	"id": func(L *lua.LState) int {
		L.Push(lua.LNumber(checkMap(L).ID()))
		return 1
	},
	"instance_id": func(L *lua.LState) int {
		L.Push(lua.LNumber(checkMap(L).InstanceID()))
		return 1
	},
	"difficulty": func(L *lua.LState) int {
		L.Push(lua.LNumber(checkMap(L).Difficulty()))
		return 1
	},
	"player_count": func(L *lua.LState) int {
		L.Push(lua.LNumber(len(checkMap(L).Players())))
		return 1
	},
	"open_door": func(L *lua.LState) int {
		m := checkMap(L)
		L.Push(lua.LBool(m.OpenDoor(checkHandle(L, 2), L.OptInt(3, 0))))
		return 1
	},
	"close_door": func(L *lua.LState) int {
		m := checkMap(L)
		L.Push(lua.LBool(m.CloseDoor(checkHandle(L, 2))))
		return 1
	},
	"activate": func(L *lua.LState) int {
		checkMap(L).ActivateObject(checkHandle(L, 2))
		return 0
	},
	"set_flags": func(L *lua.LState) int {
		checkMap(L).SetGameObjectFlags(checkHandle(L, 2), uint32(L.CheckInt(3)), true)
		return 0
	},
	"remove_flags": func(L *lua.LState) int {
		checkMap(L).SetGameObjectFlags(checkHandle(L, 2), uint32(L.CheckInt(3)), false)
		return 0
	},
	"summon_creature": func(L *lua.LState) int {
		m := checkMap(L)
		pos := world.Position{
			X: float32(L.CheckNumber(3)),
			Y: float32(L.CheckNumber(4)),
			Z: float32(L.OptNumber(5, 0)),
			O: float32(L.OptNumber(6, 0)),
		}
		h, ok := m.SummonCreature(uint32(L.CheckInt(2)), pos, 0, L.OptInt(7, 0))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(handleValue(h))
		return 1
	},
	"kill": func(L *lua.LState) int {
		checkMap(L).KillCreature(checkHandle(L, 2))
		return 0
	},
	"start_script": func(L *lua.LState) int {
		m := checkMap(L)
		L.Push(lua.LBool(m.ScriptsStart(uint32(L.CheckInt(2)), checkHandle(L, 3), checkHandle(L, 4))))
		return 1
	},
	"creatures_by_spawn": func(L *lua.LState) int {
		m := checkMap(L)
		L.Push(handleList(L, m.CreaturesBySpawn(uint32(L.CheckInt(2)))))
		return 1
	},
	"gameobjects_by_spawn": func(L *lua.LState) int {
		m := checkMap(L)
		L.Push(handleList(L, m.GameObjectsBySpawn(uint32(L.CheckInt(2)))))
		return 1
	},
	"encounter_done": func(L *lua.LState) int {
		m := checkMap(L)
		in := m.Instance()
		L.Push(lua.LBool(in != nil && in.EncounterDone(uint32(L.CheckInt(2)))))
		return 1
	},
}
