package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/maps"
)

// Engine wraps a single gopher-lua VM shared by every map. Maps update on
// their own goroutines, so every entry into the VM holds mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger

	instances map[uint32]*lua.LTable // instance script tables by map id
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log.Named("lua"), instances: make(map[uint32]*lua.LTable)}
	e.registerAPI()

	// core helpers first; instance and map scripts may use them
	for _, sub := range []string{"core", "instance", "map"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	e.log.Info("lua scripts loaded", zap.Int("instance_scripts", len(e.instances)))
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) registerAPI() {
	e.vm.SetGlobal("register_instance_script", e.vm.NewFunction(e.luaRegisterInstance))
	e.vm.SetGlobal("log_info", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Info(L.CheckString(1))
		return 0
	}))
	registerMapType(e.vm)
}

// register_instance_script(map_id, table)
func (e *Engine) luaRegisterInstance(L *lua.LState) int {
	mapID := uint32(L.CheckInt(1))
	tbl := L.CheckTable(2)
	if _, dup := e.instances[mapID]; dup {
		L.RaiseError("instance script for map %d registered twice", mapID)
		return 0
	}
	e.instances[mapID] = tbl
	return 0
}

// HasInstanceScript reports whether a script is registered for mapID.
func (e *Engine) HasInstanceScript(mapID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.instances[mapID]
	return ok
}

// Call runs the global Lua function fn with args converted to Lua values.
// Accepted args are string, bool, integer types, float64, ecs.EntityID and
// *maps.Map.
func (e *Engine) Call(fn string, args ...any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.vm.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		return fmt.Errorf("lua function %s not found", fn)
	}
	largs := make([]lua.LValue, 0, len(args))
	for _, a := range args {
		v, err := e.toLua(a)
		if err != nil {
			return fmt.Errorf("call %s: %w", fn, err)
		}
		largs = append(largs, v)
	}
	if err := e.vm.CallByParam(lua.P{Fn: f, NRet: 0, Protect: true}, largs...); err != nil {
		return fmt.Errorf("call %s: %w", fn, err)
	}
	return nil
}

// CallScript backs the call-Lua map script command: fn(map, source, target).
func (e *Engine) CallScript(fn string, m *maps.Map, source, target ecs.EntityID) error {
	return e.Call(fn, m, source, target)
}

func (e *Engine) toLua(a any) (lua.LValue, error) {
	switch v := a.(type) {
	case nil:
		return lua.LNil, nil
	case string:
		return lua.LString(v), nil
	case bool:
		return lua.LBool(v), nil
	case int:
		return lua.LNumber(v), nil
	case int64:
		return lua.LNumber(v), nil
	case uint32:
		return lua.LNumber(v), nil
	case float64:
		return lua.LNumber(v), nil
	case ecs.EntityID:
		return handleValue(v), nil
	case *maps.Map:
		return mapValue(e.vm, v), nil
	default:
		return nil, fmt.Errorf("unsupported lua argument %T", a)
	}
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
