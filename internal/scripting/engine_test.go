package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/world"
)

const testInstanceScript = `
local T = {}

function T:initialize()
  self.data = {}
  self.created = 0
  self.elapsed = 0
end

function T:load(s) self.data[1] = tonumber(s) end
function T:save() return tostring(self.data[1] or 0) end

function T:set_data(id, v) self.data[id] = v end

function T:get_data(id)
  if id == 97 then return self.map:instance_id() end
  if id == 98 then return self.elapsed end
  if id == 99 then return self.created end
  return self.data[id] or 0
end

function T:update(diff) self.elapsed = self.elapsed + diff end
function T:on_creature_create(h, entry, spawn_id) self.created = self.created + 1 end
function T:is_encounter_in_progress() return self.data[5] == 1 end
function T:on_player_enter(h) error("boom") end

function T:on_encounter_credit(kind, entry)
  if kind == 0 and entry == 500 then return 1, true end
end

function T:reset() self.data = {} end

register_instance_script(33, T)
`

const testMapScript = `
function spawn_guard(m, source, target)
  last_summon = m:summon_creature(900, 10, 10, 0, 0, 0)
  last_target = target
end
`

func newEngine(t *testing.T, files map[string]string) *Engine {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	return e
}

var sfk = world.MapEntry{ID: 33, Name: "Shadowfang Keep", Type: world.MapDungeon, MaxPlayers: 5}

func newInstance(t *testing.T, e *Engine) (*maps.Map, maps.InstanceScript) {
	t.Helper()
	m := maps.New(sfk, 5, maps.KindInstance, world.DifficultyNormal, maps.Deps{Log: zaptest.NewLogger(t), InstanceScripts: e})
	s, ok := e.NewInstanceScript(m)
	if !ok {
		t.Fatal("no instance script for map 33")
	}
	s.Initialize()
	return m, s
}

func TestInstanceScriptMethods(t *testing.T) {
	e := newEngine(t, map[string]string{"instance/sfk.lua": testInstanceScript})
	if !e.HasInstanceScript(33) || e.HasInstanceScript(34) {
		t.Fatal("registration lookup wrong")
	}
	_, s := newInstance(t, e)

	s.SetData(2, 7)
	if got := s.GetData(2); got != 7 {
		t.Errorf("GetData(2) = %d, want 7", got)
	}
	if got := s.GetData(97); got != 5 {
		t.Errorf("instance id seen by script = %d, want 5", got)
	}
	s.Update(100)
	s.Update(50)
	if got := s.GetData(98); got != 150 {
		t.Errorf("elapsed = %d, want 150", got)
	}
	s.OnCreatureCreate(ecs.NewEntityID(3, 1), 500, 1)
	if got := s.GetData(99); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}

	if s.IsEncounterInProgress() {
		t.Error("encounter in progress before it started")
	}
	s.SetData(5, 1)
	if !s.IsEncounterInProgress() {
		t.Error("encounter not in progress")
	}

	if id, done := s.OnEncounterCredit(maps.EncounterCreditKillCreature, 500); !done || id != 1 {
		t.Errorf("credit 500 = %d, %v", id, done)
	}
	if _, done := s.OnEncounterCredit(maps.EncounterCreditKillCreature, 501); done {
		t.Error("credit 501 completed an encounter")
	}

	s.Reset()
	if got := s.GetData(2); got != 0 {
		t.Errorf("data survived reset: %d", got)
	}
}

func TestInstanceScriptSaveLoad(t *testing.T) {
	e := newEngine(t, map[string]string{"instance/sfk.lua": testInstanceScript})
	_, a := newInstance(t, e)
	a.SetData(1, 42)
	saved := a.Save()
	if saved != "42" {
		t.Fatalf("Save = %q", saved)
	}

	_, b := newInstance(t, e)
	if b.GetData(1) != 0 {
		t.Fatal("instances share state")
	}
	b.Load(saved)
	if b.GetData(1) != 42 {
		t.Errorf("loaded data = %d, want 42", b.GetData(1))
	}
}

func TestInstanceScriptErrorIsContained(t *testing.T) {
	e := newEngine(t, map[string]string{"instance/sfk.lua": testInstanceScript})
	_, s := newInstance(t, e)
	s.OnPlayerEnter(ecs.NewEntityID(1, 1))
	s.OnGameObjectCreate(ecs.NewEntityID(2, 1), 100, 7) // not defined
	s.SetData(2, 3)
	if s.GetData(2) != 3 {
		t.Error("script unusable after an error")
	}
}

func TestNoScriptForMap(t *testing.T) {
	e := newEngine(t, nil)
	m := maps.New(sfk, 5, maps.KindInstance, world.DifficultyNormal, maps.Deps{Log: zaptest.NewLogger(t)})
	if _, ok := e.NewInstanceScript(m); ok {
		t.Error("script built without registration")
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "instance"), 0o755)
	for _, name := range []string{"a.lua", "b.lua"} {
		os.WriteFile(filepath.Join(dir, "instance", name), []byte("register_instance_script(1, {})"), 0o644)
	}
	if _, err := NewEngine(dir, zaptest.NewLogger(t)); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestCallScriptSummons(t *testing.T) {
	e := newEngine(t, map[string]string{"map/guard.lua": testMapScript})
	m := maps.New(world.MapEntry{ID: 0, Type: world.MapContinent}, 0, maps.KindBase, world.DifficultyNormal, maps.Deps{Log: zaptest.NewLogger(t)})

	target := ecs.NewEntityID(7, 1<<30)
	if err := e.CallScript("spawn_guard", m, 0, target); err != nil {
		t.Fatal(err)
	}
	found := 0
	m.VisitNearby(10, 10, 5, func(o *world.Object) {
		if o.Creature != nil && o.Entry == 900 {
			found++
		}
	})
	if found != 1 {
		t.Errorf("summoned %d guards, want 1", found)
	}
	if got := e.vm.GetGlobal("last_target").String(); got != "4611686018427387911" {
		t.Errorf("handle crossed as %q", got)
	}

	if err := e.CallScript("missing", m, 0, 0); err == nil {
		t.Error("missing function called")
	}
	if err := e.Call("spawn_guard", struct{}{}); err == nil {
		t.Error("unsupported argument accepted")
	}
}

func TestShippedScriptsLoad(t *testing.T) {
	e, err := NewEngine(filepath.Join("..", "..", "scripts"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if !e.HasInstanceScript(33) {
		t.Error("shipped instance script not registered")
	}
}
