package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/terrain"
	"github.com/warheadgo/server/internal/world"
)

func writeYAML(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMapTable(t *testing.T) {
	path := writeYAML(t, "map_list.yaml", `
maps:
  - map_id: 0
    name: Eastern Kingdoms
    type: continent
  - map_id: 33
    name: Shadowfang Keep
    type: dungeon
    max_players: 5
    difficulties: [heroic]
    parent: 0
    entrance_x: -230.5
    entrance_y: 1571.5
  - map_id: 489
    name: Warsong Gulch
    type: battleground
areas:
  - area_id: 12
    zone_id: 1
`)
	tbl, err := LoadMapTable(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Count() != 3 {
		t.Fatalf("Count = %d, want 3", tbl.Count())
	}
	e, ok := tbl.MapEntry(33)
	if !ok || e.Type != world.MapDungeon || e.MaxPlayers != 5 || !e.HasDifficulty(world.DifficultyHeroic) {
		t.Errorf("entry 33 = %+v", e)
	}
	if e.Entrance.X != -230.5 {
		t.Errorf("entrance = %+v", e.Entrance)
	}
	if got := tbl.BaseMaps(); len(got) != 1 || got[0] != 0 {
		t.Errorf("BaseMaps = %v", got)
	}
	if tbl.ZoneForArea(12) != 1 || tbl.ZoneForArea(40) != 40 {
		t.Error("zone lookup wrong")
	}
}

func TestLoadMapTableRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown type", "maps:\n  - map_id: 1\n    type: moon\n"},
		{"unknown difficulty", "maps:\n  - map_id: 1\n    type: raid\n    difficulties: [mythic]\n"},
		{"duplicate", "maps:\n  - map_id: 1\n    type: continent\n  - map_id: 1\n    type: continent\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadMapTable(writeYAML(t, "map_list.yaml", tt.body)); err == nil {
				t.Error("LoadMapTable succeeded")
			}
		})
	}
}

var smallLayout = grid.Layout{GridsPerSide: 4, GridSize: 64, CellsPerGrid: 4, Resolution: 16}

func TestSpawnTableBucketsByGrid(t *testing.T) {
	path := writeYAML(t, "spawn_list.yaml", `
creatures:
  - {spawn_id: 1, entry: 500, map_id: 0, x: 10, y: 10, respawn_delay: 60}
  - {spawn_id: 2, entry: 501, map_id: 0, x: -10, y: 10}
  - {spawn_id: 3, entry: 502, map_id: 33, x: 10, y: 10, spawn_mask: 2}
gameobjects:
  - {spawn_id: 1, entry: 100, map_id: 0, x: 20, y: 20, phase_mask: 3}
`)
	tbl, err := LoadSpawnTable(path, smallLayout)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Count() != 4 {
		t.Fatalf("Count = %d, want 4", tbl.Count())
	}
	g := smallLayout.ComputeGridCoord(10, 10)
	rows := tbl.GridSpawns(0, world.DifficultyNormal, g)
	if len(rows) != 2 {
		t.Fatalf("grid %v spawns = %+v", g, rows)
	}
	for _, s := range rows {
		switch s.Kind {
		case world.SpawnCreature:
			if s.ID != 1 || s.PhaseMask != 1 || s.RespawnDelay != 60 {
				t.Errorf("creature = %+v", s)
			}
		case world.SpawnGameObject:
			if s.Entry != 100 || s.PhaseMask != 3 {
				t.Errorf("gameobject = %+v", s)
			}
		}
	}
	if n := len(tbl.GridSpawns(33, world.DifficultyNormal, g)); n != 0 {
		t.Errorf("heroic-only spawn in normal: %d", n)
	}
	if n := len(tbl.GridSpawns(33, world.DifficultyHeroic, g)); n != 1 {
		t.Errorf("heroic spawns = %d, want 1", n)
	}
}

func TestSpawnTableRejectsBadRows(t *testing.T) {
	dup := "creatures:\n  - {spawn_id: 1, x: 1, y: 1}\n  - {spawn_id: 1, x: 2, y: 2}\n"
	if _, err := LoadSpawnTable(writeYAML(t, "s.yaml", dup), smallLayout); err == nil {
		t.Error("duplicate spawn id accepted")
	}
	outside := "creatures:\n  - {spawn_id: 1, x: 500, y: 1}\n"
	if _, err := LoadSpawnTable(writeYAML(t, "s.yaml", outside), smallLayout); err == nil {
		t.Error("spawn outside the map accepted")
	}
}

func TestLoadGameObjectTable(t *testing.T) {
	path := writeYAML(t, "gameobject_list.yaml", `
gameobjects:
  - {entry: 100, name: Gate, type: door, half_extents: [1, 4, 3], auto_close_ms: 5000}
  - {entry: 101, name: Brazier}
`)
	tbl, err := LoadGameObjectTable(path)
	if err != nil {
		t.Fatal(err)
	}
	door, ok := tbl.GameObjectTemplate(100)
	if !ok || door.Kind != world.GameObjectDoor || !door.HasModel() || door.AutoCloseMs != 5000 {
		t.Errorf("door = %+v", door)
	}
	if b, _ := tbl.GameObjectTemplate(101); b.Kind != world.GameObjectGeneric || b.HasModel() {
		t.Errorf("brazier = %+v", b)
	}
	if _, err := LoadGameObjectTable(writeYAML(t, "g.yaml", "gameobjects:\n  - {entry: 1, type: cannon}\n")); err == nil {
		t.Error("unknown type accepted")
	}
}

func TestLoadMapScriptTable(t *testing.T) {
	path := writeYAML(t, "map_scripts.yaml", `
scripts:
  - id: 1
    note: gong opens the gate
    steps:
      - {delay: 0, command: call_lua, func: on_gong}
      - {delay: 5000, command: open_door, spawn_id: 7, timer: 30000}
      - {delay: 5000, command: summon_creature, entry: 900, x: 30, y: 30, timer: 60000}
`)
	tbl, err := LoadMapScriptTable(path)
	if err != nil {
		t.Fatal(err)
	}
	steps, ok := tbl.Script(1)
	if !ok || len(steps) != 3 {
		t.Fatalf("script 1 = %+v", steps)
	}
	if steps[0].Command != maps.ScriptCallLua || steps[0].Func != "on_gong" {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Command != maps.ScriptOpenDoor || steps[1].SpawnID != 7 || steps[1].Delay != 5000 {
		t.Errorf("step 1 = %+v", steps[1])
	}
	if steps[2].Pos.X != 30 || steps[2].Entry != 900 {
		t.Errorf("step 2 = %+v", steps[2])
	}

	for _, body := range []string{
		"scripts:\n  - id: 2\n    steps:\n      - {command: explode}\n",
		"scripts:\n  - id: 2\n    steps:\n      - {command: call_lua}\n",
	} {
		if _, err := LoadMapScriptTable(writeYAML(t, "m.yaml", body)); err == nil {
			t.Errorf("accepted %q", body)
		}
	}
}

func TestLiquidTypeTable(t *testing.T) {
	tbl, err := LoadLiquidTypeTable(writeYAML(t, "liquid_types.yaml", "liquids:\n  - {entry: 5, type: magma}\n"))
	if err != nil {
		t.Fatal(err)
	}
	var lookup terrain.LiquidTypeLookup = tbl.Lookup
	if f, ok := lookup(5); !ok || f != terrain.LiquidTypeMagma {
		t.Errorf("Lookup(5) = %#x, %v", f, ok)
	}
	if _, ok := lookup(6); ok {
		t.Error("unlisted entry overridden")
	}
}

func TestShippedDataLoads(t *testing.T) {
	dir := filepath.Join("..", "..", "data", "yaml")
	mt, err := LoadMapTable(filepath.Join(dir, "map_list.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if got := mt.ZoneForArea(87); got != 12 {
		t.Errorf("Goldshire zone = %d, want 12", got)
	}
	if _, err := LoadSpawnTable(filepath.Join(dir, "spawn_list.yaml"), grid.DefaultLayout()); err != nil {
		t.Error(err)
	}
	if _, err := LoadGameObjectTable(filepath.Join(dir, "gameobject_list.yaml")); err != nil {
		t.Error(err)
	}
	if _, err := LoadMapScriptTable(filepath.Join(dir, "map_scripts.yaml")); err != nil {
		t.Error(err)
	}
	if _, err := LoadLiquidTypeTable(filepath.Join(dir, "liquid_types.yaml")); err != nil {
		t.Error(err)
	}
}
