package maps

import (
	"testing"

	"github.com/warheadgo/server/internal/collision"
	"github.com/warheadgo/server/internal/core/event"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/terrain"
	"github.com/warheadgo/server/internal/world"
)

func TestIdleGridUnloadsOnceAndReloads(t *testing.T) {
	tiles := newTiles(t, terrain.TileSpec{Height: &terrain.HeightSpec{Encoding: terrain.EncodingFlat, Flat: 5}})
	spawns := &spawnTable{spawns: []world.Spawn{
		{ID: 1, Kind: world.SpawnCreature, Entry: 500, MapID: 0, Pos: world.Position{X: 20, Y: 20}, PhaseMask: 1, RespawnDelay: 60},
	}}
	deps := testDeps(&testClock{now: testEpoch})
	deps.Tiles = tiles
	deps.Spawns = spawns
	deps.GridUnload = true
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, deps)

	unloaded := 0
	event.Subscribe(m.Bus(), func(e event.GridUnloaded) { unloaded++ })

	g := grid.GridCoord{X: 2, Y: 2}
	if !m.LoadGrid(20, 20) {
		t.Fatal("LoadGrid failed")
	}
	if len(m.CreaturesBySpawn(1)) != 1 {
		t.Fatal("spawn not loaded with its grid")
	}
	if tiles.Loads() != 1 {
		t.Fatalf("tile loads = %d, want 1", tiles.Loads())
	}

	for i := 0; i < 4; i++ {
		m.Update(100)
	}
	if unloaded != 1 {
		t.Fatalf("GridUnloaded delivered %d times, want 1", unloaded)
	}
	if m.IsGridCreated(g) || m.GridState(g) != grid.StateUnloaded {
		t.Fatal("grid still present after unload")
	}
	if len(m.CreaturesBySpawn(1)) != 0 {
		t.Fatal("spawn survived its grid")
	}

	// Terrain queries reload the tile rather than answer from stale state.
	if h := m.GetGridHeight(20, 20); h != 5 {
		t.Errorf("height after unload = %v, want 5", h)
	}
	if tiles.Loads() != 2 {
		t.Errorf("tile loads = %d, want 2", tiles.Loads())
	}
	if !m.LoadGrid(20, 20) || len(m.CreaturesBySpawn(1)) != 1 {
		t.Error("grid objects not restored on reload")
	}
}

func TestInstanceGridsNeverIdleUnload(t *testing.T) {
	deps := testDeps(&testClock{now: testEpoch})
	deps.GridUnload = true
	m := New(dungeonEntry, 3, KindInstance, world.DifficultyNormal, deps)
	m.LoadGrid(20, 20)
	for i := 0; i < 5; i++ {
		m.Update(100)
	}
	if !m.IsGridLoaded(grid.GridCoord{X: 2, Y: 2}) {
		t.Fatal("instance grid unloaded")
	}
	m.UnloadAll()
	if len(m.LoadedGrids()) != 0 {
		t.Fatal("UnloadAll left grids behind")
	}
}

func TestMissingTileAnswersNoGround(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	if h := m.GetGridHeight(20, 20); h != terrain.InvalidHeight {
		t.Errorf("height = %v, want InvalidHeight", h)
	}
	if h := m.GetHeight(1, 20, 20, 10, true, terrain.DefaultHeightSearch); h > terrain.InvalidHeight {
		t.Errorf("GetHeight = %v, want no floor", h)
	}
	if a := m.GetAreaId(20, 20, 0); a != 0 {
		t.Errorf("area = %d, want 0", a)
	}
}

func TestQueryOnlyTileReleasedOnIdlePass(t *testing.T) {
	tests := []struct {
		name       string
		entry      world.MapEntry
		instanceID uint32
		kind       Kind
		gridUnload bool
		wantLoads  int
	}{
		{"continent with grid unload", continentEntry, 0, KindBase, true, 2},
		{"continent without grid unload", continentEntry, 0, KindBase, false, 1},
		{"instance", dungeonEntry, 3, KindInstance, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiles := newTiles(t, terrain.TileSpec{Height: &terrain.HeightSpec{Encoding: terrain.EncodingFlat, Flat: 5}})
			deps := testDeps(&testClock{now: testEpoch})
			deps.Tiles = tiles
			deps.GridUnload = tt.gridUnload
			m := New(tt.entry, tt.instanceID, tt.kind, world.DifficultyNormal, deps)

			if h := m.GetGridHeight(20, 20); h != 5 {
				t.Fatalf("height = %v, want 5", h)
			}
			if m.IsGridCreated(grid.GridCoord{X: 2, Y: 2}) {
				t.Fatal("terrain query created a grid")
			}
			m.Update(100)
			if h := m.GetGridHeight(20, 20); h != 5 {
				t.Fatalf("height after update = %v, want 5", h)
			}
			if got := tiles.Loads(); got != tt.wantLoads {
				t.Errorf("tile loads = %d, want %d", got, tt.wantLoads)
			}
		})
	}
}

type zoneTable map[uint32]uint32

func (z zoneTable) ZoneForArea(area uint32) uint32 { return z[area] }

func TestAreaAndZone(t *testing.T) {
	deps := testDeps(&testClock{now: testEpoch})
	deps.Tiles = newTiles(t, terrain.TileSpec{Area: &terrain.AreaSpec{GridArea: 12}})
	deps.Zones = zoneTable{12: 1}
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, deps)
	zone, area := m.GetZoneAndAreaId(20, 20, 0)
	if area != 12 || zone != 1 {
		t.Errorf("zone, area = %d, %d, want 1, 12", zone, area)
	}
}

func TestLiquidThroughMap(t *testing.T) {
	deps := testDeps(&testClock{now: testEpoch})
	deps.Tiles = newTiles(t, terrain.TileSpec{
		Height: &terrain.HeightSpec{Encoding: terrain.EncodingFlat, Flat: 10},
		Liquid: &terrain.LiquidSpec{
			GlobalEntry: 5,
			GlobalFlags: terrain.LiquidTypeWater,
			Width:       16,
			Height:      16,
			Level:       20,
		},
	})
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, deps)
	const x, y = 20, 20

	if lvl := m.GetWaterLevel(x, y); lvl != 20 {
		t.Fatalf("water level = %v, want 20", lvl)
	}
	tests := []struct {
		name       string
		z          float32
		inWater    bool
		underWater bool
	}{
		{"deep", 15, true, true},
		{"surface", 19, true, false},
		{"above", 25, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsInWater(1, x, y, tt.z, 2); got != tt.inWater {
				t.Errorf("IsInWater = %v, want %v", got, tt.inWater)
			}
			if got := m.IsUnderWater(1, x, y, tt.z, 2); got != tt.underWater {
				t.Errorf("IsUnderWater = %v, want %v", got, tt.underWater)
			}
		})
	}

	level, ground := m.GetWaterOrGroundLevel(1, x, y, 30, 2)
	if level != 20 || ground != 10 {
		t.Errorf("water or ground = %v, %v, want 20, 10", level, ground)
	}

	st := m.GetFullTerrainStatusForPosition(1, x, y, 15, 2, terrain.AllLiquids)
	if st.FloorZ != 10 || st.Liquid.Level != 20 || !st.Liquid.Status.Has(terrain.LiquidInWater) {
		t.Errorf("full status = %+v", st)
	}
}

func TestDoorBlocksLineOfSightUntilOpened(t *testing.T) {
	deps := testDeps(&testClock{now: testEpoch})
	deps.GameObjects = goTemplates{100: {Entry: 100, Kind: world.GameObjectDoor, HalfExtents: [3]float32{1, 1, 1}}}
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, deps)
	h, ok := m.SummonGameObject(100, world.Position{X: 20, Y: 20}, 1, 0)
	if !ok {
		t.Fatal("SummonGameObject failed")
	}

	a, b := world.Position{X: 20, Y: 10}, world.Position{X: 20, Y: 30}
	if m.IsInLineOfSight(1, a, b, collision.CheckAll, collision.IgnoreNothing) {
		t.Fatal("closed door does not block line of sight")
	}
	if !m.OpenDoor(h, 0) {
		t.Fatal("OpenDoor refused")
	}
	if !m.IsInLineOfSight(1, a, b, collision.CheckAll, collision.IgnoreNothing) {
		t.Error("open door still blocks line of sight")
	}
	if !m.IsInLineOfSight(2, a, b, collision.CheckAll, collision.IgnoreNothing) {
		t.Error("door blocks another phase")
	}

	if f := m.GetGameObjectFloor(1, 20, 20, 5, 10); f != collision.NoHeight {
		t.Errorf("open door floor = %v, want none", f)
	}
	m.CloseDoor(h)
	if f := m.GetGameObjectFloor(1, 20, 20, 5, 10); f != 1 {
		t.Errorf("closed door floor = %v, want 1", f)
	}
}
