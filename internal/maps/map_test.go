package maps

import (
	"sync"
	"testing"
	"time"

	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/terrain"
	"github.com/warheadgo/server/internal/world"
)

func init() { debugAsserts = true }

// testLayout is a 4x4 grid world, 64 units per grid and 16 units per cell.
// Grid (2,2) covers x, y in [0, 64).
var testLayout = grid.Layout{GridsPerSide: 4, GridSize: 64, CellsPerGrid: 4, Resolution: 16}

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type spawnTable struct {
	spawns []world.Spawn
}

func (s *spawnTable) GridSpawns(mapID uint32, _ world.Difficulty, g grid.GridCoord) []world.Spawn {
	var out []world.Spawn
	for _, sp := range s.spawns {
		if sp.MapID == mapID && testLayout.ComputeGridCoord(sp.Pos.X, sp.Pos.Y) == g {
			out = append(out, sp)
		}
	}
	return out
}

type goTemplates map[uint32]world.GameObjectTemplate

func (t goTemplates) GameObjectTemplate(entry uint32) (world.GameObjectTemplate, bool) {
	tmpl, ok := t[entry]
	return tmpl, ok
}

type scriptTable map[uint32][]ScriptStep

func (s scriptTable) Script(id uint32) ([]ScriptStep, bool) {
	steps, ok := s[id]
	return steps, ok
}

// countingTiles serves the same encoded tile for every coordinate.
type countingTiles struct {
	mu    sync.Mutex
	data  []byte
	loads int
}

func (c *countingTiles) LoadTile(uint32, int, int) (*terrain.GridMap, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return terrain.Load(c.data, testLayout)
}

func (c *countingTiles) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func newTiles(t *testing.T, spec terrain.TileSpec) *countingTiles {
	t.Helper()
	data, err := terrain.Encode(spec, testLayout.Resolution)
	if err != nil {
		t.Fatalf("encode tile: %v", err)
	}
	return &countingTiles{data: data}
}

var (
	continentEntry = world.MapEntry{ID: 0, Name: "continent", Type: world.MapContinent}
	dungeonEntry   = world.MapEntry{ID: 33, Name: "dungeon", Type: world.MapDungeon, MaxPlayers: 2}
	raidEntry      = world.MapEntry{ID: 409, Name: "raid", Type: world.MapRaid, MaxPlayers: 40, Difficulties: []world.Difficulty{world.DifficultyRaid10Heroic}}
)

func testDeps(clock *testClock) Deps {
	return Deps{Layout: testLayout, Clock: clock.Now}
}

func newPlayer(n uint32, x, y float32) *world.Object {
	return world.NewPlayer(world.NewGuid(world.HighPlayer, 0, n), "p", world.Position{X: x, Y: y}, 1)
}

func newTestCreature(m *Map, x, y float32) *world.Object {
	return world.NewCreature(m.GenerateGuid(world.HighUnit, 500), 0, world.Position{X: x, Y: y}, 1, 0)
}

func TestAddRemovePlayer(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	p := newPlayer(1, 10, 10)
	if !m.AddPlayerToMap(p) {
		t.Fatal("AddPlayerToMap failed")
	}
	if !m.IsGridLoaded(grid.GridCoord{X: 2, Y: 2}) {
		t.Error("player grid not loaded")
	}
	if got, ok := m.GetPlayer(p.Guid); !ok || got != p {
		t.Fatal("GetPlayer did not find the player")
	}
	if m.PlayerCount() != 1 {
		t.Fatalf("PlayerCount = %d, want 1", m.PlayerCount())
	}

	h := p.Handle
	if got := m.RemovePlayerFromMap(h, false); got != p {
		t.Fatal("RemovePlayerFromMap returned a different object")
	}
	if m.HavePlayers() {
		t.Error("players left after removal")
	}
	if _, ok := m.Object(h); ok {
		t.Error("handle still resolves after removal")
	}
	if _, ok := m.GetPlayer(p.Guid); ok {
		t.Error("guid still resolves after removal")
	}

	outside := newPlayer(2, 1000, 1000)
	if m.AddPlayerToMap(outside) {
		t.Error("player outside the map was added")
	}
}

func TestRemoveListAppliesOnUpdate(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	c := newTestCreature(m, 10, 10)
	if !m.AddToMap(c, false) {
		t.Fatal("AddToMap failed")
	}
	h := c.Handle
	m.AddObjectToRemoveList(h)
	if !m.IsQueuedForRemoval(h) {
		t.Fatal("not queued for removal")
	}
	if _, ok := m.Object(h); !ok {
		t.Fatal("queued object removed before update")
	}
	m.Update(100)
	if _, ok := m.Object(h); ok {
		t.Error("object still present after update")
	}
	if _, ok := m.GetCreature(c.Guid); ok {
		t.Error("guid still resolves after update")
	}
}

func TestSwitchListCancels(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	c := newTestCreature(m, 10, 10)
	m.AddToMap(c, false)

	m.AddObjectToSwitchList(c.Handle, true)
	m.AddObjectToSwitchList(c.Handle, false)
	m.Update(100)
	if m.IsActive(c.Handle) {
		t.Fatal("cancelled switch made the object active")
	}

	m.AddObjectToSwitchList(c.Handle, true)
	m.Update(100)
	if !m.IsActive(c.Handle) {
		t.Fatal("switch did not make the object active")
	}
}

func TestCreatureRelocationDeferred(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	c := newTestCreature(m, 10, 10)
	m.AddToMap(c, false)
	h := c.Handle

	// Same cell: applied at once.
	if !m.CreatureRelocation(h, world.Position{X: 12, Y: 12}) {
		t.Fatal("in-cell relocation refused")
	}
	if o, _ := m.Object(h); o.Pos.X != 12 || m.PendingMove(h) {
		t.Fatalf("in-cell move: pos %v pending %v", o.Pos, m.PendingMove(h))
	}

	// Other cell of the same grid: waits for the update.
	m.CreatureRelocation(h, world.Position{X: 40, Y: 10})
	if !m.PendingMove(h) {
		t.Fatal("cell change not deferred")
	}
	m.Update(100)
	o, _ := m.Object(h)
	if m.PendingMove(h) || o.Pos.X != 40 {
		t.Fatalf("after update: pos %v pending %v", o.Pos, m.PendingMove(h))
	}
	if want := testLayout.CellAt(40, 10); o.Cell != want {
		t.Errorf("cell = %+v, want %+v", o.Cell, want)
	}

	// Unloaded target grid: the spawned creature returns home.
	m.CreatureRelocation(h, world.Position{X: -40, Y: -40})
	m.Update(100)
	o, _ = m.Object(h)
	if o.Pos != o.Creature.Home {
		t.Errorf("pos = %v, want home %v", o.Pos, o.Creature.Home)
	}
}

func TestInCellMoveCancelsQueuedMove(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	c := newTestCreature(m, 10, 10)
	m.AddToMap(c, false)
	h := c.Handle

	m.CreatureRelocation(h, world.Position{X: 40, Y: 10})
	m.CreatureRelocation(h, world.Position{X: 11, Y: 11})
	m.Update(100)
	o, _ := m.Object(h)
	if o.Pos.X != 11 || o.Cell != testLayout.CellAt(11, 11) {
		t.Fatalf("pos %v cell %+v, want the in-cell move to win", o.Pos, o.Cell)
	}
}

func TestPlayerRelocationIsAtomicForVisitors(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	p := newPlayer(1, 10, 10)
	if !m.AddPlayerToMap(p) {
		t.Fatal("AddPlayerToMap failed")
	}
	h, guid := p.Handle, p.Guid

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			pos := world.Position{X: 10, Y: 10}
			if i%2 == 0 {
				pos = world.Position{X: -10, Y: -10}
			}
			m.PlayerRelocation(h, pos)
		}
	}()

	area := testLayout.CalculateCellArea(0, 0, 200)
	for {
		select {
		case <-done:
			return
		default:
		}
		seen := 0
		m.VisitCells(area, func(o *world.Object) {
			if o.Guid == guid {
				seen++
			}
		})
		if seen != 1 {
			t.Fatalf("visitor saw the player %d times", seen)
		}
	}
}

func TestVisibilityFollowsRange(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	p := newPlayer(1, 10, 10)
	m.AddPlayerToMap(p)
	near := newTestCreature(m, 20, 20)
	m.AddToMap(near, false)
	if !m.CanSee(p.Handle, near.Handle) {
		t.Fatal("player does not see a nearby creature")
	}

	far := newTestCreature(m, 10, 10)
	far.Pos = world.Position{X: 120, Y: 120}
	m.AddToMap(far, false)
	if m.CanSee(p.Handle, far.Handle) {
		t.Error("player sees a creature beyond the view range")
	}

	m.RemoveFromMap(near.Handle, false)
	if m.CanSee(p.Handle, near.Handle) {
		t.Error("removed creature still visible")
	}
}

func TestInstanceCannotEnter(t *testing.T) {
	m := New(dungeonEntry, 7, KindInstance, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	p1, p2, p3 := newPlayer(1, 10, 10), newPlayer(2, 10, 10), newPlayer(3, 10, 10)

	if st := m.CannotEnter(p1, false); st != CanEnter {
		t.Fatalf("empty instance: %v", st)
	}
	m.AddPlayerToMap(p1)
	if st := m.CannotEnter(p1, false); st != CannotEnterAlreadyInMap {
		t.Errorf("re-entry: %v, want %v", st, CannotEnterAlreadyInMap)
	}
	m.AddPlayerToMap(p2)

	tests := []struct {
		name  string
		p     *world.Object
		login bool
		gm    bool
		want  EnterState
	}{
		{"full", p3, false, false, CannotEnterMaxPlayers},
		{"login allows one over", p3, true, false, CanEnter},
		{"gm ignores limit", p3, false, true, CanEnter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Player.GM = tt.gm
			if got := m.CannotEnter(tt.p, tt.login); got != tt.want {
				t.Errorf("CannotEnter = %v, want %v", got, tt.want)
			}
		})
	}

	bound := newPlayer(4, 10, 10)
	bound.Player.SetBind(dungeonEntry.ID, world.DifficultyNormal, world.InstanceBind{InstanceID: 99, Perm: true})
	m.RemovePlayerFromMap(p2.Handle, false)
	if st := m.CannotEnter(bound, false); st != CannotEnterInstanceBindMismatch {
		t.Errorf("bound elsewhere: %v, want %v", st, CannotEnterInstanceBindMismatch)
	}
}

func TestBattlegroundCannotEnter(t *testing.T) {
	entry := world.MapEntry{ID: 489, Type: world.MapBattleground}
	m := New(entry, 12, KindBattleground, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	p := newPlayer(1, 10, 10)
	if st := m.CannotEnter(p, false); st != CannotEnterInstanceBindMismatch {
		t.Errorf("unqueued player: %v", st)
	}
	p.Player.BattlegroundID = 12
	if st := m.CannotEnter(p, false); st != CanEnter {
		t.Errorf("queued player: %v", st)
	}
}

func TestActiveObjectKeepsGridLoaded(t *testing.T) {
	deps := testDeps(&testClock{now: testEpoch})
	deps.GridUnload = true
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, deps)
	c := newTestCreature(m, 10, 10)
	c.Active = true
	m.AddToMap(c, false)
	g := grid.GridCoord{X: 2, Y: 2}
	for i := 0; i < 5; i++ {
		m.Update(100)
	}
	if !m.IsGridLoaded(g) {
		t.Fatal("grid holding an active object unloaded")
	}
	if !m.IsCellMarked(testLayout.ComputeCellCoord(10, 10)) {
		t.Error("cell of the active object not marked")
	}

	m.RemoveFromActive(c.Handle)
	m.Update(100)
	m.Update(100)
	if m.IsGridCreated(g) {
		t.Error("idle grid still loaded")
	}
}

func TestGenerateGuidIsUnique(t *testing.T) {
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, testDeps(&testClock{now: testEpoch}))
	seen := make(map[world.ObjectGuid]bool)
	for i := 0; i < 100; i++ {
		g := m.GenerateGuid(world.HighUnit, 5)
		if seen[g] {
			t.Fatalf("duplicate guid %v", g)
		}
		seen[g] = true
		if g.Entry() != 5 {
			t.Fatalf("entry = %d, want 5", g.Entry())
		}
	}
}

func TestTransportCarriesPassengers(t *testing.T) {
	deps := testDeps(&testClock{now: testEpoch})
	deps.GameObjects = goTemplates{700: {Entry: 700, Kind: world.GameObjectTransport, HalfExtents: [3]float32{5, 5, 5}}}
	m := New(continentEntry, 0, KindBase, world.DifficultyNormal, deps)

	tr, ok := m.SummonGameObject(700, world.Position{X: 20, Y: 20}, 1, 0)
	if !ok {
		t.Fatal("transport not placed")
	}
	if got := m.GetTransportForPos(1, 22, 22, 0); got != tr {
		t.Fatalf("GetTransportForPos = %v, want %v", got, tr)
	}
	if got := m.GetTransportForPos(1, 40, 40, 0); got != 0 {
		t.Errorf("point outside the transport matched %v", got)
	}

	c := newTestCreature(m, 22, 22)
	if !m.AddToMap(c, true) || c.Transport != tr {
		t.Fatal("creature did not board on add")
	}
	if !m.GameObjectRelocation(tr, world.Position{X: 23, Y: 20}) {
		t.Fatal("transport relocation refused")
	}
	if c.Pos.X != 25 || c.Pos.Y != 22 {
		t.Errorf("passenger at (%v, %v), want (25, 22)", c.Pos.X, c.Pos.Y)
	}

	if !m.AllTransportsEmpty() {
		t.Error("creature passengers count as players")
	}
	p := newPlayer(1, 24, 21)
	m.AddPlayerToMap(p)
	if !m.Board(p.Handle, tr) || m.AllTransportsEmpty() {
		t.Fatal("player did not board")
	}
	m.AllTransportsRemovePassengers()
	if !m.AllTransportsEmpty() || p.Transport != 0 || c.Transport != 0 {
		t.Error("passengers still attached")
	}
}
