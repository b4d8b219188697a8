package maps

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/warheadgo/server/internal/world"
)

type entryTable map[uint32]world.MapEntry

func (e entryTable) MapEntry(id uint32) (world.MapEntry, bool) {
	me, ok := e[id]
	return me, ok
}

var (
	uninstancedEntry = world.MapEntry{ID: 44, Type: world.MapDungeon, Uninstanced: true}
	bgEntry          = world.MapEntry{ID: 489, Type: world.MapBattleground}
)

func testManager(clock *testClock) *Manager {
	deps := testDeps(clock)
	deps.InstanceUnloadDelay = 1000
	entries := entryTable{
		continentEntry.ID:   continentEntry,
		dungeonEntry.ID:     dungeonEntry,
		raidEntry.ID:        raidEntry,
		uninstancedEntry.ID: uninstancedEntry,
		bgEntry.ID:          bgEntry,
	}
	return NewManager(deps, entries, ManagerConfig{Workers: 2, FirstInstanceID: 100})
}

func TestManagerCreateMaps(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(&testClock{now: testEpoch})

	base, err := mgr.CreateBaseMap(ctx, continentEntry.ID)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := mgr.CreateBaseMap(ctx, continentEntry.ID)
	if base != again || mgr.FindMap(continentEntry.ID, 0) != base {
		t.Error("base map not shared")
	}
	if _, err := mgr.CreateBaseMap(ctx, dungeonEntry.ID); err == nil {
		t.Error("base map created for a dungeon")
	}
	if _, err := mgr.CreateBaseMap(ctx, 12345); err == nil {
		t.Error("base map created for an unknown id")
	}

	inst, err := mgr.CreateInstance(ctx, dungeonEntry.ID, 0, world.DifficultyHeroic, "")
	if err != nil {
		t.Fatal(err)
	}
	if inst.InstanceID() != 100 || inst.Kind() != KindInstance {
		t.Errorf("instance id %d kind %v", inst.InstanceID(), inst.Kind())
	}
	if inst.Difficulty() != world.DifficultyNormal {
		t.Errorf("unsupported difficulty kept: %v", inst.Difficulty())
	}
	bg, err := mgr.CreateBattleground(ctx, bgEntry.ID, 0)
	if err != nil || bg.InstanceID() != 101 || bg.Battleground() == nil {
		t.Fatalf("battleground: %v", err)
	}
	if mgr.Count() != 3 {
		t.Errorf("Count = %d, want 3", mgr.Count())
	}
}

func TestPlayerCannotEnter(t *testing.T) {
	clock := &testClock{now: testEpoch}
	mgr := testManager(clock)

	tests := []struct {
		name  string
		mapID uint32
		setup func(p *world.PlayerData)
		want  EnterState
	}{
		{"unknown map", 12345, nil, CannotEnterNoEntry},
		{"continent", continentEntry.ID, nil, CanEnter},
		{"uninstanced", uninstancedEntry.ID, nil, CannotEnterUninstancedDungeon},
		{"difficulty", dungeonEntry.ID, func(p *world.PlayerData) { p.Difficulty = world.DifficultyHeroic }, CannotEnterDifficultyUnavailable},
		{"raid without group", raidEntry.ID, nil, CannotEnterNotInRaid},
		{"raid in raid group", raidEntry.ID, func(p *world.PlayerData) { p.GroupID, p.GroupIsRaid = 1, true }, CanEnter},
		{"gm skips raid", raidEntry.ID, func(p *world.PlayerData) { p.GM = true }, CanEnter},
		{"corpse elsewhere", dungeonEntry.ID, func(p *world.PlayerData) {
			p.Dead = true
			p.Corpse = &world.CorpseLocation{MapID: continentEntry.ID}
		}, CannotEnterCorpseInDifferentInstance},
		{"too many instances", dungeonEntry.ID, func(p *world.PlayerData) {
			for id := uint32(1); id <= 5; id++ {
				p.RecentInstances[id] = testEpoch.Add(-10 * time.Minute)
			}
		}, CannotEnterTooManyInstances},
		{"old instances expire", dungeonEntry.ID, func(p *world.PlayerData) {
			for id := uint32(1); id <= 5; id++ {
				p.RecentInstances[id] = testEpoch.Add(-2 * time.Hour)
			}
		}, CanEnter},
		{"battleground not queued", bgEntry.ID, nil, CannotEnterInstanceBindMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlayer(1, 10, 10)
			if tt.setup != nil {
				tt.setup(p.Player)
			}
			if got := mgr.PlayerCannotEnter(tt.mapID, p, false); got != tt.want {
				t.Errorf("PlayerCannotEnter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstanceCapAllowsReturningToKnownInstance(t *testing.T) {
	mgr := testManager(&testClock{now: testEpoch})
	p := newPlayer(1, 10, 10)
	for id := uint32(1); id <= 5; id++ {
		p.Player.RecentInstances[id] = testEpoch.Add(-time.Minute)
	}
	p.Player.SetBind(dungeonEntry.ID, world.DifficultyNormal, world.InstanceBind{InstanceID: 3})
	if st := mgr.PlayerCannotEnter(dungeonEntry.ID, p, false); st != CanEnter {
		t.Errorf("PlayerCannotEnter = %v, want %v", st, CanEnter)
	}
}

func TestMapForPlayerBindsAndReuses(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(&testClock{now: testEpoch})
	p := newPlayer(1, 10, 10)

	m, st, err := mgr.MapForPlayer(ctx, dungeonEntry.ID, p)
	if err != nil || st != CanEnter || m == nil {
		t.Fatalf("MapForPlayer = %v, %v, %v", m, st, err)
	}
	b, ok := p.Player.Bind(dungeonEntry.ID, world.DifficultyNormal)
	if !ok || b.InstanceID != m.InstanceID() || b.Perm {
		t.Fatalf("bind = %+v, %v", b, ok)
	}
	again, _, _ := mgr.MapForPlayer(ctx, dungeonEntry.ID, p)
	if again != m {
		t.Error("bound player got a different instance")
	}
}

func TestManagerDestroysEmptyInstance(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(&testClock{now: testEpoch})
	m, err := mgr.CreateInstance(ctx, dungeonEntry.ID, 0, world.DifficultyNormal, "")
	if err != nil {
		t.Fatal(err)
	}
	p := newPlayer(1, 10, 10)
	m.AddPlayerToMap(p)
	m.RemovePlayerFromMap(p.Handle, false)

	mgr.Update(600)
	if mgr.FindMap(dungeonEntry.ID, m.InstanceID()) == nil {
		t.Fatal("instance destroyed before its delay")
	}
	mgr.Update(600)
	if mgr.FindMap(dungeonEntry.ID, m.InstanceID()) != nil {
		t.Fatal("empty instance not destroyed")
	}

	out := mgr.DrainPersistence()
	if len(out.Instances) != 2 {
		t.Fatalf("instance writes = %+v", out.Instances)
	}
	if last := out.Instances[1]; last.Delete || last.InstanceID != m.InstanceID() {
		t.Errorf("destroy write = %+v", last)
	}
	if !mgr.DrainPersistence().Empty() {
		t.Error("second drain not empty")
	}
}

func TestManagerResetInstanceDeletesState(t *testing.T) {
	ctx := context.Background()
	mgr := testManager(&testClock{now: testEpoch})
	m, _ := mgr.CreateInstance(ctx, dungeonEntry.ID, 0, world.DifficultyNormal, "")
	m.SaveCreatureRespawnTime(4, testEpoch.Unix()+100)
	if !m.Reset(ResetAll, nil) {
		t.Fatal("reset of empty instance failed")
	}
	mgr.Update(10)
	if mgr.FindMap(dungeonEntry.ID, m.InstanceID()) != nil {
		t.Fatal("reset instance not destroyed")
	}
	out := mgr.DrainPersistence()
	last := out.Instances[len(out.Instances)-1]
	if !last.Delete {
		t.Errorf("last instance write = %+v, want delete", last)
	}
	var wiped bool
	for _, w := range out.Respawns {
		wiped = wiped || w.DeleteAll
	}
	if !wiped {
		t.Error("respawn times not wiped")
	}
}

func TestResetWithPermBoundPlayerDeletesSave(t *testing.T) {
	tests := []struct {
		name       string
		perm       bool
		wantDelete bool
	}{
		{"perm bound", true, true},
		{"temporary bind", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mgr := testManager(&testClock{now: testEpoch})
			m, err := mgr.CreateInstance(ctx, dungeonEntry.ID, 0, world.DifficultyNormal, "")
			if err != nil {
				t.Fatal(err)
			}
			mgr.DrainPersistence()

			bound := newPlayer(1, 20, 20)
			bound.Player.SetBind(dungeonEntry.ID, world.DifficultyNormal, world.InstanceBind{InstanceID: m.InstanceID(), Perm: tt.perm})
			other := newPlayer(2, 22, 20)
			m.AddPlayerToMap(bound)
			m.AddPlayerToMap(other)

			if m.Reset(ResetGlobal, nil) {
				t.Fatal("reset with players inside reported empty")
			}
			var deleted bool
			for _, w := range mgr.DrainPersistence().Instances {
				deleted = deleted || (w.Delete && w.InstanceID == m.InstanceID())
			}
			if deleted != tt.wantDelete {
				t.Errorf("instance save deleted = %v, want %v", deleted, tt.wantDelete)
			}
			if b, ok := other.Player.Bind(dungeonEntry.ID, world.DifficultyNormal); ok && b.Perm {
				t.Error("reset perm bound a player")
			}
			if !m.Instance().ResetAfterUnload() {
				t.Error("instance not flagged to reset after unload")
			}
		})
	}
}

type instanceRows map[uint32]InstanceSave

func (r instanceRows) LoadInstance(_ context.Context, id uint32) (InstanceSave, bool, error) {
	row, ok := r[id]
	return row, ok, nil
}

func TestBoundInstanceRestoredFromStore(t *testing.T) {
	ctx := context.Background()
	token := uuid.New()
	s := &recordingScript{}
	deps := testDeps(&testClock{now: testEpoch})
	deps.InstanceScripts = scriptFactory{script: s}
	deps.Instances = instanceRows{
		77: {MapID: dungeonEntry.ID, InstanceID: 77, Save: token, Data: "boss1=done"},
		78: {MapID: raidEntry.ID, InstanceID: 78, Data: "other map"},
	}
	mgr := NewManager(deps, entryTable{dungeonEntry.ID: dungeonEntry}, ManagerConfig{})

	p := newPlayer(1, 10, 10)
	p.Player.SetBind(dungeonEntry.ID, world.DifficultyNormal, world.InstanceBind{InstanceID: 77, Save: token})
	m, st, err := mgr.MapForPlayer(ctx, dungeonEntry.ID, p)
	if err != nil || st != CanEnter {
		t.Fatalf("MapForPlayer = %v, %v", st, err)
	}
	if m.InstanceID() != 77 || s.state != "boss1=done" || m.Instance().Save() != token {
		t.Errorf("instance %d state %q save %v", m.InstanceID(), s.state, m.Instance().Save())
	}

	s.state = ""
	if _, err := mgr.CreateInstance(ctx, dungeonEntry.ID, 78, world.DifficultyNormal, ""); err != nil {
		t.Fatal(err)
	}
	if s.state != "" {
		t.Errorf("row of another map restored: %q", s.state)
	}
}

type countingUpdater struct{ n atomic.Int64 }

func (u *countingUpdater) UpdateObject(*Map, *world.Object, int) { u.n.Add(1) }

func TestManagerUpdatesMapsConcurrently(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: testEpoch}
	deps := testDeps(clock)
	u := &countingUpdater{}
	deps.Updater = u
	mgr := NewManager(deps, entryTable{dungeonEntry.ID: dungeonEntry}, ManagerConfig{Workers: 3})
	for i := 0; i < 6; i++ {
		m, err := mgr.CreateInstance(ctx, dungeonEntry.ID, 0, world.DifficultyNormal, "")
		if err != nil {
			t.Fatal(err)
		}
		m.AddPlayerToMap(newPlayer(uint32(i+1), 10, 10))
	}
	mgr.Update(100)
	if got := u.n.Load(); got != 6 {
		t.Errorf("object updates = %d, want one per player", got)
	}
	mgr.UnloadAll()
	if mgr.Count() != 0 {
		t.Errorf("Count after UnloadAll = %d", mgr.Count())
	}
}
