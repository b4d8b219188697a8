package maps

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/collision"
	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/core/event"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/terrain"
	"github.com/warheadgo/server/internal/world"
)

// debugAsserts turns consistency violations into panics. Tests set it.
var debugAsserts = false

// Grid buckets, one per placed object type.
const (
	bucketPlayer grid.Bucket = iota
	bucketCreature
	bucketGameObject
	bucketDynamicObject
	bucketCorpse
)

func bucketFor(t world.TypeID) grid.Bucket {
	switch t {
	case world.TypePlayer:
		return bucketPlayer
	case world.TypeUnit:
		return bucketCreature
	case world.TypeGameObject:
		return bucketGameObject
	case world.TypeDynamicObject:
		return bucketDynamicObject
	}
	return bucketCorpse
}

type spawnKey struct {
	kind world.SpawnKind
	id   uint32
}

type tileState uint8

const (
	tileUnloaded tileState = iota
	tileLoaded
	tileFailed
)

// Map owns the grids, tiles, collision tree and object arena of one map or
// instance.
//
// Locking: mu guards grids, cells, the object arena, the move/switch lists,
// and the respawn and corpse tables. terrainMu guards the tile table and is
// only ever taken after mu. Queries that read only terrain take terrainMu
// alone. PathLock is held by path generation code to keep tiles from being
// unloaded underneath it.
type Map struct {
	id         uint32
	instanceID uint32
	kind       Kind
	entry      world.MapEntry
	difficulty world.Difficulty

	log    *zap.Logger
	layout grid.Layout
	deps   Deps

	mu      sync.RWMutex
	objects *ecs.World
	store   *ecs.Table[world.Object]
	grids   []*grid.NGrid
	byGuid  map[world.ObjectGuid]ecs.EntityID
	bySpawn map[spawnKey][]ecs.EntityID
	players map[ecs.EntityID]struct{}
	active  map[ecs.EntityID]struct{}

	creatureMoves []ecs.EntityID
	goMoves       []ecs.EntityID
	dynMoves      []ecs.EntityID
	switchList    map[ecs.EntityID]bool
	transports    map[ecs.EntityID]struct{}

	creatureRespawn map[uint32]int64
	goRespawn       map[uint32]int64
	corpsesByCell   map[uint32]map[ecs.EntityID]struct{}
	corpsesByPlayer map[world.ObjectGuid]ecs.EntityID

	terrainMu  sync.RWMutex
	tiles      []*terrain.GridMap
	tileStates []tileState

	// PathLock excludes tile unload while path data is being read.
	PathLock sync.RWMutex

	tree *collision.DynamicTree

	pendingMu      sync.Mutex
	respawnWrites  []RespawnWrite
	corpseWrites   []CorpseWrite
	instanceWrites []InstanceWrite
	actions        []func(*Map)

	scriptMu sync.Mutex
	schedule scriptSchedule

	clockMs     atomic.Int64
	bus         *event.Bus
	markedCells *bitset.BitSet
	visRange    float32

	creatureGuids *world.GuidGenerator
	goGuids       *world.GuidGenerator
	dynGuids      *world.GuidGenerator
	corpseGuids   *world.GuidGenerator

	instance     *InstanceData
	battleground *BattlegroundData

	unloadTimer int // ms until an empty instance is destroyed, 0 when not armed
}

// New builds a map. Grids load on demand.
func New(entry world.MapEntry, instanceID uint32, kind Kind, diff world.Difficulty, deps Deps) *Map {
	deps = deps.withDefaults()
	l := deps.Layout
	n := l.GridsPerSide * l.GridsPerSide

	log := deps.Log.With(zap.Uint32("map", entry.ID), zap.Uint32("instance", instanceID))

	m := &Map{
		id:         entry.ID,
		instanceID: instanceID,
		kind:       kind,
		entry:      entry,
		difficulty: diff,

		log:    log,
		layout: l,
		deps:   deps,

		objects: ecs.NewWorld(),
		store:   ecs.NewTable[world.Object](),
		grids:   make([]*grid.NGrid, n),
		byGuid:  make(map[world.ObjectGuid]ecs.EntityID),
		bySpawn: make(map[spawnKey][]ecs.EntityID),
		players: make(map[ecs.EntityID]struct{}),
		active:  make(map[ecs.EntityID]struct{}),

		switchList: make(map[ecs.EntityID]bool),
		transports: make(map[ecs.EntityID]struct{}),

		creatureRespawn: make(map[uint32]int64),
		goRespawn:       make(map[uint32]int64),
		corpsesByCell:   make(map[uint32]map[ecs.EntityID]struct{}),
		corpsesByPlayer: make(map[world.ObjectGuid]ecs.EntityID),

		tiles:      make([]*terrain.GridMap, n),
		tileStates: make([]tileState, n),

		tree:        collision.NewDynamicTree(),
		bus:         event.NewBus(),
		markedCells: bitset.New(uint(l.TotalCells())),

		creatureGuids: world.NewGuidGenerator(world.HighUnit, 1),
		goGuids:       world.NewGuidGenerator(world.HighGameObject, 1),
		dynGuids:      world.NewGuidGenerator(world.HighDynamicObject, 1),
		corpseGuids:   world.NewGuidGenerator(world.HighCorpse, 1),
	}
	m.objects.Track(m.store)

	switch kind {
	case KindInstance:
		m.instance = newInstanceData()
	case KindBattleground:
		m.battleground = &BattlegroundData{}
	}
	m.InitVisibilityDistance()
	return m
}

func (m *Map) ID() uint32                   { return m.id }
func (m *Map) InstanceID() uint32           { return m.instanceID }
func (m *Map) Kind() Kind                   { return m.kind }
func (m *Map) Entry() world.MapEntry        { return m.entry }
func (m *Map) Difficulty() world.Difficulty { return m.difficulty }
func (m *Map) Layout() grid.Layout          { return m.layout }
func (m *Map) Log() *zap.Logger             { return m.log }
func (m *Map) Tree() *collision.DynamicTree { return m.tree }
func (m *Map) VisibilityRange() float32     { return m.visRange }

// Bus carries this map's notifications; they are delivered at the end of Update.
func (m *Map) Bus() *event.Bus { return m.bus }

// Clock returns the map's accumulated update time in milliseconds.
func (m *Map) Clock() int64 { return m.clockMs.Load() }

func (m *Map) String() string {
	return fmt.Sprintf("map %d instance %d (%s)", m.id, m.instanceID, m.kind)
}

// Instance returns the instance data, nil unless Kind is KindInstance.
func (m *Map) Instance() *InstanceData { return m.instance }

// Battleground returns the battleground data, nil unless Kind is KindBattleground.
func (m *Map) Battleground() *BattlegroundData { return m.battleground }

// InitVisibilityDistance sets the view range for the map kind.
func (m *Map) InitVisibilityDistance() {
	v := m.deps.Visibility
	switch m.kind {
	case KindInstance:
		m.visRange = v.Instance
	case KindBattleground:
		m.visRange = v.Battleground
	default:
		m.visRange = v.Continent
	}
}

func (m *Map) now() int64 { return m.deps.Clock().Unix() }

// violation reports a broken container invariant. The caller self-heals.
func (m *Map) violation(msg string, fields ...zap.Field) {
	m.log.Error("consistency violation: "+msg, fields...)
	if debugAsserts {
		panic("maps: consistency violation: " + msg)
	}
}

func (m *Map) gridIndex(g grid.GridCoord) int { return g.Y*m.layout.GridsPerSide + g.X }

// Object resolves a handle. The pointer stays valid until the object is
// removed; callers outside the update goroutine must hold no assumptions
// beyond that.
func (m *Map) Object(h ecs.EntityID) (*world.Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Get(h)
}

func (m *Map) objectLocked(h ecs.EntityID) *world.Object {
	o, _ := m.store.Get(h)
	return o
}

// PlayerCount returns the number of players in the map.
func (m *Map) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// Players returns the handles of all players in the map.
func (m *Map) Players() []ecs.EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ecs.EntityID, 0, len(m.players))
	for h := range m.players {
		out = append(out, h)
	}
	return out
}

// HavePlayers reports whether any player is inside.
func (m *Map) HavePlayers() bool { return m.PlayerCount() > 0 }

// ObjectCount returns the number of placed objects.
func (m *Map) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Len()
}

// GenerateGuid returns a fresh guid for a runtime object of high type h.
func (m *Map) GenerateGuid(h world.HighGuid, entry uint32) world.ObjectGuid {
	var gen *world.GuidGenerator
	switch h {
	case world.HighUnit, world.HighPet, world.HighVehicle:
		gen = m.creatureGuids
	case world.HighGameObject, world.HighTransport:
		gen = m.goGuids
	case world.HighDynamicObject:
		gen = m.dynGuids
	default:
		gen = m.corpseGuids
	}
	return world.NewGuid(h, entry, gen.Generate())
}
