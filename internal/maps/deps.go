package maps

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/warheadgo/server/internal/collision"
	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/terrain"
	"github.com/warheadgo/server/internal/world"
)

// TileLoader reads the terrain tile for a tile coordinate.
type TileLoader interface {
	LoadTile(mapID uint32, tileX, tileY int) (*terrain.GridMap, error)
}

// FileTileLoader reads tiles named MMMXXYY.map from Dir.
type FileTileLoader struct {
	Dir         string
	Layout      grid.Layout
	LiquidTypes terrain.LiquidTypeLookup
}

func (l FileTileLoader) LoadTile(mapID uint32, tileX, tileY int) (*terrain.GridMap, error) {
	return terrain.LoadFile(filepath.Join(l.Dir, TileFileName(mapID, tileX, tileY)), l.Layout, terrain.WithLiquidTypes(l.LiquidTypes))
}

// TileFileName is the on-disk name of a tile.
func TileFileName(mapID uint32, tileX, tileY int) string {
	return fmt.Sprintf("%03d%02d%02d.map", mapID, tileX, tileY)
}

// StaticCollision answers queries against a map's static geometry.
type StaticCollision interface {
	IsInLineOfSight(mapID uint32, a, b collision.Vec3) bool
	// Height returns collision.NoHeight when nothing lies below.
	Height(mapID uint32, x, y, z, maxSearchDist float32) float32
	ObjectHitPos(mapID uint32, a, b collision.Vec3, modifyDist float32) (collision.Vec3, bool)
}

// SpawnSource lists the spawns that fall inside one grid.
type SpawnSource interface {
	GridSpawns(mapID uint32, diff world.Difficulty, g grid.GridCoord) []world.Spawn
}

// GameObjectTemplates looks up game object entries.
type GameObjectTemplates interface {
	GameObjectTemplate(entry uint32) (world.GameObjectTemplate, bool)
}

// ScriptSource looks up timed map scripts.
type ScriptSource interface {
	Script(id uint32) ([]ScriptStep, bool)
}

// RespawnTimes holds persisted respawn deadlines (unix seconds) by spawn id.
type RespawnTimes struct {
	Creatures   map[uint32]int64
	GameObjects map[uint32]int64
}

// RespawnStore loads and deletes persisted respawn times.
type RespawnStore interface {
	LoadRespawnTimes(ctx context.Context, mapID, instanceID uint32) (RespawnTimes, error)
}

// ZoneLookup maps an area id to its zone.
type ZoneLookup interface {
	ZoneForArea(areaID uint32) uint32
}

// ObjectUpdater receives a per-object update for every object in an active cell.
type ObjectUpdater interface {
	UpdateObject(m *Map, o *world.Object, diff int)
}

// LuaCaller runs the function named by a call-Lua script step.
type LuaCaller interface {
	CallScript(fn string, m *Map, source, target ecs.EntityID) error
}

// InstanceScriptFactory builds the encounter-state script of an instance.
type InstanceScriptFactory interface {
	NewInstanceScript(m *Map) (InstanceScript, bool)
}

// VisibilityDistances are the default view ranges per map kind.
type VisibilityDistances struct {
	Continent    float32
	Instance     float32
	Battleground float32
}

// DefaultVisibility matches the stock server defaults.
func DefaultVisibility() VisibilityDistances {
	return VisibilityDistances{Continent: 90, Instance: 170, Battleground: 533}
}

// DefaultInstanceUnloadDelay is how long an empty instance lingers, in ms.
const DefaultInstanceUnloadDelay = 30 * 60 * 1000

// Deps are the collaborators and settings a Map is built with. Nil
// collaborators disable the feature they back.
type Deps struct {
	Log    *zap.Logger
	Layout grid.Layout

	Tiles           TileLoader
	VMaps           StaticCollision
	Spawns          SpawnSource
	GameObjects     GameObjectTemplates
	Scripts         ScriptSource
	Respawns        RespawnStore
	Corpses         CorpseStore
	Instances       InstanceStore
	Zones           ZoneLookup
	Updater         ObjectUpdater
	Lua             LuaCaller
	InstanceScripts InstanceScriptFactory

	Clock func() time.Time

	GridUnload      bool // unload idle grids on base maps
	GridUnloadDelay int  // idle ticks before unload
	Visibility      VisibilityDistances

	InstanceUnloadDelay int // ms an empty instance lingers before it is destroyed
	BonesDecay          time.Duration
	CorpseDecay         time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.Layout = d.Layout.Normalize()
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Visibility == (VisibilityDistances{}) {
		d.Visibility = DefaultVisibility()
	}
	if d.GridUnloadDelay <= 0 {
		d.GridUnloadDelay = grid.MinUnloadDelay
	}
	if d.InstanceUnloadDelay <= 0 {
		d.InstanceUnloadDelay = DefaultInstanceUnloadDelay
	}
	if d.BonesDecay <= 0 {
		d.BonesDecay = time.Hour
	}
	if d.CorpseDecay <= 0 {
		d.CorpseDecay = 3 * 24 * time.Hour
	}
	return d
}
