package world

import (
	"math"

	"github.com/warheadgo/server/internal/collision"
	"github.com/warheadgo/server/internal/core/ecs"
	"github.com/warheadgo/server/internal/grid"
)

// Position is a world location with orientation.
type Position struct {
	X, Y, Z, O float32
}

// Dist2d returns the horizontal distance to o.
func (p Position) Dist2d(o Position) float32 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

// Dist3d returns the full distance to o.
func (p Position) Dist3d(o Position) float32 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

func (p Position) Vec() collision.Vec3 { return collision.Vec3{X: p.X, Y: p.Y, Z: p.Z} }

// MoveState tracks an object's membership in its map's deferred move list.
type MoveState uint8

const (
	MoveNone     MoveState = iota // not queued
	MoveActive                    // queued; the pending position is applied next tick
	MoveInactive                  // was queued, then cancelled by a direct relocation or removal
)

// Object is the map-owned record of one placed entity. Cells and lists hold
// its Handle, never the pointer. Fields are mutated only under the owning
// map's lock.
type Object struct {
	Handle  ecs.EntityID
	Guid    ObjectGuid
	Type    TypeID
	Entry   uint32
	SpawnID uint32 // 0 for runtime-only objects

	Pos       Position
	PhaseMask uint32

	InWorld bool
	Active  bool // keeps nearby grids loaded and updated
	Cell    grid.Cell

	MoveState MoveState
	NewPos    Position // pending target while MoveState == MoveActive

	Transport ecs.EntityID // transport the object rides, zero if none

	Creature   *CreatureData
	GameObject *GameObjectData
	DynObject  *DynamicObjectData
	Corpse     *CorpseData
	Player     *PlayerData
}

// CreatureData is the creature payload.
type CreatureData struct {
	RespawnDelay uint32 // seconds
	Dead         bool
	Temporary    bool         // summoned, never persisted
	Summoner     ecs.EntityID // zero when spawned from data
	DespawnIn    int          // ms until a timed summon despawns, 0 for none
	Home         Position
}

// GameObjectType is the behaviour class of a game object template.
type GameObjectType uint8

const (
	GameObjectGeneric GameObjectType = iota
	GameObjectDoor
	GameObjectButton
	GameObjectChest
	GameObjectTransport
)

// GameObjectState mirrors the client door/button state.
type GameObjectState uint8

const (
	GOStateActive            GameObjectState = 0 // open / pressed
	GOStateReady             GameObjectState = 1 // closed / idle
	GOStateActiveAlternative GameObjectState = 2
)

// GameObject flag bits that scripts may set or clear.
const (
	GOFlagInUse         uint32 = 0x01
	GOFlagLocked        uint32 = 0x02
	GOFlagInteractCond  uint32 = 0x04
	GOFlagTransport     uint32 = 0x08
	GOFlagNotSelectable uint32 = 0x10
)

// GameObjectData is the game object payload.
type GameObjectData struct {
	Kind         GameObjectType
	State        GameObjectState
	Flags        uint32
	RespawnDelay uint32 // seconds; 0 means never despawns
	Spawned      bool
	ResetIn      int // ms until an opened door/button returns to ready, 0 for none
	AutoClose    int // ms a scripted open lasts before ResetIn fires
	DespawnIn    int // ms until a summoned object despawns, 0 for none
	Model        *collision.Model
	Passengers   []ecs.EntityID // transports only
}

// IsDoorLike reports whether the object toggles a collision model.
func (g *GameObjectData) IsDoorLike() bool {
	return g.Kind == GameObjectDoor || g.Kind == GameObjectButton
}

// DynamicObjectData is the payload of an area effect.
type DynamicObjectData struct {
	Caster   ecs.EntityID
	Radius   float32
	Duration int // ms remaining; <= 0 expires
}

// CorpseType distinguishes bones from resurrectable corpses.
type CorpseType uint8

const (
	CorpseBones CorpseType = iota
	CorpseResurrectablePvE
	CorpseResurrectablePvP
)

// CorpseData is the corpse payload.
type CorpseData struct {
	Owner      ObjectGuid
	Kind       CorpseType
	CreatedAt  int64 // unix seconds
	InstanceID uint32
}

// NewCreature builds an unplaced creature.
func NewCreature(guid ObjectGuid, spawnID uint32, pos Position, phaseMask uint32, respawnDelay uint32) *Object {
	return &Object{
		Guid:      guid,
		Type:      TypeUnit,
		Entry:     guid.Entry(),
		SpawnID:   spawnID,
		Pos:       pos,
		PhaseMask: phaseMask,
		Creature:  &CreatureData{RespawnDelay: respawnDelay, Home: pos},
	}
}

// NewGameObject builds an unplaced game object.
func NewGameObject(guid ObjectGuid, spawnID uint32, pos Position, phaseMask uint32, kind GameObjectType) *Object {
	state := GOStateActive
	if kind == GameObjectDoor || kind == GameObjectButton {
		state = GOStateReady
	}
	return &Object{
		Guid:       guid,
		Type:       TypeGameObject,
		Entry:      guid.Entry(),
		SpawnID:    spawnID,
		Pos:        pos,
		PhaseMask:  phaseMask,
		GameObject: &GameObjectData{Kind: kind, State: state, Spawned: true},
	}
}

// NewDynamicObject builds an unplaced area effect.
func NewDynamicObject(guid ObjectGuid, caster ecs.EntityID, pos Position, phaseMask uint32, radius float32, durationMs int) *Object {
	return &Object{
		Guid:      guid,
		Type:      TypeDynamicObject,
		Pos:       pos,
		PhaseMask: phaseMask,
		DynObject: &DynamicObjectData{Caster: caster, Radius: radius, Duration: durationMs},
	}
}

// NewCorpse builds an unplaced corpse.
func NewCorpse(guid ObjectGuid, owner ObjectGuid, pos Position, phaseMask uint32, kind CorpseType, createdAt int64) *Object {
	return &Object{
		Guid:      guid,
		Type:      TypeCorpse,
		Pos:       pos,
		PhaseMask: phaseMask,
		Corpse:    &CorpseData{Owner: owner, Kind: kind, CreatedAt: createdAt},
	}
}

// IsPlayer reports whether o is a player.
func (o *Object) IsPlayer() bool { return o.Type == TypePlayer }

// InPhase reports whether o shares a phase with mask.
func (o *Object) InPhase(mask uint32) bool { return o.PhaseMask&mask != 0 }

// CollisionHeight is used by swim and submersion checks.
func (o *Object) CollisionHeight() float32 {
	if o.Player != nil && o.Player.CollisionHeight > 0 {
		return o.Player.CollisionHeight
	}
	return 2.03128
}
