package world

import (
	"time"

	"github.com/google/uuid"

	"github.com/warheadgo/server/internal/core/ecs"
)

// Difficulty indexes the spawn/instance variant of a map.
type Difficulty uint8

const (
	DifficultyNormal Difficulty = iota
	DifficultyHeroic
	DifficultyRaid10Heroic
	DifficultyRaid25Heroic
)

// BindKey identifies one instance bind slot.
type BindKey struct {
	MapID      uint32
	Difficulty Difficulty
}

// InstanceBind ties a player to one instance id.
type InstanceBind struct {
	InstanceID uint32
	Save       uuid.UUID // token of the instance save the bind refers to
	Perm       bool      // permanent binds survive group changes
	ExpiresAt  time.Time
}

// CorpseLocation remembers where a dead player's corpse lies.
type CorpseLocation struct {
	MapID      uint32
	InstanceID uint32
	Pos        Position
}

// PlayerData is the admission and visibility state of a player object.
type PlayerData struct {
	Name  string
	GM    bool
	Dead  bool
	Level uint8

	GroupID     uint32
	GroupIsRaid bool

	Difficulty      Difficulty
	Binds           map[BindKey]InstanceBind
	BattlegroundID  uint32 // instance id of the battleground the player queued into
	Corpse          *CorpseLocation
	CollisionHeight float32
	RecentInstances map[uint32]time.Time // instance id → first entry, for the hourly cap
	PendingTeleport bool

	// Visible holds the handles the player currently sees; the map diffs it
	// after every move to emit visibility changes.
	Visible map[ecs.EntityID]struct{}
}

// NewPlayer builds an unplaced player.
func NewPlayer(guid ObjectGuid, name string, pos Position, phaseMask uint32) *Object {
	return &Object{
		Guid:      guid,
		Type:      TypePlayer,
		Pos:       pos,
		PhaseMask: phaseMask,
		Player: &PlayerData{
			Name:            name,
			Level:           1,
			Binds:           make(map[BindKey]InstanceBind),
			RecentInstances: make(map[uint32]time.Time),
			Visible:         make(map[ecs.EntityID]struct{}),
		},
	}
}

// Bind returns the player's bind for a map/difficulty.
func (p *PlayerData) Bind(mapID uint32, diff Difficulty) (InstanceBind, bool) {
	b, ok := p.Binds[BindKey{MapID: mapID, Difficulty: diff}]
	return b, ok
}

// SetBind records a bind.
func (p *PlayerData) SetBind(mapID uint32, diff Difficulty, bind InstanceBind) {
	if p.Binds == nil {
		p.Binds = make(map[BindKey]InstanceBind)
	}
	p.Binds[BindKey{MapID: mapID, Difficulty: diff}] = bind
}

// InstancesEnteredSince counts distinct instances first entered after t.
func (p *PlayerData) InstancesEnteredSince(t time.Time) int {
	n := 0
	for _, at := range p.RecentInstances {
		if at.After(t) {
			n++
		}
	}
	return n
}
