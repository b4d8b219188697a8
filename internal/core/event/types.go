package event

import "github.com/warheadgo/server/internal/core/ecs"

// Map notifications. Every event carries the map id and instance id of the
// map that emitted it.

type ObjectAdded struct {
	MapID      uint32
	InstanceID uint32
	Object     ecs.EntityID
	TypeID     uint8
}

type ObjectRemoved struct {
	MapID      uint32
	InstanceID uint32
	Object     ecs.EntityID
	TypeID     uint8
	Permanent  bool
}

// VisibilityChanged lists what entered and left a player's view after a move
// or an add/remove near it.
type VisibilityChanged struct {
	MapID      uint32
	InstanceID uint32
	Player     ecs.EntityID
	Entered    []ecs.EntityID
	Left       []ecs.EntityID
}

// GameObjectStateChanged fires when a door or button changes state.
type GameObjectStateChanged struct {
	MapID      uint32
	InstanceID uint32
	Object     ecs.EntityID
	State      uint8
}

type GridLoaded struct {
	MapID      uint32
	InstanceID uint32
	X, Y       int
}

type GridUnloaded struct {
	MapID      uint32
	InstanceID uint32
	X, Y       int
}

// InstanceResetFailed reports that a reset was refused because players were inside.
type InstanceResetFailed struct {
	MapID      uint32
	InstanceID uint32
	Method     uint8
	Players    []ecs.EntityID
}

type EncounterFinished struct {
	MapID       uint32
	InstanceID  uint32
	EncounterID uint32
	Difficulty  uint8
	Players     []ecs.EntityID
}
