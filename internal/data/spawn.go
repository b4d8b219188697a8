package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warheadgo/server/internal/grid"
	"github.com/warheadgo/server/internal/world"
)

// SpawnEntry defines one creature or game object placement.
type SpawnEntry struct {
	SpawnID      uint32  `yaml:"spawn_id"`
	Entry        uint32  `yaml:"entry"`
	MapID        uint32  `yaml:"map_id"`
	X            float32 `yaml:"x"`
	Y            float32 `yaml:"y"`
	Z            float32 `yaml:"z"`
	O            float32 `yaml:"o"`
	PhaseMask    uint32  `yaml:"phase_mask"`    // 0 means phase 1
	SpawnMask    uint8   `yaml:"spawn_mask"`    // bit per difficulty, 0 for all
	RespawnDelay uint32  `yaml:"respawn_delay"` // seconds
}

type spawnListFile struct {
	Creatures   []SpawnEntry `yaml:"creatures"`
	GameObjects []SpawnEntry `yaml:"gameobjects"`
}

type spawnKey struct {
	mapID uint32
	grid  grid.GridCoord
}

// SpawnTable indexes spawns by map and grid so a loading grid reads only its
// own rows.
type SpawnTable struct {
	byGrid map[spawnKey][]world.Spawn
	count  int
}

// LoadSpawnTable loads spawn_list.yaml and buckets it with layout.
func LoadSpawnTable(path string, layout grid.Layout) (*SpawnTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn_list: %w", err)
	}
	var f spawnListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn_list: %w", err)
	}
	layout = layout.Normalize()
	t := &SpawnTable{byGrid: make(map[spawnKey][]world.Spawn)}
	if err := t.add(f.Creatures, world.SpawnCreature, layout); err != nil {
		return nil, err
	}
	if err := t.add(f.GameObjects, world.SpawnGameObject, layout); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SpawnTable) add(entries []SpawnEntry, kind world.SpawnKind, layout grid.Layout) error {
	seen := make(map[uint32]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.SpawnID]; dup {
			return fmt.Errorf("spawn %d listed twice", e.SpawnID)
		}
		seen[e.SpawnID] = struct{}{}
		if !layout.IsValidMapCoord(e.X, e.Y) {
			return fmt.Errorf("spawn %d: position (%v, %v) outside the map", e.SpawnID, e.X, e.Y)
		}
		s := world.Spawn{
			ID:           e.SpawnID,
			Kind:         kind,
			Entry:        e.Entry,
			MapID:        e.MapID,
			Pos:          world.Position{X: e.X, Y: e.Y, Z: e.Z, O: e.O},
			PhaseMask:    e.PhaseMask,
			SpawnMask:    e.SpawnMask,
			RespawnDelay: e.RespawnDelay,
		}
		if s.PhaseMask == 0 {
			s.PhaseMask = 1
		}
		key := spawnKey{mapID: e.MapID, grid: layout.ComputeGridCoord(e.X, e.Y)}
		t.byGrid[key] = append(t.byGrid[key], s)
		t.count++
	}
	return nil
}

// GridSpawns returns the spawns of one grid that exist in diff.
func (t *SpawnTable) GridSpawns(mapID uint32, diff world.Difficulty, g grid.GridCoord) []world.Spawn {
	rows := t.byGrid[spawnKey{mapID: mapID, grid: g}]
	out := make([]world.Spawn, 0, len(rows))
	for _, s := range rows {
		if s.InDifficulty(diff) {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the total number of spawns loaded.
func (t *SpawnTable) Count() int {
	return t.count
}
