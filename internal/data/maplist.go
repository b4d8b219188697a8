package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warheadgo/server/internal/world"
)

// MapInfo holds metadata for a single map, loaded from map_list.yaml.
type MapInfo struct {
	MapID        uint32   `yaml:"map_id"`
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"` // continent, dungeon, raid, battleground, arena
	MaxPlayers   int      `yaml:"max_players"`
	Difficulties []string `yaml:"difficulties"`
	Parent       uint32   `yaml:"parent"`
	EntranceX    float32  `yaml:"entrance_x"`
	EntranceY    float32  `yaml:"entrance_y"`
	EntranceZ    float32  `yaml:"entrance_z"`
	ResetDelay   uint32   `yaml:"reset_delay"` // seconds
	Uninstanced  bool     `yaml:"uninstanced"`
}

// AreaInfo ties an area id found in terrain tiles to its zone.
type AreaInfo struct {
	AreaID uint32 `yaml:"area_id"`
	ZoneID uint32 `yaml:"zone_id"`
	Name   string `yaml:"name"`
}

type mapListFile struct {
	Maps  []MapInfo  `yaml:"maps"`
	Areas []AreaInfo `yaml:"areas"`
}

var mapTypes = map[string]world.MapType{
	"continent":    world.MapContinent,
	"dungeon":      world.MapDungeon,
	"raid":         world.MapRaid,
	"battleground": world.MapBattleground,
	"arena":        world.MapArena,
}

var difficulties = map[string]world.Difficulty{
	"normal":        world.DifficultyNormal,
	"heroic":        world.DifficultyHeroic,
	"raid10_heroic": world.DifficultyRaid10Heroic,
	"raid25_heroic": world.DifficultyRaid25Heroic,
}

// MapTable provides map entry and area-to-zone lookups.
type MapTable struct {
	maps  map[uint32]world.MapEntry
	zones map[uint32]uint32
}

// LoadMapTable loads map_list.yaml.
func LoadMapTable(path string) (*MapTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map list %s: %w", path, err)
	}
	var file mapListFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse map list: %w", err)
	}

	t := &MapTable{
		maps:  make(map[uint32]world.MapEntry, len(file.Maps)),
		zones: make(map[uint32]uint32, len(file.Areas)),
	}
	for _, info := range file.Maps {
		entry, err := info.entry()
		if err != nil {
			return nil, fmt.Errorf("map %d: %w", info.MapID, err)
		}
		if _, dup := t.maps[entry.ID]; dup {
			return nil, fmt.Errorf("map %d listed twice", entry.ID)
		}
		t.maps[entry.ID] = entry
	}
	for _, a := range file.Areas {
		t.zones[a.AreaID] = a.ZoneID
	}
	return t, nil
}

func (info MapInfo) entry() (world.MapEntry, error) {
	kind, ok := mapTypes[info.Type]
	if !ok {
		return world.MapEntry{}, fmt.Errorf("unknown map type %q", info.Type)
	}
	e := world.MapEntry{
		ID:          info.MapID,
		Name:        info.Name,
		Type:        kind,
		MaxPlayers:  info.MaxPlayers,
		ParentMapID: info.Parent,
		Entrance:    world.Position{X: info.EntranceX, Y: info.EntranceY, Z: info.EntranceZ},
		ResetDelay:  info.ResetDelay,
		Uninstanced: info.Uninstanced,
	}
	for _, name := range info.Difficulties {
		d, ok := difficulties[name]
		if !ok {
			return world.MapEntry{}, fmt.Errorf("unknown difficulty %q", name)
		}
		e.Difficulties = append(e.Difficulties, d)
	}
	return e, nil
}

// MapEntry returns the entry of a map id.
func (t *MapTable) MapEntry(id uint32) (world.MapEntry, bool) {
	e, ok := t.maps[id]
	return e, ok
}

// ZoneForArea returns the zone an area belongs to. Unlisted areas are their
// own zone.
func (t *MapTable) ZoneForArea(areaID uint32) uint32 {
	if z, ok := t.zones[areaID]; ok {
		return z
	}
	return areaID
}

// BaseMaps returns the ids of maps that have a single shared copy.
func (t *MapTable) BaseMaps() []uint32 {
	var ids []uint32
	for id, e := range t.maps {
		if !e.Instanceable() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of loaded maps.
func (t *MapTable) Count() int {
	return len(t.maps)
}
