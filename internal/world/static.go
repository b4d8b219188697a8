package world

// Static definitions loaded from data tables. Immutable once loaded.

// SpawnKind says which object a spawn row creates.
type SpawnKind uint8

const (
	SpawnCreature SpawnKind = iota
	SpawnGameObject
)

// Spawn is one persisted spawn definition.
type Spawn struct {
	ID           uint32
	Kind         SpawnKind
	Entry        uint32
	MapID        uint32
	Pos          Position
	PhaseMask    uint32
	SpawnMask    uint8  // bit per Difficulty; 0 means every difficulty
	RespawnDelay uint32 // seconds
}

// InDifficulty reports whether the spawn exists in diff.
func (s Spawn) InDifficulty(diff Difficulty) bool {
	return s.SpawnMask == 0 || s.SpawnMask&(1<<diff) != 0
}

// GameObjectTemplate is the static description of a game object entry.
type GameObjectTemplate struct {
	Entry       uint32
	Name        string
	Kind        GameObjectType
	HalfExtents [3]float32 // collision box half sizes; zero means no model
	M2          bool
	AutoCloseMs int
	Flags       uint32
}

// HasModel reports whether the template carries collision geometry.
func (t GameObjectTemplate) HasModel() bool {
	return t.HalfExtents[0] > 0 && t.HalfExtents[1] > 0 && t.HalfExtents[2] > 0
}

// MapType classifies a map entry.
type MapType uint8

const (
	MapContinent MapType = iota
	MapDungeon
	MapRaid
	MapBattleground
	MapArena
)

// MapEntry is the static description of a map.
type MapEntry struct {
	ID           uint32
	Name         string
	Type         MapType
	MaxPlayers   int
	Difficulties []Difficulty
	ParentMapID  uint32
	Entrance     Position
	ResetDelay   uint32 // seconds between global resets, 0 for none
	Uninstanced  bool   // dungeon entered without an instance copy
}

func (e MapEntry) IsDungeon() bool { return e.Type == MapDungeon || e.Type == MapRaid }
func (e MapEntry) IsRaid() bool    { return e.Type == MapRaid }

func (e MapEntry) IsBattlegroundOrArena() bool {
	return e.Type == MapBattleground || e.Type == MapArena
}

// Instanceable reports whether players enter private copies of the map.
func (e MapEntry) Instanceable() bool { return e.IsDungeon() || e.IsBattlegroundOrArena() }

// HasDifficulty reports whether the map offers diff. Normal is always offered.
func (e MapEntry) HasDifficulty(diff Difficulty) bool {
	if diff == DifficultyNormal {
		return true
	}
	for _, d := range e.Difficulties {
		if d == diff {
			return true
		}
	}
	return false
}
