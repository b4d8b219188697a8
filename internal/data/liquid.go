package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warheadgo/server/internal/terrain"
)

// LiquidInfo overrides the liquid type flag stored in tiles for one entry.
type LiquidInfo struct {
	Entry uint32 `yaml:"entry"`
	Type  string `yaml:"type"` // water, ocean, magma, slime, dark_water
}

type liquidListFile struct {
	Liquids []LiquidInfo `yaml:"liquids"`
}

var liquidTypes = map[string]uint8{
	"water":      terrain.LiquidTypeWater,
	"ocean":      terrain.LiquidTypeOcean,
	"magma":      terrain.LiquidTypeMagma,
	"slime":      terrain.LiquidTypeSlime,
	"dark_water": terrain.LiquidTypeDarkWater,
}

// LiquidTypeTable maps liquid entries to type flags.
type LiquidTypeTable struct {
	flags map[uint32]uint8
}

// LoadLiquidTypeTable loads liquid_types.yaml.
func LoadLiquidTypeTable(path string) (*LiquidTypeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read liquid_types: %w", err)
	}
	var f liquidListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse liquid_types: %w", err)
	}
	t := &LiquidTypeTable{flags: make(map[uint32]uint8, len(f.Liquids))}
	for _, l := range f.Liquids {
		flag, ok := liquidTypes[l.Type]
		if !ok {
			return nil, fmt.Errorf("liquid %d: unknown type %q", l.Entry, l.Type)
		}
		t.flags[l.Entry] = flag
	}
	return t, nil
}

// Lookup satisfies terrain.LiquidTypeLookup.
func (t *LiquidTypeTable) Lookup(entry uint32) (uint8, bool) {
	f, ok := t.flags[entry]
	return f, ok
}

// Count returns the number of overrides.
func (t *LiquidTypeTable) Count() int {
	return len(t.flags)
}
