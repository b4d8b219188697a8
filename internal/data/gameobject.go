package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warheadgo/server/internal/world"
)

// GameObjectInfo holds static data for a game object entry.
type GameObjectInfo struct {
	Entry       uint32     `yaml:"entry"`
	Name        string     `yaml:"name"`
	Type        string     `yaml:"type"` // generic, door, button, chest, transport
	HalfExtents [3]float32 `yaml:"half_extents"`
	M2          bool       `yaml:"m2"`
	AutoCloseMs int        `yaml:"auto_close_ms"`
	Flags       uint32     `yaml:"flags"`
}

type gameObjectListFile struct {
	GameObjects []GameObjectInfo `yaml:"gameobjects"`
}

var gameObjectTypes = map[string]world.GameObjectType{
	"generic":   world.GameObjectGeneric,
	"door":      world.GameObjectDoor,
	"button":    world.GameObjectButton,
	"chest":     world.GameObjectChest,
	"transport": world.GameObjectTransport,
}

// GameObjectTable holds game object templates indexed by entry.
type GameObjectTable struct {
	templates map[uint32]world.GameObjectTemplate
}

// LoadGameObjectTable loads gameobject_list.yaml.
func LoadGameObjectTable(path string) (*GameObjectTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gameobject_list: %w", err)
	}
	var f gameObjectListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse gameobject_list: %w", err)
	}
	t := &GameObjectTable{templates: make(map[uint32]world.GameObjectTemplate, len(f.GameObjects))}
	for _, g := range f.GameObjects {
		kind, ok := gameObjectTypes[g.Type]
		if !ok && g.Type != "" {
			return nil, fmt.Errorf("gameobject %d: unknown type %q", g.Entry, g.Type)
		}
		t.templates[g.Entry] = world.GameObjectTemplate{
			Entry:       g.Entry,
			Name:        g.Name,
			Kind:        kind,
			HalfExtents: g.HalfExtents,
			M2:          g.M2,
			AutoCloseMs: g.AutoCloseMs,
			Flags:       g.Flags,
		}
	}
	return t, nil
}

// GameObjectTemplate returns the template of an entry.
func (t *GameObjectTable) GameObjectTemplate(entry uint32) (world.GameObjectTemplate, bool) {
	tmpl, ok := t.templates[entry]
	return tmpl, ok
}

// Count returns the number of loaded templates.
func (t *GameObjectTable) Count() int {
	return len(t.templates)
}
