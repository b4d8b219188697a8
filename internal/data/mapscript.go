package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/world"
)

// ScriptStepInfo is one timed command as written in map_scripts.yaml.
type ScriptStepInfo struct {
	Delay   int     `yaml:"delay"` // ms after start
	Command string  `yaml:"command"`
	SpawnID uint32  `yaml:"spawn_id"`
	Entry   uint32  `yaml:"entry"`
	Flags   uint32  `yaml:"flags"`
	Timer   int     `yaml:"timer"` // ms
	X       float32 `yaml:"x"`
	Y       float32 `yaml:"y"`
	Z       float32 `yaml:"z"`
	O       float32 `yaml:"o"`
	Func    string  `yaml:"func"`
}

// ScriptInfo is a named list of steps.
type ScriptInfo struct {
	ID    uint32           `yaml:"id"`
	Note  string           `yaml:"note"`
	Steps []ScriptStepInfo `yaml:"steps"`
}

type mapScriptFile struct {
	Scripts []ScriptInfo `yaml:"scripts"`
}

// MapScriptTable holds timed map scripts indexed by id.
type MapScriptTable struct {
	scripts map[uint32][]maps.ScriptStep
}

// LoadMapScriptTable loads map_scripts.yaml.
func LoadMapScriptTable(path string) (*MapScriptTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map_scripts: %w", err)
	}
	var f mapScriptFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse map_scripts: %w", err)
	}
	t := &MapScriptTable{scripts: make(map[uint32][]maps.ScriptStep, len(f.Scripts))}
	for _, s := range f.Scripts {
		steps := make([]maps.ScriptStep, 0, len(s.Steps))
		for i, info := range s.Steps {
			cmd, ok := maps.ParseScriptCommand(info.Command)
			if !ok {
				return nil, fmt.Errorf("script %d step %d: unknown command %q", s.ID, i, info.Command)
			}
			if cmd == maps.ScriptCallLua && info.Func == "" {
				return nil, fmt.Errorf("script %d step %d: call_lua without func", s.ID, i)
			}
			steps = append(steps, maps.ScriptStep{
				Delay:   info.Delay,
				Command: cmd,
				SpawnID: info.SpawnID,
				Entry:   info.Entry,
				Flags:   info.Flags,
				Timer:   info.Timer,
				Pos:     world.Position{X: info.X, Y: info.Y, Z: info.Z, O: info.O},
				Func:    info.Func,
			})
		}
		t.scripts[s.ID] = steps
	}
	return t, nil
}

// Script returns the steps of a script id.
func (t *MapScriptTable) Script(id uint32) ([]maps.ScriptStep, bool) {
	s, ok := t.scripts[id]
	return s, ok
}

// Count returns the number of loaded scripts.
func (t *MapScriptTable) Count() int {
	return len(t.scripts)
}
