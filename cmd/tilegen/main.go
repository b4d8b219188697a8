// tilegen encodes yaml tile descriptions into MMMXXYY.map terrain tiles.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/warheadgo/server/internal/maps"
	"github.com/warheadgo/server/internal/terrain"
)

type tileFile struct {
	Tiles []tileDesc `yaml:"tiles"`
}

type tileDesc struct {
	MapID  uint32      `yaml:"map_id"`
	TileX  int         `yaml:"tile_x"`
	TileY  int         `yaml:"tile_y"`
	Build  uint32      `yaml:"build"`
	Area   *areaDesc   `yaml:"area"`
	Height *heightDesc `yaml:"height"`
	Liquid *liquidDesc `yaml:"liquid"`
	Holes  []uint16    `yaml:"holes"`
}

type areaDesc struct {
	GridArea uint16   `yaml:"grid_area"`
	Areas    []uint16 `yaml:"areas"`
}

type heightDesc struct {
	Encoding  string    `yaml:"encoding"` // flat, float, uint16, uint8
	Flat      float32   `yaml:"flat"`
	V9        []float32 `yaml:"v9"`
	V8        []float32 `yaml:"v8"`
	FlightMax []int16   `yaml:"flight_max"`
	FlightMin []int16   `yaml:"flight_min"`
}

type liquidDesc struct {
	Entry   uint16    `yaml:"entry"`
	Flags   uint8     `yaml:"flags"`
	OffsetX uint8     `yaml:"offset_x"`
	OffsetY uint8     `yaml:"offset_y"`
	Width   uint8     `yaml:"width"`
	Height  uint8     `yaml:"height"`
	Level   float32   `yaml:"level"`
	Entries []uint16  `yaml:"entries"`
	Cells   []uint8   `yaml:"cell_flags"`
	Heights []float32 `yaml:"heights"`
}

var encodings = map[string]terrain.HeightEncoding{
	"":       terrain.EncodingFlat,
	"flat":   terrain.EncodingFlat,
	"float":  terrain.EncodingFloat,
	"uint16": terrain.EncodingUint16,
	"uint8":  terrain.EncodingUint8,
}

func (d tileDesc) spec() (terrain.TileSpec, error) {
	s := terrain.TileSpec{Build: d.Build, Holes: d.Holes}
	if d.Area != nil {
		s.Area = &terrain.AreaSpec{GridArea: d.Area.GridArea, Areas: d.Area.Areas}
	}
	if h := d.Height; h != nil {
		enc, ok := encodings[h.Encoding]
		if !ok {
			return s, fmt.Errorf("tile %d/%d/%d: unknown height encoding %q", d.MapID, d.TileX, d.TileY, h.Encoding)
		}
		s.Height = &terrain.HeightSpec{
			Encoding:  enc,
			Flat:      h.Flat,
			V9:        h.V9,
			V8:        h.V8,
			FlightMax: h.FlightMax,
			FlightMin: h.FlightMin,
		}
	}
	if l := d.Liquid; l != nil {
		s.Liquid = &terrain.LiquidSpec{
			GlobalEntry: l.Entry,
			GlobalFlags: l.Flags,
			OffsetX:     l.OffsetX,
			OffsetY:     l.OffsetY,
			Width:       l.Width,
			Height:      l.Height,
			Level:       l.Level,
			Entries:     l.Entries,
			Flags:       l.Cells,
			Heights:     l.Heights,
		}
	}
	return s, nil
}

// generate encodes every tile in src into outDir and returns the written paths.
func generate(src []byte, outDir string, res int) ([]string, error) {
	var f tileFile
	if err := yaml.Unmarshal(src, &f); err != nil {
		return nil, fmt.Errorf("parse tiles: %w", err)
	}
	var written []string
	for _, d := range f.Tiles {
		spec, err := d.spec()
		if err != nil {
			return written, err
		}
		img, err := terrain.Encode(spec, res)
		if err != nil {
			return written, fmt.Errorf("tile %d/%d/%d: %w", d.MapID, d.TileX, d.TileY, err)
		}
		path := filepath.Join(outDir, maps.TileFileName(d.MapID, d.TileX, d.TileY))
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: tilegen <tiles.yaml> <output dir> [resolution]")
		os.Exit(1)
	}
	res := 128
	if len(os.Args) > 3 {
		n, err := strconv.Atoi(os.Args[3])
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad resolution:", err)
			os.Exit(1)
		}
		res = n
	}

	src, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.MkdirAll(os.Args[2], 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	written, err := generate(src, os.Args[2], res)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d tiles to %s\n", len(written), os.Args[2])
}
