package terrain

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/warheadgo/server/internal/grid"
)

// testLayout is a 2x2 grid world, 64 units per grid, 16 samples per grid.
var testLayout = grid.Layout{GridsPerSide: 2, GridSize: 64, CellsPerGrid: 4, Resolution: 16}

const testRes = 16

// localSample mirrors the tile's world → sample mapping.
func localSample(v float32) float32 {
	s := float64(testRes) * (float64(testLayout.CenterGridID()) - float64(v)/float64(testLayout.GridSize))
	return float32(s - testRes*math.Floor(s/testRes))
}

func planeSamples(base, qx, qy float32) (v9, v8 []float32) {
	v9 = make([]float32, (testRes+1)*(testRes+1))
	v8 = make([]float32, testRes*testRes)
	for i := 0; i <= testRes; i++ {
		for j := 0; j <= testRes; j++ {
			v9[i*(testRes+1)+j] = base + qx*float32(i) + qy*float32(j)
		}
	}
	for i := 0; i < testRes; i++ {
		for j := 0; j < testRes; j++ {
			v8[i*testRes+j] = base + qx*(float32(i)+0.5) + qy*(float32(j)+0.5)
		}
	}
	return v9, v8
}

func mustLoad(t *testing.T, spec TileSpec, opts ...Option) *GridMap {
	t.Helper()
	data, err := Encode(spec, testRes)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	g, err := Load(data, testLayout, opts...)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return g
}

func TestGetHeightPlane(t *testing.T) {
	v9, v8 := planeSamples(10, 0.5, 0.25)
	points := [][2]float32{{-20, -40}, {-33.3, -7.9}, {-60, -60}, {-10.5, -50.25}}

	tests := []struct {
		enc HeightEncoding
		tol float32
	}{
		{EncodingFloat, 1e-3},
		{EncodingUint16, 12.0 / 65535 * 2},
		{EncodingUint8, 12.0 / 255 * 2},
	}
	for _, tt := range tests {
		t.Run(tt.enc.String(), func(t *testing.T) {
			g := mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: tt.enc, V9: v9, V8: v8}})
			if g.Encoding() != tt.enc {
				t.Fatalf("encoding = %v, want %v", g.Encoding(), tt.enc)
			}
			for _, p := range points {
				want := 10 + 0.5*localSample(p[0]) + 0.25*localSample(p[1])
				got := g.GetHeight(p[0], p[1])
				if d := float32(math.Abs(float64(got - want))); d > tt.tol {
					t.Errorf("GetHeight(%v, %v) = %v, want %v (±%v)", p[0], p[1], got, want, tt.tol)
				}
			}
		})
	}
}

func TestGetHeightVertexWithinMultiplier(t *testing.T) {
	v9, v8 := planeSamples(-3, 1.7, -0.9)
	g := mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: EncodingUint8, V9: v9, V8: v8}})
	step := g.HeightMultiplier()
	if step <= 0 {
		t.Fatalf("multiplier = %v", step)
	}
	// A point a hair inside sample corner (4, 6) of the tile at grid (0,0).
	x := -testLayout.GridSize * (4 + 0.001) / testRes
	y := -testLayout.GridSize * (6 + 0.001) / testRes
	want := v9[4*(testRes+1)+6]
	if got := g.GetHeight(x, y); math.Abs(float64(got-want)) > float64(step) {
		t.Errorf("vertex height = %v, want %v within %v", got, want, step)
	}
}

func TestGetHeightFlat(t *testing.T) {
	g := mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: EncodingFlat, Flat: 42.5}})
	for _, p := range [][2]float32{{-1, -1}, {-63, -2}, {-30, -30}} {
		if got := g.GetHeight(p[0], p[1]); got != 42.5 {
			t.Errorf("GetHeight(%v) = %v, want 42.5", p, got)
		}
	}
}

func TestGetHeightHole(t *testing.T) {
	v9, v8 := planeSamples(5, 0, 0)
	holes := make([]uint16, 256)
	holes[0] = 0xFFFF
	g := mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: EncodingFloat, V9: v9, V8: v8}, Holes: holes})

	if got := g.GetHeight(-1, -1); got != InvalidHeight {
		t.Errorf("hole height = %v, want InvalidHeight", got)
	}
	if got := g.GetHeight(-20, -40); got != 5 {
		t.Errorf("solid height = %v, want 5", got)
	}
}

func TestGetArea(t *testing.T) {
	areas := make([]uint16, 256)
	for i := range areas {
		areas[i] = uint16(i)
	}
	g := mustLoad(t, TileSpec{Area: &AreaSpec{GridArea: 7, Areas: areas}})
	// x=-20 → sample 21 → 5; y=-40 → sample 26 → 10.
	if got := g.GetArea(-20, -40); got != 5*16+10 {
		t.Errorf("GetArea = %d, want %d", got, 5*16+10)
	}

	flat := mustLoad(t, TileSpec{Area: &AreaSpec{GridArea: 7}})
	if got := flat.GetArea(-20, -40); got != 7 {
		t.Errorf("GetArea without map = %d, want 7", got)
	}
}

func waterTile(t *testing.T, ground float32, opts ...Option) *GridMap {
	t.Helper()
	return mustLoad(t, TileSpec{
		Height: &HeightSpec{Encoding: EncodingFlat, Flat: ground},
		Liquid: &LiquidSpec{
			GlobalEntry: 5,
			GlobalFlags: LiquidTypeWater,
			Width:       testRes,
			Height:      testRes,
			Level:       20,
		},
	}, opts...)
}

func TestGetLiquidDataStatus(t *testing.T) {
	g := waterTile(t, 10)
	tests := []struct {
		name string
		z    float32
		want LiquidStatus
	}{
		{"deep", 15, LiquidInWater | LiquidUnderWater},
		{"shallow", 19, LiquidInWater},
		{"surface", 20, LiquidInWater},
		{"bottom", 10, LiquidInWater | LiquidUnderWater},
		{"walking", 20.05, LiquidWaterWalk},
		{"above", 25, LiquidAboveWater},
		{"below ground", 7, LiquidNoWater},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.GetLiquidData(-20, -40, tt.z, DefaultCollisionHeight, 0)
			if got.Status != tt.want {
				t.Errorf("status = %#x, want %#x", got.Status, tt.want)
			}
			if tt.want != LiquidNoWater && (got.Level != 20 || got.DepthLevel != 10 || got.Entry != 5) {
				t.Errorf("data = %+v", got)
			}
		})
	}
}

func TestGetLiquidDataInWaterRange(t *testing.T) {
	g := waterTile(t, 10)
	for z := float32(10); z <= 20; z += 0.5 {
		if st := g.GetLiquidData(-30, -30, z, DefaultCollisionHeight, 0).Status; !st.Has(LiquidInWater) {
			t.Fatalf("z=%v status %#x lacks InWater", z, st)
		}
	}
}

func TestGetLiquidDataFilters(t *testing.T) {
	g := waterTile(t, 10)
	if st := g.GetLiquidData(-20, -40, 15, 2, LiquidTypeMagma).Status; st != LiquidNoWater {
		t.Errorf("magma filter on water = %#x, want no water", st)
	}

	dry := waterTile(t, 30)
	if st := dry.GetLiquidData(-20, -40, 31, 2, 0).Status; st != LiquidNoWater {
		t.Errorf("level below ground = %#x, want no water", st)
	}

	lava := waterTile(t, 10, WithLiquidTypes(func(entry uint32) (uint8, bool) {
		return LiquidTypeMagma, entry == 5
	}))
	got := lava.GetLiquidData(-20, -40, 15, 2, LiquidTypeMagma)
	if got.Status == LiquidNoWater || got.Flags != uint32(LiquidTypeMagma) {
		t.Errorf("override = %+v, want magma", got)
	}

	deep := mustLoad(t, TileSpec{
		Height: &HeightSpec{Encoding: EncodingFlat, Flat: 10},
		Liquid: &LiquidSpec{
			GlobalEntry: 5,
			GlobalFlags: LiquidTypeWater | LiquidTypeDarkWater,
			Width:       testRes,
			Height:      testRes,
			Level:       20,
		},
	}, WithLiquidTypes(func(entry uint32) (uint8, bool) {
		return LiquidTypeOcean, entry == 5
	}))
	overrideTests := []struct {
		name string
		req  uint8
		want LiquidStatus
	}{
		{"any", 0, LiquidUnderWater | LiquidInWater},
		{"ocean", LiquidTypeOcean, LiquidUnderWater | LiquidInWater},
		{"dark water", LiquidTypeDarkWater, LiquidUnderWater | LiquidInWater},
		{"plain water", LiquidTypeWater, LiquidNoWater},
	}
	for _, tt := range overrideTests {
		t.Run("override keeps dark water/"+tt.name, func(t *testing.T) {
			got := deep.GetLiquidData(-20, -40, 15, 2, tt.req)
			if got.Status != tt.want {
				t.Fatalf("status = %#x, want %#x", got.Status, tt.want)
			}
			if tt.want != LiquidNoWater && got.Flags != uint32(LiquidTypeOcean|LiquidTypeDarkWater) {
				t.Errorf("flags = %#x, want ocean|dark water", got.Flags)
			}
		})
	}

	none := mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: EncodingFlat}})
	if none.HasLiquid() || none.GetLiquidData(0, 0, 0, 2, 0).Status != LiquidNoWater {
		t.Error("tile without liquid reports water")
	}
}

func TestGetLiquidLevelPatch(t *testing.T) {
	heights := make([]float32, 4*4)
	for i := range heights {
		heights[i] = 3
	}
	g := mustLoad(t, TileSpec{Liquid: &LiquidSpec{
		GlobalFlags: LiquidTypeOcean,
		OffsetX:     2,
		OffsetY:     2,
		Width:       4,
		Height:      4,
		Heights:     heights,
	}})
	// Sample (3, 3) is inside the 4x4 patch at offset (2, 2).
	in := -testLayout.GridSize * 3.5 / testRes
	if got := g.GetLiquidLevel(in, in); got != 3 {
		t.Errorf("level inside patch = %v, want 3", got)
	}
	if got := g.GetLiquidLevel(-1, -1); got != InvalidHeight {
		t.Errorf("level outside patch = %v, want InvalidHeight", got)
	}
}

func TestGetMinHeight(t *testing.T) {
	g := mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: EncodingFlat}})
	if got := g.GetMinHeight(-10, -10); got != NoFlightBoundsMinHeight {
		t.Errorf("no bounds = %v, want %v", got, NoFlightBoundsMinHeight)
	}

	bounds := []int16{-40, -40, -40, -40, -40, -40, -40, -40, -40}
	g = mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: EncodingFlat, FlightMax: bounds, FlightMin: bounds}})
	if got := g.GetMinHeight(-10, -10); got != -40 {
		t.Errorf("constant bounds = %v, want -40", got)
	}
}

func TestGetMinHeightLattice(t *testing.T) {
	// min(i, j) = 100*i + 10*j, i along x and j along y; the 3x3 lattice
	// spans one grid, so inside grid 0 the lattice position is
	// 2*(1 - coord/64).
	lattice := []int16{0, 10, 20, 100, 110, 120, 200, 210, 220}
	ceiling := []int16{500, 500, 500, 500, 500, 500, 500, 500, 500}
	g := mustLoad(t, TileSpec{Height: &HeightSpec{Encoding: EncodingFlat, FlightMax: ceiling, FlightMin: lattice}})

	tests := []struct {
		name string
		x, y float32
		want float32
	}{
		{"near corner", 64, 64, 0},
		{"edge midpoint x", 32, 64, 100},
		{"edge midpoint y", 64, 32, 10},
		{"centre", 32, 32, 110},
		{"quarter", 48, 16, 65},
		{"far corner", 1, 1, 216.5625},
		{"first half", 40, 40, 82.5},
		{"second half", 8, 40, 182.5},
	}
	got := make(map[string]float32, len(tests))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := g.GetMinHeight(tt.x, tt.y)
			got[tt.name] = h
			if math.Abs(float64(h-tt.want)) > 1e-3 {
				t.Errorf("GetMinHeight(%v, %v) = %v, want %v", tt.x, tt.y, h, tt.want)
			}
		})
	}
	if got["first half"] == got["second half"] {
		t.Errorf("points half a grid apart share min height %v", got["first half"])
	}
}

func TestLoadFormatErrors(t *testing.T) {
	good, err := Encode(TileSpec{Height: &HeightSpec{Encoding: EncodingFlat, Flat: 1}}, testRes)
	if err != nil {
		t.Fatal(err)
	}

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'
	badSection := append([]byte(nil), good...)
	badSection[fileHeaderSize] = 'X'

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", good[:10]},
		{"bad magic", badMagic},
		{"bad section fourcc", badSection},
		{"truncated section", good[:fileHeaderSize+6]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.data, testLayout)
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("err = %v, want ErrFormat", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile(filepath.Join(dir, "missing.map"), testLayout)
	if !IsFormatError(err) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}

	data, err := Encode(TileSpec{Height: &HeightSpec{Encoding: EncodingFlat, Flat: 9}}, testRes)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "0000000.map")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadFile(path, testLayout)
	if err != nil {
		t.Fatal(err)
	}
	if g.GetHeight(-5, -5) != 9 {
		t.Errorf("height = %v, want 9", g.GetHeight(-5, -5))
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := Encode(TileSpec{}, 12); err == nil {
		t.Error("non power of two resolution accepted")
	}
	if _, err := Encode(TileSpec{Height: &HeightSpec{Encoding: EncodingFloat, V9: []float32{1}}}, testRes); err == nil {
		t.Error("short sample array accepted")
	}
	if _, err := Encode(TileSpec{Holes: []uint16{1}}, testRes); err == nil {
		t.Error("short holes accepted")
	}
}
