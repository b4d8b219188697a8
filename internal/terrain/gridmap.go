package terrain

import (
	"errors"
	"fmt"
	"os"

	"github.com/warheadgo/server/internal/grid"
)

// GridMap is one terrain tile: heights, area ids, liquid and holes for a
// single grid coordinate. Immutable after Load, so concurrent reads are safe.
type GridMap struct {
	layout grid.Layout
	res    int

	flags    uint32
	encoding HeightEncoding

	v9f, v8f     []float32
	v9u16, v8u16 []uint16
	v9u8, v8u8   []uint8

	maxHeight []int16
	minHeight []int16

	gridHeight              float32
	gridIntHeightMultiplier float32

	areaMap  []uint16
	gridArea uint16

	liquidLevel       float32
	liquidEntry       []uint16
	liquidFlags       []uint8
	liquidMap         []float32
	liquidGlobalEntry uint16
	liquidGlobalFlags uint8
	liquidOffX        uint8
	liquidOffY        uint8
	liquidWidth       uint8
	liquidHeight      uint8

	holes []uint16

	liquidTypes LiquidTypeLookup
}

// Option tunes a tile at load time.
type Option func(*GridMap)

// WithLiquidTypes installs an entry → liquid type override table.
func WithLiquidTypes(lookup LiquidTypeLookup) Option {
	return func(g *GridMap) { g.liquidTypes = lookup }
}

// LoadFile reads and decodes a tile file. A missing file is reported as a
// format error so callers treat the coordinate as "no ground".
func LoadFile(path string, layout grid.Layout, opts ...Option) (*GridMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tile %s: %w: %w", path, ErrFormat, err)
	}
	g, err := Load(data, layout, opts...)
	if err != nil {
		return nil, fmt.Errorf("load tile %s: %w", path, err)
	}
	return g, nil
}

// Load decodes a tile image.
func Load(data []byte, layout grid.Layout, opts ...Option) (*GridMap, error) {
	layout = layout.Normalize()
	g := &GridMap{
		layout:      layout,
		res:         layout.Resolution,
		gridHeight:  InvalidHeight,
		liquidLevel: InvalidHeight,
	}
	for _, opt := range opts {
		opt(g)
	}

	r := newReader(data, 0)
	var h FileHeader
	h.MapMagic = r.u32()
	h.VersionMagic = r.u32()
	h.BuildMagic = r.u32()
	h.AreaOffset = r.u32()
	h.AreaSize = r.u32()
	h.HeightOffset = r.u32()
	h.HeightSize = r.u32()
	h.LiquidOffset = r.u32()
	h.LiquidSize = r.u32()
	h.HolesOffset = r.u32()
	h.HolesSize = r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("file header: %w", r.err)
	}
	if h.MapMagic != MapMagic || h.VersionMagic != VersionMagic {
		return nil, fmt.Errorf("%w: magic %08x version %08x", ErrFormat, h.MapMagic, h.VersionMagic)
	}

	if h.AreaOffset != 0 {
		if err := g.loadArea(data, int(h.AreaOffset)); err != nil {
			return nil, fmt.Errorf("area section: %w", err)
		}
	}
	if h.HeightOffset != 0 {
		if err := g.loadHeight(data, int(h.HeightOffset)); err != nil {
			return nil, fmt.Errorf("height section: %w", err)
		}
	}
	if h.LiquidOffset != 0 {
		if err := g.loadLiquid(data, int(h.LiquidOffset)); err != nil {
			return nil, fmt.Errorf("liquid section: %w", err)
		}
	}
	if h.HolesSize != 0 {
		if err := g.loadHoles(data, int(h.HolesOffset), int(h.HolesSize)); err != nil {
			return nil, fmt.Errorf("holes section: %w", err)
		}
	}
	return g, nil
}

func (g *GridMap) loadArea(data []byte, off int) error {
	r := newReader(data, off)
	var h AreaHeader
	h.FourCC = r.u32()
	h.Flags = r.u16()
	h.GridArea = r.u16()
	if r.err != nil {
		return r.err
	}
	if h.FourCC != AreaMagic {
		return fmt.Errorf("%w: area fourcc %08x", ErrFormat, h.FourCC)
	}
	g.gridArea = h.GridArea
	if h.Flags&AreaNoArea == 0 {
		g.areaMap = r.u16s(chunksPerSide * chunksPerSide)
	}
	return r.err
}

func (g *GridMap) loadHeight(data []byte, off int) error {
	r := newReader(data, off)
	var h HeightHeader
	h.FourCC = r.u32()
	h.Flags = r.u32()
	h.GridHeight = r.f32()
	h.GridMaxHeight = r.f32()
	if r.err != nil {
		return r.err
	}
	if h.FourCC != HeightMagic {
		return fmt.Errorf("%w: height fourcc %08x", ErrFormat, h.FourCC)
	}
	g.flags = h.Flags
	g.gridHeight = h.GridHeight

	n9 := (g.res + 1) * (g.res + 1)
	n8 := g.res * g.res
	switch {
	case h.Flags&HeightNoHeight != 0:
		g.encoding = EncodingFlat
	case h.Flags&HeightAsInt16 != 0:
		g.encoding = EncodingUint16
		g.v9u16 = r.u16s(n9)
		g.v8u16 = r.u16s(n8)
		g.gridIntHeightMultiplier = (h.GridMaxHeight - h.GridHeight) / 65535
	case h.Flags&HeightAsInt8 != 0:
		g.encoding = EncodingUint8
		g.v9u8 = r.u8s(n9)
		g.v8u8 = r.u8s(n8)
		g.gridIntHeightMultiplier = (h.GridMaxHeight - h.GridHeight) / 255
	default:
		g.encoding = EncodingFloat
		g.v9f = r.f32s(n9)
		g.v8f = r.f32s(n8)
	}
	if h.Flags&HeightHasFlightBounds != 0 {
		g.maxHeight = r.i16s(flightBoundPoints)
		g.minHeight = r.i16s(flightBoundPoints)
	}
	return r.err
}

func (g *GridMap) loadLiquid(data []byte, off int) error {
	r := newReader(data, off)
	var h LiquidHeader
	h.FourCC = r.u32()
	h.Flags = r.u8()
	h.LiquidFlags = r.u8()
	h.LiquidType = r.u16()
	h.OffsetX = r.u8()
	h.OffsetY = r.u8()
	h.Width = r.u8()
	h.Height = r.u8()
	h.LiquidLevel = r.f32()
	if r.err != nil {
		return r.err
	}
	if h.FourCC != LiquidMagic {
		return fmt.Errorf("%w: liquid fourcc %08x", ErrFormat, h.FourCC)
	}
	g.liquidGlobalEntry = h.LiquidType
	g.liquidGlobalFlags = h.LiquidFlags
	g.liquidOffX = h.OffsetX
	g.liquidOffY = h.OffsetY
	g.liquidWidth = h.Width
	g.liquidHeight = h.Height
	g.liquidLevel = h.LiquidLevel

	if h.Flags&LiquidNoType == 0 {
		g.liquidEntry = r.u16s(chunksPerSide * chunksPerSide)
		g.liquidFlags = r.u8s(chunksPerSide * chunksPerSide)
	}
	if h.Flags&LiquidNoHeight == 0 {
		g.liquidMap = r.f32s(int(h.Width) * int(h.Height))
	}
	return r.err
}

func (g *GridMap) loadHoles(data []byte, off, size int) error {
	want := chunksPerSide * chunksPerSide * 2
	if size < want {
		return fmt.Errorf("%w: holes size %d < %d", ErrFormat, size, want)
	}
	r := newReader(data, off)
	g.holes = r.u16s(chunksPerSide * chunksPerSide)
	return r.err
}

// Encoding reports how heights are stored.
func (g *GridMap) Encoding() HeightEncoding { return g.encoding }

// HeightMultiplier is the quantization step of integer encodings (0 otherwise).
func (g *GridMap) HeightMultiplier() float32 { return g.gridIntHeightMultiplier }

// FlatHeight is the tile's base height, returned by flat tiles everywhere.
func (g *GridMap) FlatHeight() float32 { return g.gridHeight }

// HasLiquid reports whether the tile carries any liquid data.
func (g *GridMap) HasLiquid() bool {
	return g.liquidGlobalFlags != 0 || g.liquidFlags != nil
}

// sample maps world x, y to tile sample space (samplesPerSide per grid).
func (g *GridMap) sample(x, y float32, samplesPerSide int) (float32, float32) {
	center := g.layout.CenterGridID()
	return float32(samplesPerSide) * (center - x/g.layout.GridSize),
		float32(samplesPerSide) * (center - y/g.layout.GridSize)
}

// GetHeight returns the terrain height at x, y. Holes have no ground and
// report InvalidHeight.
func (g *GridMap) GetHeight(x, y float32) float32 {
	switch g.encoding {
	case EncodingFloat:
		return g.interpolated(x, y, func(xi, yi int, fx, fy float32) float32 {
			return triangleHeight(g.v9f, g.v8f, g.res, xi, yi, fx, fy)
		})
	case EncodingUint16:
		return g.interpolated(x, y, func(xi, yi int, fx, fy float32) float32 {
			return triangleHeight(g.v9u16, g.v8u16, g.res, xi, yi, fx, fy)*g.gridIntHeightMultiplier + g.gridHeight
		})
	case EncodingUint8:
		return g.interpolated(x, y, func(xi, yi int, fx, fy float32) float32 {
			return triangleHeight(g.v9u8, g.v8u8, g.res, xi, yi, fx, fy)*g.gridIntHeightMultiplier + g.gridHeight
		})
	default:
		return g.gridHeight
	}
}

func (g *GridMap) interpolated(x, y float32, decode func(xi, yi int, fx, fy float32) float32) float32 {
	sx, sy := g.sample(x, y, g.res)
	xi, yi := int(sx), int(sy)
	fx, fy := sx-float32(xi), sy-float32(yi)
	xi &= g.res - 1
	yi &= g.res - 1
	if g.isHole(xi, yi) {
		return InvalidHeight
	}
	return decode(xi, yi, fx, fy)
}

type heightSample interface {
	~float32 | ~uint16 | ~uint8
}

// triangleHeight interpolates inside one sample square split into four
// triangles around the centre sample (v8). v9 holds the corners.
func triangleHeight[T heightSample](v9, v8 []T, res, xi, yi int, fx, fy float32) float32 {
	stride := res + 1
	h1 := func() float32 { return float32(v9[xi*stride+yi]) }
	h2 := func() float32 { return float32(v9[(xi+1)*stride+yi]) }
	h3 := func() float32 { return float32(v9[xi*stride+yi+1]) }
	h4 := func() float32 { return float32(v9[(xi+1)*stride+yi+1]) }
	h5 := 2 * float32(v8[xi*res+yi])

	var a, b, c float32
	if fx+fy < 1 {
		if fx > fy {
			p1, p2 := h1(), h2()
			a, b, c = p2-p1, h5-p1-p2, p1
		} else {
			p1, p3 := h1(), h3()
			a, b, c = h5-p1-p3, p3-p1, p1
		}
	} else {
		if fx > fy {
			p2, p4 := h2(), h4()
			a, b, c = p2+p4-h5, p4-p2, h5-p4
		} else {
			p3, p4 := h3(), h4()
			a, b, c = p4-p3, p3+p4-h5, h5-p4
		}
	}
	return a*fx + b*fy + c
}

var (
	holeTabH = [4]uint16{0x1111, 0x2222, 0x4444, 0x8888}
	holeTabV = [4]uint16{0x000F, 0x00F0, 0x0F00, 0xF000}
)

func (g *GridMap) isHole(row, col int) bool {
	if g.holes == nil {
		return false
	}
	chunk := g.res / chunksPerSide
	quad := max(chunk/4, 1)
	cellRow := row / chunk
	cellCol := col / chunk
	holeRow := min((row%chunk)/quad, 3)
	holeCol := min((col-cellCol*chunk)/quad, 3)
	hole := g.holes[cellRow*chunksPerSide+cellCol]
	return hole&holeTabH[holeCol]&holeTabV[holeRow] != 0
}

// GetMinHeight returns the lower flight bound at x, y, interpolated over the
// tile's 3x3 bound lattice.
func (g *GridMap) GetMinHeight(x, y float32) float32 {
	if g.minHeight == nil {
		return NoFlightBoundsMinHeight
	}
	sx, sy := g.sample(x, y, 1)
	u := sx - float32(int(sx))
	v := sy - float32(int(sy))
	u, v = u*2, v*2
	i0, j0 := min(int(u), 1), min(int(v), 1)
	fu, fv := u-float32(i0), v-float32(j0)
	at := func(i, j int) float32 { return float32(g.minHeight[i*3+j]) }
	top := at(i0, j0)*(1-fv) + at(i0, j0+1)*fv
	bottom := at(i0+1, j0)*(1-fv) + at(i0+1, j0+1)*fv
	return top*(1-fu) + bottom*fu
}

// GetArea returns the area id at x, y.
func (g *GridMap) GetArea(x, y float32) uint16 {
	if g.areaMap == nil {
		return g.gridArea
	}
	sx, sy := g.sample(x, y, chunksPerSide)
	lx := int(sx) & (chunksPerSide - 1)
	ly := int(sy) & (chunksPerSide - 1)
	return g.areaMap[lx*chunksPerSide+ly]
}

// GetLiquidLevel returns the liquid surface height at x, y, or InvalidHeight
// outside the liquid patch.
func (g *GridMap) GetLiquidLevel(x, y float32) float32 {
	if g.liquidMap == nil {
		return g.liquidLevel
	}
	sx, sy := g.sample(x, y, g.res)
	cx := (int(sx) & (g.res - 1)) - int(g.liquidOffY)
	cy := (int(sy) & (g.res - 1)) - int(g.liquidOffX)
	if cx < 0 || cx >= int(g.liquidHeight) || cy < 0 || cy >= int(g.liquidWidth) {
		return InvalidHeight
	}
	return g.liquidMap[cx*int(g.liquidWidth)+cy]
}

// GetLiquidData reports the liquid at x, y and how z relates to it.
// reqLiquidType filters by liquid type flags; 0 accepts any liquid.
func (g *GridMap) GetLiquidData(x, y, z, collisionHeight float32, reqLiquidType uint8) LiquidData {
	out := NoLiquid()
	if g.liquidGlobalFlags == 0 && g.liquidFlags == nil {
		return out
	}

	sx, sy := g.sample(x, y, g.res)
	xi := int(sx) & (g.res - 1)
	yi := int(sy) & (g.res - 1)
	chunk := g.res / chunksPerSide
	idx := (xi/chunk)*chunksPerSide + yi/chunk

	liqType := g.liquidGlobalFlags
	if g.liquidFlags != nil {
		liqType = g.liquidFlags[idx]
	}
	entry := uint32(g.liquidGlobalEntry)
	if g.liquidEntry != nil {
		entry = uint32(g.liquidEntry[idx])
	}
	if g.liquidTypes != nil && entry != 0 {
		if flag, ok := g.liquidTypes(entry); ok {
			liqType = liqType&LiquidTypeDarkWater | flag
		}
	}
	if liqType == LiquidTypeNoWater {
		return out
	}
	if reqLiquidType != 0 && reqLiquidType&liqType == 0 {
		return out
	}

	lx := xi - int(g.liquidOffY)
	ly := yi - int(g.liquidOffX)
	if lx < 0 || lx >= int(g.liquidHeight) || ly < 0 || ly >= int(g.liquidWidth) {
		return out
	}
	level := g.liquidLevel
	if g.liquidMap != nil {
		level = g.liquidMap[lx*int(g.liquidWidth)+ly]
	}

	ground := g.GetHeight(x, y)
	if level < ground || z < ground-2 {
		return out
	}

	out.Entry = entry
	out.Flags = uint32(liqType)
	out.Level = level
	out.DepthLevel = ground
	out.Status = liquidStatus(level-z, collisionHeight)
	return out
}

// liquidStatus classifies delta = surface - z.
func liquidStatus(delta, collisionHeight float32) LiquidStatus {
	switch {
	case delta > collisionHeight:
		return LiquidInWater | LiquidUnderWater
	case delta >= 0:
		return LiquidInWater
	case delta > -0.1:
		return LiquidWaterWalk
	default:
		return LiquidAboveWater
	}
}

// IsFormatError reports whether err came from a malformed or missing tile.
func IsFormatError(err error) bool { return errors.Is(err, ErrFormat) }
