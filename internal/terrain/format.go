package terrain

import "errors"

// ErrFormat marks a malformed or unreadable tile. Loaders wrap it.
var ErrFormat = errors.New("terrain: bad tile format")

// Section fourcc values and file magics, stored little-endian.
var (
	MapMagic     = fourCC("MAPS")
	VersionMagic = fourCC("v1.9")
	AreaMagic    = fourCC("AREA")
	HeightMagic  = fourCC("MHGT")
	LiquidMagic  = fourCC("MLIQ")
)

func fourCC(s string) uint32 {
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}

// Area section flags.
const (
	AreaNoArea uint16 = 0x0001
)

// Height section flags.
const (
	HeightNoHeight        uint32 = 0x0001
	HeightAsInt16         uint32 = 0x0002
	HeightAsInt8          uint32 = 0x0004
	HeightHasFlightBounds uint32 = 0x0008
)

// Liquid section flags.
const (
	LiquidNoType   uint8 = 0x0001
	LiquidNoHeight uint8 = 0x0002
)

const (
	InvalidHeight          float32 = -100000.0
	MaxHeight              float32 = 100000.0
	MaxFallDistance        float32 = 250000.0
	DefaultHeightSearch    float32 = 50.0
	GroundHeightTolerance  float32 = 0.05
	DefaultCollisionHeight float32 = 2.03128
	// NoFlightBoundsMinHeight is returned by GetMinHeight when a tile carries no flight bounds.
	NoFlightBoundsMinHeight float32 = -500.0
)

// chunksPerSide is the number of area/liquid-type/hole chunks along one tile axis.
const chunksPerSide = 16

// flightBoundPoints is the 3x3 lattice of flight bound samples.
const flightBoundPoints = 9

// FileHeader is the fixed tile file header.
type FileHeader struct {
	MapMagic     uint32
	VersionMagic uint32
	BuildMagic   uint32
	AreaOffset   uint32
	AreaSize     uint32
	HeightOffset uint32
	HeightSize   uint32
	LiquidOffset uint32
	LiquidSize   uint32
	HolesOffset  uint32
	HolesSize    uint32
}

const fileHeaderSize = 11 * 4

// AreaHeader precedes the optional per-chunk area id array.
type AreaHeader struct {
	FourCC   uint32
	Flags    uint16
	GridArea uint16
}

const areaHeaderSize = 8

// HeightHeader precedes the height samples.
type HeightHeader struct {
	FourCC        uint32
	Flags         uint32
	GridHeight    float32 // base
	GridMaxHeight float32 // top of the quantization range
}

const heightHeaderSize = 16

// LiquidHeader precedes the liquid type and level arrays.
type LiquidHeader struct {
	FourCC      uint32
	Flags       uint8
	LiquidFlags uint8
	LiquidType  uint16
	OffsetX     uint8
	OffsetY     uint8
	Width       uint8
	Height      uint8
	LiquidLevel float32
}

const liquidHeaderSize = 16

// HeightEncoding selects how height samples are stored and decoded.
type HeightEncoding uint8

const (
	EncodingFlat HeightEncoding = iota
	EncodingFloat
	EncodingUint16
	EncodingUint8
)

func (e HeightEncoding) String() string {
	switch e {
	case EncodingFlat:
		return "flat"
	case EncodingFloat:
		return "float"
	case EncodingUint16:
		return "uint16"
	case EncodingUint8:
		return "uint8"
	}
	return "unknown"
}

// LiquidType bit flags.
const (
	LiquidTypeNoWater   uint8 = 0x00
	LiquidTypeWater     uint8 = 0x01
	LiquidTypeOcean     uint8 = 0x02
	LiquidTypeMagma     uint8 = 0x04
	LiquidTypeSlime     uint8 = 0x08
	LiquidTypeDarkWater uint8 = 0x10

	AllLiquids = LiquidTypeWater | LiquidTypeOcean | LiquidTypeMagma | LiquidTypeSlime
)

// LiquidStatus describes how a point relates to the liquid surface.
type LiquidStatus uint32

const (
	LiquidNoWater    LiquidStatus = 0x00
	LiquidAboveWater LiquidStatus = 0x01
	LiquidWaterWalk  LiquidStatus = 0x02
	LiquidInWater    LiquidStatus = 0x04
	LiquidUnderWater LiquidStatus = 0x08

	LiquidStatusSwimming  = LiquidInWater | LiquidUnderWater
	LiquidStatusInContact = LiquidStatusSwimming | LiquidWaterWalk
)

// Has reports whether every bit of f is set in s.
func (s LiquidStatus) Has(f LiquidStatus) bool { return s&f == f }

// LiquidData is the answer to a liquid query.
type LiquidData struct {
	Entry      uint32
	Flags      uint32 // liquid type flags
	Level      float32
	DepthLevel float32 // ground height under the surface
	Status     LiquidStatus
}

// NoLiquid is the zero answer.
func NoLiquid() LiquidData {
	return LiquidData{Level: InvalidHeight, DepthLevel: InvalidHeight, Status: LiquidNoWater}
}

// LiquidTypeLookup maps a liquid entry to its type flag. Returning ok=false
// keeps the flag stored in the tile.
type LiquidTypeLookup func(entry uint32) (flag uint8, ok bool)
