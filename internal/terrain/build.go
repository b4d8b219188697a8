package terrain

import (
	"fmt"
	"math"
)

// TileSpec describes a tile to encode. Nil sections are omitted.
type TileSpec struct {
	Build  uint32
	Area   *AreaSpec
	Height *HeightSpec
	Liquid *LiquidSpec
	Holes  []uint16 // 16x16 hole masks, nil for none
}

// AreaSpec is the area section. A nil Areas stores only GridArea.
type AreaSpec struct {
	GridArea uint16
	Areas    []uint16
}

// HeightSpec is the height section. Heights are world units; integer
// encodings quantize them between the min and max sample.
type HeightSpec struct {
	Encoding HeightEncoding
	Flat     float32   // used by EncodingFlat
	V9       []float32 // (res+1)^2 corner samples, x-major
	V8       []float32 // res^2 centre samples, x-major

	FlightMax []int16 // optional 3x3 lattice
	FlightMin []int16
}

// LiquidSpec is the liquid section.
type LiquidSpec struct {
	GlobalEntry uint16
	GlobalFlags uint8
	OffsetX     uint8
	OffsetY     uint8
	Width       uint8
	Height      uint8
	Level       float32

	Entries []uint16  // 16x16, nil stores the global entry only
	Flags   []uint8   // 16x16, nil stores the global flags only
	Heights []float32 // Width*Height, nil uses Level everywhere
}

// Encode writes spec as a tile image for the given resolution.
func Encode(spec TileSpec, res int) ([]byte, error) {
	if res <= 0 || res&(res-1) != 0 || res < chunksPerSide {
		return nil, fmt.Errorf("encode tile: resolution %d must be a power of two >= %d", res, chunksPerSide)
	}
	w := newWriter(fileHeaderSize + (res+1)*(res+1)*4*2)
	for i := 0; i < fileHeaderSize/4; i++ {
		w.u32(0)
	}
	w.putU32(0, MapMagic)
	w.putU32(4, VersionMagic)
	w.putU32(8, spec.Build)

	if a := spec.Area; a != nil {
		if a.Areas != nil && len(a.Areas) != chunksPerSide*chunksPerSide {
			return nil, fmt.Errorf("encode tile: %d area ids, want %d", len(a.Areas), chunksPerSide*chunksPerSide)
		}
		start := w.len()
		w.u32(AreaMagic)
		var flags uint16
		if a.Areas == nil {
			flags |= AreaNoArea
		}
		w.u16(flags)
		w.u16(a.GridArea)
		for _, v := range a.Areas {
			w.u16(v)
		}
		w.putU32(12, uint32(start))
		w.putU32(16, uint32(w.len()-start))
	}

	if h := spec.Height; h != nil {
		start := w.len()
		if err := encodeHeight(w, h, res); err != nil {
			return nil, fmt.Errorf("encode tile: %w", err)
		}
		w.putU32(20, uint32(start))
		w.putU32(24, uint32(w.len()-start))
	}

	if l := spec.Liquid; l != nil {
		start := w.len()
		if err := encodeLiquid(w, l); err != nil {
			return nil, fmt.Errorf("encode tile: %w", err)
		}
		w.putU32(28, uint32(start))
		w.putU32(32, uint32(w.len()-start))
	}

	if spec.Holes != nil {
		if len(spec.Holes) != chunksPerSide*chunksPerSide {
			return nil, fmt.Errorf("encode tile: %d hole masks, want %d", len(spec.Holes), chunksPerSide*chunksPerSide)
		}
		start := w.len()
		for _, v := range spec.Holes {
			w.u16(v)
		}
		w.putU32(36, uint32(start))
		w.putU32(40, uint32(w.len()-start))
	}
	return w.buf, nil
}

func encodeHeight(w *writer, h *HeightSpec, res int) error {
	var flags uint32
	if h.FlightMax != nil || h.FlightMin != nil {
		if len(h.FlightMax) != flightBoundPoints || len(h.FlightMin) != flightBoundPoints {
			return fmt.Errorf("flight bounds need %d points each", flightBoundPoints)
		}
		flags |= HeightHasFlightBounds
	}

	if h.Encoding == EncodingFlat {
		w.u32(HeightMagic)
		w.u32(flags | HeightNoHeight)
		w.f32(h.Flat)
		w.f32(h.Flat)
		writeFlightBounds(w, h)
		return nil
	}

	if len(h.V9) != (res+1)*(res+1) || len(h.V8) != res*res {
		return fmt.Errorf("height samples: got %d/%d, want %d/%d", len(h.V9), len(h.V8), (res+1)*(res+1), res*res)
	}
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, s := range [][]float32{h.V9, h.V8} {
		for _, v := range s {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}

	switch h.Encoding {
	case EncodingFloat:
		w.u32(HeightMagic)
		w.u32(flags)
		w.f32(lo)
		w.f32(hi)
		for _, v := range h.V9 {
			w.f32(v)
		}
		for _, v := range h.V8 {
			w.f32(v)
		}
	case EncodingUint16:
		w.u32(HeightMagic)
		w.u32(flags | HeightAsInt16)
		w.f32(lo)
		w.f32(hi)
		step := (hi - lo) / 65535
		for _, s := range [][]float32{h.V9, h.V8} {
			for _, v := range s {
				w.u16(uint16(quantize(v, lo, step, 65535)))
			}
		}
	case EncodingUint8:
		w.u32(HeightMagic)
		w.u32(flags | HeightAsInt8)
		w.f32(lo)
		w.f32(hi)
		step := (hi - lo) / 255
		for _, s := range [][]float32{h.V9, h.V8} {
			for _, v := range s {
				w.u8(uint8(quantize(v, lo, step, 255)))
			}
		}
	default:
		return fmt.Errorf("unknown height encoding %d", h.Encoding)
	}
	writeFlightBounds(w, h)
	return nil
}

func quantize(v, lo, step float32, top int) int {
	if step == 0 {
		return 0
	}
	q := int((v-lo)/step + 0.5)
	return max(0, min(top, q))
}

func writeFlightBounds(w *writer, h *HeightSpec) {
	if h.FlightMax == nil {
		return
	}
	for _, v := range h.FlightMax {
		w.i16(v)
	}
	for _, v := range h.FlightMin {
		w.i16(v)
	}
}

func encodeLiquid(w *writer, l *LiquidSpec) error {
	var flags uint8
	if l.Entries == nil && l.Flags == nil {
		flags |= LiquidNoType
	} else if len(l.Entries) != chunksPerSide*chunksPerSide || len(l.Flags) != chunksPerSide*chunksPerSide {
		return fmt.Errorf("liquid types need %d entries and flags", chunksPerSide*chunksPerSide)
	}
	if l.Heights == nil {
		flags |= LiquidNoHeight
	} else if len(l.Heights) != int(l.Width)*int(l.Height) {
		return fmt.Errorf("liquid heights: got %d, want %d", len(l.Heights), int(l.Width)*int(l.Height))
	}

	w.u32(LiquidMagic)
	w.u8(flags)
	w.u8(l.GlobalFlags)
	w.u16(l.GlobalEntry)
	w.u8(l.OffsetX)
	w.u8(l.OffsetY)
	w.u8(l.Width)
	w.u8(l.Height)
	w.f32(l.Level)
	if flags&LiquidNoType == 0 {
		for _, v := range l.Entries {
			w.u16(v)
		}
		for _, v := range l.Flags {
			w.u8(v)
		}
	}
	for _, v := range l.Heights {
		w.f32(v)
	}
	return nil
}
