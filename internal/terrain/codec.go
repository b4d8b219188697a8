package terrain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader decodes little-endian tile fields. The first short read latches an
// error and every later read returns zero.
type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte, off int) *reader {
	r := &reader{data: data, off: off}
	if off < 0 || off > len(data) {
		r.err = fmt.Errorf("%w: offset %d past end %d", ErrFormat, off, len(data))
	}
	return r
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated at %d (need %d, have %d)", ErrFormat, r.off, n, len(r.data)-r.off)
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) i16() int16 { return int16(r.u16()) }

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) u8s(n int) []uint8 {
	if !r.need(n) {
		return nil
	}
	out := make([]uint8, n)
	copy(out, r.data[r.off:r.off+n])
	r.off += n
	return out
}

func (r *reader) u16s(n int) []uint16 {
	if !r.need(2 * n) {
		return nil
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(r.data[r.off:])
		r.off += 2
	}
	return out
}

func (r *reader) i16s(n int) []int16 {
	raw := r.u16s(n)
	if raw == nil {
		return nil
	}
	out := make([]int16, n)
	for i, v := range raw {
		out[i] = int16(v)
	}
	return out
}

func (r *reader) f32s(n int) []float32 {
	if !r.need(4 * n) {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
		r.off += 4
	}
	return out
}

// writer builds a tile image. All multi-byte writes are little-endian.
type writer struct {
	buf []byte
}

func newWriter(capacity int) *writer {
	return &writer{buf: make([]byte, 0, capacity)}
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) i16(v int16) { w.u16(uint16(v)) }

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }

// putU32 overwrites a previously reserved field.
func (w *writer) putU32(at int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[at:], v)
}

func (w *writer) len() int { return len(w.buf) }
