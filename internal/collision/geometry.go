package collision

import "math"

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3        { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3        { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float32) Vec3   { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float32     { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Length() float32        { return float32(math.Sqrt(float64(v.Dot(v)))) }
func (v Vec3) axis(i int) float32     { return [3]float32{v.X, v.Y, v.Z}[i] }

func (v Vec3) Distance(o Vec3) float32 { return v.Sub(o).Length() }

// Normalize returns v scaled to unit length; the zero vector stays zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v *Vec3) setAxis(i int, f float32) {
	switch i {
	case 0:
		v.X = f
	case 1:
		v.Y = f
	default:
		v.Z = f
	}
}

// AABox is an axis-aligned bounding box.
type AABox struct {
	Low, High Vec3
}

// BoxAround returns the box of half extents (hx, hy, hz) centred on c.
func BoxAround(c Vec3, hx, hy, hz float32) AABox {
	return AABox{
		Low:  Vec3{c.X - hx, c.Y - hy, c.Z - hz},
		High: Vec3{c.X + hx, c.Y + hy, c.Z + hz},
	}
}

func (b AABox) Center() Vec3 { return b.Low.Add(b.High).Scale(0.5) }
func (b AABox) Extent() Vec3 { return b.High.Sub(b.Low) }

// Merge returns the smallest box containing b and o.
func (b AABox) Merge(o AABox) AABox {
	return AABox{
		Low:  Vec3{min(b.Low.X, o.Low.X), min(b.Low.Y, o.Low.Y), min(b.Low.Z, o.Low.Z)},
		High: Vec3{max(b.High.X, o.High.X), max(b.High.Y, o.High.Y), max(b.High.Z, o.High.Z)},
	}
}

// Contains reports whether p lies inside or on b.
func (b AABox) Contains(p Vec3) bool {
	return p.X >= b.Low.X && p.X <= b.High.X &&
		p.Y >= b.Low.Y && p.Y <= b.High.Y &&
		p.Z >= b.Low.Z && p.Z <= b.High.Z
}

// Ray has a unit direction.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// NewRay builds a ray from origin towards target.
func NewRay(origin, target Vec3) Ray {
	return Ray{Origin: origin, Dir: target.Sub(origin).Normalize()}
}

func (r Ray) At(t float32) Vec3 { return r.Origin.Add(r.Dir.Scale(t)) }

// slab returns the entry and exit parameters of r against b.
func (r Ray) slab(b AABox) (tmin, tmax float32, ok bool) {
	tmin, tmax = float32(math.Inf(-1)), float32(math.Inf(1))
	for i := 0; i < 3; i++ {
		o, d := r.Origin.axis(i), r.Dir.axis(i)
		lo, hi := b.Low.axis(i), b.High.axis(i)
		if d == 0 {
			if o < lo || o > hi {
				return 0, 0, false
			}
			continue
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
	}
	return tmin, tmax, tmax >= tmin && tmax >= 0
}

// hitBox finds where a point moving along r first touches b. A ray that
// starts inside the box hits at its origin.
func hitBox(r Ray, b AABox) (loc Vec3, inside, ok bool) {
	inside = true
	maxT := Vec3{-1, -1, -1}
	for i := 0; i < 3; i++ {
		o, d := r.Origin.axis(i), r.Dir.axis(i)
		switch {
		case o < b.Low.axis(i):
			loc.setAxis(i, b.Low.axis(i))
			inside = false
			if d != 0 {
				maxT.setAxis(i, (b.Low.axis(i)-o)/d)
			}
		case o > b.High.axis(i):
			loc.setAxis(i, b.High.axis(i))
			inside = false
			if d != 0 {
				maxT.setAxis(i, (b.High.axis(i)-o)/d)
			}
		}
	}
	if inside {
		return r.Origin, true, true
	}

	plane := 0
	if maxT.Y > maxT.axis(plane) {
		plane = 1
	}
	if maxT.Z > maxT.axis(plane) {
		plane = 2
	}
	t := maxT.axis(plane)
	if t < 0 {
		return Vec3{}, false, false
	}
	for i := 0; i < 3; i++ {
		if i == plane {
			continue
		}
		v := r.Origin.axis(i) + t*r.Dir.axis(i)
		if v < b.Low.axis(i) || v > b.High.axis(i) {
			return Vec3{}, false, false
		}
		loc.setAxis(i, v)
	}
	return loc, false, true
}
