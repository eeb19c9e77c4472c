package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Sphere is a bounding sphere in the space of whoever computed it.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max mgl32.Vec3
}

// EmptyBox returns a box that contains nothing; extending it with any
// point yields that point.
func EmptyBox() Box {
	inf := float32(math.Inf(1))
	return Box{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether the box contains no volume.
func (b Box) IsEmpty() bool {
	return b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() || b.Min.Z() > b.Max.Z()
}

// ExtendPoint grows the box to include p.
func (b Box) ExtendPoint(p mgl32.Vec3) Box {
	return Box{
		Min: mgl32.Vec3{min(b.Min.X(), p.X()), min(b.Min.Y(), p.Y()), min(b.Min.Z(), p.Z())},
		Max: mgl32.Vec3{max(b.Max.X(), p.X()), max(b.Max.Y(), p.Y()), max(b.Max.Z(), p.Z())},
	}
}

// Center returns the box center.
func (b Box) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Sphere returns the tightest sphere enclosing the box.
func (b Box) Sphere() Sphere {
	if b.IsEmpty() {
		return Sphere{}
	}
	c := b.Center()
	return Sphere{Center: c, Radius: b.Max.Sub(c).Len()}
}

// Transformed returns the AABB of the box under an affine transform.
// Uses the standard per-axis min/max of the transformed corners.
func (b Box) Transformed(m mgl32.Mat4) Box {
	if b.IsEmpty() {
		return b
	}
	out := EmptyBox()
	for i := 0; i < 8; i++ {
		p := mgl32.Vec3{
			pick(i&1 != 0, b.Max.X(), b.Min.X()),
			pick(i&2 != 0, b.Max.Y(), b.Min.Y()),
			pick(i&4 != 0, b.Max.Z(), b.Min.Z()),
		}
		out = out.ExtendPoint(mgl32.TransformCoordinate(p, m))
	}
	return out
}

// Transformed returns the sphere moved into the transformed space. The
// radius is scaled by the largest axis scale so the result always
// encloses the transformed geometry.
func (s Sphere) Transformed(m mgl32.Mat4) Sphere {
	c := mgl32.TransformCoordinate(s.Center, m)
	sx := mgl32.Vec3{m[0], m[1], m[2]}.Len()
	sy := mgl32.Vec3{m[4], m[5], m[6]}.Len()
	sz := mgl32.Vec3{m[8], m[9], m[10]}.Len()
	return Sphere{Center: c, Radius: s.Radius * max(sx, max(sy, sz))}
}

// boundsFromPositions computes a box and enclosing sphere over a packed
// xyz position stream.
func boundsFromPositions(data []float32) (Sphere, Box) {
	box := EmptyBox()
	for i := 0; i+2 < len(data); i += 3 {
		box = box.ExtendPoint(mgl32.Vec3{data[i], data[i+1], data[i+2]})
	}
	if box.IsEmpty() {
		return Sphere{}, box
	}
	// The sphere is centered on the box; the radius comes from a second
	// pass over the points rather than the box diagonal.
	c := box.Center()
	var r2 float32
	for i := 0; i+2 < len(data); i += 3 {
		d := mgl32.Vec3{data[i], data[i+1], data[i+2]}.Sub(c)
		if l := d.Dot(d); l > r2 {
			r2 = l
		}
	}
	return Sphere{Center: c, Radius: float32(math.Sqrt(float64(r2)))}, box
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}
