// Package cull implements view-frustum visibility tests against
// bounding volumes.
package cull

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/orbit/scene"
)

// Plane is a half-space in Hessian normal form: points p with
// dot(Normal, p) + D >= 0 are inside.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// Normalize scales the plane so Normal has unit length, making
// DistanceTo a true signed distance.
func (p Plane) Normalize() Plane {
	l := p.Normal.Len()
	if l == 0 {
		return p
	}
	inv := 1 / l
	return Plane{Normal: p.Normal.Mul(inv), D: p.D * inv}
}

// DistanceTo returns the signed distance from the plane to a point;
// positive means inside.
func (p Plane) DistanceTo(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.D
}

// Frustum is the six planes of a view volume, normals pointing inward.
type Frustum struct {
	Planes [6]Plane
}

// borderlineScale is the band, relative to the sphere radius, around a
// plane in which the cheap sphere test is considered inconclusive and
// the box test decides.
const borderlineScale = 1e-3

// FromMatrix extracts the six frustum planes from a combined
// view-projection matrix (Gribb/Hartmann row method) and normalizes
// them. Call once per frame.
func FromMatrix(vp mgl32.Mat4) Frustum {
	// Rows of the column-major matrix.
	row := func(i int) mgl32.Vec4 {
		return mgl32.Vec4{vp[i], vp[i+4], vp[i+8], vp[i+12]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planeOf := func(v mgl32.Vec4) Plane {
		return Plane{Normal: mgl32.Vec3{v.X(), v.Y(), v.Z()}, D: v.W()}.Normalize()
	}

	var f Frustum
	f.Planes[0] = planeOf(r3.Add(r0)) // left
	f.Planes[1] = planeOf(r3.Sub(r0)) // right
	f.Planes[2] = planeOf(r3.Add(r1)) // bottom
	f.Planes[3] = planeOf(r3.Sub(r1)) // top
	f.Planes[4] = planeOf(r3.Add(r2)) // near
	f.Planes[5] = planeOf(r3.Sub(r2)) // far
	return f
}

// ContainsSphere reports whether any part of the sphere is inside the
// frustum. Tangent spheres are inside: the rejection test is
// dist < -radius, so dist == -radius passes.
func (f *Frustum) ContainsSphere(s scene.Sphere) bool {
	for i := range f.Planes {
		if f.Planes[i].DistanceTo(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// ContainsBox reports whether any part of the box is inside the
// frustum, testing the p-vertex (the corner furthest along each plane
// normal) per plane.
func (f *Frustum) ContainsBox(b scene.Box) bool {
	if b.IsEmpty() {
		return false
	}
	for i := range f.Planes {
		n := f.Planes[i].Normal
		p := mgl32.Vec3{
			pick(n.X() >= 0, b.Max.X(), b.Min.X()),
			pick(n.Y() >= 0, b.Max.Y(), b.Min.Y()),
			pick(n.Z() >= 0, b.Max.Z(), b.Min.Z()),
		}
		if f.Planes[i].DistanceTo(p) < 0 {
			return false
		}
	}
	return true
}

// ContainsDrawable tests a drawable's world-space volumes: the sphere
// signed-distance test rejects or accepts cheaply, and only spheres
// sitting within a hair of a plane fall back to the exact box test.
func (f *Frustum) ContainsDrawable(sphere scene.Sphere, box scene.Box) bool {
	borderline := false
	eps := sphere.Radius * borderlineScale
	for i := range f.Planes {
		d := f.Planes[i].DistanceTo(sphere.Center)
		if d < -sphere.Radius {
			return false
		}
		if d < -sphere.Radius+eps {
			borderline = true
		}
	}
	if borderline && !box.IsEmpty() {
		return f.ContainsBox(box)
	}
	return true
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}
