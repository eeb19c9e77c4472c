package scene

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

var drawableIDs atomic.Uint64

// Drawable pairs a geometry with one or more materials on a node; the
// unit of one draw call (one per material group). Its bounding volumes
// are computed lazily and cached against the geometry's content
// version.
type Drawable struct {
	id        uint64
	Geometry  *Geometry
	Materials []*Material

	node NodeID

	boundsVersion uint64
	sphere        Sphere
	box           Box
}

// NewDrawable creates a drawable. At least one material is required;
// geometry groups index into the material list.
func NewDrawable(g *Geometry, materials ...*Material) *Drawable {
	return &Drawable{
		id:        drawableIDs.Add(1),
		Geometry:  g,
		Materials: materials,
		node:      InvalidNode,
	}
}

// ID returns the drawable's unique id.
func (d *Drawable) ID() uint64 { return d.id }

// Node returns the owning node, or InvalidNode when detached.
func (d *Drawable) Node() NodeID { return d.node }

// MaterialFor returns the material for a geometry group, falling back
// to material 0 for out-of-range indices so a bad group index degrades
// instead of faulting.
func (d *Drawable) MaterialFor(g Group) *Material {
	if g.MaterialIndex >= 0 && g.MaterialIndex < len(d.Materials) {
		return d.Materials[g.MaterialIndex]
	}
	if len(d.Materials) > 0 {
		return d.Materials[0]
	}
	return nil
}

// Bounds returns the drawable's local-space bounding sphere and box,
// recomputing them only when the geometry's content version moved.
func (d *Drawable) Bounds() (Sphere, Box) {
	if d.Geometry == nil {
		return Sphere{}, EmptyBox()
	}
	if v := d.Geometry.Version(); v != d.boundsVersion {
		d.sphere, d.box = d.Geometry.computeBounds()
		d.boundsVersion = v
	}
	return d.sphere, d.box
}

// WorldBounds returns the bounding volumes transformed by a world
// matrix.
func (d *Drawable) WorldBounds(world mgl32.Mat4) (Sphere, Box) {
	s, b := d.Bounds()
	return s.Transformed(world), b.Transformed(world)
}
