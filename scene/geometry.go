package scene

import (
	"sync/atomic"

	"github.com/gogpu/orbit"
)

// Well-known attribute slot names. Any name is accepted; these are the
// ones the built-in shader variants look for.
const (
	AttribPosition = "position"
	AttribNormal   = "normal"
	AttribUV       = "uv"
	AttribColor    = "color"
)

// Usage hints how often a buffer's contents change, steering the
// resource pool's upload strategy.
type Usage uint8

const (
	// UsageStatic data is uploaded once and drawn many times.
	UsageStatic Usage = iota
	// UsageDynamic data is rewritten frequently.
	UsageDynamic
)

// Attribute is one named vertex buffer slot: a packed float stream with
// a fixed number of components per vertex.
type Attribute struct {
	// ItemSize is the number of components per vertex (1..4).
	ItemSize int
	// Data is the packed component stream.
	Data []float32
	// Usage hints the upload policy for this slot.
	Usage Usage
}

// Count returns the number of vertices in the attribute.
func (a Attribute) Count() int {
	if a.ItemSize <= 0 {
		return 0
	}
	return len(a.Data) / a.ItemSize
}

// Group draws a contiguous index range with one material. Geometries
// without explicit groups draw everything with material 0.
type Group struct {
	// Start is the first index (or vertex, if non-indexed).
	Start int
	// Count is the number of indices to draw.
	Count int
	// MaterialIndex selects which of the drawable's materials applies.
	MaterialIndex int
}

var geometryIDs atomic.Uint64

// Geometry is the CPU-side description of one mesh: named attribute
// slots, an optional index, and material groups. Every mutation bumps
// the content version; GPU-side copies compare against it to decide
// whether an upload is needed, and bounding volumes are recomputed when
// it moves.
type Geometry struct {
	id         uint64
	attributes map[string]Attribute
	index      []uint32
	groups     []Group
	version    uint64
}

// NewGeometry creates an empty geometry.
func NewGeometry() *Geometry {
	return &Geometry{
		id:         geometryIDs.Add(1),
		attributes: make(map[string]Attribute),
		version:    1,
	}
}

// ID returns the geometry's unique id.
func (g *Geometry) ID() uint64 { return g.id }

// Version returns the content version, bumped on every mutation.
func (g *Geometry) Version() uint64 { return g.version }

// SetAttribute stores a named vertex slot. An item size outside 1..4 is
// logged and ignored.
func (g *Geometry) SetAttribute(name string, attr Attribute) {
	if attr.ItemSize < 1 || attr.ItemSize > 4 {
		orbit.Logger().Warn("scene: SetAttribute with invalid item size ignored",
			"name", name, "itemSize", attr.ItemSize)
		return
	}
	g.attributes[name] = attr
	g.version++
}

// Attribute returns a named vertex slot.
func (g *Geometry) Attribute(name string) (Attribute, bool) {
	a, ok := g.attributes[name]
	return a, ok
}

// AttributeNames returns the defined slot names in unspecified order.
func (g *Geometry) AttributeNames() []string {
	names := make([]string, 0, len(g.attributes))
	for n := range g.attributes {
		names = append(names, n)
	}
	return names
}

// SetIndex stores the index buffer.
func (g *Geometry) SetIndex(index []uint32) {
	g.index = index
	g.version++
}

// Index returns the index buffer, nil for non-indexed geometry.
func (g *Geometry) Index() []uint32 { return g.index }

// AddGroup appends a material group.
func (g *Geometry) AddGroup(start, count, materialIndex int) {
	g.groups = append(g.groups, Group{Start: start, Count: count, MaterialIndex: materialIndex})
	g.version++
}

// ClearGroups removes all material groups.
func (g *Geometry) ClearGroups() {
	g.groups = nil
	g.version++
}

// Groups returns the material groups. Geometry without explicit groups
// yields one implicit group spanning the whole draw range.
func (g *Geometry) Groups() []Group {
	if len(g.groups) > 0 {
		return g.groups
	}
	return []Group{{Start: 0, Count: g.DrawCount(), MaterialIndex: 0}}
}

// VertexCount returns the vertex count of the position slot.
func (g *Geometry) VertexCount() int {
	return g.attributes[AttribPosition].Count()
}

// DrawCount returns the number of indices (or vertices) one full draw
// of this geometry covers.
func (g *Geometry) DrawCount() int {
	if g.index != nil {
		return len(g.index)
	}
	return g.VertexCount()
}

// computeBounds derives the bounding volumes from the position slot.
func (g *Geometry) computeBounds() (Sphere, Box) {
	pos, ok := g.attributes[AttribPosition]
	if !ok || pos.ItemSize != 3 {
		return Sphere{}, EmptyBox()
	}
	return boundsFromPositions(pos.Data)
}
