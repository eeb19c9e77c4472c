// Package scene provides the retained scene description: an arena-indexed
// transform hierarchy plus the geometry, material, light, and drawable
// records attached to it.
//
// Nodes live in a slab owned by the Scene and are addressed by NodeID.
// Parent/child links are indices, so re-parenting is O(1) and a freed node
// can never be reached through a dangling pointer. World matrices are
// cached per node and recomputed lazily: mutating a transform only marks
// that node dirty; staleness of descendants is discovered when a world
// matrix is actually requested.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/orbit"
)

// NodeID identifies a node in a Scene's arena.
// IDs are only meaningful for the Scene that issued them and become
// invalid once the node is removed.
type NodeID uint32

// InvalidNode is the reserved "no node" value.
const InvalidNode NodeID = 0xFFFFFFFF

// Layers is a bit mask controlling which cameras see a node.
// A node is visible to a camera when the masks share at least one bit.
type Layers uint32

// LayerDefault is the layer every new node and camera starts on.
const LayerDefault Layers = 1

// Test reports whether the two masks share at least one layer.
func (l Layers) Test(other Layers) bool { return l&other != 0 }

// node is a single arena slot. The zero value is a dead slot.
type node struct {
	alive bool
	name  string

	parent   NodeID
	children []NodeID

	position mgl32.Vec3
	rotation mgl32.Quat
	scale    mgl32.Vec3

	local mgl32.Mat4
	world mgl32.Mat4

	// localDirty marks the cached local matrix stale; dirty marks the
	// cached world matrix stale. Descendants are not marked eagerly:
	// they compare parentWorldSeen against the parent's worldVersion
	// when their own world matrix is requested.
	localDirty      bool
	dirty           bool
	worldVersion    uint64
	parentWorldSeen uint64

	visible     bool
	layers      Layers
	renderOrder int

	drawables []*Drawable
	lights    []*Light
}

// Scene owns the node arena and everything attached to it.
//
// Scene is not safe for concurrent use; the rendering model is
// single-threaded and frame-driven.
type Scene struct {
	nodes  []node
	free   []NodeID
	byName map[string]NodeID

	// Background is the clear color used when rendering this scene.
	Background [4]float32
}

// NewScene creates a scene with a single root node (visible, identity
// transform, on the default layer).
func NewScene() *Scene {
	s := &Scene{
		byName:     make(map[string]NodeID),
		Background: [4]float32{0, 0, 0, 1},
	}
	s.nodes = append(s.nodes, newNode("", InvalidNode))
	return s
}

func newNode(name string, parent NodeID) node {
	return node{
		alive:    true,
		name:     name,
		parent:   parent,
		rotation: mgl32.QuatIdent(),
		scale:    mgl32.Vec3{1, 1, 1},
		local:    mgl32.Ident4(),
		world:    mgl32.Ident4(),
		visible:  true,
		layers:   LayerDefault,
	}
}

// Root returns the scene's root node.
func (s *Scene) Root() NodeID { return 0 }

// NodeCount returns the number of live nodes, including the root.
func (s *Scene) NodeCount() int {
	n := 0
	for i := range s.nodes {
		if s.nodes[i].alive {
			n++
		}
	}
	return n
}

// valid reports whether id addresses a live node.
func (s *Scene) valid(id NodeID) bool {
	return int(id) < len(s.nodes) && s.nodes[id].alive
}

// Add creates a new node under parent and returns its id.
// An invalid parent is logged and the node is placed under the root.
func (s *Scene) Add(parent NodeID, name string) NodeID {
	if !s.valid(parent) {
		orbit.Logger().Warn("scene: Add with invalid parent, using root", "parent", parent)
		parent = s.Root()
	}
	var id NodeID
	if n := len(s.free); n > 0 {
		id = s.free[n-1]
		s.free = s.free[:n-1]
		s.nodes[id] = newNode(name, parent)
	} else {
		id = NodeID(len(s.nodes))
		s.nodes = append(s.nodes, newNode(name, parent))
	}
	s.nodes[parent].children = append(s.nodes[parent].children, id)
	if name != "" {
		if _, exists := s.byName[name]; !exists {
			s.byName[name] = id
		}
	}
	return id
}

// Remove deletes a node and its entire subtree. The root cannot be
// removed. IDs of removed nodes become invalid immediately.
func (s *Scene) Remove(id NodeID) {
	if !s.valid(id) {
		orbit.Logger().Warn("scene: Remove of invalid node ignored", "node", id)
		return
	}
	if id == s.Root() {
		orbit.Logger().Warn("scene: Remove of root ignored")
		return
	}
	s.detach(id)
	s.freeSubtree(id)
}

func (s *Scene) detach(id NodeID) {
	p := s.nodes[id].parent
	if p == InvalidNode {
		return
	}
	siblings := s.nodes[p].children
	for i, c := range siblings {
		if c == id {
			s.nodes[p].children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	s.nodes[id].parent = InvalidNode
}

func (s *Scene) freeSubtree(id NodeID) {
	for _, c := range s.nodes[id].children {
		s.freeSubtree(c)
	}
	n := &s.nodes[id]
	if n.name != "" && s.byName[n.name] == id {
		delete(s.byName, n.name)
	}
	for _, d := range n.drawables {
		d.node = InvalidNode
	}
	*n = node{}
	s.free = append(s.free, id)
}

// SetParent moves child under parent, keeping the child's local
// transform. A move that would make a node its own ancestor is rejected:
// logged and ignored, so traversal always terminates. Returns whether
// the re-parent was applied.
func (s *Scene) SetParent(child, parent NodeID) bool {
	if !s.valid(child) || !s.valid(parent) {
		orbit.Logger().Warn("scene: SetParent with invalid node ignored",
			"child", child, "parent", parent)
		return false
	}
	if child == s.Root() {
		orbit.Logger().Warn("scene: SetParent of root ignored")
		return false
	}
	// Walk up from the new parent; finding the child means the move
	// would create a cycle.
	for a := parent; a != InvalidNode; a = s.nodes[a].parent {
		if a == child {
			orbit.Logger().Warn("scene: SetParent rejected, node would become its own ancestor",
				"child", child, "parent", parent)
			return false
		}
	}
	s.detach(child)
	s.nodes[child].parent = parent
	s.nodes[parent].children = append(s.nodes[parent].children, child)
	s.nodes[child].dirty = true
	return true
}

// Detach removes child from its parent without freeing it. The node is
// no longer reached by traversal until re-attached with SetParent.
func (s *Scene) Detach(id NodeID) {
	if !s.valid(id) || id == s.Root() {
		orbit.Logger().Warn("scene: Detach ignored", "node", id)
		return
	}
	s.detach(id)
}

// Children returns the child ids of a node. The returned slice is owned
// by the scene and must not be mutated.
func (s *Scene) Children(id NodeID) []NodeID {
	if !s.valid(id) {
		return nil
	}
	return s.nodes[id].children
}

// Parent returns the parent id, or InvalidNode for the root and for
// detached nodes.
func (s *Scene) Parent(id NodeID) NodeID {
	if !s.valid(id) {
		return InvalidNode
	}
	return s.nodes[id].parent
}

// Name returns the node's name.
func (s *Scene) Name(id NodeID) string {
	if !s.valid(id) {
		return ""
	}
	return s.nodes[id].name
}

// NodeByName returns the first node added with the given name.
func (s *Scene) NodeByName(name string) (NodeID, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// NodeByID returns the id back when it addresses a live node. Ids of
// removed nodes report false until their slot is reused.
func (s *Scene) NodeByID(id NodeID) (NodeID, bool) {
	if !s.valid(id) {
		return InvalidNode, false
	}
	return id, true
}

// Traverse walks the live hierarchy depth-first, parents before
// children. Returning false from the visitor skips that node's subtree.
func (s *Scene) Traverse(visitor func(NodeID) bool) {
	s.traverse(s.Root(), visitor)
}

func (s *Scene) traverse(id NodeID, visitor func(NodeID) bool) {
	if !visitor(id) {
		return
	}
	for _, c := range s.nodes[id].children {
		s.traverse(c, visitor)
	}
}

// SetVisible sets node visibility. Invisible nodes and their subtrees
// produce no render items.
func (s *Scene) SetVisible(id NodeID, v bool) {
	if !s.valid(id) {
		orbit.Logger().Warn("scene: SetVisible of invalid node ignored", "node", id)
		return
	}
	s.nodes[id].visible = v
}

// Visible reports node visibility (not inherited).
func (s *Scene) Visible(id NodeID) bool {
	return s.valid(id) && s.nodes[id].visible
}

// SetLayers replaces the node's layer mask.
func (s *Scene) SetLayers(id NodeID, l Layers) {
	if !s.valid(id) {
		orbit.Logger().Warn("scene: SetLayers of invalid node ignored", "node", id)
		return
	}
	s.nodes[id].layers = l
}

// NodeLayers returns the node's layer mask.
func (s *Scene) NodeLayers(id NodeID) Layers {
	if !s.valid(id) {
		return 0
	}
	return s.nodes[id].layers
}

// SetRenderOrder sets the node's render-order hint. Lower values render
// first within a queue.
func (s *Scene) SetRenderOrder(id NodeID, order int) {
	if !s.valid(id) {
		orbit.Logger().Warn("scene: SetRenderOrder of invalid node ignored", "node", id)
		return
	}
	s.nodes[id].renderOrder = order
}

// RenderOrder returns the node's render-order hint.
func (s *Scene) RenderOrder(id NodeID) int {
	if !s.valid(id) {
		return 0
	}
	return s.nodes[id].renderOrder
}

// AttachDrawable attaches a drawable to a node. A drawable belongs to at
// most one node; attaching it elsewhere moves it.
func (s *Scene) AttachDrawable(id NodeID, d *Drawable) {
	if !s.valid(id) || d == nil {
		orbit.Logger().Warn("scene: AttachDrawable ignored", "node", id)
		return
	}
	if d.node != InvalidNode && s.valid(d.node) {
		s.detachDrawable(d.node, d)
	}
	d.node = id
	s.nodes[id].drawables = append(s.nodes[id].drawables, d)
}

func (s *Scene) detachDrawable(id NodeID, d *Drawable) {
	ds := s.nodes[id].drawables
	for i, x := range ds {
		if x == d {
			s.nodes[id].drawables = append(ds[:i], ds[i+1:]...)
			return
		}
	}
}

// Drawables returns the drawables attached to a node.
func (s *Scene) Drawables(id NodeID) []*Drawable {
	if !s.valid(id) {
		return nil
	}
	return s.nodes[id].drawables
}

// AttachLight attaches a light to a node; the light inherits the node's
// world transform.
func (s *Scene) AttachLight(id NodeID, l *Light) {
	if !s.valid(id) || l == nil {
		orbit.Logger().Warn("scene: AttachLight ignored", "node", id)
		return
	}
	s.nodes[id].lights = append(s.nodes[id].lights, l)
}

// Lights returns the lights attached to a node.
func (s *Scene) Lights(id NodeID) []*Light {
	if !s.valid(id) {
		return nil
	}
	return s.nodes[id].lights
}
