package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/orbit"
)

// SetPosition sets the node's local translation and marks its cached
// matrices stale. Descendants are not touched; they notice on demand.
func (s *Scene) SetPosition(id NodeID, p mgl32.Vec3) {
	if !s.valid(id) {
		orbit.Logger().Warn("scene: SetPosition of invalid node ignored", "node", id)
		return
	}
	n := &s.nodes[id]
	n.position = p
	n.localDirty = true
	n.dirty = true
}

// SetRotation sets the node's local rotation.
func (s *Scene) SetRotation(id NodeID, q mgl32.Quat) {
	if !s.valid(id) {
		orbit.Logger().Warn("scene: SetRotation of invalid node ignored", "node", id)
		return
	}
	n := &s.nodes[id]
	n.rotation = q
	n.localDirty = true
	n.dirty = true
}

// SetScale sets the node's local scale.
func (s *Scene) SetScale(id NodeID, v mgl32.Vec3) {
	if !s.valid(id) {
		orbit.Logger().Warn("scene: SetScale of invalid node ignored", "node", id)
		return
	}
	n := &s.nodes[id]
	n.scale = v
	n.localDirty = true
	n.dirty = true
}

// Position returns the node's local translation.
func (s *Scene) Position(id NodeID) mgl32.Vec3 {
	if !s.valid(id) {
		return mgl32.Vec3{}
	}
	return s.nodes[id].position
}

// Rotation returns the node's local rotation.
func (s *Scene) Rotation(id NodeID) mgl32.Quat {
	if !s.valid(id) {
		return mgl32.QuatIdent()
	}
	return s.nodes[id].rotation
}

// Scale returns the node's local scale.
func (s *Scene) Scale(id NodeID) mgl32.Vec3 {
	if !s.valid(id) {
		return mgl32.Vec3{1, 1, 1}
	}
	return s.nodes[id].scale
}

// LocalMatrix returns the node's local matrix, recomposing
// translate * rotate * scale if a component changed.
func (s *Scene) LocalMatrix(id NodeID) mgl32.Mat4 {
	if !s.valid(id) {
		return mgl32.Ident4()
	}
	n := &s.nodes[id]
	if n.localDirty {
		t := mgl32.Translate3D(n.position.X(), n.position.Y(), n.position.Z())
		r := n.rotation.Mat4()
		sc := mgl32.Scale3D(n.scale.X(), n.scale.Y(), n.scale.Z())
		n.local = t.Mul4(r).Mul4(sc)
		n.localDirty = false
	}
	return n.local
}

// WorldMatrix returns the node's world matrix, recomputing the chain
// root-to-node as needed. The invariant world = parent.world * local
// holds on return regardless of which nodes were mutated in between.
func (s *Scene) WorldMatrix(id NodeID) mgl32.Mat4 {
	if !s.valid(id) {
		return mgl32.Ident4()
	}
	s.updateWorld(id)
	return s.nodes[id].world
}

// updateWorld brings one node's cached world matrix up to date,
// recursing to the parent first so recomputation is always
// parent-before-child.
func (s *Scene) updateWorld(id NodeID) {
	n := &s.nodes[id]
	if n.parent == InvalidNode {
		if n.dirty {
			n.world = s.LocalMatrix(id)
			n.dirty = false
			n.worldVersion++
		}
		return
	}
	s.updateWorld(n.parent)
	p := &s.nodes[n.parent]
	if n.dirty || n.parentWorldSeen != p.worldVersion {
		n.world = p.world.Mul4(s.LocalMatrix(id))
		n.dirty = false
		n.parentWorldSeen = p.worldVersion
		n.worldVersion++
	}
}

// UpdateWorldMatrices recomputes cached world matrices for the whole
// hierarchy in strict parent-before-child order. With force set, every
// matrix is recomputed even if clean.
func (s *Scene) UpdateWorldMatrices(force bool) {
	if force {
		for i := range s.nodes {
			if s.nodes[i].alive {
				s.nodes[i].dirty = true
			}
		}
	}
	s.Traverse(func(id NodeID) bool {
		s.updateWorld(id)
		return true
	})
}

// WorldPosition returns the node's position in world space.
func (s *Scene) WorldPosition(id NodeID) mgl32.Vec3 {
	w := s.WorldMatrix(id)
	return mgl32.Vec3{w[12], w[13], w[14]}
}
