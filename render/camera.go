package render

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/orbit/scene"
)

// Camera pairs a scene node (its pose) with a projection. The view
// matrix is always derived from the node's world matrix, so parenting
// a camera to a moving node just works.
type Camera struct {
	scn    *scene.Scene
	node   scene.NodeID
	proj   mgl32.Mat4
	layers scene.Layers

	near float32
	far  float32
}

// NewCamera adds a camera node under parent and returns the camera.
// The projection starts as identity; call SetPerspective or
// SetOrthographic before rendering.
func NewCamera(s *scene.Scene, parent scene.NodeID) *Camera {
	return &Camera{
		scn:    s,
		node:   s.Add(parent, "camera"),
		proj:   mgl32.Ident4(),
		layers: scene.LayerDefault,
		near:   0.1,
		far:    1000,
	}
}

// Node returns the camera's scene node.
func (c *Camera) Node() scene.NodeID { return c.node }

// SetPerspective sets a perspective projection. fovy is in degrees.
func (c *Camera) SetPerspective(fovy, aspect, near, far float32) {
	c.proj = mgl32.Perspective(mgl32.DegToRad(fovy), aspect, near, far)
	c.near, c.far = near, far
}

// SetOrthographic sets an orthographic projection.
func (c *Camera) SetOrthographic(left, right, bottom, top, near, far float32) {
	c.proj = mgl32.Ortho(left, right, bottom, top, near, far)
	c.near, c.far = near, far
}

// Projection returns the projection matrix.
func (c *Camera) Projection() mgl32.Mat4 { return c.proj }

// View returns the view matrix, the inverse of the node's world
// matrix.
func (c *Camera) View() mgl32.Mat4 {
	return c.scn.WorldMatrix(c.node).Inv()
}

// ViewProjection returns projection times view.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.proj.Mul4(c.View())
}

// WorldPosition returns the camera position in world space.
func (c *Camera) WorldPosition() mgl32.Vec3 {
	return c.scn.WorldPosition(c.node)
}

// Layers returns the camera's layer mask. Only drawables on
// intersecting layers are rendered.
func (c *Camera) Layers() scene.Layers { return c.layers }

// SetLayers replaces the camera's layer mask.
func (c *Camera) SetLayers(l scene.Layers) { c.layers = l }
