package render

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/orbit/cull"
	"github.com/gogpu/orbit/render/program"
	"github.com/gogpu/orbit/scene"
)

// LightInstance is a scene light resolved into world space.
type LightInstance struct {
	Light     *scene.Light
	Position  mgl32.Vec3
	Direction mgl32.Vec3
}

// Lists holds the per-frame draw queues. Opaque and transmissive
// surfaces draw from separate queues because transmissive ones sample
// a capture of the opaque pass.
type Lists struct {
	Opaque       Queue
	Transmissive Queue
	Transparent  Queue

	Lights      []LightInstance
	DirCount    int
	PointCount  int
	SpotCount   int
	ShadowCount int
}

// BuildStats summarizes one list build.
type BuildStats struct {
	Visited int
	Culled  int
	Items   int
}

// Reset empties all queues and the light list, keeping capacity.
func (l *Lists) Reset() {
	l.Opaque.Reset()
	l.Transmissive.Reset()
	l.Transparent.Reset()
	l.Lights = l.Lights[:0]
	l.DirCount, l.PointCount, l.SpotCount, l.ShadowCount = 0, 0, 0, 0
}

// Build walks the scene and fills the queues with the camera-visible
// drawables. Invisible nodes hide their whole subtree; layer masks
// apply per node without inheriting. One item is emitted per geometry
// group, routed by its material: transmission first, then transparent,
// then opaque.
func (l *Lists) Build(s *scene.Scene, cam *Camera, tm program.ToneMapping, cs program.ColorSpace) BuildStats {
	l.Reset()

	view := cam.View()
	frustum := cull.FromMatrix(cam.Projection().Mul4(view))

	// Lights first: their counts are part of every program key.
	s.Traverse(func(id scene.NodeID) bool {
		if !s.Visible(id) {
			return false
		}
		for _, lt := range s.Lights(id) {
			world := s.WorldMatrix(id)
			dir := world.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3()
			l.Lights = append(l.Lights, LightInstance{
				Light:     lt,
				Position:  world.Col(3).Vec3(),
				Direction: dir.Normalize(),
			})
			switch lt.Kind {
			case scene.LightDirectional:
				l.DirCount++
			case scene.LightPoint:
				l.PointCount++
			case scene.LightSpot:
				l.SpotCount++
			}
			if lt.CastShadow {
				l.ShadowCount++
			}
		}
		return true
	})

	var stats BuildStats
	camLayers := cam.Layers()
	s.Traverse(func(id scene.NodeID) bool {
		if !s.Visible(id) {
			return false
		}
		drawables := s.Drawables(id)
		if len(drawables) == 0 {
			return true
		}
		if !s.NodeLayers(id).Test(camLayers) {
			return true
		}
		world := s.WorldMatrix(id)
		order := s.RenderOrder(id)
		for _, d := range drawables {
			stats.Visited++
			sphere, box := d.WorldBounds(world)
			if !frustum.ContainsDrawable(sphere, box) {
				stats.Culled++
				continue
			}
			vc := view.Mul4x1(sphere.Center.Vec4(1))
			depth := -vc.Z()
			for _, g := range d.Geometry.Groups() {
				m := d.MaterialFor(g)
				if m == nil {
					continue
				}
				it := Item{
					Drawable:    d,
					Group:       g,
					Node:        id,
					World:       world,
					Material:    m,
					Key:         program.KeyFor(m, l.DirCount, l.PointCount, l.SpotCount, l.ShadowCount, tm, cs),
					RenderOrder: order,
					Depth:       depth,
				}
				stats.Items++
				switch {
				case m.Transmissive():
					l.Transmissive.Push(it)
				case m.Transparent:
					l.Transparent.Push(it)
				default:
					l.Opaque.Push(it)
				}
			}
		}
		return true
	})

	l.Opaque.SortOpaque()
	l.Transmissive.SortOpaque()
	l.Transparent.SortTransparent()
	return stats
}
