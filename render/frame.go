package render

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/orbit"
	"github.com/gogpu/orbit/backend"
	"github.com/gogpu/orbit/scene"
)

const (
	// u_viewProjection + u_model + u_normalMatrix + u_cameraPos.
	globalsSize = 64*3 + 16
	// Material block plus the light arrays.
	shadingBlockSize = 48
	maxLightBytes    = 2048
	shadingSize      = shadingBlockSize + maxLightBytes
)

// Render draws one frame of the scene through the camera.
//
// The frame runs a fixed pipeline: update world matrices, build and
// sort the culled draw lists, then issue the opaque, transmissive, and
// transparent passes in that order. Transmissive surfaces sample a
// capture of the frame taken after the opaque pass.
//
// During a device loss Render does nothing and returns ErrDeviceLost;
// re-entering Render from inside a frame returns ErrFrameInProgress.
func (c *Context) Render(s *scene.Scene, cam *Camera) error {
	if c.rendering {
		return ErrFrameInProgress
	}
	if c.lost {
		return backend.ErrDeviceLost
	}
	c.rendering = true
	defer func() { c.rendering = false }()

	c.frame++
	s.UpdateWorldMatrices(false)
	c.pool.BeginFrame()

	buildStats := c.lists.Build(s, cam, c.toneMapping, c.colorSpace)
	lights := packLights(&c.lists)
	if len(lights) > maxLightBytes {
		orbit.Logger().Warn("render: light data truncated",
			"lights", len(c.lists.Lights), "bytes", len(lights))
		lights = lights[:maxLightBytes]
	}

	if err := c.dev.BeginFrame(c.target); err != nil {
		return fmt.Errorf("render: begin frame: %w", err)
	}
	c.tracker.SetViewport(c.viewport)
	c.tracker.SetScissor(c.scissor, c.scissorOn)
	c.dev.Clear(s.Background, true, true)

	vp := cam.ViewProjection()
	camPos := cam.WorldPosition()

	if err := c.renderQueue(&c.lists.Opaque, vp, camPos, lights); err != nil {
		return err
	}
	if c.lists.Transmissive.Len() > 0 {
		if err := c.ensureCapture(); err != nil {
			return fmt.Errorf("render: capture texture: %w", err)
		}
		if err := c.dev.CopyTargetToTexture(c.target, c.captureTexture); err != nil {
			return fmt.Errorf("render: scene capture: %w", err)
		}
		if err := c.renderQueue(&c.lists.Transmissive, vp, camPos, lights); err != nil {
			return err
		}
	}
	if err := c.renderQueue(&c.lists.Transparent, vp, camPos, lights); err != nil {
		return err
	}

	if err := c.dev.EndFrame(); err != nil {
		return fmt.Errorf("render: end frame: %w", err)
	}
	c.dev.Present()
	c.sweepPrograms()

	c.stats.Frames++
	c.stats.Items += uint64(buildStats.Items)
	c.stats.Culled += uint64(buildStats.Culled)
	c.stats.Lights = len(c.lists.Lights)
	c.stats.StateElided = c.tracker.Elided()
	return nil
}

func (c *Context) renderQueue(q *Queue, vp mgl32.Mat4, camPos mgl32.Vec3, lights []byte) error {
	items := q.Items()
	for i := range items {
		it := &items[i]
		prog, err := c.acquireProgram(it.Key)
		if err != nil {
			// The variant is disabled until the material changes.
			c.stats.Disabled++
			continue
		}
		if err := c.drawItem(it, prog.Handle, vp, camPos, lights); err != nil {
			if errors.Is(err, backend.ErrDeviceLost) {
				return err
			}
			orbit.Logger().Warn("render: draw skipped",
				"node", uint32(it.Node), "err", err)
		}
	}
	return nil
}

func (c *Context) drawItem(it *Item, prog backend.ProgramHandle,
	vp mgl32.Mat4, camPos mgl32.Vec3, lights []byte) error {
	g := it.Drawable.Geometry
	if _, ok := g.Attribute(scene.AttribPosition); !ok {
		return fmt.Errorf("geometry %d has no position attribute", g.ID())
	}

	c.tracker.UseProgram(prog)
	c.applyMaterialState(it.Material)

	// Vertex layout is fixed: position 0, normal 1, uv 2, color 3.
	slot := 0
	for _, name := range []string{scene.AttribPosition, scene.AttribNormal, scene.AttribUV} {
		if _, ok := g.Attribute(name); !ok {
			slot++
			continue
		}
		h, err := c.pool.AcquireAttribute(g, name)
		if err != nil {
			return err
		}
		c.tracker.BindVertexBuffer(slot, h)
		slot++
	}
	if _, ok := g.Attribute(scene.AttribColor); ok && it.Material.VertexColors {
		h, err := c.pool.AcquireAttribute(g, scene.AttribColor)
		if err != nil {
			return err
		}
		c.tracker.BindVertexBuffer(3, h)
	}

	if err := c.bindTextures(it.Material); err != nil {
		return err
	}
	if err := c.writeUniforms(it, vp, camPos, lights); err != nil {
		return err
	}

	if idx := g.Index(); len(idx) > 0 {
		h, err := c.pool.AcquireIndex(g)
		if err != nil {
			return err
		}
		c.tracker.BindIndexBuffer(h)
		c.dev.DrawIndexed(it.Group.Count, it.Group.Start)
	} else {
		c.dev.Draw(it.Group.Count, it.Group.Start)
	}
	c.stats.Draws++
	return nil
}

func (c *Context) applyMaterialState(m *scene.Material) {
	blend := backend.BlendNone
	if m.Transparent || m.Transmission > 0 {
		blend = backend.BlendAlpha
	}
	c.tracker.SetBlend(blend)
	c.tracker.SetDepth(backend.DepthState{
		Test:    m.DepthTest,
		Write:   m.DepthWrite,
		Compare: gputypes.CompareFunctionLessEqual,
	})
	cullFace := backend.CullBack
	if m.DoubleSided {
		cullFace = backend.CullNone
	}
	c.tracker.SetCull(cullFace)
}

// Texture units are fixed per slot: color 0, normal 1, roughness 2,
// metalness 3, environment 4, scene capture 5.
func (c *Context) bindTextures(m *scene.Material) error {
	slots := []scene.TextureSlot{
		scene.SlotColor, scene.SlotNormal, scene.SlotRoughness,
		scene.SlotMetalness, scene.SlotEnvironment,
	}
	for unit, slot := range slots {
		t := m.TextureAt(slot)
		if t == nil {
			continue
		}
		h, err := c.pool.AcquireTexture(t)
		if err != nil {
			return err
		}
		c.tracker.BindTexture(unit, h)
	}
	if m.Transmission > 0 && c.captureTexture != 0 {
		c.tracker.BindTexture(5, c.captureTexture)
	}
	return nil
}

func (c *Context) writeUniforms(it *Item, vp mgl32.Mat4, camPos mgl32.Vec3, lights []byte) error {
	var g byteWriter
	g.buf = make([]byte, 0, globalsSize)
	g.mat4([16]float32(vp))
	g.mat4([16]float32(it.World))
	g.mat4([16]float32(normalMatrix(it.World)))
	g.vec4(camPos.X(), camPos.Y(), camPos.Z(), 1)
	if err := c.dev.WriteBuffer(c.globalsBuf, 0, g.buf); err != nil {
		return err
	}
	c.tracker.BindUniformBuffer(0, c.globalsBuf)

	m := it.Material
	var s byteWriter
	s.buf = make([]byte, 0, shadingBlockSize+len(lights))
	s.vec4(m.Color[0], m.Color[1], m.Color[2], m.Color[3])
	s.vec4(m.Emissive[0], m.Emissive[1], m.Emissive[2], m.Opacity)
	s.vec4(m.Metalness, m.Roughness, m.Transmission, 0)
	s.buf = append(s.buf, lights...)
	if err := c.dev.WriteBuffer(c.shadingBuf, 0, s.buf); err != nil {
		return err
	}
	c.tracker.BindUniformBuffer(1, c.shadingBuf)
	return nil
}

// normalMatrix is the inverse transpose of the model matrix. A
// singular model matrix yields the zero matrix, which just flattens
// the normals instead of producing NaNs.
func normalMatrix(world mgl32.Mat4) mgl32.Mat4 {
	return world.Inv().Transpose()
}
