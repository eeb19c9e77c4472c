package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/orbit"
	"github.com/gogpu/orbit/backend"
)

// BeginFrame opens the frame's command encoder. The render pass itself
// opens at the first draw so the recorded clear becomes its load op.
func (d *Device) BeginFrame(target backend.TargetHandle) error {
	if err := d.usable(); err != nil {
		return err
	}
	if d.encoder != nil {
		return fmt.Errorf("wgpu: frame already open")
	}
	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "orbit_frame"})
	if err != nil {
		return fmt.Errorf("wgpu: frame encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	d.encoder = encoder
	d.frameTgt = target
	d.doClear = false
	d.cur = drawState{}
	return nil
}

func (d *Device) UseProgram(h backend.ProgramHandle) { d.cur.program = h }

func (d *Device) BindTexture(unit int, h backend.TextureHandle) {
	if unit >= 0 && unit < len(d.cur.textures) {
		d.cur.textures[unit] = h
	}
}

func (d *Device) BindVertexBuffer(slot int, h backend.BufferHandle) {
	if slot >= 0 && slot < len(d.cur.vertex) {
		d.cur.vertex[slot] = h
	}
}

func (d *Device) BindIndexBuffer(h backend.BufferHandle) { d.cur.index = h }

func (d *Device) BindUniformBuffer(slot int, h backend.BufferHandle) {
	if slot >= 0 && slot < len(d.cur.uniforms) {
		d.cur.uniforms[slot] = h
	}
}

func (d *Device) SetBlend(mode backend.BlendMode) { d.cur.blend = mode }

func (d *Device) SetDepth(s backend.DepthState) { d.cur.depth = s }

func (d *Device) SetCull(face backend.CullFace) { d.cur.cull = face }

func (d *Device) SetViewport(vp backend.Viewport) { d.viewport = vp }

// SetScissor is recorded but only honored inside an open pass.
func (d *Device) SetScissor(vp backend.Viewport, enabled bool) {
	if d.pass == nil {
		return
	}
	if !enabled {
		vp = d.viewport
	}
	d.pass.SetScissorRect(uint32(vp.X), uint32(vp.Y), uint32(vp.W), uint32(vp.H))
}

// Clear records the clear for the next pass begin. A clear after the
// pass has opened cannot become a load op anymore and is dropped.
func (d *Device) Clear(color [4]float32, clearColor, clearDepth bool) {
	if d.pass != nil {
		orbit.Logger().Warn("wgpu: mid-pass clear ignored")
		return
	}
	d.doClear = clearColor || clearDepth
	d.clearColor = gputypes.Color{
		R: float64(color[0]), G: float64(color[1]),
		B: float64(color[2]), A: float64(color[3]),
	}
}

func (d *Device) ensurePass() error {
	if d.pass != nil {
		return nil
	}
	if d.encoder == nil {
		return fmt.Errorf("wgpu: draw outside frame")
	}
	tgt, err := d.resolveTarget(d.frameTgt)
	if err != nil {
		return err
	}
	loadOp := gputypes.LoadOpLoad
	if d.doClear {
		loadOp = gputypes.LoadOpClear
	}
	d.pass = d.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "orbit_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       tgt.colorView,
			LoadOp:     loadOp,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: d.clearColor,
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            tgt.depthView,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: 1.0,
			StencilLoadOp:   gputypes.LoadOpClear,
			StencilStoreOp:  gputypes.StoreOpDiscard,
		},
	})
	d.doClear = false
	return nil
}

// prepareDraw resolves the current state into a pipeline and bind
// groups. Bind groups are rebuilt per draw; wgpu deduplicates them
// internally.
func (d *Device) prepareDraw() (*compiledProgram, func(), error) {
	prog, ok := d.programs[d.cur.program]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no program bound", backend.ErrInvalidHandle)
	}
	if err := d.ensurePass(); err != nil {
		return nil, nil, err
	}
	tgt, err := d.resolveTarget(d.frameTgt)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := d.pipelines.get(pipelineKey{
		program: d.cur.program,
		blend:   d.cur.blend,
		depth:   d.cur.depth,
		cull:    d.cur.cull,
		format:  tgt.desc.Format,
		hasD:    true,
	}, prog)
	if err != nil {
		return nil, nil, err
	}
	d.pass.SetPipeline(pipeline)

	globals, ok := d.buffers[d.cur.uniforms[0]]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no globals buffer bound", backend.ErrInvalidHandle)
	}
	globalsBG, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "orbit_globals_bg",
		Layout: prog.globalsLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: globals.hal.NativeHandle(), Offset: 0, Size: uint64(globals.size),
			}},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: globals bind group: %w", err)
	}

	shading, ok := d.buffers[d.cur.uniforms[1]]
	if !ok {
		d.dev.DestroyBindGroup(globalsBG)
		return nil, nil, fmt.Errorf("%w: no shading buffer bound", backend.ErrInvalidHandle)
	}
	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{
			Buffer: shading.hal.NativeHandle(), Offset: 0, Size: uint64(shading.size),
		}},
	}
	for i := 0; i < prog.textureCount; i++ {
		tex, ok := d.textures[d.cur.textures[i]]
		if !ok {
			d.dev.DestroyBindGroup(globalsBG)
			return nil, nil, fmt.Errorf("%w: texture unit %d unbound", backend.ErrInvalidHandle, i)
		}
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding: uint32(1 + i*2),
				Resource: gputypes.TextureViewBinding{
					TextureView: tex.view.NativeHandle(),
				},
			},
			gputypes.BindGroupEntry{
				Binding: uint32(2 + i*2),
				Resource: gputypes.SamplerBinding{
					Sampler: d.sampler.NativeHandle(),
				},
			})
	}
	shadingBG, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "orbit_shading_bg",
		Layout:  prog.shadingLayout,
		Entries: entries,
	})
	if err != nil {
		d.dev.DestroyBindGroup(globalsBG)
		return nil, nil, fmt.Errorf("wgpu: shading bind group: %w", err)
	}

	d.pass.SetBindGroup(0, globalsBG, nil)
	d.pass.SetBindGroup(1, shadingBG, nil)
	for slot := 0; slot < prog.vertexSlots && slot < len(d.cur.vertex); slot++ {
		if b, ok := d.buffers[d.cur.vertex[slot]]; ok {
			d.pass.SetVertexBuffer(uint32(slot), b.hal, 0)
		}
	}
	cleanup := func() {
		d.dev.DestroyBindGroup(globalsBG)
		d.dev.DestroyBindGroup(shadingBG)
	}
	return prog, cleanup, nil
}

func (d *Device) Draw(count, firstVertex int) {
	_, cleanup, err := d.prepareDraw()
	if err != nil {
		orbit.Logger().Warn("wgpu: draw dropped", "err", err)
		return
	}
	defer cleanup()
	d.pass.Draw(uint32(count), 1, uint32(firstVertex), 0)
}

func (d *Device) DrawIndexed(count, firstIndex int) {
	_, cleanup, err := d.prepareDraw()
	if err != nil {
		orbit.Logger().Warn("wgpu: indexed draw dropped", "err", err)
		return
	}
	defer cleanup()
	idx, ok := d.buffers[d.cur.index]
	if !ok {
		orbit.Logger().Warn("wgpu: indexed draw without index buffer")
		return
	}
	d.pass.SetIndexBuffer(idx.hal, gputypes.IndexFormatUint32, 0)
	d.pass.DrawIndexed(uint32(count), 1, uint32(firstIndex), 0, 0)
}

// EndFrame closes the pass, submits the frame, and blocks until the
// GPU signals the fence.
func (d *Device) EndFrame() error {
	if d.encoder == nil {
		return fmt.Errorf("wgpu: no frame open")
	}
	if d.pass == nil {
		// Pass never opened (frame had no draws); open it so the
		// clear still lands.
		if err := d.ensurePass(); err != nil {
			return err
		}
	}
	d.pass.End()
	d.pass = nil
	cmdBuf, err := d.encoder.EndEncoding()
	d.encoder = nil
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)
	return d.submitAndWait([]hal.CommandBuffer{cmdBuf})
}

// Present is a no-op for the headless surface; a host embedding the
// device presents through its own swapchain.
func (d *Device) Present() {}
