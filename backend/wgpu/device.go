// Package wgpu implements the render device on gogpu's wgpu HAL.
//
// The device runs headless against its own instance by default, or on
// a shared device handed in by a host through the gpucontext provider
// protocol. Each frame is one command encoder; the render pass opens
// lazily at the first draw so the clear values recorded before it land
// as the pass load ops.
package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/orbit"
	"github.com/gogpu/orbit/backend"
)

func init() {
	backend.Register(backend.DeviceWGPU, func() backend.Device { return New() })
}

const submitTimeout = 5 * time.Second

type buffer struct {
	hal  hal.Buffer
	size int
}

type texture struct {
	hal  hal.Texture
	view hal.TextureView
	desc backend.TextureDescriptor
}

type target struct {
	color     hal.Texture
	colorView hal.TextureView
	depth     hal.Texture
	depthView hal.TextureView
	desc      backend.TargetDescriptor
}

// Device is the wgpu implementation of backend.Device.
type Device struct {
	instance hal.Instance
	dev      hal.Device
	queue    hal.Queue
	owned    bool
	ready    bool

	nextHandle uint64
	buffers    map[backend.BufferHandle]*buffer
	textures   map[backend.TextureHandle]*texture
	targets    map[backend.TargetHandle]*target
	programs   map[backend.ProgramHandle]*compiledProgram

	pipelines *pipelineCache
	sampler   hal.Sampler

	// Default headless surface, sized from the viewport.
	surface *target

	// Frame state.
	encoder    hal.CommandEncoder
	pass       hal.RenderPassEncoder
	frameTgt   backend.TargetHandle
	clearColor gputypes.Color
	doClear    bool
	viewport   backend.Viewport

	cur drawState
}

type drawState struct {
	program  backend.ProgramHandle
	blend    backend.BlendMode
	depth    backend.DepthState
	cull     backend.CullFace
	vertex   [4]backend.BufferHandle
	index    backend.BufferHandle
	uniforms [2]backend.BufferHandle
	textures [8]backend.TextureHandle
}

// Option configures the device before Init.
type Option func(*Device)

// WithProvider shares a host's device instead of opening one. The
// provider must additionally expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue; providers without the hal
// surface are ignored and the device opens its own GPU.
func WithProvider(provider gpucontext.DeviceProvider) Option {
	return func(d *Device) {
		type halProvider interface {
			HalDevice() any
			HalQueue() any
		}
		hp, ok := provider.(halProvider)
		if !ok {
			return
		}
		dev, ok := hp.HalDevice().(hal.Device)
		if !ok || dev == nil {
			return
		}
		queue, ok := hp.HalQueue().(hal.Queue)
		if !ok || queue == nil {
			return
		}
		d.dev = dev
		d.queue = queue
		d.owned = false
	}
}

// New creates a wgpu device. Init opens the GPU.
func New(opts ...Option) *Device {
	d := &Device{
		buffers:  make(map[backend.BufferHandle]*buffer),
		textures: make(map[backend.TextureHandle]*texture),
		targets:  make(map[backend.TargetHandle]*target),
		programs: make(map[backend.ProgramHandle]*compiledProgram),
		viewport: backend.Viewport{W: 800, H: 600},
		owned:    true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the device identifier.
func (d *Device) Name() string { return backend.DeviceWGPU }

// Init opens the GPU when no shared device was provided, then creates
// the shared sampler and pipeline cache.
func (d *Device) Init() error {
	if d.dev == nil {
		if err := d.openDevice(); err != nil {
			return err
		}
	}
	var err error
	d.sampler, err = d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        "orbit_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create sampler: %w", err)
	}
	d.pipelines = newPipelineCache(d.dev)
	d.ready = true
	orbit.Logger().Info("backend: wgpu device initialized", "owned", d.owned)
	return nil
}

func (d *Device) openDevice() error {
	halBackend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("%w: vulkan backend not registered", backend.ErrDeviceNotAvailable)
	}
	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("%w: create instance: %v", backend.ErrDeviceNotAvailable, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("%w: no adapters", backend.ErrDeviceNotAvailable)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("%w: open device: %v", backend.ErrDeviceNotAvailable, err)
	}
	d.instance = instance
	d.dev = openDev.Device
	d.queue = openDev.Queue
	d.owned = true
	orbit.Logger().Info("backend: wgpu adapter opened", "adapter", selected.Info.Name)
	return nil
}

// Close releases everything, including the device when it is owned.
func (d *Device) Close() {
	if !d.ready {
		return
	}
	d.ready = false
	if d.pipelines != nil {
		d.pipelines.destroy()
	}
	for h := range d.buffers {
		d.DestroyBuffer(h)
	}
	for h := range d.textures {
		d.DestroyTexture(h)
	}
	for h := range d.targets {
		d.DestroyTarget(h)
	}
	for h := range d.programs {
		d.DestroyProgram(h)
	}
	d.destroySurface()
	if d.owned {
		if d.dev != nil {
			d.dev.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.dev = nil
	d.queue = nil
}

func (d *Device) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) usable() error {
	if !d.ready {
		return backend.ErrNotInitialized
	}
	return nil
}

func bufferUsage(kind backend.BufferKind) gputypes.BufferUsage {
	switch kind {
	case backend.BufferIndex:
		return gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	case backend.BufferUniform:
		return gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	default:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	}
}

func (d *Device) CreateBuffer(desc backend.BufferDescriptor) (backend.BufferHandle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  uint64(desc.Size),
		Usage: bufferUsage(desc.Kind),
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	h := backend.BufferHandle(d.handle())
	d.buffers[h] = &buffer{hal: buf, size: desc.Size}
	return h, nil
}

func (d *Device) WriteBuffer(h backend.BufferHandle, offset int, data []byte) error {
	b, ok := d.buffers[h]
	if !ok {
		return backend.ErrInvalidHandle
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("%w: write beyond buffer", backend.ErrInvalidHandle)
	}
	d.queue.WriteBuffer(b.hal, uint64(offset), data)
	return nil
}

// ReadBuffer copies through a staging buffer and blocks on a fence
// with a bounded wait.
func (d *Device) ReadBuffer(h backend.BufferHandle, offset int, dst []byte) error {
	b, ok := d.buffers[h]
	if !ok {
		return backend.ErrInvalidHandle
	}
	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "orbit_readback",
		Size:  uint64(len(dst)),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: staging buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(staging)

	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "orbit_readback"})
	if err != nil {
		return err
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return err
	}
	encoder.CopyBufferToBuffer(b.hal, staging, []hal.BufferCopy{{
		SrcOffset: uint64(offset),
		DstOffset: 0,
		Size:      uint64(len(dst)),
	}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return err
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)
	if err := d.submitAndWait([]hal.CommandBuffer{cmdBuf}); err != nil {
		return err
	}
	return d.queue.ReadBuffer(staging, 0, dst)
}

func (d *Device) submitAndWait(bufs []hal.CommandBuffer) error {
	fence, err := d.dev.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer d.dev.DestroyFence(fence)
	if err := d.queue.Submit(bufs, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := d.dev.Wait(fence, 1, submitTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait: %w", err)
	}
	if !ok {
		return fmt.Errorf("wgpu: wait: timeout after %s", submitTimeout)
	}
	return nil
}

func (d *Device) DestroyBuffer(h backend.BufferHandle) {
	if b, ok := d.buffers[h]; ok {
		d.dev.DestroyBuffer(b.hal)
		delete(d.buffers, h)
	}
}

func (d *Device) CreateTexture(desc backend.TextureDescriptor) (backend.TextureHandle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	mips := desc.MipLevels
	if mips < 1 {
		mips = 1
	}
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: uint32(mips),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + ".view",
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: uint32(mips),
	})
	if err != nil {
		d.dev.DestroyTexture(tex)
		return 0, fmt.Errorf("wgpu: texture view %q: %w", desc.Label, err)
	}
	h := backend.TextureHandle(d.handle())
	d.textures[h] = &texture{hal: tex, view: view, desc: desc}
	return h, nil
}

func (d *Device) WriteTexture(h backend.TextureHandle, data []byte) error {
	t, ok := d.textures[h]
	if !ok {
		return backend.ErrInvalidHandle
	}
	w, hh := uint32(t.desc.Width), uint32(t.desc.Height)
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.hal, MipLevel: 0},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: w * 4, RowsPerImage: hh},
		&hal.Extent3D{Width: w, Height: hh, DepthOrArrayLayers: 1},
	)
	return nil
}

func (d *Device) DestroyTexture(h backend.TextureHandle) {
	if t, ok := d.textures[h]; ok {
		d.dev.DestroyTextureView(t.view)
		d.dev.DestroyTexture(t.hal)
		delete(d.textures, h)
	}
}

func (d *Device) createTargetTextures(desc backend.TargetDescriptor) (*target, error) {
	t := &target{desc: desc}
	size := hal.Extent3D{
		Width:              uint32(desc.Width),
		Height:             uint32(desc.Height),
		DepthOrArrayLayers: 1,
	}
	color, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label + ".color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: target color: %w", err)
	}
	t.color = color
	t.colorView, err = d.dev.CreateTextureView(color, &hal.TextureViewDescriptor{
		Label: desc.Label + ".color.view",
	})
	if err != nil {
		d.dev.DestroyTexture(color)
		return nil, fmt.Errorf("wgpu: target color view: %w", err)
	}

	depth, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label + ".depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		d.dev.DestroyTextureView(t.colorView)
		d.dev.DestroyTexture(color)
		return nil, fmt.Errorf("wgpu: target depth: %w", err)
	}
	t.depth = depth
	t.depthView, err = d.dev.CreateTextureView(depth, &hal.TextureViewDescriptor{
		Label: desc.Label + ".depth.view",
	})
	if err != nil {
		d.dev.DestroyTextureView(t.colorView)
		d.dev.DestroyTexture(color)
		d.dev.DestroyTexture(depth)
		return nil, fmt.Errorf("wgpu: target depth view: %w", err)
	}
	return t, nil
}

func (d *Device) destroyTargetTextures(t *target) {
	d.dev.DestroyTextureView(t.colorView)
	d.dev.DestroyTexture(t.color)
	d.dev.DestroyTextureView(t.depthView)
	d.dev.DestroyTexture(t.depth)
}

func (d *Device) CreateTarget(desc backend.TargetDescriptor) (backend.TargetHandle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	t, err := d.createTargetTextures(desc)
	if err != nil {
		return 0, err
	}
	h := backend.TargetHandle(d.handle())
	d.targets[h] = t
	return h, nil
}

func (d *Device) DestroyTarget(h backend.TargetHandle) {
	if t, ok := d.targets[h]; ok {
		d.destroyTargetTextures(t)
		delete(d.targets, h)
	}
}

func (d *Device) destroySurface() {
	if d.surface != nil {
		d.destroyTargetTextures(d.surface)
		d.surface = nil
	}
}

// ensureSurface keeps the headless default target sized to the
// viewport.
func (d *Device) ensureSurface() (*target, error) {
	if d.surface != nil &&
		d.surface.desc.Width == d.viewport.W && d.surface.desc.Height == d.viewport.H {
		return d.surface, nil
	}
	d.destroySurface()
	t, err := d.createTargetTextures(backend.TargetDescriptor{
		Label:  "orbit_surface",
		Width:  d.viewport.W,
		Height: d.viewport.H,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		return nil, err
	}
	d.surface = t
	return t, nil
}

func (d *Device) resolveTarget(h backend.TargetHandle) (*target, error) {
	if h == 0 {
		return d.ensureSurface()
	}
	t, ok := d.targets[h]
	if !ok {
		return nil, backend.ErrInvalidHandle
	}
	return t, nil
}

// CopyTargetToTexture copies a target's color attachment into a
// texture by staging through a buffer, matching the verified HAL copy
// paths. The frame's pass must not be open.
func (d *Device) CopyTargetToTexture(th backend.TargetHandle, texh backend.TextureHandle) error {
	if d.pass != nil {
		d.pass.End()
		d.pass = nil
	}
	src, err := d.resolveTarget(th)
	if err != nil {
		return err
	}
	_, ok := d.textures[texh]
	if !ok {
		return backend.ErrInvalidHandle
	}
	w, h := uint32(src.desc.Width), uint32(src.desc.Height)
	size := uint64(w) * uint64(h) * 4
	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "orbit_capture",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	defer d.dev.DestroyBuffer(staging)

	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "orbit_capture"})
	if err != nil {
		return err
	}
	if err := encoder.BeginEncoding("capture"); err != nil {
		return err
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: src.color,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(src.color, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: w * 4, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: src.color, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return err
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)
	if err := d.submitAndWait([]hal.CommandBuffer{cmdBuf}); err != nil {
		return err
	}
	pixels := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, pixels); err != nil {
		return err
	}
	return d.WriteTexture(texh, pixels)
}

func (d *Device) CreateProgram(src backend.ProgramSource) (backend.ProgramHandle, backend.ProgramInfo, error) {
	if err := d.usable(); err != nil {
		return 0, backend.ProgramInfo{}, err
	}
	p, err := newCompiledProgram(d.dev, src)
	if err != nil {
		return 0, backend.ProgramInfo{}, err
	}
	h := backend.ProgramHandle(d.handle())
	d.programs[h] = p
	return h, p.info(), nil
}

func (d *Device) DestroyProgram(h backend.ProgramHandle) {
	p, ok := d.programs[h]
	if !ok {
		return
	}
	d.dev.DestroyPipelineLayout(p.pipeLayout)
	d.dev.DestroyBindGroupLayout(p.globalsLayout)
	d.dev.DestroyBindGroupLayout(p.shadingLayout)
	d.dev.DestroyShaderModule(p.vertex)
	d.dev.DestroyShaderModule(p.fragment)
	delete(d.programs, h)
}
