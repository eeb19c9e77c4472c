// Package render drives frames: it builds culled, sorted draw lists
// from a scene and a camera, resolves GPU resources and shader
// variants through their caches, and issues the draws through a
// state-elision tracker.
package render

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/orbit"
	"github.com/gogpu/orbit/backend"
	"github.com/gogpu/orbit/render/program"
	"github.com/gogpu/orbit/render/resource"
)

// ErrFrameInProgress is returned when Render is re-entered, typically
// from a callback invoked during the frame.
var ErrFrameInProgress = errors.New("render: frame already in progress")

// How many frames a program stays referenced after its last use.
const programRetainFrames = 120

type heldProgram struct {
	prog     *program.Program
	lastUsed uint64
}

// Context owns everything a frame needs: the device, the resource
// pool, the program cache, and the state tracker. It is single
// threaded; all scene mutation and rendering happen on one goroutine.
type Context struct {
	dev      backend.Device
	pool     *resource.Pool
	programs *program.Cache
	tracker  *StateTracker

	lists Lists
	held  map[program.Key]heldProgram

	toneMapping program.ToneMapping
	colorSpace  program.ColorSpace
	viewport    backend.Viewport
	scissor     backend.Viewport
	scissorOn   bool
	target      backend.TargetHandle

	globalsBuf backend.BufferHandle
	shadingBuf backend.BufferHandle

	captureTexture backend.TextureHandle
	captureW       int
	captureH       int

	frame     uint64
	rendering bool
	lost      bool

	stats FrameStats
}

// Option configures a Context.
type Option func(*Context)

// WithToneMapping selects the output tone mapping curve.
func WithToneMapping(tm program.ToneMapping) Option {
	return func(c *Context) { c.toneMapping = tm }
}

// WithColorSpace selects the output encoding.
func WithColorSpace(cs program.ColorSpace) Option {
	return func(c *Context) { c.colorSpace = cs }
}

// WithViewport sets the output viewport.
func WithViewport(vp backend.Viewport) Option {
	return func(c *Context) { c.viewport = vp }
}

// WithTarget renders into an offscreen target instead of the default
// surface.
func WithTarget(t backend.TargetHandle) Option {
	return func(c *Context) { c.target = t }
}

// NewContext creates a render context over an initialized device.
func NewContext(dev backend.Device, opts ...Option) (*Context, error) {
	c := &Context{
		dev:        dev,
		pool:       resource.NewPool(dev),
		programs:   program.NewCache(dev),
		tracker:    NewStateTracker(dev),
		held:       make(map[program.Key]heldProgram),
		colorSpace: program.ColorSpaceSRGB,
		viewport:   backend.Viewport{W: 800, H: 600},
	}
	for _, opt := range opts {
		opt(c)
	}
	var err error
	c.globalsBuf, err = dev.CreateBuffer(backend.BufferDescriptor{
		Label: "frame.globals", Kind: backend.BufferUniform, Size: globalsSize, Dynamic: true,
	})
	if err != nil {
		return nil, fmt.Errorf("render: globals buffer: %w", err)
	}
	c.shadingBuf, err = dev.CreateBuffer(backend.BufferDescriptor{
		Label: "frame.shading", Kind: backend.BufferUniform, Size: shadingSize, Dynamic: true,
	})
	if err != nil {
		return nil, fmt.Errorf("render: shading buffer: %w", err)
	}
	orbit.Logger().Info("render: context created", "device", dev.Name())
	return c, nil
}

// Device returns the backing device.
func (c *Context) Device() backend.Device { return c.dev }

// Pool returns the resource pool.
func (c *Context) Pool() *resource.Pool { return c.pool }

// Programs returns the program cache.
func (c *Context) Programs() *program.Cache { return c.programs }

// Tracker returns the state tracker.
func (c *Context) Tracker() *StateTracker { return c.tracker }

// SetViewport changes the output viewport for subsequent frames.
func (c *Context) SetViewport(vp backend.Viewport) { c.viewport = vp }

// SetScissor enables scissoring to the given rectangle for subsequent
// frames.
func (c *Context) SetScissor(vp backend.Viewport) {
	c.scissor, c.scissorOn = vp, true
}

// ClearScissor disables scissoring.
func (c *Context) ClearScissor() {
	c.scissor, c.scissorOn = backend.Viewport{}, false
}

// SetRenderTarget redirects subsequent frames into an offscreen target.
// A zero handle restores the device's default target.
func (c *Context) SetRenderTarget(t backend.TargetHandle) { c.target = t }

// Close releases the context's own resources.
func (c *Context) Close() {
	c.dev.DestroyBuffer(c.globalsBuf)
	c.dev.DestroyBuffer(c.shadingBuf)
	if c.captureTexture != 0 {
		c.dev.DestroyTexture(c.captureTexture)
	}
}

// acquireProgram resolves a variant through the cache, holding the
// reference across frames so per-frame reuse never recompiles.
func (c *Context) acquireProgram(key program.Key) (*program.Program, error) {
	if h, ok := c.held[key]; ok {
		h.lastUsed = c.frame
		c.held[key] = h
		return h.prog, nil
	}
	p, err := c.programs.Acquire(key)
	if err != nil {
		return nil, err
	}
	c.held[key] = heldProgram{prog: p, lastUsed: c.frame}
	return p, nil
}

// sweepPrograms releases references that have not been used recently.
func (c *Context) sweepPrograms() {
	for key, h := range c.held {
		if c.frame-h.lastUsed > programRetainFrames {
			delete(c.held, key)
			c.programs.Release(key)
		}
	}
}

// ensureCapture creates the scene-color capture texture transmissive
// materials sample, recreating it when the viewport size changed. The
// opaque pass is copied into it before any transmissive draw.
func (c *Context) ensureCapture() error {
	if c.captureTexture != 0 && c.captureW == c.viewport.W && c.captureH == c.viewport.H {
		return nil
	}
	if c.captureTexture != 0 {
		c.dev.DestroyTexture(c.captureTexture)
		c.captureTexture = 0
	}
	var err error
	c.captureTexture, err = c.dev.CreateTexture(backend.TextureDescriptor{
		Label:     "frame.capture",
		Width:     c.viewport.W,
		Height:    c.viewport.H,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		MipLevels: 1,
	})
	if err != nil {
		return err
	}
	c.captureW, c.captureH = c.viewport.W, c.viewport.H
	return nil
}
