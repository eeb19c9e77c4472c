// Package backend abstracts the GPU device behind a narrow interface so
// the renderer can target native WebGPU or run headless for tests.
//
// Devices are registered via Register and selected via Get or Default,
// the same factory-registry scheme used across the gogpu ecosystem.
package backend

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Common device errors.
var (
	// ErrDeviceNotAvailable is returned when a requested device is not available.
	ErrDeviceNotAvailable = errors.New("backend: device not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrDeviceLost is returned while the device context is lost; the
	// caller is expected to skip the operation and wait for restore.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrInvalidHandle is returned when operating on an unknown or dead handle.
	ErrInvalidHandle = errors.New("backend: invalid handle")

	// ErrCompileFailed is returned when the shader compiler rejects a source.
	// The diagnostic log is wrapped into the returned error.
	ErrCompileFailed = errors.New("backend: shader compile failed")

	// ErrOutOfMemory is returned when an allocation is refused.
	ErrOutOfMemory = errors.New("backend: out of memory")
)

// Handles are opaque device-issued identifiers. Zero is never a valid
// handle. Handles die en masse on device loss; holding one across a
// loss is harmless but using it returns ErrInvalidHandle.
type (
	// BufferHandle identifies a GPU buffer.
	BufferHandle uint64
	// TextureHandle identifies a GPU texture.
	TextureHandle uint64
	// TargetHandle identifies an offscreen render target.
	TargetHandle uint64
	// ProgramHandle identifies a compiled, linked shader program.
	ProgramHandle uint64
)

// BufferKind selects the binding class of a buffer.
type BufferKind uint8

const (
	BufferVertex BufferKind = iota
	BufferIndex
	BufferUniform
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Kind  BufferKind
	Size  int
	// Dynamic hints frequent rewrites.
	Dynamic bool
}

// TextureDescriptor describes a sampled texture to create.
type TextureDescriptor struct {
	Label     string
	Width     int
	Height    int
	Format    gputypes.TextureFormat
	MipLevels int
}

// TargetDescriptor describes an offscreen attachment set.
type TargetDescriptor struct {
	Label       string
	Width       int
	Height      int
	Format      gputypes.TextureFormat
	DepthFormat gputypes.TextureFormat
	Samples     int
}

// ProgramSource is the opaque shader source pair handed to the device's
// compiler. The text is never interpreted by orbit; the compiler either
// returns a handle or a diagnostic.
type ProgramSource struct {
	Label    string
	Vertex   string
	Fragment string
}

// ProgramInfo is returned from a successful compile: the uniform-block
// location table captured at link time.
type ProgramInfo struct {
	Uniforms map[string]int
}

// BlendMode is the closed set of blend configurations the renderer
// emits.
type BlendMode uint8

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
	BlendPremultiplied
)

// DepthState configures the depth test.
type DepthState struct {
	Test    bool
	Write   bool
	Compare gputypes.CompareFunction
}

// CullFace selects triangle face culling.
type CullFace uint8

const (
	CullNone CullFace = iota
	CullBack
	CullFront
)

// Viewport is a pixel rectangle.
type Viewport struct {
	X, Y, W, H int
}

// Device is one rendering context's GPU. All methods are called from
// the single frame-driver goroutine; implementations need no internal
// locking beyond what their own backing API demands.
//
// State-setting calls (UseProgram through SetScissor) must only be
// issued through the render state tracker, which elides redundant sets;
// calling them directly desynchronizes the mirror.
type Device interface {
	// Name returns the device identifier (e.g. "wgpu", "null").
	Name() string

	// Init brings the device up. Must be called before anything else.
	Init() error

	// Close releases the device. The device must not be used after.
	Close()

	CreateBuffer(desc BufferDescriptor) (BufferHandle, error)
	// WriteBuffer uploads data at a byte offset.
	WriteBuffer(h BufferHandle, offset int, data []byte) error
	// ReadBuffer copies buffer contents into dst, waiting for in-flight
	// GPU work with a bounded fence poll. The only blocking readback.
	ReadBuffer(h BufferHandle, offset int, dst []byte) error
	DestroyBuffer(h BufferHandle)

	CreateTexture(desc TextureDescriptor) (TextureHandle, error)
	// WriteTexture uploads full-size RGBA8 pixel data for mip level 0.
	WriteTexture(h TextureHandle, data []byte) error
	DestroyTexture(h TextureHandle)

	CreateTarget(desc TargetDescriptor) (TargetHandle, error)
	DestroyTarget(h TargetHandle)

	// CopyTargetToTexture resolves the current contents of a render
	// target into a sampled texture (the scene-color capture feeding
	// transmission).
	CopyTargetToTexture(t TargetHandle, tex TextureHandle) error

	// CreateProgram compiles and links an opaque source pair. On
	// failure the error wraps ErrCompileFailed and carries the
	// compiler's diagnostic log.
	CreateProgram(src ProgramSource) (ProgramHandle, ProgramInfo, error)
	DestroyProgram(h ProgramHandle)

	// BeginFrame opens command recording against a target (zero means
	// the default surface).
	BeginFrame(target TargetHandle) error

	UseProgram(h ProgramHandle)
	BindTexture(unit int, h TextureHandle)
	BindVertexBuffer(slot int, h BufferHandle)
	BindIndexBuffer(h BufferHandle)
	BindUniformBuffer(slot int, h BufferHandle)
	SetBlend(mode BlendMode)
	SetDepth(state DepthState)
	SetCull(face CullFace)
	SetViewport(vp Viewport)
	SetScissor(vp Viewport, enabled bool)

	// Clear clears the bound target's color and/or depth.
	Clear(color [4]float32, clearColor, clearDepth bool)

	// DrawIndexed draws count indices starting at firstIndex using the
	// bound program, buffers, and state.
	DrawIndexed(count, firstIndex int)
	// Draw draws count vertices of non-indexed geometry.
	Draw(count, firstVertex int)

	// EndFrame finishes recording and submits; fire-and-forget, in
	// program order.
	EndFrame() error

	// Present presents the default surface.
	Present()
}
