package render

import (
	"fmt"

	"github.com/gogpu/orbit"
	"github.com/gogpu/orbit/backend"
)

// NotifyDeviceLost puts the context into the lost state. Every GPU
// handle is considered dead: the pool and program cache forget their
// device-side halves, the state tracker forgets its shadow, and Render
// becomes a no-op returning ErrDeviceLost until the device is
// restored.
//
// CPU-side scene data and the pool's retained bytes are untouched, so
// a later NotifyDeviceRestored can rebuild everything.
func (c *Context) NotifyDeviceLost() {
	if c.lost {
		return
	}
	c.lost = true
	c.pool.MarkLost()
	c.programs.Invalidate()
	clear(c.held)
	c.tracker.Invalidate()
	c.globalsBuf, c.shadingBuf, c.captureTexture = 0, 0, 0
	orbit.Logger().Warn("render: device lost")
}

// NotifyDeviceRestored rebuilds the GPU side on the restored device:
// pool resources replay from their retained data and the context's own
// buffers are recreated. Programs recompile lazily on next use, so
// rendering resumes on the next frame with the same output as before
// the loss.
func (c *Context) NotifyDeviceRestored() error {
	if !c.lost {
		return nil
	}
	if err := c.pool.Replay(); err != nil {
		return fmt.Errorf("render: restore: %w", err)
	}
	var err error
	c.globalsBuf, err = c.dev.CreateBuffer(backend.BufferDescriptor{
		Label: "frame.globals", Kind: backend.BufferUniform, Size: globalsSize, Dynamic: true,
	})
	if err != nil {
		return fmt.Errorf("render: restore globals buffer: %w", err)
	}
	c.shadingBuf, err = c.dev.CreateBuffer(backend.BufferDescriptor{
		Label: "frame.shading", Kind: backend.BufferUniform, Size: shadingSize, Dynamic: true,
	})
	if err != nil {
		return fmt.Errorf("render: restore shading buffer: %w", err)
	}
	c.lost = false
	orbit.Logger().Info("render: device restored")
	return nil
}

// Lost reports whether the context is currently in the lost state.
func (c *Context) Lost() bool { return c.lost }
