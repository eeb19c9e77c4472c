package render

import (
	"github.com/gogpu/orbit/backend"
)

const (
	maxTextureUnits = 8
	maxVertexSlots  = 8
	maxUniformSlots = 4
)

// StateTracker shadows the device's pipeline state and drops redundant
// state calls before they reach the backend. All state changes during
// a frame must go through the tracker, otherwise the shadow diverges.
//
// After a device loss or an external context touch, Invalidate resets
// every slot to unknown so the next set of each slot is always issued.
type StateTracker struct {
	dev backend.Device

	program      backend.ProgramHandle
	programKnown bool

	textures     [maxTextureUnits]backend.TextureHandle
	textureKnown [maxTextureUnits]bool

	vertexBufs   [maxVertexSlots]backend.BufferHandle
	vertexKnown  [maxVertexSlots]bool
	indexBuf     backend.BufferHandle
	indexKnown   bool
	uniformBufs  [maxUniformSlots]backend.BufferHandle
	uniformKnown [maxUniformSlots]bool

	blend      backend.BlendMode
	blendKnown bool
	depth      backend.DepthState
	depthKnown bool
	cull       backend.CullFace
	cullKnown  bool

	viewport      backend.Viewport
	viewportKnown bool
	scissor       backend.Viewport
	scissorOn     bool
	scissorKnown  bool

	issued uint64
	elided uint64
}

// NewStateTracker creates a tracker over a device with all state
// unknown.
func NewStateTracker(dev backend.Device) *StateTracker {
	return &StateTracker{dev: dev}
}

// Invalidate forgets all shadowed state.
func (t *StateTracker) Invalidate() {
	*t = StateTracker{dev: t.dev, issued: t.issued, elided: t.elided}
}

// UseProgram binds a program unless it is already bound.
func (t *StateTracker) UseProgram(h backend.ProgramHandle) {
	if t.programKnown && t.program == h {
		t.elided++
		return
	}
	t.dev.UseProgram(h)
	t.program, t.programKnown = h, true
	t.issued++
}

// BindTexture binds a texture to a unit unless it is already bound.
func (t *StateTracker) BindTexture(unit int, h backend.TextureHandle) {
	if unit < 0 || unit >= maxTextureUnits {
		return
	}
	if t.textureKnown[unit] && t.textures[unit] == h {
		t.elided++
		return
	}
	t.dev.BindTexture(unit, h)
	t.textures[unit], t.textureKnown[unit] = h, true
	t.issued++
}

// BindVertexBuffer binds a vertex buffer to a slot.
func (t *StateTracker) BindVertexBuffer(slot int, h backend.BufferHandle) {
	if slot < 0 || slot >= maxVertexSlots {
		return
	}
	if t.vertexKnown[slot] && t.vertexBufs[slot] == h {
		t.elided++
		return
	}
	t.dev.BindVertexBuffer(slot, h)
	t.vertexBufs[slot], t.vertexKnown[slot] = h, true
	t.issued++
}

// BindIndexBuffer binds the index buffer.
func (t *StateTracker) BindIndexBuffer(h backend.BufferHandle) {
	if t.indexKnown && t.indexBuf == h {
		t.elided++
		return
	}
	t.dev.BindIndexBuffer(h)
	t.indexBuf, t.indexKnown = h, true
	t.issued++
}

// BindUniformBuffer binds a uniform buffer to a slot.
func (t *StateTracker) BindUniformBuffer(slot int, h backend.BufferHandle) {
	if slot < 0 || slot >= maxUniformSlots {
		return
	}
	if t.uniformKnown[slot] && t.uniformBufs[slot] == h {
		t.elided++
		return
	}
	t.dev.BindUniformBuffer(slot, h)
	t.uniformBufs[slot], t.uniformKnown[slot] = h, true
	t.issued++
}

// SetBlend sets the blend mode.
func (t *StateTracker) SetBlend(mode backend.BlendMode) {
	if t.blendKnown && t.blend == mode {
		t.elided++
		return
	}
	t.dev.SetBlend(mode)
	t.blend, t.blendKnown = mode, true
	t.issued++
}

// SetDepth sets the depth test and write state.
func (t *StateTracker) SetDepth(s backend.DepthState) {
	if t.depthKnown && t.depth == s {
		t.elided++
		return
	}
	t.dev.SetDepth(s)
	t.depth, t.depthKnown = s, true
	t.issued++
}

// SetCull sets the face culling mode.
func (t *StateTracker) SetCull(face backend.CullFace) {
	if t.cullKnown && t.cull == face {
		t.elided++
		return
	}
	t.dev.SetCull(face)
	t.cull, t.cullKnown = face, true
	t.issued++
}

// SetViewport sets the viewport.
func (t *StateTracker) SetViewport(vp backend.Viewport) {
	if t.viewportKnown && t.viewport == vp {
		t.elided++
		return
	}
	t.dev.SetViewport(vp)
	t.viewport, t.viewportKnown = vp, true
	t.issued++
}

// SetScissor sets the scissor rectangle and its enable flag.
func (t *StateTracker) SetScissor(vp backend.Viewport, enabled bool) {
	if t.scissorKnown && t.scissor == vp && t.scissorOn == enabled {
		t.elided++
		return
	}
	t.dev.SetScissor(vp, enabled)
	t.scissor, t.scissorOn, t.scissorKnown = vp, enabled, true
	t.issued++
}

// Issued returns the number of state calls forwarded to the device.
func (t *StateTracker) Issued() uint64 { return t.issued }

// Elided returns the number of redundant state calls dropped.
func (t *StateTracker) Elided() uint64 { return t.elided }
