package scene

import (
	"fmt"
	"sync/atomic"
)

// MaterialKind is the closed set of shading models. Each kind selects a
// shader-variant family; everything else about a material only changes
// uniform values.
type MaterialKind uint8

const (
	MaterialBasic MaterialKind = iota
	MaterialLambert
	MaterialStandard
	MaterialPhysical
	MaterialToon
)

// String returns the kind name.
func (k MaterialKind) String() string {
	switch k {
	case MaterialBasic:
		return "Basic"
	case MaterialLambert:
		return "Lambert"
	case MaterialStandard:
		return "Standard"
	case MaterialPhysical:
		return "Physical"
	case MaterialToon:
		return "Toon"
	default:
		return fmt.Sprintf("MaterialKind(%d)", uint8(k))
	}
}

// TextureSlot names the texture channels a material can bind.
type TextureSlot uint8

const (
	SlotColor TextureSlot = iota
	SlotNormal
	SlotRoughness
	SlotMetalness
	SlotEmissive
	SlotEnvironment
	slotCount
)

var textureIDs atomic.Uint64

// Texture is the CPU-side description of an image resource: pixel data
// that survives device loss so the GPU copy can always be rebuilt.
type Texture struct {
	id      uint64
	Width   int
	Height  int
	Pixels  []byte // RGBA8, row-major
	version uint64
}

// NewTexture creates a texture from RGBA8 pixel data.
func NewTexture(width, height int, pixels []byte) *Texture {
	return &Texture{
		id:      textureIDs.Add(1),
		Width:   width,
		Height:  height,
		Pixels:  pixels,
		version: 1,
	}
}

// ID returns the texture's unique id.
func (t *Texture) ID() uint64 { return t.id }

// Version returns the content version.
func (t *Texture) Version() uint64 { return t.version }

// SetPixels replaces the pixel data and bumps the content version.
func (t *Texture) SetPixels(pixels []byte) {
	t.Pixels = pixels
	t.version++
}

var materialIDs atomic.Uint32

// Material describes how a drawable surface is shaded. The Kind plus
// which texture slots are bound determine the shader variant; color and
// scalar fields only feed uniforms.
//
// Mutate through the setters so the version moves: a material disabled
// by a shader compile failure stays disabled until its variant changes.
type Material struct {
	id   uint32
	Kind MaterialKind

	Color        [4]float32
	Opacity      float32
	Metalness    float32
	Roughness    float32
	Emissive     [3]float32
	Transparent  bool
	Transmission float32
	DoubleSided  bool
	VertexColors bool
	DepthWrite   bool
	DepthTest    bool
	Wireframe    bool

	textures [slotCount]*Texture
	version  uint64
}

// NewMaterial creates a material of the given kind with opaque white
// defaults.
func NewMaterial(kind MaterialKind) *Material {
	return &Material{
		id:         materialIDs.Add(1),
		Kind:       kind,
		Color:      [4]float32{1, 1, 1, 1},
		Opacity:    1,
		Roughness:  1,
		DepthWrite: true,
		DepthTest:  true,
		version:    1,
	}
}

// ID returns the material's unique id.
func (m *Material) ID() uint32 { return m.id }

// Version returns the mutation version.
func (m *Material) Version() uint64 { return m.version }

// Touch bumps the version after direct field mutation.
func (m *Material) Touch() { m.version++ }

// SetTexture binds a texture to a slot; nil unbinds. Changing whether a
// slot is bound changes the shader variant.
func (m *Material) SetTexture(slot TextureSlot, t *Texture) {
	if slot >= slotCount {
		return
	}
	m.textures[slot] = t
	m.version++
}

// TextureAt returns the texture bound to a slot, or nil.
func (m *Material) TextureAt(slot TextureSlot) *Texture {
	if slot >= slotCount {
		return nil
	}
	return m.textures[slot]
}

// Transmissive reports whether the material samples the captured scene
// color and therefore renders in the transmissive queue.
func (m *Material) Transmissive() bool { return m.Transmission > 0 }

// Features is the material's contribution to the shader-variant
// fingerprint. Two materials with equal Features (and equal
// environment-side key fields) must share one compiled program.
type Features struct {
	Kind         MaterialKind
	UseColorMap  bool
	UseNormalMap bool
	UseRoughMap  bool
	UseMetalMap  bool
	UseEmissive  bool
	UseEnvMap    bool
	VertexColors bool
	DoubleSided  bool
	Transparent  bool
	Transmission bool
	Wireframe    bool
}

// Features derives the variant-relevant fingerprint. Color, opacity and
// other scalar fields are deliberately absent: they alter uniforms, not
// the program.
func (m *Material) Features() Features {
	return Features{
		Kind:         m.Kind,
		UseColorMap:  m.textures[SlotColor] != nil,
		UseNormalMap: m.textures[SlotNormal] != nil,
		UseRoughMap:  m.textures[SlotRoughness] != nil,
		UseMetalMap:  m.textures[SlotMetalness] != nil,
		UseEmissive:  m.textures[SlotEmissive] != nil,
		UseEnvMap:    m.textures[SlotEnvironment] != nil,
		VertexColors: m.VertexColors,
		DoubleSided:  m.DoubleSided,
		Transparent:  m.Transparent,
		Transmission: m.Transmissive(),
		Wireframe:    m.Wireframe,
	}
}
