package backend

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/gogpu/orbit"
)

func init() {
	Register(DeviceNull, func() Device { return NewNullDevice() })
}

// NullDevice is an in-memory device for headless operation and tests.
// It stores buffer and texture contents CPU-side (so readbacks round
// trip), "compiles" programs by scanning the source for uniform names,
// and folds every submitted command into a per-frame hash, which makes
// "these two frames issued identical commands" checkable without
// pixels.
//
// Device loss is simulated with SimulateLoss/SimulateRestore: loss
// kills every outstanding handle exactly like a real context loss.
type NullDevice struct {
	initialized bool
	lost        bool

	nextHandle uint64
	buffers    map[BufferHandle][]byte
	textures   map[TextureHandle]nullTexture
	targets    map[TargetHandle]TargetDescriptor
	programs   map[ProgramHandle]ProgramSource

	inFrame   bool
	frameHash hash64
	lastHash  uint64
	remap     map[uint64]uint64

	// Counters for tests and diagnostics.
	bufferWrites  int
	textureWrites int
	draws         int
	stateSets     int
	compiles      int
}

type nullTexture struct {
	desc TextureDescriptor
	data []byte
}

type hash64 struct {
	h uint64
	s []byte
}

// NewNullDevice creates a null device. Init must still be called.
func NewNullDevice() *NullDevice {
	return &NullDevice{
		buffers:  make(map[BufferHandle][]byte),
		textures: make(map[TextureHandle]nullTexture),
		targets:  make(map[TargetHandle]TargetDescriptor),
		programs: make(map[ProgramHandle]ProgramSource),
		remap:    make(map[uint64]uint64),
	}
}

// Name returns the device identifier.
func (d *NullDevice) Name() string { return DeviceNull }

// Init marks the device ready.
func (d *NullDevice) Init() error {
	d.initialized = true
	orbit.Logger().Info("backend: null device initialized")
	return nil
}

// Close drops all resources.
func (d *NullDevice) Close() {
	d.initialized = false
	d.buffers = make(map[BufferHandle][]byte)
	d.textures = make(map[TextureHandle]nullTexture)
	d.targets = make(map[TargetHandle]TargetDescriptor)
	d.programs = make(map[ProgramHandle]ProgramSource)
}

func (d *NullDevice) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *NullDevice) usable() error {
	if !d.initialized {
		return ErrNotInitialized
	}
	if d.lost {
		return ErrDeviceLost
	}
	return nil
}

// SimulateLoss kills the context: every outstanding handle becomes dead
// without any destruction call, exactly as on a real device loss.
func (d *NullDevice) SimulateLoss() {
	d.lost = true
	d.inFrame = false
	d.buffers = make(map[BufferHandle][]byte)
	d.textures = make(map[TextureHandle]nullTexture)
	d.targets = make(map[TargetHandle]TargetDescriptor)
	d.programs = make(map[ProgramHandle]ProgramSource)
	orbit.Logger().Info("backend: null device lost")
}

// SimulateRestore brings the context back, empty.
func (d *NullDevice) SimulateRestore() {
	d.lost = false
	orbit.Logger().Info("backend: null device restored")
}

// Lost reports whether the simulated context is currently lost.
func (d *NullDevice) Lost() bool { return d.lost }

func (d *NullDevice) CreateBuffer(desc BufferDescriptor) (BufferHandle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	if desc.Size < 0 {
		return 0, fmt.Errorf("%w: negative buffer size %d", ErrOutOfMemory, desc.Size)
	}
	h := BufferHandle(d.handle())
	d.buffers[h] = make([]byte, desc.Size)
	return h, nil
}

func (d *NullDevice) WriteBuffer(h BufferHandle, offset int, data []byte) error {
	if err := d.usable(); err != nil {
		return err
	}
	buf, ok := d.buffers[h]
	if !ok {
		return ErrInvalidHandle
	}
	if offset < 0 || offset+len(data) > len(buf) {
		return fmt.Errorf("%w: write [%d,%d) beyond buffer of %d bytes",
			ErrInvalidHandle, offset, offset+len(data), len(buf))
	}
	copy(buf[offset:], data)
	d.bufferWrites++
	return nil
}

func (d *NullDevice) ReadBuffer(h BufferHandle, offset int, dst []byte) error {
	if err := d.usable(); err != nil {
		return err
	}
	buf, ok := d.buffers[h]
	if !ok {
		return ErrInvalidHandle
	}
	if offset < 0 || offset+len(dst) > len(buf) {
		return fmt.Errorf("%w: read [%d,%d) beyond buffer of %d bytes",
			ErrInvalidHandle, offset, offset+len(dst), len(buf))
	}
	copy(dst, buf[offset:])
	return nil
}

func (d *NullDevice) DestroyBuffer(h BufferHandle) {
	delete(d.buffers, h)
}

func (d *NullDevice) CreateTexture(desc TextureDescriptor) (TextureHandle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	h := TextureHandle(d.handle())
	d.textures[h] = nullTexture{desc: desc}
	return h, nil
}

func (d *NullDevice) WriteTexture(h TextureHandle, data []byte) error {
	if err := d.usable(); err != nil {
		return err
	}
	t, ok := d.textures[h]
	if !ok {
		return ErrInvalidHandle
	}
	t.data = append(t.data[:0], data...)
	d.textures[h] = t
	d.textureWrites++
	return nil
}

func (d *NullDevice) DestroyTexture(h TextureHandle) {
	delete(d.textures, h)
}

func (d *NullDevice) CreateTarget(desc TargetDescriptor) (TargetHandle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	h := TargetHandle(d.handle())
	d.targets[h] = desc
	return h, nil
}

func (d *NullDevice) DestroyTarget(h TargetHandle) {
	delete(d.targets, h)
}

func (d *NullDevice) CopyTargetToTexture(t TargetHandle, tex TextureHandle) error {
	if err := d.usable(); err != nil {
		return err
	}
	// Target 0 is the default surface.
	if _, ok := d.targets[t]; !ok && t != 0 {
		return ErrInvalidHandle
	}
	if _, ok := d.textures[tex]; !ok {
		return ErrInvalidHandle
	}
	if d.inFrame {
		d.hashCmd("copyTargetToTexture", d.canon(uint64(t)), d.canon(uint64(tex)))
	}
	return nil
}

// CreateProgram "compiles" the opaque source: a source containing the
// token #error fails with its line as the diagnostic, mirroring how a
// real compiler surfaces one. Uniform locations are assigned to u_*
// tokens in order of first appearance.
func (d *NullDevice) CreateProgram(src ProgramSource) (ProgramHandle, ProgramInfo, error) {
	if err := d.usable(); err != nil {
		return 0, ProgramInfo{}, err
	}
	d.compiles++
	if diag := compileDiagnostic(src); diag != "" {
		return 0, ProgramInfo{}, fmt.Errorf("%w: %s", ErrCompileFailed, diag)
	}
	h := ProgramHandle(d.handle())
	d.programs[h] = src
	return h, ProgramInfo{Uniforms: scanUniforms(src)}, nil
}

func compileDiagnostic(src ProgramSource) string {
	if src.Vertex == "" || src.Fragment == "" {
		return "empty shader stage"
	}
	for _, text := range []string{src.Vertex, src.Fragment} {
		for _, line := range strings.Split(text, "\n") {
			if strings.Contains(line, "#error") {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

func scanUniforms(src ProgramSource) map[string]int {
	locs := make(map[string]int)
	next := 0
	for _, text := range []string{src.Vertex, src.Fragment} {
		for _, field := range strings.FieldsFunc(text, func(r rune) bool {
			return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
		}) {
			if strings.HasPrefix(field, "u_") {
				if _, ok := locs[field]; !ok {
					locs[field] = next
					next++
				}
			}
		}
	}
	return locs
}

func (d *NullDevice) DestroyProgram(h ProgramHandle) {
	delete(d.programs, h)
}

func (d *NullDevice) BeginFrame(target TargetHandle) error {
	if err := d.usable(); err != nil {
		return err
	}
	d.inFrame = true
	d.frameHash = hash64{}
	d.remap = make(map[uint64]uint64)
	d.hashCmd("beginFrame", d.canon(uint64(target)))
	return nil
}

// canon maps a handle to its order of first appearance in the frame.
// The frame hash is taken over canonical handles, so two frames that
// issue structurally identical command streams hash equal even when
// the absolute handle values differ, as they do after a loss replay.
func (d *NullDevice) canon(h uint64) uint64 {
	if h == 0 {
		return 0
	}
	if c, ok := d.remap[h]; ok {
		return c
	}
	c := uint64(len(d.remap) + 1)
	d.remap[h] = c
	return c
}

func (d *NullDevice) UseProgram(h ProgramHandle) { d.state("useProgram", d.canon(uint64(h))) }
func (d *NullDevice) BindTexture(unit int, h TextureHandle) {
	d.state("bindTexture", uint64(unit), d.canon(uint64(h)))
}
func (d *NullDevice) BindVertexBuffer(slot int, h BufferHandle) {
	d.state("bindVertexBuffer", uint64(slot), d.canon(uint64(h)))
}
func (d *NullDevice) BindIndexBuffer(h BufferHandle) {
	d.state("bindIndexBuffer", d.canon(uint64(h)))
}
func (d *NullDevice) BindUniformBuffer(slot int, h BufferHandle) {
	d.state("bindUniformBuffer", uint64(slot), d.canon(uint64(h)))
}
func (d *NullDevice) SetBlend(mode BlendMode) { d.state("setBlend", uint64(mode)) }
func (d *NullDevice) SetDepth(s DepthState) {
	d.state("setDepth", boolBit(s.Test), boolBit(s.Write), uint64(s.Compare))
}
func (d *NullDevice) SetCull(face CullFace) { d.state("setCull", uint64(face)) }
func (d *NullDevice) SetViewport(vp Viewport) {
	d.state("setViewport", uint64(vp.X), uint64(vp.Y), uint64(vp.W), uint64(vp.H))
}
func (d *NullDevice) SetScissor(vp Viewport, enabled bool) {
	d.state("setScissor", uint64(vp.X), uint64(vp.Y), uint64(vp.W), uint64(vp.H), boolBit(enabled))
}

func (d *NullDevice) Clear(color [4]float32, clearColor, clearDepth bool) {
	if !d.inFrame {
		return
	}
	d.hashCmd("clear",
		uint64(floatBits(color[0])), uint64(floatBits(color[1])),
		uint64(floatBits(color[2])), uint64(floatBits(color[3])),
		boolBit(clearColor), boolBit(clearDepth))
}

func (d *NullDevice) DrawIndexed(count, firstIndex int) {
	if !d.inFrame {
		return
	}
	d.draws++
	d.hashCmd("drawIndexed", uint64(count), uint64(firstIndex))
}

func (d *NullDevice) Draw(count, firstVertex int) {
	if !d.inFrame {
		return
	}
	d.draws++
	d.hashCmd("draw", uint64(count), uint64(firstVertex))
}

func (d *NullDevice) EndFrame() error {
	if err := d.usable(); err != nil {
		return err
	}
	d.inFrame = false
	d.lastHash = d.frameHash.sum()
	return nil
}

func (d *NullDevice) Present() {}

// FrameHash returns the command-stream hash of the most recently
// submitted frame. Two frames that issued identical commands in
// identical order have equal hashes.
func (d *NullDevice) FrameHash() uint64 { return d.lastHash }

// BufferWrites returns the number of buffer uploads performed.
func (d *NullDevice) BufferWrites() int { return d.bufferWrites }

// TextureWrites returns the number of texture uploads performed.
func (d *NullDevice) TextureWrites() int { return d.textureWrites }

// Draws returns the number of draw commands issued.
func (d *NullDevice) Draws() int { return d.draws }

// StateSets returns the number of state commands that reached the
// device (after tracker elision).
func (d *NullDevice) StateSets() int { return d.stateSets }

// Compiles returns the number of CreateProgram calls.
func (d *NullDevice) Compiles() int { return d.compiles }

func (d *NullDevice) state(cmd string, args ...uint64) {
	if !d.inFrame {
		return
	}
	d.stateSets++
	d.hashCmd(cmd, args...)
}

func (d *NullDevice) hashCmd(cmd string, args ...uint64) {
	d.frameHash.s = d.frameHash.s[:0]
	d.frameHash.s = append(d.frameHash.s, cmd...)
	for _, a := range args {
		for i := 0; i < 8; i++ {
			d.frameHash.s = append(d.frameHash.s, byte(a>>(8*i)))
		}
	}
	h := fnv.New64a()
	var prev [8]byte
	for i := 0; i < 8; i++ {
		prev[i] = byte(d.frameHash.h >> (8 * i))
	}
	_, _ = h.Write(prev[:])
	_, _ = h.Write(d.frameHash.s)
	d.frameHash.h = h.Sum64()
}

func (h *hash64) sum() uint64 { return h.h }

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func floatBits(f float32) uint32 {
	return math.Float32bits(f)
}
