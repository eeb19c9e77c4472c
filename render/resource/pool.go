// Package resource owns the GPU-side lifetime of geometry buffers and
// textures. Scene objects stay CPU-side descriptions; the pool uploads
// them on first use, reuses the upload while the object is unchanged,
// and retains the source bytes so everything can be replayed after a
// device loss.
package resource

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/orbit"
	"github.com/gogpu/orbit/backend"
	"github.com/gogpu/orbit/scene"
)

// freeLag is how many frames a released handle survives before it is
// destroyed. The GPU may still be reading it for in-flight frames.
const freeLag = 2

type bufferKey struct {
	geom uint64
	attr string // "" is the index buffer
}

type bufferEntry struct {
	key     bufferKey
	handle  backend.BufferHandle
	size    int
	version uint64
	refs    int
	kind    backend.BufferKind
	dynamic bool
	data    []byte
	dirty   []Range
	valid   bool
}

type textureEntry struct {
	id      uint64
	handle  backend.TextureHandle
	version uint64
	refs    int
	desc    backend.TextureDescriptor
	pixels  []byte
	valid   bool
}

type deferredFree struct {
	frame   uint64
	buffer  backend.BufferHandle
	texture backend.TextureHandle
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Buffers       int
	Textures      int
	BytesUploaded uint64
	Hits          uint64
	Misses        uint64
	Updates       uint64
	DeferredFrees uint64
}

// Pool maps scene geometry and textures to device handles.
//
// Acquire calls are idempotent per object version: acquiring the same
// unchanged object twice yields the same handle and performs no second
// upload. A version bump triggers an in-place update when the size
// allows it, otherwise a recreate. Each distinct object holds one
// reference from its first acquire; per-draw re-acquires share it, so
// a single Release drops the count to zero and the handle is destroyed
// freeLag frames later. Retain adds references for callers that share
// an object across owners.
type Pool struct {
	mu       sync.Mutex
	dev      backend.Device
	frame    uint64
	buffers  map[bufferKey]*bufferEntry
	textures map[uint64]*textureEntry
	deferred []deferredFree
	stats    Stats
}

// NewPool creates a pool bound to a device.
func NewPool(dev backend.Device) *Pool {
	return &Pool{
		dev:      dev,
		buffers:  make(map[bufferKey]*bufferEntry),
		textures: make(map[uint64]*textureEntry),
	}
}

// BeginFrame advances the frame clock and destroys handles whose
// deferral window has elapsed.
func (p *Pool) BeginFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame++
	kept := p.deferred[:0]
	for _, df := range p.deferred {
		if df.frame > p.frame {
			kept = append(kept, df)
			continue
		}
		if df.buffer != 0 {
			p.dev.DestroyBuffer(df.buffer)
		}
		if df.texture != 0 {
			p.dev.DestroyTexture(df.texture)
		}
	}
	p.deferred = kept
}

// AcquireAttribute returns the vertex buffer for one geometry
// attribute, uploading or updating it as needed.
func (p *Pool) AcquireAttribute(g *scene.Geometry, name string) (backend.BufferHandle, error) {
	attr, ok := g.Attribute(name)
	if !ok {
		return 0, fmt.Errorf("resource: geometry %d has no attribute %q", g.ID(), name)
	}
	data := floatBytes(attr.Data)
	return p.acquireBuffer(bufferKey{geom: g.ID(), attr: name}, g.Version(),
		backend.BufferVertex, attr.Usage == scene.UsageDynamic, data,
		fmt.Sprintf("geom%d.%s", g.ID(), name))
}

// AcquireIndex returns the index buffer for a geometry.
func (p *Pool) AcquireIndex(g *scene.Geometry) (backend.BufferHandle, error) {
	idx := g.Index()
	if len(idx) == 0 {
		return 0, fmt.Errorf("resource: geometry %d has no index", g.ID())
	}
	return p.acquireBuffer(bufferKey{geom: g.ID()}, g.Version(),
		backend.BufferIndex, false, indexBytes(idx),
		fmt.Sprintf("geom%d.index", g.ID()))
}

func (p *Pool) acquireBuffer(key bufferKey, version uint64, kind backend.BufferKind,
	dynamic bool, data []byte, label string) (backend.BufferHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	refs := 1
	e, ok := p.buffers[key]
	if ok && e.valid {
		if e.version == version {
			p.stats.Hits++
			return e.handle, nil
		}
		// Version changed. Update in place when the size still fits,
		// otherwise recreate, carrying the references over.
		if len(data) <= e.size {
			if err := p.dev.WriteBuffer(e.handle, 0, data); err != nil {
				return 0, err
			}
			e.version = version
			e.data = append(e.data[:0], data...)
			p.stats.Updates++
			p.stats.BytesUploaded += uint64(len(data))
			return e.handle, nil
		}
		refs = e.refs
		p.scheduleFree(e.handle, 0)
		delete(p.buffers, key)
	}

	p.stats.Misses++
	h, err := p.dev.CreateBuffer(backend.BufferDescriptor{
		Label:   label,
		Kind:    kind,
		Size:    len(data),
		Dynamic: dynamic,
	})
	if err != nil {
		return 0, err
	}
	if err := p.dev.WriteBuffer(h, 0, data); err != nil {
		p.dev.DestroyBuffer(h)
		return 0, err
	}
	p.stats.BytesUploaded += uint64(len(data))
	p.buffers[key] = &bufferEntry{
		key:     key,
		handle:  h,
		size:    len(data),
		version: version,
		refs:    refs,
		kind:    kind,
		dynamic: dynamic,
		data:    append([]byte(nil), data...),
		valid:   true,
	}
	return h, nil
}

// AcquireTexture returns the device texture for a scene texture,
// uploading its pixels on first use or after a version bump.
func (p *Pool) AcquireTexture(t *scene.Texture) (backend.TextureHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.textures[t.ID()]
	if ok && e.valid {
		if e.version == t.Version() {
			p.stats.Hits++
			return e.handle, nil
		}
		if err := p.dev.WriteTexture(e.handle, t.Pixels); err != nil {
			return 0, err
		}
		e.version = t.Version()
		e.pixels = append(e.pixels[:0], t.Pixels...)
		p.stats.Updates++
		p.stats.BytesUploaded += uint64(len(t.Pixels))
		return e.handle, nil
	}

	p.stats.Misses++
	desc := backend.TextureDescriptor{
		Label:     fmt.Sprintf("tex%d", t.ID()),
		Width:     t.Width,
		Height:    t.Height,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		MipLevels: 1,
	}
	h, err := p.dev.CreateTexture(desc)
	if err != nil {
		return 0, err
	}
	if err := p.dev.WriteTexture(h, t.Pixels); err != nil {
		p.dev.DestroyTexture(h)
		return 0, err
	}
	p.stats.BytesUploaded += uint64(len(t.Pixels))
	p.textures[t.ID()] = &textureEntry{
		id:      t.ID(),
		handle:  h,
		version: t.Version(),
		refs:    1,
		desc:    desc,
		pixels:  append([]byte(nil), t.Pixels...),
		valid:   true,
	}
	return h, nil
}

// MarkDirty records a byte span of a dynamic attribute buffer to be
// rewritten on the next Flush.
func (p *Pool) MarkDirty(g *scene.Geometry, name string, r Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.buffers[bufferKey{geom: g.ID(), attr: name}]
	if !ok || !e.valid {
		return
	}
	e.dirty = append(e.dirty, r)
}

// Flush coalesces pending dirty ranges and writes them from the
// current attribute data. Overlapping and adjacent spans collapse to
// one write.
func (p *Pool) Flush(g *scene.Geometry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, e := range p.entriesFor(g.ID()) {
		if len(e.dirty) == 0 {
			continue
		}
		attr, ok := g.Attribute(name)
		if !ok {
			e.dirty = e.dirty[:0]
			continue
		}
		data := floatBytes(attr.Data)
		e.data = append(e.data[:0], data...)
		for _, r := range Coalesce(e.dirty) {
			if r.Off < 0 || r.End() > len(data) {
				orbit.Logger().Warn("resource: dirty range out of bounds",
					"geometry", g.ID(), "attr", name, "off", r.Off, "len", r.Len)
				continue
			}
			if err := p.dev.WriteBuffer(e.handle, r.Off, data[r.Off:r.End()]); err != nil {
				return err
			}
			p.stats.Updates++
			p.stats.BytesUploaded += uint64(r.Len)
		}
		e.dirty = e.dirty[:0]
	}
	return nil
}

func (p *Pool) entriesFor(geom uint64) map[string]*bufferEntry {
	out := make(map[string]*bufferEntry)
	for key, e := range p.buffers {
		if key.geom == geom && key.attr != "" {
			out[key.attr] = e
		}
	}
	return out
}

// RetainGeometry adds a reference to every resident buffer of a
// geometry. Owners sharing a geometry retain it once each and release
// it once each; the handles outlive all but the last release.
func (p *Pool) RetainGeometry(g *scene.Geometry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.buffers {
		if key.geom == g.ID() {
			e.refs++
		}
	}
}

// RetainTexture adds a reference to a resident texture.
func (p *Pool) RetainTexture(t *scene.Texture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.textures[t.ID()]; ok {
		e.refs++
	}
}

// ReleaseGeometry drops one reference from every buffer of a geometry.
// Handles whose refcount reaches zero are destroyed freeLag frames
// later.
func (p *Pool) ReleaseGeometry(g *scene.Geometry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.buffers {
		if key.geom != g.ID() {
			continue
		}
		e.refs--
		if e.refs <= 0 {
			if e.valid {
				p.scheduleFree(e.handle, 0)
			}
			delete(p.buffers, key)
		}
	}
}

// ReleaseTexture drops one reference from a texture.
func (p *Pool) ReleaseTexture(t *scene.Texture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.textures[t.ID()]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		if e.valid {
			p.scheduleFree(0, e.handle)
		}
		delete(p.textures, t.ID())
	}
}

func (p *Pool) scheduleFree(b backend.BufferHandle, t backend.TextureHandle) {
	p.stats.DeferredFrees++
	p.deferred = append(p.deferred, deferredFree{frame: p.frame + freeLag, buffer: b, texture: t})
}

// MarkLost invalidates every entry after a device loss. Handles are
// dead on the device side and must not be destroyed.
func (p *Pool) MarkLost() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.buffers {
		e.valid = false
		e.handle = 0
	}
	for _, e := range p.textures {
		e.valid = false
		e.handle = 0
	}
	p.deferred = p.deferred[:0]
	orbit.Logger().Info("resource: pool marked lost",
		"buffers", len(p.buffers), "textures", len(p.textures))
}

// Replay recreates every retained resource on the restored device.
// Versions and refcounts survive, so callers holding references see
// the same pool contents they had before the loss.
func (p *Pool) Replay() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.buffers {
		h, err := p.dev.CreateBuffer(backend.BufferDescriptor{
			Label:   fmt.Sprintf("geom%d.%s", key.geom, key.attr),
			Kind:    e.kind,
			Size:    e.size,
			Dynamic: e.dynamic,
		})
		if err != nil {
			return fmt.Errorf("resource: replay buffer geom%d.%s: %w", key.geom, key.attr, err)
		}
		if err := p.dev.WriteBuffer(h, 0, e.data); err != nil {
			return err
		}
		p.stats.BytesUploaded += uint64(len(e.data))
		e.handle = h
		e.valid = true
	}
	for id, e := range p.textures {
		h, err := p.dev.CreateTexture(e.desc)
		if err != nil {
			return fmt.Errorf("resource: replay texture %d: %w", id, err)
		}
		if err := p.dev.WriteTexture(h, e.pixels); err != nil {
			return err
		}
		p.stats.BytesUploaded += uint64(len(e.pixels))
		e.handle = h
		e.valid = true
	}
	orbit.Logger().Info("resource: pool replayed",
		"buffers", len(p.buffers), "textures", len(p.textures))
	return nil
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Buffers = len(p.buffers)
	s.Textures = len(p.textures)
	return s
}

func floatBytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, f := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func indexBytes(data []uint32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}
