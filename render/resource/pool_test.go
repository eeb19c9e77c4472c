package resource

import (
	"bytes"
	"testing"

	"github.com/gogpu/orbit/backend"
	"github.com/gogpu/orbit/scene"
)

func poolFixture(t *testing.T) (*Pool, *backend.NullDevice) {
	t.Helper()
	dev := backend.NewNullDevice()
	if err := dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewPool(dev), dev
}

func triangleGeometry() *scene.Geometry {
	g := scene.NewGeometry()
	g.SetAttribute(scene.AttribPosition, scene.Attribute{
		ItemSize: 3,
		Data:     []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
	})
	g.SetIndex([]uint32{0, 1, 2})
	return g
}

func TestAcquireAttributeIdempotent(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()

	h1, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	writes := dev.BufferWrites()
	h2, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if h1 != h2 {
		t.Errorf("handles differ: %d vs %d", h1, h2)
	}
	if dev.BufferWrites() != writes {
		t.Errorf("second acquire re-uploaded: %d writes, want %d", dev.BufferWrites(), writes)
	}
	s := p.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
}

func TestAcquireAttributeMissing(t *testing.T) {
	p, _ := poolFixture(t)
	g := triangleGeometry()
	if _, err := p.AcquireAttribute(g, scene.AttribNormal); err == nil {
		t.Error("acquire of absent attribute succeeded")
	}
}

func TestVersionBumpUpdatesInPlace(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()

	h1, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Same size, new contents: the handle must survive.
	g.SetAttribute(scene.AttribPosition, scene.Attribute{
		ItemSize: 3,
		Data:     []float32{0, 0, 0, 2, 0, 0, 0, 2, 0},
	})
	h2, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if h1 != h2 {
		t.Errorf("in-place update changed handle: %d vs %d", h1, h2)
	}
	if s := p.Stats(); s.Updates != 1 {
		t.Errorf("updates = %d, want 1", s.Updates)
	}

	got := make([]byte, 9*4)
	if err := dev.ReadBuffer(h2, 0, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	want := floatBytes([]float32{0, 0, 0, 2, 0, 0, 0, 2, 0})
	if !bytes.Equal(got, want) {
		t.Error("device buffer does not hold updated data")
	}
}

func TestVersionBumpGrowthRecreates(t *testing.T) {
	p, _ := poolFixture(t)
	g := triangleGeometry()

	h1, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Larger data cannot update in place.
	g.SetAttribute(scene.AttribPosition, scene.Attribute{
		ItemSize: 3,
		Data:     make([]float32, 12),
	})
	h2, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if h1 == h2 {
		t.Error("grown buffer kept its old handle")
	}
	if s := p.Stats(); s.DeferredFrees != 1 {
		t.Errorf("deferred frees = %d, want 1", s.DeferredFrees)
	}
}

func TestAcquireIndexRoundTrip(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()

	h, err := p.AcquireIndex(g)
	if err != nil {
		t.Fatalf("AcquireIndex: %v", err)
	}
	got := make([]byte, 3*4)
	if err := dev.ReadBuffer(h, 0, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if !bytes.Equal(got, indexBytes([]uint32{0, 1, 2})) {
		t.Error("index buffer contents wrong")
	}
}

func TestAcquireTexture(t *testing.T) {
	p, dev := poolFixture(t)
	tex := scene.NewTexture(2, 2, make([]byte, 16))

	h1, err := p.AcquireTexture(tex)
	if err != nil {
		t.Fatalf("AcquireTexture: %v", err)
	}
	h2, err := p.AcquireTexture(tex)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if h1 != h2 {
		t.Errorf("handles differ: %d vs %d", h1, h2)
	}
	if dev.TextureWrites() != 1 {
		t.Errorf("texture writes = %d, want 1", dev.TextureWrites())
	}

	px := make([]byte, 16)
	px[0] = 0xff
	tex.SetPixels(px)
	if _, err := p.AcquireTexture(tex); err != nil {
		t.Fatalf("acquire after SetPixels: %v", err)
	}
	if dev.TextureWrites() != 2 {
		t.Errorf("texture writes after bump = %d, want 2", dev.TextureWrites())
	}
}

func TestDeferredFreeWaitsFreeLagFrames(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()

	h, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.ReleaseGeometry(g)

	// The handle must stay readable until the deferral window elapses.
	probe := make([]byte, 4)
	for i := 0; i < freeLag-1; i++ {
		p.BeginFrame()
		if err := dev.ReadBuffer(h, 0, probe); err != nil {
			t.Fatalf("handle destroyed after %d frames: %v", i+1, err)
		}
	}
	p.BeginFrame()
	if err := dev.ReadBuffer(h, 0, probe); err == nil {
		t.Error("handle still alive past the deferral window")
	}
}

func TestRepeatedAcquireSingleReference(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()

	// Per-draw re-acquires share the first acquire's reference.
	var h backend.BufferHandle
	for i := 0; i < 5; i++ {
		var err error
		h, err = p.AcquireAttribute(g, scene.AttribPosition)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if _, err := p.AcquireIndex(g); err != nil {
			t.Fatalf("acquire index %d: %v", i, err)
		}
		p.BeginFrame()
	}

	p.ReleaseGeometry(g)
	if got := p.Stats().DeferredFrees; got != 2 {
		t.Fatalf("deferred frees = %d, want 2", got)
	}
	for i := 0; i < freeLag; i++ {
		p.BeginFrame()
	}
	probe := make([]byte, 4)
	if err := dev.ReadBuffer(h, 0, probe); err == nil {
		t.Error("buffer still alive after release and deferral window")
	}
	if got := p.Stats().Buffers; got != 0 {
		t.Errorf("resident buffers = %d, want 0", got)
	}
}

func TestRetainSurvivesOneRelease(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()

	h, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.RetainGeometry(g)

	p.ReleaseGeometry(g)
	for i := 0; i < freeLag; i++ {
		p.BeginFrame()
	}
	probe := make([]byte, 4)
	if err := dev.ReadBuffer(h, 0, probe); err != nil {
		t.Fatalf("buffer freed while still retained: %v", err)
	}

	p.ReleaseGeometry(g)
	for i := 0; i < freeLag; i++ {
		p.BeginFrame()
	}
	if err := dev.ReadBuffer(h, 0, probe); err == nil {
		t.Error("buffer still alive after final release")
	}
}

func TestMarkDirtyFlushCoalesces(t *testing.T) {
	p, dev := poolFixture(t)
	g := scene.NewGeometry()
	data := make([]float32, 16)
	g.SetAttribute(scene.AttribPosition, scene.Attribute{
		ItemSize: 4,
		Data:     data,
		Usage:    scene.UsageDynamic,
	})

	h, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	writes := dev.BufferWrites()

	data[0], data[1], data[2] = 5, 6, 7
	p.MarkDirty(g, scene.AttribPosition, Range{Off: 0, Len: 8})
	p.MarkDirty(g, scene.AttribPosition, Range{Off: 4, Len: 8})
	if err := p.Flush(g); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := dev.BufferWrites() - writes; got != 1 {
		t.Errorf("overlapping ranges produced %d writes, want 1", got)
	}

	got := make([]byte, 12)
	if err := dev.ReadBuffer(h, 0, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if !bytes.Equal(got, floatBytes([]float32{5, 6, 7})) {
		t.Error("flushed bytes wrong")
	}
}

func TestFlushSkipsOutOfBoundsRange(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()
	if _, err := p.AcquireAttribute(g, scene.AttribPosition); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	writes := dev.BufferWrites()

	p.MarkDirty(g, scene.AttribPosition, Range{Off: 1 << 20, Len: 64})
	if err := p.Flush(g); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if dev.BufferWrites() != writes {
		t.Error("out-of-bounds range reached the device")
	}
}

func TestMarkLostReplay(t *testing.T) {
	p, dev := poolFixture(t)
	g := triangleGeometry()
	tex := scene.NewTexture(1, 1, []byte{1, 2, 3, 4})

	if _, err := p.AcquireAttribute(g, scene.AttribPosition); err != nil {
		t.Fatalf("acquire attribute: %v", err)
	}
	if _, err := p.AcquireIndex(g); err != nil {
		t.Fatalf("acquire index: %v", err)
	}
	if _, err := p.AcquireTexture(tex); err != nil {
		t.Fatalf("acquire texture: %v", err)
	}

	dev.SimulateLoss()
	p.MarkLost()
	dev.SimulateRestore()
	if err := p.Replay(); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	// The replayed buffer must hold the retained bytes.
	h, err := p.AcquireAttribute(g, scene.AttribPosition)
	if err != nil {
		t.Fatalf("acquire after replay: %v", err)
	}
	got := make([]byte, 9*4)
	if err := dev.ReadBuffer(h, 0, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if !bytes.Equal(got, floatBytes([]float32{0, 0, 0, 1, 0, 0, 0, 1, 0})) {
		t.Error("replayed buffer contents wrong")
	}
	s := p.Stats()
	if s.Buffers != 2 || s.Textures != 1 {
		t.Errorf("pool holds %d buffers, %d textures after replay, want 2, 1",
			s.Buffers, s.Textures)
	}
}
