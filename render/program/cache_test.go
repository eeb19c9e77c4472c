package program

import (
	"errors"
	"testing"

	"github.com/gogpu/orbit/backend"
	"github.com/gogpu/orbit/scene"
)

func cacheFixture(t *testing.T) (*Cache, *backend.NullDevice) {
	t.Helper()
	dev := backend.NewNullDevice()
	if err := dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewCache(dev), dev
}

func basicKey() Key {
	m := scene.NewMaterial(scene.MaterialBasic)
	return KeyFor(m, 0, 0, 0, 0, ToneMapNone, ColorSpaceLinear)
}

func TestAcquireSharesEqualKeys(t *testing.T) {
	c, dev := cacheFixture(t)

	// Scalar fields like color change uniforms, not the variant, so two
	// such materials must land on one compiled program.
	m1 := scene.NewMaterial(scene.MaterialLambert)
	m1.Color = [4]float32{1, 0, 0, 1}
	m2 := scene.NewMaterial(scene.MaterialLambert)
	m2.Color = [4]float32{0, 0, 1, 1}

	k1 := KeyFor(m1, 1, 0, 0, 0, ToneMapNone, ColorSpaceLinear)
	k2 := KeyFor(m2, 1, 0, 0, 0, ToneMapNone, ColorSpaceLinear)
	if k1 != k2 {
		t.Fatal("keys differ for uniform-only material changes")
	}

	p1, err := c.Acquire(k1)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	p2, err := c.Acquire(k2)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if p1.Handle != p2.Handle {
		t.Errorf("handles differ: %d vs %d", p1.Handle, p2.Handle)
	}
	if dev.Compiles() != 1 {
		t.Errorf("compiles = %d, want 1", dev.Compiles())
	}
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
}

func TestAcquireDistinctVariants(t *testing.T) {
	c, dev := cacheFixture(t)

	basic := scene.NewMaterial(scene.MaterialBasic)
	standard := scene.NewMaterial(scene.MaterialStandard)
	if _, err := c.Acquire(KeyFor(basic, 0, 0, 0, 0, ToneMapNone, ColorSpaceLinear)); err != nil {
		t.Fatalf("basic: %v", err)
	}
	if _, err := c.Acquire(KeyFor(standard, 2, 1, 0, 0, ToneMapACES, ColorSpaceSRGB)); err != nil {
		t.Fatalf("standard: %v", err)
	}
	if dev.Compiles() != 2 {
		t.Errorf("compiles = %d, want 2", dev.Compiles())
	}
	if s := c.Stats(); s.Entries != 2 {
		t.Errorf("entries = %d, want 2", s.Entries)
	}
}

func TestUniformLocations(t *testing.T) {
	c, _ := cacheFixture(t)
	p, err := c.Acquire(basicKey())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if loc := p.UniformLocation("u_viewProjection"); loc < 0 {
		t.Error("u_viewProjection not found")
	}
	if loc := p.UniformLocation("u_noSuchUniform"); loc != -1 {
		t.Errorf("missing uniform location = %d, want -1", loc)
	}
}

// failingDevice fails every CreateProgram while fail is set.
type failingDevice struct {
	*backend.NullDevice
	fail     bool
	attempts int
}

func (d *failingDevice) CreateProgram(src backend.ProgramSource) (backend.ProgramHandle, backend.ProgramInfo, error) {
	d.attempts++
	if d.fail {
		return 0, backend.ProgramInfo{}, backend.ErrCompileFailed
	}
	return d.NullDevice.CreateProgram(src)
}

func TestFailedCompileIsSticky(t *testing.T) {
	dev := &failingDevice{NullDevice: backend.NewNullDevice(), fail: true}
	if err := dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c := NewCache(dev)
	key := basicKey()

	_, err1 := c.Acquire(key)
	if !errors.Is(err1, backend.ErrCompileFailed) {
		t.Fatalf("first acquire err = %v, want ErrCompileFailed", err1)
	}
	_, err2 := c.Acquire(key)
	if !errors.Is(err2, backend.ErrCompileFailed) {
		t.Fatalf("second acquire err = %v, want ErrCompileFailed", err2)
	}
	if dev.attempts != 1 {
		t.Errorf("compile attempts = %d, want 1 (failure must stick)", dev.attempts)
	}
	if got := c.StateOf(key); got != StateFailed {
		t.Errorf("StateOf = %v, want %v", got, StateFailed)
	}
	if s := c.Stats(); s.Failures != 1 {
		t.Errorf("failures = %d, want 1", s.Failures)
	}
}

func TestInvalidateAllowsRetryAfterFailure(t *testing.T) {
	dev := &failingDevice{NullDevice: backend.NewNullDevice(), fail: true}
	if err := dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c := NewCache(dev)
	key := basicKey()

	if _, err := c.Acquire(key); err == nil {
		t.Fatal("acquire on failing device succeeded")
	}
	c.Invalidate()
	dev.fail = false

	p, err := c.Acquire(key)
	if err != nil {
		t.Fatalf("acquire after Invalidate: %v", err)
	}
	if p.Handle == 0 {
		t.Error("acquired program has zero handle")
	}
}

func TestReleaseDestroysAtZeroRefs(t *testing.T) {
	c, _ := cacheFixture(t)
	key := basicKey()

	if _, err := c.Acquire(key); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := c.Acquire(key); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}

	c.Release(key)
	if got := c.StateOf(key); got != StateReady {
		t.Errorf("StateOf after first release = %v, want %v", got, StateReady)
	}
	c.Release(key)
	if got := c.StateOf(key); got != StateUncompiled {
		t.Errorf("StateOf after last release = %v, want %v", got, StateUncompiled)
	}
	if s := c.Stats(); s.Evicted != 1 {
		t.Errorf("evicted = %d, want 1", s.Evicted)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUncompiled, "uncompiled"},
		{StateCompiling, "compiling"},
		{StateReady, "ready"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
