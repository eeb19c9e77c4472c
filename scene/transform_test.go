package scene

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func matNear(t *testing.T, got, want mgl32.Mat4, label string) {
	t.Helper()
	const eps = 1e-5
	for i := 0; i < 16; i++ {
		if diff := math.Abs(float64(got[i] - want[i])); diff > eps {
			t.Fatalf("%s: matrix differs at [%d]: got %v want %v", label, i, got, want)
		}
	}
}

func TestWorldMatrixChain(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	b := s.Add(a, "b")
	c := s.Add(b, "c")

	s.SetPosition(a, mgl32.Vec3{1, 0, 0})
	s.SetRotation(b, mgl32.QuatRotate(float32(math.Pi/2), mgl32.Vec3{0, 1, 0}))
	s.SetScale(c, mgl32.Vec3{2, 2, 2})

	want := s.LocalMatrix(a).Mul4(s.LocalMatrix(b)).Mul4(s.LocalMatrix(c))
	matNear(t, s.WorldMatrix(c), want, "world(c)")
}

func TestWorldMatrixLazyRecompute(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	b := s.Add(a, "b")

	s.SetPosition(a, mgl32.Vec3{1, 2, 3})
	first := s.WorldMatrix(b)

	// Moving the parent must flow into the child's next query even
	// though the child was never touched.
	s.SetPosition(a, mgl32.Vec3{-1, -2, -3})
	second := s.WorldMatrix(b)
	if first == second {
		t.Fatal("child world matrix did not pick up parent movement")
	}
	want := mgl32.Translate3D(-1, -2, -3)
	matNear(t, second, want, "world(b)")
}

func TestWorldMatrixQueryOrderIndependent(t *testing.T) {
	build := func() (*Scene, NodeID, NodeID) {
		s := NewScene()
		p := s.Add(s.Root(), "p")
		q := s.Add(p, "q")
		s.SetPosition(p, mgl32.Vec3{3, 0, 0})
		s.SetRotation(p, mgl32.QuatRotate(0.5, mgl32.Vec3{0, 0, 1}))
		s.SetPosition(q, mgl32.Vec3{0, 4, 0})
		return s, p, q
	}

	// Child first.
	s1, _, q1 := build()
	childFirst := s1.WorldMatrix(q1)

	// Parent first.
	s2, p2, q2 := build()
	_ = s2.WorldMatrix(p2)
	parentFirst := s2.WorldMatrix(q2)

	matNear(t, childFirst, parentFirst, "query order")
}

func TestUpdateWorldMatricesForce(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	s.SetPosition(a, mgl32.Vec3{5, 0, 0})
	s.UpdateWorldMatrices(false)

	got := s.WorldPosition(a)
	if !vecNear(got, mgl32.Vec3{5, 0, 0}) {
		t.Errorf("WorldPosition = %v, want {5 0 0}", got)
	}

	s.UpdateWorldMatrices(true)
	matNear(t, s.WorldMatrix(a), mgl32.Translate3D(5, 0, 0), "forced update")
}

func TestLocalMatrixTRS(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	s.SetPosition(a, mgl32.Vec3{1, 2, 3})
	s.SetScale(a, mgl32.Vec3{2, 2, 2})

	// T * R * S applied to origin lands on the translation.
	origin := s.LocalMatrix(a).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !vecNear(origin.Vec3(), mgl32.Vec3{1, 2, 3}) {
		t.Errorf("local * origin = %v, want translation", origin)
	}

	// A unit X point picks up the scale before the translation.
	px := s.LocalMatrix(a).Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	if !vecNear(px.Vec3(), mgl32.Vec3{3, 2, 3}) {
		t.Errorf("local * unitX = %v, want {3 2 3}", px)
	}
}
