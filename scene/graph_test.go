package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestSceneAddRemove(t *testing.T) {
	s := NewScene()
	if s.NodeCount() != 1 {
		t.Fatalf("new scene NodeCount = %d, want 1 (root)", s.NodeCount())
	}

	a := s.Add(s.Root(), "a")
	b := s.Add(a, "b")
	c := s.Add(b, "c")
	if s.NodeCount() != 4 {
		t.Fatalf("NodeCount = %d, want 4", s.NodeCount())
	}
	if got := s.Parent(c); got != b {
		t.Errorf("Parent(c) = %v, want %v", got, b)
	}

	// Removing b takes c with it.
	s.Remove(b)
	if s.NodeCount() != 2 {
		t.Errorf("NodeCount after Remove = %d, want 2", s.NodeCount())
	}
	if got := s.Children(a); len(got) != 0 {
		t.Errorf("Children(a) = %v, want empty", got)
	}

	// Freed indices are reused.
	d := s.Add(a, "d")
	if s.NodeCount() != 3 {
		t.Errorf("NodeCount after reuse = %d, want 3", s.NodeCount())
	}
	if s.Name(d) != "d" {
		t.Errorf("Name(d) = %q, want %q", s.Name(d), "d")
	}
}

func TestNodeByName(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "hero")
	s.Add(s.Root(), "")

	got, ok := s.NodeByName("hero")
	if !ok || got != a {
		t.Errorf("NodeByName(hero) = %v, %v, want %v, true", got, ok, a)
	}
	if _, ok := s.NodeByName("missing"); ok {
		t.Error("NodeByName(missing) = true, want false")
	}

	s.Remove(a)
	if _, ok := s.NodeByName("hero"); ok {
		t.Error("NodeByName after Remove = true, want false")
	}
}

func TestNodeByID(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "hero")

	got, ok := s.NodeByID(a)
	if !ok || got != a {
		t.Errorf("NodeByID(%v) = %v, %v, want %v, true", a, got, ok, a)
	}
	if _, ok := s.NodeByID(NodeID(99)); ok {
		t.Error("NodeByID of unknown id = true, want false")
	}

	s.Remove(a)
	if _, ok := s.NodeByID(a); ok {
		t.Error("NodeByID after Remove = true, want false")
	}
}

func TestSetParentRejectsCycles(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	b := s.Add(a, "b")
	c := s.Add(b, "c")

	tests := []struct {
		name   string
		child  NodeID
		parent NodeID
	}{
		{"direct self", a, a},
		{"child of own child", a, b},
		{"deep descendant", a, c},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.SetParent(tt.child, tt.parent) {
				t.Fatal("SetParent accepted a cycle")
			}
			// Graph unchanged.
			if got := s.Parent(b); got != a {
				t.Errorf("Parent(b) = %v after rejected reparent, want %v", got, a)
			}
		})
	}
}

func TestSetParentKeepsWorldValid(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	b := s.Add(s.Root(), "b")
	s.SetPosition(a, mgl32.Vec3{10, 0, 0})
	s.SetPosition(b, mgl32.Vec3{0, 5, 0})

	if !s.SetParent(b, a) {
		t.Fatal("SetParent(b, a) rejected")
	}
	got := s.WorldPosition(b)
	want := mgl32.Vec3{10, 5, 0}
	if !vecNear(got, want) {
		t.Errorf("WorldPosition(b) = %v, want %v", got, want)
	}
}

func TestTraverseSkipsSubtree(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	s.Add(a, "a1")
	b := s.Add(s.Root(), "b")
	s.Add(b, "b1")

	var visited []string
	s.Traverse(func(id NodeID) bool {
		visited = append(visited, s.Name(id))
		return s.Name(id) != "a"
	})
	for _, name := range visited {
		if name == "a1" {
			t.Fatalf("visited %v, a1 should have been skipped", visited)
		}
	}
	found := false
	for _, name := range visited {
		if name == "b1" {
			found = true
		}
	}
	if !found {
		t.Errorf("visited %v, want b1 included", visited)
	}
}

func TestLayers(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	if !s.NodeLayers(a).Test(LayerDefault) {
		t.Error("new node not on default layer")
	}
	s.SetLayers(a, Layers(1<<3))
	if s.NodeLayers(a).Test(LayerDefault) {
		t.Error("node still on default layer after SetLayers")
	}
	if !s.NodeLayers(a).Test(Layers(1 << 3)) {
		t.Error("node not on layer 3")
	}
}

func TestAttachDrawable(t *testing.T) {
	s := NewScene()
	a := s.Add(s.Root(), "a")
	g := NewGeometry()
	g.SetAttribute(AttribPosition, Attribute{ItemSize: 3, Data: []float32{0, 0, 0}})
	d := NewDrawable(g, NewMaterial(MaterialBasic))

	s.AttachDrawable(a, d)
	if got := s.Drawables(a); len(got) != 1 || got[0] != d {
		t.Fatalf("Drawables(a) = %v, want [d]", got)
	}
	if d.Node() != a {
		t.Errorf("d.Node() = %v, want %v", d.Node(), a)
	}

	s.Remove(a)
	if got := s.Drawables(a); got != nil {
		t.Errorf("Drawables after Remove = %v, want nil", got)
	}
}

func vecNear(a, b mgl32.Vec3) bool {
	const eps = 1e-5
	d := a.Sub(b)
	return d.Len() < eps
}
