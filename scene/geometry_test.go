package scene

import "testing"

func quadGeometry() *Geometry {
	g := NewGeometry()
	g.SetAttribute(AttribPosition, Attribute{ItemSize: 3, Data: []float32{
		-1, -1, 0,
		1, -1, 0,
		1, 1, 0,
		-1, 1, 0,
	}})
	g.SetAttribute(AttribUV, Attribute{ItemSize: 2, Data: []float32{
		0, 0, 1, 0, 1, 1, 0, 1,
	}})
	g.SetIndex([]uint32{0, 1, 2, 0, 2, 3})
	return g
}

func TestGeometryCounts(t *testing.T) {
	g := quadGeometry()
	if got := g.VertexCount(); got != 4 {
		t.Errorf("VertexCount = %d, want 4", got)
	}
	if got := g.DrawCount(); got != 6 {
		t.Errorf("DrawCount = %d, want 6 (indexed)", got)
	}
}

func TestGeometryVersionBumps(t *testing.T) {
	g := quadGeometry()
	v := g.Version()
	g.SetAttribute(AttribNormal, Attribute{ItemSize: 3, Data: make([]float32, 12)})
	if g.Version() == v {
		t.Error("SetAttribute did not bump version")
	}
	v = g.Version()
	g.SetIndex([]uint32{0, 1, 2})
	if g.Version() == v {
		t.Error("SetIndex did not bump version")
	}
}

func TestGeometryRejectsBadItemSize(t *testing.T) {
	g := NewGeometry()
	for _, size := range []int{0, 5, -1} {
		g.SetAttribute("bad", Attribute{ItemSize: size, Data: []float32{1}})
		if _, ok := g.Attribute("bad"); ok {
			t.Errorf("attribute with ItemSize %d was accepted", size)
		}
	}
}

func TestGeometryGroups(t *testing.T) {
	g := quadGeometry()

	// No explicit groups: one implicit full-range group.
	groups := g.Groups()
	if len(groups) != 1 {
		t.Fatalf("implicit Groups = %v, want one", groups)
	}
	if groups[0].Start != 0 || groups[0].Count != 6 || groups[0].MaterialIndex != 0 {
		t.Errorf("implicit group = %+v, want {0 6 0}", groups[0])
	}

	g.AddGroup(0, 3, 0)
	g.AddGroup(3, 3, 1)
	groups = g.Groups()
	if len(groups) != 2 {
		t.Fatalf("Groups = %v, want two", groups)
	}
	if groups[1].MaterialIndex != 1 {
		t.Errorf("group material = %d, want 1", groups[1].MaterialIndex)
	}
}

func TestDrawableBounds(t *testing.T) {
	g := quadGeometry()
	d := NewDrawable(g, NewMaterial(MaterialBasic))

	sphere, box := d.Bounds()
	if box.Min.X() != -1 || box.Max.Y() != 1 {
		t.Errorf("box = %+v, want [-1,1] extents", box)
	}
	if sphere.Radius <= 0 {
		t.Errorf("sphere radius = %v, want > 0", sphere.Radius)
	}

	// Mutating the geometry refreshes the cached bounds.
	g.SetAttribute(AttribPosition, Attribute{ItemSize: 3, Data: []float32{
		-2, 0, 0, 2, 0, 0,
	}})
	_, box = d.Bounds()
	if box.Min.X() != -2 || box.Max.X() != 2 {
		t.Errorf("box after mutation = %+v, want [-2,2] in X", box)
	}
}

func TestMaterialForFallsBack(t *testing.T) {
	g := quadGeometry()
	g.AddGroup(0, 3, 0)
	g.AddGroup(3, 3, 7) // out of range

	m0 := NewMaterial(MaterialBasic)
	d := NewDrawable(g, m0)
	groups := g.Groups()
	if got := d.MaterialFor(groups[1]); got != m0 {
		t.Error("out-of-range material index did not fall back to slot 0")
	}
}

func TestFeaturesIgnoreUniformOnlyFields(t *testing.T) {
	a := NewMaterial(MaterialStandard)
	b := NewMaterial(MaterialStandard)
	b.Color = [4]float32{1, 0, 0, 1}
	b.Roughness = 0.25
	b.Touch()
	if a.Features() != b.Features() {
		t.Error("color and scalar changes must not change Features")
	}

	b.SetTexture(SlotColor, NewTexture(1, 1, []byte{255, 255, 255, 255}))
	if a.Features() == b.Features() {
		t.Error("binding a color map must change Features")
	}
}
