package render

import (
	"math"
	"testing"

	"github.com/gogpu/orbit/render/program"
	"github.com/gogpu/orbit/scene"
)

func queueItem(mat *scene.Material, key program.Key, order int, depth float32) Item {
	return Item{
		Material:    mat,
		Key:         key,
		RenderOrder: order,
		Depth:       depth,
	}
}

func TestSortOpaqueFrontToBack(t *testing.T) {
	mat := scene.NewMaterial(scene.MaterialBasic)
	key := program.KeyFor(mat, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	for _, depth := range []float32{7, 2, 9, 4, 1} {
		q.Push(queueItem(mat, key, 0, depth))
	}
	q.SortOpaque()

	items := q.Items()
	for i := 1; i < len(items); i++ {
		if items[i].Depth < items[i-1].Depth {
			t.Fatalf("item %d depth %v sorted before %v", i, items[i-1].Depth, items[i].Depth)
		}
	}
}

func TestSortOpaqueRenderOrderWins(t *testing.T) {
	mat := scene.NewMaterial(scene.MaterialBasic)
	key := program.KeyFor(mat, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	q.Push(queueItem(mat, key, 5, 1))
	q.Push(queueItem(mat, key, -1, 100))
	q.Push(queueItem(mat, key, 0, 50))
	q.SortOpaque()

	items := q.Items()
	for i := 1; i < len(items); i++ {
		if items[i].RenderOrder < items[i-1].RenderOrder {
			t.Fatalf("render order %d sorted before %d", items[i-1].RenderOrder, items[i].RenderOrder)
		}
	}
}

func TestSortOpaqueGroupsByVariant(t *testing.T) {
	basic := scene.NewMaterial(scene.MaterialBasic)
	lambert := scene.NewMaterial(scene.MaterialLambert)
	keyA := program.KeyFor(basic, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)
	keyB := program.KeyFor(lambert, 1, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	for i := 0; i < 8; i++ {
		if i%2 == 0 {
			q.Push(queueItem(basic, keyA, 0, float32(i)))
		} else {
			q.Push(queueItem(lambert, keyB, 0, float32(i)))
		}
	}
	q.SortOpaque()

	// Each variant must be contiguous after the sort.
	switches := 0
	items := q.Items()
	for i := 1; i < len(items); i++ {
		if items[i].Key != items[i-1].Key {
			switches++
		}
	}
	if switches != 1 {
		t.Errorf("variant switches = %d, want 1", switches)
	}
}

func TestSortOpaqueMaterialBeforeDepth(t *testing.T) {
	matA := scene.NewMaterial(scene.MaterialBasic)
	matB := scene.NewMaterial(scene.MaterialBasic)
	key := program.KeyFor(matA, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	q.Push(queueItem(matB, key, 0, 1))
	q.Push(queueItem(matA, key, 0, 9))
	q.Push(queueItem(matB, key, 0, 3))
	q.Push(queueItem(matA, key, 0, 2))
	q.SortOpaque()

	items := q.Items()
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if cur.Material.ID() < prev.Material.ID() {
			t.Fatalf("material %d sorted before %d", prev.Material.ID(), cur.Material.ID())
		}
		if cur.Material == prev.Material && cur.Depth < prev.Depth {
			t.Fatalf("same material depths out of order: %v before %v", prev.Depth, cur.Depth)
		}
	}
}

func TestSortTransparentBackToFront(t *testing.T) {
	mat := scene.NewMaterial(scene.MaterialBasic)
	mat.Transparent = true
	key := program.KeyFor(mat, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	for _, depth := range []float32{3, 8, 1, 5, 8, 2} {
		q.Push(queueItem(mat, key, 0, depth))
	}
	q.SortTransparent()

	items := q.Items()
	for i := 1; i < len(items); i++ {
		if items[i].Depth > items[i-1].Depth {
			t.Fatalf("item %d depth %v drawn after %v", i, items[i].Depth, items[i-1].Depth)
		}
	}
}

func TestSortTransparentStableTies(t *testing.T) {
	mat := scene.NewMaterial(scene.MaterialBasic)
	mat.Transparent = true
	key := program.KeyFor(mat, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	nodes := []scene.NodeID{3, 1, 4, 1, 5}
	for _, id := range nodes {
		it := queueItem(mat, key, 0, 2.5)
		it.Node = id
		q.Push(it)
	}
	q.SortTransparent()

	for i, it := range q.Items() {
		if it.Node != nodes[i] {
			t.Fatalf("tie order changed at %d: got node %d, want %d", i, it.Node, nodes[i])
		}
	}
}

func TestPushClampsNaNDepth(t *testing.T) {
	mat := scene.NewMaterial(scene.MaterialBasic)
	key := program.KeyFor(mat, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	q.Push(queueItem(mat, key, 0, float32(math.NaN())))
	if d := q.Items()[0].Depth; d != 0 {
		t.Errorf("NaN depth stored as %v, want 0", d)
	}
}

func TestQueueReset(t *testing.T) {
	mat := scene.NewMaterial(scene.MaterialBasic)
	key := program.KeyFor(mat, 0, 0, 0, 0, program.ToneMapNone, program.ColorSpaceLinear)

	var q Queue
	q.Push(queueItem(mat, key, 0, 1))
	q.Push(queueItem(mat, key, 0, 2))
	q.Reset()
	if q.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", q.Len())
	}
}
