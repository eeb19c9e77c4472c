package render

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/orbit/render/program"
	"github.com/gogpu/orbit/scene"
)

// Item is one draw: a drawable's group with its resolved material
// variant, world matrix, and view depth. Items are value types held in
// pooled slices; the queues reuse their backing arrays across frames.
type Item struct {
	seq      int
	Drawable *scene.Drawable
	Group    scene.Group
	Node     scene.NodeID
	World    mgl32.Mat4
	Material *scene.Material
	Key      program.Key
	keyHash  uint64

	RenderOrder int
	Depth       float32
}

// Queue is an ordered list of draw items.
type Queue struct {
	items []Item
}

// Reset empties the queue while keeping its capacity.
func (q *Queue) Reset() { q.items = q.items[:0] }

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Items returns the queued items in their current order.
func (q *Queue) Items() []Item { return q.items }

// Push appends an item. A NaN depth is clamped to zero so sorting
// stays total.
func (q *Queue) Push(it Item) {
	if math.IsNaN(float64(it.Depth)) {
		it.Depth = 0
	}
	it.seq = len(q.items)
	it.keyHash = it.Key.Fingerprint()
	q.items = append(q.items, it)
}

// SortOpaque orders for state coherence and early depth rejection:
// render order, then program variant, then material, then front to
// back. Full ties fall back to submission order, keeping the queue
// deterministic frame to frame.
func (q *Queue) SortOpaque() {
	slices.SortFunc(q.items, func(a, b Item) int {
		if a.RenderOrder != b.RenderOrder {
			return a.RenderOrder - b.RenderOrder
		}
		if a.keyHash != b.keyHash {
			if a.keyHash < b.keyHash {
				return -1
			}
			return 1
		}
		if a.Material.ID() != b.Material.ID() {
			return int(a.Material.ID()) - int(b.Material.ID())
		}
		if c := cmpFloat(a.Depth, b.Depth); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
}

// SortTransparent orders strictly back to front within each render
// order. Items at equal depth keep their submission order frame to
// frame.
func (q *Queue) SortTransparent() {
	slices.SortFunc(q.items, func(a, b Item) int {
		if a.RenderOrder != b.RenderOrder {
			return a.RenderOrder - b.RenderOrder
		}
		if c := cmpFloat(b.Depth, a.Depth); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
}

func cmpFloat(a, b float32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
