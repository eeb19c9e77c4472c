package render

// FrameStats accumulates across frames. Counters reset only with the
// context.
type FrameStats struct {
	Frames      uint64
	Items       uint64
	Culled      uint64
	Draws       uint64
	Disabled    uint64
	Lights      int
	StateElided uint64
}

// Stats returns a snapshot of the frame counters.
func (c *Context) Stats() FrameStats { return c.stats }
