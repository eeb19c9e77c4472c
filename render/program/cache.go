package program

import (
	"fmt"
	"sync"

	"github.com/gogpu/orbit"
	"github.com/gogpu/orbit/backend"
)

// State is the compile state of one cache entry.
type State uint8

const (
	StateUncompiled State = iota
	StateCompiling
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUncompiled:
		return "uncompiled"
	case StateCompiling:
		return "compiling"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Program is a compiled shader variant held by the cache.
type Program struct {
	Key    Key
	Handle backend.ProgramHandle
	Info   backend.ProgramInfo
}

// UniformLocation returns the location of a named uniform, or -1 when
// the program has no such uniform.
func (p *Program) UniformLocation(name string) int {
	if loc, ok := p.Info.Uniforms[name]; ok {
		return loc
	}
	return -1
}

type entry struct {
	state   State
	program Program
	refs    int
	err     error
	logged  bool
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Entries  int
	Hits     uint64
	Misses   uint64
	Failures uint64
	Evicted  uint64
}

// Cache compiles shader variants on demand and shares them across all
// materials with an equal key.
//
// A failed compile is sticky: the key stays Failed and every further
// Acquire returns the original error without recompiling or logging
// again. Mutating a material into a different variant naturally lands
// on a fresh key.
type Cache struct {
	mu      sync.Mutex
	dev     backend.Device
	entries map[Key]*entry
	stats   Stats
}

// NewCache creates a program cache bound to a device.
func NewCache(dev backend.Device) *Cache {
	return &Cache{dev: dev, entries: make(map[Key]*entry)}
}

// Acquire returns the program for a key, compiling it on first use.
// Each Acquire takes one reference; pair it with Release.
func (c *Cache) Acquire(key Key) (*Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok {
		switch e.state {
		case StateReady:
			e.refs++
			c.stats.Hits++
			return &e.program, nil
		case StateFailed:
			return nil, e.err
		}
	}

	c.stats.Misses++
	e = &entry{state: StateCompiling}
	c.entries[key] = e

	src := Source(key)
	handle, info, err := c.dev.CreateProgram(src)
	if err != nil {
		e.state = StateFailed
		e.err = fmt.Errorf("program %016x (%s): %w", key.Fingerprint(), key.Features.Kind, err)
		if !e.logged {
			e.logged = true
			c.stats.Failures++
			orbit.Logger().Error("program: compile failed",
				"variant", fmt.Sprintf("%016x", key.Fingerprint()),
				"kind", key.Features.Kind.String(),
				"err", err)
		}
		return nil, e.err
	}
	e.state = StateReady
	e.program = Program{Key: key, Handle: handle, Info: info}
	e.refs = 1
	return &e.program, nil
}

// Release drops one reference. The compiled program is destroyed when
// the last reference goes away.
func (c *Cache) Release(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.state != StateReady {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	c.dev.DestroyProgram(e.program.Handle)
	delete(c.entries, key)
	c.stats.Evicted++
}

// StateOf reports the compile state of a key.
func (c *Cache) StateOf(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.state
	}
	return StateUncompiled
}

// Invalidate drops every entry after a device loss. Handles are dead
// on the device side; nothing is destroyed. Failed entries are dropped
// too, since the restored device gets a fresh attempt.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[Key]*entry)
	orbit.Logger().Info("program: cache invalidated", "entries", n)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
