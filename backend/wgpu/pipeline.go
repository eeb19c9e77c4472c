package wgpu

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/orbit/backend"
)

// pipelineKey captures everything that selects a distinct render
// pipeline for one program.
type pipelineKey struct {
	program backend.ProgramHandle
	blend   backend.BlendMode
	depth   backend.DepthState
	cull    backend.CullFace
	format  gputypes.TextureFormat
	hasD    bool
}

func (k pipelineKey) hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%v|%d|%d|%v", k.program, k.blend, k.depth, k.cull, k.format, k.hasD)
	return h.Sum64()
}

// pipelineCache builds hal render pipelines on demand and reuses them
// by key. Lookups double-check under the write lock so concurrent
// misses on the same key build only once.
type pipelineCache struct {
	mu        sync.RWMutex
	dev       hal.Device
	pipelines map[uint64]hal.RenderPipeline

	hits   uint64
	misses uint64
}

func newPipelineCache(dev hal.Device) *pipelineCache {
	return &pipelineCache{dev: dev, pipelines: make(map[uint64]hal.RenderPipeline)}
}

func (c *pipelineCache) get(key pipelineKey, prog *compiledProgram) (hal.RenderPipeline, error) {
	h := key.hash()

	c.mu.RLock()
	if p, ok := c.pipelines[h]; ok {
		c.mu.RUnlock()
		c.hits++
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pipelines[h]; ok {
		c.hits++
		return p, nil
	}
	c.misses++

	p, err := c.build(key, prog)
	if err != nil {
		return nil, err
	}
	c.pipelines[h] = p
	return p, nil
}

func (c *pipelineCache) build(key pipelineKey, prog *compiledProgram) (hal.RenderPipeline, error) {
	target := gputypes.ColorTargetState{
		Format:    key.format,
		WriteMask: gputypes.ColorWriteMaskAll,
	}
	switch key.blend {
	case backend.BlendAlpha:
		blend := gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
		}
		target.Blend = &blend
	case backend.BlendAdditive:
		blend := gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
		target.Blend = &blend
	case backend.BlendPremultiplied:
		blend := gputypes.BlendStatePremultiplied()
		target.Blend = &blend
	}

	cullMode := gputypes.CullModeNone
	switch key.cull {
	case backend.CullBack:
		cullMode = gputypes.CullModeBack
	case backend.CullFront:
		cullMode = gputypes.CullModeFront
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s-%016x", prog.label, key.hash()),
		Layout: prog.pipeLayout,
		Vertex: hal.VertexState{
			Module:     prog.vertex,
			EntryPoint: "vs_main",
			Buffers:    prog.vertexLayouts(),
		},
		Fragment: &hal.FragmentState{
			Module:     prog.fragment,
			EntryPoint: "fs_main",
			Targets:    []gputypes.ColorTargetState{target},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: cullMode,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if key.hasD {
		compare := key.depth.Compare
		if !key.depth.Test {
			compare = gputypes.CompareFunctionAlways
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: key.depth.Write,
			DepthCompare:      compare,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilReadMask:  0x00,
			StencilWriteMask: 0x00,
		}
	}

	p, err := c.dev.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("create pipeline %s: %w", desc.Label, err)
	}
	return p, nil
}

func (c *pipelineCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, p := range c.pipelines {
		c.dev.DestroyRenderPipeline(p)
		delete(c.pipelines, h)
	}
}
