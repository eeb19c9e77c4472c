package wgpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/orbit/backend"
)

// compiledProgram is one shader pair with its reflected layout.
type compiledProgram struct {
	label    string
	vertex   hal.ShaderModule
	fragment hal.ShaderModule

	globalsLayout hal.BindGroupLayout
	shadingLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout

	vertexSlots  int
	textureCount int
}

// compileWGSL runs a WGSL stage through naga and wraps the SPIR-V in a
// shader module.
func compileWGSL(dev hal.Device, label, source string) (hal.ShaderModule, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", backend.ErrCompileFailed, label, err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	module, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", backend.ErrCompileFailed, label, err)
	}
	return module, nil
}

// vertexSlotCount reflects how many vertex inputs vs_main declares.
func vertexSlotCount(vertexSrc string) int {
	start := strings.Index(vertexSrc, "fn vs_main(")
	if start < 0 {
		return 0
	}
	end := strings.Index(vertexSrc[start:], ")")
	if end < 0 {
		return 0
	}
	return strings.Count(vertexSrc[start:start+end], "@location")
}

// textureBindingCount reflects how many sampled textures the fragment
// stage declares. Each texture has a sampler at the next binding.
func textureBindingCount(fragmentSrc string) int {
	return strings.Count(fragmentSrc, "texture_2d<f32>")
}

func newCompiledProgram(dev hal.Device, src backend.ProgramSource) (*compiledProgram, error) {
	p := &compiledProgram{
		label:        src.Label,
		vertexSlots:  vertexSlotCount(src.Vertex),
		textureCount: textureBindingCount(src.Fragment),
	}
	var err error
	p.vertex, err = compileWGSL(dev, src.Label+".vs", src.Vertex)
	if err != nil {
		return nil, err
	}
	p.fragment, err = compileWGSL(dev, src.Label+".fs", src.Fragment)
	if err != nil {
		return nil, err
	}

	p.globalsLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: src.Label + ".globals",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create globals layout: %w", err)
	}

	shadingEntries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
	}
	for i := 0; i < p.textureCount; i++ {
		shadingEntries = append(shadingEntries,
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(1 + i*2),
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(2 + i*2),
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			})
	}
	p.shadingLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   src.Label + ".shading",
		Entries: shadingEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create shading layout: %w", err)
	}

	p.pipeLayout, err = dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            src.Label + ".layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.globalsLayout, p.shadingLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	return p, nil
}

// Uniform blocks are bound by group, not by GL-style location. The
// table maps block names to their bind group index.
func (p *compiledProgram) info() backend.ProgramInfo {
	return backend.ProgramInfo{Uniforms: map[string]int{
		"globals": 0,
		"shading": 1,
	}}
}

// vertexLayouts returns one buffer layout per declared input. Slot
// formats are fixed: position float32x3, normal float32x3, uv
// float32x2, color float32x4.
func (p *compiledProgram) vertexLayouts() []gputypes.VertexBufferLayout {
	formats := []gputypes.VertexFormat{
		gputypes.VertexFormatFloat32x3,
		gputypes.VertexFormatFloat32x3,
		gputypes.VertexFormatFloat32x2,
		gputypes.VertexFormatFloat32x4,
	}
	strides := []uint64{12, 12, 8, 16}
	n := p.vertexSlots
	if n > len(formats) {
		n = len(formats)
	}
	layouts := make([]gputypes.VertexBufferLayout, n)
	for i := 0; i < n; i++ {
		layouts[i] = gputypes.VertexBufferLayout{
			ArrayStride: strides[i],
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{
					Format:         formats[i],
					Offset:         0,
					ShaderLocation: uint32(i),
				},
			},
		}
	}
	return layouts
}
