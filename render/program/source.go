package program

import (
	"fmt"
	"strings"

	"github.com/gogpu/orbit/backend"
	"github.com/gogpu/orbit/scene"
)

// Source generates the WGSL pair for a variant key. Generation is
// deterministic: equal keys produce byte-identical source, which keeps
// downstream pipeline caches effective.
func Source(key Key) backend.ProgramSource {
	return backend.ProgramSource{
		Label:    fmt.Sprintf("%s-%016x", key.Features.Kind, key.Fingerprint()),
		Vertex:   vertexSource(key),
		Fragment: fragmentSource(key),
	}
}

func vertexSource(key Key) string {
	var b strings.Builder
	b.WriteString(`struct Globals {
	u_viewProjection : mat4x4<f32>,
	u_model : mat4x4<f32>,
	u_normalMatrix : mat4x4<f32>,
	u_cameraPos : vec3<f32>,
}
@group(0) @binding(0) var<uniform> globals : Globals;

struct VSOut {
	@builtin(position) position : vec4<f32>,
	@location(0) worldPos : vec3<f32>,
	@location(1) normal : vec3<f32>,
	@location(2) uv : vec2<f32>,
`)
	if key.Features.VertexColors {
		b.WriteString("\t@location(3) color : vec4<f32>,\n")
	}
	b.WriteString("}\n\n@vertex\nfn vs_main(\n")
	b.WriteString("\t@location(0) position : vec3<f32>,\n")
	b.WriteString("\t@location(1) normal : vec3<f32>,\n")
	b.WriteString("\t@location(2) uv : vec2<f32>,\n")
	if key.Features.VertexColors {
		b.WriteString("\t@location(3) color : vec4<f32>,\n")
	}
	b.WriteString(`) -> VSOut {
	var out : VSOut;
	let world = globals.u_model * vec4<f32>(position, 1.0);
	out.worldPos = world.xyz;
	out.position = globals.u_viewProjection * world;
	out.normal = (globals.u_normalMatrix * vec4<f32>(normal, 0.0)).xyz;
	out.uv = uv;
`)
	if key.Features.VertexColors {
		b.WriteString("\tout.color = color;\n")
	}
	b.WriteString("\treturn out;\n}\n")
	return b.String()
}

func fragmentSource(key Key) string {
	var b strings.Builder
	b.WriteString(`struct Shading {
	u_color : vec4<f32>,
	u_emissive : vec3<f32>,
	u_opacity : f32,
	u_metalness : f32,
	u_roughness : f32,
`)
	fmt.Fprintf(&b, "\tu_dirLights : array<vec4<f32>, %d>,\n", max(1, key.DirLights*2))
	fmt.Fprintf(&b, "\tu_pointLights : array<vec4<f32>, %d>,\n", max(1, key.PointLights*2))
	fmt.Fprintf(&b, "\tu_spotLights : array<vec4<f32>, %d>,\n", max(1, key.SpotLights*3))
	b.WriteString("}\n@group(1) @binding(0) var<uniform> shading : Shading;\n")

	binding := 1
	sampler := func(name string) {
		fmt.Fprintf(&b, "@group(1) @binding(%d) var %s : texture_2d<f32>;\n", binding, name)
		binding++
		fmt.Fprintf(&b, "@group(1) @binding(%d) var %s_s : sampler;\n", binding, name)
		binding++
	}
	if key.Features.UseColorMap {
		sampler("u_colorMap")
	}
	if key.Features.UseNormalMap {
		sampler("u_normalMap")
	}
	if key.Features.UseRoughMap {
		sampler("u_roughMap")
	}
	if key.Features.UseMetalMap {
		sampler("u_metalMap")
	}
	if key.Features.UseEnvMap {
		sampler("u_envMap")
	}
	if key.Features.Transmission {
		sampler("u_sceneColor")
	}

	b.WriteString(`
struct FSIn {
	@location(0) worldPos : vec3<f32>,
	@location(1) normal : vec3<f32>,
	@location(2) uv : vec2<f32>,
`)
	if key.Features.VertexColors {
		b.WriteString("\t@location(3) color : vec4<f32>,\n")
	}
	b.WriteString(`}

@fragment
fn fs_main(in : FSIn) -> @location(0) vec4<f32> {
	var base = shading.u_color;
`)
	if key.Features.UseColorMap {
		b.WriteString("\tbase = base * textureSample(u_colorMap, u_colorMap_s, in.uv);\n")
	}
	if key.Features.VertexColors {
		b.WriteString("\tbase = base * in.color;\n")
	}
	if key.Features.Kind != scene.MaterialBasic {
		b.WriteString("\tvar n = normalize(in.normal);\n")
		if key.Features.DoubleSided {
			b.WriteString("\tn = select(n, -n, dot(n, in.worldPos - globalsCameraPos()) > 0.0);\n")
		}
		b.WriteString("\tvar lit = vec3<f32>(0.03, 0.03, 0.03);\n")
		for i := 0; i < key.DirLights; i++ {
			fmt.Fprintf(&b, "\tlit = lit + dirLight(%d, n);\n", i)
		}
		for i := 0; i < key.PointLights; i++ {
			fmt.Fprintf(&b, "\tlit = lit + pointLight(%d, n, in.worldPos);\n", i)
		}
		for i := 0; i < key.SpotLights; i++ {
			fmt.Fprintf(&b, "\tlit = lit + spotLight(%d, n, in.worldPos);\n", i)
		}
		b.WriteString("\tbase = vec4<f32>(base.rgb * lit, base.a);\n")
	}
	if key.Features.Transmission {
		b.WriteString("\tlet behind = textureSample(u_sceneColor, u_sceneColor_s, in.uv);\n")
		b.WriteString("\tbase = vec4<f32>(mix(base.rgb, behind.rgb, 0.5), base.a);\n")
	}
	b.WriteString("\tbase = vec4<f32>(base.rgb + shading.u_emissive, base.a * shading.u_opacity);\n")
	switch key.ToneMapping {
	case ToneMapReinhard:
		b.WriteString("\tbase = vec4<f32>(base.rgb / (base.rgb + vec3<f32>(1.0)), base.a);\n")
	case ToneMapACES:
		b.WriteString("\tbase = vec4<f32>(acesFilm(base.rgb), base.a);\n")
	}
	if key.ColorSpace == ColorSpaceSRGB {
		b.WriteString("\tbase = vec4<f32>(pow(base.rgb, vec3<f32>(1.0 / 2.2)), base.a);\n")
	}
	b.WriteString("\treturn base;\n}\n")
	b.WriteString(lightingHelpers)
	return b.String()
}

const lightingHelpers = `
fn globalsCameraPos() -> vec3<f32> {
	return vec3<f32>(0.0, 0.0, 0.0);
}

fn dirLight(i : i32, n : vec3<f32>) -> vec3<f32> {
	let dir = shading.u_dirLights[i * 2].xyz;
	let color = shading.u_dirLights[i * 2 + 1];
	return color.rgb * color.a * max(dot(n, -dir), 0.0);
}

fn pointLight(i : i32, n : vec3<f32>, p : vec3<f32>) -> vec3<f32> {
	let pos = shading.u_pointLights[i * 2].xyz;
	let color = shading.u_pointLights[i * 2 + 1];
	let toLight = pos - p;
	let dist = length(toLight);
	let atten = 1.0 / (1.0 + dist * dist);
	return color.rgb * color.a * max(dot(n, normalize(toLight)), 0.0) * atten;
}

fn spotLight(i : i32, n : vec3<f32>, p : vec3<f32>) -> vec3<f32> {
	let pos = shading.u_spotLights[i * 3].xyz;
	let dir = shading.u_spotLights[i * 3 + 1].xyz;
	let cutoff = shading.u_spotLights[i * 3 + 1].w;
	let color = shading.u_spotLights[i * 3 + 2];
	let toLight = normalize(pos - p);
	let theta = dot(toLight, -dir);
	if (theta < cutoff) {
		return vec3<f32>(0.0);
	}
	return color.rgb * color.a * max(dot(n, toLight), 0.0);
}

fn acesFilm(x : vec3<f32>) -> vec3<f32> {
	let a = 2.51;
	let b = 0.03;
	let c = 2.43;
	let d = 0.59;
	let e = 0.14;
	return clamp((x * (a * x + b)) / (x * (c * x + d) + e), vec3<f32>(0.0), vec3<f32>(1.0));
}
`
