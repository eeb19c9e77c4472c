// Package orbit is a retained-mode 3D scene graph and renderer core.
//
// orbit provides the machinery between a scene description and GPU command
// submission: hierarchical transforms with lazy world-matrix updates, frustum
// culling, render-list construction and sorting, a version-tracked GPU
// resource pool, a feature-keyed shader program cache, a redundant-state
// eliding tracker, and transparent recovery from device loss.
//
// The root package holds cross-cutting concerns only. The domain lives in
// the subpackages:
//
//   - scene: arena-indexed transform graph, geometry, materials, drawables
//   - cull: view-frustum plane tests against bounding volumes
//   - render: frame driver, render queues, state tracker, loss monitor
//   - render/resource: GPU buffer/texture/target pool with loss replay
//   - render/program: compiled shader program cache
//   - backend: device abstraction, registry, and the headless null device
//   - backend/wgpu: native device on gogpu/wgpu
//
// Rendering is single-threaded and frame-driven: one render call per frame
// from the host's refresh callback, returning once commands are submitted.
// Linear algebra comes from github.com/go-gl/mathgl/mgl32; shading-language
// source is treated as opaque text handed to the device's compiler.
package orbit
