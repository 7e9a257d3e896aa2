package core

import "github.com/go-gl/mathgl/mgl32"

// DrawMetadata flags.
const (
	FlagVisible       uint32 = 1 << 0
	FlagSkipFrustum   uint32 = 1 << 1
	FlagAlwaysVisible uint32 = 1 << 2
	FlagShadowCaster  uint32 = 1 << 3
)

// DefaultIndexCount is the fallback draw size for objects whose mesh has not
// been generated yet: one unit cube, 12 triangles. Avoids issuing a zero-size
// or garbage draw.
const DefaultIndexCount uint32 = 36

// DrawMetadata is one record per meshed object, produced by the meshing
// finalize step and consumed by the culling kernel. Mirrors the GPU-side
// layout (sphere, LOD range, draw range, flags).
type DrawMetadata struct {
	// Center/Radius describe the world-space bounding sphere.
	Center mgl32.Vec3
	Radius float32

	// LODMinDist/LODMaxDist bound the distance band this mesh is meant for.
	LODMinDist float32
	LODMaxDist float32

	// IndexCount, FirstIndex and BaseVertex locate the mesh in the shared
	// index/vertex buffers. IndexCount 0 means no mesh has been generated.
	IndexCount uint32
	FirstIndex uint32
	BaseVertex int32

	Flags uint32
}

// IndirectCommand matches the GPU draw-indexed-indirect layout consumed
// directly by the draw call.
type IndirectCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// CullStats are the per-category counters the culling kernel maintains.
// Reset to zero at the start of every culling pass.
type CullStats struct {
	Tested           uint32
	FrustumRejected  uint32
	DistanceRejected uint32
	Drawn            uint32
	Overflowed       uint32
}

// Vertex is one meshing output vertex: position, outward normal, material
// color and a combined light/ambient-occlusion scalar in [0,1].
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Color    mgl32.Vec4
	Shade    float32
}
