// Package shaders embeds the WGSL sources for the compute kernels and the
// chunk render pass. The compute shaders mirror the reference kernels in the
// kernel package bit for bit; any change here must be made there as well.
package shaders

import (
	_ "embed"
)

//go:embed terrain_generation.wgsl
var TerrainGenerationWGSL string

//go:embed mesh_chunks.wgsl
var MeshChunksWGSL string

//go:embed gpu_culling.wgsl
var CullingWGSL string

//go:embed draw_chunks.wgsl
var DrawChunksWGSL string
