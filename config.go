package gridfire

import "fmt"

// Config fixes the sizes of every GPU-resident buffer up front. All pipeline
// stages share one Config for the lifetime of the world; resizing means
// tearing the pipeline down and rebuilding it.
type Config struct {
	// World extent in chunks per axis. The addressable domain is
	// WorldChunks*ChunkSize voxels per axis.
	WorldChunksX int
	WorldChunksY int
	WorldChunksZ int

	// PoolSlots bounds how many chunks are resident at once. Must be much
	// smaller than the addressable volume; streaming evicts the rest.
	PoolSlots int

	// MaxVerticesPerChunk / MaxIndicesPerChunk cap the shared mesh output
	// buffers per slot. Worst case for a 32^3 checkerboard is far above any
	// real terrain; these defaults cover everything the demo generator emits.
	MaxVerticesPerChunk int
	MaxIndicesPerChunk  int

	// MaxDrawCommands caps the indirect-command buffer.
	MaxDrawCommands int

	// MaxViewDistance in world units, used by distance culling.
	MaxViewDistance float32

	// Seed feeds the generation kernel.
	Seed uint32
}

// ChunkSize is the fixed cubic chunk edge in voxels. The chunk-local Morton
// codec and the WGSL kernels both hard-code it.
const ChunkSize = 32

// VoxelsPerChunk is ChunkSize cubed.
const VoxelsPerChunk = ChunkSize * ChunkSize * ChunkSize

func DefaultConfig() Config {
	return Config{
		WorldChunksX:        512,
		WorldChunksY:        16,
		WorldChunksZ:        512,
		PoolSlots:           343, // 7^3, view distance 3
		MaxVerticesPerChunk: 98304,
		MaxIndicesPerChunk:  147456,
		MaxDrawCommands:     4096,
		MaxViewDistance:     512,
		Seed:                12345,
	}
}

func (c Config) Validate() error {
	if c.WorldChunksX <= 0 || c.WorldChunksY <= 0 || c.WorldChunksZ <= 0 {
		return fmt.Errorf("world extent must be positive, got %dx%dx%d",
			c.WorldChunksX, c.WorldChunksY, c.WorldChunksZ)
	}
	const maxAxis = 1 << 16 // 21 Morton bits per axis minus 5 chunk-local bits
	if c.WorldChunksX > maxAxis || c.WorldChunksY > maxAxis || c.WorldChunksZ > maxAxis {
		return fmt.Errorf("world extent %dx%dx%d exceeds addressable limit %d chunks per axis",
			c.WorldChunksX, c.WorldChunksY, c.WorldChunksZ, maxAxis)
	}
	if c.PoolSlots <= 0 {
		return fmt.Errorf("pool must have at least one slot, got %d", c.PoolSlots)
	}
	if c.MaxVerticesPerChunk < 4 || c.MaxIndicesPerChunk < 6 {
		return fmt.Errorf("mesh buffers too small for a single face: %d vertices, %d indices",
			c.MaxVerticesPerChunk, c.MaxIndicesPerChunk)
	}
	if c.MaxDrawCommands <= 0 {
		return fmt.Errorf("draw command capacity must be positive, got %d", c.MaxDrawCommands)
	}
	if c.MaxViewDistance <= 0 {
		return fmt.Errorf("max view distance must be positive, got %f", c.MaxViewDistance)
	}
	return nil
}
