// Package core holds the shared data model of the voxel pipeline: packed
// voxels, Morton addressing, camera/frustum math, and the draw records
// exchanged between the meshing and culling stages.
package core

import (
	"fmt"

	"github.com/gridfire/gridfire"
)

// mortonBits is the supported bit width per axis for world-space codes.
const mortonBits = 21

// chunkBits is the bit width per axis for chunk-local codes (ChunkSize = 32).
const chunkBits = 5

// Codec maps 3D integer coordinates onto flat buffer offsets using
// bit-interleaved (Morton) order, so spatially adjacent voxels land on nearby
// offsets. Pure value type, no state beyond the domain bounds.
type Codec struct {
	W, H, D uint32
}

func NewCodec(w, h, d uint32) Codec {
	return Codec{W: w, H: h, D: d}
}

// Encode interleaves the bits of x, y and z into a single Morton code.
// Out-of-domain input is a programming error and is reported, never clamped.
func (c Codec) Encode(x, y, z uint32) (uint64, error) {
	if x >= c.W || y >= c.H || z >= c.D {
		return 0, fmt.Errorf("%w: (%d,%d,%d) not in %dx%dx%d",
			gridfire.ErrInvalidCoordinate, x, y, z, c.W, c.H, c.D)
	}
	return spreadBits(x) | spreadBits(y)<<1 | spreadBits(z)<<2, nil
}

// Decode is the inverse of Encode. Decode(Encode(p)) == p for every p inside
// the domain.
func (c Codec) Decode(code uint64) (x, y, z uint32) {
	return compactBits(code), compactBits(code >> 1), compactBits(code >> 2)
}

// spreadBits places each of the low 21 bits of v at every third bit position.
func spreadBits(v uint32) uint64 {
	x := uint64(v) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

// compactBits gathers every third bit back into a 21-bit integer.
func compactBits(v uint64) uint32 {
	x := v & 0x1249249249249249
	x = (x | x>>2) & 0x10c30c30c30c30c3
	x = (x | x>>4) & 0x100f00f00f00f00f
	x = (x | x>>8) & 0x1f0000ff0000ff
	x = (x | x>>16) & 0x1f00000000ffff
	x = (x | x>>32) & 0x1fffff
	return uint32(x)
}

// EncodeLocal maps a chunk-local coordinate in [0,32)^3 onto a dense offset
// in [0, VoxelsPerChunk). Because the chunk edge is a power of two the
// interleaved code is a bijection, so a chunk's voxels occupy a contiguous,
// cache-coherent Morton-ordered block.
func EncodeLocal(x, y, z uint32) (uint32, error) {
	if x >= gridfire.ChunkSize || y >= gridfire.ChunkSize || z >= gridfire.ChunkSize {
		return 0, fmt.Errorf("%w: local (%d,%d,%d) not in %d^3",
			gridfire.ErrInvalidCoordinate, x, y, z, gridfire.ChunkSize)
	}
	var m uint32
	for i := uint(0); i < chunkBits; i++ {
		m |= (x >> i & 1) << (i * 3)
		m |= (y >> i & 1) << (i*3 + 1)
		m |= (z >> i & 1) << (i*3 + 2)
	}
	return m, nil
}

// DecodeLocal is the inverse of EncodeLocal.
func DecodeLocal(m uint32) (x, y, z uint32) {
	for i := uint(0); i < chunkBits; i++ {
		x |= (m >> (i * 3) & 1) << i
		y |= (m >> (i*3 + 1) & 1) << i
		z |= (m >> (i*3 + 2) & 1) << i
	}
	return
}
