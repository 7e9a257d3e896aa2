// Package gpu runs the pipeline's kernels on a wgpu device: buffer
// management, compute pipeline setup, per-frame pass encoding and the
// indirect render pass. The byte layouts here mirror the structs in
// gpu/shaders; the reference semantics live in the kernel package.
package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/volume"
)

// GPU-side struct strides in bytes. Must match gpu/shaders WGSL structs.
const (
	VertexStride          = 48
	DrawMetadataStride    = 48
	IndirectCommandStride = 20
	MaterialStride        = 48
	CursorStride          = 16
	GenRequestStride      = 16
	MeshRequestStride     = 128
	GenParamsSize         = 16
	MeshParamsSize        = 16
	CullCameraSize        = 128
	CullCountersSize      = 20
)

func putF32(b []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

// PackVoxels serializes voxel storage words for upload.
func PackVoxels(voxels []core.Voxel) []byte {
	buf := make([]byte, len(voxels)*4)
	for i, v := range voxels {
		putU32(buf, i*4, uint32(v))
	}
	return buf
}

// PackPalette serializes the material table.
//
//	base_color: vec4<f32>  -- 16
//	emissive:   vec4<f32>  -- 32
//	opacity:    u32        -- 36
//	pad        x3          -- 48
func PackPalette(p *volume.Palette) []byte {
	buf := make([]byte, p.Len()*MaterialStride)
	for id := 0; id < p.Len(); id++ {
		m := p.Get(uint16(id))
		off := id * MaterialStride
		for c := 0; c < 4; c++ {
			putF32(buf, off+c*4, float32(m.BaseColor[c])/255)
			putF32(buf, off+16+c*4, float32(m.Emissive[c])/255)
		}
		putU32(buf, off+32, m.Opacity)
	}
	return buf
}

// PackGenRequests serializes generation requests: chunk origin in world
// voxels plus the target slot.
func PackGenRequests(requests []kernel.GenRequest) []byte {
	buf := make([]byte, len(requests)*GenRequestStride)
	for i, r := range requests {
		off := i * GenRequestStride
		putU32(buf, off, uint32(int32(r.Coord.X)*32))
		putU32(buf, off+4, uint32(int32(r.Coord.Y)*32))
		putU32(buf, off+8, uint32(int32(r.Coord.Z)*32))
		putU32(buf, off+12, uint32(r.Ref.Slot))
	}
	return buf
}

// PackGenParams serializes the generation uniform.
func PackGenParams(seed uint32, requestCount int) []byte {
	buf := make([]byte, GenParamsSize)
	putU32(buf, 0, seed)
	putU32(buf, 4, uint32(requestCount))
	return buf
}

// PackMeshRequests serializes meshing requests. Each request carries its
// 3x3x3 chunk neighborhood as pool slots so the kernel can resolve face and
// occlusion samples that cross chunk borders; -1 marks chunks that are not
// resident or not generated, which read as unlit air.
func PackMeshRequests(world *volume.WorldBuffer, requests []kernel.MeshRequest) []byte {
	buf := make([]byte, len(requests)*MeshRequestStride)
	for i, r := range requests {
		off := i * MeshRequestStride
		putU32(buf, off, uint32(r.Coord.X*32))
		putU32(buf, off+4, uint32(r.Coord.Y*32))
		putU32(buf, off+8, uint32(r.Coord.Z*32))
		putU32(buf, off+12, uint32(r.Ref.Slot))

		n := 0
		for dz := int32(-1); dz <= 1; dz++ {
			for dy := int32(-1); dy <= 1; dy++ {
				for dx := int32(-1); dx <= 1; dx++ {
					slot := int32(-1)
					c := volume.ChunkCoord{X: r.Coord.X + dx, Y: r.Coord.Y + dy, Z: r.Coord.Z + dz}
					if ref, ok := world.SlotFor(c); ok &&
						world.Metadata(ref.Slot).State == volume.StateGenerated {
						slot = int32(ref.Slot)
					}
					putU32(buf, off+16+n*4, uint32(slot))
					n++
				}
			}
		}
	}
	return buf
}

// PackMeshParams serializes the meshing uniform.
func PackMeshParams(requestCount, maxVertices, maxIndices int, maxViewDistance float32) []byte {
	buf := make([]byte, MeshParamsSize)
	putU32(buf, 0, uint32(requestCount))
	putU32(buf, 4, uint32(maxVertices))
	putU32(buf, 8, uint32(maxIndices))
	putF32(buf, 12, maxViewDistance)
	return buf
}

// PackVertices serializes mesh vertices into the render layout: position
// with the shade scalar in w, then normal and color.
func PackVertices(vertices []core.Vertex) []byte {
	buf := make([]byte, len(vertices)*VertexStride)
	for i, v := range vertices {
		off := i * VertexStride
		putF32(buf, off, v.Position.X())
		putF32(buf, off+4, v.Position.Y())
		putF32(buf, off+8, v.Position.Z())
		putF32(buf, off+12, v.Shade)
		putF32(buf, off+16, v.Normal.X())
		putF32(buf, off+20, v.Normal.Y())
		putF32(buf, off+24, v.Normal.Z())
		for c := 0; c < 4; c++ {
			putF32(buf, off+32+c*4, v.Color[c])
		}
	}
	return buf
}

// PackIndices serializes mesh indices.
func PackIndices(indices []uint32) []byte {
	buf := make([]byte, len(indices)*4)
	for i, idx := range indices {
		putU32(buf, i*4, idx)
	}
	return buf
}

// PackDrawMetadata serializes the draw record table.
func PackDrawMetadata(metadata []core.DrawMetadata) []byte {
	buf := make([]byte, len(metadata)*DrawMetadataStride)
	for i, md := range metadata {
		off := i * DrawMetadataStride
		putF32(buf, off, md.Center.X())
		putF32(buf, off+4, md.Center.Y())
		putF32(buf, off+8, md.Center.Z())
		putF32(buf, off+12, md.Radius)
		putF32(buf, off+16, md.LODMinDist)
		putF32(buf, off+20, md.LODMaxDist)
		putU32(buf, off+24, md.IndexCount)
		putU32(buf, off+28, md.FirstIndex)
		putU32(buf, off+32, uint32(md.BaseVertex))
		putU32(buf, off+36, md.Flags)
	}
	return buf
}

// PackCullCamera serializes the culling uniform: six frustum planes, camera
// position, distance limit and buffer bounds.
func PackCullCamera(cam core.Camera, maxDistance float32, recordCount, capacity int) []byte {
	buf := make([]byte, CullCameraSize)
	for i, p := range cam.Planes {
		for c := 0; c < 4; c++ {
			putF32(buf, i*16+c*4, p[c])
		}
	}
	putF32(buf, 96, cam.Position.X())
	putF32(buf, 100, cam.Position.Y())
	putF32(buf, 104, cam.Position.Z())
	putF32(buf, 112, maxDistance)
	putU32(buf, 116, uint32(recordCount))
	putU32(buf, 120, uint32(capacity))
	putU32(buf, 124, core.DefaultIndexCount)
	return buf
}

// PackIndirectCommands serializes indirect draw commands for upload when the
// compaction ran on the CPU.
func PackIndirectCommands(commands []core.IndirectCommand) []byte {
	buf := make([]byte, len(commands)*IndirectCommandStride)
	for i, cmd := range commands {
		off := i * IndirectCommandStride
		putU32(buf, off, cmd.IndexCount)
		putU32(buf, off+4, cmd.InstanceCount)
		putU32(buf, off+8, cmd.FirstIndex)
		putU32(buf, off+12, uint32(cmd.BaseVertex))
		putU32(buf, off+16, cmd.FirstInstance)
	}
	return buf
}

// FrameUniformSize covers the render pass uniform: view-projection matrix
// plus sun direction.
const FrameUniformSize = 80

// PackFrameUniform serializes the render pass uniform.
func PackFrameUniform(viewProj mgl32.Mat4, sunDir mgl32.Vec4) []byte {
	buf := make([]byte, FrameUniformSize)
	for i := 0; i < 16; i++ {
		putF32(buf, i*4, viewProj[i])
	}
	for c := 0; c < 4; c++ {
		putF32(buf, 64+c*4, sunDir[c])
	}
	return buf
}

// UnpackCullCounters decodes the culling counter readback. The draw count is
// clamped to capacity: the raw atomic keeps advancing past it on overflow.
func UnpackCullCounters(data []byte, capacity int) core.CullStats {
	drawn := binary.LittleEndian.Uint32(data[0:])
	if drawn > uint32(capacity) {
		drawn = uint32(capacity)
	}
	return core.CullStats{
		Tested:           binary.LittleEndian.Uint32(data[4:]),
		FrustumRejected:  binary.LittleEndian.Uint32(data[8:]),
		DistanceRejected: binary.LittleEndian.Uint32(data[12:]),
		Drawn:            drawn,
		Overflowed:       binary.LittleEndian.Uint32(data[16:]),
	}
}
