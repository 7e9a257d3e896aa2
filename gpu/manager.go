package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/volume"
)

const (
	// HeadroomRequests keeps request buffers from being reallocated every
	// time the batch size wobbles.
	HeadroomRequests = 64 * 1024
)

// BufferManager owns every GPU buffer of the pipeline. Geometry, metadata,
// command and counter buffers are sized once from the Config and never
// resized; request buffers grow with headroom.
type BufferManager struct {
	Device *wgpu.Device

	// World state.
	VoxelBuf   *wgpu.Buffer
	PaletteBuf *wgpu.Buffer

	// Kernel inputs.
	GenRequestBuf  *wgpu.Buffer
	GenParamsBuf   *wgpu.Buffer
	MeshRequestBuf *wgpu.Buffer
	MeshParamsBuf  *wgpu.Buffer
	CameraBuf      *wgpu.Buffer
	FrameBuf       *wgpu.Buffer

	// Kernel outputs, one region per pool slot.
	VertexBuf   *wgpu.Buffer
	IndexBuf    *wgpu.Buffer
	CursorBuf   *wgpu.Buffer
	MetadataBuf *wgpu.Buffer
	CommandBuf  *wgpu.Buffer
	CounterBuf  *wgpu.Buffer

	// Staging buffer for counter readback.
	ReadbackBuf *wgpu.Buffer
}

func NewBufferManager(device *wgpu.Device, cfg gridfire.Config) (*BufferManager, error) {
	m := &BufferManager{Device: device}

	fixed := []struct {
		name  string
		buf   **wgpu.Buffer
		size  uint64
		usage wgpu.BufferUsage
	}{
		{"VoxelBuf", &m.VoxelBuf,
			uint64(cfg.PoolSlots) * gridfire.VoxelsPerChunk * 4,
			wgpu.BufferUsageStorage},
		{"VertexBuf", &m.VertexBuf,
			uint64(cfg.PoolSlots) * uint64(cfg.MaxVerticesPerChunk) * VertexStride,
			wgpu.BufferUsageStorage | wgpu.BufferUsageVertex},
		{"IndexBuf", &m.IndexBuf,
			uint64(cfg.PoolSlots) * uint64(cfg.MaxIndicesPerChunk) * 4,
			wgpu.BufferUsageStorage | wgpu.BufferUsageIndex},
		{"CursorBuf", &m.CursorBuf,
			uint64(cfg.PoolSlots) * CursorStride,
			wgpu.BufferUsageStorage},
		{"MetadataBuf", &m.MetadataBuf,
			uint64(cfg.PoolSlots) * DrawMetadataStride,
			wgpu.BufferUsageStorage},
		{"CommandBuf", &m.CommandBuf,
			uint64(cfg.MaxDrawCommands) * IndirectCommandStride,
			wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect},
		{"CounterBuf", &m.CounterBuf,
			CullCountersSize,
			wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc},
		{"ReadbackBuf", &m.ReadbackBuf,
			CullCountersSize,
			wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst},
		{"CameraBuf", &m.CameraBuf, CullCameraSize, wgpu.BufferUsageUniform},
		{"GenParamsBuf", &m.GenParamsBuf, GenParamsSize, wgpu.BufferUsageUniform},
		{"MeshParamsBuf", &m.MeshParamsBuf, MeshParamsSize, wgpu.BufferUsageUniform},
		{"FrameBuf", &m.FrameBuf, FrameUniformSize, wgpu.BufferUsageUniform},
	}
	for _, f := range fixed {
		buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: f.name,
			Size:  align4(f.size),
			Usage: f.usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, err
		}
		*f.buf = buf
	}
	return m, nil
}

func align4(n uint64) uint64 {
	if n%4 != 0 {
		n += 4 - n%4
	}
	return n
}

// ensureBuffer creates or grows a dynamically sized buffer and uploads data.
// Returns true when the buffer was (re)created, which invalidates bind
// groups referencing it.
func (m *BufferManager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) (bool, error) {
	neededSize := align4(uint64(len(data) + headroom))

	current := *buf
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}
		newBuf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: name,
			Size:  neededSize,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return false, err
		}
		*buf = newBuf
		if len(data) > 0 {
			m.Device.GetQueue().WriteBuffer(*buf, 0, data)
		}
		return true, nil
	}
	if len(data) > 0 {
		m.Device.GetQueue().WriteBuffer(*buf, 0, data)
	}
	return false, nil
}

// UploadPalette writes the material table. Recreates the buffer when the
// palette grew past its allocation.
func (m *BufferManager) UploadPalette(p *volume.Palette) (bool, error) {
	return m.ensureBuffer("PaletteBuf", &m.PaletteBuf, PackPalette(p), wgpu.BufferUsageStorage, 0)
}

// UploadGenRequests writes this frame's generation batch and its uniform.
func (m *BufferManager) UploadGenRequests(requests []kernel.GenRequest, seed uint32) (bool, error) {
	grew, err := m.ensureBuffer("GenRequestBuf", &m.GenRequestBuf,
		PackGenRequests(requests), wgpu.BufferUsageStorage, HeadroomRequests)
	if err != nil {
		return false, err
	}
	m.Device.GetQueue().WriteBuffer(m.GenParamsBuf, 0, PackGenParams(seed, len(requests)))
	return grew, nil
}

// UploadMeshRequests writes this frame's meshing batch and its uniform.
func (m *BufferManager) UploadMeshRequests(world *volume.WorldBuffer, requests []kernel.MeshRequest) (bool, error) {
	grew, err := m.ensureBuffer("MeshRequestBuf", &m.MeshRequestBuf,
		PackMeshRequests(world, requests), wgpu.BufferUsageStorage, HeadroomRequests)
	if err != nil {
		return false, err
	}
	cfg := world.Config()
	m.Device.GetQueue().WriteBuffer(m.MeshParamsBuf, 0,
		PackMeshParams(len(requests), cfg.MaxVerticesPerChunk, cfg.MaxIndicesPerChunk, cfg.MaxViewDistance))
	return grew, nil
}

// UploadCamera writes the culling uniform for this frame.
func (m *BufferManager) UploadCamera(cam core.Camera, maxDistance float32, recordCount, capacity int) {
	m.Device.GetQueue().WriteBuffer(m.CameraBuf, 0,
		PackCullCamera(cam, maxDistance, recordCount, capacity))
}

// UploadSlotVoxels writes one slot's voxel storage, for CPU-generated or
// edited chunks.
func (m *BufferManager) UploadSlotVoxels(slot int, voxels []core.Voxel) {
	offset := uint64(slot) * gridfire.VoxelsPerChunk * 4
	m.Device.GetQueue().WriteBuffer(m.VoxelBuf, offset, PackVoxels(voxels))
}

// UploadSlotMesh writes CPU-meshed geometry into the slot's buffer regions,
// mirroring the layout the meshing kernel would have produced.
func (m *BufferManager) UploadSlotMesh(cfg gridfire.Config, slot int, mesh kernel.ChunkMesh) {
	vOff := uint64(slot) * uint64(cfg.MaxVerticesPerChunk) * VertexStride
	iOff := uint64(slot) * uint64(cfg.MaxIndicesPerChunk) * 4
	if len(mesh.Vertices) > 0 {
		m.Device.GetQueue().WriteBuffer(m.VertexBuf, vOff, PackVertices(mesh.Vertices))
	}
	if len(mesh.Indices) > 0 {
		m.Device.GetQueue().WriteBuffer(m.IndexBuf, iOff, PackIndices(mesh.Indices))
	}
}

// UploadDrawMetadata writes the full draw record table.
func (m *BufferManager) UploadDrawMetadata(metadata []core.DrawMetadata) {
	m.Device.GetQueue().WriteBuffer(m.MetadataBuf, 0, PackDrawMetadata(metadata))
}

// UploadCommands writes CPU-compacted indirect commands. The tail of the
// buffer is zeroed so stale commands from a previous frame cannot draw.
func (m *BufferManager) UploadCommands(commands []core.IndirectCommand, capacity int) {
	full := make([]core.IndirectCommand, capacity)
	copy(full, commands)
	m.Device.GetQueue().WriteBuffer(m.CommandBuf, 0, PackIndirectCommands(full))
}

func (m *BufferManager) Release() {
	for _, buf := range []*wgpu.Buffer{
		m.VoxelBuf, m.PaletteBuf, m.GenRequestBuf, m.GenParamsBuf,
		m.MeshRequestBuf, m.MeshParamsBuf, m.CameraBuf, m.FrameBuf,
		m.VertexBuf, m.IndexBuf, m.CursorBuf, m.MetadataBuf,
		m.CommandBuf, m.CounterBuf, m.ReadbackBuf,
	} {
		if buf != nil {
			buf.Release()
		}
	}
}
