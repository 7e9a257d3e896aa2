package gpu

import (
	"context"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/volume"
)

const workgroupSize = 64

// lanesPerChunk is one lane per voxel for the generation and meshing grids.
const lanesPerChunk = gridfire.VoxelsPerChunk / workgroupSize

// Compute drives the three kernels on the device. Each kernel stage is
// encoded as its own compute pass; the pass boundary is the barrier that
// orders buffer writes against the next stage's reads.
type Compute struct {
	cfg gridfire.Config
	log gridfire.Logger

	Buffers   *BufferManager
	Pipelines *Pipelines

	genBG   *wgpu.BindGroup
	meshBG0 *wgpu.BindGroup
	meshBG1 *wgpu.BindGroup
	cullBG  *wgpu.BindGroup
}

func NewCompute(device *wgpu.Device, cfg gridfire.Config, surfaceFormat wgpu.TextureFormat, log gridfire.Logger) (*Compute, error) {
	buffers, err := NewBufferManager(device, cfg)
	if err != nil {
		return nil, fmt.Errorf("create buffers: %w", err)
	}
	pipelines, err := NewPipelines(device, surfaceFormat)
	if err != nil {
		buffers.Release()
		return nil, err
	}
	return &Compute{
		cfg:       cfg,
		log:       gridfire.OrNop(log),
		Buffers:   buffers,
		Pipelines: pipelines,
	}, nil
}

// PrepareFrame uploads this frame's inputs and rebuilds bind groups when a
// request buffer was reallocated.
func (c *Compute) PrepareFrame(world *volume.WorldBuffer, cam core.Camera,
	genRequests []kernel.GenRequest, meshRequests []kernel.MeshRequest) error {

	genGrew := false
	if len(genRequests) > 0 {
		var err error
		if genGrew, err = c.Buffers.UploadGenRequests(genRequests, c.cfg.Seed); err != nil {
			return fmt.Errorf("upload generation requests: %w", err)
		}
	}
	meshGrew := false
	if len(meshRequests) > 0 {
		var err error
		if meshGrew, err = c.Buffers.UploadMeshRequests(world, meshRequests); err != nil {
			return fmt.Errorf("upload mesh requests: %w", err)
		}
	}
	c.Buffers.UploadCamera(cam, c.cfg.MaxViewDistance, c.cfg.PoolSlots, c.cfg.MaxDrawCommands)

	if c.genBG == nil || genGrew || c.meshBG0 == nil || meshGrew {
		if err := c.rebuildBindGroups(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compute) rebuildBindGroups() error {
	for _, bg := range []*wgpu.BindGroup{c.genBG, c.meshBG0, c.meshBG1, c.cullBG} {
		if bg != nil {
			bg.Release()
		}
	}

	device := c.Buffers.Device
	var err error
	c.genBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "GenerationBG",
		Layout: c.Pipelines.GenBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.Buffers.VoxelBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: c.Buffers.GenRequestBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: c.Buffers.GenParamsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return err
	}
	c.meshBG0, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "MeshInputBG",
		Layout: c.Pipelines.MeshBGL0,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.Buffers.VoxelBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: c.Buffers.PaletteBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: c.Buffers.MeshRequestBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: c.Buffers.MeshParamsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return err
	}
	c.meshBG1, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "MeshOutputBG",
		Layout: c.Pipelines.MeshBGL1,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.Buffers.VertexBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: c.Buffers.IndexBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: c.Buffers.CursorBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: c.Buffers.MetadataBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return err
	}
	c.cullBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "CullingBG",
		Layout: c.Pipelines.CullBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.Buffers.CameraBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: c.Buffers.MetadataBuf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: c.Buffers.CommandBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: c.Buffers.CounterBuf, Size: wgpu.WholeSize},
		},
	})
	return err
}

func groups(lanes int) uint32 {
	return uint32((lanes + workgroupSize - 1) / workgroupSize)
}

// EncodeFrame records the kernel sequence for one frame: generation,
// cursor reset, meshing, finalize, counter reset, culling. Stages that have
// no work this frame are skipped.
func (c *Compute) EncodeFrame(encoder *wgpu.CommandEncoder, genCount, meshCount int) {
	if genCount > 0 {
		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(c.Pipelines.Generate)
		pass.SetBindGroup(0, c.genBG, nil)
		pass.DispatchWorkgroups(uint32(genCount)*lanesPerChunk, 1, 1)
		pass.End()
	}

	if meshCount > 0 {
		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(c.Pipelines.MeshReset)
		pass.SetBindGroup(0, c.meshBG0, nil)
		pass.SetBindGroup(1, c.meshBG1, nil)
		pass.DispatchWorkgroups(groups(meshCount), 1, 1)
		pass.End()

		pass = encoder.BeginComputePass(nil)
		pass.SetPipeline(c.Pipelines.Mesh)
		pass.SetBindGroup(0, c.meshBG0, nil)
		pass.SetBindGroup(1, c.meshBG1, nil)
		pass.DispatchWorkgroups(uint32(meshCount)*lanesPerChunk, 1, 1)
		pass.End()

		// Finalize is its own pass so every mesh lane's cursor update is
		// visible before the counts are copied into the draw records.
		pass = encoder.BeginComputePass(nil)
		pass.SetPipeline(c.Pipelines.MeshFinalize)
		pass.SetBindGroup(0, c.meshBG0, nil)
		pass.SetBindGroup(1, c.meshBG1, nil)
		pass.DispatchWorkgroups(groups(meshCount), 1, 1)
		pass.End()
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(c.Pipelines.CullReset)
	pass.SetBindGroup(0, c.cullBG, nil)
	pass.DispatchWorkgroups(groups(c.cfg.MaxDrawCommands), 1, 1)
	pass.End()

	pass = encoder.BeginComputePass(nil)
	pass.SetPipeline(c.Pipelines.Cull)
	pass.SetBindGroup(0, c.cullBG, nil)
	pass.DispatchWorkgroups(groups(c.cfg.PoolSlots), 1, 1)
	pass.End()

	encoder.CopyBufferToBuffer(c.Buffers.CounterBuf, 0, c.Buffers.ReadbackBuf, 0, CullCountersSize)
}

// ReadCounters maps the counter staging buffer and decodes the culling
// statistics of the last submitted frame. The wait is bounded by the
// context; an expired deadline abandons the readback.
func (c *Compute) ReadCounters(ctx context.Context) (core.CullStats, error) {
	var mapped bool
	var mapErr error
	err := c.Buffers.ReadbackBuf.MapAsync(wgpu.MapModeRead, 0, CullCountersSize,
		func(status wgpu.BufferMapAsyncStatus) {
			mapped = true
			if status != wgpu.BufferMapAsyncStatusSuccess {
				mapErr = fmt.Errorf("counter readback map failed: status %d", status)
			}
		})
	if err != nil {
		return core.CullStats{}, err
	}

	for !mapped {
		if err := ctx.Err(); err != nil {
			return core.CullStats{}, fmt.Errorf("counter readback: %w", err)
		}
		c.Buffers.Device.Poll(true, nil)
	}
	if mapErr != nil {
		return core.CullStats{}, mapErr
	}
	defer c.Buffers.ReadbackBuf.Unmap()

	data := c.Buffers.ReadbackBuf.GetMappedRange(0, CullCountersSize)
	return UnpackCullCounters(data, c.cfg.MaxDrawCommands), nil
}

func (c *Compute) Release() {
	for _, bg := range []*wgpu.BindGroup{c.genBG, c.meshBG0, c.meshBG1, c.cullBG} {
		if bg != nil {
			bg.Release()
		}
	}
	c.Pipelines.Release()
	c.Buffers.Release()
}
