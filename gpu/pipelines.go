package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gridfire/gridfire/gpu/shaders"
)

// Pipelines holds the compiled compute pipelines for the three kernels plus
// the chunk render pipeline. The mesh entry points share explicit bind group
// layouts so one set of bind groups serves reset, mesh and finalize.
type Pipelines struct {
	Generate     *wgpu.ComputePipeline
	MeshReset    *wgpu.ComputePipeline
	Mesh         *wgpu.ComputePipeline
	MeshFinalize *wgpu.ComputePipeline
	CullReset    *wgpu.ComputePipeline
	Cull         *wgpu.ComputePipeline

	Draw *wgpu.RenderPipeline

	GenBGL   *wgpu.BindGroupLayout
	MeshBGL0 *wgpu.BindGroupLayout
	MeshBGL1 *wgpu.BindGroupLayout
	CullBGL  *wgpu.BindGroupLayout
}

func storageEntry(binding uint32, readOnly bool) wgpu.BindGroupLayoutEntry {
	t := wgpu.BufferBindingTypeStorage
	if readOnly {
		t = wgpu.BufferBindingTypeReadOnlyStorage
	}
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     wgpu.BufferBindingLayout{Type: t},
	}
}

func uniformEntry(binding uint32) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
	}
}

func computePipeline(device *wgpu.Device, layout *wgpu.PipelineLayout, label, code, entry string) (*wgpu.ComputePipeline, error) {
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader module: %w", label, err)
	}
	defer module.Release()

	pipeline, err := device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label + "Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s pipeline: %w", label, err)
	}
	return pipeline, nil
}

func NewPipelines(device *wgpu.Device, surfaceFormat wgpu.TextureFormat) (*Pipelines, error) {
	p := &Pipelines{}
	var err error

	p.GenBGL, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "GenerationBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			storageEntry(0, false), // voxels
			storageEntry(1, true),  // requests
			uniformEntry(2),        // params
		},
	})
	if err != nil {
		return nil, err
	}
	p.MeshBGL0, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "MeshInputBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			storageEntry(0, true), // voxels
			storageEntry(1, true), // palette
			storageEntry(2, true), // requests
			uniformEntry(3),       // params
		},
	})
	if err != nil {
		return nil, err
	}
	p.MeshBGL1, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "MeshOutputBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			storageEntry(0, false), // vertices
			storageEntry(1, false), // indices
			storageEntry(2, false), // cursors
			storageEntry(3, false), // metadata
		},
	})
	if err != nil {
		return nil, err
	}
	p.CullBGL, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "CullingBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			uniformEntry(0),        // camera
			storageEntry(1, true),  // metadata
			storageEntry(2, false), // commands
			storageEntry(3, false), // counters
		},
	})
	if err != nil {
		return nil, err
	}

	genLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.GenBGL},
	})
	if err != nil {
		return nil, err
	}
	meshLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.MeshBGL0, p.MeshBGL1},
	})
	if err != nil {
		return nil, err
	}
	cullLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.CullBGL},
	})
	if err != nil {
		return nil, err
	}

	if p.Generate, err = computePipeline(device, genLayout, "TerrainGeneration",
		shaders.TerrainGenerationWGSL, "generate"); err != nil {
		return nil, err
	}
	if p.MeshReset, err = computePipeline(device, meshLayout, "MeshReset",
		shaders.MeshChunksWGSL, "reset_cursors"); err != nil {
		return nil, err
	}
	if p.Mesh, err = computePipeline(device, meshLayout, "MeshChunks",
		shaders.MeshChunksWGSL, "mesh"); err != nil {
		return nil, err
	}
	if p.MeshFinalize, err = computePipeline(device, meshLayout, "MeshFinalize",
		shaders.MeshChunksWGSL, "finalize"); err != nil {
		return nil, err
	}
	if p.CullReset, err = computePipeline(device, cullLayout, "CullReset",
		shaders.CullingWGSL, "reset_counters"); err != nil {
		return nil, err
	}
	if p.Cull, err = computePipeline(device, cullLayout, "Culling",
		shaders.CullingWGSL, "cull"); err != nil {
		return nil, err
	}
	if p.Draw, err = newDrawPipeline(device, surfaceFormat); err != nil {
		return nil, err
	}
	return p, nil
}

func newDrawPipeline(device *wgpu.Device, format wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "DrawChunksShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.DrawChunksWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("create draw shader module: %w", err)
	}
	defer module.Release()

	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "DrawChunksPipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: VertexStride,
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
						{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 1},
						{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 2},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create draw pipeline: %w", err)
	}
	return pipeline, nil
}

func (p *Pipelines) Release() {
	for _, cp := range []*wgpu.ComputePipeline{
		p.Generate, p.MeshReset, p.Mesh, p.MeshFinalize, p.CullReset, p.Cull,
	} {
		if cp != nil {
			cp.Release()
		}
	}
	if p.Draw != nil {
		p.Draw.Release()
	}
}
