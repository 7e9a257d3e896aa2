package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/pipeline"
)

// Renderer is the presentation side of the pipeline: it owns the surface
// textures and the chunk render pass, and implements pipeline.Presenter on
// top of a Compute instance. CPU-side frames hand it meshes and compacted
// commands; GPU-side frames draw straight from the buffers the kernels
// wrote.
type Renderer struct {
	cfg gridfire.Config
	log gridfire.Logger

	Device  *wgpu.Device
	Compute *Compute

	frameBG *wgpu.BindGroup

	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
	depthW       uint32
	depthH       uint32

	// acquire yields the surface view to draw into; the demo binary backs
	// it with the glfw surface, tests can back it with an offscreen target.
	acquire func() (*wgpu.TextureView, func(), error)

	SunDir mgl32.Vec4
}

func NewRenderer(device *wgpu.Device, compute *Compute,
	acquire func() (*wgpu.TextureView, func(), error), log gridfire.Logger) (*Renderer, error) {

	r := &Renderer{
		cfg:     compute.cfg,
		log:     gridfire.OrNop(log),
		Device:  device,
		Compute: compute,
		acquire: acquire,
		SunDir:  mgl32.Vec4{0.35, 0.8, 0.5, 0}.Normalize(),
	}

	layout := compute.Pipelines.Draw.GetBindGroupLayout(0)
	defer layout.Release()
	frameBG, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "FrameBG",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: compute.Buffers.FrameBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create frame bind group: %w", err)
	}
	r.frameBG = frameBG
	return r, nil
}

// ensureDepth recreates the depth texture when the surface size changed.
func (r *Renderer) ensureDepth(width, height uint32) error {
	if r.depthView != nil && r.depthW == width && r.depthH == height {
		return nil
	}
	if r.depthView != nil {
		r.depthView.Release()
		r.depthTexture.Release()
		r.depthView = nil
		r.depthTexture = nil
	}
	tex, err := r.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "ChunkDepth",
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth32Float,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create depth texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("create depth view: %w", err)
	}
	r.depthTexture = tex
	r.depthView = view
	r.depthW = width
	r.depthH = height
	return nil
}

// Resize must be called when the window framebuffer size changes so the
// depth buffer tracks the surface.
func (r *Renderer) Resize(width, height uint32) error {
	return r.ensureDepth(width, height)
}

// Present implements pipeline.Presenter for CPU-driven frames: upload the
// meshes remeshed this frame, the draw record table and the compacted
// commands, then draw everything indirectly.
func (r *Renderer) Present(frame pipeline.Frame, draw pipeline.DrawSet) error {
	buffers := r.Compute.Buffers
	for _, slot := range draw.Updated {
		mesh, ok := draw.Meshes[slot]
		if !ok {
			continue
		}
		buffers.UploadSlotMesh(r.cfg, slot, mesh)
	}
	buffers.UploadCommands(draw.Commands, r.cfg.MaxDrawCommands)
	buffers.Device.GetQueue().WriteBuffer(buffers.FrameBuf, 0,
		PackFrameUniform(frame.Camera.ViewProj, r.SunDir))

	return r.draw(len(draw.Commands))
}

// DrawIndirect draws after a GPU-driven frame: the command buffer already
// holds what the culling kernel compacted, so every slot of it is consumed.
// Commands past the compacted count are zeroed and draw nothing.
func (r *Renderer) DrawIndirect(cam mgl32.Mat4) error {
	r.Device.GetQueue().WriteBuffer(r.Compute.Buffers.FrameBuf, 0,
		PackFrameUniform(cam, r.SunDir))
	return r.draw(r.cfg.MaxDrawCommands)
}

func (r *Renderer) draw(commandCount int) error {
	if r.acquire == nil {
		return nil
	}
	view, release, err := r.acquire()
	if err != nil {
		return fmt.Errorf("acquire surface: %w", err)
	}
	defer release()

	if r.depthView == nil {
		return fmt.Errorf("renderer has no depth buffer, call Resize first")
	}

	encoder, err := r.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "ChunkPass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.45, G: 0.65, B: 0.9, A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            r.depthView,
			DepthClearValue: 1,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
		},
	})
	pass.SetPipeline(r.Compute.Pipelines.Draw)
	pass.SetBindGroup(0, r.frameBG, nil)
	pass.SetVertexBuffer(0, r.Compute.Buffers.VertexBuf, 0, wgpu.WholeSize)
	pass.SetIndexBuffer(r.Compute.Buffers.IndexBuf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	for i := 0; i < commandCount; i++ {
		pass.DrawIndexedIndirect(r.Compute.Buffers.CommandBuf, uint64(i)*IndirectCommandStride)
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("chunk pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish chunk pass: %w", err)
	}
	r.Device.GetQueue().Submit(cmd)
	return nil
}

func (r *Renderer) Release() {
	if r.frameBG != nil {
		r.frameBG.Release()
	}
	if r.depthView != nil {
		r.depthView.Release()
	}
	if r.depthTexture != nil {
		r.depthTexture.Release()
	}
}
