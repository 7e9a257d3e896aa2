// Command gridfire opens a window, streams demo terrain around a fly camera
// and draws it through the indirect pipeline. F2 dumps a heightmap snapshot
// of the resident world next to the binary.
package main

import (
	"context"
	"flag"
	"math"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/diag"
	"github.com/gridfire/gridfire/gpu"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/pipeline"
	"github.com/gridfire/gridfire/volume"
)

func init() {
	runtime.LockOSThread()
}

type flyCamera struct {
	Pos   mgl32.Vec3
	Yaw   float32
	Pitch float32
	Speed float32
}

func (c *flyCamera) forward() mgl32.Vec3 {
	cy, sy := float32(math.Cos(float64(c.Yaw))), float32(math.Sin(float64(c.Yaw)))
	cp, sp := float32(math.Cos(float64(c.Pitch))), float32(math.Sin(float64(c.Pitch)))
	return mgl32.Vec3{sy * cp, sp, -cy * cp}
}

func (c *flyCamera) right() mgl32.Vec3 {
	cy, sy := float32(math.Cos(float64(c.Yaw))), float32(math.Sin(float64(c.Yaw)))
	return mgl32.Vec3{cy, 0, sy}
}

func (c *flyCamera) camera(aspect float32) core.Camera {
	proj := mgl32.Perspective(mgl32.DegToRad(70), aspect, 0.1, 2000)
	view := mgl32.LookAtV(c.Pos, c.Pos.Add(c.forward()), mgl32.Vec3{0, 1, 0})
	return core.CameraFromViewProj(c.Pos, proj.Mul4(view))
}

// wantedChunks lists the chunk coordinates within radius of the camera,
// clamped to the world domain.
func wantedChunks(world *volume.WorldBuffer, pos mgl32.Vec3, radius int32) []volume.ChunkCoord {
	cx := int32(math.Floor(float64(pos.X()) / gridfire.ChunkSize))
	cy := int32(math.Floor(float64(pos.Y()) / gridfire.ChunkSize))
	cz := int32(math.Floor(float64(pos.Z()) / gridfire.ChunkSize))

	var wanted []volume.ChunkCoord
	for dz := -radius; dz <= radius; dz++ {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				c := volume.ChunkCoord{X: cx + dx, Y: cy + dy, Z: cz + dz}
				if world.InDomain(c) {
					wanted = append(wanted, c)
				}
			}
		}
	}
	return wanted
}

func main() {
	radius := flag.Int("radius", 3, "streaming radius in chunks around the camera")
	useGPU := flag.Bool("gpu", false, "run generation, meshing and culling as compute kernels")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := gridfire.NewDefaultLogger("gridfire", *debug)

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "Gridfire", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	instance := wgpu.CreateInstance(nil)
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		panic(err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		panic(err)
	}

	width, height := window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	config := &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, config)

	cfg := gridfire.DefaultConfig()
	// Size the slot pool from the streaming radius and cap the per-slot mesh
	// regions at the solid-chunk worst case so the geometry buffers stay
	// within typical device limits.
	side := 2*(*radius) + 1
	cfg.PoolSlots = side * side * side
	cfg.MaxVerticesPerChunk = 24576
	cfg.MaxIndicesPerChunk = 36864
	world, err := volume.NewWorldBuffer(cfg, kernel.DemoPalette())
	if err != nil {
		panic(err)
	}

	compute, err := gpu.NewCompute(device, cfg, config.Format, log)
	if err != nil {
		panic(err)
	}
	defer compute.Release()

	acquire := func() (*wgpu.TextureView, func(), error) {
		texture, err := surface.GetCurrentTexture()
		if err != nil {
			return nil, nil, err
		}
		view, err := texture.CreateView(nil)
		if err != nil {
			texture.Release()
			return nil, nil, err
		}
		return view, func() {
			view.Release()
			texture.Release()
			surface.Present()
		}, nil
	}

	renderer, err := gpu.NewRenderer(device, compute, acquire, log)
	if err != nil {
		panic(err)
	}
	defer renderer.Release()
	if err := renderer.Resize(uint32(width), uint32(height)); err != nil {
		panic(err)
	}

	// The same frame loop drives either backend: the orchestrator runs the
	// kernels on the CPU and presents the results, the driver dispatches
	// them as compute shaders and draws straight from device buffers.
	var backend pipeline.Backend
	var orch *pipeline.Orchestrator
	if *useGPU {
		driver, err := gpu.NewDriver(world, compute, renderer, log)
		if err != nil {
			panic(err)
		}
		backend = driver
		log.Infof("backend: compute kernels")
	} else {
		if _, err := compute.Buffers.UploadPalette(world.Palette()); err != nil {
			panic(err)
		}
		orch = pipeline.NewOrchestrator(world, kernel.DemoTerrain, renderer, log)
		backend = orch
	}

	cam := flyCamera{
		Pos:   mgl32.Vec3{8192, 96, 8192},
		Speed: 48,
	}
	mouseCaptured := false
	lastX, lastY := 0.0, 0.0

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if width == 0 || height == 0 {
			return
		}
		config.Width = uint32(width)
		config.Height = uint32(height)
		surface.Configure(adapter, device, config)
		if err := renderer.Resize(uint32(width), uint32(height)); err != nil {
			log.Errorf("resize: %v", err)
		}
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button == glfw.MouseButtonLeft && action == glfw.Press {
			mouseCaptured = true
			w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			lastX, lastY = w.GetCursorPos()
		}
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			mouseCaptured = false
			w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		case glfw.KeyF2:
			if err := diag.WritePNG("heightmap.png", diag.Heightmap(world)); err != nil {
				log.Errorf("snapshot: %v", err)
			} else {
				log.Infof("wrote heightmap.png")
			}
		}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if !mouseCaptured {
			return
		}
		const sensitivity = 0.0025
		cam.Yaw += float32(xpos-lastX) * sensitivity
		cam.Pitch -= float32(ypos-lastY) * sensitivity
		cam.Pitch = mgl32.Clamp(cam.Pitch, -1.55, 1.55)
		lastX, lastY = xpos, ypos
	})

	var frameNumber uint64
	lastTime := glfw.GetTime()
	fpsTime := lastTime
	fpsFrames := 0

	for !window.ShouldClose() {
		glfw.PollEvents()

		now := glfw.GetTime()
		dt := float32(now - lastTime)
		lastTime = now

		move := cam.Speed * dt
		if window.GetKey(glfw.KeyLeftShift) == glfw.Press {
			move *= 5
		}
		if window.GetKey(glfw.KeyW) == glfw.Press {
			cam.Pos = cam.Pos.Add(cam.forward().Mul(move))
		}
		if window.GetKey(glfw.KeyS) == glfw.Press {
			cam.Pos = cam.Pos.Sub(cam.forward().Mul(move))
		}
		if window.GetKey(glfw.KeyD) == glfw.Press {
			cam.Pos = cam.Pos.Add(cam.right().Mul(move))
		}
		if window.GetKey(glfw.KeyA) == glfw.Press {
			cam.Pos = cam.Pos.Sub(cam.right().Mul(move))
		}

		frameNumber++
		aspect := float32(config.Width) / float32(config.Height)
		frame := pipeline.Frame{
			Number:    frameNumber,
			Timestamp: frameNumber,
			Camera:    cam.camera(aspect),
		}
		wanted := wantedChunks(world, cam.Pos, int32(*radius))
		draw, err := backend.RunFrame(context.Background(), frame, wanted)
		if err != nil {
			log.Warnf("frame %d: %v", frameNumber, err)
		}

		fpsFrames++
		if now-fpsTime >= 5 {
			if orch != nil {
				log.Infof("%.1f fps, %d resident chunks, %d vertices meshed, %s",
					float64(fpsFrames)/(now-fpsTime), len(world.ResidentChunks()),
					orch.MeshingStats().Vertices.Load(), diag.CullSummary(draw.Stats))
			} else {
				log.Infof("%.1f fps, %d resident chunks, %s",
					float64(fpsFrames)/(now-fpsTime), len(world.ResidentChunks()),
					diag.CullSummary(draw.Stats))
			}
			fpsTime = now
			fpsFrames = 0
		}
	}
}
