package pipeline

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/volume"
)

type recorder struct {
	frames []Frame
	draws  []DrawSet
	err    error
}

func (r *recorder) Present(f Frame, d DrawSet) error {
	r.frames = append(r.frames, f)
	r.draws = append(r.draws, d)
	return r.err
}

func testConfig(slots int) gridfire.Config {
	cfg := gridfire.DefaultConfig()
	cfg.WorldChunksX = 4
	cfg.WorldChunksY = 4
	cfg.WorldChunksZ = 4
	cfg.PoolSlots = slots
	return cfg
}

// chunkCamera looks at the center of chunk (0,0,0) from outside it.
func chunkCamera() core.Camera {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 1000)
	view := mgl32.LookAtV(mgl32.Vec3{16, 16, 100}, mgl32.Vec3{16, 16, 16}, mgl32.Vec3{0, 1, 0})
	return core.CameraFromViewProj(mgl32.Vec3{16, 16, 100}, proj.Mul4(view))
}

func newTestOrchestrator(t *testing.T, slots int) (*Orchestrator, *recorder) {
	t.Helper()
	world, err := volume.NewWorldBuffer(testConfig(slots), kernel.DemoPalette())
	require.NoError(t, err)
	rec := &recorder{}
	return NewOrchestrator(world, kernel.SolidTerrain(kernel.MatStone), rec, nil), rec
}

func TestRunFrameGeneratesMeshesAndDraws(t *testing.T) {
	o, rec := newTestOrchestrator(t, 4)
	c := volume.ChunkCoord{X: 0, Y: 0, Z: 0}

	draw, err := o.RunFrame(context.Background(), Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()},
		[]volume.ChunkCoord{c})
	require.NoError(t, err)

	ref, ok := o.World().SlotFor(c)
	require.True(t, ok, "wanted chunk not resident after frame")
	assert.Equal(t, volume.StateGenerated, o.World().Metadata(ref.Slot).State)
	assert.False(t, o.World().Metadata(ref.Slot).Dirty, "mesh not committed")

	require.Len(t, draw.Commands, 1)
	assert.Equal(t, uint32(1), draw.Commands[0].InstanceCount)
	assert.NotZero(t, draw.Commands[0].IndexCount)
	assert.NotEmpty(t, draw.Meshes[ref.Slot].Vertices)
	assert.Equal(t, uint32(1), draw.Stats.Drawn)

	require.Len(t, rec.frames, 1)
	assert.Equal(t, uint64(1), rec.frames[0].Number)
}

func TestSteadyStateFrameDoesNoWork(t *testing.T) {
	o, _ := newTestOrchestrator(t, 4)
	wanted := []volume.ChunkCoord{{X: 0, Y: 0, Z: 0}}

	_, err := o.RunFrame(context.Background(), Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()}, wanted)
	require.NoError(t, err)
	meshed := o.MeshingStats().Meshes.Load()

	_, err = o.RunFrame(context.Background(), Frame{Number: 2, Timestamp: 2, Camera: chunkCamera()}, wanted)
	require.NoError(t, err)
	assert.Equal(t, meshed, o.MeshingStats().Meshes.Load(), "clean chunk was re-meshed")
}

func TestEditTriggersRemesh(t *testing.T) {
	o, _ := newTestOrchestrator(t, 4)
	c := volume.ChunkCoord{X: 0, Y: 0, Z: 0}

	draw1, err := o.RunFrame(context.Background(), Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()},
		[]volume.ChunkCoord{c})
	require.NoError(t, err)
	ref, _ := o.World().SlotFor(c)
	before := len(draw1.Meshes[ref.Slot].Vertices)

	// Carve out an interior voxel; its six neighbors each gain a face.
	require.NoError(t, o.Edit(c, 5, 5, 5, core.Air, 2))

	draw2, err := o.RunFrame(context.Background(), Frame{Number: 2, Timestamp: 2, Camera: chunkCamera()}, nil)
	require.NoError(t, err)
	assert.Equal(t, before+24, len(draw2.Meshes[ref.Slot].Vertices))
}

func TestEditNonResidentChunk(t *testing.T) {
	o, _ := newTestOrchestrator(t, 4)
	err := o.Edit(volume.ChunkCoord{X: 3, Y: 3, Z: 3}, 0, 0, 0, core.Air, 1)
	assert.ErrorIs(t, err, gridfire.ErrInvalidCoordinate)
}

func TestEditRefreshesEvictionOrder(t *testing.T) {
	o, _ := newTestOrchestrator(t, 2)
	a, b := volume.ChunkCoord{X: 0, Y: 0, Z: 0}, volume.ChunkCoord{X: 1, Y: 0, Z: 0}

	_, err := o.RunFrame(context.Background(), Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()},
		[]volume.ChunkCoord{a})
	require.NoError(t, err)
	_, err = o.RunFrame(context.Background(), Frame{Number: 2, Timestamp: 2, Camera: chunkCamera()},
		[]volume.ChunkCoord{b})
	require.NoError(t, err)

	// Editing a moves its timestamp past b's, so b becomes the LRU slot.
	require.NoError(t, o.Edit(a, 5, 5, 5, core.Air, 3))
	refA, _ := o.World().SlotFor(a)
	assert.Equal(t, uint64(3), o.World().Metadata(refA.Slot).Timestamp)

	_, err = o.RunFrame(context.Background(), Frame{Number: 4, Timestamp: 4, Camera: chunkCamera()},
		[]volume.ChunkCoord{{X: 2, Y: 0, Z: 0}})
	require.NoError(t, err)

	_, residentA := o.World().SlotFor(a)
	assert.True(t, residentA, "edited chunk was evicted")
	_, residentB := o.World().SlotFor(b)
	assert.False(t, residentB, "stale chunk survived eviction")
}

func TestExhaustedPoolDefersChunks(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	blocker := volume.ChunkCoord{X: 3, Y: 3, Z: 3}
	ref, err := o.World().AssignSlot(blocker, 0)
	require.NoError(t, err)
	o.World().Pin(ref)

	c := volume.ChunkCoord{X: 0, Y: 0, Z: 0}
	_, err = o.RunFrame(context.Background(), Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()},
		[]volume.ChunkCoord{c})
	require.NoError(t, err, "pool exhaustion must defer, not fail")
	assert.Zero(t, o.MeshingStats().Meshes.Load())

	// Once a slot frees up the deferred chunk is served without re-requesting.
	o.World().Unpin(ref)
	_, err = o.RunFrame(context.Background(), Frame{Number: 2, Timestamp: 2, Camera: chunkCamera()}, nil)
	require.NoError(t, err)
	_, resident := o.World().SlotFor(c)
	assert.True(t, resident, "deferred chunk not retried")
	assert.Equal(t, uint64(1), o.MeshingStats().Meshes.Load())
}

func TestSlotReuseInvalidatesDraw(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	a, b := volume.ChunkCoord{X: 0, Y: 0, Z: 0}, volume.ChunkCoord{X: 1, Y: 0, Z: 0}

	_, err := o.RunFrame(context.Background(), Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()},
		[]volume.ChunkCoord{a})
	require.NoError(t, err)

	// Requesting b evicts a from the single slot; the next culling pass must
	// not draw a's stale geometry under b's record.
	draw, err := o.RunFrame(context.Background(), Frame{Number: 2, Timestamp: 2, Camera: chunkCamera()},
		[]volume.ChunkCoord{b})
	require.NoError(t, err)

	_, residentA := o.World().SlotFor(a)
	assert.False(t, residentA)
	refB, residentB := o.World().SlotFor(b)
	require.True(t, residentB)
	for _, cmd := range draw.Commands {
		assert.Equal(t, uint32(refB.Slot), cmd.FirstInstance, "draw references evicted slot state")
	}
}

func TestCanceledContextStopsFrame(t *testing.T) {
	o, _ := newTestOrchestrator(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunFrame(ctx, Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()},
		[]volume.ChunkCoord{{X: 0, Y: 0, Z: 0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPresenterErrorSurfaces(t *testing.T) {
	o, rec := newTestOrchestrator(t, 4)
	rec.err = assert.AnError

	_, err := o.RunFrame(context.Background(), Frame{Number: 1, Timestamp: 1, Camera: chunkCamera()},
		[]volume.ChunkCoord{{X: 0, Y: 0, Z: 0}})
	assert.ErrorIs(t, err, assert.AnError)
}
