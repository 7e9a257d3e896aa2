// Package pipeline drives the per-frame kernel sequence: generation for
// newly-needed chunks, meshing for dirty chunks, then culling and handoff to
// the presentation surface. Stage boundaries are hard barriers: no stage
// consumes a buffer before the producing stage has completed.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/volume"
)

// Frame is the explicit per-frame context. Orchestration state is passed
// through it rather than held in ambient globals so the pipeline can be
// driven with synthetic frame sequences.
type Frame struct {
	Number    uint64
	Timestamp uint64
	Camera    core.Camera
}

// DrawSet is the frame's renderable output: the compacted indirect commands
// plus the geometry regions they reference. Updated lists the slots whose
// mesh was recommitted this frame so presenters upload only those.
type DrawSet struct {
	Commands []core.IndirectCommand
	Meshes   map[int]kernel.ChunkMesh // keyed by slot
	Updated  []int
	Stats    core.CullStats
}

// Presenter consumes a finished frame. The demo binary backs this with the
// wgpu surface; tests back it with a recorder.
type Presenter interface {
	Present(frame Frame, draw DrawSet) error
}

// Backend runs one complete pipeline pass per frame. The CPU Orchestrator is
// the reference backend; the gpu package provides one that dispatches the
// kernels as compute shaders. Hosts pick one at startup and drive it the same
// way either way.
type Backend interface {
	RunFrame(ctx context.Context, frame Frame, wanted []volume.ChunkCoord) (DrawSet, error)
}

var _ Backend = (*Orchestrator)(nil)

// Orchestrator owns the CPU-side sequencing of the pipeline. Single-threaded
// by contract; the kernels it dispatches fan out internally.
type Orchestrator struct {
	cfg     gridfire.Config
	world   *volume.WorldBuffer
	gen     *kernel.Generator
	mesher  *kernel.Mesher
	culler  *kernel.Culler
	log     gridfire.Logger
	present Presenter

	// metadata is the DrawMetadata table, one record per pool slot, written
	// by meshing finalize and read by culling.
	metadata []core.DrawMetadata

	// meshes holds the committed geometry per slot. A failed or overflowed
	// meshing dispatch never touches it.
	meshes map[int]kernel.ChunkMesh

	// deferred carries chunks pushed out of this frame by pool exhaustion or
	// mesh overflow, retried next frame.
	deferred []volume.ChunkCoord

	// slotStamp remembers the reuse stamp each slot's committed mesh was
	// built under, so reassignment invalidates the draw record.
	slotStamp []uint32
}

func NewOrchestrator(world *volume.WorldBuffer, density kernel.DensityFunc, present Presenter, log gridfire.Logger) *Orchestrator {
	cfg := world.Config()
	log = gridfire.OrNop(log)
	return &Orchestrator{
		cfg:       cfg,
		world:     world,
		gen:       kernel.NewGenerator(world, density, cfg.Seed, log),
		mesher:    kernel.NewMesher(world, log),
		culler:    kernel.NewCuller(cfg.MaxViewDistance, cfg.MaxDrawCommands, log),
		log:       log,
		present:   present,
		metadata:  make([]core.DrawMetadata, cfg.PoolSlots),
		meshes:    make(map[int]kernel.ChunkMesh, cfg.PoolSlots),
		slotStamp: make([]uint32, cfg.PoolSlots),
	}
}

// Metadata exposes the live DrawMetadata table. Callers may flip visibility
// flags (for example FlagAlwaysVisible) between frames; the table is
// otherwise owned by the meshing stage.
func (o *Orchestrator) Metadata() []core.DrawMetadata { return o.metadata }

// RunFrame executes one full pipeline pass. wanted lists the chunk
// coordinates the host wants resident this frame; chunks that cannot be
// served are deferred, not fatal. The context bounds every CPU-side wait;
// an expired deadline aborts between stages.
func (o *Orchestrator) RunFrame(ctx context.Context, frame Frame, wanted []volume.ChunkCoord) (DrawSet, error) {
	var errs []error

	// (a) Decide which chunks need generation or remeshing.
	genReqs, assignErrs := o.collectGeneration(frame, wanted)
	errs = append(errs, assignErrs...)

	// (b) Generation, only for newly-needed chunks.
	if len(genReqs) > 0 {
		batch := uuid.New()
		o.log.Debugf("frame %d: generation batch %s, %d chunks", frame.Number, batch, len(genReqs))
		if _, err := o.gen.Generate(genReqs, frame.Timestamp); err != nil {
			errs = append(errs, fmt.Errorf("generation batch %s: %w", batch, err))
		}
	}
	if err := ctx.Err(); err != nil {
		return DrawSet{}, err
	}

	// (c) Meshing, only for chunks dirty since their last mesh.
	updated, meshErrs := o.meshDirty(frame)
	errs = append(errs, meshErrs...)

	// (d) Barrier: meshing output above is fully committed before culling
	// reads the metadata table.
	if err := ctx.Err(); err != nil {
		return DrawSet{}, err
	}

	// (e) Culling: reset, evaluate, compact.
	o.invalidateStale()
	commands, stats := o.culler.Cull(frame.Camera, o.metadata)

	draw := DrawSet{Commands: commands, Meshes: o.meshes, Updated: updated, Stats: stats}

	// (f) Hand the finished frame to the presentation surface.
	if o.present != nil {
		if err := o.present.Present(frame, draw); err != nil {
			errs = append(errs, fmt.Errorf("present frame %d: %w", frame.Number, err))
		}
	}
	return draw, errors.Join(errs...)
}

// collectGeneration merges the deferred queue with this frame's wanted set
// and assigns slots for chunks that are not yet generated.
func (o *Orchestrator) collectGeneration(frame Frame, wanted []volume.ChunkCoord) ([]kernel.GenRequest, []error) {
	var reqs []kernel.GenRequest
	var errs []error

	pending := append(o.deferred, wanted...)
	o.deferred = o.deferred[:0]
	seen := make(map[volume.ChunkCoord]bool, len(pending))

	for _, coord := range pending {
		if seen[coord] {
			continue
		}
		seen[coord] = true

		if ref, ok := o.world.SlotFor(coord); ok {
			if o.world.Metadata(ref.Slot).State == volume.StateGenerated {
				continue
			}
			reqs = append(reqs, kernel.GenRequest{Coord: coord, Ref: ref})
			continue
		}
		ref, err := o.world.AssignSlot(coord, frame.Timestamp)
		if err != nil {
			if errors.Is(err, gridfire.ErrPoolExhausted) {
				// Recoverable: try again next frame.
				o.deferred = append(o.deferred, coord)
				o.log.Debugf("frame %d: deferring chunk %s: %v", frame.Number, coord, err)
				continue
			}
			errs = append(errs, err)
			continue
		}
		reqs = append(reqs, kernel.GenRequest{Coord: coord, Ref: ref})
	}
	return reqs, errs
}

// meshDirty remeshes every generated chunk whose metadata carries the dirty
// flag. A mesh overflow discards that chunk's output, keeps the previously
// committed mesh, and re-queues the chunk.
func (o *Orchestrator) meshDirty(frame Frame) ([]int, []error) {
	var updated []int
	var errs []error
	for _, coord := range o.world.ResidentChunks() {
		ref, ok := o.world.SlotFor(coord)
		if !ok {
			continue
		}
		md := o.world.Metadata(ref.Slot)
		if md.State != volume.StateGenerated || !md.Dirty {
			continue
		}

		mesh, drawMD, err := o.mesher.MeshChunk(kernel.MeshRequest{Coord: coord, Ref: ref})
		switch {
		case err == nil:
			// Commit: geometry, metadata and stamp move together.
			o.meshes[ref.Slot] = mesh
			o.metadata[ref.Slot] = drawMD
			o.slotStamp[ref.Slot] = ref.Stamp
			o.world.ClearDirty(ref)
			updated = append(updated, ref.Slot)
		case errors.Is(err, gridfire.ErrMeshBufferOverflow):
			o.deferred = append(o.deferred, coord)
			errs = append(errs, err)
		case errors.Is(err, kernel.ErrSuperseded):
			o.log.Debugf("frame %d: mesh for %s superseded", frame.Number, coord)
		default:
			errs = append(errs, err)
		}
	}
	return updated, errs
}

// invalidateStale clears draw records whose slot has been reassigned since
// the mesh was committed, so culling never draws another chunk's geometry.
func (o *Orchestrator) invalidateStale() {
	for slot := range o.metadata {
		if o.metadata[slot].Flags == 0 {
			continue
		}
		if o.world.Metadata(slot).Stamp != o.slotStamp[slot] {
			o.metadata[slot] = core.DrawMetadata{}
			delete(o.meshes, slot)
		}
	}
}

// Edit re-stamps a chunk after a voxel edit: the voxel write happens through
// the world buffer's edit path, the slot's LRU timestamp is refreshed so the
// edited chunk is not the next eviction candidate, and the chunk (plus
// face-adjacent neighbors, whose border faces may have changed) is queued for
// remeshing.
func (o *Orchestrator) Edit(coord volume.ChunkCoord, lx, ly, lz uint32, v core.Voxel, timestamp uint64) error {
	ref, ok := o.world.SlotFor(coord)
	if !ok {
		return fmt.Errorf("%w: chunk %s not resident", gridfire.ErrInvalidCoordinate, coord)
	}
	if err := o.world.SetVoxel(ref, lx, ly, lz, v); err != nil {
		return err
	}
	o.world.Touch(ref, timestamp)
	o.world.MarkDirty(coord)
	for _, d := range [6][3]int32{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}} {
		o.world.MarkDirty(volume.ChunkCoord{X: coord.X + d[0], Y: coord.Y + d[1], Z: coord.Z + d[2]})
	}
	return nil
}

// MeshingStats exposes the mesher's running totals for diagnostics.
func (o *Orchestrator) MeshingStats() *kernel.MeshingStats { return &o.mesher.Stats }

// World returns the underlying world buffer.
func (o *Orchestrator) World() *volume.WorldBuffer { return o.world }
