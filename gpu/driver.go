package gpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/pipeline"
	"github.com/gridfire/gridfire/volume"
)

// Driver runs the pipeline's steady state on the device. Generation, meshing
// and culling execute as compute kernels inside a single submission per
// frame, so per-chunk geometry never crosses the bus. The world buffer stays
// CPU-side but only for slot residency bookkeeping; its voxel storage is not
// written on this path.
type Driver struct {
	cfg   gridfire.Config
	log   gridfire.Logger
	world *volume.WorldBuffer

	compute  *Compute
	renderer *Renderer

	// deferred carries chunks pushed out of this frame by pool exhaustion,
	// retried next frame.
	deferred []volume.ChunkCoord
}

var _ pipeline.Backend = (*Driver)(nil)

// NewDriver uploads the palette once and binds the driver to its compute
// instance. renderer may be nil for headless runs; culling still executes
// and the counters still read back.
func NewDriver(world *volume.WorldBuffer, compute *Compute, renderer *Renderer, log gridfire.Logger) (*Driver, error) {
	if _, err := compute.Buffers.UploadPalette(world.Palette()); err != nil {
		return nil, fmt.Errorf("upload palette: %w", err)
	}
	return &Driver{
		cfg:      world.Config(),
		log:      gridfire.OrNop(log),
		world:    world,
		compute:  compute,
		renderer: renderer,
	}, nil
}

// RunFrame implements pipeline.Backend: collect this frame's generation and
// meshing batches, encode generation, meshing and culling as one submission,
// draw indirectly from the compacted command buffer, then read the culling
// counters back.
func (d *Driver) RunFrame(ctx context.Context, frame pipeline.Frame, wanted []volume.ChunkCoord) (pipeline.DrawSet, error) {
	var errs []error

	genReqs, meshReqs, collectErrs := d.collectRequests(frame, wanted)
	errs = append(errs, collectErrs...)
	if err := ctx.Err(); err != nil {
		return pipeline.DrawSet{}, err
	}

	if err := d.compute.PrepareFrame(d.world, frame.Camera, genReqs, meshReqs); err != nil {
		return pipeline.DrawSet{}, errors.Join(append(errs, err)...)
	}

	encoder, err := d.compute.Buffers.Device.CreateCommandEncoder(nil)
	if err != nil {
		return pipeline.DrawSet{}, errors.Join(append(errs, fmt.Errorf("create command encoder: %w", err))...)
	}
	d.compute.EncodeFrame(encoder, len(genReqs), len(meshReqs))
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return pipeline.DrawSet{}, errors.Join(append(errs, fmt.Errorf("finish frame encoding: %w", err))...)
	}
	d.compute.Buffers.Device.GetQueue().Submit(cmd)

	if len(genReqs) > 0 || len(meshReqs) > 0 {
		d.log.Debugf("frame %d: dispatched %d generation, %d meshing chunks",
			frame.Number, len(genReqs), len(meshReqs))
	}

	// The meshing pass is queued; acknowledge the dirty flags so the next
	// frame does not redispatch the same chunks.
	for _, req := range meshReqs {
		d.world.ClearDirty(req.Ref)
	}

	if d.renderer != nil {
		if err := d.renderer.DrawIndirect(frame.Camera.ViewProj); err != nil {
			errs = append(errs, fmt.Errorf("draw frame %d: %w", frame.Number, err))
		}
	}

	stats, err := d.compute.ReadCounters(ctx)
	if err != nil {
		return pipeline.DrawSet{}, errors.Join(append(errs, err)...)
	}
	return pipeline.DrawSet{Stats: stats}, errors.Join(errs...)
}

// collectRequests merges the deferred queue with this frame's wanted set,
// assigns slots and splits the work into generation and meshing batches.
// Chunks generated this frame are marked before the meshing scan: generation
// precedes meshing in the submission, so their voxels are valid by the time
// the meshing kernel reads them and they may appear in neighbor tables.
func (d *Driver) collectRequests(frame pipeline.Frame, wanted []volume.ChunkCoord) (gen []kernel.GenRequest, mesh []kernel.MeshRequest, errs []error) {
	pending := append(d.deferred, wanted...)
	d.deferred = d.deferred[:0]
	seen := make(map[volume.ChunkCoord]bool, len(pending))

	for _, coord := range pending {
		if seen[coord] {
			continue
		}
		seen[coord] = true

		if ref, ok := d.world.SlotFor(coord); ok {
			if d.world.Metadata(ref.Slot).State == volume.StateGenerated {
				continue
			}
			gen = append(gen, kernel.GenRequest{Coord: coord, Ref: ref})
			continue
		}
		ref, err := d.world.AssignSlot(coord, frame.Timestamp)
		if err != nil {
			if errors.Is(err, gridfire.ErrPoolExhausted) {
				d.deferred = append(d.deferred, coord)
				d.log.Debugf("frame %d: deferring chunk %s: %v", frame.Number, coord, err)
				continue
			}
			errs = append(errs, err)
			continue
		}
		gen = append(gen, kernel.GenRequest{Coord: coord, Ref: ref})
	}

	for _, req := range gen {
		if err := d.world.MarkGenerated(req.Ref, frame.Timestamp); err != nil {
			errs = append(errs, err)
		}
	}

	for _, coord := range d.world.ResidentChunks() {
		ref, ok := d.world.SlotFor(coord)
		if !ok {
			continue
		}
		md := d.world.Metadata(ref.Slot)
		if md.State != volume.StateGenerated || !md.Dirty {
			continue
		}
		mesh = append(mesh, kernel.MeshRequest{Coord: coord, Ref: ref})
	}
	return gen, mesh, errs
}
