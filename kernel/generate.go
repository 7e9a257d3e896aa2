package kernel

import (
	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/volume"
)

// DensityFunc decides the material for one world-space voxel. Supplied by the
// terrain content layer, which is external to the pipeline. The function must
// be deterministic in (seed, coordinates): bit-identical results across
// dispatches and execution environments are a precondition for mesh parity
// between the native and browser backends.
type DensityFunc func(seed uint32, wx, wy, wz int64) uint16

// GenRequest names one chunk awaiting generation together with the slot it
// was assigned.
type GenRequest struct {
	Coord volume.ChunkCoord
	Ref   volume.SlotRef
}

// Generator fills world-buffer slots with voxel material codes. It is the
// only pipeline component allowed to write voxel storage.
type Generator struct {
	World   *volume.WorldBuffer
	Density DensityFunc
	Seed    uint32
	Log     gridfire.Logger
}

func NewGenerator(world *volume.WorldBuffer, density DensityFunc, seed uint32, log gridfire.Logger) *Generator {
	return &Generator{World: world, Density: density, Seed: seed, Log: gridfire.OrNop(log)}
}

// Generate runs the generation kernel for a batch of chunks. Every voxel of
// every requested chunk is computed independently; the chunk's metadata is
// marked generated exactly once per chunk after its voxels are written (the
// designated-lane step). Requests whose slot ref has gone stale because the
// chunk was evicted while the batch was in flight are skipped, never
// committed.
func (g *Generator) Generate(requests []GenRequest, timestamp uint64) (generated int, err error) {
	for _, req := range requests {
		if !g.World.Valid(req.Ref) {
			g.Log.Debugf("generation superseded for chunk %s, slot %d@%d",
				req.Coord, req.Ref.Slot, req.Ref.Stamp)
			continue
		}
		g.generateChunk(req)
		if mErr := g.World.MarkGenerated(req.Ref, timestamp); mErr != nil {
			err = mErr
			continue
		}
		generated++
	}
	return generated, err
}

func (g *Generator) generateChunk(req GenRequest) {
	baseX := int64(req.Coord.X) * gridfire.ChunkSize
	baseY := int64(req.Coord.Y) * gridfire.ChunkSize
	baseZ := int64(req.Coord.Z) * gridfire.ChunkSize

	parallelFor(gridfire.VoxelsPerChunk, func(lane int) {
		lx, ly, lz := core.DecodeLocal(uint32(lane))
		wx := baseX + int64(lx)
		wy := baseY + int64(ly)
		wz := baseZ + int64(lz)

		material := g.Density(g.Seed, wx, wy, wz)
		var v core.Voxel
		if material != 0 {
			v = core.NewVoxel(material, 0, 0, 0)
		} else {
			// Air above ground carries full sky light.
			v = core.NewVoxel(0, 0, 15, 0)
		}
		// Lane writes are disjoint: each lane owns exactly one Morton offset.
		_ = g.World.SetVoxel(req.Ref, lx, ly, lz, v)
	})
}
