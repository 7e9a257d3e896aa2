package kernel

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
)

// Culler evaluates per-object visibility against the frame's camera and
// compacts survivors into the indirect-command buffer. Each frame runs
// Reset -> Evaluate -> Compact; the draw-count atomic and the per-category
// statistics start at zero every pass.
type Culler struct {
	MaxDistance float32
	Capacity    int
	Log         gridfire.Logger
}

func NewCuller(maxDistance float32, capacity int, log gridfire.Logger) *Culler {
	return &Culler{MaxDistance: maxDistance, Capacity: capacity, Log: gridfire.OrNop(log)}
}

// survivor pairs a metadata index with its camera distance so overflow can
// drop farthest-first.
type survivor struct {
	index    int
	distance float32
}

// Cull runs the culling kernel over every DrawMetadata record. Survivors
// appear exactly once in the returned commands; objects without a generated
// mesh draw the default primitive instead of a zero-size draw. When more
// objects survive than the command buffer holds, the farthest are dropped
// for this frame only and counted in stats.Overflowed.
func (c *Culler) Cull(cam core.Camera, metadata []core.DrawMetadata) ([]core.IndirectCommand, core.CullStats) {
	var tested, frustumRejected, distanceRejected atomic.Uint32
	var cursor atomic.Uint32

	// Evaluate: parallel over all records, compacting survivor indices
	// through a bump cursor.
	survivors := make([]survivor, len(metadata))
	parallelFor(len(metadata), func(lane int) {
		md := &metadata[lane]
		if md.Flags&core.FlagVisible == 0 && md.Flags&core.FlagAlwaysVisible == 0 {
			return
		}
		tested.Add(1)

		dist := distance(cam.Position, md.Center)
		if md.Flags&core.FlagAlwaysVisible == 0 {
			if md.Flags&core.FlagSkipFrustum == 0 &&
				!core.SphereInFrustum(md.Center, md.Radius, cam.Planes) {
				frustumRejected.Add(1)
				return
			}
			if dist-md.Radius > c.MaxDistance {
				distanceRejected.Add(1)
				return
			}
		}

		at := cursor.Add(1) - 1
		survivors[at] = survivor{index: lane, distance: dist}
	})
	survivors = survivors[:cursor.Load()]

	// Compact: overflow drops farthest-first, a frame-local decision.
	var overflowed uint32
	if len(survivors) > c.Capacity {
		sort.Slice(survivors, func(i, j int) bool {
			return survivors[i].distance < survivors[j].distance
		})
		overflowed = uint32(len(survivors) - c.Capacity)
		survivors = survivors[:c.Capacity]
		c.Log.Warnf("draw buffer overflow: dropped %d farthest objects this frame", overflowed)
	}

	commands := make([]core.IndirectCommand, len(survivors))
	for i, s := range survivors {
		md := &metadata[s.index]
		indexCount := md.IndexCount
		if indexCount == 0 {
			// No generated mesh yet; draw the placeholder primitive rather
			// than a zero-size or garbage draw.
			indexCount = core.DefaultIndexCount
		}
		commands[i] = core.IndirectCommand{
			IndexCount:    indexCount,
			InstanceCount: 1,
			FirstIndex:    md.FirstIndex,
			BaseVertex:    md.BaseVertex,
			FirstInstance: uint32(s.index),
		}
	}

	stats := core.CullStats{
		Tested:           tested.Load(),
		FrustumRejected:  frustumRejected.Load(),
		DistanceRejected: distanceRejected.Load(),
		Drawn:            uint32(len(commands)),
		Overflowed:       overflowed,
	}
	return commands, stats
}

func distance(a, b mgl32.Vec3) float32 {
	dx := float64(a.X() - b.X())
	dy := float64(a.Y() - b.Y())
	dz := float64(a.Z() - b.Z())
	return float32(math.Sqrt(dx*dx + dy*dy + dz*dz))
}
