package kernel

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/volume"
)

// ErrSuperseded reports that a request's slot was reassigned while the
// request was in flight. The result is discarded, never committed.
var ErrSuperseded = errors.New("request superseded by slot reuse")

// faceDir enumerates the six cube face directions.
type faceDir int

const (
	facePosX faceDir = iota
	faceNegX
	facePosY
	faceNegY
	facePosZ
	faceNegZ
)

var faceNormals = [6][3]int64{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// faceCorners lists, per direction, the four quad corners as offsets from the
// voxel origin, ordered counter-clockwise as seen from the normal side.
// Triangles are (0,1,2) and (0,2,3).
var faceCorners = [6][4][3]uint32{
	facePosX: {{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}},
	faceNegX: {{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}},
	facePosY: {{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}},
	faceNegY: {{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
	facePosZ: {{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
	faceNegZ: {{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}},
}

// tangentAxes gives the two in-plane axes for each face direction.
var tangentAxes = [6][2]int{
	facePosX: {1, 2},
	faceNegX: {1, 2},
	facePosY: {0, 2},
	faceNegY: {0, 2},
	facePosZ: {0, 1},
	faceNegZ: {0, 1},
}

// MeshRequest names one chunk to mesh together with its slot.
type MeshRequest struct {
	Coord volume.ChunkCoord
	Ref   volume.SlotRef
}

// ChunkMesh is the committed geometry of one chunk.
type ChunkMesh struct {
	Vertices []core.Vertex
	Indices  []uint32
}

// MeshingStats accumulates totals across dispatches.
type MeshingStats struct {
	Meshes    atomic.Uint64
	Vertices  atomic.Uint64
	Indices   atomic.Uint64
	Overflows atomic.Uint64
}

// Mesher scans generated chunks and emits visible-face geometry using atomic
// bump allocation over pre-sized vertex/index buffers. Each mesh request is
// its own allocation scope; an overflow discards the whole request's output
// so committed state is never partial.
type Mesher struct {
	World *volume.WorldBuffer
	Log   gridfire.Logger
	Stats MeshingStats

	maxVertices uint32
	maxIndices  uint32
}

func NewMesher(world *volume.WorldBuffer, log gridfire.Logger) *Mesher {
	cfg := world.Config()
	return &Mesher{
		World:       world,
		Log:         gridfire.OrNop(log),
		maxVertices: uint32(cfg.MaxVerticesPerChunk),
		maxIndices:  uint32(cfg.MaxIndicesPerChunk),
	}
}

// MeshChunk runs the meshing kernel for one chunk: parallel over all voxels,
// one face per solid-voxel/exposed-direction pair, vertices and indices
// placed through shared cursors. The finalize step after the lanes complete
// copies the final counts into the chunk's DrawMetadata so culling reads a
// stable value.
func (m *Mesher) MeshChunk(req MeshRequest) (ChunkMesh, core.DrawMetadata, error) {
	if !m.World.Valid(req.Ref) {
		return ChunkMesh{}, core.DrawMetadata{}, fmt.Errorf("chunk %s: %w", req.Coord, ErrSuperseded)
	}
	if m.World.Metadata(req.Ref.Slot).State != volume.StateGenerated {
		return ChunkMesh{}, core.DrawMetadata{}, fmt.Errorf("chunk %s not generated: %w",
			req.Coord, gridfire.ErrInvalidCoordinate)
	}

	vertices := make([]core.Vertex, m.maxVertices)
	indices := make([]uint32, m.maxIndices)
	vertexCursor := NewCursor(m.maxVertices)
	indexCursor := NewCursor(m.maxIndices)

	baseX := int64(req.Coord.X) * gridfire.ChunkSize
	baseY := int64(req.Coord.Y) * gridfire.ChunkSize
	baseZ := int64(req.Coord.Z) * gridfire.ChunkSize
	palette := m.World.Palette()
	slot := req.Ref.Slot

	parallelFor(gridfire.VoxelsPerChunk, func(lane int) {
		lx, ly, lz := core.DecodeLocal(uint32(lane))
		v := m.World.VoxelAt(slot, lx, ly, lz)
		if v.IsAir() {
			return
		}

		wx := baseX + int64(lx)
		wy := baseY + int64(ly)
		wz := baseZ + int64(lz)

		for dir := facePosX; dir <= faceNegZ; dir++ {
			n := faceNormals[dir]
			neighbor, resident := m.World.VoxelAtWorld(wx+n[0], wy+n[1], wz+n[2])
			if !m.faceExposed(v, neighbor, palette) {
				continue
			}
			m.emitFace(vertices, indices, vertexCursor, indexCursor,
				dir, wx, wy, wz, v, neighbor, resident, palette)
		}
	})

	if vertexCursor.Overflowed() || indexCursor.Overflowed() {
		m.Stats.Overflows.Add(1)
		m.Log.Warnf("mesh overflow for chunk %s: %d/%d vertices, %d/%d indices",
			req.Coord, vertexCursor.count.Load(), m.maxVertices,
			indexCursor.count.Load(), m.maxIndices)
		return ChunkMesh{}, core.DrawMetadata{}, fmt.Errorf("chunk %s: %w",
			req.Coord, gridfire.ErrMeshBufferOverflow)
	}
	if !m.World.Valid(req.Ref) {
		// Evicted mid-dispatch; slot now belongs to someone else.
		return ChunkMesh{}, core.DrawMetadata{}, fmt.Errorf("chunk %s: %w", req.Coord, ErrSuperseded)
	}

	// Finalize: single designated step, runs after all lanes are done.
	vertexCount := vertexCursor.Committed()
	indexCount := indexCursor.Committed()
	mesh := ChunkMesh{
		Vertices: vertices[:vertexCount],
		Indices:  indices[:indexCount],
	}

	meta := core.DrawMetadata{
		Center: mgl32.Vec3{
			float32(baseX) + gridfire.ChunkSize/2,
			float32(baseY) + gridfire.ChunkSize/2,
			float32(baseZ) + gridfire.ChunkSize/2,
		},
		Radius:     gridfire.ChunkSize / 2 * float32(math.Sqrt(3)),
		LODMaxDist: m.World.Config().MaxViewDistance,
		IndexCount: indexCount,
		FirstIndex: uint32(slot) * m.maxIndices,
		BaseVertex: int32(uint32(slot) * m.maxVertices),
	}
	if indexCount > 0 {
		meta.Flags = core.FlagVisible | core.FlagShadowCaster
	}

	m.Stats.Meshes.Add(1)
	m.Stats.Vertices.Add(uint64(vertexCount))
	m.Stats.Indices.Add(uint64(indexCount))
	return mesh, meta, nil
}

// faceExposed decides whether a face between a solid voxel and its neighbor
// is visible. Faces belong to the solid side only: an occluding neighbor
// hides the face, and adjacent see-through voxels of the same material do not
// draw internal faces against each other.
func (m *Mesher) faceExposed(v, neighbor core.Voxel, palette *volume.Palette) bool {
	nMat := neighbor.Material()
	if palette.Occludes(nMat) {
		return false
	}
	if nMat != 0 && nMat == v.Material() {
		return false
	}
	return true
}

func (m *Mesher) emitFace(vertices []core.Vertex, indices []uint32,
	vertexCursor, indexCursor *Cursor, dir faceDir,
	wx, wy, wz int64, v, neighbor core.Voxel, neighborResident bool, palette *volume.Palette) {

	vBase, ok := vertexCursor.Reserve(4)
	if !ok {
		return
	}
	iBase, ok := indexCursor.Reserve(6)
	if !ok {
		return
	}

	mat := palette.Get(v.Material())
	color := mgl32.Vec4{
		float32(mat.BaseColor[0]) / 255,
		float32(mat.BaseColor[1]) / 255,
		float32(mat.BaseColor[2]) / 255,
		float32(mat.BaseColor[3]) / 255,
	}
	n := faceNormals[dir]
	normal := mgl32.Vec3{float32(n[0]), float32(n[1]), float32(n[2])}

	// Sky light of the open neighbor scales the face; chunks outside
	// generated space read as fully lit.
	light := float32(15)
	if neighborResident {
		light = float32(neighbor.SkyLight())
	}
	lightScale := 0.5 + 0.5*light/15

	for c := 0; c < 4; c++ {
		corner := faceCorners[dir][c]
		ao := m.cornerAO(dir, corner, wx, wy, wz, palette)
		shade := ao * lightScale
		if shade > 1 {
			shade = 1
		}
		vertices[vBase+uint32(c)] = core.Vertex{
			Position: mgl32.Vec3{
				float32(wx) + float32(corner[0]),
				float32(wy) + float32(corner[1]),
				float32(wz) + float32(corner[2]),
			},
			Normal: normal,
			Color:  color,
			Shade:  shade,
		}
	}

	indices[iBase+0] = vBase + 0
	indices[iBase+1] = vBase + 1
	indices[iBase+2] = vBase + 2
	indices[iBase+3] = vBase + 0
	indices[iBase+4] = vBase + 2
	indices[iBase+5] = vBase + 3
}

// cornerAO samples the 3x3 neighborhood around one face corner, one step out
// along the face normal. Classic two-sides-and-a-corner occlusion, returning
// a scalar in [0,1].
func (m *Mesher) cornerAO(dir faceDir, corner [3]uint32, wx, wy, wz int64, palette *volume.Palette) float32 {
	n := faceNormals[dir]
	t1, t2 := tangentAxes[dir][0], tangentAxes[dir][1]

	// Corner coordinate 1 means the corner leans toward +axis, 0 toward -axis.
	sign := func(axis int) int64 {
		if corner[axis] == 1 {
			return 1
		}
		return -1
	}

	base := [3]int64{wx + n[0], wy + n[1], wz + n[2]}
	occludes := func(d1, d2 int64) bool {
		p := base
		p[t1] += d1
		p[t2] += d2
		vv, _ := m.World.VoxelAtWorld(p[0], p[1], p[2])
		return palette.Occludes(vv.Material())
	}

	side1 := occludes(sign(t1), 0)
	side2 := occludes(0, sign(t2))
	diag := occludes(sign(t1), sign(t2))

	if side1 && side2 {
		return 0
	}
	occ := 0
	if side1 {
		occ++
	}
	if side2 {
		occ++
	}
	if diag {
		occ++
	}
	ao := float32(3-occ) / 3
	if ao < 0 {
		return 0
	}
	if ao > 1 {
		return 1
	}
	return ao
}
