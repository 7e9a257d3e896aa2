package volume

import (
	"fmt"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
)

// ChunkCoord is a logical chunk position in the world grid.
type ChunkCoord struct {
	X, Y, Z int32
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Chunk lifecycle states.
const (
	StateUngenerated uint32 = iota
	StateGenerated
)

// ChunkMetadata is one record per resident chunk slot.
type ChunkMetadata struct {
	Coord ChunkCoord
	State uint32

	// Timestamp orders slot touches; monotonically non-decreasing across
	// regenerations of the same chunk. Drives LRU eviction.
	Timestamp uint64

	// Stamp is the slot's reuse generation. It increments on every eviction
	// so in-flight work targeting the previous occupant can be detected and
	// discarded instead of corrupting the reassigned slot.
	Stamp uint32

	// Pinned slots are never eviction candidates.
	Pinned bool

	// Dirty marks a generated chunk whose mesh is stale.
	Dirty bool
}

// SlotRef is an index-based handle to a physical slot plus the reuse stamp it
// was issued under. Holders must revalidate the stamp before committing
// results produced asynchronously.
type SlotRef struct {
	Slot  int
	Stamp uint32
}

// WorldBuffer owns the voxel storage, the chunk metadata table, the material
// palette and the slot table. Kernels read it as immutable for the duration
// of a frame; only the generation kernel (and explicit edits) write voxels.
type WorldBuffer struct {
	cfg     gridfire.Config
	codec   core.Codec
	voxels  []core.Voxel
	meta    []ChunkMetadata
	slots   map[ChunkCoord]int
	palette *Palette
}

// NewWorldBuffer reserves voxel storage for the whole slot pool, the metadata
// table and the slot table. Voxel storage starts zero-filled (all air).
func NewWorldBuffer(cfg gridfire.Config, palette *Palette) (*WorldBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world buffer config: %w", err)
	}
	if palette == nil {
		palette = NewPalette()
	}
	return &WorldBuffer{
		cfg: cfg,
		codec: core.NewCodec(
			uint32(cfg.WorldChunksX)*gridfire.ChunkSize,
			uint32(cfg.WorldChunksY)*gridfire.ChunkSize,
			uint32(cfg.WorldChunksZ)*gridfire.ChunkSize,
		),
		voxels:  make([]core.Voxel, cfg.PoolSlots*gridfire.VoxelsPerChunk),
		meta:    make([]ChunkMetadata, cfg.PoolSlots),
		slots:   make(map[ChunkCoord]int, cfg.PoolSlots),
		palette: palette,
	}, nil
}

func (w *WorldBuffer) Config() gridfire.Config { return w.cfg }
func (w *WorldBuffer) Palette() *Palette       { return w.palette }

// Voxels exposes the flat storage for GPU upload. Treat as read-only.
func (w *WorldBuffer) Voxels() []core.Voxel { return w.voxels }

// InDomain reports whether a logical chunk coordinate is inside the
// configured world extent.
func (w *WorldBuffer) InDomain(c ChunkCoord) bool {
	return c.X >= 0 && int(c.X) < w.cfg.WorldChunksX &&
		c.Y >= 0 && int(c.Y) < w.cfg.WorldChunksY &&
		c.Z >= 0 && int(c.Z) < w.cfg.WorldChunksZ
}

// SlotFor looks up the live slot for a chunk coordinate. Never allocates.
func (w *WorldBuffer) SlotFor(c ChunkCoord) (SlotRef, bool) {
	slot, ok := w.slots[c]
	if !ok {
		return SlotRef{}, false
	}
	return SlotRef{Slot: slot, Stamp: w.meta[slot].Stamp}, true
}

// AssignSlot maps a chunk coordinate to a physical slot, reusing an existing
// mapping, taking a free slot, or evicting the least-recently-touched
// unpinned occupant. Fails with ErrPoolExhausted when every slot is pinned.
// A fresh assignment zero-fills the slot's voxel storage.
func (w *WorldBuffer) AssignSlot(c ChunkCoord, timestamp uint64) (SlotRef, error) {
	if !w.InDomain(c) {
		return SlotRef{}, fmt.Errorf("%w: chunk %s", gridfire.ErrInvalidCoordinate, c)
	}
	if slot, ok := w.slots[c]; ok {
		w.touch(slot, timestamp)
		return SlotRef{Slot: slot, Stamp: w.meta[slot].Stamp}, nil
	}

	slot := -1
	var oldest uint64
	for i := range w.meta {
		m := &w.meta[i]
		if m.Pinned {
			continue
		}
		if s, occupied := w.slots[m.Coord]; !occupied || s != i {
			// Free slot, take it outright.
			slot = i
			break
		}
		if slot == -1 || m.Timestamp < oldest {
			slot = i
			oldest = m.Timestamp
		}
	}
	if slot == -1 {
		return SlotRef{}, fmt.Errorf("%w: all %d slots pinned", gridfire.ErrPoolExhausted, w.cfg.PoolSlots)
	}

	// Evict the previous occupant before reuse.
	if s, occupied := w.slots[w.meta[slot].Coord]; occupied && s == slot {
		w.evictSlot(slot)
	}

	w.slots[c] = slot
	m := &w.meta[slot]
	m.Coord = c
	m.State = StateUngenerated
	m.Timestamp = timestamp
	m.Dirty = false

	base := slot * gridfire.VoxelsPerChunk
	clear(w.voxels[base : base+gridfire.VoxelsPerChunk])

	return SlotRef{Slot: slot, Stamp: m.Stamp}, nil
}

// Evict drops a chunk's slot mapping and invalidates outstanding SlotRefs by
// bumping the reuse stamp.
func (w *WorldBuffer) Evict(c ChunkCoord) bool {
	slot, ok := w.slots[c]
	if !ok {
		return false
	}
	w.evictSlot(slot)
	return true
}

func (w *WorldBuffer) evictSlot(slot int) {
	m := &w.meta[slot]
	delete(w.slots, m.Coord)
	m.Stamp++
	m.State = StateUngenerated
	m.Pinned = false
	m.Dirty = false
}

// Valid reports whether a SlotRef still refers to the occupant it was issued
// for. Stale refs must be discarded, never written through.
func (w *WorldBuffer) Valid(ref SlotRef) bool {
	return ref.Slot >= 0 && ref.Slot < len(w.meta) && w.meta[ref.Slot].Stamp == ref.Stamp
}

// MarkGenerated transitions a slot's metadata to the generated state. The
// caller serializes per-slot writes; concurrent calls for the same slot are a
// contract violation. Timestamps must not go backwards.
func (w *WorldBuffer) MarkGenerated(ref SlotRef, timestamp uint64) error {
	if !w.Valid(ref) {
		return fmt.Errorf("%w: stale slot ref %d@%d", gridfire.ErrInvalidCoordinate, ref.Slot, ref.Stamp)
	}
	m := &w.meta[ref.Slot]
	if timestamp < m.Timestamp {
		return fmt.Errorf("timestamp %d regresses below %d for slot %d", timestamp, m.Timestamp, ref.Slot)
	}
	m.State = StateGenerated
	m.Timestamp = timestamp
	m.Dirty = true
	return nil
}

// Metadata returns a copy of the slot's metadata record.
func (w *WorldBuffer) Metadata(slot int) ChunkMetadata { return w.meta[slot] }

// MarkDirty flags a generated chunk for remeshing.
func (w *WorldBuffer) MarkDirty(c ChunkCoord) {
	if slot, ok := w.slots[c]; ok {
		w.meta[slot].Dirty = true
	}
}

// ClearDirty acknowledges that a chunk's mesh is up to date again.
func (w *WorldBuffer) ClearDirty(ref SlotRef) {
	if w.Valid(ref) {
		w.meta[ref.Slot].Dirty = false
	}
}

// Pin excludes a slot from eviction until Unpin.
func (w *WorldBuffer) Pin(ref SlotRef) {
	if w.Valid(ref) {
		w.meta[ref.Slot].Pinned = true
	}
}

func (w *WorldBuffer) Unpin(ref SlotRef) {
	if w.Valid(ref) {
		w.meta[ref.Slot].Pinned = false
	}
}

// Touch refreshes a slot's LRU timestamp without changing its state, so a
// chunk accessed outside AssignSlot (an edit, for example) stops being an
// eviction candidate.
func (w *WorldBuffer) Touch(ref SlotRef, timestamp uint64) {
	if w.Valid(ref) {
		w.touch(ref.Slot, timestamp)
	}
}

func (w *WorldBuffer) touch(slot int, timestamp uint64) {
	if timestamp > w.meta[slot].Timestamp {
		w.meta[slot].Timestamp = timestamp
	}
}

// SetVoxel writes one voxel into a slot using chunk-local Morton addressing.
// Only the generation kernel and explicit edit paths may call it.
func (w *WorldBuffer) SetVoxel(ref SlotRef, lx, ly, lz uint32, v core.Voxel) error {
	if !w.Valid(ref) {
		return fmt.Errorf("%w: stale slot ref %d@%d", gridfire.ErrInvalidCoordinate, ref.Slot, ref.Stamp)
	}
	off, err := core.EncodeLocal(lx, ly, lz)
	if err != nil {
		return err
	}
	w.voxels[ref.Slot*gridfire.VoxelsPerChunk+int(off)] = v
	return nil
}

// VoxelAt reads one voxel from a slot by chunk-local coordinates.
func (w *WorldBuffer) VoxelAt(slot int, lx, ly, lz uint32) core.Voxel {
	off, err := core.EncodeLocal(lx, ly, lz)
	if err != nil {
		return core.Air
	}
	return w.voxels[slot*gridfire.VoxelsPerChunk+int(off)]
}

// VoxelAtWorld resolves a world-space voxel coordinate through the slot
// table. Coordinates in ungenerated or non-resident chunks read as air; the
// second return distinguishes that case for callers that care.
//
// The world codec does the domain check, and because the chunk edge is 32
// the low 15 bits of the world code are exactly the chunk-local offset.
func (w *WorldBuffer) VoxelAtWorld(wx, wy, wz int64) (core.Voxel, bool) {
	if wx < 0 || wy < 0 || wz < 0 ||
		wx >= int64(w.codec.W) || wy >= int64(w.codec.H) || wz >= int64(w.codec.D) {
		return core.Air, false
	}
	m, err := w.codec.Encode(uint32(wx), uint32(wy), uint32(wz))
	if err != nil {
		return core.Air, false
	}
	c := ChunkCoord{
		X: int32(wx / gridfire.ChunkSize),
		Y: int32(wy / gridfire.ChunkSize),
		Z: int32(wz / gridfire.ChunkSize),
	}
	slot, ok := w.slots[c]
	if !ok || w.meta[slot].State != StateGenerated {
		return core.Air, false
	}
	return w.voxels[slot*gridfire.VoxelsPerChunk+int(m&(gridfire.VoxelsPerChunk-1))], true
}

// ResidentChunks returns the coordinates of every live slot. Order is
// unspecified.
func (w *WorldBuffer) ResidentChunks() []ChunkCoord {
	out := make([]ChunkCoord, 0, len(w.slots))
	for c := range w.slots {
		out = append(out, c)
	}
	return out
}
