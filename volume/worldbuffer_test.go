package volume

import (
	"errors"
	"testing"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
)

func testConfig(slots int) gridfire.Config {
	cfg := gridfire.DefaultConfig()
	cfg.WorldChunksX = 8
	cfg.WorldChunksY = 8
	cfg.WorldChunksZ = 8
	cfg.PoolSlots = slots
	return cfg
}

func newTestWorld(t *testing.T, slots int) *WorldBuffer {
	t.Helper()
	w, err := NewWorldBuffer(testConfig(slots), nil)
	if err != nil {
		t.Fatalf("NewWorldBuffer: %v", err)
	}
	return w
}

func TestAssignSlotReusesMapping(t *testing.T) {
	w := newTestWorld(t, 4)
	c := ChunkCoord{1, 2, 3}

	ref1, err := w.AssignSlot(c, 10)
	if err != nil {
		t.Fatalf("AssignSlot: %v", err)
	}
	ref2, err := w.AssignSlot(c, 20)
	if err != nil {
		t.Fatalf("AssignSlot again: %v", err)
	}
	if ref1 != ref2 {
		t.Errorf("reassignment moved the chunk: %v != %v", ref1, ref2)
	}
	if ts := w.Metadata(ref1.Slot).Timestamp; ts != 20 {
		t.Errorf("timestamp = %d, want 20 after touch", ts)
	}
}

func TestAssignSlotPrefersFreeSlots(t *testing.T) {
	w := newTestWorld(t, 4)
	seen := map[int]bool{}
	for i := int32(0); i < 4; i++ {
		ref, err := w.AssignSlot(ChunkCoord{i, 0, 0}, uint64(i))
		if err != nil {
			t.Fatalf("AssignSlot %d: %v", i, err)
		}
		if seen[ref.Slot] {
			t.Fatalf("slot %d evicted while free slots remained", ref.Slot)
		}
		if ref.Stamp != 0 {
			t.Fatalf("fresh slot %d has stamp %d, want 0", ref.Slot, ref.Stamp)
		}
		seen[ref.Slot] = true
	}
}

func TestAssignSlotEvictsLeastRecent(t *testing.T) {
	w := newTestWorld(t, 2)
	a, b := ChunkCoord{0, 0, 0}, ChunkCoord{1, 0, 0}

	refA, _ := w.AssignSlot(a, 1)
	refB, _ := w.AssignSlot(b, 2)

	// Touch a so b becomes the LRU.
	if _, err := w.AssignSlot(a, 3); err != nil {
		t.Fatalf("touch: %v", err)
	}

	refC, err := w.AssignSlot(ChunkCoord{2, 0, 0}, 4)
	if err != nil {
		t.Fatalf("AssignSlot with full pool: %v", err)
	}
	if refC.Slot != refB.Slot {
		t.Errorf("evicted slot %d, want LRU slot %d", refC.Slot, refB.Slot)
	}
	if _, ok := w.SlotFor(b); ok {
		t.Error("evicted chunk still resident")
	}
	if _, ok := w.SlotFor(a); !ok {
		t.Error("recently touched chunk was evicted")
	}
	if w.Valid(refB) {
		t.Error("ref issued before eviction still validates")
	}
	if refA2, _ := w.SlotFor(a); !w.Valid(refA2) {
		t.Error("surviving chunk's ref does not validate")
	}
	_ = refA
}

func TestAssignSlotAllPinned(t *testing.T) {
	w := newTestWorld(t, 2)
	for i := int32(0); i < 2; i++ {
		ref, err := w.AssignSlot(ChunkCoord{i, 0, 0}, 1)
		if err != nil {
			t.Fatalf("AssignSlot: %v", err)
		}
		w.Pin(ref)
	}
	if _, err := w.AssignSlot(ChunkCoord{5, 0, 0}, 2); !errors.Is(err, gridfire.ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}

	// Unpinning one slot makes the pool usable again.
	ref, _ := w.SlotFor(ChunkCoord{0, 0, 0})
	w.Unpin(ref)
	if _, err := w.AssignSlot(ChunkCoord{5, 0, 0}, 3); err != nil {
		t.Fatalf("AssignSlot after unpin: %v", err)
	}
}

func TestAssignSlotOutOfDomain(t *testing.T) {
	w := newTestWorld(t, 2)
	if _, err := w.AssignSlot(ChunkCoord{-1, 0, 0}, 1); !errors.Is(err, gridfire.ErrInvalidCoordinate) {
		t.Errorf("err = %v, want ErrInvalidCoordinate", err)
	}
	if _, err := w.AssignSlot(ChunkCoord{8, 0, 0}, 1); !errors.Is(err, gridfire.ErrInvalidCoordinate) {
		t.Errorf("err = %v, want ErrInvalidCoordinate", err)
	}
}

func TestStaleRefWritesRejected(t *testing.T) {
	w := newTestWorld(t, 2)
	c := ChunkCoord{0, 0, 0}
	ref, _ := w.AssignSlot(c, 1)
	w.Evict(c)

	if err := w.SetVoxel(ref, 0, 0, 0, core.NewVoxel(1, 0, 0, 0)); err == nil {
		t.Error("SetVoxel through stale ref succeeded")
	}
	if err := w.MarkGenerated(ref, 2); err == nil {
		t.Error("MarkGenerated through stale ref succeeded")
	}
}

func TestMarkGeneratedTimestampMonotonic(t *testing.T) {
	w := newTestWorld(t, 2)
	ref, _ := w.AssignSlot(ChunkCoord{0, 0, 0}, 10)
	if err := w.MarkGenerated(ref, 5); err == nil {
		t.Error("MarkGenerated accepted a regressing timestamp")
	}
	if err := w.MarkGenerated(ref, 10); err != nil {
		t.Errorf("MarkGenerated with equal timestamp: %v", err)
	}
	md := w.Metadata(ref.Slot)
	if md.State != StateGenerated {
		t.Errorf("state = %d, want generated", md.State)
	}
	if !md.Dirty {
		t.Error("generated chunk not marked dirty for meshing")
	}
}

func TestReassignmentClearsStorage(t *testing.T) {
	w := newTestWorld(t, 1)
	c := ChunkCoord{0, 0, 0}
	ref, _ := w.AssignSlot(c, 1)
	if err := w.SetVoxel(ref, 3, 4, 5, core.NewVoxel(7, 0, 0, 0)); err != nil {
		t.Fatalf("SetVoxel: %v", err)
	}

	// Evicting and reassigning the same slot must not leak old voxels.
	w.Evict(c)
	ref2, err := w.AssignSlot(ChunkCoord{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("AssignSlot: %v", err)
	}
	if ref2.Slot != ref.Slot {
		t.Fatalf("expected slot reuse with pool of 1")
	}
	if v := w.VoxelAt(ref2.Slot, 3, 4, 5); !v.IsAir() {
		t.Errorf("reused slot reads stale voxel %#x", uint32(v))
	}
	if ref2.Stamp == ref.Stamp {
		t.Error("reuse stamp did not change across eviction")
	}
}

func TestVoxelAtWorldResolution(t *testing.T) {
	w := newTestWorld(t, 4)
	c := ChunkCoord{1, 1, 1}
	ref, _ := w.AssignSlot(c, 1)

	// Ungenerated chunks read as air with ok=false.
	if _, ok := w.VoxelAtWorld(40, 40, 40); ok {
		t.Error("ungenerated chunk reported ok")
	}

	if err := w.MarkGenerated(ref, 1); err != nil {
		t.Fatalf("MarkGenerated: %v", err)
	}
	want := core.NewVoxel(3, 2, 9, 0)
	if err := w.SetVoxel(ref, 8, 8, 8, want); err != nil {
		t.Fatalf("SetVoxel: %v", err)
	}

	got, ok := w.VoxelAtWorld(32+8, 32+8, 32+8)
	if !ok || got != want {
		t.Errorf("VoxelAtWorld = %#x ok=%v, want %#x ok=true", uint32(got), ok, uint32(want))
	}

	// Non-resident and out-of-domain coordinates read as air, not ok.
	if _, ok := w.VoxelAtWorld(200, 200, 200); ok {
		t.Error("non-resident chunk reported ok")
	}
	if v, ok := w.VoxelAtWorld(-1, 0, 0); ok || !v.IsAir() {
		t.Error("negative coordinate did not read as air")
	}
	if _, ok := w.VoxelAtWorld(256, 0, 0); ok {
		t.Error("coordinate past the world extent reported ok")
	}
}

func TestTouchRefreshesTimestamp(t *testing.T) {
	w := newTestWorld(t, 2)
	c := ChunkCoord{0, 0, 0}
	ref, _ := w.AssignSlot(c, 1)

	w.Touch(ref, 5)
	if ts := w.Metadata(ref.Slot).Timestamp; ts != 5 {
		t.Errorf("timestamp = %d, want 5 after touch", ts)
	}
	// Timestamps never regress.
	w.Touch(ref, 3)
	if ts := w.Metadata(ref.Slot).Timestamp; ts != 5 {
		t.Errorf("timestamp = %d, want 5 after lower touch", ts)
	}
	// Stale refs are ignored.
	w.Evict(c)
	ref2, _ := w.AssignSlot(c, 6)
	w.Touch(ref, 99)
	if ts := w.Metadata(ref2.Slot).Timestamp; ts != 6 {
		t.Errorf("timestamp = %d, stale ref touched the slot", ts)
	}
}

func TestDirtyFlagLifecycle(t *testing.T) {
	w := newTestWorld(t, 2)
	c := ChunkCoord{0, 0, 0}
	ref, _ := w.AssignSlot(c, 1)
	if err := w.MarkGenerated(ref, 1); err != nil {
		t.Fatalf("MarkGenerated: %v", err)
	}

	w.ClearDirty(ref)
	if w.Metadata(ref.Slot).Dirty {
		t.Error("dirty flag survived ClearDirty")
	}
	w.MarkDirty(c)
	if !w.Metadata(ref.Slot).Dirty {
		t.Error("MarkDirty did not set the flag")
	}
	// Marking a non-resident chunk is a no-op, not a panic.
	w.MarkDirty(ChunkCoord{7, 7, 7})
}

func TestPaletteOcclusion(t *testing.T) {
	p := NewPalette()
	stone := p.Add(NewMaterial([4]uint8{128, 128, 128, 255}))
	glass := NewMaterial([4]uint8{200, 220, 255, 80})
	glass.Opacity = OpacitySeeThrough
	glassID := p.Add(glass)

	if p.Occludes(0) {
		t.Error("air occludes")
	}
	if !p.Occludes(stone) {
		t.Error("opaque material does not occlude")
	}
	if p.Occludes(glassID) {
		t.Error("see-through material occludes")
	}
	// Unknown ids fall back to air, including the first id past the end.
	if p.Occludes(999) {
		t.Error("unknown material occludes")
	}
	if p.Occludes(uint16(p.Len())) {
		t.Error("id one past the palette end occludes")
	}
	if got := p.Get(999); got != (Material{}) {
		t.Errorf("Get(999) = %+v, want air material", got)
	}
}
