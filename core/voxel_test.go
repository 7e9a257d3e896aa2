package core

import "testing"

func TestVoxelPacking(t *testing.T) {
	v := NewVoxel(0xBEEF, 7, 12, 3)
	if got := v.Material(); got != 0xBEEF {
		t.Errorf("Material() = %#x, want 0xBEEF", got)
	}
	if got := v.Light(); got != 7 {
		t.Errorf("Light() = %d, want 7", got)
	}
	if got := v.SkyLight(); got != 12 {
		t.Errorf("SkyLight() = %d, want 12", got)
	}
	if got := v.Meta(); got != 3 {
		t.Errorf("Meta() = %d, want 3", got)
	}
}

func TestVoxelNibbleMasking(t *testing.T) {
	// Values past 4 bits are truncated, never allowed to bleed into
	// neighboring fields.
	v := NewVoxel(1, 0xFF, 0xFF, 0xFF)
	if got := v.Light(); got != 15 {
		t.Errorf("Light() = %d, want 15", got)
	}
	if got := v.SkyLight(); got != 15 {
		t.Errorf("SkyLight() = %d, want 15", got)
	}
	if got := v.Meta(); got != 15 {
		t.Errorf("Meta() = %d, want 15", got)
	}
	if got := v.Material(); got != 1 {
		t.Errorf("Material() = %d, want 1", got)
	}
}

func TestVoxelAir(t *testing.T) {
	if !Air.IsAir() {
		t.Error("Air.IsAir() = false")
	}
	// Lit air is still air.
	if lit := NewVoxel(0, 0, 15, 0); !lit.IsAir() {
		t.Error("lit air IsAir() = false")
	}
	if solid := NewVoxel(1, 0, 0, 0); solid.IsAir() {
		t.Error("material 1 IsAir() = true")
	}
}
