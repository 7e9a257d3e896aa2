package diag

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/kernel"
	"github.com/gridfire/gridfire/volume"
)

func testWorld(t *testing.T) *volume.WorldBuffer {
	t.Helper()
	cfg := gridfire.DefaultConfig()
	cfg.WorldChunksX = 4
	cfg.WorldChunksY = 4
	cfg.WorldChunksZ = 4
	cfg.PoolSlots = 8
	w, err := volume.NewWorldBuffer(cfg, kernel.DemoPalette())
	if err != nil {
		t.Fatalf("NewWorldBuffer: %v", err)
	}
	return w
}

// slabTerrain is stone below y=8, air above.
func slabTerrain(seed uint32, wx, wy, wz int64) uint16 {
	if wy < 8 {
		return kernel.MatStone
	}
	return 0
}

func generate(t *testing.T, w *volume.WorldBuffer, c volume.ChunkCoord) {
	t.Helper()
	ref, err := w.AssignSlot(c, 1)
	if err != nil {
		t.Fatalf("AssignSlot %s: %v", c, err)
	}
	gen := kernel.NewGenerator(w, slabTerrain, w.Config().Seed, nil)
	if _, err := gen.Generate([]kernel.GenRequest{{Coord: c, Ref: ref}}, 1); err != nil {
		t.Fatalf("Generate %s: %v", c, err)
	}
}

func TestCrossSectionSlab(t *testing.T) {
	w := testWorld(t)
	generate(t, w, volume.ChunkCoord{X: 0, Y: 0, Z: 0})

	img := CrossSection(w, 4)
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Fatalf("bounds = %v, want 32x32", img.Bounds())
	}
	// Stone with sky light 0 renders at half brightness.
	got := img.RGBAAt(3, 5)
	if got.A != 255 || got.R != 64 || got.G != 64 || got.B != 64 {
		t.Errorf("stone pixel = %+v, want half-bright gray", got)
	}
}

func TestCrossSectionAboveSlabIsTransparent(t *testing.T) {
	w := testWorld(t)
	generate(t, w, volume.ChunkCoord{X: 0, Y: 0, Z: 0})

	img := CrossSection(w, 20)
	if got := img.RGBAAt(10, 10); got.A != 0 {
		t.Errorf("air pixel = %+v, want transparent", got)
	}
}

func TestCrossSectionSpansResidentChunks(t *testing.T) {
	w := testWorld(t)
	generate(t, w, volume.ChunkCoord{X: 0, Y: 0, Z: 0})
	generate(t, w, volume.ChunkCoord{X: 1, Y: 0, Z: 0})

	img := CrossSection(w, 4)
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Fatalf("bounds = %v, want 64x32", img.Bounds())
	}
	if got := img.RGBAAt(40, 10); got.A != 255 {
		t.Errorf("second chunk pixel = %+v, want opaque", got)
	}
}

func TestCrossSectionEmptyWorld(t *testing.T) {
	w := testWorld(t)
	img := CrossSection(w, 0)
	if img.Bounds().Dx() != 1 || img.Bounds().Dy() != 1 {
		t.Fatalf("bounds = %v, want 1x1 placeholder", img.Bounds())
	}
}

func TestHeightmapTopVoxel(t *testing.T) {
	w := testWorld(t)
	generate(t, w, volume.ChunkCoord{X: 0, Y: 0, Z: 0})

	img := Heightmap(w)
	got := img.RGBAAt(16, 16)
	if got.A != 255 {
		t.Fatalf("column pixel = %+v, want opaque", got)
	}
	if got.R == 0 {
		t.Errorf("column pixel has zero brightness")
	}
}

func TestScaleNearest(t *testing.T) {
	w := testWorld(t)
	generate(t, w, volume.ChunkCoord{X: 0, Y: 0, Z: 0})

	img := CrossSection(w, 4)
	scaled := Scale(img, 4)
	if scaled.Bounds().Dx() != 128 || scaled.Bounds().Dy() != 128 {
		t.Fatalf("scaled bounds = %v, want 128x128", scaled.Bounds())
	}
	if scaled.RGBAAt(0, 0) != img.RGBAAt(0, 0) {
		t.Errorf("scaled corner = %+v, want %+v", scaled.RGBAAt(0, 0), img.RGBAAt(0, 0))
	}
	if Scale(img, 1) != img {
		t.Errorf("factor 1 should return the input image")
	}
}

func TestCullSummary(t *testing.T) {
	s := CullSummary(core.CullStats{Tested: 343, Drawn: 40, FrustumRejected: 200, DistanceRejected: 100, Overflowed: 3})
	want := "culled 343 records: 40 drawn, 200 frustum, 100 distance, 3 overflowed"
	if s != want {
		t.Errorf("summary = %q, want %q", s, want)
	}
}

func TestWritePNGRoundTrip(t *testing.T) {
	w := testWorld(t)
	generate(t, w, volume.ChunkCoord{X: 0, Y: 0, Z: 0})

	path := filepath.Join(t.TempDir(), "slice.png")
	if err := WritePNG(path, CrossSection(w, 4)); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != 32 || decoded.Bounds().Dy() != 32 {
		t.Errorf("decoded bounds = %v, want 32x32", decoded.Bounds())
	}
}
