// Package diag renders CPU-side snapshots of the world buffer as PNG
// images. The snapshots read only resident chunks, so they are cheap enough
// to dump from a running pipeline when geometry looks wrong.
package diag

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/gridfire/gridfire"
	"github.com/gridfire/gridfire/core"
	"github.com/gridfire/gridfire/volume"
)

// bounds is the chunk-space bounding box of the resident set.
type bounds struct {
	minX, minY, minZ int32
	maxX, maxY, maxZ int32
}

func residentBounds(world *volume.WorldBuffer) (bounds, bool) {
	chunks := world.ResidentChunks()
	if len(chunks) == 0 {
		return bounds{}, false
	}
	b := bounds{
		minX: chunks[0].X, maxX: chunks[0].X,
		minY: chunks[0].Y, maxY: chunks[0].Y,
		minZ: chunks[0].Z, maxZ: chunks[0].Z,
	}
	for _, c := range chunks[1:] {
		b.minX = min(b.minX, c.X)
		b.maxX = max(b.maxX, c.X)
		b.minY = min(b.minY, c.Y)
		b.maxY = max(b.maxY, c.Y)
		b.minZ = min(b.minZ, c.Z)
		b.maxZ = max(b.maxZ, c.Z)
	}
	return b, true
}

func materialColor(world *volume.WorldBuffer, material uint16, skyLight uint8) color.RGBA {
	m := world.Palette().Get(material)
	// Sky light scales brightness the same way meshing scales face shade.
	scale := 0.5 + 0.5*float64(skyLight)/15
	return color.RGBA{
		R: uint8(float64(m.BaseColor[0]) * scale),
		G: uint8(float64(m.BaseColor[1]) * scale),
		B: uint8(float64(m.BaseColor[2]) * scale),
		A: 255,
	}
}

// CrossSection renders the XZ plane at world height wy across every resident
// chunk. Air and non-resident columns come out transparent.
func CrossSection(world *volume.WorldBuffer, wy int64) *image.RGBA {
	b, ok := residentBounds(world)
	if !ok {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	originX := int64(b.minX) * gridfire.ChunkSize
	originZ := int64(b.minZ) * gridfire.ChunkSize
	width := int(b.maxX-b.minX+1) * gridfire.ChunkSize
	depth := int(b.maxZ-b.minZ+1) * gridfire.ChunkSize

	img := image.NewRGBA(image.Rect(0, 0, width, depth))
	for pz := 0; pz < depth; pz++ {
		for px := 0; px < width; px++ {
			v, ok := world.VoxelAtWorld(originX+int64(px), wy, originZ+int64(pz))
			if !ok || v.IsAir() {
				continue
			}
			img.SetRGBA(px, pz, materialColor(world, v.Material(), v.SkyLight()))
		}
	}
	return img
}

// Heightmap renders a top-down view of the resident set: each column shows
// the highest non-air voxel, shaded by its height within the resident range.
func Heightmap(world *volume.WorldBuffer) *image.RGBA {
	b, ok := residentBounds(world)
	if !ok {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	originX := int64(b.minX) * gridfire.ChunkSize
	originZ := int64(b.minZ) * gridfire.ChunkSize
	topY := int64(b.maxY+1)*gridfire.ChunkSize - 1
	bottomY := int64(b.minY) * gridfire.ChunkSize
	width := int(b.maxX-b.minX+1) * gridfire.ChunkSize
	depth := int(b.maxZ-b.minZ+1) * gridfire.ChunkSize

	img := image.NewRGBA(image.Rect(0, 0, width, depth))
	span := float64(topY - bottomY + 1)
	for pz := 0; pz < depth; pz++ {
		for px := 0; px < width; px++ {
			for wy := topY; wy >= bottomY; wy-- {
				v, ok := world.VoxelAtWorld(originX+int64(px), wy, originZ+int64(pz))
				if !ok || v.IsAir() {
					continue
				}
				c := materialColor(world, v.Material(), 15)
				h := 0.35 + 0.65*float64(wy-bottomY+1)/span
				c.R = uint8(float64(c.R) * h)
				c.G = uint8(float64(c.G) * h)
				c.B = uint8(float64(c.B) * h)
				img.SetRGBA(px, pz, c)
				break
			}
		}
	}
	return img
}

// Scale resizes a snapshot by an integer factor with nearest-neighbor
// sampling, keeping voxel edges crisp.
func Scale(img *image.RGBA, factor int) *image.RGBA {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// CullSummary formats one frame's culling counters for log output.
func CullSummary(stats core.CullStats) string {
	return fmt.Sprintf("culled %d records: %d drawn, %d frustum, %d distance, %d overflowed",
		stats.Tested, stats.Drawn, stats.FrustumRejected, stats.DistanceRejected, stats.Overflowed)
}

// WritePNG encodes a snapshot to a file.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot %s: %w", path, err)
	}
	return f.Close()
}
