package kernel

import "github.com/gridfire/gridfire/volume"

// Built-in demo terrain. Terrain content is external to the pipeline; this
// density function exists so the demo binary and the tests have something
// deterministic to generate. It uses integer hashing only, no floating
// point, so results are bit-identical on every backend.

// Demo material ids, registered in the same order by DemoPalette.
const (
	MatStone uint16 = 1
	MatDirt  uint16 = 2
	MatGrass uint16 = 3
	MatWater uint16 = 4
)

// hash32 mixes a 32-bit input with murmur-style avalanching.
func hash32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// hash2 is a stable hash of 2D column coordinates plus seed.
func hash2(seed uint32, x, z int64) uint32 {
	h := seed
	h ^= uint32(x) * 0x9e3779b1
	h ^= uint32(z) * 0x85ebca6b
	return hash32(h)
}

// DemoTerrain is a rolling-hills height field with a water table. The height
// at a column is a bilinear blend of hashed lattice values, computed entirely
// in integer arithmetic.
func DemoTerrain(seed uint32, wx, wy, wz int64) uint16 {
	const (
		baseHeight = 64
		amplitude  = 24
		cellShift  = 5 // 32-voxel noise lattice
		seaLevel   = 60
	)

	cx, cz := wx>>cellShift, wz>>cellShift
	fx := uint32(wx) & (1<<cellShift - 1)
	fz := uint32(wz) & (1<<cellShift - 1)

	h00 := int64(hash2(seed, cx, cz) % amplitude)
	h10 := int64(hash2(seed, cx+1, cz) % amplitude)
	h01 := int64(hash2(seed, cx, cz+1) % amplitude)
	h11 := int64(hash2(seed, cx+1, cz+1) % amplitude)

	const cell = 1 << cellShift
	top := h00*int64(cell-fx) + h10*int64(fx)
	bot := h01*int64(cell-fx) + h11*int64(fx)
	height := baseHeight + (top*int64(cell-fz)+bot*int64(fz))/(cell*cell)

	switch {
	case wy < height-4:
		return MatStone
	case wy < height-1:
		return MatDirt
	case wy < height:
		return MatGrass
	case wy < seaLevel:
		return MatWater
	default:
		return 0
	}
}

// SolidTerrain fills every voxel with one material. Test helper.
func SolidTerrain(material uint16) DensityFunc {
	return func(uint32, int64, int64, int64) uint16 { return material }
}

// DemoPalette registers the demo materials in the same id order as the
// constants above. Water is see-through.
func DemoPalette() *volume.Palette {
	p := volume.NewPalette()
	p.Add(volume.NewMaterial([4]uint8{128, 128, 128, 255})) // stone
	p.Add(volume.NewMaterial([4]uint8{134, 96, 67, 255}))   // dirt
	p.Add(volume.NewMaterial([4]uint8{96, 160, 64, 255}))   // grass
	water := volume.NewMaterial([4]uint8{48, 96, 192, 160})
	water.Opacity = volume.OpacitySeeThrough
	p.Add(water)
	return p
}
