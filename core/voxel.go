package core

// Voxel packs material id, light, sky light and auxiliary metadata into one
// 32-bit word, matching the GPU-side storage layout:
//
//	bits  0-15  material id (64K materials)
//	bits 16-19  light level (0-15)
//	bits 20-23  sky light level (0-15)
//	bits 24-27  metadata (flags, rotation)
//	bits 28-31  reserved
type Voxel uint32

// Air is material 0; every kernel treats it as non-solid.
const Air Voxel = 0

func NewVoxel(material uint16, light, skyLight, meta uint8) Voxel {
	return Voxel(uint32(material) |
		uint32(light&0xF)<<16 |
		uint32(skyLight&0xF)<<20 |
		uint32(meta&0xF)<<24)
}

func (v Voxel) Material() uint16 { return uint16(v & 0xFFFF) }
func (v Voxel) Light() uint8     { return uint8(v >> 16 & 0xF) }
func (v Voxel) SkyLight() uint8  { return uint8(v >> 20 & 0xF) }
func (v Voxel) Meta() uint8      { return uint8(v >> 24 & 0xF) }

func (v Voxel) IsAir() bool { return v.Material() == 0 }
