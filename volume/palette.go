// Package volume owns the CPU-side bookkeeping of the world buffer: the flat
// voxel storage, the chunk metadata table, the material palette, and the
// slot table that maps logical chunk coordinates onto a bounded pool of
// physical storage slots.
package volume

// Material opacity classes. SeeThrough materials still occupy a voxel but do
// not occlude neighboring faces.
const (
	OpacityOpaque uint32 = iota
	OpacitySeeThrough
)

type Material struct {
	BaseColor [4]uint8 // RGBA
	Emissive  [4]uint8 // RGBA
	Opacity   uint32
}

func NewMaterial(baseColor [4]uint8) Material {
	return Material{
		BaseColor: baseColor,
		Opacity:   OpacityOpaque,
	}
}

// Palette indexes materials by voxel material id. Id 0 is always air.
type Palette struct {
	materials []Material
}

func NewPalette() *Palette {
	// Slot 0 is air; it has no visual properties and is never emitted.
	return &Palette{materials: []Material{{}}}
}

// Add registers a material and returns its id.
func (p *Palette) Add(m Material) uint16 {
	p.materials = append(p.materials, m)
	return uint16(len(p.materials) - 1)
}

// Get returns the material for an id, or the air material for unknown ids.
func (p *Palette) Get(id uint16) Material {
	if int(id) >= len(p.materials) {
		return Material{}
	}
	return p.materials[id]
}

// Occludes reports whether a voxel of this material hides the face of an
// adjacent solid voxel. Air, see-through materials and unregistered ids do
// not; the meshing shader resolves unknown ids the same way.
func (p *Palette) Occludes(id uint16) bool {
	if id == 0 || int(id) >= len(p.materials) {
		return false
	}
	return p.materials[id].Opacity == OpacityOpaque
}

func (p *Palette) Len() int { return len(p.materials) }
