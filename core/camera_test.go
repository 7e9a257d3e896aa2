package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// lookDownNegZ builds a camera at the origin looking down -Z with a 60 degree
// vertical FOV and a 1000 unit far plane.
func lookDownNegZ() Camera {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 1000)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	return CameraFromViewProj(mgl32.Vec3{0, 0, 0}, proj.Mul4(view))
}

func TestSphereInFrustumCenter(t *testing.T) {
	cam := lookDownNegZ()
	if !SphereInFrustum(mgl32.Vec3{0, 0, -50}, 1, cam.Planes) {
		t.Error("sphere straight ahead reported outside frustum")
	}
}

func TestSphereBehindCamera(t *testing.T) {
	cam := lookDownNegZ()
	if SphereInFrustum(mgl32.Vec3{0, 0, 50}, 1, cam.Planes) {
		t.Error("sphere behind camera reported inside frustum")
	}
}

func TestSphereOutsideSidePlane(t *testing.T) {
	cam := lookDownNegZ()
	// Far off to the +X side at shallow depth.
	if SphereInFrustum(mgl32.Vec3{500, 0, -10}, 1, cam.Planes) {
		t.Error("sphere far off to the side reported inside frustum")
	}
}

func TestSphereStraddlingPlaneKept(t *testing.T) {
	cam := lookDownNegZ()
	// Center is outside the left plane but the radius reaches back in. The
	// test must be conservative and keep it.
	if !SphereInFrustum(mgl32.Vec3{-100, 0, -50}, 200, cam.Planes) {
		t.Error("sphere straddling a plane was culled")
	}
}

func TestSphereBeyondFarPlane(t *testing.T) {
	cam := lookDownNegZ()
	if SphereInFrustum(mgl32.Vec3{0, 0, -2000}, 1, cam.Planes) {
		t.Error("sphere beyond the far plane reported inside frustum")
	}
}

func TestFrustumPlanesNormalized(t *testing.T) {
	cam := lookDownNegZ()
	for i, p := range cam.Planes {
		len2 := p.X()*p.X() + p.Y()*p.Y() + p.Z()*p.Z()
		if len2 < 0.999 || len2 > 1.001 {
			t.Errorf("plane %d normal length^2 = %f, want 1", i, len2)
		}
	}
}
