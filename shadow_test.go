package steelsky

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// lightFromAbove builds an orthographic light looking straight down onto the
// origin, covering [-10,10] in x/z and depth range [0.1, 100].
func lightFromAbove() mgl32.Mat4 {
	view := mgl32.LookAtV(mgl32.Vec3{0, 50, 0}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1})
	proj := OrthoZO(-10, 10, -10, 10, 0.1, 100)
	return proj.Mul4(view)
}

func TestVisibilityOutsideFrustumIsLit(t *testing.T) {
	depth := NewDepthBuffer(8, 8)
	for i := range depth.Pix {
		depth.Pix[i] = 0 // occluder right at the near plane
	}
	sm := NewShadowMapFromDepth(depth, lightFromAbove())

	// Far outside the ortho volume sideways.
	if v := sm.Visibility(mgl32.Vec3{100, 0, 0}); v != 1 {
		t.Errorf("position outside frustum should be lit, got %f", v)
	}
}

func TestVisibilityOccludedAndLit(t *testing.T) {
	lightVP := lightFromAbove()

	// Empty map (sky depth everywhere): everything is lit.
	open := NewShadowMapFromDepth(NewDepthBuffer(16, 16), lightVP)
	if v := open.Visibility(mgl32.Vec3{0, 1, 0}); v < 0.99 {
		t.Errorf("empty shadow map should leave the point lit, got %f", v)
	}

	// Occluder at the near plane blocks everything below it.
	depth := NewDepthBuffer(16, 16)
	for i := range depth.Pix {
		depth.Pix[i] = 0
	}
	blocked := NewShadowMapFromDepth(depth, lightVP)
	if v := blocked.Visibility(mgl32.Vec3{0, 1, 0}); v > 0.05 {
		t.Errorf("point below a near-plane occluder should be dark, got %f", v)
	}
}

func TestDownsampleHalves(t *testing.T) {
	depth := NewDepthBuffer(16, 16)
	sm := NewShadowMapFromDepth(depth, lightFromAbove())
	half := sm.Downsample()
	if half.W != 8 || half.H != 8 {
		t.Fatalf("expected 8x8, got %dx%d", half.W, half.H)
	}
	// Uniform input stays uniform.
	if math.Abs(float64(half.Pix[0]-sm.Pix[0])) > 1e-2*float64(sm.Pix[0]) {
		t.Errorf("uniform map should survive downsampling: %f vs %f", half.Pix[0], sm.Pix[0])
	}
}

func TestSampleShadowPlanetSelfShadow(t *testing.T) {
	m := EarthAtmosphere()

	// Sun below the horizon: the planet itself blocks the light.
	if v := SampleShadow(mgl32.Vec3{0, 10, 0}, mgl32.Vec3{0, -1, 0}, m, nil); v != 0 {
		t.Errorf("downward sun should be self-shadowed, got %f", v)
	}
	// Sun overhead with no map: fully lit.
	if v := SampleShadow(mgl32.Vec3{0, 10, 0}, mgl32.Vec3{0, 1, 0}, m, nil); v != 1 {
		t.Errorf("overhead sun with no map should be lit, got %f", v)
	}
}

func TestAtmospherePosition(t *testing.T) {
	m := EarthAtmosphere()
	p := atmospherePosition(mgl32.Vec3{1000, 2000, 0}, m)
	want := mgl32.Vec3{1, m.BottomRadius + 2, 0}
	if p.Sub(want).Len() > 1e-3 {
		t.Errorf("got %v want %v", p, want)
	}
}
