package steelsky

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func testVolumetricConfig() VolumetricConfig {
	cfg := DefaultVolumetricConfig(64, 36)
	cfg.GridWidth = 16
	cfg.GridHeight = 9
	cfg.GridDepth = 8
	cfg.MarchSteps = 16
	return cfg
}

func testVolumetricUniforms(w, h int) VolumetricUniforms {
	view := mgl32.LookAtV(mgl32.Vec3{0, 2, 8}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0})
	proj := PerspectiveZO(mgl32.DegToRad(60), float32(w)/float32(h), 0.5, 400)
	viewProj := proj.Mul4(view)
	sun := SunStateAt(0.4)
	return VolumetricUniforms{
		InvViewProj:     viewProj.Inv(),
		ViewProj:        viewProj,
		PrevViewProj:    viewProj,
		CameraPosition:  mgl32.Vec3{0, 2, 8},
		SunDirection:    sun.Direction,
		SunIlluminance:  sun.Illuminance,
		FogDensity:      0.05,
		ScatteringCoeff: 1.0,
		GodRayStrength:  0.5,
		GodRayDecay:     1.0,
		ScreenWidth:     w,
		ScreenHeight:    h,
	}
}

func TestFogDensityZeroLeavesSceneUntouched(t *testing.T) {
	cfg := testVolumetricConfig()
	engine, err := NewVolumetricEngine(NewNopLogger(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	w, h := 64, 36
	scene := NewColorBuffer(w, h)
	for i := range scene.Pix {
		scene.Pix[i] = mgl32.Vec3{float32(i%7) * 0.1, float32(i%5) * 0.2, float32(i%3) * 0.3}
	}
	want := make([]mgl32.Vec3, len(scene.Pix))
	copy(want, scene.Pix)

	depth := NewDepthBuffer(w, h)
	for i := range depth.Pix {
		depth.Pix[i] = 0.6
	}

	u := testVolumetricUniforms(w, h)
	u.FogDensity = 0
	if err := engine.Render(u, EarthAtmosphere(), depth, nil, scene); err != nil {
		t.Fatal(err)
	}

	for i := range scene.Pix {
		if scene.Pix[i] != want[i] {
			t.Fatalf("pixel %d changed from %v to %v with zero fog", i, want[i], scene.Pix[i])
		}
	}
}

func TestFillProducesFogNearGround(t *testing.T) {
	cfg := testVolumetricConfig()
	field := NewVolumetricField(cfg.GridWidth, cfg.GridHeight, cfg.GridDepth)
	u := testVolumetricUniforms(64, 36)

	fill := fillConfig{
		NearPlane:     cfg.NearPlane,
		FarPlane:      cfg.FarPlane,
		HeightFalloff: cfg.HeightFalloff,
		FarFogStart:   cfg.FarFogStart,
		FarFogEnd:     cfg.FarFogEnd,
		FarFogScale:   cfg.FarFogScale,
		AmbientSky:    cfg.AmbientSky,
	}
	noise := NewNoise3D(cfg.NoiseSeed, cfg.NoisePeriod)
	if err := FillVolumetricField(field, u, EarthAtmosphere(), noise, nil, fill); err != nil {
		t.Fatal(err)
	}

	var any bool
	for i, d := range field.Density {
		if d < 0 {
			t.Fatalf("negative density at %d", i)
		}
		if d > 0 {
			any = true
		}
	}
	if !any {
		t.Fatal("fill with nonzero fog density produced an empty field")
	}
}

func TestMarchSkipsSkyPixels(t *testing.T) {
	cfg := testVolumetricConfig()
	field := NewVolumetricField(cfg.GridWidth, cfg.GridHeight, cfg.GridDepth)
	for i := range field.Density {
		field.Density[i] = 1
		field.Scattering[i] = mgl32.Vec3{1, 1, 1}
	}

	w, h := 64, 36
	depth := NewDepthBuffer(w, h) // cleared to SkyDepth
	out := NewLightBuffer(w, h)
	u := testVolumetricUniforms(w, h)

	march := marchConfig{NearPlane: cfg.NearPlane, FarPlane: cfg.FarPlane, Steps: cfg.MarchSteps}
	if err := MarchVolumetricField(field, u, depth, out, march); err != nil {
		t.Fatal(err)
	}
	for i, px := range out.Pix {
		if px != (mgl32.Vec4{}) {
			t.Fatalf("sky pixel %d accumulated fog: %v", i, px)
		}
	}
}

func TestMarchAccumulatesThroughFog(t *testing.T) {
	cfg := testVolumetricConfig()
	field := NewVolumetricField(cfg.GridWidth, cfg.GridHeight, cfg.GridDepth)
	for i := range field.Density {
		field.Density[i] = 0.05
		field.Scattering[i] = mgl32.Vec3{0.02, 0.02, 0.02}
	}

	w, h := 64, 36
	depth := NewDepthBuffer(w, h)
	for i := range depth.Pix {
		depth.Pix[i] = 0.9
	}
	out := NewLightBuffer(w, h)
	u := testVolumetricUniforms(w, h)

	march := marchConfig{NearPlane: cfg.NearPlane, FarPlane: cfg.FarPlane, Steps: cfg.MarchSteps}
	if err := MarchVolumetricField(field, u, depth, out, march); err != nil {
		t.Fatal(err)
	}

	center := out.At(w/2, h/2)
	if center[3] <= 0 || center[3] >= 1 {
		t.Errorf("expected partial occlusion, alpha = %f", center[3])
	}
	if center[0] <= 0 {
		t.Error("expected accumulated in-scattered light")
	}
}

func TestReprojectionStaticCameraUsesMaxHistory(t *testing.T) {
	w, h := 32, 18
	u := testVolumetricUniforms(w, h) // PrevViewProj == ViewProj

	depth := NewDepthBuffer(w, h)
	for i := range depth.Pix {
		depth.Pix[i] = 0.5
	}

	current := NewLightBuffer(w, h)
	previous := NewLightBuffer(w, h)
	for i := range current.Pix {
		current.Pix[i] = mgl32.Vec4{1, 1, 1, 1}
		previous.Pix[i] = mgl32.Vec4{0, 0, 0, 0}
	}

	out := NewLightBuffer(w, h)
	if err := ReprojectLightBuffer(current, previous, u, depth, out); err != nil {
		t.Fatal(err)
	}

	// Static camera: blend = 0.9 * history + 0.1 * current.
	got := out.At(w/2, h/2)
	if math.Abs(float64(got[0]-0.1)) > 5e-3 {
		t.Errorf("static pixel blended to %f, want ~0.1", got[0])
	}
}

func TestReprojectionOutOfBoundsKeepsCurrent(t *testing.T) {
	w, h := 32, 18
	u := testVolumetricUniforms(w, h)

	// Previous camera looked the opposite way: every reprojection lands
	// behind it.
	view := mgl32.LookAtV(mgl32.Vec3{0, 2, 8}, mgl32.Vec3{0, 2, 100}, mgl32.Vec3{0, 1, 0})
	proj := PerspectiveZO(mgl32.DegToRad(60), float32(w)/float32(h), 0.5, 400)
	u.PrevViewProj = proj.Mul4(view)

	depth := NewDepthBuffer(w, h)
	for i := range depth.Pix {
		depth.Pix[i] = 0.5
	}

	current := NewLightBuffer(w, h)
	previous := NewLightBuffer(w, h)
	for i := range current.Pix {
		current.Pix[i] = mgl32.Vec4{0.7, 0.7, 0.7, 0.5}
		previous.Pix[i] = mgl32.Vec4{5, 5, 5, 1}
	}

	out := NewLightBuffer(w, h)
	if err := ReprojectLightBuffer(current, previous, u, depth, out); err != nil {
		t.Fatal(err)
	}
	if got := out.At(w/2, h/2); got != current.At(w/2, h/2) {
		t.Errorf("out-of-frustum history should be discarded, got %v", got)
	}
}

func TestCompositeReinhardBoundsContribution(t *testing.T) {
	w, h := 16, 9
	scene := NewColorBuffer(w, h)
	light := NewLightBuffer(w, h)
	for i := range light.Pix {
		light.Pix[i] = mgl32.Vec4{1000, 1000, 1000, 1} // absurdly bright fog
	}
	u := testVolumetricUniforms(w, h)
	u.GodRayStrength = 0

	if err := CompositeVolumetrics(scene, light, u); err != nil {
		t.Fatal(err)
	}
	for i, px := range scene.Pix {
		for c := 0; c < 3; c++ {
			if px[c] >= 1 {
				t.Fatalf("pixel %d channel %d not tonemapped: %f", i, c, px[c])
			}
		}
	}
}

func TestJitterOffsetPattern(t *testing.T) {
	seen := map[[2]float32]bool{}
	for i := 0; i < 64; i++ {
		jx, jy := jitterOffset(i)
		if jx < -0.5 || jx > 0.5 || jy < -0.5 || jy > 0.5 {
			t.Fatalf("offset %d out of range: (%f, %f)", i, jx, jy)
		}
		seen[[2]float32{jx, jy}] = true
	}
	if len(seen) != 64 {
		t.Errorf("expected 64 distinct offsets per cycle, got %d", len(seen))
	}
	// The pattern repeats after 64 frames.
	x0, y0 := jitterOffset(0)
	x64, y64 := jitterOffset(64)
	if x0 != x64 || y0 != y64 {
		t.Error("jitter pattern should cycle with period 64")
	}
}
