package steelsky

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestRaySphereIntersect(t *testing.T) {
	center := mgl32.Vec3{0, 0, 0}

	// Straight through the middle.
	r := NewRay(mgl32.Vec3{-5, 0, 0}, mgl32.Vec3{1, 0, 0})
	t0, t1, ok := RaySphereIntersect(r, center, 1)
	if !ok {
		t.Fatal("expected hit through sphere center")
	}
	if math.Abs(float64(t0-4)) > 1e-4 || math.Abs(float64(t1-6)) > 1e-4 {
		t.Errorf("expected t0=4 t1=6, got %f %f", t0, t1)
	}

	// Clean miss.
	r = NewRay(mgl32.Vec3{-5, 3, 0}, mgl32.Vec3{1, 0, 0})
	if _, _, ok := RaySphereIntersect(r, center, 1); ok {
		t.Error("expected miss for offset ray")
	}

	// Origin inside the sphere: entry behind, exit ahead.
	r = NewRay(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	t0, t1, ok = RaySphereIntersect(r, center, 2)
	if !ok || t0 >= 0 || t1 <= 0 {
		t.Errorf("inside origin: ok=%v t0=%f t1=%f", ok, t0, t1)
	}
}

func TestRaySphereIntersectNearest(t *testing.T) {
	center := mgl32.Vec3{}

	// Sphere entirely behind the ray.
	r := NewRay(mgl32.Vec3{5, 0, 0}, mgl32.Vec3{1, 0, 0})
	if d := RaySphereIntersectNearest(r, center, 1); d >= 0 {
		t.Errorf("sphere behind ray should report no hit, got %f", d)
	}

	// Inside the sphere the exit distance comes back.
	r = NewRay(mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	if d := RaySphereIntersectNearest(r, center, 3); math.Abs(float64(d-3)) > 1e-4 {
		t.Errorf("expected exit at 3, got %f", d)
	}
}

func TestMoveToTopAtmosphere(t *testing.T) {
	top := float32(6460)

	// Looking at the planet from space hits the shell.
	origin := mgl32.Vec3{0, 8000, 0}
	moved, ok := MoveToTopAtmosphere(origin, mgl32.Vec3{0, -1, 0}, top)
	if !ok {
		t.Fatal("ray aimed at planet should reach the shell")
	}
	if r := moved.Len(); math.Abs(float64(r-top)) > 0.05 {
		t.Errorf("expected advance onto shell radius %f, got %f", top, r)
	}

	// Looking away from the planet misses it entirely.
	if _, ok := MoveToTopAtmosphere(origin, mgl32.Vec3{0, 1, 0}, top); ok {
		t.Error("ray aimed away from planet should miss the shell")
	}

	// Already inside: unchanged.
	inside := mgl32.Vec3{0, 6400, 0}
	moved, ok = MoveToTopAtmosphere(inside, mgl32.Vec3{0, 1, 0}, top)
	if !ok || moved != inside {
		t.Errorf("origin inside shell should be untouched, got %v ok=%v", moved, ok)
	}
}

func TestPhaseFunctions(t *testing.T) {
	if got := UniformPhase(); math.Abs(float64(got-1.0/(4.0*math.Pi))) > 1e-7 {
		t.Errorf("uniform phase = %f", got)
	}

	// Rayleigh is symmetric in cosTheta.
	if RayleighPhase(0.7) != RayleighPhase(-0.7) {
		t.Error("rayleigh phase should be symmetric")
	}

	// Cornette-Shanks with positive g favors forward scattering.
	if CornetteShanksPhase(0.8, 1) <= CornetteShanksPhase(0.8, -1) {
		t.Error("forward lobe should dominate for g=0.8")
	}

	// Numerical normalization over the sphere: integral of phase over all
	// solid angles is 1.
	for _, g := range []float32{0, 0.4, 0.8} {
		sum := 0.0
		n := 2048
		for i := 0; i < n; i++ {
			mu := -1.0 + (float64(i)+0.5)*2.0/float64(n)
			sum += float64(CornetteShanksPhase(g, float32(mu))) * 2 * math.Pi * (2.0 / float64(n))
		}
		if math.Abs(sum-1) > 0.01 {
			t.Errorf("cornette-shanks g=%f integrates to %f", g, sum)
		}
	}
}

func TestScalarHelpers(t *testing.T) {
	if Saturate(-0.5) != 0 || Saturate(1.5) != 1 || Saturate(0.25) != 0.25 {
		t.Error("saturate misbehaves")
	}
	if Clamp(5, 0, 2) != 2 || Clamp(-5, 0, 2) != 0 {
		t.Error("clamp misbehaves")
	}
	if Smoothstep(0, 1, -1) != 0 || Smoothstep(0, 1, 2) != 1 {
		t.Error("smoothstep should clamp outside the edge range")
	}
	if got := Smoothstep(0, 1, 0.5); math.Abs(float64(got-0.5)) > 1e-6 {
		t.Errorf("smoothstep midpoint = %f", got)
	}
	if got := Mean(mgl32.Vec3{1, 2, 3}); math.Abs(float64(got-2)) > 1e-6 {
		t.Errorf("mean = %f", got)
	}
}
