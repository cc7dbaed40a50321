package steelsky

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	testLUTOnce sync.Once
	testLUTSet  *LUTSet
	testLUTErr  error
)

// earthNoonLUTSet computes one shared LUT set for the read-only tests: Earth
// preset, camera at ground level, sun at zenith.
func earthNoonLUTSet(t *testing.T) *LUTSet {
	t.Helper()
	testLUTOnce.Do(func() {
		m := EarthAtmosphere()
		cam := mgl32.Vec3{0, m.BottomRadius + 0.001, 0}
		testLUTSet, testLUTErr = ComputeLUTSet(m, cam, mgl32.Vec3{0, 1, 0}, 1.0)
	})
	if testLUTErr != nil {
		t.Fatalf("lut set: %v", testLUTErr)
	}
	return testLUTSet
}

func TestTransmittanceLUTRange(t *testing.T) {
	lut := earthNoonLUTSet(t).Transmittance
	for y := 0; y < lut.Height; y++ {
		for x := 0; x < lut.Width; x++ {
			rgb, _ := lut.At(x, y)
			for i := 0; i < 3; i++ {
				if rgb[i] < 0 || rgb[i] > 1 {
					t.Fatalf("transmittance at (%d,%d) channel %d out of range: %f", x, y, i, rgb[i])
				}
			}
		}
	}
}

func TestTransmittanceLUTHorizonDarker(t *testing.T) {
	lut := earthNoonLUTSet(t).Transmittance
	m := earthNoonLUTSet(t).Atmosphere
	h := m.BottomRadius + 0.1

	zenithU, zenithV := transmittanceParamsToUV(m, h, 1.0)
	horizonU, horizonV := transmittanceParamsToUV(m, h, 0.02)

	up := lut.Sample(zenithU, zenithV)
	low := lut.Sample(horizonU, horizonV)
	if low[2] >= up[2] {
		t.Errorf("near-horizon transmittance %f should be below zenith %f", low[2], up[2])
	}
}

func TestMultiScatteringLUTNonNegative(t *testing.T) {
	lut := earthNoonLUTSet(t).MultiScattering
	for y := 0; y < lut.Height; y++ {
		for x := 0; x < lut.Width; x++ {
			rgb, _ := lut.At(x, y)
			for i := 0; i < 3; i++ {
				if rgb[i] < 0 {
					t.Fatalf("multi-scattering at (%d,%d) channel %d negative: %f", x, y, i, rgb[i])
				}
			}
		}
	}
}

func TestMultiScatteringFactorScales(t *testing.T) {
	m := EarthAtmosphere()
	tr, err := ComputeTransmittanceLUT(m)
	if err != nil {
		t.Fatal(err)
	}
	base, err := ComputeMultiScatteringLUT(m, tr, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	boosted, err := ComputeMultiScatteringLUT(m, tr, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	x, y := base.Width/2, base.Height/2
	b, _ := base.At(x, y)
	d, _ := boosted.At(x, y)
	if d[1] <= b[1] {
		t.Errorf("doubling the factor should brighten the table: %f vs %f", d[1], b[1])
	}
}

func TestSkyViewLUTNoonIsBlue(t *testing.T) {
	set := earthNoonLUTSet(t)
	lut := set.SkyView

	var anyLit bool
	for y := 0; y < lut.Height; y++ {
		for x := 0; x < lut.Width; x++ {
			rgb, _ := lut.At(x, y)
			for i := 0; i < 3; i++ {
				if rgb[i] < 0 {
					t.Fatalf("sky-view at (%d,%d) channel %d negative: %f", x, y, i, rgb[i])
				}
			}
			if rgb.Len() > 0 {
				anyLit = true
			}
		}
	}
	if !anyLit {
		t.Fatal("noon sky-view table is entirely dark")
	}

	// Looking straight up at noon the sky is blue dominant. The zenith lives
	// at the top of the table.
	zenith := lut.Sample(0.5, 0.0)
	if zenith[2] <= zenith[0] {
		t.Errorf("noon zenith should be blue dominant, got %v", zenith)
	}
}

func TestComputeLUTSetStagesConsistent(t *testing.T) {
	set := earthNoonLUTSet(t)
	if set.Transmittance == nil || set.MultiScattering == nil || set.SkyView == nil {
		t.Fatal("lut set missing a stage")
	}
	if set.Transmittance.Width != TransmittanceLUTWidth || set.Transmittance.Height != TransmittanceLUTHeight {
		t.Error("transmittance table has wrong dimensions")
	}
	if set.MultiScattering.Width != MultiScatteringLUTSize || set.MultiScattering.Height != MultiScatteringLUTSize {
		t.Error("multi-scattering table has wrong dimensions")
	}
	if set.SkyView.Width != SkyViewLUTWidth || set.SkyView.Height != SkyViewLUTHeight {
		t.Error("sky-view table has wrong dimensions")
	}
}
