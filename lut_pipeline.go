package steelsky

import (
	"fmt"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// Fixed LUT resolutions. The transmittance and sky-view tables are wide
// because their horizontal axes carry the horizon detail.
const (
	TransmittanceLUTWidth  = 256
	TransmittanceLUTHeight = 128

	MultiScatteringLUTSize = 64

	SkyViewLUTWidth  = 256
	SkyViewLUTHeight = 144
)

const (
	transmittanceSampleCount   = 40
	multiScatteringSampleCount = 20
	skyViewSampleCount         = 30

	// Stratified direction grid for the multi-scattering Monte Carlo sum.
	multiScatterSqrtSamples = 8

	// Stability clamp for the geometric-series denominator. A tunable, not
	// a physical constant.
	multiScatterSeriesFloor = 0.01
)

// parallelRows runs fn over [0,height) rows, data parallel, and returns the
// first error.
func parallelRows(height int, fn func(y int) error) error {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for y := 0; y < height; y++ {
		row := y
		g.Go(func() error { return fn(row) })
	}
	return g.Wait()
}

// ComputeTransmittanceLUT fills stage (a): view-height x zenith-angle to
// transmittance through the whole shell.
func ComputeTransmittanceLUT(m *AtmosphereModel) (*LUT2D, error) {
	lut := NewLUT2D(TransmittanceLUTWidth, TransmittanceLUTHeight)
	err := parallelRows(lut.Height, func(y int) error {
		v := (float32(y) + 0.5) / float32(lut.Height)
		for x := 0; x < lut.Width; x++ {
			u := (float32(x) + 0.5) / float32(lut.Width)
			viewHeight, viewZenithCos := uvToTransmittanceParams(m, u, v)

			origin := mgl32.Vec3{0, viewHeight, 0}
			dir := mgl32.Vec3{sqrt32(1.0 - viewZenithCos*viewZenithCos), viewZenithCos, 0}

			res := IntegrateScatteredLuminance(IntegrateParams{
				Origin:       origin,
				Direction:    dir,
				SunDirection: dir, // unused without phase weighting
				Atmosphere:   m,
				SampleCount:  transmittanceSampleCount,
				DepthLimit:   -1,
				Illuminance:  mgl32.Vec3{1, 1, 1},
			})
			lut.Set(x, y, expVec3(res.OpticalDepth.Mul(-1)), 1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transmittance stage: %w", err)
	}
	return lut, nil
}

// ComputeMultiScatteringLUT fills stage (b): view-height x sun-zenith-angle
// to isotropic multi-scatter radiance. Each texel Monte-Carlo samples an 8x8
// stratified grid of directions over the sphere and closes the infinite
// scattering-order series with L / (1 - r).
func ComputeMultiScatteringLUT(m *AtmosphereModel, transmittance *LUT2D, factor float32) (*LUT2D, error) {
	if transmittance == nil {
		return nil, fmt.Errorf("multi-scattering stage requires the transmittance LUT")
	}
	lut := NewLUT2D(MultiScatteringLUTSize, MultiScatteringLUTSize)
	sqrtN := multiScatterSqrtSamples
	invN := 1.0 / float32(sqrtN*sqrtN)
	sphereSolidAngle := 4.0 * Pi

	err := parallelRows(lut.Height, func(y int) error {
		v := (float32(y) + 0.5) / float32(lut.Height)
		for x := 0; x < lut.Width; x++ {
			u := (float32(x) + 0.5) / float32(lut.Width)
			viewHeight, sunZenithCos := uvToMultiScatterParams(m, u, v, lut.Width)

			origin := mgl32.Vec3{0, viewHeight, 0}
			sunDir := mgl32.Vec3{sqrt32(1.0 - sunZenithCos*sunZenithCos), sunZenithCos, 0}

			var inscattered, moment mgl32.Vec3
			for i := 0; i < sqrtN; i++ {
				for j := 0; j < sqrtN; j++ {
					// Stratified uniform sphere directions.
					randA := (float32(i) + 0.5) / float32(sqrtN)
					randB := (float32(j) + 0.5) / float32(sqrtN)
					theta := 2.0 * Pi * randA
					phi := acos32(1.0 - 2.0*randB)
					sinPhi := sin32(phi)
					dir := mgl32.Vec3{sinPhi * cos32(theta), cos32(phi), sinPhi * sin32(theta)}

					res := IntegrateScatteredLuminance(IntegrateParams{
						Origin:        origin,
						Direction:     dir,
						SunDirection:  sunDir,
						Atmosphere:    m,
						Ground:        true,
						SampleCount:   multiScatteringSampleCount,
						DepthLimit:    -1,
						Transmittance: transmittance,
						Illuminance:   mgl32.Vec3{1, 1, 1},
					})
					inscattered = inscattered.Add(res.Luminance)
					moment = moment.Add(res.MultiScatterMoment)
				}
			}
			// Mean over the sphere, then the isotropic phase collapses the
			// solid angle factor.
			inscattered = inscattered.Mul(sphereSolidAngle * invN * UniformPhase())
			moment = moment.Mul(invN)

			var psi mgl32.Vec3
			for c := 0; c < 3; c++ {
				psi[c] = inscattered[c] / max32(multiScatterSeriesFloor, 1.0-moment[c])
			}
			lut.Set(x, y, psi.Mul(factor), 1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("multi-scattering stage: %w", err)
	}
	return lut, nil
}

// ComputeSkyViewLUT fills stage (c): a horizon-relative angular map of sky
// luminance around the camera's current altitude, for unit sun illuminance.
func ComputeSkyViewLUT(m *AtmosphereModel, transmittance, multiScattering *LUT2D, cameraPos, sunDir mgl32.Vec3) (*LUT2D, error) {
	if transmittance == nil || multiScattering == nil {
		return nil, fmt.Errorf("sky-view stage requires transmittance and multi-scattering LUTs")
	}
	lut := NewLUT2D(SkyViewLUTWidth, SkyViewLUTHeight)

	viewHeight := cameraPos.Len()
	if viewHeight < m.BottomRadius+PlanetRadiusOffset {
		viewHeight = m.BottomRadius + PlanetRadiusOffset
	}
	if viewHeight > m.TopRadius-PlanetRadiusOffset {
		viewHeight = m.TopRadius - PlanetRadiusOffset
	}
	origin := mgl32.Vec3{0, viewHeight, 0}
	// The table is azimuth-relative to the sun, so only its zenith angle
	// survives into the local frame.
	sunZenithCos := Clamp(sunDir.Normalize()[1], -1, 1)
	localSunDir := mgl32.Vec3{sqrt32(1.0 - sunZenithCos*sunZenithCos), sunZenithCos, 0}

	err := parallelRows(lut.Height, func(y int) error {
		v := (float32(y) + 0.5) / float32(lut.Height)
		for x := 0; x < lut.Width; x++ {
			u := (float32(x) + 0.5) / float32(lut.Width)
			viewZenithCos, lightViewCos := uvToSkyViewParams(m, viewHeight, u, v, lut.Width, lut.Height)

			viewZenithSin := sqrt32(1.0 - viewZenithCos*viewZenithCos)
			lightViewSin := sqrt32(1.0 - lightViewCos*lightViewCos)
			dir := mgl32.Vec3{
				viewZenithSin * lightViewCos,
				viewZenithCos,
				viewZenithSin * lightViewSin,
			}

			res := IntegrateScatteredLuminance(IntegrateParams{
				Origin:              origin,
				Direction:           dir,
				SunDirection:        localSunDir,
				Atmosphere:          m,
				SampleCount:         skyViewSampleCount,
				VariableSampleCount: true,
				MieRayPhase:         true,
				DepthLimit:          -1,
				Transmittance:       transmittance,
				MultiScattering:     multiScattering,
				Illuminance:         mgl32.Vec3{1, 1, 1},
			})
			lut.Set(x, y, res.Luminance, 1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sky-view stage: %w", err)
	}
	return lut, nil
}
