package steelsky

import (
	"github.com/go-gl/mathgl/mgl32"
)

// tMaxMax is the absolute cap on any march distance (km). It only matters
// for rays that graze the shell almost tangentially.
const tMaxMax = 9000000.0

// IntegrateParams configures one invocation of the scattering integrator.
// Origin is planet-centered, in kilometers. A nil Transmittance LUT treats
// every sample as fully sunlit (only used while bootstrapping the
// transmittance table itself); a nil MultiScattering LUT disables the
// multi-scatter contribution.
type IntegrateParams struct {
	Origin       mgl32.Vec3
	Direction    mgl32.Vec3
	SunDirection mgl32.Vec3
	Atmosphere   *AtmosphereModel

	// Ground adds a Lambertian bounce when the ray terminates on the planet.
	Ground bool
	// SampleCount is the fixed step count, or the maximum when
	// VariableSampleCount concentrates samples near the origin.
	SampleCount         int
	VariableSampleCount bool
	// MieRayPhase selects the phase-weighted single-scattering combination;
	// when false the isotropic phase is used (multi-scattering stage).
	MieRayPhase bool

	// DepthLimit clamps the march distance (km); negative means unlimited.
	DepthLimit float32

	Transmittance   *LUT2D
	MultiScattering *LUT2D

	Illuminance mgl32.Vec3
}

// ScatteringResult is everything one march through the shell produces.
type ScatteringResult struct {
	Luminance          mgl32.Vec3
	OpticalDepth       mgl32.Vec3
	Transmittance      mgl32.Vec3
	MultiScatterMoment mgl32.Vec3
}

func emptyScatteringResult() ScatteringResult {
	return ScatteringResult{Transmittance: mgl32.Vec3{1, 1, 1}}
}

// IntegrateScatteredLuminance raymarches the atmosphere shell accumulating
// in-scattered luminance, optical depth and the first-order multi-scattering
// moment. It is the single source of truth for the scattering model: the
// three LUT stages and the sky compositor all call it with different flags,
// and identical inputs produce identical results.
func IntegrateScatteredLuminance(p IntegrateParams) ScatteringResult {
	result := emptyScatteringResult()
	m := p.Atmosphere
	planetCenter := mgl32.Vec3{}
	ray := NewRay(p.Origin, p.Direction)

	// March to the nearer of ground hit and atmosphere exit.
	tBottom := RaySphereIntersectNearest(ray, planetCenter, m.BottomRadius)
	tTop := RaySphereIntersectNearest(ray, planetCenter, m.TopRadius)
	var tMax float32
	switch {
	case tBottom < 0 && tTop < 0:
		return result // ray never enters the shell
	case tBottom < 0:
		tMax = tTop
	case tTop > 0:
		tMax = min32(tTop, tBottom)
	}
	if p.DepthLimit >= 0 {
		tMax = min32(tMax, p.DepthLimit)
	}
	tMax = min32(tMax, tMaxMax)
	if tMax <= 0 {
		return result
	}

	sampleCount := p.SampleCount
	if sampleCount < 1 {
		sampleCount = 1
	}

	cosTheta := p.SunDirection.Dot(p.Direction)
	miePhase := CornetteShanksPhase(m.MiePhaseG, -cosTheta)
	rayPhase := RayleighPhase(cosTheta)

	throughput := mgl32.Vec3{1, 1, 1}
	var luminance, opticalDepth, multiScatMoment mgl32.Vec3

	n := float32(sampleCount)
	var t, dt float32
	for s := 0; s < sampleCount; s++ {
		if p.VariableSampleCount {
			// Quadratic placement: more samples where the medium is densest,
			// near the ray origin.
			t0 := tMax * (float32(s) / n) * (float32(s) / n)
			t1 := tMax * (float32(s+1) / n) * (float32(s+1) / n)
			dt = t1 - t0
			t = t0 + dt*0.3
		} else {
			dt = tMax / n
			t = dt * (float32(s) + 0.3)
		}

		pos := p.Origin.Add(p.Direction.Mul(t))
		medium := m.SampleMedium(pos)

		sampleOpticalDepth := medium.Extinction.Mul(dt)
		sampleTransmittance := expVec3(sampleOpticalDepth.Mul(-1))
		opticalDepth = opticalDepth.Add(sampleOpticalDepth)

		pHeight := pos.Len()
		up := pos.Mul(1.0 / pHeight)
		sunZenithCos := p.SunDirection.Dot(up)

		transmittanceToSun := mgl32.Vec3{1, 1, 1}
		if p.Transmittance != nil {
			u, v := transmittanceParamsToUV(m, pHeight, sunZenithCos)
			transmittanceToSun = p.Transmittance.Sample(u, v)
		}

		var phaseTimesScattering mgl32.Vec3
		if p.MieRayPhase {
			phaseTimesScattering = medium.MieScattering.Mul(miePhase).
				Add(medium.RayScattering.Mul(rayPhase))
		} else {
			phaseTimesScattering = medium.Scattering.Mul(UniformPhase())
		}

		// Analytic planet self-shadow: a sample below the horizon of the
		// ground sphere receives no direct sun.
		shadowOrigin := pos.Add(up.Mul(PlanetRadiusOffset))
		earthShadow := float32(1)
		if RaySphereIntersectNearest(NewRay(shadowOrigin, p.SunDirection), planetCenter, m.BottomRadius) >= 0 {
			earthShadow = 0
		}

		var multiScattered mgl32.Vec3
		if p.MultiScattering != nil {
			u, v := multiScatterParamsToUV(m, pHeight, sunZenithCos, p.MultiScattering.Width)
			multiScattered = mulVec3(p.MultiScattering.Sample(u, v), medium.Scattering)
		}

		sunTerm := mulVec3(transmittanceToSun, phaseTimesScattering).Mul(earthShadow)
		inscattered := mulVec3(p.Illuminance, sunTerm.Add(multiScattered))

		// Closed-form segment integral (S - S*T)/sigma instead of a Riemann
		// sum; unbiased when extinction varies across the step.
		luminance = luminance.Add(mulVec3(throughput, segmentIntegral(inscattered, sampleTransmittance, medium.Extinction, dt)))
		ms := medium.Scattering
		multiScatMoment = multiScatMoment.Add(mulVec3(throughput, segmentIntegral(ms, sampleTransmittance, medium.Extinction, dt)))

		throughput = mulVec3(throughput, sampleTransmittance)
	}

	if p.Ground && tBottom >= 0 && tMax == tBottom {
		pos := p.Origin.Add(p.Direction.Mul(tBottom))
		pHeight := pos.Len()
		up := pos.Mul(1.0 / pHeight)
		sunZenithCos := p.SunDirection.Dot(up)

		transmittanceToSun := mgl32.Vec3{1, 1, 1}
		if p.Transmittance != nil {
			u, v := transmittanceParamsToUV(m, pHeight, sunZenithCos)
			transmittanceToSun = p.Transmittance.Sample(u, v)
		}

		nDotL := Saturate(sunZenithCos)
		bounce := mulVec3(transmittanceToSun, m.GroundAlbedo).Mul(nDotL / Pi)
		luminance = luminance.Add(mulVec3(p.Illuminance, mulVec3(throughput, bounce)))
	}

	result.Luminance = luminance
	result.OpticalDepth = opticalDepth
	result.Transmittance = throughput
	result.MultiScatterMoment = multiScatMoment
	return result
}

// segmentIntegral evaluates ((s - s*exp(-sigma*dt)) / sigma) per channel,
// falling back to the s*dt limit when extinction is near zero.
func segmentIntegral(s, sampleTransmittance, extinction mgl32.Vec3, dt float32) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		if extinction[i] > 1e-8 {
			out[i] = (s[i] - s[i]*sampleTransmittance[i]) / extinction[i]
		} else {
			out[i] = s[i] * dt
		}
	}
	return out
}
