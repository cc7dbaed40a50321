package steelsky

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// sunDiskCosThreshold is the angular size of the rendered sun disk.
	// The disk is a simplified unshadowed constant: it is not attenuated by
	// the atmosphere at low sun angles. Kept as-is deliberately; see the
	// sun-disk test.
	sunDiskCosThreshold = 0.999956 // ~0.54 degrees across

	skyRenderSampleCount = 30
)

// sunDiskLuminance is the constant brightness of the direct disk term.
var sunDiskLuminance = mgl32.Vec3{120, 120, 120}

// SkyCompositor renders the full-screen atmosphere pass: per pixel it
// reconstructs the view ray, adds the sun-disk term and integrates
// in-scattered luminance bounded by scene depth.
type SkyCompositor struct {
	log Logger
}

func NewSkyCompositor(log Logger) *SkyCompositor {
	if log == nil {
		log = NewNopLogger()
	}
	return &SkyCompositor{log: log}
}

// Render fills out with sky luminance. set must be a published LUT set;
// depth bounds the march for pixels covered by geometry.
func (s *SkyCompositor) Render(u AtmosphereUniforms, set *LUTSet, depth *DepthBuffer, out *ColorBuffer) error {
	if set == nil {
		return fmt.Errorf("sky pass requires a published LUT set")
	}
	m := set.Atmosphere
	camKm := atmospherePosition(u.CameraPosition, m)

	return parallelRows(out.H, func(y int) error {
		for x := 0; x < out.W; x++ {
			ndcX, ndcY := pixelNDC(x, y, out.W, out.H)
			out.Set(x, y, shadeSkyPixel(u, set, m, camKm, ndcX, ndcY, depth.At(x, y)))
		}
		return nil
	})
}

func shadeSkyPixel(u AtmosphereUniforms, set *LUTSet, m *AtmosphereModel, camKm mgl32.Vec3, ndcX, ndcY, depth float32) mgl32.Vec3 {
	dir := viewRay(u.InvViewProj, u.CameraPosition, ndcX, ndcY)
	var luminance mgl32.Vec3

	groundHit := RaySphereIntersectNearest(NewRay(camKm, dir), mgl32.Vec3{}, m.BottomRadius) >= 0

	if depth >= SkyDepth {
		// Direct sun disk, only when the ray leaves the planet.
		if !groundHit && dir.Dot(u.SunDirection) > sunDiskCosThreshold {
			luminance = luminance.Add(mulVec3(sunDiskLuminance, u.SunIlluminance))
		}
		// Sky pixels seen from inside the shell can reuse the sky-view table.
		if camKm.Len() < m.TopRadius {
			return luminance.Add(sampleSkyView(set, m, camKm, dir, u.SunDirection, u.SunIlluminance))
		}
	}

	origin, intersects := MoveToTopAtmosphere(camKm, dir, m.TopRadius)
	if !intersects {
		return luminance
	}

	depthLimit := float32(-1)
	if depth < SkyDepth {
		// Convert the depth-buffer hit into a march-distance cap in km,
		// accounting for any advance to the top of the atmosphere.
		world := unproject(u.InvViewProj, ndcX, ndcY, depth)
		distKm := world.Sub(u.CameraPosition).Len() * WorldToAtmosphereScale
		advanced := origin.Sub(camKm).Len()
		depthLimit = max32(0, distKm-advanced)
	}

	res := IntegrateScatteredLuminance(IntegrateParams{
		Origin:              origin,
		Direction:           dir,
		SunDirection:        u.SunDirection,
		Atmosphere:          m,
		SampleCount:         skyRenderSampleCount,
		VariableSampleCount: true,
		MieRayPhase:         true,
		DepthLimit:          depthLimit,
		Transmittance:       set.Transmittance,
		MultiScattering:     set.MultiScattering,
		Illuminance:         u.SunIlluminance,
	})
	return luminance.Add(res.Luminance)
}

// sampleSkyView looks a view ray up in the precomputed sky-view table.
func sampleSkyView(set *LUTSet, m *AtmosphereModel, camKm, dir, sunDir, illuminance mgl32.Vec3) mgl32.Vec3 {
	viewHeight := camKm.Len()
	if viewHeight < m.BottomRadius+PlanetRadiusOffset {
		viewHeight = m.BottomRadius + PlanetRadiusOffset
	}
	up := camKm.Mul(1.0 / camKm.Len())
	viewZenithCos := Clamp(dir.Dot(up), -1, 1)

	// Azimuthal cosine between view and sun around the local zenith.
	viewAz := dir.Sub(up.Mul(dir.Dot(up)))
	sunAz := sunDir.Sub(up.Mul(sunDir.Dot(up)))
	lightViewCos := float32(1)
	if viewAz.Len() > 1e-6 && sunAz.Len() > 1e-6 {
		lightViewCos = Clamp(viewAz.Normalize().Dot(sunAz.Normalize()), -1, 1)
	}

	intersectsGround := RaySphereIntersectNearest(NewRay(camKm, dir), mgl32.Vec3{}, m.BottomRadius) >= 0

	uu, vv := skyViewParamsToUV(m, intersectsGround, viewZenithCos, lightViewCos, viewHeight, set.SkyView.Width, set.SkyView.Height)
	return mulVec3(set.SkyView.Sample(uu, vv), illuminance)
}
