package steelsky

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// densityThreshold short-circuits froxel cells whose fog density cannot
// contribute visibly.
const densityThreshold = 1e-4

// VolumetricField is the frustum-aligned 3D grid of fog samples: x,y span
// the screen, z spans a non-linearly warped view distance. It is regenerated
// every frame.
type VolumetricField struct {
	W, H, D    int
	Scattering []mgl32.Vec3
	Density    []float32
}

func NewVolumetricField(w, h, d int) *VolumetricField {
	return &VolumetricField{
		W:          w,
		H:          h,
		D:          d,
		Scattering: make([]mgl32.Vec3, w*h*d),
		Density:    make([]float32, w*h*d),
	}
}

func (f *VolumetricField) index(x, y, z int) int {
	return (z*f.H+y)*f.W + x
}

func (f *VolumetricField) set(x, y, z int, scattering mgl32.Vec3, density float32) {
	i := f.index(x, y, z)
	f.Scattering[i] = scattering
	f.Density[i] = density
}

func (f *VolumetricField) at(x, y, z int) (mgl32.Vec3, float32) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if z < 0 {
		z = 0
	}
	if x >= f.W {
		x = f.W - 1
	}
	if y >= f.H {
		y = f.H - 1
	}
	if z >= f.D {
		z = f.D - 1
	}
	i := f.index(x, y, z)
	return f.Scattering[i], f.Density[i]
}

// Sample trilinearly filters the field at normalized froxel coordinates.
func (f *VolumetricField) Sample(u, v, w float32) (mgl32.Vec3, float32) {
	fx := Saturate(u)*float32(f.W) - 0.5
	fy := Saturate(v)*float32(f.H) - 0.5
	fz := Saturate(w)*float32(f.D) - 0.5
	x0 := int(float32(math.Floor(float64(fx))))
	y0 := int(float32(math.Floor(float64(fy))))
	z0 := int(float32(math.Floor(float64(fz))))
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	tz := fz - float32(z0)

	var scattering mgl32.Vec3
	var density float32
	for dz := 0; dz < 2; dz++ {
		wz := tz
		if dz == 0 {
			wz = 1 - tz
		}
		for dy := 0; dy < 2; dy++ {
			wy := ty
			if dy == 0 {
				wy = 1 - ty
			}
			for dx := 0; dx < 2; dx++ {
				wx := tx
				if dx == 0 {
					wx = 1 - tx
				}
				s, d := f.at(x0+dx, y0+dy, z0+dz)
				weight := wx * wy * wz
				scattering = scattering.Add(s.Mul(weight))
				density += d * weight
			}
		}
	}
	return scattering, density
}

// jitterOffset walks an 8x8 sub-texel pattern, one new offset per frame, for
// temporal dithering of the fill stage.
func jitterOffset(frameIndex int) (float32, float32) {
	i := (frameIndex * 17) & 63 // stride decorrelates consecutive frames
	jx := (float32(i%8)+0.5)/8.0 - 0.5
	jy := (float32(i/8)+0.5)/8.0 - 0.5
	return jx, jy
}

// fogPhaseWeights shape the combined fog phase function: a Cornette-Shanks
// aerosol lobe, a Rayleigh lobe and a forward-peaked god-ray lobe whose
// weight tracks the god-ray strength tunable.
const (
	fogPhaseMieWeight      = 0.55
	fogPhaseRayleighWeight = 0.25
	fogPhaseMieG           = 0.45
	fogPhaseGodRayG        = 0.92
)

// fillConfig carries the static tunables of the fill stage.
type fillConfig struct {
	NearPlane     float32
	FarPlane      float32
	HeightFalloff float32
	FarFogStart   float32
	FarFogEnd     float32
	FarFogScale   float32
	AmbientSky    mgl32.Vec3
}

// FillVolumetricField evaluates the height-fog density law, noise
// modulation, phase-weighted sun scattering and sky ambient for every froxel
// cell.
func FillVolumetricField(f *VolumetricField, u VolumetricUniforms, m *AtmosphereModel, noise *Noise3D, esm *ShadowMap, cfg fillConfig) error {
	jx, jy := jitterOffset(u.JitterIndex)
	return parallelRows(f.D, func(z int) error {
		zNorm := (float32(z) + 0.5) / float32(f.D)
		dist := cfg.NearPlane + zNorm*zNorm*(cfg.FarPlane-cfg.NearPlane)
		for y := 0; y < f.H; y++ {
			ndcY := 1.0 - (float32(y)+0.5+jy)/float32(f.H)*2.0
			for x := 0; x < f.W; x++ {
				ndcX := (float32(x)+0.5+jx)/float32(f.W)*2.0 - 1.0
				dir := viewRay(u.InvViewProj, u.CameraPosition, ndcX, ndcY)
				worldPos := u.CameraPosition.Add(dir.Mul(dist))

				density := u.FogDensity * exp32(-cfg.HeightFalloff*max32(0, worldPos[1]))
				density *= Lerp(0.5, 1.5, noise.FogNoise(worldPos, u.Time))
				density += u.FogDensity * cfg.FarFogScale * Smoothstep(cfg.FarFogStart, cfg.FarFogEnd, dist)
				if density < densityThreshold {
					f.set(x, y, z, mgl32.Vec3{}, 0)
					continue
				}

				cosTheta := u.SunDirection.Dot(dir)
				phase := fogPhaseMieWeight*CornetteShanksPhase(fogPhaseMieG, -cosTheta) +
					fogPhaseRayleighWeight*RayleighPhase(cosTheta) +
					u.GodRayStrength*CornetteShanksPhase(fogPhaseGodRayG, -cosTheta)

				visibility := SampleShadow(worldPos, u.SunDirection, m, esm)
				direct := u.SunIlluminance.Mul(phase * visibility)

				localUp := atmospherePosition(worldPos, m).Normalize()
				ambient := cfg.AmbientSky.Mul(Saturate(0.5 + 0.5*localUp[1]))

				scattering := direct.Add(ambient).Mul(u.ScatteringCoeff * density)
				f.set(x, y, z, scattering, density)
			}
		}
		return nil
	})
}
