package steelsky

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// marchTransmittanceEpsilon is the early-exit floor: once this little
	// light would survive, further cells cannot matter.
	marchTransmittanceEpsilon = 0.005

	// marchPowerCurve concentrates march samples near the camera, where
	// froxel resolution is highest.
	marchPowerCurve = 2.0
)

// marchConfig carries the static tunables of the raymarch stage.
type marchConfig struct {
	NearPlane float32
	FarPlane  float32
	Steps     int
}

// MarchVolumetricField integrates the froxel field along each screen pixel's
// view segment, producing the 2D light buffer: RGB accumulated in-scattered
// light, alpha = 1 - transmittance. Pixels whose depth says "sky" are
// skipped entirely.
func MarchVolumetricField(f *VolumetricField, u VolumetricUniforms, depth *DepthBuffer, out *LightBuffer, cfg marchConfig) error {
	steps := cfg.Steps
	if steps < 1 {
		steps = 1
	}
	return parallelRows(out.H, func(y int) error {
		v := (float32(y) + 0.5) / float32(out.H)
		for x := 0; x < out.W; x++ {
			uCoord := (float32(x) + 0.5) / float32(out.W)

			// Depth lives at full resolution; nearest sample is enough here.
			dx := int(uCoord * float32(depth.W))
			dy := int(v * float32(depth.H))
			if dx >= depth.W {
				dx = depth.W - 1
			}
			if dy >= depth.H {
				dy = depth.H - 1
			}
			d := depth.At(dx, dy)
			if d >= SkyDepth {
				out.Set(x, y, mgl32.Vec4{})
				continue
			}

			ndcX := uCoord*2.0 - 1.0
			ndcY := 1.0 - v*2.0
			world := unproject(u.InvViewProj, ndcX, ndcY, d)
			sceneDist := world.Sub(u.CameraPosition).Len()
			tEnd := min32(sceneDist, cfg.FarPlane)
			if tEnd <= cfg.NearPlane {
				out.Set(x, y, mgl32.Vec4{})
				continue
			}

			var light mgl32.Vec3
			transmittance := float32(1)
			prevT := cfg.NearPlane
			for s := 0; s < steps; s++ {
				frac := pow32((float32(s)+1.0)/float32(steps), marchPowerCurve)
				t := cfg.NearPlane + frac*(tEnd-cfg.NearPlane)
				dt := t - prevT
				mid := (t + prevT) * 0.5
				prevT = t

				// Invert the fill stage's quadratic depth warp.
				w := sqrt32((mid - cfg.NearPlane) / (cfg.FarPlane - cfg.NearPlane))
				scattering, density := f.Sample(uCoord, v, w)
				if density <= 0 {
					continue
				}

				// Light-shaft falloff with marched distance.
				decay := exp32(-u.GodRayDecay * mid / cfg.FarPlane)

				sampleT := exp32(-density * dt)
				integrated := scattering.Mul(decay * (1.0 - sampleT) / density)
				light = light.Add(integrated.Mul(transmittance))
				transmittance *= sampleT
				if transmittance < marchTransmittanceEpsilon {
					break
				}
			}
			out.Set(x, y, mgl32.Vec4{light[0], light[1], light[2], 1.0 - transmittance})
		}
		return nil
	})
}
