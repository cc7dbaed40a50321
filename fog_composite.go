package steelsky

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Directional glow kernel along the screen-space sun direction.
	godRayBlurTaps    = 4
	godRayBlurStep    = 0.012 // UV per tap
	sunGlowExponent   = 10.0
	sunGlowBrightness = 0.35
)

// CompositeVolumetrics blends the (reprojected) volumetric light buffer onto
// the scene color, adds a directional glow along the screen-space sun
// direction plus an angularly peaked sun-glow term, both gated by the
// god-ray strength, and tonemaps the added contribution with a Reinhard
// curve. The scene itself passes through untouched wherever the fog is
// empty.
func CompositeVolumetrics(scene *ColorBuffer, light *LightBuffer, u VolumetricUniforms) error {
	sunUV, sunOnScreen := projectSunUV(u)
	return parallelRows(scene.H, func(y int) error {
		v := (float32(y) + 0.5) / float32(scene.H)
		for x := 0; x < scene.W; x++ {
			uCoord := (float32(x) + 0.5) / float32(scene.W)
			sample := light.Sample(uCoord, v)
			fog := mgl32.Vec3{sample[0], sample[1], sample[2]}
			alpha := Saturate(sample[3])

			var glow mgl32.Vec3
			if u.GodRayStrength > 0 {
				if sunOnScreen {
					glow = directionalBlur(light, uCoord, v, sunUV)
				}
				ndcX := uCoord*2.0 - 1.0
				ndcY := 1.0 - v*2.0
				dir := viewRay(u.InvViewProj, u.CameraPosition, ndcX, ndcY)
				peak := pow32(Saturate(dir.Dot(u.SunDirection)), sunGlowExponent)
				glow = glow.Add(u.SunIlluminance.Mul(peak * sunGlowBrightness * alpha))
				glow = glow.Mul(u.GodRayStrength)
			}

			contribution := reinhard(fog.Add(glow))
			out := scene.At(x, y).Mul(1.0 - alpha).Add(contribution)
			scene.Set(x, y, out)
		}
		return nil
	})
}

// directionalBlur averages a few light-buffer taps marching toward the sun's
// screen position, smearing bright fog into shafts.
func directionalBlur(light *LightBuffer, u, v float32, sunUV mgl32.Vec2) mgl32.Vec3 {
	toSun := sunUV.Sub(mgl32.Vec2{u, v})
	if toSun.Len() < 1e-5 {
		s := light.Sample(u, v)
		return mgl32.Vec3{s[0], s[1], s[2]}
	}
	step := toSun.Normalize().Mul(godRayBlurStep)

	var sum mgl32.Vec3
	weight := float32(1)
	var total float32
	pos := mgl32.Vec2{u, v}
	for i := 0; i < godRayBlurTaps; i++ {
		pos = pos.Add(step)
		s := light.Sample(pos[0], pos[1])
		sum = sum.Add(mgl32.Vec3{s[0], s[1], s[2]}.Mul(weight))
		total += weight
		weight *= 0.68
	}
	return sum.Mul(1.0 / total)
}

// projectSunUV places the sun direction on screen; ok is false when the sun
// is behind the camera.
func projectSunUV(u VolumetricUniforms) (mgl32.Vec2, bool) {
	world := u.CameraPosition.Add(u.SunDirection)
	clip := u.ViewProj.Mul4x1(world.Vec4(1))
	if clip.W() <= 0 {
		return mgl32.Vec2{}, false
	}
	invW := 1.0 / clip.W()
	return mgl32.Vec2{
		(clip.X()*invW)*0.5 + 0.5,
		1.0 - ((clip.Y()*invW)*0.5 + 0.5),
	}, true
}

func reinhard(c mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		v := max32(c[i], 0) // negative densities clamp to zero contribution
		out[i] = v / (v + 1.0)
	}
	return out
}
