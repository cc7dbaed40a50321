package steelsky

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ESMFactor is the exponential shadow map sharpness constant.
const ESMFactor = 100.0

// ShadowMap is an exponential shadow map over the light's view. Texels hold
// the raw occluder depth in [0,1]; the exponential weighting
// exp(ESMFactor * (occluder - receiver)) is applied at sample time with the
// exponent clamped at zero, since exp(ESMFactor) does not fit in a float32.
// Filtering the per-texel visibility terms is what buys the soft penumbra.
type ShadowMap struct {
	W, H     int
	Pix      []float32
	ViewProj mgl32.Mat4
}

// NewShadowMapFromDepth wraps a light-space depth grid (values in [0,1]).
func NewShadowMapFromDepth(depth *DepthBuffer, lightViewProj mgl32.Mat4) *ShadowMap {
	sm := &ShadowMap{
		W:        depth.W,
		H:        depth.H,
		Pix:      make([]float32, depth.W*depth.H),
		ViewProj: lightViewProj,
	}
	copy(sm.Pix, depth.Pix)
	return sm
}

// Downsample halves the resolution by box filtering the occluder depths.
// The fog fill stage samples this reduced map.
func (s *ShadowMap) Downsample() *ShadowMap {
	w := s.W / 2
	h := s.H / 2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := &ShadowMap{W: w, H: h, Pix: make([]float32, w*h), ViewProj: s.ViewProj}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := x*2, y*2
			x1, y1 := x0+1, y0+1
			if x1 >= s.W {
				x1 = s.W - 1
			}
			if y1 >= s.H {
				y1 = s.H - 1
			}
			sum := s.Pix[y0*s.W+x0] + s.Pix[y0*s.W+x1] + s.Pix[y1*s.W+x0] + s.Pix[y1*s.W+x1]
			out.Pix[y*w+x] = sum * 0.25
		}
	}
	return out
}

func (s *ShadowMap) at(x, y int) float32 {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= s.W {
		x = s.W - 1
	}
	if y >= s.H {
		y = s.H - 1
	}
	return s.Pix[y*s.W+x]
}

// esmTerm is the single-texel visibility weight. Occluders at or behind the
// receiver contribute full visibility.
func esmTerm(occluderDepth, receiverDepth float32) float32 {
	return exp32(min32(0, ESMFactor*(occluderDepth-receiverDepth)))
}

// sampleVisibility bilinearly filters the four per-texel visibility terms
// around (u, v) for a receiver at the given depth.
func (s *ShadowMap) sampleVisibility(u, v, depth float32) float32 {
	fx := u*float32(s.W) - 0.5
	fy := v*float32(s.H) - 0.5
	x0 := int(fx)
	y0 := int(fy)
	if fx < 0 {
		x0--
	}
	if fy < 0 {
		y0--
	}
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	top := Lerp(esmTerm(s.at(x0, y0), depth), esmTerm(s.at(x0+1, y0), depth), tx)
	bottom := Lerp(esmTerm(s.at(x0, y0+1), depth), esmTerm(s.at(x0+1, y0+1), depth), tx)
	return Lerp(top, bottom, ty)
}

// Visibility estimates sun visibility at a world position: 1 fully lit,
// 0 fully occluded. Positions projecting outside the light frustum are
// treated as lit rather than clamped into a neighboring texel.
func (s *ShadowMap) Visibility(worldPos mgl32.Vec3) float32 {
	clip := s.ViewProj.Mul4x1(worldPos.Vec4(1))
	if clip.W() <= 0 {
		return 1
	}
	invW := 1.0 / clip.W()
	ndcX := clip.X() * invW
	ndcY := clip.Y() * invW
	depth := clip.Z() * invW
	if ndcX < -1 || ndcX > 1 || ndcY < -1 || ndcY > 1 || depth < 0 || depth > 1 {
		return 1
	}
	u := ndcX*0.5 + 0.5
	v := 1.0 - (ndcY*0.5 + 0.5)
	return Saturate(s.sampleVisibility(u, v, depth))
}

// SampleShadow combines the exponential shadow map with the analytic planet
// self-shadow: positions whose ray toward the sun re-enters the ground
// sphere receive nothing. worldPos is in world units; planet geometry is
// tested in atmosphere (km) space.
func SampleShadow(worldPos, lightDir mgl32.Vec3, m *AtmosphereModel, sm *ShadowMap) float32 {
	posKm := atmospherePosition(worldPos, m)
	up := posKm.Normalize()
	shadowOrigin := posKm.Add(up.Mul(PlanetRadiusOffset))
	if RaySphereIntersectNearest(NewRay(shadowOrigin, lightDir), mgl32.Vec3{}, m.BottomRadius) >= 0 {
		return 0
	}
	if sm == nil {
		return 1
	}
	return sm.Visibility(worldPos)
}

// atmospherePosition converts a world-space position (meters-scale scene
// units, ground plane at y=0) into planet-centered kilometers.
func atmospherePosition(worldPos mgl32.Vec3, m *AtmosphereModel) mgl32.Vec3 {
	return worldPos.Mul(WorldToAtmosphereScale).Add(mgl32.Vec3{0, m.BottomRadius, 0})
}

// WorldToAtmosphereScale converts scene units to kilometers.
const WorldToAtmosphereScale = 0.001
