package steelsky

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Pi mirrors the float32 constant the shader stages share.
	Pi = float32(math.Pi)

	// PlanetRadiusOffset lifts shadow-test ray origins slightly above the
	// ground sphere so samples sitting exactly on the surface do not
	// self-intersect.
	PlanetRadiusOffset = 0.01 // km

	invFourPi = 1.0 / (4.0 * math.Pi)
)

// Ray is a world-space half line. Direction is expected to be unit length.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

func NewRay(origin, direction mgl32.Vec3) Ray {
	return Ray{Origin: origin, Direction: direction}
}

// RaySphereIntersect returns both intersection distances of the ray with the
// sphere, t0 <= t1. ok is false when the ray misses entirely. Negative
// distances are returned as-is; callers decide how to treat hits behind the
// origin.
func RaySphereIntersect(r Ray, center mgl32.Vec3, radius float32) (t0, t1 float32, ok bool) {
	co := r.Origin.Sub(center)
	a := r.Direction.Dot(r.Direction)
	b := 2.0 * r.Direction.Dot(co)
	c := co.Dot(co) - radius*radius
	delta := b*b - 4.0*a*c
	if delta < 0 || a == 0 {
		return 0, 0, false
	}
	sq := float32(math.Sqrt(float64(delta)))
	t0 = (-b - sq) / (2.0 * a)
	t1 = (-b + sq) / (2.0 * a)
	return t0, t1, true
}

// RaySphereIntersectNearest returns the nearest non-negative intersection
// distance, or -1 when the sphere is missed or lies entirely behind the ray.
func RaySphereIntersectNearest(r Ray, center mgl32.Vec3, radius float32) float32 {
	t0, t1, ok := RaySphereIntersect(r, center, radius)
	if !ok {
		return -1
	}
	if t0 < 0 && t1 < 0 {
		return -1
	}
	if t0 < 0 {
		return max32(0, t1)
	}
	if t1 < 0 {
		return max32(0, t0)
	}
	return max32(0, min32(t0, t1))
}

// MoveToTopAtmosphere advances a ray origin that sits outside the atmosphere
// onto the top-of-atmosphere boundary. Returns false when the ray never
// enters the shell. Origins already inside are returned unchanged.
func MoveToTopAtmosphere(origin, direction mgl32.Vec3, topRadius float32) (mgl32.Vec3, bool) {
	viewHeight := origin.Len()
	if viewHeight <= topRadius {
		return origin, true
	}
	tTop := RaySphereIntersectNearest(NewRay(origin, direction), mgl32.Vec3{}, topRadius)
	if tTop < 0 {
		return origin, false
	}
	up := origin.Mul(1.0 / viewHeight)
	offset := up.Mul(-PlanetRadiusOffset)
	return origin.Add(direction.Mul(tTop)).Add(offset), true
}

// RayleighPhase is the classic molecular phase function.
func RayleighPhase(cosTheta float32) float32 {
	factor := float32(3.0 / (16.0 * math.Pi))
	return factor * (1.0 + cosTheta*cosTheta)
}

// CornetteShanksPhase approximates Mie aerosol scattering with asymmetry g.
func CornetteShanksPhase(g, cosTheta float32) float32 {
	k := float32(3.0/(8.0*math.Pi)) * (1.0 - g*g) / (2.0 + g*g)
	denom := 1.0 + g*g - 2.0*g*cosTheta
	if denom < 1e-5 {
		denom = 1e-5
	}
	return k * (1.0 + cosTheta*cosTheta) / (denom * float32(math.Sqrt(float64(denom))))
}

// DualLobePhase blends two Cornette-Shanks lobes, used for fog that mixes a
// forward and a backward scattering component.
func DualLobePhase(g0, g1, w, cosTheta float32) float32 {
	return Lerp(CornetteShanksPhase(g0, cosTheta), CornetteShanksPhase(g1, cosTheta), w)
}

// UniformPhase is the isotropic phase function 1/4pi.
func UniformPhase() float32 {
	return invFourPi
}

// Mean averages the three channels.
func Mean(v mgl32.Vec3) float32 {
	return (v[0] + v[1] + v[2]) / 3.0
}

func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func Saturate(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func Clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Smoothstep performs Hermite interpolation between 0 and 1 across
// [edge0, edge1].
func Smoothstep(edge0, edge1, x float32) float32 {
	if edge0 == edge1 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := Saturate((x - edge0) / (edge1 - edge0))
	return t * t * (3.0 - 2.0*t)
}

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(x)))
}

func acos32(x float32) float32 {
	return float32(math.Acos(float64(Clamp(x, -1, 1))))
}

func cos32(x float32) float32 { return float32(math.Cos(float64(x))) }
func sin32(x float32) float32 { return float32(math.Sin(float64(x))) }
func pow32(x, y float32) float32 {
	return float32(math.Pow(float64(x), float64(y)))
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func expVec3(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{exp32(v[0]), exp32(v[1]), exp32(v[2])}
}

func mulVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func maxVec3(v mgl32.Vec3, lo float32) mgl32.Vec3 {
	return mgl32.Vec3{max32(v[0], lo), max32(v[1], lo), max32(v[2], lo)}
}

func lerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
