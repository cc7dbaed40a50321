package steelsky

import (
	"github.com/go-gl/mathgl/mgl32"
)

// AtmosphereUniforms is the per-frame parameter block the sky pass consumes.
// It is built once per frame and never mutated afterwards, so every stage
// observes the same camera and sun state.
type AtmosphereUniforms struct {
	View        mgl32.Mat4
	Proj        mgl32.Mat4
	InvViewProj mgl32.Mat4

	CameraPosition mgl32.Vec3
	SunDirection   mgl32.Vec3
	SunIlluminance mgl32.Vec3

	ScreenWidth  int
	ScreenHeight int
	Time         float32
}

// VolumetricUniforms is the per-frame parameter block for the four fog
// stages. PrevViewProj is the only cross-frame value; it feeds reprojection.
type VolumetricUniforms struct {
	InvViewProj   mgl32.Mat4
	ViewProj      mgl32.Mat4
	PrevViewProj  mgl32.Mat4
	LightViewProj mgl32.Mat4

	CameraPosition mgl32.Vec3
	SunDirection   mgl32.Vec3
	SunIlluminance mgl32.Vec3

	FogDensity      float32
	ScatteringCoeff float32
	GodRayStrength  float32
	GodRayDecay     float32

	ScreenWidth  int
	ScreenHeight int
	Time         float32
	JitterIndex  int
	HavePrevious bool
}

// NewAtmosphereUniforms assembles the sky block from the frame inputs.
func NewAtmosphereUniforms(view, proj mgl32.Mat4, cameraPos mgl32.Vec3, sun SunState, width, height int, time float32) AtmosphereUniforms {
	return AtmosphereUniforms{
		View:           view,
		Proj:           proj,
		InvViewProj:    proj.Mul4(view).Inv(),
		CameraPosition: cameraPos,
		SunDirection:   sun.Direction,
		SunIlluminance: sun.Illuminance,
		ScreenWidth:    width,
		ScreenHeight:   height,
		Time:           time,
	}
}

// depthZeroOne remaps GL-convention clip z in [-1,1] to [0,1], the depth
// range every buffer in the pipeline uses (z' = 0.5z + 0.5w).
var depthZeroOne = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// PerspectiveZO is mgl32.Perspective with zero-to-one depth output.
func PerspectiveZO(fovy, aspect, near, far float32) mgl32.Mat4 {
	return depthZeroOne.Mul4(mgl32.Perspective(fovy, aspect, near, far))
}

// OrthoZO is mgl32.Ortho with zero-to-one depth output.
func OrthoZO(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	return depthZeroOne.Mul4(mgl32.Ortho(left, right, bottom, top, near, far))
}

// unproject reconstructs the world-space position behind a pixel at the
// given depth. ndcX/ndcY are in [-1,1], depth in [0,1].
func unproject(invViewProj mgl32.Mat4, ndcX, ndcY, depth float32) mgl32.Vec3 {
	clip := mgl32.Vec4{ndcX, ndcY, depth, 1}
	world := invViewProj.Mul4x1(clip)
	w := world.W()
	if w > -1e-9 && w < 1e-9 {
		w = 1e-9
	}
	return world.Vec3().Mul(1.0 / w)
}

// pixelNDC maps a pixel center to normalized device coordinates with y up.
func pixelNDC(x, y, w, h int) (float32, float32) {
	ndcX := (float32(x)+0.5)/float32(w)*2.0 - 1.0
	ndcY := 1.0 - (float32(y)+0.5)/float32(h)*2.0
	return ndcX, ndcY
}

// viewRay reconstructs the world-space ray through a pixel from the inverse
// view-projection.
func viewRay(invViewProj mgl32.Mat4, cameraPos mgl32.Vec3, ndcX, ndcY float32) mgl32.Vec3 {
	target := unproject(invViewProj, ndcX, ndcY, 1.0)
	d := target.Sub(cameraPos)
	if d.Len() < 1e-12 {
		return mgl32.Vec3{0, 0, -1}
	}
	return d.Normalize()
}
