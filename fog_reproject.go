package steelsky

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Temporal blend weight bounds: near-static pixels keep up to 90% of
	// their history, fast-moving ones at least 10%.
	historyWeightMin = 0.1
	historyWeightMax = 0.9

	// reprojectionVelocityScale converts UV-space velocity into history
	// weight loss.
	reprojectionVelocityScale = 8.0
)

// ReprojectLightBuffer blends the freshly marched light buffer with the
// previous frame's result at each pixel's motion-compensated location,
// writing into out. A pixel whose reprojected UV leaves the unit square gets
// no history at all (no wrap, no clamp-sample). current, previous and out
// must share dimensions.
func ReprojectLightBuffer(current, previous *LightBuffer, u VolumetricUniforms, depth *DepthBuffer, out *LightBuffer) error {
	return parallelRows(out.H, func(y int) error {
		v := (float32(y) + 0.5) / float32(out.H)
		for x := 0; x < out.W; x++ {
			uCoord := (float32(x) + 0.5) / float32(out.W)
			cur := current.At(x, y)

			dx := int(uCoord * float32(depth.W))
			dy := int(v * float32(depth.H))
			if dx >= depth.W {
				dx = depth.W - 1
			}
			if dy >= depth.H {
				dy = depth.H - 1
			}
			d := depth.At(dx, dy)

			ndcX := uCoord*2.0 - 1.0
			ndcY := 1.0 - v*2.0
			world := unproject(u.InvViewProj, ndcX, ndcY, d)

			prevClip := u.PrevViewProj.Mul4x1(world.Vec4(1))
			if prevClip.W() <= 0 {
				out.Set(x, y, cur)
				continue
			}
			invW := 1.0 / prevClip.W()
			prevU := (prevClip.X()*invW)*0.5 + 0.5
			prevV := 1.0 - ((prevClip.Y()*invW)*0.5 + 0.5)
			if prevU < 0 || prevU > 1 || prevV < 0 || prevV > 1 {
				out.Set(x, y, cur)
				continue
			}

			velocity := mgl32.Vec2{prevU - uCoord, prevV - v}.Len()
			historyWeight := Clamp(historyWeightMax-velocity*reprojectionVelocityScale, historyWeightMin, historyWeightMax)

			prev := previous.Sample(prevU, prevV)
			blended := prev.Mul(historyWeight).Add(cur.Mul(1.0 - historyWeight))
			out.Set(x, y, blended)
		}
		return nil
	})
}
