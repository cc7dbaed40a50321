package steelsky

import (
	"fmt"
	"image"
	_ "image/png"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
)

// Vertex is the interchange vertex format. The layout tags drive the GPU
// vertex buffer layout reflection in gpu.go.
type Vertex struct {
	Position [3]float32 `steelsky:"layout" location:"0" format:"float3"`
	Normal   [3]float32 `steelsky:"layout" location:"1" format:"float3"`
	TexCoord [2]float32 `steelsky:"layout" location:"2" format:"float2"`
}

// Material is a flat-shaded albedo, optionally textured.
type Material struct {
	BaseColor mgl32.Vec3
	Texture   *image.NRGBA
}

// LoadTexture decodes a PNG and rescales it to the next power of two on
// each axis so the GPU path can mip it.
func LoadTexture(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", path, err)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", path, err)
	}
	b := src.Bounds()
	w := nextPowerOfTwo(b.Dx())
	h := nextPowerOfTwo(b.Dy())
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst, nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// sampleTexture reads the material texture at wrapped UV, or the base color
// when untextured.
func (m *Material) sampleTexture(u, v float32) mgl32.Vec3 {
	if m.Texture == nil {
		return m.BaseColor
	}
	b := m.Texture.Bounds()
	x := int(wrap01(u) * float32(b.Dx()))
	y := int(wrap01(v) * float32(b.Dy()))
	if x >= b.Dx() {
		x = b.Dx() - 1
	}
	if y >= b.Dy() {
		y = b.Dy() - 1
	}
	c := m.Texture.NRGBAAt(b.Min.X+x, b.Min.Y+y)
	return mgl32.Vec3{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255}
}

func wrap01(v float32) float32 {
	v -= float32(int(v))
	if v < 0 {
		v += 1
	}
	return v
}

// Mesh is indexed triangle geometry with a single material.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Material Material
	Model    mgl32.Mat4
}

// NewBoxMesh builds an axis-aligned box centered on center.
func NewBoxMesh(center, halfExtents mgl32.Vec3, mat Material) *Mesh {
	type face struct {
		normal mgl32.Vec3
		u, v   mgl32.Vec3
	}
	faces := []face{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	m := &Mesh{Material: mat, Model: mgl32.Ident4()}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		n := f.normal
		axisU := f.u.Mul(halfExtents.Dot(vecAbs(f.u)))
		axisV := f.v.Mul(halfExtents.Dot(vecAbs(f.v)))
		origin := center.Add(n.Mul(halfExtents.Dot(vecAbs(n))))
		corners := [4]mgl32.Vec3{
			origin.Sub(axisU).Sub(axisV),
			origin.Add(axisU).Sub(axisV),
			origin.Add(axisU).Add(axisV),
			origin.Sub(axisU).Add(axisV),
		}
		uvs := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
		for i, c := range corners {
			m.Vertices = append(m.Vertices, Vertex{
				Position: [3]float32{c[0], c[1], c[2]},
				Normal:   [3]float32{n[0], n[1], n[2]},
				TexCoord: uvs[i],
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// NewGroundPlane builds a large horizontal quad at height y.
func NewGroundPlane(y, extent float32, mat Material) *Mesh {
	m := &Mesh{Material: mat, Model: mgl32.Ident4()}
	corners := [4]mgl32.Vec3{
		{-extent, y, -extent},
		{extent, y, -extent},
		{extent, y, extent},
		{-extent, y, extent},
	}
	uvs := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i, c := range corners {
		m.Vertices = append(m.Vertices, Vertex{
			Position: [3]float32{c[0], c[1], c[2]},
			Normal:   [3]float32{0, 1, 0},
			TexCoord: uvs[i],
		})
	}
	m.Indices = append(m.Indices, 0, 1, 2, 0, 2, 3)
	return m
}

func vecAbs(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{abs32(v[0]), abs32(v[1]), abs32(v[2])}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// MeshScene is a software rasterizer over a list of meshes. It implements
// SceneSource so the orchestrator can run the full pipeline without a GPU.
type MeshScene struct {
	Meshes []*Mesh

	CameraPosition mgl32.Vec3
	CameraTarget   mgl32.Vec3
	FovY           float32
	Aspect         float32
	Near, Far      float32

	Sun SunState

	// Shadow frustum half-extent in world units, centered on the camera.
	ShadowExtent float32
	ShadowFar    float32
}

func NewMeshScene(aspect float32) *MeshScene {
	return &MeshScene{
		CameraPosition: mgl32.Vec3{0, 2, 8},
		CameraTarget:   mgl32.Vec3{0, 1, 0},
		FovY:           mgl32.DegToRad(60),
		Aspect:         aspect,
		Near:           0.5,
		Far:            400,
		Sun:            SunStateAt(0.35),
		ShadowExtent:   60,
		ShadowFar:      300,
	}
}

func (s *MeshScene) Camera() (mgl32.Mat4, mgl32.Mat4, mgl32.Vec3) {
	view := mgl32.LookAtV(s.CameraPosition, s.CameraTarget, mgl32.Vec3{0, 1, 0})
	proj := PerspectiveZO(s.FovY, s.Aspect, s.Near, s.Far)
	return view, proj, s.CameraPosition
}

func (s *MeshScene) LightViewProj() mgl32.Mat4 {
	dir := s.Sun.Direction
	if dir.Len() < 1e-6 {
		dir = mgl32.Vec3{0, 1, 0}
	}
	eye := s.CameraTarget.Add(dir.Normalize().Mul(s.ShadowFar * 0.5))
	up := mgl32.Vec3{0, 1, 0}
	if abs32(dir.Normalize().Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(eye, s.CameraTarget, up)
	proj := OrthoZO(-s.ShadowExtent, s.ShadowExtent, -s.ShadowExtent, s.ShadowExtent, 0.1, s.ShadowFar)
	return proj.Mul4(view)
}

func (s *MeshScene) RenderShadow(depth *DepthBuffer) error {
	s.rasterize(s.LightViewProj(), depth, nil, mgl32.Vec3{})
	return nil
}

func (s *MeshScene) RenderDepth(depth *DepthBuffer) error {
	view, proj, _ := s.Camera()
	s.rasterize(proj.Mul4(view), depth, nil, mgl32.Vec3{})
	return nil
}

func (s *MeshScene) RenderOpaque(depth *DepthBuffer, out *ColorBuffer) error {
	view, proj, _ := s.Camera()
	shade := NewDepthBuffer(depth.W, depth.H)
	s.rasterize(proj.Mul4(view), shade, out, s.Sun.Direction)
	return nil
}

// rasterize draws every mesh with edge-function triangle fill. When color
// is non-nil it also writes Lambert-shaded albedo.
func (s *MeshScene) rasterize(viewProj mgl32.Mat4, depth *DepthBuffer, color *ColorBuffer, sunDir mgl32.Vec3) {
	w, h := depth.W, depth.H
	for _, mesh := range s.Meshes {
		mvp := viewProj.Mul4(mesh.Model)
		normalMat := mesh.Model.Mat3()
		for i := 0; i+2 < len(mesh.Indices); i += 3 {
			v0 := mesh.Vertices[mesh.Indices[i]]
			v1 := mesh.Vertices[mesh.Indices[i+1]]
			v2 := mesh.Vertices[mesh.Indices[i+2]]
			s.rasterTriangle(mvp, normalMat, &mesh.Material, v0, v1, v2, w, h, depth, color, sunDir)
		}
	}
}

type screenVertex struct {
	x, y, z, invW float32
	uv            [2]float32
	normal        mgl32.Vec3
}

// clipVertex is a triangle corner in homogeneous clip space, before the
// perspective divide. Attributes interpolate linearly here.
type clipVertex struct {
	pos    mgl32.Vec4
	uv     [2]float32
	normal mgl32.Vec3
}

func lerpClipVertex(a, b clipVertex, t float32) clipVertex {
	return clipVertex{
		pos:    a.pos.Add(b.pos.Sub(a.pos).Mul(t)),
		uv:     [2]float32{Lerp(a.uv[0], b.uv[0], t), Lerp(a.uv[1], b.uv[1], t)},
		normal: a.normal.Add(b.normal.Sub(a.normal).Mul(t)),
	}
}

// clipTriangleNear clips a triangle against the near plane (clip z >= 0),
// returning a convex polygon of up to four vertices. Large ground quads
// routinely straddle the camera plane; without this they would be dropped
// whole.
func clipTriangleNear(tri [3]clipVertex) []clipVertex {
	out := make([]clipVertex, 0, 4)
	for i := 0; i < 3; i++ {
		cur := tri[i]
		next := tri[(i+1)%3]
		curIn := cur.pos.Z() >= 0
		nextIn := next.pos.Z() >= 0
		if curIn {
			out = append(out, cur)
		}
		if curIn != nextIn {
			t := cur.pos.Z() / (cur.pos.Z() - next.pos.Z())
			out = append(out, lerpClipVertex(cur, next, t))
		}
	}
	return out
}

func (s *MeshScene) rasterTriangle(mvp mgl32.Mat4, normalMat mgl32.Mat3, mat *Material, v0, v1, v2 Vertex, w, h int, depth *DepthBuffer, color *ColorBuffer, sunDir mgl32.Vec3) {
	toClip := func(v Vertex) clipVertex {
		return clipVertex{
			pos:    mvp.Mul4x1(mgl32.Vec4{v.Position[0], v.Position[1], v.Position[2], 1}),
			uv:     v.TexCoord,
			normal: normalMat.Mul3x1(mgl32.Vec3{v.Normal[0], v.Normal[1], v.Normal[2]}),
		}
	}
	poly := clipTriangleNear([3]clipVertex{toClip(v0), toClip(v1), toClip(v2)})
	if len(poly) < 3 {
		return
	}
	project := func(v clipVertex) (screenVertex, bool) {
		if v.pos.W() <= 1e-6 {
			return screenVertex{}, false
		}
		invW := 1 / v.pos.W()
		return screenVertex{
			x:      (v.pos.X()*invW*0.5 + 0.5) * float32(w),
			y:      (1 - (v.pos.Y()*invW*0.5 + 0.5)) * float32(h),
			z:      v.pos.Z() * invW,
			invW:   invW,
			uv:     v.uv,
			normal: v.normal,
		}, true
	}
	for i := 1; i+1 < len(poly); i++ {
		a, okA := project(poly[0])
		b, okB := project(poly[i])
		c, okC := project(poly[i+1])
		if !okA || !okB || !okC {
			continue
		}
		s.fillTriangle(a, b, c, mat, w, h, depth, color, sunDir)
	}
}

func (s *MeshScene) fillTriangle(a, b, c screenVertex, mat *Material, w, h int, depth *DepthBuffer, color *ColorBuffer, sunDir mgl32.Vec3) {
	area := edge(a, b, c)
	if abs32(area) < 1e-8 {
		return
	}

	minX := int(max32(0, min32(a.x, min32(b.x, c.x))))
	maxX := int(min32(float32(w-1), max32(a.x, max32(b.x, c.x))))
	minY := int(max32(0, min32(a.y, min32(b.y, c.y))))
	maxY := int(min32(float32(h-1), max32(a.y, max32(b.y, c.y))))

	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			p := screenVertex{x: float32(px) + 0.5, y: float32(py) + 0.5}
			w0 := edge(b, c, p) / area
			w1 := edge(c, a, p) / area
			w2 := edge(a, b, p) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a.z + w1*b.z + w2*c.z
			if z < 0 || z > 1 || z >= depth.At(px, py) {
				continue
			}
			depth.Set(px, py, z)
			if color == nil {
				continue
			}
			// Perspective-correct attribute interpolation.
			iw := w0*a.invW + w1*b.invW + w2*c.invW
			u := (w0*a.uv[0]*a.invW + w1*b.uv[0]*b.invW + w2*c.uv[0]*c.invW) / iw
			v := (w0*a.uv[1]*a.invW + w1*b.uv[1]*b.invW + w2*c.uv[1]*c.invW) / iw
			n := a.normal.Mul(w0).Add(b.normal.Mul(w1)).Add(c.normal.Mul(w2))
			if n.Len() > 1e-6 {
				n = n.Normalize()
			}
			albedo := mat.sampleTexture(u, v)
			ndotl := max32(0, n.Dot(sunDir))
			lit := mulVec3(albedo, s.Sun.Illuminance.Mul(ndotl/Pi))
			ambient := albedo.Mul(0.08)
			color.Set(px, py, lit.Add(ambient))
		}
	}
}

func edge(a, b, p screenVertex) float32 {
	return (b.x-a.x)*(p.y-a.y) - (b.y-a.y)*(p.x-a.x)
}
