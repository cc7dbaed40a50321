package steelsky

import (
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 127: 128, 128: 128, 300: 512}
	for in, want := range cases {
		if got := nextPowerOfTwo(in); got != want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestWrap01(t *testing.T) {
	cases := [][2]float32{{0.25, 0.25}, {1.25, 0.25}, {-0.25, 0.75}, {3.5, 0.5}}
	for _, c := range cases {
		if got := wrap01(c[0]); abs32(got-c[1]) > 1e-6 {
			t.Errorf("wrap01(%v) = %v, want %v", c[0], got, c[1])
		}
	}
}

func TestBoxMeshGeometry(t *testing.T) {
	center := mgl32.Vec3{1, 2, 3}
	half := mgl32.Vec3{0.5, 1, 2}
	m := NewBoxMesh(center, half, Material{BaseColor: mgl32.Vec3{1, 1, 1}})

	if len(m.Vertices) != 24 {
		t.Fatalf("box has %d vertices, want 24", len(m.Vertices))
	}
	if len(m.Indices) != 36 {
		t.Fatalf("box has %d indices, want 36", len(m.Indices))
	}
	for i, v := range m.Vertices {
		p := mgl32.Vec3{v.Position[0], v.Position[1], v.Position[2]}
		d := p.Sub(center)
		if abs32(abs32(d.X())-half.X()) > 1e-5 && abs32(abs32(d.Y())-half.Y()) > 1e-5 && abs32(abs32(d.Z())-half.Z()) > 1e-5 {
			t.Errorf("vertex %d at %v is not on a box face", i, p)
		}
		n := mgl32.Vec3{v.Normal[0], v.Normal[1], v.Normal[2]}
		if abs32(n.Len()-1) > 1e-5 {
			t.Errorf("vertex %d normal %v is not unit length", i, n)
		}
		// The normal points away from the center on its axis.
		if n.Dot(d) <= 0 {
			t.Errorf("vertex %d normal %v points inward", i, n)
		}
	}
}

func TestGroundPlaneGeometry(t *testing.T) {
	m := NewGroundPlane(-1.5, 100, Material{})
	if len(m.Vertices) != 4 || len(m.Indices) != 6 {
		t.Fatalf("plane has %d vertices / %d indices", len(m.Vertices), len(m.Indices))
	}
	for _, v := range m.Vertices {
		if v.Position[1] != -1.5 {
			t.Errorf("plane vertex at y=%v, want -1.5", v.Position[1])
		}
		if v.Normal != [3]float32{0, 1, 0} {
			t.Errorf("plane normal %v, want up", v.Normal)
		}
	}
}

func TestMaterialSampling(t *testing.T) {
	flat := Material{BaseColor: mgl32.Vec3{0.2, 0.4, 0.6}}
	if got := flat.sampleTexture(0.3, 0.7); got != flat.BaseColor {
		t.Errorf("untextured sample %v, want base color", got)
	}

	tex := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	tex.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	tex.SetNRGBA(1, 1, color.NRGBA{B: 255, A: 255})
	m := Material{Texture: tex}
	if got := m.sampleTexture(0.1, 0.1); got.X() < 0.99 || got.Z() > 0.01 {
		t.Errorf("texel (0,0) sample %v, want red", got)
	}
	if got := m.sampleTexture(0.9, 0.9); got.Z() < 0.99 || got.X() > 0.01 {
		t.Errorf("texel (1,1) sample %v, want blue", got)
	}
	// UVs wrap instead of clamping.
	if got := m.sampleTexture(1.1, 1.1); got.X() < 0.99 {
		t.Errorf("wrapped sample %v, want red", got)
	}
}

func testMeshScene() *MeshScene {
	s := NewMeshScene(64.0 / 36.0)
	s.Meshes = []*Mesh{NewGroundPlane(0, 50, Material{BaseColor: mgl32.Vec3{0.5, 0.5, 0.5}})}
	return s
}

func TestRasterizerDepthWrites(t *testing.T) {
	s := testMeshScene()
	depth := NewDepthBuffer(64, 36)
	depth.Clear()
	if err := s.RenderDepth(depth); err != nil {
		t.Fatal(err)
	}

	// The ground fills the lower half of the frame; above the horizon the
	// buffer keeps its sky sentinel.
	if d := depth.At(32, 33); d >= SkyDepth {
		t.Errorf("ground pixel depth %v, want < sky", d)
	}
	if d := depth.At(32, 2); d != SkyDepth {
		t.Errorf("sky pixel depth %v, want sentinel", d)
	}
}

func countCoveredPixels(d *DepthBuffer) int {
	n := 0
	for _, v := range d.Pix {
		if v < SkyDepth {
			n++
		}
	}
	return n
}

func TestRasterizerClipsNearPlane(t *testing.T) {
	// The camera sits at z=8; any plane wider than that has vertices behind
	// it, so its triangles straddle the near plane and must be clipped
	// rather than dropped.
	for _, extent := range []float32{5, 20, 500} {
		s := NewMeshScene(64.0 / 36.0)
		s.Meshes = []*Mesh{NewGroundPlane(0, extent, Material{})}
		depth := NewDepthBuffer(64, 36)
		depth.Clear()
		if err := s.RenderDepth(depth); err != nil {
			t.Fatal(err)
		}
		if n := countCoveredPixels(depth); n == 0 {
			t.Errorf("extent %v ground rasterized no pixels", extent)
		}
	}

	// Geometry entirely behind the camera stays invisible.
	s := NewMeshScene(64.0 / 36.0)
	s.Meshes = []*Mesh{NewBoxMesh(mgl32.Vec3{0, 2, 20}, mgl32.Vec3{1, 1, 1}, Material{})}
	depth := NewDepthBuffer(64, 36)
	depth.Clear()
	if err := s.RenderDepth(depth); err != nil {
		t.Fatal(err)
	}
	if n := countCoveredPixels(depth); n != 0 {
		t.Errorf("behind-camera box rasterized %d pixels", n)
	}
}

func TestRasterizerDepthOrdering(t *testing.T) {
	s := testMeshScene()
	depth := NewDepthBuffer(64, 36)
	depth.Clear()
	if err := s.RenderDepth(depth); err != nil {
		t.Fatal(err)
	}
	groundOnly := depth.At(32, 18)
	if groundOnly >= SkyDepth {
		t.Fatal("center pixel should see the ground")
	}

	// A box between camera and ground must win the depth test.
	s.Meshes = append(s.Meshes, NewBoxMesh(mgl32.Vec3{0, 1, 2}, mgl32.Vec3{3, 1, 1}, Material{}))
	depth.Clear()
	if err := s.RenderDepth(depth); err != nil {
		t.Fatal(err)
	}
	if got := depth.At(32, 18); got >= groundOnly {
		t.Errorf("occluder depth %v should be nearer than ground %v", got, groundOnly)
	}
}

func TestRasterizerOpaqueShading(t *testing.T) {
	s := testMeshScene()
	s.Sun = SunStateAt(0.5)
	depth := NewDepthBuffer(64, 36)
	depth.Clear()
	out := NewColorBuffer(64, 36)
	if err := s.RenderOpaque(depth, out); err != nil {
		t.Fatal(err)
	}

	lit := out.At(32, 33)
	if lit.X() <= 0 || lit.Y() <= 0 || lit.Z() <= 0 {
		t.Errorf("noon-lit ground pixel %v should be positive", lit)
	}
	if sky := out.At(32, 2); sky != (mgl32.Vec3{}) {
		t.Errorf("uncovered pixel %v should stay untouched", sky)
	}
}
