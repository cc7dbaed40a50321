package steelsky

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SkyDepth is the depth-buffer value that marks "nothing was drawn here".
const SkyDepth = float32(1.0)

// DepthBuffer is a full-resolution scene depth target with values in [0,1],
// 1 meaning sky.
type DepthBuffer struct {
	W, H int
	Pix  []float32
}

func NewDepthBuffer(w, h int) *DepthBuffer {
	d := &DepthBuffer{W: w, H: h, Pix: make([]float32, w*h)}
	d.Clear()
	return d
}

func (d *DepthBuffer) Clear() {
	for i := range d.Pix {
		d.Pix[i] = SkyDepth
	}
}

func (d *DepthBuffer) At(x, y int) float32 {
	return d.Pix[y*d.W+x]
}

func (d *DepthBuffer) Set(x, y int, v float32) {
	d.Pix[y*d.W+x] = v
}

// ColorBuffer is an HDR RGB render target.
type ColorBuffer struct {
	W, H int
	Pix  []mgl32.Vec3
}

func NewColorBuffer(w, h int) *ColorBuffer {
	return &ColorBuffer{W: w, H: h, Pix: make([]mgl32.Vec3, w*h)}
}

func (c *ColorBuffer) At(x, y int) mgl32.Vec3 {
	return c.Pix[y*c.W+x]
}

func (c *ColorBuffer) Set(x, y int, v mgl32.Vec3) {
	c.Pix[y*c.W+x] = v
}

func (c *ColorBuffer) Clear() {
	for i := range c.Pix {
		c.Pix[i] = mgl32.Vec3{}
	}
}

// LightBuffer is the volumetric accumulation target: RGB in-scattered light
// plus alpha = 1 - transmittance.
type LightBuffer struct {
	W, H int
	Pix  []mgl32.Vec4
}

func NewLightBuffer(w, h int) *LightBuffer {
	return &LightBuffer{W: w, H: h, Pix: make([]mgl32.Vec4, w*h)}
}

func (l *LightBuffer) At(x, y int) mgl32.Vec4 {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= l.W {
		x = l.W - 1
	}
	if y >= l.H {
		y = l.H - 1
	}
	return l.Pix[y*l.W+x]
}

func (l *LightBuffer) Set(x, y int, v mgl32.Vec4) {
	l.Pix[y*l.W+x] = v
}

func (l *LightBuffer) Clear() {
	for i := range l.Pix {
		l.Pix[i] = mgl32.Vec4{}
	}
}

// Sample bilinearly filters the buffer at normalized UV, clamped to edges.
func (l *LightBuffer) Sample(u, v float32) mgl32.Vec4 {
	fx := Saturate(u)*float32(l.W) - 0.5
	fy := Saturate(v)*float32(l.H) - 0.5
	x0 := int(float32(math.Floor(float64(fx))))
	y0 := int(float32(math.Floor(float64(fy))))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	lerp4 := func(a, b mgl32.Vec4, t float32) mgl32.Vec4 {
		return a.Add(b.Sub(a).Mul(t))
	}
	top := lerp4(l.At(x0, y0), l.At(x0+1, y0), tx)
	bottom := lerp4(l.At(x0, y0+1), l.At(x0+1, y0+1), tx)
	return lerp4(top, bottom, ty)
}
