package steelsky

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// LUT2D is a CPU-resident RGBA float32 table. The render path samples it
// bilinearly with clamped coordinates; the GPU output layer uploads its raw
// bytes as an RGBA32Float texture.
type LUT2D struct {
	Width  int
	Height int
	texels []float32 // RGBA, row major
}

func NewLUT2D(width, height int) *LUT2D {
	return &LUT2D{
		Width:  width,
		Height: height,
		texels: make([]float32, width*height*4),
	}
}

func (l *LUT2D) Set(x, y int, rgb mgl32.Vec3, a float32) {
	i := (y*l.Width + x) * 4
	l.texels[i+0] = rgb[0]
	l.texels[i+1] = rgb[1]
	l.texels[i+2] = rgb[2]
	l.texels[i+3] = a
}

func (l *LUT2D) At(x, y int) (mgl32.Vec3, float32) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= l.Width {
		x = l.Width - 1
	}
	if y >= l.Height {
		y = l.Height - 1
	}
	i := (y*l.Width + x) * 4
	return mgl32.Vec3{l.texels[i], l.texels[i+1], l.texels[i+2]}, l.texels[i+3]
}

// Sample performs bilinear filtering at normalized, clamped UV coordinates,
// matching linear-filter/clamp-to-edge sampler behavior.
func (l *LUT2D) Sample(u, v float32) mgl32.Vec3 {
	fx := Saturate(u)*float32(l.Width) - 0.5
	fy := Saturate(v)*float32(l.Height) - 0.5
	x0 := int(float32(math.Floor(float64(fx))))
	y0 := int(float32(math.Floor(float64(fy))))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	c00, _ := l.At(x0, y0)
	c10, _ := l.At(x0+1, y0)
	c01, _ := l.At(x0, y0+1)
	c11, _ := l.At(x0+1, y0+1)

	top := lerpVec3(c00, c10, tx)
	bottom := lerpVec3(c01, c11, tx)
	return lerpVec3(top, bottom, ty)
}

// Bytes returns the texel data laid out for an RGBA32Float texture upload.
func (l *LUT2D) Bytes() []byte {
	out := make([]byte, len(l.texels)*4)
	for i, f := range l.texels {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// WritePNG dumps a tone-mapped snapshot of the table, useful when eyeballing
// a regenerated LUT set.
func (l *LUT2D) WritePNG(w io.Writer) error {
	img := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			rgb, _ := l.At(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(Saturate(rgb[0]/(rgb[0]+1)) * 255)
			img.Pix[i+1] = uint8(Saturate(rgb[1]/(rgb[1]+1)) * 255)
			img.Pix[i+2] = uint8(Saturate(rgb[2]/(rgb[2]+1)) * 255)
			img.Pix[i+3] = 255
		}
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode lut snapshot: %w", err)
	}
	return nil
}
