package steelsky

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// Noise3D is a tiling 3D value-noise field. The lattice repeats every
// Period cells on each axis, so scrolled lookups never walk off a seam.
type Noise3D struct {
	perm   [512]int
	period int
}

// NewNoise3D builds a permutation table from the seed. period must be a
// power of two no larger than 256.
func NewNoise3D(seed int64, period int) *Noise3D {
	if period <= 0 || period > 256 || period&(period-1) != 0 {
		period = 32
	}
	n := &Noise3D{period: period}
	rng := rand.New(rand.NewSource(seed))
	p := rng.Perm(256)
	for i := 0; i < 256; i++ {
		n.perm[i] = p[i]
		n.perm[i+256] = p[i]
	}
	return n
}

func (n *Noise3D) lattice(x, y, z int) float32 {
	mask := n.period - 1
	x &= mask
	y &= mask
	z &= mask
	h := n.perm[n.perm[n.perm[x]+y]+z]
	return float32(h) / 255.0
}

func fade(t float32) float32 {
	return t * t * (3.0 - 2.0*t)
}

// At samples the tiling value noise at a point in lattice units, returning a
// value in [0,1].
func (n *Noise3D) At(x, y, z float32) float32 {
	x0 := int(float32(math.Floor(float64(x))))
	y0 := int(float32(math.Floor(float64(y))))
	z0 := int(float32(math.Floor(float64(z))))
	tx := fade(x - float32(x0))
	ty := fade(y - float32(y0))
	tz := fade(z - float32(z0))

	c000 := n.lattice(x0, y0, z0)
	c100 := n.lattice(x0+1, y0, z0)
	c010 := n.lattice(x0, y0+1, z0)
	c110 := n.lattice(x0+1, y0+1, z0)
	c001 := n.lattice(x0, y0, z0+1)
	c101 := n.lattice(x0+1, y0, z0+1)
	c011 := n.lattice(x0, y0+1, z0+1)
	c111 := n.lattice(x0+1, y0+1, z0+1)

	x00 := Lerp(c000, c100, tx)
	x10 := Lerp(c010, c110, tx)
	x01 := Lerp(c001, c101, tx)
	x11 := Lerp(c011, c111, tx)

	y0v := Lerp(x00, x10, ty)
	y1v := Lerp(x01, x11, ty)
	return Lerp(y0v, y1v, tz)
}

// fogOctave pairs a spatial frequency with a scroll velocity, so the three
// octaves drift against each other over time.
type fogOctave struct {
	frequency float32
	amplitude float32
	scroll    mgl32.Vec3
}

var fogOctaves = [3]fogOctave{
	{frequency: 0.012, amplitude: 0.55, scroll: mgl32.Vec3{0.012, 0.002, 0.008}},
	{frequency: 0.051, amplitude: 0.30, scroll: mgl32.Vec3{-0.031, 0.006, 0.022}},
	{frequency: 0.193, amplitude: 0.15, scroll: mgl32.Vec3{0.084, -0.012, -0.066}},
}

// FogNoise evaluates the three-octave drifting noise used to modulate the
// height-fog density. p is in world units, t in seconds. The result is
// normalized to [0,1].
func (n *Noise3D) FogNoise(p mgl32.Vec3, t float32) float32 {
	var sum, norm float32
	for _, oct := range fogOctaves {
		q := p.Mul(oct.frequency).Add(oct.scroll.Mul(t))
		sum += oct.amplitude * n.At(q[0], q[1], q[2])
		norm += oct.amplitude
	}
	return sum / norm
}
