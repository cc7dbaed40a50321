package steelsky

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AtmosphereType selects one of the built-in planetary presets.
type AtmosphereType int

const (
	AtmosphereEarth AtmosphereType = iota
	AtmosphereMars
)

func (t AtmosphereType) String() string {
	switch t {
	case AtmosphereEarth:
		return "earth"
	case AtmosphereMars:
		return "mars"
	}
	return "unknown"
}

// ParseAtmosphereType resolves a preset name as used by the tuning API.
func ParseAtmosphereType(name string) (AtmosphereType, error) {
	switch name {
	case "earth":
		return AtmosphereEarth, nil
	case "mars":
		return AtmosphereMars, nil
	}
	return 0, fmt.Errorf("unknown atmosphere type %q", name)
}

// AtmosphereModel is the immutable physical description of a planet's
// atmosphere. All radii and scale heights are in kilometers, all
// scattering/extinction coefficients in km^-1. Models are swapped wholesale
// when the planet type changes; nothing mutates one in place.
type AtmosphereModel struct {
	Type AtmosphereType

	BottomRadius float32
	TopRadius    float32

	RayleighDensityExpScale float32
	RayleighScattering      mgl32.Vec3

	MieDensityExpScale float32
	MieScattering      mgl32.Vec3
	MieExtinction      mgl32.Vec3
	MieAbsorption      mgl32.Vec3
	MiePhaseG          float32

	// Ozone absorption uses a two-layer piecewise-linear density profile:
	// density = saturate(linear*h + constant) with layer 0 below
	// AbsorptionLayer0Width and layer 1 above it.
	AbsorptionLayer0Width    float32
	AbsorptionLayer0Constant float32
	AbsorptionLayer0Linear   float32
	AbsorptionLayer1Constant float32
	AbsorptionLayer1Linear   float32
	AbsorptionExtinction     mgl32.Vec3

	GroundAlbedo mgl32.Vec3
}

// EarthAtmosphere returns the Earth preset. Coefficients follow the usual
// sea-level Rayleigh/Mie/ozone fits with 8 km and 1.2 km scale heights.
func EarthAtmosphere() *AtmosphereModel {
	mieScattering := mgl32.Vec3{0.003996, 0.003996, 0.003996}
	mieExtinction := mgl32.Vec3{0.004440, 0.004440, 0.004440}
	return &AtmosphereModel{
		Type: AtmosphereEarth,

		BottomRadius: 6360.0,
		TopRadius:    6460.0,

		RayleighDensityExpScale: -1.0 / 8.0,
		RayleighScattering:      mgl32.Vec3{0.005802, 0.013558, 0.033100},

		MieDensityExpScale: -1.0 / 1.2,
		MieScattering:      mieScattering,
		MieExtinction:      mieExtinction,
		MieAbsorption:      maxVec3(mieExtinction.Sub(mieScattering), 0),
		MiePhaseG:          0.8,

		AbsorptionLayer0Width:    25.0,
		AbsorptionLayer0Constant: -2.0 / 3.0,
		AbsorptionLayer0Linear:   1.0 / 15.0,
		AbsorptionLayer1Constant: 8.0 / 3.0,
		AbsorptionLayer1Linear:   -1.0 / 15.0,
		AbsorptionExtinction:     mgl32.Vec3{0.000650, 0.001881, 0.000085},

		GroundAlbedo: mgl32.Vec3{0.40, 0.40, 0.40},
	}
}

// MarsAtmosphere returns the Mars preset. It differs from Earth only in the
// Rayleigh scattering coefficients (dust favors red) and the ground albedo.
func MarsAtmosphere() *AtmosphereModel {
	m := EarthAtmosphere()
	m.Type = AtmosphereMars
	m.RayleighScattering = mgl32.Vec3{0.033100, 0.013558, 0.005802}
	m.GroundAlbedo = mgl32.Vec3{0.38, 0.22, 0.14}
	return m
}

// AtmosphereByType maps a preset name to its model.
func AtmosphereByType(t AtmosphereType) (*AtmosphereModel, error) {
	switch t {
	case AtmosphereEarth:
		return EarthAtmosphere(), nil
	case AtmosphereMars:
		return MarsAtmosphere(), nil
	}
	return nil, fmt.Errorf("unknown atmosphere type %d", int(t))
}

// Validate checks the structural invariants of the model.
func (m *AtmosphereModel) Validate() error {
	if m.BottomRadius <= 0 {
		return fmt.Errorf("bottom radius must be positive, got %f", m.BottomRadius)
	}
	if m.TopRadius <= m.BottomRadius {
		return fmt.Errorf("top radius %f must exceed bottom radius %f", m.TopRadius, m.BottomRadius)
	}
	coeffs := map[string]mgl32.Vec3{
		"rayleigh scattering":   m.RayleighScattering,
		"mie scattering":        m.MieScattering,
		"mie extinction":        m.MieExtinction,
		"mie absorption":        m.MieAbsorption,
		"absorption extinction": m.AbsorptionExtinction,
	}
	for name, c := range coeffs {
		for i := 0; i < 3; i++ {
			if c[i] < 0 {
				return fmt.Errorf("%s channel %d is negative: %f", name, i, c[i])
			}
		}
	}
	return nil
}

// MediumSample holds the participating-medium coefficients evaluated at one
// point of the atmosphere shell.
type MediumSample struct {
	Scattering    mgl32.Vec3
	Extinction    mgl32.Vec3
	MieScattering mgl32.Vec3
	RayScattering mgl32.Vec3
}

// SampleMedium evaluates the exponential Rayleigh/Mie profiles and the ozone
// layer profile at a planet-centered position (km).
func (m *AtmosphereModel) SampleMedium(pos mgl32.Vec3) MediumSample {
	altitude := pos.Len() - m.BottomRadius

	densityMie := Saturate(exp32(m.MieDensityExpScale * altitude))
	densityRay := Saturate(exp32(m.RayleighDensityExpScale * altitude))
	var densityOzo float32
	if altitude < m.AbsorptionLayer0Width {
		densityOzo = Saturate(m.AbsorptionLayer0Linear*altitude + m.AbsorptionLayer0Constant)
	} else {
		densityOzo = Saturate(m.AbsorptionLayer1Linear*altitude + m.AbsorptionLayer1Constant)
	}

	mieScattering := m.MieScattering.Mul(densityMie)
	mieExtinction := m.MieExtinction.Mul(densityMie)
	rayScattering := m.RayleighScattering.Mul(densityRay)
	ozoExtinction := m.AbsorptionExtinction.Mul(densityOzo)

	return MediumSample{
		Scattering:    mieScattering.Add(rayScattering),
		Extinction:    mieExtinction.Add(rayScattering).Add(ozoExtinction),
		MieScattering: mieScattering,
		RayScattering: rayScattering,
	}
}

// SunState is the derived solar configuration for one moment of the day.
// It has no lifecycle of its own; recompute it whenever time advances.
type SunState struct {
	Direction   mgl32.Vec3
	Illuminance mgl32.Vec3
}

// BaseSunIlluminance is the illuminance of the unattenuated sun, shared by
// every stage that feeds the scattering integrator.
var BaseSunIlluminance = mgl32.Vec3{1.0, 1.0, 1.0}

// SunStateAt maps a time of day in [0,1) to a sun direction and illuminance.
// 0 is midnight, 0.25 sunrise, 0.5 solar noon. The sun travels a great
// circle in the XY plane; a warm tint is blended in near the horizon and the
// illuminance fades to zero through twilight.
func SunStateAt(timeOfDay float32) SunState {
	t := timeOfDay - float32(math.Floor(float64(timeOfDay)))
	angle := 2.0 * float32(math.Pi) * (t - 0.25)
	dir := mgl32.Vec3{cos32(angle), sin32(angle), 0}

	elevation := dir[1]
	// Fade from full white at 10 degrees elevation down to dark slightly
	// below the horizon, with a warm bias while the sun sits low.
	strength := Smoothstep(-0.1, 0.17, elevation)
	warmth := 1.0 - Smoothstep(0.0, 0.35, elevation)
	tint := lerpVec3(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1.0, 0.70, 0.45}, warmth)

	return SunState{
		Direction:   dir,
		Illuminance: mulVec3(BaseSunIlluminance, tint).Mul(strength),
	}
}
