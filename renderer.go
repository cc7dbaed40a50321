package steelsky

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Config gathers the renderer's construction-time settings. Runtime
// tunables (fog density, god rays, time of day) go through the setters.
type Config struct {
	Width  int
	Height int
	Title  string

	AtmosphereType           AtmosphereType
	MultipleScatteringFactor float32

	// LUT regeneration debounce: a camera altitude change larger than
	// AltitudeThreshold (km) schedules a regeneration, which is only
	// submitted once the camera has been stable for Cooldown.
	LUTAltitudeThreshold float32
	LUTCooldown          time.Duration

	Volumetric VolumetricConfig
}

func DefaultConfig() Config {
	w, h := 1280, 720
	return Config{
		Width:                    w,
		Height:                   h,
		Title:                    "steelsky",
		AtmosphereType:           AtmosphereEarth,
		MultipleScatteringFactor: 1.0,
		LUTAltitudeThreshold:     0.5,
		LUTCooldown:              250 * time.Millisecond,
		Volumetric:               DefaultVolumetricConfig(w, h),
	}
}

// VolumetricParams are the user-facing fog tunables.
type VolumetricParams struct {
	FogDensity      float32
	ScatteringCoeff float32
	GodRayStrength  float32
	GodRayDecay     float32
}

func DefaultVolumetricParams() VolumetricParams {
	return VolumetricParams{
		FogDensity:      0.012,
		ScatteringCoeff: 1.0,
		GodRayStrength:  0.6,
		GodRayDecay:     1.4,
	}
}

// Renderer wires the sky compositor, the LUT cache and the volumetric
// engine together. It is an explicitly constructed context object: it owns
// its resources, is passed by reference to each stage, and its lifetime is
// tied to the surrounding application.
type Renderer struct {
	log Logger
	cfg Config

	sky  *SkyCompositor
	vol  *VolumetricEngine
	luts *LUTCache

	// mu guards the tunables, which the websocket tuner mutates from its
	// own goroutine, and the LUT debounce state below, which the tuner
	// reads through SetAtmosphereParameters. Per-frame uniforms snapshot
	// them once.
	mu        sync.Mutex
	atm       *AtmosphereModel
	sun       SunState
	timeOfDay float32
	params    VolumetricParams

	lastCamKm   mgl32.Vec3
	pendingCam  mgl32.Vec3
	pending     bool
	stableSince time.Time

	// Reprojection history. Render thread only.
	prevViewProj mgl32.Mat4
	havePrev     bool
}

// NewRenderer constructs the renderer and synchronously bootstraps the
// first LUT set; the call blocks until the initial tables are ready. Any
// failure here is fatal to initialization.
func NewRenderer(cfg Config, log Logger) (*Renderer, error) {
	if log == nil {
		log = NewNopLogger()
	}
	atm, err := AtmosphereByType(cfg.AtmosphereType)
	if err != nil {
		return nil, err
	}
	if err := atm.Validate(); err != nil {
		return nil, fmt.Errorf("atmosphere preset: %w", err)
	}

	vol, err := NewVolumetricEngine(log, cfg.Volumetric)
	if err != nil {
		return nil, fmt.Errorf("volumetric engine: %w", err)
	}

	r := &Renderer{
		log:       log,
		cfg:       cfg,
		sky:       NewSkyCompositor(log),
		vol:       vol,
		luts:      NewLUTCache(log, cfg.MultipleScatteringFactor),
		atm:       atm,
		sun:       SunStateAt(0.5),
		timeOfDay: 0.5,
		params:    DefaultVolumetricParams(),
	}

	camKm := atmospherePosition(mgl32.Vec3{}, atm)
	if err := r.luts.Bootstrap(atm, camKm, r.sun.Direction); err != nil {
		return nil, err
	}
	r.lastCamKm = camKm
	return r, nil
}

// UpdateSunPosition advances the sun to the given time of day in [0,1).
func (r *Renderer) UpdateSunPosition(timeOfDay float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeOfDay = timeOfDay
	r.sun = SunStateAt(timeOfDay)
}

// SunState returns the current solar configuration.
func (r *Renderer) SunState() SunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sun
}

// SetAtmosphereParameters swaps the planet model wholesale and kicks off a
// LUT regeneration for it. If one is already in flight the swap is armed as
// a pending regeneration, so the published set catches up once the camera
// debounce next fires.
func (r *Renderer) SetAtmosphereParameters(m *AtmosphereModel) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.atm = m

	if !r.luts.Request(m, r.lastCamKm, r.sun.Direction) {
		r.log.Debugf("atmosphere swap: regeneration in flight, retrying via debounce")
		r.pending = true
		r.pendingCam = r.lastCamKm
		r.stableSince = time.Now()
	}
	return nil
}

// Atmosphere returns the active atmosphere model.
func (r *Renderer) Atmosphere() *AtmosphereModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atm
}

// UpdateVolumetricParameters replaces the fog tunables. Negative values are
// clamped to zero rather than rejected.
func (r *Renderer) UpdateVolumetricParameters(fogDensity, scatteringCoeff, godRayStrength, godRayDecay float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = VolumetricParams{
		FogDensity:      max32(0, fogDensity),
		ScatteringCoeff: max32(0, scatteringCoeff),
		GodRayStrength:  max32(0, godRayStrength),
		GodRayDecay:     max32(0, godRayDecay),
	}
}

// VolumetricParams returns the current fog tunables.
func (r *Renderer) VolumetricParams() VolumetricParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// GenerateLUTs requests an asynchronous LUT regeneration for the given
// world-space camera position. Returns false when one is already running.
func (r *Renderer) GenerateLUTs(cameraPosition mgl32.Vec3) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	camKm := atmospherePosition(cameraPosition, r.atm)
	accepted := r.luts.Request(r.atm, camKm, r.sun.Direction)
	if accepted {
		r.lastCamKm = camKm
	}
	return accepted
}

// TransmittanceLUT returns the published transmittance table.
func (r *Renderer) TransmittanceLUT() *LUT2D { return r.luts.Current().Transmittance }

// MultiScatteringLUT returns the published multi-scattering table.
func (r *Renderer) MultiScatteringLUT() *LUT2D { return r.luts.Current().MultiScattering }

// SkyViewLUT returns the published sky-view table.
func (r *Renderer) SkyViewLUT() *LUT2D { return r.luts.Current().SkyView }

// VolumetricLightTexture returns the most recent volumetric light buffer.
func (r *Renderer) VolumetricLightTexture() *LightBuffer { return r.vol.LightBuffer() }

// maybeRegenerateLUTs implements the debounced altitude trigger: motion
// past the threshold arms a pending request, which is submitted only after
// the camera has been stable for the cooldown. A newer camera position
// supersedes a pending one; a request while a regeneration is in flight is
// dropped by the cache.
func (r *Renderer) maybeRegenerateLUTs(now time.Time, cameraPosition mgl32.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()

	camKm := atmospherePosition(cameraPosition, r.atm)
	if r.pending {
		if camKm.Sub(r.pendingCam).Len() > 1e-4 {
			// Still moving: supersede and restart the stability window.
			r.pendingCam = camKm
			r.stableSince = now
			return
		}
		if now.Sub(r.stableSince) >= r.cfg.LUTCooldown {
			// Stay armed on a drop so the request retries once the
			// in-flight regeneration finishes.
			if r.luts.Request(r.atm, camKm, r.sun.Direction) {
				r.lastCamKm = camKm
				r.pending = false
			}
		}
		return
	}
	if absDiff(camKm.Len(), r.lastCamKm.Len()) > r.cfg.LUTAltitudeThreshold {
		r.pending = true
		r.pendingCam = camKm
		r.stableSince = now
	}
}

// RenderSky runs the full-screen sky pass against the published LUT set.
func (r *Renderer) RenderSky(view, proj mgl32.Mat4, sceneDepth *DepthBuffer, cameraPosition mgl32.Vec3, timeSeconds float32, out *ColorBuffer) error {
	r.mu.Lock()
	sun := r.sun
	r.mu.Unlock()
	u := NewAtmosphereUniforms(view, proj, cameraPosition, sun, out.W, out.H, timeSeconds)
	return r.sky.Render(u, r.luts.Current(), sceneDepth, out)
}

// RenderVolumetrics runs the fog sequence and composites into scene.
func (r *Renderer) RenderVolumetrics(view, proj, lightViewProj mgl32.Mat4, cameraPosition mgl32.Vec3, timeSeconds float32, sceneDepth *DepthBuffer, esm *ShadowMap, scene *ColorBuffer) error {
	r.mu.Lock()
	sun := r.sun
	params := r.params
	atm := r.atm
	r.mu.Unlock()

	viewProj := proj.Mul4(view)
	u := VolumetricUniforms{
		InvViewProj:     viewProj.Inv(),
		ViewProj:        viewProj,
		PrevViewProj:    r.prevViewProj,
		LightViewProj:   lightViewProj,
		CameraPosition:  cameraPosition,
		SunDirection:    sun.Direction,
		SunIlluminance:  sun.Illuminance,
		FogDensity:      params.FogDensity,
		ScatteringCoeff: params.ScatteringCoeff,
		GodRayStrength:  params.GodRayStrength,
		GodRayDecay:     params.GodRayDecay,
		ScreenWidth:     scene.W,
		ScreenHeight:    scene.H,
		Time:            timeSeconds,
		JitterIndex:     r.vol.JitterIndex(),
		HavePrevious:    r.havePrev,
	}
	if err := r.vol.Render(u, atm, sceneDepth, esm, scene); err != nil {
		return err
	}
	r.prevViewProj = viewProj
	r.havePrev = true
	return nil
}

func absDiff(a, b float32) float32 {
	if a > b {
		return a - b
	}
	return b - a
}
