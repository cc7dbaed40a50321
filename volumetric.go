package steelsky

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// VolumetricConfig sizes the froxel grid and light buffer and fixes the fog
// law tunables that are not exposed through UpdateVolumetricParameters.
type VolumetricConfig struct {
	GridWidth  int
	GridHeight int
	GridDepth  int

	LightBufferWidth  int
	LightBufferHeight int

	NearPlane  float32
	FarPlane   float32
	MarchSteps int

	HeightFalloff float32
	FarFogStart   float32
	FarFogEnd     float32
	FarFogScale   float32
	AmbientSky    mgl32.Vec3

	NoiseSeed   int64
	NoisePeriod int
}

func DefaultVolumetricConfig(screenW, screenH int) VolumetricConfig {
	return VolumetricConfig{
		GridWidth:         160,
		GridHeight:        88,
		GridDepth:         64,
		LightBufferWidth:  screenW / 2,
		LightBufferHeight: screenH / 2,
		NearPlane:         0.5,
		FarPlane:          400.0,
		MarchSteps:        64,
		HeightFalloff:     0.06,
		FarFogStart:       220.0,
		FarFogEnd:         380.0,
		FarFogScale:       0.35,
		AmbientSky:        mgl32.Vec3{0.18, 0.24, 0.35},
		NoiseSeed:         1,
		NoisePeriod:       32,
	}
}

// VolumetricEngine owns the froxel field and the double-buffered light
// accumulation targets, and runs the per-frame stage sequence
// Fill -> Raymarch -> Reproject -> Composite in that fixed order. Reproject
// is skipped only on the very first frame, when there is no history.
type VolumetricEngine struct {
	log   Logger
	cfg   VolumetricConfig
	noise *Noise3D

	field    *VolumetricField
	scratch  *LightBuffer // raymarch output
	resolved *LightBuffer // post-reprojection, published to readers
	history  *LightBuffer // previous frame's resolved buffer

	frameIndex int
	hasHistory bool
}

func NewVolumetricEngine(log Logger, cfg VolumetricConfig) (*VolumetricEngine, error) {
	if log == nil {
		log = NewNopLogger()
	}
	if cfg.GridWidth <= 0 || cfg.GridHeight <= 0 || cfg.GridDepth <= 0 {
		return nil, fmt.Errorf("invalid froxel grid size %dx%dx%d", cfg.GridWidth, cfg.GridHeight, cfg.GridDepth)
	}
	if cfg.LightBufferWidth <= 0 || cfg.LightBufferHeight <= 0 {
		return nil, fmt.Errorf("invalid light buffer size %dx%d", cfg.LightBufferWidth, cfg.LightBufferHeight)
	}
	return &VolumetricEngine{
		log:      log,
		cfg:      cfg,
		noise:    NewNoise3D(cfg.NoiseSeed, cfg.NoisePeriod),
		field:    NewVolumetricField(cfg.GridWidth, cfg.GridHeight, cfg.GridDepth),
		scratch:  NewLightBuffer(cfg.LightBufferWidth, cfg.LightBufferHeight),
		resolved: NewLightBuffer(cfg.LightBufferWidth, cfg.LightBufferHeight),
		history:  NewLightBuffer(cfg.LightBufferWidth, cfg.LightBufferHeight),
	}, nil
}

// LightBuffer exposes the most recently completed volumetric light buffer,
// the texture the compositor and external passes read.
func (e *VolumetricEngine) LightBuffer() *LightBuffer {
	return e.history
}

// JitterIndex returns the dither pattern index for the next fill.
func (e *VolumetricEngine) JitterIndex() int {
	return e.frameIndex
}

// Render runs the full per-frame fog sequence and composites into scene.
// esm may be nil (everything fully sunlit); scene and depth must share
// dimensions.
func (e *VolumetricEngine) Render(u VolumetricUniforms, m *AtmosphereModel, depth *DepthBuffer, esm *ShadowMap, scene *ColorBuffer) error {
	fill := fillConfig{
		NearPlane:     e.cfg.NearPlane,
		FarPlane:      e.cfg.FarPlane,
		HeightFalloff: e.cfg.HeightFalloff,
		FarFogStart:   e.cfg.FarFogStart,
		FarFogEnd:     e.cfg.FarFogEnd,
		FarFogScale:   e.cfg.FarFogScale,
		AmbientSky:    e.cfg.AmbientSky,
	}
	if err := FillVolumetricField(e.field, u, m, e.noise, esm, fill); err != nil {
		return fmt.Errorf("fog fill: %w", err)
	}

	march := marchConfig{
		NearPlane: e.cfg.NearPlane,
		FarPlane:  e.cfg.FarPlane,
		Steps:     e.cfg.MarchSteps,
	}
	if err := MarchVolumetricField(e.field, u, depth, e.scratch, march); err != nil {
		return fmt.Errorf("fog raymarch: %w", err)
	}

	if e.hasHistory && u.HavePrevious {
		if err := ReprojectLightBuffer(e.scratch, e.history, u, depth, e.resolved); err != nil {
			return fmt.Errorf("fog reprojection: %w", err)
		}
	} else {
		copy(e.resolved.Pix, e.scratch.Pix)
	}

	if err := CompositeVolumetrics(scene, e.resolved, u); err != nil {
		return fmt.Errorf("fog composite: %w", err)
	}

	// End-of-frame swap: this frame's resolved buffer becomes the history
	// (and the published light buffer); the old history is recycled as the
	// next resolve target. The swap is the only writer of "previous".
	e.history, e.resolved = e.resolved, e.history
	e.hasHistory = true
	e.frameIndex++
	return nil
}
