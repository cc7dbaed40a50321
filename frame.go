package steelsky

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// SceneSource feeds the orchestrator everything the frame needs from the
// host application: camera, geometry passes and the shadow caster setup.
type SceneSource interface {
	// Camera returns the view and projection matrices plus the world-space
	// camera position for the frame being built.
	Camera() (view, proj mgl32.Mat4, position mgl32.Vec3)

	// LightViewProj returns the sun shadow matrix matching the depth map
	// produced by RenderShadow.
	LightViewProj() mgl32.Mat4

	// RenderShadow writes linear depth from the light's point of view.
	RenderShadow(depth *DepthBuffer) error

	// RenderDepth writes the opaque scene's depth from the camera.
	RenderDepth(depth *DepthBuffer) error

	// RenderOpaque shades the opaque scene on top of the sky background.
	// Pixels it does not cover keep the sky.
	RenderOpaque(depth *DepthBuffer, out *ColorBuffer) error
}

// FrameOrchestrator runs one frame of the pipeline in its fixed order:
// shadow, scene depth, sky, opaque, volumetrics. The sky pass consumes the
// scene depth written before it; the volumetric pass consumes the shadow
// map, the scene depth and the lit color target, and composites in place.
type FrameOrchestrator struct {
	log      Logger
	renderer *Renderer
	scene    SceneSource

	shadowDepth *DepthBuffer
	shadowMap   *ShadowMap
	sceneDepth  *DepthBuffer
	color       *ColorBuffer

	start  time.Time
	frames uint64

	// trace records stage names as they run. Nil outside of tests.
	trace func(stage string)
}

func NewFrameOrchestrator(log Logger, r *Renderer, scene SceneSource, width, height, shadowSize int) (*FrameOrchestrator, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame target %dx%d: dimensions must be positive", width, height)
	}
	if shadowSize <= 0 {
		return nil, fmt.Errorf("shadow map size %d: must be positive", shadowSize)
	}
	return &FrameOrchestrator{
		log:         log,
		renderer:    r,
		scene:       scene,
		shadowDepth: NewDepthBuffer(shadowSize, shadowSize),
		sceneDepth:  NewDepthBuffer(width, height),
		color:       NewColorBuffer(width, height),
		start:       time.Now(),
	}, nil
}

// Color returns the frame's color target. Valid after RenderFrame.
func (f *FrameOrchestrator) Color() *ColorBuffer { return f.color }

// FrameCount reports how many frames have completed.
func (f *FrameOrchestrator) FrameCount() uint64 { return f.frames }

func (f *FrameOrchestrator) stage(name string) {
	if f.trace != nil {
		f.trace(name)
	}
}

// RenderFrame executes the frame's passes in order. A stage failure aborts
// the frame and leaves the targets in their partially written state; the
// next frame starts clean.
func (f *FrameOrchestrator) RenderFrame() error {
	now := time.Now()
	elapsed := float32(now.Sub(f.start).Seconds())
	view, proj, camPos := f.scene.Camera()

	f.stage("shadow")
	f.shadowDepth.Clear()
	if err := f.scene.RenderShadow(f.shadowDepth); err != nil {
		return fmt.Errorf("shadow pass: %w", err)
	}
	// The fog fill samples a half-resolution ESM; the box filter also
	// softens the penumbra before the march ever sees it.
	f.shadowMap = NewShadowMapFromDepth(f.shadowDepth, f.scene.LightViewProj()).Downsample()

	f.stage("depth")
	f.sceneDepth.Clear()
	if err := f.scene.RenderDepth(f.sceneDepth); err != nil {
		return fmt.Errorf("depth pass: %w", err)
	}

	f.stage("sky")
	if err := f.renderer.RenderSky(view, proj, f.sceneDepth, camPos, elapsed, f.color); err != nil {
		return fmt.Errorf("sky pass: %w", err)
	}

	f.stage("opaque")
	if err := f.scene.RenderOpaque(f.sceneDepth, f.color); err != nil {
		return fmt.Errorf("opaque pass: %w", err)
	}

	f.stage("volumetrics")
	if err := f.renderer.RenderVolumetrics(view, proj, f.scene.LightViewProj(), camPos, elapsed, f.sceneDepth, f.shadowMap, f.color); err != nil {
		return fmt.Errorf("volumetric pass: %w", err)
	}

	f.renderer.maybeRegenerateLUTs(now, camPos)
	f.frames++
	return nil
}
