package steelsky

import (
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// LUTSet is one complete, internally consistent snapshot of the three
// atmosphere tables plus the inputs they were computed from. Once published
// it is never written again.
type LUTSet struct {
	Transmittance   *LUT2D
	MultiScattering *LUT2D
	SkyView         *LUT2D

	// CameraPosition is the planet-centered camera position (km) the
	// sky-view stage used.
	CameraPosition mgl32.Vec3
	Atmosphere     *AtmosphereModel
}

// ComputeLUTSet runs the three dependent stages in order: transmittance,
// then multi-scattering (which reads transmittance), then sky-view (which
// reads both).
func ComputeLUTSet(m *AtmosphereModel, cameraPos, sunDir mgl32.Vec3, multipleScatteringFactor float32) (*LUTSet, error) {
	transmittance, err := ComputeTransmittanceLUT(m)
	if err != nil {
		return nil, err
	}
	multi, err := ComputeMultiScatteringLUT(m, transmittance, multipleScatteringFactor)
	if err != nil {
		return nil, err
	}
	skyView, err := ComputeSkyViewLUT(m, transmittance, multi, cameraPos, sunDir)
	if err != nil {
		return nil, err
	}
	return &LUTSet{
		Transmittance:   transmittance,
		MultiScattering: multi,
		SkyView:         skyView,
		CameraPosition:  cameraPos,
		Atmosphere:      m,
	}, nil
}

// LUTCache owns two LUT set slots. The render path only ever dereferences
// the slot named by the published index, so no lock guards the swap: a
// regeneration writes the spare slot and then atomically republishes.
// At most one regeneration is in flight; a request arriving while one runs
// is dropped, not queued.
type LUTCache struct {
	log Logger

	slots      [2]atomic.Pointer[LUTSet]
	published  atomic.Int32
	generating atomic.Bool

	multipleScatteringFactor float32

	// compute is swappable so failure paths can be exercised.
	compute func(m *AtmosphereModel, cameraPos, sunDir mgl32.Vec3, factor float32) (*LUTSet, error)
}

func NewLUTCache(log Logger, multipleScatteringFactor float32) *LUTCache {
	if log == nil {
		log = NewNopLogger()
	}
	return &LUTCache{
		log:                      log,
		multipleScatteringFactor: multipleScatteringFactor,
		compute:                  ComputeLUTSet,
	}
}

// Current returns the published LUT set, or nil before Bootstrap.
func (c *LUTCache) Current() *LUTSet {
	return c.slots[c.published.Load()].Load()
}

// Generating reports whether a regeneration is in flight.
func (c *LUTCache) Generating() bool {
	return c.generating.Load()
}

// Bootstrap computes and publishes the initial LUT set synchronously. It is
// the only blocking operation in the cache and must complete before the
// first frame renders.
func (c *LUTCache) Bootstrap(m *AtmosphereModel, cameraPos, sunDir mgl32.Vec3) error {
	if !c.generating.CompareAndSwap(false, true) {
		return fmt.Errorf("lut bootstrap requested while a regeneration is in flight")
	}
	defer c.generating.Store(false)

	set, err := c.compute(m, cameraPos, sunDir, c.multipleScatteringFactor)
	if err != nil {
		return fmt.Errorf("lut bootstrap: %w", err)
	}
	idx := c.published.Load()
	c.slots[idx].Store(set)
	c.published.Store(idx)
	c.log.Infof("lut bootstrap complete (camera height %.2f km)", cameraPos.Len())
	return nil
}

// Request starts an asynchronous regeneration into the spare slot and
// returns immediately. The return value reports whether the request was
// accepted; a request while another is in flight is dropped. On completion
// of all three stages the spare slot is published atomically. On failure the
// published set is left untouched and the in-flight flag is still cleared so
// the cache cannot wedge.
func (c *LUTCache) Request(m *AtmosphereModel, cameraPos, sunDir mgl32.Vec3) bool {
	if !c.generating.CompareAndSwap(false, true) {
		return false
	}
	job := uuid.NewString()
	c.log.Debugf("lut regeneration %s started (camera height %.2f km)", job, cameraPos.Len())

	go func() {
		defer c.generating.Store(false)

		set, err := c.compute(m, cameraPos, sunDir, c.multipleScatteringFactor)
		if err != nil {
			// Treated as a no-op regeneration; the current set stays valid.
			c.log.Errorf("lut regeneration %s failed: %v", job, err)
			return
		}
		next := 1 - c.published.Load()
		c.slots[next].Store(set)
		c.published.Store(next)
		c.log.Debugf("lut regeneration %s published slot %d", job, next)
	}()
	return true
}
