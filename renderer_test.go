package steelsky

import (
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// newTestRenderer builds a renderer whose LUT computation is replaced by a
// cheap stub, so construction is instant and regenerations are observable.
func newTestRenderer(t *testing.T, cfg Config) *Renderer {
	t.Helper()
	atm, err := AtmosphereByType(cfg.AtmosphereType)
	require.NoError(t, err)

	vol, err := NewVolumetricEngine(NewNopLogger(), cfg.Volumetric)
	require.NoError(t, err)

	r := &Renderer{
		log:    NewNopLogger(),
		cfg:    cfg,
		sky:    NewSkyCompositor(NewNopLogger()),
		vol:    vol,
		luts:   NewLUTCache(NewNopLogger(), cfg.MultipleScatteringFactor),
		atm:    atm,
		sun:    SunStateAt(0.5),
		params: DefaultVolumetricParams(),
	}
	r.luts.compute = func(m *AtmosphereModel, cam, sun mgl32.Vec3, f float32) (*LUTSet, error) {
		return stubLUTSet(m, cam), nil
	}
	camKm := atmospherePosition(mgl32.Vec3{}, atm)
	require.NoError(t, r.luts.Bootstrap(atm, camKm, r.sun.Direction))
	r.lastCamKm = camKm
	return r
}

func testRendererConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 64
	cfg.Height = 36
	cfg.Volumetric = testVolumetricConfig()
	return cfg
}

func TestRendererTunables(t *testing.T) {
	r := newTestRenderer(t, testRendererConfig())

	r.UpdateVolumetricParameters(0.5, 2, 1, 3)
	p := r.VolumetricParams()
	require.Equal(t, float32(0.5), p.FogDensity)
	require.Equal(t, float32(2), p.ScatteringCoeff)

	// Negative values clamp to zero instead of erroring.
	r.UpdateVolumetricParameters(-1, -1, -1, -1)
	p = r.VolumetricParams()
	require.Equal(t, VolumetricParams{}, p)

	r.UpdateSunPosition(0.5)
	if d := r.SunState().Direction; d.Sub(mgl32.Vec3{0, 1, 0}).Len() > 1e-5 {
		t.Errorf("noon sun direction %v", d)
	}
}

func TestRendererAtmosphereSwap(t *testing.T) {
	r := newTestRenderer(t, testRendererConfig())

	require.NoError(t, r.SetAtmosphereParameters(MarsAtmosphere()))
	require.Equal(t, AtmosphereMars, r.Atmosphere().Type)
	waitFor(t, func() bool { return !r.luts.Generating() })

	bad := EarthAtmosphere()
	bad.BottomRadius = -1
	if err := r.SetAtmosphereParameters(bad); err == nil {
		t.Error("invalid model should be rejected")
	}
}

func TestRendererLUTDebounce(t *testing.T) {
	cfg := testRendererConfig()
	cfg.LUTAltitudeThreshold = 0.5 // km
	cfg.LUTCooldown = 100 * time.Millisecond
	r := newTestRenderer(t, cfg)

	var computes int
	r.luts.compute = func(m *AtmosphereModel, cam, sun mgl32.Vec3, f float32) (*LUTSet, error) {
		computes++
		return stubLUTSet(m, cam), nil
	}

	now := time.Now()

	// Small altitude wiggle: never arms the trigger.
	r.maybeRegenerateLUTs(now, mgl32.Vec3{0, 100, 0}) // 0.1 km
	if r.pending {
		t.Fatal("sub-threshold move should not arm a regeneration")
	}

	// A real climb arms it but does not fire before the cooldown.
	r.maybeRegenerateLUTs(now, mgl32.Vec3{0, 2000, 0}) // 2 km
	if !r.pending {
		t.Fatal("altitude jump should arm a regeneration")
	}
	r.maybeRegenerateLUTs(now.Add(10*time.Millisecond), mgl32.Vec3{0, 2000, 0})
	if computes != 0 {
		t.Fatal("regeneration fired before the camera settled")
	}

	// Still moving: the newer position supersedes and the window restarts.
	r.maybeRegenerateLUTs(now.Add(50*time.Millisecond), mgl32.Vec3{0, 3000, 0})
	r.maybeRegenerateLUTs(now.Add(120*time.Millisecond), mgl32.Vec3{0, 3000, 0})
	if computes != 0 {
		t.Fatal("stability window should restart when the camera keeps moving")
	}

	// Quiet long enough: the pending request fires with the latest position.
	r.maybeRegenerateLUTs(now.Add(200*time.Millisecond), mgl32.Vec3{0, 3000, 0})
	waitFor(t, func() bool { return !r.luts.Generating() })
	if computes != 1 {
		t.Fatalf("expected exactly one regeneration, got %d", computes)
	}
	if r.pending {
		t.Error("fired request should clear the pending flag")
	}
	if got := r.luts.Current().CameraPosition; got.Y() != r.atm.BottomRadius+3 {
		t.Errorf("regeneration should use the superseding position, got %v", got)
	}
}

func TestAtmosphereSwapRetriesAfterBusyDrop(t *testing.T) {
	cfg := testRendererConfig()
	cfg.LUTCooldown = 10 * time.Millisecond
	r := newTestRenderer(t, cfg)

	release := make(chan struct{})
	started := make(chan struct{})
	var startOnce sync.Once
	r.luts.compute = func(m *AtmosphereModel, cam, sun mgl32.Vec3, f float32) (*LUTSet, error) {
		startOnce.Do(func() { close(started) })
		<-release
		return stubLUTSet(m, cam), nil
	}

	now := time.Now()
	if !r.GenerateLUTs(mgl32.Vec3{0, 1000, 0}) {
		t.Fatal("first request should be accepted")
	}
	<-started

	// The swap lands while the regeneration is busy: the immediate request
	// is dropped but stays armed for the debounce.
	require.NoError(t, r.SetAtmosphereParameters(MarsAtmosphere()))
	if !r.pending {
		t.Fatal("dropped swap request should arm a pending regeneration")
	}

	// Firing while still busy is dropped again and must stay armed.
	r.maybeRegenerateLUTs(now.Add(time.Second), mgl32.Vec3{0, 1000, 0})
	if !r.pending {
		t.Fatal("drop at fire time should keep the request pending")
	}

	close(release)
	waitFor(t, func() bool { return !r.luts.Generating() })
	require.Equal(t, AtmosphereEarth, r.luts.Current().Atmosphere.Type)

	// With the cache idle again, the debounce delivers the swapped model.
	r.maybeRegenerateLUTs(now.Add(2*time.Second), mgl32.Vec3{0, 1000, 0})
	waitFor(t, func() bool { return !r.luts.Generating() })
	require.Equal(t, AtmosphereMars, r.luts.Current().Atmosphere.Type)
	if r.pending {
		t.Error("delivered swap should clear the pending flag")
	}
}

func TestRendererConcurrentTuningAndRegeneration(t *testing.T) {
	r := newTestRenderer(t, testRendererConfig())

	// The tuner goroutine swaps models and moves the sun while the render
	// thread drives the debounce and explicit regenerations.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			m := EarthAtmosphere()
			if i%2 == 1 {
				m = MarsAtmosphere()
			}
			if err := r.SetAtmosphereParameters(m); err != nil {
				t.Errorf("swap: %v", err)
				return
			}
			r.UpdateSunPosition(float32(i%100) / 100)
			r.UpdateVolumetricParameters(0.01, 1, 0.5, 1)
		}
	}()

	now := time.Now()
	for i := 0; i < 200; i++ {
		r.maybeRegenerateLUTs(now.Add(time.Duration(i)*time.Millisecond), mgl32.Vec3{0, float32(i * 50), 0})
		r.GenerateLUTs(mgl32.Vec3{0, float32(i), 0})
	}
	close(stop)
	wg.Wait()
	waitFor(t, func() bool { return !r.luts.Generating() })
}

func TestGenerateLUTsDropsWhileBusy(t *testing.T) {
	r := newTestRenderer(t, testRendererConfig())

	release := make(chan struct{})
	started := make(chan struct{})
	r.luts.compute = func(m *AtmosphereModel, cam, sun mgl32.Vec3, f float32) (*LUTSet, error) {
		close(started)
		<-release
		return stubLUTSet(m, cam), nil
	}

	if !r.GenerateLUTs(mgl32.Vec3{0, 1000, 0}) {
		t.Fatal("first request should be accepted")
	}
	<-started
	if r.GenerateLUTs(mgl32.Vec3{0, 2000, 0}) {
		t.Error("second request should be dropped while busy")
	}
	close(release)
	waitFor(t, func() bool { return !r.luts.Generating() })
}
