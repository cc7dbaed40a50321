package main

import (
	"flag"
	"log"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jlvoiseux/steelsky"
)

func main() {
	var (
		width      = flag.Int("width", 1280, "window width")
		height     = flag.Int("height", 720, "window height")
		atmosphere = flag.String("atmosphere", "earth", "atmosphere preset (earth, mars)")
		tunerAddr  = flag.String("tuner", "localhost:8090", "parameter websocket address, empty to disable")
		timeOfDay  = flag.Float64("time", 0.35, "starting time of day in [0,1)")
		headless   = flag.Bool("headless", false, "render frames without a window")
		frames     = flag.Int("frames", 0, "stop after N frames (0 = run until closed)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger := steelsky.NewDefaultLogger("steelsky", *debug)

	atmType, err := steelsky.ParseAtmosphereType(*atmosphere)
	if err != nil {
		log.Fatal(err)
	}

	cfg := steelsky.DefaultConfig()
	cfg.Width = *width
	cfg.Height = *height
	cfg.AtmosphereType = atmType
	cfg.Volumetric = steelsky.DefaultVolumetricConfig(*width, *height)

	renderer, err := steelsky.NewRenderer(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	renderer.UpdateSunPosition(float32(*timeOfDay))

	scene := buildDemoScene(float32(*width) / float32(*height))
	scene.Sun = renderer.SunState()

	orchestrator, err := steelsky.NewFrameOrchestrator(logger, renderer, scene, *width, *height, 1024)
	if err != nil {
		log.Fatal(err)
	}

	if *tunerAddr != "" {
		tuner := steelsky.NewParameterServer(logger, renderer, *tunerAddr)
		tunerErr := tuner.Start()
		defer tuner.Close()
		go func() {
			if err, ok := <-tunerErr; ok {
				logger.Errorf("parameter server: %v", err)
			}
		}()
	}

	if *headless {
		runHeadless(logger, renderer, scene, orchestrator, *frames)
		return
	}
	runWindowed(logger, renderer, scene, orchestrator, cfg, *frames)
}

func runHeadless(logger steelsky.Logger, renderer *steelsky.Renderer, scene *steelsky.MeshScene, orchestrator *steelsky.FrameOrchestrator, frames int) {
	if frames <= 0 {
		frames = 60
	}
	for i := 0; i < frames; i++ {
		scene.Sun = renderer.SunState()
		if err := orchestrator.RenderFrame(); err != nil {
			logger.Errorf("frame %d: %v", i, err)
			return
		}
	}
	logger.Infof("rendered %d frames headless", frames)
}

func runWindowed(logger steelsky.Logger, renderer *steelsky.Renderer, scene *steelsky.MeshScene, orchestrator *steelsky.FrameOrchestrator, cfg steelsky.Config, frames int) {
	window, err := steelsky.NewWindowState(cfg.Width, cfg.Height, cfg.Title)
	if err != nil {
		log.Fatal(err)
	}
	defer window.Destroy()

	gpu, err := steelsky.NewGpuState(window)
	if err != nil {
		log.Fatal(err)
	}
	defer gpu.Release()

	presenter, err := steelsky.NewPresenter(gpu, cfg.Width, cfg.Height)
	if err != nil {
		log.Fatal(err)
	}
	defer presenter.Release()

	for !window.ShouldClose() {
		window.PollEvents()
		scene.Sun = renderer.SunState()
		if err := orchestrator.RenderFrame(); err != nil {
			logger.Errorf("frame: %v", err)
			break
		}
		if err := presenter.UploadFrame(orchestrator.Color()); err != nil {
			logger.Errorf("upload: %v", err)
			break
		}
		if err := presenter.Present(); err != nil {
			logger.Errorf("present: %v", err)
			break
		}
		if frames > 0 && orchestrator.FrameCount() >= uint64(frames) {
			break
		}
	}
	logger.Infof("rendered %d frames", orchestrator.FrameCount())
}

func buildDemoScene(aspect float32) *steelsky.MeshScene {
	scene := steelsky.NewMeshScene(aspect)

	ground := steelsky.Material{BaseColor: mgl32.Vec3{0.25, 0.30, 0.20}}
	scene.Meshes = append(scene.Meshes, steelsky.NewGroundPlane(0, 500, ground))

	stone := steelsky.Material{BaseColor: mgl32.Vec3{0.45, 0.42, 0.40}}
	positions := []mgl32.Vec3{
		{-6, 1.5, -4}, {0, 3, -10}, {5, 2, -6}, {-2, 1, -2}, {9, 4, -16},
	}
	for _, p := range positions {
		half := mgl32.Vec3{1.2, p.Y(), 1.2}
		scene.Meshes = append(scene.Meshes, steelsky.NewBoxMesh(mgl32.Vec3{p.X(), p.Y(), p.Z()}, half, stone))
	}
	return scene
}
