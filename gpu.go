package steelsky

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"strconv"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type WindowState struct {
	windowGlfw   *glfw.Window
	WindowWidth  int
	WindowHeight int
	windowTitle  string
}

type GpuState struct {
	surface       *wgpu.Surface
	adapter       *wgpu.Adapter
	device        *wgpu.Device
	queue         *wgpu.Queue
	surfaceConfig *wgpu.SurfaceConfiguration
}

// NewWindowState opens the application window. Must be called from the main
// goroutine; the OS thread stays locked for GLFW's benefit.
func NewWindowState(width, height int, title string) (*WindowState, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}

	return &WindowState{
		windowGlfw:   win,
		WindowWidth:  width,
		WindowHeight: height,
		windowTitle:  title,
	}, nil
}

func (s *WindowState) ShouldClose() bool { return s.windowGlfw.ShouldClose() }
func (s *WindowState) PollEvents()       { glfw.PollEvents() }

func (s *WindowState) Destroy() {
	s.windowGlfw.Destroy()
	glfw.Terminate()
}

// NewGpuState wraps the window into a wgpu surface and brings up a device
// and queue. Construction failures are returned, not paniced: a missing GPU
// is an environment condition the caller decides how to handle.
func NewGpuState(s *WindowState) (*GpuState, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(s.windowGlfw))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	queue := device.GetQueue()

	caps := surface.GetCapabilities(adapter)
	surfaceConfig := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(s.WindowWidth),
		Height:      uint32(s.WindowHeight),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, &surfaceConfig)

	return &GpuState{
		surface:       surface,
		adapter:       adapter,
		device:        device,
		queue:         queue,
		surfaceConfig: &surfaceConfig,
	}, nil
}

// Resize reconfigures the swapchain. On a zero-sized or failed reconfigure
// the previous configuration stays in effect.
func (g *GpuState) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resize to %dx%d rejected", width, height)
	}
	cfg := *g.surfaceConfig
	cfg.Width = uint32(width)
	cfg.Height = uint32(height)
	g.surface.Configure(g.adapter, g.device, &cfg)
	g.surfaceConfig = &cfg
	return nil
}

func (g *GpuState) Release() {
	if g.queue != nil {
		g.queue.Release()
	}
	if g.device != nil {
		g.device.Release()
	}
	if g.adapter != nil {
		g.adapter.Release()
	}
	if g.surface != nil {
		g.surface.Release()
	}
}

type blitVertex struct {
	pos [2]float32 `steelsky:"layout" location:"0" format:"float2"`
	uv  [2]float32 `steelsky:"layout" location:"1" format:"float2"`
}

// Presenter owns the frame texture and the blit pipeline that puts the
// CPU-rendered frame on screen. LUTs and the volumetric light buffer can be
// uploaded as RGBA32Float textures for inspection or downstream passes.
type Presenter struct {
	gpu      *GpuState
	pipeline *wgpu.RenderPipeline
	sampler  *wgpu.Sampler

	vertexBuf *wgpu.Buffer
	indexBuf  *wgpu.Buffer

	frameTex  *wgpu.Texture
	frameView *wgpu.TextureView
	bindGroup *wgpu.BindGroup
	frameW    int
	frameH    int
}

func NewPresenter(gpu *GpuState, frameW, frameH int) (*Presenter, error) {
	shader, err := gpu.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Blit Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: blitWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("blit shader: %w", err)
	}
	defer shader.Release()

	pipeline, err := gpu.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    []wgpu.VertexBufferLayout{createVertexBufferLayout(blitVertex{})},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    gpu.surfaceConfig.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("blit pipeline: %w", err)
	}

	sampler, err := gpu.device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("blit sampler: %w", err)
	}

	quad := []blitVertex{
		{pos: [2]float32{-1, -1}, uv: [2]float32{0, 1}},
		{pos: [2]float32{1, -1}, uv: [2]float32{1, 1}},
		{pos: [2]float32{1, 1}, uv: [2]float32{1, 0}},
		{pos: [2]float32{-1, 1}, uv: [2]float32{0, 0}},
	}
	vertexBuf, err := gpu.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Blit Vertex Buffer",
		Contents: wgpu.ToBytes(quad),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return nil, fmt.Errorf("blit vertex buffer: %w", err)
	}
	indexBuf, err := gpu.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Blit Index Buffer",
		Contents: wgpu.ToBytes([]uint16{0, 1, 2, 0, 2, 3}),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("blit index buffer: %w", err)
	}

	p := &Presenter{
		gpu:       gpu,
		pipeline:  pipeline,
		sampler:   sampler,
		vertexBuf: vertexBuf,
		indexBuf:  indexBuf,
	}
	if err := p.ensureFrameTexture(frameW, frameH); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Presenter) ensureFrameTexture(w, h int) error {
	if p.frameTex != nil && p.frameW == w && p.frameH == h {
		return nil
	}
	tex, err := p.gpu.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Frame Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(w),
			Height:             uint32(h),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("frame texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("frame texture view: %w", err)
	}

	layout := p.pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bindGroup, err := p.gpu.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view, Size: wgpu.WholeSize},
			{Binding: 1, Sampler: p.sampler, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		view.Release()
		tex.Release()
		return fmt.Errorf("frame bind group: %w", err)
	}

	if p.frameView != nil {
		p.frameView.Release()
	}
	if p.frameTex != nil {
		p.frameTex.Release()
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	p.frameTex = tex
	p.frameView = view
	p.bindGroup = bindGroup
	p.frameW = w
	p.frameH = h
	return nil
}

// UploadFrame copies the CPU color buffer into the frame texture.
func (p *Presenter) UploadFrame(c *ColorBuffer) error {
	if err := p.ensureFrameTexture(c.W, c.H); err != nil {
		return err
	}
	texels := make([]byte, 0, len(c.Pix)*16)
	for _, px := range c.Pix {
		texels = appendFloat32(texels, px[0], px[1], px[2], 1)
	}
	return p.writeTexture(p.frameTex, texels, c.W, c.H)
}

// UploadLUT creates an RGBA32Float texture view holding the given table.
// The caller owns the returned view.
func (p *Presenter) UploadLUT(lut *LUT2D) (*wgpu.TextureView, error) {
	return p.uploadFloatTexture("LUT Texture", lut.Bytes(), lut.Width, lut.Height)
}

// UploadLightBuffer creates an RGBA32Float texture view from the volumetric
// light buffer.
func (p *Presenter) UploadLightBuffer(l *LightBuffer) (*wgpu.TextureView, error) {
	texels := make([]byte, 0, len(l.Pix)*16)
	for _, px := range l.Pix {
		texels = appendFloat32(texels, px[0], px[1], px[2], px[3])
	}
	return p.uploadFloatTexture("Volumetric Light Texture", texels, l.W, l.H)
}

func (p *Presenter) uploadFloatTexture(label string, texels []byte, w, h int) (*wgpu.TextureView, error) {
	tex, err := p.gpu.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              uint32(w),
			Height:             uint32(h),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer tex.Release()
	view, err := tex.CreateView(nil)
	if err != nil {
		return nil, fmt.Errorf("%s view: %w", label, err)
	}
	if err := p.writeTexture(tex, texels, w, h); err != nil {
		view.Release()
		return nil, err
	}
	return view, nil
}

func (p *Presenter) writeTexture(tex *wgpu.Texture, texels []byte, w, h int) error {
	return p.gpu.queue.WriteTexture(
		tex.AsImageCopy(),
		texels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(w) * 16,
			RowsPerImage: uint32(h),
		},
		&wgpu.Extent3D{
			Width:              uint32(w),
			Height:             uint32(h),
			DepthOrArrayLayers: 1,
		},
	)
}

// Present blits the frame texture to the swapchain.
func (p *Presenter) Present() error {
	surfaceTex, err := p.gpu.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}
	view, err := surfaceTex.CreateView(nil)
	if err != nil {
		return fmt.Errorf("surface view: %w", err)
	}
	defer view.Release()

	encoder, err := p.gpu.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.SetVertexBuffer(0, p.vertexBuf, 0, wgpu.WholeSize)
	pass.SetIndexBuffer(p.indexBuf, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	pass.DrawIndexed(6, 1, 0, 0, 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("blit pass: %w", err)
	}
	pass.Release()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("encoder finish: %w", err)
	}
	defer cmd.Release()
	p.gpu.queue.Submit(cmd)
	p.gpu.surface.Present()
	return nil
}

func (p *Presenter) Release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	if p.frameView != nil {
		p.frameView.Release()
	}
	if p.frameTex != nil {
		p.frameTex.Release()
	}
	if p.vertexBuf != nil {
		p.vertexBuf.Release()
	}
	if p.indexBuf != nil {
		p.indexBuf.Release()
	}
	if p.sampler != nil {
		p.sampler.Release()
	}
	if p.pipeline != nil {
		p.pipeline.Release()
	}
}

func appendFloat32(dst []byte, vals ...float32) []byte {
	for _, v := range vals {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

func createVertexBufferLayout(vertexType any) wgpu.VertexBufferLayout {
	t := reflect.TypeOf(vertexType)
	if t.Kind() != reflect.Struct {
		panic("vertex must be a struct")
	}

	var attributes []wgpu.VertexAttribute
	var offset uint64

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Tag.Get("steelsky") == "layout" {
			format := parseVertexFormat(field.Tag.Get("format"))
			location, err := strconv.Atoi(field.Tag.Get("location"))
			if err != nil {
				panic(err)
			}

			attributes = append(attributes, wgpu.VertexAttribute{
				ShaderLocation: uint32(location),
				Offset:         offset,
				Format:         format,
			})
		}

		offset += uint64(field.Type.Size())
	}

	return wgpu.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attributes,
	}
}

func parseVertexFormat(name string) wgpu.VertexFormat {
	switch name {
	case "float2":
		return wgpu.VertexFormatFloat32x2
	case "float3":
		return wgpu.VertexFormatFloat32x3
	case "float4":
		return wgpu.VertexFormatFloat32x4
	default:
		panic("unsupported vertex layout format: " + name)
	}
}
