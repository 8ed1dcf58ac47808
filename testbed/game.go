package testbed

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

const (
	programName   = "fullscreen"
	counterBuffer = 4096
)

// TestGame renders a fullscreen triangle into an offscreen target and
// clears a storage buffer on a second recording thread.
type TestGame struct {
	*engine.Game
}

type gameState struct {
	shaders *assets.ShaderLibrary

	colorTarget gpu.TextureHandle
	pass        gpu.RenderPassHandle
	framebuffer gpu.FramebufferHandle
	pipeline    gpu.PipelineHandle
	counters    gpu.BufferHandle

	elapsed float64
	frame   uint32
	reload  atomic.Bool
}

func NewTestGame(app *engine.ApplicationConfig) *TestGame {
	state := &gameState{pipeline: gpu.InvalidPipeline}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             state,
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(device *gpu.Device, shaders *assets.ShaderLibrary) error {
	s := g.state()
	s.shaders = shaders
	width, height := device.SwapchainExtent()

	s.colorTarget = device.CreateTexture(gpu.NewTextureCreation().
		SetSize(width, height, 1).
		SetFlags(1, gpu.TextureFlagRenderTarget).
		SetFormatType(gpu.FormatR8G8B8A8Unorm, gpu.TextureType2D).
		SetName("scene_color"))
	if !s.colorTarget.IsValid() {
		return fmt.Errorf("%w: scene color target", core.ErrPoolExhausted)
	}

	s.pass = device.CreateRenderPass(gpu.NewRenderPassCreation().
		AddAttachment(gpu.FormatR8G8B8A8Unorm, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.LoadOpClear).
		SetName("scene"))
	if !s.pass.IsValid() {
		return fmt.Errorf("%w: scene render pass", core.ErrPoolExhausted)
	}

	s.framebuffer = device.CreateFramebuffer(gpu.NewFramebufferCreation(s.pass).
		AddRenderTexture(s.colorTarget).
		SetScaling(1, 1, true).
		SetName("scene"))
	if !s.framebuffer.IsValid() {
		return fmt.Errorf("%w: scene framebuffer", core.ErrPoolExhausted)
	}

	s.counters = device.CreateBuffer((&gpu.BufferCreation{}).
		Set(gpu.BufferUsageStorage, gpu.ResourceUsageImmutable, counterBuffer).
		SetName("counters"))
	if !s.counters.IsValid() {
		return fmt.Errorf("%w: counter buffer", core.ErrPoolExhausted)
	}

	shaders.OnReload(func(name string) {
		if name == programName {
			s.reload.Store(true)
		}
	})
	return g.createPipeline(device)
}

// createPipeline builds the fullscreen pipeline when its program is present.
// Without it the scene only clears.
func (g *TestGame) createPipeline(device *gpu.Device) error {
	s := g.state()
	program, err := s.shaders.Program(programName)
	if errors.Is(err, assets.ErrProgramNotFound) {
		core.LogWarn("program %q not found, the scene will only clear", programName)
		return nil
	}
	if err != nil {
		return err
	}
	output, ok := device.RenderPassOutput(s.pass)
	if !ok {
		return fmt.Errorf("%w: scene render pass", core.ErrInvalidHandle)
	}

	creation := &gpu.PipelineCreation{
		Shaders:    program,
		Topology:   gpu.TopologyTriangleList,
		RenderPass: output,
		Name:       programName,
	}
	creation.Rasterization.CullMode = gpu.CullModeNone
	creation.Rasterization.Front = gpu.FrontFaceCounterClockwise
	creation.Rasterization.Fill = gpu.PolygonModeFill

	pipeline := device.CreatePipeline(creation)
	if !pipeline.IsValid() {
		return fmt.Errorf("%w: pipeline %q", core.ErrNativeFailure, programName)
	}
	if s.pipeline.IsValid() {
		device.DestroyPipeline(s.pipeline)
	}
	s.pipeline = pipeline
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().elapsed += deltaTime
	return nil
}

func (g *TestGame) Render(device *gpu.Device, js *jobs.JobSystem, deltaTime float64) error {
	s := g.state()
	if s.reload.Swap(false) {
		if err := g.createPipeline(device); err != nil {
			core.LogError("pipeline reload failed: %s", err)
		}
	}
	s.frame++

	pulse := float32(0.5 + 0.5*math.Sin(s.elapsed))
	records := []gpu.RecordFunc{
		func(cb *gpu.CommandBuffer) error {
			cb.PushMarker("scene")
			defer cb.PopMarker()
			cb.Clear(0.1, 0.1*pulse, 0.3, 1)
			cb.BindPass(s.pass, s.framebuffer, false)
			cb.SetViewport(nil)
			cb.SetScissor(nil)
			if s.pipeline.IsValid() {
				cb.BindPipeline(s.pipeline)
				cb.Draw(0, 3, 0, 1)
			}
			cb.EndCurrentRenderPass()
			return nil
		},
	}
	if js.NumWorkers() > 1 {
		frame := s.frame
		records = append(records, func(cb *gpu.CommandBuffer) error {
			cb.FillBuffer(s.counters, 0, counterBuffer, frame)
			return nil
		})
	} else {
		records[0] = chain(records[0], func(cb *gpu.CommandBuffer) error {
			cb.FillBuffer(s.counters, 0, counterBuffer, s.frame)
			return nil
		})
	}
	return device.RecordParallel(js, records...)
}

func chain(fns ...gpu.RecordFunc) gpu.RecordFunc {
	return func(cb *gpu.CommandBuffer) error {
		for _, fn := range fns {
			if err := fn(cb); err != nil {
				return err
			}
		}
		return nil
	}
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	core.LogInfo("scene resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown(device *gpu.Device) error {
	s := g.state()
	if s.pipeline.IsValid() {
		device.DestroyPipeline(s.pipeline)
	}
	device.DestroyFramebuffer(s.framebuffer)
	device.DestroyRenderPass(s.pass)
	device.DestroyTexture(s.colorTarget)
	device.DestroyBuffer(s.counters)
	return nil
}
