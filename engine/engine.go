package engine

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
	"github.com/spaghettifunk/anima-gpu/engine/platform"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const jobQueueSize = 64

// Engine owns the window, the device and the recording workers, and drives
// a Game through the frame loop.
type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.DeviceConfig
	log          *log.Logger

	platform *platform.Platform
	device   *gpu.Device
	jobs     *jobs.JobSystem
	shaders  *assets.ShaderLibrary

	clock   *core.Clock
	metrics *core.FrameMetrics

	isRunning atomic.Bool
	// pendingResize packs width<<32|height, zero when nothing is pending.
	pendingResize atomic.Uint64
	frames        uint64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("game and application config are required")
	}
	config := core.DefaultDeviceConfig()
	if g.ApplicationConfig.ConfigPath != "" {
		loaded, err := core.LoadDeviceConfig(g.ApplicationConfig.ConfigPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	core.SetLogLevel(config.LogLevel)

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       config,
		log:          core.WithPrefix("engine"),
		platform:     platform.New(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.config
	app := e.gameInstance.ApplicationConfig

	if err := e.platform.Startup(cfg.Name, app.StartPosX, app.StartPosY, uint32(cfg.Width), uint32(cfg.Height)); err != nil {
		return err
	}
	e.platform.OnResize(func(width, height uint32) {
		e.pendingResize.Store(uint64(width)<<32 | uint64(height))
	})

	backend, err := vulkan.New(vulkan.Options{
		AppName:            cfg.Name,
		Debug:              cfg.Debug,
		FramesInFlight:     cfg.MaxFramesInFlight,
		InstanceExtensions: e.platform.RequiredInstanceExtensions(),
	})
	if err != nil {
		return err
	}

	device, err := gpu.NewDevice(cfg, backend)
	if err != nil {
		_ = backend.Shutdown()
		return err
	}
	e.device = device

	js, err := jobs.NewJobSystem(int(cfg.NumThreads), jobQueueSize)
	if err != nil {
		return err
	}
	e.jobs = js

	shaders, err := assets.NewShaderLibrary(cfg.ShaderDir)
	if err != nil {
		return err
	}
	e.shaders = shaders

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.device, e.shaders); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	e.log.Info("initialized", "threads", cfg.NumThreads, "frames_in_flight", cfg.MaxFramesInFlight,
		"dynamic_rendering", device.UsesDynamicRendering(), "bindless", device.UsesBindless())
	return nil
}

func (e *Engine) applyResize() error {
	packed := e.pendingResize.Swap(0)
	if packed == 0 {
		return nil
	}
	width, height := uint32(packed>>32), uint32(packed)
	// Minimised.
	if width == 0 || height == 0 {
		return nil
	}
	e.device.Resize(uint16(width), uint16(height))
	if e.gameInstance.FnOnResize != nil {
		return e.gameInstance.FnOnResize(width, height)
	}
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return errors.New("engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	lastTime := e.clock.Elapsed()
	maxFrames := e.gameInstance.ApplicationConfig.MaxFrames

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			break
		}
		if err := e.applyResize(); err != nil {
			return err
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := (currentTime - lastTime).Seconds()
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				e.log.Error("game update failed, shutting down", "err", err)
				return err
			}
		}

		e.device.NewFrame()
		if err := e.gameInstance.FnRender(e.device, e.jobs, delta); err != nil {
			e.log.Error("game render failed, shutting down", "err", err)
			return err
		}
		e.device.Present()

		e.metrics.Update(time.Since(frameStart))
		e.frames++
		if e.frames%300 == 0 {
			e.log.Info("frame stats", "fps", e.metrics.FPS(), "frame_time", e.metrics.FrameTime())
		}
		if maxFrames > 0 && e.frames >= maxFrames {
			break
		}
		lastTime = currentTime
	}
	return nil
}

// Stop asks Run to return after the current frame.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
	e.platform.RequestClose()
}

// Shutdown releases everything Initialize created. Run must have returned.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.device != nil && e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown(e.device))
	}
	if e.shaders != nil {
		errs = append(errs, e.shaders.Close())
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.device != nil {
		errs = append(errs, e.device.Shutdown())
	}
	errs = append(errs, e.platform.Shutdown())
	e.log.Info("shut down", "frames", e.frames)
	return errors.Join(errs...)
}
