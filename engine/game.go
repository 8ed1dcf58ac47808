package engine

import (
	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

// Game is the set of callbacks the engine drives every frame.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(device *gpu.Device, shaders *assets.ShaderLibrary) error
type Update func(deltaTime float64) error

// Render records the frame. It runs between Device.NewFrame and Device.Present.
type Render func(device *gpu.Device, js *jobs.JobSystem, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func(device *gpu.Device) error
