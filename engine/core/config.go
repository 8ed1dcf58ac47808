package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultMaxFramesInFlight          uint32 = 3
	DefaultDynamicBufferPerFrameSize  uint32 = 1024 * 1024 * 10
	DefaultGPUTimeQueriesPerFrame     uint16 = 32
	DefaultLocalDescriptorSetCapacity uint32 = 256
)

// PoolConfig holds the fixed capacity of every resource pool.
type PoolConfig struct {
	Buffers              uint32 `toml:"buffers"`
	Textures             uint32 `toml:"textures"`
	RenderPasses         uint32 `toml:"render_passes"`
	Framebuffers         uint32 `toml:"framebuffers"`
	DescriptorSetLayouts uint32 `toml:"descriptor_set_layouts"`
	Pipelines            uint32 `toml:"pipelines"`
	ShaderStates         uint32 `toml:"shader_states"`
	DescriptorSets       uint32 `toml:"descriptor_sets"`
	Samplers             uint32 `toml:"samplers"`
	LocalDescriptorSets  uint32 `toml:"local_descriptor_sets"`
}

// DeviceConfig is the set of options consumed when a device is created.
type DeviceConfig struct {
	Name                      string     `toml:"name"`
	Width                     uint16     `toml:"width"`
	Height                    uint16     `toml:"height"`
	NumThreads                uint16     `toml:"num_threads"`
	GPUTimeQueriesPerFrame    uint16     `toml:"gpu_time_queries_per_frame"`
	EnableGPUTimeQueries      bool       `toml:"enable_gpu_time_queries"`
	Debug                     bool       `toml:"debug"`
	LogLevel                  string     `toml:"log_level"`
	MaxFramesInFlight         uint32     `toml:"max_frames_in_flight"`
	DynamicBufferPerFrameSize uint32     `toml:"dynamic_buffer_per_frame_size"`
	PreferDynamicRendering    bool       `toml:"prefer_dynamic_rendering"`
	EnableBindless            bool       `toml:"enable_bindless"`
	ShaderDir                 string     `toml:"shader_dir"`
	Pools                     PoolConfig `toml:"pools"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Buffers:              16384,
		Textures:             512,
		RenderPasses:         256,
		Framebuffers:         256,
		DescriptorSetLayouts: 128,
		Pipelines:            128,
		ShaderStates:         128,
		DescriptorSets:       4096,
		Samplers:             32,
		LocalDescriptorSets:  DefaultLocalDescriptorSetCapacity,
	}
}

func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Name:                      "anima-gpu",
		Width:                     1280,
		Height:                    720,
		NumThreads:                1,
		GPUTimeQueriesPerFrame:    DefaultGPUTimeQueriesPerFrame,
		LogLevel:                  "info",
		MaxFramesInFlight:         DefaultMaxFramesInFlight,
		DynamicBufferPerFrameSize: DefaultDynamicBufferPerFrameSize,
		PreferDynamicRendering:    true,
		EnableBindless:            true,
		ShaderDir:                 "shaders",
		Pools:                     DefaultPoolConfig(),
	}
}

// ParseDeviceConfig decodes TOML over the defaults, so missing keys keep their default value.
func ParseDeviceConfig(data []byte) (*DeviceConfig, error) {
	cfg := DefaultDeviceConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode device config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device config %s: %w", path, err)
	}
	return ParseDeviceConfig(data)
}

func (c *DeviceConfig) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: width and height must be non-zero (got %dx%d)", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.NumThreads == 0 {
		return fmt.Errorf("%w: num_threads must be at least 1", ErrInvalidConfig)
	}
	if c.MaxFramesInFlight == 0 || c.MaxFramesInFlight > DefaultMaxFramesInFlight {
		return fmt.Errorf("%w: max_frames_in_flight must be in 1..%d (got %d)", ErrInvalidConfig, DefaultMaxFramesInFlight, c.MaxFramesInFlight)
	}
	p := c.Pools
	capacities := map[string]uint32{
		"buffers":                p.Buffers,
		"textures":               p.Textures,
		"render_passes":          p.RenderPasses,
		"framebuffers":           p.Framebuffers,
		"descriptor_set_layouts": p.DescriptorSetLayouts,
		"pipelines":              p.Pipelines,
		"shader_states":          p.ShaderStates,
		"descriptor_sets":        p.DescriptorSets,
		"samplers":               p.Samplers,
		"local_descriptor_sets":  p.LocalDescriptorSets,
	}
	for name, capacity := range capacities {
		if capacity == 0 {
			return fmt.Errorf("%w: pools.%s must be non-zero", ErrInvalidConfig, name)
		}
	}
	return nil
}
