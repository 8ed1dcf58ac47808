package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseDeviceConfig([]byte(`
name = "demo"
width = 800
num_threads = 4
debug = true

[pools]
buffers = 64
`))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, uint16(800), cfg.Width)
	assert.Equal(t, uint16(720), cfg.Height)
	assert.Equal(t, uint16(4), cfg.NumThreads)
	assert.True(t, cfg.Debug)
	assert.Equal(t, uint32(64), cfg.Pools.Buffers)
	assert.Equal(t, uint32(512), cfg.Pools.Textures)
	assert.Equal(t, DefaultGPUTimeQueriesPerFrame, cfg.GPUTimeQueriesPerFrame)
	assert.Equal(t, DefaultMaxFramesInFlight, cfg.MaxFramesInFlight)
}

func TestParseDeviceConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"zero width", "width = 0"},
		{"zero threads", "num_threads = 0"},
		{"too many frames", "max_frames_in_flight = 4"},
		{"zero pool", "[pools]\nsamplers = 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDeviceConfig([]byte(tt.toml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseDeviceConfigMalformed(t *testing.T) {
	_, err := ParseDeviceConfig([]byte("width = "))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadDeviceConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, os.WriteFile(path, []byte("height = 1080\nlog_level = \"debug\"\n"), 0o644))

	cfg, err := LoadDeviceConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(1080), cfg.Height)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = LoadDeviceConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDebugName(t *testing.T) {
	assert.Equal(t, "albedo", DebugName("texture", "albedo"))
	generated := DebugName("texture", "")
	assert.Contains(t, generated, "texture-")
	assert.NotEqual(t, generated, DebugName("texture", ""))
}
