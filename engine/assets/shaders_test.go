package assets

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

var spirvHeader = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func writeShader(t *testing.T, dir, name string, code []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, code, 0o644))
	return path
}

func TestParseShaderName(t *testing.T) {
	tests := []struct {
		path  string
		name  string
		stage gpu.ShaderStage
		ok    bool
	}{
		{"shaders/triangle.vert.spv", "triangle", gpu.ShaderStageVertex, true},
		{"triangle.frag.spv", "triangle", gpu.ShaderStageFragment, true},
		{"post.blur.comp.spv", "post.blur", gpu.ShaderStageCompute, true},
		{"triangle.vert", "", 0, false},
		{"triangle.spv", "", 0, false},
		{".vert.spv", "", 0, false},
		{"triangle.mesh.spv", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			name, stage, ok := parseShaderName(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.stage, stage)
		})
	}
}

func TestShaderLibraryProgram(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "triangle.frag.spv", spirvHeader)
	writeShader(t, dir, "triangle.vert.spv", spirvHeader)
	writeShader(t, dir, "readme.txt", []byte("not a shader"))
	writeShader(t, dir, "broken.comp.spv", []byte{1, 2, 3})

	library, err := NewShaderLibrary(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = library.Close() })

	assert.Equal(t, []string{"triangle"}, library.Names())

	creation, err := library.Program("triangle")
	require.NoError(t, err)
	assert.Equal(t, "triangle", creation.Name)
	assert.True(t, creation.SpvInput)
	require.Len(t, creation.Stages, 2)
	assert.Equal(t, gpu.ShaderStageVertex, creation.Stages[0].Stage)
	assert.Equal(t, gpu.ShaderStageFragment, creation.Stages[1].Stage)
	assert.Equal(t, spirvHeader, creation.Stages[0].Code)

	_, err = library.Program("broken")
	assert.ErrorIs(t, err, ErrProgramNotFound)
}

func TestShaderLibraryHandleEvent(t *testing.T) {
	dir := t.TempDir()
	library, err := NewShaderLibrary(dir)
	require.NoError(t, err)
	// Events are fed by hand below.
	require.NoError(t, library.Close())

	var reloaded []string
	library.OnReload(func(name string) { reloaded = append(reloaded, name) })

	path := writeShader(t, dir, "blur.comp.spv", spirvHeader)
	library.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	assert.Equal(t, []string{"blur"}, reloaded)

	creation, err := library.Program("blur")
	require.NoError(t, err)
	require.Len(t, creation.Stages, 1)
	assert.Equal(t, gpu.ShaderStageCompute, creation.Stages[0].Stage)

	library.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "notes.md"), Op: fsnotify.Create})
	assert.Len(t, reloaded, 1)

	library.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	_, err = library.Program("blur")
	assert.ErrorIs(t, err, ErrProgramNotFound)
}

func TestShaderLibraryWatchesDirectory(t *testing.T) {
	dir := t.TempDir()
	library, err := NewShaderLibrary(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = library.Close() })

	var (
		mu       sync.Mutex
		reloaded = map[string]bool{}
	)
	library.OnReload(func(name string) {
		mu.Lock()
		reloaded[name] = true
		mu.Unlock()
	})

	writeShader(t, dir, "fullscreen.vert.spv", spirvHeader)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded["fullscreen"]
	}, 5*time.Second, 10*time.Millisecond)
}

func TestShaderLibraryCloseIsIdempotent(t *testing.T) {
	library, err := NewShaderLibrary(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, library.Close())
	assert.NoError(t, library.Close())
}

func TestNewShaderLibraryMissingDirectory(t *testing.T) {
	_, err := NewShaderLibrary(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
