package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

var ErrProgramNotFound = errors.New("shader program not found")

// stageSuffixes maps the glslc naming convention (name.vert.spv) onto stages.
var stageSuffixes = map[string]gpu.ShaderStage{
	"vert": gpu.ShaderStageVertex,
	"tesc": gpu.ShaderStageTessControl,
	"tese": gpu.ShaderStageTessEval,
	"geom": gpu.ShaderStageGeometry,
	"frag": gpu.ShaderStageFragment,
	"comp": gpu.ShaderStageCompute,
}

type shaderFile struct {
	Path       string
	Stage      gpu.ShaderStage
	Code       []byte
	LastLoaded time.Time
}

// ShaderLibrary indexes the SPIR-V binaries of a directory by program name
// and reloads them when they change on disk.
type ShaderLibrary struct {
	dir      string
	programs map[string]map[gpu.ShaderStage]*shaderFile

	mutex     sync.RWMutex
	callbacks []func(name string)

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

func NewShaderLibrary(dir string) (*ShaderLibrary, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	l := &ShaderLibrary{
		dir:      dir,
		programs: make(map[string]map[gpu.ShaderStage]*shaderFile),
		watcher:  watcher,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := l.load(filepath.Join(dir, entry.Name())); err != nil {
			core.LogWarn("shader library: skipping %s: %s", entry.Name(), err)
		}
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	go l.start()

	core.LogInfo("shader library loaded %d programs from %s", len(l.programs), dir)
	return l, nil
}

// parseShaderName splits "blur.comp.spv" into the program "blur" and the compute stage.
func parseShaderName(path string) (string, gpu.ShaderStage, bool) {
	base := filepath.Base(path)
	if filepath.Ext(base) != ".spv" {
		return "", 0, false
	}
	base = strings.TrimSuffix(base, ".spv")
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 {
		return "", 0, false
	}
	stage, ok := stageSuffixes[base[dot+1:]]
	if !ok {
		return "", 0, false
	}
	return base[:dot], stage, true
}

// load reads one binary into the index and returns its program name.
func (l *ShaderLibrary) load(path string) (string, error) {
	name, stage, ok := parseShaderName(path)
	if !ok {
		return "", nil
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return "", fmt.Errorf("%s: size %d is not a multiple of 4", path, len(code))
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	stages, exists := l.programs[name]
	if !exists {
		stages = make(map[gpu.ShaderStage]*shaderFile)
		l.programs[name] = stages
	}
	stages[stage] = &shaderFile{
		Path:       path,
		Stage:      stage,
		Code:       code,
		LastLoaded: time.Now(),
	}
	return name, nil
}

func (l *ShaderLibrary) unload(path string) {
	name, stage, ok := parseShaderName(path)
	if !ok {
		return
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if stages, exists := l.programs[name]; exists {
		delete(stages, stage)
		if len(stages) == 0 {
			delete(l.programs, name)
		}
	}
}

// Program returns a creation for every stage of name, ordered by pipeline stage.
func (l *ShaderLibrary) Program(name string) (gpu.ShaderStateCreation, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	stages, exists := l.programs[name]
	if !exists {
		return gpu.ShaderStateCreation{}, fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	order := make([]gpu.ShaderStage, 0, len(stages))
	for stage := range stages {
		order = append(order, stage)
	}
	slices.Sort(order)

	creation := gpu.ShaderStateCreation{}
	creation.SetName(name).SetSpvInput(true)
	for _, stage := range order {
		creation.AddStage(stages[stage].Code, stage)
	}
	return creation, nil
}

func (l *ShaderLibrary) Names() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	names := make([]string, 0, len(l.programs))
	for name := range l.programs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// OnReload registers fn to run with the program name whenever one of its
// binaries is rewritten. Callbacks run on the watcher goroutine.
func (l *ShaderLibrary) OnReload(fn func(name string)) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

func (l *ShaderLibrary) handleEvent(e fsnotify.Event) {
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		name, err := l.load(e.Name)
		if err != nil {
			// Partially written files show up as odd sizes; the next write event retries.
			core.LogDebug("shader library: reload of %s deferred: %s", e.Name, err)
			return
		}
		if name == "" {
			return
		}
		core.LogInfo("shader program %q reloaded", name)
		l.mutex.RLock()
		callbacks := slices.Clone(l.callbacks)
		l.mutex.RUnlock()
		for _, fn := range callbacks {
			fn(name)
		}
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		l.unload(e.Name)
	}
}

func (l *ShaderLibrary) start() {
	defer close(l.stopped)
	for {
		select {
		case e, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(e)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("shader library watcher: %s", err)
		case <-l.done:
			return
		}
	}
}

// Close stops watching the directory. The loaded programs stay readable.
func (l *ShaderLibrary) Close() error {
	l.mutex.Lock()
	if l.isClosed {
		l.mutex.Unlock()
		return nil
	}
	l.isClosed = true
	l.mutex.Unlock()

	close(l.done)
	<-l.stopped
	return l.watcher.Close()
}
