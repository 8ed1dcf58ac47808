package gpu

import "sync"

// renderPassCache shares one native render pass between every pass and
// pipeline that declares the same output.
type renderPassCache struct {
	backend Backend
	mu      sync.Mutex
	passes  map[RenderPassOutput]NativeHandle
}

func newRenderPassCache(backend Backend) *renderPassCache {
	return &renderPassCache{
		backend: backend,
		passes:  make(map[RenderPassOutput]NativeHandle),
	}
}

func (c *renderPassCache) get(output *RenderPassOutput, name string) (NativeHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if native, ok := c.passes[*output]; ok {
		return native, nil
	}
	native, err := c.backend.CreateRenderPass(output, name)
	if err != nil {
		return NullHandle, err
	}
	c.passes[*output] = native
	return native, nil
}

func (c *renderPassCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.passes)
}

func (c *renderPassCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for output, native := range c.passes {
		c.backend.DestroyRenderPass(native)
		delete(c.passes, output)
	}
}
