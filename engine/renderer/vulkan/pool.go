package vulkan

import (
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

// objectPool maps the opaque handles handed to the device core onto the
// Vulkan objects behind them. Zero is never issued.
type objectPool struct {
	mu      sync.RWMutex
	next    gpu.NativeHandle
	objects map[gpu.NativeHandle]interface{}
}

func newObjectPool() *objectPool {
	return &objectPool{objects: make(map[gpu.NativeHandle]interface{})}
}

func (p *objectPool) put(object interface{}) gpu.NativeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.objects[p.next] = object
	return p.next
}

func (p *objectPool) remove(h gpu.NativeHandle) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	object, ok := p.objects[h]
	delete(p.objects, h)
	return object, ok
}

func (p *objectPool) len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects)
}

// lookup returns the object behind h, or the zero value for a null or
// unknown handle.
func lookup[T any](p *objectPool, h gpu.NativeHandle) T {
	var zero T
	if h.IsNull() {
		return zero
	}
	p.mu.RLock()
	object, ok := p.objects[h]
	p.mu.RUnlock()
	if !ok {
		return zero
	}
	value, ok := object.(T)
	if !ok {
		return zero
	}
	return value
}

// take removes h and returns its object when it has type T.
func take[T any](p *objectPool, h gpu.NativeHandle) (T, bool) {
	var zero T
	if h.IsNull() {
		return zero, false
	}
	object, ok := p.remove(h)
	if !ok {
		return zero, false
	}
	value, ok := object.(T)
	return value, ok
}
