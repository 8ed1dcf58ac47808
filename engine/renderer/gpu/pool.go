package gpu

// ResourcePool is a fixed-capacity slot allocator. It never grows and is not
// safe for concurrent use; the Device serialises access per resource kind.
type ResourcePool[T any] struct {
	items       []T
	generations []uint32
	live        []bool
	freeIndices []uint32
	freeHead    uint32
}

func NewResourcePool[T any](capacity uint32) *ResourcePool[T] {
	p := &ResourcePool[T]{
		items:       make([]T, capacity),
		generations: make([]uint32, capacity),
		live:        make([]bool, capacity),
		freeIndices: make([]uint32, capacity),
	}
	// Generation 0 is never handed out, so zero-value handles stay dead.
	for i := range p.freeIndices {
		p.freeIndices[i] = uint32(i)
		p.generations[i] = 1
	}
	return p
}

// Obtain reserves a slot. It returns InvalidResource when the pool is full.
func (p *ResourcePool[T]) Obtain() ResourceHandle {
	if p.freeHead >= uint32(len(p.freeIndices)) {
		return InvalidResource
	}
	index := p.freeIndices[p.freeHead]
	p.freeHead++
	p.live[index] = true
	return ResourceHandle{Index: index, Generation: p.generations[index]}
}

// Access returns the record for a live handle, nil otherwise.
func (p *ResourcePool[T]) Access(h ResourceHandle) *T {
	if !p.isLive(h) {
		return nil
	}
	return &p.items[h.Index]
}

// Release frees the slot, zeroes its record and bumps its generation so older
// handles stop resolving. Releasing a handle that is not live is a no-op.
func (p *ResourcePool[T]) Release(h ResourceHandle) bool {
	if !p.isLive(h) {
		return false
	}
	var zero T
	p.items[h.Index] = zero
	p.live[h.Index] = false
	p.generations[h.Index]++
	if p.generations[h.Index] == 0 {
		p.generations[h.Index] = 1
	}
	p.freeHead--
	p.freeIndices[p.freeHead] = h.Index
	return true
}

// ReleaseAll frees every live slot.
func (p *ResourcePool[T]) ReleaseAll() {
	var zero T
	for i := range p.items {
		if p.live[i] {
			p.items[i] = zero
			p.live[i] = false
			p.generations[i]++
		}
	}
	for i := range p.freeIndices {
		p.freeIndices[i] = uint32(i)
	}
	p.freeHead = 0
}

// Each calls fn for every live slot in index order.
func (p *ResourcePool[T]) Each(fn func(h ResourceHandle, item *T)) {
	for i := range p.items {
		if p.live[i] {
			fn(ResourceHandle{Index: uint32(i), Generation: p.generations[i]}, &p.items[i])
		}
	}
}

func (p *ResourcePool[T]) Capacity() uint32 {
	return uint32(len(p.items))
}

func (p *ResourcePool[T]) Used() uint32 {
	return p.freeHead
}

func (p *ResourcePool[T]) Available() uint32 {
	return p.Capacity() - p.freeHead
}

func (p *ResourcePool[T]) isLive(h ResourceHandle) bool {
	if h.Index >= uint32(len(p.items)) {
		return false
	}
	return p.live[h.Index] && p.generations[h.Index] == h.Generation
}
