package gpu

// dynamicAllocator is a per-frame linear allocator over one persistently
// mapped buffer. Frame f owns bytes [f*perFrame, (f+1)*perFrame).
type dynamicAllocator struct {
	buffer    BufferHandle
	mapped    []byte
	perFrame  uint32
	allocated uint32
	frameEnd  uint32
	alignment uint32
}

func (a *dynamicAllocator) beginFrame(frame uint32) {
	a.allocated = a.perFrame * frame
	a.frameEnd = a.allocated + a.perFrame
}

// allocate returns the offset of size bytes in the dynamic buffer and the
// mapped slice covering them. The next allocation starts aligned.
func (a *dynamicAllocator) allocate(size uint32) (uint32, []byte, bool) {
	start := a.allocated
	if start > a.frameEnd || size > a.frameEnd-start || uint64(start)+uint64(size) > uint64(len(a.mapped)) {
		return 0, nil, false
	}
	end := start + size
	// Clamped so a request ending near the top of the range cannot wrap.
	a.allocated = uint32(min(AlignUp(uint64(end), uint64(a.alignment)), uint64(a.frameEnd)))
	return start, a.mapped[start:end:end], true
}

func (a *dynamicAllocator) used() uint32 {
	return a.allocated - (a.frameEnd - a.perFrame)
}
