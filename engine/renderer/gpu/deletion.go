package gpu

// resourceUpdate is a deferred destruction. A descriptor set entry with an
// invalid handle frees only the native set, which is what replaced sets leave
// behind.
type resourceUpdate struct {
	kind       ResourceKind
	handle     ResourceHandle
	native     NativeHandle
	nativePool NativeHandle
	frame      uint64
}

func (d *Device) enqueueDeletion(update resourceUpdate) {
	d.locks.With(DeletionManagement, func() {
		d.deletionQueue.Enqueue(update)
	})
}

// deferDestroy queues h for destruction once every frame that could still
// reference it has retired. Invalid or dead handles are ignored.
func (d *Device) deferDestroy(kind ResourceKind, h ResourceHandle, live bool) {
	if !live {
		d.log.Warn("ignoring destroy of a dead handle", "kind", kind, "index", h.Index, "generation", h.Generation)
		return
	}
	d.enqueueDeletion(resourceUpdate{kind: kind, handle: h, frame: d.absoluteFrame})
}

// processDeletionQueue destroys every entry requested at least framesInFlight
// frames ago. force destroys everything regardless of age.
func (d *Device) processDeletionQueue(force bool) int {
	var ready []resourceUpdate
	d.locks.With(DeletionManagement, func() {
		for !d.deletionQueue.IsEmpty() {
			update, _ := d.deletionQueue.Peek()
			if !force && d.absoluteFrame < update.frame+uint64(d.framesInFlight) {
				break
			}
			_, _ = d.deletionQueue.Dequeue()
			ready = append(ready, update)
		}
	})

	for _, update := range ready {
		d.destroyNow(update)
	}
	return len(ready)
}

func (d *Device) pendingDeletions() int {
	n := 0
	d.locks.With(DeletionManagement, func() {
		n = d.deletionQueue.Len()
	})
	return n
}

func (d *Device) destroyNow(update resourceUpdate) {
	switch update.kind {
	case ResourceKindBuffer:
		d.DestroyBufferInstant(BufferHandle{update.handle})
	case ResourceKindTexture:
		d.DestroyTextureInstant(TextureHandle{update.handle})
	case ResourceKindSampler:
		d.DestroySamplerInstant(SamplerHandle{update.handle})
	case ResourceKindShaderState:
		d.DestroyShaderStateInstant(ShaderStateHandle{update.handle})
	case ResourceKindDescriptorSetLayout:
		d.DestroyDescriptorSetLayoutInstant(DescriptorSetLayoutHandle{update.handle})
	case ResourceKindDescriptorSet:
		if update.handle.IsValid() {
			d.DestroyDescriptorSetInstant(DescriptorSetHandle{update.handle})
		} else if !update.native.IsNull() {
			d.locks.With(DescriptorManagement, func() {
				d.backend.FreeDescriptorSet(update.nativePool, update.native)
			})
		}
	case ResourceKindPipeline:
		d.DestroyPipelineInstant(PipelineHandle{update.handle})
	case ResourceKindRenderPass:
		d.DestroyRenderPassInstant(RenderPassHandle{update.handle})
	case ResourceKindFramebuffer:
		d.DestroyFramebufferInstant(FramebufferHandle{update.handle})
	}
}
