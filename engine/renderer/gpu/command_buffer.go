package gpu

import (
	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type CommandBufferState uint8

const (
	CommandBufferIdle CommandBufferState = iota
	CommandBufferRecording
	CommandBufferInPass
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferIdle:
		return "idle"
	case CommandBufferRecording:
		return "recording"
	case CommandBufferInPass:
		return "in-pass"
	}
	return "unknown"
}

// CommandBuffer records work for one thread and one frame in flight. It owns
// a descriptor pool for sets that live only until the buffer is reset.
type CommandBuffer struct {
	device   *Device
	recorder CommandRecorder
	target   RenderTarget
	log      *log.Logger

	descriptorPool NativeHandle
	descriptorSets *ResourcePool[DescriptorSet]

	boundSets      [MaxBoundDescriptorSets]NativeHandle
	dynamicOffsets []uint32

	currentRenderPass  *RenderPass
	currentFramebuffer *Framebuffer
	currentPipeline    *Pipeline
	clears             [2]ClearValue

	isRecording bool
	secondary   bool
	threadIndex uint32
	frame       uint32
	handle      uint32
}

func newCommandBuffer(device *Device, recorder CommandRecorder, threadIndex, frame, handle uint32, secondary bool) (*CommandBuffer, error) {
	sizes := make([]DescriptorPoolSize, 0, DescriptorTypeInputAttachment+1)
	for t := DescriptorTypeSampler; t <= DescriptorTypeInputAttachment; t++ {
		sizes = append(sizes, DescriptorPoolSize{Type: t, Count: GlobalPoolElements})
	}
	capacity := device.config.Pools.LocalDescriptorSets
	pool, err := device.backend.CreateDescriptorPool(&DescriptorPoolConfig{
		MaxSets:        capacity,
		Sizes:          sizes,
		FreeIndividual: true,
	})
	if err != nil {
		return nil, err
	}

	cb := &CommandBuffer{
		device:         device,
		recorder:       recorder,
		target:         device.target,
		log:            device.log.With("thread", threadIndex, "frame", frame, "secondary", secondary),
		descriptorPool: pool,
		descriptorSets: NewResourcePool[DescriptorSet](capacity),
		dynamicOffsets: make([]uint32, 0, MaxBoundDescriptorSets*MaxDescriptorsPerSet),
		secondary:      secondary,
		threadIndex:    threadIndex,
		frame:          frame,
		handle:         handle,
	}
	cb.clears[0] = ClearValue{Color: ClearColor{0, 0, 0, 1}}
	cb.clears[1] = ClearValue{DepthStencilValue: ClearDepthStencil{Depth: 1}, DepthStencil: true}
	return cb, nil
}

func (cb *CommandBuffer) State() CommandBufferState {
	switch {
	case !cb.isRecording:
		return CommandBufferIdle
	case cb.currentRenderPass != nil:
		return CommandBufferInPass
	default:
		return CommandBufferRecording
	}
}

func (cb *CommandBuffer) Recorder() CommandRecorder { return cb.recorder }

func (cb *CommandBuffer) IsSecondary() bool { return cb.secondary }

func (cb *CommandBuffer) ThreadIndex() uint32 { return cb.threadIndex }

func (cb *CommandBuffer) CurrentPipeline() *Pipeline { return cb.currentPipeline }

func (cb *CommandBuffer) CurrentRenderPass() *RenderPass { return cb.currentRenderPass }

func (cb *CommandBuffer) requireRecording(op string) {
	if !cb.isRecording {
		fatalf(errProtocolMisuse, "%s on a command buffer that is not recording", op)
	}
}

func (cb *CommandBuffer) requireInPass(op string) {
	cb.requireRecording(op)
	if cb.currentRenderPass == nil {
		fatalf(errProtocolMisuse, "%s outside of a render pass", op)
	}
}

func (cb *CommandBuffer) requireNoPass(op string) {
	cb.requireRecording(op)
	if cb.currentRenderPass != nil {
		fatalf(errProtocolMisuse, "%s inside render pass %q", op, cb.currentRenderPass.Name)
	}
}

func (cb *CommandBuffer) mustBuffer(h BufferHandle) *Buffer {
	b := cb.device.AccessBuffer(h)
	if b == nil {
		fatalf(errInvalidHandle, "buffer %d/%d", h.Index, h.Generation)
	}
	return b
}

func (cb *CommandBuffer) mustTexture(h TextureHandle) *Texture {
	t := cb.device.AccessTexture(h)
	if t == nil {
		fatalf(errInvalidHandle, "texture %d/%d", h.Index, h.Generation)
	}
	return t
}

// Begin starts one-time-submit recording. It is a no-op while already recording.
func (cb *CommandBuffer) Begin() {
	if cb.isRecording {
		return
	}
	ifPanic(cb.recorder.Begin(nil))
	cb.isRecording = true
}

// BeginSecondary starts recording a buffer that continues pass inside
// a primary buffer.
func (cb *CommandBuffer) BeginSecondary(pass RenderPassHandle, framebuffer FramebufferHandle) {
	if cb.isRecording {
		return
	}
	rp := cb.device.AccessRenderPass(pass)
	if rp == nil {
		fatalf(errInvalidHandle, "secondary render pass %d/%d", pass.Index, pass.Generation)
	}
	fb := cb.device.AccessFramebuffer(framebuffer)
	if fb == nil {
		fatalf(errInvalidHandle, "secondary framebuffer %d/%d", framebuffer.Index, framebuffer.Generation)
	}

	inheritance := &Inheritance{
		RenderPass:  rp.Native,
		Framebuffer: fb.Native,
		DepthFormat: rp.Output.DepthStencilFormat,
	}
	for a := uint32(0); a < rp.Output.NumColorFormats; a++ {
		inheritance.ColorFormats = append(inheritance.ColorFormats, rp.Output.ColorFormats[a])
	}

	ifPanic(cb.recorder.Begin(inheritance))
	cb.isRecording = true
	cb.currentRenderPass = rp
	cb.currentFramebuffer = fb
}

// End closes any open pass and finishes recording. It is a no-op when idle.
func (cb *CommandBuffer) End() {
	if !cb.isRecording {
		return
	}
	cb.EndCurrentRenderPass()
	ifPanic(cb.recorder.End())
	cb.isRecording = false
	cb.currentRenderPass = nil
	cb.currentFramebuffer = nil
}

// EndCurrentRenderPass closes the open target. A secondary buffer only forgets
// it, the owning primary ends the pass.
func (cb *CommandBuffer) EndCurrentRenderPass() {
	if !cb.isRecording || cb.currentRenderPass == nil {
		return
	}
	if !cb.secondary {
		cb.target.EndTarget(cb.recorder)
	}
	cb.currentRenderPass = nil
	cb.currentFramebuffer = nil
}

// BindPass makes pass and framebuffer the current render target, closing the
// previous one first. Binding the target that is already open does nothing.
// Secondary buffers only track the target they inherit.
func (cb *CommandBuffer) BindPass(pass RenderPassHandle, framebuffer FramebufferHandle, useSecondary bool) {
	cb.requireRecording("BindPass")

	rp := cb.device.AccessRenderPass(pass)
	if rp == nil {
		fatalf(errInvalidHandle, "render pass %d/%d", pass.Index, pass.Generation)
	}
	fb := cb.device.AccessFramebuffer(framebuffer)
	if fb == nil {
		fatalf(errInvalidHandle, "framebuffer %d/%d", framebuffer.Index, framebuffer.Generation)
	}

	if rp == cb.currentRenderPass && fb == cb.currentFramebuffer {
		return
	}
	if cb.currentRenderPass != nil {
		cb.EndCurrentRenderPass()
	}

	if !cb.secondary {
		cb.target.BeginTarget(cb.recorder, rp, fb, &cb.clears, useSecondary)
	}
	cb.currentRenderPass = rp
	cb.currentFramebuffer = fb
}

func (cb *CommandBuffer) BindPipeline(handle PipelineHandle) {
	cb.requireRecording("BindPipeline")
	pipeline := cb.device.AccessPipeline(handle)
	if pipeline == nil {
		fatalf(errInvalidHandle, "pipeline %d/%d", handle.Index, handle.Generation)
	}
	cb.recorder.BindPipeline(pipeline.BindPoint, pipeline.Native)
	cb.currentPipeline = pipeline
}

// BindVertexBuffer binds a vertex stream. Aliased buffers bind their parent
// at the alias offset and ignore offset.
func (cb *CommandBuffer) BindVertexBuffer(handle BufferHandle, binding uint32, offset uint32) {
	cb.requireRecording("BindVertexBuffer")
	native, off := cb.device.resolveBuffer(cb.mustBuffer(handle), uint64(offset))
	cb.recorder.BindVertexBuffer(binding, native, off)
}

func (cb *CommandBuffer) BindIndexBuffer(handle BufferHandle, offset uint32, indexType IndexType) {
	cb.requireRecording("BindIndexBuffer")
	native, off := cb.device.resolveBuffer(cb.mustBuffer(handle), uint64(offset))
	cb.recorder.BindIndexBuffer(native, off, indexType)
}

// BindDescriptorSet binds device-owned sets starting at the first user set.
func (cb *CommandBuffer) BindDescriptorSet(handles ...DescriptorSetHandle) {
	cb.requireRecording("BindDescriptorSet")
	sets := make([]*DescriptorSet, len(handles))
	for i, h := range handles {
		sets[i] = cb.device.AccessDescriptorSet(h)
		if sets[i] == nil {
			fatalf(errInvalidHandle, "descriptor set %d/%d", h.Index, h.Generation)
		}
	}
	cb.bindDescriptorSets(sets)
}

// BindLocalDescriptorSet binds sets created on this command buffer.
func (cb *CommandBuffer) BindLocalDescriptorSet(handles ...DescriptorSetHandle) {
	cb.requireRecording("BindLocalDescriptorSet")
	sets := make([]*DescriptorSet, len(handles))
	for i, h := range handles {
		sets[i] = cb.descriptorSets.Access(h.ResourceHandle)
		if sets[i] == nil {
			fatalf(errInvalidHandle, "local descriptor set %d/%d", h.Index, h.Generation)
		}
	}
	cb.bindDescriptorSets(sets)
}

func (cb *CommandBuffer) bindDescriptorSets(sets []*DescriptorSet) {
	if cb.currentPipeline == nil {
		fatalf(errProtocolMisuse, "binding descriptor sets without a pipeline")
	}
	if len(sets) > MaxBoundDescriptorSets {
		fatalf(errTooManyResource, "%d descriptor sets, at most %d", len(sets), MaxBoundDescriptorSets)
	}

	offsets := cb.dynamicOffsets[:0]
	for i, set := range sets {
		cb.boundSets[i] = set.Native
		offsets = cb.device.appendDynamicOffsets(offsets, set)
	}
	cb.dynamicOffsets = offsets

	pipeline := cb.currentPipeline
	cb.recorder.BindDescriptorSets(pipeline.BindPoint, pipeline.Layout, cb.device.firstUserSet(), cb.boundSets[:len(sets)], offsets)

	if cb.device.bindlessEnabled() {
		cb.recorder.BindDescriptorSets(pipeline.BindPoint, pipeline.Layout, 0, []NativeHandle{cb.device.bindless.native}, nil)
	}
}

// targetExtent is the framebuffer size inside a pass, the swapchain size otherwise.
func (cb *CommandBuffer) targetExtent() (uint32, uint32) {
	if cb.currentFramebuffer != nil {
		return uint32(cb.currentFramebuffer.Width), uint32(cb.currentFramebuffer.Height)
	}
	w, h := cb.device.SwapchainExtent()
	return uint32(w), uint32(h)
}

// SetViewport sets a Y-up viewport. A nil viewport covers the whole target.
func (cb *CommandBuffer) SetViewport(viewport *Viewport) {
	cb.requireRecording("SetViewport")
	cb.recorder.SetViewport(cb.nativeViewport(viewport))
}

func (cb *CommandBuffer) nativeViewport(viewport *Viewport) NativeViewport {
	width, height := cb.targetExtent()
	if viewport == nil {
		return NativeViewport{
			X:        0,
			Y:        float32(height),
			Width:    float32(width),
			Height:   -float32(height),
			MinDepth: 0,
			MaxDepth: 1,
		}
	}
	return NativeViewport{
		X:        float32(viewport.Rect.X),
		Y:        float32(height) - float32(viewport.Rect.Y),
		Width:    float32(viewport.Rect.Width),
		Height:   -float32(viewport.Rect.Height),
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}
}

// SetScissor sets the scissor rect. A nil rect covers the whole target.
func (cb *CommandBuffer) SetScissor(rect *Rect2DInt) {
	cb.requireRecording("SetScissor")
	if rect != nil {
		cb.recorder.SetScissor(*rect)
		return
	}
	width, height := cb.targetExtent()
	cb.recorder.SetScissor(Rect2DInt{Width: width, Height: height})
}

// Clear sets the color used by attachments whose load op is clear.
func (cb *CommandBuffer) Clear(r, g, b, a float32) {
	cb.clears[0] = ClearValue{Color: ClearColor{r, g, b, a}}
}

func (cb *CommandBuffer) ClearDepthStencil(depth float32, stencil uint8) {
	cb.clears[1] = ClearValue{DepthStencilValue: ClearDepthStencil{Depth: depth, Stencil: uint32(stencil)}, DepthStencil: true}
}

func (cb *CommandBuffer) Draw(firstVertex, vertexCount, firstInstance, instanceCount uint32) {
	cb.requireInPass("Draw")
	cb.recorder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb.requireInPass("DrawIndexed")
	cb.recorder.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (cb *CommandBuffer) DrawIndirect(handle BufferHandle, offset, drawCount, stride uint32) {
	cb.requireInPass("DrawIndirect")
	native, off := cb.device.resolveBuffer(cb.mustBuffer(handle), uint64(offset))
	cb.recorder.DrawIndirect(native, off, drawCount, stride)
}

func (cb *CommandBuffer) DrawIndexedIndirect(handle BufferHandle, offset, drawCount, stride uint32) {
	cb.requireInPass("DrawIndexedIndirect")
	native, off := cb.device.resolveBuffer(cb.mustBuffer(handle), uint64(offset))
	cb.recorder.DrawIndexedIndirect(native, off, drawCount, stride)
}

func (cb *CommandBuffer) Dispatch(groupX, groupY, groupZ uint32) {
	cb.requireNoPass("Dispatch")
	cb.recorder.Dispatch(groupX, groupY, groupZ)
}

func (cb *CommandBuffer) DispatchIndirect(handle BufferHandle, offset uint32) {
	cb.requireNoPass("DispatchIndirect")
	native, off := cb.device.resolveBuffer(cb.mustBuffer(handle), uint64(offset))
	cb.recorder.DispatchIndirect(native, off)
}

func textureLayerCount(t *Texture) uint32 {
	switch t.Type {
	case TextureTypeCube:
		return 6
	case TextureType1DArray, TextureType2DArray, TextureTypeCubeArray:
		return uint32(clampDimension(t.Depth, 1))
	}
	return 1
}

// Barrier translates resource state transitions into one native pipeline
// barrier and records the new layout on every texture.
func (cb *CommandBuffer) Barrier(barrier *ExecutionBarrier) {
	cb.requireNoPass("Barrier")

	native := &NativeBarrier{}
	for _, ib := range barrier.ImageBarriers {
		texture := cb.mustTexture(ib.Texture)
		src := ib.OldState.ToAccessFlags()
		dst := ib.NewState.ToAccessFlags()
		newLayout := ib.NewState.ToImageLayout()
		native.Images = append(native.Images, NativeImageBarrier{
			Image:      texture.Image,
			OldLayout:  ib.OldState.ToImageLayout(),
			NewLayout:  newLayout,
			SrcAccess:  src,
			DstAccess:  dst,
			MipCount:   uint32(clampDimension(texture.Mipmaps, 1)),
			Depth:      texture.Format.HasDepthOrStencil(),
			LayerCount: textureLayerCount(texture),
		})
		native.SrcStage |= DeterminePipelineStages(src, barrier.Queue)
		native.DstStage |= DeterminePipelineStages(dst, barrier.Queue)
		texture.Layout = newLayout
	}
	for _, mb := range barrier.MemoryBarriers {
		buffer := cb.mustBuffer(mb.Buffer)
		src := mb.OldState.ToAccessFlags()
		dst := mb.NewState.ToAccessFlags()
		handle, offset := cb.device.resolveBuffer(buffer, 0)
		native.Buffers = append(native.Buffers, NativeBufferBarrier{
			Buffer:    handle,
			SrcAccess: src,
			DstAccess: dst,
			Offset:    offset,
			Size:      uint64(buffer.Size),
		})
		native.SrcStage |= DeterminePipelineStages(src, barrier.Queue)
		native.DstStage |= DeterminePipelineStages(dst, barrier.Queue)
	}
	if len(native.Images) == 0 && len(native.Buffers) == 0 {
		return
	}
	cb.recorder.PipelineBarrier(native)
}

func (cb *CommandBuffer) FillBuffer(handle BufferHandle, offset, size uint32, data uint32) {
	cb.requireNoPass("FillBuffer")
	native, base := cb.device.resolveBuffer(cb.mustBuffer(handle), 0)
	cb.recorder.FillBuffer(native, base+uint64(offset), uint64(size), data)
}

// CopyBuffer copies the whole of src into the start of dst.
func (cb *CommandBuffer) CopyBuffer(src, dst BufferHandle) {
	cb.requireNoPass("CopyBuffer")
	source := cb.mustBuffer(src)
	destination := cb.mustBuffer(dst)
	srcNative, srcOffset := cb.device.resolveBuffer(source, 0)
	dstNative, dstOffset := cb.device.resolveBuffer(destination, 0)
	size := source.Size
	if destination.Size < size {
		size = destination.Size
	}
	cb.recorder.CopyBuffer(srcNative, dstNative, []BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: uint64(size)}})
}

func (cb *CommandBuffer) stage(staging BufferHandle, stagingOffset uint32, data []byte) (NativeHandle, uint64) {
	buffer := cb.mustBuffer(staging)
	mapped := buffer.MappedData
	native, base := cb.device.resolveBuffer(buffer, 0)
	if buffer.IsAlias() {
		parent := cb.mustBuffer(buffer.ParentBuffer)
		mapped = parent.MappedData
	}
	start := base + uint64(stagingOffset)
	if mapped == nil || start+uint64(len(data)) > uint64(len(mapped)) {
		fatalf(errProtocolMisuse, "staging buffer %q cannot hold %d bytes at %d", buffer.Name, len(data), stagingOffset)
	}
	copy(mapped[start:], data)
	return native, start
}

// UploadBufferData copies data through a mapped staging buffer into buffer.
func (cb *CommandBuffer) UploadBufferData(handle BufferHandle, data []byte, staging BufferHandle, stagingOffset uint32) {
	cb.requireNoPass("UploadBufferData")
	srcNative, srcOffset := cb.stage(staging, stagingOffset, data)
	dstNative, dstOffset := cb.device.resolveBuffer(cb.mustBuffer(handle), 0)
	cb.recorder.CopyBuffer(srcNative, dstNative, []BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: uint64(len(data))}})
}

// UploadTextureData copies the first mip of texture through a staging buffer
// and leaves it ready for sampling.
func (cb *CommandBuffer) UploadTextureData(handle TextureHandle, data []byte, staging BufferHandle, stagingOffset uint32) {
	cb.requireNoPass("UploadTextureData")
	texture := cb.mustTexture(handle)
	srcNative, srcOffset := cb.stage(staging, stagingOffset, data)

	cb.Barrier(&ExecutionBarrier{ImageBarriers: []ImageBarrier{{Texture: handle, OldState: ResourceStateUndefined, NewState: ResourceStateCopyDest}}})
	cb.recorder.CopyBufferToImage(srcNative, texture.Image, ImageLayoutTransferDstOptimal, BufferImageCopy{
		BufferOffset: srcOffset,
		Width:        uint32(texture.Width),
		Height:       uint32(texture.Height),
		Depth:        uint32(clampDimension(texture.Depth, 1)),
	})
	cb.Barrier(&ExecutionBarrier{ImageBarriers: []ImageBarrier{{Texture: handle, OldState: ResourceStateCopyDest, NewState: ResourceStateShaderResource}}})
}

// CopyTexture copies the first mip of src into dst. src is returned to
// srcState and dst is left in dstState.
func (cb *CommandBuffer) CopyTexture(src TextureHandle, srcState ResourceState, dst TextureHandle, dstState ResourceState) {
	cb.requireNoPass("CopyTexture")
	source := cb.mustTexture(src)
	destination := cb.mustTexture(dst)

	cb.Barrier((&ExecutionBarrier{}).
		AddImageBarrier(ImageBarrier{Texture: src, OldState: srcState, NewState: ResourceStateCopySource}).
		AddImageBarrier(ImageBarrier{Texture: dst, OldState: ResourceStateUndefined, NewState: ResourceStateCopyDest}))

	cb.recorder.CopyImage(source.Image, ImageLayoutTransferSrcOptimal, destination.Image, ImageLayoutTransferDstOptimal, ImageCopy{
		Width:  uint32(min(source.Width, destination.Width)),
		Height: uint32(min(source.Height, destination.Height)),
		Depth:  uint32(clampDimension(min(source.Depth, destination.Depth), 1)),
	})

	cb.Barrier((&ExecutionBarrier{}).
		AddImageBarrier(ImageBarrier{Texture: src, OldState: ResourceStateCopySource, NewState: srcState}).
		AddImageBarrier(ImageBarrier{Texture: dst, OldState: ResourceStateCopyDest, NewState: dstState}))
}

func (cb *CommandBuffer) PushMarker(name string) {
	cb.requireRecording("PushMarker")
	cb.recorder.PushMarker(name)
}

func (cb *CommandBuffer) PopMarker() {
	cb.requireRecording("PopMarker")
	cb.recorder.PopMarker()
}

// CreateDescriptorSet creates a set that lives until the next Reset.
// It returns an invalid handle on failure.
func (cb *CommandBuffer) CreateDescriptorSet(creation *DescriptorSetCreation) DescriptorSetHandle {
	h, err := cb.device.createDescriptorSet(cb.descriptorSets, cb.descriptorPool, creation)
	if err != nil {
		cb.log.Error("local descriptor set creation failed", "name", creation.Name, "err", err)
		return InvalidDescriptorSet
	}
	return h
}

// Reset returns the buffer to idle and releases every local descriptor set.
func (cb *CommandBuffer) Reset() {
	cb.isRecording = false
	cb.currentRenderPass = nil
	cb.currentFramebuffer = nil
	cb.currentPipeline = nil
	cb.dynamicOffsets = cb.dynamicOffsets[:0]

	ifPanic(cb.recorder.Reset())
	ifPanic(cb.device.backend.ResetDescriptorPool(cb.descriptorPool))
	cb.descriptorSets.ReleaseAll()
}

func (cb *CommandBuffer) destroy() {
	cb.descriptorSets.ReleaseAll()
	cb.device.backend.DestroyDescriptorPool(cb.descriptorPool)
	cb.device.backend.FreeCommandRecorder(cb.recorder)
	core.LogDebug("command buffer %d destroyed", cb.handle)
}
