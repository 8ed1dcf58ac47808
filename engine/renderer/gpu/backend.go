package gpu

// Capabilities are the device features that change how the core records.
type Capabilities struct {
	DynamicRendering       bool
	Bindless               bool
	DebugUtils             bool
	UniformBufferAlignment uint32
	StorageBufferAlignment uint32
	MaxSamplerAnisotropy   float32
}

// NativeBuffer is what the backend returns for a created buffer. Mapped is
// non-nil when the memory is host visible and persistently mapped.
type NativeBuffer struct {
	Buffer NativeHandle
	Memory NativeHandle
	Mapped []byte
}

type NativeTexture struct {
	Image  NativeHandle
	View   NativeHandle
	Memory NativeHandle
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolConfig struct {
	MaxSets         uint32
	Sizes           []DescriptorPoolSize
	UpdateAfterBind bool
	FreeIndividual  bool
}

// DescriptorWrite is one batched descriptor update. Exactly one of the
// buffer or image members is meaningful depending on Type.
type DescriptorWrite struct {
	Set          NativeHandle
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Buffer       NativeHandle
	Offset       uint64
	Range        uint64
	ImageView    NativeHandle
	ImageLayout  ImageLayout
	Sampler      NativeHandle
}

type NativeDescriptorSetLayoutDesc struct {
	Bindings []DescriptorBinding
	Bindless bool
	Stages   ShaderStage
}

// NativePipelineDesc is a fully resolved pipeline description.
type NativePipelineDesc struct {
	Shaders          []ShaderModule
	GraphicsPipeline bool
	SetLayouts       []NativeHandle
	VertexInput      VertexInputCreation
	Rasterization    RasterizationCreation
	DepthStencil     DepthStencilCreation
	BlendState       BlendStateCreation
	Topology         PrimitiveTopology
	// RenderPass is null when Output is consumed through dynamic rendering.
	RenderPass NativeHandle
	Output     RenderPassOutput
	Name       string
}

type NativeFramebufferDesc struct {
	RenderPass  NativeHandle
	Attachments []NativeHandle
	Width       uint32
	Height      uint32
	Name        string
}

// Backend is the device-level native API the core drives.
type Backend interface {
	Capabilities() Capabilities

	CreateBuffer(creation *BufferCreation) (NativeBuffer, error)
	DestroyBuffer(buffer NativeBuffer)
	CreateTexture(creation *TextureCreation) (NativeTexture, error)
	DestroyTexture(texture NativeTexture)
	CreateSampler(creation *SamplerCreation) (NativeHandle, error)
	DestroySampler(sampler NativeHandle)
	CreateShaderModule(stage ShaderStageCode) (NativeHandle, error)
	DestroyShaderModule(module NativeHandle)

	CreateDescriptorSetLayout(desc *NativeDescriptorSetLayoutDesc) (NativeHandle, error)
	DestroyDescriptorSetLayout(layout NativeHandle)
	CreateDescriptorPool(config *DescriptorPoolConfig) (NativeHandle, error)
	DestroyDescriptorPool(pool NativeHandle)
	ResetDescriptorPool(pool NativeHandle) error
	AllocateDescriptorSet(pool, layout NativeHandle, variableCount uint32) (NativeHandle, error)
	FreeDescriptorSet(pool, set NativeHandle)
	UpdateDescriptorSets(writes []DescriptorWrite)

	CreateRenderPass(output *RenderPassOutput, name string) (NativeHandle, error)
	DestroyRenderPass(pass NativeHandle)
	CreateFramebuffer(desc *NativeFramebufferDesc) (NativeHandle, error)
	DestroyFramebuffer(framebuffer NativeHandle)
	CreatePipeline(desc *NativePipelineDesc) (pipeline NativeHandle, layout NativeHandle, err error)
	DestroyPipeline(pipeline, layout NativeHandle)

	NewCommandRecorder(threadIndex uint32, frame uint32, secondary bool) (CommandRecorder, error)
	FreeCommandRecorder(recorder CommandRecorder)

	// WaitFrame blocks until the last submission for frame has retired.
	WaitFrame(frame uint32) error
	Submit(frame uint32, recorders []CommandRecorder) error
	WaitIdle() error
	Shutdown() error
}

// Inheritance is what a secondary command buffer needs to know about the pass it runs in.
type Inheritance struct {
	RenderPass   NativeHandle
	Framebuffer  NativeHandle
	ColorFormats []Format
	DepthFormat  Format
}

// RenderPassBeginInfo carries one clear value per attachment whose load op is
// clear, in attachment order. AttachmentLoadOps lists every attachment's load
// op so a backend can place them positionally.
type RenderPassBeginInfo struct {
	RenderPass        NativeHandle
	Framebuffer       NativeHandle
	RenderArea        Rect2DInt
	ClearValues       []ClearValue
	AttachmentLoadOps []LoadOp
	Secondary         bool
}

type RenderingAttachment struct {
	View        NativeHandle
	Layout      ImageLayout
	LoadOp      LoadOp
	StoreOp     StoreOp
	ClearValue  ClearValue
	ResolveView NativeHandle
}

type RenderingInfo struct {
	RenderArea        Rect2DInt
	ColorAttachments  []RenderingAttachment
	DepthAttachment   *RenderingAttachment
	StencilAttachment *RenderingAttachment
	Secondary         bool
}

type NativeImageBarrier struct {
	Image      NativeHandle
	OldLayout  ImageLayout
	NewLayout  ImageLayout
	SrcAccess  AccessFlags
	DstAccess  AccessFlags
	BaseMip    uint32
	MipCount   uint32
	Depth      bool
	LayerCount uint32
}

type NativeBufferBarrier struct {
	Buffer    NativeHandle
	SrcAccess AccessFlags
	DstAccess AccessFlags
	Offset    uint64
	Size      uint64
}

type NativeBarrier struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Images   []NativeImageBarrier
	Buffers  []NativeBufferBarrier
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Width        uint32
	Height       uint32
	Depth        uint32
	MipLevel     uint32
}

type ImageCopy struct {
	Width    uint32
	Height   uint32
	Depth    uint32
	MipLevel uint32
}

// CommandRecorder is one native command buffer.
type CommandRecorder interface {
	Begin(inheritance *Inheritance) error
	End() error
	Reset() error

	BeginRenderPass(info *RenderPassBeginInfo)
	EndRenderPass()
	BeginRendering(info *RenderingInfo)
	EndRendering()

	BindPipeline(bindPoint BindPoint, pipeline NativeHandle)
	BindVertexBuffer(binding uint32, buffer NativeHandle, offset uint64)
	BindIndexBuffer(buffer NativeHandle, offset uint64, indexType IndexType)
	BindDescriptorSets(bindPoint BindPoint, layout NativeHandle, firstSet uint32, sets []NativeHandle, dynamicOffsets []uint32)

	SetViewport(viewport NativeViewport)
	SetScissor(rect Rect2DInt)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	DrawIndirect(buffer NativeHandle, offset uint64, drawCount, stride uint32)
	DrawIndexedIndirect(buffer NativeHandle, offset uint64, drawCount, stride uint32)
	Dispatch(groupX, groupY, groupZ uint32)
	DispatchIndirect(buffer NativeHandle, offset uint64)

	PipelineBarrier(barrier *NativeBarrier)
	FillBuffer(buffer NativeHandle, offset, size uint64, data uint32)
	CopyBuffer(src, dst NativeHandle, regions []BufferCopy)
	CopyBufferToImage(src, dst NativeHandle, layout ImageLayout, region BufferImageCopy)
	CopyImage(src NativeHandle, srcLayout ImageLayout, dst NativeHandle, dstLayout ImageLayout, region ImageCopy)

	PushMarker(name string)
	PopMarker()
}
