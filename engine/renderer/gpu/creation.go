package gpu

type BufferCreation struct {
	TypeFlags   BufferUsage
	Usage       ResourceUsageType
	Size        uint32
	Persistent  bool
	DeviceOnly  bool
	InitialData []byte
	Name        string
}

func (c *BufferCreation) Set(flags BufferUsage, usage ResourceUsageType, size uint32) *BufferCreation {
	c.TypeFlags = flags
	c.Usage = usage
	c.Size = size
	return c
}

func (c *BufferCreation) SetData(data []byte) *BufferCreation {
	c.InitialData = data
	return c
}

func (c *BufferCreation) SetName(name string) *BufferCreation {
	c.Name = name
	return c
}

func (c *BufferCreation) SetPersistent(value bool) *BufferCreation {
	c.Persistent = value
	return c
}

func (c *BufferCreation) SetDeviceOnly(value bool) *BufferCreation {
	c.DeviceOnly = value
	return c
}

type TextureCreation struct {
	InitialData []byte
	Width       uint16
	Height      uint16
	Depth       uint16
	Mipmaps     uint8
	Flags       TextureFlags
	Format      Format
	Type        TextureType
	Name        string
}

func NewTextureCreation() *TextureCreation {
	return &TextureCreation{Width: 1, Height: 1, Depth: 1, Mipmaps: 1, Type: TextureType2D}
}

func (c *TextureCreation) SetSize(width, height, depth uint16) *TextureCreation {
	c.Width = width
	c.Height = height
	c.Depth = depth
	return c
}

func (c *TextureCreation) SetFlags(mipmaps uint8, flags TextureFlags) *TextureCreation {
	c.Mipmaps = mipmaps
	c.Flags = flags
	return c
}

func (c *TextureCreation) SetFormatType(format Format, kind TextureType) *TextureCreation {
	c.Format = format
	c.Type = kind
	return c
}

func (c *TextureCreation) SetData(data []byte) *TextureCreation {
	c.InitialData = data
	return c
}

func (c *TextureCreation) SetName(name string) *TextureCreation {
	c.Name = name
	return c
}

type SamplerCreation struct {
	MinFilter    Filter
	MagFilter    Filter
	MipFilter    MipmapMode
	AddressModeU AddressMode
	AddressModeV AddressMode
	AddressModeW AddressMode
	Name         string
}

func (c *SamplerCreation) SetMinMagMip(minFilter, magFilter Filter, mip MipmapMode) *SamplerCreation {
	c.MinFilter = minFilter
	c.MagFilter = magFilter
	c.MipFilter = mip
	return c
}

func (c *SamplerCreation) SetAddressModeU(u AddressMode) *SamplerCreation {
	c.AddressModeU = u
	return c
}

func (c *SamplerCreation) SetAddressModeUV(u, v AddressMode) *SamplerCreation {
	c.AddressModeU = u
	c.AddressModeV = v
	return c
}

func (c *SamplerCreation) SetAddressModeUVW(u, v, w AddressMode) *SamplerCreation {
	c.AddressModeU = u
	c.AddressModeV = v
	c.AddressModeW = w
	return c
}

func (c *SamplerCreation) SetName(name string) *SamplerCreation {
	c.Name = name
	return c
}

// ShaderStageCode is one compiled stage. Code holds SPIR-V words as bytes.
type ShaderStageCode struct {
	Code  []byte
	Stage ShaderStage
}

type ShaderStateCreation struct {
	Stages   []ShaderStageCode
	SpvInput bool
	Name     string
}

func (c *ShaderStateCreation) AddStage(code []byte, stage ShaderStage) *ShaderStateCreation {
	c.Stages = append(c.Stages, ShaderStageCode{Code: code, Stage: stage})
	return c
}

func (c *ShaderStateCreation) SetSpvInput(value bool) *ShaderStateCreation {
	c.SpvInput = value
	return c
}

func (c *ShaderStateCreation) SetName(name string) *ShaderStateCreation {
	c.Name = name
	return c
}

// DescriptorBinding is one slot of a descriptor set layout.
type DescriptorBinding struct {
	Type  DescriptorType
	Index uint16
	Count uint16
	Name  string
}

type DescriptorSetLayoutCreation struct {
	Bindings []DescriptorBinding
	SetIndex uint32
	Bindless bool
	Dynamic  bool
	Name     string
}

func (c *DescriptorSetLayoutCreation) AddBinding(kind DescriptorType, index, count uint16, name string) *DescriptorSetLayoutCreation {
	c.Bindings = append(c.Bindings, DescriptorBinding{Type: kind, Index: index, Count: count, Name: name})
	return c
}

func (c *DescriptorSetLayoutCreation) SetSetIndex(index uint32) *DescriptorSetLayoutCreation {
	c.SetIndex = index
	return c
}

func (c *DescriptorSetLayoutCreation) SetName(name string) *DescriptorSetLayoutCreation {
	c.Name = name
	return c
}

// DescriptorSetCreation lists resources in the order they are written. Resources,
// Samplers and Bindings are positionally aligned.
type DescriptorSetCreation struct {
	Resources []ResourceHandle
	Samplers  []SamplerHandle
	Bindings  []uint16
	Layout    DescriptorSetLayoutHandle
	Name      string
}

func (c *DescriptorSetCreation) SetLayout(layout DescriptorSetLayoutHandle) *DescriptorSetCreation {
	c.Layout = layout
	return c
}

func (c *DescriptorSetCreation) Texture(texture TextureHandle, binding uint16) *DescriptorSetCreation {
	return c.add(texture.ResourceHandle, InvalidSampler, binding)
}

func (c *DescriptorSetCreation) Buffer(buffer BufferHandle, binding uint16) *DescriptorSetCreation {
	return c.add(buffer.ResourceHandle, InvalidSampler, binding)
}

func (c *DescriptorSetCreation) TextureSampler(texture TextureHandle, sampler SamplerHandle, binding uint16) *DescriptorSetCreation {
	return c.add(texture.ResourceHandle, sampler, binding)
}

func (c *DescriptorSetCreation) SetName(name string) *DescriptorSetCreation {
	c.Name = name
	return c
}

func (c *DescriptorSetCreation) NumResources() int {
	return len(c.Resources)
}

func (c *DescriptorSetCreation) add(resource ResourceHandle, sampler SamplerHandle, binding uint16) *DescriptorSetCreation {
	c.Resources = append(c.Resources, resource)
	c.Samplers = append(c.Samplers, sampler)
	c.Bindings = append(c.Bindings, binding)
	return c
}

type VertexAttribute struct {
	Location uint16
	Binding  uint16
	Offset   uint32
	Format   Format
}

type VertexStream struct {
	Binding   uint16
	Stride    uint16
	InputRate VertexInputRate
}

type VertexInputCreation struct {
	Streams    []VertexStream
	Attributes []VertexAttribute
}

func (c *VertexInputCreation) AddStream(stream VertexStream) *VertexInputCreation {
	c.Streams = append(c.Streams, stream)
	return c
}

func (c *VertexInputCreation) AddAttribute(attribute VertexAttribute) *VertexInputCreation {
	c.Attributes = append(c.Attributes, attribute)
	return c
}

type StencilOperationState struct {
	Fail        StencilOp
	Pass        StencilOp
	DepthFail   StencilOp
	Compare     CompareOp
	CompareMask uint32
	WriteMask   uint32
	Reference   uint32
}

func DefaultStencilOperationState() StencilOperationState {
	return StencilOperationState{Compare: CompareOpAlways, CompareMask: 0xff, WriteMask: 0xff, Reference: 0xff}
}

type DepthStencilCreation struct {
	Front            StencilOperationState
	Back             StencilOperationState
	DepthComparison  CompareOp
	DepthEnable      bool
	DepthWriteEnable bool
	StencilEnable    bool
}

func (c *DepthStencilCreation) SetDepth(write bool, comparison CompareOp) *DepthStencilCreation {
	c.DepthWriteEnable = write
	c.DepthComparison = comparison
	c.DepthEnable = true
	return c
}

type BlendState struct {
	SourceColor      BlendFactor
	DestinationColor BlendFactor
	ColorOperation   BlendOp
	SourceAlpha      BlendFactor
	DestinationAlpha BlendFactor
	AlphaOperation   BlendOp
	ColorWriteMask   ColorWriteMask
	BlendEnabled     bool
	SeparateBlend    bool
}

func (b *BlendState) SetColor(source, destination BlendFactor, op BlendOp) *BlendState {
	b.SourceColor = source
	b.DestinationColor = destination
	b.ColorOperation = op
	b.BlendEnabled = true
	return b
}

func (b *BlendState) SetAlpha(source, destination BlendFactor, op BlendOp) *BlendState {
	b.SourceAlpha = source
	b.DestinationAlpha = destination
	b.AlphaOperation = op
	b.SeparateBlend = true
	return b
}

func (b *BlendState) SetColorWriteMask(mask ColorWriteMask) *BlendState {
	b.ColorWriteMask = mask
	return b
}

type BlendStateCreation struct {
	States []BlendState
}

// AddBlendState appends a blend state with write-all defaults and returns it for configuration.
func (c *BlendStateCreation) AddBlendState() *BlendState {
	c.States = append(c.States, BlendState{
		SourceColor:      BlendFactorOne,
		DestinationColor: BlendFactorOne,
		SourceAlpha:      BlendFactorOne,
		DestinationAlpha: BlendFactorOne,
		ColorWriteMask:   ColorWriteAll,
	})
	return &c.States[len(c.States)-1]
}

type RasterizationCreation struct {
	CullMode CullMode
	Front    FrontFace
	Fill     PolygonMode
}

// RenderPassOutput describes the attachments a pass writes. It is comparable
// and keys the native render pass cache.
type RenderPassOutput struct {
	ColorFormats            [MaxImageOutputs]Format
	ColorFinalLayouts       [MaxImageOutputs]ImageLayout
	ColorOperations         [MaxImageOutputs]LoadOp
	DepthStencilFormat      Format
	DepthStencilFinalLayout ImageLayout
	NumColorFormats         uint32
	DepthOperation          LoadOp
	StencilOperation        LoadOp
}

func NewRenderPassOutput() RenderPassOutput {
	return RenderPassOutput{DepthOperation: LoadOpDontCare, StencilOperation: LoadOpDontCare}
}

func (o *RenderPassOutput) Reset() *RenderPassOutput {
	*o = NewRenderPassOutput()
	return o
}

func (o *RenderPassOutput) Color(format Format, layout ImageLayout, op LoadOp) *RenderPassOutput {
	o.ColorFormats[o.NumColorFormats] = format
	o.ColorFinalLayouts[o.NumColorFormats] = layout
	o.ColorOperations[o.NumColorFormats] = op
	o.NumColorFormats++
	return o
}

func (o *RenderPassOutput) Depth(format Format, layout ImageLayout) *RenderPassOutput {
	o.DepthStencilFormat = format
	o.DepthStencilFinalLayout = layout
	return o
}

func (o *RenderPassOutput) SetDepthStencilOperations(depth, stencil LoadOp) *RenderPassOutput {
	o.DepthOperation = depth
	o.StencilOperation = stencil
	return o
}

type RenderPassCreation struct {
	Output RenderPassOutput
	Name   string
}

func NewRenderPassCreation() *RenderPassCreation {
	return &RenderPassCreation{Output: NewRenderPassOutput()}
}

func (c *RenderPassCreation) AddAttachment(format Format, layout ImageLayout, op LoadOp) *RenderPassCreation {
	c.Output.Color(format, layout, op)
	return c
}

func (c *RenderPassCreation) SetDepthStencilTexture(format Format, layout ImageLayout) *RenderPassCreation {
	c.Output.Depth(format, layout)
	return c
}

func (c *RenderPassCreation) SetDepthStencilOperations(depth, stencil LoadOp) *RenderPassCreation {
	c.Output.SetDepthStencilOperations(depth, stencil)
	return c
}

func (c *RenderPassCreation) SetName(name string) *RenderPassCreation {
	c.Name = name
	return c
}

type FramebufferCreation struct {
	RenderPass          RenderPassHandle
	OutputTextures      []TextureHandle
	DepthStencilTexture TextureHandle
	Width               uint16
	Height              uint16
	ScaleX              float32
	ScaleY              float32
	Resize              bool
	Name                string
}

func NewFramebufferCreation(pass RenderPassHandle) *FramebufferCreation {
	return &FramebufferCreation{
		RenderPass:          pass,
		DepthStencilTexture: InvalidTexture,
		ScaleX:              1,
		ScaleY:              1,
	}
}

func (c *FramebufferCreation) AddRenderTexture(texture TextureHandle) *FramebufferCreation {
	c.OutputTextures = append(c.OutputTextures, texture)
	return c
}

func (c *FramebufferCreation) SetDepthStencilTexture(texture TextureHandle) *FramebufferCreation {
	c.DepthStencilTexture = texture
	return c
}

func (c *FramebufferCreation) SetScaling(scaleX, scaleY float32, resize bool) *FramebufferCreation {
	c.ScaleX = scaleX
	c.ScaleY = scaleY
	c.Resize = resize
	return c
}

func (c *FramebufferCreation) SetName(name string) *FramebufferCreation {
	c.Name = name
	return c
}

type PipelineCreation struct {
	Rasterization        RasterizationCreation
	DepthStencil         DepthStencilCreation
	BlendState           BlendStateCreation
	VertexInput          VertexInputCreation
	Shaders              ShaderStateCreation
	Topology             PrimitiveTopology
	RenderPass           RenderPassOutput
	DescriptorSetLayouts []DescriptorSetLayoutHandle
	Name                 string
}

func (c *PipelineCreation) AddDescriptorSetLayout(layout DescriptorSetLayoutHandle) *PipelineCreation {
	c.DescriptorSetLayouts = append(c.DescriptorSetLayouts, layout)
	return c
}

type MapBufferParameters struct {
	Buffer BufferHandle
	Offset uint32
	Size   uint32
}

type ImageBarrier struct {
	Texture  TextureHandle
	OldState ResourceState
	NewState ResourceState
}

type MemoryBarrier struct {
	Buffer   BufferHandle
	OldState ResourceState
	NewState ResourceState
}

type ExecutionBarrier struct {
	ImageBarriers  []ImageBarrier
	MemoryBarriers []MemoryBarrier
	Queue          QueueType
}

func (b *ExecutionBarrier) AddImageBarrier(barrier ImageBarrier) *ExecutionBarrier {
	b.ImageBarriers = append(b.ImageBarriers, barrier)
	return b
}

func (b *ExecutionBarrier) AddMemoryBarrier(barrier MemoryBarrier) *ExecutionBarrier {
	b.MemoryBarriers = append(b.MemoryBarriers, barrier)
	return b
}
