package gpu

// Buffer is a GPU buffer. When ParentBuffer is valid the buffer is an alias
// of a range of the parent starting at GlobalOffset and owns no native object.
type Buffer struct {
	Native       NativeHandle
	Memory       NativeHandle
	TypeFlags    BufferUsage
	Usage        ResourceUsageType
	Size         uint32
	GlobalOffset uint32
	Handle       BufferHandle
	ParentBuffer BufferHandle
	MappedData   []byte
	Name         string
}

func (b *Buffer) IsAlias() bool {
	return b.ParentBuffer.IsValid()
}

type Sampler struct {
	Native       NativeHandle
	MinFilter    Filter
	MagFilter    Filter
	MipFilter    MipmapMode
	AddressModeU AddressMode
	AddressModeV AddressMode
	AddressModeW AddressMode
	Handle       SamplerHandle
	Name         string
}

type Texture struct {
	Image   NativeHandle
	View    NativeHandle
	Memory  NativeHandle
	Format  Format
	Layout  ImageLayout
	Width   uint16
	Height  uint16
	Depth   uint16
	Mipmaps uint8
	Flags   TextureFlags
	Type    TextureType
	Handle  TextureHandle
	Sampler SamplerHandle
	Name    string
}

type ShaderModule struct {
	Stage  ShaderStage
	Module NativeHandle
}

type ShaderState struct {
	Stages           []ShaderModule
	GraphicsPipeline bool
	Handle           ShaderStateHandle
	Name             string
}

type DescriptorSetLayout struct {
	Native   NativeHandle
	Bindings []DescriptorBinding
	// IndexToBinding maps a binding point to its position in Bindings.
	IndexToBinding map[uint16]int
	SetIndex       uint16
	Bindless       bool
	Dynamic        bool
	Handle         DescriptorSetLayoutHandle
	Name           string
}

// BindingPosition returns the position of a binding point in the layout.
func (l *DescriptorSetLayout) BindingPosition(binding uint16) (int, bool) {
	pos, ok := l.IndexToBinding[binding]
	return pos, ok
}

// DescriptorSetEntry is one cached resource of a descriptor set.
type DescriptorSetEntry struct {
	Resource ResourceHandle
	Sampler  SamplerHandle
	Binding  uint16
}

type DescriptorSet struct {
	Native NativeHandle
	// Entries caches what the set was written with, in creation order.
	Entries      []DescriptorSetEntry
	Layout       *DescriptorSetLayout
	LayoutHandle DescriptorSetLayoutHandle
	// Pool is the native descriptor pool the set was allocated from.
	Pool   NativeHandle
	Handle DescriptorSetHandle
	Name   string
}

func (s *DescriptorSet) NumResources() int {
	return len(s.Entries)
}

// EntryForBinding returns the cached entry bound to a layout binding point.
func (s *DescriptorSet) EntryForBinding(binding uint16) (DescriptorSetEntry, bool) {
	for _, e := range s.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return DescriptorSetEntry{}, false
}

type Pipeline struct {
	Native                     NativeHandle
	Layout                     NativeHandle
	BindPoint                  BindPoint
	ShaderState                ShaderStateHandle
	DescriptorSetLayouts       []*DescriptorSetLayout
	DescriptorSetLayoutHandles []DescriptorSetLayoutHandle
	DepthStencil               DepthStencilCreation
	BlendState                 BlendStateCreation
	Rasterization              RasterizationCreation
	Output                     RenderPassOutput
	Handle                     PipelineHandle
	GraphicsPipeline           bool
	Name                       string
}

func (p *Pipeline) NumActiveLayouts() int {
	return len(p.DescriptorSetLayouts)
}

// RenderPass holds a null Native when dynamic rendering is in use.
type RenderPass struct {
	Native           NativeHandle
	Output           RenderPassOutput
	DispatchX        uint16
	DispatchY        uint16
	DispatchZ        uint16
	NumRenderTargets uint8
	Handle           RenderPassHandle
	Name             string
}

// Framebuffer holds a null Native when dynamic rendering is in use.
type Framebuffer struct {
	Native                 NativeHandle
	RenderPass             RenderPassHandle
	Width                  uint16
	Height                 uint16
	ScaleX                 float32
	ScaleY                 float32
	ColorAttachments       []TextureHandle
	DepthStencilAttachment TextureHandle
	Resize                 bool
	Handle                 FramebufferHandle
	Name                   string
}

func (f *Framebuffer) NumColorAttachments() int {
	return len(f.ColorAttachments)
}

func (f *Framebuffer) HasDepthStencil() bool {
	return f.DepthStencilAttachment.IsValid()
}

type BufferDescription struct {
	Native       NativeHandle
	Name         string
	TypeFlags    BufferUsage
	Usage        ResourceUsageType
	Size         uint32
	ParentHandle BufferHandle
}

type TextureDescription struct {
	Native        NativeHandle
	Name          string
	Width         uint16
	Height        uint16
	Depth         uint16
	Mipmaps       uint8
	RenderTarget  bool
	ComputeAccess bool
	Format        Format
	Type          TextureType
}

type SamplerDescription struct {
	Name         string
	MinFilter    Filter
	MagFilter    Filter
	MipFilter    MipmapMode
	AddressModeU AddressMode
	AddressModeV AddressMode
	AddressModeW AddressMode
}

type ShaderStateDescription struct {
	Name   string
	Stages []ShaderStage
}

type PipelineDescription struct {
	Shader ShaderStateHandle
}

type DescriptorSetLayoutDescription struct {
	Bindings []DescriptorBinding
	SetIndex uint16
}

type DescriptorSetDescription struct {
	Resources []ResourceHandle
}
