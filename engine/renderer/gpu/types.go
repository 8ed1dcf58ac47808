package gpu

// Enum values below match the Vulkan enumerants so a backend can convert
// them with a cast.

const (
	MaxImageOutputs         = 8
	MaxDescriptorSetLayouts = 8
	MaxShaderStages         = 5
	MaxDescriptorsPerSet    = 16
	MaxVertexStreams        = 16
	MaxVertexAttributes     = 16
	MaxBoundDescriptorSets  = 16
	MaxFramesInFlight       = 3
	MaxSwapchainImages      = 3

	BindlessTextureBinding    = 10
	MaxBindlessResources      = 1024
	GlobalPoolElements        = 128
	SecondaryBuffersPerThread = 2
)

type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32Sfloat          Format = 100
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD16Unorm           Format = 124
	FormatX8D24UnormPack32   Format = 125
	FormatD32Sfloat          Format = 126
	FormatS8Uint             Format = 127
	FormatD16UnormS8Uint     Format = 128
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

func (f Format) IsDepthStencil() bool {
	return f == FormatD16UnormS8Uint || f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

func (f Format) IsDepthOnly() bool {
	return f >= FormatD16Unorm && f < FormatS8Uint
}

func (f Format) IsStencilOnly() bool {
	return f == FormatS8Uint
}

func (f Format) HasDepth() bool {
	return (f >= FormatD16Unorm && f < FormatS8Uint) || (f >= FormatD16UnormS8Uint && f <= FormatD32SfloatS8Uint)
}

func (f Format) HasStencil() bool {
	return f >= FormatS8Uint && f <= FormatD32SfloatS8Uint
}

func (f Format) HasDepthOrStencil() bool {
	return f >= FormatD16Unorm && f <= FormatD32SfloatS8Uint
}

// BytesPerTexel reports the size of one texel for the color formats the engine uploads.
func (f Format) BytesPerTexel() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb, FormatR32Sfloat:
		return 4
	case FormatR16G16B16A16Sfloat, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 4
}

type DescriptorType uint32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeStorageImage         DescriptorType = 3
	DescriptorTypeUniformTexelBuffer   DescriptorType = 4
	DescriptorTypeStorageTexelBuffer   DescriptorType = 5
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
	DescriptorTypeUniformBufferDynamic DescriptorType = 8
	DescriptorTypeStorageBufferDynamic DescriptorType = 9
	DescriptorTypeInputAttachment      DescriptorType = 10
)

func (t DescriptorType) IsBuffer() bool {
	return t == DescriptorTypeUniformBuffer || t == DescriptorTypeStorageBuffer ||
		t == DescriptorTypeUniformBufferDynamic || t == DescriptorTypeStorageBufferDynamic
}

func (t DescriptorType) IsImage() bool {
	return t == DescriptorTypeCombinedImageSampler || t == DescriptorTypeSampledImage ||
		t == DescriptorTypeStorageImage || t == DescriptorTypeInputAttachment
}

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type StoreOp uint32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

type ImageLayout uint32

const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPreinitialized                ImageLayout = 8
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
)

type BindPoint uint32

const (
	BindPointGraphics BindPoint = 0
	BindPointCompute  BindPoint = 1
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type ShaderStage uint32

const (
	ShaderStageVertex      ShaderStage = 0x1
	ShaderStageTessControl ShaderStage = 0x2
	ShaderStageTessEval    ShaderStage = 0x4
	ShaderStageGeometry    ShaderStage = 0x8
	ShaderStageFragment    ShaderStage = 0x10
	ShaderStageCompute     ShaderStage = 0x20
	ShaderStageAllGraphics ShaderStage = 0x1f
	ShaderStageAll         ShaderStage = 0x7fffffff
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageTessControl:
		return "tess_control"
	case ShaderStageTessEval:
		return "tess_eval"
	case ShaderStageGeometry:
		return "geometry"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	}
	return "mixed"
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc  BufferUsage = 0x1
	BufferUsageTransferDst  BufferUsage = 0x2
	BufferUsageUniformTexel BufferUsage = 0x4
	BufferUsageStorageTexel BufferUsage = 0x8
	BufferUsageUniform      BufferUsage = 0x10
	BufferUsageStorage      BufferUsage = 0x20
	BufferUsageIndex        BufferUsage = 0x40
	BufferUsageVertex       BufferUsage = 0x80
	BufferUsageIndirect     BufferUsage = 0x100
)

// ResourceUsageType is how often the CPU touches a buffer.
type ResourceUsageType uint8

const (
	ResourceUsageImmutable ResourceUsageType = iota
	ResourceUsageDynamic
	ResourceUsageStream
	ResourceUsageStaging
)

func (u ResourceUsageType) String() string {
	switch u {
	case ResourceUsageImmutable:
		return "immutable"
	case ResourceUsageDynamic:
		return "dynamic"
	case ResourceUsageStream:
		return "stream"
	case ResourceUsageStaging:
		return "staging"
	}
	return "unknown"
}

type TextureType uint8

const (
	TextureType1D TextureType = iota
	TextureType2D
	TextureType3D
	TextureTypeCube
	TextureType1DArray
	TextureType2DArray
	TextureTypeCubeArray
)

type TextureFlags uint8

const (
	TextureFlagDefault      TextureFlags = 0
	TextureFlagRenderTarget TextureFlags = 1 << 0
	TextureFlagCompute      TextureFlags = 1 << 1
)

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type MipmapMode uint32

const (
	MipmapModeNearest MipmapMode = 0
	MipmapModeLinear  MipmapMode = 1
)

type AddressMode uint32

const (
	AddressModeRepeat         AddressMode = 0
	AddressModeMirroredRepeat AddressMode = 1
	AddressModeClampToEdge    AddressMode = 2
	AddressModeClampToBorder  AddressMode = 3
)

type CullMode uint32

const (
	CullModeNone         CullMode = 0
	CullModeFront        CullMode = 1
	CullModeBack         CullMode = 2
	CullModeFrontAndBack CullMode = 3
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type PolygonMode uint32

const (
	PolygonModeFill  PolygonMode = 0
	PolygonModeLine  PolygonMode = 1
	PolygonModePoint PolygonMode = 2
)

type PrimitiveTopology uint32

const (
	TopologyPointList     PrimitiveTopology = 0
	TopologyLineList      PrimitiveTopology = 1
	TopologyLineStrip     PrimitiveTopology = 2
	TopologyTriangleList  PrimitiveTopology = 3
	TopologyTriangleStrip PrimitiveTopology = 4
)

type CompareOp uint32

const (
	CompareOpNever          CompareOp = 0
	CompareOpLess           CompareOp = 1
	CompareOpEqual          CompareOp = 2
	CompareOpLessOrEqual    CompareOp = 3
	CompareOpGreater        CompareOp = 4
	CompareOpNotEqual       CompareOp = 5
	CompareOpGreaterOrEqual CompareOp = 6
	CompareOpAlways         CompareOp = 7
)

type StencilOp uint32

const (
	StencilOpKeep              StencilOp = 0
	StencilOpZero              StencilOp = 1
	StencilOpReplace           StencilOp = 2
	StencilOpIncrementAndClamp StencilOp = 3
	StencilOpDecrementAndClamp StencilOp = 4
	StencilOpInvert            StencilOp = 5
	StencilOpIncrementAndWrap  StencilOp = 6
	StencilOpDecrementAndWrap  StencilOp = 7
)

type BlendFactor uint32

const (
	BlendFactorZero             BlendFactor = 0
	BlendFactorOne              BlendFactor = 1
	BlendFactorSrcColor         BlendFactor = 2
	BlendFactorOneMinusSrcColor BlendFactor = 3
	BlendFactorDstColor         BlendFactor = 4
	BlendFactorOneMinusDstColor BlendFactor = 5
	BlendFactorSrcAlpha         BlendFactor = 6
	BlendFactorOneMinusSrcAlpha BlendFactor = 7
	BlendFactorDstAlpha         BlendFactor = 8
	BlendFactorOneMinusDstAlpha BlendFactor = 9
)

type BlendOp uint32

const (
	BlendOpAdd             BlendOp = 0
	BlendOpSubtract        BlendOp = 1
	BlendOpReverseSubtract BlendOp = 2
	BlendOpMin             BlendOp = 3
	BlendOpMax             BlendOp = 4
)

type ColorWriteMask uint32

const (
	ColorWriteR   ColorWriteMask = 0x1
	ColorWriteG   ColorWriteMask = 0x2
	ColorWriteB   ColorWriteMask = 0x4
	ColorWriteA   ColorWriteMask = 0x8
	ColorWriteAll ColorWriteMask = 0xf
)

type VertexInputRate uint32

const (
	VertexInputRateVertex   VertexInputRate = 0
	VertexInputRateInstance VertexInputRate = 1
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe             PipelineStage = 0x1
	PipelineStageDrawIndirect          PipelineStage = 0x2
	PipelineStageVertexInput           PipelineStage = 0x4
	PipelineStageVertexShader          PipelineStage = 0x8
	PipelineStageFragmentShader        PipelineStage = 0x80
	PipelineStageEarlyFragmentTests    PipelineStage = 0x100
	PipelineStageLateFragmentTests     PipelineStage = 0x200
	PipelineStageColorAttachmentOutput PipelineStage = 0x400
	PipelineStageComputeShader         PipelineStage = 0x800
	PipelineStageTransfer              PipelineStage = 0x1000
	PipelineStageBottomOfPipe          PipelineStage = 0x2000
	PipelineStageHost                  PipelineStage = 0x4000
	PipelineStageAllCommands           PipelineStage = 0x10000
)

type AccessFlags uint32

const (
	AccessIndirectCommandRead  AccessFlags = 0x1
	AccessIndexRead            AccessFlags = 0x2
	AccessVertexAttributeRead  AccessFlags = 0x4
	AccessUniformRead          AccessFlags = 0x8
	AccessInputAttachmentRead  AccessFlags = 0x10
	AccessShaderRead           AccessFlags = 0x20
	AccessShaderWrite          AccessFlags = 0x40
	AccessColorAttachmentRead  AccessFlags = 0x80
	AccessColorAttachmentWrite AccessFlags = 0x100
	AccessDepthStencilRead     AccessFlags = 0x200
	AccessDepthStencilWrite    AccessFlags = 0x400
	AccessTransferRead         AccessFlags = 0x800
	AccessTransferWrite        AccessFlags = 0x1000
	AccessHostRead             AccessFlags = 0x2000
	AccessHostWrite            AccessFlags = 0x4000
	AccessMemoryRead           AccessFlags = 0x8000
	AccessMemoryWrite          AccessFlags = 0x10000
)

// QueueType is the engine-level queue a pipeline stage mask is computed for.
type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueCopyTransfer
)

type Rect2D struct {
	X, Y          float32
	Width, Height float32
}

type Rect2DInt struct {
	X, Y          int32
	Width, Height uint32
}

type Viewport struct {
	Rect     Rect2DInt
	MinDepth float32
	MaxDepth float32
}

// NativeViewport is the viewport handed to the backend after the Y flip.
type NativeViewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type ClearColor [4]float32

type ClearDepthStencil struct {
	Depth   float32
	Stencil uint32
}

// ClearValue is one attachment clear; DepthStencil selects which member is meaningful.
type ClearValue struct {
	Color             ClearColor
	DepthStencilValue ClearDepthStencil
	DepthStencil      bool
}
