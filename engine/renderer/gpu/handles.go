package gpu

const InvalidIndex uint32 = 0xffffffff

// ResourceHandle references a slot in a ResourcePool. Generation must match
// the slot's current generation for the handle to resolve.
type ResourceHandle struct {
	Index      uint32
	Generation uint32
}

var InvalidResource = ResourceHandle{Index: InvalidIndex}

func (h ResourceHandle) IsValid() bool {
	return h.Index != InvalidIndex
}

type BufferHandle struct{ ResourceHandle }

type TextureHandle struct{ ResourceHandle }

type SamplerHandle struct{ ResourceHandle }

type ShaderStateHandle struct{ ResourceHandle }

type DescriptorSetLayoutHandle struct{ ResourceHandle }

type DescriptorSetHandle struct{ ResourceHandle }

type PipelineHandle struct{ ResourceHandle }

type RenderPassHandle struct{ ResourceHandle }

type FramebufferHandle struct{ ResourceHandle }

var (
	InvalidBuffer              = BufferHandle{InvalidResource}
	InvalidTexture             = TextureHandle{InvalidResource}
	InvalidSampler             = SamplerHandle{InvalidResource}
	InvalidShaderState         = ShaderStateHandle{InvalidResource}
	InvalidDescriptorSetLayout = DescriptorSetLayoutHandle{InvalidResource}
	InvalidDescriptorSet       = DescriptorSetHandle{InvalidResource}
	InvalidPipeline            = PipelineHandle{InvalidResource}
	InvalidRenderPass          = RenderPassHandle{InvalidResource}
	InvalidFramebuffer         = FramebufferHandle{InvalidResource}
)

// NativeHandle is an opaque backend object (VkBuffer, VkImageView, ...). Zero is the null object.
type NativeHandle uint64

const NullHandle NativeHandle = 0

func (h NativeHandle) IsNull() bool {
	return h == NullHandle
}

// ResourceKind identifies the pool a handle belongs to.
type ResourceKind uint8

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
	ResourceKindSampler
	ResourceKindShaderState
	ResourceKindDescriptorSetLayout
	ResourceKindDescriptorSet
	ResourceKindPipeline
	ResourceKindRenderPass
	ResourceKindFramebuffer
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "buffer"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindSampler:
		return "sampler"
	case ResourceKindShaderState:
		return "shader_state"
	case ResourceKindDescriptorSetLayout:
		return "descriptor_set_layout"
	case ResourceKindDescriptorSet:
		return "descriptor_set"
	case ResourceKindPipeline:
		return "pipeline"
	case ResourceKindRenderPass:
		return "render_pass"
	case ResourceKindFramebuffer:
		return "framebuffer"
	}
	return "unknown"
}
