package gpu

// ResourceState describes how a resource is about to be used. Barriers
// translate pairs of states into layouts, access masks and stages.
type ResourceState uint32

const (
	ResourceStateUndefined               ResourceState = 0
	ResourceStateVertexAndConstantBuffer ResourceState = 0x1
	ResourceStateIndexBuffer             ResourceState = 0x2
	ResourceStateRenderTarget            ResourceState = 0x4
	ResourceStateUnorderedAccess         ResourceState = 0x8
	ResourceStateDepthWrite              ResourceState = 0x10
	ResourceStateDepthRead               ResourceState = 0x20
	ResourceStateNonPixelShaderResource  ResourceState = 0x40
	ResourceStatePixelShaderResource     ResourceState = 0x80
	ResourceStateShaderResource          ResourceState = 0x40 | 0x80
	ResourceStateStreamOut               ResourceState = 0x100
	ResourceStateIndirectArgument        ResourceState = 0x200
	ResourceStateCopyDest                ResourceState = 0x400
	ResourceStateCopySource              ResourceState = 0x800
	ResourceStateGenericRead             ResourceState = 0x1 | 0x2 | 0x40 | 0x80 | 0x200 | 0x800
	ResourceStatePresent                 ResourceState = 0x1000
	ResourceStateCommon                  ResourceState = 0x2000
)

func (s ResourceState) ToImageLayout() ImageLayout {
	switch {
	case s&ResourceStateCopySource != 0:
		return ImageLayoutTransferSrcOptimal
	case s&ResourceStateCopyDest != 0:
		return ImageLayoutTransferDstOptimal
	case s&ResourceStateRenderTarget != 0:
		return ImageLayoutColorAttachmentOptimal
	case s&ResourceStateDepthWrite != 0:
		return ImageLayoutDepthStencilAttachmentOptimal
	case s&ResourceStateDepthRead != 0:
		return ImageLayoutDepthStencilReadOnlyOptimal
	case s&ResourceStateUnorderedAccess != 0:
		return ImageLayoutGeneral
	case s&ResourceStateShaderResource != 0:
		return ImageLayoutShaderReadOnlyOptimal
	case s&ResourceStatePresent != 0:
		return ImageLayoutPresentSrc
	case s == ResourceStateCommon:
		return ImageLayoutGeneral
	}
	return ImageLayoutUndefined
}

func (s ResourceState) ToAccessFlags() AccessFlags {
	var ret AccessFlags
	if s&ResourceStateCopySource != 0 {
		ret |= AccessTransferRead
	}
	if s&ResourceStateCopyDest != 0 {
		ret |= AccessTransferWrite
	}
	if s&ResourceStateVertexAndConstantBuffer != 0 {
		ret |= AccessUniformRead | AccessVertexAttributeRead
	}
	if s&ResourceStateIndexBuffer != 0 {
		ret |= AccessIndexRead
	}
	if s&ResourceStateUnorderedAccess != 0 {
		ret |= AccessShaderRead | AccessShaderWrite
	}
	if s&ResourceStateIndirectArgument != 0 {
		ret |= AccessIndirectCommandRead
	}
	if s&ResourceStateRenderTarget != 0 {
		ret |= AccessColorAttachmentRead | AccessColorAttachmentWrite
	}
	if s&ResourceStateDepthWrite != 0 {
		ret |= AccessDepthStencilWrite | AccessDepthStencilRead
	}
	if s&ResourceStateShaderResource != 0 {
		ret |= AccessShaderRead
	}
	if s&ResourceStatePresent != 0 {
		ret |= AccessMemoryRead
	}
	return ret
}

// DeterminePipelineStages returns the stages that perform the given accesses on a queue.
func DeterminePipelineStages(access AccessFlags, queue QueueType) PipelineStage {
	var flags PipelineStage

	switch queue {
	case QueueGraphics:
		if access&(AccessIndexRead|AccessVertexAttributeRead) != 0 {
			flags |= PipelineStageVertexInput
		}
		if access&(AccessUniformRead|AccessShaderRead|AccessShaderWrite) != 0 {
			flags |= PipelineStageVertexShader | PipelineStageFragmentShader | PipelineStageComputeShader
		}
		if access&AccessInputAttachmentRead != 0 {
			flags |= PipelineStageFragmentShader
		}
		if access&(AccessColorAttachmentRead|AccessColorAttachmentWrite) != 0 {
			flags |= PipelineStageColorAttachmentOutput
		}
		if access&(AccessDepthStencilRead|AccessDepthStencilWrite) != 0 {
			flags |= PipelineStageEarlyFragmentTests | PipelineStageLateFragmentTests
		}
	case QueueCompute:
		if access&(AccessIndexRead|AccessVertexAttributeRead|AccessInputAttachmentRead|
			AccessColorAttachmentRead|AccessColorAttachmentWrite|
			AccessDepthStencilRead|AccessDepthStencilWrite) != 0 {
			return PipelineStageAllCommands
		}
		if access&(AccessUniformRead|AccessShaderRead|AccessShaderWrite) != 0 {
			flags |= PipelineStageComputeShader
		}
	case QueueCopyTransfer:
		return PipelineStageAllCommands
	}

	if access&AccessIndirectCommandRead != 0 {
		flags |= PipelineStageDrawIndirect
	}
	if access&(AccessTransferRead|AccessTransferWrite) != 0 {
		flags |= PipelineStageTransfer
	}
	if access&(AccessHostRead|AccessHostWrite) != 0 {
		flags |= PipelineStageHost
	}
	if flags == 0 {
		flags = PipelineStageTopOfPipe
	}
	return flags
}
