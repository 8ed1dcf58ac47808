package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

// The gpu enums share their values with the Vulkan enumerants, so most
// conversions are plain casts.

const fenceTimeoutNs = ^uint64(0)

func toVkImageType(kind gpu.TextureType) vk.ImageType {
	switch kind {
	case gpu.TextureType1D, gpu.TextureType1DArray:
		return vk.ImageType1d
	case gpu.TextureType3D:
		return vk.ImageType3d
	}
	return vk.ImageType2d
}

func toVkImageViewType(kind gpu.TextureType) vk.ImageViewType {
	switch kind {
	case gpu.TextureType1D:
		return vk.ImageViewType1d
	case gpu.TextureType3D:
		return vk.ImageViewType3d
	case gpu.TextureTypeCube:
		return vk.ImageViewTypeCube
	case gpu.TextureType1DArray:
		return vk.ImageViewType1dArray
	case gpu.TextureType2DArray:
		return vk.ImageViewType2dArray
	case gpu.TextureTypeCubeArray:
		return vk.ImageViewTypeCubeArray
	}
	return vk.ImageViewType2d
}

func aspectFor(format gpu.Format) vk.ImageAspectFlags {
	var aspect vk.ImageAspectFlags
	if format.HasDepth() {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if format.HasStencil() {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if aspect == 0 {
		aspect = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	return aspect
}

func toVkBool(value bool) vk.Bool32 {
	if value {
		return vk.True
	}
	return vk.False
}

func toVkStencilOpState(state gpu.StencilOperationState) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      vk.StencilOp(state.Fail),
		PassOp:      vk.StencilOp(state.Pass),
		DepthFailOp: vk.StencilOp(state.DepthFail),
		CompareOp:   vk.CompareOp(state.Compare),
		CompareMask: state.CompareMask,
		WriteMask:   state.WriteMask,
		Reference:   state.Reference,
	}
}

func toVkClearValue(value gpu.ClearValue) vk.ClearValue {
	var clear vk.ClearValue
	if value.DepthStencil {
		clear.SetDepthStencil(value.DepthStencilValue.Depth, value.DepthStencilValue.Stencil)
	} else {
		clear.SetColor(value.Color[:])
	}
	return clear
}

func toVkBindPoint(point gpu.BindPoint) vk.PipelineBindPoint {
	return vk.PipelineBindPoint(point)
}
