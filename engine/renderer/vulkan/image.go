package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

func imageUsage(creation *gpu.TextureCreation) vk.ImageUsageFlags {
	usage := vk.ImageUsageFlags(vk.ImageUsageSampledBit) |
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) |
		vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	if creation.Flags&gpu.TextureFlagCompute != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if creation.Flags&gpu.TextureFlagRenderTarget != 0 {
		if creation.Format.HasDepthOrStencil() {
			usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		} else {
			usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
		}
	}
	return usage
}

// ImageCreate creates a device local image with a view covering every mip
// and layer. Initial data is uploaded by the device through a staging buffer.
func ImageCreate(context *VulkanContext, creation *gpu.TextureCreation) (*VulkanImage, error) {
	device := context.Device.LogicalDevice
	layers := uint32(1)
	flags := vk.ImageCreateFlags(0)
	if creation.Type == gpu.TextureTypeCube || creation.Type == gpu.TextureTypeCubeArray {
		layers = 6
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	depth := uint32(creation.Depth)
	if depth == 0 || creation.Type != gpu.TextureType3D {
		depth = 1
	}
	mips := uint32(creation.Mipmaps)
	if mips == 0 {
		mips = 1
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: toVkImageType(creation.Type),
		Format:    vk.Format(creation.Format),
		Extent: vk.Extent3D{
			Width:  uint32(creation.Width),
			Height: uint32(creation.Height),
			Depth:  depth,
		},
		MipLevels:     mips,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(creation),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	image := &VulkanImage{Width: uint32(creation.Width), Height: uint32(creation.Height)}
	var handle vk.Image
	if err := check(vk.CreateImage(device, &imageInfo, context.Allocator, &handle), "vkCreateImage"); err != nil {
		return nil, err
	}
	image.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, handle, &requirements)
	memory, err := context.allocate(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		image.Destroy(context)
		return nil, err
	}
	image.Memory = memory
	if err := check(vk.BindImageMemory(device, handle, memory, 0), "vkBindImageMemory"); err != nil {
		image.Destroy(context)
		return nil, err
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: toVkImageViewType(creation.Type),
		Format:   vk.Format(creation.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectFor(creation.Format),
			LevelCount: mips,
			LayerCount: layers,
		},
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(device, &viewInfo, context.Allocator, &view), "vkCreateImageView"); err != nil {
		image.Destroy(context)
		return nil, err
	}
	image.View = view
	return image, nil
}

func (image *VulkanImage) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if image.View != nil {
		vk.DestroyImageView(device, image.View, context.Allocator)
		image.View = nil
	}
	if image.Handle != nil {
		vk.DestroyImage(device, image.Handle, context.Allocator)
		image.Handle = nil
	}
	if image.Memory != nil {
		vk.FreeMemory(device, image.Memory, context.Allocator)
		image.Memory = nil
	}
}

func SamplerCreate(context *VulkanContext, creation *gpu.SamplerCreation) (vk.Sampler, error) {
	anisotropy := context.Device.Features.SamplerAnisotropy == vk.True
	maxAnisotropy := float32(1)
	if anisotropy {
		maxAnisotropy = context.Device.Properties.Limits.MaxSamplerAnisotropy
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vk.Filter(creation.MagFilter),
		MinFilter:        vk.Filter(creation.MinFilter),
		MipmapMode:       vk.SamplerMipmapMode(creation.MipFilter),
		AddressModeU:     vk.SamplerAddressMode(creation.AddressModeU),
		AddressModeV:     vk.SamplerAddressMode(creation.AddressModeV),
		AddressModeW:     vk.SamplerAddressMode(creation.AddressModeW),
		AnisotropyEnable: toVkBool(anisotropy),
		MaxAnisotropy:    maxAnisotropy,
		CompareOp:        vk.CompareOpAlways,
		MaxLod:           16,
		BorderColor:      vk.BorderColorIntOpaqueBlack,
	}
	var sampler vk.Sampler
	if err := check(vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler), "vkCreateSampler"); err != nil {
		return nil, err
	}
	return sampler, nil
}
