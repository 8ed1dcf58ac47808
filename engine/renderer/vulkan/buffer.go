package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Mapped []byte
}

// bufferCreate allocates a buffer and its memory. Staging, dynamic and
// persistent buffers live in host visible memory and stay mapped.
func bufferCreate(context *VulkanContext, creation *gpu.BufferCreation) (*VulkanBuffer, error) {
	size := uint64(creation.Size)
	if size == 0 {
		size = 4
	}
	usage := vk.BufferUsageFlags(creation.TypeFlags) |
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit) |
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	device := context.Device.LogicalDevice
	if err := check(vk.CreateBuffer(device, &bufferInfo, context.Allocator, &handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	hostVisible := !creation.DeviceOnly && (creation.Persistent || creation.Usage != gpu.ResourceUsageImmutable || creation.InitialData != nil)
	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if hostVisible {
		flags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, handle, &requirements)
	memory, err := context.allocate(requirements, flags)
	if err != nil {
		vk.DestroyBuffer(device, handle, context.Allocator)
		return nil, err
	}
	if err := check(vk.BindBufferMemory(device, handle, memory, 0), "vkBindBufferMemory"); err != nil {
		vk.FreeMemory(device, memory, context.Allocator)
		vk.DestroyBuffer(device, handle, context.Allocator)
		return nil, err
	}

	buffer := &VulkanBuffer{Handle: handle, Memory: memory, Size: size}
	if !hostVisible {
		if creation.InitialData != nil {
			core.LogWarn("buffer %q is device only, initial data must be uploaded through a staging buffer", creation.Name)
		}
		return buffer, nil
	}

	var data unsafe.Pointer
	if err := check(vk.MapMemory(device, memory, 0, vk.DeviceSize(size), 0, &data), "vkMapMemory"); err != nil {
		buffer.destroy(context)
		return nil, err
	}
	buffer.Mapped = unsafe.Slice((*byte)(data), size)
	copy(buffer.Mapped, creation.InitialData)

	// Only persistent, dynamic and staging buffers keep their mapping.
	if !creation.Persistent && creation.Usage == gpu.ResourceUsageImmutable {
		vk.UnmapMemory(device, memory)
		buffer.Mapped = nil
	}
	return buffer, nil
}

func (b *VulkanBuffer) destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if b.Mapped != nil {
		vk.UnmapMemory(device, b.Memory)
		b.Mapped = nil
	}
	if b.Handle != nil {
		vk.DestroyBuffer(device, b.Handle, context.Allocator)
		b.Handle = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(device, b.Memory, context.Allocator)
		b.Memory = nil
	}
}
