package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// One fence per frame in flight, signaled by that frame's submission.
	InFlightFences []*VulkanFence
	// Submitted tracks which fences have work pending.
	Submitted []bool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := vc.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if (typeFilter&(1<<i)) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	err := fmt.Errorf("%w: no memory type matches filter %#x with properties %#x", core.ErrNativeFailure, typeFilter, uint32(propertyFlags))
	core.LogWarn("Unable to find suitable memory type: %v", err)
	return 0, err
}

// allocate finds a memory type for requirements and allocates from it.
func (vc *VulkanContext) allocate(requirements vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	requirements.Deref()
	index, err := vc.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if err != nil {
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if err := check(vk.AllocateMemory(vc.Device.LogicalDevice, &allocateInfo, vc.Allocator, &memory), "vkAllocateMemory"); err != nil {
		return nil, err
	}
	return memory, nil
}
