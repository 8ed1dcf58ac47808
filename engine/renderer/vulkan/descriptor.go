package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

func DescriptorSetLayoutCreate(context *VulkanContext, desc *gpu.NativeDescriptorSetLayoutDesc) (vk.DescriptorSetLayout, error) {
	if desc.Bindless && !context.Device.DescriptorIndexing {
		return nil, fmt.Errorf("%w: bindless descriptor set layouts need descriptor indexing", core.ErrUnsupported)
	}
	bindings, bindingFlags := layoutBindings(desc)

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if desc.Bindless {
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(bindingFlags)),
			PBindingFlags: bindingFlags,
		}
		cFlagsInfo, _ := flagsInfo.PassRef()
		defer flagsInfo.Free()
		layoutInfo.PNext = unsafe.Pointer(cFlagsInfo)
		layoutInfo.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit)
	}

	var layout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return layout, nil
}

// layoutBindings converts the bindings of desc. Bindless layouts also get
// one partially bound, update-after-bind flag per binding.
func layoutBindings(desc *gpu.NativeDescriptorSetLayoutDesc) ([]vk.DescriptorSetLayoutBinding, []vk.DescriptorBindingFlags) {
	stages := vk.ShaderStageFlags(desc.Stages)
	if stages == 0 {
		stages = vk.ShaderStageFlags(vk.ShaderStageAll)
	}

	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	var flags []vk.DescriptorBindingFlags
	if desc.Bindless {
		flags = make([]vk.DescriptorBindingFlags, len(desc.Bindings))
	}
	for i, binding := range desc.Bindings {
		count := uint32(binding.Count)
		if count == 0 {
			count = 1
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(binding.Index),
			DescriptorType:  vk.DescriptorType(binding.Type),
			DescriptorCount: count,
			StageFlags:      stages,
		}
		if desc.Bindless {
			flags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingUpdateAfterBindBit)
		}
	}
	return bindings, flags
}

func DescriptorPoolCreate(context *VulkanContext, config *gpu.DescriptorPoolConfig) (vk.DescriptorPool, error) {
	if config.UpdateAfterBind && !context.Device.DescriptorIndexing {
		return nil, fmt.Errorf("%w: update-after-bind descriptor pools need descriptor indexing", core.ErrUnsupported)
	}
	sizes := make([]vk.DescriptorPoolSize, len(config.Sizes))
	for i, size := range config.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(size.Type),
			DescriptorCount: size.Count,
		}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         poolCreateFlags(config),
		MaxSets:       config.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	return pool, nil
}

func poolCreateFlags(config *gpu.DescriptorPoolConfig) vk.DescriptorPoolCreateFlags {
	var flags vk.DescriptorPoolCreateFlags
	if config.FreeIndividual {
		flags |= vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)
	}
	if config.UpdateAfterBind {
		flags |= vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit)
	}
	return flags
}

func DescriptorSetAllocate(context *VulkanContext, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocateInfo, &set), "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return set, nil
}

// descriptorWrites converts batched writes into Vulkan writes, resolving
// every native handle through objects.
func descriptorWrites(objects *objectPool, writes []gpu.DescriptorWrite) []vk.WriteDescriptorSet {
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          lookup[vk.DescriptorSet](objects, w.Set),
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		switch {
		case w.Type.IsBuffer():
			buffer := lookup[*VulkanBuffer](objects, w.Buffer)
			if buffer == nil {
				core.LogWarn("descriptor write to binding %d skipped: unknown buffer", w.Binding)
				continue
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		case w.Type.IsImage() || w.Type == gpu.DescriptorTypeSampler:
			info := vk.DescriptorImageInfo{
				Sampler:     lookup[vk.Sampler](objects, w.Sampler),
				ImageLayout: vk.ImageLayout(w.ImageLayout),
			}
			if image := lookup[*VulkanImage](objects, w.ImageView); image != nil {
				info.ImageView = image.View
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		default:
			core.LogWarn("descriptor write to binding %d skipped: unsupported type %d", w.Binding, w.Type)
			continue
		}
		out = append(out, write)
	}
	return out
}
