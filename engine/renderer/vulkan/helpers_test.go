package vulkan

import (
	"encoding/binary"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

func TestSpirvWords(t *testing.T) {
	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010000)

	words, err := spirvWords(code)
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0x00010000}, words)

	_, err = spirvWords(code[:6])
	assert.ErrorIs(t, err, core.ErrNativeFailure)

	_, err = spirvWords(nil)
	assert.ErrorIs(t, err, core.ErrNativeFailure)

	binary.LittleEndian.PutUint32(code, 0xdeadbeef)
	_, err = spirvWords(code)
	assert.ErrorIs(t, err, core.ErrNativeFailure)
}

func TestExpandClearValuesPlacesByAttachment(t *testing.T) {
	info := &gpu.RenderPassBeginInfo{
		ClearValues: []gpu.ClearValue{
			{Color: gpu.ClearColor{1, 0, 0, 1}},
			{DepthStencil: true, DepthStencilValue: gpu.ClearDepthStencil{Depth: 1}},
		},
		AttachmentLoadOps: []gpu.LoadOp{gpu.LoadOpClear, gpu.LoadOpLoad, gpu.LoadOpClear},
	}

	values := expandClearValues(info)
	require.Len(t, values, 3)
	assert.NotEqual(t, vk.ClearValue{}, values[0])
	assert.Equal(t, vk.ClearValue{}, values[1])
	assert.NotEqual(t, vk.ClearValue{}, values[2])

	assert.Nil(t, expandClearValues(&gpu.RenderPassBeginInfo{AttachmentLoadOps: []gpu.LoadOp{gpu.LoadOpLoad}}))
}

func TestObjectPoolLookupAndTake(t *testing.T) {
	p := newObjectPool()
	buffer := &VulkanBuffer{Size: 64}
	h := p.put(buffer)
	require.False(t, h.IsNull())

	assert.Same(t, buffer, lookup[*VulkanBuffer](p, h))
	assert.Nil(t, lookup[*VulkanImage](p, h), "wrong type resolves to the zero value")
	assert.Nil(t, lookup[*VulkanBuffer](p, gpu.NullHandle))
	assert.Nil(t, lookup[*VulkanBuffer](p, h+100))

	other := p.put(&VulkanImage{Width: 4})
	assert.NotEqual(t, h, other)
	assert.Equal(t, 2, p.len())

	taken, ok := take[*VulkanBuffer](p, h)
	require.True(t, ok)
	assert.Same(t, buffer, taken)
	assert.Equal(t, 1, p.len())

	_, ok = take[*VulkanBuffer](p, h)
	assert.False(t, ok)
}

func TestVulkanResultIsSuccess(t *testing.T) {
	assert.True(t, VulkanResultIsSuccess(vk.Success))
	assert.True(t, VulkanResultIsSuccess(vk.Incomplete))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfDeviceMemory))
	assert.ErrorIs(t, check(vk.ErrorDeviceLost, "vkQueueSubmit"), core.ErrNativeFailure)
	assert.NoError(t, check(vk.Success, "vkQueueSubmit"))
}

func TestCString(t *testing.T) {
	assert.Equal(t, "VK_LAYER", cString([]byte{'V', 'K', '_', 'L', 'A', 'Y', 'E', 'R', 0, 'x'}))
	assert.Equal(t, "abc", cString([]byte("abc")))
}

func TestLayoutBindingsFlagBindlessBindings(t *testing.T) {
	desc := &gpu.NativeDescriptorSetLayoutDesc{
		Bindings: []gpu.DescriptorBinding{
			{Type: gpu.DescriptorTypeCombinedImageSampler, Index: 10, Count: 1024},
			{Type: gpu.DescriptorTypeStorageImage, Index: 11, Count: 1024},
		},
		Bindless: true,
	}
	bindings, flags := layoutBindings(desc)
	require.Len(t, bindings, 2)
	require.Len(t, flags, 2)
	assert.Equal(t, uint32(10), bindings[0].Binding)
	assert.Equal(t, uint32(1024), bindings[1].DescriptorCount)
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageAll), bindings[0].StageFlags)
	for _, f := range flags {
		assert.Equal(t, vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit|vk.DescriptorBindingUpdateAfterBindBit), f)
	}

	desc.Bindless = false
	desc.Stages = gpu.ShaderStageCompute
	desc.Bindings = []gpu.DescriptorBinding{{Type: gpu.DescriptorTypeUniformBuffer, Index: 0}}
	bindings, flags = layoutBindings(desc)
	assert.Nil(t, flags)
	require.Len(t, bindings, 1)
	assert.Equal(t, uint32(1), bindings[0].DescriptorCount)
	assert.Equal(t, vk.ShaderStageFlags(gpu.ShaderStageCompute), bindings[0].StageFlags)
}

func TestPoolCreateFlags(t *testing.T) {
	assert.Zero(t, poolCreateFlags(&gpu.DescriptorPoolConfig{}))
	assert.Equal(t, vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		poolCreateFlags(&gpu.DescriptorPoolConfig{FreeIndividual: true}))
	assert.Equal(t, vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit|vk.DescriptorPoolCreateUpdateAfterBindBit),
		poolCreateFlags(&gpu.DescriptorPoolConfig{FreeIndividual: true, UpdateAfterBind: true}))
}

func TestBindlessLayoutNeedsDescriptorIndexing(t *testing.T) {
	context := &VulkanContext{Device: &VulkanDevice{}}
	_, err := DescriptorSetLayoutCreate(context, &gpu.NativeDescriptorSetLayoutDesc{Bindless: true})
	assert.ErrorIs(t, err, core.ErrUnsupported)

	_, err = DescriptorPoolCreate(context, &gpu.DescriptorPoolConfig{UpdateAfterBind: true})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}
