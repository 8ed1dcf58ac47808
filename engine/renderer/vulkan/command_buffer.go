package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer records into one native command buffer. It implements
// gpu.CommandRecorder.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State     VulkanCommandBufferState
	Secondary bool

	pool    vk.CommandPool
	objects *objectPool
	markers []string
}

func NewVulkanCommandBuffer(context *VulkanContext, objects *objectPool, pool vk.CommandPool, secondary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State:     COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		Secondary: secondary,
		pool:      pool,
		objects:   objects,
	}

	level := vk.CommandBufferLevelPrimary
	if secondary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext) {
	if v.Handle != nil {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(inheritance *gpu.Inheritance) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if v.Secondary {
		info := vk.CommandBufferInheritanceInfo{
			SType: vk.StructureTypeCommandBufferInheritanceInfo,
		}
		if inheritance != nil {
			info.RenderPass = lookup[vk.RenderPass](v.objects, inheritance.RenderPass)
			if fb := lookup[*VulkanFramebuffer](v.objects, inheritance.Framebuffer); fb != nil {
				info.Framebuffer = fb.Handle
			}
			beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
		}
		beginInfo.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{info}
	}

	if err := check(vk.BeginCommandBuffer(v.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := check(vk.EndCommandBuffer(v.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := check(vk.ResetCommandBuffer(v.Handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	v.markers = v.markers[:0]
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) BeginRenderPass(info *gpu.RenderPassBeginInfo) {
	var framebuffer vk.Framebuffer
	if fb := lookup[*VulkanFramebuffer](v.objects, info.Framebuffer); fb != nil {
		framebuffer = fb.Handle
	}
	RenderpassBegin(v.Handle, lookup[vk.RenderPass](v.objects, info.RenderPass), framebuffer, info)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) BeginRendering(_ *gpu.RenderingInfo) {
	err := fmt.Errorf("%w: dynamic rendering", core.ErrUnsupported)
	core.LogError("%v", err)
	panic(err)
}

func (v *VulkanCommandBuffer) EndRendering() {
	err := fmt.Errorf("%w: dynamic rendering", core.ErrUnsupported)
	core.LogError("%v", err)
	panic(err)
}

func (v *VulkanCommandBuffer) BindPipeline(bindPoint gpu.BindPoint, pipeline gpu.NativeHandle) {
	p := lookup[*VulkanPipeline](v.objects, pipeline)
	if p == nil {
		core.LogWarn("bind of unknown pipeline %d ignored", pipeline)
		return
	}
	vk.CmdBindPipeline(v.Handle, toVkBindPoint(bindPoint), p.Handle)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(binding uint32, buffer gpu.NativeHandle, offset uint64) {
	b := lookup[*VulkanBuffer](v.objects, buffer)
	if b == nil {
		core.LogWarn("bind of unknown vertex buffer %d ignored", buffer)
		return
	}
	vk.CmdBindVertexBuffers(v.Handle, binding, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer gpu.NativeHandle, offset uint64, indexType gpu.IndexType) {
	b := lookup[*VulkanBuffer](v.objects, buffer)
	if b == nil {
		core.LogWarn("bind of unknown index buffer %d ignored", buffer)
		return
	}
	vk.CmdBindIndexBuffer(v.Handle, b.Handle, vk.DeviceSize(offset), vk.IndexType(indexType))
}

func (v *VulkanCommandBuffer) BindDescriptorSets(bindPoint gpu.BindPoint, layout gpu.NativeHandle, firstSet uint32, sets []gpu.NativeHandle, dynamicOffsets []uint32) {
	native := make([]vk.DescriptorSet, len(sets))
	for i, set := range sets {
		native[i] = lookup[vk.DescriptorSet](v.objects, set)
	}
	vk.CmdBindDescriptorSets(v.Handle, toVkBindPoint(bindPoint), lookup[vk.PipelineLayout](v.objects, layout),
		firstSet, uint32(len(native)), native, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (v *VulkanCommandBuffer) SetViewport(viewport gpu.NativeViewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(rect gpu.Rect2DInt) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: rect.X, Y: rect.Y},
		Extent: vk.Extent2D{Width: rect.Width, Height: rect.Height},
	}})
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndirect(buffer gpu.NativeHandle, offset uint64, drawCount, stride uint32) {
	if b := lookup[*VulkanBuffer](v.objects, buffer); b != nil {
		vk.CmdDrawIndirect(v.Handle, b.Handle, vk.DeviceSize(offset), drawCount, stride)
	}
}

func (v *VulkanCommandBuffer) DrawIndexedIndirect(buffer gpu.NativeHandle, offset uint64, drawCount, stride uint32) {
	if b := lookup[*VulkanBuffer](v.objects, buffer); b != nil {
		vk.CmdDrawIndexedIndirect(v.Handle, b.Handle, vk.DeviceSize(offset), drawCount, stride)
	}
}

func (v *VulkanCommandBuffer) Dispatch(groupX, groupY, groupZ uint32) {
	vk.CmdDispatch(v.Handle, groupX, groupY, groupZ)
}

func (v *VulkanCommandBuffer) DispatchIndirect(buffer gpu.NativeHandle, offset uint64) {
	if b := lookup[*VulkanBuffer](v.objects, buffer); b != nil {
		vk.CmdDispatchIndirect(v.Handle, b.Handle, vk.DeviceSize(offset))
	}
}

func (v *VulkanCommandBuffer) PipelineBarrier(barrier *gpu.NativeBarrier) {
	images := make([]vk.ImageMemoryBarrier, 0, len(barrier.Images))
	for _, ib := range barrier.Images {
		image := lookup[*VulkanImage](v.objects, ib.Image)
		if image == nil {
			continue
		}
		aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
		if ib.Depth {
			aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		}
		mips, layers := ib.MipCount, ib.LayerCount
		if mips == 0 {
			mips = 1
		}
		if layers == 0 {
			layers = 1
		}
		images = append(images, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(ib.SrcAccess),
			DstAccessMask:       vk.AccessFlags(ib.DstAccess),
			OldLayout:           vk.ImageLayout(ib.OldLayout),
			NewLayout:           vk.ImageLayout(ib.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:   aspect,
				BaseMipLevel: ib.BaseMip,
				LevelCount:   mips,
				LayerCount:   layers,
			},
		})
	}

	buffers := make([]vk.BufferMemoryBarrier, 0, len(barrier.Buffers))
	for _, bb := range barrier.Buffers {
		buffer := lookup[*VulkanBuffer](v.objects, bb.Buffer)
		if buffer == nil {
			continue
		}
		size := vk.DeviceSize(bb.Size)
		if size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		buffers = append(buffers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(bb.SrcAccess),
			DstAccessMask:       vk.AccessFlags(bb.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buffer.Handle,
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                size,
		})
	}

	vk.CmdPipelineBarrier(v.Handle,
		vk.PipelineStageFlags(barrier.SrcStage), vk.PipelineStageFlags(barrier.DstStage), 0,
		0, nil,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

func (v *VulkanCommandBuffer) FillBuffer(buffer gpu.NativeHandle, offset, size uint64, data uint32) {
	if b := lookup[*VulkanBuffer](v.objects, buffer); b != nil {
		vk.CmdFillBuffer(v.Handle, b.Handle, vk.DeviceSize(offset), vk.DeviceSize(size), data)
	}
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst gpu.NativeHandle, regions []gpu.BufferCopy) {
	source := lookup[*VulkanBuffer](v.objects, src)
	destination := lookup[*VulkanBuffer](v.objects, dst)
	if source == nil || destination == nil {
		core.LogWarn("buffer copy %d -> %d ignored: unknown buffer", src, dst)
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(v.Handle, source.Handle, destination.Handle, uint32(len(copies)), copies)
}

func colorLayers(mip uint32) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:   mip,
		LayerCount: 1,
	}
}

func (v *VulkanCommandBuffer) CopyBufferToImage(src, dst gpu.NativeHandle, layout gpu.ImageLayout, region gpu.BufferImageCopy) {
	source := lookup[*VulkanBuffer](v.objects, src)
	destination := lookup[*VulkanImage](v.objects, dst)
	if source == nil || destination == nil {
		core.LogWarn("buffer to image copy %d -> %d ignored: unknown resource", src, dst)
		return
	}
	vk.CmdCopyBufferToImage(v.Handle, source.Handle, destination.Handle, vk.ImageLayout(layout), 1, []vk.BufferImageCopy{{
		BufferOffset:     vk.DeviceSize(region.BufferOffset),
		ImageSubresource: colorLayers(region.MipLevel),
		ImageExtent:      vk.Extent3D{Width: region.Width, Height: region.Height, Depth: region.Depth},
	}})
}

func (v *VulkanCommandBuffer) CopyImage(src gpu.NativeHandle, srcLayout gpu.ImageLayout, dst gpu.NativeHandle, dstLayout gpu.ImageLayout, region gpu.ImageCopy) {
	source := lookup[*VulkanImage](v.objects, src)
	destination := lookup[*VulkanImage](v.objects, dst)
	if source == nil || destination == nil {
		core.LogWarn("image copy %d -> %d ignored: unknown image", src, dst)
		return
	}
	vk.CmdCopyImage(v.Handle, source.Handle, vk.ImageLayout(srcLayout), destination.Handle, vk.ImageLayout(dstLayout), 1, []vk.ImageCopy{{
		SrcSubresource: colorLayers(region.MipLevel),
		DstSubresource: colorLayers(region.MipLevel),
		Extent:         vk.Extent3D{Width: region.Width, Height: region.Height, Depth: region.Depth},
	}})
}

// PushMarker tracks debug regions. The loaded bindings do not expose the
// debug utils label commands, so markers only reach the log.
func (v *VulkanCommandBuffer) PushMarker(name string) {
	v.markers = append(v.markers, name)
	core.LogDebug("begin marker %q (depth %d)", name, len(v.markers))
}

func (v *VulkanCommandBuffer) PopMarker() {
	if len(v.markers) == 0 {
		return
	}
	name := v.markers[len(v.markers)-1]
	v.markers = v.markers[:len(v.markers)-1]
	core.LogDebug("end marker %q", name)
}
