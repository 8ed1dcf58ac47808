package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

func initialLayout(op gpu.LoadOp, loaded vk.ImageLayout) vk.ImageLayout {
	if op == gpu.LoadOpLoad {
		return loaded
	}
	// Do not expect any particular layout before render pass starts.
	return vk.ImageLayoutUndefined
}

// RenderpassCreate builds a single-subpass render pass from an output
// description. The device caches the result per output.
func RenderpassCreate(context *VulkanContext, output *gpu.RenderPassOutput, name string) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, output.NumColorFormats+1)
	colorReferences := make([]vk.AttachmentReference, 0, output.NumColorFormats)

	for i := uint32(0); i < output.NumColorFormats; i++ {
		finalLayout := vk.ImageLayout(output.ColorFinalLayouts[i])
		if finalLayout == vk.ImageLayoutUndefined {
			finalLayout = vk.ImageLayoutColorAttachmentOptimal
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(output.ColorFormats[i]),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOp(output.ColorOperations[i]),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout(output.ColorOperations[i], vk.ImageLayoutColorAttachmentOptimal),
			FinalLayout:    finalLayout,
		})
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: i,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	if output.DepthStencilFormat != gpu.FormatUndefined {
		finalLayout := vk.ImageLayout(output.DepthStencilFinalLayout)
		if finalLayout == vk.ImageLayoutUndefined {
			finalLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(output.DepthStencilFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOp(output.DepthOperation),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOp(output.StencilOperation),
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout(output.DepthOperation, vk.ImageLayoutDepthStencilAttachmentOptimal),
			FinalLayout:    finalLayout,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: output.NumColorFormats,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if err := check(vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass), "vkCreateRenderPass"); err != nil {
		return nil, err
	}
	core.LogDebug("render pass %q created with %d attachments", name, len(attachments))
	return pRenderPass, nil
}

// expandClearValues places the compact clear list at the positions of the
// attachments whose load op is clear.
func expandClearValues(info *gpu.RenderPassBeginInfo) []vk.ClearValue {
	if len(info.ClearValues) == 0 {
		return nil
	}
	values := make([]vk.ClearValue, len(info.AttachmentLoadOps))
	next := 0
	for i, op := range info.AttachmentLoadOps {
		if op != gpu.LoadOpClear || next >= len(info.ClearValues) {
			continue
		}
		values[i] = toVkClearValue(info.ClearValues[next])
		next++
	}
	return values
}

func RenderpassBegin(commandBuffer vk.CommandBuffer, renderPass vk.RenderPass, framebuffer vk.Framebuffer, info *gpu.RenderPassBeginInfo) {
	clearValues := expandClearValues(info)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.RenderArea.X, Y: info.RenderArea.Y},
			Extent: vk.Extent2D{Width: info.RenderArea.Width, Height: info.RenderArea.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	contents := vk.SubpassContentsInline
	if info.Secondary {
		contents = vk.SubpassContentsSecondaryCommandBuffers
	}
	vk.CmdBeginRenderPass(commandBuffer, &beginInfo, contents)
}
