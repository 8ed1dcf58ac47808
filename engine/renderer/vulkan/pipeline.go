package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

// VulkanPipeline holds a Vulkan pipeline and its layout.
type VulkanPipeline struct {
	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout
	BindPoint      vk.PipelineBindPoint
}

// VulkanPipelineConfig is a pipeline description with every native handle resolved.
type VulkanPipelineConfig struct {
	Desc                 *gpu.NativePipelineDesc
	Renderpass           vk.RenderPass
	DescriptorSetLayouts []vk.DescriptorSetLayout
	Stages               []vk.PipelineShaderStageCreateInfo
}

func createPipelineLayout(context *VulkanContext, layouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}
	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &layout), "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}
	return layout, nil
}

func NewComputePipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	if len(config.Stages) != 1 {
		return nil, fmt.Errorf("%w: compute pipeline %q needs exactly one stage, got %d", core.ErrNativeFailure, config.Desc.Name, len(config.Stages))
	}
	layout, err := createPipelineLayout(context, config.DescriptorSetLayouts)
	if err != nil {
		return nil, err
	}
	outPipeline := &VulkanPipeline{PipelineLayout: layout, BindPoint: vk.PipelineBindPointCompute}

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              config.Stages[0],
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pipelines), "vkCreateComputePipelines"); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.Handle = pipelines[0]
	core.LogDebug("Compute pipeline %q created!", config.Desc.Name)
	return outPipeline, nil
}

func NewGraphicsPipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	desc := config.Desc

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonMode(desc.Rasterization.Fill),
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(desc.Rasterization.CullMode),
		FrontFace:               vk.FrontFace(desc.Rasterization.Front),
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       toVkBool(desc.DepthStencil.DepthEnable),
		DepthWriteEnable:      toVkBool(desc.DepthStencil.DepthWriteEnable),
		DepthCompareOp:        vk.CompareOp(desc.DepthStencil.DepthComparison),
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     toVkBool(desc.DepthStencil.StencilEnable),
	}
	if desc.DepthStencil.StencilEnable {
		depthStencil.Front = toVkStencilOpState(desc.DepthStencil.Front)
		depthStencil.Back = toVkStencilOpState(desc.DepthStencil.Back)
	}

	blendAttachments := blendAttachmentStates(desc)
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexInput.Streams))
	for i, stream := range desc.VertexInput.Streams {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   uint32(stream.Binding),
			Stride:    uint32(stream.Stride),
			InputRate: vk.VertexInputRate(stream.InputRate),
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexInput.Attributes))
	for i, attribute := range desc.VertexInput.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(attribute.Location),
			Binding:  uint32(attribute.Binding),
			Format:   vk.Format(attribute.Format),
			Offset:   attribute.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	layout, err := createPipelineLayout(context, config.DescriptorSetLayouts)
	if err != nil {
		return nil, err
	}
	outPipeline := &VulkanPipeline{PipelineLayout: layout, BindPoint: vk.PipelineBindPointGraphics}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout,
		RenderPass:          config.Renderpass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateGraphicsPipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pipelines), "vkCreateGraphicsPipelines"); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.Handle = pipelines[0]

	core.LogDebug("Graphics pipeline %q created!", desc.Name)
	return outPipeline, nil
}

// blendAttachmentStates returns one state per color output. Outputs without
// an explicit blend state write all channels unblended.
func blendAttachmentStates(desc *gpu.NativePipelineDesc) []vk.PipelineColorBlendAttachmentState {
	count := int(desc.Output.NumColorFormats)
	if len(desc.BlendState.States) > count {
		count = len(desc.BlendState.States)
	}
	states := make([]vk.PipelineColorBlendAttachmentState, count)
	for i := range states {
		if i >= len(desc.BlendState.States) {
			states[i] = vk.PipelineColorBlendAttachmentState{
				BlendEnable:    vk.False,
				ColorWriteMask: vk.ColorComponentFlags(gpu.ColorWriteAll),
			}
			continue
		}
		blend := desc.BlendState.States[i]
		state := vk.PipelineColorBlendAttachmentState{
			BlendEnable:         toVkBool(blend.BlendEnabled),
			SrcColorBlendFactor: vk.BlendFactor(blend.SourceColor),
			DstColorBlendFactor: vk.BlendFactor(blend.DestinationColor),
			ColorBlendOp:        vk.BlendOp(blend.ColorOperation),
			SrcAlphaBlendFactor: vk.BlendFactor(blend.SourceColor),
			DstAlphaBlendFactor: vk.BlendFactor(blend.DestinationColor),
			AlphaBlendOp:        vk.BlendOp(blend.ColorOperation),
			ColorWriteMask:      vk.ColorComponentFlags(blend.ColorWriteMask),
		}
		if blend.SeparateBlend {
			state.SrcAlphaBlendFactor = vk.BlendFactor(blend.SourceAlpha)
			state.DstAlphaBlendFactor = vk.BlendFactor(blend.DestinationAlpha)
			state.AlphaBlendOp = vk.BlendOp(blend.AlphaOperation)
		}
		states[i] = state
	}
	return states
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	if pipeline.Handle != nil {
		vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
		pipeline.Handle = nil
	}
	if pipeline.PipelineLayout != nil {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
		pipeline.PipelineLayout = nil
	}
}
