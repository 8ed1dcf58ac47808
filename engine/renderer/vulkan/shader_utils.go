package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

const spirvMagic = 0x07230203

// spirvWords reinterprets SPIR-V bytecode as words, checking the magic number.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: spir-v size %d is not a positive multiple of 4", core.ErrNativeFailure, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: bad spir-v magic %#x", core.ErrNativeFailure, words[0])
	}
	return words, nil
}

func NewShaderModule(context *VulkanContext, stage gpu.ShaderStageCode) (vk.ShaderModule, error) {
	words, err := spirvWords(stage.Code)
	if err != nil {
		core.LogError("unable to read %s shader module: %v", stage.Stage, err)
		return nil, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(stage.Code)),
		PCode:    words,
	}

	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return nil, err
	}
	return module, nil
}

func shaderStageInfo(stage gpu.ShaderStage, module vk.ShaderModule) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(stage),
		Module: module,
		PName:  VulkanSafeString("main"),
	}
}
