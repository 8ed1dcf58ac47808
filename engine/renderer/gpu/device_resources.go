package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func obtainSlot[T any](d *Device, group LockGroup, kind ResourceKind, pool *ResourcePool[T], name string) (ResourceHandle, bool) {
	var h ResourceHandle
	d.locks.With(group, func() {
		h = pool.Obtain()
	})
	if !h.IsValid() {
		d.log.Error("resource pool exhausted", "kind", kind, "name", name, "capacity", pool.Capacity(), "err", core.ErrPoolExhausted)
		return h, false
	}
	return h, true
}

func releaseSlot[T any](d *Device, group LockGroup, pool *ResourcePool[T], h ResourceHandle) {
	d.locks.With(group, func() {
		pool.Release(h)
	})
}

func accessSlot[T any](d *Device, group LockGroup, pool *ResourcePool[T], h ResourceHandle) *T {
	var item *T
	d.locks.With(group, func() {
		item = pool.Access(h)
	})
	return item
}

// Buffers

// CreateBuffer creates a buffer. Dynamic vertex, index and uniform buffers
// become aliases of the per-frame dynamic buffer and own no native object.
func (d *Device) CreateBuffer(creation *BufferCreation) BufferHandle {
	h, ok := obtainSlot(d, BufferManagement, ResourceKindBuffer, d.buffers, creation.Name)
	if !ok {
		return InvalidBuffer
	}
	handle := BufferHandle{h}

	buffer := d.buffers.Access(h)
	*buffer = Buffer{
		TypeFlags:    creation.TypeFlags,
		Usage:        creation.Usage,
		Size:         creation.Size,
		Handle:       handle,
		ParentBuffer: InvalidBuffer,
		Name:         core.DebugName("buffer", creation.Name),
	}

	aliasable := creation.TypeFlags&(BufferUsageVertex|BufferUsageIndex|BufferUsageUniform) != 0
	if creation.Usage == ResourceUsageDynamic && aliasable && d.dynamic.buffer.IsValid() {
		buffer.ParentBuffer = d.dynamic.buffer
		d.log.Debug("created dynamic buffer", "name", buffer.Name, "size", creation.Size)
		return handle
	}

	native, err := d.backend.CreateBuffer(creation)
	if err != nil {
		releaseSlot(d, BufferManagement, d.buffers, h)
		ifPanic(err)
	}
	buffer.Native = native.Buffer
	buffer.Memory = native.Memory
	buffer.MappedData = native.Mapped

	d.log.Debug("created buffer", "name", buffer.Name, "size", creation.Size, "usage", creation.Usage)
	return handle
}

func (d *Device) AccessBuffer(h BufferHandle) *Buffer {
	return accessSlot(d, BufferManagement, d.buffers, h.ResourceHandle)
}

// DestroyBuffer queues the buffer for destruction once no frame in flight can use it.
func (d *Device) DestroyBuffer(h BufferHandle) {
	d.deferDestroy(ResourceKindBuffer, h.ResourceHandle, d.AccessBuffer(h) != nil)
}

func (d *Device) DestroyBufferInstant(h BufferHandle) {
	d.locks.With(BufferManagement, func() {
		buffer := d.buffers.Access(h.ResourceHandle)
		if buffer == nil {
			return
		}
		if !buffer.IsAlias() && !buffer.Native.IsNull() {
			d.backend.DestroyBuffer(NativeBuffer{Buffer: buffer.Native, Memory: buffer.Memory, Mapped: buffer.MappedData})
		}
		d.buffers.Release(h.ResourceHandle)
	})
}

func (d *Device) QueryBuffer(h BufferHandle) (BufferDescription, bool) {
	buffer := d.AccessBuffer(h)
	if buffer == nil {
		return BufferDescription{}, false
	}
	return BufferDescription{
		Native:       buffer.Native,
		Name:         buffer.Name,
		TypeFlags:    buffer.TypeFlags,
		Usage:        buffer.Usage,
		Size:         buffer.Size,
		ParentHandle: buffer.ParentBuffer,
	}, true
}

// MapBuffer returns writable memory for a buffer. Dynamic aliases receive a
// fresh range of the current frame's dynamic memory and their global offset
// is moved to it. Returns nil when the buffer cannot be mapped.
func (d *Device) MapBuffer(params MapBufferParameters) []byte {
	var data []byte
	d.locks.With(BufferManagement, func() {
		buffer := d.buffers.Access(params.Buffer.ResourceHandle)
		if buffer == nil {
			return
		}
		size := params.Size
		if size == 0 {
			size = buffer.Size
		}

		if buffer.IsAlias() && buffer.ParentBuffer == d.dynamic.buffer {
			offset, mapped, ok := d.dynamic.allocate(size)
			if !ok {
				d.log.Error("dynamic buffer exhausted for this frame", "buffer", buffer.Name, "size", size, "used", d.dynamic.used())
				return
			}
			buffer.GlobalOffset = offset
			data = mapped
			return
		}

		if buffer.MappedData == nil || uint64(params.Offset)+uint64(size) > uint64(len(buffer.MappedData)) {
			return
		}
		data = buffer.MappedData[params.Offset : params.Offset+size]
	})
	if data == nil {
		d.log.Warn("buffer cannot be mapped", "index", params.Buffer.Index)
	}
	return data
}

// UnmapBuffer ends a MapBuffer. Mappings are persistent, so only the handle is checked.
func (d *Device) UnmapBuffer(params MapBufferParameters) {
	if d.AccessBuffer(params.Buffer) == nil {
		d.log.Warn("unmapping a dead buffer", "index", params.Buffer.Index)
	}
}

// DynamicAllocate reserves size bytes of the current frame's dynamic memory
// and returns their offset in the dynamic buffer.
func (d *Device) DynamicAllocate(size uint32) (uint32, []byte) {
	var (
		offset uint32
		data   []byte
		ok     bool
	)
	d.locks.With(BufferManagement, func() {
		offset, data, ok = d.dynamic.allocate(size)
	})
	if !ok {
		d.log.Error("dynamic buffer exhausted for this frame", "size", size)
		return 0, nil
	}
	return offset, data
}

func (d *Device) SetBufferGlobalOffset(h BufferHandle, offset uint32) {
	d.locks.With(BufferManagement, func() {
		if buffer := d.buffers.Access(h.ResourceHandle); buffer != nil {
			buffer.GlobalOffset = offset
		}
	})
}

// Textures

func (d *Device) CreateTexture(creation *TextureCreation) TextureHandle {
	h, ok := obtainSlot(d, TextureManagement, ResourceKindTexture, d.textures, creation.Name)
	if !ok {
		return InvalidTexture
	}
	handle := TextureHandle{h}

	native, err := d.backend.CreateTexture(creation)
	if err != nil {
		releaseSlot(d, TextureManagement, d.textures, h)
		ifPanic(err)
	}

	layout := ImageLayoutUndefined
	if creation.InitialData != nil {
		layout = ImageLayoutShaderReadOnlyOptimal
	}
	*d.textures.Access(h) = Texture{
		Image:   native.Image,
		View:    native.View,
		Memory:  native.Memory,
		Format:  creation.Format,
		Layout:  layout,
		Width:   creation.Width,
		Height:  creation.Height,
		Depth:   creation.Depth,
		Mipmaps: creation.Mipmaps,
		Flags:   creation.Flags,
		Type:    creation.Type,
		Handle:  handle,
		Sampler: InvalidSampler,
		Name:    core.DebugName("texture", creation.Name),
	}

	d.queueBindlessTexture(h.Index, handle)
	d.log.Debug("created texture", "name", creation.Name, "width", creation.Width, "height", creation.Height, "format", creation.Format)
	return handle
}

func (d *Device) AccessTexture(h TextureHandle) *Texture {
	return accessSlot(d, TextureManagement, d.textures, h.ResourceHandle)
}

func (d *Device) DestroyTexture(h TextureHandle) {
	d.deferDestroy(ResourceKindTexture, h.ResourceHandle, d.AccessTexture(h) != nil)
}

// DestroyTextureInstant destroys the texture now. Its bindless slot is
// pointed at the dummy texture at the next frame.
func (d *Device) DestroyTextureInstant(h TextureHandle) {
	destroyed := false
	d.locks.With(TextureManagement, func() {
		texture := d.textures.Access(h.ResourceHandle)
		if texture == nil {
			return
		}
		d.backend.DestroyTexture(NativeTexture{Image: texture.Image, View: texture.View, Memory: texture.Memory})
		d.textures.Release(h.ResourceHandle)
		destroyed = true
	})
	if destroyed && h != d.dummyTexture {
		d.queueBindlessTexture(h.Index, d.dummyTexture)
	}
}

func (d *Device) QueryTexture(h TextureHandle) (TextureDescription, bool) {
	texture := d.AccessTexture(h)
	if texture == nil {
		return TextureDescription{}, false
	}
	return TextureDescription{
		Native:        texture.Image,
		Name:          texture.Name,
		Width:         texture.Width,
		Height:        texture.Height,
		Depth:         texture.Depth,
		Mipmaps:       texture.Mipmaps,
		RenderTarget:  texture.Flags&TextureFlagRenderTarget != 0,
		ComputeAccess: texture.Flags&TextureFlagCompute != 0,
		Format:        texture.Format,
		Type:          texture.Type,
	}, true
}

// LinkTextureSampler makes sampler the one used when texture is bound
// without an explicit sampler.
func (d *Device) LinkTextureSampler(texture TextureHandle, sampler SamplerHandle) {
	linked := false
	d.locks.With(TextureManagement, func() {
		if t := d.textures.Access(texture.ResourceHandle); t != nil {
			t.Sampler = sampler
			linked = true
		}
	})
	if linked {
		d.queueBindlessTexture(texture.Index, texture)
	}
}

// Samplers

func (d *Device) CreateSampler(creation *SamplerCreation) SamplerHandle {
	h, ok := obtainSlot(d, SamplerManagement, ResourceKindSampler, d.samplers, creation.Name)
	if !ok {
		return InvalidSampler
	}
	native, err := d.backend.CreateSampler(creation)
	if err != nil {
		releaseSlot(d, SamplerManagement, d.samplers, h)
		ifPanic(err)
	}
	handle := SamplerHandle{h}
	*d.samplers.Access(h) = Sampler{
		Native:       native,
		MinFilter:    creation.MinFilter,
		MagFilter:    creation.MagFilter,
		MipFilter:    creation.MipFilter,
		AddressModeU: creation.AddressModeU,
		AddressModeV: creation.AddressModeV,
		AddressModeW: creation.AddressModeW,
		Handle:       handle,
		Name:         core.DebugName("sampler", creation.Name),
	}
	return handle
}

func (d *Device) AccessSampler(h SamplerHandle) *Sampler {
	return accessSlot(d, SamplerManagement, d.samplers, h.ResourceHandle)
}

func (d *Device) DestroySampler(h SamplerHandle) {
	d.deferDestroy(ResourceKindSampler, h.ResourceHandle, d.AccessSampler(h) != nil)
}

func (d *Device) DestroySamplerInstant(h SamplerHandle) {
	d.locks.With(SamplerManagement, func() {
		sampler := d.samplers.Access(h.ResourceHandle)
		if sampler == nil {
			return
		}
		d.backend.DestroySampler(sampler.Native)
		d.samplers.Release(h.ResourceHandle)
	})
}

func (d *Device) QuerySampler(h SamplerHandle) (SamplerDescription, bool) {
	sampler := d.AccessSampler(h)
	if sampler == nil {
		return SamplerDescription{}, false
	}
	return SamplerDescription{
		Name:         sampler.Name,
		MinFilter:    sampler.MinFilter,
		MagFilter:    sampler.MagFilter,
		MipFilter:    sampler.MipFilter,
		AddressModeU: sampler.AddressModeU,
		AddressModeV: sampler.AddressModeV,
		AddressModeW: sampler.AddressModeW,
	}, true
}

// Shader states

// CreateShaderState builds one native module per SPIR-V stage. A failing
// stage destroys the modules built so far and yields an invalid handle.
func (d *Device) CreateShaderState(creation *ShaderStateCreation) ShaderStateHandle {
	if len(creation.Stages) == 0 || len(creation.Stages) > MaxShaderStages {
		d.log.Error("shader state needs 1 to MaxShaderStages stages", "name", creation.Name, "stages", len(creation.Stages), "max", MaxShaderStages)
		return InvalidShaderState
	}
	if !creation.SpvInput {
		d.log.Error("shader state must be SPIR-V", "name", creation.Name, "err", core.ErrUnsupported)
		return InvalidShaderState
	}

	h, ok := obtainSlot(d, ShaderManagement, ResourceKindShaderState, d.shaders, creation.Name)
	if !ok {
		return InvalidShaderState
	}

	modules := make([]ShaderModule, 0, len(creation.Stages))
	graphics := true
	for _, stage := range creation.Stages {
		if stage.Stage == ShaderStageCompute {
			graphics = false
		}
		module, err := d.backend.CreateShaderModule(stage)
		if err != nil {
			for _, m := range modules {
				d.backend.DestroyShaderModule(m.Module)
			}
			releaseSlot(d, ShaderManagement, d.shaders, h)
			d.log.Error("shader module creation failed", "name", creation.Name, "stage", stage.Stage, "err", err)
			return InvalidShaderState
		}
		modules = append(modules, ShaderModule{Stage: stage.Stage, Module: module})
	}

	handle := ShaderStateHandle{h}
	*d.shaders.Access(h) = ShaderState{
		Stages:           modules,
		GraphicsPipeline: graphics,
		Handle:           handle,
		Name:             core.DebugName("shader", creation.Name),
	}
	return handle
}

func (d *Device) AccessShaderState(h ShaderStateHandle) *ShaderState {
	return accessSlot(d, ShaderManagement, d.shaders, h.ResourceHandle)
}

func (d *Device) DestroyShaderState(h ShaderStateHandle) {
	d.deferDestroy(ResourceKindShaderState, h.ResourceHandle, d.AccessShaderState(h) != nil)
}

func (d *Device) DestroyShaderStateInstant(h ShaderStateHandle) {
	d.locks.With(ShaderManagement, func() {
		state := d.shaders.Access(h.ResourceHandle)
		if state == nil {
			return
		}
		for _, m := range state.Stages {
			d.backend.DestroyShaderModule(m.Module)
		}
		d.shaders.Release(h.ResourceHandle)
	})
}

func (d *Device) QueryShaderState(h ShaderStateHandle) (ShaderStateDescription, bool) {
	state := d.AccessShaderState(h)
	if state == nil {
		return ShaderStateDescription{}, false
	}
	desc := ShaderStateDescription{Name: state.Name}
	for _, m := range state.Stages {
		desc.Stages = append(desc.Stages, m.Stage)
	}
	return desc, true
}

// Descriptor set layouts

func (d *Device) CreateDescriptorSetLayout(creation *DescriptorSetLayoutCreation) DescriptorSetLayoutHandle {
	if !creation.Bindless && len(creation.Bindings) > MaxDescriptorsPerSet {
		d.log.Error("descriptor set layout has too many bindings", "name", creation.Name, "bindings", len(creation.Bindings), "max", MaxDescriptorsPerSet, "err", core.ErrTooManyResources)
		return InvalidDescriptorSetLayout
	}
	indexToBinding := make(map[uint16]int, len(creation.Bindings))
	for i, b := range creation.Bindings {
		if _, dup := indexToBinding[b.Index]; dup {
			d.log.Error("descriptor set layout declares a binding twice", "name", creation.Name, "binding", b.Index, "err", core.ErrProtocolMisuse)
			return InvalidDescriptorSetLayout
		}
		indexToBinding[b.Index] = i
	}

	h, ok := obtainSlot(d, DescriptorManagement, ResourceKindDescriptorSetLayout, d.layouts, creation.Name)
	if !ok {
		return InvalidDescriptorSetLayout
	}

	native, err := d.backend.CreateDescriptorSetLayout(&NativeDescriptorSetLayoutDesc{
		Bindings: nativeLayoutBindings(creation),
		Bindless: creation.Bindless,
		Stages:   ShaderStageAll,
	})
	if err != nil {
		releaseSlot(d, DescriptorManagement, d.layouts, h)
		ifPanic(err)
	}

	bindings := make([]DescriptorBinding, len(creation.Bindings))
	copy(bindings, creation.Bindings)

	handle := DescriptorSetLayoutHandle{h}
	*d.layouts.Access(h) = DescriptorSetLayout{
		Native:         native,
		Bindings:       bindings,
		IndexToBinding: indexToBinding,
		SetIndex:       uint16(creation.SetIndex),
		Bindless:       creation.Bindless,
		Dynamic:        creation.Dynamic,
		Handle:         handle,
		Name:           core.DebugName("layout", creation.Name),
	}
	return handle
}

func (d *Device) AccessDescriptorSetLayout(h DescriptorSetLayoutHandle) *DescriptorSetLayout {
	return accessSlot(d, DescriptorManagement, d.layouts, h.ResourceHandle)
}

func (d *Device) DestroyDescriptorSetLayout(h DescriptorSetLayoutHandle) {
	d.deferDestroy(ResourceKindDescriptorSetLayout, h.ResourceHandle, d.AccessDescriptorSetLayout(h) != nil)
}

func (d *Device) DestroyDescriptorSetLayoutInstant(h DescriptorSetLayoutHandle) {
	d.locks.With(DescriptorManagement, func() {
		layout := d.layouts.Access(h.ResourceHandle)
		if layout == nil {
			return
		}
		d.backend.DestroyDescriptorSetLayout(layout.Native)
		d.layouts.Release(h.ResourceHandle)
	})
}

func (d *Device) QueryDescriptorSetLayout(h DescriptorSetLayoutHandle) (DescriptorSetLayoutDescription, bool) {
	layout := d.AccessDescriptorSetLayout(h)
	if layout == nil {
		return DescriptorSetLayoutDescription{}, false
	}
	bindings := make([]DescriptorBinding, len(layout.Bindings))
	copy(bindings, layout.Bindings)
	return DescriptorSetLayoutDescription{Bindings: bindings, SetIndex: layout.SetIndex}, true
}

// Descriptor sets

// CreateDescriptorSet creates a set that lives until it is destroyed. It
// returns an invalid handle when the set cannot be written.
func (d *Device) CreateDescriptorSet(creation *DescriptorSetCreation) DescriptorSetHandle {
	var (
		h   DescriptorSetHandle
		err error
	)
	d.locks.With(DescriptorManagement, func() {
		h, err = d.createDescriptorSet(d.sets, d.globalDescriptorPool, creation)
	})
	if err != nil {
		d.log.Error("descriptor set creation failed", "name", creation.Name, "err", err)
		return InvalidDescriptorSet
	}
	return h
}

func (d *Device) AccessDescriptorSet(h DescriptorSetHandle) *DescriptorSet {
	return accessSlot(d, DescriptorManagement, d.sets, h.ResourceHandle)
}

// UpdateDescriptorSet replaces the resources of a set from the next frame on.
func (d *Device) UpdateDescriptorSet(h DescriptorSetHandle, creation *DescriptorSetCreation) error {
	n := creation.NumResources()
	if n > MaxDescriptorsPerSet {
		return fmt.Errorf("%w: %d resources, at most %d per set", core.ErrTooManyResources, n, MaxDescriptorsPerSet)
	}
	if len(creation.Samplers) != n || len(creation.Bindings) != n {
		return fmt.Errorf("%w: mismatched resource lists", core.ErrProtocolMisuse)
	}
	if d.AccessDescriptorSet(h) == nil {
		return fmt.Errorf("%w: descriptor set %d/%d", core.ErrInvalidHandle, h.Index, h.Generation)
	}

	entries := make([]DescriptorSetEntry, n)
	for i := 0; i < n; i++ {
		entries[i] = DescriptorSetEntry{
			Resource: creation.Resources[i],
			Sampler:  creation.Samplers[i],
			Binding:  creation.Bindings[i],
		}
	}
	d.locks.With(DescriptorManagement, func() {
		d.descriptorUpdates = append(d.descriptorUpdates, descriptorSetUpdate{set: h, entries: entries, frame: d.absoluteFrame})
	})
	return nil
}

func (d *Device) DestroyDescriptorSet(h DescriptorSetHandle) {
	d.deferDestroy(ResourceKindDescriptorSet, h.ResourceHandle, d.AccessDescriptorSet(h) != nil)
}

func (d *Device) DestroyDescriptorSetInstant(h DescriptorSetHandle) {
	d.locks.With(DescriptorManagement, func() {
		set := d.sets.Access(h.ResourceHandle)
		if set == nil {
			return
		}
		d.backend.FreeDescriptorSet(set.Pool, set.Native)
		d.sets.Release(h.ResourceHandle)
	})
}

func (d *Device) QueryDescriptorSet(h DescriptorSetHandle) (DescriptorSetDescription, bool) {
	set := d.AccessDescriptorSet(h)
	if set == nil {
		return DescriptorSetDescription{}, false
	}
	desc := DescriptorSetDescription{Resources: make([]ResourceHandle, len(set.Entries))}
	for i, e := range set.Entries {
		desc.Resources[i] = e.Resource
	}
	return desc, true
}

// Pipelines

// CreatePipeline builds the shader state, resolves the set layouts and, for
// legacy render passes, the cached native pass of the pipeline's output.
func (d *Device) CreatePipeline(creation *PipelineCreation) PipelineHandle {
	if len(creation.DescriptorSetLayouts) > MaxDescriptorSetLayouts {
		d.log.Error("pipeline has too many descriptor set layouts", "name", creation.Name, "layouts", len(creation.DescriptorSetLayouts), "max", MaxDescriptorSetLayouts)
		return InvalidPipeline
	}

	layouts := make([]*DescriptorSetLayout, 0, len(creation.DescriptorSetLayouts))
	nativeLayouts := make([]NativeHandle, 0, len(creation.DescriptorSetLayouts)+1)
	if d.bindless != nil {
		nativeLayouts = append(nativeLayouts, d.AccessDescriptorSetLayout(d.bindless.layout).Native)
	}
	for _, lh := range creation.DescriptorSetLayouts {
		layout := d.AccessDescriptorSetLayout(lh)
		if layout == nil {
			d.log.Error("pipeline references a dead descriptor set layout", "name", creation.Name, "index", lh.Index)
			return InvalidPipeline
		}
		layouts = append(layouts, layout)
		nativeLayouts = append(nativeLayouts, layout.Native)
	}

	h, ok := obtainSlot(d, PipelineManagement, ResourceKindPipeline, d.pipelines, creation.Name)
	if !ok {
		return InvalidPipeline
	}

	shaderHandle := d.CreateShaderState(&creation.Shaders)
	if !shaderHandle.IsValid() {
		releaseSlot(d, PipelineManagement, d.pipelines, h)
		d.log.Error("pipeline shader state failed", "name", creation.Name)
		return InvalidPipeline
	}
	shader := d.AccessShaderState(shaderHandle)

	passNative := NullHandle
	if shader.GraphicsPipeline && !d.target.Dynamic() {
		native, err := d.renderPassCache.get(&creation.RenderPass, creation.Name)
		if err != nil {
			d.DestroyShaderStateInstant(shaderHandle)
			releaseSlot(d, PipelineManagement, d.pipelines, h)
			ifPanic(err)
		}
		passNative = native
	}

	native, layout, err := d.backend.CreatePipeline(&NativePipelineDesc{
		Shaders:          shader.Stages,
		GraphicsPipeline: shader.GraphicsPipeline,
		SetLayouts:       nativeLayouts,
		VertexInput:      creation.VertexInput,
		Rasterization:    creation.Rasterization,
		DepthStencil:     creation.DepthStencil,
		BlendState:       creation.BlendState,
		Topology:         creation.Topology,
		RenderPass:       passNative,
		Output:           creation.RenderPass,
		Name:             creation.Name,
	})
	if err != nil {
		d.DestroyShaderStateInstant(shaderHandle)
		releaseSlot(d, PipelineManagement, d.pipelines, h)
		ifPanic(err)
	}

	bindPoint := BindPointGraphics
	if !shader.GraphicsPipeline {
		bindPoint = BindPointCompute
	}
	handles := make([]DescriptorSetLayoutHandle, len(creation.DescriptorSetLayouts))
	copy(handles, creation.DescriptorSetLayouts)

	handle := PipelineHandle{h}
	*d.pipelines.Access(h) = Pipeline{
		Native:                     native,
		Layout:                     layout,
		BindPoint:                  bindPoint,
		ShaderState:                shaderHandle,
		DescriptorSetLayouts:       layouts,
		DescriptorSetLayoutHandles: handles,
		DepthStencil:               creation.DepthStencil,
		BlendState:                 creation.BlendState,
		Rasterization:              creation.Rasterization,
		Output:                     creation.RenderPass,
		Handle:                     handle,
		GraphicsPipeline:           shader.GraphicsPipeline,
		Name:                       core.DebugName("pipeline", creation.Name),
	}
	d.log.Debug("created pipeline", "name", creation.Name, "bind_point", bindPoint, "layouts", len(nativeLayouts))
	return handle
}

func (d *Device) AccessPipeline(h PipelineHandle) *Pipeline {
	return accessSlot(d, PipelineManagement, d.pipelines, h.ResourceHandle)
}

func (d *Device) DestroyPipeline(h PipelineHandle) {
	d.deferDestroy(ResourceKindPipeline, h.ResourceHandle, d.AccessPipeline(h) != nil)
}

// DestroyPipelineInstant destroys the pipeline and the shader state it owns.
func (d *Device) DestroyPipelineInstant(h PipelineHandle) {
	shader := InvalidShaderState
	d.locks.With(PipelineManagement, func() {
		pipeline := d.pipelines.Access(h.ResourceHandle)
		if pipeline == nil {
			return
		}
		d.backend.DestroyPipeline(pipeline.Native, pipeline.Layout)
		shader = pipeline.ShaderState
		d.pipelines.Release(h.ResourceHandle)
	})
	if shader.IsValid() {
		d.DestroyShaderStateInstant(shader)
	}
}

func (d *Device) QueryPipeline(h PipelineHandle) (PipelineDescription, bool) {
	pipeline := d.AccessPipeline(h)
	if pipeline == nil {
		return PipelineDescription{}, false
	}
	return PipelineDescription{Shader: pipeline.ShaderState}, true
}

// Render passes

// CreateRenderPass records a pass output. With legacy render passes the
// native pass comes from the device cache and is shared.
func (d *Device) CreateRenderPass(creation *RenderPassCreation) RenderPassHandle {
	h, ok := obtainSlot(d, RenderpassManagement, ResourceKindRenderPass, d.renderPasses, creation.Name)
	if !ok {
		return InvalidRenderPass
	}

	native := NullHandle
	if !d.target.Dynamic() {
		var err error
		native, err = d.renderPassCache.get(&creation.Output, creation.Name)
		if err != nil {
			releaseSlot(d, RenderpassManagement, d.renderPasses, h)
			ifPanic(err)
		}
	}

	handle := RenderPassHandle{h}
	*d.renderPasses.Access(h) = RenderPass{
		Native:           native,
		Output:           creation.Output,
		NumRenderTargets: uint8(creation.Output.NumColorFormats),
		Handle:           handle,
		Name:             core.DebugName("pass", creation.Name),
	}
	return handle
}

func (d *Device) AccessRenderPass(h RenderPassHandle) *RenderPass {
	return accessSlot(d, RenderpassManagement, d.renderPasses, h.ResourceHandle)
}

func (d *Device) DestroyRenderPass(h RenderPassHandle) {
	d.deferDestroy(ResourceKindRenderPass, h.ResourceHandle, d.AccessRenderPass(h) != nil)
}

// DestroyRenderPassInstant releases the record. The native pass stays in the
// cache until shutdown.
func (d *Device) DestroyRenderPassInstant(h RenderPassHandle) {
	releaseSlot(d, RenderpassManagement, d.renderPasses, h.ResourceHandle)
}

// RenderPassOutput returns the output a pipeline must declare to run in pass.
func (d *Device) RenderPassOutput(h RenderPassHandle) (RenderPassOutput, bool) {
	pass := d.AccessRenderPass(h)
	if pass == nil {
		return RenderPassOutput{}, false
	}
	return pass.Output, true
}

// Framebuffers

func (d *Device) CreateFramebuffer(creation *FramebufferCreation) FramebufferHandle {
	if len(creation.OutputTextures) > MaxImageOutputs {
		d.log.Error("framebuffer has too many color attachments", "name", creation.Name, "attachments", len(creation.OutputTextures), "max", MaxImageOutputs, "err", core.ErrTooManyResources)
		return InvalidFramebuffer
	}
	pass := d.AccessRenderPass(creation.RenderPass)
	if pass == nil {
		d.log.Error("framebuffer references a dead render pass", "name", creation.Name)
		return InvalidFramebuffer
	}
	if uint32(len(creation.OutputTextures)) != pass.Output.NumColorFormats {
		d.log.Error("framebuffer attachments do not match the render pass", "name", creation.Name,
			"attachments", len(creation.OutputTextures), "pass_outputs", pass.Output.NumColorFormats, "err", core.ErrProtocolMisuse)
		return InvalidFramebuffer
	}

	depth := creation.DepthStencilTexture
	// A zero handle never resolves, so it means no depth attachment.
	if depth == (TextureHandle{}) {
		depth = InvalidTexture
	}

	width, height := creation.Width, creation.Height
	if width == 0 || height == 0 {
		first := depth
		if len(creation.OutputTextures) > 0 {
			first = creation.OutputTextures[0]
		}
		if texture := d.AccessTexture(first); texture != nil {
			width, height = texture.Width, texture.Height
		}
	}

	h, ok := obtainSlot(d, FramebufferManagement, ResourceKindFramebuffer, d.framebuffers, creation.Name)
	if !ok {
		return InvalidFramebuffer
	}

	colors := make([]TextureHandle, len(creation.OutputTextures))
	copy(colors, creation.OutputTextures)

	handle := FramebufferHandle{h}
	fb := d.framebuffers.Access(h)
	*fb = Framebuffer{
		RenderPass:             creation.RenderPass,
		Width:                  width,
		Height:                 height,
		ScaleX:                 creation.ScaleX,
		ScaleY:                 creation.ScaleY,
		ColorAttachments:       colors,
		DepthStencilAttachment: depth,
		Resize:                 creation.Resize,
		Handle:                 handle,
		Name:                   core.DebugName("framebuffer", creation.Name),
	}

	if !d.target.Dynamic() {
		native, err := d.createNativeFramebuffer(fb, pass)
		if err != nil {
			releaseSlot(d, FramebufferManagement, d.framebuffers, h)
			d.log.Error("framebuffer creation failed", "name", creation.Name, "err", err)
			return InvalidFramebuffer
		}
		fb.Native = native
	}
	return handle
}

func (d *Device) createNativeFramebuffer(fb *Framebuffer, pass *RenderPass) (NativeHandle, error) {
	attachments := make([]NativeHandle, 0, len(fb.ColorAttachments)+1)
	for _, th := range fb.ColorAttachments {
		texture := d.AccessTexture(th)
		if texture == nil {
			return NullHandle, fmt.Errorf("%w: framebuffer %q color attachment", core.ErrInvalidHandle, fb.Name)
		}
		attachments = append(attachments, texture.View)
	}
	if fb.HasDepthStencil() {
		texture := d.AccessTexture(fb.DepthStencilAttachment)
		if texture == nil {
			return NullHandle, fmt.Errorf("%w: framebuffer %q depth attachment", core.ErrInvalidHandle, fb.Name)
		}
		attachments = append(attachments, texture.View)
	}
	return d.backend.CreateFramebuffer(&NativeFramebufferDesc{
		RenderPass:  pass.Native,
		Attachments: attachments,
		Width:       uint32(fb.Width),
		Height:      uint32(fb.Height),
		Name:        fb.Name,
	})
}

func (d *Device) AccessFramebuffer(h FramebufferHandle) *Framebuffer {
	return accessSlot(d, FramebufferManagement, d.framebuffers, h.ResourceHandle)
}

func (d *Device) DestroyFramebuffer(h FramebufferHandle) {
	d.deferDestroy(ResourceKindFramebuffer, h.ResourceHandle, d.AccessFramebuffer(h) != nil)
}

func (d *Device) DestroyFramebufferInstant(h FramebufferHandle) {
	d.locks.With(FramebufferManagement, func() {
		fb := d.framebuffers.Access(h.ResourceHandle)
		if fb == nil {
			return
		}
		if !fb.Native.IsNull() {
			d.backend.DestroyFramebuffer(fb.Native)
		}
		d.framebuffers.Release(h.ResourceHandle)
	})
}
