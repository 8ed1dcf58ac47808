package gpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// cycle runs one full frame with nothing recorded.
func cycle(d *Device) {
	d.NewFrame()
	d.Present()
}

func TestNewDeviceCreatesDefaults(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)

	assert.NotEqual(t, [16]byte{}, [16]byte(d.ID))
	assert.False(t, d.UsesDynamicRendering())
	assert.False(t, d.UsesBindless())
	assert.Equal(t, uint32(3), d.FramesInFlight())

	assert.NotNil(t, d.AccessSampler(d.DefaultSampler()))
	assert.NotNil(t, d.AccessTexture(d.DummyTexture()))
	assert.NotNil(t, d.AccessBuffer(d.DummyConstantBuffer()))
	assert.NotNil(t, d.AccessBuffer(d.FullscreenVertexBuffer()))

	dynamic := d.AccessBuffer(d.DynamicBuffer())
	require.NotNil(t, dynamic)
	assert.Equal(t, uint32(3*64*1024), dynamic.Size)
	assert.Len(t, dynamic.MappedData, 3*64*1024)

	// one primary and two secondary recorders per thread and frame
	assert.Len(t, backend.recorders, 3*(1+SecondaryBuffersPerThread))
}

func TestNewDeviceRejectsInvalidConfig(t *testing.T) {
	cases := map[string]func(*core.DeviceConfig){
		"no threads":       func(c *core.DeviceConfig) { c.NumThreads = 0 },
		"no frames":        func(c *core.DeviceConfig) { c.MaxFramesInFlight = 0 },
		"too many frames":  func(c *core.DeviceConfig) { c.MaxFramesInFlight = MaxFramesInFlight + 1 },
		"empty pool":       func(c *core.DeviceConfig) { c.Pools.Buffers = 0 },
		"zero size window": func(c *core.DeviceConfig) { c.Width = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := core.DefaultDeviceConfig()
			cfg.LogLevel = "fatal"
			mutate(cfg)
			d, err := NewDevice(cfg, newFakeBackend(legacyCaps))
			assert.Nil(t, d)
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestDeferredDestructionWaitsForFramesInFlight(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)

	h := d.CreateBuffer((&BufferCreation{}).Set(BufferUsageVertex, ResourceUsageImmutable, 128).SetName("mesh"))
	native := d.AccessBuffer(h).Native
	d.DestroyBuffer(h)
	assert.Equal(t, 1, d.pendingDeletions())

	for i := 0; i < int(d.FramesInFlight()); i++ {
		d.NewFrame()
		assert.True(t, backend.isLive(native), "reclaimed after %d frames", i)
		assert.NotNil(t, d.AccessBuffer(h))
		d.Present()
	}

	d.NewFrame()
	assert.False(t, backend.isLive(native))
	assert.Nil(t, d.AccessBuffer(h))
	assert.Zero(t, d.pendingDeletions())
}

func TestStaleHandlesDoNotResolve(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)

	creation := (&BufferCreation{}).Set(BufferUsageVertex, ResourceUsageImmutable, 16).SetName("a")
	old := d.CreateBuffer(creation)
	d.DestroyBufferInstant(old)

	fresh := d.CreateBuffer(creation)
	require.Equal(t, old.Index, fresh.Index)
	assert.NotEqual(t, old.Generation, fresh.Generation)
	assert.Nil(t, d.AccessBuffer(old))
	assert.NotNil(t, d.AccessBuffer(fresh))

	_, ok := d.QueryBuffer(old)
	assert.False(t, ok)
	desc, ok := d.QueryBuffer(fresh)
	require.True(t, ok)
	assert.Equal(t, uint32(16), desc.Size)

	d.DestroyBuffer(old)
	d.DestroyBuffer(BufferHandle{InvalidResource})
	assert.Zero(t, d.pendingDeletions())
}

func TestPoolExhaustionReturnsInvalidHandle(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps, func(c *core.DeviceConfig) { c.Pools.Samplers = 2 })

	// the default sampler takes one slot
	first := d.CreateSampler((&SamplerCreation{}).SetName("one"))
	require.True(t, first.IsValid())
	assert.False(t, d.CreateSampler((&SamplerCreation{}).SetName("two")).IsValid())

	d.DestroySamplerInstant(first)
	assert.True(t, d.CreateSampler((&SamplerCreation{}).SetName("three")).IsValid())
}

func TestDescriptorSetLayoutValidation(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)

	tooMany := &DescriptorSetLayoutCreation{}
	for i := uint16(0); i <= MaxDescriptorsPerSet; i++ {
		tooMany.AddBinding(DescriptorTypeUniformBuffer, i, 1, "ubo")
	}
	assert.False(t, d.CreateDescriptorSetLayout(tooMany).IsValid())

	duplicate := (&DescriptorSetLayoutCreation{}).
		AddBinding(DescriptorTypeUniformBuffer, 0, 1, "a").
		AddBinding(DescriptorTypeStorageBuffer, 0, 1, "b")
	assert.False(t, d.CreateDescriptorSetLayout(duplicate).IsValid())

	h := d.CreateDescriptorSetLayout((&DescriptorSetLayoutCreation{}).
		AddBinding(DescriptorTypeUniformBuffer, 0, 1, "ubo").
		AddBinding(DescriptorTypeStorageBuffer, 4, 1, "ssbo").
		SetSetIndex(1).
		SetName("valid"))
	require.True(t, h.IsValid())

	native := backend.layoutDescs[len(backend.layoutDescs)-1]
	assert.Equal(t, DescriptorTypeUniformBufferDynamic, native.Bindings[0].Type)
	assert.Equal(t, DescriptorTypeStorageBuffer, native.Bindings[1].Type)

	desc, ok := d.QueryDescriptorSetLayout(h)
	require.True(t, ok)
	assert.Equal(t, DescriptorTypeUniformBuffer, desc.Bindings[0].Type)
	assert.Equal(t, uint16(1), desc.SetIndex)

	pos, ok := d.AccessDescriptorSetLayout(h).BindingPosition(4)
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestDescriptorSetCreationRollsBack(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)
	layout := d.CreateDescriptorSetLayout((&DescriptorSetLayoutCreation{}).
		AddBinding(DescriptorTypeUniformBuffer, 0, 1, "ubo").
		AddBinding(DescriptorTypeCombinedImageSampler, 1, 1, "albedo"))

	dead := colorTarget(t, d, 4, 4)
	d.DestroyTextureInstant(dead)

	used := d.sets.Used()
	h := d.CreateDescriptorSet((&DescriptorSetCreation{}).
		SetLayout(layout).
		Buffer(d.DummyConstantBuffer(), 0).
		Texture(dead, 1))
	assert.False(t, h.IsValid())
	assert.Equal(t, used, d.sets.Used())
	require.Len(t, backend.freedSets, 1)
	assert.False(t, backend.isLive(backend.freedSets[0]))

	undeclared := d.CreateDescriptorSet((&DescriptorSetCreation{}).SetLayout(layout).Buffer(d.DummyConstantBuffer(), 7))
	assert.False(t, undeclared.IsValid())
	assert.Equal(t, used, d.sets.Used())

	backend.failAllocateSet = true
	failed := d.CreateDescriptorSet((&DescriptorSetCreation{}).SetLayout(layout).Buffer(d.DummyConstantBuffer(), 0))
	assert.False(t, failed.IsValid())
	assert.Equal(t, used, d.sets.Used())
}

func TestDescriptorSetRejectsTooManyResources(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)
	layout := d.CreateDescriptorSetLayout((&DescriptorSetLayoutCreation{}).AddBinding(DescriptorTypeUniformBuffer, 0, 1, "ubo"))

	creation := (&DescriptorSetCreation{}).SetLayout(layout)
	for i := 0; i <= MaxDescriptorsPerSet; i++ {
		creation.Buffer(d.DummyConstantBuffer(), 0)
	}
	assert.False(t, d.CreateDescriptorSet(creation).IsValid())
	assert.ErrorIs(t, d.UpdateDescriptorSet(DescriptorSetHandle{InvalidResource}, creation), core.ErrTooManyResources)
}

func TestUpdateDescriptorSetSwapsNativeSetAtNextFrame(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)
	layout := d.CreateDescriptorSetLayout((&DescriptorSetLayoutCreation{}).AddBinding(DescriptorTypeUniformBuffer, 0, 1, "ubo"))
	first := dynamicUniform(t, d, 32, "first")
	second := d.CreateBuffer((&BufferCreation{}).Set(BufferUsageUniform, ResourceUsageImmutable, 48).SetName("second"))

	h := d.CreateDescriptorSet((&DescriptorSetCreation{}).SetLayout(layout).Buffer(first, 0).SetName("frame"))
	require.True(t, h.IsValid())
	oldNative := d.AccessDescriptorSet(h).Native

	require.NoError(t, d.UpdateDescriptorSet(h, (&DescriptorSetCreation{}).Buffer(second, 0)))
	assert.Equal(t, oldNative, d.AccessDescriptorSet(h).Native)

	writes := len(backend.writes)
	d.NewFrame()

	set := d.AccessDescriptorSet(h)
	require.NotEqual(t, oldNative, set.Native)
	assert.Equal(t, second.ResourceHandle, set.Entries[0].Resource)
	require.Len(t, backend.writes, writes+1)
	assert.Equal(t, d.AccessBuffer(second).Native, backend.writes[writes].Buffer)
	assert.Equal(t, uint64(48), backend.writes[writes].Range)

	desc, ok := d.QueryDescriptorSet(h)
	require.True(t, ok)
	assert.Equal(t, []ResourceHandle{second.ResourceHandle}, desc.Resources)

	// the replaced native set stays alive while earlier frames may read it
	d.Present()
	for i := uint32(1); i < d.FramesInFlight(); i++ {
		cycle(d)
		assert.True(t, backend.isLive(oldNative))
	}
	d.NewFrame()
	assert.False(t, backend.isLive(oldNative))
	assert.True(t, backend.isLive(set.Native))

	err := d.UpdateDescriptorSet(DescriptorSetHandle{InvalidResource}, &DescriptorSetCreation{})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)
}

func TestDestroyDescriptorSetFreesNativeSet(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)
	layout := d.CreateDescriptorSetLayout((&DescriptorSetLayoutCreation{}).AddBinding(DescriptorTypeUniformBuffer, 0, 1, "ubo"))
	h := d.CreateDescriptorSet((&DescriptorSetCreation{}).SetLayout(layout).Buffer(d.DummyConstantBuffer(), 0))
	native := d.AccessDescriptorSet(h).Native

	d.DestroyDescriptorSetInstant(h)
	assert.Nil(t, d.AccessDescriptorSet(h))
	assert.False(t, backend.isLive(native))
	assert.Contains(t, backend.freedSets, native)
}

func TestRenderPassCacheSharesNativePasses(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)

	creation := NewRenderPassCreation().AddAttachment(FormatB8G8R8A8Unorm, ImageLayoutPresentSrc, LoadOpClear).SetName("swapchain")
	a := d.CreateRenderPass(creation)
	b := d.CreateRenderPass(creation)
	require.True(t, a.IsValid())
	require.True(t, b.IsValid())
	assert.Equal(t, d.AccessRenderPass(a).Native, d.AccessRenderPass(b).Native)
	assert.Equal(t, 1, backend.passes)

	testPipeline(t, d, a)
	assert.Equal(t, 1, backend.passes)
	assert.Equal(t, d.AccessRenderPass(a).Native, backend.pipelines[0].RenderPass)

	other := NewRenderPassCreation().AddAttachment(FormatB8G8R8A8Unorm, ImageLayoutPresentSrc, LoadOpLoad)
	c := d.CreateRenderPass(other)
	assert.NotEqual(t, d.AccessRenderPass(a).Native, d.AccessRenderPass(c).Native)
	assert.Equal(t, 2, d.renderPassCache.len())

	native := d.AccessRenderPass(a).Native
	d.DestroyRenderPassInstant(a)
	assert.True(t, backend.isLive(native))
	assert.Equal(t, uint32(1), d.AccessRenderPass(c).Output.NumColorFormats)
}

func TestDynamicRenderingSkipsNativePasses(t *testing.T) {
	d, backend := newTestDevice(t, dynamicCaps)
	pass, _ := passWithTargets(t, d, 16, 16, nil, LoadOpClear)
	testPipeline(t, d, pass)

	assert.Zero(t, backend.passes)
	assert.Zero(t, backend.liveOf("framebuffer"))
	assert.True(t, backend.pipelines[0].RenderPass.IsNull())
	assert.Equal(t, uint32(1), backend.pipelines[0].Output.NumColorFormats)

	d2, _ := newTestDevice(t, dynamicCaps, func(c *core.DeviceConfig) { c.PreferDynamicRendering = false })
	assert.False(t, d2.UsesDynamicRendering())
}

func TestFramebufferValidation(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)
	pass := d.CreateRenderPass(NewRenderPassCreation().
		AddAttachment(FormatR8G8B8A8Unorm, ImageLayoutColorAttachmentOptimal, LoadOpClear).
		AddAttachment(FormatR8G8B8A8Unorm, ImageLayoutColorAttachmentOptimal, LoadOpClear))

	mismatched := NewFramebufferCreation(pass).AddRenderTexture(colorTarget(t, d, 8, 8))
	assert.False(t, d.CreateFramebuffer(mismatched).IsValid())

	dead := NewFramebufferCreation(RenderPassHandle{InvalidResource})
	assert.False(t, d.CreateFramebuffer(dead).IsValid())

	fb := d.CreateFramebuffer(NewFramebufferCreation(pass).
		AddRenderTexture(colorTarget(t, d, 8, 4)).
		AddRenderTexture(colorTarget(t, d, 8, 4)))
	require.True(t, fb.IsValid())
	framebuffer := d.AccessFramebuffer(fb)
	assert.Equal(t, uint16(8), framebuffer.Width)
	assert.Equal(t, uint16(4), framebuffer.Height)
	assert.Equal(t, 2, framebuffer.NumColorAttachments())
	assert.False(t, framebuffer.HasDepthStencil())
}

func TestShaderStateFailureCleansUp(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)
	pass, _ := passWithTargets(t, d, 8, 8, nil, LoadOpClear)
	output, _ := d.RenderPassOutput(pass)

	backend.failShaderStage = ShaderStageFragment
	pc := &PipelineCreation{RenderPass: output, Name: "broken"}
	pc.Shaders.AddStage([]byte{1}, ShaderStageVertex).AddStage([]byte{2}, ShaderStageFragment).SetSpvInput(true)

	assert.False(t, d.CreatePipeline(pc).IsValid())
	assert.Zero(t, backend.liveOf("shader"))
	assert.Zero(t, d.shaders.Used())
	assert.Zero(t, d.pipelines.Used())

	source := (&ShaderStateCreation{}).AddStage([]byte("void main() {}"), ShaderStageVertex)
	assert.False(t, d.CreateShaderState(source).IsValid())
	assert.False(t, d.CreateShaderState((&ShaderStateCreation{}).SetSpvInput(true)).IsValid())

	backend.failShaderStage = 0
	compute := d.CreateShaderState((&ShaderStateCreation{}).AddStage([]byte{3}, ShaderStageCompute).SetSpvInput(true).SetName("cull"))
	require.True(t, compute.IsValid())
	assert.False(t, d.AccessShaderState(compute).GraphicsPipeline)
	desc, ok := d.QueryShaderState(compute)
	require.True(t, ok)
	assert.Equal(t, []ShaderStage{ShaderStageCompute}, desc.Stages)
}

func TestDestroyPipelineReleasesShaderState(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)
	pass, _ := passWithTargets(t, d, 8, 8, nil, LoadOpClear)
	h := testPipeline(t, d, pass)

	desc, ok := d.QueryPipeline(h)
	require.True(t, ok)
	require.NotNil(t, d.AccessShaderState(desc.Shader))
	assert.Equal(t, 2, backend.liveOf("shader"))

	d.DestroyPipeline(h)
	for i := uint32(0); i <= d.FramesInFlight(); i++ {
		cycle(d)
	}
	assert.Nil(t, d.AccessPipeline(h))
	assert.Nil(t, d.AccessShaderState(desc.Shader))
	assert.Zero(t, backend.liveOf("shader"))
	assert.Zero(t, backend.liveOf("pipeline"))
}

func TestMapBufferAssignsAlignedOffsets(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)
	a := dynamicUniform(t, d, 10, "a")
	b := dynamicUniform(t, d, 300, "b")
	c := dynamicUniform(t, d, 10, "c")

	require.Len(t, d.MapBuffer(MapBufferParameters{Buffer: a}), 10)
	require.Len(t, d.MapBuffer(MapBufferParameters{Buffer: b}), 300)
	require.Len(t, d.MapBuffer(MapBufferParameters{Buffer: c}), 10)
	assert.Equal(t, uint32(0), d.AccessBuffer(a).GlobalOffset)
	assert.Equal(t, uint32(256), d.AccessBuffer(b).GlobalOffset)
	assert.Equal(t, uint32(768), d.AccessBuffer(c).GlobalOffset)
	d.UnmapBuffer(MapBufferParameters{Buffer: a})

	cycle(d)
	d.NewFrame()
	require.Equal(t, uint32(1), d.CurrentFrame())
	d.MapBuffer(MapBufferParameters{Buffer: a})
	assert.Equal(t, uint32(64*1024), d.AccessBuffer(a).GlobalOffset)

	immutable := d.CreateBuffer((&BufferCreation{}).Set(BufferUsageVertex, ResourceUsageImmutable, 16))
	assert.Nil(t, d.MapBuffer(MapBufferParameters{Buffer: immutable}))
}

func TestMapBufferPersistentRange(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)
	h := d.CreateBuffer((&BufferCreation{}).
		Set(BufferUsageTransferSrc, ResourceUsageStaging, 64).
		SetData([]byte{9, 8, 7}).
		SetName("staging"))

	data := d.MapBuffer(MapBufferParameters{Buffer: h, Offset: 1, Size: 2})
	assert.Equal(t, []byte{8, 7}, data)
	assert.Nil(t, d.MapBuffer(MapBufferParameters{Buffer: h, Offset: 60, Size: 8}))
}

func TestDynamicAllocateExhaustsPerFrame(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)

	offset, data := d.DynamicAllocate(64 * 1024)
	assert.Zero(t, offset)
	assert.Len(t, data, 64*1024)

	offset, data = d.DynamicAllocate(1)
	assert.Zero(t, offset)
	assert.Nil(t, data)

	cycle(d)
	d.NewFrame()
	offset, data = d.DynamicAllocate(16)
	assert.Equal(t, uint32(64*1024), offset)
	assert.Len(t, data, 16)
}

func TestDynamicAllocateRejectsWrappingSizes(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)

	offset, data := d.DynamicAllocate(32)
	assert.Zero(t, offset)
	assert.Len(t, data, 32)

	assert.NotPanics(t, func() {
		offset, data = d.DynamicAllocate(math.MaxUint32 - 100)
	})
	assert.Zero(t, offset)
	assert.Nil(t, data)

	uniform := dynamicUniform(t, d, 64, "huge")
	assert.NotPanics(t, func() {
		data = d.MapBuffer(MapBufferParameters{Buffer: uniform, Size: math.MaxUint32 - 8})
	})
	assert.Nil(t, data)

	offset, data = d.DynamicAllocate(16)
	assert.Equal(t, uint32(256), offset)
	assert.Len(t, data, 16)
}

func TestZeroHandlesDoNotResolve(t *testing.T) {
	d, _ := newTestDevice(t, legacyCaps)

	assert.Nil(t, d.AccessTexture(TextureHandle{}))
	assert.Nil(t, d.AccessBuffer(BufferHandle{}))
	assert.Nil(t, d.AccessSampler(SamplerHandle{}))

	pass := d.CreateRenderPass(NewRenderPassCreation().AddAttachment(FormatR8G8B8A8Unorm, ImageLayoutColorAttachmentOptimal, LoadOpClear))
	color := colorTarget(t, d, 32, 32)
	fb := d.CreateFramebuffer(&FramebufferCreation{
		RenderPass:     pass,
		OutputTextures: []TextureHandle{color},
		Name:           "literal",
	})
	require.True(t, fb.IsValid())
	framebuffer := d.AccessFramebuffer(fb)
	assert.False(t, framebuffer.HasDepthStencil())
	assert.Equal(t, uint16(32), framebuffer.Width)
}

func TestResizeRebuildsScaledFramebuffers(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)
	pass := d.CreateRenderPass(NewRenderPassCreation().AddAttachment(FormatR8G8B8A8Unorm, ImageLayoutColorAttachmentOptimal, LoadOpClear))
	color := colorTarget(t, d, 640, 360)
	fixedColor := colorTarget(t, d, 32, 32)

	scaled := d.CreateFramebuffer(NewFramebufferCreation(pass).AddRenderTexture(color).SetScaling(0.5, 0.5, true).SetName("half"))
	fixed := d.CreateFramebuffer(NewFramebufferCreation(pass).AddRenderTexture(fixedColor).SetName("fixed"))
	require.True(t, scaled.IsValid())
	require.True(t, fixed.IsValid())
	oldNative := d.AccessFramebuffer(scaled).Native
	oldImage := d.AccessTexture(color).Image

	d.Resize(0, 100)
	w, h := d.SwapchainExtent()
	assert.Equal(t, uint16(1280), w)
	assert.Equal(t, uint16(720), h)

	d.Resize(800, 600)
	w, h = d.SwapchainExtent()
	assert.Equal(t, uint16(800), w)
	assert.Equal(t, uint16(600), h)

	fb := d.AccessFramebuffer(scaled)
	assert.Equal(t, uint16(400), fb.Width)
	assert.Equal(t, uint16(300), fb.Height)
	assert.NotEqual(t, oldNative, fb.Native)
	assert.False(t, backend.isLive(oldNative))
	assert.True(t, backend.isLive(fb.Native))

	texture := d.AccessTexture(color)
	assert.Equal(t, uint16(400), texture.Width)
	assert.Equal(t, uint16(300), texture.Height)
	assert.False(t, backend.isLive(oldImage))

	assert.Equal(t, uint16(32), d.AccessFramebuffer(fixed).Width)
}

func TestPresentSubmitsQueuedBuffers(t *testing.T) {
	d, backend := newTestDevice(t, legacyCaps)

	d.NewFrame()
	cb := d.GetCommandBuffer(0, true)
	cb.PushMarker("frame")
	cb.PopMarker()
	d.QueueCommandBuffer(cb)
	assert.Equal(t, 1, d.QueuedCommandBuffers())

	d.Present()
	require.Len(t, backend.submits, 1)
	assert.Equal(t, []CommandRecorder{cb.Recorder()}, backend.submits[0])
	assert.Equal(t, CommandBufferIdle, cb.State())
	assert.Zero(t, d.QueuedCommandBuffers())
	assert.Equal(t, uint32(1), d.CurrentFrame())
	assert.Equal(t, uint32(0), d.PreviousFrame())
	assert.Equal(t, uint64(1), d.AbsoluteFrame())

	d.NewFrame()
	assert.NotSame(t, cb, d.GetCommandBuffer(0, false))
	assert.Equal(t, []uint32{0, 1}, backend.waits)

	cycle(d)
	cycle(d)
	assert.Equal(t, uint32(0), d.CurrentFrame())
	assert.Same(t, cb, d.GetCommandBuffer(0, false))

	requirePanicsWith(t, core.ErrProtocolMisuse, func() { d.GetCommandBuffer(1, false) })
}

func TestShutdownReleasesEveryNativeObject(t *testing.T) {
	for name, caps := range map[string]Capabilities{"legacy": legacyCaps, "dynamic": dynamicCaps, "bindless": bindlessCaps} {
		t.Run(name, func(t *testing.T) {
			d, backend := newTestDevice(t, caps)
			pass, fb := passWithTargets(t, d, 32, 32, nil, LoadOpClear)
			layout := d.CreateDescriptorSetLayout((&DescriptorSetLayoutCreation{}).AddBinding(DescriptorTypeUniformBuffer, 0, 1, "ubo"))
			set := d.CreateDescriptorSet((&DescriptorSetCreation{}).SetLayout(layout).Buffer(d.DummyConstantBuffer(), 0))
			pipeline := testPipeline(t, d, pass, layout)
			sampler := d.CreateSampler((&SamplerCreation{}).SetName("point"))

			framebuffer := d.AccessFramebuffer(fb)
			textures := append([]TextureHandle{}, framebuffer.ColorAttachments...)

			d.DestroyPipeline(pipeline)
			d.DestroyDescriptorSet(set)
			d.DestroyDescriptorSetLayout(layout)
			d.DestroyFramebuffer(fb)
			d.DestroyRenderPass(pass)
			d.DestroySampler(sampler)
			for _, tex := range textures {
				d.DestroyTexture(tex)
			}

			require.NoError(t, d.Shutdown())
			assert.True(t, backend.shutdown)
			assert.Empty(t, backend.live)
			assert.NoError(t, d.Shutdown())
		})
	}
}
