package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func bindlessWrites(backend *fakeBackend, set NativeHandle, from int) []DescriptorWrite {
	var out []DescriptorWrite
	for _, w := range backend.writes[from:] {
		if w.Set == set {
			out = append(out, w)
		}
	}
	return out
}

func TestBindlessTableIsCreatedWhenSupported(t *testing.T) {
	d, backend := newTestDevice(t, bindlessCaps)
	require.True(t, d.UsesBindless())

	layout := d.AccessDescriptorSetLayout(d.BindlessLayout())
	require.NotNil(t, layout)
	assert.True(t, layout.Bindless)

	desc := backend.layoutDescs[0]
	assert.True(t, desc.Bindless)
	require.Len(t, desc.Bindings, 2)
	assert.Equal(t, uint16(BindlessTextureBinding), desc.Bindings[0].Index)
	assert.Equal(t, uint16(MaxBindlessResources), desc.Bindings[0].Count)
	assert.Equal(t, DescriptorTypeStorageImage, desc.Bindings[1].Type)

	off, _ := newTestDevice(t, bindlessCaps, func(c *core.DeviceConfig) { c.EnableBindless = false })
	assert.False(t, off.UsesBindless())
	assert.False(t, off.BindlessLayout().IsValid())

	unsupported, _ := newTestDevice(t, legacyCaps)
	assert.False(t, unsupported.UsesBindless())
}

func TestBindlessRejectsTexturePoolLargerThanTable(t *testing.T) {
	cfg := core.DefaultDeviceConfig()
	cfg.LogLevel = "fatal"
	cfg.Pools.Textures = MaxBindlessResources + 1
	backend := newFakeBackend(bindlessCaps)

	d, err := NewDevice(cfg, backend)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.True(t, backend.shutdown)
	assert.Empty(t, backend.live)
}

func TestBindlessTexturesAreWrittenAtNextFrame(t *testing.T) {
	d, backend := newTestDevice(t, bindlessCaps)
	set := d.bindless.native

	d.NewFrame()
	initial := bindlessWrites(backend, set, 0)
	require.Len(t, initial, 1)
	assert.Equal(t, d.DummyTexture().Index, initial[0].ArrayElement)

	from := len(backend.writes)
	texture := colorTarget(t, d, 8, 8)
	assert.Empty(t, bindlessWrites(backend, set, from))

	cycle(d)
	d.NewFrame()
	writes := bindlessWrites(backend, set, from)
	require.Len(t, writes, 1)
	assert.Equal(t, uint32(BindlessTextureBinding), writes[0].Binding)
	assert.Equal(t, texture.Index, writes[0].ArrayElement)
	assert.Equal(t, DescriptorTypeCombinedImageSampler, writes[0].Type)
	assert.Equal(t, d.AccessTexture(texture).View, writes[0].ImageView)
	assert.Equal(t, d.AccessSampler(d.DefaultSampler()).Native, writes[0].Sampler)
	assert.Equal(t, ImageLayoutShaderReadOnlyOptimal, writes[0].ImageLayout)
}

func TestBindlessLinkedSamplerAndStorageImage(t *testing.T) {
	d, backend := newTestDevice(t, bindlessCaps)
	set := d.bindless.native
	d.NewFrame()

	from := len(backend.writes)
	sampler := d.CreateSampler((&SamplerCreation{}).SetMinMagMip(FilterNearest, FilterNearest, MipmapModeNearest).SetName("point"))
	texture := d.CreateTexture(NewTextureCreation().
		SetSize(16, 16, 1).
		SetFlags(1, TextureFlagCompute).
		SetFormatType(FormatR8G8B8A8Unorm, TextureType2D).
		SetName("storage"))
	d.LinkTextureSampler(texture, sampler)
	assert.Equal(t, sampler, d.AccessTexture(texture).Sampler)

	cycle(d)
	d.NewFrame()

	var storage, sampled int
	for _, w := range bindlessWrites(backend, set, from) {
		require.Equal(t, texture.Index, w.ArrayElement)
		switch w.Binding {
		case BindlessTextureBinding:
			sampled++
			assert.Equal(t, d.AccessSampler(sampler).Native, w.Sampler)
		case bindlessStorageImageBinding:
			storage++
			assert.Equal(t, DescriptorTypeStorageImage, w.Type)
			assert.Equal(t, ImageLayoutGeneral, w.ImageLayout)
		}
	}
	// queued once on creation and once when the sampler was linked
	assert.Equal(t, 2, sampled)
	assert.Equal(t, 2, storage)
}

func TestBindlessSlotFallsBackToDummyOnDestroy(t *testing.T) {
	d, backend := newTestDevice(t, bindlessCaps)
	set := d.bindless.native
	texture := colorTarget(t, d, 4, 4)
	d.NewFrame()

	from := len(backend.writes)
	d.DestroyTextureInstant(texture)
	d.Present()
	d.NewFrame()

	writes := bindlessWrites(backend, set, from)
	require.Len(t, writes, 1)
	assert.Equal(t, texture.Index, writes[0].ArrayElement)
	assert.Equal(t, d.AccessTexture(d.DummyTexture()).View, writes[0].ImageView)
}

func TestBindlessSetIsBoundAtSetZero(t *testing.T) {
	d, backend := newTestDevice(t, bindlessCaps)
	pass, fb := passWithTargets(t, d, 32, 32, nil, LoadOpClear)
	layout := d.CreateDescriptorSetLayout((&DescriptorSetLayoutCreation{}).AddBinding(DescriptorTypeUniformBuffer, 0, 1, "ubo"))
	set := d.CreateDescriptorSet((&DescriptorSetCreation{}).SetLayout(layout).Buffer(d.DummyConstantBuffer(), 0))
	pipeline := testPipeline(t, d, pass, layout)

	desc := backend.pipelines[len(backend.pipelines)-1]
	require.Len(t, desc.SetLayouts, 2)
	assert.Equal(t, d.AccessDescriptorSetLayout(d.BindlessLayout()).Native, desc.SetLayouts[0])
	assert.Equal(t, d.AccessDescriptorSetLayout(layout).Native, desc.SetLayouts[1])

	cb := d.GetCommandBuffer(0, true)
	cb.BindPass(pass, fb, false)
	cb.BindPipeline(pipeline)
	cb.BindDescriptorSet(set)

	binds := recorderOf(cb).descriptorBinds
	require.Len(t, binds, 2)
	assert.Equal(t, uint32(1), binds[0].firstSet)
	assert.Equal(t, []NativeHandle{d.AccessDescriptorSet(set).Native}, binds[0].sets)
	assert.Equal(t, []uint32{0}, binds[0].offsets)
	assert.Equal(t, uint32(0), binds[1].firstSet)
	assert.Equal(t, []NativeHandle{d.bindless.native}, binds[1].sets)
	assert.Empty(t, binds[1].offsets)
}
