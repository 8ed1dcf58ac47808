package gpu

import "fmt"

const bindlessStorageImageBinding = BindlessTextureBinding + 1

type bindlessUpdate struct {
	slot    uint32
	texture TextureHandle
}

// bindlessTable is the update-after-bind set that exposes every texture by
// its pool index.
type bindlessTable struct {
	pool    NativeHandle
	layout  DescriptorSetLayoutHandle
	native  NativeHandle
	pending []bindlessUpdate
}

func (d *Device) initBindless() error {
	pool, err := d.backend.CreateDescriptorPool(&DescriptorPoolConfig{
		MaxSets: MaxBindlessResources,
		Sizes: []DescriptorPoolSize{
			{Type: DescriptorTypeCombinedImageSampler, Count: MaxBindlessResources},
			{Type: DescriptorTypeStorageImage, Count: MaxBindlessResources},
		},
		UpdateAfterBind: true,
	})
	if err != nil {
		return err
	}

	creation := &DescriptorSetLayoutCreation{Bindless: true, Name: "bindless"}
	creation.AddBinding(DescriptorTypeCombinedImageSampler, BindlessTextureBinding, MaxBindlessResources, "textures")
	creation.AddBinding(DescriptorTypeStorageImage, bindlessStorageImageBinding, MaxBindlessResources, "images")
	layout := d.CreateDescriptorSetLayout(creation)
	if !layout.IsValid() {
		d.backend.DestroyDescriptorPool(pool)
		return fmt.Errorf("%w: bindless layout", errUnsupported)
	}

	native, err := d.backend.AllocateDescriptorSet(pool, d.layouts.Access(layout.ResourceHandle).Native, MaxBindlessResources)
	if err != nil {
		d.DestroyDescriptorSetLayoutInstant(layout)
		d.backend.DestroyDescriptorPool(pool)
		return err
	}

	d.bindless = &bindlessTable{pool: pool, layout: layout, native: native}
	return nil
}

func (d *Device) bindlessEnabled() bool {
	return d.bindless != nil
}

// queueBindlessTexture schedules texture to be written into slot at the next frame.
func (d *Device) queueBindlessTexture(slot uint32, texture TextureHandle) {
	if d.bindless == nil {
		return
	}
	d.locks.With(DescriptorManagement, func() {
		d.bindless.pending = append(d.bindless.pending, bindlessUpdate{slot: slot, texture: texture})
	})
}

// flushBindless writes every pending slot. Slots whose texture died before the
// flush are skipped; their destruction queued the dummy texture already.
func (d *Device) flushBindless() int {
	if d.bindless == nil {
		return 0
	}
	var pending []bindlessUpdate
	d.locks.With(DescriptorManagement, func() {
		pending = d.bindless.pending
		d.bindless.pending = nil
	})
	if len(pending) == 0 {
		return 0
	}

	writes := make([]DescriptorWrite, 0, len(pending))
	for _, update := range pending {
		texture := d.textures.Access(update.texture.ResourceHandle)
		if texture == nil {
			continue
		}
		writes = append(writes, DescriptorWrite{
			Set:          d.bindless.native,
			Binding:      BindlessTextureBinding,
			ArrayElement: update.slot,
			Type:         DescriptorTypeCombinedImageSampler,
			ImageView:    texture.View,
			ImageLayout:  ImageLayoutShaderReadOnlyOptimal,
			Sampler:      d.resolveSampler(texture.Sampler),
		})
		if texture.Flags&TextureFlagCompute != 0 {
			writes = append(writes, DescriptorWrite{
				Set:          d.bindless.native,
				Binding:      bindlessStorageImageBinding,
				ArrayElement: update.slot,
				Type:         DescriptorTypeStorageImage,
				ImageView:    texture.View,
				ImageLayout:  ImageLayoutGeneral,
			})
		}
	}
	if len(writes) > 0 {
		d.backend.UpdateDescriptorSets(writes)
	}
	return len(writes)
}

func (d *Device) destroyBindless() {
	if d.bindless == nil {
		return
	}
	d.DestroyDescriptorSetLayoutInstant(d.bindless.layout)
	d.backend.DestroyDescriptorPool(d.bindless.pool)
	d.bindless = nil
}
