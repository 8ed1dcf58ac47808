package gpu

import (
	"fmt"
)

func isUniformBuffer(t DescriptorType) bool {
	return t == DescriptorTypeUniformBuffer || t == DescriptorTypeUniformBufferDynamic
}

// nativeLayoutBindings returns the bindings handed to the backend. Uniform
// buffers of regular layouts become dynamic uniform buffers so that aliased
// buffers are addressed through dynamic offsets at bind time.
func nativeLayoutBindings(creation *DescriptorSetLayoutCreation) []DescriptorBinding {
	bindings := make([]DescriptorBinding, len(creation.Bindings))
	copy(bindings, creation.Bindings)
	if creation.Bindless {
		return bindings
	}
	for i := range bindings {
		if bindings[i].Type == DescriptorTypeUniformBuffer {
			bindings[i].Type = DescriptorTypeUniformBufferDynamic
		}
	}
	return bindings
}

// resolveBuffer returns the native buffer that backs b and the byte offset of
// b inside it. offset is used as is for non-aliased buffers.
func (d *Device) resolveBuffer(b *Buffer, offset uint64) (NativeHandle, uint64) {
	if !b.IsAlias() {
		return b.Native, offset
	}
	parent := d.buffers.Access(b.ParentBuffer.ResourceHandle)
	if parent == nil {
		fatalf(errInvalidHandle, "buffer %q has a dead parent", b.Name)
	}
	return parent.Native, uint64(b.GlobalOffset)
}

func (d *Device) resolveSampler(h SamplerHandle) NativeHandle {
	if s := d.samplers.Access(h.ResourceHandle); s != nil {
		return s.Native
	}
	if s := d.samplers.Access(d.defaultSampler.ResourceHandle); s != nil {
		return s.Native
	}
	return NullHandle
}

// samplerForTexture picks the explicit sampler, then the texture's linked one,
// then the default sampler.
func (d *Device) samplerForTexture(explicit SamplerHandle, texture *Texture) NativeHandle {
	if explicit.IsValid() {
		if s := d.samplers.Access(explicit.ResourceHandle); s != nil {
			return s.Native
		}
	}
	return d.resolveSampler(texture.Sampler)
}

// fillWriteDescriptorSets builds one write per entry against layout.
func (d *Device) fillWriteDescriptorSets(layout *DescriptorSetLayout, set NativeHandle, entries []DescriptorSetEntry) ([]DescriptorWrite, error) {
	writes := make([]DescriptorWrite, 0, len(entries))

	for i, entry := range entries {
		position, ok := layout.BindingPosition(entry.Binding)
		if !ok {
			return nil, fmt.Errorf("%w: binding %d is not declared by layout %q", errProtocolMisuse, entry.Binding, layout.Name)
		}
		binding := layout.Bindings[position]

		write := DescriptorWrite{
			Set:     set,
			Binding: uint32(binding.Index),
			Type:    binding.Type,
		}

		switch binding.Type {
		case DescriptorTypeCombinedImageSampler, DescriptorTypeSampledImage, DescriptorTypeStorageImage, DescriptorTypeInputAttachment:
			texture := d.textures.Access(entry.Resource)
			if texture == nil {
				return nil, fmt.Errorf("%w: texture for resource %d of set", errInvalidHandle, i)
			}
			write.ImageView = texture.View
			write.ImageLayout = ImageLayoutShaderReadOnlyOptimal
			if binding.Type == DescriptorTypeStorageImage {
				write.ImageLayout = ImageLayoutGeneral
			}
			if binding.Type == DescriptorTypeCombinedImageSampler {
				write.Sampler = d.samplerForTexture(entry.Sampler, texture)
			}

		case DescriptorTypeSampler:
			sampler := d.samplers.Access(entry.Resource)
			if sampler == nil {
				return nil, fmt.Errorf("%w: sampler for resource %d of set", errInvalidHandle, i)
			}
			write.Sampler = sampler.Native

		case DescriptorTypeUniformBuffer, DescriptorTypeUniformBufferDynamic,
			DescriptorTypeStorageBuffer, DescriptorTypeStorageBufferDynamic:
			buffer := d.buffers.Access(entry.Resource)
			if buffer == nil {
				return nil, fmt.Errorf("%w: buffer for resource %d of set", errInvalidHandle, i)
			}
			if binding.Type == DescriptorTypeUniformBuffer && !layout.Bindless {
				write.Type = DescriptorTypeUniformBufferDynamic
			}
			if write.Type == DescriptorTypeUniformBufferDynamic {
				// Offset comes from the dynamic offset at bind time.
				write.Buffer, _ = d.resolveBuffer(buffer, 0)
			} else {
				write.Buffer, write.Offset = d.resolveBuffer(buffer, 0)
			}
			write.Range = uint64(buffer.Size)

		default:
			return nil, fmt.Errorf("%w: descriptor type %d", errUnsupported, binding.Type)
		}

		writes = append(writes, write)
	}
	return writes, nil
}

// createDescriptorSet allocates a set from nativePool, records it in pool and
// writes its descriptors. Both the native set and the slot are released if
// any step after allocation fails.
func (d *Device) createDescriptorSet(pool *ResourcePool[DescriptorSet], nativePool NativeHandle, creation *DescriptorSetCreation) (DescriptorSetHandle, error) {
	n := creation.NumResources()
	if n > MaxDescriptorsPerSet {
		return InvalidDescriptorSet, fmt.Errorf("%w: %d resources, at most %d per set", errTooManyResource, n, MaxDescriptorsPerSet)
	}
	if len(creation.Samplers) != n || len(creation.Bindings) != n {
		return InvalidDescriptorSet, fmt.Errorf("%w: descriptor set %q has mismatched resource lists", errProtocolMisuse, creation.Name)
	}

	layout := d.layouts.Access(creation.Layout.ResourceHandle)
	if layout == nil {
		return InvalidDescriptorSet, fmt.Errorf("%w: descriptor set %q layout", errInvalidHandle, creation.Name)
	}

	h := pool.Obtain()
	if !h.IsValid() {
		return InvalidDescriptorSet, fmt.Errorf("%w: descriptor sets", errPoolExhausted)
	}

	native, err := d.backend.AllocateDescriptorSet(nativePool, layout.Native, 0)
	if err != nil {
		pool.Release(h)
		return InvalidDescriptorSet, err
	}

	entries := make([]DescriptorSetEntry, n)
	for i := 0; i < n; i++ {
		entries[i] = DescriptorSetEntry{
			Resource: creation.Resources[i],
			Sampler:  creation.Samplers[i],
			Binding:  creation.Bindings[i],
		}
	}

	writes, err := d.fillWriteDescriptorSets(layout, native, entries)
	if err != nil {
		d.backend.FreeDescriptorSet(nativePool, native)
		pool.Release(h)
		return InvalidDescriptorSet, err
	}
	d.backend.UpdateDescriptorSets(writes)

	handle := DescriptorSetHandle{h}
	*pool.Access(h) = DescriptorSet{
		Native:       native,
		Entries:      entries,
		Layout:       layout,
		LayoutHandle: creation.Layout,
		Pool:         nativePool,
		Handle:       handle,
		Name:         creation.Name,
	}
	return handle, nil
}

// appendDynamicOffsets appends one offset per uniform buffer binding of the
// set's layout, in layout declaration order. Each offset is the global offset
// of the buffer the set holds at that binding point.
func (d *Device) appendDynamicOffsets(offsets []uint32, set *DescriptorSet) []uint32 {
	layout := set.Layout
	if layout == nil || layout.Bindless {
		return offsets
	}
	for _, binding := range layout.Bindings {
		if !isUniformBuffer(binding.Type) {
			continue
		}
		entry, ok := set.EntryForBinding(binding.Index)
		if !ok {
			fatalf(errProtocolMisuse, "descriptor set %q has no resource for uniform binding %d", set.Name, binding.Index)
		}
		buffer := d.buffers.Access(entry.Resource)
		if buffer == nil {
			fatalf(errInvalidHandle, "descriptor set %q uniform binding %d", set.Name, binding.Index)
		}
		offsets = append(offsets, buffer.GlobalOffset)
	}
	return offsets
}

// descriptorSetUpdate replaces the contents of a live set. It is applied at
// the start of a frame by writing a fresh native set, so frames still in
// flight keep reading the old one until it is reclaimed.
type descriptorSetUpdate struct {
	set     DescriptorSetHandle
	entries []DescriptorSetEntry
	frame   uint64
}

func (d *Device) applyDescriptorSetUpdate(update descriptorSetUpdate) {
	set := d.sets.Access(update.set.ResourceHandle)
	if set == nil || set.Layout == nil {
		return
	}
	native, err := d.backend.AllocateDescriptorSet(set.Pool, set.Layout.Native, 0)
	if err != nil {
		d.log.Warn("dropping descriptor set update", "set", set.Name, "err", err)
		return
	}
	writes, err := d.fillWriteDescriptorSets(set.Layout, native, update.entries)
	if err != nil {
		d.backend.FreeDescriptorSet(set.Pool, native)
		d.log.Warn("dropping descriptor set update", "set", set.Name, "err", err)
		return
	}
	d.backend.UpdateDescriptorSets(writes)

	d.enqueueDeletion(resourceUpdate{
		kind:       ResourceKindDescriptorSet,
		native:     set.Native,
		nativePool: set.Pool,
		frame:      d.absoluteFrame,
	})
	set.Native = native
	set.Entries = update.entries
}
