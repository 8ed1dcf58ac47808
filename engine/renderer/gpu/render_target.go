package gpu

// RenderTarget opens and closes the render target of a pass. One
// implementation is chosen per device from its capabilities.
type RenderTarget interface {
	BeginTarget(recorder CommandRecorder, pass *RenderPass, framebuffer *Framebuffer, clears *[2]ClearValue, secondary bool)
	EndTarget(recorder CommandRecorder)
	Dynamic() bool
}

type textureResolver func(TextureHandle) *Texture

func newRenderTarget(dynamic bool, textures textureResolver) RenderTarget {
	if dynamic {
		return &dynamicRenderingTarget{textures: textures}
	}
	return &legacyRenderPassTarget{}
}

// legacyRenderPassTarget begins a native render pass over a native framebuffer.
type legacyRenderPassTarget struct{}

func (t *legacyRenderPassTarget) Dynamic() bool { return false }

func (t *legacyRenderPassTarget) BeginTarget(recorder CommandRecorder, pass *RenderPass, framebuffer *Framebuffer, clears *[2]ClearValue, secondary bool) {
	out := &pass.Output
	clearValues := make([]ClearValue, 0, MaxImageOutputs+1)
	loadOps := make([]LoadOp, 0, MaxImageOutputs+1)

	for a := uint32(0); a < out.NumColorFormats; a++ {
		op := out.ColorOperations[a]
		loadOps = append(loadOps, op)
		if op == LoadOpClear {
			clearValues = append(clearValues, clears[0])
		}
	}
	if out.DepthStencilFormat != FormatUndefined {
		loadOps = append(loadOps, out.DepthOperation)
		if out.DepthOperation == LoadOpClear {
			clearValues = append(clearValues, clears[1])
		}
	}

	recorder.BeginRenderPass(&RenderPassBeginInfo{
		RenderPass:        pass.Native,
		Framebuffer:       framebuffer.Native,
		RenderArea:        Rect2DInt{Width: uint32(framebuffer.Width), Height: uint32(framebuffer.Height)},
		ClearValues:       clearValues,
		AttachmentLoadOps: loadOps,
		Secondary:         secondary,
	})
}

func (t *legacyRenderPassTarget) EndTarget(recorder CommandRecorder) {
	recorder.EndRenderPass()
}

// dynamicRenderingTarget attaches the framebuffer's views directly.
type dynamicRenderingTarget struct {
	textures textureResolver
}

func (t *dynamicRenderingTarget) Dynamic() bool { return true }

func (t *dynamicRenderingTarget) BeginTarget(recorder CommandRecorder, pass *RenderPass, framebuffer *Framebuffer, clears *[2]ClearValue, secondary bool) {
	out := &pass.Output
	info := &RenderingInfo{
		RenderArea:       Rect2DInt{Width: uint32(framebuffer.Width), Height: uint32(framebuffer.Height)},
		ColorAttachments: make([]RenderingAttachment, 0, len(framebuffer.ColorAttachments)),
		Secondary:        secondary,
	}

	for a, handle := range framebuffer.ColorAttachments {
		texture := t.textures(handle)
		if texture == nil {
			fatalf(errInvalidHandle, "framebuffer %q color attachment %d", framebuffer.Name, a)
		}
		op := out.ColorOperations[a]
		attachment := RenderingAttachment{
			View:    texture.View,
			Layout:  ImageLayoutColorAttachmentOptimal,
			LoadOp:  op,
			StoreOp: StoreOpStore,
		}
		if op == LoadOpClear {
			attachment.ClearValue = clears[0]
		}
		info.ColorAttachments = append(info.ColorAttachments, attachment)
	}

	if framebuffer.HasDepthStencil() {
		texture := t.textures(framebuffer.DepthStencilAttachment)
		if texture == nil {
			fatalf(errInvalidHandle, "framebuffer %q depth attachment", framebuffer.Name)
		}
		attachment := RenderingAttachment{
			View:    texture.View,
			Layout:  ImageLayoutDepthStencilAttachmentOptimal,
			LoadOp:  out.DepthOperation,
			StoreOp: StoreOpStore,
		}
		if out.DepthOperation == LoadOpClear {
			attachment.ClearValue = clears[1]
		}
		info.DepthAttachment = &attachment
	}

	recorder.BeginRendering(info)
}

func (t *dynamicRenderingTarget) EndTarget(recorder CommandRecorder) {
	recorder.EndRendering()
}
