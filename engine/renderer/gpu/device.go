package gpu

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

const (
	defaultUniformAlignment   uint32 = 256
	fullscreenVertexBufferLen uint32 = 64
	dummyConstantBufferLen    uint32 = 16
	deletionQueueInitialSize         = 256
)

// Device owns every resource pool, the frame ring and the backend. Resource
// creation and destruction may be called from several goroutines; command
// buffers belong to the thread index they were fetched for.
type Device struct {
	ID      uuid.UUID
	log     *log.Logger
	config  *core.DeviceConfig
	backend Backend
	caps    Capabilities
	locks   *LockPool
	target  RenderTarget

	buffers      *ResourcePool[Buffer]
	textures     *ResourcePool[Texture]
	samplers     *ResourcePool[Sampler]
	shaders      *ResourcePool[ShaderState]
	layouts      *ResourcePool[DescriptorSetLayout]
	sets         *ResourcePool[DescriptorSet]
	pipelines    *ResourcePool[Pipeline]
	renderPasses *ResourcePool[RenderPass]
	framebuffers *ResourcePool[Framebuffer]

	renderPassCache      *renderPassCache
	globalDescriptorPool NativeHandle
	bindless             *bindlessTable

	defaultSampler         SamplerHandle
	dummyTexture           TextureHandle
	dummyConstantBuffer    BufferHandle
	fullscreenVertexBuffer BufferHandle
	dynamic                dynamicAllocator

	deletionQueue     *containers.RingQueue[resourceUpdate]
	descriptorUpdates []descriptorSetUpdate

	// commandBuffers is indexed [frame][thread], secondaryBuffers
	// [frame][thread*SecondaryBuffersPerThread+i].
	commandBuffers   [][]*CommandBuffer
	secondaryBuffers [][]*CommandBuffer
	secondaryUsed    [][]uint32
	queued           []*CommandBuffer

	swapchainWidth  uint16
	swapchainHeight uint16
	framesInFlight  uint32
	currentFrame    uint32
	previousFrame   uint32
	absoluteFrame   uint64
	shutdown        bool
}

// NewDevice creates the pools, the default resources and one command buffer
// per thread and frame in flight on top of backend.
func NewDevice(config *core.DeviceConfig, backend Backend) (*Device, error) {
	if config == nil {
		config = core.DefaultDeviceConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxFramesInFlight > MaxFramesInFlight {
		return nil, fmt.Errorf("%w: %d frames in flight, at most %d", core.ErrInvalidConfig, config.MaxFramesInFlight, MaxFramesInFlight)
	}
	core.SetLogLevel(config.LogLevel)

	id := core.NewInstanceID()
	d := &Device{
		ID:              id,
		log:             core.WithPrefix("gpu", "device", config.Name, "id", id.String()[:8]),
		config:          config,
		backend:         backend,
		caps:            backend.Capabilities(),
		locks:           NewLockPool(),
		swapchainWidth:  config.Width,
		swapchainHeight: config.Height,
		framesInFlight:  config.MaxFramesInFlight,
		deletionQueue:   containers.NewRingQueue[resourceUpdate](deletionQueueInitialSize),
	}

	p := config.Pools
	d.buffers = NewResourcePool[Buffer](p.Buffers)
	d.textures = NewResourcePool[Texture](p.Textures)
	d.samplers = NewResourcePool[Sampler](p.Samplers)
	d.shaders = NewResourcePool[ShaderState](p.ShaderStates)
	d.layouts = NewResourcePool[DescriptorSetLayout](p.DescriptorSetLayouts)
	d.sets = NewResourcePool[DescriptorSet](p.DescriptorSets)
	d.pipelines = NewResourcePool[Pipeline](p.Pipelines)
	d.renderPasses = NewResourcePool[RenderPass](p.RenderPasses)
	d.framebuffers = NewResourcePool[Framebuffer](p.Framebuffers)

	d.target = newRenderTarget(config.PreferDynamicRendering && d.caps.DynamicRendering, d.AccessTexture)
	d.renderPassCache = newRenderPassCache(backend)

	if err := d.init(); err != nil {
		d.log.Error("device creation failed", "err", err)
		_ = d.Shutdown()
		return nil, err
	}

	d.log.Info("device created",
		"dynamic_rendering", d.target.Dynamic(),
		"bindless", d.bindlessEnabled(),
		"frames_in_flight", d.framesInFlight,
		"threads", config.NumThreads)
	return d, nil
}

func (d *Device) init() error {
	sizes := make([]DescriptorPoolSize, 0, DescriptorTypeInputAttachment+1)
	for t := DescriptorTypeSampler; t <= DescriptorTypeInputAttachment; t++ {
		sizes = append(sizes, DescriptorPoolSize{Type: t, Count: GlobalPoolElements})
	}
	pool, err := d.backend.CreateDescriptorPool(&DescriptorPoolConfig{
		MaxSets:        d.config.Pools.DescriptorSets,
		Sizes:          sizes,
		FreeIndividual: true,
	})
	if err != nil {
		return err
	}
	d.globalDescriptorPool = pool

	if d.config.EnableBindless && d.caps.Bindless {
		if d.config.Pools.Textures > MaxBindlessResources {
			return fmt.Errorf("%w: %d textures exceed %d bindless slots", core.ErrInvalidConfig, d.config.Pools.Textures, MaxBindlessResources)
		}
		if err := d.initBindless(); err != nil {
			return err
		}
	}

	if err := d.createDefaultResources(); err != nil {
		return err
	}
	return d.createCommandBuffers()
}

func (d *Device) createDefaultResources() error {
	d.defaultSampler = d.CreateSampler((&SamplerCreation{}).
		SetMinMagMip(FilterLinear, FilterLinear, MipmapModeNearest).
		SetAddressModeUVW(AddressModeRepeat, AddressModeRepeat, AddressModeRepeat).
		SetName("default_sampler"))
	if !d.defaultSampler.IsValid() {
		return fmt.Errorf("%w: default sampler", core.ErrNativeFailure)
	}

	alignment := d.caps.UniformBufferAlignment
	if alignment == 0 {
		alignment = defaultUniformAlignment
	}
	perFrame := AlignUp(d.config.DynamicBufferPerFrameSize, alignment)
	dynamicBuffer := d.CreateBuffer((&BufferCreation{}).
		Set(BufferUsageVertex|BufferUsageIndex|BufferUsageUniform, ResourceUsageStream, perFrame*d.framesInFlight).
		SetPersistent(true).
		SetName("dynamic_persistent_buffer"))
	buffer := d.AccessBuffer(dynamicBuffer)
	if buffer == nil || buffer.MappedData == nil {
		return fmt.Errorf("%w: dynamic buffer is not host mapped", core.ErrNativeFailure)
	}
	d.dynamic = dynamicAllocator{
		buffer:    dynamicBuffer,
		mapped:    buffer.MappedData,
		perFrame:  perFrame,
		alignment: alignment,
	}
	d.dynamic.beginFrame(0)

	d.fullscreenVertexBuffer = d.CreateBuffer((&BufferCreation{}).
		Set(BufferUsageVertex, ResourceUsageImmutable, fullscreenVertexBufferLen).
		SetName("fullscreen_vb"))
	d.dummyConstantBuffer = d.CreateBuffer((&BufferCreation{}).
		Set(BufferUsageUniform, ResourceUsageImmutable, dummyConstantBufferLen).
		SetName("dummy_cb"))
	d.dummyTexture = d.CreateTexture(NewTextureCreation().
		SetSize(1, 1, 1).
		SetFormatType(FormatR8G8B8A8Unorm, TextureType2D).
		SetData([]byte{0, 0, 0, 0}).
		SetName("dummy_texture"))
	if !d.fullscreenVertexBuffer.IsValid() || !d.dummyConstantBuffer.IsValid() || !d.dummyTexture.IsValid() {
		return fmt.Errorf("%w: default resources", core.ErrPoolExhausted)
	}
	return nil
}

func (d *Device) createCommandBuffers() error {
	threads := uint32(d.config.NumThreads)
	d.commandBuffers = make([][]*CommandBuffer, d.framesInFlight)
	d.secondaryBuffers = make([][]*CommandBuffer, d.framesInFlight)
	d.secondaryUsed = make([][]uint32, d.framesInFlight)

	handle := uint32(0)
	for frame := uint32(0); frame < d.framesInFlight; frame++ {
		d.secondaryUsed[frame] = make([]uint32, threads)
		for thread := uint32(0); thread < threads; thread++ {
			cb, err := d.newCommandBuffer(thread, frame, handle, false)
			if err != nil {
				return err
			}
			d.commandBuffers[frame] = append(d.commandBuffers[frame], cb)
			handle++

			for i := 0; i < SecondaryBuffersPerThread; i++ {
				secondary, err := d.newCommandBuffer(thread, frame, handle, true)
				if err != nil {
					return err
				}
				d.secondaryBuffers[frame] = append(d.secondaryBuffers[frame], secondary)
				handle++
			}
		}
	}
	return nil
}

func (d *Device) newCommandBuffer(thread, frame, handle uint32, secondary bool) (*CommandBuffer, error) {
	recorder, err := d.backend.NewCommandRecorder(thread, frame, secondary)
	if err != nil {
		return nil, err
	}
	cb, err := newCommandBuffer(d, recorder, thread, frame, handle, secondary)
	if err != nil {
		d.backend.FreeCommandRecorder(recorder)
		return nil, err
	}
	return cb, nil
}

func (d *Device) Config() *core.DeviceConfig { return d.config }

func (d *Device) Capabilities() Capabilities { return d.caps }

func (d *Device) Logger() *log.Logger { return d.log }

func (d *Device) UsesDynamicRendering() bool { return d.target.Dynamic() }

func (d *Device) UsesBindless() bool { return d.bindlessEnabled() }

// BindlessLayout is the layout of set 0 when bindless is enabled.
func (d *Device) BindlessLayout() DescriptorSetLayoutHandle {
	if d.bindless == nil {
		return InvalidDescriptorSetLayout
	}
	return d.bindless.layout
}

// firstUserSet is the set index of the first user descriptor set. Set 0 is
// taken by the bindless table when it exists.
func (d *Device) firstUserSet() uint32 {
	if d.bindlessEnabled() {
		return 1
	}
	return 0
}

func (d *Device) DefaultSampler() SamplerHandle { return d.defaultSampler }

func (d *Device) DummyTexture() TextureHandle { return d.dummyTexture }

func (d *Device) DummyConstantBuffer() BufferHandle { return d.dummyConstantBuffer }

func (d *Device) FullscreenVertexBuffer() BufferHandle { return d.fullscreenVertexBuffer }

func (d *Device) DynamicBuffer() BufferHandle { return d.dynamic.buffer }

func (d *Device) SwapchainExtent() (uint16, uint16) {
	return d.swapchainWidth, d.swapchainHeight
}

func (d *Device) CurrentFrame() uint32 { return d.currentFrame }

func (d *Device) PreviousFrame() uint32 { return d.previousFrame }

func (d *Device) AbsoluteFrame() uint64 { return d.absoluteFrame }

func (d *Device) FramesInFlight() uint32 { return d.framesInFlight }

// GetCommandBuffer returns the primary command buffer of thread for the
// current frame, optionally starting it.
func (d *Device) GetCommandBuffer(thread uint32, begin bool) *CommandBuffer {
	if thread >= uint32(d.config.NumThreads) {
		fatalf(errProtocolMisuse, "thread index %d out of %d", thread, d.config.NumThreads)
	}
	cb := d.commandBuffers[d.currentFrame][thread]
	if begin {
		cb.Begin()
	}
	return cb
}

// GetSecondaryCommandBuffer hands out the next unused secondary buffer of
// thread for this frame, or nil when all of them are taken.
func (d *Device) GetSecondaryCommandBuffer(thread uint32) *CommandBuffer {
	if thread >= uint32(d.config.NumThreads) {
		fatalf(errProtocolMisuse, "thread index %d out of %d", thread, d.config.NumThreads)
	}
	var cb *CommandBuffer
	err := d.locks.SafeCall(CommandBufferManagement, func() error {
		used := d.secondaryUsed[d.currentFrame][thread]
		if used >= SecondaryBuffersPerThread {
			return fmt.Errorf("%w: no secondary command buffer left on thread %d", core.ErrPoolExhausted, thread)
		}
		d.secondaryUsed[d.currentFrame][thread] = used + 1
		cb = d.secondaryBuffers[d.currentFrame][thread*SecondaryBuffersPerThread+used]
		return nil
	})
	if err != nil {
		d.log.Warn("secondary command buffer unavailable", "frame", d.currentFrame, "err", err)
		return nil
	}
	return cb
}

// QueueCommandBuffer adds a primary buffer to the next submission.
func (d *Device) QueueCommandBuffer(cb *CommandBuffer) {
	if cb.secondary {
		fatalf(errProtocolMisuse, "secondary command buffers are executed by a primary, not queued")
	}
	d.locks.With(QueueManagement, func() {
		d.queued = append(d.queued, cb)
	})
}

func (d *Device) QueuedCommandBuffers() int {
	n := 0
	d.locks.With(QueueManagement, func() {
		n = len(d.queued)
	})
	return n
}

// NewFrame waits for the current frame slot to retire, then resets its
// command buffers and dynamic memory and runs pending deferred work.
func (d *Device) NewFrame() {
	ifPanic(d.backend.WaitFrame(d.currentFrame))

	for _, cb := range d.commandBuffers[d.currentFrame] {
		cb.Reset()
	}
	for _, cb := range d.secondaryBuffers[d.currentFrame] {
		cb.Reset()
	}
	d.locks.With(CommandBufferManagement, func() {
		for thread := range d.secondaryUsed[d.currentFrame] {
			d.secondaryUsed[d.currentFrame][thread] = 0
		}
	})

	d.locks.With(BufferManagement, func() {
		d.dynamic.beginFrame(d.currentFrame)
	})

	reclaimed := d.processDeletionQueue(false)
	d.applyDescriptorSetUpdates()
	written := d.flushBindless()

	d.log.Debug("new frame", "frame", d.currentFrame, "absolute", d.absoluteFrame, "reclaimed", reclaimed, "bindless_writes", written)
}

func (d *Device) applyDescriptorSetUpdates() {
	var updates []descriptorSetUpdate
	d.locks.With(DescriptorManagement, func() {
		updates = d.descriptorUpdates
		d.descriptorUpdates = nil
	})
	for _, update := range updates {
		d.locks.With(DescriptorManagement, func() {
			d.applyDescriptorSetUpdate(update)
		})
	}
}

// Present ends and submits every queued command buffer for the current
// frame, then advances the frame ring.
func (d *Device) Present() {
	var queued []*CommandBuffer
	d.locks.With(QueueManagement, func() {
		queued = d.queued
		d.queued = nil
	})

	recorders := make([]CommandRecorder, 0, len(queued))
	for _, cb := range queued {
		cb.End()
		recorders = append(recorders, cb.recorder)
	}

	ifPanic(d.locks.SafeQueueCall(0, func() error {
		return d.backend.Submit(d.currentFrame, recorders)
	}))

	d.previousFrame = d.currentFrame
	d.currentFrame = (d.currentFrame + 1) % d.framesInFlight
	d.absoluteFrame++
}

// Resize waits for the GPU, records the new swapchain size and rebuilds every
// framebuffer created with resize enabled. A zero size is ignored.
func (d *Device) Resize(width, height uint16) {
	if width == 0 || height == 0 {
		return
	}
	ifPanic(d.backend.WaitIdle())
	d.swapchainWidth = width
	d.swapchainHeight = height

	d.locks.With(FramebufferManagement, func() {
		d.framebuffers.Each(func(_ ResourceHandle, fb *Framebuffer) {
			if fb.Resize {
				d.resizeFramebuffer(fb, width, height)
			}
		})
	})
	d.log.Info("resized", "width", width, "height", height)
}

func (d *Device) resizeFramebuffer(fb *Framebuffer, width, height uint16) {
	w := uint16(clampDimension(float32(width)*fb.ScaleX, 1))
	h := uint16(clampDimension(float32(height)*fb.ScaleY, 1))
	if w == fb.Width && h == fb.Height {
		return
	}

	for _, attachment := range fb.ColorAttachments {
		d.resizeTexture(attachment, w, h)
	}
	if fb.HasDepthStencil() {
		d.resizeTexture(fb.DepthStencilAttachment, w, h)
	}
	fb.Width = w
	fb.Height = h

	if fb.Native.IsNull() {
		return
	}
	pass := d.AccessRenderPass(fb.RenderPass)
	if pass == nil {
		d.log.Warn("framebuffer outlived its render pass", "framebuffer", fb.Name)
		return
	}
	d.backend.DestroyFramebuffer(fb.Native)
	native, err := d.createNativeFramebuffer(fb, pass)
	ifPanic(err)
	fb.Native = native
}

func (d *Device) resizeTexture(handle TextureHandle, width, height uint16) {
	d.locks.With(TextureManagement, func() {
		texture := d.textures.Access(handle.ResourceHandle)
		if texture == nil {
			return
		}
		d.backend.DestroyTexture(NativeTexture{Image: texture.Image, View: texture.View, Memory: texture.Memory})

		creation := NewTextureCreation().
			SetSize(width, height, texture.Depth).
			SetFlags(texture.Mipmaps, texture.Flags).
			SetFormatType(texture.Format, texture.Type).
			SetName(texture.Name)
		native, err := d.backend.CreateTexture(creation)
		ifPanic(err)

		texture.Image = native.Image
		texture.View = native.View
		texture.Memory = native.Memory
		texture.Width = width
		texture.Height = height
		texture.Layout = ImageLayoutUndefined
	})
	d.queueBindlessTexture(handle.Index, handle)
}

// Shutdown waits for the GPU, drains the deletion queue, destroys the
// device-owned resources and reports anything the caller leaked.
func (d *Device) Shutdown() error {
	if d.shutdown {
		return nil
	}
	d.shutdown = true

	if err := d.backend.WaitIdle(); err != nil {
		d.log.Error("wait idle on shutdown", "err", err)
	}

	for _, frame := range d.commandBuffers {
		for _, cb := range frame {
			cb.destroy()
		}
	}
	for _, frame := range d.secondaryBuffers {
		for _, cb := range frame {
			cb.destroy()
		}
	}
	d.commandBuffers = nil
	d.secondaryBuffers = nil

	d.processDeletionQueue(true)

	if d.dummyTexture.IsValid() {
		d.DestroyTextureInstant(d.dummyTexture)
	}
	for _, b := range []BufferHandle{d.dummyConstantBuffer, d.fullscreenVertexBuffer, d.dynamic.buffer} {
		if b.IsValid() {
			d.DestroyBufferInstant(b)
		}
	}
	if d.defaultSampler.IsValid() {
		d.DestroySamplerInstant(d.defaultSampler)
	}
	d.destroyBindless()

	d.reportLeaks()

	d.renderPassCache.destroy()
	if !d.globalDescriptorPool.IsNull() {
		d.backend.DestroyDescriptorPool(d.globalDescriptorPool)
		d.globalDescriptorPool = NullHandle
	}

	d.log.Info("device shut down", "frames", d.absoluteFrame)
	return d.backend.Shutdown()
}

func (d *Device) reportLeaks() {
	leaks := map[ResourceKind]uint32{
		ResourceKindBuffer:              d.buffers.Used(),
		ResourceKindTexture:             d.textures.Used(),
		ResourceKindSampler:             d.samplers.Used(),
		ResourceKindShaderState:         d.shaders.Used(),
		ResourceKindDescriptorSetLayout: d.layouts.Used(),
		ResourceKindDescriptorSet:       d.sets.Used(),
		ResourceKindPipeline:            d.pipelines.Used(),
		ResourceKindRenderPass:          d.renderPasses.Used(),
		ResourceKindFramebuffer:         d.framebuffers.Used(),
	}
	for kind, n := range leaks {
		if n > 0 {
			d.log.Warn("resources not destroyed before shutdown", "kind", kind, "count", n)
		}
	}
}
