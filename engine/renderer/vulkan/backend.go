package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

// Options configures the instance and device created by New.
type Options struct {
	AppName        string
	Debug          bool
	FramesInFlight uint32
	// InstanceExtensions are added to the ones the backend needs, typically
	// the window system's surface extensions.
	InstanceExtensions []string
}

type commandPoolKey struct {
	thread uint32
	frame  uint32
}

// Backend drives a Vulkan device through goki/vulkan. It implements gpu.Backend.
type Backend struct {
	ID      uuid.UUID
	context *VulkanContext
	objects *objectPool
	log     *log.Logger
	debug   bool

	poolsMu      sync.Mutex
	commandPools map[commandPoolKey]vk.CommandPool

	queueMu sync.Mutex
}

var _ gpu.Backend = (*Backend)(nil)

func New(opts Options) (*Backend, error) {
	if opts.FramesInFlight == 0 {
		opts.FramesInFlight = gpu.MaxFramesInFlight
	}
	id := core.NewInstanceID()
	b := &Backend{
		ID:           id,
		context:      &VulkanContext{Device: &VulkanDevice{GraphicsQueueIndex: -1, TransferQueueIndex: -1}},
		objects:      newObjectPool(),
		log:          core.WithPrefix("vulkan", "instance", id.String()[:8]),
		debug:        opts.Debug,
		commandPools: make(map[commandPoolKey]vk.CommandPool),
	}

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("%w: GetInstanceProcAddress is nil", core.ErrNativeFailure)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize vk: %w", core.ErrNativeFailure, err)
	}

	if err := b.createInstance(opts); err != nil {
		return nil, err
	}
	if err := DeviceCreate(b.context); err != nil {
		b.destroyInstance()
		return nil, err
	}

	b.context.InFlightFences = make([]*VulkanFence, opts.FramesInFlight)
	b.context.Submitted = make([]bool, opts.FramesInFlight)
	for i := range b.context.InFlightFences {
		fence, err := NewFence(b.context, false)
		if err != nil {
			_ = b.Shutdown()
			return nil, err
		}
		b.context.InFlightFences[i] = fence
	}

	b.log.Info("Vulkan backend initialized successfully.", "frames_in_flight", opts.FramesInFlight)
	return b, nil
}

func (b *Backend) createInstance(opts Options) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.AppName),
		PEngineName:        VulkanSafeString("Anima GPU"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := append([]string{}, opts.InstanceExtensions...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if b.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	b.log.Debug("Required extensions", "extensions", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on debug devices.
	var layers []string
	if b.debug {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := requireLayers(layers); err != nil {
			return err
		}
		b.log.Info("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := check(vk.CreateInstance(&createInfo, b.context.Allocator, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, b.context.Allocator)
		return fmt.Errorf("%w: %w", core.ErrNativeFailure, err)
	}
	b.context.Instance = instance
	b.log.Info("Vulkan Instance created.")

	if b.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check(vk.CreateDebugReportCallback(instance, &debugCreateInfo, b.context.Allocator, &dbg), "vkCreateDebugReportCallback"); err != nil {
			b.destroyInstance()
			return err
		}
		b.context.debugMessenger = dbg
		b.log.Debug("Vulkan debugger created.")
	}
	return nil
}

func requireLayers(required []string) error {
	var count uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if cString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: required validation layer is missing: %s", core.ErrNativeFailure, name)
		}
	}
	return nil
}

func (b *Backend) destroyInstance() {
	if b.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = vk.NullDebugReportCallback
	}
	if b.context.Instance != nil {
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
}

func (b *Backend) Capabilities() gpu.Capabilities {
	limits := b.context.Device.Properties.Limits
	maxAnisotropy := float32(1)
	if b.context.Device.Features.SamplerAnisotropy == vk.True {
		maxAnisotropy = limits.MaxSamplerAnisotropy
	}
	return gpu.Capabilities{
		Bindless:               b.context.Device.DescriptorIndexing,
		UniformBufferAlignment: uint32(limits.MinUniformBufferOffsetAlignment),
		StorageBufferAlignment: uint32(limits.MinStorageBufferOffsetAlignment),
		MaxSamplerAnisotropy:   maxAnisotropy,
	}
}

// DepthFormat is the best depth attachment format the device supports.
func (b *Backend) DepthFormat() gpu.Format {
	return gpu.Format(b.context.Device.DepthFormat)
}

func (b *Backend) CreateBuffer(creation *gpu.BufferCreation) (gpu.NativeBuffer, error) {
	buffer, err := bufferCreate(b.context, creation)
	if err != nil {
		return gpu.NativeBuffer{}, err
	}
	return gpu.NativeBuffer{Buffer: b.objects.put(buffer), Mapped: buffer.Mapped}, nil
}

func (b *Backend) DestroyBuffer(buffer gpu.NativeBuffer) {
	if vb, ok := take[*VulkanBuffer](b.objects, buffer.Buffer); ok {
		vb.destroy(b.context)
	}
}

// CreateTexture registers one object for the image and its view, so the
// Image and View handles are equal.
func (b *Backend) CreateTexture(creation *gpu.TextureCreation) (gpu.NativeTexture, error) {
	image, err := ImageCreate(b.context, creation)
	if err != nil {
		return gpu.NativeTexture{}, err
	}
	h := b.objects.put(image)
	return gpu.NativeTexture{Image: h, View: h}, nil
}

func (b *Backend) DestroyTexture(texture gpu.NativeTexture) {
	if image, ok := take[*VulkanImage](b.objects, texture.Image); ok {
		image.Destroy(b.context)
	}
}

func (b *Backend) CreateSampler(creation *gpu.SamplerCreation) (gpu.NativeHandle, error) {
	sampler, err := SamplerCreate(b.context, creation)
	if err != nil {
		return gpu.NullHandle, err
	}
	return b.objects.put(sampler), nil
}

func (b *Backend) DestroySampler(sampler gpu.NativeHandle) {
	if s, ok := take[vk.Sampler](b.objects, sampler); ok {
		vk.DestroySampler(b.context.Device.LogicalDevice, s, b.context.Allocator)
	}
}

func (b *Backend) CreateShaderModule(stage gpu.ShaderStageCode) (gpu.NativeHandle, error) {
	module, err := NewShaderModule(b.context, stage)
	if err != nil {
		return gpu.NullHandle, err
	}
	return b.objects.put(module), nil
}

func (b *Backend) DestroyShaderModule(module gpu.NativeHandle) {
	if m, ok := take[vk.ShaderModule](b.objects, module); ok {
		vk.DestroyShaderModule(b.context.Device.LogicalDevice, m, b.context.Allocator)
	}
}

func (b *Backend) CreateDescriptorSetLayout(desc *gpu.NativeDescriptorSetLayoutDesc) (gpu.NativeHandle, error) {
	layout, err := DescriptorSetLayoutCreate(b.context, desc)
	if err != nil {
		return gpu.NullHandle, err
	}
	return b.objects.put(layout), nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout gpu.NativeHandle) {
	if l, ok := take[vk.DescriptorSetLayout](b.objects, layout); ok {
		vk.DestroyDescriptorSetLayout(b.context.Device.LogicalDevice, l, b.context.Allocator)
	}
}

type descriptorPool struct {
	handle vk.DescriptorPool
	// sets allocated from the pool, dropped from the object pool on reset.
	sets map[gpu.NativeHandle]struct{}
	mu   sync.Mutex
}

func (b *Backend) CreateDescriptorPool(config *gpu.DescriptorPoolConfig) (gpu.NativeHandle, error) {
	pool, err := DescriptorPoolCreate(b.context, config)
	if err != nil {
		return gpu.NullHandle, err
	}
	return b.objects.put(&descriptorPool{handle: pool, sets: make(map[gpu.NativeHandle]struct{})}), nil
}

func (b *Backend) forgetSets(pool *descriptorPool) {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	for set := range pool.sets {
		b.objects.remove(set)
	}
	pool.sets = make(map[gpu.NativeHandle]struct{})
}

func (b *Backend) DestroyDescriptorPool(pool gpu.NativeHandle) {
	if p, ok := take[*descriptorPool](b.objects, pool); ok {
		b.forgetSets(p)
		vk.DestroyDescriptorPool(b.context.Device.LogicalDevice, p.handle, b.context.Allocator)
	}
}

func (b *Backend) ResetDescriptorPool(pool gpu.NativeHandle) error {
	p := lookup[*descriptorPool](b.objects, pool)
	if p == nil {
		return fmt.Errorf("%w: unknown descriptor pool %d", core.ErrNativeFailure, pool)
	}
	b.forgetSets(p)
	return check(vk.ResetDescriptorPool(b.context.Device.LogicalDevice, p.handle, 0), "vkResetDescriptorPool")
}

func (b *Backend) AllocateDescriptorSet(pool, layout gpu.NativeHandle, _ uint32) (gpu.NativeHandle, error) {
	p := lookup[*descriptorPool](b.objects, pool)
	if p == nil {
		return gpu.NullHandle, fmt.Errorf("%w: unknown descriptor pool %d", core.ErrNativeFailure, pool)
	}
	set, err := DescriptorSetAllocate(b.context, p.handle, lookup[vk.DescriptorSetLayout](b.objects, layout))
	if err != nil {
		return gpu.NullHandle, err
	}
	h := b.objects.put(set)
	p.mu.Lock()
	p.sets[h] = struct{}{}
	p.mu.Unlock()
	return h, nil
}

func (b *Backend) FreeDescriptorSet(pool, set gpu.NativeHandle) {
	p := lookup[*descriptorPool](b.objects, pool)
	s, ok := take[vk.DescriptorSet](b.objects, set)
	if p == nil || !ok {
		return
	}
	p.mu.Lock()
	delete(p.sets, set)
	p.mu.Unlock()
	_ = check(vk.FreeDescriptorSets(b.context.Device.LogicalDevice, p.handle, 1, []vk.DescriptorSet{s}), "vkFreeDescriptorSets")
}

func (b *Backend) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	native := descriptorWrites(b.objects, writes)
	if len(native) == 0 {
		return
	}
	vk.UpdateDescriptorSets(b.context.Device.LogicalDevice, uint32(len(native)), native, 0, nil)
}

func (b *Backend) CreateRenderPass(output *gpu.RenderPassOutput, name string) (gpu.NativeHandle, error) {
	pass, err := RenderpassCreate(b.context, output, name)
	if err != nil {
		return gpu.NullHandle, err
	}
	return b.objects.put(pass), nil
}

func (b *Backend) DestroyRenderPass(pass gpu.NativeHandle) {
	if p, ok := take[vk.RenderPass](b.objects, pass); ok {
		vk.DestroyRenderPass(b.context.Device.LogicalDevice, p, b.context.Allocator)
	}
}

func (b *Backend) CreateFramebuffer(desc *gpu.NativeFramebufferDesc) (gpu.NativeHandle, error) {
	views := make([]vk.ImageView, 0, len(desc.Attachments))
	for _, attachment := range desc.Attachments {
		image := lookup[*VulkanImage](b.objects, attachment)
		if image == nil {
			return gpu.NullHandle, fmt.Errorf("%w: framebuffer %q has an unknown attachment", core.ErrNativeFailure, desc.Name)
		}
		views = append(views, image.View)
	}
	fb, err := FramebufferCreate(b.context, lookup[vk.RenderPass](b.objects, desc.RenderPass), desc.Width, desc.Height, views)
	if err != nil {
		return gpu.NullHandle, err
	}
	return b.objects.put(fb), nil
}

func (b *Backend) DestroyFramebuffer(framebuffer gpu.NativeHandle) {
	if fb, ok := take[*VulkanFramebuffer](b.objects, framebuffer); ok {
		fb.Destroy(b.context)
	}
}

func (b *Backend) CreatePipeline(desc *gpu.NativePipelineDesc) (gpu.NativeHandle, gpu.NativeHandle, error) {
	config := &VulkanPipelineConfig{
		Desc:       desc,
		Renderpass: lookup[vk.RenderPass](b.objects, desc.RenderPass),
	}
	for _, layout := range desc.SetLayouts {
		config.DescriptorSetLayouts = append(config.DescriptorSetLayouts, lookup[vk.DescriptorSetLayout](b.objects, layout))
	}
	for _, shader := range desc.Shaders {
		config.Stages = append(config.Stages, shaderStageInfo(shader.Stage, lookup[vk.ShaderModule](b.objects, shader.Module)))
	}

	var (
		pipeline *VulkanPipeline
		err      error
	)
	if desc.GraphicsPipeline {
		pipeline, err = NewGraphicsPipeline(b.context, config)
	} else {
		pipeline, err = NewComputePipeline(b.context, config)
	}
	if err != nil {
		return gpu.NullHandle, gpu.NullHandle, err
	}
	return b.objects.put(pipeline), b.objects.put(pipeline.PipelineLayout), nil
}

func (b *Backend) DestroyPipeline(pipeline, layout gpu.NativeHandle) {
	b.objects.remove(layout)
	if p, ok := take[*VulkanPipeline](b.objects, pipeline); ok {
		p.Destroy(b.context)
	}
}

func (b *Backend) commandPool(thread, frame uint32) (vk.CommandPool, error) {
	b.poolsMu.Lock()
	defer b.poolsMu.Unlock()
	key := commandPoolKey{thread: thread, frame: frame}
	if pool, ok := b.commandPools[key]; ok {
		return pool, nil
	}
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(b.context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(b.context.Device.LogicalDevice, &poolCreateInfo, b.context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	b.commandPools[key] = pool
	return pool, nil
}

func (b *Backend) NewCommandRecorder(threadIndex uint32, frame uint32, secondary bool) (gpu.CommandRecorder, error) {
	pool, err := b.commandPool(threadIndex, frame)
	if err != nil {
		return nil, err
	}
	return NewVulkanCommandBuffer(b.context, b.objects, pool, secondary)
}

func (b *Backend) FreeCommandRecorder(recorder gpu.CommandRecorder) {
	if cb, ok := recorder.(*VulkanCommandBuffer); ok {
		cb.Free(b.context)
	}
}

func (b *Backend) WaitFrame(frame uint32) error {
	if !b.context.Submitted[frame] {
		return nil
	}
	fence := b.context.InFlightFences[frame]
	if err := fence.FenceWait(b.context, fenceTimeoutNs); err != nil {
		return err
	}
	if err := fence.FenceReset(b.context); err != nil {
		return err
	}
	b.context.Submitted[frame] = false
	return nil
}

func (b *Backend) Submit(frame uint32, recorders []gpu.CommandRecorder) error {
	handles := make([]vk.CommandBuffer, 0, len(recorders))
	buffers := make([]*VulkanCommandBuffer, 0, len(recorders))
	for _, recorder := range recorders {
		cb, ok := recorder.(*VulkanCommandBuffer)
		if !ok || cb.Secondary {
			continue
		}
		handles = append(handles, cb.Handle)
		buffers = append(buffers, cb)
	}
	if len(handles) == 0 {
		return nil
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}

	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	fence := b.context.InFlightFences[frame]
	if err := check(vk.QueueSubmit(b.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle), "vkQueueSubmit"); err != nil {
		return err
	}
	fence.IsSignaled = false
	b.context.Submitted[frame] = true
	for _, cb := range buffers {
		cb.UpdateSubmitted()
	}
	return nil
}

func (b *Backend) WaitIdle() error {
	if b.context.Device.LogicalDevice == nil {
		return nil
	}
	return check(vk.DeviceWaitIdle(b.context.Device.LogicalDevice), "vkDeviceWaitIdle")
}

// Shutdown destroys the device and instance. Objects the device core did not
// release are reported as leaks; their memory goes with the device.
func (b *Backend) Shutdown() error {
	if b.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(b.context.Device.LogicalDevice)

		if leaked := b.objects.len(); leaked > 0 {
			b.log.Warn("native objects still alive at shutdown", "count", leaked)
		}

		for _, fence := range b.context.InFlightFences {
			if fence != nil {
				fence.FenceDestroy(b.context)
			}
		}
		b.context.InFlightFences = nil

		b.poolsMu.Lock()
		for key, pool := range b.commandPools {
			vk.DestroyCommandPool(b.context.Device.LogicalDevice, pool, b.context.Allocator)
			delete(b.commandPools, key)
		}
		b.poolsMu.Unlock()

		DeviceDestroy(b.context)
	}
	b.destroyInstance()
	b.log.Info("Vulkan backend shut down.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
