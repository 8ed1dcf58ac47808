package gpu

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

var errFakeNative = errors.New("fake native failure")

type fakeBufferBind struct {
	binding uint32
	buffer  NativeHandle
	offset  uint64
}

type fakeDescriptorBind struct {
	bindPoint BindPoint
	layout    NativeHandle
	firstSet  uint32
	sets      []NativeHandle
	offsets   []uint32
}

// fakeRecorder keeps every command it receives.
type fakeRecorder struct {
	secondary bool
	thread    uint32
	frame     uint32

	ops              []string
	begins           int
	inheritance      *Inheritance
	renderPassBegins []RenderPassBeginInfo
	renderingBegins  []RenderingInfo
	pipelines        []NativeHandle
	vertexBinds      []fakeBufferBind
	indexBinds       []fakeBufferBind
	descriptorBinds  []fakeDescriptorBind
	viewports        []NativeViewport
	scissors         []Rect2DInt
	barriers         []NativeBarrier
	copies           []BufferCopy
	imageCopies      int
	fills            int
	draws            int
	dispatches       int
	markers          []string
}

func (r *fakeRecorder) op(name string) { r.ops = append(r.ops, name) }

func (r *fakeRecorder) count(name string) int {
	n := 0
	for _, op := range r.ops {
		if op == name {
			n++
		}
	}
	return n
}

func (r *fakeRecorder) Begin(inheritance *Inheritance) error {
	r.op("begin")
	r.begins++
	r.inheritance = inheritance
	return nil
}

func (r *fakeRecorder) End() error {
	r.op("end")
	return nil
}

func (r *fakeRecorder) Reset() error {
	r.op("reset")
	return nil
}

func (r *fakeRecorder) BeginRenderPass(info *RenderPassBeginInfo) {
	r.op("begin_render_pass")
	r.renderPassBegins = append(r.renderPassBegins, *info)
}

func (r *fakeRecorder) EndRenderPass() { r.op("end_render_pass") }

func (r *fakeRecorder) BeginRendering(info *RenderingInfo) {
	r.op("begin_rendering")
	r.renderingBegins = append(r.renderingBegins, *info)
}

func (r *fakeRecorder) EndRendering() { r.op("end_rendering") }

func (r *fakeRecorder) BindPipeline(_ BindPoint, pipeline NativeHandle) {
	r.op("bind_pipeline")
	r.pipelines = append(r.pipelines, pipeline)
}

func (r *fakeRecorder) BindVertexBuffer(binding uint32, buffer NativeHandle, offset uint64) {
	r.op("bind_vertex_buffer")
	r.vertexBinds = append(r.vertexBinds, fakeBufferBind{binding: binding, buffer: buffer, offset: offset})
}

func (r *fakeRecorder) BindIndexBuffer(buffer NativeHandle, offset uint64, _ IndexType) {
	r.op("bind_index_buffer")
	r.indexBinds = append(r.indexBinds, fakeBufferBind{buffer: buffer, offset: offset})
}

func (r *fakeRecorder) BindDescriptorSets(bindPoint BindPoint, layout NativeHandle, firstSet uint32, sets []NativeHandle, dynamicOffsets []uint32) {
	r.op("bind_descriptor_sets")
	r.descriptorBinds = append(r.descriptorBinds, fakeDescriptorBind{
		bindPoint: bindPoint,
		layout:    layout,
		firstSet:  firstSet,
		sets:      append([]NativeHandle(nil), sets...),
		offsets:   append([]uint32(nil), dynamicOffsets...),
	})
}

func (r *fakeRecorder) SetViewport(viewport NativeViewport) {
	r.op("set_viewport")
	r.viewports = append(r.viewports, viewport)
}

func (r *fakeRecorder) SetScissor(rect Rect2DInt) {
	r.op("set_scissor")
	r.scissors = append(r.scissors, rect)
}

func (r *fakeRecorder) Draw(_, _, _, _ uint32) {
	r.op("draw")
	r.draws++
}

func (r *fakeRecorder) DrawIndexed(_, _, _ uint32, _ int32, _ uint32) {
	r.op("draw_indexed")
	r.draws++
}

func (r *fakeRecorder) DrawIndirect(_ NativeHandle, _ uint64, _, _ uint32) {
	r.op("draw_indirect")
	r.draws++
}

func (r *fakeRecorder) DrawIndexedIndirect(_ NativeHandle, _ uint64, _, _ uint32) {
	r.op("draw_indexed_indirect")
	r.draws++
}

func (r *fakeRecorder) Dispatch(_, _, _ uint32) {
	r.op("dispatch")
	r.dispatches++
}

func (r *fakeRecorder) DispatchIndirect(_ NativeHandle, _ uint64) {
	r.op("dispatch_indirect")
	r.dispatches++
}

func (r *fakeRecorder) PipelineBarrier(barrier *NativeBarrier) {
	r.op("pipeline_barrier")
	r.barriers = append(r.barriers, *barrier)
}

func (r *fakeRecorder) FillBuffer(_ NativeHandle, _, _ uint64, _ uint32) {
	r.op("fill_buffer")
	r.fills++
}

func (r *fakeRecorder) CopyBuffer(_, _ NativeHandle, regions []BufferCopy) {
	r.op("copy_buffer")
	r.copies = append(r.copies, regions...)
}

func (r *fakeRecorder) CopyBufferToImage(_, _ NativeHandle, _ ImageLayout, _ BufferImageCopy) {
	r.op("copy_buffer_to_image")
	r.imageCopies++
}

func (r *fakeRecorder) CopyImage(_ NativeHandle, _ ImageLayout, _ NativeHandle, _ ImageLayout, _ ImageCopy) {
	r.op("copy_image")
	r.imageCopies++
}

func (r *fakeRecorder) PushMarker(name string) {
	r.op("push_marker")
	r.markers = append(r.markers, name)
}

func (r *fakeRecorder) PopMarker() { r.op("pop_marker") }

// fakeBackend hands out increasing native handles and tracks which are alive.
type fakeBackend struct {
	mu   sync.Mutex
	caps Capabilities
	next NativeHandle

	live        map[NativeHandle]string
	setPool     map[NativeHandle]NativeHandle
	layoutDescs []NativeDescriptorSetLayoutDesc
	pipelines   []NativePipelineDesc
	writes      []DescriptorWrite
	freedSets   []NativeHandle
	poolResets  int
	passes      int
	recorders   []*fakeRecorder
	submits     [][]CommandRecorder
	waits       []uint32
	shutdown    bool

	failAllocateSet bool
	failShaderStage ShaderStage
}

func newFakeBackend(caps Capabilities) *fakeBackend {
	return &fakeBackend{
		caps:    caps,
		live:    make(map[NativeHandle]string),
		setPool: make(map[NativeHandle]NativeHandle),
	}
}

func (b *fakeBackend) handle(kind string) NativeHandle {
	b.next++
	b.live[b.next] = kind
	return b.next
}

func (b *fakeBackend) release(h NativeHandle) {
	delete(b.live, h)
}

func (b *fakeBackend) liveOf(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.live {
		if k == kind {
			n++
		}
	}
	return n
}

func (b *fakeBackend) isLive(h NativeHandle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.live[h]
	return ok
}

func (b *fakeBackend) Capabilities() Capabilities { return b.caps }

func (b *fakeBackend) CreateBuffer(creation *BufferCreation) (NativeBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	native := NativeBuffer{Buffer: b.handle("buffer")}
	if creation.Persistent || creation.Usage == ResourceUsageStaging {
		native.Mapped = make([]byte, creation.Size)
		copy(native.Mapped, creation.InitialData)
	}
	return native, nil
}

func (b *fakeBackend) DestroyBuffer(buffer NativeBuffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(buffer.Buffer)
}

func (b *fakeBackend) CreateTexture(_ *TextureCreation) (NativeTexture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return NativeTexture{Image: b.handle("image"), View: b.handle("view")}, nil
}

func (b *fakeBackend) DestroyTexture(texture NativeTexture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(texture.Image)
	b.release(texture.View)
}

func (b *fakeBackend) CreateSampler(_ *SamplerCreation) (NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle("sampler"), nil
}

func (b *fakeBackend) DestroySampler(sampler NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(sampler)
}

func (b *fakeBackend) CreateShaderModule(stage ShaderStageCode) (NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failShaderStage != 0 && stage.Stage == b.failShaderStage {
		return NullHandle, errFakeNative
	}
	return b.handle("shader"), nil
}

func (b *fakeBackend) DestroyShaderModule(module NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(module)
}

func (b *fakeBackend) CreateDescriptorSetLayout(desc *NativeDescriptorSetLayoutDesc) (NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.layoutDescs = append(b.layoutDescs, *desc)
	return b.handle("set_layout"), nil
}

func (b *fakeBackend) DestroyDescriptorSetLayout(layout NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(layout)
}

func (b *fakeBackend) CreateDescriptorPool(_ *DescriptorPoolConfig) (NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle("descriptor_pool"), nil
}

func (b *fakeBackend) freePoolSets(pool NativeHandle) {
	for set, owner := range b.setPool {
		if owner == pool {
			b.release(set)
			delete(b.setPool, set)
		}
	}
}

func (b *fakeBackend) DestroyDescriptorPool(pool NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freePoolSets(pool)
	b.release(pool)
}

func (b *fakeBackend) ResetDescriptorPool(pool NativeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poolResets++
	b.freePoolSets(pool)
	return nil
}

func (b *fakeBackend) AllocateDescriptorSet(pool, _ NativeHandle, _ uint32) (NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAllocateSet {
		return NullHandle, errFakeNative
	}
	set := b.handle("descriptor_set")
	b.setPool[set] = pool
	return set, nil
}

func (b *fakeBackend) FreeDescriptorSet(_, set NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freedSets = append(b.freedSets, set)
	delete(b.setPool, set)
	b.release(set)
}

func (b *fakeBackend) UpdateDescriptorSets(writes []DescriptorWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, writes...)
}

func (b *fakeBackend) CreateRenderPass(_ *RenderPassOutput, _ string) (NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.passes++
	return b.handle("render_pass"), nil
}

func (b *fakeBackend) DestroyRenderPass(pass NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(pass)
}

func (b *fakeBackend) CreateFramebuffer(_ *NativeFramebufferDesc) (NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle("framebuffer"), nil
}

func (b *fakeBackend) DestroyFramebuffer(framebuffer NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(framebuffer)
}

func (b *fakeBackend) CreatePipeline(desc *NativePipelineDesc) (NativeHandle, NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pipelines = append(b.pipelines, *desc)
	return b.handle("pipeline"), b.handle("pipeline_layout"), nil
}

func (b *fakeBackend) DestroyPipeline(pipeline, layout NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(pipeline)
	b.release(layout)
}

func (b *fakeBackend) NewCommandRecorder(thread uint32, frame uint32, secondary bool) (CommandRecorder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &fakeRecorder{thread: thread, frame: frame, secondary: secondary}
	b.recorders = append(b.recorders, r)
	b.handle("recorder")
	return r, nil
}

func (b *fakeBackend) FreeCommandRecorder(_ CommandRecorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for h, kind := range b.live {
		if kind == "recorder" {
			delete(b.live, h)
			return
		}
	}
}

func (b *fakeBackend) WaitFrame(frame uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waits = append(b.waits, frame)
	return nil
}

func (b *fakeBackend) Submit(_ uint32, recorders []CommandRecorder) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits = append(b.submits, append([]CommandRecorder(nil), recorders...))
	return nil
}

func (b *fakeBackend) WaitIdle() error { return nil }

func (b *fakeBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown = true
	return nil
}

var (
	legacyCaps   = Capabilities{UniformBufferAlignment: 256}
	dynamicCaps  = Capabilities{DynamicRendering: true, UniformBufferAlignment: 256}
	bindlessCaps = Capabilities{Bindless: true, UniformBufferAlignment: 256}
)

func newTestDevice(t *testing.T, caps Capabilities, mutate ...func(*core.DeviceConfig)) (*Device, *fakeBackend) {
	t.Helper()
	cfg := core.DefaultDeviceConfig()
	cfg.LogLevel = "fatal"
	cfg.DynamicBufferPerFrameSize = 64 * 1024
	cfg.Pools.Buffers = 64
	cfg.Pools.DescriptorSets = 64
	cfg.Pools.LocalDescriptorSets = 8
	for _, m := range mutate {
		m(cfg)
	}
	backend := newFakeBackend(caps)
	d, err := NewDevice(cfg, backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })
	return d, backend
}

func recorderOf(cb *CommandBuffer) *fakeRecorder {
	return cb.recorder.(*fakeRecorder)
}

func requirePanicsWith(t *testing.T, sentinel error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value is %T", r)
		assert.ErrorIs(t, err, sentinel)
	}()
	fn()
}

func colorTarget(t *testing.T, d *Device, width, height uint16) TextureHandle {
	t.Helper()
	h := d.CreateTexture(NewTextureCreation().
		SetSize(width, height, 1).
		SetFlags(1, TextureFlagRenderTarget).
		SetFormatType(FormatR8G8B8A8Unorm, TextureType2D).
		SetName("color"))
	require.True(t, h.IsValid())
	return h
}

func depthTarget(t *testing.T, d *Device, width, height uint16) TextureHandle {
	t.Helper()
	h := d.CreateTexture(NewTextureCreation().
		SetSize(width, height, 1).
		SetFlags(1, TextureFlagRenderTarget).
		SetFormatType(FormatD32Sfloat, TextureType2D).
		SetName("depth"))
	require.True(t, h.IsValid())
	return h
}

// passWithTargets creates a pass with one color attachment per op, an
// optional depth attachment, and a framebuffer over fresh textures.
func passWithTargets(t *testing.T, d *Device, width, height uint16, depth *LoadOp, ops ...LoadOp) (RenderPassHandle, FramebufferHandle) {
	t.Helper()
	pc := NewRenderPassCreation().SetName("test_pass")
	for _, op := range ops {
		pc.AddAttachment(FormatR8G8B8A8Unorm, ImageLayoutColorAttachmentOptimal, op)
	}
	if depth != nil {
		pc.SetDepthStencilTexture(FormatD32Sfloat, ImageLayoutDepthStencilAttachmentOptimal)
		pc.SetDepthStencilOperations(*depth, LoadOpDontCare)
	}
	pass := d.CreateRenderPass(pc)
	require.True(t, pass.IsValid())

	fc := NewFramebufferCreation(pass).SetName("test_fb")
	for range ops {
		fc.AddRenderTexture(colorTarget(t, d, width, height))
	}
	if depth != nil {
		fc.SetDepthStencilTexture(depthTarget(t, d, width, height))
	}
	fb := d.CreateFramebuffer(fc)
	require.True(t, fb.IsValid())
	return pass, fb
}

func testPipeline(t *testing.T, d *Device, pass RenderPassHandle, layouts ...DescriptorSetLayoutHandle) PipelineHandle {
	t.Helper()
	output, ok := d.RenderPassOutput(pass)
	require.True(t, ok)
	pc := &PipelineCreation{RenderPass: output, Topology: TopologyTriangleList, Name: "test_pipeline"}
	pc.Shaders.AddStage([]byte{0x03, 0x02, 0x23, 0x07}, ShaderStageVertex).
		AddStage([]byte{0x03, 0x02, 0x23, 0x07}, ShaderStageFragment).
		SetSpvInput(true)
	for _, l := range layouts {
		pc.AddDescriptorSetLayout(l)
	}
	h := d.CreatePipeline(pc)
	require.True(t, h.IsValid())
	return h
}

func dynamicUniform(t *testing.T, d *Device, size uint32, name string) BufferHandle {
	t.Helper()
	h := d.CreateBuffer((&BufferCreation{}).Set(BufferUsageUniform, ResourceUsageDynamic, size).SetName(name))
	require.True(t, h.IsValid())
	return h
}
