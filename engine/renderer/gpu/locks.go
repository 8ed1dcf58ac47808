package gpu

import "sync"

type LockGroup string

const (
	BufferManagement        LockGroup = "buffer_management"
	TextureManagement       LockGroup = "texture_management"
	SamplerManagement       LockGroup = "sampler_management"
	ShaderManagement        LockGroup = "shader_management"
	DescriptorManagement    LockGroup = "descriptor_management"
	PipelineManagement      LockGroup = "pipeline_management"
	RenderpassManagement    LockGroup = "renderpass_management"
	FramebufferManagement   LockGroup = "framebuffer_management"
	DeletionManagement      LockGroup = "deletion_management"
	CommandBufferManagement LockGroup = "command_buffer_management"
	QueueManagement         LockGroup = "queue_management"
)

// LockPool hands out one mutex per group so unrelated pools never contend.
type LockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map

	queueMutexes map[uint32]*sync.Mutex // Queue family index as key
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (lp *LockPool) lock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	l, exists := lp.locks[group]
	if !exists {
		l = &sync.Mutex{}
		lp.locks[group] = l
	}
	lp.mu.Unlock()

	l.Lock()
	return l
}

func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.lock(group)
	defer l.Unlock()

	return fn()
}

// With runs fn while holding the group lock.
func (lp *LockPool) With(group LockGroup, fn func()) {
	l := lp.lock(group)
	defer l.Unlock()

	fn()
}

func (lp *LockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	lp.mu.Lock()
	l, exists := lp.queueMutexes[queueFamilyIndex]
	if !exists {
		l = &sync.Mutex{}
		lp.queueMutexes[queueFamilyIndex] = l
	}
	lp.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	return fn()
}
