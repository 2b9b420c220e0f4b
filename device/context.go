package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framecore"
)

// Device context errors.
var (
	// ErrContextExists is returned by New while another Context is live.
	ErrContextExists = errors.New("device: a device context is already live")

	// ErrNoQueue is returned when no queue has the requested capability.
	ErrNoQueue = errors.New("device: no queue with requested capability")

	// ErrNilBackend is returned by New for a nil backend.
	ErrNilBackend = errors.New("device: nil backend")
)

// live guards the one-context-per-process rule.
var live atomic.Bool

// SubmissionError is returned by Context.Submit.
type SubmissionError struct {
	Queue string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("device: submit to %s queue: %v", e.Queue, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Queue is a capability-tagged backend queue.
// Submissions and presentation on the same queue are serialized.
type Queue struct {
	index int
	caps  framecore.Capability
	label string
	mu    sync.Mutex
}

// Index returns the backend queue index.
func (q *Queue) Index() int { return q.index }

// Capabilities returns the work kinds the queue accepts.
func (q *Queue) Capabilities() framecore.Capability { return q.caps }

// Label returns the queue label.
func (q *Queue) Label() string { return q.label }

// Stats reports sync object and submission counters.
type Stats struct {
	// Fences and Semaphores count live backend objects, pooled ones included.
	Fences           int
	FencesPooled     int
	Semaphores       int
	SemaphoresPooled int
	Submissions      uint64
}

// Context owns the backend device and its queues.
//
// Context is safe for concurrent use.
type Context struct {
	backend Backend
	config  framecore.Config
	queues  []*Queue

	mu         sync.Mutex
	fencePool  []Fence
	semPool    []Semaphore
	fences     int
	semaphores int
	destroyed  bool

	submissions atomic.Uint64
	lost        atomic.Bool
}

// New creates the process-wide device context over backend.
// It fails with ErrContextExists while another Context is live.
func New(backend Backend, config framecore.Config) (*Context, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if !live.CompareAndSwap(false, true) {
		return nil, ErrContextExists
	}

	infos := backend.Queues()
	if len(infos) == 0 {
		live.Store(false)
		return nil, fmt.Errorf("device: backend %s exposes no queues: %w", backend.Name(), ErrNoQueue)
	}

	c := &Context{
		backend: backend,
		config:  config,
		queues:  make([]*Queue, 0, len(infos)),
	}
	for _, info := range infos {
		c.queues = append(c.queues, &Queue{
			index: info.Index,
			caps:  info.Capabilities,
			label: info.Label,
		})
	}

	if config.Validation {
		if dm, ok := backend.(DebugMessenger); ok {
			dm.SetDebugCallback(logDebugMessage)
		}
	}

	framecore.Logger().Info("device: context created",
		"backend", backend.Name(),
		"queues", len(c.queues),
		"validation", config.Validation)
	return c, nil
}

// Backend returns the underlying backend.
func (c *Context) Backend() Backend { return c.backend }

// Config returns the configuration the context was created with.
func (c *Context) Config() framecore.Config { return c.config }

// Lost reports whether the device has been lost.
func (c *Context) Lost() bool { return c.lost.Load() }

// AcquireQueue returns the first queue that has every bit of capability.
func (c *Context) AcquireQueue(capability framecore.Capability) (*Queue, error) {
	if capability == 0 {
		return nil, ErrNoQueue
	}
	for _, q := range c.queues {
		if q.caps.Has(capability) {
			return q, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoQueue, capability)
}

// Queues returns all queues.
func (c *Context) Queues() []*Queue {
	return append([]*Queue(nil), c.queues...)
}

// CreateFence returns a fence, reusing a pooled one when an unsignaled fence
// is requested. Pooled fences are always reset.
func (c *Context) CreateFence(signaled bool) (Fence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return 0, framecore.ErrClosed
	}
	if !signaled && len(c.fencePool) > 0 {
		f := c.fencePool[len(c.fencePool)-1]
		c.fencePool = c.fencePool[:len(c.fencePool)-1]
		return f, nil
	}
	f, err := c.backend.CreateFence(signaled)
	if err != nil {
		return 0, c.check(fmt.Errorf("device: create fence: %w", err))
	}
	c.fences++
	return f, nil
}

// ReleaseFence resets f and returns it to the pool.
// The caller guarantees no pending submission signals f.
func (c *Context) ReleaseFence(f Fence) {
	if f == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if err := c.backend.ResetFence(f); err != nil {
		c.backend.DestroyFence(f)
		c.fences--
		return
	}
	c.fencePool = append(c.fencePool, f)
}

// CreateSemaphore returns a semaphore from the pool or the backend.
func (c *Context) CreateSemaphore() (Semaphore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return 0, framecore.ErrClosed
	}
	if n := len(c.semPool); n > 0 {
		s := c.semPool[n-1]
		c.semPool = c.semPool[:n-1]
		return s, nil
	}
	s, err := c.backend.CreateSemaphore()
	if err != nil {
		return 0, c.check(fmt.Errorf("device: create semaphore: %w", err))
	}
	c.semaphores++
	return s, nil
}

// ReleaseSemaphore returns s to the pool.
// The caller guarantees s has no pending signal or wait.
func (c *Context) ReleaseSemaphore(s Semaphore) {
	if s == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.semPool = append(c.semPool, s)
}

// Submit sends sub to q. Device loss is reported as a *SubmissionError
// wrapping framecore.ErrDeviceLost and is never retried.
func (c *Context) Submit(q *Queue, sub Submission) error {
	if q == nil {
		return ErrNoQueue
	}
	if c.lost.Load() {
		return &SubmissionError{Queue: q.label, Err: framecore.ErrDeviceLost}
	}

	q.mu.Lock()
	err := c.backend.Submit(q.index, sub)
	q.mu.Unlock()

	if err != nil {
		return &SubmissionError{Queue: q.label, Err: c.check(err)}
	}
	c.submissions.Add(1)
	return nil
}

// WithQueue runs fn while holding q's submission lock. Presentation uses it
// to serialize against Submit. fn must not call Submit on the same queue.
func (c *Context) WithQueue(q *Queue, fn func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return c.check(fn())
}

// WaitFence blocks until f signals or timeout expires.
// It returns false, nil on timeout.
func (c *Context) WaitFence(f Fence, timeout time.Duration) (bool, error) {
	if c.lost.Load() {
		return false, framecore.ErrDeviceLost
	}
	ok, err := c.backend.WaitFence(f, timeout)
	if err != nil {
		if errors.Is(err, framecore.ErrFrameTimeout) {
			return false, nil
		}
		return false, c.check(fmt.Errorf("device: wait fence: %w", err))
	}
	return ok, nil
}

// FenceSignaled polls f without blocking.
func (c *Context) FenceSignaled(f Fence) (bool, error) {
	if c.lost.Load() {
		return false, framecore.ErrDeviceLost
	}
	ok, err := c.backend.FenceStatus(f)
	if err != nil {
		return false, c.check(fmt.Errorf("device: fence status: %w", err))
	}
	return ok, nil
}

// ResetFence returns f to the unsignaled state.
func (c *Context) ResetFence(f Fence) error {
	if err := c.backend.ResetFence(f); err != nil {
		return c.check(fmt.Errorf("device: reset fence: %w", err))
	}
	return nil
}

// NewCommandEncoder creates a backend command encoder.
func (c *Context) NewCommandEncoder(label string) (CommandEncoder, error) {
	enc, err := c.backend.CreateCommandEncoder(label)
	if err != nil {
		return nil, c.check(fmt.Errorf("device: create command encoder %q: %w", label, err))
	}
	return enc, nil
}

// CreateBuffer allocates a backend buffer.
func (c *Context) CreateBuffer(desc *BufferDescriptor) (Buffer, error) {
	if c.lost.Load() {
		return nil, framecore.ErrDeviceLost
	}
	b, err := c.backend.CreateBuffer(desc)
	if err != nil {
		return nil, c.check(err)
	}
	return b, nil
}

// DestroyBuffer releases a backend buffer.
func (c *Context) DestroyBuffer(b Buffer) {
	if b != nil {
		c.backend.DestroyBuffer(b)
	}
}

// CreateImage allocates a backend image.
func (c *Context) CreateImage(desc *ImageDescriptor) (Image, error) {
	if c.lost.Load() {
		return nil, framecore.ErrDeviceLost
	}
	img, err := c.backend.CreateImage(desc)
	if err != nil {
		return nil, c.check(err)
	}
	return img, nil
}

// DestroyImage releases a backend image.
func (c *Context) DestroyImage(img Image) {
	if img != nil {
		c.backend.DestroyImage(img)
	}
}

// WriteImage copies tightly packed pixel rows into one mip level of img.
// The write is serialized with submissions on the first transfer queue.
func (c *Context) WriteImage(img Image, level uint32, extent framecore.Extent, data []byte) error {
	if c.lost.Load() {
		return framecore.ErrDeviceLost
	}
	q, err := c.AcquireQueue(framecore.CapabilityTransfer)
	if err != nil {
		return err
	}
	q.mu.Lock()
	err = c.backend.WriteImage(img, level, extent, data)
	q.mu.Unlock()
	if err != nil {
		return c.check(fmt.Errorf("device: write image level %d: %w", level, err))
	}
	return nil
}

// WaitIdle blocks until all submitted work has completed. Use it only at
// shutdown and swapchain teardown.
func (c *Context) WaitIdle() error {
	if c.lost.Load() {
		return framecore.ErrDeviceLost
	}
	if err := c.backend.WaitIdle(); err != nil {
		return c.check(fmt.Errorf("device: wait idle: %w", err))
	}
	return nil
}

// Stats returns sync object and submission counters.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Fences:           c.fences,
		FencesPooled:     len(c.fencePool),
		Semaphores:       c.semaphores,
		SemaphoresPooled: len(c.semPool),
		Submissions:      c.submissions.Load(),
	}
}

// Destroy releases pooled sync objects and the backend device, and allows a
// new Context to be created. Dependents must be destroyed first.
// Destroy is idempotent.
func (c *Context) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	for _, f := range c.fencePool {
		c.backend.DestroyFence(f)
	}
	for _, s := range c.semPool {
		c.backend.DestroySemaphore(s)
	}
	c.fencePool = nil
	c.semPool = nil
	c.mu.Unlock()

	if dm, ok := c.backend.(DebugMessenger); ok && c.config.Validation {
		dm.SetDebugCallback(nil)
	}
	c.backend.Destroy()
	live.Store(false)

	framecore.Logger().Info("device: context destroyed", "backend", c.backend.Name())
}

// DestroyFence destroys f immediately instead of pooling it.
func (c *Context) DestroyFence(f Fence) {
	if f == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.backend.DestroyFence(f)
	c.fences--
}

// DestroySemaphore destroys s immediately instead of pooling it.
func (c *Context) DestroySemaphore(s Semaphore) {
	if s == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.backend.DestroySemaphore(s)
	c.semaphores--
}

// check marks the context lost when err reports device loss.
func (c *Context) check(err error) error {
	if err != nil && errors.Is(err, framecore.ErrDeviceLost) {
		if c.lost.CompareAndSwap(false, true) {
			framecore.Logger().Error("device: device lost", "backend", c.backend.Name(), "err", err)
		}
	}
	return err
}
