package device

import (
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/gputypes"
)

// Fence is an opaque backend fence handle. Zero means "no fence".
// Fences signal on the CPU-visible side when a submission completes.
type Fence uint64

// Semaphore is an opaque backend semaphore handle. Zero means "none".
// Semaphores order GPU work against other GPU work and are never waited on
// by the CPU.
type Semaphore uint64

// CommandBuffer is a finished, submittable backend command buffer.
type CommandBuffer any

// Buffer is a backend buffer object.
type Buffer any

// Image is a backend image (texture) object.
type Image any

// CommandEncoder records commands for one frame slot.
// An encoder is reused across frames: Reset releases the command buffers it
// produced once their submission has completed.
type CommandEncoder interface {
	// Begin starts recording.
	Begin(label string) error

	// End finishes recording and returns the command buffer.
	End() (CommandBuffer, error)

	// Discard abandons the current recording.
	Discard()

	// Reset recycles command buffers from earlier recordings.
	Reset() error

	// Destroy releases the encoder.
	Destroy()

	// Native returns the backend encoder for recording draw commands.
	Native() any
}

// QueueInfo describes one backend queue.
type QueueInfo struct {
	Index        int
	Capabilities framecore.Capability
	Label        string
}

// Submission is one batch of work for a queue.
type Submission struct {
	// Commands are executed in order.
	Commands []CommandBuffer

	// Wait semaphores must signal before the commands execute.
	Wait []Semaphore

	// Signal semaphores are signaled when the commands complete.
	Signal []Semaphore

	// Fence, if nonzero, is signaled when the commands complete.
	Fence Fence
}

// BufferDescriptor describes a buffer allocation.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// ImageDescriptor describes an image allocation.
type ImageDescriptor struct {
	Label     string
	Extent    framecore.Extent
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
	MipLevels uint32
}

// Backend is the graphics API binding behind a Context.
//
// Errors must match one of the framecore sentinels when they mean device
// loss, out of memory or timeout. Implementations need not be safe for
// concurrent use: the Context serializes calls per queue and guards its
// own state.
type Backend interface {
	// Name identifies the backend in logs ("vulkan", "noop", ...).
	Name() string

	// Queues lists the queues the device exposes.
	Queues() []QueueInfo

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	ResetFence(f Fence) error

	// WaitFence blocks until f signals or timeout expires.
	// It returns false, nil on timeout.
	WaitFence(f Fence, timeout time.Duration) (bool, error)

	// FenceStatus reports whether f has signaled without blocking.
	FenceStatus(f Fence) (bool, error)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit executes sub on the queue with the given index.
	Submit(queue int, sub Submission) error

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	DestroyBuffer(b Buffer)
	CreateImage(desc *ImageDescriptor) (Image, error)
	DestroyImage(img Image)

	// WriteImage copies data, tightly packed rows of pixels covering
	// extent, into mip level of img. The copy is ordered before any
	// later submission on the same device.
	WriteImage(img Image, level uint32, extent framecore.Extent, data []byte) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device. No other method is called afterwards.
	Destroy()
}
