// Package fakegpu is a deterministic, scriptable backend for tests.
//
// Fences signal at submission unless manual fences are requested, in which
// case they stay pending until Complete or Signal is called. Every fence
// wait, poll, reset, submission, acquire and present is appended to an event
// log so tests can check ordering. Device loss, allocation and submission
// failures, stale swapchains and acquire timeouts can be injected. Image
// writes are kept per mip level.
package fakegpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
)

// EventKind classifies a logged backend call.
type EventKind uint8

const (
	EventSubmit EventKind = iota
	EventWait
	EventStatus
	EventReset
	EventAcquire
	EventPresent
)

func (k EventKind) String() string {
	switch k {
	case EventSubmit:
		return "submit"
	case EventWait:
		return "wait"
	case EventStatus:
		return "status"
	case EventReset:
		return "reset"
	case EventAcquire:
		return "acquire"
	case EventPresent:
		return "present"
	default:
		return "unknown"
	}
}

// Event is one logged backend call.
type Event struct {
	Kind  EventKind
	Fence device.Fence

	// Signaled is the fence state observed by a wait or status poll.
	Signaled bool

	// Image is the swapchain image index of an acquire or present.
	Image int
}

// Allocation is a fake buffer or image.
type Allocation struct {
	ID    uint64
	Label string
	Size  uint64

	levels map[uint32][]byte
}

type fenceState struct {
	signaled bool
	pending  bool
}

// Option configures a Device.
type Option func(*Device)

// WithManualFences keeps submitted fences pending until Complete or Signal.
func WithManualFences() Option {
	return func(d *Device) { d.manual = true }
}

// WithQueues replaces the default single universal queue.
func WithQueues(queues ...device.QueueInfo) Option {
	return func(d *Device) { d.queues = queues }
}

// Device implements device.Backend and device.DebugMessenger.
// It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	manual bool
	queues []device.QueueInfo

	nextID     uint64
	fences     map[device.Fence]*fenceState
	semaphores map[device.Semaphore]struct{}
	allocs     map[*Allocation]struct{}
	encoders   []*Encoder
	events     []Event

	submits      int
	loseOnSubmit int
	failSubmit   map[int]error
	lost         bool
	failAllocs   int
	released     int
	destroyed    bool

	debug func(device.DebugMessage)
}

var _ device.Backend = (*Device)(nil)
var _ device.DebugMessenger = (*Device)(nil)

// New creates a fake device.
func New(opts ...Option) *Device {
	d := &Device{
		queues: []device.QueueInfo{{
			Index:        0,
			Capabilities: framecore.CapabilityGraphics | framecore.CapabilityPresent | framecore.CapabilityTransfer,
			Label:        "universal",
		}},
		fences:     make(map[device.Fence]*fenceState),
		semaphores: make(map[device.Semaphore]struct{}),
		allocs:     make(map[*Allocation]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Device) logLocked(e Event) { d.events = append(d.events, e) }

// Name implements device.Backend.
func (d *Device) Name() string { return "fake" }

// Queues implements device.Backend.
func (d *Device) Queues() []device.QueueInfo { return d.queues }

// CreateFence implements device.Backend.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, framecore.ErrDeviceLost
	}
	f := device.Fence(d.id())
	d.fences[f] = &fenceState{signaled: signaled}
	return f, nil
}

// DestroyFence implements device.Backend.
func (d *Device) DestroyFence(f device.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, f)
}

// ResetFence implements device.Backend.
func (d *Device) ResetFence(f device.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("fakegpu: reset unknown fence %d", f)
	}
	st.signaled = false
	d.logLocked(Event{Kind: EventReset, Fence: f})
	return nil
}

// WaitFence implements device.Backend. It never sleeps: a fence that is not
// signaled reports a timeout at once.
func (d *Device) WaitFence(f device.Fence, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return false, framecore.ErrDeviceLost
	}
	st, ok := d.fences[f]
	if !ok {
		return false, fmt.Errorf("fakegpu: wait on unknown fence %d", f)
	}
	d.logLocked(Event{Kind: EventWait, Fence: f, Signaled: st.signaled})
	return st.signaled, nil
}

// FenceStatus implements device.Backend.
func (d *Device) FenceStatus(f device.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return false, framecore.ErrDeviceLost
	}
	st, ok := d.fences[f]
	if !ok {
		return false, fmt.Errorf("fakegpu: status of unknown fence %d", f)
	}
	d.logLocked(Event{Kind: EventStatus, Fence: f, Signaled: st.signaled})
	return st.signaled, nil
}

// CreateSemaphore implements device.Backend.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, framecore.ErrDeviceLost
	}
	s := device.Semaphore(d.id())
	d.semaphores[s] = struct{}{}
	return s, nil
}

// DestroySemaphore implements device.Backend.
func (d *Device) DestroySemaphore(s device.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, s)
}

// CreateCommandEncoder implements device.Backend.
func (d *Device) CreateCommandEncoder(label string) (device.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, framecore.ErrDeviceLost
	}
	e := &Encoder{label: label}
	d.encoders = append(d.encoders, e)
	return e, nil
}

// Submit implements device.Backend.
func (d *Device) Submit(queue int, sub device.Submission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return framecore.ErrDeviceLost
	}
	d.submits++
	if d.loseOnSubmit > 0 && d.submits == d.loseOnSubmit {
		d.lost = true
		return fmt.Errorf("fakegpu: queue %d: %w", queue, framecore.ErrDeviceLost)
	}
	if err, ok := d.failSubmit[d.submits]; ok {
		return fmt.Errorf("fakegpu: queue %d: %w", queue, err)
	}
	if sub.Fence != 0 {
		st, ok := d.fences[sub.Fence]
		if !ok {
			return fmt.Errorf("fakegpu: submit with unknown fence %d", sub.Fence)
		}
		if d.manual {
			st.pending = true
		} else {
			st.signaled = true
		}
	}
	d.logLocked(Event{Kind: EventSubmit, Fence: sub.Fence})
	return nil
}

// CreateBuffer implements device.Backend.
func (d *Device) CreateBuffer(desc *device.BufferDescriptor) (device.Buffer, error) {
	return d.alloc(desc.Label, desc.Size)
}

// DestroyBuffer implements device.Backend.
func (d *Device) DestroyBuffer(b device.Buffer) { d.free(b) }

// CreateImage implements device.Backend.
func (d *Device) CreateImage(desc *device.ImageDescriptor) (device.Image, error) {
	return d.alloc(desc.Label, desc.Extent.Area()*4)
}

// DestroyImage implements device.Backend.
func (d *Device) DestroyImage(img device.Image) { d.free(img) }

// WriteImage implements device.Backend. The bytes are kept per level and
// can be read back with ImageData.
func (d *Device) WriteImage(img device.Image, level uint32, extent framecore.Extent, data []byte) error {
	a, ok := img.(*Allocation)
	if !ok {
		return fmt.Errorf("fakegpu: write image %T", img)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return framecore.ErrDeviceLost
	}
	if _, ok := d.allocs[a]; !ok {
		return fmt.Errorf("fakegpu: write to released image %q", a.Label)
	}
	if want := extent.Area() * 4; uint64(len(data)) != want {
		return fmt.Errorf("fakegpu: write %q level %d: got %d bytes, want %d", a.Label, level, len(data), want)
	}
	if a.levels == nil {
		a.levels = make(map[uint32][]byte)
	}
	a.levels[level] = append([]byte(nil), data...)
	return nil
}

// ImageData returns a copy of the bytes last written to level of img, or
// nil if the level was never written.
func (d *Device) ImageData(img device.Image, level uint32) []byte {
	a, ok := img.(*Allocation)
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.levels[level] == nil {
		return nil
	}
	return append([]byte(nil), a.levels[level]...)
}

func (d *Device) alloc(label string, size uint64) (*Allocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, framecore.ErrDeviceLost
	}
	if d.failAllocs > 0 {
		d.failAllocs--
		return nil, fmt.Errorf("fakegpu: allocate %q: %w", label, framecore.ErrOutOfDeviceMemory)
	}
	a := &Allocation{ID: d.id(), Label: label, Size: size}
	d.allocs[a] = struct{}{}
	return a, nil
}

func (d *Device) free(v any) {
	a, ok := v.(*Allocation)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.allocs[a]; ok {
		delete(d.allocs, a)
		d.released++
	}
}

// WaitIdle implements device.Backend. Pending fences are completed.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return framecore.ErrDeviceLost
	}
	d.completeLocked()
	return nil
}

// Destroy implements device.Backend.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

// SetDebugCallback implements device.DebugMessenger.
func (d *Device) SetDebugCallback(fn func(device.DebugMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.debug = fn
}

// Emit delivers a debug message to the installed callback, if any.
func (d *Device) Emit(m device.DebugMessage) {
	d.mu.Lock()
	fn := d.debug
	d.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}

// Complete signals every pending fence, as if the GPU caught up.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked()
}

func (d *Device) completeLocked() {
	for _, st := range d.fences {
		if st.pending {
			st.pending = false
			st.signaled = true
		}
	}
}

// Signal completes the submission guarded by f.
func (d *Device) Signal(f device.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.fences[f]; ok {
		st.pending = false
		st.signaled = true
	}
}

// LoseDevice makes every following call report framecore.ErrDeviceLost.
func (d *Device) LoseDevice() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

// LoseOnSubmit loses the device on the n-th submission (1-based).
func (d *Device) LoseOnSubmit(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loseOnSubmit = n
}

// FailSubmit makes the n-th submission (1-based) fail with err. Unlike
// LoseOnSubmit the device stays usable.
func (d *Device) FailSubmit(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSubmit == nil {
		d.failSubmit = make(map[int]error)
	}
	d.failSubmit[n] = err
}

// FailAllocations makes the next n allocations fail with
// framecore.ErrOutOfDeviceMemory.
func (d *Device) FailAllocations(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAllocs = n
}

// Events returns a copy of the event log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Submits returns the number of submissions attempted.
func (d *Device) Submits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits
}

// LiveAllocations returns the number of allocations not yet destroyed.
func (d *Device) LiveAllocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.allocs)
}

// Released returns the number of allocations destroyed.
func (d *Device) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// LiveFences returns the number of fences not yet destroyed.
func (d *Device) LiveFences() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fences)
}

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// Encoders returns every encoder created so far.
func (d *Device) Encoders() []*Encoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Encoder(nil), d.encoders...)
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Device) log(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logLocked(e)
}
