package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/gputypes"
)

// FrameTracker reports whether a frame has retired, i.e. the GPU finished
// every submission of that frame. It must not block and must be safe to call
// from any goroutine, since the Registry calls it from Free and Reclaim.
// The frame scheduler implements it.
type FrameTracker interface {
	Retired(id framecore.FrameID) bool
}

// Stats contains resource usage statistics.
type Stats struct {
	// Live is the number of resources reachable through a handle.
	Live int

	// Deferred is the number of freed resources waiting for their last
	// frame to retire.
	Deferred int

	LiveBytes     uint64
	DeferredBytes uint64

	// Budget is the configured byte budget, zero if unlimited.
	Budget uint64

	// Reclaimed is the total number of deferred resources released.
	Reclaimed uint64
}

// String returns a human-readable string of resource stats.
func (s Stats) String() string {
	return fmt.Sprintf("Resources[%d live, %d deferred, %d/%d KB, %d reclaimed]",
		s.Live, s.Deferred,
		(s.LiveBytes+s.DeferredBytes)/1024, s.Budget/1024,
		s.Reclaimed)
}

type entry struct {
	generation uint32
	live       bool

	kind     Kind
	label    string
	bytes    uint64
	lastUsed framecore.FrameID
	buffer   device.Buffer
	image    device.Image

	// Image shape, for WriteImage.
	extent framecore.Extent
	format gputypes.TextureFormat
	levels uint32
}

// pending is a freed resource kept alive until frame retires.
type pending struct {
	frame  framecore.FrameID
	kind   Kind
	label  string
	bytes  uint64
	buffer device.Buffer
	image  device.Image
}

// Registry owns GPU buffers and images on behalf of the caller and releases
// them only once no in-flight frame can reference them.
//
// Registry is safe for concurrent use, provided its FrameTracker is.
type Registry struct {
	mu sync.Mutex

	ctx     *device.Context
	tracker FrameTracker

	entries  []entry
	freeList []uint32
	deferred []pending

	budget        uint64
	liveBytes     uint64
	deferredBytes uint64
	live          int
	reclaimed     uint64

	closed bool
}

// NewRegistry creates a registry allocating from ctx. The byte budget is
// taken from the context configuration.
func NewRegistry(ctx *device.Context) *Registry {
	return &Registry{
		ctx:    ctx,
		budget: ctx.Config().MemoryBudget,
	}
}

// SetTracker installs the frame retirement oracle. Without a tracker every
// freed resource that was used by a frame stays deferred until Close.
func (r *Registry) SetTracker(t FrameTracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker = t
}

// SetBudget updates the byte budget. Zero disables it. Existing resources
// are never released to satisfy a lower budget.
func (r *Registry) SetBudget(bytes uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget = bytes
}

// Allocate creates a resource.
//
// An allocation that does not fit the budget or the device fails with an
// *framecore.AllocationError of kind AllocationOutOfMemory; run Reclaim and
// retry. Device loss is returned as framecore.ErrDeviceLost.
func (r *Registry) Allocate(desc Desc) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Handle{}, framecore.ErrClosed
	}

	size := desc.bytes()
	if r.budget > 0 && r.liveBytes+r.deferredBytes+size > r.budget {
		return Handle{}, &framecore.AllocationError{
			Kind:  framecore.AllocationOutOfMemory,
			Op:    "allocate",
			Label: desc.Label,
			Err: fmt.Errorf("need %d bytes, have %d bytes available (%d deferred)",
				size, r.budget-min(r.budget, r.liveBytes+r.deferredBytes), r.deferredBytes),
		}
	}

	e := entry{
		live:  true,
		kind:  desc.Kind,
		label: desc.Label,
		bytes: size,
	}

	var err error
	switch desc.Kind {
	case KindBuffer:
		e.buffer, err = r.ctx.CreateBuffer(&device.BufferDescriptor{
			Label: desc.Label,
			Size:  desc.Size,
			Usage: desc.BufferUsage,
		})
	case KindImage:
		e.extent, e.format, e.levels = desc.Extent, desc.Format, max(desc.MipLevels, 1)
		e.image, err = r.ctx.CreateImage(&device.ImageDescriptor{
			Label:     desc.Label,
			Extent:    desc.Extent,
			Format:    desc.Format,
			Usage:     desc.ImageUsage,
			MipLevels: max(desc.MipLevels, 1),
		})
	default:
		return Handle{}, fmt.Errorf("resource: allocate %q: unknown kind %s", desc.Label, desc.Kind)
	}
	if err != nil {
		if errors.Is(err, framecore.ErrOutOfDeviceMemory) {
			return Handle{}, &framecore.AllocationError{
				Kind:  framecore.AllocationOutOfMemory,
				Op:    "allocate",
				Label: desc.Label,
				Err:   err,
			}
		}
		return Handle{}, fmt.Errorf("resource: allocate %s %q: %w", desc.Kind, desc.Label, err)
	}

	var idx uint32
	if n := len(r.freeList); n > 0 {
		idx = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		e.generation = nextGeneration(r.entries[idx].generation)
		r.entries[idx] = e
	} else {
		idx = uint32(len(r.entries)) //nolint:gosec // G115: bounded by address space
		e.generation = 1
		r.entries = append(r.entries, e)
	}

	r.live++
	r.liveBytes += size
	return Handle{Index: idx, Generation: e.generation}, nil
}

func nextGeneration(g uint32) uint32 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}

// lookupLocked returns the live entry for h. Caller must hold mu.
func (r *Registry) lookupLocked(h Handle) (*entry, bool) {
	if h.IsZero() || int(h.Index) >= len(r.entries) {
		return nil, false
	}
	e := &r.entries[h.Index]
	if !e.live || e.generation != h.Generation {
		return nil, false
	}
	return e, true
}

func invalidHandle(op string, h Handle) error {
	return &framecore.AllocationError{
		Kind: framecore.AllocationInvalidHandle,
		Op:   op,
		Err:  fmt.Errorf("handle %s", h),
	}
}

// MarkUsed records that frame references h. The marker only moves forward.
func (r *Registry) MarkUsed(h Handle, frame framecore.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return framecore.ErrClosed
	}
	e, ok := r.lookupLocked(h)
	if !ok {
		return invalidHandle("mark used", h)
	}
	if frame > e.lastUsed {
		e.lastUsed = frame
	}
	return nil
}

// Free invalidates h. The resource is released immediately when no
// in-flight frame uses it, otherwise it is deferred until its last frame
// retires. Freeing an unknown or already freed handle returns an
// AllocationInvalidHandle error and changes nothing.
func (r *Registry) Free(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return framecore.ErrClosed
	}
	e, ok := r.lookupLocked(h)
	if !ok {
		return invalidHandle("free", h)
	}

	p := pending{
		frame:  e.lastUsed,
		kind:   e.kind,
		label:  e.label,
		bytes:  e.bytes,
		buffer: e.buffer,
		image:  e.image,
	}
	r.entries[h.Index] = entry{generation: e.generation}
	r.freeList = append(r.freeList, h.Index)
	r.live--
	r.liveBytes -= p.bytes

	if r.retiredLocked(p.frame) {
		r.destroy(&p)
		return nil
	}

	r.deferred = append(r.deferred, p)
	r.deferredBytes += p.bytes
	framecore.Logger().Debug("resource: free deferred",
		"kind", p.kind.String(),
		"label", p.label,
		"frame", uint64(p.frame))
	return nil
}

// retiredLocked reports whether frame can no longer be in flight.
// Caller must hold mu.
func (r *Registry) retiredLocked(frame framecore.FrameID) bool {
	if frame == framecore.NoFrame {
		return true
	}
	return r.tracker != nil && r.tracker.Retired(frame)
}

// Reclaim releases deferred resources whose last frame has retired and
// returns how many were released. It polls fence state and never blocks.
func (r *Registry) Reclaim() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || len(r.deferred) == 0 {
		return 0
	}

	retired := make(map[framecore.FrameID]bool)
	n := 0
	released := 0
	for i := range r.deferred {
		p := &r.deferred[i]
		done, seen := retired[p.frame]
		if !seen {
			done = r.retiredLocked(p.frame)
			retired[p.frame] = done
		}
		if done {
			r.deferredBytes -= p.bytes
			r.destroy(p)
			released++
			continue
		}
		r.deferred[n] = *p
		n++
	}
	for i := n; i < len(r.deferred); i++ {
		r.deferred[i] = pending{}
	}
	r.deferred = r.deferred[:n]
	r.reclaimed += uint64(released) //nolint:gosec // G115: non-negative

	if released > 0 {
		framecore.Logger().Debug("resource: reclaimed", "count", released, "remaining", n)
	}
	return released
}

func (r *Registry) destroy(p *pending) {
	switch p.kind {
	case KindBuffer:
		r.ctx.DestroyBuffer(p.buffer)
	case KindImage:
		r.ctx.DestroyImage(p.image)
	}
}

// WriteImage copies data into mip level of the image named by h. data holds
// tightly packed rows; its length must match the level's extent and the
// image format.
func (r *Registry) WriteImage(h Handle, level uint32, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return framecore.ErrClosed
	}
	e, ok := r.lookupLocked(h)
	if !ok || e.kind != KindImage {
		return invalidHandle("write image", h)
	}
	if level >= e.levels {
		return fmt.Errorf("resource: write %q: level %d out of range, image has %d", e.label, level, e.levels)
	}
	extent := MipExtent(e.extent, level)
	if want := extent.Area() * bytesPerPixel(e.format); uint64(len(data)) != want {
		return fmt.Errorf("resource: write %q level %d: got %d bytes, want %d", e.label, level, len(data), want)
	}
	if err := r.ctx.WriteImage(e.image, level, extent, data); err != nil {
		return fmt.Errorf("resource: write %q level %d: %w", e.label, level, err)
	}
	return nil
}

// Buffer returns the backend buffer for h.
func (r *Registry) Buffer(h Handle) (device.Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lookupLocked(h)
	if !ok || e.kind != KindBuffer {
		return nil, invalidHandle("buffer", h)
	}
	return e.buffer, nil
}

// Image returns the backend image for h.
func (r *Registry) Image(h Handle) (device.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lookupLocked(h)
	if !ok || e.kind != KindImage {
		return nil, invalidHandle("image", h)
	}
	return e.image, nil
}

// Info describes the live resource named by h.
func (r *Registry) Info(h Handle) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lookupLocked(h)
	if !ok {
		return Info{}, invalidHandle("info", h)
	}
	return Info{Kind: e.kind, Label: e.label, Bytes: e.bytes, LastUsed: e.lastUsed}, nil
}

// Valid reports whether h names a live resource.
func (r *Registry) Valid(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lookupLocked(h)
	return ok
}

// Stats returns current usage statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Live:          r.live,
		Deferred:      len(r.deferred),
		LiveBytes:     r.liveBytes,
		DeferredBytes: r.deferredBytes,
		Budget:        r.budget,
		Reclaimed:     r.reclaimed,
	}
}

// Close releases every live and deferred resource. The caller must have
// waited for the device to go idle. Close is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if len(r.deferred) > 0 {
		framecore.Logger().Warn("resource: releasing deferred resources at close", "count", len(r.deferred))
	}
	for i := range r.deferred {
		r.destroy(&r.deferred[i])
	}
	for i := range r.entries {
		e := &r.entries[i]
		if !e.live {
			continue
		}
		r.destroy(&pending{kind: e.kind, buffer: e.buffer, image: e.image})
	}
	r.entries = nil
	r.freeList = nil
	r.deferred = nil
	r.live = 0
	r.liveBytes = 0
	r.deferredBytes = 0
	r.closed = true
}
