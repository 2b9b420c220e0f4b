// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
)

// WaitFence polls queue completion starting at minPollInterval and doubling
// up to maxPollInterval.
const (
	minPollInterval = 50 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// fenceState tracks the submission a fence guards.
type fenceState struct {
	// submission is the queue submission index; zero means none.
	submission uint64

	// signaled is set for fences created signaled.
	signaled bool
}

// Device implements device.Backend over a HAL device and queue.
type Device struct {
	name   string
	info   gputypes.AdapterInfo
	device hal.Device
	queue  hal.Queue

	// Set when Device opened them and must destroy them.
	instance hal.Instance
	adapter  hal.Adapter
	owned    bool

	mu         sync.Mutex
	nextID     uint64
	fences     map[device.Fence]*fenceState
	semaphores map[device.Semaphore]struct{}
	destroyed  bool

	// last is the highest submission index the queue has reported.
	last uint64
}

var _ device.Backend = (*Device)(nil)

func newDevice(name string, dev hal.Device, queue hal.Queue) *Device {
	return &Device{
		name:       name,
		device:     dev,
		queue:      queue,
		fences:     make(map[device.Fence]*fenceState),
		semaphores: make(map[device.Semaphore]struct{}),
	}
}

// Name implements device.Backend.
func (d *Device) Name() string { return d.name }

// AdapterInfo returns the adapter description, if the device was opened by
// this package.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.info }

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.device }

// HalQueue returns the underlying HAL queue.
func (d *Device) HalQueue() hal.Queue { return d.queue }

// Queues implements device.Backend. HAL exposes a single queue that does
// everything.
func (d *Device) Queues() []device.QueueInfo {
	return []device.QueueInfo{{
		Index:        0,
		Capabilities: framecore.CapabilityGraphics | framecore.CapabilityPresent | framecore.CapabilityTransfer,
		Label:        d.name,
	}}
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

// CreateFence implements device.Backend.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
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
		return fmt.Errorf("halgpu: reset unknown fence %d", f)
	}
	*st = fenceState{}
	return nil
}

// FenceStatus implements device.Backend.
func (d *Device) FenceStatus(f device.Fence) (bool, error) {
	d.mu.Lock()
	st, ok := d.fences[f]
	var state fenceState
	if ok {
		state = *st
	}
	d.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("halgpu: status of unknown fence %d", f)
	}
	if state.signaled {
		return true, nil
	}
	if state.submission == 0 {
		return false, nil
	}
	return d.queue.PollCompleted() >= state.submission, nil
}

// WaitFence implements device.Backend by polling queue completion until
// timeout, backing off between polls. Fences here are submission indices
// rather than HAL fences, so there is nothing to hand to hal.Device.Wait.
func (d *Device) WaitFence(f device.Fence, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	interval := minPollInterval
	for {
		ok, err := d.FenceStatus(f)
		if err != nil || ok {
			return ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		time.Sleep(min(interval, remaining))
		interval = min(interval*2, maxPollInterval)
	}
}

// CreateSemaphore implements device.Backend.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
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
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, mapError("create command encoder", err)
	}
	return &Encoder{enc: enc}, nil
}

// Submit implements device.Backend. Semaphores are ignored; the HAL queue
// orders work after the acquire and before the present it precedes.
//
// Some backends (Vulkan among them) return index 0 for an empty batch. The
// fence then guards the last real submission, or is signaled when there has
// been none, since an empty batch completes once earlier work does.
func (d *Device) Submit(queue int, sub device.Submission) error {
	if queue != 0 {
		return fmt.Errorf("halgpu: no queue %d", queue)
	}
	cmds := make([]hal.CommandBuffer, 0, len(sub.Commands))
	for _, c := range sub.Commands {
		cb, ok := c.(hal.CommandBuffer)
		if !ok || cb == nil {
			return fmt.Errorf("halgpu: submit %T: %w", c, ErrForeignObject)
		}
		cmds = append(cmds, cb)
	}

	index, err := d.queue.Submit(cmds)
	if err != nil {
		return mapError("submit", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if index == 0 {
		index = d.last
	} else {
		d.last = max(d.last, index)
	}
	if sub.Fence != 0 {
		st, ok := d.fences[sub.Fence]
		if !ok {
			return fmt.Errorf("halgpu: submit with unknown fence %d", sub.Fence)
		}
		st.signaled = index == 0
		st.submission = index
	}
	return nil
}

// CreateBuffer implements device.Backend.
func (d *Device) CreateBuffer(desc *device.BufferDescriptor) (device.Buffer, error) {
	b, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, mapError(fmt.Sprintf("create buffer %q", desc.Label), err)
	}
	return b, nil
}

// DestroyBuffer implements device.Backend.
func (d *Device) DestroyBuffer(b device.Buffer) {
	if hb, ok := b.(hal.Buffer); ok {
		d.device.DestroyBuffer(hb)
	}
}

// CreateImage implements device.Backend. Images are 2D and single sampled.
func (d *Device) CreateImage(desc *device.ImageDescriptor) (device.Image, error) {
	t, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Extent.Width,
			Height:             desc.Extent.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, mapError(fmt.Sprintf("create image %q", desc.Label), err)
	}
	return t, nil
}

// DestroyImage implements device.Backend.
func (d *Device) DestroyImage(img device.Image) {
	if t, ok := img.(hal.Texture); ok {
		d.device.DestroyTexture(t)
	}
}

// WriteImage implements device.Backend through hal.Queue.WriteTexture.
func (d *Device) WriteImage(img device.Image, level uint32, extent framecore.Extent, data []byte) error {
	t, ok := img.(hal.Texture)
	if !ok || t == nil {
		return fmt.Errorf("halgpu: write image %T: %w", img, ErrForeignObject)
	}
	if extent.IsZero() || uint64(len(data))%extent.Area() != 0 {
		return fmt.Errorf("halgpu: write image: %d bytes do not cover %s", len(data), extent)
	}
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t, MipLevel: level, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{
			BytesPerRow:  uint32(len(data)) / extent.Height, //nolint:gosec // G115: image rows fit in uint32
			RowsPerImage: extent.Height,
		},
		&hal.Extent3D{Width: extent.Width, Height: extent.Height, DepthOrArrayLayers: 1},
	)
	return mapError(fmt.Sprintf("write image level %d", level), err)
}

// WaitIdle implements device.Backend.
func (d *Device) WaitIdle() error {
	return mapError("wait idle", d.device.WaitIdle())
}

// Destroy implements device.Backend. A device obtained from FromProvider is
// left to its owner.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	if !d.owned {
		return
	}
	d.device.Destroy()
	if d.adapter != nil {
		d.adapter.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
	}
}
