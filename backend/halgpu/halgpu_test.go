// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/backend"
	"github.com/gogpu/framecore/backend/halgpu"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/engine"
	"github.com/gogpu/framecore/frame"
	"github.com/gogpu/framecore/resource"
	"github.com/gogpu/framecore/swapchain"
)

func openNoop(t *testing.T) (*halgpu.Device, *halgpu.Surface) {
	t.Helper()
	dev, surface, err := halgpu.Open(gputypes.BackendEmpty, 0, 0, halgpu.Options{})
	require.NoError(t, err)
	return dev, surface
}

func TestOpenNoop(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	assert.Equal(t, "noop", dev.Name())
	assert.Equal(t, "Noop Adapter", dev.AdapterInfo().Name)
	require.Len(t, dev.Queues(), 1)
	assert.True(t, dev.Queues()[0].Capabilities.Has(framecore.CapabilityGraphics|framecore.CapabilityPresent))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, _, err := halgpu.Open(gputypes.BackendBrowserWebGPU, 0, 0, halgpu.Options{})
	assert.ErrorIs(t, err, hal.ErrBackendNotFound)
}

func TestFenceTracksSubmission(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	f, err := dev.CreateFence(false)
	require.NoError(t, err)
	ok, err := dev.FenceStatus(f)
	require.NoError(t, err)
	assert.False(t, ok, "unsubmitted fence signaled")

	ok, err = dev.WaitFence(f, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "WaitFence on unsubmitted fence")

	enc, err := dev.CreateCommandEncoder("test")
	require.NoError(t, err)
	require.NoError(t, enc.Begin("frame"))
	cb, err := enc.End()
	require.NoError(t, err)

	require.NoError(t, dev.Submit(0, device.Submission{Commands: []device.CommandBuffer{cb}, Fence: f}))
	ok, err = dev.WaitFence(f, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "noop submission not complete")

	require.NoError(t, enc.Reset())
	enc.Destroy()

	require.NoError(t, dev.ResetFence(f))
	ok, _ = dev.FenceStatus(f)
	assert.False(t, ok, "fence signaled after reset")

	signaled, _ := dev.CreateFence(true)
	ok, _ = dev.FenceStatus(signaled)
	assert.True(t, ok)

	dev.DestroyFence(f)
	_, err = dev.FenceStatus(f)
	assert.Error(t, err)
}

func TestSubmitRejectsForeignObjects(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	err := dev.Submit(0, device.Submission{Commands: []device.CommandBuffer{"not a command buffer"}})
	assert.ErrorIs(t, err, halgpu.ErrForeignObject)
	assert.Error(t, dev.Submit(3, device.Submission{}))
}

func TestBuffersAndImages(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	b, err := dev.CreateBuffer(&device.BufferDescriptor{Label: "vb", Size: 256, Usage: gputypes.BufferUsageVertex})
	require.NoError(t, err)
	_, ok := b.(hal.Buffer)
	assert.True(t, ok, "buffer is %T", b)
	dev.DestroyBuffer(b)

	img, err := dev.CreateImage(&device.ImageDescriptor{
		Label:  "albedo",
		Extent: framecore.Extent{Width: 64, Height: 64},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	require.NoError(t, err)
	_, ok = img.(hal.Texture)
	assert.True(t, ok, "image is %T", img)
	dev.DestroyImage(img)
}

func TestSurfaceRoundRobin(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	_, err := surface.Acquire(time.Second, 0)
	assert.ErrorIs(t, err, framecore.ErrSwapchainStale, "acquire before configure")

	_, err = surface.Configure(swapchain.SurfaceConfig{})
	assert.ErrorIs(t, err, framecore.ErrSurfaceUnavailable)

	images, err := surface.Configure(swapchain.SurfaceConfig{
		Extent:      framecore.Extent{Width: 320, Height: 240},
		Format:      gputypes.TextureFormatBGRA8Unorm,
		PresentMode: gputypes.PresentModeFifo,
		ImageCount:  2,
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, images[0].Format)

	for i := range 3 {
		a, err := surface.Acquire(time.Second, 0)
		require.NoError(t, err)
		assert.Equal(t, i%2, a.Index)
		_, ok := surface.Texture(a.Index)
		assert.True(t, ok)
		require.NoError(t, surface.Present(a.Index, nil))
		_, ok = surface.Texture(a.Index)
		assert.False(t, ok, "texture kept after present")
	}
	assert.Error(t, surface.Present(1, nil), "present of an image never acquired")
}

func TestSurfaceFormatFallback(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	images, err := surface.Configure(swapchain.SurfaceConfig{
		Extent:     framecore.Extent{Width: 8, Height: 8},
		Format:     gputypes.TextureFormatRGBA16Float,
		ImageCount: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, images[0].Format)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{hal.ErrDeviceLost, framecore.ErrDeviceLost},
		{hal.ErrDeviceOutOfMemory, framecore.ErrOutOfDeviceMemory},
		{hal.ErrSurfaceOutdated, framecore.ErrSwapchainStale},
		{hal.ErrSurfaceLost, framecore.ErrSwapchainStale},
		{hal.ErrTimeout, framecore.ErrFrameTimeout},
		{hal.ErrNotReady, framecore.ErrFrameTimeout},
		{hal.ErrZeroArea, framecore.ErrSurfaceUnavailable},
	}
	for _, tt := range tests {
		err := halgpu.MapError("op", tt.in)
		assert.ErrorIs(t, err, tt.want, "MapError(%v)", tt.in)
		assert.ErrorIs(t, err, tt.in, "MapError(%v) dropped the HAL error", tt.in)
	}
	assert.NoError(t, halgpu.MapError("op", nil))

	other := errors.New("other")
	err := halgpu.MapError("op", other)
	assert.ErrorIs(t, err, other)
	assert.False(t, framecore.IsFatal(err))
}

// provider exposes a noop HAL device the way a host application would.
type provider struct {
	gpucontext.DeviceProvider
	dev   hal.Device
	queue hal.Queue
}

func (p provider) HalDevice() any                      { return p.dev }
func (p provider) HalQueue() any                       { return p.queue }
func (p provider) AdapterInfo() gpucontext.AdapterInfo { return gpucontext.AdapterInfo{Name: "host"} }

func TestFromProvider(t *testing.T) {
	owner, surface := openNoop(t)
	defer owner.Destroy()
	defer surface.Destroy()

	shared, err := halgpu.FromProvider(provider{dev: owner.HalDevice(), queue: owner.HalQueue()})
	require.NoError(t, err)
	assert.Equal(t, "host", shared.AdapterInfo().Name)
	assert.Same(t, owner.HalDevice(), shared.HalDevice())
	shared.Destroy()

	_, err = halgpu.FromProvider(nil)
	assert.ErrorIs(t, err, halgpu.ErrUnsupportedProvider)
	_, err = halgpu.FromProvider(provider{})
	assert.ErrorIs(t, err, halgpu.ErrUnsupportedProvider)
}

// emptyBatchQueue reports submission index 0 for an empty batch, the way
// the Vulkan HAL queue does.
type emptyBatchQueue struct {
	hal.Queue
}

func (q emptyBatchQueue) Submit(cbs []hal.CommandBuffer) (uint64, error) {
	if len(cbs) == 0 {
		return 0, nil
	}
	return q.Queue.Submit(cbs)
}

func openEmptyBatch(t *testing.T) (owner, shared *halgpu.Device, surface *halgpu.Surface) {
	t.Helper()
	owner, surface = openNoop(t)
	shared, err := halgpu.FromProvider(provider{
		dev:   owner.HalDevice(),
		queue: emptyBatchQueue{owner.HalQueue()},
	})
	require.NoError(t, err)
	return owner, shared, surface
}

func TestEmptyBatchSignalsFence(t *testing.T) {
	owner, dev, surface := openEmptyBatch(t)
	defer owner.Destroy()
	defer surface.Destroy()

	// No earlier work: the fence signals at once.
	f, err := dev.CreateFence(false)
	require.NoError(t, err)
	require.NoError(t, dev.Submit(0, device.Submission{Fence: f}))
	ok, err := dev.WaitFence(f, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "fence of an empty first batch never signaled")

	enc, err := dev.CreateCommandEncoder("test")
	require.NoError(t, err)
	defer enc.Destroy()
	require.NoError(t, enc.Begin("frame"))
	cb, err := enc.End()
	require.NoError(t, err)
	require.NoError(t, dev.Submit(0, device.Submission{Commands: []device.CommandBuffer{cb}}))

	// After real work the fence follows the last submission.
	require.NoError(t, dev.ResetFence(f))
	require.NoError(t, dev.Submit(0, device.Submission{Fence: f}))
	ok, err = dev.WaitFence(f, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "fence of an empty batch after real work never signaled")
}

// TestRecordFailureKeepsSlotsUsable runs failing record callbacks, which
// submit empty batches, on a queue that reports index 0 for them.
func TestRecordFailureKeepsSlotsUsable(t *testing.T) {
	owner, shared, surface := openEmptyBatch(t)
	defer owner.Destroy()

	factory := func(engine.Window, framecore.Config) (device.Backend, swapchain.Surface, error) {
		return shared, surface, nil
	}
	boom := errors.New("boom")
	win := engine.NewGPUWindow(gpucontext.NullWindowProvider{W: 320, H: 240}, nil, 0, 0)
	eng, err := engine.New(win, factory, func(r *frame.Recorder) error {
		switch r.Frame() {
		case 1, 2, 5:
			return boom
		}
		return nil
	}, framecore.WithFramesInFlight(2), framecore.WithFenceTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer eng.Shutdown()

	for range 8 {
		c, err := eng.OnTick(16 * time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, engine.Continue, c)
	}
	stats := eng.Scheduler().Stats()
	assert.Zero(t, stats.Timeouts, "slot fence of a failed frame never signaled")
	assert.Equal(t, uint64(3), stats.RecordFailures)
	assert.Equal(t, uint64(8), stats.Presents)

	require.NoError(t, eng.Scheduler().Drain(50*time.Millisecond))
}

func TestWaitFenceTimeout(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	f, err := dev.CreateFence(false)
	require.NoError(t, err)

	const timeout = 20 * time.Millisecond
	start := time.Now()
	ok, err := dev.WaitFence(f, timeout)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second, "WaitFence overran its timeout")
}

func TestWriteImage(t *testing.T) {
	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	extent := framecore.Extent{Width: 4, Height: 4}
	img, err := dev.CreateImage(&device.ImageDescriptor{
		Label:     "albedo",
		Extent:    extent,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		MipLevels: 3,
	})
	require.NoError(t, err)
	defer dev.DestroyImage(img)

	assert.NoError(t, dev.WriteImage(img, 0, extent, make([]byte, 4*4*4)))
	assert.NoError(t, dev.WriteImage(img, 2, framecore.Extent{Width: 1, Height: 1}, make([]byte, 4)))
	assert.Error(t, dev.WriteImage(img, 0, framecore.Extent{}, nil))
	assert.Error(t, dev.WriteImage(img, 0, extent, make([]byte, 7)))
	assert.ErrorIs(t, dev.WriteImage("not an image", 0, extent, nil), halgpu.ErrForeignObject)
}

func TestAcquireTimeoutLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	orig := framecore.Logger()
	framecore.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer framecore.SetLogger(orig)

	dev, surface := openNoop(t)
	defer dev.Destroy()
	defer surface.Destroy()

	_, err := surface.Configure(swapchain.SurfaceConfig{
		Extent:     framecore.Extent{Width: 64, Height: 64},
		Format:     gputypes.TextureFormatBGRA8Unorm,
		ImageCount: 2,
	})
	require.NoError(t, err)

	a, err := surface.Acquire(0, 0)
	require.NoError(t, err)
	require.NoError(t, surface.Present(a.Index, nil))
	assert.NotContains(t, buf.String(), "acquire timeout not supported")

	for range 3 {
		a, err := surface.Acquire(time.Second, 0)
		require.NoError(t, err)
		require.NoError(t, surface.Present(a.Index, nil))
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "acquire timeout not supported"))
}

func TestRegistered(t *testing.T) {
	assert.True(t, backend.IsRegistered(backend.Noop))
	assert.True(t, backend.IsRegistered(backend.Vulkan))
	assert.Equal(t, "vulkan", halgpu.VariantName(gputypes.BackendVulkan))
}

// TestEngineOnNoop drives the whole frame lifecycle through HAL.
func TestEngineOnNoop(t *testing.T) {
	factory, err := backend.Get(backend.Noop)
	require.NoError(t, err)

	win := engine.NewGPUWindow(gpucontext.NullWindowProvider{W: 640, H: 480}, nil, 0, 0)
	var frames []framecore.FrameID
	var vertices resource.Handle
	eng, err := engine.New(win, factory, func(r *frame.Recorder) error {
		if _, ok := r.Encoder().Native().(hal.CommandEncoder); !ok {
			return errors.New("encoder is not a HAL encoder")
		}
		frames = append(frames, r.Frame())
		return r.Use(vertices)
	})
	require.NoError(t, err)
	defer eng.Shutdown()

	vertices, err = eng.Registry().Allocate(resource.Desc{
		Kind:        resource.KindBuffer,
		Label:       "vertices",
		Size:        4096,
		BufferUsage: gputypes.BufferUsageVertex,
	})
	require.NoError(t, err)

	for range 6 {
		c, err := eng.OnTick(16 * time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, engine.Continue, c)
	}
	assert.Equal(t, []framecore.FrameID{1, 2, 3, 4, 5, 6}, frames)
	assert.Equal(t, uint64(6), eng.Scheduler().Stats().Presents)

	require.NoError(t, eng.Registry().Free(vertices))
	_, err = eng.OnTick(16 * time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, eng.Registry().Stats().Deferred, "freed buffer not reclaimed after its frames retired")
}
