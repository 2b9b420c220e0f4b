// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/frame"
	"github.com/gogpu/framecore/internal/fakegpu"
	"github.com/gogpu/framecore/resource"
	"github.com/gogpu/framecore/swapchain"
	"github.com/gogpu/gputypes"
)

var extent = framecore.Extent{Width: 800, Height: 600}

type harness struct {
	dev     *fakegpu.Device
	surface *fakegpu.Surface
	ctx     *device.Context
	reg     *resource.Registry
	sc      *swapchain.Manager
	sched   *frame.Scheduler
}

func newHarness(t *testing.T, devOpts []fakegpu.Option, opts ...framecore.Option) *harness {
	t.Helper()
	h := &harness{dev: fakegpu.New(devOpts...)}
	h.surface = h.dev.NewSurface()

	var err error
	h.ctx, err = device.New(h.dev, framecore.NewConfig(opts...))
	require.NoError(t, err)
	h.reg = resource.NewRegistry(h.ctx)
	h.sc, err = swapchain.New(h.ctx, h.surface, extent)
	require.NoError(t, err)
	h.sched, err = frame.New(h.ctx, h.sc, h.reg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = h.ctx.WaitIdle()
		h.reg.Close()
		h.sched.Destroy()
		h.sc.Destroy()
		h.ctx.Destroy()
	})
	return h
}

func (h *harness) run(t *testing.T, record frame.RecordFunc) frame.Result {
	t.Helper()
	res, err := h.sched.RunFrame(record)
	require.NoError(t, err)
	return res
}

func draw(r *frame.Recorder) error {
	r.Encoder().Native().(*fakegpu.Encoder).Record("draw")
	return nil
}

func TestSlotRotation(t *testing.T) {
	h := newHarness(t, nil, framecore.WithFramesInFlight(2))

	for i := range 5 {
		res := h.run(t, draw)
		assert.Equal(t, frame.StatusPresented, res.Status, "frame %d", i+1)
		assert.Equal(t, framecore.FrameID(i+1), res.Frame)
		assert.Equal(t, i%2, res.Slot)
	}

	assert.Equal(t, []int{0, 1, 0, 1, 0}, h.sched.SlotHistory())
	assert.Len(t, h.surface.Presented(), 5)
	assert.Equal(t, uint64(5), h.sched.Stats().Presents)
	assert.Equal(t, uint64(5), h.sched.Stats().Frames)
}

func TestNoSlotReuseBeforeFenceSignaled(t *testing.T) {
	for _, n := range []int{2, 3, 4} {
		t.Run(fmt.Sprintf("frames=%d", n), func(t *testing.T) {
			h := newHarness(t, nil, framecore.WithFramesInFlight(n))
			require.Equal(t, n, h.sched.FramesInFlight())

			for range 3 * n {
				res := h.run(t, draw)
				require.Equal(t, frame.StatusPresented, res.Status)
			}

			// Between two submissions guarded by the same fence, that fence
			// must have been observed signaled.
			submitted := make(map[device.Fence]bool)
			observed := make(map[device.Fence]bool)
			submits := 0
			for _, e := range h.dev.Events() {
				switch e.Kind {
				case fakegpu.EventSubmit:
					submits++
					if submitted[e.Fence] {
						require.True(t, observed[e.Fence], "fence %d reused before it was observed signaled", e.Fence)
					}
					submitted[e.Fence] = true
					observed[e.Fence] = false
				case fakegpu.EventWait, fakegpu.EventStatus:
					if e.Signaled {
						observed[e.Fence] = true
					}
				}
			}
			assert.Equal(t, 3*n, submits)
			assert.Len(t, submitted, n, "one fence per slot")
		})
	}
}

func TestStaleMidSequence(t *testing.T) {
	h := newHarness(t, nil, framecore.WithFramesInFlight(2))
	h.surface.StaleOnAcquire(3)

	var statuses []frame.Status
	for i := 1; i <= 5; i++ {
		res := h.run(t, draw)
		statuses = append(statuses, res.Status)
		if res.Status == frame.StatusNeedsRebuild {
			require.Equal(t, 3, i)
			require.NoError(t, h.sc.Rebuild(extent))
		}
	}

	assert.Equal(t, []frame.Status{
		frame.StatusPresented,
		frame.StatusPresented,
		frame.StatusNeedsRebuild,
		frame.StatusPresented,
		frame.StatusPresented,
	}, statuses)
	assert.Equal(t, uint64(2), h.sc.Generation())
	assert.Equal(t, 2, h.surface.Configures())
	assert.Len(t, h.surface.Presented(), 4)
	assert.Equal(t, uint64(1), h.sched.Stats().RebuildRequests)
}

func TestNeedsRebuildAfterResize(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, draw)

	h.sc.NotifyResize(framecore.Extent{Width: 1024, Height: 768})
	res := h.run(t, draw)
	assert.Equal(t, frame.StatusNeedsRebuild, res.Status)
	assert.Equal(t, framecore.NoFrame, res.Frame)
	assert.Equal(t, -1, res.Image)

	require.NoError(t, h.sc.Rebuild(h.sc.TargetExtent()))
	assert.Equal(t, frame.StatusPresented, h.run(t, draw).Status)
}

func TestSurfaceUnavailable(t *testing.T) {
	h := newHarness(t, nil)

	h.sc.NotifyResize(framecore.Extent{})
	res := h.run(t, draw)
	assert.Equal(t, frame.StatusSurfaceUnavailable, res.Status)
	assert.Equal(t, uint64(1), h.sched.Stats().SurfaceUnavailable)
	assert.Empty(t, h.sched.SlotHistory())
}

func TestPresentStale(t *testing.T) {
	h := newHarness(t, nil)
	h.surface.StaleOnPresent(1)

	res := h.run(t, draw)
	assert.Equal(t, frame.StatusNeedsRebuild, res.Status)
	// The frame was submitted, so the slot advanced.
	assert.Equal(t, []int{0}, h.sched.SlotHistory())
	assert.Equal(t, swapchain.Stale, h.sc.State())
}

func TestFenceTimeoutRetriesSameSlot(t *testing.T) {
	h := newHarness(t, []fakegpu.Option{fakegpu.WithManualFences()}, framecore.WithFramesInFlight(2))

	assert.Equal(t, frame.StatusPresented, h.run(t, draw).Status)
	assert.Equal(t, frame.StatusPresented, h.run(t, draw).Status)

	res := h.run(t, draw)
	assert.Equal(t, frame.StatusTimeout, res.Status)
	assert.Equal(t, 0, res.Slot)
	assert.Equal(t, uint64(1), h.sched.Stats().Timeouts)

	h.dev.Complete()
	res = h.run(t, draw)
	assert.Equal(t, frame.StatusPresented, res.Status)
	assert.Equal(t, 0, res.Slot)
	assert.Equal(t, framecore.FrameID(3), res.Frame)
}

func TestAcquireTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.surface.TimeoutOnAcquire(1)

	res := h.run(t, draw)
	assert.Equal(t, frame.StatusTimeout, res.Status)
	assert.Equal(t, frame.StatusPresented, h.run(t, draw).Status)
	assert.Equal(t, []int{0}, h.sched.SlotHistory())
}

func TestRecordFailure(t *testing.T) {
	h := newHarness(t, nil)
	boom := errors.New("boom")

	res := h.run(t, func(r *frame.Recorder) error {
		r.Encoder().Native().(*fakegpu.Encoder).Record("partial")
		return boom
	})
	assert.Equal(t, frame.StatusRecordFailed, res.Status)
	require.ErrorIs(t, res.Err, boom)

	// The acquired image is still submitted and presented.
	assert.Equal(t, 1, h.dev.Submits())
	assert.Len(t, h.surface.Presented(), 1)

	enc := h.dev.Encoders()[0]
	assert.Equal(t, 1, enc.Discarded)
	assert.False(t, enc.Recording())

	assert.Equal(t, frame.StatusPresented, h.run(t, draw).Status)
	assert.Equal(t, uint64(1), h.sched.Stats().RecordFailures)
}

func TestDeviceLost(t *testing.T) {
	h := newHarness(t, nil)
	h.dev.LoseOnSubmit(2)

	h.run(t, draw)
	_, err := h.sched.RunFrame(draw)
	require.Error(t, err)
	assert.True(t, framecore.IsFatal(err))
	assert.True(t, h.ctx.Lost())

	_, err = h.sched.RunFrame(draw)
	assert.ErrorIs(t, err, framecore.ErrDeviceLost)
}

func TestSubmitOutOfMemoryIsRecoverable(t *testing.T) {
	h := newHarness(t, nil, framecore.WithFramesInFlight(2))
	h.dev.FailSubmit(2, framecore.ErrOutOfDeviceMemory)

	assert.Equal(t, frame.StatusPresented, h.run(t, draw).Status)

	res, err := h.sched.RunFrame(draw)
	require.NoError(t, err, "recoverable submit failure crossed the scheduler boundary")
	assert.Equal(t, frame.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, framecore.ErrOutOfDeviceMemory)
	assert.Equal(t, framecore.FrameID(2), res.Frame)
	assert.Equal(t, 1, res.Slot)
	assert.False(t, h.ctx.Lost())

	// The acquired image was never presented, so the swapchain is rebuilt
	// and the same slot is used again.
	assert.Equal(t, swapchain.Stale, h.sc.State())
	require.NoError(t, h.sc.Rebuild(extent))
	res = h.run(t, draw)
	assert.Equal(t, frame.StatusPresented, res.Status)
	assert.Equal(t, 1, res.Slot)

	stats := h.sched.Stats()
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Equal(t, uint64(2), stats.Presents)
	assert.Equal(t, []int{0, 1}, h.sched.SlotHistory())
}

func TestEncoderBeginFailureIsRecoverable(t *testing.T) {
	h := newHarness(t, nil)
	h.dev.Encoders()[0].FailBegin(errors.New("encoder busy"))

	res, err := h.sched.RunFrame(draw)
	require.NoError(t, err)
	assert.Equal(t, frame.StatusFailed, res.Status)
	assert.ErrorContains(t, res.Err, "encoder busy")
	assert.Equal(t, 0, h.dev.Submits())
	assert.True(t, h.sched.Retired(res.Frame), "frame that never reached submission")
	assert.Equal(t, swapchain.Stale, h.sc.State())

	require.NoError(t, h.sc.Rebuild(extent))
	res = h.run(t, draw)
	assert.Equal(t, frame.StatusPresented, res.Status)
	assert.Equal(t, framecore.FrameID(2), res.Frame)
}

func TestRetiredConcurrentWithRunFrame(t *testing.T) {
	h := newHarness(t, nil, framecore.WithFramesInFlight(3))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			buf, err := h.reg.Allocate(resource.Desc{Kind: resource.KindBuffer, Label: "streamed", Size: 64})
			if !assert.NoError(t, err) {
				return
			}
			if id := h.sched.LastFrame(); id != framecore.NoFrame {
				assert.NoError(t, h.reg.MarkUsed(buf, id))
			}
			assert.NoError(t, h.reg.Free(buf))
			h.reg.Reclaim()
		}
	}()

	for range 200 {
		res := h.run(t, draw)
		require.Equal(t, frame.StatusPresented, res.Status)
	}
	close(stop)
	wg.Wait()

	// Every slot has been waited on again, so everything freed is gone.
	for range 3 {
		h.run(t, draw)
	}
	h.reg.Reclaim()
	assert.Zero(t, h.reg.Stats().Deferred)
	assert.Zero(t, h.dev.LiveAllocations())
}

func TestDeferredFreeAcrossFrames(t *testing.T) {
	h := newHarness(t, []fakegpu.Option{fakegpu.WithManualFences()}, framecore.WithFramesInFlight(2))

	buf, err := h.reg.Allocate(resource.Desc{
		Kind:        resource.KindBuffer,
		Label:       "per-frame",
		Size:        256,
		BufferUsage: gputypes.BufferUsageUniform,
	})
	require.NoError(t, err)

	res := h.run(t, func(r *frame.Recorder) error {
		require.Equal(t, 0, r.Slot())
		return r.Use(buf)
	})
	require.Equal(t, frame.StatusPresented, res.Status)

	require.NoError(t, h.reg.Free(buf))
	assert.Equal(t, 1, h.dev.LiveAllocations(), "freed while slot 0 is in flight")
	assert.Equal(t, 0, h.reg.Reclaim())
	assert.Equal(t, 1, h.reg.Stats().Deferred)

	h.dev.Complete()
	assert.Equal(t, 1, h.reg.Reclaim())
	assert.Equal(t, 0, h.dev.LiveAllocations())
}

func TestFreeDuringRecordingIsDeferred(t *testing.T) {
	h := newHarness(t, nil)

	buf, err := h.reg.Allocate(resource.Desc{Kind: resource.KindBuffer, Label: "scratch", Size: 64})
	require.NoError(t, err)

	h.run(t, func(r *frame.Recorder) error {
		require.NoError(t, r.Use(buf))
		require.NoError(t, h.reg.Free(buf))
		assert.Equal(t, 1, h.dev.LiveAllocations(), "released while its frame is recording")
		return nil
	})

	// Reclaimed once slot 0 comes round again and its fence is waited on.
	h.run(t, draw)
	h.run(t, draw)
	assert.Equal(t, 0, h.dev.LiveAllocations())
}

func TestUseStaleHandleFailsRecording(t *testing.T) {
	h := newHarness(t, nil)

	res := h.run(t, func(r *frame.Recorder) error {
		return r.Use(resource.Handle{Index: 7, Generation: 3})
	})
	assert.Equal(t, frame.StatusRecordFailed, res.Status)
	assert.ErrorIs(t, res.Err, framecore.ErrInvalidHandle)
}

func TestRetired(t *testing.T) {
	h := newHarness(t, []fakegpu.Option{fakegpu.WithManualFences()})

	assert.True(t, h.sched.Retired(framecore.NoFrame))
	assert.False(t, h.sched.Retired(1), "frame not yet submitted")

	h.run(t, draw)
	assert.False(t, h.sched.Retired(1))

	h.dev.Complete()
	assert.True(t, h.sched.Retired(1))
	assert.False(t, h.sched.Retired(2))
}

func TestDrain(t *testing.T) {
	h := newHarness(t, []fakegpu.Option{fakegpu.WithManualFences()}, framecore.WithFramesInFlight(3))

	h.run(t, draw)
	h.run(t, draw)

	err := h.sched.Drain(0)
	require.ErrorIs(t, err, framecore.ErrFrameTimeout)

	h.dev.Complete()
	require.NoError(t, h.sched.Drain(0))

	// Rebuild drains through the scheduler.
	h.sc.NotifyResize(extent)
	require.NoError(t, h.sc.Rebuild(extent))
	assert.Equal(t, frame.StatusPresented, h.run(t, draw).Status)
}

func TestRunFrameAfterDestroy(t *testing.T) {
	h := newHarness(t, nil)
	h.sched.Destroy()

	_, err := h.sched.RunFrame(draw)
	assert.ErrorIs(t, err, framecore.ErrClosed)
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    frame.Status
		want string
	}{
		{frame.StatusPresented, "Presented"},
		{frame.StatusTimeout, "Timeout"},
		{frame.StatusNeedsRebuild, "NeedsRebuild"},
		{frame.StatusSurfaceUnavailable, "SurfaceUnavailable"},
		{frame.StatusRecordFailed, "RecordFailed"},
		{frame.StatusFailed, "Failed"},
		{frame.Status(99), "Status(99)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
	}
}
