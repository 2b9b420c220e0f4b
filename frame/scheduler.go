// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/resource"
	"github.com/gogpu/framecore/swapchain"
)

// maxHistory bounds the slot usage history kept for diagnostics.
const maxHistory = 1024

// RecordFunc records the commands of one frame.
type RecordFunc func(r *Recorder) error

// Recorder is handed to a RecordFunc. It is valid only during the call.
type Recorder struct {
	sched   *Scheduler
	frame   framecore.FrameID
	slot    int
	image   swapchain.AcquiredImage
	encoder device.CommandEncoder
}

// Frame returns the ID of the frame being recorded.
func (r *Recorder) Frame() framecore.FrameID { return r.frame }

// Slot returns the frame slot index.
func (r *Recorder) Slot() int { return r.slot }

// Image returns the acquired swapchain image.
func (r *Recorder) Image() swapchain.AcquiredImage { return r.image }

// Encoder returns the slot's command encoder, already begun.
func (r *Recorder) Encoder() device.CommandEncoder { return r.encoder }

// Use marks h as referenced by this frame, so freeing it is deferred until
// the frame retires.
func (r *Recorder) Use(h resource.Handle) error {
	return r.sched.registry.MarkUsed(h, r.frame)
}

type slot struct {
	index      int
	encoder    device.CommandEncoder
	acquireSem device.Semaphore
	renderSem  device.Semaphore
	fence      device.Fence

	// frame is the last frame submitted on this slot. Guarded by
	// Scheduler.mu, like inFlight.
	frame framecore.FrameID

	// inFlight is set from submission until the fence is observed signaled.
	inFlight bool
}

// Scheduler runs frames against a swapchain.
//
// RunFrame, Drain and Destroy are driven from the render loop goroutine.
// Retired and LastFrame may be called from any goroutine, which is how a
// Registry shared with other goroutines reaches them.
type Scheduler struct {
	ctx       *device.Context
	queue     *device.Queue
	swapchain *swapchain.Manager
	registry  *resource.Registry

	slots     []*slot
	cursor    int
	history   []int
	stats     Stats
	destroyed bool

	// mu guards the frame counters and each slot's frame and inFlight.
	// It is never held across a call into the registry, which calls
	// Retired with its own lock held.
	mu        sync.Mutex
	lastFrame framecore.FrameID
	recording framecore.FrameID
}

// New creates a scheduler with Config.FramesInFlight slots and registers it
// as the registry's frame tracker and the swapchain's drainer.
func New(ctx *device.Context, sc *swapchain.Manager, reg *resource.Registry) (*Scheduler, error) {
	q, err := ctx.AcquireQueue(framecore.CapabilityGraphics)
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}

	s := &Scheduler{
		ctx:       ctx,
		queue:     q,
		swapchain: sc,
		registry:  reg,
	}

	n := ctx.Config().FramesInFlight
	for i := range n {
		sl, err := s.newSlot(i)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("frame: slot %d: %w", i, err)
		}
		s.slots = append(s.slots, sl)
	}

	sc.SetDrainer(s)
	reg.SetTracker(s)

	framecore.Logger().Debug("frame: scheduler created", "slots", n)
	return s, nil
}

func (s *Scheduler) newSlot(i int) (*slot, error) {
	enc, err := s.ctx.NewCommandEncoder(fmt.Sprintf("frame-slot-%d", i))
	if err != nil {
		return nil, err
	}
	sl := &slot{index: i, encoder: enc}
	if sl.acquireSem, err = s.ctx.CreateSemaphore(); err != nil {
		enc.Destroy()
		return nil, err
	}
	if sl.renderSem, err = s.ctx.CreateSemaphore(); err != nil {
		s.ctx.ReleaseSemaphore(sl.acquireSem)
		enc.Destroy()
		return nil, err
	}
	if sl.fence, err = s.ctx.CreateFence(false); err != nil {
		s.ctx.ReleaseSemaphore(sl.acquireSem)
		s.ctx.ReleaseSemaphore(sl.renderSem)
		enc.Destroy()
		return nil, err
	}
	return sl, nil
}

// FramesInFlight returns the number of slots.
func (s *Scheduler) FramesInFlight() int { return len(s.slots) }

// RunFrame executes one frame:
//
//  1. select the next slot round-robin
//  2. wait on its fence (bounded), reset it and run a reclamation pass
//  3. acquire a swapchain image
//  4. assign a FrameID and call record
//  5. submit, waiting on acquire and signaling render-complete and the fence
//  6. present, waiting on render-complete
//
// A timeout or an unusable swapchain before recording leaves the slot
// unused; the next call retries the same slot.
//
// Backend failures come back as StatusFailed with Result.Err set, and the
// next call may succeed. The returned error is reserved for fatal errors
// (device loss) and for use after Destroy.
func (s *Scheduler) RunFrame(record RecordFunc) (Result, error) {
	if s.destroyed {
		return Result{Image: -1}, framecore.ErrClosed
	}

	sl := s.slots[s.cursor]
	res := Result{Slot: sl.index, Image: -1}

	if s.inFlight(sl) {
		ok, err := s.ctx.WaitFence(sl.fence, s.ctx.Config().FenceTimeout)
		if err != nil {
			return s.fail(res, fmt.Errorf("frame: wait slot %d: %w", sl.index, err))
		}
		if !ok {
			s.stats.Timeouts++
			framecore.Logger().Warn("frame: slot fence timeout",
				"slot", sl.index,
				"frame", uint64(sl.frame))
			res.Status = StatusTimeout
			return res, nil
		}
		if err := s.retire(sl); err != nil {
			return s.fail(res, err)
		}
		s.registry.Reclaim()
	}

	img, err := s.swapchain.Acquire(s.ctx.Config().AcquireTimeout, sl.acquireSem)
	if err != nil {
		switch {
		case errors.Is(err, framecore.ErrSwapchainStale):
			s.stats.RebuildRequests++
			res.Status = StatusNeedsRebuild
			return res, nil
		case errors.Is(err, framecore.ErrSurfaceUnavailable):
			s.stats.SurfaceUnavailable++
			res.Status = StatusSurfaceUnavailable
			return res, nil
		case errors.Is(err, framecore.ErrFrameTimeout):
			s.stats.Timeouts++
			framecore.Logger().Warn("frame: acquire timeout", "slot", sl.index)
			res.Status = StatusTimeout
			return res, nil
		}
		return s.fail(res, fmt.Errorf("frame: acquire: %w", err))
	}
	res.Image = img.Index

	s.mu.Lock()
	s.lastFrame++
	id := s.lastFrame
	s.recording = id
	s.mu.Unlock()
	res.Frame = id

	cmds, recErr, err := s.record(sl, id, img, record)
	if err != nil {
		s.setRecording(framecore.NoFrame)
		if !framecore.IsFatal(err) {
			// The image was acquired but will never be presented.
			s.swapchain.MarkStale()
		}
		return s.fail(res, err)
	}
	res.Err = recErr

	err = s.ctx.Submit(s.queue, device.Submission{
		Commands: cmds,
		Wait:     []device.Semaphore{sl.acquireSem},
		Signal:   []device.Semaphore{sl.renderSem},
		Fence:    sl.fence,
	})
	s.mu.Lock()
	s.recording = framecore.NoFrame
	if err == nil {
		sl.inFlight = true
		sl.frame = id
	}
	s.mu.Unlock()
	if err != nil {
		if !framecore.IsFatal(err) {
			s.swapchain.MarkStale()
		}
		return s.fail(res, fmt.Errorf("frame %d: %w", id, err))
	}

	s.cursor = (s.cursor + 1) % len(s.slots)
	s.stats.Frames++
	s.history = append(s.history, sl.index)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}

	if err := s.swapchain.Present(img.Index, []device.Semaphore{sl.renderSem}); err != nil {
		if errors.Is(err, framecore.ErrSwapchainStale) {
			s.stats.RebuildRequests++
			res.Status = StatusNeedsRebuild
			return res, nil
		}
		return s.fail(res, fmt.Errorf("frame %d: present: %w", id, err))
	}
	s.stats.Presents++

	if recErr != nil {
		s.stats.RecordFailures++
		framecore.Logger().Warn("frame: record failed", "frame", uint64(id), "err", recErr)
		res.Status = StatusRecordFailed
		return res, nil
	}
	res.Status = StatusPresented
	return res, nil
}

// fail reports err as the outcome of the frame. Fatal errors are also
// returned so the caller can recover the device.
func (s *Scheduler) fail(res Result, err error) (Result, error) {
	res.Status = StatusFailed
	res.Err = err
	s.stats.Failures++
	if framecore.IsFatal(err) {
		return res, err
	}
	framecore.Logger().Warn("frame: failed",
		"slot", res.Slot,
		"frame", uint64(res.Frame),
		"err", err)
	return res, nil
}

func (s *Scheduler) inFlight(sl *slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sl.inFlight
}

func (s *Scheduler) setRecording(id framecore.FrameID) {
	s.mu.Lock()
	s.recording = id
	s.mu.Unlock()
}

// record runs fn on the slot's encoder. A failing fn discards the partial
// encoding and yields an empty batch, so the submission still balances the
// acquire semaphore and the fence. err is non-nil only for backend failures.
func (s *Scheduler) record(sl *slot, id framecore.FrameID, img swapchain.AcquiredImage, fn RecordFunc) (cmds []device.CommandBuffer, recErr, err error) {
	if err := sl.encoder.Begin(fmt.Sprintf("frame-%d", id)); err != nil {
		return nil, nil, fmt.Errorf("frame %d: begin encoding: %w", id, err)
	}

	rec := &Recorder{
		sched:   s,
		frame:   id,
		slot:    sl.index,
		image:   img,
		encoder: sl.encoder,
	}
	if fn != nil {
		recErr = fn(rec)
	}
	if recErr != nil {
		sl.encoder.Discard()
		return nil, recErr, nil
	}

	cb, err := sl.encoder.End()
	if err != nil {
		if framecore.IsFatal(err) {
			return nil, nil, fmt.Errorf("frame %d: end encoding: %w", id, err)
		}
		return nil, fmt.Errorf("end encoding: %w", err), nil
	}
	return []device.CommandBuffer{cb}, nil, nil
}

// retire resets a slot whose fence has been observed signaled.
func (s *Scheduler) retire(sl *slot) error {
	s.mu.Lock()
	sl.inFlight = false
	s.mu.Unlock()
	if err := s.ctx.ResetFence(sl.fence); err != nil {
		return fmt.Errorf("frame: reset slot %d fence: %w", sl.index, err)
	}
	if err := sl.encoder.Reset(); err != nil {
		return fmt.Errorf("frame: reset slot %d encoder: %w", sl.index, err)
	}
	return nil
}

// Drain waits for every in-flight slot to retire, bounded per slot by
// timeout, and then reclaims deferred resources. The swapchain manager calls
// it before rebuilding.
func (s *Scheduler) Drain(timeout time.Duration) error {
	for _, sl := range s.slots {
		if !s.inFlight(sl) {
			continue
		}
		ok, err := s.ctx.WaitFence(sl.fence, timeout)
		if err != nil {
			return fmt.Errorf("frame: drain slot %d: %w", sl.index, err)
		}
		if !ok {
			return fmt.Errorf("frame: drain slot %d: %w", sl.index, framecore.ErrFrameTimeout)
		}
		if err := s.retire(sl); err != nil {
			return err
		}
	}
	s.registry.Reclaim()
	return nil
}

// Retired reports whether frame id can no longer be executing on the GPU.
// It polls fences and never blocks. It is safe to call from any goroutine.
func (s *Scheduler) Retired(id framecore.FrameID) bool {
	if id == framecore.NoFrame {
		return true
	}
	s.mu.Lock()
	if id > s.lastFrame || id == s.recording {
		s.mu.Unlock()
		return false
	}
	var fence device.Fence
	found := false
	for _, sl := range s.slots {
		if sl.inFlight && sl.frame == id {
			fence, found = sl.fence, true
			break
		}
	}
	s.mu.Unlock()

	// Older frames of a slot retired before the slot was reused; frames
	// that never reached submission have nothing in flight.
	if !found {
		return true
	}
	ok, err := s.ctx.FenceSignaled(fence)
	return err == nil && ok
}

// LastFrame returns the most recently assigned FrameID.
func (s *Scheduler) LastFrame() framecore.FrameID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

// SlotHistory returns the slot index of every submitted frame, oldest first.
// Only the most recent entries are kept.
func (s *Scheduler) SlotHistory() []int {
	return append([]int(nil), s.history...)
}

// Stats returns frame outcome counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// Destroy releases slot objects. All work must have completed.
func (s *Scheduler) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	for _, sl := range s.slots {
		sl.encoder.Destroy()
		s.ctx.ReleaseFence(sl.fence)
		s.ctx.ReleaseSemaphore(sl.acquireSem)
		s.ctx.ReleaseSemaphore(sl.renderSem)
	}
	s.slots = nil
}
