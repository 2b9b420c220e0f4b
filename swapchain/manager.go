// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package swapchain

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/gputypes"
)

// AcquiredImage is an image handed out for one frame.
type AcquiredImage struct {
	Index int
	Image Image

	// Ready is signaled by the presentation engine when the image may be
	// written. The frame's submission waits on it.
	Ready device.Semaphore
}

// Manager owns the swapchain of one surface and its Valid/Stale/Rebuilding
// state machine.
//
// Manager is driven from the render loop goroutine and is not safe for
// concurrent use. Presentation is serialized against submission through the
// device context's queue lock.
type Manager struct {
	ctx     *device.Context
	surface Surface
	queue   *device.Queue
	drainer Drainer

	state      State
	target     framecore.Extent
	extent     framecore.Extent
	format     gputypes.TextureFormat
	images     []Image
	generation uint64
	destroyed  bool
}

// New creates a manager for surface and builds the initial swapchain at
// extent. A zero-area extent leaves the manager Stale until a later Rebuild.
func New(ctx *device.Context, surface Surface, extent framecore.Extent) (*Manager, error) {
	q, err := ctx.AcquireQueue(framecore.CapabilityPresent)
	if err != nil {
		return nil, fmt.Errorf("swapchain: %w", err)
	}
	m := &Manager{
		ctx:     ctx,
		surface: surface,
		queue:   q,
		state:   Stale,
		target:  extent,
		format:  ctx.Config().SurfaceFormat,
	}
	if extent.IsZero() {
		return m, nil
	}
	if err := m.Rebuild(extent); err != nil {
		return nil, err
	}
	return m, nil
}

// SetDrainer sets what Rebuild waits on before recreating images.
// Without one, Rebuild falls back to a device-wide WaitIdle.
func (m *Manager) SetDrainer(d Drainer) { m.drainer = d }

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Extent returns the extent of the current images.
func (m *Manager) Extent() framecore.Extent { return m.extent }

// TargetExtent returns the extent the next rebuild will use.
func (m *Manager) TargetExtent() framecore.Extent { return m.target }

// Format returns the image format.
func (m *Manager) Format() gputypes.TextureFormat { return m.format }

// Images returns the current images.
func (m *Manager) Images() []Image { return m.images }

// Generation increments on every successful rebuild.
func (m *Manager) Generation() uint64 { return m.generation }

// NotifyResize records a new surface extent and marks the swapchain Stale.
// Every notification invalidates, even when the extent is unchanged.
func (m *Manager) NotifyResize(extent framecore.Extent) {
	m.target = extent
	if m.state == Valid {
		m.state = Stale
	}
	framecore.Logger().Debug("swapchain: resize", "extent", extent.String())
}

// MarkStale invalidates the swapchain.
func (m *Manager) MarkStale() {
	if m.state == Valid {
		m.state = Stale
	}
}

// Acquire returns the next image, signaling ready when it can be written.
//
// Errors: framecore.ErrSurfaceUnavailable while the target extent has zero
// area, framecore.ErrSwapchainStale while not Valid (no GPU work is issued),
// framecore.ErrFrameTimeout and framecore.ErrDeviceLost from the backend.
// A suboptimal image is returned normally and marks the swapchain Stale.
func (m *Manager) Acquire(timeout time.Duration, ready device.Semaphore) (AcquiredImage, error) {
	switch {
	case m.destroyed:
		return AcquiredImage{}, framecore.ErrClosed
	case m.target.IsZero():
		return AcquiredImage{}, framecore.ErrSurfaceUnavailable
	case m.state != Valid:
		return AcquiredImage{}, framecore.ErrSwapchainStale
	}

	acq, err := m.surface.Acquire(timeout, ready)
	if err != nil {
		if errors.Is(err, framecore.ErrSwapchainStale) {
			m.state = Stale
			framecore.Logger().Warn("swapchain: acquire out of date", "generation", m.generation)
		}
		return AcquiredImage{}, err
	}
	if acq.Index < 0 || acq.Index >= len(m.images) {
		return AcquiredImage{}, fmt.Errorf("swapchain: acquired index %d out of range [0,%d)", acq.Index, len(m.images))
	}
	if acq.Suboptimal {
		m.state = Stale
		framecore.Logger().Debug("swapchain: suboptimal image", "index", acq.Index)
	}
	return AcquiredImage{
		Index: acq.Index,
		Image: m.images[acq.Index],
		Ready: ready,
	}, nil
}

// Present queues image index for display once wait has signaled.
// An out-of-date result marks the swapchain Stale and returns
// framecore.ErrSwapchainStale.
func (m *Manager) Present(index int, wait []device.Semaphore) error {
	if m.destroyed {
		return framecore.ErrClosed
	}
	err := m.ctx.WithQueue(m.queue, func() error {
		return m.surface.Present(index, wait)
	})
	if err != nil {
		if errors.Is(err, framecore.ErrSwapchainStale) {
			m.state = Stale
			framecore.Logger().Warn("swapchain: present out of date", "generation", m.generation)
			return framecore.ErrSwapchainStale
		}
		return err
	}
	return nil
}

// Rebuild drains in-flight frames and recreates the images at extent.
//
// A zero-area extent leaves the swapchain Stale and returns
// framecore.ErrSurfaceUnavailable. A failed recreate also leaves it Stale;
// only device loss is fatal. On success the state becomes Valid and the
// generation is bumped.
func (m *Manager) Rebuild(extent framecore.Extent) error {
	if m.destroyed {
		return framecore.ErrClosed
	}
	m.target = extent
	if extent.IsZero() {
		m.state = Stale
		return framecore.ErrSurfaceUnavailable
	}

	m.state = Rebuilding
	if err := m.drain(); err != nil {
		m.state = Stale
		return fmt.Errorf("swapchain: drain before rebuild: %w", err)
	}

	if m.images != nil {
		m.surface.Unconfigure()
		m.images = nil
	}

	cfg := m.ctx.Config()
	images, err := m.surface.Configure(SurfaceConfig{
		Extent:      extent,
		Format:      m.format,
		PresentMode: cfg.PresentMode,
		ImageCount:  cfg.ImageCount,
	})
	if err != nil {
		m.state = Stale
		return fmt.Errorf("swapchain: configure %s: %w", extent, err)
	}
	if len(images) == 0 {
		m.state = Stale
		return fmt.Errorf("swapchain: configure %s: no images", extent)
	}

	m.images = images
	m.extent = extent
	if images[0].Format != gputypes.TextureFormatUndefined {
		m.format = images[0].Format
	}
	m.generation++
	m.state = Valid

	framecore.Logger().Info("swapchain: rebuilt",
		"extent", extent.String(),
		"images", len(images),
		"format", m.format.String(),
		"generation", m.generation)
	return nil
}

func (m *Manager) drain() error {
	if m.drainer != nil {
		return m.drainer.Drain(m.ctx.Config().FenceTimeout)
	}
	return m.ctx.WaitIdle()
}

// Destroy releases the images and the surface. The caller must have drained
// all in-flight work.
func (m *Manager) Destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	if m.images != nil {
		m.surface.Unconfigure()
		m.images = nil
	}
	m.surface.Destroy()
	m.state = Stale
}
