// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/framecore/swapchain"
)

// Surface implements swapchain.Surface over a HAL surface.
//
// HAL hands out one texture per acquire and does not expose the swapchain
// image count, so image indices are assigned round-robin over
// SurfaceConfig.ImageCount. The texture behind an acquired index is
// available from Texture until it is presented.
//
// HAL acquires block inside the backend with no caller-supplied deadline,
// so the Acquire timeout is ignored. The first non-zero timeout dropped is
// logged at debug level.
type Surface struct {
	dev     *Device
	surface hal.Surface
	caps    *hal.SurfaceCapabilities
	alpha   gputypes.CompositeAlphaMode
	owned   bool

	mu         sync.Mutex
	configured bool
	count      int
	next       int
	acquired   map[int]hal.SurfaceTexture

	timeoutLogged sync.Once
}

var _ swapchain.Surface = (*Surface)(nil)

// NewSurface wraps a HAL surface created on dev's instance. caps may be nil,
// in which case requested formats and present modes are used unchanged.
// The caller keeps ownership of surface.
func NewSurface(dev *Device, surface hal.Surface, caps *hal.SurfaceCapabilities) *Surface {
	return &Surface{
		dev:      dev,
		surface:  surface,
		caps:     caps,
		alpha:    gputypes.CompositeAlphaModeOpaque,
		acquired: make(map[int]hal.SurfaceTexture),
	}
}

// Configure implements swapchain.Surface. Unsupported formats and present
// modes fall back to the first supported format and FIFO.
func (s *Surface) Configure(cfg swapchain.SurfaceConfig) ([]swapchain.Image, error) {
	if cfg.Extent.IsZero() {
		return nil, framecore.ErrSurfaceUnavailable
	}
	format := s.pickFormat(cfg.Format)
	mode := s.pickPresentMode(cfg.PresentMode)

	err := s.surface.Configure(s.dev.device, &hal.SurfaceConfiguration{
		Width:       cfg.Extent.Width,
		Height:      cfg.Extent.Height,
		Format:      format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: mode,
		AlphaMode:   s.alpha,
	})
	if err != nil {
		return nil, mapError(fmt.Sprintf("configure %s", cfg.Extent), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = true
	s.count = max(cfg.ImageCount, 1)
	s.next = 0
	clear(s.acquired)

	images := make([]swapchain.Image, s.count)
	for i := range images {
		images[i] = swapchain.Image{Index: i, Extent: cfg.Extent, Format: format}
	}
	if format != cfg.Format {
		framecore.Logger().Info("halgpu: surface format fallback",
			"requested", cfg.Format.String(),
			"using", format.String())
	}
	return images, nil
}

func (s *Surface) pickFormat(want gputypes.TextureFormat) gputypes.TextureFormat {
	if s.caps == nil || len(s.caps.Formats) == 0 || slices.Contains(s.caps.Formats, want) {
		return want
	}
	return s.caps.Formats[0]
}

func (s *Surface) pickPresentMode(want gputypes.PresentMode) gputypes.PresentMode {
	if s.caps == nil || len(s.caps.PresentModes) == 0 || slices.Contains(s.caps.PresentModes, want) {
		return want
	}
	return gputypes.PresentModeFifo
}

// Unconfigure implements swapchain.Surface. Textures acquired but not
// presented are discarded.
func (s *Surface) Unconfigure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unconfigureLocked()
}

func (s *Surface) unconfigureLocked() {
	if !s.configured {
		return
	}
	for i, tex := range s.acquired {
		s.surface.DiscardTexture(tex)
		delete(s.acquired, i)
	}
	s.surface.Unconfigure(s.dev.device)
	s.configured = false
}

// Acquire implements swapchain.Surface. timeout is not enforced; ready is
// signaled implicitly by queue order.
func (s *Surface) Acquire(timeout time.Duration, _ device.Semaphore) (swapchain.Acquired, error) {
	if timeout > 0 {
		s.timeoutLogged.Do(func() {
			framecore.Logger().Debug("halgpu: acquire timeout not supported, blocking in backend",
				"backend", s.dev.name,
				"timeout", timeout)
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return swapchain.Acquired{}, fmt.Errorf("halgpu: acquire: %w", framecore.ErrSwapchainStale)
	}

	at, err := s.surface.AcquireTexture(nil)
	if err != nil {
		return swapchain.Acquired{}, mapError("acquire", err)
	}

	idx := s.next % s.count
	s.next++
	if old, ok := s.acquired[idx]; ok {
		// The previous holder of this index was never presented.
		s.surface.DiscardTexture(old)
	}
	s.acquired[idx] = at.Texture
	return swapchain.Acquired{Index: idx, Suboptimal: at.Suboptimal}, nil
}

// Present implements swapchain.Surface.
func (s *Surface) Present(index int, _ []device.Semaphore) error {
	s.mu.Lock()
	tex, ok := s.acquired[index]
	delete(s.acquired, index)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("halgpu: present image %d: not acquired", index)
	}
	return mapError("present", s.dev.queue.Present(s.surface, tex, nil))
}

// Texture returns the texture currently acquired for index.
func (s *Surface) Texture(index int) (hal.SurfaceTexture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tex, ok := s.acquired[index]
	return tex, ok
}

// HAL returns the underlying surface.
func (s *Surface) HAL() hal.Surface { return s.surface }

// Destroy implements swapchain.Surface.
func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unconfigureLocked()
	if s.owned {
		s.surface.Destroy()
		s.owned = false
	}
}
