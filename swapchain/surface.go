// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package swapchain

import (
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/device"
	"github.com/gogpu/gputypes"
)

// SurfaceConfig is passed to Surface.Configure on every rebuild.
type SurfaceConfig struct {
	Extent      framecore.Extent
	Format      gputypes.TextureFormat
	PresentMode gputypes.PresentMode
	ImageCount  int
}

// Image is one presentable swapchain image.
type Image struct {
	Index  int
	Extent framecore.Extent
	Format gputypes.TextureFormat

	// Native is the backend image or view, valid until the next rebuild.
	Native any
}

// Acquired is the result of Surface.Acquire.
type Acquired struct {
	Index int

	// Suboptimal is set when the image is presentable but the swapchain no
	// longer matches the surface exactly.
	Suboptimal bool
}

// Surface is the presentation target of a window, as exposed by a backend.
//
// Acquire and Present report an out-of-date swapchain with
// framecore.ErrSwapchainStale, an expired acquire with
// framecore.ErrFrameTimeout and device loss with framecore.ErrDeviceLost.
type Surface interface {
	// Configure (re)creates the swapchain images for cfg.
	Configure(cfg SurfaceConfig) ([]Image, error)

	// Unconfigure releases the swapchain images. All work using them must
	// have completed.
	Unconfigure()

	// Acquire returns the next image. ready is signaled when the image can
	// be rendered to.
	Acquire(timeout time.Duration, ready device.Semaphore) (Acquired, error)

	// Present queues image index for display after wait signals.
	Present(index int, wait []device.Semaphore) error

	// Destroy releases the surface.
	Destroy()
}

// Drainer waits for all in-flight frames to retire.
// The frame scheduler implements it.
type Drainer interface {
	Drain(timeout time.Duration) error
}
