// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framecore"
)

var (
	// ErrNoAdapter is returned when the HAL instance exposes no adapter.
	ErrNoAdapter = errors.New("halgpu: no adapter found")

	// ErrForeignObject is returned when a command buffer, buffer or image
	// was not created by this package.
	ErrForeignObject = errors.New("halgpu: object not created by halgpu")

	// ErrUnsupportedProvider is returned by FromProvider when the provider
	// exposes no HAL device and queue.
	ErrUnsupportedProvider = errors.New("halgpu: provider does not expose HAL types")
)

// mapError translates HAL errors into framecore sentinels, keeping the HAL
// error in the chain.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch {
	case errors.Is(err, hal.ErrDeviceLost):
		sentinel = framecore.ErrDeviceLost
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		sentinel = framecore.ErrOutOfDeviceMemory
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost):
		sentinel = framecore.ErrSwapchainStale
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
		sentinel = framecore.ErrFrameTimeout
	case errors.Is(err, hal.ErrZeroArea):
		sentinel = framecore.ErrSurfaceUnavailable
	default:
		return fmt.Errorf("halgpu: %s: %w", op, err)
	}
	return fmt.Errorf("halgpu: %s: %w: %w", op, sentinel, err)
}
