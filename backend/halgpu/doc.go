// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package halgpu binds framecore to the gogpu/wgpu hardware abstraction
// layer.
//
// Device implements device.Backend over a hal.Device and hal.Queue, and
// Surface implements swapchain.Surface over a hal.Surface. HAL queues report
// completion as monotonically increasing submission indices, so a
// framecore fence is the submission index it guards: it has signaled once
// Queue.PollCompleted reaches that index. Semaphores are logical tokens
// because HAL orders acquire, submit and present itself.
//
// HAL backends register themselves on import:
//
//	import (
//		_ "github.com/gogpu/wgpu/hal/vulkan"
//
//		"github.com/gogpu/framecore/backend/halgpu"
//	)
//
//	dev, surface, err := halgpu.Open(gputypes.BackendVulkan, display, window, halgpu.Options{})
//
// The package registers "vulkan" and "noop" factories with the backend
// registry; each fails at open time when the HAL backend was not linked in.
package halgpu
