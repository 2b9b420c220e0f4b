// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package engine wires the device context, resource registry, swapchain
// manager and frame scheduler into a render loop.
//
// An Engine owns one instance of each component, built from a Factory that
// opens a backend and a surface for a Window. Every tick it forwards resize
// events to the swapchain, rebuilds the swapchain when it is stale and runs
// one frame. Device loss tears everything down and, when
// framecore.WithDeviceRecovery allows it, builds a fresh set:
//
//	eng, err := engine.New(win, halgpu.Factory(gputypes.BackendVulkan, halgpu.Options{}), draw,
//		framecore.WithFramesInFlight(2),
//		framecore.WithDeviceRecovery(1),
//	)
//	if err != nil {
//		return err
//	}
//	defer eng.Shutdown()
//
//	loop := &engine.Loop{Handler: eng, Update: game.Update}
//	return loop.Run(ctx)
//
// Loop drives fixed-rate updates (20 per second by default) and calls the
// TickHandler once per iteration, skipping at most MaxFrameSkip updates
// when rendering falls behind.
package engine
