// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame drives one frame per call: slot fence wait, image acquire,
// recording, submission and presentation.
//
// A [Scheduler] rotates N frame slots round-robin. Each slot owns a command
// encoder, an acquire-complete semaphore, a render-complete semaphore and a
// fence. A slot is never recorded into before its previous fence has been
// observed signaled, so the CPU runs at most N frames ahead of the GPU.
//
// Only device loss is returned as an error. Every other outcome of a frame
// is reported through [Result.Status]:
//
//	StatusPresented           the frame was submitted and presented
//	StatusTimeout             the slot fence or the acquire timed out
//	StatusNeedsRebuild        the swapchain is stale; rebuild it
//	StatusSurfaceUnavailable  the surface has zero area
//	StatusRecordFailed        the record callback failed; see Result.Err
//	StatusFailed              a backend call failed; see Result.Err
//
// The Scheduler is also the [resource.FrameTracker] of the registry and the
// [swapchain.Drainer] of the swapchain manager.
package frame
