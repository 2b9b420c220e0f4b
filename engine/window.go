// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"iter"
	"math"
	"sync"

	"github.com/gogpu/framecore"
	"github.com/gogpu/gpucontext"
)

// Window is the windowing collaborator of an Engine.
type Window interface {
	// SurfaceHandle returns the native display and window handles used to
	// create a presentation surface.
	SurfaceHandle() (display, window uintptr)

	// Extent returns the current drawable size in physical pixels.
	Extent() framecore.Extent

	// PollResizeEvents yields the resize events received since the last
	// call. The sequence is finite and can be ranged over once.
	PollResizeEvents() iter.Seq[framecore.Extent]
}

// GPUWindow adapts a gpucontext.WindowProvider and gpucontext.EventSource
// pair to Window. Logical sizes are converted to physical pixels with the
// provider's scale factor.
//
// Resize callbacks may arrive on any goroutine; they are buffered until the
// next PollResizeEvents.
type GPUWindow struct {
	provider gpucontext.WindowProvider
	display  uintptr
	window   uintptr

	mu      sync.Mutex
	pending []framecore.Extent
}

var _ Window = (*GPUWindow)(nil)

// NewGPUWindow creates a Window over provider. When events is non-nil its
// resize notifications are collected. display and window are returned
// unchanged by SurfaceHandle.
func NewGPUWindow(provider gpucontext.WindowProvider, events gpucontext.EventSource, display, window uintptr) *GPUWindow {
	w := &GPUWindow{
		provider: provider,
		display:  display,
		window:   window,
	}
	if events != nil {
		events.OnResize(w.handleResize)
	}
	return w
}

func (w *GPUWindow) handleResize(width, height int) {
	e := w.physical(width, height)
	w.mu.Lock()
	w.pending = append(w.pending, e)
	w.mu.Unlock()
}

// SurfaceHandle implements Window.
func (w *GPUWindow) SurfaceHandle() (display, window uintptr) {
	return w.display, w.window
}

// Extent implements Window.
func (w *GPUWindow) Extent() framecore.Extent {
	return w.physical(w.provider.Size())
}

// PollResizeEvents implements Window.
func (w *GPUWindow) PollResizeEvents() iter.Seq[framecore.Extent] {
	w.mu.Lock()
	events := w.pending
	w.pending = nil
	w.mu.Unlock()

	return func(yield func(framecore.Extent) bool) {
		for _, e := range events {
			if !yield(e) {
				return
			}
		}
	}
}

// RequestRedraw forwards to the provider.
func (w *GPUWindow) RequestRedraw() { w.provider.RequestRedraw() }

func (w *GPUWindow) physical(width, height int) framecore.Extent {
	scale := w.provider.ScaleFactor()
	if scale <= 0 {
		scale = 1
	}
	return framecore.Extent{
		Width:  toPixels(width, scale),
		Height: toPixels(height, scale),
	}
}

func toPixels(v int, scale float64) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(math.Round(float64(v) * scale))
}
