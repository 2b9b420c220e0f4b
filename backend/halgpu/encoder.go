// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framecore/device"
)

// Encoder implements device.CommandEncoder over a HAL command encoder.
// Command buffers it produced are recycled by Reset, which the frame
// scheduler calls once the slot's fence has signaled.
type Encoder struct {
	enc     hal.CommandEncoder
	pending []hal.CommandBuffer
}

var _ device.CommandEncoder = (*Encoder)(nil)

// Begin implements device.CommandEncoder.
func (e *Encoder) Begin(label string) error {
	return mapError("begin encoding", e.enc.BeginEncoding(label))
}

// End implements device.CommandEncoder.
func (e *Encoder) End() (device.CommandBuffer, error) {
	cb, err := e.enc.EndEncoding()
	if err != nil {
		return nil, mapError("end encoding", err)
	}
	e.pending = append(e.pending, cb)
	return cb, nil
}

// Discard implements device.CommandEncoder.
func (e *Encoder) Discard() { e.enc.DiscardEncoding() }

// Reset implements device.CommandEncoder.
func (e *Encoder) Reset() error {
	e.enc.ResetAll(e.pending)
	e.pending = nil
	return nil
}

// Destroy implements device.CommandEncoder.
func (e *Encoder) Destroy() {
	if len(e.pending) > 0 {
		e.enc.ResetAll(e.pending)
		e.pending = nil
	}
	e.enc.Destroy()
}

// Native returns the hal.CommandEncoder for recording passes.
func (e *Encoder) Native() any { return e.enc }

// HAL returns the underlying encoder.
func (e *Encoder) HAL() hal.CommandEncoder { return e.enc }
