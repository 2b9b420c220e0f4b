// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"fmt"

	"github.com/gogpu/framecore"
)

// Status is the outcome of one RunFrame call.
type Status uint8

const (
	StatusPresented Status = iota
	StatusTimeout
	StatusNeedsRebuild
	StatusSurfaceUnavailable
	StatusRecordFailed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPresented:
		return "Presented"
	case StatusTimeout:
		return "Timeout"
	case StatusNeedsRebuild:
		return "NeedsRebuild"
	case StatusSurfaceUnavailable:
		return "SurfaceUnavailable"
	case StatusRecordFailed:
		return "RecordFailed"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Result describes one frame.
type Result struct {
	Status Status

	// Frame is the ID assigned to the frame, NoFrame if it never reached
	// recording.
	Frame framecore.FrameID

	// Slot is the frame slot that was selected.
	Slot int

	// Image is the swapchain image index, -1 if none was acquired.
	Image int

	// Err is the record callback error for StatusRecordFailed and the
	// backend error for StatusFailed.
	Err error
}

// Stats counts frame outcomes since the scheduler was created.
type Stats struct {
	Frames             uint64
	Presents           uint64
	Timeouts           uint64
	RebuildRequests    uint64
	SurfaceUnavailable uint64
	RecordFailures     uint64
	Failures           uint64
}
