package framecore

import (
	"fmt"
	"strings"
)

// FrameID identifies one submitted frame. IDs increase monotonically from 1;
// the zero value means "never used".
type FrameID uint64

// NoFrame is the FrameID of a resource that has never been used by a frame.
const NoFrame FrameID = 0

// Extent is a 2D surface size in physical pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether the extent has zero area. A minimized window
// reports such an extent.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Area returns Width*Height.
func (e Extent) Area() uint64 {
	return uint64(e.Width) * uint64(e.Height)
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Capability tags a queue by the kind of work it accepts.
type Capability uint8

const (
	// CapabilityGraphics accepts render and compute command buffers.
	CapabilityGraphics Capability = 1 << iota

	// CapabilityPresent can present swapchain images.
	CapabilityPresent

	// CapabilityTransfer accepts copy command buffers.
	CapabilityTransfer
)

// Has reports whether c includes all bits of other.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c.Has(CapabilityGraphics) {
		parts = append(parts, "graphics")
	}
	if c.Has(CapabilityPresent) {
		parts = append(parts, "present")
	}
	if c.Has(CapabilityTransfer) {
		parts = append(parts, "transfer")
	}
	if rest := c &^ (CapabilityGraphics | CapabilityPresent | CapabilityTransfer); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}
