package resource

import (
	"fmt"

	"github.com/gogpu/framecore"
	"github.com/gogpu/gputypes"
)

// Kind tags a resource.
type Kind uint8

const (
	KindBuffer Kind = iota + 1
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Handle names a resource in a Registry. A handle becomes invalid as soon
// as the resource is freed, even if the memory is kept for in-flight frames.
// The zero Handle is never valid.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.Generation == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Generation)
}

// Desc describes a resource to allocate.
type Desc struct {
	Kind  Kind
	Label string

	// Size is the buffer size in bytes.
	Size        uint64
	BufferUsage gputypes.BufferUsage

	// Extent, Format, MipLevels and ImageUsage describe an image.
	Extent     framecore.Extent
	Format     gputypes.TextureFormat
	MipLevels  uint32
	ImageUsage gputypes.TextureUsage
}

// Info describes a live resource.
type Info struct {
	Kind     Kind
	Label    string
	Bytes    uint64
	LastUsed framecore.FrameID
}

// MipExtent returns the extent of mip level of an image of the given base
// extent. Each level halves both dimensions, clamped to 1.
func MipExtent(base framecore.Extent, level uint32) framecore.Extent {
	return framecore.Extent{
		Width:  max(base.Width>>level, 1),
		Height: max(base.Height>>level, 1),
	}
}

// bytes estimates the device memory footprint of d.
func (d *Desc) bytes() uint64 {
	if d.Kind == KindBuffer {
		return d.Size
	}
	levels := d.MipLevels
	if levels == 0 {
		levels = 1
	}
	w, h := uint64(d.Extent.Width), uint64(d.Extent.Height)
	bpp := bytesPerPixel(d.Format)
	var total uint64
	for range levels {
		total += w * h * bpp
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return total
}

func bytesPerPixel(f gputypes.TextureFormat) uint64 {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint:
		return 1
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint:
		return 2
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRG32Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}
