package asset

import (
	"fmt"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/resource"
	"github.com/gogpu/gputypes"
)

// Format is the texture format of every uploaded image.
const Format = gputypes.TextureFormatRGBA8Unorm

// Upload creates a single-level RGBA8 image resource and writes img's
// pixels to it. CopyDst is always added to usage.
func Upload(reg *resource.Registry, img *Image, usage gputypes.TextureUsage) (resource.Handle, error) {
	if img == nil {
		return resource.Handle{}, ErrEmptyImage
	}
	return upload(reg, img.Label, []*Image{img}, usage)
}

// UploadMipmapped is Upload with img's full mip chain, every level written.
func UploadMipmapped(reg *resource.Registry, img *Image, usage gputypes.TextureUsage) (resource.Handle, error) {
	if img == nil {
		return resource.Handle{}, ErrEmptyImage
	}
	return upload(reg, img.Label, img.Mips(), usage)
}

func upload(reg *resource.Registry, label string, levels []*Image, usage gputypes.TextureUsage) (resource.Handle, error) {
	if len(levels) == 0 || levels[0].Width <= 0 || levels[0].Height <= 0 {
		return resource.Handle{}, ErrEmptyImage
	}
	base := levels[0]
	h, err := reg.Allocate(resource.Desc{
		Kind:       resource.KindImage,
		Label:      label,
		Extent:     framecore.Extent{Width: uint32(base.Width), Height: uint32(base.Height)},
		Format:     Format,
		MipLevels:  uint32(len(levels)),
		ImageUsage: usage | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return resource.Handle{}, fmt.Errorf("asset: upload %q: %w", label, err)
	}
	for i, level := range levels {
		if err := reg.WriteImage(h, uint32(i), level.Pix); err != nil {
			_ = reg.Free(h)
			return resource.Handle{}, fmt.Errorf("asset: upload %q: %w", label, err)
		}
	}
	framecore.Logger().Debug("asset: uploaded",
		"label", label, "width", base.Width, "height", base.Height, "mips", len(levels))
	return h, nil
}
