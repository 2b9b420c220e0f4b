package asset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

var (
	// ErrEmptyData is returned when there is nothing to decode.
	ErrEmptyData = errors.New("asset: empty data")

	// ErrEmptyImage is returned for images with a zero dimension.
	ErrEmptyImage = errors.New("asset: empty image")
)

// Image is a tightly packed, non-premultiplied RGBA8 image.
type Image struct {
	Label  string
	Width  int
	Height int
	Pix    []byte

	// Format is the container format the image was decoded from, if any.
	Format string
}

// NewImage allocates a transparent image.
func NewImage(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height*4)}, nil
}

// Load decodes the image file at path. The label is the file's base name.
func Load(path string) (*Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("asset: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := Decode(f)
	if err != nil {
		return nil, err
	}
	img.Label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return img, nil
}

// DecodeBytes decodes an encoded image held in memory.
func DecodeBytes(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes an image from r, detecting the format from its header.
func Decode(r io.Reader) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("asset: decode: %w", err)
	}
	img, err := FromImage(src)
	if err != nil {
		return nil, err
	}
	img.Format = format
	return img, nil
}

// FromImage converts any image.Image to RGBA8.
func FromImage(src image.Image) (*Image, error) {
	b := src.Bounds()
	img, err := NewImage(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}

	if n, ok := src.(*image.NRGBA); ok {
		for y := range img.Height {
			start := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(img.row(y), n.Pix[start:start+img.Width*4])
		}
		return img, nil
	}

	draw.Draw(img.NRGBA(), img.NRGBA().Bounds(), src, b.Min, draw.Src)
	return img, nil
}

func (m *Image) row(y int) []byte {
	stride := m.Width * 4
	return m.Pix[y*stride : (y+1)*stride]
}

// NRGBA returns a view of m sharing its pixels.
func (m *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    m.Pix,
		Stride: m.Width * 4,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// At returns the pixel at (x, y).
func (m *Image) At(x, y int) color.NRGBA {
	i := (y*m.Width + x) * 4
	return color.NRGBA{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2], A: m.Pix[i+3]}
}

// Bytes returns the size of the pixel data.
func (m *Image) Bytes() uint64 { return uint64(len(m.Pix)) }

// MipCount returns the number of levels in a full mip chain for the given
// dimensions, down to 1x1.
func MipCount(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return bits.Len(uint(max(width, height)))
}

// Mips returns the full mip chain of m. Level 0 is m itself. Each following
// level halves both dimensions, clamped to 1, and is resampled with a
// bilinear filter.
func (m *Image) Mips() []*Image {
	n := MipCount(m.Width, m.Height)
	if n == 0 {
		return nil
	}
	levels := make([]*Image, n)
	levels[0] = m
	for i := 1; i < n; i++ {
		prev := levels[i-1]
		next, _ := NewImage(max(prev.Width/2, 1), max(prev.Height/2, 1))
		next.Label = m.Label
		dst := next.NRGBA()
		draw.BiLinear.Scale(dst, dst.Bounds(), prev.NRGBA(), prev.NRGBA().Bounds(), draw.Src, nil)
		levels[i] = next
	}
	return levels
}
