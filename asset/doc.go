// Package asset decodes image files into tightly packed RGBA8 pixels and
// allocates GPU images for them through a resource.Registry.
//
// PNG, JPEG and GIF are decoded by the standard library; BMP, TIFF and WebP
// by golang.org/x/image.
package asset
