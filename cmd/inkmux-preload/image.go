package main

import (
	"unsafe"

	"github.com/1broseidon/inkmux/internal/fb"
)

// qimageFormatRGB16 is QImage::Format_RGB16, the panel's pixel layout.
const qimageFormatRGB16 = 7

type imageBufferer interface {
	ImageBuffer(width, height, stride int) unsafe.Pointer
}

// qimageBuffer returns shared framebuffer memory and its stride for a
// toolkit image of the given size and format, or nil when the image should
// allocate its own pixels.
func qimageBuffer(d imageBufferer, width, height, format int) (unsafe.Pointer, int) {
	if format != qimageFormatRGB16 || width <= 0 {
		return nil, 0
	}
	stride := width * fb.BytesPerPixel
	p := d.ImageBuffer(width, height, stride)
	if p == nil {
		return nil, 0
	}
	return p, stride
}
