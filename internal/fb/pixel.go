package fb

import (
	"encoding/binary"
	"image"
	"image/color"
)

// Bounds is the full-screen rectangle.
var Bounds = image.Rect(0, 0, Width, Height)

// RGB565 packs 8-bit channels into one pixel.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// ExpandRGB565 unpacks a pixel into 8-bit channels.
func ExpandRGB565(v uint16) (r, g, b uint8) {
	r5 := uint8(v >> 11 & 0x1f)
	g6 := uint8(v >> 5 & 0x3f)
	b5 := uint8(v & 0x1f)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// At returns the raw pixel at (x, y).
func (f *Framebuffer) At(x, y int) uint16 {
	off := y*Stride + x*BytesPerPixel
	return binary.LittleEndian.Uint16(f.data[off:])
}

// Set writes the raw pixel at (x, y).
func (f *Framebuffer) Set(x, y int, v uint16) {
	off := y*Stride + x*BytesPerPixel
	binary.LittleEndian.PutUint16(f.data[off:], v)
}

// Fill paints r (clipped to the screen) with v.
func (f *Framebuffer) Fill(r image.Rectangle, v uint16) {
	r = r.Intersect(Bounds)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			f.Set(x, y, v)
		}
	}
}

// View returns a read-only image.Image over the pixel plane.
func (f *Framebuffer) View() image.Image { return view{f} }

type view struct{ f *Framebuffer }

func (v view) ColorModel() color.Model { return color.RGBAModel }
func (v view) Bounds() image.Rectangle { return Bounds }

func (v view) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(Bounds)) {
		return color.RGBA{}
	}
	r, g, b := ExpandRGB565(v.f.At(x, y))
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
