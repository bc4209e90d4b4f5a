// Package fb implements the shared framebuffer: a fixed-size pixel plane and
// a metadata plane placed in one anonymous memory object that the display
// server allocates and hands to every client by descriptor.
package fb

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Panel geometry. Pixels are RGB565, one uint16 per pixel, row-major.
const (
	Width         = 1404
	Height        = 1872
	BytesPerPixel = 2
	Stride        = Width * BytesPerPixel

	PixelBytes = Width * Height * BytesPerPixel
	MetaBytes  = Width * Height
	Size       = PixelBytes + MetaBytes
)

// White is the RGB565 value every pixel is initialized to.
const White uint16 = 0xffff

var (
	// ErrAlloc wraps failures creating or sizing the backing memory object.
	ErrAlloc = errors.New("framebuffer allocation failed")
	// ErrMap wraps failures mapping a handle into the address space.
	ErrMap = errors.New("framebuffer mapping failed")
	// ErrNotConnected is returned when a handle transfer has no channel.
	ErrNotConnected = errors.New("handle channel not connected")
)

// Framebuffer is one process's view of the shared pixel memory.
type Framebuffer struct {
	fd    int
	data  []byte
	owner bool
}

// Allocate creates the backing memory object, sizes it, maps it and paints
// it white. The caller owns the returned handle.
func Allocate() (*Framebuffer, error) {
	fd, err := unix.MemfdCreate("inkmux-fb", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: memfd_create: %v", ErrAlloc, err)
	}
	if err := unix.Ftruncate(fd, Size); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: ftruncate to %d bytes: %v", ErrAlloc, Size, err)
	}

	f, err := Map(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	f.owner = true
	f.Clear()
	return f, nil
}

// Map maps handle read-write at an address chosen by the kernel. The handle
// must refer to an object of exactly Size bytes.
func Map(handle int) (*Framebuffer, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(handle, &stat); err != nil {
		return nil, fmt.Errorf("%w: fstat handle %d: %v", ErrMap, handle, err)
	}
	if stat.Size != Size {
		return nil, fmt.Errorf("%w: handle %d is %d bytes, want %d", ErrMap, handle, stat.Size, Size)
	}

	data, err := unix.Mmap(handle, 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap handle %d: %v", ErrMap, handle, err)
	}
	return &Framebuffer{fd: handle, data: data}, nil
}

// Remap replaces the mapping with handle at the same base address, so
// pointers previously handed out stay valid. The new object takes over the
// previous descriptor number and handle is closed, so Handle is unchanged.
func (f *Framebuffer) Remap(handle int) error {
	if f == nil || f.data == nil {
		return fmt.Errorf("%w: framebuffer is not mapped", ErrMap)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(handle, &stat); err != nil {
		return fmt.Errorf("%w: fstat handle %d: %v", ErrMap, handle, err)
	}
	if stat.Size != Size {
		return fmt.Errorf("%w: handle %d is %d bytes, want %d", ErrMap, handle, stat.Size, Size)
	}

	base := unsafe.Pointer(&f.data[0])
	got, err := unix.MmapPtr(handle, 0, base, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED)
	if err != nil {
		return fmt.Errorf("%w: remap handle %d at %p: %v", ErrMap, handle, base, err)
	}
	if got != base {
		return fmt.Errorf("%w: remap landed at %p, want %p", ErrMap, got, base)
	}

	if f.fd != handle {
		if err := unix.Dup3(handle, f.fd, unix.O_CLOEXEC); err != nil {
			return fmt.Errorf("%w: move handle %d onto %d: %v", ErrMap, handle, f.fd, err)
		}
		unix.Close(handle)
	}
	return nil
}

// Handle returns the descriptor backing the mapping.
func (f *Framebuffer) Handle() int { return f.fd }

// Owner reports whether this process allocated the backing object.
func (f *Framebuffer) Owner() bool { return f.owner }

// Pixels returns the RGB565 pixel plane.
func (f *Framebuffer) Pixels() []byte { return f.data[:PixelBytes:PixelBytes] }

// Meta returns the per-pixel metadata plane.
func (f *Framebuffer) Meta() []byte { return f.data[PixelBytes:Size:Size] }

// Base returns the process-local address of the mapping.
func (f *Framebuffer) Base() unsafe.Pointer {
	if len(f.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&f.data[0])
}

// Clear paints every pixel white and zeroes the metadata plane.
func (f *Framebuffer) Clear() {
	pix := f.Pixels()
	for i := range pix {
		pix[i] = 0xff
	}
	meta := f.Meta()
	for i := range meta {
		meta[i] = 0
	}
}

// Close unmaps the memory and closes the handle.
func (f *Framebuffer) Close() error {
	if f == nil {
		return nil
	}
	var firstErr error
	if f.data != nil {
		if err := unix.Munmap(f.data); err != nil {
			firstErr = err
		}
		f.data = nil
	}
	if f.fd >= 0 {
		if err := unix.Close(f.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		f.fd = -1
	}
	return firstErr
}
