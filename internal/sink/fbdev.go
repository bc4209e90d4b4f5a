package sink

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/legacy"
	"github.com/1broseidon/inkmux/internal/protocol"
)

// autoUpdateRegionMode disables the driver's own damage tracking.
const autoUpdateRegionMode uint32 = 0

// <linux/fb.h> blanking.
const (
	fbioBlank        = 0x4611
	fbBlankUnblank   = 0
	fbBlankPowerdown = 4
)

// FBDev drives an mxcfb panel through its framebuffer device. Each update
// copies the damaged rows from the shared framebuffer into device memory
// and asks the controller to refresh them.
type FBDev struct {
	path   string
	file   *os.File
	mem    []byte
	line   int
	area   image.Rectangle
	src    *fb.Framebuffer
	marker uint32
	logger *slog.Logger
}

// OpenFBDev opens the framebuffer device at path.
func OpenFBDev(path string, src *fb.Framebuffer, logger *slog.Logger) (*FBDev, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	fd := file.Fd()

	var vinfo fb.VarScreenInfo
	if err := ioctl(fd, fb.FBIOGET_VSCREENINFO, unsafe.Pointer(&vinfo)); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s: FBIOGET_VSCREENINFO: %v", ErrUnavailable, path, err)
	}
	if vinfo.BitsPerPixel != fb.BytesPerPixel*8 {
		file.Close()
		return nil, fmt.Errorf("%w: %s: %d bits per pixel, want %d", ErrUnavailable, path, vinfo.BitsPerPixel, fb.BytesPerPixel*8)
	}
	var finfo fb.FixScreenInfo
	if err := ioctl(fd, fb.FBIOGET_FSCREENINFO, unsafe.Pointer(&finfo)); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s: FBIOGET_FSCREENINFO: %v", ErrUnavailable, path, err)
	}

	mem, err := unix.Mmap(int(fd), 0, int(finfo.SMemLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s: mmap: %v", ErrUnavailable, path, err)
	}

	mode := autoUpdateRegionMode
	if err := ioctl(fd, legacy.MXCFB_SET_AUTO_UPDATE_MODE, unsafe.Pointer(&mode)); err != nil {
		logger.Warn("could not disable auto update", "device", path, "error", err)
	}

	logger.Info("framebuffer device ready", "device", path,
		"xres", vinfo.XRes, "yres", vinfo.YRes, "line_length", finfo.LineLength)
	return &FBDev{
		path:   path,
		file:   file,
		mem:    mem,
		line:   int(finfo.LineLength),
		area:   image.Rect(0, 0, int(vinfo.XRes), int(vinfo.YRes)),
		src:    src,
		logger: logger,
	}, nil
}

func ioctl(fd uintptr, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Update copies the damaged rectangle and refreshes it. Synchronous updates
// wait for the controller to finish.
func (d *FBDev) Update(p protocol.UpdateParams) error {
	if d.file == nil {
		return ErrUnavailable
	}
	r := p.Rect().Intersect(fb.Bounds).Intersect(d.area)
	if r.Empty() {
		return nil
	}

	pix := d.src.Pixels()
	rowBytes := r.Dx() * fb.BytesPerPixel
	for y := r.Min.Y; y < r.Max.Y; y++ {
		srcOff := y*fb.Stride + r.Min.X*fb.BytesPerPixel
		dstOff := y*d.line + r.Min.X*fb.BytesPerPixel
		if dstOff+rowBytes > len(d.mem) {
			break
		}
		copy(d.mem[dstOff:dstOff+rowBytes], pix[srcOff:srcOff+rowBytes])
	}

	d.marker++
	data := legacy.ToMXCFB(protocol.ParamsForRect(r, p.Waveform, p.Flags), d.marker)
	if err := ioctl(d.file.Fd(), legacy.MXCFB_SEND_UPDATE, unsafe.Pointer(&data)); err != nil {
		return fmt.Errorf("%s: MXCFB_SEND_UPDATE: %w", d.path, err)
	}
	if p.Flags.Has(protocol.FlagSync) {
		wait := legacy.UpdateMarkerData{UpdateMarker: d.marker}
		if err := ioctl(d.file.Fd(), legacy.MXCFB_WAIT_FOR_UPDATE_COMPLETE, unsafe.Pointer(&wait)); err != nil {
			return fmt.Errorf("%s: MXCFB_WAIT_FOR_UPDATE_COMPLETE: %w", d.path, err)
		}
	}
	return nil
}

func (d *FBDev) Blank() error { return d.blank(fbBlankPowerdown) }

func (d *FBDev) Unblank() error { return d.blank(fbBlankUnblank) }

func (d *FBDev) blank(mode uintptr) error {
	if d.file == nil {
		return ErrUnavailable
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), fbioBlank, mode)
	if errno != 0 {
		return fmt.Errorf("%s: FBIOBLANK: %w", d.path, errno)
	}
	return nil
}

// Close unmaps and closes the device.
func (d *FBDev) Close() error {
	if d.file == nil {
		return nil
	}
	var firstErr error
	if err := unix.Munmap(d.mem); err != nil {
		firstErr = err
	}
	if err := d.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	d.file = nil
	d.mem = nil
	return firstErr
}
