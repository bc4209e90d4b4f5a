// Package shim emulates the panel's framebuffer device inside an unmodified
// client. The preload module routes the client's open, mmap and ioctl calls
// for the device here; pixels land in the shared framebuffer and refresh
// requests become update protocol messages.
package shim

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/legacy"
	"github.com/1broseidon/inkmux/internal/protocol"
)

// DevicePath is the device node clients open.
const DevicePath = "/dev/fb0"

// Updater sends updates to the display server.
type Updater interface {
	SendUpdate(p protocol.UpdateParams) (bool, error)
}

// Device is the emulated framebuffer device.
type Device struct {
	fb         *fb.Framebuffer
	updates    Updater
	translator legacy.Translator
	generation legacy.Generation
	logger     *slog.Logger

	mu           sync.Mutex
	imageAdopted bool
	closers      []func() error
	events       <-chan protocol.InputEvent
	done         chan struct{}

	regMu   sync.Mutex
	reg     Registration
	regPath string
	regGen  uint64
}

// NewDevice emulates the device on top of f, sending refreshes through u.
func NewDevice(f *fb.Framebuffer, u Updater, tr legacy.Translator, gen legacy.Generation, logger *slog.Logger) *Device {
	return &Device{fb: f, updates: u, translator: tr, generation: gen, logger: logger}
}

// Framebuffer returns the shared framebuffer behind the device.
func (d *Device) Framebuffer() *fb.Framebuffer { return d.fb }

// Events delivers touch input while this client is on screen, across
// re-registrations. It is nil for devices without a session and closed by
// Close.
func (d *Device) Events() <-chan protocol.InputEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events
}

// Open returns the sentinel handle for the device path. ok is false for
// every other path, which the caller should open normally.
func (d *Device) Open(path string) (handle int, ok bool) {
	if path != DevicePath {
		return -1, false
	}
	d.logger.Debug("device opened", "path", path)
	return d.fb.Handle(), true
}

// IsDevice reports whether fd is the sentinel handle.
func (d *Device) IsDevice(fd int) bool {
	return fd >= 0 && fd == d.fb.Handle()
}

// Mmap returns the shared framebuffer address for the sentinel handle.
// Mappings larger than the framebuffer are refused.
func (d *Device) Mmap(fd int, length int) (unsafe.Pointer, error) {
	if !d.IsDevice(fd) {
		return nil, unix.EBADF
	}
	if length < 0 || length > fb.Size {
		return nil, unix.EINVAL
	}
	return d.fb.Base(), nil
}

// Ioctl serves device-control requests. arg points at the request's
// argument structure. Requests the device does not know are logged and
// treated as successful no-ops.
func (d *Device) Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	if !d.IsDevice(fd) {
		return unix.EBADF
	}
	switch req {
	case fb.FBIOGET_VSCREENINFO:
		if arg == nil {
			return unix.EFAULT
		}
		*(*fb.VarScreenInfo)(arg) = fb.PanelVarScreenInfo()
	case fb.FBIOGET_FSCREENINFO:
		if arg == nil {
			return unix.EFAULT
		}
		*(*fb.FixScreenInfo)(arg) = fb.PanelFixScreenInfo(uintptr(d.fb.Base()))
	case fb.FBIOPUT_VSCREENINFO, legacy.MXCFB_SET_AUTO_UPDATE_MODE, legacy.MXCFB_WAIT_FOR_UPDATE_COMPLETE:
	case legacy.MXCFB_SEND_UPDATE:
		if arg == nil {
			return unix.EFAULT
		}
		return d.sendUpdate(d.translator.Translate(*(*legacy.UpdateData)(arg)))
	default:
		d.logger.Info("ignoring unknown ioctl", "request", fmt.Sprintf("%#x", req))
	}
	return nil
}

// LegacyUpdate refreshes the rectangle (x, y, width, height) using the
// coarse mode vocabulary of the configured device generation. No-op modes
// send nothing.
func (d *Device) LegacyUpdate(x, y, width, height, mode int32) error {
	p, ok := legacy.Params(d.generation, x, y, width, height, mode)
	if !ok {
		if _, known := legacy.Lookup(d.generation, mode); !known {
			d.logger.Info("ignoring unknown refresh mode", "generation", d.generation, "mode", mode)
		}
		return nil
	}
	return d.sendUpdate(p)
}

// sendUpdate surfaces transport failures as a generic I/O error. A refusal
// by the server is not an error for the caller. When the server has gone
// away the device registers again and resends once.
func (d *Device) sendUpdate(p protocol.UpdateParams) error {
	gen := d.regGeneration()
	ok, err := d.updates.SendUpdate(p)
	if err != nil && serverGone(err) {
		if _, rerr := d.reregister(gen); rerr == nil {
			ok, err = d.updates.SendUpdate(p)
		}
	}
	if err != nil {
		d.logger.Error("update failed", "update", p, "error", err)
		return unix.EIO
	}
	if !ok {
		d.logger.Debug("update refused", "update", p)
	}
	return nil
}

// ImageBuffer backs the first image allocation with the panel's geometry
// by the shared framebuffer. It returns nil for every other allocation.
func (d *Device) ImageBuffer(width, height, stride int) unsafe.Pointer {
	if width != fb.Width || height != fb.Height || stride != fb.Stride {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.imageAdopted {
		return nil
	}
	d.imageAdopted = true
	d.logger.Debug("image buffer backed by shared framebuffer")
	return d.fb.Base()
}

// Close releases the device's connections.
func (d *Device) Close() error {
	d.mu.Lock()
	closers := d.closers
	d.closers = nil
	if d.done != nil {
		close(d.done)
		d.done = nil
	}
	d.mu.Unlock()

	d.regMu.Lock()
	defer d.regMu.Unlock()
	d.reg = nil

	var firstErr error
	for _, c := range closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
