//go:build linux && cgo

// Command inkmux-preload builds the LD_PRELOAD module that lets an unmodified
// client draw through inkmux:
//
//	go build -buildmode=c-shared -o libinkmux.so ./cmd/inkmux-preload
//	LD_PRELOAD=./libinkmux.so some-client
//
// The module registers with the daemon when it is loaded. It answers open,
// mmap and ioctl for /dev/fb0 from the shared framebuffer and passes every
// other call to libc. In Qt clients it also backs the first panel-sized
// RGB16 QImage with the shared framebuffer.
package main

/*
#cgo LDFLAGS: -ldl
#include <stddef.h>
*/
import "C"

import (
	"log"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/1broseidon/inkmux/internal/config"
	"github.com/1broseidon/inkmux/internal/runtimepath"
	"github.com/1broseidon/inkmux/internal/shim"
)

// NameEnv overrides the name the client registers under.
const NameEnv = "INKMUX_NAME"

var (
	once   sync.Once
	device *shim.Device
)

// dev bootstraps on first use. A client that cannot reach the daemon cannot
// draw, so failures terminate it.
func dev() *shim.Device {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			log.Printf("inkmux: %v; using defaults", err)
			cfg = config.DefaultConfig()
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

		paths, err := runtimepath.Resolve(cfg.RuntimeDir)
		if err != nil {
			log.Fatalf("inkmux: %v", err)
		}
		device, err = shim.Bootstrap(shim.Options{
			Paths:      paths,
			Name:       os.Getenv(NameEnv),
			Timeout:    cfg.ClientTimeout(),
			Heuristic:  cfg.Heuristic(),
			Generation: cfg.Generation(),
			Logger:     logger.With("component", "shim"),
		})
		if err != nil {
			log.Fatalf("inkmux: %v", err)
		}
		go drainInput(device, logger)
	})
	return device
}

//export inkmux_init
func inkmux_init() {
	dev()
}

//export inkmux_open
func inkmux_open(path *C.char) C.int {
	if path == nil {
		return -1
	}
	fd, ok := dev().Open(C.GoString(path))
	if !ok {
		return -1
	}
	return C.int(fd)
}

//export inkmux_is_device
func inkmux_is_device(fd C.int) C.int {
	if dev().IsDevice(int(fd)) {
		return 1
	}
	return 0
}

//export inkmux_mmap
func inkmux_mmap(fd C.int, length C.size_t, errOut *C.int) unsafe.Pointer {
	p, err := dev().Mmap(int(fd), int(length))
	if err != nil {
		*errOut = C.int(errnoOf(err))
		return nil
	}
	return p
}

//export inkmux_ioctl
func inkmux_ioctl(fd C.int, req C.ulong, arg unsafe.Pointer) C.int {
	return C.int(errnoOf(dev().Ioctl(int(fd), uint(req), arg)))
}

// inkmux_legacy_update is the entry point for clients that refresh through
// a swtcon-style coarse mode instead of MXCFB_SEND_UPDATE. Those refreshes
// have no libc or exported symbol to interpose, so a client or a wrapper
// library calls this directly.
//
//export inkmux_legacy_update
func inkmux_legacy_update(x, y, width, height, mode C.int) C.int {
	return C.int(errnoOf(dev().LegacyUpdate(int32(x), int32(y), int32(width), int32(height), int32(mode))))
}

// inkmux_qimage_buffer returns shared framebuffer memory for the first
// toolkit image matching the panel, storing its stride in strideOut, or
// NULL.
//
//export inkmux_qimage_buffer
func inkmux_qimage_buffer(width, height, format C.int, strideOut *C.int) unsafe.Pointer {
	p, stride := qimageBuffer(dev(), int(width), int(height), int(format))
	if p != nil {
		*strideOut = C.int(stride)
	}
	return p
}

//export inkmux_next_input
func inkmux_next_input(x, y, kind *C.int) C.int {
	ev, ok := nextInput()
	if !ok {
		return 0
	}
	*x, *y, *kind = C.int(ev.X), C.int(ev.Y), C.int(ev.Type)
	return 1
}

func main() {}
