package shim

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/1broseidon/inkmux/internal/legacy"
	"github.com/1broseidon/inkmux/internal/protocol"
	"github.com/1broseidon/inkmux/internal/runtimepath"
	"github.com/1broseidon/inkmux/internal/session"
)

// Options configure Bootstrap.
type Options struct {
	Paths      runtimepath.Paths
	Name       string
	Timeout    time.Duration
	Heuristic  legacy.Heuristic
	Generation legacy.Generation
	Logger     *slog.Logger
}

// Bootstrap registers the current process with the display server, maps the
// shared framebuffer and connects the update channel. Any failure is fatal
// for the client.
func Bootstrap(opts Options) (*Device, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.Name
	if name == "" {
		if exe, err := os.Executable(); err == nil {
			name = filepath.Base(exe)
		}
	}

	conn, err := session.Connect(opts.Paths.Session, session.Hello{PID: int32(os.Getpid()), Name: name})
	if err != nil {
		return nil, fmt.Errorf("registering with display server: %w", err)
	}
	updates, err := protocol.Dial(opts.Paths.Update, opts.Timeout)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting update channel: %w", err)
	}

	d := NewDevice(conn.Framebuffer(), updates, legacy.Translator{Heuristic: opts.Heuristic}, opts.Generation, logger)
	d.closers = []func() error{updates.Close, conn.Close}
	d.attach(conn, opts.Paths.Session)
	logger.Debug("shim ready", "pid", os.Getpid(), "name", name)
	return d, nil
}
