package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// Socket file names under the runtime directory.
const (
	UpdateSocketName  = "inkmux-update.sock"
	ControlSocketName = "inkmux-control.sock"
	SessionSocketName = "inkmux-session.sock"
)

// Dir returns the runtime directory used for inkmux sockets. Priority:
// 1) INKMUX_RUNTIME_DIR (if set)
// 2) XDG_RUNTIME_DIR (if set)
// 3) /run/user/<uid> (if present)
// 4) /tmp/inkmux-runtime-<uid> (created)
func Dir() (string, error) {
	if dir := os.Getenv("INKMUX_RUNTIME_DIR"); dir != "" {
		return dir, nil
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/inkmux-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// Paths holds the three well-known socket paths of a display server.
type Paths struct {
	Update  string
	Control string
	Session string
}

// In returns the socket paths rooted at dir.
func In(dir string) Paths {
	return Paths{
		Update:  filepath.Join(dir, UpdateSocketName),
		Control: filepath.Join(dir, ControlSocketName),
		Session: filepath.Join(dir, SessionSocketName),
	}
}

// Resolve returns the socket paths under override when non-empty, otherwise
// under Dir().
func Resolve(override string) (Paths, error) {
	if override != "" {
		return In(override), nil
	}
	dir, err := Dir()
	if err != nil {
		return Paths{}, err
	}
	return In(dir), nil
}

// ControlSocketPath returns the control channel socket path.
func ControlSocketPath() (string, error) {
	p, err := Resolve("")
	if err != nil {
		return "", err
	}
	return p.Control, nil
}
