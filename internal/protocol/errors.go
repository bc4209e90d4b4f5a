package protocol

import (
	"errors"
	"fmt"
	"syscall"
)

// TransportError reports a socket-level failure together with the
// operation and path involved.
type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Errno returns the underlying OS error code, or 0 if there is none.
func (e *TransportError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

func transportErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Path: path, Err: err}
}
