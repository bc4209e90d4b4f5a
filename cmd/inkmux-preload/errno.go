package main

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errnoOf maps a device error onto the errno a libc caller expects. Errors
// that carry no errno become EIO.
func errnoOf(err error) int {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return int(unix.EIO)
}
