package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/inkmux/internal/protocol"
)

func TestErrnoOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{unix.EBADF, int(unix.EBADF)},
		{fmt.Errorf("wrapped: %w", unix.EINVAL), int(unix.EINVAL)},
		{errors.New("opaque"), int(unix.EIO)},
	}
	for _, tt := range tests {
		if got := errnoOf(tt.err); got != tt.want {
			t.Fatalf("errnoOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type chanSource chan protocol.InputEvent

func (c chanSource) Events() <-chan protocol.InputEvent { return c }

func TestDrainInput(t *testing.T) {
	src := make(chanSource, 2)
	src <- protocol.InputEvent{X: 1, Y: 2, Type: protocol.InputDown}
	src <- protocol.InputEvent{X: 3, Y: 4, Type: protocol.InputUp}
	close(src)

	drainInput(src, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, want := range []protocol.InputEvent{{X: 1, Y: 2, Type: protocol.InputDown}, {X: 3, Y: 4, Type: protocol.InputUp}} {
		got, ok := nextInput()
		if !ok || got != want {
			t.Fatalf("nextInput() = (%+v, %v), want (%+v, true)", got, ok, want)
		}
	}
	if _, ok := nextInput(); ok {
		t.Fatalf("expected no pending input")
	}
}
