package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
)

func allocate(t *testing.T) *fb.Framebuffer {
	t.Helper()
	f, err := fb.Allocate()
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

// serve runs a session server on path until the test ends or stop is called.
func serve(t *testing.T, path string, f *fb.Framebuffer) (<-chan Event, func()) {
	t.Helper()
	srv := NewServer(path, f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, events)
	}()
	stop := func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)
	return events, stop
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

func TestHelloRoundTrip(t *testing.T) {
	b, _ := Hello{PID: 42, Name: "notes"}.MarshalBinary()
	if len(b) != HelloSize {
		t.Fatalf("len = %d, want %d", len(b), HelloSize)
	}
	var got Hello
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error: %v", err)
	}
	if got != (Hello{PID: 42, Name: "notes"}) {
		t.Fatalf("UnmarshalBinary() = %+v", got)
	}
	if err := got.UnmarshalBinary(b[:10]); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("short hello error = %v, want ErrMalformed", err)
	}
}

func TestConnectRegistersAndShares(t *testing.T) {
	shared := allocate(t)
	path := filepath.Join(t.TempDir(), "session.sock")
	events, _ := serve(t, path, shared)

	c, err := Connect(path, Hello{PID: 1234, Name: "reader"})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	ev := nextEvent(t, events)
	if ev.Kind != Registered || ev.Session.PID() != 1234 || ev.Session.Name() != "reader" {
		t.Fatalf("event = %v pid=%d name=%q", ev.Kind, ev.Session.PID(), ev.Session.Name())
	}

	c.Framebuffer().Set(10, 20, 0xabcd)
	if got := shared.At(10, 20); got != 0xabcd {
		t.Fatalf("server sees %#x, want 0xabcd", got)
	}
}

func TestConnectUsesPeerPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.sock")
	events, _ := serve(t, path, allocate(t))

	c, err := Connect(path, Hello{Name: "anon"})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	ev := nextEvent(t, events)
	if got, want := ev.Session.PID(), int32(os.Getpid()); got != want {
		t.Fatalf("PID() = %d, want %d", got, want)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.sock")
	events, _ := serve(t, path, allocate(t))

	c, err := Connect(path, Hello{PID: 7})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	reg := nextEvent(t, events)
	c.Close()

	ev := nextEvent(t, events)
	if ev.Kind != Unregistered || ev.Session != reg.Session {
		t.Fatalf("event = %v for pid %d, want unregistered for pid 7", ev.Kind, ev.Session.PID())
	}
}

func TestSendInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.sock")
	events, _ := serve(t, path, allocate(t))

	c, err := Connect(path, Hello{PID: 8})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()
	sess := nextEvent(t, events).Session

	want := protocol.InputEvent{X: 100, Y: 200, Type: protocol.InputDown}
	if err := sess.SendInput(want); err != nil {
		t.Fatalf("SendInput() error: %v", err)
	}
	select {
	case got := <-c.Events():
		if got != want {
			t.Fatalf("Events() = %+v, want %+v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for input event")
	}
}

func TestRejectedWithoutFramebuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.sock")
	serve(t, path, nil)

	if _, err := Connect(path, Hello{PID: 9}); !errors.Is(err, ErrRejected) {
		t.Fatalf("Connect() error = %v, want ErrRejected", err)
	}
}

func TestReconnectKeepsBaseAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.sock")
	events, stop := serve(t, path, allocate(t))

	c, err := Connect(path, Hello{PID: 11})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()
	nextEvent(t, events)
	base := c.Framebuffer().Base()

	stop()

	restarted := allocate(t)
	restarted.Set(1, 1, 0x0707)
	serve(t, path, restarted)

	if err := c.Reconnect(path); err != nil {
		t.Fatalf("Reconnect() error: %v", err)
	}
	if got := c.Framebuffer().Base(); got != base {
		t.Fatalf("Base() = %p, want %p", got, base)
	}
	if got := c.Framebuffer().At(1, 1); got != 0x0707 {
		t.Fatalf("At(1, 1) = %#x, want the restarted server's pixel", got)
	}
}

func TestListenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.sock")
	srv := NewServer(path, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer srv.Close()
	for i := 0; i < 2; i++ {
		if err := srv.Listen(); err != nil {
			t.Fatalf("Listen() #%d error: %v", i+1, err)
		}
	}
}

func TestCloseRemovesSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.sock")
	srv := NewServer(path, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("socket file missing after Listen(): %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Stat() after Close() error = %v, want not exist", err)
	}
}
