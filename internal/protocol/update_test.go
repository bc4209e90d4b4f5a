package protocol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "update.sock")
	srv := NewServer(path, testLogger())
	if err := srv.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, path
}

func TestScenario_BasicUpdate(t *testing.T) {
	srv, path := startServer(t)

	client, err := Dial(path, 5*time.Second)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Close()

	want := UpdateParams{Y1: 0, X1: 0, Y2: 9, X2: 9, Flags: 0, Waveform: 2}
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := client.SendUpdate(want)
		done <- result{ok, err}
	}()

	req, err := srv.Receive()
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if req.Params != want {
		t.Fatalf("Receive() = %+v, want %+v", req.Params, want)
	}
	if err := srv.Reply(req, true); err != nil {
		t.Fatalf("Reply() error: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("SendUpdate() error: %v", res.err)
	}
	if !res.ok {
		t.Fatal("SendUpdate() ack = false, want true")
	}
}

func TestServer_MalformedDatagramKeepsServing(t *testing.T) {
	srv, path := startServer(t)

	raw, err := DialDatagram(path, time.Second)
	if err != nil {
		t.Fatalf("DialDatagram() error: %v", err)
	}
	defer raw.Close()
	if err := raw.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if _, err := srv.Receive(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Receive() error = %v, want ErrMalformed", err)
	}

	good := UpdateParams{Y2: 1, X2: 1, Waveform: WaveformDirect}
	buf, _ := good.MarshalBinary()
	if err := raw.Send(buf); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	req, err := srv.Receive()
	if err != nil {
		t.Fatalf("Receive() after malformed error: %v", err)
	}
	if req.Params != good {
		t.Fatalf("Receive() = %+v, want %+v", req.Params, good)
	}
}

func TestServe_DeliversInReceiptOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.sock")
	srv := NewServer(path, testLogger())
	if err := srv.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Request, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, out) }()

	raw, err := DialDatagram(path, time.Second)
	if err != nil {
		t.Fatalf("DialDatagram() error: %v", err)
	}
	defer raw.Close()

	raw.Send([]byte{0})
	for i := int32(0); i < 3; i++ {
		buf, _ := UpdateParams{Y1: i}.MarshalBinary()
		if err := raw.Send(buf); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}
	for i := int32(0); i < 3; i++ {
		select {
		case req := <-out:
			if req.Params.Y1 != i {
				t.Fatalf("request %d has Y1=%d", i, req.Params.Y1)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for request %d", i)
		}
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
}

func TestInit_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.sock")
	srv := NewServer(path, testLogger())
	defer srv.Close()

	if err := srv.Init(); err != nil {
		t.Fatalf("first Init() error: %v", err)
	}
	first := srv.ep.Conn()
	if err := srv.Init(); err != nil {
		t.Fatalf("second Init() error: %v", err)
	}
	if srv.ep.Conn() != first {
		t.Fatal("second Init() replaced the socket")
	}
}

func TestInit_AdoptsSuppliedSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("ListenUnixgram: %v", err)
	}
	srv := NewServerFromConn(path, conn, testLogger())
	defer srv.Close()

	if err := srv.Init(); err != nil {
		t.Fatalf("Init() with supplied socket error: %v", err)
	}
	if srv.ep.Conn() != conn {
		t.Fatal("Init() did not keep the supplied socket")
	}
}

func TestInit_AdoptsInheritedDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("ListenUnixgram: %v", err)
	}
	defer conn.Close()
	file, err := conn.File()
	if err != nil {
		t.Fatalf("File(): %v", err)
	}
	defer file.Close()
	t.Setenv(UpdateFDEnv, strconv.Itoa(int(file.Fd())))

	srv := NewServer(path, testLogger())
	defer srv.Close()
	if err := srv.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if err := srv.Init(); err != nil {
		t.Fatalf("second Init() error: %v", err)
	}
	if srv.ep.owned {
		t.Fatal("inherited socket must not be owned")
	}
}

func TestInit_ReplacesStaleSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.sock")
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	unix.Close(fd)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket file missing: %v", err)
	}

	srv := NewServer(path, testLogger())
	defer srv.Close()
	if err := srv.Init(); err != nil {
		t.Fatalf("Init() over stale socket error: %v", err)
	}
}

func TestInit_RefusesLiveSocket(t *testing.T) {
	srv, path := startServer(t)
	_ = srv

	other := NewServer(path, testLogger())
	err := other.Init()
	if !errors.Is(err, ErrInUse) {
		t.Fatalf("Init() on live path error = %v, want ErrInUse", err)
	}
}

func TestClient_ServerUnreachableIsTransportError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	client, err := Dial(path, time.Second)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Close()

	_, err = client.SendUpdate(UpdateParams{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("SendUpdate() error = %v, want TransportError", err)
	}
	if te.Errno() == 0 {
		t.Fatalf("TransportError carries no errno: %v", te)
	}
}

func TestClient_LateAckIsNotTakenForNextAck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("ListenUnixgram: %v", err)
	}
	defer conn.Close()

	timedOut := make(chan struct{})
	lateSent := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		_, from, err := conn.ReadFromUnix(buf)
		if err != nil {
			return
		}
		<-timedOut
		conn.WriteToUnix(EncodeBool(false), from)
		close(lateSent)

		_, from, err = conn.ReadFromUnix(buf)
		if err != nil {
			return
		}
		conn.WriteToUnix(EncodeBool(true), from)
	}()

	client, err := Dial(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Close()

	if _, err := client.SendUpdate(UpdateParams{Y2: 1, X2: 1}); err == nil {
		t.Fatal("first SendUpdate() error = nil, want timeout")
	}
	close(timedOut)
	<-lateSent

	client.conn.timeout = 2 * time.Second
	ok, err := client.SendUpdate(UpdateParams{Y2: 2, X2: 2})
	if err != nil {
		t.Fatalf("second SendUpdate() error: %v", err)
	}
	if !ok {
		t.Fatal("second SendUpdate() = false, want true (the first update's late ack was read)")
	}
}
