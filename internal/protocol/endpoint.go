package protocol

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// ErrInUse is returned when another live server is bound to a socket path.
var ErrInUse = errors.New("socket is served by another process")

// Endpoint is the server side of a well-known datagram socket.
type Endpoint struct {
	path       string
	inheritEnv string

	mu    sync.Mutex
	conn  *net.UnixConn
	owned bool
}

// NewEndpoint returns an unbound endpoint for path. When inheritEnv names an
// environment variable holding a descriptor number, Init adopts that
// descriptor instead of binding.
func NewEndpoint(path, inheritEnv string) *Endpoint {
	return &Endpoint{path: path, inheritEnv: inheritEnv}
}

// NewEndpointFromConn wraps an already bound socket, for example one passed
// in by a supervising process.
func NewEndpointFromConn(path string, conn *net.UnixConn) *Endpoint {
	return &Endpoint{path: path, conn: conn}
}

// Path returns the socket path.
func (e *Endpoint) Path() string { return e.path }

// Init binds the socket. When a usable socket already exists (bound by an
// earlier Init, supplied by NewEndpointFromConn, or inherited through the
// environment) Init does nothing and returns nil.
func (e *Endpoint) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		return nil
	}
	if conn, err := inheritedConn(e.inheritEnv); err != nil {
		return err
	} else if conn != nil {
		e.conn = conn
		return nil
	}

	addr := &net.UnixAddr{Name: e.path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil && errors.Is(err, syscall.EADDRINUSE) {
		if socketLive(e.path) {
			return transportErr("bind", e.path, ErrInUse)
		}
		if rmErr := os.Remove(e.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return transportErr("remove stale socket", e.path, rmErr)
		}
		conn, err = net.ListenUnixgram("unixgram", addr)
	}
	if err != nil {
		return transportErr("bind", e.path, err)
	}
	if err := os.Chmod(e.path, 0600); err != nil {
		conn.Close()
		return transportErr("chmod", e.path, err)
	}

	e.conn = conn
	e.owned = true
	return nil
}

// Conn returns the bound socket, or nil before Init.
func (e *Endpoint) Conn() *net.UnixConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// ReadFrom reads one datagram.
func (e *Endpoint) ReadFrom(buf []byte) (int, *net.UnixAddr, error) {
	conn := e.Conn()
	if conn == nil {
		return 0, nil, transportErr("receive", e.path, net.ErrClosed)
	}
	n, addr, err := conn.ReadFromUnix(buf)
	if err != nil {
		return 0, nil, transportErr("receive", e.path, err)
	}
	return n, addr, nil
}

// WriteTo sends one datagram to addr.
func (e *Endpoint) WriteTo(b []byte, addr *net.UnixAddr) error {
	conn := e.Conn()
	if conn == nil {
		return transportErr("reply", e.path, net.ErrClosed)
	}
	if addr == nil || addr.Name == "" {
		return transportErr("reply", e.path, fmt.Errorf("sender has no address"))
	}
	if _, err := conn.WriteToUnix(b, addr); err != nil {
		return transportErr("reply", addr.Name, err)
	}
	return nil
}

// Close closes the socket. Sockets bound by Init are unlinked.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	if e.owned {
		os.Remove(e.path)
		e.owned = false
	}
	return err
}

func inheritedConn(env string) (*net.UnixConn, error) {
	if env == "" {
		return nil, nil
	}
	raw := os.Getenv(env)
	if raw == "" {
		return nil, nil
	}
	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("%s=%q is not a descriptor number", env, raw)
	}
	sotype, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return nil, transportErr("inspect inherited socket", env, err)
	}
	if sotype != unix.SOCK_DGRAM {
		return nil, fmt.Errorf("%s: descriptor %d is not a datagram socket", env, fd)
	}

	file := os.NewFile(uintptr(fd), env)
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, transportErr("adopt inherited socket", env, err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%s: descriptor %d is not a unix socket", env, fd)
	}
	return unixConn, nil
}

func socketLive(path string) bool {
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DatagramConn is the client side of a datagram exchange. It is bound to a
// unique abstract address so the server can route replies back.
type DatagramConn struct {
	path    string
	server  *net.UnixAddr
	conn    *net.UnixConn
	timeout time.Duration
}

// DialDatagram binds a reply address and targets the server at path. A zero
// timeout waits for replies indefinitely.
func DialDatagram(path string, timeout time.Duration) (*DatagramConn, error) {
	conn, err := listenReply()
	if err != nil {
		return nil, err
	}
	return &DatagramConn{
		path:    path,
		server:  &net.UnixAddr{Name: path, Net: "unixgram"},
		conn:    conn,
		timeout: timeout,
	}, nil
}

func listenReply() (*net.UnixConn, error) {
	local := &net.UnixAddr{Name: "@inkmux-" + uuid.NewString(), Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", local)
	if err != nil {
		return nil, transportErr("bind reply address", local.Name, err)
	}
	return conn, nil
}

// Path returns the server socket path.
func (d *DatagramConn) Path() string { return d.path }

// Rebind moves the connection to a fresh reply address. A reply that
// arrives after its request was abandoned goes to the old address and is
// never read as the answer to a later request.
func (d *DatagramConn) Rebind() error {
	conn, err := listenReply()
	if err != nil {
		return err
	}
	d.conn.Close()
	d.conn = conn
	return nil
}

// Abandon rebinds after a failed exchange and folds a rebind failure into
// err.
func (d *DatagramConn) Abandon(err error) error {
	if rerr := d.Rebind(); rerr != nil {
		return fmt.Errorf("%w (rebind: %v)", err, rerr)
	}
	return err
}

// UnixConn exposes the underlying socket for ancillary-data reads.
func (d *DatagramConn) UnixConn() *net.UnixConn { return d.conn }

// Send writes one datagram to the server.
func (d *DatagramConn) Send(b []byte) error {
	if _, err := d.conn.WriteToUnix(b, d.server); err != nil {
		return transportErr("send", d.path, err)
	}
	return nil
}

// ArmDeadline applies the configured reply timeout to the next read.
func (d *DatagramConn) ArmDeadline() {
	if d.timeout > 0 {
		d.conn.SetReadDeadline(time.Now().Add(d.timeout))
	} else {
		d.conn.SetReadDeadline(time.Time{})
	}
}

// Recv reads one reply datagram.
func (d *DatagramConn) Recv(buf []byte) (int, error) {
	d.ArmDeadline()
	n, _, err := d.conn.ReadFromUnix(buf)
	if err != nil {
		return 0, transportErr("receive", d.path, err)
	}
	return n, nil
}

// Close releases the reply address.
func (d *DatagramConn) Close() error {
	return d.conn.Close()
}
