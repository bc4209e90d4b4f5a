package session

import (
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
)

// ErrRejected is returned when the server refuses a registration.
var ErrRejected = errors.New("session rejected by server")

// Conn is the client side of a session.
type Conn struct {
	hello  Hello
	conn   *net.UnixConn
	fb     *fb.Framebuffer
	events chan protocol.InputEvent
}

// Connect registers with the session server at path and maps the shared
// framebuffer.
func Connect(path string, hello Hello) (*Conn, error) {
	conn, fd, err := register(path, hello)
	if err != nil {
		return nil, err
	}
	f, err := fb.Map(fd)
	if err != nil {
		unix.Close(fd)
		conn.Close()
		return nil, err
	}
	c := &Conn{hello: hello, conn: conn, fb: f}
	c.startEvents()
	return c, nil
}

func register(path string, hello Hello) (*net.UnixConn, int, error) {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, -1, &protocol.TransportError{Op: "connect", Path: path, Err: err}
	}
	buf, _ := hello.MarshalBinary()
	if _, err := conn.Write(buf); err != nil {
		conn.Close()
		return nil, -1, &protocol.TransportError{Op: "hello", Path: path, Err: err}
	}
	payload, fd, err := fb.ReceiveHandle(conn, 1)
	if err != nil {
		conn.Close()
		return nil, -1, &protocol.TransportError{Op: "receive handle", Path: path, Err: err}
	}
	ok, err := protocol.DecodeBool(payload)
	if err != nil || !ok || fd < 0 {
		if fd >= 0 {
			unix.Close(fd)
		}
		conn.Close()
		if err != nil {
			return nil, -1, err
		}
		return nil, -1, ErrRejected
	}
	return conn, fd, nil
}

func (c *Conn) startEvents() {
	c.events = make(chan protocol.InputEvent, 64)
	go func(conn *net.UnixConn, events chan<- protocol.InputEvent) {
		defer close(events)
		buf := make([]byte, protocol.InputEventSize)
		for {
			if _, err := io.ReadFull(conn, buf); err != nil {
				return
			}
			var ev protocol.InputEvent
			if err := ev.UnmarshalBinary(buf); err != nil {
				return
			}
			events <- ev
		}
	}(c.conn, c.events)
}

// Framebuffer returns the shared framebuffer mapping.
func (c *Conn) Framebuffer() *fb.Framebuffer { return c.fb }

// Events delivers input events while this client is active. The channel is
// closed when the connection ends.
func (c *Conn) Events() <-chan protocol.InputEvent { return c.events }

// Reconnect registers again with a (possibly restarted) server at path and
// remaps the new framebuffer at the address the old one occupied, so pixel
// pointers held by the application stay valid.
func (c *Conn) Reconnect(path string) error {
	conn, fd, err := register(path, c.hello)
	if err != nil {
		return err
	}
	if err := c.fb.Remap(fd); err != nil {
		unix.Close(fd)
		conn.Close()
		return fmt.Errorf("remapping framebuffer: %w", err)
	}
	c.conn.Close()
	c.conn = conn
	c.startEvents()
	return nil
}

// Close ends the session and unmaps the framebuffer.
func (c *Conn) Close() error {
	err := c.conn.Close()
	if fbErr := c.fb.Close(); err == nil {
		err = fbErr
	}
	return err
}
