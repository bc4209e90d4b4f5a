package ipc

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
	"github.com/1broseidon/inkmux/internal/runtimepath"
)

// DefaultTimeout bounds how long the client waits for a control reply.
const DefaultTimeout = 5 * time.Second

// Client sends control requests to the daemon.
type Client struct {
	mu   sync.Mutex
	conn *protocol.DatagramConn
}

// NewClient connects to the control socket in the default runtime directory.
func NewClient() (*Client, error) {
	path, err := runtimepath.ControlSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve control socket path: %w", err)
	}
	return Dial(path, DefaultTimeout)
}

// Dial connects to the control socket at path.
func Dial(path string, timeout time.Duration) (*Client, error) {
	conn, err := protocol.DialDatagram(path, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// roundTrip sends req and reads a reply of at most max bytes.
func (c *Client) roundTrip(req Request, max int) ([]byte, error) {
	buf, _ := req.MarshalBinary()
	if err := c.conn.Send(buf); err != nil {
		return nil, fmt.Errorf("failed to reach daemon: %w (is the daemon running?)", err)
	}
	reply := make([]byte, max)
	n, err := c.conn.Recv(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s reply: %w", req.Kind, c.conn.Abandon(err))
	}
	return reply[:n], nil
}

// ListClients returns the registered clients in registration order.
func (c *Client) ListClients() ([]ClientRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.roundTrip(Request{Kind: KindGetClients}, MaxResponseSize)
	if err != nil {
		return nil, err
	}
	return DecodeClients(reply)
}

// SwitchTo asks the daemon to display pid. It returns false when no client
// with that pid is registered.
func (c *Client) SwitchTo(pid int32) (bool, error) {
	return c.boolRequest(Request{Kind: KindSwitchTo, PID: pid})
}

// SetLauncher designates pid as the launcher.
func (c *Client) SetLauncher(pid int32) (bool, error) {
	return c.boolRequest(Request{Kind: KindSetLauncher, PID: pid})
}

func (c *Client) boolRequest(req Request) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.roundTrip(req, 8)
	if err != nil {
		return false, err
	}
	ok, err := protocol.DecodeBool(reply)
	if err != nil {
		return false, fmt.Errorf("%s reply: %w", req.Kind, err)
	}
	return ok, nil
}

// GetFramebuffer maps the daemon's shared framebuffer. The caller owns the
// returned mapping.
func (c *Client) GetFramebuffer() (*fb.Framebuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, _ := Request{Kind: KindGetFramebuffer}.MarshalBinary()
	if err := c.conn.Send(buf); err != nil {
		return nil, fmt.Errorf("failed to reach daemon: %w (is the daemon running?)", err)
	}
	c.conn.ArmDeadline()
	payload, fd, err := fb.ReceiveHandle(c.conn.UnixConn(), 8)
	if err != nil {
		return nil, c.conn.Abandon(&protocol.TransportError{Op: "receive", Path: c.conn.Path(), Err: err})
	}
	ok, err := protocol.DecodeBool(payload)
	if err != nil || !ok {
		if fd >= 0 {
			unix.Close(fd)
		}
		if err != nil {
			return nil, fmt.Errorf("GET_FB reply: %w", err)
		}
		return nil, fmt.Errorf("daemon has no framebuffer to share")
	}
	if fd < 0 {
		return nil, fmt.Errorf("%w: GET_FB reply carried no handle", fb.ErrMap)
	}
	f, err := fb.Map(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return f, nil
}

// Close releases the client's reply address.
func (c *Client) Close() error { return c.conn.Close() }
