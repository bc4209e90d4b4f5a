package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// UpdateFDEnv names the variable through which a supervisor can pass an
// already bound update socket.
const UpdateFDEnv = "INKMUX_UPDATE_FD"

// Request is one decoded update together with its reply address.
type Request struct {
	Params UpdateParams
	From   *net.UnixAddr
}

// Server receives updates on the well-known update socket.
type Server struct {
	ep     *Endpoint
	logger *slog.Logger
}

// NewServer returns a server for path. Call Init before Receive.
func NewServer(path string, logger *slog.Logger) *Server {
	return &Server{ep: NewEndpoint(path, UpdateFDEnv), logger: logger}
}

// NewServerFromConn serves on an already bound socket.
func NewServerFromConn(path string, conn *net.UnixConn, logger *slog.Logger) *Server {
	return &Server{ep: NewEndpointFromConn(path, conn), logger: logger}
}

// Init binds the update socket; repeated calls are no-ops.
func (s *Server) Init() error { return s.ep.Init() }

// Path returns the socket path.
func (s *Server) Path() string { return s.ep.Path() }

// Receive reads one datagram and decodes it. Short or oversized datagrams
// yield an error wrapping ErrMalformed; the socket stays usable.
func (s *Server) Receive() (Request, error) {
	buf := make([]byte, UpdateSize+8)
	n, from, err := s.ep.ReadFrom(buf)
	if err != nil {
		return Request{}, err
	}
	var p UpdateParams
	if err := p.UnmarshalBinary(buf[:n]); err != nil {
		return Request{From: from}, err
	}
	return Request{Params: p, From: from}, nil
}

// Reply sends the boolean acknowledgement for req.
func (s *Server) Reply(req Request, ok bool) error {
	return s.ep.WriteTo(EncodeBool(ok), req.From)
}

// Serve reads updates until ctx is cancelled and hands each decoded request
// to out in receipt order. Malformed datagrams are logged and dropped.
func (s *Server) Serve(ctx context.Context, out chan<- Request) error {
	if err := s.Init(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.ep.Close()
	}()

	for {
		req, err := s.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrMalformed) {
				s.logger.Warn("dropping malformed update", "error", err)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		select {
		case out <- req:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close closes the update socket.
func (s *Server) Close() error { return s.ep.Close() }

// Client sends updates and waits for each acknowledgement before the next
// update may be sent.
type Client struct {
	mu   sync.Mutex
	conn *DatagramConn
}

// Dial connects to the update socket at path. A zero timeout blocks on each
// acknowledgement until it arrives.
func Dial(path string, timeout time.Duration) (*Client, error) {
	conn, err := DialDatagram(path, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// SendUpdate sends p and returns the server's acknowledgement.
func (c *Client) SendUpdate(p UpdateParams) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, _ := p.MarshalBinary()
	if err := c.conn.Send(buf); err != nil {
		return false, err
	}
	reply := make([]byte, 8)
	n, err := c.conn.Recv(reply)
	if err != nil {
		return false, c.conn.Abandon(err)
	}
	ok, err := DecodeBool(reply[:n])
	if err != nil {
		return false, fmt.Errorf("update reply from %s: %w", c.conn.Path(), err)
	}
	return ok, nil
}

// Close releases the client socket.
func (c *Client) Close() error { return c.conn.Close() }
