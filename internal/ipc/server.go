package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
)

// ControlFDEnv names the variable through which a supervisor can pass an
// already bound control socket.
const ControlFDEnv = "INKMUX_CONTROL_FD"

// Call is one decoded control request and the address to answer.
type Call struct {
	Request Request
	From    *net.UnixAddr
}

// Server receives control requests. Decoded calls are handed to the owner of
// the client table, which answers them through the Reply methods.
type Server struct {
	ep     *protocol.Endpoint
	logger *slog.Logger
}

// NewServer creates a control server for path. Call Init or Serve to bind.
func NewServer(path string, logger *slog.Logger) *Server {
	return &Server{ep: protocol.NewEndpoint(path, ControlFDEnv), logger: logger}
}

// NewServerFromConn serves on an already bound socket.
func NewServerFromConn(path string, conn *net.UnixConn, logger *slog.Logger) *Server {
	return &Server{ep: protocol.NewEndpointFromConn(path, conn), logger: logger}
}

// Init binds the control socket. It is a no-op when the socket is already
// bound or was inherited.
func (s *Server) Init() error { return s.ep.Init() }

// Path returns the control socket path.
func (s *Server) Path() string { return s.ep.Path() }

// Receive reads and decodes one request.
func (s *Server) Receive() (Call, error) {
	buf := make([]byte, RequestSize+8)
	n, from, err := s.ep.ReadFrom(buf)
	if err != nil {
		return Call{}, err
	}
	var req Request
	if err := req.UnmarshalBinary(buf[:n]); err != nil {
		return Call{From: from}, err
	}
	return Call{Request: req, From: from}, nil
}

// Serve reads requests until ctx is done. Malformed requests are logged and
// get no response.
func (s *Server) Serve(ctx context.Context, out chan<- Call) error {
	if err := s.Init(); err != nil {
		return err
	}
	s.logger.Info("control socket ready", "path", s.Path())
	go func() {
		<-ctx.Done()
		s.ep.Close()
	}()

	for {
		call, err := s.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if errors.Is(err, protocol.ErrMalformed) {
				s.logger.Warn("dropping malformed control request", "error", err)
				continue
			}
			return err
		}
		s.logger.Debug("control request", "kind", call.Request.Kind, "pid", call.Request.PID)
		select {
		case out <- call:
		case <-ctx.Done():
			return nil
		}
	}
}

// ReplyBool answers SwitchTo and SetLauncher.
func (s *Server) ReplyBool(c Call, ok bool) error {
	return s.ep.WriteTo(protocol.EncodeBool(ok), c.From)
}

// ReplyClients answers GetClients.
func (s *Server) ReplyClients(c Call, records []ClientRecord) error {
	return s.ep.WriteTo(EncodeClients(records), c.From)
}

// ReplyFramebuffer answers GetFB with the framebuffer handle attached. A nil
// framebuffer is answered with false and no handle.
func (s *Server) ReplyFramebuffer(c Call, f *fb.Framebuffer) error {
	if f == nil {
		return s.ReplyBool(c, false)
	}
	if c.From == nil || c.From.Name == "" {
		return &protocol.TransportError{Op: "share framebuffer", Path: s.Path(), Err: errors.New("sender has no address")}
	}
	if err := f.Share(s.ep.Conn(), protocol.EncodeBool(true), c.From); err != nil {
		return &protocol.TransportError{Op: "share framebuffer", Path: c.From.Name, Err: err}
	}
	return nil
}

// Close closes the control socket.
func (s *Server) Close() error { return s.ep.Close() }
