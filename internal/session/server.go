package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
)

// HandshakeTimeout bounds how long a new connection may take to say hello.
const HandshakeTimeout = 5 * time.Second

// EventKind says whether a session started or ended.
type EventKind int

const (
	Registered EventKind = iota
	Unregistered
)

func (k EventKind) String() string {
	if k == Registered {
		return "registered"
	}
	return "unregistered"
}

// Event reports a session change to the dispatch loop.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Session is one registered client connection.
type Session struct {
	pid  int32
	name string

	mu   sync.Mutex
	conn *net.UnixConn
}

// NewSession wraps a connection for a client that has already completed
// the handshake.
func NewSession(pid int32, name string, conn *net.UnixConn) *Session {
	return &Session{pid: pid, name: name, conn: conn}
}

// PID returns the registered process id.
func (s *Session) PID() int32 { return s.pid }

// Name returns the name the client registered with.
func (s *Session) Name() string { return s.name }

// SendInput writes one input event to the client.
func (s *Session) SendInput(ev protocol.InputEvent) error {
	buf, _ := ev.MarshalBinary()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return net.ErrClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := s.conn.Write(buf); err != nil {
		return &protocol.TransportError{Op: "send input", Path: fmt.Sprintf("pid %d", s.pid), Err: err}
	}
	return nil
}

// Close ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Server accepts session connections on a unix stream socket.
type Server struct {
	path   string
	fb     *fb.Framebuffer
	logger *slog.Logger

	mu       sync.Mutex
	listener *net.UnixListener
}

// NewServer creates a session server handing out f.
func NewServer(path string, f *fb.Framebuffer, logger *slog.Logger) *Server {
	return &Server{path: path, fb: f, logger: logger}
}

// Path returns the session socket path.
func (s *Server) Path() string { return s.path }

// Listen binds the session socket. It is a no-op when already listening. A
// leftover socket file with no server behind it is replaced.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	addr := &net.UnixAddr{Name: s.path, Net: "unix"}
	l, err := net.ListenUnix("unix", addr)
	if err != nil && errors.Is(err, syscall.EADDRINUSE) {
		if conn, dialErr := net.Dial("unix", s.path); dialErr == nil {
			conn.Close()
			return &protocol.TransportError{Op: "listen", Path: s.path, Err: protocol.ErrInUse}
		}
		os.Remove(s.path)
		l, err = net.ListenUnix("unix", addr)
	}
	if err != nil {
		return &protocol.TransportError{Op: "listen", Path: s.path, Err: err}
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		l.Close()
		return &protocol.TransportError{Op: "chmod", Path: s.path, Err: err}
	}
	l.SetUnlinkOnClose(true)
	s.listener = l
	return nil
}

// Serve accepts sessions until ctx is done and reports registrations and
// disconnects to out.
func (s *Server) Serve(ctx context.Context, out chan<- Event) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	s.logger.Info("session socket ready", "path", s.path)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("session accept failed", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn, out)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn *net.UnixConn, out chan<- Event) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sess, err := s.handshake(conn)
	if err != nil {
		s.logger.Warn("session handshake failed", "error", err)
		conn.Close()
		return
	}
	s.logger.Debug("session registered", "pid", sess.pid, "name", sess.name)
	if !send(ctx, out, Event{Kind: Registered, Session: sess}) {
		sess.Close()
		return
	}

	// Clients send nothing after hello; any read result ends the session.
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
	sess.Close()
	send(ctx, out, Event{Kind: Unregistered, Session: sess})
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) handshake(conn *net.UnixConn) (*Session, error) {
	conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	buf := make([]byte, HelloSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var hello Hello
	if err := hello.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	if hello.PID == 0 {
		pid, err := peerPID(conn)
		if err != nil {
			return nil, err
		}
		hello.PID = pid
	}
	if s.fb == nil {
		conn.Write(protocol.EncodeBool(false))
		return nil, fmt.Errorf("pid %d: %w", hello.PID, fb.ErrNotConnected)
	}
	if err := s.fb.Share(conn, protocol.EncodeBool(true), nil); err != nil {
		return nil, fmt.Errorf("pid %d: %w", hello.PID, err)
	}
	return NewSession(hello.PID, hello.Name, conn), nil
}

func peerPID(conn *net.UnixConn) (int32, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, err
	}
	if credErr != nil {
		return 0, fmt.Errorf("reading peer credentials: %w", credErr)
	}
	return cred.Pid, nil
}

// Close stops accepting sessions and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}
