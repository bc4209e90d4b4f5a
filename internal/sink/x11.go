package sink

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
	"github.com/1broseidon/inkmux/internal/x11"
)

// X11Options configures the preview window.
type X11Options struct {
	Display string
	Scale   float64
	Title   string
}

// X11 mirrors the panel in a desktop window. Pointer input on the window is
// reported as touch input.
type X11 struct {
	conn    *x11.Connection
	preview *x11.Preview
	src     *fb.Framebuffer
	input   chan protocol.InputEvent
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenX11 connects to the X server and maps the preview window.
func OpenX11(opts X11Options, src *fb.Framebuffer, logger *slog.Logger) (*X11, error) {
	conn, err := x11.NewConnection(opts.Display)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to X11: %v", ErrUnavailable, err)
	}
	preview, err := x11.NewPreview(conn, fb.Bounds, opts.Scale, opts.Title)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &X11{
		conn:    conn,
		preview: preview,
		src:     src,
		input:   make(chan protocol.InputEvent, 128),
		logger:  logger,
	}
	preview.OnPointer(s.pointer)
	preview.OnClose(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		logger.Info("preview window closed")
	})
	preview.Draw(src.View(), fb.Bounds)
	go conn.EventLoop()
	return s, nil
}

func (s *X11) pointer(p image.Point, kind x11.PointerKind) {
	ev := protocol.InputEvent{X: int32(p.X), Y: int32(p.Y), Type: protocol.InputMove}
	switch kind {
	case x11.PointerDown:
		ev.Type = protocol.InputDown
	case x11.PointerUp:
		ev.Type = protocol.InputUp
	}
	select {
	case s.input <- ev:
	default:
		s.logger.Debug("dropping pointer event", "x", ev.X, "y", ev.Y)
	}
}

// Input delivers pointer events in panel coordinates.
func (s *X11) Input() <-chan protocol.InputEvent { return s.input }

func (s *X11) Update(p protocol.UpdateParams) error {
	if s.isClosed() {
		return ErrUnavailable
	}
	s.preview.Draw(s.src.View(), p.Rect())
	return nil
}

// Blank hides the preview window.
func (s *X11) Blank() error {
	if s.isClosed() {
		return ErrUnavailable
	}
	s.preview.Hide()
	return nil
}

// Unblank shows the preview window again.
func (s *X11) Unblank() error {
	if s.isClosed() {
		return ErrUnavailable
	}
	s.preview.Show()
	return nil
}

func (s *X11) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *X11) Close() error {
	s.mu.Lock()
	closed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !closed {
		s.preview.Close()
	}
	s.conn.Quit()
	s.conn.Close()
	return nil
}
