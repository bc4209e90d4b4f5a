// Package sink drives the panel: the sinks that push damaged rectangles to
// hardware or a preview, and the pipeline that paces requests to them.
package sink

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/1broseidon/inkmux/internal/protocol"
)

// ErrUnavailable is returned when no sink can accept updates.
var ErrUnavailable = errors.New("display sink unavailable")

// Sink refreshes a rectangle of the panel from the shared framebuffer.
// Blank powers the panel down; the image stays on the glass.
type Sink interface {
	Update(p protocol.UpdateParams) error
	Blank() error
	Unblank() error
	Close() error
}

// InputSource is implemented by sinks that also produce touch input.
type InputSource interface {
	Input() <-chan protocol.InputEvent
}

// Null logs updates instead of driving a panel. It keeps the most recent
// updates for inspection.
type Null struct {
	logger *slog.Logger
	keep   int

	mu      sync.Mutex
	history []protocol.UpdateParams
}

// NewNull returns a sink remembering up to 256 updates.
func NewNull(logger *slog.Logger) *Null {
	return &Null{logger: logger, keep: 256}
}

func (n *Null) Update(p protocol.UpdateParams) error {
	n.logger.Debug("refresh", "rect", p.Rect(), "flags", p.Flags, "waveform", p.Waveform)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, p)
	if len(n.history) > n.keep {
		n.history = n.history[len(n.history)-n.keep:]
	}
	return nil
}

// Updates returns the remembered updates, oldest first.
func (n *Null) Updates() []protocol.UpdateParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]protocol.UpdateParams(nil), n.history...)
}

func (n *Null) Blank() error {
	n.logger.Debug("blank")
	return nil
}

func (n *Null) Unblank() error {
	n.logger.Debug("unblank")
	return nil
}

func (n *Null) Close() error { return nil }
