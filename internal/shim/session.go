package shim

import (
	"errors"
	"net"
	"time"

	"github.com/1broseidon/inkmux/internal/protocol"
)

// ReconnectInterval is the pause between registration attempts while the
// display server is away.
const ReconnectInterval = 500 * time.Millisecond

var errNoSession = errors.New("device has no session")

// Registration is the device's session with the display server.
type Registration interface {
	Events() <-chan protocol.InputEvent
	Reconnect(path string) error
	Close() error
}

// attach makes reg the device's session and starts following it: input is
// forwarded to Events, and when the session ends the device registers again
// at path. The framebuffer keeps its address across registrations.
func (d *Device) attach(reg Registration, path string) {
	d.regMu.Lock()
	d.reg = reg
	d.regPath = path
	d.regMu.Unlock()

	events := make(chan protocol.InputEvent, 64)
	done := make(chan struct{})
	d.mu.Lock()
	d.events = events
	d.done = done
	d.mu.Unlock()
	go d.follow(events, done)
}

func (d *Device) current() (<-chan protocol.InputEvent, uint64) {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	if d.reg == nil {
		return nil, d.regGen
	}
	return d.reg.Events(), d.regGen
}

func (d *Device) regGeneration() uint64 {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	return d.regGen
}

func (d *Device) follow(out chan<- protocol.InputEvent, done <-chan struct{}) {
	defer close(out)
	for {
		events, gen := d.current()
		if events == nil {
			return
		}
		for ev := range events {
			select {
			case out <- ev:
			case <-done:
				return
			}
		}
		for {
			select {
			case <-done:
				return
			default:
			}
			_, err := d.reregister(gen)
			if err == nil {
				break
			}
			d.logger.Debug("display server unreachable", "error", err)
			select {
			case <-done:
				return
			case <-time.After(ReconnectInterval):
			}
		}
	}
}

// reregister registers again unless another caller already did so since
// generation gen was observed.
func (d *Device) reregister(gen uint64) (uint64, error) {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	if d.reg == nil {
		return gen, errNoSession
	}
	if d.regGen != gen {
		return d.regGen, nil
	}
	if err := d.reg.Reconnect(d.regPath); err != nil {
		return gen, err
	}
	d.regGen++
	d.logger.Info("registered again with display server", "path", d.regPath)
	return d.regGen, nil
}

// serverGone reports whether err means the display server went away rather
// than being slow to answer.
func serverGone(err error) bool {
	var te *protocol.TransportError
	if !errors.As(err, &te) {
		return false
	}
	var ne net.Error
	return !errors.As(err, &ne) || !ne.Timeout()
}
