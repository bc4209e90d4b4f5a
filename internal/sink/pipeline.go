package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
)

// ErrClosed is returned for requests made after Shutdown.
var ErrClosed = errors.New("refresh pipeline is shut down")

type messageKind int

const (
	msgUpdate messageKind = iota
	msgClear
	msgBlank
	msgUnblank
	msgShutdown
)

type message struct {
	kind   messageKind
	params protocol.UpdateParams
	done   chan error
}

// Pipeline feeds a sink from a bounded queue on a single worker. Updates
// reach the sink in submission order, at most one per interval when pacing
// is enabled.
type Pipeline struct {
	sink    Sink
	logger  *slog.Logger
	limiter *rate.Limiter
	queue   chan message
	stopped chan struct{}
}

// NewPipeline creates a pipeline for s with room for depth queued
// requests. A nil sink makes every request fail with ErrUnavailable. A
// positive interval paces refreshes.
func NewPipeline(s Sink, depth int, interval time.Duration, logger *slog.Logger) *Pipeline {
	if depth < 1 {
		depth = 1
	}
	p := &Pipeline{
		sink:    s,
		logger:  logger,
		queue:   make(chan message, depth),
		stopped: make(chan struct{}),
	}
	if interval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

// Run processes requests until Shutdown or until ctx is done. The sink is
// closed on exit.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.stopped)
	defer func() {
		if p.sink != nil {
			if err := p.sink.Close(); err != nil {
				p.logger.Warn("closing sink failed", "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			switch m.kind {
			case msgShutdown:
				reply(m, nil)
				return
			case msgClear:
				full := protocol.ParamsForRect(fb.Bounds, protocol.WaveformInit, protocol.FlagFull|protocol.FlagSync)
				reply(m, p.refresh(ctx, full))
			case msgBlank:
				reply(m, p.power(p.sink.Blank))
			case msgUnblank:
				reply(m, p.power(p.sink.Unblank))
			default:
				reply(m, p.refresh(ctx, m.params))
			}
		}
	}
}

func reply(m message, err error) {
	if m.done != nil {
		m.done <- err
	}
}

func (p *Pipeline) refresh(ctx context.Context, params protocol.UpdateParams) (err error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	err = p.sink.Update(params)
	if err != nil {
		p.logger.Warn("refresh failed", "update", params, "error", err)
	}
	return err
}

func (p *Pipeline) power(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	if err = fn(); err != nil {
		p.logger.Warn("panel power change failed", "error", err)
	}
	return err
}

// Submit queues an update. Synchronous updates return once the sink has
// finished them, with its error. Others return once queued and their sink
// errors are only logged. Submit blocks while the queue is full.
func (p *Pipeline) Submit(ctx context.Context, params protocol.UpdateParams) error {
	m := message{kind: msgUpdate, params: params}
	if params.Flags.Has(protocol.FlagSync) {
		m.done = make(chan error, 1)
	}
	return p.send(ctx, m)
}

// Clear re-initializes the whole panel and waits for it.
func (p *Pipeline) Clear(ctx context.Context) error {
	return p.send(ctx, message{kind: msgClear, done: make(chan error, 1)})
}

// Blank powers the panel down after the queued refreshes.
func (p *Pipeline) Blank(ctx context.Context) error {
	return p.send(ctx, message{kind: msgBlank, done: make(chan error, 1)})
}

// Unblank powers the panel back up.
func (p *Pipeline) Unblank(ctx context.Context) error {
	return p.send(ctx, message{kind: msgUnblank, done: make(chan error, 1)})
}

// Shutdown stops the worker after the requests queued before it.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	select {
	case <-p.stopped:
		return nil
	default:
	}
	err := p.send(ctx, message{kind: msgShutdown, done: make(chan error, 1)})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) send(ctx context.Context, m message) error {
	if p.sink == nil && m.kind != msgShutdown {
		return ErrUnavailable
	}
	select {
	case <-p.stopped:
		return ErrClosed
	default:
	}
	select {
	case p.queue <- m:
	case <-p.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if m.done == nil {
		return nil
	}
	select {
	case err := <-m.done:
		return err
	case <-p.stopped:
		select {
		case err := <-m.done:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
