// Package server implements the display server: the single owner of the
// panel, which registers clients, keeps exactly one of them on screen and
// forwards their updates to the sink.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/ipc"
	"github.com/1broseidon/inkmux/internal/protocol"
	"github.com/1broseidon/inkmux/internal/runtimepath"
	"github.com/1broseidon/inkmux/internal/session"
	"github.com/1broseidon/inkmux/internal/sink"
)

// Config holds the display server settings.
type Config struct {
	Paths         runtimepath.Paths
	PauseInactive bool
	ReapInterval  time.Duration
	Logger        *slog.Logger
	// Input, when set, carries touch input for the active client.
	Input <-chan protocol.InputEvent
	// UpdateConn and ControlConn, when set, are already bound sockets
	// served instead of binding Paths.Update and Paths.Control.
	UpdateConn  *net.UnixConn
	ControlConn *net.UnixConn
}

type client struct {
	pid     int32
	name    string
	active  bool
	session *session.Session
}

// DisplayServer owns the shared framebuffer and the client table.
type DisplayServer struct {
	cfg      Config
	fb       *fb.Framebuffer
	pipeline *sink.Pipeline
	procs    Processes
	logger   *slog.Logger

	updates  *protocol.Server
	control  *ipc.Server
	sessions *session.Server

	// Owned by the dispatch loop.
	clients  []*client
	launcher int32
	blanked  bool

	pids atomic.Pointer[[]int32]
}

// New creates a display server. procs may be nil, in which case the host
// process table is used.
func New(cfg Config, f *fb.Framebuffer, pipeline *sink.Pipeline, procs Processes) *DisplayServer {
	if procs == nil {
		procs = SystemProcesses{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &DisplayServer{
		cfg:      cfg,
		fb:       f,
		pipeline: pipeline,
		procs:    procs,
		logger:   logger,
		sessions: session.NewServer(cfg.Paths.Session, f, logger.With("socket", "session")),
	}
	if cfg.UpdateConn != nil {
		s.updates = protocol.NewServerFromConn(cfg.Paths.Update, cfg.UpdateConn, logger.With("socket", "update"))
	} else {
		s.updates = protocol.NewServer(cfg.Paths.Update, logger.With("socket", "update"))
	}
	if cfg.ControlConn != nil {
		s.control = ipc.NewServerFromConn(cfg.Paths.Control, cfg.ControlConn, logger.With("socket", "control"))
	} else {
		s.control = ipc.NewServer(cfg.Paths.Control, logger.With("socket", "control"))
	}
	s.publishPIDs()
	return s
}

// Init binds all sockets. Sockets already bound or inherited are left alone,
// so Init may be called more than once.
func (s *DisplayServer) Init() error {
	if err := s.updates.Init(); err != nil {
		return fmt.Errorf("update socket: %w", err)
	}
	if err := s.control.Init(); err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	if err := s.sessions.Listen(); err != nil {
		return fmt.Errorf("session socket: %w", err)
	}
	return nil
}

// Run serves clients until ctx is cancelled.
func (s *DisplayServer) Run(ctx context.Context) error {
	if err := s.Init(); err != nil {
		return err
	}

	pctx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		s.pipeline.Run(pctx)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan protocol.Request)
	calls := make(chan ipc.Call)
	events := make(chan session.Event)
	dead := make(chan int32)
	errc := make(chan error, 3)

	var wg sync.WaitGroup
	serve := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errc <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	serve("update socket", func() error { return s.updates.Serve(ctx, updates) })
	serve("control socket", func() error { return s.control.Serve(ctx, calls) })
	serve("session socket", func() error { return s.sessions.Serve(ctx, events) })

	if s.cfg.ReapInterval > 0 {
		reaper := NewReaper(ReaperConfig{Interval: s.cfg.ReapInterval, Logger: s.logger}, s.procs, s.registeredPIDs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reaper.Run(ctx, dead)
		}()
	}

	if err := s.pipeline.Clear(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("initial panel clear failed", "error", err)
	}

	s.logger.Info("display server running",
		"update", s.updates.Path(), "control", s.control.Path(), "session", s.sessions.Path())
	s.dispatch(ctx, updates, calls, events, dead)

	cancel()
	wg.Wait()
	for _, c := range s.clients {
		s.resume(c)
		if c.session != nil {
			c.session.Close()
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := s.pipeline.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("refresh pipeline did not drain", "error", err)
	}
	stopPipeline()
	<-pipelineDone

	select {
	case err := <-errc:
		return err
	default:
		s.logger.Info("display server stopped")
		return nil
	}
}

// dispatch is the only goroutine touching the client table.
func (s *DisplayServer) dispatch(ctx context.Context, updates <-chan protocol.Request, calls <-chan ipc.Call, events <-chan session.Event, dead <-chan int32) {
	input := s.cfg.Input
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-updates:
			s.safely("update", func() { s.handleUpdate(ctx, req) })
		case call := <-calls:
			s.safely("control", func() { s.handleControl(ctx, call) })
		case ev := <-events:
			s.safely("session", func() { s.handleSession(ctx, ev) })
		case pid := <-dead:
			s.safely("reap", func() { s.unregister(ctx, pid, nil) })
		case ev, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			s.safely("input", func() { s.routeInput(ev) })
		}
	}
}

func (s *DisplayServer) safely(what string, fn func()) {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("request panic recovered", "request", what, "error", err)
		}
	}()
	fn()
}

func (s *DisplayServer) handleUpdate(ctx context.Context, req protocol.Request) {
	ok := s.forward(ctx, req.Params)
	if err := s.updates.Reply(req, ok); err != nil {
		s.logger.Debug("update reply failed", "error", err)
	}
}

// forward queues p for the sink. Asynchronous updates are acknowledged once
// queued, so a later sink failure is only logged by the pipeline.
// Synchronous updates report the sink's result.
func (s *DisplayServer) forward(ctx context.Context, p protocol.UpdateParams) bool {
	clamped, ok := p.Clamp(fb.Bounds)
	if !ok {
		s.logger.Debug("rejecting empty update", "update", p)
		return false
	}
	if err := s.pipeline.Submit(ctx, clamped); err != nil {
		s.logger.Warn("dropping update", "update", clamped, "error", err)
		return false
	}
	return true
}

func (s *DisplayServer) handleControl(ctx context.Context, call ipc.Call) {
	var err error
	switch call.Request.Kind {
	case ipc.KindGetClients:
		err = s.control.ReplyClients(call, s.records())
	case ipc.KindGetFramebuffer:
		err = s.control.ReplyFramebuffer(call, s.fb)
	case ipc.KindSwitchTo:
		err = s.control.ReplyBool(call, s.switchTo(ctx, call.Request.PID))
	case ipc.KindSetLauncher:
		err = s.control.ReplyBool(call, s.setLauncher(call.Request.PID))
	}
	if err != nil {
		s.logger.Debug("control reply failed", "kind", call.Request.Kind, "error", err)
	}
}

func (s *DisplayServer) handleSession(ctx context.Context, ev session.Event) {
	switch ev.Kind {
	case session.Registered:
		s.register(ctx, ev.Session.PID(), ev.Session.Name(), ev.Session)
	case session.Unregistered:
		s.unregister(ctx, ev.Session.PID(), ev.Session)
	}
}

func (s *DisplayServer) find(pid int32) (int, *client) {
	for i, c := range s.clients {
		if c.pid == pid {
			return i, c
		}
	}
	return -1, nil
}

func (s *DisplayServer) active() *client {
	for _, c := range s.clients {
		if c.active {
			return c
		}
	}
	return nil
}

// register adds pid to the table. A second registration for the same pid
// replaces the earlier session. The first client becomes active when no
// client is.
func (s *DisplayServer) register(ctx context.Context, pid int32, name string, sess *session.Session) {
	if name == "" {
		name = s.procs.Name(pid)
	}
	if _, c := s.find(pid); c != nil {
		if c.session != nil && c.session != sess {
			c.session.Close()
		}
		c.session = sess
		c.name = name
		s.logger.Info("client re-registered", "pid", pid, "name", name)
		return
	}

	c := &client{pid: pid, name: name, session: sess}
	s.clients = append(s.clients, c)
	if s.active() == nil {
		c.active = true
	}
	s.publishPIDs()
	s.logger.Info("client registered", "pid", pid, "name", name, "active", c.active)

	if s.blanked {
		if err := s.pipeline.Unblank(ctx); err != nil {
			s.logger.Warn("unblank failed", "error", err)
		}
		s.blanked = false
	}
}

// unregister removes pid. When sess is non-nil only that session's record
// is removed, so a stale disconnect cannot drop a newer registration.
func (s *DisplayServer) unregister(ctx context.Context, pid int32, sess *session.Session) {
	i, c := s.find(pid)
	if c == nil || (sess != nil && c.session != sess) {
		return
	}
	s.clients = append(s.clients[:i], s.clients[i+1:]...)
	if c.session != nil {
		c.session.Close()
	}
	if s.launcher == pid {
		s.launcher = 0
	}
	s.publishPIDs()
	s.logger.Info("client unregistered", "pid", pid, "name", c.name)

	if !c.active {
		return
	}
	next := s.fallback()
	if next == nil {
		if err := s.pipeline.Blank(ctx); err != nil {
			s.logger.Warn("blank failed", "error", err)
		}
		s.blanked = true
		return
	}
	s.activate(ctx, next)
}

// fallback picks the client shown after the active one leaves: the
// launcher when registered, otherwise the oldest remaining client.
func (s *DisplayServer) fallback() *client {
	if s.launcher != 0 {
		if _, c := s.find(s.launcher); c != nil {
			return c
		}
	}
	if len(s.clients) > 0 {
		return s.clients[0]
	}
	return nil
}

func (s *DisplayServer) switchTo(ctx context.Context, pid int32) bool {
	_, target := s.find(pid)
	if target == nil {
		s.logger.Info("switch to unknown client", "pid", pid)
		return false
	}
	if target.active {
		return true
	}
	s.activate(ctx, target)
	return true
}

// activate makes target the only active client and redraws the panel.
func (s *DisplayServer) activate(ctx context.Context, target *client) {
	prev := s.active()
	for _, c := range s.clients {
		c.active = c == target
	}
	if prev != nil && prev != target {
		s.pause(prev)
	}
	s.resume(target)
	s.logger.Info("switched client", "pid", target.pid, "name", target.name)

	full := protocol.ParamsForRect(fb.Bounds, protocol.WaveformHighFidelity, protocol.FlagFull)
	if err := s.pipeline.Submit(ctx, full); err != nil {
		s.logger.Warn("refresh after switch failed", "error", err)
	}
}

func (s *DisplayServer) pause(c *client) {
	if !s.cfg.PauseInactive {
		return
	}
	if err := s.procs.Pause(c.pid); err != nil {
		s.logger.Warn("pausing client failed", "pid", c.pid, "error", err)
	}
}

func (s *DisplayServer) resume(c *client) {
	if !s.cfg.PauseInactive {
		return
	}
	if err := s.procs.Resume(c.pid); err != nil {
		s.logger.Debug("resuming client failed", "pid", c.pid, "error", err)
	}
}

func (s *DisplayServer) setLauncher(pid int32) bool {
	if _, c := s.find(pid); c == nil {
		return false
	}
	s.launcher = pid
	s.logger.Info("launcher set", "pid", pid)
	return true
}

func (s *DisplayServer) routeInput(ev protocol.InputEvent) {
	c := s.active()
	if c == nil || c.session == nil {
		return
	}
	if err := c.session.SendInput(ev); err != nil {
		s.logger.Debug("input delivery failed", "pid", c.pid, "error", err)
	}
}

func (s *DisplayServer) records() []ipc.ClientRecord {
	out := make([]ipc.ClientRecord, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, ipc.ClientRecord{PID: c.pid, Active: c.active, Name: c.name})
	}
	return out
}

func (s *DisplayServer) publishPIDs() {
	pids := make([]int32, 0, len(s.clients))
	for _, c := range s.clients {
		pids = append(pids, c.pid)
	}
	s.pids.Store(&pids)
}

func (s *DisplayServer) registeredPIDs() []int32 {
	if p := s.pids.Load(); p != nil {
		return *p
	}
	return nil
}
