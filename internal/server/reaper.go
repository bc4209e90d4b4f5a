package server

import (
	"context"
	"log/slog"
	"time"
)

// PIDLister returns the pids currently registered.
type PIDLister func() []int32

// ReaperConfig holds configuration for the reaper.
type ReaperConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reaper periodically checks registered clients and reports the ones whose
// process has exited without closing its session.
type Reaper struct {
	interval time.Duration
	procs    Processes
	listPIDs PIDLister
	logger   *slog.Logger
}

// NewReaper creates a new reaper with the given configuration.
func NewReaper(cfg ReaperConfig, procs Processes, listPIDs PIDLister) *Reaper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reaper{
		interval: interval,
		procs:    procs,
		listPIDs: listPIDs,
		logger:   cfg.Logger,
	}
}

// Run starts the reaping loop. Blocks until context is cancelled.
func (r *Reaper) Run(ctx context.Context, dead chan<- int32) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("reaper started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pid := range r.reap() {
				select {
				case dead <- pid:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// reap performs a single pass.
func (r *Reaper) reap() (dead []int32) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reaper panic recovered", "error", err)
			dead = nil
		}
	}()

	for _, pid := range r.listPIDs() {
		if !r.procs.Alive(pid) {
			r.logger.Info("reaper: client process is gone", "pid", pid)
			dead = append(dead, pid)
		}
	}
	return dead
}
