package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/legacy"
)

// Sink backends.
const (
	SinkX11   = "x11"
	SinkFBDev = "fbdev"
	SinkNull  = "null"
)

// FBDevConfig configures the hardware framebuffer sink.
type FBDevConfig struct {
	Path string `yaml:"path"`
}

// X11Config configures the desktop preview sink.
type X11Config struct {
	Display string `yaml:"display"`
	// Scale is the window scale factor; 0 fits the panel to the monitor.
	Scale float64 `yaml:"scale"`
	Title string  `yaml:"title"`
}

// SyncHeuristicConfig controls the "full-width bottom strip" heuristic that
// marks some legacy refreshes synchronous.
type SyncHeuristicConfig struct {
	Enabled  bool   `yaml:"enabled"`
	MinTop   int    `yaml:"min_top"`
	Waveform string `yaml:"waveform"`
}

// Config is the effective daemon configuration.
type Config struct {
	RuntimeDir        string              `yaml:"runtime_dir"`
	LogLevel          string              `yaml:"log_level"`
	Sink              string              `yaml:"sink"`
	DeviceGeneration  string              `yaml:"device_generation"`
	FBDev             FBDevConfig         `yaml:"fbdev"`
	X11               X11Config           `yaml:"x11"`
	SyncHeuristic     SyncHeuristicConfig `yaml:"sync_heuristic"`
	PauseInactive     bool                `yaml:"pause_inactive"`
	QueueDepth        int                 `yaml:"queue_depth"`
	RefreshIntervalMS int                 `yaml:"refresh_interval_ms"`
	ReapIntervalMS    int                 `yaml:"reap_interval_ms"`
	ClientTimeoutMS   int                 `yaml:"client_timeout_ms"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		Sink:             SinkFBDev,
		DeviceGeneration: string(legacy.GenerationMXCFB),
		FBDev:            FBDevConfig{Path: "/dev/fb0"},
		X11:              X11Config{Title: "inkmux"},
		SyncHeuristic: SyncHeuristicConfig{
			Enabled:  true,
			MinTop:   1800,
			Waveform: "gc16",
		},
		QueueDepth:     32,
		ReapIntervalMS: 2000,
	}
}

// SlogLevel maps log_level onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Generation returns the configured device generation. Validate guarantees
// the value parses.
func (c *Config) Generation() legacy.Generation {
	gen, err := legacy.ParseGeneration(c.DeviceGeneration)
	if err != nil {
		return legacy.GenerationMXCFB
	}
	return gen
}

// Heuristic returns the synchronous-refresh heuristic for the shim.
func (c *Config) Heuristic() legacy.Heuristic {
	h := legacy.DefaultHeuristic()
	h.Enabled = c.SyncHeuristic.Enabled
	h.MinTop = uint32(c.SyncHeuristic.MinTop)
	if mode, ok := legacy.ParseWaveformMode(c.SyncHeuristic.Waveform); ok {
		h.Waveform = mode
	}
	return h
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalMS) * time.Millisecond
}

// ClientTimeout is the ack deadline for update clients; 0 blocks.
func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.ClientTimeoutMS) * time.Millisecond
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	switch c.Sink {
	case SinkX11, SinkFBDev, SinkNull:
	default:
		return &ValidationError{Path: "sink", Err: fmt.Errorf("sink must be one of: x11, fbdev, null")}
	}
	gen, err := legacy.ParseGeneration(c.DeviceGeneration)
	if err != nil {
		return &ValidationError{Path: "device_generation", Err: err}
	}
	if c.Sink == SinkFBDev {
		if gen != legacy.GenerationMXCFB {
			return &ValidationError{Path: "device_generation", Err: fmt.Errorf("the fbdev sink drives mxcfb hardware only, got %q", gen)}
		}
		if c.FBDev.Path == "" {
			return &ValidationError{Path: "fbdev.path", Err: fmt.Errorf("fbdev.path is required when sink is fbdev")}
		}
	}
	if c.X11.Scale < 0 || c.X11.Scale > 4 {
		return &ValidationError{Path: "x11.scale", Err: fmt.Errorf("x11.scale must be between 0 and 4")}
	}
	if c.SyncHeuristic.MinTop < 0 || c.SyncHeuristic.MinTop >= fb.Height {
		return &ValidationError{Path: "sync_heuristic.min_top", Err: fmt.Errorf("min_top must be in [0, %d)", fb.Height)}
	}
	if _, ok := legacy.ParseWaveformMode(c.SyncHeuristic.Waveform); !ok {
		return &ValidationError{Path: "sync_heuristic.waveform", Err: fmt.Errorf("unknown waveform %q", c.SyncHeuristic.Waveform)}
	}
	if c.QueueDepth < 1 || c.QueueDepth > 4096 {
		return &ValidationError{Path: "queue_depth", Err: fmt.Errorf("queue_depth must be between 1 and 4096")}
	}
	if c.RefreshIntervalMS < 0 {
		return &ValidationError{Path: "refresh_interval_ms", Err: fmt.Errorf("refresh_interval_ms must be >= 0")}
	}
	if c.ReapIntervalMS < 0 {
		return &ValidationError{Path: "reap_interval_ms", Err: fmt.Errorf("reap_interval_ms must be >= 0")}
	}
	if c.ClientTimeoutMS < 0 {
		return &ValidationError{Path: "client_timeout_ms", Err: fmt.Errorf("client_timeout_ms must be >= 0")}
	}
	return nil
}
