package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths are the config keys, for example:
//
//	sink
//	fbdev.path
//	x11.scale
//	sync_heuristic.min_top
//	queue_depth
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	switch path {
	case "runtime_dir":
		return cfg.RuntimeDir, nil
	case "log_level":
		return cfg.LogLevel, nil
	case "sink":
		return cfg.Sink, nil
	case "device_generation":
		return cfg.DeviceGeneration, nil
	case "fbdev":
		return cfg.FBDev, nil
	case "fbdev.path":
		return cfg.FBDev.Path, nil
	case "x11":
		return cfg.X11, nil
	case "x11.display":
		return cfg.X11.Display, nil
	case "x11.scale":
		return cfg.X11.Scale, nil
	case "x11.title":
		return cfg.X11.Title, nil
	case "sync_heuristic":
		return cfg.SyncHeuristic, nil
	case "sync_heuristic.enabled":
		return cfg.SyncHeuristic.Enabled, nil
	case "sync_heuristic.min_top":
		return cfg.SyncHeuristic.MinTop, nil
	case "sync_heuristic.waveform":
		return cfg.SyncHeuristic.Waveform, nil
	case "pause_inactive":
		return cfg.PauseInactive, nil
	case "queue_depth":
		return cfg.QueueDepth, nil
	case "refresh_interval_ms":
		return cfg.RefreshIntervalMS, nil
	case "reap_interval_ms":
		return cfg.ReapIntervalMS, nil
	case "client_timeout_ms":
		return cfg.ClientTimeoutMS, nil
	}
	if strings.HasPrefix(path, "include") {
		return nil, fmt.Errorf("include is resolved at load time and has no effective value")
	}
	return nil, fmt.Errorf("unknown config path %q", path)
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// FormatSource renders a source the way `config explain` prints it.
func FormatSource(src Source) string { return src.String() }
