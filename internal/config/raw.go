package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawFBDev struct {
	Path *string `yaml:"path"`
}

type RawX11 struct {
	Display *string  `yaml:"display"`
	Scale   *float64 `yaml:"scale"`
	Title   *string  `yaml:"title"`
}

type RawSyncHeuristic struct {
	Enabled  *bool   `yaml:"enabled"`
	MinTop   *int    `yaml:"min_top"`
	Waveform *string `yaml:"waveform"`
}

// RawConfig is one YAML file as written. Nil fields were not set.
type RawConfig struct {
	Include IncludeList `yaml:"include"`

	RuntimeDir       *string           `yaml:"runtime_dir"`
	LogLevel         *string           `yaml:"log_level"`
	Sink             *string           `yaml:"sink"`
	DeviceGeneration *string           `yaml:"device_generation"`
	FBDev            *RawFBDev         `yaml:"fbdev"`
	X11              *RawX11           `yaml:"x11"`
	SyncHeuristic    *RawSyncHeuristic `yaml:"sync_heuristic"`

	PauseInactive     *bool `yaml:"pause_inactive"`
	QueueDepth        *int  `yaml:"queue_depth"`
	RefreshIntervalMS *int  `yaml:"refresh_interval_ms"`
	ReapIntervalMS    *int  `yaml:"reap_interval_ms"`
	ClientTimeoutMS   *int  `yaml:"client_timeout_ms"`
}

// merge overlays other on top of r; fields set in other win.
func (r RawConfig) merge(other RawConfig) RawConfig {
	out := r
	out.Include = nil

	mergePtr(&out.RuntimeDir, other.RuntimeDir)
	mergePtr(&out.LogLevel, other.LogLevel)
	mergePtr(&out.Sink, other.Sink)
	mergePtr(&out.DeviceGeneration, other.DeviceGeneration)
	mergePtr(&out.PauseInactive, other.PauseInactive)
	mergePtr(&out.QueueDepth, other.QueueDepth)
	mergePtr(&out.RefreshIntervalMS, other.RefreshIntervalMS)
	mergePtr(&out.ReapIntervalMS, other.ReapIntervalMS)
	mergePtr(&out.ClientTimeoutMS, other.ClientTimeoutMS)

	if other.FBDev != nil {
		fbdev := RawFBDev{}
		if out.FBDev != nil {
			fbdev = *out.FBDev
		}
		mergePtr(&fbdev.Path, other.FBDev.Path)
		out.FBDev = &fbdev
	}
	if other.X11 != nil {
		x := RawX11{}
		if out.X11 != nil {
			x = *out.X11
		}
		mergePtr(&x.Display, other.X11.Display)
		mergePtr(&x.Scale, other.X11.Scale)
		mergePtr(&x.Title, other.X11.Title)
		out.X11 = &x
	}
	if other.SyncHeuristic != nil {
		h := RawSyncHeuristic{}
		if out.SyncHeuristic != nil {
			h = *out.SyncHeuristic
		}
		mergePtr(&h.Enabled, other.SyncHeuristic.Enabled)
		mergePtr(&h.MinTop, other.SyncHeuristic.MinTop)
		mergePtr(&h.Waveform, other.SyncHeuristic.Waveform)
		out.SyncHeuristic = &h
	}
	return out
}

func mergePtr[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
