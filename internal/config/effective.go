package config

import "fmt"

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BuildEffectiveConfig applies raw on top of DefaultConfig. It does not
// validate.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.RuntimeDir != nil {
		cfg.RuntimeDir = *raw.RuntimeDir
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.Sink != nil {
		cfg.Sink = *raw.Sink
	}
	if raw.DeviceGeneration != nil {
		cfg.DeviceGeneration = *raw.DeviceGeneration
	}
	if raw.FBDev != nil && raw.FBDev.Path != nil {
		cfg.FBDev.Path = *raw.FBDev.Path
	}
	if raw.X11 != nil {
		if raw.X11.Display != nil {
			cfg.X11.Display = *raw.X11.Display
		}
		if raw.X11.Scale != nil {
			cfg.X11.Scale = *raw.X11.Scale
		}
		if raw.X11.Title != nil {
			cfg.X11.Title = *raw.X11.Title
		}
	}
	if raw.SyncHeuristic != nil {
		if raw.SyncHeuristic.Enabled != nil {
			cfg.SyncHeuristic.Enabled = *raw.SyncHeuristic.Enabled
		}
		if raw.SyncHeuristic.MinTop != nil {
			cfg.SyncHeuristic.MinTop = *raw.SyncHeuristic.MinTop
		}
		if raw.SyncHeuristic.Waveform != nil {
			cfg.SyncHeuristic.Waveform = *raw.SyncHeuristic.Waveform
		}
	}
	if raw.PauseInactive != nil {
		cfg.PauseInactive = *raw.PauseInactive
	}
	if raw.QueueDepth != nil {
		cfg.QueueDepth = *raw.QueueDepth
	}
	if raw.RefreshIntervalMS != nil {
		cfg.RefreshIntervalMS = *raw.RefreshIntervalMS
	}
	if raw.ReapIntervalMS != nil {
		cfg.ReapIntervalMS = *raw.ReapIntervalMS
	}
	if raw.ClientTimeoutMS != nil {
		cfg.ClientTimeoutMS = *raw.ClientTimeoutMS
	}

	return cfg, nil
}
