package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"midgardFeed/internal/midgard"
	"midgardFeed/internal/recording"
)

// RecordConfig holds configuration for the record command.
type RecordConfig struct {
	Source   Source
	Recorder recording.RecorderConfig
	Out      string
	// Duration stops the session early; zero records until interrupted.
	Duration time.Duration
	Logging  Logging
}

// LoadRecord merges config file, environment variables, and flags into RecordConfig.
func LoadRecord(cfgFile string, flags *pflag.FlagSet) (RecordConfig, error) {
	v, err := newViper(cfgFile, flags, merge(sourceDefaults, map[string]any{
		"period":    time.Second,
		"page-size": midgard.MaxActionsPerCall,
		"out":       "./data/record.json",
		"duration":  time.Duration(0),
	}))
	if err != nil {
		return RecordConfig{}, err
	}

	src, err := loadSource(v)
	if err != nil {
		return RecordConfig{}, err
	}

	cfg := RecordConfig{
		Source: src,
		Recorder: recording.RecorderConfig{
			Period:   v.GetDuration("period"),
			PageSize: v.GetInt("page-size"),
		},
		Out:      strings.TrimSpace(v.GetString("out")),
		Duration: v.GetDuration("duration"),
		Logging:  loadLogging(v),
	}

	if cfg.Out == "" {
		return RecordConfig{}, fmt.Errorf("out is required")
	}
	if cfg.Recorder.Period <= 0 {
		return RecordConfig{}, fmt.Errorf("period must be positive, got %s", cfg.Recorder.Period)
	}
	if cfg.Duration < 0 {
		return RecordConfig{}, fmt.Errorf("duration must not be negative, got %s", cfg.Duration)
	}

	return cfg, nil
}
