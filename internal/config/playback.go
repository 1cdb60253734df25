package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"midgardFeed/internal/provider"
)

// PlaybackConfig holds configuration for the playback command.
type PlaybackConfig struct {
	Playback provider.PlaybackConfig
	// Fast replays without waiting between envelopes.
	Fast    bool
	Sinks   Sinks
	Logging Logging
}

// LoadPlayback merges config file, environment variables, and flags into PlaybackConfig.
func LoadPlayback(cfgFile string, flags *pflag.FlagSet) (PlaybackConfig, error) {
	def := provider.DefaultPlaybackConfig()
	v, err := newViper(cfgFile, flags, map[string]any{
		"speed":            def.TimeScale,
		"wait-first-event": def.WaitFirstEvent,
		"max-tx-cache":     def.TxCacheSize,
		"max-tx-age":       def.MaxTxAge,
		"ignore-old":       def.IgnoreOld,
		"fast":             false,
	})
	if err != nil {
		return PlaybackConfig{}, err
	}

	cfg := PlaybackConfig{
		Playback: provider.PlaybackConfig{
			Path:           strings.TrimSpace(v.GetString("file")),
			TimeScale:      v.GetFloat64("speed"),
			WaitFirstEvent: v.GetBool("wait-first-event"),
			TxCacheSize:    v.GetInt("max-tx-cache"),
			MaxTxAge:       v.GetDuration("max-tx-age"),
			IgnoreOld:      v.GetBool("ignore-old"),
		},
		Fast:    v.GetBool("fast"),
		Sinks:   loadSinks(v),
		Logging: loadLogging(v),
	}

	if cfg.Playback.Path == "" {
		return PlaybackConfig{}, fmt.Errorf("file is required")
	}
	if cfg.Playback.TimeScale <= 0 {
		return PlaybackConfig{}, fmt.Errorf("speed must be positive, got %v", cfg.Playback.TimeScale)
	}

	return cfg, nil
}
